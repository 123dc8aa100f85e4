package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
)

// Format describes the fixed PCM layout of a recording stream.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// DiscordVoice is the format delivered by the voice gateway capture path.
var DiscordVoice = Format{SampleRate: 48000, Channels: 2, BitsPerSample: 16}

const headerSize = 44

// Writer appends raw PCM16LE audio to a WAV file. The header is written up
// front with zero sizes and patched when the writer is closed, so the file
// stays append-only for the stream's lifetime.
type Writer struct {
	f       *os.File
	format  Format
	written uint32
	closed  bool
}

func NewWriter(path string, format Format) (*Writer, error) {
	if format.SampleRate <= 0 || format.Channels <= 0 || format.BitsPerSample <= 0 {
		return nil, fmt.Errorf("invalid wav format: %+v", format)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create wav file: %w", err)
	}
	w := &Writer{f: f, format: format}
	if err := w.writeHeader(); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	return w, nil
}

func (w *Writer) writeHeader() error {
	byteRate := uint32(w.format.SampleRate * w.format.Channels * w.format.BitsPerSample / 8)
	blockAlign := uint16(w.format.Channels * w.format.BitsPerSample / 8)

	var hdr [headerSize]byte
	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], 36) // patched on Close
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16)
	binary.LittleEndian.PutUint16(hdr[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(hdr[22:24], uint16(w.format.Channels))
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(w.format.SampleRate))
	binary.LittleEndian.PutUint32(hdr[28:32], byteRate)
	binary.LittleEndian.PutUint16(hdr[32:34], blockAlign)
	binary.LittleEndian.PutUint16(hdr[34:36], uint16(w.format.BitsPerSample))
	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], 0) // patched on Close

	if _, err := w.f.Write(hdr[:]); err != nil {
		return fmt.Errorf("write wav header: %w", err)
	}
	return nil
}

// Write appends raw PCM bytes to the data chunk.
func (w *Writer) Write(pcm []byte) error {
	if w.closed {
		return errors.New("wav writer is closed")
	}
	if len(pcm) == 0 {
		return nil
	}
	n, err := w.f.Write(pcm)
	w.written += uint32(n)
	if err != nil {
		return fmt.Errorf("write wav data: %w", err)
	}
	return nil
}

// BytesWritten reports the size of the data chunk so far.
func (w *Writer) BytesWritten() uint32 { return w.written }

// Close patches the RIFF and data chunk sizes and finalizes the file.
// A second Close is a no-op.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	var sizes [4]byte
	binary.LittleEndian.PutUint32(sizes[:], 36+w.written)
	if _, err := w.f.WriteAt(sizes[:], 4); err != nil {
		w.f.Close()
		return fmt.Errorf("patch riff size: %w", err)
	}
	binary.LittleEndian.PutUint32(sizes[:], w.written)
	if _, err := w.f.WriteAt(sizes[:], 40); err != nil {
		w.f.Close()
		return fmt.Errorf("patch data size: %w", err)
	}
	if err := w.f.Sync(); err != nil {
		w.f.Close()
		return fmt.Errorf("sync wav file: %w", err)
	}
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("close wav file: %w", err)
	}
	return nil
}

// Info is the decoded header of a finalized WAV file.
type Info struct {
	Format   Format
	DataSize uint32
	Duration float64
}

// ReadInfo parses the header of a WAV file produced by Writer.
func ReadInfo(data []byte) (Info, error) {
	if len(data) < headerSize {
		return Info{}, fmt.Errorf("wav data too short: %d bytes", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Info{}, errors.New("not a RIFF/WAVE file")
	}
	if string(data[12:16]) != "fmt " || string(data[36:40]) != "data" {
		return Info{}, errors.New("unexpected wav chunk layout")
	}

	info := Info{
		Format: Format{
			SampleRate:    int(binary.LittleEndian.Uint32(data[24:28])),
			Channels:      int(binary.LittleEndian.Uint16(data[22:24])),
			BitsPerSample: int(binary.LittleEndian.Uint16(data[34:36])),
		},
		DataSize: binary.LittleEndian.Uint32(data[40:44]),
	}
	if info.Format.SampleRate <= 0 {
		return Info{}, errors.New("invalid sample rate")
	}
	bytesPerSecond := info.Format.SampleRate * info.Format.Channels * info.Format.BitsPerSample / 8
	if bytesPerSecond > 0 {
		info.Duration = float64(info.DataSize) / float64(bytesPerSecond)
	}
	return info, nil
}
