package voicelink

import (
	"context"
	"errors"
	"sync"
)

// MockDialer is an in-process transport used by tests and local runs without
// a gateway token. Connect failures can be scripted per attempt.
type MockDialer struct {
	mu       sync.Mutex
	attempts int
	// FailFirst makes the first n Connect calls fail.
	FailFirst int
	// FailAll makes every Connect call fail.
	FailAll bool
	// Bare makes connections without capture support.
	Bare bool

	conns []*MockConnection
}

func NewMockDialer() *MockDialer { return &MockDialer{} }

func (d *MockDialer) Connect(ctx context.Context, guildID, channelID string) (Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts++
	if d.FailAll || d.attempts <= d.FailFirst {
		return nil, errors.New("voice gateway unreachable")
	}
	if d.Bare {
		return &bareConnection{}, nil
	}
	c := &MockConnection{guildID: guildID, channelID: channelID}
	d.conns = append(d.conns, c)
	return c, nil
}

// Attempts reports how many Connect calls were made.
func (d *MockDialer) Attempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

// Connections returns every connection handed out so far.
func (d *MockDialer) Connections() []*MockConnection {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*MockConnection, len(d.conns))
	copy(out, d.conns)
	return out
}

// MockConnection implements Connection and FrameCapturer and lets tests push
// frames directly into the registered handler.
type MockConnection struct {
	mu           sync.Mutex
	guildID      string
	channelID    string
	handler      FrameHandler
	disconnected bool

	// StartCaptureErr, when set, makes StartCapture fail.
	StartCaptureErr error
}

func (c *MockConnection) StartCapture(handler FrameHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.StartCaptureErr != nil {
		return c.StartCaptureErr
	}
	c.handler = handler
	return nil
}

func (c *MockConnection) StopCapture() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = nil
}

func (c *MockConnection) Disconnect(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
	c.handler = nil
	return nil
}

func (c *MockConnection) Disconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

// Deliver pushes a frame as if it arrived from the voice transport.
func (c *MockConnection) Deliver(f Frame) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h != nil {
		h(f)
	}
}

// Capturing reports whether a handler is attached.
func (c *MockConnection) Capturing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler != nil
}

// bareConnection has no capture capability.
type bareConnection struct{}

func (bareConnection) Disconnect(context.Context) error { return nil }
