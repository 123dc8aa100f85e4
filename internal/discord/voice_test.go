package discord

import (
	"testing"

	"github.com/bwmarrin/discordgo"
)

func TestPCMBytesLittleEndian(t *testing.T) {
	got := pcmBytes([]int16{0x0102, -2})
	want := []byte{0x02, 0x01, 0xFE, 0xFF}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d = %#x, want %#x", i, got[i], want[i])
		}
	}
}

func TestInteractionUserIDPrefersMember(t *testing.T) {
	ic := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Member: &discordgo.Member{User: &discordgo.User{ID: "m1"}},
		User:   &discordgo.User{ID: "u1"},
	}}
	if got := interactionUserID(ic); got != "m1" {
		t.Errorf("interactionUserID = %q, want m1", got)
	}

	ic = &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		User: &discordgo.User{ID: "u1"},
	}}
	if got := interactionUserID(ic); got != "u1" {
		t.Errorf("interactionUserID = %q, want u1", got)
	}

	ic = &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{}}
	if got := interactionUserID(ic); got != "" {
		t.Errorf("interactionUserID = %q, want empty", got)
	}
}
