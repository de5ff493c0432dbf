package chatpad

import (
	"bytes"
	"testing"
)

func TestCommands(t *testing.T) {
	if !bytes.Equal(InitCommand(), []byte{0x87, 0x02, 0x8C, 0x1F, 0xCC}) {
		t.Fatalf("init command % X", InitCommand())
	}
	if !bytes.Equal(HeartbeatCommand(), []byte{0x87, 0x02, 0x8C, 0x1B, 0xD0}) {
		t.Fatalf("heartbeat command % X", HeartbeatCommand())
	}
	// Callers get a copy.
	InitCommand()[0] = 0
	if InitCommand()[0] != 0x87 {
		t.Fatal("init command mutated through returned slice")
	}
}

func TestSealedFramesAreValid(t *testing.T) {
	for _, f := range []Frame{NewReadyFrame(), NewKeyFrame(0, 0x33), NewKeyFrame(ModPeople, 0x17)} {
		if !f.Valid() {
			t.Fatalf("sealed frame % X does not sum to zero", f[:])
		}
	}
}

func TestAnySingleByteCorruptionIsRejected(t *testing.T) {
	good := NewKeyFrame(ModShift, 0x33)
	for i := 0; i < FrameSize; i++ {
		for _, delta := range []byte{1, 0x80, 0xFF} {
			f := good
			f[i] += delta
			if _, err := Decode(f); err != ErrChecksum {
				t.Fatalf("byte %d +%#x: err = %v, want ErrChecksum", i, delta, err)
			}
		}
	}
}

func TestDecode(t *testing.T) {
	other := Frame{MarkerReport, 0x99, 1, 2, 3}
	other.Seal()

	cases := []struct {
		name string
		in   Frame
		want Packet
	}{
		{"ready", NewReadyFrame(), Packet{Kind: PacketReady}},
		{"keys", NewKeyFrame(ModGreen, 0x21), Packet{Kind: PacketKeys, Modifier: ModGreen, Scancode: 0x21}},
		{"release", NewKeyFrame(0, 0), Packet{Kind: PacketKeys}},
		{"other report", other, Packet{Kind: PacketOther}},
	}
	for _, tc := range cases {
		got, err := Decode(tc.in)
		if err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: got %+v, want %+v", tc.name, got, tc.want)
		}
	}
	if !(Packet{Kind: PacketKeys}).Empty() {
		t.Fatal("zero report should be empty")
	}
}
