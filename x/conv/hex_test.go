package conv

import "testing"

func TestHex(t *testing.T) {
	if got := Hex([]byte{0xB4, 0xC5, 0x00, 0x0f}); got != "B4 C5 00 0F" {
		t.Fatalf("Hex = %q", got)
	}
	if Hex(nil) != "" {
		t.Fatal("Hex(nil) should be empty")
	}
}

