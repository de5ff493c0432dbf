package chatpad

import (
	"testing"

	"chatpad-go/types"
)

func TestTranslate(t *testing.T) {
	cases := []struct {
		name string
		code byte
		mod  byte
		caps bool
		want byte
	}{
		{"plain letter", 0x33, 0, false, 'g'},
		{"shift letter", 0x33, ModShift, false, 'G'},
		{"caps letter", 0x33, 0, true, 'G'},
		{"shift cancels caps", 0x33, ModShift, true, 'g'},
		{"digit ignores case", 0x17, ModShift, false, '1'},
		{"top left", 0x11, 0, false, '7'},
		{"space", 0x54, 0, false, ' '},
		{"enter", 0x63, 0, false, types.KeyEnter},
		{"backspace", 0x71, 0, false, types.KeyBackspace},
		{"left", 0x55, 0, false, types.KeyLeft},
		{"right", 0x51, 0, false, types.KeyRight},
		{"orange R", 0x24, ModOrange, false, '$'},
		{"orange unmapped passes", 0x33, ModOrange, false, 'G'},
		{"green Q", 0x27, ModGreen, false, '!'},
		{"green dot", 0x53, ModGreen, false, '?'},
		{"green digit passes", 0x17, ModGreen, false, '1'},
		{"people folds", 0x37, ModPeople, false, 'a'},
	}
	for _, tc := range cases {
		got, ok := Translate(tc.code, tc.mod, tc.caps)
		if !ok {
			t.Fatalf("%s: scancode %#x rejected", tc.name, tc.code)
		}
		if got != tc.want {
			t.Fatalf("%s: Translate(%#x, %d, %v) = %q, want %q", tc.name, tc.code, tc.mod, tc.caps, got, tc.want)
		}
	}
}

func TestTranslate_OutOfMatrix(t *testing.T) {
	for _, code := range []byte{0x00, 0x10, 0x01, 0x18, 0x81, 0xFF, 0x08} {
		if c, ok := Translate(code, 0, false); ok {
			t.Fatalf("scancode %#x accepted as %q", code, c)
		}
	}
}
