package chatpad

import "chatpad-go/types"

// baseLayer is indexed by [row-1][col-1] of the scancode. Unassigned matrix
// positions carry '?', as the pad firmware reports them.
var baseLayer = [7][7]byte{
	{'7', '6', '5', '4', '3', '2', '1'},
	{'U', 'Y', 'T', 'R', 'E', 'W', 'Q'},
	{'J', 'H', 'G', 'F', 'D', 'S', 'A'},
	{'N', 'B', 'V', 'C', 'X', 'Z', '?'},
	{types.KeyRight, 'M', '.', ' ', types.KeyLeft, '?', '?'},
	{'?', ',', types.KeyEnter, 'P', '0', '9', '8'},
	{types.KeyBackspace, 'L', '?', '?', 'O', 'I', 'K'},
}

// orangeLayer substitutes symbols while the orange key is held.
var orangeLayer = map[byte]byte{
	'R': '$',
	'P': '=',
	',': ';',
	'J': '"',
	'H': '\\',
	'V': '_',
	'B': '+',
}

// greenLayer substitutes symbols while the green key is held.
var greenLayer = map[byte]byte{
	'Q': '!', 'W': '@', 'R': '#', 'T': '%', 'Y': '^', 'U': '&',
	'I': '*', 'O': '(', 'P': ')', 'A': '~', 'D': '{', 'F': '}',
	'H': '/', 'J': '\'', 'K': '[', 'L': ']', ',': ':', 'Z': '`',
	'V': '-', 'B': '|', 'N': '<', 'M': '>', '.': '?',
}

// Translate maps a scancode under a modifier mask and caps-lock state to a
// character or control code. ok is false when the scancode is outside the
// 7x7 matrix.
//
// The orange (4) and green (2) layers apply only on an exact modifier match
// and leave unmapped keys unchanged. Otherwise an uppercase letter is folded
// to lowercase when the shift bit equals the caps-lock state, so shift inverts
// whatever caps lock selects.
func Translate(scancode, modifier byte, capsLock bool) (byte, bool) {
	row, col := scancode>>4, scancode&0x0F
	if row < 1 || row > 7 || col < 1 || col > 7 {
		return 0, false
	}
	c := baseLayer[row-1][col-1]
	switch modifier {
	case ModOrange:
		return substitute(orangeLayer, c), true
	case ModGreen:
		return substitute(greenLayer, c), true
	}
	shift := modifier&ModShift != 0
	if shift == capsLock && c >= 'A' && c <= 'Z' {
		c += 'a' - 'A'
	}
	return c, true
}

func substitute(layer map[byte]byte, c byte) byte {
	if s, ok := layer[c]; ok {
		return s
	}
	return c
}
