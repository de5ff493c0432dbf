package keyboard

import (
	"bytes"
	"errors"
	"strings"
	"sync"

	"chatpad-go/types"
	"chatpad-go/x/mathx"
)

// Sentinels delimiting one entry in the stored macro form:
// 0x80 <letter> <text> 0x81.
const (
	MacroStart byte = 0x80
	MacroEnd   byte = 0x81
)

var ErrMalformedMacros = errors.New("keyboard: malformed macro table")

// MacroTable maps the letters a..z to macro text. The sentinel-delimited form
// only exists at the storage boundary (Encode/Decode).
type MacroTable struct {
	mu sync.RWMutex
	m  map[byte]string
}

func NewMacroTable() *MacroTable { return &MacroTable{m: make(map[byte]string)} }

// macroKey folds letter to lowercase; ok is false outside a..z.
func macroKey(letter byte) (byte, bool) {
	if mathx.Between(letter, 'A', 'Z') {
		letter += 'a' - 'A'
	}
	return letter, mathx.Between(letter, 'a', 'z')
}

func legalMacroText(s string) bool {
	return strings.IndexByte(s, MacroStart) < 0 && strings.IndexByte(s, MacroEnd) < 0
}

// Get returns the macro stored for letter.
func (t *MacroTable) Get(letter byte) (string, bool) {
	k, ok := macroKey(letter)
	if !ok || t == nil {
		return "", false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.m[k]
	return s, ok
}

// Set stores text for letter. Empty text deletes the entry. Letters outside
// a..z and text containing a sentinel byte are ignored. Text longer than an
// event payload is truncated.
func (t *MacroTable) Set(letter byte, text string) {
	k, ok := macroKey(letter)
	if !ok || !legalMacroText(text) {
		return
	}
	text = text[:mathx.Clamp(len(text), 0, types.MaxEventPayload)]
	t.mu.Lock()
	defer t.mu.Unlock()
	if text == "" {
		delete(t.m, k)
		return
	}
	t.m[k] = text
}

func (t *MacroTable) Len() int {
	if t == nil {
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.m)
}

// Encode renders the table in its stored form, entries in letter order.
func (t *MacroTable) Encode() []byte {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var b bytes.Buffer
	for k := byte('a'); k <= 'z'; k++ {
		s, ok := t.m[k]
		if !ok {
			continue
		}
		b.WriteByte(MacroStart)
		b.WriteByte(k)
		b.WriteString(s)
		b.WriteByte(MacroEnd)
	}
	return b.Bytes()
}

// Decode replaces the table with the entries in raw. Bytes between entries
// are skipped. An unterminated entry fails the whole decode and leaves the
// table untouched; entries for letters outside a..z are dropped.
func (t *MacroTable) Decode(raw []byte) error {
	next := make(map[byte]string)
	for {
		i := bytes.IndexByte(raw, MacroStart)
		if i < 0 {
			break
		}
		raw = raw[i+1:]
		end := bytes.IndexByte(raw, MacroEnd)
		if end < 1 || bytes.IndexByte(raw[:end], MacroStart) >= 0 {
			return ErrMalformedMacros
		}
		k, ok := macroKey(raw[0])
		text := raw[1:end]
		raw = raw[end+1:]
		if !ok || len(text) == 0 {
			continue
		}
		next[k] = string(text[:mathx.Clamp(len(text), 0, types.MaxEventPayload)])
	}
	t.mu.Lock()
	t.m = next
	t.mu.Unlock()
	return nil
}

// Snapshot copies the table keyed by single-letter strings.
func (t *MacroTable) Snapshot() map[string]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]string, len(t.m))
	for k, v := range t.m {
		out[string(k)] = v
	}
	return out
}
