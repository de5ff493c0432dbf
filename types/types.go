package types

// ---- Keyboard events ----

// EventBufferSize is the capacity of a KeyEvent payload including the
// terminating zero byte.
const EventBufferSize = 256

// MaxEventPayload is the largest payload a KeyEvent carries.
const MaxEventPayload = EventBufferSize - 1

type KeyEventType uint8

const (
	KeyEventChar KeyEventType = iota
	KeyEventText
	KeyEventMacro
)

func (t KeyEventType) String() string {
	switch t {
	case KeyEventText:
		return "text"
	case KeyEventMacro:
		return "macro"
	default:
		return "char"
	}
}

func (t KeyEventType) MarshalJSON() ([]byte, error) { return []byte(`"` + t.String() + `"`), nil }

// KeyEvent is one published keyboard action. Data[Length] is always zero.
type KeyEvent struct {
	Type   KeyEventType
	Data   [EventBufferSize]byte
	Length int
}

// Bytes returns the payload. The slice aliases the event.
func (e *KeyEvent) Bytes() []byte { return e.Data[:e.Length] }

func (e *KeyEvent) Text() string { return string(e.Data[:e.Length]) }

// Control codes carried in char events for non-printing chatpad keys.
const (
	KeyBackspace byte = 0x08
	KeyEnter     byte = 0x0D
	KeyLeft      byte = 0x11
	KeyRight     byte = 0x12
)

// ---- Chatpad status ----

type ChatpadStatus uint8

const (
	ChatpadStopped ChatpadStatus = iota
	ChatpadStarted
	ChatpadReady
	ChatpadError
)

func (s ChatpadStatus) String() string {
	switch s {
	case ChatpadStarted:
		return "started"
	case ChatpadReady:
		return "ready"
	case ChatpadError:
		return "error"
	default:
		return "stopped"
	}
}

func (s ChatpadStatus) MarshalJSON() ([]byte, error) { return []byte(`"` + s.String() + `"`), nil }

// ChatpadState is the retained status document.
type ChatpadState struct {
	Status ChatpadStatus `json:"status"`
	TS     int64         `json:"ts_ms"`
}

// ---- Replies ----

type OKReply struct {
	OK bool `json:"ok"`
}

type ErrorReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// ---- Keyboard controls ----

type MacroGet struct {
	Key string `json:"key"`
}

type MacroValue struct {
	Key  string `json:"key"`
	Text string `json:"text"`
	OK   bool   `json:"ok"` // false when no macro is stored
}

type MacroSet struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

type NewlineSet struct {
	Enable bool `json:"enable"`
}

type TextEntry struct {
	Text string `json:"text"`
}
