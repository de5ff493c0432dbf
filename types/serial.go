package types

// ------------------------
// Serial
// ------------------------

type Parity uint8

const (
	ParityNone Parity = iota
	ParityEven
	ParityOdd
)

func (p Parity) String() string {
	switch p {
	case ParityEven:
		return "even"
	case ParityOdd:
		return "odd"
	default:
		return "none"
	}
}

func (p Parity) MarshalJSON() ([]byte, error) { return []byte(`"` + p.String() + `"`), nil }

// SerialConfig describes the line the chatpad is wired to.
type SerialConfig struct {
	Bus      string `json:"bus" yaml:"bus"`
	Baud     uint32 `json:"baud" yaml:"baud"`
	DataBits uint8  `json:"data_bits" yaml:"data_bits"`
	StopBits uint8  `json:"stop_bits" yaml:"stop_bits"`
	Parity   Parity `json:"parity" yaml:"parity"`
}

// ChatpadSerial is the fixed line format of the chatpad: 19200 baud, 8N1.
func ChatpadSerial(bus string) SerialConfig {
	return SerialConfig{Bus: bus, Baud: 19200, DataBits: 8, StopBits: 1, Parity: ParityNone}
}
