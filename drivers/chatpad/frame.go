package chatpad

// Frame is one raw 8-byte protocol unit.
type Frame [FrameSize]byte

// Sum returns the modulo-256 sum of all bytes.
func (f *Frame) Sum() byte {
	var s byte
	for _, b := range f {
		s += b
	}
	return s
}

// Valid reports whether the checksum rule holds.
func (f *Frame) Valid() bool { return f.Sum() == 0 }

// Seal rewrites the last byte so that the frame sums to zero.
func (f *Frame) Seal() {
	f[FrameSize-1] = 0
	f[FrameSize-1] = -f.Sum()
}

// IsMarker reports whether b can start a frame.
func IsMarker(b byte) bool { return b == MarkerReady || b == MarkerReport }

// NewReadyFrame builds a sealed ready frame.
func NewReadyFrame() Frame {
	f := Frame{MarkerReady, 0x45, 0xF0, 0x04}
	f.Seal()
	return f
}

// NewKeyFrame builds a sealed key report carrying one modifier/scancode pair.
func NewKeyFrame(modifier, scancode byte) Frame {
	f := Frame{MarkerReport, ReportKeys, 0x00, modifier, scancode}
	f.Seal()
	return f
}

// PacketKind classifies a decoded frame.
type PacketKind uint8

const (
	PacketOther PacketKind = iota // well formed, nothing to act on
	PacketReady
	PacketKeys
)

func (k PacketKind) String() string {
	switch k {
	case PacketReady:
		return "ready"
	case PacketKeys:
		return "keys"
	default:
		return "other"
	}
}

// Packet is a decoded frame.
type Packet struct {
	Kind     PacketKind
	Modifier byte
	Scancode byte
}

// Empty reports a key report with nothing pressed (a release).
func (p Packet) Empty() bool { return p.Modifier == 0 && p.Scancode == 0 }

// Decode validates the checksum and classifies f. A checksum failure does not
// imply misalignment, so callers drop the frame without resyncing.
func Decode(f Frame) (Packet, error) {
	if !f.Valid() {
		return Packet{}, ErrChecksum
	}
	switch {
	case f[0] == MarkerReady:
		return Packet{Kind: PacketReady}, nil
	case f[0] == MarkerReport && f[1] == ReportKeys:
		return Packet{Kind: PacketKeys, Modifier: f[3], Scancode: f[4]}, nil
	default:
		return Packet{Kind: PacketOther}, nil
	}
}
