// Package chatpad implements the serial protocol of an Xbox 360 style chatpad.
//
// The peripheral talks 19200 baud 8N1 and emits fixed 8-byte frames whose
// bytes sum to zero modulo 256. Frames start with one of two markers:
//
//	A5 ...   ready / keep-alive acknowledgement
//	B4 C5 .. key report: byte 3 is the modifier mask, byte 4 the scancode
//
// The host keeps the pad awake by sending a 5-byte heartbeat command at a
// regular cadence after a one-time init command.
//
// Reader pulls frames out of a byte ring and realigns after garbage, Decode
// validates and classifies a frame, Translate maps a scancode to a character.
package chatpad

import "errors"

// Frame markers (byte 0).
const (
	MarkerReady  byte = 0xA5
	MarkerReport byte = 0xB4

	// ReportKeys is byte 1 of a key report.
	ReportKeys byte = 0xC5
)

// FrameSize is the length of every chatpad frame.
const FrameSize = 8

// Modifier mask bits (byte 3 of a key report).
const (
	ModShift  byte = 0x01
	ModGreen  byte = 0x02
	ModOrange byte = 0x04
	ModPeople byte = 0x08

	// ModCapsToggle is shift+orange, which the pad uses as caps lock.
	ModCapsToggle = ModShift | ModOrange
)

// Host commands.
var (
	cmdInit      = [5]byte{0x87, 0x02, 0x8C, 0x1F, 0xCC}
	cmdHeartbeat = [5]byte{0x87, 0x02, 0x8C, 0x1B, 0xD0}
)

// InitCommand returns the command that wakes the pad.
func InitCommand() []byte { c := cmdInit; return c[:] }

// HeartbeatCommand returns the keep-alive command.
func HeartbeatCommand() []byte { c := cmdHeartbeat; return c[:] }

// Errors returned by the protocol layer.
var (
	ErrNoData    = errors.New("chatpad: no data")
	ErrDesync    = errors.New("chatpad: frame discarded, stream misaligned")
	ErrChecksum  = errors.New("chatpad: checksum mismatch")
	ErrHandshake = errors.New("chatpad: no reply to init")
	ErrRxActive  = errors.New("chatpad: receive already started")
)
