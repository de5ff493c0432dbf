package config

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Key: device ID (same value placed in ctx under CtxDeviceKey)
// Val: raw YAML for that device
// -----------------------------------------------------------------------------

const cfgPico = `
keyboard:
  newline: true
  autostart: true
  macros: {}
heartbeat:
  interval: 2
`

const cfgHost = `
keyboard:
  newline: true
  autostart: true
  macros:
    g: "gg wp"
    h: "hello"
heartbeat:
  interval: 5
bridge:
  addr: "127.0.0.1:8765"
  path: "/events"
`

var embeddedConfigs = map[string][]byte{
	"pico": []byte(cfgPico),
	"host": []byte(cfgHost),
}
