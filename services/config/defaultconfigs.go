package config

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Key: device ID (same value placed in ctx under CtxDeviceKey)
// Val: raw YAML bytes for that device
// -----------------------------------------------------------------------------

const cfgPico = `
params:
  queue_capacity: 10
  auto_start: true
  stats_interval_ms: 5000
  flush_timeout_ms: 2000
heartbeat:
  interval_s: 2
console:
  prompt: "eeparam> "
`

const cfgHost = `
params:
  queue_capacity: 10
  auto_start: true
  stats_interval_ms: 1000
  flush_timeout_ms: 1000
heartbeat:
  interval_s: 5
console:
  prompt: "> "
`

var embeddedConfigs = map[string][]byte{
	"pico": []byte(cfgPico),
	"host": []byte(cfgHost),
}
