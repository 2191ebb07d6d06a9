package config

import (
	"context"
	"errors"

	"eeparam-go/bus"
	"eeparam-go/types"

	"gopkg.in/yaml.v3"
)

// -----------------------------------------------------------------------------
// String constants (live in flash, not RAM)
// -----------------------------------------------------------------------------

const (
	serviceName  = "config"
	configPrefix = "config"
	CtxDeviceKey = "device" // context key used for device ID
)

// EmbeddedConfigLookup allows overriding how configs are resolved.
var EmbeddedConfigLookup = func(device string) ([]byte, bool) {
	b, ok := embeddedConfigs[device]
	return b, ok
}

// typed maps top-level keys to the payload type published for them. Keys
// not listed are published as generic YAML values (map[string]any etc).
var typed = map[string]func(*yaml.Node) (any, error){
	"params": func(n *yaml.Node) (any, error) {
		var c types.ParamsConfig
		err := n.Decode(&c)
		return c, err
	},
	"heartbeat": func(n *yaml.Node) (any, error) {
		var c types.HeartbeatConfig
		err := n.Decode(&c)
		return c, err
	},
}

// -----------------------------------------------------------------------------
// Config Service
// -----------------------------------------------------------------------------

type ConfigService struct {
	Name string
}

func NewConfigService() *ConfigService {
	return &ConfigService{Name: serviceName}
}

// Load decodes a device document into one payload per top-level key.
func Load(raw []byte) (map[string]any, error) {
	var doc map[string]yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, errors.New("embedded config is not a YAML mapping")
	}
	out := make(map[string]any, len(doc))
	for k, n := range doc {
		n := n
		if dec, ok := typed[k]; ok {
			v, err := dec(&n)
			if err != nil {
				return nil, errors.New("config key " + k + ": " + err.Error())
			}
			out[k] = v
			continue
		}
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, errors.New("config key " + k + ": " + err.Error())
		}
		out[k] = v
	}
	return out, nil
}

// publishConfig reads the device config from embedded data and publishes it as retained messages.
func (s *ConfigService) publishConfig(ctx context.Context, conn *bus.Connection) error {
	device, _ := ctx.Value(CtxDeviceKey).(string)
	if device == "" {
		return errors.New("missing device ID in context")
	}

	raw, ok := EmbeddedConfigLookup(device)
	if !ok || len(raw) == 0 {
		return errors.New("no embedded config for device: " + device)
	}

	m, err := Load(raw)
	if err != nil {
		return err
	}
	for k, v := range m {
		conn.Publish(conn.NewMessage(bus.T(configPrefix, k), v, true))
	}
	return nil
}

// Start launches the config publisher in a goroutine.
func (s *ConfigService) Start(ctx context.Context, conn *bus.Connection) {
	go func() {
		if err := s.publishConfig(ctx, conn); err != nil {
			println("Error: config:", err.Error())
		}
	}()
}
