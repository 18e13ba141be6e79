package config

import (
	"encoding/json"
	"errors"

	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"
)

const redacted = "<redacted>"

// secretKeys are masked by DumpYAML.
var secretKeys = [][]string{
	{"model", "api_key"},
	{"store", "drive", "credentials_json"},
	{"store", "drive", "client_secret"},
	{"store", "drive", "refresh_token"},
}

// Schema returns the JSON Schema describing the config file.
func Schema() ([]byte, error) {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := r.Reflect(&Config{})
	s.Title = AppName + " configuration"
	return json.MarshalIndent(s, "", "  ")
}

// DumpYAML renders the effective settings with secrets masked.
func (c *Config) DumpYAML() ([]byte, error) {
	if c.settings == nil {
		return nil, errors.New("config was not produced by Load")
	}
	settings := deepCopy(c.settings)
	for _, path := range secretKeys {
		mask(settings, path)
	}
	return yaml.Marshal(settings)
}

func mask(m map[string]any, path []string) {
	for i, key := range path {
		v, ok := m[key]
		if !ok {
			return
		}
		if i == len(path)-1 {
			if s, isStr := v.(string); !isStr || s != "" {
				m[key] = redacted
			}
			return
		}
		next, ok := v.(map[string]any)
		if !ok {
			return
		}
		m = next
	}
}

func deepCopy(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if sub, ok := v.(map[string]any); ok {
			out[k] = deepCopy(sub)
			continue
		}
		out[k] = v
	}
	return out
}
