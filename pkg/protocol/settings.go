package protocol

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// Settings is a nested key-value structure passed to a client at
// construction time. Process-wide defaults are merged into per-session
// overrides before the client is built.
type Settings map[string]interface{}

// Clone returns a deep copy. Nested map values are copied recursively;
// everything else is copied by value.
func (s Settings) Clone() Settings {
	if s == nil {
		return nil
	}
	out := make(Settings, len(s))
	for k, v := range s {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch typed := v.(type) {
	case Settings:
		return typed.Clone()
	case map[string]interface{}:
		return Settings(typed).Clone()
	case []interface{}:
		out := make([]interface{}, len(typed))
		for i, item := range typed {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// Merge returns a new Settings with overrides applied on top of s.
// Nested maps merge recursively; any other value replaces outright.
// Neither input is mutated.
func (s Settings) Merge(overrides Settings) Settings {
	out := s.Clone()
	if out == nil {
		out = make(Settings, len(overrides))
	}
	for k, v := range overrides {
		base, baseOK := asSettings(out[k])
		over, overOK := asSettings(v)
		if baseOK && overOK {
			out[k] = base.Merge(over)
			continue
		}
		out[k] = cloneValue(v)
	}
	return out
}

func asSettings(v interface{}) (Settings, bool) {
	switch typed := v.(type) {
	case Settings:
		return typed, true
	case map[string]interface{}:
		return Settings(typed), true
	default:
		return nil, false
	}
}

// Validate checks the settings against a JSON schema document. A nil or
// empty schema accepts everything.
func (s Settings) Validate(schema map[string]interface{}) error {
	if len(schema) == 0 {
		return nil
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(map[string]interface{}(s)),
	)
	if err != nil {
		return fmt.Errorf("failed to evaluate settings schema: %w", err)
	}

	if !result.Valid() {
		errs := result.Errors()
		if len(errs) > 0 {
			return fmt.Errorf("invalid settings: %s", errs[0].String())
		}
		return fmt.Errorf("invalid settings")
	}

	return nil
}
