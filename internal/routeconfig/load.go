package routeconfig

import (
	"bytes"
	"encoding/json"
	"os"

	"github.com/tributary-ai/promptroute/internal/routeerror"
)

// UnmarshalJSON keeps "type" strongly typed while folding every other
// property into Extra, since provider entries are exempt from the
// unknown-property rule (spec.md §6).
func (p *ProviderConfig) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if typ, ok := raw["type"].(string); ok {
		p.Type = ProviderType(typ)
	}
	delete(raw, "type")
	if len(raw) > 0 {
		p.Extra = raw
	}
	return nil
}

// MarshalJSON re-flattens Extra alongside type so a loaded and re-saved
// config round-trips.
func (p ProviderConfig) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{"type": string(p.Type)}
	for k, v := range p.Extra {
		out[k] = v
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes start/end/weights normally, then re-walks the raw
// weights object with a token stream to record WeightOrder.
func (p *PhasedRule) UnmarshalJSON(data []byte) error {
	type alias PhasedRule
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*p = PhasedRule(a)

	var withRaw struct {
		Weights json.RawMessage `json:"weights"`
	}
	if err := json.Unmarshal(data, &withRaw); err != nil {
		return err
	}
	if len(withRaw.Weights) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(withRaw.Weights))
	// consume the opening '{'
	if _, err := dec.Token(); err != nil {
		return err
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)
		p.WeightOrder = append(p.WeightOrder, key)
		var discard json.Number
		if err := dec.Decode(&discard); err != nil {
			return err
		}
	}
	return nil
}

// LoadAndValidateConfig reads path as bytes and runs it through ValidateConfig.
// It is the `load(path) → Config` operation of spec.md §4.1.
func LoadAndValidateConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, routeerror.Wrap(routeerror.KindConfiguration, "read-failed",
			"could not read configuration file", err, routeerror.Details{"path": path})
	}
	return ValidateConfig(data)
}

// ValidateConfig is the `validate(raw) → Config` operation of spec.md §4.1:
// structural validation against the fixed schema, then the seven-step
// ordered semantic validation. Callers pass the raw document bytes.
func ValidateConfig(data []byte) (*Config, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, routeerror.Wrap(routeerror.KindConfiguration, "invalid-json",
			"configuration is not valid JSON", err, nil)
	}

	if err := validateStructure(doc); err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, routeerror.Wrap(routeerror.KindConfiguration, "decode-failed",
			"configuration failed to decode after passing structural validation", err, nil)
	}

	if err := validateSemantics(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
