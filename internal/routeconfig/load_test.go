package routeconfig

import (
	"testing"

	"github.com/tributary-ai/promptroute/internal/routeerror"
)

func validConfigJSON() string {
	return `{
		"version": "1.0.0",
		"providers": {
			"openai-main": {"type": "openai", "baseUrl": "https://api.openai.com"},
			"anthropic-main": {"type": "anthropic"}
		},
		"responseSchemas": {
			"greeting": {"type": "object", "properties": {"text": {"type": "string"}}}
		},
		"prompts": {
			"greet": {
				"description": "greets a user",
				"variants": {
					"v1": {
						"provider": "openai-main",
						"model": "gpt-4o-mini",
						"default": true,
						"parameters": {"temperature": 0.5},
						"messages": [
							{"role": "system", "content": {"template": "Hello {{ name }}"}}
						],
						"responseFormat": {"type": "raw_text"}
					},
					"v2": {
						"provider": "anthropic-main",
						"model": "claude-3-haiku-20240307",
						"default": false,
						"parameters": {"max_tokens": 256},
						"messages": [
							{"role": "user", "content": {"template": "Hi {{ name }}"}}
						],
						"responseFormat": {"type": "raw_text"}
					}
				},
				"routing": {
					"rules": [
						{"target": "v1", "weight": 80},
						{"target": "v2", "weight": 20}
					]
				}
			}
		}
	}`
}

func TestValidateConfig_Valid(t *testing.T) {
	cfg, err := ValidateConfig([]byte(validConfigJSON()))
	if err != nil {
		t.Fatalf("expected valid config, got error: %v", err)
	}
	if cfg.Version != "1.0.0" {
		t.Errorf("expected version 1.0.0, got %s", cfg.Version)
	}
	if len(cfg.Prompts) != 1 {
		t.Errorf("expected 1 prompt, got %d", len(cfg.Prompts))
	}
	greet := cfg.Prompts["greet"]
	if !greet.Variants["v1"].Default {
		t.Errorf("expected v1 to be the default variant")
	}
}

func TestValidateConfig_InvalidJSON(t *testing.T) {
	_, err := ValidateConfig([]byte(`{not json`))
	if err == nil {
		t.Fatal("expected error for malformed JSON")
	}
	re, ok := routeerror.AsError(err)
	if !ok || re.Kind != routeerror.KindConfiguration {
		t.Fatalf("expected configuration-error, got %v", err)
	}
}

func TestValidateConfig_UnknownTopLevelProperty(t *testing.T) {
	body := `{
		"version": "1.0.0",
		"providers": {},
		"responseSchemas": {},
		"prompts": {},
		"unexpectedField": true
	}`
	_, err := ValidateConfig([]byte(body))
	if err == nil {
		t.Fatal("expected structural validation error for unknown top-level property")
	}
}

func TestValidateConfig_ProviderExtraKeysAllowed(t *testing.T) {
	body := `{
		"version": "1.0.0",
		"providers": {
			"openai-main": {"type": "openai", "anyCustomField": 42, "nested": {"a": 1}}
		},
		"responseSchemas": {},
		"prompts": {
			"p": {
				"description": "d",
				"variants": {
					"v1": {
						"provider": "openai-main",
						"model": "gpt-4o-mini",
						"default": true,
						"parameters": {},
						"messages": [{"role": "user", "content": {"template": "hi"}}],
						"responseFormat": {"type": "raw_text"}
					}
				},
				"routing": {"rules": [{"target": "v1"}]}
			}
		}
	}`
	cfg, err := ValidateConfig([]byte(body))
	if err != nil {
		t.Fatalf("expected provider extras to be tolerated, got: %v", err)
	}
	pc := cfg.Providers["openai-main"]
	if pc.Extra["anyCustomField"].(float64) != 42 {
		t.Errorf("expected extra field preserved, got %v", pc.Extra)
	}
}

func TestValidateConfig_NoDefaultVariantFails(t *testing.T) {
	body := `{
		"version": "1.0.0",
		"providers": {"openai-main": {"type": "openai"}},
		"responseSchemas": {},
		"prompts": {
			"p": {
				"description": "d",
				"variants": {
					"v1": {
						"provider": "openai-main",
						"model": "gpt-4o-mini",
						"default": false,
						"parameters": {},
						"messages": [{"role": "user", "content": {"template": "hi"}}],
						"responseFormat": {"type": "raw_text"}
					}
				},
				"routing": {"rules": [{"target": "v1"}]}
			}
		}
	}`
	_, err := ValidateConfig([]byte(body))
	if err == nil {
		t.Fatal("expected error when no variant is marked default")
	}
}

func TestValidateConfig_UnknownRoutingTargetFails(t *testing.T) {
	body := `{
		"version": "1.0.0",
		"providers": {"openai-main": {"type": "openai"}},
		"responseSchemas": {},
		"prompts": {
			"p": {
				"description": "d",
				"variants": {
					"v1": {
						"provider": "openai-main",
						"model": "gpt-4o-mini",
						"default": true,
						"parameters": {},
						"messages": [{"role": "user", "content": {"template": "hi"}}],
						"responseFormat": {"type": "raw_text"}
					}
				},
				"routing": {"rules": [{"target": "does-not-exist"}]}
			}
		}
	}`
	_, err := ValidateConfig([]byte(body))
	if err == nil {
		t.Fatal("expected error for routing rule referencing unknown variant")
	}
}

func TestValidateConfig_AnthropicMissingMaxTokensFails(t *testing.T) {
	body := `{
		"version": "1.0.0",
		"providers": {"anthropic-main": {"type": "anthropic"}},
		"responseSchemas": {},
		"prompts": {
			"p": {
				"description": "d",
				"variants": {
					"v1": {
						"provider": "anthropic-main",
						"model": "claude-3-haiku-20240307",
						"default": true,
						"parameters": {},
						"messages": [{"role": "user", "content": {"template": "hi"}}],
						"responseFormat": {"type": "raw_text"}
					}
				},
				"routing": {"rules": [{"target": "v1"}]}
			}
		}
	}`
	_, err := ValidateConfig([]byte(body))
	if err == nil {
		t.Fatal("expected error when an anthropic variant omits max_tokens")
	}
}

func TestPhasedRule_WeightOrderPreserved(t *testing.T) {
	body := `{"start": 0, "weights": {"c": 10, "a": 20, "b": 70}}`
	var pr PhasedRule
	if err := unmarshalPhasedRuleForTest(body, &pr); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	want := []string{"c", "a", "b"}
	if len(pr.WeightOrder) != len(want) {
		t.Fatalf("expected %d ordered keys, got %d", len(want), len(pr.WeightOrder))
	}
	for i, k := range want {
		if pr.WeightOrder[i] != k {
			t.Errorf("position %d: expected %s, got %s", i, k, pr.WeightOrder[i])
		}
	}
}

func unmarshalPhasedRuleForTest(body string, pr *PhasedRule) error {
	return pr.UnmarshalJSON([]byte(body))
}

func TestRoutingRule_EffectiveWeight(t *testing.T) {
	zero := 0
	r := RoutingRule{Target: "v1", Weight: &zero}
	if r.EffectiveWeight() != 0 {
		t.Errorf("expected explicit zero weight to be honored, got %d", r.EffectiveWeight())
	}

	r2 := RoutingRule{Target: "v1"}
	if r2.EffectiveWeight() != DefaultRuleWeight {
		t.Errorf("expected omitted weight to default to %d, got %d", DefaultRuleWeight, r2.EffectiveWeight())
	}
}
