package parammap

import (
	"testing"

	"github.com/tributary-ai/promptroute/internal/routeconfig"
)

func TestMap_OpenAI_ScalesAndRenamesTemperature(t *testing.T) {
	out := Map(routeconfig.ProviderOpenAI, map[string]interface{}{"temperature": 0.5})
	got, ok := out["temperature"].(float64)
	if !ok {
		t.Fatalf("expected temperature key, got %v", out)
	}
	if got != 1.0 {
		t.Errorf("expected scaled temperature 1.0, got %v", got)
	}
}

func TestMap_OpenAI_RenamesMaxTokens(t *testing.T) {
	out := Map(routeconfig.ProviderOpenAI, map[string]interface{}{"max_tokens": 512})
	if out["max_completion_tokens"] != float64(512) {
		t.Errorf("expected max_completion_tokens=512, got %v", out)
	}
	if _, present := out["max_tokens"]; present {
		t.Errorf("expected canonical key max_tokens to be gone, got %v", out)
	}
}

func TestMap_Anthropic_DropsUnsupportedParams(t *testing.T) {
	out := Map(routeconfig.ProviderAnthropic, map[string]interface{}{
		"frequency_penalty": 0.5,
		"presence_penalty":  0.5,
		"logit_bias":        map[string]interface{}{"50256": -100},
		"max_tokens":        1024,
	})
	for _, dropped := range []string{"frequency_penalty", "presence_penalty", "logit_bias"} {
		if _, present := out[dropped]; present {
			t.Errorf("expected %s to be dropped for anthropic, got %v", dropped, out)
		}
	}
	if out["max_tokens"] != float64(1024) {
		t.Errorf("expected max_tokens passed through, got %v", out)
	}
}

func TestMap_Anthropic_RenamesStopToStopSequences(t *testing.T) {
	out := Map(routeconfig.ProviderAnthropic, map[string]interface{}{"stop": []interface{}{"END"}})
	if _, present := out["stop_sequences"]; !present {
		t.Errorf("expected stop_sequences key, got %v", out)
	}
}

func TestMap_ClampsOutOfRangeValues(t *testing.T) {
	out := Map(routeconfig.ProviderOpenAI, map[string]interface{}{"frequency_penalty": 5.0})
	if out["frequency_penalty"] != 2.0 {
		t.Errorf("expected frequency_penalty clamped to 2.0, got %v", out["frequency_penalty"])
	}

	out2 := Map(routeconfig.ProviderOpenAI, map[string]interface{}{"frequency_penalty": -5.0})
	if out2["frequency_penalty"] != -2.0 {
		t.Errorf("expected frequency_penalty clamped to -2.0, got %v", out2["frequency_penalty"])
	}
}

func TestMap_UnknownCanonicalKeysDroppedSilently(t *testing.T) {
	out := Map(routeconfig.ProviderOpenAI, map[string]interface{}{"not_a_real_param": 1})
	if len(out) != 0 {
		t.Errorf("expected unknown keys to be dropped, got %v", out)
	}
}

func TestMap_UnknownProviderTypeReturnsEmpty(t *testing.T) {
	out := Map(routeconfig.ProviderType("unknown"), map[string]interface{}{"temperature": 0.5})
	if len(out) != 0 {
		t.Errorf("expected empty map for unknown provider type, got %v", out)
	}
}

func TestMap_NonNumericValuePassesThroughUnscaled(t *testing.T) {
	out := Map(routeconfig.ProviderOpenAI, map[string]interface{}{"stop": []interface{}{"a", "b"}})
	list, ok := out["stop"].([]interface{})
	if !ok || len(list) != 2 {
		t.Errorf("expected stop list passed through unchanged, got %v", out["stop"])
	}
}
