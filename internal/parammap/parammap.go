// Package parammap implements the canonical-to-provider-native parameter
// mapping of spec.md §4.3: a static per-provider-type capability table with
// rename/scale/clamp/drop rules.
package parammap

import "github.com/tributary-ai/promptroute/internal/routeconfig"

type rule struct {
	nativeName string
	drop       bool
	scale      float64
	hasScale   bool
	min, max   float64
	hasClamp   bool
}

var table = map[routeconfig.ProviderType]map[string]rule{
	routeconfig.ProviderOpenAI: {
		"temperature":       {nativeName: "temperature", scale: 2, hasScale: true, min: 0, max: 2, hasClamp: true},
		"max_tokens":        {nativeName: "max_completion_tokens"},
		"top_p":             {nativeName: "top_p"},
		"frequency_penalty": {nativeName: "frequency_penalty", min: -2, max: 2, hasClamp: true},
		"presence_penalty":  {nativeName: "presence_penalty", min: -2, max: 2, hasClamp: true},
		"stop":              {nativeName: "stop"},
		"logit_bias":        {nativeName: "logit_bias"},
	},
	routeconfig.ProviderAnthropic: {
		"temperature":       {nativeName: "temperature", min: 0, max: 1, hasClamp: true},
		"max_tokens":        {nativeName: "max_tokens"},
		"top_p":             {nativeName: "top_p"},
		"frequency_penalty": {drop: true},
		"presence_penalty":  {drop: true},
		"stop":              {nativeName: "stop_sequences"},
		"logit_bias":        {drop: true},
	},
	routeconfig.ProviderGoogle: {
		"temperature":       {nativeName: "temperature", scale: 2, hasScale: true, min: 0, max: 2, hasClamp: true},
		"max_tokens":        {nativeName: "maxOutputTokens"},
		"top_p":             {nativeName: "topP"},
		"frequency_penalty": {nativeName: "frequencyPenalty", min: -2, max: 2, hasClamp: true},
		"presence_penalty":  {nativeName: "presencePenalty", min: -2, max: 2, hasClamp: true},
		"stop":              {nativeName: "stopSequences"},
		"logit_bias":        {drop: true},
	},
}

// Map converts canonical parameters into a provider-native options bag for
// providerType. Unknown canonical keys are dropped silently. For every
// accepted key, scale (if any) is applied before clamping, and the result is
// written under the mapped name. A provider-native key that is not also a
// canonical key is dropped like any other unknown key, so native names do
// not pass through Map.
func Map(providerType routeconfig.ProviderType, canonical map[string]interface{}) map[string]interface{} {
	rules, ok := table[providerType]
	out := make(map[string]interface{}, len(canonical))
	if !ok {
		return out
	}
	for key, value := range canonical {
		r, known := rules[key]
		if !known || r.drop {
			continue
		}
		out[r.nativeName] = transform(value, r)
	}
	return out
}

func transform(value interface{}, r rule) interface{} {
	num, isNum := toFloat(value)
	if !isNum {
		return value
	}
	if r.hasScale {
		num *= r.scale
	}
	if r.hasClamp {
		if num < r.min {
			num = r.min
		}
		if num > r.max {
			num = r.max
		}
	}
	return num
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
