package routeconfig

import (
	"fmt"
	"regexp"

	"github.com/tributary-ai/promptroute/internal/routeerror"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

var canonicalParamBounds = map[string]struct {
	min, max   float64
	hasBounds  bool
	isInt      bool
	maxStop    int
	isStopList bool
}{
	"temperature":       {min: 0, max: 1, hasBounds: true},
	"max_tokens":        {min: 1, hasBounds: true, isInt: true},
	"top_p":             {min: 0, max: 1, hasBounds: true},
	"frequency_penalty": {min: -2, max: 2, hasBounds: true},
	"presence_penalty":  {min: -2, max: 2, hasBounds: true},
	"stop":              {isStopList: true, maxStop: 4},
	"logit_bias":        {},
}

// structuralErrors accumulates path-tagged structural validation failures.
type structuralErrors struct {
	errs []string
}

func (s *structuralErrors) add(path, format string, args ...interface{}) {
	s.errs = append(s.errs, fmt.Sprintf("%s: %s", path, fmt.Sprintf(format, args...)))
}

func (s *structuralErrors) err() error {
	if len(s.errs) == 0 {
		return nil
	}
	details := routeerror.Details{"errors": s.errs, "path": "$"}
	return routeerror.New(routeerror.KindConfiguration, "structural-validation-failed",
		fmt.Sprintf("configuration failed structural validation (%d error(s))", len(s.errs)), details)
}

// validateStructure walks the raw decoded document and enforces field
// presence, types, enumerations, the identifier pattern and the documented
// numeric bounds (spec.md §6). It does not resolve cross-references; that is
// validateSemantics' job.
func validateStructure(doc map[string]interface{}) error {
	se := &structuralErrors{}

	requireKeysSubset(se, "$", doc, []string{"version", "providers", "responseSchemas", "prompts"},
		[]string{"version", "providers", "responseSchemas", "prompts"})

	if v, ok := doc["version"].(string); !ok || v == "" {
		se.add("$.version", "must be a non-empty string")
	}

	validateProviders(se, doc["providers"])
	validateResponseSchemas(se, doc["responseSchemas"])
	validatePrompts(se, doc["prompts"])

	return se.err()
}

func requireKeysSubset(se *structuralErrors, path string, m map[string]interface{}, required, allowed []string) {
	allowedSet := map[string]bool{}
	for _, k := range allowed {
		allowedSet[k] = true
	}
	for k := range m {
		if !allowedSet[k] {
			se.add(path, "unknown property %q", k)
		}
	}
	for _, k := range required {
		if _, ok := m[k]; !ok {
			se.add(path, "missing required property %q", k)
		}
	}
}

func validateProviders(se *structuralErrors, raw interface{}) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		se.add("$.providers", "must be an object")
		return
	}
	for alias, v := range m {
		path := fmt.Sprintf("$.providers.%s", alias)
		if !identifierPattern.MatchString(alias) {
			se.add(path, "provider alias %q does not match identifier pattern", alias)
		}
		entry, ok := v.(map[string]interface{})
		if !ok {
			se.add(path, "must be an object")
			continue
		}
		typ, ok := entry["type"].(string)
		if !ok {
			se.add(path+".type", "is required and must be a string")
			continue
		}
		switch ProviderType(typ) {
		case ProviderOpenAI, ProviderAnthropic, ProviderGoogle:
		default:
			se.add(path+".type", "unknown provider type %q", typ)
		}
		// provider entries may carry arbitrary extra properties.
	}
}

func validateResponseSchemas(se *structuralErrors, raw interface{}) {
	if raw == nil {
		return
	}
	m, ok := raw.(map[string]interface{})
	if !ok {
		se.add("$.responseSchemas", "must be an object")
		return
	}
	for id, v := range m {
		path := fmt.Sprintf("$.responseSchemas.%s", id)
		if !identifierPattern.MatchString(id) {
			se.add(path, "schema id %q does not match identifier pattern", id)
		}
		if _, ok := v.(map[string]interface{}); !ok {
			se.add(path, "must be a JSON-Schema object")
		}
		// JSON-Schema fragments are exempt from the unknown-property rule.
	}
}

func validatePrompts(se *structuralErrors, raw interface{}) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		se.add("$.prompts", "must be an object")
		return
	}
	for promptID, v := range m {
		path := fmt.Sprintf("$.prompts.%s", promptID)
		if !identifierPattern.MatchString(promptID) {
			se.add(path, "prompt id %q does not match identifier pattern", promptID)
		}
		entry, ok := v.(map[string]interface{})
		if !ok {
			se.add(path, "must be an object")
			continue
		}
		requireKeysSubset(se, path, entry, []string{"variants", "routing"},
			[]string{"description", "variants", "routing", "chains"})
		validateVariants(se, path, entry["variants"])
		validateRouting(se, path+".routing", entry["routing"])
		validateChains(se, path+".chains", entry["chains"])
	}
}

func validateVariants(se *structuralErrors, promptPath string, raw interface{}) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		se.add(promptPath+".variants", "must be an object")
		return
	}
	if len(m) == 0 {
		se.add(promptPath+".variants", "must declare at least one variant")
	}
	for variantID, v := range m {
		path := fmt.Sprintf("%s.variants.%s", promptPath, variantID)
		if !identifierPattern.MatchString(variantID) {
			se.add(path, "variant id %q does not match identifier pattern", variantID)
		}
		entry, ok := v.(map[string]interface{})
		if !ok {
			se.add(path, "must be an object")
			continue
		}
		requireKeysSubset(se, path, entry,
			[]string{"provider", "model", "messages"},
			[]string{"provider", "model", "default", "parameters", "messages", "responseFormat", "fallback"})

		if s, ok := entry["provider"]; ok {
			if _, ok := s.(string); !ok {
				se.add(path+".provider", "must be a string")
			}
		}
		if s, ok := entry["model"]; ok {
			if _, ok := s.(string); !ok {
				se.add(path+".model", "must be a string")
			}
		}
		if d, present := entry["default"]; present {
			if _, ok := d.(bool); !ok {
				se.add(path+".default", "must be a boolean")
			}
		}
		validateParameters(se, path+".parameters", entry["parameters"])
		validateMessages(se, path+".messages", entry["messages"])
		validateResponseFormat(se, path+".responseFormat", entry["responseFormat"])
		validateFallback(se, path+".fallback", entry["fallback"])
	}
}

func validateParameters(se *structuralErrors, path string, raw interface{}) {
	if raw == nil {
		return
	}
	m, ok := raw.(map[string]interface{})
	if !ok {
		se.add(path, "must be an object")
		return
	}
	for key, v := range m {
		bounds, known := canonicalParamBounds[key]
		if !known {
			se.add(path, "unknown canonical parameter %q", key)
			continue
		}
		fieldPath := path + "." + key
		switch {
		case bounds.isStopList:
			list, ok := v.([]interface{})
			if !ok {
				se.add(fieldPath, "must be a list of strings")
				continue
			}
			if len(list) > bounds.maxStop {
				se.add(fieldPath, "at most %d stop strings allowed, got %d", bounds.maxStop, len(list))
			}
			for _, item := range list {
				if _, ok := item.(string); !ok {
					se.add(fieldPath, "all stop entries must be strings")
				}
			}
		case key == "logit_bias":
			if _, ok := v.(map[string]interface{}); !ok {
				se.add(fieldPath, "must be an object")
			}
		case bounds.hasBounds:
			num, ok := toFloat(v)
			if !ok {
				se.add(fieldPath, "must be numeric")
				continue
			}
			if bounds.isInt && num != float64(int64(num)) {
				se.add(fieldPath, "must be an integer")
			}
			if num < bounds.min || (bounds.max != 0 && num > bounds.max) {
				se.add(fieldPath, "out of bounds [%v,%v]", bounds.min, bounds.max)
			}
		}
	}
}

func validateMessages(se *structuralErrors, path string, raw interface{}) {
	list, ok := raw.([]interface{})
	if !ok {
		se.add(path, "must be a non-empty list")
		return
	}
	if len(list) == 0 {
		se.add(path, "must be non-empty")
	}
	for i, v := range list {
		itemPath := fmt.Sprintf("%s[%d]", path, i)
		entry, ok := v.(map[string]interface{})
		if !ok {
			se.add(itemPath, "must be an object")
			continue
		}
		requireKeysSubset(se, itemPath, entry, []string{"role", "content"}, []string{"role", "content"})
		role, _ := entry["role"].(string)
		switch role {
		case "system", "user", "assistant":
		default:
			se.add(itemPath+".role", "must be one of system|user|assistant, got %q", role)
		}
		content, ok := entry["content"].(map[string]interface{})
		if !ok {
			se.add(itemPath+".content", "must be an object")
			continue
		}
		requireKeysSubset(se, itemPath+".content", content, []string{"template"}, []string{"template"})
		if _, ok := content["template"].(string); !ok {
			se.add(itemPath+".content.template", "must be a string")
		}
	}
}

func validateResponseFormat(se *structuralErrors, path string, raw interface{}) {
	if raw == nil {
		// absent responseFormat defaults to raw_text at semantic stage.
		return
	}
	entry, ok := raw.(map[string]interface{})
	if !ok {
		se.add(path, "must be an object")
		return
	}
	requireKeysSubset(se, path, entry, []string{"type"}, []string{"type", "schemaRef"})
	typ, _ := entry["type"].(string)
	switch ResponseFormatType(typ) {
	case ResponseFormatRawText:
	case ResponseFormatJSONSchema:
		if ref, ok := entry["schemaRef"].(string); !ok || ref == "" {
			se.add(path+".schemaRef", "is required and must be a non-empty string when type=json_schema")
		}
	default:
		se.add(path+".type", "must be one of raw_text|json_schema, got %q", typ)
	}
}

func validateFallback(se *structuralErrors, path string, raw interface{}) {
	if raw == nil {
		return
	}
	list, ok := raw.([]interface{})
	if !ok {
		se.add(path, "must be a list")
		return
	}
	for i, v := range list {
		itemPath := fmt.Sprintf("%s[%d]", path, i)
		entry, ok := v.(map[string]interface{})
		if !ok {
			se.add(itemPath, "must be an object")
			continue
		}
		requireKeysSubset(se, itemPath, entry, []string{"provider", "model"}, []string{"provider", "model"})
	}
}

func validateRouting(se *structuralErrors, path string, raw interface{}) {
	entry, ok := raw.(map[string]interface{})
	if !ok {
		se.add(path, "must be an object")
		return
	}
	requireKeysSubset(se, path, entry, []string{"rules"}, []string{"rules", "phased"})

	rules, ok := entry["rules"].([]interface{})
	if !ok {
		se.add(path+".rules", "must be a non-empty list")
	} else if len(rules) == 0 {
		se.add(path+".rules", "must be non-empty")
	} else {
		for i, v := range rules {
			itemPath := fmt.Sprintf("%s.rules[%d]", path, i)
			rule, ok := v.(map[string]interface{})
			if !ok {
				se.add(itemPath, "must be an object")
				continue
			}
			requireKeysSubset(se, itemPath, rule, []string{"target"}, []string{"target", "weight", "tags"})
			if _, ok := rule["target"].(string); !ok {
				se.add(itemPath+".target", "must be a string")
			}
			if w, present := rule["weight"]; present {
				validateWeight(se, itemPath+".weight", w)
			}
			if tags, present := rule["tags"]; present {
				validateStringList(se, itemPath+".tags", tags)
			}
		}
	}

	if phased, present := entry["phased"]; present {
		list, ok := phased.([]interface{})
		if !ok {
			se.add(path+".phased", "must be a list")
		}
		for i, v := range list {
			itemPath := fmt.Sprintf("%s.phased[%d]", path, i)
			p, ok := v.(map[string]interface{})
			if !ok {
				se.add(itemPath, "must be an object")
				continue
			}
			requireKeysSubset(se, itemPath, p, []string{"start", "weights"}, []string{"start", "end", "weights"})
			if _, ok := toFloat(p["start"]); !ok {
				se.add(itemPath+".start", "must be numeric")
			}
			if end, present := p["end"]; present {
				if _, ok := toFloat(end); !ok {
					se.add(itemPath+".end", "must be numeric")
				}
			}
			weights, ok := p["weights"].(map[string]interface{})
			if !ok {
				se.add(itemPath+".weights", "must be an object")
				continue
			}
			for k, w := range weights {
				validateWeight(se, fmt.Sprintf("%s.weights.%s", itemPath, k), w)
			}
		}
	}
}

func validateWeight(se *structuralErrors, path string, raw interface{}) {
	num, ok := toFloat(raw)
	if !ok {
		se.add(path, "must be numeric")
		return
	}
	if num < 0 || num > 100 {
		se.add(path, "must be within [0,100]")
	}
}

func validateStringList(se *structuralErrors, path string, raw interface{}) {
	list, ok := raw.([]interface{})
	if !ok {
		se.add(path, "must be a list of strings")
		return
	}
	for _, v := range list {
		if _, ok := v.(string); !ok {
			se.add(path, "all entries must be strings")
		}
	}
}

func validateChains(se *structuralErrors, path string, raw interface{}) {
	if raw == nil {
		return
	}
	list, ok := raw.([]interface{})
	if !ok {
		se.add(path, "must be a list")
		return
	}
	for i, v := range list {
		itemPath := fmt.Sprintf("%s[%d]", path, i)
		entry, ok := v.(map[string]interface{})
		if !ok {
			se.add(itemPath, "must be an object")
			continue
		}
		requireKeysSubset(se, itemPath, entry, []string{"prompt"}, []string{"prompt", "variant"})
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
