package routeconfig

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/tributary-ai/promptroute/internal/routeerror"
	"github.com/tributary-ai/promptroute/internal/template"
)

var versionPattern = regexp.MustCompile(`^(\d+)\.\d+\.\d+$`)

const supportedMajorVersion = "1"

var requiredProviderParameters = map[ProviderType][]string{
	ProviderAnthropic: {"max_tokens"},
}

// validateSemantics runs the seven-step ordered semantic validation of
// spec.md §4.1, stopping at the first step that produces at least one
// error.
func validateSemantics(cfg *Config) error {
	steps := []func(*Config) []string{
		checkVersion,
		checkDefaultVariant,
		checkResponseSchemas,
		checkRouting,
		checkProviderReferences,
		checkRequiredProviderParameters,
		checkTemplateSyntax,
	}
	for _, step := range steps {
		if errs := step(cfg); len(errs) > 0 {
			return routeerror.New(routeerror.KindConfiguration, "semantic-validation-failed",
				fmt.Sprintf("configuration failed semantic validation (%d error(s))", len(errs)),
				routeerror.Details{"errors": errs})
		}
	}
	return nil
}

// 1. Version check.
func checkVersion(cfg *Config) []string {
	m := versionPattern.FindStringSubmatch(cfg.Version)
	if m == nil {
		return []string{fmt.Sprintf("$.version: %q does not match ^\\d+\\.\\d+\\.\\d+$", cfg.Version)}
	}
	if m[1] != supportedMajorVersion {
		return []string{fmt.Sprintf("$.version: unsupported major version %q (supported: %s)", m[1], supportedMajorVersion)}
	}
	return nil
}

// 2. Default-variant check.
func checkDefaultVariant(cfg *Config) []string {
	var errs []string
	for promptID, prompt := range cfg.Prompts {
		count := 0
		for _, v := range prompt.Variants {
			if v.Default {
				count++
			}
		}
		if count != 1 {
			errs = append(errs, fmt.Sprintf("$.prompts.%s.variants: expected exactly one default variant, found %d", promptID, count))
		}
	}
	return errs
}

// 3. Response-schema references: every schemaRef resolves, and every schema
// fragment is itself a valid JSON-Schema document.
func checkResponseSchemas(cfg *Config) []string {
	var errs []string

	for schemaID, fragment := range cfg.ResponseSchemas {
		if err := validateJSONSchemaFragment(fragment); err != nil {
			errs = append(errs, fmt.Sprintf("$.responseSchemas.%s: invalid JSON-Schema: %v", schemaID, err))
		}
	}

	for promptID, prompt := range cfg.Prompts {
		for variantID, v := range prompt.Variants {
			if v.ResponseFormat.Type != ResponseFormatJSONSchema {
				continue
			}
			ref := v.ResponseFormat.SchemaRef
			if ref == "" {
				errs = append(errs, fmt.Sprintf("$.prompts.%s.variants.%s.responseFormat.schemaRef: required when type=json_schema", promptID, variantID))
				continue
			}
			if _, ok := cfg.ResponseSchemas[ref]; !ok {
				errs = append(errs, fmt.Sprintf("$.prompts.%s.variants.%s.responseFormat.schemaRef: %q does not resolve in responseSchemas", promptID, variantID, ref))
			}
		}
	}
	return errs
}

func validateJSONSchemaFragment(fragment map[string]interface{}) error {
	data, err := json.Marshal(fragment)
	if err != nil {
		return err
	}
	var schema openapi3.Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return err
	}
	return schema.Validate(context.Background())
}

// 4. Routing references and non-degeneracy.
func checkRouting(cfg *Config) []string {
	var errs []string
	for promptID, prompt := range cfg.Prompts {
		path := fmt.Sprintf("$.prompts.%s.routing", promptID)

		anyRulePositive := false
		for i, rule := range prompt.Routing.Rules {
			rulePath := fmt.Sprintf("%s.rules[%d]", path, i)
			if _, ok := prompt.Variants[rule.Target]; !ok {
				errs = append(errs, fmt.Sprintf("%s.target: %q does not resolve to a variant in this prompt", rulePath, rule.Target))
			}
			if rule.EffectiveWeight() > 0 {
				anyRulePositive = true
			}
		}
		if len(prompt.Routing.Rules) > 0 && !anyRulePositive {
			errs = append(errs, fmt.Sprintf("%s.rules: at least one rule must have weight > 0", path))
		}

		for i, phased := range prompt.Routing.Phased {
			phasedPath := fmt.Sprintf("%s.phased[%d]", path, i)
			anyPositive := false
			for target, weight := range phased.Weights {
				if _, ok := prompt.Variants[target]; !ok {
					errs = append(errs, fmt.Sprintf("%s.weights.%s: does not resolve to a variant in this prompt", phasedPath, target))
				}
				if weight > 0 {
					anyPositive = true
				}
			}
			if len(phased.Weights) > 0 && !anyPositive {
				errs = append(errs, fmt.Sprintf("%s.weights: at least one weight must be > 0", phasedPath))
			}
		}
	}
	return errs
}

// 5. Provider references: every variant's own provider and every fallback
// target's provider resolves in $.providers.
func checkProviderReferences(cfg *Config) []string {
	var errs []string
	for promptID, prompt := range cfg.Prompts {
		for variantID, v := range prompt.Variants {
			path := fmt.Sprintf("$.prompts.%s.variants.%s", promptID, variantID)
			if _, ok := cfg.Providers[v.Provider]; !ok {
				errs = append(errs, fmt.Sprintf("%s.provider: %q does not resolve in providers", path, v.Provider))
			}
			for i, fb := range v.Fallback {
				if _, ok := cfg.Providers[fb.Provider]; !ok {
					errs = append(errs, fmt.Sprintf("%s.fallback[%d].provider: %q does not resolve in providers", path, i, fb.Provider))
				}
			}
		}
	}
	return errs
}

// 6. Required provider parameters: hard table {anthropic: [max_tokens]}.
func checkRequiredProviderParameters(cfg *Config) []string {
	var errs []string
	for promptID, prompt := range cfg.Prompts {
		for variantID, v := range prompt.Variants {
			providerCfg, ok := cfg.Providers[v.Provider]
			if !ok {
				continue // already reported by checkProviderReferences
			}
			required, ok := requiredProviderParameters[providerCfg.Type]
			if !ok {
				continue
			}
			for _, param := range required {
				if _, present := v.Parameters[param]; !present {
					errs = append(errs, fmt.Sprintf("$.prompts.%s.variants.%s.parameters.%s: required for provider type %q",
						promptID, variantID, param, providerCfg.Type))
				}
			}
		}
	}
	return errs
}

// 7. Template syntax: every content.template parses under strict-filter mode.
func checkTemplateSyntax(cfg *Config) []string {
	var errs []string
	adapter := template.NewAdapter()
	for promptID, prompt := range cfg.Prompts {
		for variantID, v := range prompt.Variants {
			for i, msg := range v.Messages {
				path := fmt.Sprintf("$.prompts.%s.variants.%s.messages[%d].content.template", promptID, variantID, i)
				if _, err := adapter.ParseStrict(msg.Content.Template); err != nil {
					errs = append(errs, fmt.Sprintf("%s: %v", path, err))
				}
			}
		}
	}
	return errs
}
