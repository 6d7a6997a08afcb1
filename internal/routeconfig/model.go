// Package routeconfig holds the configuration data model, the structural
// (schema) validator and the semantic (cross-reference) validator described
// in spec.md §3 and §4.1.
package routeconfig

// Config is the root entity: loaded once, cached, immutable thereafter.
type Config struct {
	Version         string                    `json:"version"`
	Providers       map[string]ProviderConfig `json:"providers"`
	ResponseSchemas map[string]map[string]interface{} `json:"responseSchemas"`
	Prompts         map[string]Prompt         `json:"prompts"`
}

// ProviderType enumerates the three concrete backends the core knows how to
// normalize against.
type ProviderType string

const (
	ProviderOpenAI    ProviderType = "openai"
	ProviderAnthropic ProviderType = "anthropic"
	ProviderGoogle    ProviderType = "google"
)

// ProviderConfig binds an alias (the map key in Config.Providers) to a
// backend type plus whatever provider-specific extras the caller wants to
// carry through; extras are not schema-constrained.
type ProviderConfig struct {
	Type  ProviderType           `json:"type"`
	Extra map[string]interface{} `json:"-"`
}

// Prompt groups the variants that answer one symbolic request identifier.
type Prompt struct {
	Description string             `json:"description"`
	Variants    map[string]Variant `json:"variants"`
	Routing     Routing            `json:"routing"`
	Chains      []ChainStep        `json:"chains,omitempty"`
}

// ChainStep is accepted and reference-checked only; execution is out of
// scope (spec.md §9 Open Question). Each step names a prompt it would hand
// off to and, optionally, a specific variant within that prompt.
type ChainStep struct {
	Prompt  string `json:"prompt"`
	Variant string `json:"variant,omitempty"`
}

// Variant is a concrete (provider, model, parameters, messages) binding.
type Variant struct {
	Provider       string                 `json:"provider"`
	Model          string                 `json:"model"`
	Default        bool                   `json:"default"`
	Parameters     map[string]interface{} `json:"parameters"`
	Messages       []MessageSpec          `json:"messages"`
	ResponseFormat ResponseFormat         `json:"responseFormat"`
	Fallback       []FallbackTarget       `json:"fallback,omitempty"`
}

// MessageSpec is one unrendered message template.
type MessageSpec struct {
	Role    string         `json:"role"`
	Content MessageContent `json:"content"`
}

type MessageContent struct {
	Template string `json:"template"`
}

// ResponseFormat selects between raw text and schema-constrained JSON.
type ResponseFormat struct {
	Type      ResponseFormatType `json:"type"`
	SchemaRef string             `json:"schemaRef,omitempty"`
}

type ResponseFormatType string

const (
	ResponseFormatRawText    ResponseFormatType = "raw_text"
	ResponseFormatJSONSchema ResponseFormatType = "json_schema"
)

// FallbackTarget is one entry of a variant's declared fallback chain.
type FallbackTarget struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// Routing holds the rule-based and phased-rollout policy layers for a
// prompt; see spec.md §4.4 for the selection algorithm.
type Routing struct {
	Rules  []RoutingRule `json:"rules"`
	Phased []PhasedRule  `json:"phased,omitempty"`
}

// RoutingRule is one weighted, optionally tag-gated target. Weight is a
// pointer so an omitted weight (defaults to DefaultRuleWeight) can be told
// apart from an explicit 0.
type RoutingRule struct {
	Target string   `json:"target"`
	Weight *int     `json:"weight,omitempty"`
	Tags   []string `json:"tags,omitempty"`
}

// EffectiveWeight returns the rule's weight, substituting DefaultRuleWeight
// when it was omitted from the configuration document.
func (r RoutingRule) EffectiveWeight() int {
	if r.Weight == nil {
		return DefaultRuleWeight
	}
	return *r.Weight
}

// PhasedRule is a time-bounded weight distribution that overrides the
// default rules while active. WeightOrder preserves the order variant ids
// first appear in the weights object, since the router's deterministic
// bucketing walks weights in insertion order (spec.md §4.4) and plain Go
// maps do not preserve that.
type PhasedRule struct {
	Start       int64          `json:"start"`
	End         *int64         `json:"end,omitempty"`
	Weights     map[string]int `json:"weights"`
	WeightOrder []string       `json:"-"`
}

// DefaultRuleWeight is the weight implied when a RoutingRule omits it.
const DefaultRuleWeight = 100

// ResolvedFallbackChain builds [primary, fallback0, fallback1, ...] for a
// variant, the "fallback chain" of the glossary.
func ResolvedFallbackChain(v Variant) []FallbackTarget {
	chain := make([]FallbackTarget, 0, len(v.Fallback)+1)
	chain = append(chain, FallbackTarget{Provider: v.Provider, Model: v.Model})
	chain = append(chain, v.Fallback...)
	return chain
}
