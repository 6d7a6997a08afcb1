// Package engine implements the Orchestrator of spec.md §4.8: the
// getTemplate and chatCompletion entry points, with single-flight config and
// provider caches.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tributary-ai/promptroute/internal/fallback"
	"github.com/tributary-ai/promptroute/internal/parammap"
	"github.com/tributary-ai/promptroute/internal/providers"
	"github.com/tributary-ai/promptroute/internal/providers/anthropic"
	"github.com/tributary-ai/promptroute/internal/providers/google"
	openaiprovider "github.com/tributary-ai/promptroute/internal/providers/openai"
	"github.com/tributary-ai/promptroute/internal/router"
	"github.com/tributary-ai/promptroute/internal/routeconfig"
	"github.com/tributary-ai/promptroute/internal/routeerror"
	"github.com/tributary-ai/promptroute/internal/telemetry"
	"github.com/tributary-ai/promptroute/internal/template"
)

// RuntimeConfig is the Engine's construction parameter, per spec.md §6's
// Library surface.
type RuntimeConfig struct {
	ConfigPath       string
	OpenAIAPIKey     string
	AnthropicAPIKey  string
	GoogleAPIKey     string
	Environment      string
	SDKVersion       string
	OnObservability  telemetry.Sink
	Logger           *logrus.Logger
}

// RenderedMessage is one rendered {role, content} pair returned by
// GetTemplate.
type RenderedMessage struct {
	Role    string
	Content string
}

// GetTemplateParams is getTemplate's input.
type GetTemplateParams struct {
	PromptID  string
	VariantID string
	Variables map[string]interface{}
}

// ChatCompletionParams is chatCompletion's input.
type ChatCompletionParams struct {
	PromptID       string
	Variables      map[string]interface{}
	MessageHistory []RenderedMessage
	UserID         string
	Tags           []string
	UnixTime       int64
}

// Engine is the stateless-beyond-caches Orchestrator.
type Engine struct {
	runtime   RuntimeConfig
	logger    *logrus.Logger
	templates *template.Adapter

	configOnce  sync.Once
	config      *routeconfig.Config
	configErr   error

	providerFutures onceMap
}

// New constructs an Engine. Config load and provider construction are both
// deferred to first use (spec.md §3's Lifecycles).
func New(runtime RuntimeConfig) *Engine {
	logger := runtime.Logger
	if logger == nil {
		logger = logrus.New()
	}
	return &Engine{
		runtime:   runtime,
		logger:    logger,
		templates: template.NewAdapter(),
	}
}

func (e *Engine) loadConfig() (*routeconfig.Config, error) {
	e.configOnce.Do(func() {
		e.config, e.configErr = routeconfig.LoadAndValidateConfig(e.runtime.ConfigPath)
	})
	return e.config, e.configErr
}

func (e *Engine) getProvider(providerType routeconfig.ProviderType) (providers.Provider, error) {
	f, started := e.providerFutures.get(providerType)
	if !started {
		val, err := f.wait()
		if err != nil {
			return nil, err
		}
		return val.(providers.Provider), nil
	}
	p, err := e.buildProvider(providerType)
	f.resolve(p, err)
	return p, err
}

func (e *Engine) buildProvider(providerType routeconfig.ProviderType) (providers.Provider, error) {
	switch providerType {
	case routeconfig.ProviderOpenAI:
		if e.runtime.OpenAIAPIKey == "" {
			return nil, missingAPIKeyError(providerType)
		}
		return openaiprovider.New(e.runtime.OpenAIAPIKey), nil
	case routeconfig.ProviderAnthropic:
		if e.runtime.AnthropicAPIKey == "" {
			return nil, missingAPIKeyError(providerType)
		}
		return anthropic.New(e.runtime.AnthropicAPIKey), nil
	case routeconfig.ProviderGoogle:
		if e.runtime.GoogleAPIKey == "" {
			return nil, missingAPIKeyError(providerType)
		}
		return google.New(e.runtime.GoogleAPIKey), nil
	default:
		return nil, routeerror.New(routeerror.KindExecution, "unknown-provider-type",
			fmt.Sprintf("no adapter registered for provider type %q", providerType), nil)
	}
}

func missingAPIKeyError(providerType routeconfig.ProviderType) error {
	return routeerror.New(routeerror.KindExecution, "missing-api-key",
		fmt.Sprintf("no API key configured for provider type %q", providerType),
		routeerror.Details{"providerType": string(providerType)})
}

// GetTemplate resolves prompt and variant and renders every message. It
// does not route, does not touch providers, does not emit telemetry
// (spec.md §4.8.1).
func (e *Engine) GetTemplate(ctx context.Context, params GetTemplateParams) ([]RenderedMessage, error) {
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	prompt, ok := cfg.Prompts[params.PromptID]
	if !ok {
		return nil, unknownPromptError(params.PromptID)
	}
	variant, ok := prompt.Variants[params.VariantID]
	if !ok {
		return nil, unknownVariantError(params.PromptID, params.VariantID)
	}
	return e.renderMessages(variant.Messages, params.Variables)
}

func (e *Engine) renderMessages(specs []routeconfig.MessageSpec, variables map[string]interface{}) ([]RenderedMessage, error) {
	out := make([]RenderedMessage, 0, len(specs))
	for _, spec := range specs {
		content, err := e.templates.RenderString(spec.Content.Template, variables)
		if err != nil {
			return nil, err
		}
		out = append(out, RenderedMessage{Role: spec.Role, Content: content})
	}
	return out, nil
}

// ChatCompletion is the full pipeline of spec.md §4.8.2, steps (a)-(j).
func (e *Engine) ChatCompletion(ctx context.Context, params ChatCompletionParams) (*providers.ChatResponse, error) {
	builder := telemetry.New(params.PromptID, params.UserID, e.runtime.Environment, e.runtime.SDKVersion, e.runtime.OnObservability)

	cfg, err := e.loadConfig()
	if err != nil {
		return nil, e.fail(builder, err)
	}

	prompt, ok := cfg.Prompts[params.PromptID]
	if !ok {
		return nil, e.fail(builder, unknownPromptError(params.PromptID))
	}

	now := params.UnixTime
	if now == 0 {
		now = time.Now().UTC().Unix()
	}

	sel, err := router.Select(prompt, params.PromptID, params.UserID, params.Tags, now)
	if err != nil {
		return nil, e.fail(builder, err)
	}
	builder.SetVariantID(sel.VariantID)
	builder.SetRouting(sel.Reason, params.Tags)
	builder.SetExperimentContext(params.Tags, sel.Weight != nil, sel.Weight)

	rendered, err := e.renderMessages(sel.Variant.Messages, params.Variables)
	builder.MarkTemplate()
	if err != nil {
		return nil, e.fail(builder, err)
	}

	messages := make([]providers.Message, 0, len(params.MessageHistory)+len(rendered))
	for _, m := range params.MessageHistory {
		messages = append(messages, providers.Message{Role: m.Role, Content: m.Content})
	}
	for _, m := range rendered {
		messages = append(messages, providers.Message{Role: m.Role, Content: m.Content})
	}

	targets, err := buildTargets(cfg, sel.Variant)
	if err != nil {
		return nil, e.fail(builder, err)
	}

	responseFormatJSON := sel.Variant.ResponseFormat.Type == routeconfig.ResponseFormatJSONSchema
	var schema map[string]interface{}
	if responseFormatJSON {
		schema = cfg.ResponseSchemas[sel.Variant.ResponseFormat.SchemaRef]
	}

	resp, err := fallback.Execute(ctx, targets,
		func(ctx context.Context, provider providers.Provider, target fallback.Target) (*providers.ChatResponse, error) {
			opts := providers.ChatOptions{
				Model:              target.Model,
				Messages:           messages,
				UserID:             params.UserID,
				ResponseFormatJSON: responseFormatJSON,
				ResponseSchema:     schema,
				Parameters:         parammap.Map(target.ProviderType, sel.Variant.Parameters),
			}
			return provider.ChatCompletion(ctx, opts)
		},
		e.getProvider,
		func(a fallback.Attempt) {
			builder.MarkProvider()
			if a.Err != nil {
				builder.AddFallbackAttempt(a.Target.ProviderAlias, a.Target.Model, fallbackReason(a.Err))
			}
		},
	)

	if err != nil {
		return nil, e.fail(builder, wrapExecutionError(err))
	}

	if resp.Usage != nil {
		builder.SetTokenUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
	}
	builder.SetProvider(string(targets[0].ProviderType), resp.Model)
	builder.SetProviderRequestID(resp.ID)
	builder.BuildSuccess()
	return resp, nil
}

func (e *Engine) fail(builder *telemetry.Builder, err error) error {
	kind := string(routeerror.KindExecution)
	code := ""
	provider := ""
	retryable := false
	httpStatus := 0
	message := err.Error()

	if re, ok := routeerror.AsError(err); ok {
		kind = string(re.Kind)
		code = re.Code
		message = re.Message
		if re.Details != nil {
			if p, ok := re.Details["provider"].(string); ok {
				provider = p
			}
		}
	}
	if pe, ok := err.(*providers.ProviderError); ok {
		retryable = pe.Retryable
		httpStatus = pe.HTTPStatus
	}

	builder.BuildError(kind, message, code, provider, retryable, httpStatus)
	return wrapExecutionError(err)
}

func wrapExecutionError(err error) error {
	if _, ok := routeerror.AsError(err); ok {
		return err
	}
	return routeerror.Wrap(routeerror.KindExecution, "execution-failed", err.Error(), err, nil)
}

func fallbackReason(err error) string {
	if pe, ok := err.(*providers.ProviderError); ok {
		return string(pe.Reason)
	}
	return "provider-error"
}

func buildTargets(cfg *routeconfig.Config, variant routeconfig.Variant) ([]fallback.Target, error) {
	chain := routeconfig.ResolvedFallbackChain(variant)
	targets := make([]fallback.Target, 0, len(chain))
	for _, t := range chain {
		providerCfg, ok := cfg.Providers[t.Provider]
		if !ok {
			return nil, routeerror.New(routeerror.KindExecution, "unknown-provider",
				fmt.Sprintf("fallback chain references unknown provider %q", t.Provider), nil)
		}
		targets = append(targets, fallback.Target{
			ProviderAlias: t.Provider,
			ProviderType:  providerCfg.Type,
			Model:         t.Model,
		})
	}
	return targets, nil
}

func unknownPromptError(promptID string) error {
	return routeerror.New(routeerror.KindExecution, "unknown-prompt",
		fmt.Sprintf("prompt %q not found", promptID), routeerror.Details{"promptId": promptID})
}

func unknownVariantError(promptID, variantID string) error {
	return routeerror.New(routeerror.KindExecution, "unknown-variant",
		fmt.Sprintf("variant %q not found in prompt %q", variantID, promptID),
		routeerror.Details{"promptId": promptID, "variantId": variantID})
}
