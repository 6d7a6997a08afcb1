// Package openai adapts the OpenAI-shaped chat completion API to the
// providers.Provider contract, grounded on the teacher's
// internal/providers/openai/provider.go conversion style.
package openai

import (
	"context"
	"encoding/json"
	"fmt"

	openaisdk "github.com/sashabaranov/go-openai"
	"github.com/tributary-ai/promptroute/internal/providers"
)

// chatClient is the narrow slice of *openaisdk.Client this adapter needs,
// extracted so tests can inject a fake instead of hitting the network —
// the same internal-interface-for-testability shape used by the Google
// adapter (grounded on dshills-langgraph-go's googleClient interface).
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openaisdk.ChatCompletionRequest) (openaisdk.ChatCompletionResponse, error)
}

// Provider implements providers.Provider against the OpenAI chat completion
// API.
type Provider struct {
	client chatClient
}

// New builds a Provider backed by a real OpenAI client using apiKey.
func New(apiKey string) *Provider {
	return &Provider{client: openaisdk.NewClient(apiKey)}
}

// newWithClient is used by tests to inject a fake chatClient.
func newWithClient(c chatClient) *Provider {
	return &Provider{client: c}
}

var _ providers.Provider = (*Provider)(nil)

func (p *Provider) ChatCompletion(ctx context.Context, opts providers.ChatOptions) (*providers.ChatResponse, error) {
	req := convertRequest(opts)
	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, classifyError(err)
	}
	return convertResponse(resp), nil
}

func convertRequest(opts providers.ChatOptions) openaisdk.ChatCompletionRequest {
	req := openaisdk.ChatCompletionRequest{
		Model:    opts.Model,
		Messages: make([]openaisdk.ChatCompletionMessage, 0, len(opts.Messages)),
		User:     opts.UserID,
	}
	for _, m := range opts.Messages {
		req.Messages = append(req.Messages, openaisdk.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	applyParameters(&req, opts.Parameters)

	if opts.ResponseFormatJSON {
		schema, _ := json.Marshal(opts.ResponseSchema)
		req.ResponseFormat = &openaisdk.ChatCompletionResponseFormat{
			Type: openaisdk.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openaisdk.ChatCompletionResponseFormatJSONSchema{
				Name:   "response",
				Schema: json.RawMessage(schema),
				Strict: true,
			},
		}
	}
	return req
}

func applyParameters(req *openaisdk.ChatCompletionRequest, params map[string]interface{}) {
	if v, ok := asFloat(params["temperature"]); ok {
		req.Temperature = float32(v)
	}
	if v, ok := asFloat(params["max_completion_tokens"]); ok {
		req.MaxCompletionTokens = int(v)
	}
	if v, ok := asFloat(params["top_p"]); ok {
		req.TopP = float32(v)
	}
	if v, ok := asFloat(params["frequency_penalty"]); ok {
		req.FrequencyPenalty = float32(v)
	}
	if v, ok := asFloat(params["presence_penalty"]); ok {
		req.PresencePenalty = float32(v)
	}
	if v, ok := params["stop"].([]interface{}); ok {
		for _, s := range v {
			if str, ok := s.(string); ok {
				req.Stop = append(req.Stop, str)
			}
		}
	}
	if v, ok := params["logit_bias"].(map[string]interface{}); ok {
		req.LogitBias = make(map[string]int, len(v))
		for k, val := range v {
			if f, ok := asFloat(val); ok {
				req.LogitBias[k] = int(f)
			}
		}
	}
}

func convertResponse(resp openaisdk.ChatCompletionResponse) *providers.ChatResponse {
	out := &providers.ChatResponse{ID: resp.ID, Model: resp.Model}
	for _, c := range resp.Choices {
		out.Choices = append(out.Choices, providers.Choice{
			Index: c.Index,
			Message: providers.Message{
				Role:    c.Message.Role,
				Content: c.Message.Content,
			},
			FinishReason: string(c.FinishReason),
		})
	}
	out.Usage = &providers.Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	return out
}

func classifyError(err error) error {
	if apiErr, ok := err.(*openaisdk.APIError); ok {
		return providers.NewProviderError(apiErr.HTTPStatusCode, fmt.Sprintf("%v", apiErr.Code), apiErr.Message, err)
	}
	return providers.NewProviderError(0, "", err.Error(), err)
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
