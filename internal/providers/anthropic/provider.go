// Package anthropic adapts the Anthropic messages API to the
// providers.Provider contract, grounded on the teacher's
// internal/providers/anthropic/provider.go conversion style (folding system
// messages into a single prefix, declaring a forced tool for structured
// output).
package anthropic

import (
	"context"
	"encoding/json"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/tributary-ai/promptroute/internal/providers"
)

type messagesClient interface {
	New(ctx context.Context, params anthropicsdk.MessageNewParams) (*anthropicsdk.Message, error)
}

// Provider implements providers.Provider against the Anthropic messages API.
type Provider struct {
	client messagesClient
}

// New builds a Provider backed by a real Anthropic client using apiKey.
func New(apiKey string) *Provider {
	client := anthropicsdk.NewClient(option.WithAPIKey(apiKey))
	return &Provider{client: &sdkMessagesClient{client: client}}
}

type sdkMessagesClient struct{ client anthropicsdk.Client }

func (c *sdkMessagesClient) New(ctx context.Context, params anthropicsdk.MessageNewParams) (*anthropicsdk.Message, error) {
	return c.client.Messages.New(ctx, params)
}

func newWithClient(c messagesClient) *Provider {
	return &Provider{client: c}
}

var _ providers.Provider = (*Provider)(nil)

func (p *Provider) ChatCompletion(ctx context.Context, opts providers.ChatOptions) (*providers.ChatResponse, error) {
	params, err := convertRequest(opts)
	if err != nil {
		return nil, err
	}
	msg, err := p.client.New(ctx, params)
	if err != nil {
		return nil, classifyError(err)
	}
	return convertResponse(msg, opts.ResponseFormatJSON), nil
}

// foldSystemMessages joins every system message into a single prefix,
// separated by a blank line, per spec.md §4.5.
func foldSystemMessages(messages []providers.Message) (string, []providers.Message) {
	var systemParts []string
	var rest []providers.Message
	for _, m := range messages {
		if m.Role == "system" {
			systemParts = append(systemParts, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(systemParts, "\n\n"), rest
}

func convertRequest(opts providers.ChatOptions) (anthropicsdk.MessageNewParams, error) {
	system, rest := foldSystemMessages(opts.Messages)

	params := anthropicsdk.MessageNewParams{
		Model:    anthropicsdk.Model(opts.Model),
		MaxTokens: int64(maxTokens(opts.Parameters)),
	}
	if system != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: system}}
	}
	for _, m := range rest {
		role := anthropicsdk.MessageParamRoleUser
		if m.Role == "assistant" {
			role = anthropicsdk.MessageParamRoleAssistant
		}
		params.Messages = append(params.Messages, anthropicsdk.MessageParam{
			Role:    role,
			Content: []anthropicsdk.ContentBlockParamUnion{anthropicsdk.NewTextBlock(m.Content)},
		})
	}
	applyParameters(&params, opts.Parameters)

	if opts.ResponseFormatJSON {
		schemaBytes, err := json.Marshal(opts.ResponseSchema)
		if err != nil {
			return params, err
		}
		var schema interface{}
		if err := json.Unmarshal(schemaBytes, &schema); err != nil {
			return params, err
		}
		params.Tools = []anthropicsdk.ToolUnionParam{
			{
				OfTool: &anthropicsdk.ToolParam{
					Name:        "structured_response",
					Description: anthropicsdk.String("Return the response matching the required schema."),
					InputSchema: anthropicsdk.ToolInputSchemaParam{
						Properties: schema,
					},
				},
			},
		}
		params.ToolChoice = anthropicsdk.ToolChoiceUnionParam{
			OfTool: &anthropicsdk.ToolChoiceToolParam{Name: "structured_response"},
		}
	}

	return params, nil
}

func maxTokens(params map[string]interface{}) int {
	if v, ok := params["max_tokens"]; ok {
		if f, ok := v.(float64); ok {
			return int(f)
		}
	}
	return 1024
}

func applyParameters(params *anthropicsdk.MessageNewParams, canonical map[string]interface{}) {
	if v, ok := canonical["temperature"].(float64); ok {
		params.Temperature = anthropicsdk.Float(v)
	}
	if v, ok := canonical["top_p"].(float64); ok {
		params.TopP = anthropicsdk.Float(v)
	}
	if v, ok := canonical["stop_sequences"].([]interface{}); ok {
		for _, s := range v {
			if str, ok := s.(string); ok {
				params.StopSequences = append(params.StopSequences, str)
			}
		}
	}
}

func convertResponse(msg *anthropicsdk.Message, structured bool) *providers.ChatResponse {
	content := extractContent(msg, structured)
	return &providers.ChatResponse{
		ID:    msg.ID,
		Model: string(msg.Model),
		Choices: []providers.Choice{{
			Index:        0,
			Message:      providers.Message{Role: "assistant", Content: content},
			FinishReason: string(msg.StopReason),
		}},
		Usage: &providers.Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}
}

// extractContent returns the forced tool's JSON input when structured
// output was requested, else the concatenated text blocks.
func extractContent(msg *anthropicsdk.Message, structured bool) string {
	if structured {
		for _, block := range msg.Content {
			if block.Type == "tool_use" {
				raw, _ := json.Marshal(block.Input)
				return string(raw)
			}
		}
	}
	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

func classifyError(err error) error {
	if apiErr, ok := err.(*anthropicsdk.Error); ok {
		return providers.NewProviderError(apiErr.StatusCode, "", apiErr.Error(), err)
	}
	return providers.NewProviderError(0, "", err.Error(), err)
}
