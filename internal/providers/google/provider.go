// Package google adapts the Gemini generateContent API to the
// providers.Provider contract, grounded on dshills-langgraph-go's
// graph/model/google/google.go: a thin googleClient interface around
// *genai.Client so tests can inject a fake instead of a live network call.
package google

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/tributary-ai/promptroute/internal/providers"
	"google.golang.org/api/option"
)

// googleClient is the narrow slice of genai this adapter needs.
type googleClient interface {
	generateContent(ctx context.Context, modelName string, systemInstruction string, prompt string, schema *genai.Schema) (*genai.GenerateContentResponse, error)
}

// Provider implements providers.Provider against the Gemini API.
type Provider struct {
	client googleClient
}

// New builds a Provider backed by a real genai client using apiKey.
func New(apiKey string) *Provider {
	return &Provider{client: &defaultClient{apiKey: apiKey}}
}

func newWithClient(c googleClient) *Provider {
	return &Provider{client: c}
}

var _ providers.Provider = (*Provider)(nil)

type defaultClient struct{ apiKey string }

func (d *defaultClient) generateContent(ctx context.Context, modelName, systemInstruction, prompt string, schema *genai.Schema) (*genai.GenerateContentResponse, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(d.apiKey))
	if err != nil {
		return nil, err
	}
	defer client.Close()

	model := client.GenerativeModel(modelName)
	if systemInstruction != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemInstruction)}}
	}
	if schema != nil {
		model.ResponseMIMEType = "application/json"
		model.ResponseSchema = schema
	}
	return model.GenerateContent(ctx, genai.Text(prompt))
}

func (p *Provider) ChatCompletion(ctx context.Context, opts providers.ChatOptions) (*providers.ChatResponse, error) {
	systemInstruction, prompt := convertMessages(opts.Messages)

	var schema *genai.Schema
	if opts.ResponseFormatJSON {
		s, err := convertSchema(opts.ResponseSchema)
		if err != nil {
			return nil, err
		}
		schema = s
	}

	resp, err := p.client.generateContent(ctx, opts.Model, systemInstruction, prompt, schema)
	if err != nil {
		return nil, classifyError(err)
	}
	return convertResponse(resp, opts.Model), nil
}

// convertMessages folds system messages into a system-instruction string and
// serializes the remainder into a single "User: "/"Assistant: " prompt, per
// spec.md §4.5.
func convertMessages(messages []providers.Message) (systemInstruction, prompt string) {
	var system []string
	var turns []string
	for _, m := range messages {
		switch m.Role {
		case "system":
			system = append(system, m.Content)
		case "assistant":
			turns = append(turns, "Assistant: "+m.Content)
		default:
			turns = append(turns, "User: "+m.Content)
		}
	}
	return strings.Join(system, "\n\n"), strings.Join(turns, "\n\n")
}

// schemaType maps a JSON-Schema "type" string to the genai enum. An
// unrecognized or empty type defaults to TypeObject.
func schemaType(jsonType string) genai.Type {
	switch jsonType {
	case "string":
		return genai.TypeString
	case "integer", "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object", "":
		return genai.TypeObject
	default:
		return genai.TypeObject
	}
}

func convertSchema(schema map[string]interface{}) (*genai.Schema, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var fragment struct {
		Type       string                 `json:"type"`
		Properties map[string]interface{} `json:"properties"`
		Required   []string               `json:"required"`
	}
	if err := json.Unmarshal(raw, &fragment); err != nil {
		return nil, err
	}
	out := &genai.Schema{Type: schemaType(fragment.Type), Required: fragment.Required}
	if len(fragment.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(fragment.Properties))
		for name, propRaw := range fragment.Properties {
			propMap, ok := propRaw.(map[string]interface{})
			if !ok {
				continue
			}
			prop, err := convertSchema(propMap)
			if err != nil {
				return nil, err
			}
			out.Properties[name] = prop
		}
	}
	return out, nil
}

func convertResponse(resp *genai.GenerateContentResponse, model string) *providers.ChatResponse {
	out := &providers.ChatResponse{Model: model}
	for i, cand := range resp.Candidates {
		var b strings.Builder
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if text, ok := part.(genai.Text); ok {
					b.WriteString(string(text))
				}
			}
		}
		out.Choices = append(out.Choices, providers.Choice{
			Index:        i,
			Message:      providers.Message{Role: "assistant", Content: b.String()},
			FinishReason: cand.FinishReason.String(),
		})
	}
	if resp.UsageMetadata != nil {
		out.Usage = &providers.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return out
}

func classifyError(err error) error {
	return providers.NewProviderError(0, "", err.Error(), err)
}
