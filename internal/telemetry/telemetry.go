// Package telemetry implements the per-request Observability builder of
// spec.md §4.7.
package telemetry

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// FallbackAttempt mirrors one non-terminal failure recorded during
// execution.
type FallbackAttempt struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Reason   string `json:"reason"`
}

// TokenUsage is the normalized token accounting carried in the event.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ExperimentContext records routing-experiment metadata for the event.
type ExperimentContext struct {
	Tags             []string `json:"tags,omitempty"`
	WeightedSelection bool    `json:"weightedSelection"`
	SelectedWeight   *int     `json:"selectedWeight,omitempty"`
}

// ErrorInfo is the event's error sub-record, present only when success=false.
type ErrorInfo struct {
	Type       string `json:"type"`
	Message    string `json:"message"`
	Code       string `json:"code,omitempty"`
	Retryable  bool   `json:"retryable"`
	Provider   string `json:"provider,omitempty"`
	HTTPStatus int    `json:"httpStatus,omitempty"`
}

// Timings is the event's stage-duration sub-record, in milliseconds.
type Timings struct {
	Total    int64  `json:"total"`
	Template *int64 `json:"template,omitempty"`
	Provider *int64 `json:"provider,omitempty"`
	Retries  *int64 `json:"retries,omitempty"`
}

// Event is the Observability record of spec.md §6, emitted exactly once per
// chatCompletion call.
type Event struct {
	RequestID         string            `json:"requestId"`
	UserID            string            `json:"userId,omitempty"`
	Timestamp         time.Time         `json:"timestamp"`
	SDKVersion        string            `json:"sdkVersion"`
	Environment       string            `json:"environment,omitempty"`
	PromptID          string            `json:"promptId"`
	VariantID         string            `json:"variantId"`
	RoutingReason     string            `json:"routingReason"`
	RoutingTags       []string          `json:"routingTags,omitempty"`
	Timings           Timings           `json:"timings"`
	TokenUsage        *TokenUsage       `json:"tokenUsage,omitempty"`
	Provider          string            `json:"provider,omitempty"`
	Model             string            `json:"model,omitempty"`
	ProviderRequestID string            `json:"providerRequestId,omitempty"`
	FallbackUsed      bool              `json:"fallbackUsed"`
	Fallbacks         []FallbackAttempt `json:"fallbacks,omitempty"`
	Success           bool              `json:"success"`
	Error             *ErrorInfo        `json:"error,omitempty"`
	ExperimentContext *ExperimentContext `json:"experimentContext,omitempty"`
	Custom            map[string]interface{} `json:"custom,omitempty"`
}

// Sink receives exactly one Event per chatCompletion call. A panicking or
// erroring sink must not affect the caller's return value (spec.md §9).
type Sink func(Event)

// Builder accumulates one Observability record across a request's lifetime.
type Builder struct {
	mu       sync.Mutex
	event    Event
	start    time.Time
	emitted  bool
	final    Event
	sdkVersion string
	sink     Sink
}

// New starts a Builder for one chatCompletion call.
func New(promptID, userID, environment, sdkVersion string, sink Sink) *Builder {
	now := time.Now().UTC()
	return &Builder{
		start:      now,
		sdkVersion: sdkVersion,
		sink:       sink,
		event: Event{
			RequestID:     uuid.NewString(),
			Timestamp:     now,
			SDKVersion:    sdkVersion,
			Environment:   environment,
			PromptID:      promptID,
			UserID:        userID,
			VariantID:     "unknown",
			RoutingReason: "",
		},
	}
}

func (b *Builder) SetVariantID(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.event.VariantID = id
}

func (b *Builder) SetRouting(reason string, tags []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.event.RoutingReason = reason
	b.event.RoutingTags = tags
}

func (b *Builder) SetExperimentContext(tags []string, weighted bool, selectedWeight *int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.event.ExperimentContext = &ExperimentContext{Tags: tags, WeightedSelection: weighted, SelectedWeight: selectedWeight}
}

func (b *Builder) markStage(set func(ms int64)) {
	elapsed := time.Since(b.start).Milliseconds()
	b.mu.Lock()
	defer b.mu.Unlock()
	set(elapsed)
}

func (b *Builder) MarkTemplate() {
	b.markStage(func(ms int64) { b.event.Timings.Template = &ms })
}

func (b *Builder) MarkProvider() {
	b.markStage(func(ms int64) { b.event.Timings.Provider = &ms })
}

func (b *Builder) SetProvider(providerType, model string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.event.Provider = providerType
	b.event.Model = model
}

func (b *Builder) SetProviderRequestID(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.event.ProviderRequestID = id
}

func (b *Builder) SetTokenUsage(prompt, completion, total int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.event.TokenUsage = &TokenUsage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: total}
}

func (b *Builder) AddFallbackAttempt(provider, model, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.event.Fallbacks = append(b.event.Fallbacks, FallbackAttempt{Provider: provider, Model: model, Reason: reason})
	b.event.FallbackUsed = true
}

// BuildSuccess finalizes timings, marks the event successful, and emits it.
func (b *Builder) BuildSuccess() Event {
	return b.finalize(true, nil)
}

// BuildError finalizes timings, attaches err's details, and emits the event.
func (b *Builder) BuildError(kind, message, code, provider string, retryable bool, httpStatus int) Event {
	return b.finalize(false, &ErrorInfo{
		Type: kind, Message: message, Code: code, Provider: provider,
		Retryable: retryable, HTTPStatus: httpStatus,
	})
}

func (b *Builder) finalize(success bool, errInfo *ErrorInfo) Event {
	b.mu.Lock()
	if b.emitted {
		event := b.final
		b.mu.Unlock()
		return event
	}
	b.event.Timings.Total = time.Since(b.start).Milliseconds()
	b.event.Success = success
	b.event.Error = errInfo
	event := b.event
	b.final = event
	b.emitted = true
	sink := b.sink
	b.mu.Unlock()

	if sink != nil {
		emitSafely(sink, event)
	}
	return event
}

// emitSafely isolates the sink so a panicking callback cannot affect the
// caller's own return value or corrupt the next event (spec.md §9).
func emitSafely(sink Sink, event Event) {
	defer func() { _ = recover() }()
	sink(event)
}
