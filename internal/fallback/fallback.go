// Package fallback implements the ordered-attempt execution loop of
// spec.md §4.6.
package fallback

import (
	"context"
	"errors"

	"github.com/tributary-ai/promptroute/internal/providers"
	"github.com/tributary-ai/promptroute/internal/routeconfig"
)

// Target is one (provider, model) attempt in a fallback chain.
type Target struct {
	ProviderAlias string
	ProviderType  routeconfig.ProviderType
	Model         string
}

// Attempt records one fallback-executor attempt for telemetry.
type Attempt struct {
	Target Target
	Err    error
}

// AttemptFn issues one provider call for a resolved provider and target.
type AttemptFn func(ctx context.Context, provider providers.Provider, target Target) (*providers.ChatResponse, error)

// GetProviderFn resolves a provider instance for a target's type.
type GetProviderFn func(providerType routeconfig.ProviderType) (providers.Provider, error)

// OnAttempt is invoked after every attempt, success or failure.
type OnAttempt func(Attempt)

// Execute drives targets in order, honoring retryable/terminal
// classification (spec.md §4.6). targets must be non-empty; element zero is
// the primary.
func Execute(ctx context.Context, targets []Target, attempt AttemptFn, getProvider GetProviderFn, onAttempt OnAttempt) (*providers.ChatResponse, error) {
	var lastErr error

	for _, target := range targets {
		provider, err := getProvider(target.ProviderType)
		if err != nil {
			return nil, err
		}

		resp, err := attempt(ctx, provider, target)
		if err == nil {
			if onAttempt != nil {
				onAttempt(Attempt{Target: target})
			}
			return resp, nil
		}

		if onAttempt != nil {
			onAttempt(Attempt{Target: target, Err: err})
		}

		var provErr *providers.ProviderError
		if !errors.As(err, &provErr) {
			return nil, err
		}
		if !provErr.Retryable {
			return nil, err
		}
		lastErr = err
	}

	return nil, lastErr
}
