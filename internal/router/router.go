// Package router implements the deterministic variant-selection policy of
// spec.md §4.4: tag match, then phased rollout, then weighted default
// rules, then the hard default variant.
package router

import (
	"fmt"

	"github.com/tributary-ai/promptroute/internal/routeconfig"
	"github.com/tributary-ai/promptroute/internal/routeerror"
)

const (
	ReasonTagMatch           = "tag-match"
	ReasonPhasedRollout      = "phased-rollout"
	ReasonWeightDistribution = "weight-distribution"
	ReasonDefault            = "default"
)

// Selection is the result of Select: the chosen variant, why it was chosen,
// and (for weighted layers) the weight it was picked with.
type Selection struct {
	VariantID string
	Variant   routeconfig.Variant
	Reason    string
	Weight    *int
}

// Select runs the four-layer policy against one prompt. now is a Unix
// timestamp in seconds; userID and tags may be empty.
func Select(prompt routeconfig.Prompt, promptID, userID string, tags []string, now int64) (*Selection, error) {
	if w, ok := tagMatchWeights(prompt, tags); ok {
		target, weight := weightedPick(w, userID, promptID, "tag")
		return buildSelection(prompt, target, ReasonTagMatch, &weight)
	}

	if phased, ok := activePhased(prompt, now); ok {
		w := phasedWeights(phased)
		target, weight := weightedPick(w, userID, promptID, "phase")
		return buildSelection(prompt, target, ReasonPhasedRollout, &weight)
	}

	if w, ok := defaultRuleWeights(prompt); ok {
		target, weight := weightedPick(w, userID, promptID, "weight")
		return buildSelection(prompt, target, ReasonWeightDistribution, &weight)
	}

	return hardDefault(prompt, promptID)
}

func tagMatchWeights(prompt routeconfig.Prompt, tags []string) (*orderedWeights, bool) {
	w := newOrderedWeights()
	for _, rule := range prompt.Routing.Rules {
		if len(rule.Tags) == 0 || !intersects(rule.Tags, tags) {
			continue
		}
		w.set(rule.Target, rule.EffectiveWeight())
	}
	return w, !w.empty()
}

func defaultRuleWeights(prompt routeconfig.Prompt) (*orderedWeights, bool) {
	w := newOrderedWeights()
	for _, rule := range prompt.Routing.Rules {
		if len(rule.Tags) != 0 {
			continue
		}
		w.set(rule.Target, rule.EffectiveWeight())
	}
	return w, !w.empty()
}

// activePhased picks the phased entry with the greatest start whose window
// covers now, ties broken by the order entries appear in the configuration
// (spec.md §9's documented resolution of an otherwise-open question).
func activePhased(prompt routeconfig.Prompt, now int64) (routeconfig.PhasedRule, bool) {
	var best routeconfig.PhasedRule
	found := false
	for _, p := range prompt.Routing.Phased {
		if p.Start > now {
			continue
		}
		if p.End != nil && now > *p.End {
			continue
		}
		if !found || p.Start > best.Start {
			best = p
			found = true
		}
	}
	return best, found
}

func phasedWeights(p routeconfig.PhasedRule) *orderedWeights {
	w := newOrderedWeights()
	order := p.WeightOrder
	if len(order) == 0 {
		for target := range p.Weights {
			order = append(order, target)
		}
	}
	for _, target := range order {
		w.set(target, p.Weights[target])
	}
	return w
}

func hardDefault(prompt routeconfig.Prompt, promptID string) (*Selection, error) {
	for variantID, v := range prompt.Variants {
		if v.Default {
			return &Selection{VariantID: variantID, Variant: v, Reason: ReasonDefault}, nil
		}
	}
	return nil, routeerror.New(routeerror.KindExecution, "no-default-variant",
		fmt.Sprintf("prompt %q has no default variant", promptID), nil)
}

func buildSelection(prompt routeconfig.Prompt, target, reason string, weight *int) (*Selection, error) {
	v, ok := prompt.Variants[target]
	if !ok {
		return nil, routeerror.New(routeerror.KindExecution, "unknown-variant",
			fmt.Sprintf("routing selected variant %q which does not exist", target),
			routeerror.Details{"variantId": target, "reason": reason})
	}
	return &Selection{VariantID: target, Variant: v, Reason: reason, Weight: weight}, nil
}

func intersects(a, b []string) bool {
	set := make(map[string]struct{}, len(a))
	for _, v := range a {
		set[v] = struct{}{}
	}
	for _, v := range b {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}
