package router

import (
	"testing"

	"github.com/tributary-ai/promptroute/internal/routeconfig"
)

func variant(id string, isDefault bool) routeconfig.Variant {
	return routeconfig.Variant{
		Provider: "openai-main",
		Model:    "gpt-4o-mini",
		Default:  isDefault,
	}
}

func TestSelect_TagMatchWinsOverEverythingElse(t *testing.T) {
	weightA, weightB := 1, 1
	prompt := routeconfig.Prompt{
		Variants: map[string]routeconfig.Variant{
			"v1": variant("v1", true),
			"v2": variant("v2", false),
		},
		Routing: routeconfig.Routing{
			Rules: []routeconfig.RoutingRule{
				{Target: "v2", Weight: &weightB, Tags: []string{"beta"}},
				{Target: "v1", Weight: &weightA},
			},
		},
	}
	sel, err := Select(prompt, "p", "user-1", []string{"beta"}, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sel.VariantID != "v2" || sel.Reason != ReasonTagMatch {
		t.Errorf("expected tag match to select v2, got %+v", sel)
	}
}

func TestSelect_PhasedRolloutWinsOverDefaultRules(t *testing.T) {
	prompt := routeconfig.Prompt{
		Variants: map[string]routeconfig.Variant{
			"v1": variant("v1", true),
			"v2": variant("v2", false),
		},
		Routing: routeconfig.Routing{
			Rules: []routeconfig.RoutingRule{
				{Target: "v1"},
			},
			Phased: []routeconfig.PhasedRule{
				{Start: 0, Weights: map[string]int{"v2": 100}, WeightOrder: []string{"v2"}},
			},
		},
	}
	sel, err := Select(prompt, "p", "user-1", nil, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sel.VariantID != "v2" || sel.Reason != ReasonPhasedRollout {
		t.Errorf("expected phased rollout to select v2, got %+v", sel)
	}
}

func TestSelect_PhasedRollout_OutsideWindowFallsThrough(t *testing.T) {
	end := int64(500)
	prompt := routeconfig.Prompt{
		Variants: map[string]routeconfig.Variant{
			"v1": variant("v1", true),
		},
		Routing: routeconfig.Routing{
			Rules: []routeconfig.RoutingRule{{Target: "v1"}},
			Phased: []routeconfig.PhasedRule{
				{Start: 0, End: &end, Weights: map[string]int{"v1": 100}, WeightOrder: []string{"v1"}},
			},
		},
	}
	sel, err := Select(prompt, "p", "user-1", nil, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sel.Reason != ReasonWeightDistribution {
		t.Errorf("expected expired phased window to fall through to weight distribution, got %+v", sel)
	}
}

func TestSelect_PhasedRollout_LatestStartWinsAmongOverlapping(t *testing.T) {
	prompt := routeconfig.Prompt{
		Variants: map[string]routeconfig.Variant{
			"v1": variant("v1", true),
			"v2": variant("v2", false),
		},
		Routing: routeconfig.Routing{
			Rules: []routeconfig.RoutingRule{{Target: "v1"}},
			Phased: []routeconfig.PhasedRule{
				{Start: 0, Weights: map[string]int{"v1": 100}, WeightOrder: []string{"v1"}},
				{Start: 500, Weights: map[string]int{"v2": 100}, WeightOrder: []string{"v2"}},
			},
		},
	}
	sel, err := Select(prompt, "p", "user-1", nil, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sel.VariantID != "v2" {
		t.Errorf("expected the later-starting phased entry to win, got %+v", sel)
	}
}

func TestSelect_WeightDistribution_SingleTargetAlwaysWins(t *testing.T) {
	weight := 100
	prompt := routeconfig.Prompt{
		Variants: map[string]routeconfig.Variant{
			"v1": variant("v1", true),
		},
		Routing: routeconfig.Routing{
			Rules: []routeconfig.RoutingRule{{Target: "v1", Weight: &weight}},
		},
	}
	sel, err := Select(prompt, "p", "", nil, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sel.VariantID != "v1" || sel.Reason != ReasonWeightDistribution {
		t.Errorf("expected single-target weight distribution to select v1, got %+v", sel)
	}
	if sel.Weight == nil || *sel.Weight != 100 {
		t.Errorf("expected selection to carry the picked weight, got %+v", sel.Weight)
	}
}

func TestSelect_WeightDistribution_DeterministicForSameUser(t *testing.T) {
	wa, wb := 50, 50
	prompt := routeconfig.Prompt{
		Variants: map[string]routeconfig.Variant{
			"v1": variant("v1", true),
			"v2": variant("v2", false),
		},
		Routing: routeconfig.Routing{
			Rules: []routeconfig.RoutingRule{
				{Target: "v1", Weight: &wa},
				{Target: "v2", Weight: &wb},
			},
		},
	}
	first, err := Select(prompt, "p", "stable-user", nil, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := Select(prompt, "p", "stable-user", nil, 1000)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if again.VariantID != first.VariantID {
			t.Fatalf("expected deterministic pick for the same user, got %s then %s", first.VariantID, again.VariantID)
		}
	}
}

func TestSelect_HardDefault_NoRulesNoPhased(t *testing.T) {
	prompt := routeconfig.Prompt{
		Variants: map[string]routeconfig.Variant{
			"v1": variant("v1", false),
			"v2": variant("v2", true),
		},
	}
	sel, err := Select(prompt, "p", "", nil, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sel.VariantID != "v2" || sel.Reason != ReasonDefault {
		t.Errorf("expected hard default to select v2, got %+v", sel)
	}
}

func TestSelect_NoDefaultVariantIsError(t *testing.T) {
	prompt := routeconfig.Prompt{
		Variants: map[string]routeconfig.Variant{
			"v1": variant("v1", false),
		},
	}
	_, err := Select(prompt, "p", "", nil, 1000)
	if err == nil {
		t.Fatal("expected error when no default variant and no routing rules match")
	}
}

func TestSelect_RoutingTargetsNonexistentVariantIsError(t *testing.T) {
	weight := 100
	prompt := routeconfig.Prompt{
		Variants: map[string]routeconfig.Variant{
			"v1": variant("v1", true),
		},
		Routing: routeconfig.Routing{
			Rules: []routeconfig.RoutingRule{{Target: "ghost", Weight: &weight}},
		},
	}
	_, err := Select(prompt, "p", "", nil, 1000)
	if err == nil {
		t.Fatal("expected error when routing selects a variant absent from the prompt")
	}
}

func TestRoutingRule_TagsWithNoOverlapAreIgnored(t *testing.T) {
	weight := 100
	prompt := routeconfig.Prompt{
		Variants: map[string]routeconfig.Variant{
			"v1": variant("v1", true),
			"v2": variant("v2", false),
		},
		Routing: routeconfig.Routing{
			Rules: []routeconfig.RoutingRule{
				{Target: "v2", Weight: &weight, Tags: []string{"beta"}},
				{Target: "v1"},
			},
		},
	}
	sel, err := Select(prompt, "p", "", []string{"gamma"}, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sel.Reason != ReasonWeightDistribution || sel.VariantID != "v1" {
		t.Errorf("expected non-overlapping tags to fall through to weight distribution, got %+v", sel)
	}
}
