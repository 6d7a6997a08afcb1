// Package template implements the narrow Liquid-like interpreter described
// in spec.md §4.2: variable/dot access, if/else/endif, for/endfor, and the
// seven named filters. No third-party templating library in the retrieved
// reference pack implements this exact grammar (dotted-path variables plus
// pipe filters plus the named filter set), so this adapter is hand-written
// over the fixed grammar, in the same "small parser over a closed grammar"
// spirit as the teacher's own hand-rolled parsing code.
package template

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tributary-ai/promptroute/internal/routeerror"
)

// Template is a parsed, ready-to-render document.
type Template struct {
	source string
	nodes  []node
}

// Adapter parses and renders templates, memoizing parsed forms by source
// string for its own lifetime (spec.md §4.2).
type Adapter struct {
	mu    sync.Mutex
	cache map[string]*Template
}

// NewAdapter returns a ready-to-use Adapter.
func NewAdapter() *Adapter {
	return &Adapter{cache: make(map[string]*Template)}
}

// Parse parses source under non-strict-filter mode: unknown filter names are
// accepted here and only rejected by ParseStrict (used at config-validation
// time, spec.md §4.1 step 7).
func (a *Adapter) Parse(source string) (*Template, error) {
	return a.parse(source, false)
}

// ParseStrict parses source rejecting any filter name outside the fixed
// filter set — the mode used by the config validator.
func (a *Adapter) ParseStrict(source string) (*Template, error) {
	return a.parse(source, true)
}

func (a *Adapter) parse(source string, strictFilters bool) (*Template, error) {
	a.mu.Lock()
	if t, ok := a.cache[source]; ok {
		a.mu.Unlock()
		if strictFilters {
			if err := checkFilters(t.nodes); err != nil {
				return nil, err
			}
		}
		return t, nil
	}
	a.mu.Unlock()

	blocks, err := splitBlocks(source)
	if err != nil {
		return nil, wrapParseError(source, err)
	}
	p := &parser{blocks: blocks}
	nodes, closing, err := p.parseNodes(nil)
	if err != nil {
		return nil, wrapParseError(source, err)
	}
	if closing != "" {
		return nil, wrapParseError(source, fmt.Errorf("unexpected token %q", closing))
	}
	t := &Template{source: source, nodes: nodes}

	if strictFilters {
		if err := checkFilters(nodes); err != nil {
			return nil, err
		}
	}

	a.mu.Lock()
	// A racing second parse is harmless; either result may win (spec.md §5).
	a.cache[source] = t
	a.mu.Unlock()

	return t, nil
}

// Render renders t against variables. Missing variables resolve to the
// empty string; unknown filters are passed through as a no-op at render
// time (non-strict filters, spec.md §4.2).
func (a *Adapter) Render(t *Template, variables map[string]interface{}) (string, error) {
	var b strings.Builder
	if err := renderNodes(t.nodes, variables, &b); err != nil {
		return "", wrapParseError(t.source, err)
	}
	return b.String(), nil
}

// RenderString is a convenience that parses (non-strict) then renders in one
// call, for callers that do not need to reuse a parsed Template.
func (a *Adapter) RenderString(source string, variables map[string]interface{}) (string, error) {
	t, err := a.Parse(source)
	if err != nil {
		return "", err
	}
	return a.Render(t, variables)
}

func wrapParseError(source string, cause error) error {
	hint := suggestionFor(cause.Error())
	return routeerror.Wrap(routeerror.KindTemplate, "template-parse-failed",
		"template failed to parse or render", cause, routeerror.Details{
			"source":     source,
			"suggestion": hint,
		})
}

// suggestionFor keys a human hint off common substrings in the underlying
// parse error, per spec.md §4.2.
func suggestionFor(msg string) string {
	switch {
	case strings.Contains(msg, "unexpected token"):
		return "check for a missing {{ or }} delimiter"
	case strings.Contains(msg, "Unknown filter"):
		return "only join, numbered, default, capitalize, upcase, downcase and size are supported"
	case strings.Contains(msg, "EOF"):
		return "a block tag (if/for) was opened but never closed"
	default:
		return ""
	}
}

func checkFilters(nodes []node) error {
	for _, n := range nodes {
		if err := checkFiltersInNode(n); err != nil {
			return err
		}
	}
	return nil
}

func checkFiltersInNode(n node) error {
	switch v := n.(type) {
	case *outputNode:
		for _, f := range v.filters {
			if !isKnownFilter(f.name) {
				return fmt.Errorf("Unknown filter %q", f.name)
			}
		}
	case *ifNode:
		if err := checkFilters(v.thenNodes); err != nil {
			return err
		}
		if err := checkFilters(v.elseNodes); err != nil {
			return err
		}
	case *forNode:
		if err := checkFilters(v.body); err != nil {
			return err
		}
	}
	return nil
}

func isKnownFilter(name string) bool {
	switch name {
	case "join", "numbered", "default", "capitalize", "upcase", "downcase", "size":
		return true
	default:
		return false
	}
}
