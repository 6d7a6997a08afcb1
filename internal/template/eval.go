package template

import (
	"fmt"
	"reflect"
	"strings"
)

func renderNodes(nodes []node, vars map[string]interface{}, out *strings.Builder) error {
	for _, n := range nodes {
		if err := renderNode(n, vars, out); err != nil {
			return err
		}
	}
	return nil
}

func renderNode(n node, vars map[string]interface{}, out *strings.Builder) error {
	switch v := n.(type) {
	case *textNode:
		out.WriteString(v.text)
		return nil
	case *outputNode:
		val := lookup(vars, v.operand)
		for _, f := range v.filters {
			var err error
			val, err = applyFilter(f, val, vars)
			if err != nil {
				return err
			}
		}
		out.WriteString(stringify(val))
		return nil
	case *ifNode:
		truthy := isTruthy(lookup(vars, v.cond))
		if v.negate {
			truthy = !truthy
		}
		if truthy {
			return renderNodes(v.thenNodes, vars, out)
		}
		return renderNodes(v.elseNodes, vars, out)
	case *forNode:
		items := asSlice(lookup(vars, v.list))
		for _, item := range items {
			scope := make(map[string]interface{}, len(vars)+1)
			for k, val := range vars {
				scope[k] = val
			}
			scope[v.varName] = item
			if err := renderNodes(v.body, scope, out); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unexpected token %T", n)
	}
}

// lookup resolves a dotted path against variables. Missing variables resolve
// to nil, which stringify renders as "" (non-strict variables, spec.md §4.2).
func lookup(vars map[string]interface{}, p path) interface{} {
	if len(p) == 0 {
		return nil
	}
	cur, ok := vars[p[0]]
	if !ok {
		return nil
	}
	for _, seg := range p[1:] {
		cur, ok = dig(cur, seg)
		if !ok {
			return nil
		}
	}
	return cur
}

func dig(v interface{}, key string) (interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		val, ok := m[key]
		return val, ok
	default:
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Map {
			mv := rv.MapIndex(reflect.ValueOf(key))
			if !mv.IsValid() {
				return nil, false
			}
			return mv.Interface(), true
		}
		return nil, false
	}
}

func resolveValue(e valueExpr, vars map[string]interface{}) interface{} {
	if e.isLiteral {
		return e.literal
	}
	return lookup(vars, e.ref)
}

func isTruthy(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0
	default:
		return asSlice(v) != nil || v != nil
	}
}

func asSlice(v interface{}) []interface{} {
	if v == nil {
		return nil
	}
	if s, ok := v.([]interface{}); ok {
		return s
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil
	}
	out := make([]interface{}, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

func stringify(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	case float64:
		if x == float64(int64(x)) {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprintf("%g", x)
	default:
		return fmt.Sprintf("%v", x)
	}
}
