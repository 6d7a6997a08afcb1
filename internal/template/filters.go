package template

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"
)

// applyFilter evaluates one named filter in a pipe chain. Unknown filter
// names are a no-op at render time; the config validator is the only place
// that rejects them (ParseStrict / checkFilters).
func applyFilter(f filterCall, val interface{}, vars map[string]interface{}) (interface{}, error) {
	arg := func(def interface{}) interface{} {
		if len(f.args) == 0 {
			return def
		}
		return resolveValue(f.args[0], vars)
	}

	switch f.name {
	case "join":
		sep := fmt.Sprintf("%v", arg(", "))
		items := asSlice(val)
		if items == nil {
			return val, nil
		}
		parts := make([]string, len(items))
		for i, it := range items {
			parts[i] = stringify(it)
		}
		return strings.Join(parts, sep), nil

	case "numbered":
		prefix := fmt.Sprintf("%v", arg("  "))
		items := asSlice(val)
		if items == nil {
			return val, nil
		}
		out := make([]interface{}, len(items))
		for i, it := range items {
			out[i] = fmt.Sprintf("%s%d. %s", prefix, i+1, stringify(it))
		}
		return out, nil

	case "default":
		fallback := arg(nil)
		if val == nil {
			return fallback, nil
		}
		if s, ok := val.(string); ok && s == "" {
			return fallback, nil
		}
		return val, nil

	case "capitalize":
		s, ok := val.(string)
		if !ok || s == "" {
			return val, nil
		}
		r, size := utf8.DecodeRuneInString(s)
		return string(unicode.ToUpper(r)) + s[size:], nil

	case "upcase":
		s, ok := val.(string)
		if !ok {
			return val, nil
		}
		return strings.ToUpper(s), nil

	case "downcase":
		s, ok := val.(string)
		if !ok {
			return val, nil
		}
		return strings.ToLower(s), nil

	case "size":
		return float64(sizeOf(val)), nil

	default:
		return val, nil
	}
}

func sizeOf(val interface{}) int {
	switch v := val.(type) {
	case nil:
		return 0
	case string:
		return utf8.RuneCountInString(v)
	case []interface{}:
		return len(v)
	case map[string]interface{}:
		return len(v)
	default:
		rv := reflect.ValueOf(val)
		switch rv.Kind() {
		case reflect.Slice, reflect.Array, reflect.Map:
			return rv.Len()
		default:
			return 0
		}
	}
}
