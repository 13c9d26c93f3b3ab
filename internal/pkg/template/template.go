// Package template renders {{dotted.path}} placeholders against a nested
// key/value context. Rendering happens once, at enqueue time; the package has
// no access to the queue or the network.
package template

import (
	"fmt"
	"regexp"
	"strings"
)

var tokenRe = regexp.MustCompile(`\{\{([a-zA-Z_][a-zA-Z0-9_]*(?:\.[a-zA-Z_][a-zA-Z0-9_]*)*)\}\}`)

// Render substitutes every {{path.to.value}} token with the value found by
// walking the dotted path into data. Unresolved tokens (missing key, nil
// value) are left verbatim so misconfiguration stays visible instead of
// silently dropping text.
func Render(tpl string, data map[string]any) string {
	if tpl == "" || !strings.Contains(tpl, "{{") {
		return tpl
	}
	return tokenRe.ReplaceAllStringFunc(tpl, func(token string) string {
		path := token[2 : len(token)-2]
		v, ok := lookup(data, strings.Split(path, "."))
		if !ok || v == nil {
			return token
		}
		return fmt.Sprintf("%v", v)
	})
}

// RenderMap renders every string value in m, descending into nested maps.
// Non-string values pass through untouched.
func RenderMap(m map[string]any, data map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch t := v.(type) {
		case string:
			out[k] = Render(t, data)
		case map[string]any:
			out[k] = RenderMap(t, data)
		default:
			out[k] = v
		}
	}
	return out
}

func lookup(data map[string]any, path []string) (any, bool) {
	var cur any = data
	for _, seg := range path {
		switch m := cur.(type) {
		case map[string]any:
			v, ok := m[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case map[string]string:
			v, ok := m[seg]
			if !ok {
				return nil, false
			}
			cur = v
		default:
			return nil, false
		}
	}
	return cur, true
}
