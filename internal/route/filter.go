// Package route implements the Route Matcher (spec.md §4.5): an index of
// routes by source, and a predicate-tree evaluator shared with the filter
// transform (spec.md §4.6).
//
// The evaluator's shape — a small recursive-descent match over dot-path
// keys resolved against event data — is grounded on the teacher's edge
// condition language (internal/attractor/cond/cond.go), generalized from
// cond's flat AND-only string grammar to a JSON-shaped predicate tree with
// match/exclude combinators and five leaf operators.
package route

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/orgloop/engine/internal/model"
)

// Evaluate reports whether event satisfies node (spec.md §4.5).
func Evaluate(node model.FilterNode, event model.Event) (bool, error) {
	if isZero(node) {
		return true, nil
	}
	if node.IsLeaf() {
		return evalLeaf(node, event)
	}
	if len(node.Match) > 0 {
		for _, child := range node.Match {
			ok, err := Evaluate(child, event)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
	}
	if len(node.Exclude) > 0 {
		for _, child := range node.Exclude {
			ok, err := Evaluate(child, event)
			if err != nil {
				return false, err
			}
			if ok {
				return false, nil
			}
		}
	}
	return true, nil
}

func isZero(n model.FilterNode) bool {
	return n.Op == "" && len(n.Match) == 0 && len(n.Exclude) == 0
}

func evalLeaf(node model.FilterNode, event model.Event) (bool, error) {
	val, exists := ResolvePath(event, node.Key)
	switch node.Op {
	case "exists":
		want, _ := node.Value.(bool)
		if node.Value == nil {
			want = true
		}
		return exists == want, nil
	case "equals":
		return exists && compareEqual(val, node.Value), nil
	case "not_equals":
		return !exists || !compareEqual(val, node.Value), nil
	case "in":
		if !exists {
			return false, nil
		}
		list, ok := node.Value.([]any)
		if !ok {
			return false, fmt.Errorf("route: %q operator requires a list value", node.Op)
		}
		for _, item := range list {
			if compareEqual(val, item) {
				return true, nil
			}
		}
		return false, nil
	case "matches":
		if !exists {
			return false, nil
		}
		pattern, ok := node.Value.(string)
		if !ok {
			return false, fmt.Errorf("route: %q operator requires a string pattern", node.Op)
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false, fmt.Errorf("route: invalid regex %q: %w", pattern, err)
		}
		return re.MatchString(fmt.Sprint(val)), nil
	default:
		return false, fmt.Errorf("route: unknown filter operator %q", node.Op)
	}
}

func compareEqual(a, b any) bool {
	// Normalize through JSON-ish string comparison for cross-type literals
	// (YAML ints vs JSON float64, etc.), matching the loose comparison the
	// teacher's cond package performs over stringified values.
	return stringify(a) == stringify(b)
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

// ResolvePath resolves a dot-path key against the full event (e.g.
// "provenance.platform_event", "payload.pr_number") per spec.md §4.5. It is
// exported for reuse by the enrich and dedup transforms.
func ResolvePath(event model.Event, key string) (any, bool) {
	root := eventToMap(event)
	parts := strings.Split(key, ".")
	var cur any = root
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[p]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// eventToMap renders the event through its JSON shape so dot-paths resolve
// uniformly regardless of Go struct field names vs wire field names.
func eventToMap(event model.Event) map[string]any {
	b, err := json.Marshal(event)
	if err != nil {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return map[string]any{}
	}
	return m
}
