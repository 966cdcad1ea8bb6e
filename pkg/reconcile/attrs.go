package reconcile

import (
	"reflect"

	"github.com/vango-dev/weft/pkg/tree"
)

// diffAttrs compares two resolved attribute lists. When a name repeats, the
// last value wins.
func diffAttrs(prev, next []tree.Attr) (set []tree.Attr, removed []string) {
	if len(prev) == 0 && len(next) == 0 {
		return nil, nil
	}
	before := make(map[string]any, len(prev))
	for _, a := range prev {
		before[a.Name] = a.Value
	}
	after := make(map[string]int, len(next))
	for i, a := range next {
		after[a.Name] = i
	}

	for i, a := range next {
		if after[a.Name] != i {
			continue
		}
		v, ok := before[a.Name]
		if !ok || !valuesEqual(v, a.Value) {
			set = append(set, a)
		}
	}
	for _, a := range prev {
		if _, ok := after[a.Name]; !ok {
			removed = append(removed, a.Name)
			after[a.Name] = -1
		}
	}
	return set, removed
}

func valuesEqual(a, b any) bool {
	// Fast path for common types
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case int:
		bv, ok := b.(int)
		return ok && av == bv
	case int64:
		bv, ok := b.(int64)
		return ok && av == bv
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case nil:
		return b == nil
	}
	return reflect.DeepEqual(a, b)
}
