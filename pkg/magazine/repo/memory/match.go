package memory

import (
	"time"

	"github.com/tendant/college-magazine/pkg/magazine"
)

// typeRank orders values of different kinds: null first, then numbers,
// strings, booleans and times.
func typeRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case int, int32, int64, float32, float64:
		return 1
	case string:
		return 2
	case bool:
		return 3
	case time.Time:
		return 4
	default:
		return 5
	}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	case float64:
		return n
	}
	return 0
}

// compareValues returns -1, 0 or 1. Missing fields compare as null.
func compareValues(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}

	switch x := a.(type) {
	case nil:
		return 0
	case string:
		y := b.(string)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		}
		return 1
	case time.Time:
		return x.Compare(b.(time.Time))
	}

	if ra == 1 {
		fa, fb := toFloat(a), toFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	return 0
}

// matches applies document-store semantics: equality with null matches a
// missing field, range operators only match values of the same kind.
func matches(doc magazine.Document, conds []magazine.Condition) bool {
	for _, c := range conds {
		v := doc[c.Field]
		if t, ok := c.Value.(time.Time); ok {
			c.Value = t.UTC()
		}
		sameKind := typeRank(v) == typeRank(c.Value)

		var ok bool
		switch c.Op {
		case magazine.OpEq:
			ok = sameKind && compareValues(v, c.Value) == 0
		case magazine.OpNe:
			ok = !sameKind || compareValues(v, c.Value) != 0
		case magazine.OpGt:
			ok = sameKind && v != nil && compareValues(v, c.Value) > 0
		case magazine.OpGte:
			ok = sameKind && v != nil && compareValues(v, c.Value) >= 0
		case magazine.OpLt:
			ok = sameKind && v != nil && compareValues(v, c.Value) < 0
		case magazine.OpLte:
			ok = sameKind && v != nil && compareValues(v, c.Value) <= 0
		}
		if !ok {
			return false
		}
	}
	return true
}
