package postgres

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/tendant/college-magazine/pkg/magazine"
)

// timeLayout is fixed width so that text order equals chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func encodeValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(timeLayout)
	}
	return v
}

// decodeValue turns stored text times back into time.Time and integral
// numbers into int64.
func decodeValue(v any) any {
	switch x := v.(type) {
	case string:
		if len(x) == len(timeLayout) {
			if t, err := time.Parse(timeLayout, x); err == nil {
				return t
			}
		}
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return int64(x)
		}
	}
	return v
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int32, int64, float32, float64:
		return true
	}
	return false
}

var rangeOps = map[magazine.Op]string{
	magazine.OpGt:  ">",
	magazine.OpGte: ">=",
	magazine.OpLt:  "<",
	magazine.OpLte: "<=",
}

// buildWhere renders filter as a WHERE clause. $1 is always the collection.
func buildWhere(collection string, filter magazine.Filter) (string, []any, error) {
	args := []any{collection}
	clauses := []string{"collection = $1"}

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	for _, c := range filter.Conditions() {
		value := encodeValue(c.Value)

		if c.Field == magazine.IDField && value != nil {
			id, ok := value.(string)
			if !ok {
				return "", nil, fmt.Errorf("_id must be a string, got %T", c.Value)
			}
			switch c.Op {
			case magazine.OpEq:
				clauses = append(clauses, "id = "+arg(id))
				continue
			case magazine.OpNe:
				clauses = append(clauses, "id <> "+arg(id))
				continue
			}
		}

		switch c.Op {
		case magazine.OpEq, magazine.OpNe:
			var clause string
			if value == nil {
				f := arg(c.Field)
				clause = fmt.Sprintf("(doc->%s::text IS NULL OR doc->%s::text = 'null'::jsonb)", f, f)
			} else {
				raw, err := json.Marshal(map[string]any{c.Field: value})
				if err != nil {
					return "", nil, fmt.Errorf("failed to encode filter on %s: %w", c.Field, err)
				}
				clause = fmt.Sprintf("doc @> %s::jsonb", arg(string(raw)))
			}
			if c.Op == magazine.OpNe {
				clause = "NOT " + clause
			}
			clauses = append(clauses, clause)

		case magazine.OpGt, magazine.OpGte, magazine.OpLt, magazine.OpLte:
			op := rangeOps[c.Op]
			f := arg(c.Field)
			switch {
			case isNumber(value):
				clauses = append(clauses, fmt.Sprintf(
					"(jsonb_typeof(doc->%s::text) = 'number' AND (doc->>%s::text)::numeric %s %s::numeric)",
					f, f, op, arg(value)))
			default:
				s, ok := value.(string)
				if !ok {
					return "", nil, fmt.Errorf("unsupported range value %T on %s", c.Value, c.Field)
				}
				clauses = append(clauses, fmt.Sprintf(
					`(jsonb_typeof(doc->%s::text) = 'string' AND (doc->>%s::text) COLLATE "C" %s %s::text)`,
					f, f, op, arg(s)))
			}

		default:
			return "", nil, fmt.Errorf("unsupported filter operator %q", c.Op)
		}
	}

	return strings.Join(clauses, " AND "), args, nil
}

// buildOrderBy sorts by one document field with nulls and missing fields
// lowest, then by insertion order.
func buildOrderBy(s *magazine.Sort, args []any) (string, []any) {
	if s == nil {
		return " ORDER BY seq", args
	}
	if s.Field == magazine.IDField {
		if s.Direction == magazine.Descending {
			return " ORDER BY id DESC, seq", args
		}
		return " ORDER BY id ASC, seq", args
	}
	args = append(args, s.Field)
	dir := "ASC NULLS FIRST"
	if s.Direction == magazine.Descending {
		dir = "DESC NULLS LAST"
	}
	return fmt.Sprintf(" ORDER BY doc->$%d::text %s, seq", len(args), dir), args
}
