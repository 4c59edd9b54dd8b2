// Selector (§4.7): ordered range scan + predicate evaluation + skip/limit
// + delete-in-scan.
//
// Generalises the teacher's search.go, which streamed a sorted section
// and matched records against an in-memory predicate with a hard limit —
// george's Selector walks an index's own ordering (the disk engine's
// digit-DP traversal, or the sequence engine's linear sweep) instead of a
// binary-searched section, and evaluates a tree of conditions against the
// JSON document decoded from each candidate's content-log frame.
package george

import (
	"fmt"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// ConditionOp is one Selector condition's comparison operator.
type ConditionOp string

const (
	OpEq      ConditionOp = "eq"
	OpNe      ConditionOp = "ne"
	OpLt      ConditionOp = "lt"
	OpLe      ConditionOp = "le"
	OpGt      ConditionOp = "gt"
	OpGe      ConditionOp = "ge"
	OpLike    ConditionOp = "like"
	OpIsNull  ConditionOp = "isnull"
	OpNotNull ConditionOp = "notnull"
)

// Condition is one leaf of the Selector's predicate tree: a field path, an
// operator, and (for every op but isnull/notnull) a literal to compare
// against.
type Condition struct {
	Param string      `json:"Param"`
	Cond  ConditionOp `json:"Cond"`
	Value any         `json:"Value,omitempty"`
}

// SortSpec names the index governing traversal order and its direction.
type SortSpec struct {
	Param string `json:"Param"`
	Asc   bool   `json:"Asc"`
}

// Selector is the wire shape of a select/delete-by-query request (§6).
// Conditions are conjoined (all must pass). Sort.Param selects which
// index to walk; when it names no existing index, the scan falls back to
// the view's primary index but Sort.Asc still governs direction.
type Selector struct {
	Conditions []Condition `json:"Conditions"`
	Sort       SortSpec    `json:"Sort"`
	Skip       uint64      `json:"Skip"`
	Limit      uint64      `json:"Limit"`
}

// ParseSelector decodes a Selector from its wire JSON form.
func ParseSelector(data []byte) (Selector, error) {
	var sel Selector
	if err := json.Unmarshal(data, &sel); err != nil {
		return Selector{}, fmt.Errorf("%w: selector: %v", ErrConditionInvalid, err)
	}
	return sel, nil
}

// Hit is one record produced by a select: its user key and decoded value.
type Hit struct {
	Key   UserKey
	Value []byte
}

// Select evaluates sel against dbName/viewName and returns every matching
// record, honoring skip/limit (§4.7 evaluation protocol). Select never
// mutates the store; SelectAndDelete is the deleting variant.
func (e *Engine) Select(dbName, viewName string, sel Selector) ([]Hit, error) {
	return e.selectImpl(dbName, viewName, sel, false)
}

// SelectAndDelete evaluates sel exactly as Select does, additionally
// staging a delete for every matching record through a fresh seed. Per
// §4.7 step 4, deletes are applied only after the scan itself completes,
// so they can never perturb the scan's own cursor.
func (e *Engine) SelectAndDelete(dbName, viewName string, sel Selector) ([]Hit, error) {
	return e.selectImpl(dbName, viewName, sel, true)
}

func (e *Engine) selectImpl(dbName, viewName string, sel Selector, del bool) ([]Hit, error) {
	v, err := e.openView(dbName, viewName)
	if err != nil {
		return nil, err
	}

	engName := primaryIndexName
	if sel.Sort.Param != "" {
		if _, ok := v.indexes[sel.Sort.Param]; ok {
			engName = sel.Sort.Param
		}
	}
	eng, err := v.engine(engName)
	if err != nil {
		return nil, err
	}

	conds, err := compileConditions(sel.Conditions)
	if err != nil {
		return nil, err
	}

	var (
		out      []Hit
		total    uint64
		count    uint64
		skip     = sel.Skip
		limit    = sel.Limit
		limited  = sel.Limit > 0
		deleting []UserKey
	)

	visit := func(h HashKey, rec RecordEntry) (bool, error) {
		key, value, _, err := v.log.readFrame(rec.ViewVersion, rec.Len, rec.Offset)
		if err != nil {
			return true, nil // a stale/unreachable frame is skipped, not fatal
		}
		total++

		ok, err := evalConditions(conds, value)
		if err != nil {
			return false, err
		}
		if !ok {
			return true, nil
		}

		if skip > 0 {
			skip--
			return true, nil
		}

		out = append(out, Hit{Key: UserKey(append([]byte(nil), key...)), Value: append([]byte(nil), value...)})
		count++
		if del {
			deleting = append(deleting, UserKey(append([]byte(nil), key...)))
		}
		if limited {
			limit--
			if limit == 0 {
				return false, nil
			}
		}
		return true, nil
	}

	if err := eng.rangeScan(sel.Sort.Asc, 0, 0, visit); err != nil {
		return nil, err
	}

	// Deletes run through the same Remove path a direct call would use, one
	// key at a time, after the scan itself has fully completed (§4.7 step
	// 4): deleting() holds every matched record's primary key, not a key
	// scoped to the index being scanned, so unlinking it has to go through
	// every index on the view (primary, increment, and any other
	// secondary), exactly what Remove already does.
	if del && len(deleting) > 0 {
		for _, k := range deleting {
			if err := e.Remove(dbName, viewName, k); err != nil && !isNotFound(err) {
				return out, err
			}
		}
	}

	return out, nil
}

// compiledCondition pre-splits a Param path so evalConditions does not
// re-split it once per candidate record.
type compiledCondition struct {
	path []string
	op   ConditionOp
	val  any
}

func compileConditions(conds []Condition) ([]compiledCondition, error) {
	out := make([]compiledCondition, 0, len(conds))
	for _, c := range conds {
		switch c.Cond {
		case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe, OpLike, OpIsNull, OpNotNull:
		default:
			return nil, fmt.Errorf("%w: unknown condition op %q", ErrConditionInvalid, c.Cond)
		}
		out = append(out, compiledCondition{path: strings.Split(c.Param, "."), op: c.Cond, val: c.Value})
	}
	return out, nil
}

// evalConditions decodes value as a JSON document and applies every
// compiled condition as a conjunction: all must pass.
func evalConditions(conds []compiledCondition, value []byte) (bool, error) {
	if len(conds) == 0 {
		return true, nil
	}
	var doc map[string]any
	if err := json.Unmarshal(value, &doc); err != nil {
		return false, nil // not a JSON document: no condition can match a field in it
	}
	for _, c := range conds {
		ok, err := evalOne(c, doc)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func evalOne(c compiledCondition, doc map[string]any) (bool, error) {
	field, found := lookupPath(doc, c.path)
	switch c.op {
	case OpIsNull:
		return !found || field == nil, nil
	case OpNotNull:
		return found && field != nil, nil
	}
	if !found {
		return false, nil
	}
	switch c.op {
	case OpEq:
		return compareEq(field, c.val), nil
	case OpNe:
		return !compareEq(field, c.val), nil
	case OpLike:
		return strings.Contains(toString(field), toString(c.val)), nil
	default:
		cmp, ok := compareOrdered(field, c.val)
		if !ok {
			return false, fmt.Errorf("%w: cannot compare %v to %v", ErrConditionInvalid, field, c.val)
		}
		switch c.op {
		case OpLt:
			return cmp < 0, nil
		case OpLe:
			return cmp <= 0, nil
		case OpGt:
			return cmp > 0, nil
		case OpGe:
			return cmp >= 0, nil
		}
	}
	return false, fmt.Errorf("%w: unhandled op %q", ErrConditionInvalid, c.op)
}

func lookupPath(doc map[string]any, path []string) (any, bool) {
	var cur any = doc
	for _, seg := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func compareEq(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	return toString(a) == toString(b)
}

// compareOrdered returns (cmp, true) when a and b can be ordered: a<b -1,
// a==b 0, a>b 1. Numeric fields compare numerically; otherwise lexically.
func compareOrdered(a, b any) (int, bool) {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			switch {
			case af < bf:
				return -1, true
			case af > bf:
				return 1, true
			default:
				return 0, true
			}
		}
	}
	as, bs := toString(a), toString(b)
	switch {
	case as < bs:
		return -1, true
	case as > bs:
		return 1, true
	default:
		return 0, true
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// decodeIndexField decodes value as a JSON document and extracts the field
// named path, returning it formatted the same way a caller would supply it
// as a UserKey (e.g. a float64 age of 30 becomes "30"). Used by the write
// path to derive a secondary index's key straight from the record being
// written, rather than requiring a caller to maintain it separately.
func decodeIndexField(value []byte, path string) (UserKey, bool) {
	var doc map[string]any
	if err := json.Unmarshal(value, &doc); err != nil {
		return nil, false
	}
	fv, ok := doc[path]
	if !ok || fv == nil {
		return nil, false
	}
	return UserKey(toString(fv)), true
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
