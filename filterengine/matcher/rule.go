package matcher

import (
	"fmt"
	"sync/atomic"
	"time"

	ir "github.com/PhucNguyen204/rubricfeed/filterengine"
)

// Rule là một rule type đã dựng cho một rule spec; bất biến, dùng lại cho mọi record.
type Rule struct {
	typ        RuleType
	key        string
	opcode     string
	invert     bool
	fold       bool
	op         OperatorFn
	operand    any
	hasOperand bool
	get        Getter
	valueKinds kindSet
	keyed      bool

	// chỉ dùng cho date
	parseDate DateParser
	memo      *dateMemo
}

func (r *Rule) Type() RuleType { return r.typ }
func (r *Rule) Key() string { return r.key }
func (r *Rule) Operator() string { return r.opcode }
func (r *Rule) Inverted() bool { return r.invert }

func (r *Rule) String() string {
	neg := ""
	if r.invert {
		neg = "not "
	}
	return fmt.Sprintf("%s(%s %s%s)", r.typ, r.key, neg, r.opcode)
}

// Relevance tính mức phù hợp của rule với record.
func (r *Rule) Relevance(rec ir.Record) (Relevance, error) {
	v, err := r.get(rec, r.key)
	if err != nil {
		return Inapplicable, err
	}
	return r.relevanceOf(v), nil
}

// Check đánh giá rule trên record (không qua relevance resolver).
func (r *Rule) Check(rec ir.Record) (bool, error) {
	v, err := r.get(rec, r.key)
	if err != nil {
		return false, err
	}
	return r.checkValue(v)
}

func (r *Rule) relevanceOf(v any) Relevance {
	if !r.valueKinds.has(ir.KindOf(v)) {
		return Inapplicable
	}
	lvl := TypeMatching
	if r.keyed {
		lvl |= KeyMatching
	}
	if r.typ == RuleDate {
		if _, err := r.parsedValue(v); err == nil {
			lvl |= ValueMatching
		}
	}
	return lvl
}

func (r *Rule) checkValue(v any) (bool, error) {
	if r.typ == RuleDate {
		t, err := r.parsedValue(v)
		if err != nil {
			return false, fmt.Errorf("%s: %w", r, err)
		}
		v = t
	}
	operand := r.operand
	if !r.hasOperand {
		operand = emptyOf(v)
	}
	if r.fold {
		v = foldCase(v)
	}
	ok, err := r.op(v, operand)
	if err != nil {
		return false, fmt.Errorf("%s: %w", r, err)
	}
	if r.invert {
		ok = !ok
	}
	return ok, nil
}

// -------------------- date memo --------------------

// dateMemo nhớ giá trị thô vừa parse gần nhất (một slot, không khoá).
type dateMemo struct {
	last   atomic.Pointer[memoEntry]
	parses atomic.Int64
}

type memoEntry struct {
	raw    string
	parsed time.Time
	err    error
}

func (r *Rule) parsedValue(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		if e := r.memo.last.Load(); e != nil && e.raw == t {
			return e.parsed, e.err
		}
		parsed, err := r.parseDate(t)
		r.memo.parses.Add(1)
		r.memo.last.Store(&memoEntry{raw: t, parsed: parsed, err: err})
		return parsed, err
	}
	return time.Time{}, fmt.Errorf("date value must be a string or time, got %s", ir.KindOf(v))
}

// ParseCount trả về số lần parser date thực sự được gọi (0 với rule khác date).
func (r *Rule) ParseCount() int64 {
	if r.memo == nil {
		return 0
	}
	return r.memo.parses.Load()
}
