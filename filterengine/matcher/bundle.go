package matcher

import (
	ir "github.com/PhucNguyen204/rubricfeed/filterengine"
)

// Bundle gom mọi cách hiểu (rule type) dựng được của một rule spec.
// Mỗi record chọn đúng một rule có relevance cao nhất.
type Bundle struct {
	spec  ir.RuleSpec
	key   string
	get   Getter
	rules []*Rule
}

func (b *Bundle) Key() string { return b.key }
func (b *Bundle) Spec() ir.RuleSpec { return b.spec }
func (b *Bundle) Rules() []*Rule { return append([]*Rule(nil), b.rules...) }
func (b *Bundle) Len() int { return len(b.rules) }

// Types trả về các rule type có trong bundle.
func (b *Bundle) Types() []RuleType {
	out := make([]RuleType, len(b.rules))
	for i, r := range b.rules {
		out[i] = r.typ
	}
	return out
}

// Resolve chọn rule có relevance cao nhất (phải duy nhất) cho record.
func (b *Bundle) Resolve(rec ir.Record) (*Rule, error) {
	v, err := b.get(rec, b.key)
	if err != nil {
		return nil, err
	}
	rule, _, err := b.resolveValue(v)
	return rule, err
}

func (b *Bundle) resolveValue(v any) (*Rule, Relevance, error) {
	var best *Rule
	bestLevel := Inapplicable
	count := 0
	levels := make([]Relevance, len(b.rules))

	for i, r := range b.rules {
		lvl := r.relevanceOf(v)
		levels[i] = lvl
		switch {
		case lvl == bestLevel:
			count++
		case lvl > bestLevel:
			best, bestLevel, count = r, lvl, 1
		}
	}

	if best == nil {
		return nil, Inapplicable, &NoRelevantRuleTypeError{Key: b.key, Kind: ir.KindOf(v), Types: b.Types()}
	}
	if count > 1 {
		tied := make([]RuleType, 0, count)
		for i, r := range b.rules {
			if levels[i] == bestLevel {
				tied = append(tied, r.typ)
			}
		}
		return nil, bestLevel, &AmbiguousRelevanceError{Key: b.key, Level: bestLevel, Types: tied}
	}
	return best, bestLevel, nil
}

// Check lấy giá trị field một lần, chọn rule phù hợp nhất rồi đánh giá.
func (b *Bundle) Check(rec ir.Record) (bool, error) {
	v, err := b.get(rec, b.key)
	if err != nil {
		return false, err
	}
	rule, _, err := b.resolveValue(v)
	if err != nil {
		return false, err
	}
	return rule.checkValue(v)
}
