package compiler

import (
	"errors"
	"fmt"
	"sort"

	ir "github.com/PhucNguyen204/rubricfeed/filterengine"
	"github.com/PhucNguyen204/rubricfeed/filterengine/accessor"
	"github.com/PhucNguyen204/rubricfeed/filterengine/matcher"
)

// FieldGetter: nguồn giá trị field cho rule (thường là *accessor.Accessor).
type FieldGetter interface {
	Get(rec ir.Record, key string) (any, error)
}

// -------------------- Compiler --------------------

// Compiler biên dịch filter spec cho một họ record (một accessor + một registry).
type Compiler struct {
	fields   FieldGetter
	cfg      ir.EngineConfig
	registry *matcher.Registry
}

type Option func(*Compiler)

func WithConfig(cfg ir.EngineConfig) Option {
	return func(c *Compiler) { c.cfg = cfg }
}

// WithRegistry thay registry mặc định (vd bật rule type date cho một số key).
func WithRegistry(r *matcher.Registry) Option {
	return func(c *Compiler) { c.registry = r }
}

// New tạo compiler; fields nil => accessor.Plain().
func New(fields FieldGetter, opts ...Option) *Compiler {
	if fields == nil {
		fields = accessor.Plain()
	}
	c := &Compiler{fields: fields, cfg: ir.DefaultEngineConfig()}
	for _, o := range opts {
		o(c)
	}
	if c.registry == nil {
		c.registry = matcher.NewRegistry(matcher.DefaultConfig().WithMatchTimeout(c.cfg.MatchTimeout))
	}
	return c
}

func (c *Compiler) Config() ir.EngineConfig { return c.cfg }
func (c *Compiler) Registry() *matcher.Registry { return c.registry }

// CompileFilter: unfold key list, gộp tham số mặc định, dựng rule bundle cho từng key.
func (c *Compiler) CompileFilter(spec ir.FilterSpec) (*CompiledFilter, error) {
	if err := c.cfg.Validate(); err != nil {
		return nil, err
	}
	rel := spec.EffectiveRelation()
	if !rel.Valid() {
		return nil, &SpecError{Path: "relation", Msg: fmt.Sprintf("unknown relation %q", spec.Relation)}
	}
	if len(spec.Rules) == 0 {
		return nil, &SpecError{Path: "rules", Msg: "at least one rule is required"}
	}

	threshold := c.cfg.RatioThreshold
	if spec.Threshold != nil {
		threshold = *spec.Threshold
		if threshold < 0 || threshold > 1 {
			return nil, &SpecError{Path: "threshold", Msg: fmt.Sprintf("must be within [0,1], got %v", threshold)}
		}
	}

	get := c.fields.Get
	cf := &CompiledFilter{relation: rel, threshold: threshold, missing: c.cfg.Missing}
	for i, rs := range spec.Rules {
		if len(rs.Key) == 0 {
			return nil, &SpecError{Path: fmt.Sprintf("rules[%d].key", i), Msg: "key is required"}
		}
		for _, single := range rs.Unfold() {
			single = single.WithDefaults(c.cfg.DefaultArguments)
			b, err := c.registry.Bundle(single, get)
			if err != nil {
				return nil, fmt.Errorf("rules[%d] %s: %w", i, single.SingleKey(), err)
			}
			cf.bundles = append(cf.bundles, b)
		}
	}
	return cf, nil
}

// CompileFilterDocument nhận filter ở dạng tài liệu JSON/YAML đã decode.
func (c *Compiler) CompileFilterDocument(doc any) (*CompiledFilter, error) {
	spec, err := ParseFilterSpec(doc)
	if err != nil {
		return nil, err
	}
	return c.CompileFilter(spec)
}

// CompileFilters biên dịch cả một bảng filter có tên (theo thứ tự tên), dừng ở lỗi đầu tiên.
func (c *Compiler) CompileFilters(docs map[string]any) (map[string]*CompiledFilter, error) {
	names := make([]string, 0, len(docs))
	for n := range docs {
		names = append(names, n)
	}
	sort.Strings(names)

	out := make(map[string]*CompiledFilter, len(docs))
	for _, n := range names {
		cf, err := c.CompileFilterDocument(docs[n])
		if err != nil {
			return nil, fmt.Errorf("filter %q: %w", n, err)
		}
		out[n] = cf
	}
	return out, nil
}

// -------------------- CompiledFilter --------------------

// CompiledFilter bất biến sau khi compile, dùng chung giữa nhiều goroutine.
type CompiledFilter struct {
	relation  ir.Relation
	threshold float64
	bundles   []*matcher.Bundle
	missing   ir.MissingPolicy
}

func (f *CompiledFilter) Relation() ir.Relation { return f.relation }
func (f *CompiledFilter) Threshold() float64 { return f.threshold }
func (f *CompiledFilter) Len() int { return len(f.bundles) }
func (f *CompiledFilter) Bundles() []*matcher.Bundle { return append([]*matcher.Bundle(nil), f.bundles...) }

// Predicate trả về filter dưới dạng predicate để dùng trong biểu thức.
func (f *CompiledFilter) Predicate() Predicate { return f.Evaluate }

func (f *CompiledFilter) check(b *matcher.Bundle, rec ir.Record) (bool, error) {
	ok, err := b.Check(rec)
	if err != nil {
		if f.missing == ir.MissingSkip && errors.Is(err, accessor.ErrMissingField) {
			return false, nil
		}
		return false, err
	}
	return ok, nil
}

// Evaluate kết hợp kết quả các bundle theo relation, dừng sớm khi đã biết kết quả.
func (f *CompiledFilter) Evaluate(rec ir.Record) (bool, error) {
	switch f.relation {
	case ir.RelationAnd:
		for _, b := range f.bundles {
			ok, err := f.check(b, rec)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil

	case ir.RelationRatio:
		total := float64(len(f.bundles))
		satisfied := 0
		for i, b := range f.bundles {
			ok, err := f.check(b, rec)
			if err != nil {
				return false, err
			}
			if ok {
				satisfied++
			}
			if float64(satisfied)/total >= f.threshold {
				return true, nil
			}
			remaining := len(f.bundles) - i - 1
			if float64(satisfied+remaining)/total < f.threshold {
				return false, nil
			}
		}
		return false, nil

	default:
		for _, b := range f.bundles {
			ok, err := f.check(b, rec)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}
}
