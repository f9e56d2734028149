package rubric

import (
	"fmt"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/spf13/cast"

	ir "github.com/PhucNguyen204/rubricfeed/filterengine"
	"github.com/PhucNguyen204/rubricfeed/filterengine/accessor"
	"github.com/PhucNguyen204/rubricfeed/filterengine/matcher"
)

const hoursInDay = 24

// Family gom mọi cấu hình của họ record "feed entry".
type Family struct {
	Fields *accessor.Accessor
	Rules  matcher.Config
	Engine ir.EngineConfig
}

func entryAliases() map[string]string {
	return map[string]string{
		"feed":    "_feed",
		"added":   "_added",
		"title":   "title.value",
		"summary": "summary.value",
	}
}

func entryDefaults() map[string]any {
	return map[string]any{
		"title":   map[string]any{"value": ""},
		"summary": map[string]any{"value": ""},
	}
}

func entryDateKeys() []string { return []string{"updated", "published"} }

// NewEntryFamily dựng accessor + registry config cho feed entry.
// now nil => time.Now.
func NewEntryFamily(fields FieldsSpec, feeds map[string]FeedSpec, now func() time.Time) (*Family, error) {
	if now == nil {
		now = time.Now
	}

	aliases := entryAliases()
	for k, v := range fields.Aliases {
		aliases[k] = v
	}
	defaults := entryDefaults()
	for k, v := range fields.Defaults {
		defaults[k] = v
	}

	virtuals := map[string]accessor.VirtualFn{
		"usertags":  usertagsOf(feeds),
		"age":       ageOf("updated", now),
		"added_ago": ageOf("_added", now),
	}
	for _, name := range sortedKeys(fields.Virtuals) {
		if _, builtin := virtuals[name]; builtin {
			return nil, fmt.Errorf("virtual field %q is built in", name)
		}
		fn, err := compileVirtual(name, fields.Virtuals[name])
		if err != nil {
			return nil, err
		}
		virtuals[name] = fn
	}

	rules := matcher.DefaultConfig()
	if len(fields.RuleTypes) > 0 {
		types, err := parseRuleTypes(fields.RuleTypes)
		if err != nil {
			return nil, err
		}
		rules.Types = types
	}
	rules = rules.WithDate(append(entryDateKeys(), fields.DateKeys...)...)
	engine := ir.DefaultEngineConfig().WithIgnoreCase(true)
	rules = rules.WithMatchTimeout(engine.MatchTimeout)

	return &Family{
		Fields: accessor.New(accessor.Config{Aliases: aliases, Virtuals: virtuals, Defaults: defaults}),
		Rules:  rules,
		Engine: engine,
	}, nil
}

func parseRuleTypes(names []string) ([]matcher.RuleType, error) {
	out := make([]matcher.RuleType, 0, len(names))
	seen := make(map[matcher.RuleType]bool, len(names))
	for _, name := range names {
		t, err := matcher.ParseRuleType(name)
		if err != nil {
			return nil, fmt.Errorf("fields.rule_types: %w", err)
		}
		if seen[t] {
			return nil, fmt.Errorf("fields.rule_types: %s listed twice", t)
		}
		seen[t] = true
		out = append(out, t)
	}
	return out, nil
}

func usertagsOf(feeds map[string]FeedSpec) accessor.VirtualFn {
	return func(rec ir.Record) (any, error) {
		name, ok := rec["_feed"].(string)
		if !ok {
			return nil, &accessor.MissingFieldError{Key: "usertags", Path: "_feed", Segment: "_feed"}
		}
		tags := feeds[name].Usertags
		out := make([]any, len(tags))
		for i, t := range tags {
			out[i] = t
		}
		return out, nil
	}
}

// ageOf: số ngày tròn kể từ thời điểm ghi trong field.
func ageOf(field string, now func() time.Time) accessor.VirtualFn {
	return func(rec ir.Record) (any, error) {
		raw, ok := rec[field]
		if !ok || raw == nil {
			return nil, &accessor.MissingFieldError{Key: field, Path: field, Segment: field}
		}
		t, err := cast.ToTimeE(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", field, err)
		}
		return int(now().Sub(t).Hours() / hoursInDay), nil
	}
}

func compileVirtual(name, src string) (accessor.VirtualFn, error) {
	program, err := expr.Compile(src, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("virtual field %q: %w", name, err)
	}
	return func(rec ir.Record) (any, error) {
		return runProgram(program, rec)
	}, nil
}

func runProgram(program *vm.Program, rec ir.Record) (any, error) {
	out, err := vm.Run(program, map[string]any(rec))
	if err != nil {
		return nil, err
	}
	return out, nil
}
