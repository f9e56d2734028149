package matcher

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	ir "github.com/PhucNguyen204/rubricfeed/filterengine"
	"github.com/PhucNguyen204/rubricfeed/filterengine/accessor"
	"github.com/PhucNguyen204/rubricfeed/filterengine/pattern"
)

func plainGetter() Getter {
	return accessor.Plain().Get
}

func mustBundle(t *testing.T, reg *Registry, spec ir.RuleSpec) *Bundle {
	t.Helper()
	b, err := reg.Bundle(spec, plainGetter())
	if err != nil {
		t.Fatalf("bundle %v: %v", spec, err)
	}
	return b
}

func mustCheck(t *testing.T, b *Bundle, rec ir.Record) bool {
	t.Helper()
	ok, err := b.Check(rec)
	if err != nil {
		t.Fatalf("check %v on %v: %v", b.Spec(), rec, err)
	}
	return ok
}

func TestTypePolymorphism(t *testing.T) {
	reg := NewRegistry(DefaultConfig())
	b := mustBundle(t, reg, ir.NewRuleSpec("x", "equal", 5))

	cases := []struct {
		rec      ir.Record
		want     bool
		wantType RuleType
	}{
		{ir.Record{"x": 5}, true, RuleNumeric},
		{ir.Record{"x": "5"}, true, RuleString},
		{ir.Record{"x": []any{5}}, false, RuleListAsValue},
	}
	for _, c := range cases {
		rule, err := b.Resolve(c.rec)
		if err != nil {
			t.Fatalf("resolve %v: %v", c.rec, err)
		}
		if rule.Type() != c.wantType {
			t.Fatalf("resolve %v => %v want %v", c.rec, rule.Type(), c.wantType)
		}
		if got := mustCheck(t, b, c.rec); got != c.want {
			t.Fatalf("check %v => %v want %v", c.rec, got, c.want)
		}
	}
}

func TestNoRelevantRuleType(t *testing.T) {
	reg := NewRegistry(DefaultConfig())
	b := mustBundle(t, reg, ir.NewRuleSpec("age", "gt", 5))

	if !mustCheck(t, b, ir.Record{"age": 7}) {
		t.Fatalf("7 > 5 should hold")
	}
	_, err := b.Check(ir.Record{"age": "old"})
	var nr *NoRelevantRuleTypeError
	if !errors.As(err, &nr) || nr.Kind != ir.KindString {
		t.Fatalf("expected NoRelevantRuleTypeError, got %v", err)
	}
	if !errors.Is(err, ErrNoRelevantRuleType) {
		t.Fatalf("errors.Is should match ErrNoRelevantRuleType")
	}
}

func TestAmbiguousRelevance(t *testing.T) {
	// date không giới hạn key: chuỗi không parse được vẫn khớp kiểu như rule string
	reg := NewRegistry(DefaultConfig().WithDate())
	b := mustBundle(t, reg, ir.NewRuleSpec("d", "equal", "2020-01-02"))

	_, err := b.Check(ir.Record{"d": "not a date"})
	var amb *AmbiguousRelevanceError
	if !errors.As(err, &amb) {
		t.Fatalf("expected AmbiguousRelevanceError, got %v", err)
	}
	if amb.Level != TypeMatching || len(amb.Types) != 2 {
		t.Fatalf("unexpected tie: level=%v types=%v", amb.Level, amb.Types)
	}

	// chuỗi parse được: bit value-matching phá thế hoà
	rule, err := b.Resolve(ir.Record{"d": "2020-01-02"})
	if err != nil || rule.Type() != RuleDate {
		t.Fatalf("resolve parsable date => %v,%v", rule, err)
	}
	if !mustCheck(t, b, ir.Record{"d": "2020-01-02"}) {
		t.Fatalf("date equality should hold")
	}
}

func TestKeyRestrictedDate(t *testing.T) {
	reg := NewRegistry(DefaultConfig().WithDate("updated", "published"))

	b := mustBundle(t, reg, ir.NewRuleSpec("updated", "gt", "2020-01-01"))
	rule, err := b.Resolve(ir.Record{"updated": "2021-03-04"})
	if err != nil || rule.Type() != RuleDate {
		t.Fatalf("resolve => %v,%v", rule, err)
	}
	lvl, _ := rule.Relevance(ir.Record{"updated": "2021-03-04"})
	if lvl != TypeMatching|ValueMatching|KeyMatching {
		t.Fatalf("relevance => %v", lvl)
	}
	if !mustCheck(t, b, ir.Record{"updated": "2021-03-04"}) {
		t.Fatalf("2021 > 2020 should hold")
	}
	if mustCheck(t, b, ir.Record{"updated": "2019-03-04"}) {
		t.Fatalf("2019 > 2020 must not hold")
	}

	other := mustBundle(t, reg, ir.NewRuleSpec("title", "equal", "2020-01-01"))
	for _, typ := range other.Types() {
		if typ == RuleDate {
			t.Fatalf("date rule must not be built for a disallowed key")
		}
	}
	_, err = reg.Construct(RuleDate, ir.NewRuleSpec("title", "equal", "2020-01-01"), plainGetter())
	if !errors.Is(err, ErrDisallowedKey) {
		t.Fatalf("expected ErrDisallowedKey, got %v", err)
	}
}

func TestDateMemoizesLastValue(t *testing.T) {
	parser := func(v any) (time.Time, error) {
		if tm, ok := v.(time.Time); ok {
			return tm, nil
		}
		return time.Parse("02.01.2006", v.(string))
	}
	reg := NewRegistry(DefaultConfig().WithDate("updated").WithDateParser(parser))
	b := mustBundle(t, reg, ir.NewRuleSpec("updated", "less", "01.01.2020"))

	var dateRule *Rule
	for _, r := range b.Rules() {
		if r.Type() == RuleDate {
			dateRule = r
		}
	}
	if dateRule == nil {
		t.Fatalf("date rule missing from bundle")
	}

	rec := ir.Record{"updated": "31.12.2019"}
	for i := 0; i < 3; i++ {
		if !mustCheck(t, b, rec) {
			t.Fatalf("31.12.2019 < 01.01.2020 should hold")
		}
	}
	if dateRule.ParseCount() != 1 {
		t.Fatalf("same raw value should be parsed once, got %d", dateRule.ParseCount())
	}
	mustCheck(t, b, ir.Record{"updated": "01.02.2020"})
	if dateRule.ParseCount() != 2 {
		t.Fatalf("new raw value should be parsed again, got %d", dateRule.ParseCount())
	}
}

func TestDateMemoConcurrentUse(t *testing.T) {
	reg := NewRegistry(DefaultConfig().WithDate("updated"))
	b := mustBundle(t, reg, ir.NewRuleSpec("updated", "ge", "2020-01-01"))

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				day := fmt.Sprintf("2020-01-%02d", (i+j)%28+1)
				ok, err := b.Check(ir.Record{"updated": day})
				if err != nil || !ok {
					errs <- fmt.Errorf("%s => %v,%v", day, ok, err)
					return
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent check: %v", err)
	}
}

func TestOperatorResolution(t *testing.T) {
	reg := NewRegistry(DefaultConfig())
	cases := []struct {
		spec ir.RuleSpec
		rec  ir.Record
		want bool
	}{
		{ir.NewRuleSpec("x", "ne", 5), ir.Record{"x": 5}, false},
		{ir.NewRuleSpec("x", "is_not", 5), ir.Record{"x": 6}, true},
		{ir.NewRuleSpec("x", "not_equal", 5), ir.Record{"x": 5}, false},
		{ir.NewRuleSpec("x", "not_not_equal", 5), ir.Record{"x": 5}, true},
		{ir.NewRuleSpec("x", "ne", 5).WithInvert(true), ir.Record{"x": 5}, true},
		{ir.NewRuleSpec("x", "not_gte", 5), ir.Record{"x": 4}, true},
		{ir.NewRuleSpec("x", "le", 5), ir.Record{"x": 5}, true},
		{ir.NewRuleSpec("s", "starts", "go"), ir.Record{"s": "golang"}, true},
		{ir.NewRuleSpec("s", "not_ends", "ng"), ir.Record{"s": "golang"}, false},
		{ir.NewRuleSpec("s", "in", "the golang book"), ir.Record{"s": "golang"}, true},
		{ir.NewRuleSpec("l", "include", "b"), ir.Record{"l": []any{"a", "b"}}, true},
		{ir.NewRuleSpec("l", "gt", []any{1, 2}), ir.Record{"l": []any{1, 3}}, true},
		{ir.NewRuleSpec("l", "lt", []any{1, 2}), ir.Record{"l": []any{1}}, true},
	}
	for _, c := range cases {
		b := mustBundle(t, reg, c.spec)
		if got := mustCheck(t, b, c.rec); got != c.want {
			t.Fatalf("%v on %v => %v want %v", c.spec, c.rec, got, c.want)
		}
	}
}

func TestNoApplicableRuleType(t *testing.T) {
	reg := NewRegistry(DefaultConfig())
	_, err := reg.Bundle(ir.NewRuleSpec("x", "frobnicate", 1), plainGetter())

	var na *NoApplicableRuleTypeError
	if !errors.As(err, &na) {
		t.Fatalf("expected NoApplicableRuleTypeError, got %v", err)
	}
	if len(na.Causes) != len(reg.Types()) {
		t.Fatalf("want one cause per rule type, got %d", len(na.Causes))
	}
	if !errors.Is(err, ErrUnsupportedOperator) || !errors.Is(err, ErrNoApplicableRuleType) {
		t.Fatalf("aggregated error should expose its causes: %v", err)
	}

	// operand sai kiểu cho mọi rule type có toán tử "in"
	_, err = reg.Bundle(ir.NewRuleSpec("x", "in", true), plainGetter())
	if !errors.Is(err, ErrInvalidOperandType) {
		t.Fatalf("expected ErrInvalidOperandType among causes, got %v", err)
	}
}

func TestMissingOperandDefaultsToEmpty(t *testing.T) {
	reg := NewRegistry(DefaultConfig())
	b := mustBundle(t, reg, ir.NewRuleSpecNoOperand("x", "equal"))

	cases := []struct {
		rec  ir.Record
		want bool
	}{
		{ir.Record{"x": ""}, true},
		{ir.Record{"x": "a"}, false},
		{ir.Record{"x": 0}, true},
		{ir.Record{"x": 3}, false},
		{ir.Record{"x": []any{}}, true},
		{ir.Record{"x": []any{1}}, false},
	}
	for _, c := range cases {
		if got := mustCheck(t, b, c.rec); got != c.want {
			t.Fatalf("%v => %v want %v", c.rec, got, c.want)
		}
	}

	empty := mustBundle(t, reg, ir.NewRuleSpecNoOperand("x", "not_empty"))
	if !mustCheck(t, empty, ir.Record{"x": "a"}) || mustCheck(t, empty, ir.Record{"x": []any{}}) {
		t.Fatalf("not_empty semantics")
	}

	if _, err := reg.Bundle(ir.NewRuleSpecNoOperand("x", "mentions"), plainGetter()); !errors.Is(err, ErrInvalidOperandType) {
		t.Fatalf("mentions without operand should fail, got %v", err)
	}
}

func TestBoolValues(t *testing.T) {
	reg := NewRegistry(DefaultConfig())
	isFalse := mustBundle(t, reg, ir.NewRuleSpecNoOperand("flag", "equal"))
	isTrue := mustBundle(t, reg, ir.NewRuleSpec("flag", "is", true))
	notFalse := mustBundle(t, reg, ir.NewRuleSpec("flag", "ne", false))

	cases := []struct {
		rec       ir.Record
		wantFalse bool
		wantTrue  bool
		wantNe    bool
	}{
		{ir.Record{"flag": false}, true, false, false},
		{ir.Record{"flag": true}, false, true, true},
	}
	for _, c := range cases {
		rule, err := isTrue.Resolve(c.rec)
		if err != nil {
			t.Fatalf("resolve %v: %v", c.rec, err)
		}
		if rule.Type() != RuleNumeric {
			t.Fatalf("bool value resolved to %v", rule.Type())
		}
		if got := mustCheck(t, isFalse, c.rec); got != c.wantFalse {
			t.Fatalf("equal (no operand) on %v => %v", c.rec, got)
		}
		if got := mustCheck(t, isTrue, c.rec); got != c.wantTrue {
			t.Fatalf("is true on %v => %v", c.rec, got)
		}
		if got := mustCheck(t, notFalse, c.rec); got != c.wantNe {
			t.Fatalf("ne false on %v => %v", c.rec, got)
		}
	}

	// bool không bằng số
	if mustCheck(t, isTrue, ir.Record{"flag": 1}) {
		t.Fatalf("true must not equal 1")
	}
}

func TestIgnoreCase(t *testing.T) {
	reg := NewRegistry(DefaultConfig())

	s := mustBundle(t, reg, ir.NewRuleSpec("s", "contains", "GoLang").WithIgnoreCase(true))
	if !mustCheck(t, s, ir.Record{"s": "Learning GOLANG"}) {
		t.Fatalf("ignore-case contains should hold")
	}
	cs := mustBundle(t, reg, ir.NewRuleSpec("s", "contains", "GoLang"))
	if mustCheck(t, cs, ir.Record{"s": "Learning GOLANG"}) {
		t.Fatalf("case-sensitive contains must not hold")
	}

	l := mustBundle(t, reg, ir.NewRuleSpec("l", "contains", "B").WithIgnoreCase(true))
	if !mustCheck(t, l, ir.Record{"l": []any{"a", "b"}}) {
		t.Fatalf("ignore-case list contains should hold")
	}

	// chỉ fold đúng một cấp: list lồng nhau giữ nguyên
	nested := mustBundle(t, reg, ir.NewRuleSpec("l", "contains", []any{"b"}).WithIgnoreCase(true))
	if mustCheck(t, nested, ir.Record{"l": []any{[]any{"B"}}}) {
		t.Fatalf("nested lists must not be case-folded")
	}
	if !mustCheck(t, nested, ir.Record{"l": []any{[]any{"b"}}}) {
		t.Fatalf("nested list equality should hold")
	}

	in := mustBundle(t, reg, ir.NewRuleSpec("s", "in", []any{"Alpha", "Beta"}).WithIgnoreCase(true))
	if !mustCheck(t, in, ir.Record{"s": "BETA"}) {
		t.Fatalf("ignore-case in should hold")
	}
}

func TestListAsOperand(t *testing.T) {
	reg := NewRegistry(DefaultConfig())
	b := mustBundle(t, reg, ir.NewRuleSpec("x", "in", []any{1, 2, 3}))
	if !mustCheck(t, b, ir.Record{"x": 3}) || mustCheck(t, b, ir.Record{"x": 4}) {
		t.Fatalf("numeric membership")
	}

	m := mustBundle(t, reg, ir.NewRuleSpec("title", "mentions", []any{"golang", "rust"}).WithIgnoreCase(true))
	if !mustCheck(t, m, ir.Record{"title": "Why RUST matters"}) {
		t.Fatalf("contains_any should find rust")
	}
	if mustCheck(t, m, ir.Record{"title": "Python news"}) {
		t.Fatalf("contains_any must not match unrelated text")
	}
	if !mustCheck(t, m, ir.Record{"title": []any{"misc", "GoLang weekly"}}) {
		t.Fatalf("contains_any should scan string lists")
	}

	if _, err := reg.Bundle(ir.NewRuleSpec("title", "mentions", []any{1}), plainGetter()); !errors.Is(err, ErrInvalidOperandType) {
		t.Fatalf("contains_any with non-string operand should fail, got %v", err)
	}
}

func TestRegexRules(t *testing.T) {
	reg := NewRegistry(DefaultConfig().WithMatchTimeout(time.Second))

	match := mustBundle(t, reg, ir.NewRuleSpec("s", "match", "b+"))
	search := mustBundle(t, reg, ir.NewRuleSpec("s", "search", "b+"))
	if mustCheck(t, match, ir.Record{"s": "abbc"}) {
		t.Fatalf("regex_match is anchored at start")
	}
	if !mustCheck(t, match, ir.Record{"s": "bbc"}) || !mustCheck(t, search, ir.Record{"s": "abbc"}) {
		t.Fatalf("regex match/search")
	}

	alt := mustBundle(t, reg, ir.NewRuleSpec("s", "regex_match", "a|b"))
	if !mustCheck(t, alt, ir.Record{"s": "b"}) {
		t.Fatalf("anchoring must wrap alternation")
	}

	ic := mustBundle(t, reg, ir.NewRuleSpec("s", "regex", "^hello").WithIgnoreCase(true))
	if !mustCheck(t, ic, ir.Record{"s": "HELLO world"}) {
		t.Fatalf("ignore-case regex")
	}

	if _, err := reg.Bundle(ir.NewRuleSpec("s", "regex", "(unclosed"), plainGetter()); !errors.Is(err, ErrNoApplicableRuleType) {
		t.Fatalf("invalid regex should fail compilation, got %v", err)
	}
}

func TestPatternRules(t *testing.T) {
	reg := NewRegistry(DefaultConfig())
	b := mustBundle(t, reg, ir.NewRuleSpec("s", "pattern_match", "quick * fox"))
	if !mustCheck(t, b, ir.Record{"s": "the quick brown fox jumps"}) {
		t.Fatalf("pattern should match")
	}
	if mustCheck(t, b, ir.Record{"s": "the quickest fox"}) {
		t.Fatalf("pattern must respect word boundaries")
	}

	_, err := reg.Bundle(ir.NewRuleSpec("s", "pattern_match", `fox\`), plainGetter())
	var se *pattern.SyntaxError
	if !errors.As(err, &se) {
		t.Fatalf("pattern syntax error must abort compilation, got %v", err)
	}
}

func TestRelevanceString(t *testing.T) {
	if Inapplicable.String() != "inapplicable" {
		t.Fatalf("inapplicable string")
	}
	if got := (TypeMatching | KeyMatching).String(); got != "guard|type|key" {
		t.Fatalf("relevance string => %q", got)
	}
	if !(TypeMatching | ValueMatching).Has(ExceptionGuard) {
		t.Fatalf("type matching implies guard")
	}
	if TypeMatching.Has(ValueMatching) {
		t.Fatalf("type matching alone must not report value matching")
	}
}

func TestParseRuleType(t *testing.T) {
	for _, typ := range append(DefaultRuleTypes(), RuleDate) {
		got, err := ParseRuleType(typ.String())
		if err != nil || got != typ {
			t.Fatalf("ParseRuleType(%q) => %v,%v", typ.String(), got, err)
		}
	}
	if _, err := ParseRuleType("xml"); err == nil {
		t.Fatalf("expected error for unknown rule type")
	}
}
