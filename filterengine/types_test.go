package filterengine

import (
	"encoding/json"
	"testing"
	"time"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		in   any
		want Kind
	}{
		{nil, KindNull},
		{true, KindBool},
		{"x", KindString},
		{5, KindNumber},
		{int64(5), KindNumber},
		{5.5, KindNumber},
		{json.Number("7"), KindNumber},
		{[]any{1}, KindList},
		{[]string{"a"}, KindList},
		{map[string]any{}, KindMap},
		{time.Now(), KindTime},
		{struct{}{}, KindOther},
	}
	for _, c := range cases {
		if got := KindOf(c.in); got != c.want {
			t.Fatalf("KindOf(%#v) => %v want %v", c.in, got, c.want)
		}
	}
}

func TestAsNumber(t *testing.T) {
	if f, ok := AsNumber(json.Number("2.5")); !ok || f != 2.5 {
		t.Fatalf("json.Number => %v,%v", f, ok)
	}
	if f, ok := AsNumber(uint8(3)); !ok || f != 3 {
		t.Fatalf("uint8 => %v,%v", f, ok)
	}
	if _, ok := AsNumber(true); ok {
		t.Fatalf("bool must not be a number")
	}
}

func TestRuleSpecUnfold(t *testing.T) {
	r := RuleSpec{Key: []string{"title", "summary"}, Operator: "contains", Operand: "go", HasOperand: true}
	parts := r.Unfold()
	if len(parts) != 2 {
		t.Fatalf("want 2 rules, got %d", len(parts))
	}
	if parts[0].SingleKey() != "title" || parts[1].SingleKey() != "summary" {
		t.Fatalf("unexpected keys: %v %v", parts[0].Key, parts[1].Key)
	}
	if parts[1].Operator != "contains" || parts[1].Operand != "go" {
		t.Fatalf("operator/operand must be copied: %+v", parts[1])
	}
}

func TestRuleSpecWithDefaults(t *testing.T) {
	args := map[string]any{"ignore_case": true, "note": "x"}

	r := NewRuleSpec("title", "equal", "A").WithDefaults(args)
	if !r.CaseFold() {
		t.Fatalf("ignore_case default should apply")
	}
	if r.Extra["note"] != "x" {
		t.Fatalf("extra default should apply: %v", r.Extra)
	}

	explicit := NewRuleSpec("title", "equal", "A").WithIgnoreCase(false).WithDefaults(args)
	if explicit.CaseFold() {
		t.Fatalf("explicit ignore_case=false must win over default")
	}
}

func TestEffectiveRelation(t *testing.T) {
	if (FilterSpec{}).EffectiveRelation() != RelationOr {
		t.Fatalf("default relation should be or")
	}
	if !RelationRatio.Valid() || Relation("xor").Valid() {
		t.Fatalf("relation validity")
	}
}
