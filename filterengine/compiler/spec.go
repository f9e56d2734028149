package compiler

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"

	ir "github.com/PhucNguyen204/rubricfeed/filterengine"
)

// SpecError: tài liệu filter/rule không đúng schema.
type SpecError struct {
	Path string
	Msg  string
}

func (e *SpecError) Error() string {
	if e.Path == "" {
		return "invalid filter spec: " + e.Msg
	}
	return fmt.Sprintf("invalid filter spec at %s: %s", e.Path, e.Msg)
}

type rawFilter struct {
	Relation  string   `mapstructure:"relation"`
	Threshold *float64 `mapstructure:"threshold"`
	Rules     []any    `mapstructure:"rules"`
}

type rawRule struct {
	Key        any            `mapstructure:"key"`
	Operator   string         `mapstructure:"operator"`
	Operand    any            `mapstructure:"operand"`
	Invert     bool           `mapstructure:"invert"`
	IgnoreCase *bool          `mapstructure:"ignore_case"`
	Extra      map[string]any `mapstructure:",remain"`
}

func decode(input any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: false,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

// ParseFilterSpec chuẩn hoá tài liệu filter (JSON/YAML đã decode) thành FilterSpec.
func ParseFilterSpec(doc any) (ir.FilterSpec, error) {
	m, ok := asStringMap(doc)
	if !ok {
		return ir.FilterSpec{}, &SpecError{Msg: "filter must be an object"}
	}
	var raw rawFilter
	if err := decode(m, &raw); err != nil {
		return ir.FilterSpec{}, &SpecError{Msg: err.Error()}
	}

	spec := ir.FilterSpec{Relation: ir.Relation(strings.ToLower(raw.Relation)), Threshold: raw.Threshold}
	if spec.Relation != "" && !spec.Relation.Valid() {
		return ir.FilterSpec{}, &SpecError{Path: "relation", Msg: fmt.Sprintf("unknown relation %q", raw.Relation)}
	}
	if len(raw.Rules) == 0 {
		return ir.FilterSpec{}, &SpecError{Path: "rules", Msg: "at least one rule is required"}
	}
	for i, r := range raw.Rules {
		rule, err := ParseRuleSpec(r)
		if err != nil {
			if se, ok := err.(*SpecError); ok {
				se.Path = fmt.Sprintf("rules[%d]%s", i, prefixDot(se.Path))
				return ir.FilterSpec{}, se
			}
			return ir.FilterSpec{}, err
		}
		spec.Rules = append(spec.Rules, rule)
	}
	return spec, nil
}

// ParseRuleSpec nhận dạng object {key, operator, ...} hoặc dạng rút gọn
// [key, operator, operand?, flag...] và trả về dạng chuẩn.
func ParseRuleSpec(raw any) (ir.RuleSpec, error) {
	var m map[string]any
	switch t := raw.(type) {
	case []any:
		lm, err := ruleMapFromList(t)
		if err != nil {
			return ir.RuleSpec{}, err
		}
		m = lm
	default:
		sm, ok := asStringMap(raw)
		if !ok {
			return ir.RuleSpec{}, &SpecError{Msg: "rule must be an object or a list"}
		}
		m = sm
	}

	var r rawRule
	if err := decode(m, &r); err != nil {
		return ir.RuleSpec{}, &SpecError{Msg: err.Error()}
	}
	keys, err := parseKeys(r.Key)
	if err != nil {
		return ir.RuleSpec{}, err
	}
	if r.Operator == "" {
		return ir.RuleSpec{}, &SpecError{Path: "operator", Msg: "operator is required"}
	}

	operand, has := m["operand"]
	spec := ir.RuleSpec{
		Key:        keys,
		Operator:   r.Operator,
		Operand:    normalizeValue(operand),
		HasOperand: has && operand != nil,
		Invert:     r.Invert,
		IgnoreCase: r.IgnoreCase,
	}
	if len(r.Extra) > 0 {
		spec.Extra = r.Extra
	}
	return spec, nil
}

func ruleMapFromList(lst []any) (map[string]any, error) {
	if len(lst) < 2 {
		return nil, &SpecError{Msg: "list rule needs at least key and operator"}
	}
	m := map[string]any{"key": lst[0], "operator": lst[1]}
	if len(lst) > 2 {
		m["operand"] = lst[2]
		for i, f := range lst[3:] {
			name, ok := f.(string)
			if !ok || name == "" {
				return nil, &SpecError{Path: fmt.Sprintf("[%d]", i+3), Msg: "flag must be a non-empty string"}
			}
			m[name] = true
		}
	}
	return m, nil
}

func parseKeys(v any) ([]string, error) {
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil, &SpecError{Path: "key", Msg: "key must not be empty"}
		}
		return []string{t}, nil
	case []any:
		if len(t) == 0 {
			return nil, &SpecError{Path: "key", Msg: "key list must not be empty"}
		}
		out := make([]string, 0, len(t))
		for _, x := range t {
			s, ok := x.(string)
			if !ok || s == "" {
				return nil, &SpecError{Path: "key", Msg: "key list must contain non-empty strings"}
			}
			out = append(out, s)
		}
		return out, nil
	case []string:
		if len(t) == 0 {
			return nil, &SpecError{Path: "key", Msg: "key list must not be empty"}
		}
		return append([]string(nil), t...), nil
	case nil:
		return nil, &SpecError{Path: "key", Msg: "key is required"}
	}
	return nil, &SpecError{Path: "key", Msg: "key must be a string or a list of strings"}
}

// asStringMap chấp nhận map[string]any và map[any]any (YAML cũ).
func asStringMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, x := range t {
			ks, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[ks] = x
		}
		return out, true
	}
	return nil, false
}

// normalizeValue đưa map[any]any lồng nhau về map[string]any.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case map[any]any:
		m, ok := asStringMap(t)
		if !ok {
			return v
		}
		return normalizeValue(m)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, x := range t {
			out[k] = normalizeValue(x)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = normalizeValue(x)
		}
		return out
	}
	return v
}

func prefixDot(p string) string {
	if p == "" || strings.HasPrefix(p, "[") {
		return p
	}
	return "." + p
}
