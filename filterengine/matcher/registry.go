package matcher

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/spf13/cast"

	ir "github.com/PhucNguyen204/rubricfeed/filterengine"
	"github.com/PhucNguyen204/rubricfeed/filterengine/pattern"
)

// DateParser chuyển giá trị thô (string/time) thành time.Time.
type DateParser func(v any) (time.Time, error)

// Config chọn các rule type tham gia và tham số của chúng cho một họ record.
type Config struct {
	// Thứ tự thử dựng rule; nil => DefaultRuleTypes()
	Types []RuleType
	// Giới hạn key theo rule type (bật bit key-matching)
	Keys map[RuleType][]string
	// Parser cho rule type date; nil => cast.ToTimeE
	DateParser DateParser
	// Timeout cho regex/pattern (0 = không giới hạn)
	MatchTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{Types: DefaultRuleTypes()}
}

// WithDate bật rule type date, chỉ cho các key chỉ định (rỗng = mọi key).
func (c Config) WithDate(keys ...string) Config {
	types := append([]RuleType(nil), c.effectiveTypes()...)
	has := false
	for _, t := range types {
		if t == RuleDate {
			has = true
		}
	}
	if !has {
		types = append(types, RuleDate)
	}
	c.Types = types
	if len(keys) > 0 {
		c = c.WithKeys(RuleDate, keys...)
	}
	return c
}

func (c Config) WithKeys(t RuleType, keys ...string) Config {
	m := make(map[RuleType][]string, len(c.Keys)+1)
	for k, v := range c.Keys {
		m[k] = v
	}
	m[t] = append([]string(nil), keys...)
	c.Keys = m
	return c
}

func (c Config) WithDateParser(p DateParser) Config {
	c.DateParser = p
	return c
}

func (c Config) WithMatchTimeout(d time.Duration) Config {
	c.MatchTimeout = d
	return c
}

func (c Config) effectiveTypes() []RuleType {
	if c.Types == nil {
		return DefaultRuleTypes()
	}
	return c.Types
}

// -------------------- type table --------------------

// typeDef mô tả một biến thể RuleType: bảng toán tử, alias và kiểu chấp nhận.
type typeDef struct {
	operators    map[string]OperatorFn
	aliases      map[string]string
	operandKinds kindSet // nil = mọi kind
	valueKinds   kindSet // nil = mọi kind
	needsOperand bool
	foldsCase    bool // ignore_case hạ chữ cả value và operand
	prepare      func(r *Registry, opcode string, operand any, ignoreCase bool) (any, error)
}

var typeTable = map[RuleType]*typeDef{
	RuleNumeric: {
		operators:    comparisonOperators(),
		aliases:      comparisonAliases(),
		operandKinds: kinds(ir.KindNumber, ir.KindBool), // bool xếp false < true
		valueKinds:   kinds(ir.KindNumber, ir.KindBool),
	},
	RuleString: {
		operators:    stringOperators(),
		aliases:      stringAliases(),
		operandKinds: kinds(ir.KindString, ir.KindNumber),
		valueKinds:   kinds(ir.KindString),
		foldsCase:    true,
		prepare:      prepareString,
	},
	RuleListAsValue: {
		operators:  listAsValueOperators(),
		aliases:    listAsValueAliases(),
		valueKinds: kinds(ir.KindList),
		foldsCase:  true,
	},
	RuleListAsOperand: {
		operators:    listAsOperandOperators(),
		aliases:      listAsOperandAliases(),
		operandKinds: kinds(ir.KindList),
		needsOperand: true,
		foldsCase:    true,
		prepare:      prepareListOperand,
	},
	RuleRegex: {
		operators:    regexOperators(),
		aliases:      regexAliases(),
		operandKinds: kinds(ir.KindString),
		valueKinds:   kinds(ir.KindString),
		needsOperand: true,
		prepare:      prepareRegex,
	},
	RulePattern: {
		operators:    patternOperators(),
		aliases:      map[string]string{},
		operandKinds: kinds(ir.KindString),
		valueKinds:   kinds(ir.KindString),
		needsOperand: true,
		prepare:      preparePattern,
	},
	RuleDate: {
		operators:    comparisonOperators(),
		aliases:      comparisonAliases(),
		operandKinds: kinds(ir.KindString, ir.KindTime),
		valueKinds:   kinds(ir.KindString, ir.KindTime),
		needsOperand: true,
		prepare:      prepareDate,
	},
}

func prepareString(_ *Registry, _ string, operand any, _ bool) (any, error) {
	s, ok := stringify(operand)
	if !ok {
		return nil, fmt.Errorf("cannot use %s as string operand", ir.KindOf(operand))
	}
	return s, nil
}

func prepareListOperand(_ *Registry, opcode string, operand any, ignoreCase bool) (any, error) {
	if opcode == "contains_any" {
		if ignoreCase {
			operand = foldCase(operand)
		}
		return newPhraseSet(operand)
	}
	return operand, nil
}

func prepareRegex(r *Registry, opcode string, operand any, ignoreCase bool) (any, error) {
	expr := operand.(string)
	if opcode == "regex_match" {
		expr = `\A(?:` + expr + `)`
	}
	opts := regexp2.None
	if ignoreCase {
		opts |= regexp2.IgnoreCase
	}
	re, err := regexp2.Compile(expr, opts)
	if err != nil {
		return nil, fmt.Errorf("invalid regular expression: %v", err)
	}
	if r.timeout > 0 {
		re.MatchTimeout = r.timeout
	}
	return re, nil
}

func preparePattern(r *Registry, _ string, operand any, ignoreCase bool) (any, error) {
	return pattern.Compile(operand.(string), ignoreCase, r.timeout)
}

func prepareDate(r *Registry, _ string, operand any, _ bool) (any, error) {
	t, err := r.parseDate(operand)
	if err != nil {
		return nil, fmt.Errorf("can not parse date operand %v: %v", operand, err)
	}
	return t, nil
}

// -------------------- Registry --------------------

// Registry dựng rule/bundle từ rule spec; bất biến sau khi tạo.
// Mỗi họ record có registry riêng, không có trạng thái toàn cục.
type Registry struct {
	types     []RuleType
	keys      map[RuleType]map[string]struct{}
	parseDate DateParser
	timeout   time.Duration
}

func NewRegistry(cfg Config) *Registry {
	r := &Registry{
		types:     append([]RuleType(nil), cfg.effectiveTypes()...),
		keys:      make(map[RuleType]map[string]struct{}, len(cfg.Keys)),
		parseDate: cfg.DateParser,
		timeout:   cfg.MatchTimeout,
	}
	for t, ks := range cfg.Keys {
		set := make(map[string]struct{}, len(ks))
		for _, k := range ks {
			set[k] = struct{}{}
		}
		r.keys[t] = set
	}
	if r.parseDate == nil {
		r.parseDate = castDate
	}
	return r
}

func castDate(v any) (time.Time, error) {
	if t, ok := v.(time.Time); ok {
		return t, nil
	}
	s, ok := v.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("date must be a string or time, got %s", ir.KindOf(v))
	}
	return cast.ToTimeE(s)
}

// Types trả về các rule type theo thứ tự thử.
func (r *Registry) Types() []RuleType {
	return append([]RuleType(nil), r.types...)
}

// resolveOperator đi qua bảng alias và tiền tố not_ (mỗi lần bỏ not_ đảo invert).
func resolveOperator(def *typeDef, opcode string, invert bool) (string, bool) {
	for guard := 0; guard < 64; guard++ {
		if alias, ok := def.aliases[opcode]; ok {
			opcode = alias
			continue
		}
		if strings.HasPrefix(opcode, "not_") {
			invert = !invert
			opcode = opcode[len("not_"):]
			continue
		}
		break
	}
	return opcode, invert
}

// Construct dựng một rule của rule type t cho rule spec (một key).
func (r *Registry) Construct(t RuleType, spec ir.RuleSpec, get Getter) (*Rule, error) {
	def, ok := typeTable[t]
	if !ok {
		return nil, fmt.Errorf("unknown rule type %v", t)
	}
	key := spec.SingleKey()
	fail := func(err error, detail string) (*Rule, error) {
		return nil, &RuleConstructionError{Type: t, Key: key, Operator: spec.Operator, Err: err, Detail: detail}
	}

	allowed, restricted := r.keys[t]
	if restricted && len(allowed) > 0 {
		if _, ok := allowed[key]; !ok {
			return fail(ErrDisallowedKey, key)
		}
	} else {
		restricted = false
	}

	opcode, invert := resolveOperator(def, spec.Operator, spec.Invert)
	op, ok := def.operators[opcode]
	if !ok {
		return fail(ErrUnsupportedOperator, opcode)
	}

	hasOperand := spec.HasOperand && spec.Operand != nil
	operand := spec.Operand
	if !hasOperand {
		if def.needsOperand {
			return fail(ErrInvalidOperandType, "operand is required")
		}
		operand = nil
	} else if def.operandKinds != nil && !def.operandKinds.has(ir.KindOf(operand)) {
		return fail(ErrInvalidOperandType, ir.KindOf(operand).String())
	}

	ignoreCase := spec.CaseFold()
	fold := ignoreCase && def.foldsCase

	if hasOperand && def.prepare != nil {
		prepared, err := def.prepare(r, opcode, operand, ignoreCase)
		if err != nil {
			var se *pattern.SyntaxError
			if errors.As(err, &se) {
				return fail(se, "")
			}
			return fail(ErrInvalidOperandType, err.Error())
		}
		operand = prepared
	}
	if _, compiled := operand.(*phraseSet); fold && hasOperand && !compiled {
		operand = foldCase(operand)
	}

	rule := &Rule{
		typ:        t,
		key:        key,
		opcode:     opcode,
		invert:     invert,
		fold:       fold,
		op:         op,
		operand:    operand,
		hasOperand: hasOperand,
		get:        get,
		valueKinds: def.valueKinds,
		keyed:      restricted,
	}
	if t == RuleDate {
		rule.parseDate = r.parseDate
		rule.memo = &dateMemo{}
	}
	return rule, nil
}

// Bundle dựng mọi rule type có thể cho một rule spec (một key).
// Lỗi dựng từng type được gom lại; chỉ lỗi khi không type nào thành công.
// Lỗi cú pháp word-pattern là lỗi compile không phục hồi.
func (r *Registry) Bundle(spec ir.RuleSpec, get Getter) (*Bundle, error) {
	if len(spec.Key) != 1 {
		return nil, fmt.Errorf("rule bundle needs exactly one key, got %v", spec.Key)
	}
	rules := make([]*Rule, 0, len(r.types))
	var causes []*RuleConstructionError
	for _, t := range r.types {
		rule, err := r.Construct(t, spec, get)
		if err != nil {
			var ce *RuleConstructionError
			if !errors.As(err, &ce) {
				return nil, err
			}
			var se *pattern.SyntaxError
			if errors.As(ce.Err, &se) {
				return nil, se
			}
			causes = append(causes, ce)
			continue
		}
		rules = append(rules, rule)
	}
	if len(rules) == 0 {
		return nil, &NoApplicableRuleTypeError{Key: spec.SingleKey(), Operator: spec.Operator, Causes: causes}
	}
	return &Bundle{spec: spec, key: spec.SingleKey(), get: get, rules: rules}, nil
}
