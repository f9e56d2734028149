package matcher

// Core type definitions for the rule type registry.

import (
	"fmt"
	"strings"

	ir "github.com/PhucNguyen204/rubricfeed/filterengine"
)

// OperatorFn là toán tử nhị phân (giá trị field, operand) của một rule type.
type OperatorFn func(value, operand any) (bool, error)

// Getter phân giải key logic thành giá trị trên record (thường là accessor.Get).
type Getter func(rec ir.Record, key string) (any, error)

// -------------------- RuleType --------------------

// RuleType là tập đóng các họ toán tử; mỗi biến thể có bảng toán tử và kiểu riêng.
type RuleType int

const (
	RuleNumeric RuleType = iota
	RuleString
	RuleListAsValue
	RuleListAsOperand
	RuleRegex
	RulePattern
	RuleDate
)

// DefaultRuleTypes là thứ tự đăng ký mặc định (date chỉ bật theo họ record).
func DefaultRuleTypes() []RuleType {
	return []RuleType{
		RuleNumeric,
		RuleListAsValue,
		RuleListAsOperand,
		RuleString,
		RuleRegex,
		RulePattern,
	}
}

func (t RuleType) String() string {
	switch t {
	case RuleNumeric:
		return "numeric"
	case RuleString:
		return "string"
	case RuleListAsValue:
		return "list_as_value"
	case RuleListAsOperand:
		return "list_as_operand"
	case RuleRegex:
		return "regex"
	case RulePattern:
		return "pattern"
	case RuleDate:
		return "date"
	default:
		return fmt.Sprintf("RuleType(%d)", int(t))
	}
}

// ParseRuleType đọc tên rule type từ cấu hình.
func ParseRuleType(s string) (RuleType, error) {
	for t := RuleNumeric; t <= RuleDate; t++ {
		if t.String() == strings.ToLower(s) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown rule type: %q", s)
}

// -------------------- Relevance --------------------

// Relevance là bitmask mức độ phù hợp của một rule với record hiện tại.
// Các mức kết hợp bằng OR; type/value/key matching đều bao gồm bit guard.
type Relevance uint8

const (
	Inapplicable   Relevance = 0b0000
	ExceptionGuard Relevance = 0b0001
	TypeMatching   Relevance = 0b0011
	ValueMatching  Relevance = 0b0101
	KeyMatching    Relevance = 0b1001
)

// Has kiểm tra mọi bit của flag đều bật.
func (r Relevance) Has(flag Relevance) bool {
	return flag != Inapplicable && r&flag == flag
}

func (r Relevance) String() string {
	if r == Inapplicable {
		return "inapplicable"
	}
	parts := []string{}
	if r.Has(ExceptionGuard) {
		parts = append(parts, "guard")
	}
	if r.Has(TypeMatching) {
		parts = append(parts, "type")
	}
	if r.Has(ValueMatching) {
		parts = append(parts, "value")
	}
	if r.Has(KeyMatching) {
		parts = append(parts, "key")
	}
	return strings.Join(parts, "|")
}

// -------------------- kindSet --------------------

// kindSet rỗng (nil) nghĩa là chấp nhận mọi kind.
type kindSet map[ir.Kind]struct{}

func kinds(ks ...ir.Kind) kindSet {
	s := make(kindSet, len(ks))
	for _, k := range ks {
		s[k] = struct{}{}
	}
	return s
}

func (s kindSet) has(k ir.Kind) bool {
	if s == nil {
		return k != ir.KindAbsent
	}
	_, ok := s[k]
	return ok
}
