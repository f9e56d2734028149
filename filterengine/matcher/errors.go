package matcher

import (
	"errors"
	"fmt"
	"strings"

	ir "github.com/PhucNguyen204/rubricfeed/filterengine"
)

var (
	ErrUnsupportedOperator  = errors.New("unsupported operator")
	ErrInvalidOperandType   = errors.New("invalid operand type")
	ErrDisallowedKey        = errors.New("disallowed key")
	ErrNoApplicableRuleType = errors.New("no applicable rule type")
	ErrAmbiguousRelevance   = errors.New("ambiguous relevance")
	ErrNoRelevantRuleType   = errors.New("no relevant rule type")
	ErrIncomparable         = errors.New("incomparable values")
)

// RuleConstructionError: một rule type không dựng được rule cho rule spec.
// Lỗi này được xử lý cục bộ khi còn rule type khác dựng được.
type RuleConstructionError struct {
	Type     RuleType
	Key      string
	Operator string
	Err      error
	Detail   string
}

func (e *RuleConstructionError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %v: %s", e.Type, e.Err, e.Detail)
	}
	return fmt.Sprintf("%s: %v", e.Type, e.Err)
}

func (e *RuleConstructionError) Unwrap() error { return e.Err }

// NoApplicableRuleTypeError: không rule type nào dựng được rule (lỗi compile).
type NoApplicableRuleTypeError struct {
	Key      string
	Operator string
	Causes   []*RuleConstructionError
}

func (e *NoApplicableRuleTypeError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "cannot create any rule instance for key %q operator %q:", e.Key, e.Operator)
	for _, c := range e.Causes {
		b.WriteString("\n  ")
		b.WriteString(c.Error())
	}
	return b.String()
}

func (e *NoApplicableRuleTypeError) Is(target error) bool { return target == ErrNoApplicableRuleType }

func (e *NoApplicableRuleTypeError) Unwrap() []error {
	out := make([]error, len(e.Causes))
	for i, c := range e.Causes {
		out[i] = c
	}
	return out
}

// AmbiguousRelevanceError: nhiều rule cùng đạt mức relevance cao nhất.
type AmbiguousRelevanceError struct {
	Key   string
	Level Relevance
	Types []RuleType
}

func (e *AmbiguousRelevanceError) Error() string {
	return fmt.Sprintf("more than one most relevant rule for key %q at level %s: %v", e.Key, e.Level, e.Types)
}

func (e *AmbiguousRelevanceError) Is(target error) bool { return target == ErrAmbiguousRelevance }

// NoRelevantRuleTypeError: không rule nào áp dụng được cho kiểu giá trị của record.
type NoRelevantRuleTypeError struct {
	Key   string
	Kind  ir.Kind
	Types []RuleType
}

func (e *NoRelevantRuleTypeError) Error() string {
	return fmt.Sprintf("can not find any relevant rule for key %q (value kind %s, tried %v)", e.Key, e.Kind, e.Types)
}

func (e *NoRelevantRuleTypeError) Is(target error) bool { return target == ErrNoRelevantRuleType }
