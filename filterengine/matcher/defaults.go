package matcher

import (
	"fmt"
	"strings"

	"github.com/dlclark/regexp2"
	ac "github.com/petar-dambovaliev/aho-corasick"

	ir "github.com/PhucNguyen204/rubricfeed/filterengine"
	"github.com/PhucNguyen204/rubricfeed/filterengine/pattern"
)

// -------- Comparison (numeric / list / date) --------

func createEqualOp() OperatorFn {
	return func(value, operand any) (bool, error) {
		return equalValues(value, operand), nil
	}
}

func createCompareOp(accept func(c int) bool) OperatorFn {
	return func(value, operand any) (bool, error) {
		c, err := compareValues(value, operand)
		if err != nil {
			return false, err
		}
		return accept(c), nil
	}
}

func comparisonOperators() map[string]OperatorFn {
	return map[string]OperatorFn{
		"equal":            createEqualOp(),
		"greater":          createCompareOp(func(c int) bool { return c > 0 }),
		"greater_or_equal": createCompareOp(func(c int) bool { return c >= 0 }),
		"less":             createCompareOp(func(c int) bool { return c < 0 }),
		"less_or_equal":    createCompareOp(func(c int) bool { return c <= 0 }),
	}
}

func comparisonAliases() map[string]string {
	return map[string]string{
		"eq":     "equal",
		"is":     "equal",
		"ne":     "not_equal",
		"is_not": "not_equal",
		"gt":     "greater",
		"gte":    "greater_or_equal",
		"ge":     "greater_or_equal",
		"lt":     "less",
		"lte":    "less_or_equal",
		"le":     "less_or_equal",
	}
}

// -------- String --------

func createStringOp(fn func(value, operand string) bool) OperatorFn {
	return func(value, operand any) (bool, error) {
		v, err := asString(value, "value")
		if err != nil {
			return false, err
		}
		o, err := asString(operand, "operand")
		if err != nil {
			return false, err
		}
		return fn(v, o), nil
	}
}

func createEmptyOp() OperatorFn {
	return func(value, _ any) (bool, error) {
		return isEmpty(value), nil
	}
}

func stringOperators() map[string]OperatorFn {
	return map[string]OperatorFn{
		"empty":      createEmptyOp(),
		"equal":      createStringOp(func(v, o string) bool { return v == o }),
		"contains":   createStringOp(strings.Contains),
		"in":         createStringOp(func(v, o string) bool { return strings.Contains(o, v) }),
		"startswith": createStringOp(strings.HasPrefix),
		"endswith":   createStringOp(strings.HasSuffix),
	}
}

func stringAliases() map[string]string {
	return map[string]string{
		"eq":     "equal",
		"is":     "equal",
		"ne":     "not_equal",
		"is_not": "not_equal",
		"starts": "startswith",
		"ends":   "endswith",
	}
}

// -------- List as value --------

func createListContainsOp() OperatorFn {
	return func(value, operand any) (bool, error) {
		xs, ok := ir.AsList(value)
		if !ok {
			return false, fmt.Errorf("value must be a list, got %s", ir.KindOf(value))
		}
		for _, x := range xs {
			if equalValues(x, operand) {
				return true, nil
			}
		}
		return false, nil
	}
}

func listAsValueOperators() map[string]OperatorFn {
	ops := comparisonOperators()
	ops["empty"] = createEmptyOp()
	ops["contains"] = createListContainsOp()
	return ops
}

func listAsValueAliases() map[string]string {
	al := comparisonAliases()
	al["include"] = "contains"
	return al
}

// -------- List as operand --------

func createInOp() OperatorFn {
	return func(value, operand any) (bool, error) {
		xs, ok := ir.AsList(operand)
		if !ok {
			return false, fmt.Errorf("operand must be a list, got %s", ir.KindOf(operand))
		}
		for _, x := range xs {
			if equalValues(value, x) {
				return true, nil
			}
		}
		return false, nil
	}
}

// phraseSet là automaton Aho-Corasick dựng một lần từ operand của contains_any.
type phraseSet struct {
	phrases []string
	ac      *ac.AhoCorasick
}

func newPhraseSet(operand any) (*phraseSet, error) {
	xs, _ := ir.AsList(operand)
	phrases := make([]string, 0, len(xs))
	for _, x := range xs {
		s, ok := x.(string)
		if !ok {
			return nil, fmt.Errorf("contains_any operand must be a list of strings, got %s element", ir.KindOf(x))
		}
		if s != "" {
			phrases = append(phrases, s)
		}
	}
	ps := &phraseSet{phrases: phrases}
	if len(phrases) > 0 {
		builder := ac.NewAhoCorasickBuilder(ac.Opts{
			MatchKind: ac.LeftMostLongestMatch,
		})
		built := builder.Build(phrases)
		ps.ac = &built
	}
	return ps, nil
}

func (p *phraseSet) matchString(s string) bool {
	if p.ac == nil {
		return false
	}
	return len(p.ac.FindAll(s)) > 0
}

func createContainsAnyOp() OperatorFn {
	return func(value, operand any) (bool, error) {
		ps, ok := operand.(*phraseSet)
		if !ok {
			return false, fmt.Errorf("contains_any operand not compiled")
		}
		switch t := value.(type) {
		case string:
			return ps.matchString(t), nil
		}
		if xs, ok := ir.AsList(value); ok {
			for _, x := range xs {
				if s, ok := x.(string); ok && ps.matchString(s) {
					return true, nil
				}
			}
		}
		return false, nil
	}
}

func listAsOperandOperators() map[string]OperatorFn {
	return map[string]OperatorFn{
		"in":           createInOp(),
		"contains_any": createContainsAnyOp(),
	}
}

func listAsOperandAliases() map[string]string {
	return map[string]string{
		"mentions": "contains_any",
	}
}

// -------- Regex / Pattern --------

func createRegexOp() OperatorFn {
	return func(value, operand any) (bool, error) {
		v, err := asString(value, "value")
		if err != nil {
			return false, err
		}
		re, ok := operand.(*regexp2.Regexp)
		if !ok {
			return false, fmt.Errorf("regex operand not compiled")
		}
		return re.MatchString(v)
	}
}

func regexOperators() map[string]OperatorFn {
	op := createRegexOp()
	return map[string]OperatorFn{
		"regex_match":  op, // neo ở đầu chuỗi khi biên dịch operand
		"regex_search": op,
	}
}

func regexAliases() map[string]string {
	return map[string]string{
		"match":  "regex_match",
		"regex":  "regex_search",
		"search": "regex_search",
	}
}

func createPatternOp() OperatorFn {
	return func(value, operand any) (bool, error) {
		v, err := asString(value, "value")
		if err != nil {
			return false, err
		}
		m, ok := operand.(*pattern.Matcher)
		if !ok {
			return false, fmt.Errorf("pattern operand not compiled")
		}
		return m.Match(v)
	}
}

func patternOperators() map[string]OperatorFn {
	return map[string]OperatorFn{
		"pattern_match": createPatternOp(),
	}
}
