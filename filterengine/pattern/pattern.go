package pattern

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
)

const (
	wordSep     = `\W+`
	wordBound   = `\b`
	anyWordRun  = `\w*`
	skippedWord = `(?:\b\w+\b\W+)`
)

// SyntaxError là lỗi cú pháp của word-pattern, kèm đoạn gây lỗi.
type SyntaxError struct {
	Pattern  string
	Fragment string
	Reason   string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("pattern syntax error: %s at %q in %q", e.Reason, e.Fragment, e.Pattern)
}

// Matcher là word-pattern đã biên dịch; bất biến, dùng đồng thời được.
type Matcher struct {
	source string
	expr   string
	re     *regexp2.Regexp
}

// Compile biên dịch word-pattern thành matcher có ranh giới từ (Unicode).
// timeout <= 0 nghĩa là không giới hạn thời gian khớp.
func Compile(src string, ignoreCase bool, timeout time.Duration) (*Matcher, error) {
	expr, err := Translate(src)
	if err != nil {
		return nil, err
	}
	opts := regexp2.None
	if ignoreCase {
		opts |= regexp2.IgnoreCase
	}
	re, err := regexp2.Compile(expr, opts)
	if err != nil {
		return nil, &SyntaxError{Pattern: src, Fragment: expr, Reason: err.Error()}
	}
	if timeout > 0 {
		re.MatchTimeout = timeout
	}
	return &Matcher{source: src, expr: expr, re: re}, nil
}

// Match tìm pattern ở bất kỳ vị trí nào trong s (không neo).
func (m *Matcher) Match(s string) (bool, error) {
	return m.re.MatchString(s)
}

func (m *Matcher) Source() string { return m.source }

// Expr trả về biểu thức regex sinh ra.
func (m *Matcher) Expr() string { return m.expr }

func (m *Matcher) String() string { return m.source }

// Translate chuyển word-pattern sang cú pháp regex.
//
//	word        -> \b<word>\b  (?: một ký tự, *: \w*, \x: literal x, [...]: lớp ký tự)
//	{n} {n,} {,m} {n,m} -> bỏ qua n..m từ nguyên vẹn
//
// Các token (trừ token cuối) nối bằng \W+. Quantifier không được đứng đầu hoặc cuối.
func Translate(src string) (string, error) {
	tokens := strings.Fields(src)
	if len(tokens) == 0 {
		return "", &SyntaxError{Pattern: src, Fragment: src, Reason: "empty pattern"}
	}

	var b strings.Builder
	last := len(tokens) - 1
	for i, tok := range tokens {
		if strings.HasPrefix(tok, "{") {
			q, err := parseQuantifier(tok)
			if err != nil {
				return "", &SyntaxError{Pattern: src, Fragment: tok, Reason: err.Error()}
			}
			switch i {
			case 0:
				return "", &SyntaxError{Pattern: src, Fragment: tok, Reason: "quantifier cannot start pattern"}
			case last:
				return "", &SyntaxError{Pattern: src, Fragment: tok, Reason: "quantifier cannot terminate pattern"}
			}
			b.WriteString(skippedWord)
			b.WriteString(q)
			continue
		}

		w, err := translateWord(tok)
		if err != nil {
			return "", &SyntaxError{Pattern: src, Fragment: tok, Reason: err.Error()}
		}
		b.WriteString(w)
		if i != last {
			b.WriteString(wordSep)
		}
	}
	return b.String(), nil
}

func translateWord(tok string) (string, error) {
	var b strings.Builder
	b.WriteString(wordBound)

	inClass, escaped := false, false
	classLen := 0
	for _, c := range tok {
		switch {
		case inClass && escaped:
			b.WriteRune('\\')
			b.WriteRune(c)
			escaped = false
			classLen++
		case inClass && c == '\\':
			escaped = true
		case inClass && c == ']':
			if classLen == 0 {
				return "", fmt.Errorf("empty character class")
			}
			b.WriteRune(']')
			inClass = false
		case inClass:
			b.WriteRune(c)
			classLen++
		case escaped:
			b.WriteString(regexp2.Escape(string(c)))
			escaped = false
		case c == '\\':
			escaped = true
		case c == '[':
			b.WriteRune('[')
			inClass, classLen = true, 0
		case c == '?':
			b.WriteString(".")
		case c == '*':
			b.WriteString(anyWordRun)
		default:
			b.WriteString(regexp2.Escape(string(c)))
		}
	}

	if escaped {
		return "", fmt.Errorf("single backslash cannot terminate word pattern")
	}
	if inClass {
		return "", fmt.Errorf("character class is not closed")
	}
	b.WriteString(wordBound)
	return b.String(), nil
}

// parseQuantifier chuẩn hoá {n}, {n,}, {,m}, {n,m}; {,m} thành {0,m}.
func parseQuantifier(tok string) (string, error) {
	if len(tok) < 3 || !strings.HasSuffix(tok, "}") {
		return "", fmt.Errorf("not a valid quantifier")
	}
	body := tok[1 : len(tok)-1]
	lo, hi, hasComma := strings.Cut(body, ",")

	parse := func(s string) (int, error) {
		if s == "" || strings.TrimLeft(s, "0123456789") != "" {
			return 0, fmt.Errorf("not a valid quantifier")
		}
		return strconv.Atoi(s)
	}

	if !hasComma {
		n, err := parse(lo)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("{%d}", n), nil
	}
	if lo == "" && hi == "" {
		return "", fmt.Errorf("not a valid quantifier")
	}
	n := 0
	if lo != "" {
		v, err := parse(lo)
		if err != nil {
			return "", err
		}
		n = v
	}
	if hi == "" {
		return fmt.Sprintf("{%d,}", n), nil
	}
	m, err := parse(hi)
	if err != nil {
		return "", err
	}
	if m < n {
		return "", fmt.Errorf("quantifier upper bound below lower bound")
	}
	return fmt.Sprintf("{%d,%d}", n, m), nil
}
