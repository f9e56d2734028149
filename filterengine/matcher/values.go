package matcher

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	ir "github.com/PhucNguyen204/rubricfeed/filterengine"
)

// equalValues so sánh bằng theo cấu trúc; số được chuẩn hoá về float64.
func equalValues(a, b any) bool {
	ka, kb := ir.KindOf(a), ir.KindOf(b)
	if ka != kb {
		return false
	}
	switch ka {
	case ir.KindNull:
		return true
	case ir.KindNumber:
		x, _ := ir.AsNumber(a)
		y, _ := ir.AsNumber(b)
		return x == y
	case ir.KindString:
		return a.(string) == b.(string)
	case ir.KindBool:
		return a.(bool) == b.(bool)
	case ir.KindTime:
		return a.(time.Time).Equal(b.(time.Time))
	case ir.KindList:
		xs, _ := ir.AsList(a)
		ys, _ := ir.AsList(b)
		if len(xs) != len(ys) {
			return false
		}
		for i := range xs {
			if !equalValues(xs[i], ys[i]) {
				return false
			}
		}
		return true
	case ir.KindMap:
		xm, ok1 := a.(map[string]any)
		ym, ok2 := b.(map[string]any)
		if !ok1 || !ok2 || len(xm) != len(ym) {
			return false
		}
		for k, xv := range xm {
			yv, ok := ym[k]
			if !ok || !equalValues(xv, yv) {
				return false
			}
		}
		return true
	}
	return false
}

// compareValues trả về -1/0/1; list so sánh theo thứ tự từ điển.
func compareValues(a, b any) (int, error) {
	ka, kb := ir.KindOf(a), ir.KindOf(b)
	if ka != kb {
		return 0, fmt.Errorf("%w: %s with %s", ErrIncomparable, ka, kb)
	}
	switch ka {
	case ir.KindNumber:
		x, _ := ir.AsNumber(a)
		y, _ := ir.AsNumber(b)
		return cmp3(x < y, x > y), nil
	case ir.KindString:
		return strings.Compare(a.(string), b.(string)), nil
	case ir.KindBool:
		x, y := a.(bool), b.(bool)
		return cmp3(!x && y, x && !y), nil
	case ir.KindTime:
		return a.(time.Time).Compare(b.(time.Time)), nil
	case ir.KindList:
		xs, _ := ir.AsList(a)
		ys, _ := ir.AsList(b)
		for i := 0; i < len(xs) && i < len(ys); i++ {
			c, err := compareValues(xs[i], ys[i])
			if err != nil {
				return 0, err
			}
			if c != 0 {
				return c, nil
			}
		}
		return cmp3(len(xs) < len(ys), len(xs) > len(ys)), nil
	}
	return 0, fmt.Errorf("%w: %s", ErrIncomparable, ka)
}

func cmp3(less, greater bool) int {
	switch {
	case less:
		return -1
	case greater:
		return 1
	}
	return 0
}

// emptyOf trả về giá trị "rỗng" cùng kiểu runtime với v (operand mặc định).
func emptyOf(v any) any {
	switch ir.KindOf(v) {
	case ir.KindNumber:
		return float64(0)
	case ir.KindString:
		return ""
	case ir.KindBool:
		return false
	case ir.KindList:
		return []any{}
	case ir.KindMap:
		return map[string]any{}
	case ir.KindTime:
		return time.Time{}
	}
	return nil
}

func isEmpty(v any) bool {
	switch ir.KindOf(v) {
	case ir.KindNull, ir.KindAbsent:
		return true
	case ir.KindString:
		return v.(string) == ""
	case ir.KindList:
		xs, _ := ir.AsList(v)
		return len(xs) == 0
	case ir.KindMap:
		m, ok := v.(map[string]any)
		return ok && len(m) == 0
	case ir.KindNumber:
		f, _ := ir.AsNumber(v)
		return f == 0
	case ir.KindBool:
		return !v.(bool)
	case ir.KindTime:
		return v.(time.Time).IsZero()
	}
	return false
}

// foldCase hạ chữ thường chuỗi; với list chỉ hạ đúng một cấp lồng nhau.
func foldCase(v any) any {
	return foldDepth(v, 1)
}

func foldDepth(v any, depth int) any {
	switch t := v.(type) {
	case string:
		return strings.ToLower(t)
	case []any:
		if depth == 0 {
			return t
		}
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = foldDepth(x, depth-1)
		}
		return out
	case []string:
		if depth == 0 {
			return t
		}
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = strings.ToLower(x)
		}
		return out
	}
	return v
}

// stringify dùng cho operand số của rule type string: 5 -> "5".
func stringify(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case nil, bool:
		return "", false
	}
	if f, ok := ir.AsNumber(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64), true
	}
	return "", false
}

func asString(v any, side string) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string, got %s", side, ir.KindOf(v))
	}
	return s, nil
}
