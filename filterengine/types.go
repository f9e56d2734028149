package filterengine

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"
)

// Record là một bản ghi nội dung (entry) dạng cây lồng nhau tuỳ ý.
// Engine không giả định schema cố định; mọi truy cập field đi qua accessor.
type Record = map[string]any

// -------------------- Kind --------------------

// Kind gắn nhãn loại giá trị runtime của một field.
type Kind int

const (
	KindAbsent Kind = iota
	KindNull
	KindBool
	KindNumber
	KindString
	KindList
	KindMap
	KindTime
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	case KindTime:
		return "time"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// KindOf phân loại một giá trị đã decode từ JSON/YAML (hoặc do caller dựng).
// Mọi kiểu số nguyên/thực và json.Number đều là KindNumber; bool không phải số.
func KindOf(v any) Kind {
	switch v.(type) {
	case nil:
		return KindNull
	case bool:
		return KindBool
	case string:
		return KindString
	case json.Number, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, float32, float64:
		return KindNumber
	case []any:
		return KindList
	case map[string]any:
		return KindMap
	case time.Time:
		return KindTime
	}
	// slice/map có kiểu cụ thể (vd []string từ caller)
	switch reflect.ValueOf(v).Kind() {
	case reflect.Slice, reflect.Array:
		return KindList
	case reflect.Map:
		return KindMap
	}
	return KindOther
}

// AsNumber chuẩn hoá mọi kiểu số về float64.
func AsNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// AsList trả về các phần tử của một giá trị dạng list.
func AsList(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	case nil:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// -------------------- Specs --------------------

// Relation là cách kết hợp kết quả các rule bundle trong một filter.
type Relation string

const (
	RelationOr    Relation = "or"
	RelationAnd   Relation = "and"
	RelationRatio Relation = "ratio"
)

func (r Relation) Valid() bool {
	switch r {
	case RelationOr, RelationAnd, RelationRatio:
		return true
	}
	return false
}

// RuleSpec là dạng chuẩn (canonical) của một rule khai báo.
// Key có thể chứa nhiều tên field; Filter façade sẽ unfold thành nhiều rule.
type RuleSpec struct {
	Key        []string       `json:"key"`
	Operator   string         `json:"operator"`
	Operand    any            `json:"operand,omitempty"`
	HasOperand bool           `json:"-"`
	Invert     bool           `json:"invert,omitempty"`
	IgnoreCase *bool          `json:"ignore_case,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
}

// NewRuleSpec tạo rule spec cho một key với operand.
func NewRuleSpec(key, operator string, operand any) RuleSpec {
	return RuleSpec{Key: []string{key}, Operator: operator, Operand: operand, HasOperand: true}
}

// NewRuleSpecNoOperand tạo rule spec không có operand (operand mặc định lấy theo kiểu giá trị).
func NewRuleSpecNoOperand(key, operator string) RuleSpec {
	return RuleSpec{Key: []string{key}, Operator: operator}
}

func (r RuleSpec) WithInvert(invert bool) RuleSpec {
	r.Invert = invert
	return r
}

func (r RuleSpec) WithIgnoreCase(ignore bool) RuleSpec {
	r.IgnoreCase = &ignore
	return r
}

// CaseFold cho biết rule có so sánh không phân biệt hoa thường hay không.
func (r RuleSpec) CaseFold() bool {
	return r.IgnoreCase != nil && *r.IgnoreCase
}

// SingleKey trả về key duy nhất của rule đã unfold.
func (r RuleSpec) SingleKey() string {
	if len(r.Key) == 0 {
		return ""
	}
	return r.Key[0]
}

// Unfold tách rule nhiều key thành nhiều rule một key (cùng relation của filter).
func (r RuleSpec) Unfold() []RuleSpec {
	out := make([]RuleSpec, 0, len(r.Key))
	for _, k := range r.Key {
		c := r
		c.Key = []string{k}
		out = append(out, c)
	}
	return out
}

// WithDefaults áp dụng các tham số mặc định theo kiểu setdefault: chỉ điền khi rule chưa đặt.
func (r RuleSpec) WithDefaults(args map[string]any) RuleSpec {
	for name, v := range args {
		switch name {
		case "ignore_case":
			if b, ok := v.(bool); ok && r.IgnoreCase == nil {
				r = r.WithIgnoreCase(b)
			}
		case "invert":
			// Invert là bool thường nên không phân biệt "chưa đặt" với false: bỏ qua
		case "operand":
			if !r.HasOperand {
				r.Operand, r.HasOperand = v, true
			}
		default:
			if _, ok := r.Extra[name]; !ok {
				extra := make(map[string]any, len(r.Extra)+1)
				for k, x := range r.Extra {
					extra[k] = x
				}
				extra[name] = v
				r.Extra = extra
			}
		}
	}
	return r
}

func (r RuleSpec) String() string {
	if r.HasOperand {
		return fmt.Sprintf("%v %s %v", r.Key, r.Operator, r.Operand)
	}
	return fmt.Sprintf("%v %s", r.Key, r.Operator)
}

// FilterSpec là filter khai báo: relation + danh sách rule.
type FilterSpec struct {
	Relation  Relation   `json:"relation,omitempty"`
	Threshold *float64   `json:"threshold,omitempty"`
	Rules     []RuleSpec `json:"rules"`
}

// EffectiveRelation trả về relation, mặc định "or".
func (f FilterSpec) EffectiveRelation() Relation {
	if f.Relation == "" {
		return RelationOr
	}
	return f.Relation
}
