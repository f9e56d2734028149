package accessor

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	ir "github.com/PhucNguyen204/rubricfeed/filterengine"
)

// VirtualFn tính giá trị một field ảo từ toàn bộ record.
type VirtualFn func(rec ir.Record) (any, error)

// MissingFn được gọi khi không tìm thấy field và không có default cứu.
// Trả về (value, nil) để thay thế, hoặc error để báo lỗi.
type MissingFn func(rec ir.Record, key string) (any, error)

// Config mô tả một "họ" record (vd feed entry): alias, field ảo và cây default.
type Config struct {
	Aliases  map[string]string
	Virtuals map[string]VirtualFn
	Defaults map[string]any
	Missing  MissingFn
}

// ErrMissingField dùng với errors.Is.
var ErrMissingField = errors.New("missing field")

// MissingFieldError: không có giá trị thật và không có default dùng được.
type MissingFieldError struct {
	Key     string // tên logic do rule yêu cầu
	Path    string // đường dẫn sau alias
	Segment string // segment đầu tiên không tìm thấy
}

func (e *MissingFieldError) Error() string {
	if e.Path != "" && e.Path != e.Key {
		return fmt.Sprintf("missing field %q (path %q, segment %q)", e.Key, e.Path, e.Segment)
	}
	return fmt.Sprintf("missing field %q (segment %q)", e.Key, e.Segment)
}

func (e *MissingFieldError) Is(target error) bool { return target == ErrMissingField }

// Accessor phân giải tên field logic thành giá trị trên record.
// Bất biến sau khi tạo, an toàn khi dùng đồng thời.
type Accessor struct {
	aliases  map[string]string
	virtuals map[string]VirtualFn
	defaults map[string]any
	missing  MissingFn
}

// New tạo accessor; các map được sao chép để caller có thể tái sử dụng Config.
func New(cfg Config) *Accessor {
	a := &Accessor{
		aliases:  make(map[string]string, len(cfg.Aliases)),
		virtuals: make(map[string]VirtualFn, len(cfg.Virtuals)),
		defaults: cfg.Defaults,
		missing:  cfg.Missing,
	}
	for k, v := range cfg.Aliases {
		a.aliases[k] = v
	}
	for k, v := range cfg.Virtuals {
		a.virtuals[k] = v
	}
	return a
}

// Plain là accessor không alias, không field ảo, không default.
func Plain() *Accessor {
	return New(Config{})
}

// Resolve áp dụng alias đúng một lần (không lặp chuỗi alias).
func (a *Accessor) Resolve(key string) string {
	if v, ok := a.aliases[key]; ok {
		return v
	}
	return key
}

// IsVirtual cho biết key (sau alias) có phải field ảo không.
func (a *Accessor) IsVirtual(key string) bool {
	_, ok := a.virtuals[a.Resolve(key)]
	return ok
}

// Get: alias -> field ảo -> duyệt path song song với cây default.
// Default chỉ cứu tối đa một lần thiếu key; subtree default đã thay thế
// không được bảo vệ thêm ở các segment sâu hơn.
func (a *Accessor) Get(rec ir.Record, key string) (any, error) {
	path := a.Resolve(key)

	if fn, ok := a.virtuals[path]; ok {
		return fn(rec)
	}

	var value any = rec
	var def any = a.defaults
	exhausted := a.defaults == nil

	for _, seg := range strings.Split(path, ".") {
		if !exhausted {
			if next, ok := descend(def, seg); ok {
				def = next
			} else {
				exhausted = true
			}
		}

		next, ok := descend(value, seg)
		if ok {
			value = next
			continue
		}
		if exhausted {
			return a.onMissing(rec, key, path, seg)
		}
		value = def
		def, exhausted = nil, true
	}
	return value, nil
}

func (a *Accessor) onMissing(rec ir.Record, key, path, seg string) (any, error) {
	if a.missing != nil {
		return a.missing(rec, path)
	}
	return nil, &MissingFieldError{Key: key, Path: path, Segment: seg}
}

// descend đi xuống một cấp: map theo key, list theo chỉ số nguyên.
func descend(cur any, seg string) (any, bool) {
	switch t := cur.(type) {
	case map[string]any:
		v, ok := t[seg]
		return v, ok
	case []any:
		i, err := strconv.Atoi(seg)
		if err != nil || i < 0 || i >= len(t) {
			return nil, false
		}
		return t[i], true
	}
	return nil, false
}
