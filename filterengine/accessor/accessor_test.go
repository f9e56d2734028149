package accessor

import (
	"encoding/json"
	"errors"
	"testing"

	ir "github.com/PhucNguyen204/rubricfeed/filterengine"
)

func mustRecord(t *testing.T, s string) ir.Record {
	t.Helper()
	var v map[string]any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	return v
}

func TestPlainLookup(t *testing.T) {
	a := Plain()
	rec := mustRecord(t, `{"title":{"value":"Hello"},"tags":["a","b"],"n":3}`)

	if v, err := a.Get(rec, "title.value"); err != nil || v != "Hello" {
		t.Fatalf("title.value => %v,%v", v, err)
	}
	if v, err := a.Get(rec, "tags.1"); err != nil || v != "b" {
		t.Fatalf("tags.1 => %v,%v", v, err)
	}
	if v, err := a.Get(rec, "n"); err != nil || v != float64(3) {
		t.Fatalf("n => %v,%v", v, err)
	}

	_, err := a.Get(rec, "title.lang")
	var mf *MissingFieldError
	if !errors.As(err, &mf) || mf.Segment != "lang" {
		t.Fatalf("expected MissingFieldError at lang, got %v", err)
	}
	if !errors.Is(err, ErrMissingField) {
		t.Fatalf("MissingFieldError should match ErrMissingField")
	}
}

func TestDefaultTreeSingleRescue(t *testing.T) {
	a := New(Config{Defaults: map[string]any{"a": map[string]any{"b": "D"}}})

	// a vắng hoàn toàn: default cứu ở segment a, phần còn lại đi trong subtree default
	if v, err := a.Get(ir.Record{}, "a.b"); err != nil || v != "D" {
		t.Fatalf("{} a.b => %v,%v want D", v, err)
	}
	// a có, b vắng: default cứu ở segment b
	if v, err := a.Get(mustRecord(t, `{"a":{}}`), "a.b"); err != nil || v != "D" {
		t.Fatalf("{a:{}} a.b => %v,%v want D", v, err)
	}
	// giá trị thật luôn thắng default
	if v, err := a.Get(mustRecord(t, `{"a":{"b":{"c":1}}}`), "a.b.c"); err != nil || v != float64(1) {
		t.Fatalf("{a:{b:{c:1}}} a.b.c => %v,%v want 1", v, err)
	}

	// default đã thay thế ở b ("D") không được bảo vệ thêm cho c
	for _, raw := range []string{`{}`, `{"a":{}}`} {
		_, err := a.Get(mustRecord(t, raw), "a.b.c")
		var mf *MissingFieldError
		if !errors.As(err, &mf) {
			t.Fatalf("%s a.b.c => expected MissingFieldError, got %v", raw, err)
		}
		if mf.Segment != "c" {
			t.Fatalf("%s a.b.c => missing segment %q want c", raw, mf.Segment)
		}
	}

	// default tree không có nhánh x
	if _, err := a.Get(ir.Record{}, "x"); !errors.Is(err, ErrMissingField) {
		t.Fatalf("x => expected missing, got %v", err)
	}
}

func TestDefaultRescueOnlyOnce(t *testing.T) {
	a := New(Config{Defaults: map[string]any{
		"a": map[string]any{"b": map[string]any{"c": "deep"}},
	}})
	// thiếu a: thay bằng {b:{c:deep}}, các segment sau đi trong subtree đó
	if v, err := a.Get(ir.Record{}, "a.b.c"); err != nil || v != "deep" {
		t.Fatalf("a.b.c => %v,%v want deep", v, err)
	}
	// a.b có nhưng rỗng: cứu tại c
	if v, err := a.Get(mustRecord(t, `{"a":{"b":{}}}`), "a.b.c"); err != nil || v != "deep" {
		t.Fatalf("a.b.c => %v,%v want deep", v, err)
	}
}

func TestAliasAppliedOnce(t *testing.T) {
	a := New(Config{Aliases: map[string]string{
		"title": "title.value",
		"head":  "title",
	}})
	rec := mustRecord(t, `{"title":{"value":"T"}}`)

	if v, err := a.Get(rec, "title"); err != nil || v != "T" {
		t.Fatalf("title => %v,%v", v, err)
	}
	// head -> title (không nối tiếp sang title.value)
	v, err := a.Get(rec, "head")
	if err != nil {
		t.Fatalf("head => %v", err)
	}
	if _, ok := v.(map[string]any); !ok {
		t.Fatalf("alias must not chain, got %v", v)
	}
}

func TestVirtualBypassesLookup(t *testing.T) {
	calls := 0
	a := New(Config{
		Aliases: map[string]string{"count": "_count"},
		Virtuals: map[string]VirtualFn{
			"_count": func(rec ir.Record) (any, error) {
				calls++
				return len(rec), nil
			},
		},
	})
	rec := ir.Record{"x": 1, "y": 2}
	if v, err := a.Get(rec, "count"); err != nil || v != 2 {
		t.Fatalf("count => %v,%v", v, err)
	}
	if calls != 1 {
		t.Fatalf("virtual should be called once, got %d", calls)
	}
	if !a.IsVirtual("count") {
		t.Fatalf("count should be virtual via alias")
	}
}

func TestMissingHook(t *testing.T) {
	a := New(Config{Missing: func(rec ir.Record, key string) (any, error) {
		return "fallback:" + key, nil
	}})
	if v, err := a.Get(ir.Record{}, "a.b"); err != nil || v != "fallback:a.b" {
		t.Fatalf("missing hook => %v,%v", v, err)
	}
}
