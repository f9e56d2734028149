package rubric

import (
	"fmt"
	"strconv"
	"strings"

	ir "github.com/PhucNguyen204/rubricfeed/filterengine"
	"github.com/PhucNguyen204/rubricfeed/filterengine/compiler"
)

// Decision là cây quyết định đã compile: trả về result của lá được chọn.
type Decision func(rec ir.Record) (any, error)

// DecisionError: cây quyết định sai cấu trúc.
type DecisionError struct {
	Tree string
	Path string
	Msg  string
}

func (e *DecisionError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("decision %q: %s", e.Tree, e.Msg)
	}
	return fmt.Sprintf("decision %q at %s: %s", e.Tree, e.Path, e.Msg)
}

type decisionCompiler struct {
	docs     map[string]any
	funcs    map[string]compiler.Predicate
	done     map[string]Decision
	visiting []string
}

// compileDecisions dựng mọi cây; join được nối vào lúc compile, vòng lặp là lỗi.
func compileDecisions(docs map[string]any, funcs map[string]compiler.Predicate) (map[string]Decision, error) {
	dc := &decisionCompiler{docs: docs, funcs: funcs, done: make(map[string]Decision, len(docs))}
	for _, name := range sortedKeys(docs) {
		if _, err := dc.tree(name); err != nil {
			return nil, err
		}
	}
	return dc.done, nil
}

func (dc *decisionCompiler) tree(name string) (Decision, error) {
	if d, ok := dc.done[name]; ok {
		return d, nil
	}
	for _, v := range dc.visiting {
		if v == name {
			return nil, &DecisionError{Tree: name, Msg: "join cycle " + strings.Join(append(dc.visiting, name), " -> ")}
		}
	}
	doc, ok := dc.docs[name]
	if !ok {
		return nil, &DecisionError{Tree: name, Msg: "unknown decision tree"}
	}

	dc.visiting = append(dc.visiting, name)
	d, err := dc.node(name, "", doc)
	dc.visiting = dc.visiting[:len(dc.visiting)-1]
	if err != nil {
		return nil, err
	}
	dc.done[name] = d
	return d, nil
}

func (dc *decisionCompiler) node(tree, path string, doc any) (Decision, error) {
	m, ok := asMap(doc)
	if !ok {
		return nil, &DecisionError{Tree: tree, Path: path, Msg: "node must be an object"}
	}

	if result, ok := m["result"]; ok {
		if len(m) != 1 {
			return nil, &DecisionError{Tree: tree, Path: path, Msg: "result node takes no other keys"}
		}
		return func(ir.Record) (any, error) { return result, nil }, nil
	}

	if ref, ok := m["join"]; ok {
		name, isStr := ref.(string)
		if !isStr || len(m) != 1 {
			return nil, &DecisionError{Tree: tree, Path: path, Msg: "join node needs a single tree name"}
		}
		return dc.tree(name)
	}

	cond, ok := m["condition"].(string)
	if !ok {
		return nil, &DecisionError{Tree: tree, Path: path, Msg: "expected condition, result or join"}
	}
	pred, err := compiler.CompilePredicate(cond, dc.funcs)
	if err != nil {
		return nil, &DecisionError{Tree: tree, Path: path + "condition", Msg: err.Error()}
	}
	onTrue, err := dc.child(tree, path, m, "true")
	if err != nil {
		return nil, err
	}
	onFalse, err := dc.child(tree, path, m, "false")
	if err != nil {
		return nil, err
	}
	return func(rec ir.Record) (any, error) {
		ok, err := pred.Evaluate(rec)
		if err != nil {
			return nil, err
		}
		if ok {
			return onTrue(rec)
		}
		return onFalse(rec)
	}, nil
}

func (dc *decisionCompiler) child(tree, path string, m map[string]any, branch string) (Decision, error) {
	doc, ok := m[branch]
	if !ok {
		return nil, &DecisionError{Tree: tree, Path: path, Msg: "missing " + branch + " branch"}
	}
	return dc.node(tree, path+branch+".", doc)
}

func asMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, x := range t {
			// YAML đọc khoá true/false không ngoặc kép thành bool
			switch ks := k.(type) {
			case string:
				out[ks] = x
			case bool:
				out[strconv.FormatBool(ks)] = x
			default:
				return nil, false
			}
		}
		return out, true
	}
	return nil, false
}
