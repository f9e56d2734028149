package rubric

import (
	"fmt"
	"sort"
)

const DefaultLength = 100

// Config là toàn bộ cấu hình định tuyến: filter có tên, rubric, feed, field và cây quyết định.
type Config struct {
	Filters   map[string]any        `yaml:"filters" json:"filters"`
	Rubrics   map[string]RubricSpec `yaml:"rubrics" json:"rubrics"`
	Feeds     map[string]FeedSpec   `yaml:"feeds" json:"feeds"`
	Fields    FieldsSpec            `yaml:"fields" json:"fields"`
	Decisions map[string]any        `yaml:"decisions" json:"decisions"`
}

type RubricSpec struct {
	Rule      string   `yaml:"rule" json:"rule"`
	Length    *int     `yaml:"length" json:"length,omitempty"`
	Template  Template `yaml:"template" json:"template"`
	NoAuthors *bool    `yaml:"no_authors" json:"no_authors,omitempty"`
	Cache     *bool    `yaml:"cache" json:"cache,omitempty"`
}

type Template struct {
	Title    string   `yaml:"title" json:"title"`
	Subtitle string   `yaml:"subtitle" json:"subtitle,omitempty"`
	Links    []string `yaml:"links" json:"links,omitempty"`
	Author   *Author  `yaml:"author" json:"author,omitempty"`
}

type Author struct {
	Name  string `yaml:"name" json:"name"`
	URL   string `yaml:"url" json:"url,omitempty"`
	Email string `yaml:"email" json:"email,omitempty"`
}

type FeedSpec struct {
	URL      string   `yaml:"url" json:"url"`
	Usertags []string `yaml:"usertags" json:"usertags,omitempty"`
	Disable  bool     `yaml:"disable" json:"disable,omitempty"`
}

// FieldsSpec bổ sung alias/virtual/default cho họ entry.
// Virtuals là biểu thức expr-lang trên record.
type FieldsSpec struct {
	Aliases  map[string]string `yaml:"aliases" json:"aliases,omitempty"`
	Virtuals map[string]string `yaml:"virtuals" json:"virtuals,omitempty"`
	Defaults map[string]any    `yaml:"defaults" json:"defaults,omitempty"`
	DateKeys []string          `yaml:"date_keys" json:"date_keys,omitempty"`

	// thứ tự rule type thử khi dựng rule; rỗng => mặc định. date luôn được bật.
	RuleTypes []string `yaml:"rule_types" json:"rule_types,omitempty"`
}

// EffectiveLength trả về length đã cấu hình, hoặc DefaultLength khi bỏ trống.
func (r RubricSpec) EffectiveLength() int {
	if r.Length == nil {
		return DefaultLength
	}
	return *r.Length
}

func (r RubricSpec) HidesAuthors() bool { return r.NoAuthors == nil || *r.NoAuthors }
func (r RubricSpec) Cached() bool { return r.Cache == nil || *r.Cache }

// Validate kiểm tra các trường bắt buộc của rubric.
func (r RubricSpec) Validate() error {
	if r.Rule == "" {
		return fmt.Errorf("rule is required")
	}
	if r.Length != nil && *r.Length <= 0 {
		return fmt.Errorf("length must be positive, got %d", *r.Length)
	}
	if r.Template.Title == "" {
		return fmt.Errorf("template.title is required")
	}
	if r.Template.Author != nil && r.Template.Author.Name == "" {
		return fmt.Errorf("template.author.name is required")
	}
	return nil
}

// Merge gộp cấu hình khác vào c; trùng tên là lỗi.
func (c *Config) Merge(o Config) error {
	if err := mergeInto(&c.Filters, o.Filters, "filter"); err != nil {
		return err
	}
	if err := mergeInto(&c.Rubrics, o.Rubrics, "rubric"); err != nil {
		return err
	}
	if err := mergeInto(&c.Feeds, o.Feeds, "feed"); err != nil {
		return err
	}
	if err := mergeInto(&c.Decisions, o.Decisions, "decision"); err != nil {
		return err
	}
	if err := mergeInto(&c.Fields.Aliases, o.Fields.Aliases, "alias"); err != nil {
		return err
	}
	if err := mergeInto(&c.Fields.Virtuals, o.Fields.Virtuals, "virtual field"); err != nil {
		return err
	}
	if err := mergeInto(&c.Fields.Defaults, o.Fields.Defaults, "default"); err != nil {
		return err
	}
	c.Fields.DateKeys = append(c.Fields.DateKeys, o.Fields.DateKeys...)
	if len(o.Fields.RuleTypes) > 0 {
		if len(c.Fields.RuleTypes) > 0 {
			return fmt.Errorf("fields.rule_types set more than once")
		}
		c.Fields.RuleTypes = o.Fields.RuleTypes
	}
	return nil
}

func mergeInto[V any](dst *map[string]V, src map[string]V, what string) error {
	if len(src) == 0 {
		return nil
	}
	if *dst == nil {
		*dst = make(map[string]V, len(src))
	}
	for k, v := range src {
		if _, dup := (*dst)[k]; dup {
			return fmt.Errorf("duplicate %s %q", what, k)
		}
		(*dst)[k] = v
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
