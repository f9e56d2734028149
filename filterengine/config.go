package filterengine

// Unified configuration for the rubric filter engine

import (
	"fmt"
	"time"
)

// -------------------- Enums --------------------

// MissingPolicy quyết định cách xử lý khi accessor không tìm thấy field.
type MissingPolicy int

const (
	// Zero-value: lỗi MissingField được trả về cho caller
	MissingFail MissingPolicy = iota
	// Bundle có field thiếu được coi là không khớp (false)
	MissingSkip
)

func (p MissingPolicy) String() string {
	switch p {
	case MissingFail:
		return "fail"
	case MissingSkip:
		return "skip"
	default:
		return fmt.Sprintf("MissingPolicy(%d)", int(p))
	}
}

// ParseMissingPolicy đọc policy từ chuỗi cấu hình ("fail" | "skip").
func ParseMissingPolicy(s string) (MissingPolicy, error) {
	switch s {
	case "", "fail":
		return MissingFail, nil
	case "skip":
		return MissingSkip, nil
	}
	return MissingFail, fmt.Errorf("unknown missing policy: %q", s)
}

// -------------------- EngineConfig --------------------

type EngineConfig struct {
	// Tham số mặc định gộp vào mỗi rule theo kiểu setdefault (vd ignore_case)
	DefaultArguments map[string]any `json:"default_arguments"`

	// Xử lý field thiếu khi evaluate
	Missing MissingPolicy `json:"missing_policy"`

	// Ngưỡng mặc định cho relation "ratio"
	RatioThreshold float64 `json:"ratio_threshold"`

	// Giới hạn thời gian cho mỗi lần khớp regex/pattern (0 = không giới hạn)
	MatchTimeout time.Duration `json:"match_timeout"`
}

// DefaultEngineConfig: không có tham số mặc định, field thiếu là lỗi.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		DefaultArguments: map[string]any{},
		Missing:          MissingFail,
		RatioThreshold:   0.5,
		MatchTimeout:     time.Second,
	}
}

// NewEngineConfig tạo config mặc định
func NewEngineConfig() EngineConfig {
	return DefaultEngineConfig()
}

func (c EngineConfig) WithDefaultArgument(name string, value any) EngineConfig {
	args := make(map[string]any, len(c.DefaultArguments)+1)
	for k, v := range c.DefaultArguments {
		args[k] = v
	}
	args[name] = value
	c.DefaultArguments = args
	return c
}

func (c EngineConfig) WithIgnoreCase(enable bool) EngineConfig {
	return c.WithDefaultArgument("ignore_case", enable)
}

func (c EngineConfig) WithMissingPolicy(p MissingPolicy) EngineConfig {
	c.Missing = p
	return c
}

func (c EngineConfig) WithRatioThreshold(th float64) EngineConfig {
	c.RatioThreshold = th
	return c
}

func (c EngineConfig) WithMatchTimeout(d time.Duration) EngineConfig {
	c.MatchTimeout = d
	return c
}

// Validate kiểm tra các giá trị cấu hình.
func (c EngineConfig) Validate() error {
	if c.RatioThreshold < 0 || c.RatioThreshold > 1 {
		return fmt.Errorf("ratio threshold must be within [0,1], got %v", c.RatioThreshold)
	}
	if c.MatchTimeout < 0 {
		return fmt.Errorf("match timeout must not be negative")
	}
	return nil
}
