package filterengine

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultEngineConfig()

	if len(cfg.DefaultArguments) != 0 {
		t.Fatalf("default arguments should be empty")
	}
	if cfg.Missing != MissingFail {
		t.Fatalf("missing policy default should be fail")
	}
	if cfg.RatioThreshold != 0.5 {
		t.Fatalf("ratio threshold default 0.5")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestConfigBuilders(t *testing.T) {
	base := DefaultEngineConfig()
	cfg := base.
		WithIgnoreCase(true).
		WithMissingPolicy(MissingSkip).
		WithRatioThreshold(0.75).
		WithMatchTimeout(2 * time.Second)

	if v, ok := cfg.DefaultArguments["ignore_case"]; !ok || v != true {
		t.Fatalf("ignore_case default not set: %v", cfg.DefaultArguments)
	}
	if _, ok := base.DefaultArguments["ignore_case"]; ok {
		t.Fatalf("builder must not mutate the original config")
	}
	if cfg.Missing != MissingSkip || cfg.RatioThreshold != 0.75 || cfg.MatchTimeout != 2*time.Second {
		t.Fatalf("builders not applied: %+v", cfg)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultEngineConfig().WithRatioThreshold(1.5).Validate(); err == nil {
		t.Fatalf("expected error for threshold > 1")
	}
	if err := DefaultEngineConfig().WithMatchTimeout(-time.Second).Validate(); err == nil {
		t.Fatalf("expected error for negative timeout")
	}
}

func TestParseMissingPolicy(t *testing.T) {
	cases := map[string]MissingPolicy{"": MissingFail, "fail": MissingFail, "skip": MissingSkip}
	for in, want := range cases {
		got, err := ParseMissingPolicy(in)
		if err != nil || got != want {
			t.Fatalf("ParseMissingPolicy(%q) => %v,%v want %v", in, got, err, want)
		}
	}
	if _, err := ParseMissingPolicy("ignore"); err == nil {
		t.Fatalf("expected error for unknown policy")
	}
}
