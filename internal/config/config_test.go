package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	ir "github.com/PhucNguyen204/rubricfeed/filterengine"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":8080" || cfg.Server.Workers != 4 || cfg.Rules.Path != "./rules" {
		t.Fatalf("defaults: %+v", cfg)
	}
	if cfg.Database.ConnMaxLifetime != 30*time.Minute {
		t.Fatalf("lifetime: %v", cfg.Database.ConnMaxLifetime)
	}
	if cfg.Server.FeedRetention != 720*time.Hour {
		t.Fatalf("feed retention: %v", cfg.Server.FeedRetention)
	}
	eng, err := cfg.Engine.Build()
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	if eng.Missing != ir.MissingFail || eng.DefaultArguments["ignore_case"] != true {
		t.Fatalf("engine: %+v", eng)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "svc.yaml")
	doc := "server:\n  addr: \":9999\"\n  feed_retention: 0s\nengine:\n  missing_policy: skip\n  match_timeout: 250ms\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("RUBRIC_RULES_PATH", "/etc/rubrics")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":9999" || cfg.Rules.Path != "/etc/rubrics" || cfg.Server.FeedRetention != 0 {
		t.Fatalf("cfg: %+v", cfg)
	}
	eng, err := cfg.Engine.Build()
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	if eng.Missing != ir.MissingSkip || eng.MatchTimeout != 250*time.Millisecond {
		t.Fatalf("engine: %+v", eng)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("explicit config path must exist")
	}
}

func TestEngineBuildInvalid(t *testing.T) {
	if _, err := (EngineConfig{MissingPolicy: "explode"}).Build(); err == nil {
		t.Fatalf("unknown missing policy must fail")
	}
	if _, err := (EngineConfig{MissingPolicy: "fail", RatioThreshold: 2}).Build(); err == nil {
		t.Fatalf("threshold out of range must fail")
	}
}
