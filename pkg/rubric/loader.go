package rubric

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadYAML đọc một tài liệu cấu hình YAML.
func LoadYAML(b []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadJSON đọc JSON; các dòng bắt đầu bằng "//" được coi là chú thích.
func LoadJSON(b []byte) (Config, error) {
	var cfg Config
	if err := json.Unmarshal(StripComments(b), &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// StripComments bỏ các dòng mà ký tự đầu tiên (sau khoảng trắng) là "//".
func StripComments(b []byte) []byte {
	lines := bytes.Split(b, []byte("\n"))
	out := make([][]byte, 0, len(lines))
	for _, l := range lines {
		if bytes.HasPrefix(bytes.TrimSpace(l), []byte("//")) {
			continue
		}
		out = append(out, l)
	}
	return bytes.Join(out, []byte("\n"))
}

func IsConfigFile(p string) bool {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".yml", ".yaml", ".json":
		return true
	}
	return false
}

// LoadFile chọn định dạng theo phần mở rộng.
func LoadFile(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		cfg, err = LoadJSON(b)
	case ".yml", ".yaml":
		cfg, err = LoadYAML(b)
	default:
		return Config{}, fmt.Errorf("%s: unsupported config format", path)
	}
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}
