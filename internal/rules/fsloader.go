package rules

import (
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/PhucNguyen204/rubricfeed/pkg/rubric"
)

// LoadDirRecursive gộp mọi file cấu hình (*.yml, *.yaml, *.json) dưới root.
// Tên trùng giữa các file là lỗi. Trả về số file đã đọc.
func LoadDirRecursive(root string) (rubric.Config, int, error) {
	var out rubric.Config
	files := 0
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil { return err }
		if d.IsDir() || !rubric.IsConfigFile(p) { return nil }
		cfg, err := rubric.LoadFile(p); if err != nil { return err }
		if err := out.Merge(cfg); err != nil { return fmt.Errorf("%s: %w", p, err) }
		files++
		return nil
	})
	return out, files, err
}
