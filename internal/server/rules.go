package server

import (
    "context"
    "fmt"
    "log"

    "github.com/PhucNguyen204/rubricfeed/internal/rules"
    "github.com/PhucNguyen204/rubricfeed/pkg/rubric"
)

// LoadConfigDir walks a directory recursively, merges every .yml/.yaml/.json file
// into one config, builds a new registry, and swaps it.
// Stored memberships are purged since they belong to the previous rule set.
// Returns the number of files read.
func (s *AppServer) LoadConfigDir(ctx context.Context, dir string) (int, error) {
    cfg, files, err := rules.LoadDirRecursive(dir)
    if err != nil { return files, fmt.Errorf("walk dir: %w", err) }

    reg, err := rubric.Build(cfg, s.opts...)
    if err != nil { return files, err }
    if s.db != nil {
        if err := s.purgeMemberships(ctx); err != nil { return files, fmt.Errorf("purge memberships: %w", err) }
    }
    s.swapRegistry(reg)
    st := reg.Stats()
    log.Printf("rubric config loaded: files=%d filters=%d rubrics=%d bundles=%d rules=%d", files, st.Filters, len(reg.Names()), st.Bundles, st.Rules)
    return files, nil
}
