package server

import (
    "context"
    "fmt"
    "io/fs"
    "log"
    "os"
    "path/filepath"
    "sort"
    "strings"
    "time"
)

// RunMigrations applies *.sql files under dir in lexicographic order.
// Applied file names are recorded in schema_migrations and skipped on later runs.
// Statements inside a file are separated by ';'.
func (s *AppServer) RunMigrations(dir string) (int, error) {
    files := make([]string, 0)
    walkFn := func(path string, d fs.DirEntry, err error) error {
        if err != nil { return err }
        if d.IsDir() { return nil }
        if strings.HasSuffix(strings.ToLower(d.Name()), ".sql") {
            files = append(files, path)
        }
        return nil
    }
    if err := filepath.WalkDir(dir, walkFn); err != nil { return 0, err }
    sort.Strings(files)

    ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
    defer cancel()

    if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (name TEXT PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL DEFAULT now())`); err != nil {
        return 0, fmt.Errorf("create schema_migrations: %w", err)
    }
    applied, err := s.appliedMigrations(ctx)
    if err != nil { return 0, err }

    count := 0
    for _, p := range files {
        name := filepath.Base(p)
        if applied[name] { continue }
        b, err := os.ReadFile(p)
        if err != nil { return count, fmt.Errorf("read migration %s: %w", p, err) }
        for _, c := range strings.Split(string(b), ";") {
            stmt := strings.TrimSpace(c)
            if stmt == "" { continue }
            if _, err := s.db.ExecContext(ctx, stmt); err != nil {
                return count, fmt.Errorf("exec migration %s: %w", p, err)
            }
        }
        if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations(name) VALUES ($1)`, name); err != nil {
            return count, fmt.Errorf("record migration %s: %w", p, err)
        }
        log.Printf("migration applied: %s", name)
        count++
    }
    return count, nil
}

func (s *AppServer) appliedMigrations(ctx context.Context) (map[string]bool, error) {
    rows, err := s.db.QueryContext(ctx, `SELECT name FROM schema_migrations`)
    if err != nil { return nil, fmt.Errorf("list migrations: %w", err) }
    defer rows.Close()
    out := map[string]bool{}
    for rows.Next() {
        var n string
        if err := rows.Scan(&n); err != nil { return nil, err }
        out[n] = true
    }
    return out, rows.Err()
}

// InitSchema runs migrations from MIGRATIONS_PATH or the usual locations.
func (s *AppServer) InitSchema() error {
    candidates := []string{}
    if mp := os.Getenv("MIGRATIONS_PATH"); mp != "" {
        candidates = append(candidates, mp)
    }
    candidates = append(candidates, "./migrations", "/srv/migrations")
    var lastErr error
    for _, p := range candidates {
        if _, statErr := os.Stat(p); statErr != nil {
            lastErr = statErr
            continue
        }
        if _, err := s.RunMigrations(p); err != nil {
            lastErr = err
            continue
        }
        return nil
    }
    return fmt.Errorf("init schema: no usable migrations path; last error: %v", lastErr)
}
