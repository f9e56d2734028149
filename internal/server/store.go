package server

import (
    "context"
    "encoding/json"
    "fmt"
    "strconv"
    "time"

    "github.com/google/uuid"
    "github.com/lib/pq"

    ir "github.com/PhucNguyen204/rubricfeed/filterengine"
    "github.com/PhucNguyen204/rubricfeed/pkg/rubric"
)

const (
    sectionInclude = "include"
    sectionExclude = "exclude"
)

// entryID is stable per (feed, id or link); entries with neither get a random id.
func entryID(feed string, rec ir.Record) string {
    for _, k := range []string{"id", "link"} {
        if v, ok := rec[k]; ok {
            if s := toString(v); s != "" {
                return uuid.NewSHA1(uuid.NameSpaceURL, []byte(feed+"\x00"+s)).String()
            }
        }
    }
    return uuid.NewString()
}

func (s *AppServer) saveEntry(ctx context.Context, id, feed string, rec ir.Record, include []string) error {
    b, err := json.Marshal(rec)
    if err != nil { return fmt.Errorf("encode entry: %w", err) }
    _, err = s.db.ExecContext(ctx, `INSERT INTO entries(id, feed, added_at, entry, rubrics)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (id) DO UPDATE SET entry=EXCLUDED.entry, rubrics=EXCLUDED.rubrics`,
        id, feed, time.Now().UTC(), string(b), pq.Array(include),
    )
    return err
}

// saveMemberships stores include/exclude rows for cached rubrics only.
func (s *AppServer) saveMemberships(ctx context.Context, reg *rubric.Registry, id string, m rubric.Membership) error {
    section := make(map[string]string, len(m.Include)+len(m.Exclude))
    for _, n := range m.Include { section[n] = sectionInclude }
    for _, n := range m.Exclude { section[n] = sectionExclude }
    for _, name := range reg.Names() {
        sec, ok := section[name]
        if !ok { continue }
        rb, err := reg.Rubric(name)
        if err != nil || !rb.Spec.Cached() { continue }
        if _, err := s.db.ExecContext(ctx, `INSERT INTO rubric_entries(rubric, entry_id, section)
            VALUES ($1,$2,$3)
            ON CONFLICT (rubric, entry_id) DO UPDATE SET section=EXCLUDED.section`,
            name, id, sec,
        ); err != nil {
            return err
        }
    }
    return nil
}

func (s *AppServer) purgeMemberships(ctx context.Context) error {
    _, err := s.db.ExecContext(ctx, `DELETE FROM rubric_entries`)
    return err
}

func (s *AppServer) cachedEntries(ctx context.Context, name string, limit int) ([]json.RawMessage, error) {
    rows, err := s.db.QueryContext(ctx, `SELECT e.entry FROM rubric_entries re
        JOIN entries e ON e.id = re.entry_id
        WHERE re.rubric = $1 AND re.section = 'include'
        ORDER BY e.added_at DESC LIMIT $2`, name, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []json.RawMessage{}
    for rows.Next() {
        var b []byte
        if err := rows.Scan(&b); err != nil { return nil, err }
        out = append(out, json.RawMessage(b))
    }
    return out, rows.Err()
}

func (s *AppServer) recentEntries(ctx context.Context, limit int) ([]ir.Record, error) {
    rows, err := s.db.QueryContext(ctx, `SELECT entry FROM entries ORDER BY added_at DESC LIMIT $1`, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []ir.Record{}
    for rows.Next() {
        var b []byte
        if err := rows.Scan(&b); err != nil { return nil, err }
        var rec ir.Record
        if err := json.Unmarshal(b, &rec); err != nil { return nil, fmt.Errorf("decode entry: %w", err) }
        out = append(out, rec)
    }
    return out, rows.Err()
}

func toString(v any) string {
    switch t := v.(type) {
    case string:
        return t
    case json.Number:
        return t.String()
    case float64:
        return strconv.FormatFloat(t, 'g', -1, 64)
    case int, int32, int64:
        return fmt.Sprintf("%v", t)
    case bool:
        if t { return "true" }; return "false"
    case nil:
        return ""
    default:
        b, _ := json.Marshal(t)
        return string(b)
    }
}
