package server

import (
    "database/sql"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "log"
    "net/http"
    "strconv"
    "sync"
    "sync/atomic"
    "time"

    ir "github.com/PhucNguyen204/rubricfeed/filterengine"
    "github.com/PhucNguyen204/rubricfeed/internal/feeds"
    "github.com/PhucNguyen204/rubricfeed/pkg/rubric"
)

const (
    defaultMaxBatch  = 1000
    defaultScanLimit = 1000
    maxConfigBytes   = 4 << 20
)

type AppServer struct {
    db       *sql.DB
    registry *rubric.Registry
    mu       sync.RWMutex // protects registry swap
    opts     []rubric.Option
    feeds    *feeds.Tracker

    MaxBatch  int
    ScanLimit int // entries scanned when a rubric is not cached

    routed   atomic.Int64
    included atomic.Int64
    failed   atomic.Int64
}

// NewAppServer wires a registry and an optional database (nil disables persistence).
// opts are reused whenever the configuration is replaced.
func NewAppServer(db *sql.DB, reg *rubric.Registry, opts ...rubric.Option) *AppServer {
    return &AppServer{db: db, registry: reg, opts: opts, feeds: feeds.New(0), MaxBatch: defaultMaxBatch, ScanLimit: defaultScanLimit}
}

// SetFeedRetention drops observed feeds idle for longer than d from /api/v1/feeds (0 keeps all).
func (s *AppServer) SetFeedRetention(d time.Duration) { s.feeds.SetRetention(d) }

// RegisterRoutes wires HTTP handlers.
func (s *AppServer) RegisterRoutes(mux *http.ServeMux) {
    mux.HandleFunc("/healthz", s.handleHealth)
    mux.HandleFunc("/api/v1/stats", s.handleStats)
    mux.HandleFunc("/api/v1/rubrics", s.handleListRubrics)
    mux.HandleFunc("GET /api/v1/rubrics/{name}/entries", s.handleRubricEntries)
    mux.HandleFunc("/api/v1/route", s.handleRoute)
    mux.HandleFunc("GET /api/v1/feeds", s.handleFeeds)
    mux.HandleFunc("POST /api/v1/decisions/{name}", s.handleDecide)
    mux.HandleFunc("/api/v1/config", s.handleConfig)
}

func (s *AppServer) currentRegistry() *rubric.Registry {
    s.mu.RLock(); defer s.mu.RUnlock()
    return s.registry
}

func (s *AppServer) swapRegistry(r *rubric.Registry) {
    s.mu.Lock(); s.registry = r; s.mu.Unlock()
}

// ---- Handlers ----

func (s *AppServer) handleHealth(w http.ResponseWriter, r *http.Request) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(http.StatusOK)
    _, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *AppServer) handleStats(w http.ResponseWriter, r *http.Request) {
    type statsResp struct {
        Filters      int            `json:"filters"`
        Rubrics      int            `json:"rubrics"`
        Decisions    int            `json:"decisions"`
        Bundles      int            `json:"bundles"`
        Rules        int            `json:"rules"`
        RulesByType  map[string]int `json:"rules_by_type"`
        UniqueFields int            `json:"unique_fields"`
        Routed       int64          `json:"routed"`
        Included     int64          `json:"included"`
        Errors       int64          `json:"errors"`
    }
    reg := s.currentRegistry()
    st := reg.Stats()
    writeJSON(w, http.StatusOK, statsResp{
        Filters: st.Filters, Rubrics: len(reg.Names()), Decisions: len(reg.Decisions()),
        Bundles: st.Bundles, Rules: st.Rules, RulesByType: st.RulesByType, UniqueFields: st.UniqueFields,
        Routed: s.routed.Load(), Included: s.included.Load(), Errors: s.failed.Load(),
    })
}

func (s *AppServer) handleListRubrics(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    type rubricResp struct {
        Name      string          `json:"name"`
        Rule      string          `json:"rule"`
        Filters   []string        `json:"filters"`
        Length    int             `json:"length"`
        Cache     bool            `json:"cache"`
        NoAuthors bool            `json:"no_authors"`
        Template  rubric.Template `json:"template"`
    }
    reg := s.currentRegistry()
    out := []rubricResp{}
    for _, name := range reg.Names() {
        rb, err := reg.Rubric(name)
        if err != nil { continue }
        out = append(out, rubricResp{
            Name: name, Rule: rb.Spec.Rule, Filters: rb.Rule.Names(), Length: rb.Spec.EffectiveLength(),
            Cache: rb.Spec.Cached(), NoAuthors: rb.Spec.HidesAuthors(), Template: rb.Spec.Template,
        })
    }
    writeJSON(w, http.StatusOK, out)
}

// handleRoute accepts a JSON object or array of entries, routes and persists them.
func (s *AppServer) handleRoute(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    entries, err := decodeEntries(r.Body)
    if err != nil { writeErr(w, http.StatusBadRequest, err); return }
    if len(entries) > s.MaxBatch {
        writeErr(w, http.StatusRequestEntityTooLarge, fmt.Errorf("batch of %d entries exceeds limit %d", len(entries), s.MaxBatch)); return
    }

    reg := s.currentRegistry()
    results, err := reg.RouteBatch(r.Context(), entries)
    if err != nil { writeErr(w, http.StatusServiceUnavailable, err); return }

    type routeResult struct {
        Index int `json:"index"`
        ID    string `json:"id"`
        rubric.Membership
    }
    out := make([]routeResult, 0, len(entries))
    for i, rec := range entries {
        m := results[i]
        feed := toString(rec["_feed"])
        id := entryID(feed, rec)
        s.routed.Add(1)
        s.feeds.Observe(feed, len(m.Include), time.Now().UTC())
        s.included.Add(int64(len(m.Include)))
        if len(m.Errors) > 0 {
            s.failed.Add(1)
        }
        if s.db != nil {
            if err := s.saveEntry(r.Context(), id, feed, rec, m.Include); err != nil {
                log.Printf("save entry error: id=%s err=%v", id, err)
            } else if err := s.saveMemberships(r.Context(), reg, id, m); err != nil {
                log.Printf("save memberships error: id=%s err=%v", id, err)
            }
        }
        if len(m.Include) > 0 {
            log.Printf("ROUTE id=%s feed=%s rubrics=%v", id, feed, m.Include)
        }
        out = append(out, routeResult{Index: i, ID: id, Membership: m})
    }
    writeJSON(w, http.StatusOK, map[string]any{"routed": len(entries), "results": out})
}

// handleRubricEntries lists the newest entries of a rubric, limited by its length.
// Cached rubrics read stored memberships; others re-evaluate recent entries.
func (s *AppServer) handleRubricEntries(w http.ResponseWriter, r *http.Request) {
    name := r.PathValue("name")
    reg := s.currentRegistry()
    rb, err := reg.Rubric(name)
    if errors.Is(err, rubric.ErrRubricNotFound) { writeErr(w, http.StatusNotFound, err); return }
    if err != nil { writeErr(w, http.StatusInternalServerError, err); return }
    if s.db == nil { writeErr(w, http.StatusServiceUnavailable, errors.New("persistence disabled")); return }

    limit := rb.Spec.EffectiveLength()
    if v := r.URL.Query().Get("limit"); v != "" {
        if n, err := strconv.Atoi(v); err == nil && n > 0 && n < limit { limit = n }
    }

    var entries any
    if rb.Spec.Cached() {
        list, err := s.cachedEntries(r.Context(), name, limit)
        if err != nil { writeErr(w, http.StatusInternalServerError, err); return }
        entries = list
    } else {
        recent, err := s.recentEntries(r.Context(), s.ScanLimit)
        if err != nil { writeErr(w, http.StatusInternalServerError, err); return }
        selected, err := reg.Select(name, recent)
        if err != nil { writeErr(w, http.StatusInternalServerError, err); return }
        if len(selected) > limit { selected = selected[:limit] }
        entries = selected
    }
    writeJSON(w, http.StatusOK, map[string]any{
        "rubric": name, "title": rb.Spec.Template.Title, "subtitle": rb.Spec.Template.Subtitle,
        "entries": entries,
    })
}

// handleFeeds lists configured and observed feeds, most recently seen first.
func (s *AppServer) handleFeeds(w http.ResponseWriter, r *http.Request) {
    limit := 0
    if v := r.URL.Query().Get("limit"); v != "" {
        n, err := strconv.Atoi(v)
        if err != nil || n < 0 { writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v)); return }
        limit = n
    }
    if n := s.feeds.Expire(time.Now().UTC()); n > 0 {
        log.Printf("expired %d idle feeds", n)
    }
    writeJSON(w, http.StatusOK, s.feeds.List(s.currentRegistry().Feeds(), limit))
}

func (s *AppServer) handleDecide(w http.ResponseWriter, r *http.Request) {
    name := r.PathValue("name")
    entries, err := decodeEntries(r.Body)
    if err != nil { writeErr(w, http.StatusBadRequest, err); return }
    if len(entries) != 1 { writeErr(w, http.StatusBadRequest, errors.New("expected a single entry object")); return }
    res, err := s.currentRegistry().Decide(name, entries[0])
    if err != nil { writeErr(w, http.StatusUnprocessableEntity, err); return }
    writeJSON(w, http.StatusOK, map[string]any{"decision": name, "result": res})
}

// handleConfig supports GET (names in the active config) and POST (replace config).
// POST body: a JSON config document; "//" comment lines are allowed.
func (s *AppServer) handleConfig(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodGet:
        reg := s.currentRegistry()
        writeJSON(w, http.StatusOK, map[string]any{"filters": reg.Filters(), "rubrics": reg.Names(), "decisions": reg.Decisions()})
        return
    case http.MethodPost:
        body, err := io.ReadAll(io.LimitReader(r.Body, maxConfigBytes))
        if err != nil { writeErr(w, http.StatusBadRequest, err); return }
        cfg, err := rubric.LoadJSON(body)
        if err != nil { writeErr(w, http.StatusBadRequest, err); return }
        reg, err := rubric.Build(cfg, s.opts...)
        if err != nil { writeErr(w, http.StatusBadRequest, err); return }
        if s.db != nil {
            if err := s.purgeMemberships(r.Context()); err != nil { writeErr(w, http.StatusInternalServerError, err); return }
        }
        s.swapRegistry(reg)
        writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "filters": len(reg.Filters()), "rubrics": len(reg.Names())})
        return
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
}

// ---- Helpers ----

func decodeEntries(body io.Reader) ([]ir.Record, error) {
    dec := json.NewDecoder(body)
    dec.UseNumber()
    var payload any
    if err := dec.Decode(&payload); err != nil { return nil, fmt.Errorf("invalid JSON: %w", err) }
    switch t := payload.(type) {
    case map[string]any:
        return []ir.Record{t}, nil
    case []any:
        out := make([]ir.Record, 0, len(t))
        for i, it := range t {
            m, ok := it.(map[string]any)
            if !ok { return nil, fmt.Errorf("entry %d is not an object", i) }
            out = append(out, m)
        }
        return out, nil
    }
    return nil, fmt.Errorf("payload must be object or array of objects")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(code)
    if err := json.NewEncoder(w).Encode(v); err != nil {
        log.Printf("writeJSON error: %v", err)
    }
}

func writeErr(w http.ResponseWriter, code int, err error) {
    writeJSON(w, code, map[string]any{"error": err.Error()})
}
