package rubric

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	ir "github.com/PhucNguyen204/rubricfeed/filterengine"
	"github.com/PhucNguyen204/rubricfeed/filterengine/compiler"
	"github.com/PhucNguyen204/rubricfeed/filterengine/matcher"
)

var ErrRubricNotFound = errors.New("rubric not found")

// Logger nhận lỗi đánh giá theo từng record.
type Logger interface {
	Printf(format string, v ...any)
}

type Rubric struct {
	Name string
	Spec RubricSpec
	Rule *compiler.CompiledPredicate
}

// Membership giống _rubrics của entry: rubric chứa / loại entry.
type Membership struct {
	Include []string          `json:"include"`
	Exclude []string          `json:"exclude"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// Registry bất biến sau Build; dùng chung giữa nhiều goroutine.
type Registry struct {
	family    *Family
	filters   map[string]*compiler.CompiledFilter
	rubrics   map[string]*Rubric
	names     []string
	decisions map[string]Decision
	feeds     map[string]FeedSpec
	logger    Logger
	workers   int
}

type options struct {
	logger  Logger
	now     func() time.Time
	workers int
	engine  *ir.EngineConfig
}

type Option func(*options)

func WithLogger(l Logger) Option { return func(o *options) { o.logger = l } }

// WithClock thay đồng hồ cho các field ảo age/added_ago.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

func WithWorkers(n int) Option { return func(o *options) { o.workers = n } }

// WithEngineConfig ghi đè cấu hình engine mặc định của họ entry.
func WithEngineConfig(cfg ir.EngineConfig) Option {
	return func(o *options) { o.engine = &cfg }
}

// Build compile mọi filter, rubric và cây quyết định; lỗi đầu tiên làm dừng.
func Build(cfg Config, opts ...Option) (*Registry, error) {
	o := options{logger: log.Default(), workers: 4}
	for _, fn := range opts {
		fn(&o)
	}
	if o.workers < 1 {
		o.workers = 1
	}

	family, err := NewEntryFamily(cfg.Fields, cfg.Feeds, o.now)
	if err != nil {
		return nil, err
	}
	if o.engine != nil {
		family.Engine = *o.engine
		family.Rules = family.Rules.WithMatchTimeout(o.engine.MatchTimeout)
	}

	comp := compiler.New(family.Fields,
		compiler.WithConfig(family.Engine),
		compiler.WithRegistry(matcher.NewRegistry(family.Rules)))
	filters, err := comp.CompileFilters(cfg.Filters)
	if err != nil {
		return nil, err
	}

	funcs := make(map[string]compiler.Predicate, len(filters))
	for name, f := range filters {
		funcs[name] = f.Predicate()
	}

	r := &Registry{
		family:  family,
		filters: filters,
		rubrics: make(map[string]*Rubric, len(cfg.Rubrics)),
		feeds:   cfg.Feeds,
		logger:  o.logger,
		workers: o.workers,
	}
	for _, name := range sortedKeys(cfg.Rubrics) {
		spec := cfg.Rubrics[name]
		if err := spec.Validate(); err != nil {
			return nil, fmt.Errorf("rubric %q: %w", name, err)
		}
		rule, err := compiler.CompilePredicate(spec.Rule, funcs)
		if err != nil {
			return nil, fmt.Errorf("rubric %q: %w", name, err)
		}
		r.rubrics[name] = &Rubric{Name: name, Spec: spec, Rule: rule}
		r.names = append(r.names, name)
	}

	r.decisions, err = compileDecisions(cfg.Decisions, funcs)
	if err != nil {
		return nil, err
	}

	o.logger.Printf("rubrics loaded: filters=%d rubrics=%d decisions=%d", len(filters), len(r.rubrics), len(r.decisions))
	return r, nil
}

func (r *Registry) Family() *Family { return r.family }

// Names trả về tên rubric theo thứ tự.
func (r *Registry) Names() []string { return append([]string(nil), r.names...) }

func (r *Registry) Filters() []string { return sortedKeys(r.filters) }

func (r *Registry) Filter(name string) (*compiler.CompiledFilter, bool) {
	f, ok := r.filters[name]
	return f, ok
}

func (r *Registry) Feeds() map[string]FeedSpec { return r.feeds }

func (r *Registry) Stats() compiler.FilterCompilationStats {
	st, _ := compiler.CollectStats(r.filters)
	return st
}

// Rubric tìm rubric theo tên; không có => ErrRubricNotFound.
func (r *Registry) Rubric(name string) (*Rubric, error) {
	rb, ok := r.rubrics[name]
	if !ok {
		r.logger.Printf("rubric '%s' not found", name)
		return nil, fmt.Errorf("%w: %s", ErrRubricNotFound, name)
	}
	return rb, nil
}

// Match đánh giá một rubric trên một record.
func (r *Registry) Match(name string, rec ir.Record) (bool, error) {
	rb, err := r.Rubric(name)
	if err != nil {
		return false, err
	}
	return rb.Rule.Evaluate(rec)
}

// Route đánh giá mọi rubric; lỗi của một rubric được ghi lại và không ảnh hưởng rubric khác.
func (r *Registry) Route(rec ir.Record) Membership {
	m := Membership{Include: []string{}, Exclude: []string{}}
	for _, name := range r.names {
		ok, err := r.rubrics[name].Rule.Evaluate(rec)
		if err != nil {
			r.logger.Printf("route: rubric=%s err=%v", name, err)
			if m.Errors == nil {
				m.Errors = map[string]string{}
			}
			m.Errors[name] = err.Error()
			continue
		}
		if ok {
			m.Include = append(m.Include, name)
		} else {
			m.Exclude = append(m.Exclude, name)
		}
	}
	return m
}

// Select trả về tối đa length record khớp rubric (theo thứ tự đầu vào).
func (r *Registry) Select(name string, recs []ir.Record) ([]ir.Record, error) {
	rb, err := r.Rubric(name)
	if err != nil {
		return nil, err
	}
	limit := rb.Spec.EffectiveLength()
	out := make([]ir.Record, 0, min(limit, len(recs)))
	for i, rec := range recs {
		if len(out) >= limit {
			break
		}
		ok, err := rb.Rule.Evaluate(rec)
		if err != nil {
			r.logger.Printf("select: rubric=%s record=%d err=%v", name, i, err)
			continue
		}
		if ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// RouteBatch định tuyến nhiều record song song với số worker giới hạn.
// Kết quả giữ thứ tự đầu vào; ctx bị huỷ thì dừng nhận việc mới.
func (r *Registry) RouteBatch(ctx context.Context, recs []ir.Record) ([]Membership, error) {
	out := make([]Membership, len(recs))
	jobs := make(chan int)
	var wg sync.WaitGroup

	workers := min(r.workers, len(recs))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				out[i] = r.Route(recs[i])
			}
		}()
	}

	var err error
feed:
	for i := range recs {
		if err = ctx.Err(); err != nil {
			break
		}
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()
	return out, err
}

// Decide chạy cây quyết định có tên.
func (r *Registry) Decide(name string, rec ir.Record) (any, error) {
	d, ok := r.decisions[name]
	if !ok {
		return nil, fmt.Errorf("unknown decision tree %q", name)
	}
	return d(rec)
}

func (r *Registry) Decisions() []string { return sortedKeys(r.decisions) }
