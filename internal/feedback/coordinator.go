package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/posturepulse/dashboard/internal/archive"
	"github.com/posturepulse/dashboard/internal/models"
	"github.com/posturepulse/dashboard/internal/posture"
)

// Kind selects which text is generated
type Kind string

const (
	// KindFeedback is personalised coaching over the posture data
	KindFeedback Kind = "feedback"
	// KindDailySummary summarizes one calendar day
	KindDailySummary Kind = "daily_summary"
)

// DateLayout is the form of Request and Result dates
const DateLayout = "2006-01-02"

var (
	ErrUnknownKind      = errors.New("unknown feedback kind")
	ErrRateLimited      = errors.New("feedback rate limit exceeded")
	ErrSuperseded       = errors.New("feedback request superseded by a newer one")
	ErrGenerationFailed = errors.New("feedback generation failed")
	ErrNoActivity       = errors.New("no posture activity in window")
	ErrNotFound         = errors.New("no feedback available")
)

// Generator produces text for a prompt
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// DashboardLoader aggregates a stored sample window
type DashboardLoader interface {
	Dashboard(ctx context.Context, params models.QueryParams) (posture.Dashboard, error)
}

// Request asks for one generation. A zero Date means today.
type Request struct {
	SubjectID string
	Kind      Kind
	Date      time.Time
}

// Result is a generated text together with the figures it was based on
type Result struct {
	SubjectID   string          `json:"subjectId"`
	Kind        Kind            `json:"kind"`
	Date        string          `json:"date"`
	Text        string          `json:"text"`
	Summary     posture.Summary `json:"summary"`
	Generation  uint64          `json:"generation"`
	GeneratedAt time.Time       `json:"generatedAt"`
}

type inflight struct {
	generation uint64
	cancel     context.CancelFunc
}

// Coordinator runs at most one generation per subject. A new trigger cancels
// the previous in-flight call and only the newest generation may complete.
type Coordinator struct {
	loader    DashboardLoader
	generator Generator
	cache     *Cache
	archive   archive.Store
	limiter   *subjectLimiter
	loc       *time.Location
	logger    *zap.Logger
	requests  *prometheus.CounterVec
	now       func() time.Time

	mu          sync.Mutex
	generations map[string]uint64
	running     map[string]inflight
}

// Options configures a Coordinator. Cache and Archive may be nil.
type Options struct {
	Loader            DashboardLoader
	Generator         Generator
	Cache             *Cache
	Archive           archive.Store
	RequestsPerSecond float64
	Burst             int
	Location          *time.Location
	Registerer        prometheus.Registerer
	Logger            *zap.Logger
}

func NewCoordinator(opts Options) *Coordinator {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	store := opts.Archive
	if store == nil {
		store = archive.NewNoopStore()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Coordinator{
		loader:    opts.Loader,
		generator: opts.Generator,
		cache:     opts.Cache,
		archive:   store,
		limiter:   newSubjectLimiter(opts.RequestsPerSecond, opts.Burst),
		loc:       loc,
		logger:    logger.With(zap.String("component", "feedback")),
		requests: promauto.With(opts.Registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "posture_feedback_requests_total",
				Help: "Feedback generation requests, by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		now:         time.Now,
		generations: make(map[string]uint64),
		running:     make(map[string]inflight),
	}
}

// Trigger generates text for req. Aggregation results are never affected by a
// failed generation.
func (c *Coordinator) Trigger(ctx context.Context, req Request) (Result, error) {
	result, err := c.trigger(ctx, req)

	kind := string(req.Kind)
	if errors.Is(err, ErrUnknownKind) {
		kind = "unknown"
	}
	c.requests.WithLabelValues(kind, outcome(err)).Inc()
	return result, err
}

func (c *Coordinator) trigger(ctx context.Context, req Request) (Result, error) {
	if req.Kind != KindFeedback && req.Kind != KindDailySummary {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownKind, req.Kind)
	}
	if !c.limiter.allow(req.SubjectID) {
		return Result{}, ErrRateLimited
	}

	day := req.Date
	if day.IsZero() {
		day = c.now()
	}
	date := day.In(c.loc).Format(DateLayout)

	gen, runCtx := c.begin(ctx, req.SubjectID)
	defer c.end(req.SubjectID, gen)

	dash, err := c.loader.Dashboard(runCtx, models.DayParams(req.SubjectID, day, c.loc))
	if err != nil {
		if c.superseded(req.SubjectID, gen) {
			return Result{}, ErrSuperseded
		}
		return Result{}, fmt.Errorf("load posture window: %w", err)
	}
	if dash.Empty {
		return Result{}, ErrNoActivity
	}

	prompt, err := renderPrompt(req.Kind, req.SubjectID, date, dash.Serialized)
	if err != nil {
		return Result{}, err
	}

	text, err := c.generator.Generate(runCtx, prompt)
	if c.superseded(req.SubjectID, gen) {
		return Result{}, ErrSuperseded
	}
	if err != nil {
		c.logger.Warn("Generation failed",
			zap.String("subject_id", req.SubjectID),
			zap.String("kind", string(req.Kind)),
			zap.Error(err))
		return Result{}, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}

	result := Result{
		SubjectID:   req.SubjectID,
		Kind:        req.Kind,
		Date:        date,
		Text:        text,
		Summary:     dash.Summary,
		Generation:  gen,
		GeneratedAt: c.now().UTC(),
	}
	if !c.keep(ctx, result) {
		return Result{}, ErrSuperseded
	}
	return result, nil
}

// Latest returns the last successful result for subjectID. When the cache has
// expired it falls back to the archived copy.
func (c *Coordinator) Latest(ctx context.Context, subjectID string) (Result, error) {
	if c.cache != nil {
		result, err := c.cache.Get(ctx, subjectID)
		if !errors.Is(err, ErrNotFound) {
			return result, err
		}
	}

	payload, err := c.archive.LoadJSON(ctx, latestKey(subjectID))
	if errors.Is(err, archive.ErrNotConfigured) || errors.Is(err, archive.ErrNotFound) {
		return Result{}, ErrNotFound
	}
	if err != nil {
		return Result{}, fmt.Errorf("load archived feedback: %w", err)
	}

	var result Result
	if err := json.Unmarshal(payload, &result); err != nil {
		return Result{}, fmt.Errorf("decode archived feedback: %w", err)
	}
	return result, nil
}

func (c *Coordinator) begin(ctx context.Context, subjectID string) (uint64, context.Context) {
	runCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.running[subjectID]; ok {
		prev.cancel()
	}
	c.generations[subjectID]++
	gen := c.generations[subjectID]
	c.running[subjectID] = inflight{generation: gen, cancel: cancel}
	return gen, runCtx
}

func (c *Coordinator) end(subjectID string, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if run, ok := c.running[subjectID]; ok && run.generation == gen {
		run.cancel()
		delete(c.running, subjectID)
	}
}

func (c *Coordinator) superseded(subjectID string, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[subjectID] != gen
}

// keep caches and archives a result unless a newer generation has started.
// The generation check and the writes of the latest copy share c.mu with begin,
// so a stale result can never replace a newer one. Failures are logged only.
func (c *Coordinator) keep(ctx context.Context, result Result) bool {
	payload, err := json.Marshal(result)
	if err != nil {
		return false
	}

	c.mu.Lock()
	if c.generations[result.SubjectID] != result.Generation {
		c.mu.Unlock()
		return false
	}
	if c.cache != nil {
		if err := c.cache.Put(ctx, result); err != nil {
			c.logger.Warn("Failed to cache feedback", zap.String("subject_id", result.SubjectID), zap.Error(err))
		}
	}
	c.archiveJSON(ctx, latestKey(result.SubjectID), payload)
	c.mu.Unlock()

	key := fmt.Sprintf("%s/%s/%s-%d.json", result.SubjectID, result.Date, result.Kind, result.GeneratedAt.UnixMilli())
	c.archiveJSON(ctx, key, payload)
	return true
}

func (c *Coordinator) archiveJSON(ctx context.Context, key string, payload json.RawMessage) {
	if err := c.archive.StoreJSON(ctx, key, payload); err != nil && !errors.Is(err, archive.ErrNotConfigured) {
		c.logger.Warn("Failed to archive feedback", zap.String("key", key), zap.Error(err))
	}
}

func latestKey(subjectID string) string {
	return subjectID + "/latest.json"
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrSuperseded):
		return "superseded"
	case errors.Is(err, ErrNoActivity):
		return "no_activity"
	case errors.Is(err, ErrGenerationFailed):
		return "generation_failed"
	case errors.Is(err, ErrUnknownKind):
		return "invalid"
	default:
		return "error"
	}
}
