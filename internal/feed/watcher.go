package feed

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/posturepulse/dashboard/internal/posture"
)

// Loader recomputes a subject's dashboard from the store
type Loader interface {
	TodayDashboard(ctx context.Context, subjectID string) (posture.Dashboard, error)
}

// Watcher subscribes to the update channels and refreshes snapshots. Every
// event triggers a full reload and re-aggregation; results are never merged.
type Watcher struct {
	client    redis.UniversalClient
	prefix    string
	loader    Loader
	snapshots *Snapshots
	logger    *zap.Logger
	events    *prometheus.CounterVec

	ready     chan struct{}
	readyOnce sync.Once
	wg        sync.WaitGroup
}

func NewWatcher(
	client redis.UniversalClient,
	prefix string,
	loader Loader,
	snapshots *Snapshots,
	reg prometheus.Registerer,
	logger *zap.Logger,
) *Watcher {
	return &Watcher{
		client:    client,
		prefix:    prefix,
		loader:    loader,
		snapshots: snapshots,
		logger:    logger.With(zap.String("component", "feed-watcher")),
		events: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "posture_feed_events_total",
				Help: "Live feed refreshes, by outcome",
			},
			[]string{"outcome"},
		),
		ready: make(chan struct{}),
	}
}

// Ready is closed once the subscription is active
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Run consumes events until ctx is cancelled, then waits for in-flight refreshes
func (w *Watcher) Run(ctx context.Context) error {
	pubsub := w.client.PSubscribe(ctx, w.prefix+":*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s:*: %w", w.prefix, err)
	}
	w.readyOnce.Do(func() { close(w.ready) })
	w.logger.Info("Live feed subscribed", zap.String("pattern", w.prefix+":*"))

	defer w.wg.Wait()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			subjectID := strings.TrimPrefix(msg.Channel, w.prefix+":")
			if subjectID == "" || subjectID == msg.Channel {
				continue
			}
			gen := w.snapshots.Begin(subjectID)
			w.wg.Add(1)
			go w.refresh(ctx, subjectID, gen)
		}
	}
}

func (w *Watcher) refresh(ctx context.Context, subjectID string, gen uint64) {
	defer w.wg.Done()

	dash, err := w.loader.TodayDashboard(ctx, subjectID)
	if err != nil {
		w.events.WithLabelValues("error").Inc()
		w.logger.Error("Failed to refresh dashboard",
			zap.String("subject_id", subjectID),
			zap.Uint64("generation", gen),
			zap.Error(err))
		return
	}

	if !w.snapshots.Offer(subjectID, gen, dash) {
		w.events.WithLabelValues("stale").Inc()
		w.logger.Debug("Discarded stale refresh",
			zap.String("subject_id", subjectID),
			zap.Uint64("generation", gen))
		return
	}
	w.events.WithLabelValues("applied").Inc()
}
