package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/posturepulse/dashboard/internal/config"
	"github.com/posturepulse/dashboard/internal/models"
	"github.com/posturepulse/dashboard/internal/posture"
	"github.com/posturepulse/dashboard/internal/repository"
)

// maxClockSkew bounds how far in the future a record timestamp may be
const maxClockSkew = 5 * time.Minute

// Notifier announces that a subject has new samples
type Notifier interface {
	Publish(ctx context.Context, subjectID string) error
}

type PostureService struct {
	repo     repository.Repository
	notifier Notifier
	cfg      config.PostureConfig
	logger   *zap.Logger
	metrics  *serviceMetrics
	now      func() time.Time
}

// NewPostureService creates the service. notifier may be nil.
func NewPostureService(
	repo repository.Repository,
	notifier Notifier,
	cfg config.PostureConfig,
	reg prometheus.Registerer,
	logger *zap.Logger,
) *PostureService {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &PostureService{
		repo:     repo,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "posture-service")),
		metrics:  newServiceMetrics(reg),
		now:      time.Now,
	}
}

// Location returns the timezone days and hours are computed in
func (s *PostureService) Location() *time.Location {
	return s.cfg.Location
}

// Health checks the sample store
func (s *PostureService) Health(ctx context.Context) error {
	return s.repo.Health(ctx)
}

// StoreRecords validates and stores a batch for subjectID, then announces it
func (s *PostureService) StoreRecords(ctx context.Context, subjectID string, batch *models.BatchRecords) ([]posture.Sample, error) {
	if len(batch.Records) == 0 {
		return nil, &ValidationError{Index: -1, Reason: "no records"}
	}

	now := s.now()
	samples := make([]posture.Sample, 0, len(batch.Records))
	for i, record := range batch.Records {
		if record.Sitting == nil {
			return nil, &ValidationError{Index: i, Reason: "sitting is required"}
		}

		if record.Timestamp.IsZero() {
			record.Timestamp = now
		}
		if record.Timestamp.After(now.Add(maxClockSkew)) {
			return nil, &ValidationError{Index: i, Reason: "timestamp is in the future"}
		}

		if record.ID == "" {
			record.ID = uuid.NewString()
		}

		samples = append(samples, posture.Sample{
			ID:        record.ID,
			Timestamp: record.Timestamp.UTC(),
			Sitting:   record.Sitting,
		})
	}

	if err := s.repo.StoreRecords(ctx, subjectID, samples); err != nil {
		return nil, fmt.Errorf("store records: %w", err)
	}
	s.metrics.ingestedRecords.Add(float64(len(samples)))

	if s.notifier != nil {
		if err := s.notifier.Publish(ctx, subjectID); err != nil {
			// the dashboard still catches up on its next poll
			s.logger.Warn("Failed to publish feed event",
				zap.String("subject_id", subjectID),
				zap.Error(err))
		}
	}

	return samples, nil
}

// WindowParams resolves a window request into a store query. A zero day means
// today; a non-positive limit means the configured default.
func (s *PostureService) WindowParams(subjectID string, kind models.WindowKind, day time.Time, limit int) (models.QueryParams, error) {
	switch kind {
	case models.WindowToday, "":
		if day.IsZero() {
			day = s.now()
		}
		return models.DayParams(subjectID, day, s.cfg.Location), nil
	case models.WindowLatest:
		if limit <= 0 {
			limit = s.cfg.LatestLimit
		}
		if s.cfg.MaxLimit > 0 && limit > s.cfg.MaxLimit {
			return models.QueryParams{}, fmt.Errorf("%w: limit must not exceed %d", ErrInvalidWindow, s.cfg.MaxLimit)
		}
		return models.LatestParams(subjectID, limit), nil
	default:
		return models.QueryParams{}, fmt.Errorf("%w: unknown window %q", ErrInvalidWindow, kind)
	}
}

// Dashboard loads the window selected by params and aggregates it
func (s *PostureService) Dashboard(ctx context.Context, params models.QueryParams) (posture.Dashboard, error) {
	samples, err := s.repo.QueryRecords(ctx, params)
	if err != nil {
		s.metrics.aggregations.WithLabelValues("store_error").Inc()
		return posture.Dashboard{}, fmt.Errorf("query records: %w", err)
	}

	dash, err := posture.BuildDashboard(samples, s.cfg.IntervalMinutes, s.cfg.Location)
	if err != nil {
		s.metrics.aggregations.WithLabelValues("error").Inc()
		return posture.Dashboard{}, err
	}
	s.metrics.aggregations.WithLabelValues("ok").Inc()

	if n := len(dash.Filtered); n > 0 {
		s.metrics.filteredSamples.Add(float64(n))
		s.logger.Warn("Dropped malformed samples",
			zap.String("subject_id", params.SubjectID),
			zap.Int("count", n),
			zap.String("first", dash.Filtered[0].Error()))
	}

	return dash, nil
}

// TodayDashboard aggregates the current calendar day for subjectID
func (s *PostureService) TodayDashboard(ctx context.Context, subjectID string) (posture.Dashboard, error) {
	return s.Dashboard(ctx, models.DayParams(subjectID, s.now(), s.cfg.Location))
}
