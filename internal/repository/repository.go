package repository

import (
	"context"
	"fmt"

	"github.com/posturepulse/dashboard/internal/config"
	"github.com/posturepulse/dashboard/internal/models"
	"github.com/posturepulse/dashboard/internal/posture"
	"github.com/posturepulse/dashboard/internal/repository/influxdb"
	"github.com/posturepulse/dashboard/internal/repository/postgres"
)

// Repository is the sample store
type Repository interface {
	StoreRecords(ctx context.Context, subjectID string, samples []posture.Sample) error
	QueryRecords(ctx context.Context, params models.QueryParams) ([]posture.Sample, error)
	Health(ctx context.Context) error
	Close()
}

// Open connects to the store named by cfg.Driver
func Open(ctx context.Context, cfg config.StoreConfig) (Repository, error) {
	switch cfg.Driver {
	case "postgres":
		repo, err := postgres.NewRepository(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		if err := repo.Migrate(ctx); err != nil {
			repo.Close()
			return nil, fmt.Errorf("migrate posture_records: %w", err)
		}
		return repo, nil
	case "influxdb":
		repo, err := influxdb.NewRepository(ctx, cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket)
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
