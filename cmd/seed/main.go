package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/posturepulse/dashboard/internal/auth"
	"github.com/posturepulse/dashboard/internal/config"
	"github.com/posturepulse/dashboard/internal/posture"
	"github.com/posturepulse/dashboard/internal/repository"
)

func main() {
	var (
		subject = pflag.StringP("subject", "s", "demo-user", "subject id to seed samples for")
		date    = pflag.StringP("date", "d", "", "day to generate, YYYY-MM-DD (default today)")
		days    = pflag.IntP("days", "n", 1, "number of consecutive days to generate, ending at --date")
		seed    = pflag.Int64("seed", 0, "random seed (default: current time)")
		token   = pflag.Bool("token", true, "print a bearer token for the subject")
	)
	pflag.Parse()

	cfg := config.LoadConfig()

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger, *subject, *date, *days, *seed, *token); err != nil {
		logger.Fatal("Seeding failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger, subject, date string, days int, seed int64, printToken bool) error {
	if days < 1 {
		return fmt.Errorf("--days must be at least 1")
	}

	last := time.Now().In(cfg.Posture.Location)
	if date != "" {
		parsed, err := time.ParseInLocation("2006-01-02", date, cfg.Posture.Location)
		if err != nil {
			return fmt.Errorf("parse --date: %w", err)
		}
		last = parsed
	}

	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo, err := repository.Open(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer repo.Close()

	for i := days - 1; i >= 0; i-- {
		day := last.AddDate(0, 0, -i)
		samples := mockDay(subject, day, rng)

		if err := repo.StoreRecords(ctx, subject, samples); err != nil {
			return fmt.Errorf("store %s: %w", day.Format("2006-01-02"), err)
		}

		result, err := posture.Aggregate(samples, cfg.Posture.IntervalMinutes)
		if err != nil {
			return err
		}
		logger.Info("Seeded day",
			zap.String("subject_id", subject),
			zap.String("date", day.Format("2006-01-02")),
			zap.Int("samples", len(samples)),
			zap.Int("sessions", len(result.Sessions)),
			zap.Int("sitting_percentage", result.Summary.SittingPercentage))
	}

	if printToken {
		signed, err := auth.NewJWTManager(&cfg.JWT).GenerateToken(subject, "user")
		if err != nil {
			return err
		}
		fmt.Println(signed)
	}
	return nil
}

// mockDay prefixes generated ids with the subject and date so seeding one
// subject never overwrites another's rows
func mockDay(subject string, day time.Time, rng *rand.Rand) []posture.Sample {
	samples := posture.MockDay(day, rng)
	for i := range samples {
		samples[i].ID = fmt.Sprintf("%s-%s-%s", subject, day.Format("20060102"), samples[i].ID)
	}
	return samples
}
