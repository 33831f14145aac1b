package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
)

const (
	cartExpiryJobName      = "cart-expiry"
	defaultCartExpiryBatch = 500
	defaultMaxBatches      = 20
)

type cartExpirer interface {
	ExpireStale(ctx context.Context, now time.Time, limit int) (int64, error)
}

// CartExpiryJobParams configure the stale cart sweep.
type CartExpiryJobParams struct {
	Logger     *logger.Logger
	Carts      cartExpirer
	Metrics    *metrics.CronJobMetrics
	BatchSize  int
	MaxBatches int
}

// NewCartExpiryJob builds the job that marks active carts past expires_at
// as expired.
func NewCartExpiryJob(params CartExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultCartExpiryBatch
	}
	maxBatches := params.MaxBatches
	if maxBatches <= 0 {
		maxBatches = defaultMaxBatches
	}
	return &cartExpiryJob{
		logg:       params.Logger,
		carts:      params.Carts,
		metrics:    params.Metrics,
		batch:      batch,
		maxBatches: maxBatches,
		now:        time.Now,
	}, nil
}

type cartExpiryJob struct {
	logg       *logger.Logger
	carts      cartExpirer
	metrics    *metrics.CronJobMetrics
	batch      int
	maxBatches int
	now        func() time.Time
}

func (j *cartExpiryJob) Name() string { return cartExpiryJobName }

// Run expires carts in bounded batches. A short batch means the backlog is
// drained; the batch cap leaves the rest for the next cycle.
func (j *cartExpiryJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	var total int64
	batches := 0
	for batches < j.maxBatches {
		if err := ctx.Err(); err != nil {
			return err
		}
		expired, err := j.carts.ExpireStale(ctx, now, j.batch)
		batches++
		total += expired
		if err != nil {
			j.metrics.AddAffected(cartExpiryJobName, total)
			return fmt.Errorf("cart expiry batch %d: %w", batches, err)
		}
		if expired < int64(j.batch) {
			break
		}
	}
	j.metrics.AddAffected(cartExpiryJobName, total)

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":        now,
		"batches":       batches,
		"carts_expired": total,
	})
	j.logg.Info(logCtx, "cart expiry complete")
	return nil
}
