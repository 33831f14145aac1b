package cron

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-backend/internal/cart"
	"github.com/angelmondragon/marketplace-backend/pkg/db/dbtest"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
)

type scriptedExpirer struct {
	results []int64
	err     error
	calls   int
	limits  []int
}

func (s *scriptedExpirer) ExpireStale(_ context.Context, _ time.Time, limit int) (int64, error) {
	s.limits = append(s.limits, limit)
	idx := s.calls
	s.calls++
	if idx < len(s.results) {
		return s.results[idx], nil
	}
	return 0, s.err
}

func newCartExpiryJob(t *testing.T, carts cartExpirer, batch int) *cartExpiryJob {
	t.Helper()
	job, err := NewCartExpiryJob(CartExpiryJobParams{
		Logger:     testLogger(&bytes.Buffer{}),
		Carts:      carts,
		Metrics:    metrics.NewCronJobMetrics(prometheus.NewRegistry()),
		BatchSize:  batch,
		MaxBatches: 3,
	})
	require.NoError(t, err)
	typed, ok := job.(*cartExpiryJob)
	require.True(t, ok)
	return typed
}

func TestCartExpiryJobDrainsInBatches(t *testing.T) {
	expirer := &scriptedExpirer{results: []int64{2, 2, 1}}
	job := newCartExpiryJob(t, expirer, 2)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 3, expirer.calls)
	assert.Equal(t, []int{2, 2, 2}, expirer.limits)
}

func TestCartExpiryJobStopsAtBatchCap(t *testing.T) {
	expirer := &scriptedExpirer{results: []int64{2, 2, 2, 2, 2}}
	job := newCartExpiryJob(t, expirer, 2)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 3, expirer.calls)
}

func TestCartExpiryJobPropagatesErrors(t *testing.T) {
	expirer := &scriptedExpirer{err: errors.New("db down")}
	job := newCartExpiryJob(t, expirer, 2)

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "db down")
}

func TestCartExpiryJobExpiresStoredCarts(t *testing.T) {
	conn := dbtest.Open(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stale := &models.Cart{CustomerID: uuid.New(), Status: enums.CartStatusActive, ExpiresAt: now.Add(-time.Hour)}
	fresh := &models.Cart{CustomerID: uuid.New(), Status: enums.CartStatusActive, ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, conn.Create(stale).Error)
	require.NoError(t, conn.Create(fresh).Error)

	job := newCartExpiryJob(t, cart.NewRepository(conn), 10)
	job.now = func() time.Time { return now }
	require.NoError(t, job.Run(context.Background()))

	var expired, untouched models.Cart
	require.NoError(t, conn.First(&expired, "id = ?", stale.ID).Error)
	assert.Equal(t, enums.CartStatusExpired, expired.Status)
	require.NoError(t, conn.First(&untouched, "id = ?", fresh.ID).Error)
	assert.Equal(t, enums.CartStatusActive, untouched.Status)
}
