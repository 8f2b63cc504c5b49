package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/volna-retail/loyalty-backend/pkg/logger"
)

type IdempotencyPurgeJobParams struct {
	Logger *logger.Logger
	Store  idempotencyPurger
}

type idempotencyPurger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// NewIdempotencyPurgeJob removes idempotency keys past their expiry.
// Expired keys are storage hygiene only; correctness never depends on
// the purge running.
func NewIdempotencyPurgeJob(params IdempotencyPurgeJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("idempotency store required")
	}
	return &idempotencyPurgeJob{
		logg:  params.Logger,
		store: params.Store,
		now:   time.Now,
	}, nil
}

type idempotencyPurgeJob struct {
	logg  *logger.Logger
	store idempotencyPurger
	now   func() time.Time
}

func (j *idempotencyPurgeJob) Name() string { return "idempotency-purge" }

func (j *idempotencyPurgeJob) Run(ctx context.Context) error {
	purged, err := j.store.PurgeExpired(ctx, j.now().UTC())
	if err != nil {
		return fmt.Errorf("idempotency purge: %w", err)
	}
	logCtx := j.logg.WithField(ctx, "rows_deleted", purged)
	j.logg.Info(logCtx, "idempotency purge complete")
	return nil
}
