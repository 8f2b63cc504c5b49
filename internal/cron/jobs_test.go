package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/volna-retail/loyalty-backend/internal/audit"
	"github.com/volna-retail/loyalty-backend/pkg/logger"
)

type fakePurger struct {
	purged  int64
	err     error
	called  int
	lastNow time.Time
}

func (f *fakePurger) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	f.called++
	f.lastNow = now
	return f.purged, f.err
}

func TestIdempotencyPurgeJobPurgesWithCurrentTime(t *testing.T) {
	now := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	store := &fakePurger{purged: 7}
	job, err := NewIdempotencyPurgeJob(IdempotencyPurgeJobParams{
		Logger: logger.New(logger.Options{ServiceName: "cron-test"}),
		Store:  store,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	job.(*idempotencyPurgeJob).now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if store.called != 1 {
		t.Fatalf("expected one purge call, got %d", store.called)
	}
	if !store.lastNow.Equal(now) {
		t.Fatalf("expected purge at %s, got %s", now, store.lastNow)
	}
}

func TestIdempotencyPurgeJobPropagatesError(t *testing.T) {
	store := &fakePurger{err: errors.New("boom")}
	job, err := NewIdempotencyPurgeJob(IdempotencyPurgeJobParams{
		Logger: logger.New(logger.Options{ServiceName: "cron-test"}),
		Store:  store,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

type fakeVerifier struct {
	result *audit.VerifyResult
	err    error
}

func (f *fakeVerifier) VerifyChain(context.Context) (*audit.VerifyResult, error) {
	return f.result, f.err
}

func TestAuditVerifyJobPassesOnIntactChain(t *testing.T) {
	job, err := NewAuditVerifyJob(AuditVerifyJobParams{
		Logger:  logger.New(logger.Options{ServiceName: "cron-test"}),
		Auditor: &fakeVerifier{result: &audit.VerifyResult{Chain: "global", Checked: 10, Intact: true}},
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestAuditVerifyJobFailsOnBrokenChain(t *testing.T) {
	result := &audit.VerifyResult{
		Chain:   "global",
		Checked: 10,
		Intact:  false,
		Breaks:  []audit.VerifyBreak{{EntryID: 3, Reason: "stored hash does not match entry content"}},
	}
	job, err := NewAuditVerifyJob(AuditVerifyJobParams{
		Logger:  logger.New(logger.Options{ServiceName: "cron-test"}),
		Auditor: &fakeVerifier{result: result},
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error for broken chain")
	}
}

func TestAuditVerifyJobPropagatesVerifierError(t *testing.T) {
	job, err := NewAuditVerifyJob(AuditVerifyJobParams{
		Logger:  logger.New(logger.Options{ServiceName: "cron-test"}),
		Auditor: &fakeVerifier{err: errors.New("db down")},
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
