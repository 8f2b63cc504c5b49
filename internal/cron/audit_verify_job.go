package cron

import (
	"context"
	"fmt"

	"github.com/volna-retail/loyalty-backend/internal/audit"
	"github.com/volna-retail/loyalty-backend/pkg/logger"
)

type AuditVerifyJobParams struct {
	Logger  *logger.Logger
	Auditor chainVerifier
}

type chainVerifier interface {
	VerifyChain(ctx context.Context) (*audit.VerifyResult, error)
}

// NewAuditVerifyJob walks the audit chain on a schedule so tampering
// surfaces without waiting for an operator-triggered check.
func NewAuditVerifyJob(params AuditVerifyJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Auditor == nil {
		return nil, fmt.Errorf("audit service required")
	}
	return &auditVerifyJob{logg: params.Logger, auditor: params.Auditor}, nil
}

type auditVerifyJob struct {
	logg    *logger.Logger
	auditor chainVerifier
}

func (j *auditVerifyJob) Name() string { return "audit-verify" }

func (j *auditVerifyJob) Run(ctx context.Context) error {
	result, err := j.auditor.VerifyChain(ctx)
	if err != nil {
		return fmt.Errorf("audit verify: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"chain":   result.Chain,
		"checked": result.Checked,
		"breaks":  len(result.Breaks),
	})
	if !result.Intact {
		return fmt.Errorf("audit chain %s has %d broken entries", result.Chain, len(result.Breaks))
	}
	j.logg.Info(logCtx, "audit chain verified")
	return nil
}
