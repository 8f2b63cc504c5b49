package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/volna-retail/loyalty-backend/api/responses"
	"github.com/volna-retail/loyalty-backend/api/validators"
	"github.com/volna-retail/loyalty-backend/internal/scans"
	"github.com/volna-retail/loyalty-backend/pkg/enums"
	pkgerrors "github.com/volna-retail/loyalty-backend/pkg/errors"
	"github.com/volna-retail/loyalty-backend/pkg/logger"
)

type logScanRequest struct {
	ClientEventID  uuid.UUID  `json:"client_event_id" validate:"required"`
	CampaignCodeID uuid.UUID  `json:"campaign_code_id" validate:"required"`
	StoreID        uuid.UUID  `json:"store_id" validate:"required"`
	CashierID      *uuid.UUID `json:"cashier_id,omitempty"`
	Source         string     `json:"source" validate:"required"`
	ScannedAt      time.Time  `json:"scanned_at" validate:"required"`
}

type matchScanRequest struct {
	OrderID     uuid.UUID       `json:"order_id" validate:"required"`
	OrderAmount decimal.Decimal `json:"order_amount" validate:"required"`
	Method      string          `json:"method" validate:"required"`
}

// LogScan ingests one offline scan event. Redeliveries of the same client
// event id are absorbed and reported as duplicates.
func LogScan(svc scans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "scans service unavailable"))
			return
		}

		var payload logScanRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		source, err := enums.ParseScanSource(payload.Source)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid source"))
			return
		}

		result, err := svc.LogScan(r.Context(), scans.LogScanParams{
			ClientEventID:  payload.ClientEventID,
			CampaignCodeID: payload.CampaignCodeID,
			StoreID:        payload.StoreID,
			CashierID:      payload.CashierID,
			Source:         source,
			ScannedAt:      payload.ScannedAt,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusCreated
		if result.Duplicate {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, result)
	}
}

// MatchScan attributes an order to a recorded scan.
func MatchScan(svc scans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "scans service unavailable"))
			return
		}

		scanID, err := validators.ParseUUIDParam(r, "scanID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload matchScanRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		method, err := enums.ParseMatchMethod(payload.Method)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid method"))
			return
		}

		operatorID, _ := operatorFromContext(r)

		scan, err := svc.MatchScanToOrder(r.Context(), scans.MatchParams{
			ScanID:      scanID,
			OrderID:     payload.OrderID,
			OrderAmount: payload.OrderAmount,
			Method:      method,
			OperatorID:  operatorID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, scan)
	}
}

// GetCampaignCodeStats returns the running counters for a campaign code.
func GetCampaignCodeStats(svc scans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "scans service unavailable"))
			return
		}

		codeID, err := validators.ParseUUIDParam(r, "codeID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		code, err := svc.GetCodeStats(r.Context(), codeID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, code)
	}
}

// ListUnmatchedScans returns scans still waiting for order attribution,
// optionally narrowed to one store.
func ListUnmatchedScans(svc scans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "scans service unavailable"))
			return
		}

		storeID, err := validators.ParseQueryUUID(r, "store_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 0, 1, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListUnmatched(r.Context(), storeID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}
