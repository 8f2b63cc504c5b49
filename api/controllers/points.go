package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/volna-retail/loyalty-backend/api/middleware"
	"github.com/volna-retail/loyalty-backend/api/responses"
	"github.com/volna-retail/loyalty-backend/api/validators"
	"github.com/volna-retail/loyalty-backend/internal/points"
	"github.com/volna-retail/loyalty-backend/pkg/enums"
	pkgerrors "github.com/volna-retail/loyalty-backend/pkg/errors"
	"github.com/volna-retail/loyalty-backend/pkg/logger"
)

type pointsMutationRequest struct {
	MemberID    uuid.UUID  `json:"member_id" validate:"required"`
	Points      int64      `json:"points" validate:"required,gt=0"`
	Reason      string     `json:"reason" validate:"required"`
	Description *string    `json:"description,omitempty"`
	OrderID     *uuid.UUID `json:"order_id,omitempty"`
}

// AddPoints credits a member's balance.
func AddPoints(svc points.Service, logg *logger.Logger) http.HandlerFunc {
	return pointsMutation(svc, logg, false)
}

// DeductPoints debits a member's balance, rejecting overdrafts.
func DeductPoints(svc points.Service, logg *logger.Logger) http.HandlerFunc {
	return pointsMutation(svc, logg, true)
}

func pointsMutation(svc points.Service, logg *logger.Logger, deduct bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "points service unavailable"))
			return
		}

		var payload pointsMutationRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		reason, err := enums.ParsePointsReason(payload.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid reason"))
			return
		}

		key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
		if key == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
			return
		}

		operatorID, operatorType := operatorFromContext(r)

		params := points.MutateParams{
			MemberID:       payload.MemberID,
			Points:         payload.Points,
			Reason:         reason,
			Description:    payload.Description,
			OrderID:        payload.OrderID,
			IdempotencyKey: key,
			OperatorID:     operatorID,
			OperatorType:   operatorType,
		}

		var result *points.Result
		if deduct {
			result, err = svc.Deduct(r.Context(), params)
		} else {
			result, err = svc.Add(r.Context(), params)
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusCreated
		if result.Replayed {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, result)
	}
}

// GetPointsBalance returns a member's current points position.
func GetPointsBalance(svc points.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "points service unavailable"))
			return
		}

		memberID, err := validators.ParseUUIDParam(r, "memberID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		balance, err := svc.GetBalance(r.Context(), memberID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, balance)
	}
}

// GetPointsHistory returns a member's ledger entries, newest first.
func GetPointsHistory(svc points.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "points service unavailable"))
			return
		}

		memberID, err := validators.ParseUUIDParam(r, "memberID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 0, 1, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		history, err := svc.GetHistory(r.Context(), points.HistoryParams{
			MemberID: memberID,
			Limit:    limit,
			Cursor:   strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, history)
	}
}

func operatorFromContext(r *http.Request) (*uuid.UUID, enums.OperatorType) {
	operatorType := enums.OperatorTypeSystem
	if parsed, err := enums.ParseOperatorType(middleware.RoleFromContext(r.Context())); err == nil {
		operatorType = parsed
	}
	if subject := middleware.SubjectIDFromContext(r.Context()); subject != "" {
		if id, err := uuid.Parse(subject); err == nil {
			return &id, operatorType
		}
	}
	return nil, operatorType
}
