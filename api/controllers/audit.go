package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/volna-retail/loyalty-backend/api/responses"
	"github.com/volna-retail/loyalty-backend/api/validators"
	"github.com/volna-retail/loyalty-backend/internal/audit"
	pkgerrors "github.com/volna-retail/loyalty-backend/pkg/errors"
	"github.com/volna-retail/loyalty-backend/pkg/logger"
)

// VerifyAuditChain walks the full chain and reports every broken link.
func VerifyAuditChain(svc audit.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "audit service unavailable"))
			return
		}

		result, err := svc.VerifyChain(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// ListAuditTrail returns the audit entries of one record, newest first.
func ListAuditTrail(svc audit.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "audit service unavailable"))
			return
		}

		tableName := strings.TrimSpace(chi.URLParam(r, "table"))
		if tableName == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "table is required"))
			return
		}

		recordID, err := validators.ParseUUIDParam(r, "recordID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 0, 1, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entries, err := svc.ListForRecord(r.Context(), tableName, recordID.String(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, entries)
	}
}
