package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/volna-retail/loyalty-backend/api/responses"
	"github.com/volna-retail/loyalty-backend/api/validators"
	"github.com/volna-retail/loyalty-backend/internal/coupons"
	pkgerrors "github.com/volna-retail/loyalty-backend/pkg/errors"
	"github.com/volna-retail/loyalty-backend/pkg/logger"
)

type useCouponRequest struct {
	OrderID uuid.UUID `json:"order_id" validate:"required"`
}

type freezeCouponsRequest struct {
	CouponIDs []uuid.UUID `json:"coupon_ids" validate:"required,min=1"`
}

// UseCoupon redeems a coupon against an order.
func UseCoupon(svc coupons.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "coupons service unavailable"))
			return
		}

		couponID, err := validators.ParseUUIDParam(r, "couponID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload useCouponRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		operatorID, operatorType := operatorFromContext(r)

		coupon, err := svc.MarkUsed(r.Context(), coupons.MarkUsedParams{
			CouponID:     couponID,
			OrderID:      payload.OrderID,
			OperatorID:   operatorID,
			OperatorType: operatorType,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, coupon)
	}
}

// FreezeCoupons suspends a batch of still-unused coupons.
func FreezeCoupons(svc coupons.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "coupons service unavailable"))
			return
		}

		var payload freezeCouponsRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		operatorID, _ := operatorFromContext(r)

		result, err := svc.BatchFreeze(r.Context(), payload.CouponIDs, operatorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// GetCoupon returns a single coupon instance.
func GetCoupon(svc coupons.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "coupons service unavailable"))
			return
		}

		couponID, err := validators.ParseUUIDParam(r, "couponID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		coupon, err := svc.GetByID(r.Context(), couponID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, coupon)
	}
}

// ListMemberCoupons returns a member's redeemable coupons.
func ListMemberCoupons(svc coupons.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "coupons service unavailable"))
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

		list, err := svc.ListUnusedByMember(r.Context(), memberID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}
