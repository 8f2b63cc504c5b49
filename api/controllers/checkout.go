package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/volna-retail/loyalty-backend/api/responses"
	"github.com/volna-retail/loyalty-backend/api/validators"
	"github.com/volna-retail/loyalty-backend/internal/orders"
	"github.com/volna-retail/loyalty-backend/pkg/enums"
	pkgerrors "github.com/volna-retail/loyalty-backend/pkg/errors"
	"github.com/volna-retail/loyalty-backend/pkg/logger"
)

type orderItemRequest struct {
	ProductID      uuid.UUID       `json:"product_id" validate:"required"`
	ProductName    string          `json:"product_name" validate:"required"`
	UnitPrice      decimal.Decimal `json:"unit_price" validate:"required"`
	Quantity       int             `json:"quantity" validate:"required,gt=0"`
	IsSpecialPrice bool            `json:"is_special_price"`
}

type quoteRequest struct {
	MemberID         uuid.UUID          `json:"member_id" validate:"required"`
	OrderType        string             `json:"order_type" validate:"required"`
	Items            []orderItemRequest `json:"items" validate:"required,min=1,dive"`
	UsedPoints       int64              `json:"used_points" validate:"gte=0"`
	CouponInstanceID *uuid.UUID         `json:"coupon_instance_id,omitempty"`
}

type checkoutRequest struct {
	quoteRequest
	StoreID        uuid.UUID  `json:"store_id" validate:"required"`
	CampaignCodeID *uuid.UUID `json:"campaign_code_id,omitempty"`
}

func (q quoteRequest) toParams() (orders.QuoteParams, error) {
	orderType, err := enums.ParseOrderType(q.OrderType)
	if err != nil {
		return orders.QuoteParams{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order type")
	}
	items := make([]orders.ItemParams, 0, len(q.Items))
	for _, item := range q.Items {
		items = append(items, orders.ItemParams{
			ProductID:      item.ProductID,
			ProductName:    item.ProductName,
			UnitPrice:      item.UnitPrice,
			Quantity:       item.Quantity,
			IsSpecialPrice: item.IsSpecialPrice,
		})
	}
	return orders.QuoteParams{
		MemberID:         q.MemberID,
		OrderType:        orderType,
		Items:            items,
		UsedPoints:       q.UsedPoints,
		CouponInstanceID: q.CouponInstanceID,
	}, nil
}

// QuoteOrder prices an order without committing anything.
func QuoteOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		var payload quoteRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params, err := payload.toParams()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		quote, err := svc.Quote(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, quote)
	}
}

// Checkout finalizes an order: points or coupon discount, earning and the
// order row commit together.
func Checkout(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		quoteParams, err := payload.toParams()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
		if key == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
			return
		}

		operatorID, operatorType := operatorFromContext(r)

		result, err := svc.Submit(r.Context(), orders.SubmitParams{
			QuoteParams:    quoteParams,
			StoreID:        payload.StoreID,
			CampaignCodeID: payload.CampaignCodeID,
			IdempotencyKey: key,
			OperatorID:     operatorID,
			OperatorType:   operatorType,
		})
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

// GetOrder returns one order with its line items.
func GetOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := validators.ParseUUIDParam(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.GetByID(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// ListMemberOrders returns a member's orders, newest first.
func ListMemberOrders(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
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

		list, err := svc.ListByMember(r.Context(), memberID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}
