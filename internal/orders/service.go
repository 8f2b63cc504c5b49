package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/volna-retail/loyalty-backend/internal/audit"
	"github.com/volna-retail/loyalty-backend/internal/coupons"
	"github.com/volna-retail/loyalty-backend/internal/idempotency"
	"github.com/volna-retail/loyalty-backend/internal/points"
	"github.com/volna-retail/loyalty-backend/internal/repo"
	"github.com/volna-retail/loyalty-backend/pkg/db"
	"github.com/volna-retail/loyalty-backend/pkg/db/models"
	"github.com/volna-retail/loyalty-backend/pkg/enums"
	pkgerrors "github.com/volna-retail/loyalty-backend/pkg/errors"
	"github.com/volna-retail/loyalty-backend/pkg/logger"
	"github.com/volna-retail/loyalty-backend/pkg/metrics"
)

const (
	defaultOrderPrefix = "ORD"
	defaultKeyTTL      = 24 * time.Hour
)

// errReplayed aborts the submit transaction when the idempotency key
// already belongs to an earlier execution. It never escapes the service.
var errReplayed = errors.New("order submit replayed")

// ItemParams is one order line as priced at submit time.
type ItemParams struct {
	ProductID      uuid.UUID
	ProductName    string
	UnitPrice      decimal.Decimal
	Quantity       int
	IsSpecialPrice bool
}

// QuoteParams carries everything needed to price an order. UsedPoints and
// CouponInstanceID are mutually exclusive: an order discounts with points
// or with a coupon, never both. The coupon's discount amount is read from
// the stored instance, never from the request.
type QuoteParams struct {
	MemberID         uuid.UUID
	OrderType        enums.OrderType
	Items            []ItemParams
	UsedPoints       int64
	CouponInstanceID *uuid.UUID
}

// Quote is the priced breakdown of an order before submission.
type Quote struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	PointsDiscount decimal.Decimal `json:"points_discount"`
	CouponDiscount decimal.Decimal `json:"coupon_discount"`
	DeliveryFee    decimal.Decimal `json:"delivery_fee"`
	Total          decimal.Decimal `json:"total"`
	EarnedPoints   int64           `json:"earned_points"`
}

// SubmitParams finalizes an order from its quote inputs.
type SubmitParams struct {
	QuoteParams
	StoreID        uuid.UUID
	CampaignCodeID *uuid.UUID
	IdempotencyKey string
	OperatorID     *uuid.UUID
	OperatorType   enums.OperatorType
}

// SubmitResult reports the stored order and whether this submission was a
// replay of an earlier one.
type SubmitResult struct {
	Order    *models.Order `json:"order"`
	Replayed bool          `json:"replayed"`
}

// Service prices and finalizes orders. Submit is the orchestration point:
// points redemption, coupon consumption, earning and the order insert all
// commit or roll back as one unit.
type Service interface {
	Quote(ctx context.Context, params QuoteParams) (*Quote, error)
	Submit(ctx context.Context, params SubmitParams) (*SubmitResult, error)
	GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ListByMember(ctx context.Context, memberID uuid.UUID, limit int) ([]models.Order, error)
}

// Options configures order pricing and numbering.
type Options struct {
	DeliveryFee   int64
	PointsPerUnit int64
	OrderPrefix   string
	KeyTTL        time.Duration
}

type service struct {
	conn        *gorm.DB
	repo        Repository
	pointsRepo  points.Repository
	couponsRepo coupons.Repository
	idem        idempotency.Store
	auditor     audit.Service
	log         *logger.Logger
	metrics     *metrics.LedgerMetrics
	opts        Options
}

// NewService wires order dependencies.
func NewService(conn *gorm.DB, repository Repository, pointsRepo points.Repository, couponsRepo coupons.Repository, idem idempotency.Store, auditor audit.Service, log *logger.Logger, m *metrics.LedgerMetrics, opts Options) (Service, error) {
	if conn == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "orders database required")
	}
	if repository == nil || pointsRepo == nil || couponsRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "orders repositories required")
	}
	if idem == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "idempotency store required")
	}
	if log == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "orders logger required")
	}
	if opts.PointsPerUnit <= 0 {
		opts.PointsPerUnit = 1
	}
	if opts.OrderPrefix == "" {
		opts.OrderPrefix = defaultOrderPrefix
	}
	if opts.KeyTTL <= 0 {
		opts.KeyTTL = defaultKeyTTL
	}
	return &service{
		conn:        conn,
		repo:        repository,
		pointsRepo:  pointsRepo,
		couponsRepo: couponsRepo,
		idem:        idem,
		auditor:     auditor,
		log:         log,
		metrics:     m,
		opts:        opts,
	}, nil
}

func (s *service) Quote(ctx context.Context, params QuoteParams) (*Quote, error) {
	if err := validateQuoteParams(params); err != nil {
		return nil, err
	}
	couponDiscount, err := s.resolveCouponDiscount(ctx, params)
	if err != nil {
		return nil, err
	}
	return s.computeQuote(params, couponDiscount)
}

func (s *service) Submit(ctx context.Context, params SubmitParams) (*SubmitResult, error) {
	if err := validateQuoteParams(params.QuoteParams); err != nil {
		return nil, err
	}
	couponDiscount, err := s.resolveCouponDiscount(ctx, params.QuoteParams)
	if err != nil {
		return nil, err
	}
	quote, err := s.computeQuote(params.QuoteParams, couponDiscount)
	if err != nil {
		return nil, err
	}
	if params.StoreID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id required")
	}

	start := time.Now()
	orderID := uuid.New()
	var (
		order  *models.Order
		replay *models.IdempotencyRecord
	)

	err = db.RunInTx(ctx, s.conn, func(tx *gorm.DB) error {
		if params.IdempotencyKey != "" {
			begin, err := s.idem.WithTx(tx).TryBegin(ctx, params.IdempotencyKey, replayPayload{OrderID: orderID}, s.opts.KeyTTL)
			if err != nil {
				return err
			}
			if !begin.IsNew {
				replay = begin.Record
				return errReplayed
			}
		}

		pointsRepo := s.pointsRepo.WithTx(tx)

		member, err := pointsRepo.LockMember(ctx, params.MemberID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "member not found")
			}
			return err
		}

		balance := member.AvailablePointsBalance
		totalEarned := member.TotalPointsEarned

		if params.UsedPoints > 0 {
			if balance < params.UsedPoints {
				return pkgerrors.New(pkgerrors.CodeInsufficientBalance, "points balance too low").
					WithDetails(map[string]int64{
						"available": balance,
						"requested": params.UsedPoints,
					})
			}
			balance -= params.UsedPoints
			redeem := &models.PointsLedgerEntry{
				ID:           uuid.New(),
				MemberID:     params.MemberID,
				Delta:        -params.UsedPoints,
				BalanceAfter: balance,
				Reason:       enums.PointsReasonOrderRedeem,
				OrderID:      &orderID,
			}
			if err := pointsRepo.InsertEntry(ctx, redeem); err != nil {
				return err
			}
		}

		if params.CouponInstanceID != nil {
			used, err := s.couponsRepo.WithTx(tx).MarkUsed(ctx, *params.CouponInstanceID, orderID, time.Now().UTC())
			if err != nil {
				return err
			}
			if used == nil {
				return couponConflict(ctx, s.couponsRepo.WithTx(tx), *params.CouponInstanceID)
			}
		}

		if quote.EarnedPoints > 0 {
			balance += quote.EarnedPoints
			totalEarned += quote.EarnedPoints
			earn := &models.PointsLedgerEntry{
				ID:           uuid.New(),
				MemberID:     params.MemberID,
				Delta:        quote.EarnedPoints,
				BalanceAfter: balance,
				Reason:       enums.PointsReasonOrderEarn,
				OrderID:      &orderID,
			}
			if err := pointsRepo.InsertEntry(ctx, earn); err != nil {
				return err
			}
		}

		if balance != member.AvailablePointsBalance || totalEarned != member.TotalPointsEarned {
			patch := repo.Patch{
				"available_points_balance": balance,
				"total_points_earned":      totalEarned,
			}
			if _, err := pointsRepo.UpdateBalance(ctx, params.MemberID, patch); err != nil {
				return err
			}
		}

		repository := s.repo.WithTx(tx)
		orderNumber, err := s.nextOrderNumber(ctx, repository, time.Now().UTC())
		if err != nil {
			return err
		}

		order = buildOrder(orderID, orderNumber, params, quote)
		return repository.Insert(ctx, order)
	})

	if errors.Is(err, errReplayed) {
		stored, decodeErr := s.loadReplayed(ctx, replay)
		if decodeErr != nil {
			return nil, decodeErr
		}
		s.log.Info(s.log.WithField(ctx, "idempotency_key", params.IdempotencyKey), "order submit replayed")
		return &SubmitResult{Order: stored, Replayed: true}, nil
	}
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "submitting order")
	}

	s.metrics.ObserveTransaction("order_submit", time.Since(start))
	if s.auditor != nil {
		s.auditor.Record(ctx, audit.Entry{
			TableName:    models.Order{}.TableName(),
			RecordID:     order.ID.String(),
			Action:       enums.AuditActionInsert,
			DiffAfter:    order,
			OperatorID:   params.OperatorID,
			OperatorType: params.OperatorType,
		})
	}
	return &SubmitResult{Order: order}, nil
}

func (s *service) GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading order")
	}
	return order, nil
}

func (s *service) ListByMember(ctx context.Context, memberID uuid.UUID, limit int) ([]models.Order, error) {
	if memberID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "member id required")
	}
	orders, err := s.repo.ListByMember(ctx, memberID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing orders")
	}
	return orders, nil
}

// resolveCouponDiscount reads the discount amount from the stored coupon.
// Requests never carry a discount figure; an order discounts with what
// the coupon was issued for.
func (s *service) resolveCouponDiscount(ctx context.Context, params QuoteParams) (decimal.Decimal, error) {
	if params.CouponInstanceID == nil {
		return decimal.Zero, nil
	}
	coupon, err := s.couponsRepo.GetByID(ctx, *params.CouponInstanceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, pkgerrors.New(pkgerrors.CodeNotFound, "coupon not found")
		}
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading coupon")
	}
	if coupon.MemberID != params.MemberID {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "coupon belongs to another member")
	}
	if coupon.Status != enums.CouponStatusUnused {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeStateConflict, "coupon unavailable").
			WithDetails(map[string]string{"status": string(coupon.Status)})
	}
	return coupon.Value, nil
}

func validateQuoteParams(params QuoteParams) error {
	if params.MemberID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "member id required")
	}
	if !params.OrderType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "order type invalid")
	}
	if len(params.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "order items required")
	}
	if params.UsedPoints < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "used points cannot be negative")
	}
	if params.UsedPoints > 0 && params.CouponInstanceID != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order cannot combine points and coupon discounts")
	}
	return nil
}

func (s *service) computeQuote(params QuoteParams, couponDiscount decimal.Decimal) (*Quote, error) {
	subtotal := decimal.Zero
	for _, item := range params.Items {
		if item.ProductID == uuid.Nil || item.ProductName == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "order item product required")
		}
		if item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "order item quantity must be positive")
		}
		if item.UnitPrice.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "order item price cannot be negative")
		}
		subtotal = subtotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	pointsDiscount := decimal.NewFromInt(params.UsedPoints * s.opts.PointsPerUnit)
	discount := pointsDiscount.Add(couponDiscount)
	if discount.GreaterThan(subtotal) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "discount exceeds subtotal").
			WithDetails(map[string]string{
				"subtotal": subtotal.String(),
				"discount": discount.String(),
			})
	}

	deliveryFee := decimal.Zero
	if params.OrderType == enums.OrderTypeDelivery {
		deliveryFee = decimal.NewFromInt(s.opts.DeliveryFee)
	}

	total := subtotal.Sub(discount).Add(deliveryFee)

	// Earning is computed on spend, so the delivery fee does not earn.
	return &Quote{
		Subtotal:       subtotal,
		PointsDiscount: pointsDiscount,
		CouponDiscount: couponDiscount,
		DeliveryFee:    deliveryFee,
		Total:          total,
		EarnedPoints:   subtotal.Sub(discount).IntPart(),
	}, nil
}

// nextOrderNumber derives <prefix>-YYYYMMDD-NNNN from today's order count.
// The unique index on order_number backstops the day sequence under
// concurrent submits; a collision fails the transaction and the client
// retries with its idempotency key.
func (s *service) nextOrderNumber(ctx context.Context, repository Repository, now time.Time) (string, error) {
	dayPrefix := fmt.Sprintf("%s-%s-", s.opts.OrderPrefix, now.Format("20060102"))
	count, err := repository.CountByNumberPrefix(ctx, dayPrefix)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%04d", dayPrefix, count+1), nil
}

func (s *service) loadReplayed(ctx context.Context, record *models.IdempotencyRecord) (*models.Order, error) {
	if record == nil {
		return nil, pkgerrors.New(pkgerrors.CodeIdempotency, "replayed record missing")
	}
	var payload replayPayload
	if err := json.Unmarshal(record.Result, &payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeIdempotency, err, "decoding replayed order")
	}
	order, err := s.repo.GetByID(ctx, payload.OrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeIdempotency, err, "loading replayed order")
	}
	return order, nil
}

type replayPayload struct {
	OrderID uuid.UUID `json:"order_id"`
}

func buildOrder(orderID uuid.UUID, orderNumber string, params SubmitParams, quote *Quote) *models.Order {
	order := &models.Order{
		ID:                   orderID,
		OrderNumber:          orderNumber,
		MemberID:             params.MemberID,
		StoreID:              params.StoreID,
		OrderType:            params.OrderType,
		Subtotal:             quote.Subtotal,
		DiscountAmount:       quote.PointsDiscount.Add(quote.CouponDiscount),
		DeliveryFee:          quote.DeliveryFee,
		TotalAmount:          quote.Total,
		UsedPoints:           params.UsedPoints,
		PointsDiscountAmount: quote.PointsDiscount,
		CouponInstanceID:     params.CouponInstanceID,
		CouponDiscountAmount: quote.CouponDiscount,
		EarnedPoints:         quote.EarnedPoints,
		CampaignCodeID:       params.CampaignCodeID,
	}
	for _, item := range params.Items {
		order.Items = append(order.Items, models.OrderItem{
			ID:             uuid.New(),
			OrderID:        orderID,
			ProductID:      item.ProductID,
			ProductName:    item.ProductName,
			UnitPrice:      item.UnitPrice,
			Quantity:       item.Quantity,
			TotalPrice:     item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))),
			IsSpecialPrice: item.IsSpecialPrice,
		})
	}
	return order
}

func couponConflict(ctx context.Context, repository coupons.Repository, couponID uuid.UUID) error {
	existing, err := repository.GetByID(ctx, couponID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "coupon not found")
		}
		return err
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, "coupon unavailable").
		WithDetails(map[string]string{"status": string(existing.Status)})
}
