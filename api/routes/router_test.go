package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/volna-retail/loyalty-backend/internal/audit"
	"github.com/volna-retail/loyalty-backend/internal/coupons"
	"github.com/volna-retail/loyalty-backend/internal/orders"
	"github.com/volna-retail/loyalty-backend/internal/points"
	"github.com/volna-retail/loyalty-backend/internal/scans"
	pkgauth "github.com/volna-retail/loyalty-backend/pkg/auth"
	"github.com/volna-retail/loyalty-backend/pkg/config"
	"github.com/volna-retail/loyalty-backend/pkg/db/models"
	"github.com/volna-retail/loyalty-backend/pkg/enums"
	"github.com/volna-retail/loyalty-backend/pkg/logger"
)

type stubPointsService struct{}

func (stubPointsService) Add(ctx context.Context, params points.MutateParams) (*points.Result, error) {
	return &points.Result{MemberID: params.MemberID}, nil
}

func (stubPointsService) Deduct(ctx context.Context, params points.MutateParams) (*points.Result, error) {
	return &points.Result{MemberID: params.MemberID}, nil
}

func (stubPointsService) GetBalance(ctx context.Context, memberID uuid.UUID) (*points.Balance, error) {
	return &points.Balance{MemberID: memberID, Available: 100}, nil
}

func (stubPointsService) GetHistory(ctx context.Context, params points.HistoryParams) (*points.HistoryResult, error) {
	return &points.HistoryResult{}, nil
}

type stubCouponsService struct{}

func (stubCouponsService) MarkUsed(ctx context.Context, params coupons.MarkUsedParams) (*models.CouponInstance, error) {
	return &models.CouponInstance{ID: params.CouponID}, nil
}

func (stubCouponsService) BatchFreeze(ctx context.Context, couponIDs []uuid.UUID, operatorID *uuid.UUID) (*coupons.FreezeResult, error) {
	return &coupons.FreezeResult{}, nil
}

func (stubCouponsService) GetByID(ctx context.Context, couponID uuid.UUID) (*models.CouponInstance, error) {
	return &models.CouponInstance{ID: couponID}, nil
}

func (stubCouponsService) ListUnusedByMember(ctx context.Context, memberID uuid.UUID, limit int) ([]models.CouponInstance, error) {
	return nil, nil
}

type stubScansService struct{}

func (stubScansService) LogScan(ctx context.Context, params scans.LogScanParams) (*scans.LogScanResult, error) {
	return &scans.LogScanResult{Scan: &models.OfflineScanLog{ID: uuid.New()}}, nil
}

func (stubScansService) MatchScanToOrder(ctx context.Context, params scans.MatchParams) (*models.OfflineScanLog, error) {
	return &models.OfflineScanLog{ID: params.ScanID}, nil
}

func (stubScansService) GetCodeStats(ctx context.Context, campaignCodeID uuid.UUID) (*models.CampaignCode, error) {
	return &models.CampaignCode{ID: campaignCodeID}, nil
}

func (stubScansService) ListUnmatched(ctx context.Context, storeID uuid.UUID, limit int) ([]models.OfflineScanLog, error) {
	return nil, nil
}

type stubOrdersService struct{}

func (stubOrdersService) Quote(ctx context.Context, params orders.QuoteParams) (*orders.Quote, error) {
	return &orders.Quote{}, nil
}

func (stubOrdersService) Submit(ctx context.Context, params orders.SubmitParams) (*orders.SubmitResult, error) {
	return &orders.SubmitResult{Order: &models.Order{ID: uuid.New()}}, nil
}

func (stubOrdersService) GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return &models.Order{ID: orderID}, nil
}

func (stubOrdersService) ListByMember(ctx context.Context, memberID uuid.UUID, limit int) ([]models.Order, error) {
	return nil, nil
}

type stubAuditService struct{}

func (stubAuditService) Append(ctx context.Context, entry audit.Entry) (*models.AuditLogEntry, error) {
	return &models.AuditLogEntry{}, nil
}

func (stubAuditService) Record(ctx context.Context, entry audit.Entry) {}

func (stubAuditService) VerifyChain(ctx context.Context) (*audit.VerifyResult, error) {
	return &audit.VerifyResult{Intact: true}, nil
}

func (stubAuditService) ListForRecord(ctx context.Context, tableName, recordID string, limit int) ([]models.AuditLogEntry, error) {
	return nil, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test"},
		JWT: config.JWTConfig{Secret: "test-secret", Issuer: "test", ExpirationMinutes: 60},
	}
}

func newTestRouter(cfg *config.Config) http.Handler {
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})
	return NewRouter(Deps{
		Config:  cfg,
		Logger:  logg,
		Points:  stubPointsService{},
		Coupons: stubCouponsService{},
		Scans:   stubScansService{},
		Orders:  stubOrdersService{},
		Audit:   stubAuditService{},
	})
}

func buildToken(t *testing.T, cfg *config.Config, role enums.OperatorType) string {
	t.Helper()
	token, err := pkgauth.MintAccessToken(cfg.JWT, time.Now(), pkgauth.AccessTokenPayload{
		SubjectID: uuid.New(),
		Role:      role,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func TestHealthLiveIsPublic(t *testing.T) {
	router := newTestRouter(testConfig())
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestAPIRejectsMissingJWT(t *testing.T) {
	router := newTestRouter(testConfig())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+uuid.NewString(), nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token got %d", resp.Code)
	}
}

func TestMemberCanReadOwnBalance(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/members/"+uuid.NewString()+"/points/balance", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.OperatorTypeMember))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestPointsMutationsRequireStaffRole(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/members/"+uuid.NewString()+"/points/history", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.OperatorTypeMember))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected member history read to pass got %d", resp.Code)
	}

	unmatched := httptest.NewRequest(http.MethodGet, "/api/v1/scans/unmatched", nil)
	unmatched.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.OperatorTypeMember))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, unmatched)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for member on staff route got %d", resp.Code)
	}

	staff := httptest.NewRequest(http.MethodGet, "/api/v1/scans/unmatched", nil)
	staff.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.OperatorTypeStaff))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, staff)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for staff got %d", resp.Code)
	}
}

func TestAuditRoutesRequireAdmin(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)
	target := "/api/v1/audit/records/member_points_history/" + uuid.NewString()

	staff := httptest.NewRequest(http.MethodGet, target, nil)
	staff.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.OperatorTypeStaff))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, staff)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for staff on audit got %d", resp.Code)
	}

	admin := httptest.NewRequest(http.MethodGet, target, nil)
	admin.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.OperatorTypeAdmin))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, admin)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin on audit got %d", resp.Code)
	}
}
