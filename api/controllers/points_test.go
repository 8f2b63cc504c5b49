package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/volna-retail/loyalty-backend/internal/points"
	pkgerrors "github.com/volna-retail/loyalty-backend/pkg/errors"
	"github.com/volna-retail/loyalty-backend/pkg/logger"
)

type testPointsService struct {
	addFn        func(ctx context.Context, params points.MutateParams) (*points.Result, error)
	deductFn     func(ctx context.Context, params points.MutateParams) (*points.Result, error)
	getBalanceFn func(ctx context.Context, memberID uuid.UUID) (*points.Balance, error)
	getHistoryFn func(ctx context.Context, params points.HistoryParams) (*points.HistoryResult, error)
}

func (s *testPointsService) Add(ctx context.Context, params points.MutateParams) (*points.Result, error) {
	if s.addFn != nil {
		return s.addFn(ctx, params)
	}
	return nil, nil
}

func (s *testPointsService) Deduct(ctx context.Context, params points.MutateParams) (*points.Result, error) {
	if s.deductFn != nil {
		return s.deductFn(ctx, params)
	}
	return nil, nil
}

func (s *testPointsService) GetBalance(ctx context.Context, memberID uuid.UUID) (*points.Balance, error) {
	if s.getBalanceFn != nil {
		return s.getBalanceFn(ctx, memberID)
	}
	return nil, nil
}

func (s *testPointsService) GetHistory(ctx context.Context, params points.HistoryParams) (*points.HistoryResult, error) {
	if s.getHistoryFn != nil {
		return s.getHistoryFn(ctx, params)
	}
	return nil, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func addRouteParam(req *http.Request, key, value string) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func TestAddPointsSuccess(t *testing.T) {
	memberID := uuid.New()
	svc := &testPointsService{
		addFn: func(_ context.Context, params points.MutateParams) (*points.Result, error) {
			if params.MemberID != memberID {
				t.Fatalf("unexpected member %s", params.MemberID)
			}
			if params.Points != 100 {
				t.Fatalf("unexpected points %d", params.Points)
			}
			if params.IdempotencyKey != "key-1" {
				t.Fatalf("unexpected idempotency key %s", params.IdempotencyKey)
			}
			return &points.Result{EntryID: uuid.New(), MemberID: memberID, Delta: 100, BalanceAfter: 100}, nil
		},
	}

	body := `{"member_id":"` + memberID.String() + `","points":100,"reason":"SIGNUP_BONUS"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/points/add", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", "key-1")

	resp := httptest.NewRecorder()
	AddPoints(svc, testLogger())(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Data points.Result `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data.BalanceAfter != 100 {
		t.Fatalf("unexpected balance %d", envelope.Data.BalanceAfter)
	}
}

func TestAddPointsReplayReturnsOK(t *testing.T) {
	memberID := uuid.New()
	svc := &testPointsService{
		addFn: func(_ context.Context, _ points.MutateParams) (*points.Result, error) {
			return &points.Result{MemberID: memberID, Delta: 100, BalanceAfter: 100, Replayed: true}, nil
		},
	}

	body := `{"member_id":"` + memberID.String() + `","points":100,"reason":"SIGNUP_BONUS"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/points/add", strings.NewReader(body))
	req.Header.Set("Idempotency-Key", "key-1")

	resp := httptest.NewRecorder()
	AddPoints(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for replay got %d", resp.Code)
	}
}

func TestAddPointsRequiresIdempotencyKey(t *testing.T) {
	body := `{"member_id":"` + uuid.NewString() + `","points":100,"reason":"SIGNUP_BONUS"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/points/add", strings.NewReader(body))

	resp := httptest.NewRecorder()
	AddPoints(&testPointsService{}, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestAddPointsRejectsUnknownReason(t *testing.T) {
	body := `{"member_id":"` + uuid.NewString() + `","points":100,"reason":"MYSTERY"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/points/add", strings.NewReader(body))
	req.Header.Set("Idempotency-Key", "key-1")

	resp := httptest.NewRecorder()
	AddPoints(&testPointsService{}, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestDeductPointsPropagatesInsufficientBalance(t *testing.T) {
	svc := &testPointsService{
		deductFn: func(_ context.Context, _ points.MutateParams) (*points.Result, error) {
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientBalance, "points balance too low")
		},
	}

	body := `{"member_id":"` + uuid.NewString() + `","points":500,"reason":"ORDER_REDEEM"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/points/deduct", strings.NewReader(body))
	req.Header.Set("Idempotency-Key", "key-2")

	resp := httptest.NewRecorder()
	DeductPoints(svc, testLogger())(resp, req)

	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse error response: %v", err)
	}
	if payload.Error.Code != string(pkgerrors.CodeInsufficientBalance) {
		t.Fatalf("unexpected code %s", payload.Error.Code)
	}
}

func TestGetPointsBalance(t *testing.T) {
	memberID := uuid.New()
	svc := &testPointsService{
		getBalanceFn: func(_ context.Context, id uuid.UUID) (*points.Balance, error) {
			if id != memberID {
				t.Fatalf("unexpected member %s", id)
			}
			return &points.Balance{MemberID: memberID, Available: 250, TotalPointsEarned: 400}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/members/"+memberID.String()+"/points/balance", nil)
	req = addRouteParam(req, "memberID", memberID.String())

	resp := httptest.NewRecorder()
	GetPointsBalance(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data points.Balance `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data.Available != 250 {
		t.Fatalf("unexpected balance %d", envelope.Data.Available)
	}
}

func TestGetPointsHistoryInvalidLimit(t *testing.T) {
	memberID := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/members/"+memberID.String()+"/points/history?limit=0", nil)
	req = addRouteParam(req, "memberID", memberID.String())

	resp := httptest.NewRecorder()
	GetPointsHistory(&testPointsService{}, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
