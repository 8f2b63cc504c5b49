package scans

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/volna-retail/loyalty-backend/pkg/db/models"
	"github.com/volna-retail/loyalty-backend/pkg/enums"
	pkgerrors "github.com/volna-retail/loyalty-backend/pkg/errors"
	"github.com/volna-retail/loyalty-backend/pkg/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	ddl := []string{
		`CREATE TABLE offline_scan_log (
			id TEXT PRIMARY KEY,
			client_event_id TEXT NOT NULL UNIQUE,
			campaign_code_id TEXT NOT NULL,
			store_id TEXT NOT NULL,
			cashier_id TEXT,
			scan_source TEXT NOT NULL,
			order_id TEXT,
			order_amount NUMERIC,
			scanned_at DATETIME NOT NULL,
			matched INTEGER NOT NULL DEFAULT 0,
			matched_at DATETIME,
			match_method TEXT,
			dup_count INTEGER NOT NULL DEFAULT 0,
			last_dup_at DATETIME,
			created_at DATETIME,
			updated_at DATETIME
		)`,
		`CREATE TABLE campaign_code (
			id TEXT PRIMARY KEY,
			code TEXT NOT NULL UNIQUE,
			scan_count INTEGER NOT NULL DEFAULT 0,
			order_count INTEGER NOT NULL DEFAULT 0,
			total_gmv NUMERIC NOT NULL DEFAULT 0,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME,
			updated_at DATETIME
		)`,
	}
	for _, stmt := range ddl {
		require.NoError(t, conn.Exec(stmt).Error)
	}
	return conn
}

func newTestService(t *testing.T, conn *gorm.DB) Service {
	t.Helper()
	log := logger.New(logger.Options{ServiceName: "scans-test", Output: io.Discard})
	svc, err := NewService(conn, NewRepository(conn), nil, log, nil)
	require.NoError(t, err)
	return svc
}

func seedCampaignCode(t *testing.T, conn *gorm.DB) models.CampaignCode {
	t.Helper()
	code := models.CampaignCode{
		ID:        uuid.New(),
		Code:      "INF-" + uuid.New().String()[:8],
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, conn.Create(&code).Error)
	return code
}

func logParams(code models.CampaignCode) LogScanParams {
	return LogScanParams{
		ClientEventID:  uuid.New(),
		CampaignCodeID: code.ID,
		StoreID:        uuid.New(),
		Source:         enums.ScanSourceCashierApp,
	}
}

func TestLogScanRecordsEventAndMovesCounter(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	code := seedCampaignCode(t, conn)

	result, err := svc.LogScan(context.Background(), logParams(code))
	require.NoError(t, err)
	require.False(t, result.Duplicate)
	require.Zero(t, result.Scan.DupCount)
	require.False(t, result.Scan.ScannedAt.IsZero())

	var reloaded models.CampaignCode
	require.NoError(t, conn.First(&reloaded, "id = ?", code.ID).Error)
	require.Equal(t, int64(1), reloaded.ScanCount)
}

func TestLogScanAbsorbsDuplicates(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	code := seedCampaignCode(t, conn)
	ctx := context.Background()
	params := logParams(code)

	first, err := svc.LogScan(ctx, params)
	require.NoError(t, err)

	second, err := svc.LogScan(ctx, params)
	require.NoError(t, err)
	require.True(t, second.Duplicate)
	require.Equal(t, first.Scan.ID, second.Scan.ID)
	require.Equal(t, int64(1), second.Scan.DupCount)
	require.NotNil(t, second.Scan.LastDupAt)

	third, err := svc.LogScan(ctx, params)
	require.NoError(t, err)
	require.Equal(t, int64(2), third.Scan.DupCount)

	// The duplicate deliveries never move the campaign counter.
	var reloaded models.CampaignCode
	require.NoError(t, conn.First(&reloaded, "id = ?", code.ID).Error)
	require.Equal(t, int64(1), reloaded.ScanCount)

	var count int64
	require.NoError(t, conn.Model(&models.OfflineScanLog{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestLogScanUnknownCampaign(t *testing.T) {
	svc := newTestService(t, newTestDB(t))

	params := LogScanParams{
		ClientEventID:  uuid.New(),
		CampaignCodeID: uuid.New(),
		StoreID:        uuid.New(),
		Source:         enums.ScanSourcePOS,
	}
	_, err := svc.LogScan(context.Background(), params)
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestLogScanValidation(t *testing.T) {
	svc := newTestService(t, newTestDB(t))
	ctx := context.Background()

	_, err := svc.LogScan(ctx, LogScanParams{CampaignCodeID: uuid.New(), StoreID: uuid.New(), Source: enums.ScanSourceQR})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	_, err = svc.LogScan(ctx, LogScanParams{ClientEventID: uuid.New(), CampaignCodeID: uuid.New(), StoreID: uuid.New(), Source: enums.ScanSource("FAX")})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestMatchScanToOrder(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	code := seedCampaignCode(t, conn)
	ctx := context.Background()

	logged, err := svc.LogScan(ctx, logParams(code))
	require.NoError(t, err)

	orderID := uuid.New()
	amount := decimal.NewFromFloat(149.50)
	matched, err := svc.MatchScanToOrder(ctx, MatchParams{
		ScanID:      logged.Scan.ID,
		OrderID:     orderID,
		OrderAmount: amount,
		Method:      enums.MatchMethodAuto,
	})
	require.NoError(t, err)
	require.True(t, matched.Matched)
	require.NotNil(t, matched.MatchedAt)
	require.NotNil(t, matched.OrderID)
	require.Equal(t, orderID, *matched.OrderID)

	var reloaded models.CampaignCode
	require.NoError(t, conn.First(&reloaded, "id = ?", code.ID).Error)
	require.Equal(t, int64(1), reloaded.OrderCount)
	require.True(t, reloaded.TotalGMV.Equal(amount))
}

func TestMatchScanToOrderAlreadyMatched(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	code := seedCampaignCode(t, conn)
	ctx := context.Background()

	logged, err := svc.LogScan(ctx, logParams(code))
	require.NoError(t, err)

	params := MatchParams{
		ScanID:      logged.Scan.ID,
		OrderID:     uuid.New(),
		OrderAmount: decimal.NewFromInt(80),
		Method:      enums.MatchMethodManual,
	}
	_, err = svc.MatchScanToOrder(ctx, params)
	require.NoError(t, err)

	params.OrderID = uuid.New()
	_, err = svc.MatchScanToOrder(ctx, params)
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))

	// A rejected re-match must not move the campaign totals.
	var reloaded models.CampaignCode
	require.NoError(t, conn.First(&reloaded, "id = ?", code.ID).Error)
	require.Equal(t, int64(1), reloaded.OrderCount)
	require.True(t, reloaded.TotalGMV.Equal(decimal.NewFromInt(80)))
}

func TestMatchScanToOrderNotFound(t *testing.T) {
	svc := newTestService(t, newTestDB(t))

	_, err := svc.MatchScanToOrder(context.Background(), MatchParams{
		ScanID:      uuid.New(),
		OrderID:     uuid.New(),
		OrderAmount: decimal.NewFromInt(10),
		Method:      enums.MatchMethodPOS,
	})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestListUnmatchedFiltersByStore(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	code := seedCampaignCode(t, conn)
	ctx := context.Background()

	params := logParams(code)
	logged, err := svc.LogScan(ctx, params)
	require.NoError(t, err)

	other := logParams(code)
	_, err = svc.LogScan(ctx, other)
	require.NoError(t, err)

	scans, err := svc.ListUnmatched(ctx, params.StoreID, 10)
	require.NoError(t, err)
	require.Len(t, scans, 1)
	require.Equal(t, logged.Scan.ID, scans[0].ID)

	all, err := svc.ListUnmatched(ctx, uuid.Nil, 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestGetCodeStats(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	code := seedCampaignCode(t, conn)

	stats, err := svc.GetCodeStats(context.Background(), code.ID)
	require.NoError(t, err)
	require.Equal(t, code.Code, stats.Code)

	_, err = svc.GetCodeStats(context.Background(), uuid.New())
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}
