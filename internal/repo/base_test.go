package repo

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/volna-retail/loyalty-backend/pkg/db/models"
	"github.com/volna-retail/loyalty-backend/pkg/enums"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	ddl := []string{
		`CREATE TABLE coupon_instance (
			id TEXT PRIMARY KEY,
			template_id TEXT NOT NULL,
			member_id TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'UNUSED',
			value NUMERIC NOT NULL DEFAULT 0,
			used_at DATETIME,
			used_order_id TEXT,
			source_type TEXT NOT NULL DEFAULT 'ADMIN',
			created_at DATETIME,
			updated_at DATETIME
		)`,
	}
	for _, stmt := range ddl {
		require.NoError(t, conn.Exec(stmt).Error)
	}
	return conn
}

func seedCoupon(t *testing.T, conn *gorm.DB, status enums.CouponStatus) models.CouponInstance {
	t.Helper()
	coupon := models.CouponInstance{
		ID:         uuid.New(),
		TemplateID: uuid.New(),
		MemberID:   uuid.New(),
		Status:     status,
		SourceType: "ADMIN",
		CreatedAt:  time.Now().UTC().Add(-time.Hour),
		UpdatedAt:  time.Now().UTC().Add(-time.Hour),
	}
	require.NoError(t, conn.Create(&coupon).Error)
	return coupon
}

func TestUpdateWhereReturnsUpdatedRows(t *testing.T) {
	conn := newTestDB(t)
	base := NewBase(conn)
	coupon := seedCoupon(t, conn, enums.CouponStatusUnused)
	orderID := uuid.New()

	rows, err := UpdateWhere[models.CouponInstance](context.Background(), base,
		Where("id = ? AND status = ?", coupon.ID, enums.CouponStatusUnused),
		Patch{
			"status":        enums.CouponStatusUsed,
			"used_at":       time.Now().UTC(),
			"used_order_id": orderID,
		},
	)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, enums.CouponStatusUsed, rows[0].Status)
	require.NotNil(t, rows[0].UsedOrderID)
	require.Equal(t, orderID, *rows[0].UsedOrderID)
	require.True(t, rows[0].UpdatedAt.After(coupon.UpdatedAt), "updated_at must be touched")
}

func TestUpdateWherePersistsNamedPatchType(t *testing.T) {
	conn := newTestDB(t)
	base := NewBase(conn)
	coupon := seedCoupon(t, conn, enums.CouponStatusUnused)

	// Patch is a named map type; it must reach the driver as a plain map
	// or gorm rejects the assignment with ErrInvalidData.
	patch := Patch{"status": enums.CouponStatusFrozen}
	rows, err := UpdateWhere[models.CouponInstance](context.Background(), base,
		Where("id = ?", coupon.ID), patch)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	var reloaded models.CouponInstance
	require.NoError(t, conn.First(&reloaded, "id = ?", coupon.ID).Error)
	require.Equal(t, enums.CouponStatusFrozen, reloaded.Status)
}

func TestUpdateWhereZeroRowsIsNotAnError(t *testing.T) {
	conn := newTestDB(t)
	base := NewBase(conn)
	coupon := seedCoupon(t, conn, enums.CouponStatusUsed)

	rows, err := UpdateWhere[models.CouponInstance](context.Background(), base,
		Where("id = ? AND status = ?", coupon.ID, enums.CouponStatusUnused),
		Patch{"status": enums.CouponStatusFrozen},
	)
	require.NoError(t, err)
	require.Empty(t, rows, "precondition not met must yield zero rows, not an error")
}

func TestUpdateWhereRequiresConditionAndPatch(t *testing.T) {
	conn := newTestDB(t)
	base := NewBase(conn)

	_, err := UpdateWhere[models.CouponInstance](context.Background(), base, Cond{}, Patch{"status": enums.CouponStatusFrozen})
	require.Error(t, err)

	_, err = UpdateWhere[models.CouponInstance](context.Background(), base, Where("id = ?", uuid.New()), Patch{})
	require.Error(t, err)
}

func TestBatchUpdateSharesOneTimestamp(t *testing.T) {
	conn := newTestDB(t)
	base := NewBase(conn)
	first := seedCoupon(t, conn, enums.CouponStatusUnused)
	second := seedCoupon(t, conn, enums.CouponStatusUnused)
	third := seedCoupon(t, conn, enums.CouponStatusUsed)

	updates := make([]Update, 0, 3)
	for _, id := range []uuid.UUID{first.ID, second.ID, third.ID} {
		updates = append(updates, Update{
			Where: Where("id = ? AND status = ?", id, enums.CouponStatusUnused),
			Patch: Patch{"status": enums.CouponStatusFrozen},
		})
	}

	rows, err := BatchUpdate[models.CouponInstance](context.Background(), base, updates, BatchOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 2, "already-terminal coupons are skipped, not errored")
	require.Equal(t, rows[0].UpdatedAt, rows[1].UpdatedAt, "one batch carries one timestamp")
}

func TestBatchUpdateRejectsOversizedBatches(t *testing.T) {
	conn := newTestDB(t)
	base := NewBase(conn)

	updates := make([]Update, DefaultMaxBatch+1)
	for i := range updates {
		updates[i] = Update{
			Where: Where("id = ?", uuid.New()),
			Patch: Patch{"status": enums.CouponStatusFrozen},
		}
	}

	_, err := BatchUpdate[models.CouponInstance](context.Background(), base, updates, BatchOptions{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "exceeds limit")
}

func TestBatchUpdateParticipatesInCallerTransaction(t *testing.T) {
	conn := newTestDB(t)
	base := NewBase(conn)
	coupon := seedCoupon(t, conn, enums.CouponStatusUnused)

	tx := conn.Begin()
	require.NoError(t, tx.Error)

	_, err := BatchUpdate[models.CouponInstance](context.Background(), base, []Update{{
		Where: Where("id = ?", coupon.ID),
		Patch: Patch{"status": enums.CouponStatusFrozen},
	}}, BatchOptions{Tx: tx})
	require.NoError(t, err)
	require.NoError(t, tx.Rollback().Error)

	var reloaded models.CouponInstance
	require.NoError(t, conn.First(&reloaded, "id = ?", coupon.ID).Error)
	require.Equal(t, enums.CouponStatusUnused, reloaded.Status, "rollback must undo batch members")
}

func TestInsertStampsCreatedEqualsUpdated(t *testing.T) {
	conn := newTestDB(t)
	base := NewBase(conn)

	first := &models.CouponInstance{ID: uuid.New(), TemplateID: uuid.New(), MemberID: uuid.New(), Status: enums.CouponStatusUnused, SourceType: "SIGNUP"}
	second := &models.CouponInstance{ID: uuid.New(), TemplateID: uuid.New(), MemberID: uuid.New(), Status: enums.CouponStatusUnused, SourceType: "SIGNUP"}

	require.NoError(t, Insert(context.Background(), base, first, second))

	require.Equal(t, first.CreatedAt, first.UpdatedAt)
	require.Equal(t, first.CreatedAt, second.CreatedAt, "one insert batch carries one timestamp")
}
