package points

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/volna-retail/loyalty-backend/internal/repo"
	"github.com/volna-retail/loyalty-backend/pkg/db/models"
	"github.com/volna-retail/loyalty-backend/pkg/pagination"
)

// Repository exposes persistence helpers for the points ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	// LockMember loads the member row FOR UPDATE. Every balance mutation
	// starts here; the row lock is what serializes concurrent spends.
	LockMember(ctx context.Context, memberID uuid.UUID) (*models.Member, error)
	GetMember(ctx context.Context, memberID uuid.UUID) (*models.Member, error)
	// UpdateBalance applies the balance patch and returns the updated row.
	// Callers must hold the member lock from LockMember.
	UpdateBalance(ctx context.Context, memberID uuid.UUID, patch repo.Patch) (*models.Member, error)
	InsertEntry(ctx context.Context, entry *models.PointsLedgerEntry) error
	ListEntries(ctx context.Context, params listEntriesParams) ([]models.PointsLedgerEntry, *pagination.Cursor, error)
}

type repositoryImpl struct {
	base repo.Base
}

// NewRepository returns a points repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{base: repo.NewBase(db)}
}

type listEntriesParams struct {
	MemberID uuid.UUID
	Limit    int
	Cursor   *pagination.Cursor
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{base: r.base.WithTx(tx)}
}

func (r *repositoryImpl) LockMember(ctx context.Context, memberID uuid.UUID) (*models.Member, error) {
	var member models.Member
	err := repo.LockForUpdate(r.base.DB(ctx)).
		Where("id = ?", memberID).
		First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, gorm.ErrRecordNotFound
		}
		return nil, err
	}
	return &member, nil
}

func (r *repositoryImpl) GetMember(ctx context.Context, memberID uuid.UUID) (*models.Member, error) {
	var member models.Member
	if err := r.base.DB(ctx).Where("id = ?", memberID).First(&member).Error; err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *repositoryImpl) UpdateBalance(ctx context.Context, memberID uuid.UUID, patch repo.Patch) (*models.Member, error) {
	rows, err := repo.UpdateWhere[models.Member](ctx, r.base, repo.Where("id = ?", memberID), patch)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &rows[0], nil
}

func (r *repositoryImpl) InsertEntry(ctx context.Context, entry *models.PointsLedgerEntry) error {
	return repo.Insert(ctx, r.base, entry)
}

func (r *repositoryImpl) ListEntries(ctx context.Context, params listEntriesParams) ([]models.PointsLedgerEntry, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)
	query := r.base.DB(ctx).
		Model(&models.PointsLedgerEntry{}).
		Where("member_id = ?", params.MemberID)
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var entries []models.PointsLedgerEntry
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&entries).Error; err != nil {
		return nil, nil, err
	}

	if len(entries) > normalized {
		entries = entries[:normalized]
		// The continuation predicate is strict, so the cursor carries the
		// last row the caller received, not the first row of the next page.
		last := entries[normalized-1]
		return entries, &pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}, nil
	}
	return entries, nil, nil
}
