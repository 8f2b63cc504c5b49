package audit

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/volna-retail/loyalty-backend/internal/repo"
	"github.com/volna-retail/loyalty-backend/pkg/db"
	"github.com/volna-retail/loyalty-backend/pkg/db/models"
	"github.com/volna-retail/loyalty-backend/pkg/pagination"
)

// Repository manages persistence for audit chain entries and heads.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	LockHead(ctx context.Context, chain string) (*models.AuditChainHead, error)
	SaveHead(ctx context.Context, head *models.AuditChainHead) error
	Insert(ctx context.Context, entry *models.AuditLogEntry) error
	ListRange(ctx context.Context, chain string, afterID int64, limit int) ([]models.AuditLogEntry, error)
	ListForRecord(ctx context.Context, tableName, recordID string, limit int) ([]models.AuditLogEntry, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an audit repository bound to the provided database.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{db: conn}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// LockHead loads the chain head under a row lock, creating the row on
// first use. The head row is what serializes concurrent appends to one
// chain: whoever holds it links the next entry.
func (r *repository) LockHead(ctx context.Context, chain string) (*models.AuditChainHead, error) {
	var head models.AuditChainHead
	err := repo.LockForUpdate(r.db.WithContext(ctx)).
		Where("chain = ?", chain).
		First(&head).Error
	if err == nil {
		return &head, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	head = models.AuditChainHead{Chain: chain, UpdatedAt: time.Now().UTC()}
	if createErr := r.db.WithContext(ctx).Create(&head).Error; createErr != nil {
		if !db.IsUniqueViolation(createErr, "") {
			return nil, createErr
		}
		// Lost the creation race; lock the winner's row.
		err = repo.LockForUpdate(r.db.WithContext(ctx)).
			Where("chain = ?", chain).
			First(&head).Error
		if err != nil {
			return nil, err
		}
	}
	return &head, nil
}

func (r *repository) SaveHead(ctx context.Context, head *models.AuditChainHead) error {
	head.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&models.AuditChainHead{}).
		Where("chain = ?", head.Chain).
		UpdateColumns(map[string]any{
			"last_hash":     head.LastHash,
			"last_entry_id": head.LastEntryID,
			"updated_at":    head.UpdatedAt,
		}).Error
}

func (r *repository) Insert(ctx context.Context, entry *models.AuditLogEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListRange(ctx context.Context, chain string, afterID int64, limit int) ([]models.AuditLogEntry, error) {
	query := r.db.WithContext(ctx).
		Model(&models.AuditLogEntry{}).
		Where("chain = ?", chain).
		Order("id ASC")
	if afterID > 0 {
		query = query.Where("id > ?", afterID)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var entries []models.AuditLogEntry
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) ListForRecord(ctx context.Context, tableName, recordID string, limit int) ([]models.AuditLogEntry, error) {
	var entries []models.AuditLogEntry
	err := r.db.WithContext(ctx).
		Where("table_name = ? AND record_id = ?", tableName, recordID).
		Order("id DESC").
		Limit(pagination.NormalizeLimit(limit)).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
