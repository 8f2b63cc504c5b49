package repo

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultMaxBatch bounds how many conditional updates one batch may carry,
// which in turn bounds transaction size and lock hold time.
const DefaultMaxBatch = 50

// Base provides the conditional-update substrate every domain repository
// builds on. All writes issued through it stamp updated_at (and created_at
// on insert) from a single timestamp captured once per logical operation.
type Base struct {
	db *gorm.DB
}

// NewBase constructs a Base repository backed by the provided GORM connection.
func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// WithTx rebinds the base to an existing transaction.
func (b Base) WithTx(tx *gorm.DB) Base {
	if tx == nil {
		return b
	}
	return Base{db: tx}
}

// DB returns the GORM connection bound to the supplied context (if any).
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// Patch is an explicit whitelist of mutable columns for one update. Callers
// enumerate exactly the fields an operation may touch; there is no
// spread-the-whole-struct path that could silently widen a write set.
type Patch map[string]any

// Cond is a SQL predicate encoding the required prior state of the rows an
// update may touch.
type Cond struct {
	Query string
	Args  []any
}

// Where builds a condition from a query fragment and its arguments.
func Where(query string, args ...any) Cond {
	return Cond{Query: query, Args: args}
}

// Update pairs one predicate with the patch to apply where it holds.
type Update struct {
	Where Cond
	Patch Patch
}

// BatchOptions tunes BatchUpdate. A nil Tx opens a fresh transaction; a
// supplied one makes the batch participate in the caller's unit of work.
type BatchOptions struct {
	MaxBatch int
	Tx       *gorm.DB
}

// UpdateWhere applies patch to every row matching cond and returns the
// updated rows. Zero returned rows is not an error: it is the expected
// outcome when the predicate's required prior state no longer holds, and
// callers branch on it for optimistic concurrency.
func UpdateWhere[T any](ctx context.Context, base Base, cond Cond, patch Patch) ([]T, error) {
	return updateWhere[T](base.DB(ctx), cond, patch, time.Now().UTC())
}

func updateWhere[T any](db *gorm.DB, cond Cond, patch Patch, now time.Time) ([]T, error) {
	if cond.Query == "" {
		return nil, fmt.Errorf("update condition is required")
	}
	if len(patch) == 0 {
		return nil, fmt.Errorf("update patch is required")
	}

	var updated []T
	result := db.
		Model(&updated).
		Clauses(clause.Returning{}).
		Where(cond.Query, cond.Args...).
		UpdateColumns(withTouch(patch, now))
	if result.Error != nil {
		return nil, result.Error
	}
	return updated, nil
}

// BatchUpdate applies a list of independent conditional updates inside one
// transaction, all sharing one timestamp. Rows whose predicate no longer
// holds are skipped, not errored. Batches above the limit are rejected
// outright to keep lock footprints bounded.
func BatchUpdate[T any](ctx context.Context, base Base, updates []Update, opts BatchOptions) ([]T, error) {
	maxBatch := opts.MaxBatch
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatch
	}
	if len(updates) > maxBatch {
		return nil, fmt.Errorf("batch size %d exceeds limit %d", len(updates), maxBatch)
	}
	if len(updates) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()

	run := func(tx *gorm.DB) ([]T, error) {
		var all []T
		for _, update := range updates {
			rows, err := updateWhere[T](tx, update.Where, update.Patch, now)
			if err != nil {
				return nil, err
			}
			all = append(all, rows...)
		}
		return all, nil
	}

	if opts.Tx != nil {
		return run(opts.Tx.WithContext(ctx))
	}

	var all []T
	err := base.DB(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := run(tx)
		if err != nil {
			return err
		}
		all = rows
		return nil
	})
	if err != nil {
		return nil, err
	}
	return all, nil
}

// Insert persists the given rows with created_at == updated_at, all stamped
// from one timestamp regardless of how many rows the batch carries.
func Insert[T any](ctx context.Context, base Base, rows ...*T) error {
	if len(rows) == 0 {
		return nil
	}
	now := time.Now().UTC()
	return frozenClock(base.DB(ctx), now).Create(rows).Error
}

// LockForUpdate adds a FOR UPDATE row lock on dialects that support it.
// sqlite has a single-writer model, so its transactions already serialize
// the paths the lock protects in tests.
func LockForUpdate(db *gorm.DB) *gorm.DB {
	if db.Dialector != nil && db.Dialector.Name() == "sqlite" {
		return db
	}
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

// withTouch copies the patch into a plain map before it reaches gorm:
// assignment conversion type-switches on map[string]interface{}, and a
// named map type would fall through to ErrInvalidData.
func withTouch(patch Patch, now time.Time) map[string]any {
	touched := make(map[string]any, len(patch)+1)
	for column, value := range patch {
		touched[column] = value
	}
	touched["updated_at"] = now
	return touched
}

func frozenClock(db *gorm.DB, now time.Time) *gorm.DB {
	return db.Session(&gorm.Session{NowFunc: func() time.Time { return now }})
}
