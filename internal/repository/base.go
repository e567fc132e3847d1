// Package repository implements the entity store: typed access to users,
// communities and threads keyed by external or internal ids.
package repository

import (
	"agora/internal/database"
	"agora/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// inChunk bounds the ids bound into one IN list.
const inChunk = 500

// LockMode is the row lock a locking read takes. SQLite has no row locks;
// there the clause is dropped and write transactions serialize instead.
type LockMode string

const (
	// LockShare keeps the row from being deleted until the transaction ends.
	LockShare LockMode = clause.LockingStrengthShare
	// LockUpdate excludes share lockers until the transaction ends.
	LockUpdate LockMode = clause.LockingStrengthUpdate
)

func locking(tx *gorm.DB, mode LockMode) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: string(mode)})
}

// first runs a single-row lookup, mapping "no row" to (nil, nil).
func first[T any](tx *gorm.DB, op string) (*T, error) {
	var out T
	table := "unknown"
	if err := tx.Statement.Parse(&out); err == nil {
		table = tx.Statement.Table
	}
	ctx, span := observability.TraceStoreOperation(tx.Statement.Context, op, table)
	defer span.End()

	if err := tx.WithContext(ctx).First(&out).Error; err != nil {
		if database.IsRecordNotFound(err) {
			return nil, nil
		}
		observability.RecordErrorInContext(ctx, err)
		return nil, database.Classify(op, err)
	}
	return &out, nil
}
