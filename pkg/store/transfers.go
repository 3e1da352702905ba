package store

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TransferStore persists transfer rows.
type TransferStore struct {
	db *gorm.DB
}

// Save writes the full row, inserting or replacing by ID. The transfer
// engine calls this synchronously on every state transition, so the write
// must complete before the caller notifies observers.
func (s *TransferStore) Save(ctx context.Context, rec *TransferRecord) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(rec).Error
	return convertError("saving transfer", err)
}

// Get returns one transfer by ID.
func (s *TransferStore) Get(ctx context.Context, id string) (*TransferRecord, error) {
	var rec TransferRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if err != nil {
		return nil, convertError("loading transfer", err)
	}
	return &rec, nil
}

// List returns all transfers for a direction ordered by enqueue time, then
// ID for a stable order among equal timestamps.
func (s *TransferStore) List(ctx context.Context, direction string) ([]TransferRecord, error) {
	var recs []TransferRecord
	err := s.db.WithContext(ctx).
		Where("direction = ?", direction).
		Order("enqueued_at, id").
		Find(&recs).Error
	if err != nil {
		return nil, convertError("listing transfers", err)
	}
	return recs, nil
}

// NonTerminal returns every transfer whose state is not in the terminal set,
// for startup recovery.
func (s *TransferStore) NonTerminal(ctx context.Context, terminalStates []string) ([]TransferRecord, error) {
	var recs []TransferRecord
	err := s.db.WithContext(ctx).
		Where("state NOT IN ?", terminalStates).
		Order("enqueued_at, id").
		Find(&recs).Error
	if err != nil {
		return nil, convertError("loading non-terminal transfers", err)
	}
	return recs, nil
}

// Delete removes a transfer row. Missing rows are a NotFound error.
func (s *TransferStore) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&TransferRecord{})
	if res.Error != nil {
		return convertError("deleting transfer", res.Error)
	}
	if res.RowsAffected == 0 {
		return convertError("deleting transfer", gorm.ErrRecordNotFound)
	}
	return nil
}
