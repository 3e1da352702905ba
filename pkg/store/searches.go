package store

import (
	"context"

	"gorm.io/gorm"
)

// SearchStore persists searches and their per-peer responses.
type SearchStore struct {
	db *gorm.DB
}

// Create inserts a new search row.
func (s *SearchStore) Create(ctx context.Context, rec *SearchRecord) error {
	err := s.db.WithContext(ctx).Create(rec).Error
	return convertError("creating search", err)
}

// Update rewrites the search's scalar columns (state, timestamps, counters).
// Responses are appended separately through AddResponse.
func (s *SearchStore) Update(ctx context.Context, rec *SearchRecord) error {
	err := s.db.WithContext(ctx).Model(&SearchRecord{}).
		Where("id = ?", rec.ID).
		Updates(map[string]any{
			"state":          rec.State,
			"ended_at":       rec.EndedAt,
			"response_count": rec.ResponseCount,
			"file_count":     rec.FileCount,
		}).Error
	return convertError("updating search", err)
}

// AddResponse appends one peer's response, including its files, and bumps
// the parent counters in the same transaction.
func (s *SearchStore) AddResponse(ctx context.Context, searchID string, resp *SearchResponseRecord) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		resp.SearchID = searchID
		if err := tx.Create(resp).Error; err != nil {
			return err
		}
		return tx.Model(&SearchRecord{}).
			Where("id = ?", searchID).
			Updates(map[string]any{
				"response_count": gorm.Expr("response_count + 1"),
				"file_count":     gorm.Expr("file_count + ?", len(resp.Files)),
			}).Error
	})
	return convertError("recording search response", err)
}

// Get returns a search with its responses and files preloaded.
func (s *SearchStore) Get(ctx context.Context, id string) (*SearchRecord, error) {
	var rec SearchRecord
	err := s.db.WithContext(ctx).
		Preload("Responses.Files").
		Preload("Responses").
		Where("id = ?", id).
		First(&rec).Error
	if err != nil {
		return nil, convertError("loading search", err)
	}
	return &rec, nil
}

// List returns searches newest first, without response payloads.
func (s *SearchStore) List(ctx context.Context, limit int) ([]SearchRecord, error) {
	q := s.db.WithContext(ctx).Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var recs []SearchRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, convertError("listing searches", err)
	}
	return recs, nil
}

// Delete removes a search and, through the cascade, its responses.
func (s *SearchStore) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&SearchRecord{})
	if res.Error != nil {
		return convertError("deleting search", res.Error)
	}
	if res.RowsAffected == 0 {
		return convertError("deleting search", gorm.ErrRecordNotFound)
	}
	return nil
}
