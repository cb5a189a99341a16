package lms

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wisdmlabs/certverify/internal/certificate"
	"gorm.io/gorm"
)

// completionBatchSize bounds how many completion rows one backfill batch
// holds in memory.
const completionBatchSize = 200

// Repository reads LMS tables and satisfies both the content repository and
// the completion oracle contracts of the certificate core.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs the LMS repository.
func NewRepository(db *gorm.DB) (*Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("lms: database handle is required")
	}
	return &Repository{db: db}, nil
}

// ResolveSource returns the source with its template assignments, or nil
// when it does not exist. The kind value is passed through verbatim; the
// caller decides whether it is one it understands.
func (r *Repository) ResolveSource(ctx context.Context, id uint64) (*certificate.Source, error) {
	var row SourceRow
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lms: resolve source %d: %w", id, err)
	}

	return &certificate.Source{
		ID:                 row.ID,
		Kind:               certificate.SourceKind(row.Kind),
		Title:              row.Title,
		URL:                row.URL,
		StandardTemplateID: row.StandardTemplateID,
		PocketTemplateID:   row.PocketTemplateID,
		CourseID:           row.CourseID,
	}, nil
}

// ResolveTemplate returns the certificate template, or nil when it does not
// exist.
func (r *Repository) ResolveTemplate(ctx context.Context, id uint64) (*certificate.Template, error) {
	var row TemplateRow
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lms: resolve template %d: %w", id, err)
	}
	return &certificate.Template{ID: row.ID, Title: row.Title}, nil
}

// ResolveRecipient returns the recipient, or nil when it does not exist.
func (r *Repository) ResolveRecipient(ctx context.Context, id uint64) (*certificate.Recipient, error) {
	var row RecipientRow
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lms: resolve recipient %d: %w", id, err)
	}
	return &certificate.Recipient{ID: row.ID, DisplayName: row.DisplayName, Email: row.Email}, nil
}

// HasCompleted reports whether the recipient completed the source.
func (r *Repository) HasCompleted(ctx context.Context, kind certificate.SourceKind, sourceID, recipientID uint64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&CompletionRow{}).
		Where("source_kind = ? AND source_id = ? AND recipient_id = ?", kind.String(), sourceID, recipientID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("lms: completion check: %w", err)
	}
	return count > 0, nil
}

// CompletionTime returns the recorded completion moment, with the boolean
// false when none is known.
func (r *Repository) CompletionTime(ctx context.Context, kind certificate.SourceKind, sourceID, recipientID uint64) (time.Time, bool, error) {
	var row CompletionRow
	err := r.db.WithContext(ctx).
		Where("source_kind = ? AND source_id = ? AND recipient_id = ?", kind.String(), sourceID, recipientID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("lms: completion time: %w", err)
	}
	return time.Unix(row.CompletedAtSeconds, 0).UTC(), true, nil
}

// ForEachCompletion streams every completion of the given kind to fn in
// bounded batches.
func (r *Repository) ForEachCompletion(ctx context.Context, kind certificate.SourceKind, fn func(certificate.Completion) error) error {
	var rows []CompletionRow
	err := r.db.WithContext(ctx).
		Where("source_kind = ?", kind.String()).
		FindInBatches(&rows, completionBatchSize, func(_ *gorm.DB, _ int) error {
			for _, row := range rows {
				completion := certificate.Completion{
					SourceID:    row.SourceID,
					RecipientID: row.RecipientID,
					CompletedAt: time.Unix(row.CompletedAtSeconds, 0).UTC(),
				}
				if err := fn(completion); err != nil {
					return err
				}
			}
			return nil
		}).Error
	if err != nil {
		return fmt.Errorf("lms: scan completions: %w", err)
	}
	return nil
}
