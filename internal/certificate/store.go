package certificate

import (
	"context"
	"errors"
	"time"

	"github.com/wisdmlabs/certverify/internal/csuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingContent  = errors.New("content repository is required")
	errMissingOracle   = errors.New("completion oracle is required")
	noOpLogger         = zap.NewNop()
)

const (
	opStoreNew    = "certificate.store.new"
	opStoreGet    = "certificate.store.get"
	opStoreCreate = "certificate.store.create"
	opStoreDelete = "certificate.store.delete"
	opStoreList   = "certificate.store.list"
	opStoreStats  = "certificate.store.stats"
)

// StoreConfig describes the dependencies of the record store.
type StoreConfig struct {
	Database *gorm.DB
	Content  ContentRepository
	Oracle   CompletionOracle
	// Notifier receives one GeneratedEvent per first-time non-retroactive
	// creation. Optional; nil disables notification.
	Notifier   Notifier
	IDProvider IDProvider
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Store materializes and looks up certificate records. Creation is
// idempotent per (source_type, source_id, recipient_id) key and safe under
// concurrent first-time lookups.
type Store struct {
	db         *gorm.DB
	content    ContentRepository
	oracle     CompletionOracle
	notifier   Notifier
	idProvider IDProvider
	clock      func() time.Time
	logger     *zap.Logger
}

// NewStore constructs the record store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opStoreNew, "missing_database", errMissingDatabase)
	}
	if cfg.Content == nil {
		return nil, newServiceError(opStoreNew, "missing_content", errMissingContent)
	}
	if cfg.Oracle == nil {
		return nil, newServiceError(opStoreNew, "missing_oracle", errMissingOracle)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = NewUUIDProvider()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Store{
		db:         cfg.Database,
		content:    cfg.Content,
		oracle:     cfg.Oracle,
		notifier:   cfg.Notifier,
		idProvider: idProvider,
		clock:      clock,
		logger:     logger,
	}, nil
}

// Get returns the record for the key, or nil when absent. Pure lookup, no
// side effects.
func (s *Store) Get(ctx context.Context, sourceID, recipientID uint64, kind SourceKind) (*Record, error) {
	var record Record
	err := s.db.WithContext(ctx).
		Where("source_type = ? AND source_id = ? AND recipient_id = ?", kind.String(), sourceID, recipientID).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		s.logError(opStoreGet, "query_failed", err,
			zap.String("source_type", kind.String()),
			zap.Uint64("source_id", sourceID),
			zap.Uint64("recipient_id", recipientID))
		return nil, newServiceError(opStoreGet, "query_failed", err)
	}
	return &record, nil
}

// Create materializes the record for the key, returning the record and
// whether this call created it. An existing record is returned unmodified.
// The insert uses an on-conflict no-op so two simultaneous first-time
// creations both observe the single surviving row.
func (s *Store) Create(ctx context.Context, templateID, sourceID, recipientID uint64, kind SourceKind, retroactive bool) (*Record, bool, error) {
	encoded := csuid.Encode(templateID, sourceID, recipientID)
	if encoded == "" {
		return nil, false, newServiceError(opStoreCreate, "cannot_encode", ErrCannotEncode)
	}

	if existing, err := s.Get(ctx, sourceID, recipientID, kind); err != nil {
		return nil, false, err
	} else if existing != nil {
		return existing, false, nil
	}

	pocketID := s.pocketTemplateID(ctx, sourceID)
	completedAt := s.completionTime(ctx, kind, sourceID, recipientID)
	now := s.clock().UTC()

	record := Record{
		SourceType:         kind,
		SourceID:           sourceID,
		RecipientID:        recipientID,
		CSUID:              encoded,
		StandardTemplateID: templateID,
		PocketTemplateID:   pocketID,
		CompletedAtSeconds: completedAt.Unix(),
		GeneratedAtSeconds: now.Unix(),
		IsRetroactive:      retroactive,
	}

	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&record)
	if result.Error != nil {
		s.logError(opStoreCreate, "insert_failed", result.Error, zap.String("csuid", encoded))
		return nil, false, newServiceError(opStoreCreate, "insert_failed", result.Error)
	}

	if result.RowsAffected == 0 {
		// Lost the race to a concurrent first-time creation; the surviving
		// row is authoritative.
		existing, err := s.Get(ctx, sourceID, recipientID, kind)
		if err != nil {
			return nil, false, err
		}
		if existing == nil {
			return nil, false, newServiceError(opStoreCreate, "conflict_vanished", gorm.ErrRecordNotFound)
		}
		return existing, false, nil
	}

	if !retroactive {
		s.notifyGenerated(ctx, record)
	}

	return &record, true, nil
}

// Delete removes the record for the key, reporting whether one existed.
func (s *Store) Delete(ctx context.Context, sourceID, recipientID uint64, kind SourceKind) (bool, error) {
	result := s.db.WithContext(ctx).
		Where("source_type = ? AND source_id = ? AND recipient_id = ?", kind.String(), sourceID, recipientID).
		Delete(&Record{})
	if result.Error != nil {
		s.logError(opStoreDelete, "delete_failed", result.Error,
			zap.String("source_type", kind.String()),
			zap.Uint64("source_id", sourceID),
			zap.Uint64("recipient_id", recipientID))
		return false, newServiceError(opStoreDelete, "delete_failed", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// ListByRecipient returns every record owned by the recipient, most recent
// completion first.
func (s *Store) ListByRecipient(ctx context.Context, recipientID uint64) ([]Record, error) {
	var records []Record
	err := s.db.WithContext(ctx).
		Where("recipient_id = ?", recipientID).
		Order("completed_at_s DESC").
		Find(&records).Error
	if err != nil {
		s.logError(opStoreList, "query_failed", err, zap.Uint64("recipient_id", recipientID))
		return nil, newServiceError(opStoreList, "query_failed", err)
	}
	return records, nil
}

// Stats summarizes the record population.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{}
	counts := []struct {
		target *int64
		query  *gorm.DB
	}{
		{&stats.TotalRecords, s.db.WithContext(ctx).Model(&Record{})},
		{&stats.CourseRecords, s.db.WithContext(ctx).Model(&Record{}).Where("source_type = ?", SourceKindCourse.String())},
		{&stats.QuizRecords, s.db.WithContext(ctx).Model(&Record{}).Where("source_type = ?", SourceKindQuiz.String())},
		{&stats.GroupRecords, s.db.WithContext(ctx).Model(&Record{}).Where("source_type = ?", SourceKindGroup.String())},
		{&stats.Retroactive, s.db.WithContext(ctx).Model(&Record{}).Where("is_retroactive = ?", true)},
		{&stats.WithPocket, s.db.WithContext(ctx).Model(&Record{}).Where("pocket_cert_id > 0")},
	}
	for _, count := range counts {
		if err := count.query.Count(count.target).Error; err != nil {
			s.logError(opStoreStats, "count_failed", err)
			return Stats{}, newServiceError(opStoreStats, "count_failed", err)
		}
	}
	return stats, nil
}

func (s *Store) pocketTemplateID(ctx context.Context, sourceID uint64) uint64 {
	source, err := s.content.ResolveSource(ctx, sourceID)
	if err != nil {
		s.logError(opStoreCreate, "pocket_lookup_failed", err, zap.Uint64("source_id", sourceID))
		return 0
	}
	if source == nil {
		return 0
	}
	return source.PocketTemplateID
}

func (s *Store) completionTime(ctx context.Context, kind SourceKind, sourceID, recipientID uint64) time.Time {
	completedAt, known, err := s.oracle.CompletionTime(ctx, kind, sourceID, recipientID)
	if err != nil {
		s.logError(opStoreCreate, "completion_time_failed", err,
			zap.String("source_type", kind.String()),
			zap.Uint64("source_id", sourceID),
			zap.Uint64("recipient_id", recipientID))
	}
	if err != nil || !known {
		return s.clock().UTC()
	}
	return completedAt
}

func (s *Store) notifyGenerated(ctx context.Context, record Record) {
	if s.notifier == nil {
		return
	}

	event := GeneratedEvent{
		CSUID:      record.CSUID,
		Record:     record,
		OccurredAt: s.clock().UTC(),
	}

	eventID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opStoreCreate, "event_id_failed", err, zap.String("csuid", record.CSUID))
	} else {
		event.EventID = eventID
	}

	if recipient, err := s.content.ResolveRecipient(ctx, record.RecipientID); err == nil && recipient != nil {
		event.Recipient = *recipient
	}
	if source, err := s.content.ResolveSource(ctx, record.SourceID); err == nil && source != nil {
		event.Source = *source
	}

	s.notifier.RecordGenerated(ctx, event)
}

func (s *Store) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("certificate store error", attrs...)
}
