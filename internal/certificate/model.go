package certificate

import "time"

// Record is the persisted proof that a recipient earned a certificate for a
// source. Records are created at most once per (source_type, source_id,
// recipient_id) key and never mutated afterwards.
type Record struct {
	SourceType         SourceKind `gorm:"column:source_type;primaryKey;size:16;not null"`
	SourceID           uint64     `gorm:"column:source_id;primaryKey;not null"`
	RecipientID        uint64     `gorm:"column:recipient_id;primaryKey;not null"`
	CSUID              string     `gorm:"column:csuid;size:64;not null;index:idx_certificate_records_csuid"`
	StandardTemplateID uint64     `gorm:"column:standard_cert_id;not null"`
	PocketTemplateID   uint64     `gorm:"column:pocket_cert_id;not null;default:0"`
	CompletedAtSeconds int64      `gorm:"column:completed_at_s;not null"`
	GeneratedAtSeconds int64      `gorm:"column:generated_at_s;not null"`
	IsRetroactive      bool       `gorm:"column:is_retroactive;not null;default:false"`
}

// TableName provides the explicit table binding for GORM.
func (Record) TableName() string {
	return "certificate_records"
}

// CompletedAt exposes the completion moment as a time value.
func (r Record) CompletedAt() time.Time {
	return time.Unix(r.CompletedAtSeconds, 0).UTC()
}

// GeneratedAt exposes the record creation moment as a time value.
func (r Record) GeneratedAt() time.Time {
	return time.Unix(r.GeneratedAtSeconds, 0).UTC()
}

// Stats summarizes the materialized record population.
type Stats struct {
	TotalRecords  int64
	CourseRecords int64
	QuizRecords   int64
	GroupRecords  int64
	Retroactive   int64
	WithPocket    int64
}
