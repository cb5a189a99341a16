// Package lms persists the content and completion records this service
// reads: sources, certificate templates, recipients, and per-recipient
// completion rows. It adapts those tables to the repository and oracle
// contracts consumed by the certificate core.
package lms

// SourceRow is a completable unit (course, quiz, or group) with its
// certificate template assignments.
type SourceRow struct {
	ID    uint64 `gorm:"column:id;primaryKey"`
	Kind  string `gorm:"column:kind;size:16;not null;index"`
	Title string `gorm:"column:title;size:320;not null;default:''"`
	URL   string `gorm:"column:url;size:512;not null;default:''"`
	// StandardTemplateID is zero when no certificate is assigned.
	StandardTemplateID uint64 `gorm:"column:standard_template_id;not null;default:0"`
	PocketTemplateID   uint64 `gorm:"column:pocket_template_id;not null;default:0"`
	// CourseID links a quiz to its parent course, zero otherwise.
	CourseID uint64 `gorm:"column:course_id;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (SourceRow) TableName() string {
	return "lms_sources"
}

// TemplateRow is a certificate template document.
type TemplateRow struct {
	ID    uint64 `gorm:"column:id;primaryKey"`
	Title string `gorm:"column:title;size:320;not null;default:''"`
}

// TableName provides the explicit table binding for GORM.
func (TemplateRow) TableName() string {
	return "lms_certificate_templates"
}

// RecipientRow is a person who can complete sources.
type RecipientRow struct {
	ID          uint64 `gorm:"column:id;primaryKey"`
	DisplayName string `gorm:"column:display_name;size:320;not null;default:''"`
	Email       string `gorm:"column:email;size:320;not null;default:''"`
}

// TableName provides the explicit table binding for GORM.
func (RecipientRow) TableName() string {
	return "lms_recipients"
}

// CompletionRow records that a recipient completed a source at a moment in
// time. The surrogate id keeps batch scans pageable; the composite unique
// index carries the real identity.
type CompletionRow struct {
	ID                 uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	SourceKind         string `gorm:"column:source_kind;size:16;not null;uniqueIndex:idx_lms_completions_key"`
	SourceID           uint64 `gorm:"column:source_id;not null;uniqueIndex:idx_lms_completions_key"`
	RecipientID        uint64 `gorm:"column:recipient_id;not null;uniqueIndex:idx_lms_completions_key"`
	CompletedAtSeconds int64  `gorm:"column:completed_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (CompletionRow) TableName() string {
	return "lms_completions"
}
