package certificate

import (
	"context"
	"time"
)

// Source describes a completable unit as reported by the surrounding LMS.
// Kind is carried verbatim from the content system and may name a kind this
// package does not understand.
type Source struct {
	ID                 uint64
	Kind               SourceKind
	Title              string
	URL                string
	StandardTemplateID uint64
	// PocketTemplateID is zero when the source has no pocket rendering
	// assigned. The pocket certificate shares the standard CSUID.
	PocketTemplateID uint64
	// CourseID is the parent course for quiz sources, zero otherwise.
	CourseID uint64
}

// Template describes a certificate template document.
type Template struct {
	ID    uint64
	Title string
}

// Recipient describes a person who can earn certificates.
type Recipient struct {
	ID          uint64
	DisplayName string
	Email       string
}

// Completion is one historical completion row surfaced by the oracle's bulk
// query.
type Completion struct {
	SourceID    uint64
	RecipientID uint64
	CompletedAt time.Time
}

// ContentRepository resolves sources, templates and recipients from the
// surrounding content system. Resolvers return (nil, nil) when the entity
// does not exist; errors are reserved for infrastructure failures.
type ContentRepository interface {
	ResolveSource(ctx context.Context, id uint64) (*Source, error)
	ResolveTemplate(ctx context.Context, id uint64) (*Template, error)
	ResolveRecipient(ctx context.Context, id uint64) (*Recipient, error)
}

// CompletionOracle answers completion questions against the LMS records.
type CompletionOracle interface {
	HasCompleted(ctx context.Context, kind SourceKind, sourceID, recipientID uint64) (bool, error)
	// CompletionTime returns the recorded completion moment. The boolean is
	// false when no timestamp is known.
	CompletionTime(ctx context.Context, kind SourceKind, sourceID, recipientID uint64) (time.Time, bool, error)
	// ForEachCompletion streams every historical completion of the given
	// kind to fn. Implementations must not materialize the full set; fn
	// returning an error stops iteration.
	ForEachCompletion(ctx context.Context, kind SourceKind, fn func(Completion) error) error
}

// LinkBuilder produces the renderable artifact references embedded in
// verification payloads.
type LinkBuilder interface {
	// CertificatePDFURL builds the download link for one template rendering.
	// viewerID falls back to the recipient when the visitor is anonymous.
	CertificatePDFURL(templateID, sourceID, recipientID, viewerID uint64, kind SourceKind) string
	VerificationURL(csuid string) string
	QRImageURL(target string) string
}
