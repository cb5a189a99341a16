package certificate

import (
	"context"
	"errors"
	"time"

	"github.com/wisdmlabs/certverify/internal/csuid"
	"go.uber.org/zap"
)

var (
	errMissingStore = errors.New("record store is required")
	errMissingLinks = errors.New("link builder is required")
)

const (
	opEngineNew        = "certificate.engine.new"
	opEngineVerify     = "certificate.engine.verify"
	opEngineCompletion = "certificate.engine.record_completion"
)

// EngineConfig describes the dependencies of the verification engine.
type EngineConfig struct {
	Content ContentRepository
	Oracle  CompletionOracle
	Store   *Store
	Links   LinkBuilder
	Logger  *zap.Logger
}

// Engine turns a submitted identifier string into either a display-ready
// certificate payload or a typed failure. Checks run in a fixed order and
// the first failing check wins, so error precedence is stable.
type Engine struct {
	content ContentRepository
	oracle  CompletionOracle
	store   *Store
	links   LinkBuilder
	logger  *zap.Logger
}

// NewEngine constructs the verification engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Content == nil {
		return nil, newServiceError(opEngineNew, "missing_content", errMissingContent)
	}
	if cfg.Oracle == nil {
		return nil, newServiceError(opEngineNew, "missing_oracle", errMissingOracle)
	}
	if cfg.Store == nil {
		return nil, newServiceError(opEngineNew, "missing_store", errMissingStore)
	}
	if cfg.Links == nil {
		return nil, newServiceError(opEngineNew, "missing_links", errMissingLinks)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Engine{
		content: cfg.Content,
		oracle:  cfg.Oracle,
		store:   cfg.Store,
		links:   cfg.Links,
		logger:  logger,
	}, nil
}

// Result is the outcome of one verification. Exactly one of Certificate or
// Failure is meaningful: a valid result carries the payload, a failed one
// carries the failure kind.
type Result struct {
	Valid       bool
	Failure     FailureKind
	Certificate *CertificatePayload
}

// CertificatePayload is the display-ready view of a verified certificate.
type CertificatePayload struct {
	CSUID     string
	Recipient RecipientSummary
	Source    SourceSummary
	Standard  CertificateSummary
	// Pocket is nil when the source has no pocket rendering assigned. It
	// shares the CSUID of the standard certificate.
	Pocket *CertificateSummary
	// Course is the parent course when the source is a quiz, nil otherwise.
	Course      *SourceSummary
	CompletedAt time.Time
	// IsOwner is true when the verifying visitor is the certificate's
	// recipient. Anonymous visitors verify with IsOwner false.
	IsOwner bool
}

// RecipientSummary is the recipient portion of a verification payload.
type RecipientSummary struct {
	ID    uint64
	Name  string
	Email string
}

// SourceSummary is the source portion of a verification payload.
type SourceSummary struct {
	ID    uint64
	Kind  SourceKind
	Title string
	URL   string
}

// CertificateSummary describes one rendering of the certificate together
// with its artifact references.
type CertificateSummary struct {
	ID              uint64
	Title           string
	PDFURL          string
	VerificationURL string
	QRImageURL      string
}

func failed(kind FailureKind) Result {
	return Result{Valid: false, Failure: kind}
}

// Verify runs the full verification state machine over the submitted input.
// viewerID is the authenticated visitor's recipient id, zero for anonymous
// visitors. Expected failures are reported inside the Result; the error
// return is reserved for unavailable collaborators.
func (e *Engine) Verify(ctx context.Context, rawInput string, viewerID uint64) (Result, error) {
	normalized := csuid.Normalize(rawInput)

	if !csuid.IsValid(normalized) {
		return failed(FailureInvalidFormat), nil
	}

	triple := csuid.Decode(normalized)
	if !triple.Complete() {
		return failed(FailureDecodeFailed), nil
	}

	source, err := e.content.ResolveSource(ctx, triple.SourceID)
	if err != nil {
		return Result{}, e.verifyError("source_lookup_failed", normalized, err)
	}
	if source == nil {
		return failed(FailureSourceNotFound), nil
	}

	if !source.Kind.Known() {
		return failed(FailureInvalidSourceType), nil
	}

	recipient, err := e.content.ResolveRecipient(ctx, triple.RecipientID)
	if err != nil {
		return Result{}, e.verifyError("recipient_lookup_failed", normalized, err)
	}
	if recipient == nil {
		return failed(FailureRecipientNotFound), nil
	}

	template, err := e.content.ResolveTemplate(ctx, triple.TemplateID)
	if err != nil {
		return Result{}, e.verifyError("template_lookup_failed", normalized, err)
	}
	if template == nil {
		return failed(FailureTemplateNotFound), nil
	}

	// Pocket CSUIDs are encoded with the standard template id, so this
	// check holds for both renderings.
	if source.StandardTemplateID != triple.TemplateID {
		return failed(FailureAssignmentMismatch), nil
	}

	completed, err := e.oracle.HasCompleted(ctx, source.Kind, triple.SourceID, triple.RecipientID)
	if err != nil {
		return Result{}, e.verifyError("completion_check_failed", normalized, err)
	}
	if !completed {
		return failed(FailureNotCompleted), nil
	}

	record, _, err := e.store.Create(ctx, triple.TemplateID, triple.SourceID, triple.RecipientID, source.Kind, false)
	if err != nil {
		return Result{}, e.verifyError("record_materialize_failed", normalized, err)
	}

	payload := e.buildPayload(ctx, normalized, triple, source, recipient, template, record, viewerID)
	return Result{Valid: true, Certificate: payload}, nil
}

// RecordCompletion handles a fresh completion event from the LMS: it
// resolves the source's assigned template and materializes the record,
// emitting the generated event. A source with no template assigned is a
// silent no-op.
func (e *Engine) RecordCompletion(ctx context.Context, kind SourceKind, sourceID, recipientID uint64) (*Record, bool, error) {
	source, err := e.content.ResolveSource(ctx, sourceID)
	if err != nil {
		return nil, false, newServiceError(opEngineCompletion, "source_lookup_failed", err)
	}
	if source == nil || source.Kind != kind {
		e.logger.Warn("completion event for unknown source",
			zap.String("source_type", kind.String()),
			zap.Uint64("source_id", sourceID),
			zap.Uint64("recipient_id", recipientID))
		return nil, false, nil
	}
	if source.StandardTemplateID == 0 {
		return nil, false, nil
	}

	record, created, err := e.store.Create(ctx, source.StandardTemplateID, sourceID, recipientID, kind, false)
	if err != nil {
		return nil, false, err
	}
	return record, created, nil
}

func (e *Engine) buildPayload(ctx context.Context, normalized string, triple csuid.Triple, source *Source, recipient *Recipient, template *Template, record *Record, viewerID uint64) *CertificatePayload {
	payload := &CertificatePayload{
		CSUID: normalized,
		Recipient: RecipientSummary{
			ID:    recipient.ID,
			Name:  recipient.DisplayName,
			Email: recipient.Email,
		},
		Source: SourceSummary{
			ID:    source.ID,
			Kind:  source.Kind,
			Title: source.Title,
			URL:   source.URL,
		},
		Standard: e.certificateSummary(template.ID, template.Title, source, triple.RecipientID, viewerID, normalized),
		IsOwner:  viewerID != 0 && viewerID == recipient.ID,
	}

	if record != nil {
		payload.CompletedAt = record.CompletedAt()
	} else if completedAt, known, err := e.oracle.CompletionTime(ctx, source.Kind, source.ID, recipient.ID); err == nil && known {
		payload.CompletedAt = completedAt
	}

	if source.PocketTemplateID != 0 {
		if pocket, err := e.content.ResolveTemplate(ctx, source.PocketTemplateID); err == nil && pocket != nil {
			summary := e.certificateSummary(pocket.ID, pocket.Title, source, triple.RecipientID, viewerID, normalized)
			payload.Pocket = &summary
		}
	}

	if source.Kind == SourceKindQuiz && source.CourseID != 0 {
		if course, err := e.content.ResolveSource(ctx, source.CourseID); err == nil && course != nil {
			payload.Course = &SourceSummary{
				ID:    course.ID,
				Kind:  course.Kind,
				Title: course.Title,
				URL:   course.URL,
			}
		}
	}

	return payload
}

func (e *Engine) certificateSummary(templateID uint64, title string, source *Source, recipientID, viewerID uint64, normalized string) CertificateSummary {
	verificationURL := e.links.VerificationURL(normalized)
	return CertificateSummary{
		ID:              templateID,
		Title:           title,
		PDFURL:          e.links.CertificatePDFURL(templateID, source.ID, recipientID, viewerID, source.Kind),
		VerificationURL: verificationURL,
		QRImageURL:      e.links.QRImageURL(verificationURL),
	}
}

func (e *Engine) verifyError(reason, normalized string, err error) error {
	e.logger.Error("certificate verification error",
		zap.String("operation", opEngineVerify),
		zap.String("reason", reason),
		zap.String("csuid", normalized),
		zap.Error(err))
	return newServiceError(opEngineVerify, reason, err)
}
