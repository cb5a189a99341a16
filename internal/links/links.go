// Package links builds the artifact URLs embedded in verification payloads:
// certificate PDF downloads, the public verification page, and QR images
// delegated to an external chart service.
package links

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/wisdmlabs/certverify/internal/certificate"
)

const (
	qrEndpoint    = "https://quickchart.io/qr"
	defaultQRSize = 150
	minQRSize     = 50
	maxQRSize     = 500
)

var (
	ErrMissingVerificationBaseURL = errors.New("links: verification base url required")
	ErrMissingCertificateBaseURL  = errors.New("links: certificate base url required")
)

// Config describes the base locations artifact URLs are built from.
type Config struct {
	// VerificationBaseURL is the public verification page, e.g.
	// "https://academy.example.com/verify".
	VerificationBaseURL string
	// CertificateBaseURL is the LMS certificate rendering endpoint, e.g.
	// "https://academy.example.com/certificates".
	CertificateBaseURL string
	// QRSize is the QR image edge length in pixels, clamped to [50, 500].
	QRSize int
}

// Builder produces artifact URLs. It satisfies the certificate package's
// LinkBuilder contract.
type Builder struct {
	verificationBaseURL string
	certificateBaseURL  string
	qrSize              int
}

// NewBuilder constructs a Builder from validated configuration.
func NewBuilder(cfg Config) (*Builder, error) {
	verificationBase := strings.TrimRight(strings.TrimSpace(cfg.VerificationBaseURL), "/")
	if verificationBase == "" {
		return nil, ErrMissingVerificationBaseURL
	}
	certificateBase := strings.TrimRight(strings.TrimSpace(cfg.CertificateBaseURL), "/")
	if certificateBase == "" {
		return nil, ErrMissingCertificateBaseURL
	}

	size := cfg.QRSize
	if size == 0 {
		size = defaultQRSize
	}
	if size < minQRSize {
		size = minQRSize
	}
	if size > maxQRSize {
		size = maxQRSize
	}

	return &Builder{
		verificationBaseURL: verificationBase,
		certificateBaseURL:  certificateBase,
		qrSize:              size,
	}, nil
}

// VerificationURL returns the public verification page for the CSUID, or
// the bare page when the CSUID is empty.
func (b *Builder) VerificationURL(csuid string) string {
	csuid = strings.TrimSpace(csuid)
	if csuid == "" {
		return b.verificationBaseURL
	}
	return b.verificationBaseURL + "/" + url.PathEscape(csuid)
}

// CertificatePDFURL builds the download link for one template rendering.
// The source id parameter name depends on the source kind, mirroring the
// LMS download endpoint. An anonymous viewer falls back to the recipient.
func (b *Builder) CertificatePDFURL(templateID, sourceID, recipientID, viewerID uint64, kind certificate.SourceKind) string {
	if templateID == 0 || sourceID == 0 || recipientID == 0 {
		return ""
	}

	if viewerID == 0 {
		viewerID = recipientID
	}

	query := url.Values{}
	query.Set("user", fmt.Sprintf("%d", recipientID))
	query.Set("viewer", fmt.Sprintf("%d", viewerID))

	switch kind {
	case certificate.SourceKindQuiz:
		query.Set("quiz", fmt.Sprintf("%d", sourceID))
	case certificate.SourceKindGroup:
		query.Set("group_id", fmt.Sprintf("%d", sourceID))
	default:
		query.Set("course_id", fmt.Sprintf("%d", sourceID))
	}

	return fmt.Sprintf("%s/%d/pdf?%s", b.certificateBaseURL, templateID, query.Encode())
}

// QRImageURL returns a QR image URL encoding the target, or the empty
// string when there is nothing to encode.
func (b *Builder) QRImageURL(target string) string {
	if strings.TrimSpace(target) == "" {
		return ""
	}
	return fmt.Sprintf("%s?text=%s&size=%d&margin=1", qrEndpoint, url.QueryEscape(target), b.qrSize)
}
