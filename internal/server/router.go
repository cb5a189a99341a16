package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/wisdmlabs/certverify/internal/auth"
	"github.com/wisdmlabs/certverify/internal/certificate"
	"go.uber.org/zap"
)

const viewerContextKey = "certverify_viewer_id"

var (
	errMissingEngine   = errors.New("verification engine dependency required")
	errMissingBackfill = errors.New("backfill job dependency required")
	errMissingStore    = errors.New("record store dependency required")
)

// SessionValidator extracts the authenticated viewer from a request.
type SessionValidator interface {
	ViewerFromRequest(r *http.Request) (auth.Viewer, error)
}

// Dependencies wires the HTTP surface to the service components.
type Dependencies struct {
	Engine   *certificate.Engine
	Backfill *certificate.Backfill
	Store    *certificate.Store
	Links    certificate.LinkBuilder
	// Sessions is optional; without it every visitor is anonymous.
	Sessions SessionValidator
	// AdminToken guards the admin routes; empty disables them.
	AdminToken string
	Logger     *zap.Logger
}

// NewHTTPHandler builds the gin router for the verification service.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Engine == nil {
		return nil, errMissingEngine
	}
	if deps.Backfill == nil {
		return nil, errMissingBackfill
	}
	if deps.Store == nil {
		return nil, errMissingStore
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		engine:     deps.Engine,
		backfill:   deps.Backfill,
		store:      deps.Store,
		links:      deps.Links,
		sessions:   deps.Sessions,
		adminToken: deps.AdminToken,
		logger:     logger,
	}

	router.GET("/healthz", handler.handleHealth)

	public := router.Group("/")
	public.Use(handler.identifyViewer)
	public.GET("/verify/:csuid", handler.handleVerifyPath)
	public.POST("/verify", handler.handleVerifyBody)
	public.GET("/me/certificates", handler.handleOwnCertificates)

	admin := router.Group("/admin")
	admin.Use(handler.authorizeAdmin)
	admin.POST("/backfill", handler.handleBackfill)
	admin.GET("/stats", handler.handleStats)
	admin.POST("/completions", handler.handleCompletion)

	return router, nil
}

type httpHandler struct {
	engine     *certificate.Engine
	backfill   *certificate.Backfill
	store      *certificate.Store
	links      certificate.LinkBuilder
	sessions   SessionValidator
	adminToken string
	logger     *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// identifyViewer attaches the authenticated viewer's recipient id when a
// valid session is presented. Anonymous requests proceed untouched.
func (h *httpHandler) identifyViewer(c *gin.Context) {
	if h.sessions == nil {
		c.Next()
		return
	}
	viewer, err := h.sessions.ViewerFromRequest(c.Request)
	if err == nil {
		c.Set(viewerContextKey, viewer.RecipientID)
	} else if !errors.Is(err, auth.ErrNoSession) {
		h.logger.Warn("session validation failed", zap.Error(err))
	}
	c.Next()
}

func (h *httpHandler) authorizeAdmin(c *gin.Context) {
	if h.adminToken == "" {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	header := c.GetHeader("Authorization")
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if !strings.HasPrefix(header, "Bearer ") || token != h.adminToken {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Next()
}

func (h *httpHandler) viewerID(c *gin.Context) uint64 {
	value, ok := c.Get(viewerContextKey)
	if !ok {
		return 0
	}
	id, ok := value.(uint64)
	if !ok {
		return 0
	}
	return id
}

type verifyRequestPayload struct {
	CertificateID string `json:"certificate_id"`
}

type verifyResponsePayload struct {
	Valid       bool                `json:"valid"`
	Error       string              `json:"error,omitempty"`
	Message     string              `json:"message,omitempty"`
	Certificate *certificatePayload `json:"certificate,omitempty"`
}

type certificatePayload struct {
	CSUID              string                     `json:"csuid"`
	Recipient          recipientPayload           `json:"recipient"`
	Source             sourcePayload              `json:"source"`
	Standard           certificateSummaryPayload  `json:"standard_certificate"`
	Pocket             *certificateSummaryPayload `json:"pocket_certificate,omitempty"`
	Course             *sourcePayload             `json:"course,omitempty"`
	CompletedAtSeconds int64                      `json:"completed_at_s"`
	IsOwner            bool                       `json:"is_owner"`
}

type recipientPayload struct {
	ID    uint64 `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type sourcePayload struct {
	ID    uint64 `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

type certificateSummaryPayload struct {
	ID              uint64 `json:"id"`
	Title           string `json:"title"`
	PDFURL          string `json:"pdf_url"`
	VerificationURL string `json:"verification_url"`
	QRImageURL      string `json:"qr_image_url"`
}

func (h *httpHandler) handleVerifyPath(c *gin.Context) {
	h.runVerify(c, c.Param("csuid"))
}

func (h *httpHandler) handleVerifyBody(c *gin.Context) {
	var request verifyRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.CertificateID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	h.runVerify(c, request.CertificateID)
}

func (h *httpHandler) runVerify(c *gin.Context, rawInput string) {
	result, err := h.engine.Verify(c.Request.Context(), rawInput, h.viewerID(c))
	if err != nil {
		h.logger.Error("verification unavailable", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "unavailable"})
		return
	}

	if !result.Valid {
		c.JSON(http.StatusOK, verifyResponsePayload{
			Valid:   false,
			Error:   string(result.Failure),
			Message: result.Failure.Message(),
		})
		return
	}

	c.JSON(http.StatusOK, verifyResponsePayload{
		Valid:       true,
		Certificate: buildCertificatePayload(result.Certificate),
	})
}

func buildCertificatePayload(payload *certificate.CertificatePayload) *certificatePayload {
	response := &certificatePayload{
		CSUID: payload.CSUID,
		Recipient: recipientPayload{
			ID:    payload.Recipient.ID,
			Name:  payload.Recipient.Name,
			Email: payload.Recipient.Email,
		},
		Source: sourcePayload{
			ID:    payload.Source.ID,
			Type:  payload.Source.Kind.String(),
			Title: payload.Source.Title,
			URL:   payload.Source.URL,
		},
		Standard:           buildSummaryPayload(payload.Standard),
		CompletedAtSeconds: payload.CompletedAt.Unix(),
		IsOwner:            payload.IsOwner,
	}
	if payload.Pocket != nil {
		pocket := buildSummaryPayload(*payload.Pocket)
		response.Pocket = &pocket
	}
	if payload.Course != nil {
		response.Course = &sourcePayload{
			ID:    payload.Course.ID,
			Type:  payload.Course.Kind.String(),
			Title: payload.Course.Title,
			URL:   payload.Course.URL,
		}
	}
	return response
}

func buildSummaryPayload(summary certificate.CertificateSummary) certificateSummaryPayload {
	return certificateSummaryPayload{
		ID:              summary.ID,
		Title:           summary.Title,
		PDFURL:          summary.PDFURL,
		VerificationURL: summary.VerificationURL,
		QRImageURL:      summary.QRImageURL,
	}
}

type ownCertificatePayload struct {
	CSUID              string `json:"csuid"`
	SourceType         string `json:"source_type"`
	SourceID           uint64 `json:"source_id"`
	StandardTemplateID uint64 `json:"standard_certificate_id"`
	PocketTemplateID   uint64 `json:"pocket_certificate_id,omitempty"`
	CompletedAtSeconds int64  `json:"completed_at_s"`
	IsRetroactive      bool   `json:"is_retroactive"`
	VerificationURL    string `json:"verification_url"`
}

func (h *httpHandler) handleOwnCertificates(c *gin.Context) {
	recipientID := h.viewerID(c)
	if recipientID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	records, err := h.store.ListByRecipient(c.Request.Context(), recipientID)
	if err != nil {
		h.logger.Error("failed to list certificates", zap.Uint64("recipient_id", recipientID), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "unavailable"})
		return
	}

	response := make([]ownCertificatePayload, 0, len(records))
	for _, record := range records {
		item := ownCertificatePayload{
			CSUID:              record.CSUID,
			SourceType:         record.SourceType.String(),
			SourceID:           record.SourceID,
			StandardTemplateID: record.StandardTemplateID,
			PocketTemplateID:   record.PocketTemplateID,
			CompletedAtSeconds: record.CompletedAtSeconds,
			IsRetroactive:      record.IsRetroactive,
		}
		if h.links != nil {
			item.VerificationURL = h.links.VerificationURL(record.CSUID)
		}
		response = append(response, item)
	}

	c.JSON(http.StatusOK, gin.H{"certificates": response})
}

func (h *httpHandler) handleBackfill(c *gin.Context) {
	result, err := h.backfill.Run(c.Request.Context())
	if err != nil {
		h.logger.Error("backfill failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "unavailable", "count": result.Created})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": result.Created})
}

func (h *httpHandler) handleStats(c *gin.Context) {
	stats, err := h.store.Stats(c.Request.Context())
	if err != nil {
		h.logger.Error("stats query failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total_records":    stats.TotalRecords,
		"course_records":   stats.CourseRecords,
		"quiz_records":     stats.QuizRecords,
		"group_records":    stats.GroupRecords,
		"retroactive":      stats.Retroactive,
		"with_pocket_cert": stats.WithPocket,
	})
}

type completionRequestPayload struct {
	SourceType  string `json:"source_type"`
	SourceID    uint64 `json:"source_id"`
	RecipientID uint64 `json:"recipient_id"`
}

func (h *httpHandler) handleCompletion(c *gin.Context) {
	var request completionRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.SourceID == 0 || request.RecipientID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	kind, err := certificate.ParseSourceKind(request.SourceType)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_source_type"})
		return
	}

	record, created, err := h.engine.RecordCompletion(c.Request.Context(), kind, request.SourceID, request.RecipientID)
	if err != nil {
		h.logger.Error("completion intake failed",
			zap.String("source_type", kind.String()),
			zap.Uint64("source_id", request.SourceID),
			zap.Uint64("recipient_id", request.RecipientID),
			zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "unavailable"})
		return
	}
	if record == nil {
		c.JSON(http.StatusOK, gin.H{"created": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"created": created, "csuid": record.CSUID})
}
