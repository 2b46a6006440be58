package envelopes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"stampdesk/stamp-studio/stamp-studio-backend/internal/auth"
	"stampdesk/stamp-studio/stamp-studio-backend/internal/documents"
	"stampdesk/stamp-studio/stamp-studio-backend/pkg/security"
	"stampdesk/stamp-studio/stamp-studio-backend/pkg/workflows"
)

// HeaderAccessCode carries a signer's access code on GET requests.
const HeaderAccessCode = "X-Access-Code"

// contextEnvelope holds the envelope loaded by requireOwner.
const contextEnvelope = "envelope"

type Handler struct {
	service   *Service
	maxUpload int64
	logger    *zap.Logger
}

func NewHandler(service *Service, maxUpload int64, logger *zap.Logger) *Handler {
	if maxUpload <= 0 {
		maxUpload = 25 << 20
	}
	return &Handler{service: service, maxUpload: maxUpload, logger: logger}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	envs := rg.Group("/envelopes", auth.RequireSession())
	{
		envs.POST("", h.create)
		envs.GET("", h.list)
	}

	owned := envs.Group("/:id", h.requireOwner)
	{
		owned.GET("", h.get)
		owned.DELETE("", h.delete)
		owned.PUT("/step", h.moveTo)

		owned.POST("/documents", h.addDocument)
		owned.DELETE("/documents/:childId", h.removeDocument)
		owned.GET("/documents/:childId/signed", h.downloadSigned)
		owned.POST("/signers", h.addSigner)
		owned.DELETE("/signers/:childId", h.removeSigner)
		owned.POST("/fields", h.addField)
		owned.DELETE("/fields/:childId", h.removeField)

		owned.POST("/send", h.send)
		owned.POST("/void", h.void)
	}

	signing := rg.Group("/signing")
	{
		signing.GET("/view", h.signerView)
		signing.POST("/view", h.signerView)
		signing.GET("/documents/:childId", h.signerDocument)
		signing.POST("/complete", h.complete)
	}
}

type createRequest struct {
	Title   string `json:"title" binding:"required"`
	Message string `json:"message"`
}

// create handles POST /api/v1/envelopes
func (h *Handler) create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	env, err := h.service.Create(c.Request.Context(), c.GetString(auth.ContextUserEmail), req.Title, req.Message)
	if err != nil {
		h.respondError(c, "Failed to create envelope", err)
		return
	}
	c.JSON(http.StatusCreated, env)
}

// list handles GET /api/v1/envelopes
func (h *Handler) list(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	envs, err := h.service.List(c.Request.Context(), c.GetString(auth.ContextUserEmail), limit, offset)
	if err != nil {
		h.respondError(c, "Failed to list envelopes", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"envelopes": envs, "limit": limit, "offset": offset})
}

// requireOwner loads the :id envelope and stops callers that do not own it.
func (h *Handler) requireOwner(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		c.Abort()
		return
	}
	env, err := h.service.Owned(c.Request.Context(), c.GetString(auth.ContextUserEmail), id)
	if err != nil {
		h.respondError(c, "Failed to get envelope", err)
		c.Abort()
		return
	}
	c.Set(contextEnvelope, env)
	c.Next()
}

// get handles GET /api/v1/envelopes/:id
func (h *Handler) get(c *gin.Context) {
	c.JSON(http.StatusOK, c.MustGet(contextEnvelope))
}

// delete handles DELETE /api/v1/envelopes/:id
func (h *Handler) delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		h.respondError(c, "Failed to delete envelope", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// moveTo handles PUT /api/v1/envelopes/:id/step
func (h *Handler) moveTo(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Step Step `json:"step" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	env, err := h.service.MoveTo(c.Request.Context(), id, req.Step)
	if err != nil {
		h.respondError(c, "Failed to change step", err)
		return
	}
	c.JSON(http.StatusOK, env)
}

// addDocument handles POST /api/v1/envelopes/:id/documents
func (h *Handler) addDocument(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	doc, err := h.service.AddDocument(c.Request.Context(), id, file.Filename, data)
	if err != nil {
		h.respondError(c, "Failed to add document", err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}

// removeDocument handles DELETE /api/v1/envelopes/:id/documents/:childId
func (h *Handler) removeDocument(c *gin.Context) {
	h.removeChild(c, "Failed to remove document", h.service.RemoveDocument)
}

// addSigner handles POST /api/v1/envelopes/:id/signers
func (h *Handler) addSigner(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req SignerInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	signer, err := h.service.AddSigner(c.Request.Context(), id, req)
	if err != nil {
		h.respondError(c, "Failed to add signer", err)
		return
	}
	c.JSON(http.StatusCreated, signer)
}

// removeSigner handles DELETE /api/v1/envelopes/:id/signers/:childId
func (h *Handler) removeSigner(c *gin.Context) {
	h.removeChild(c, "Failed to remove signer", h.service.RemoveSigner)
}

// addField handles POST /api/v1/envelopes/:id/fields
func (h *Handler) addField(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req FieldInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	field, err := h.service.AddField(c.Request.Context(), id, req)
	if err != nil {
		h.respondError(c, "Failed to add field", err)
		return
	}
	c.JSON(http.StatusCreated, field)
}

// removeField handles DELETE /api/v1/envelopes/:id/fields/:childId
func (h *Handler) removeField(c *gin.Context) {
	h.removeChild(c, "Failed to remove field", h.service.RemoveField)
}

func (h *Handler) removeChild(c *gin.Context, msg string, remove func(ctx context.Context, id, childID uuid.UUID) error) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	childID, ok := parseID(c, "childId")
	if !ok {
		return
	}
	if err := remove(c.Request.Context(), id, childID); err != nil {
		h.respondError(c, msg, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// send handles POST /api/v1/envelopes/:id/send
func (h *Handler) send(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	env, err := h.service.Send(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "Failed to send envelope", err)
		return
	}
	c.JSON(http.StatusOK, env)
}

// void handles POST /api/v1/envelopes/:id/void
func (h *Handler) void(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	env, err := h.service.Void(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "Failed to void envelope", err)
		return
	}
	c.JSON(http.StatusOK, env)
}

// downloadSigned handles GET /api/v1/envelopes/:id/documents/:childId/signed
func (h *Handler) downloadSigned(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	docID, ok := parseID(c, "childId")
	if !ok {
		return
	}
	name, body, err := h.service.SignedDocument(c.Request.Context(), id, docID)
	if err != nil {
		h.respondError(c, "Failed to download signed document", err)
		return
	}
	defer body.Close()
	c.DataFromReader(http.StatusOK, -1, "application/pdf", body, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", name),
	})
}

type signerRequest struct {
	Token      string            `json:"token" form:"token"`
	AccessCode string            `json:"access_code" form:"access_code"`
	Values     map[string]string `json:"values"`
}

func (h *Handler) bindSigner(c *gin.Context) (signerRequest, bool) {
	var req signerRequest
	if c.Request.Method == http.MethodGet {
		req.Token = c.Query("token")
		req.AccessCode = c.GetHeader(HeaderAccessCode)
	} else if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return req, false
	}
	if req.Token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "signing token is required"})
		return req, false
	}
	return req, true
}

// signerView handles GET and POST /api/v1/signing/view
func (h *Handler) signerView(c *gin.Context) {
	req, ok := h.bindSigner(c)
	if !ok {
		return
	}
	view, err := h.service.OpenSignerView(c.Request.Context(), req.Token, req.AccessCode)
	if err != nil {
		h.respondError(c, "Failed to open signer view", err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// signerDocument handles GET /api/v1/signing/documents/:childId
func (h *Handler) signerDocument(c *gin.Context) {
	req, ok := h.bindSigner(c)
	if !ok {
		return
	}
	docID, ok := parseID(c, "childId")
	if !ok {
		return
	}
	doc, body, err := h.service.DocumentForSigner(c.Request.Context(), req.Token, req.AccessCode, docID)
	if err != nil {
		h.respondError(c, "Failed to open document", err)
		return
	}
	defer body.Close()
	c.DataFromReader(http.StatusOK, doc.SizeBytes, contentType(doc.Kind), body, map[string]string{
		"Content-Disposition": fmt.Sprintf("inline; filename=%q", doc.Filename),
	})
}

// complete handles POST /api/v1/signing/complete
func (h *Handler) complete(c *gin.Context) {
	req, ok := h.bindSigner(c)
	if !ok {
		return
	}
	values := make(map[uuid.UUID]string, len(req.Values))
	for k, v := range req.Values {
		id, err := uuid.Parse(k)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "field ids must be UUIDs"})
			return
		}
		values[id] = v
	}

	env, err := h.service.Complete(c.Request.Context(), req.Token, req.AccessCode, values)
	if err != nil {
		h.respondError(c, "Failed to complete signing", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"envelope_id": env.ID, "status": env.Status})
}

func (h *Handler) respondError(c *gin.Context, msg string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(msg, zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, security.ErrInvalidToken), errors.Is(err, security.ErrWrongPurpose):
		return http.StatusUnauthorized
	case errors.Is(err, ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrIncomplete),
		errors.Is(err, documents.ErrUnsupportedSource), errors.Is(err, documents.ErrEmptyDocument):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotDraft), errors.Is(err, ErrNotSent), errors.Is(err, ErrAlreadySigned),
		errors.Is(err, ErrNotYourTurn), errors.Is(err, ErrSignedDocMissing),
		errors.Is(err, workflows.ErrInvalidTransition):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func parseID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + param})
		return uuid.Nil, false
	}
	return id, true
}
