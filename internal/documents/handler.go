package documents

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"stampdesk/stamp-studio/stamp-studio-backend/internal/auth"
)

// HeaderDocumentID carries the history id of a freshly signed document.
const HeaderDocumentID = "X-Document-ID"

type Handler struct {
	service   Service
	maxUpload int64
	logger    *zap.Logger
}

func NewHandler(service Service, maxUpload int64, logger *zap.Logger) *Handler {
	if maxUpload <= 0 {
		maxUpload = 25 << 20
	}
	return &Handler{service: service, maxUpload: maxUpload, logger: logger}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	docs := rg.Group("/documents")
	{
		docs.POST("/preview", h.preview)
		docs.POST("/sign", h.sign)
	}

	history := docs.Group("/history", auth.RequireSession())
	{
		history.GET("", h.listHistory)
		history.GET("/:id", h.getHistory)
		history.GET("/:id/download", h.download)
		history.DELETE("/:id", h.deleteHistory)
	}
}

// preview handles POST /api/v1/documents/preview
func (h *Handler) preview(c *gin.Context) {
	data, _, err := h.readUpload(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.Preview(c.Request.Context(), data)
	if err != nil {
		h.logger.Error("Failed to preview document", zap.Error(err))
		c.JSON(statusFor(err), gin.H{"error": "Failed to preview document"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// sign handles POST /api/v1/documents/sign
func (h *Handler) sign(c *gin.Context) {
	data, name, err := h.readUpload(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var overlays []Overlay
	if raw := c.PostForm("overlays"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &overlays); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "overlays must be a JSON array"})
			return
		}
	}

	doc, result, err := h.service.Sign(c.Request.Context(), SignRequest{
		Title:      c.PostForm("title"),
		Filename:   name,
		Data:       data,
		Overlays:   overlays,
		OwnerEmail: c.GetString(auth.ContextUserEmail),
	})
	if err != nil {
		h.logger.Error("Failed to sign document", zap.String("filename", name), zap.Error(err))
		c.JSON(statusFor(err), gin.H{"error": "Failed to sign document"})
		return
	}

	c.Header(HeaderDocumentID, doc.ID.String())
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	c.Data(http.StatusOK, "application/pdf", result.PDF)
}

// listHistory handles GET /api/v1/documents/history
func (h *Handler) listHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	docs, err := h.service.ListHistory(c.Request.Context(), c.GetString(auth.ContextUserEmail), limit, offset)
	if err != nil {
		h.logger.Error("Failed to list history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs, "limit": limit, "offset": offset})
}

// getHistory handles GET /api/v1/documents/history/:id
func (h *Handler) getHistory(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	doc, err := h.service.GetHistory(c.Request.Context(), c.GetString(auth.ContextUserEmail), id)
	if err != nil {
		h.respondLookupError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// download handles GET /api/v1/documents/history/:id/download
func (h *Handler) download(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	doc, body, err := h.service.Download(c.Request.Context(), c.GetString(auth.ContextUserEmail), id)
	if err != nil {
		h.respondLookupError(c, err)
		return
	}
	defer body.Close()

	c.DataFromReader(http.StatusOK, doc.SizeBytes, "application/pdf", body, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", doc.Filename),
	})
}

// deleteHistory handles DELETE /api/v1/documents/history/:id
func (h *Handler) deleteHistory(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.service.DeleteHistory(c.Request.Context(), c.GetString(auth.ContextUserEmail), id); err != nil {
		h.respondLookupError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) respondLookupError(c *gin.Context, err error) {
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		return
	}
	h.logger.Error("Failed to access history", zap.String("id", c.Param("id")), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to access history"})
}

func (h *Handler) readUpload(c *gin.Context) ([]byte, string, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	file, err := c.FormFile("file")
	if err != nil {
		return nil, "", errors.New("file is required")
	}
	data, err := readFormFile(file)
	if err != nil {
		return nil, "", err
	}
	return data, file.Filename, nil
}

func readFormFile(file *multipart.FileHeader) ([]byte, error) {
	f, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}

// statusFor maps pipeline failures caused by the request to 400/422.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrUnsupportedSource), errors.Is(err, ErrEmptyDocument):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidOverlay):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
