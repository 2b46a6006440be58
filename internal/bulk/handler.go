package bulk

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"stampdesk/stamp-studio/stamp-studio-backend/internal/documents"
	"stampdesk/stamp-studio/stamp-studio-backend/internal/placement"
	"stampdesk/stamp-studio/stamp-studio-backend/internal/stamp"
	"stampdesk/stamp-studio/stamp-studio-backend/pkg/workflows"
)

type Handler struct {
	service   *Service
	progress  *ProgressHub
	maxUpload int64
	logger    *zap.Logger
}

func NewHandler(service *Service, progress *ProgressHub, maxUpload int64, logger *zap.Logger) *Handler {
	if maxUpload <= 0 {
		maxUpload = 25 << 20
	}
	return &Handler{service: service, progress: progress, maxUpload: maxUpload, logger: logger}
}

func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	jobs := router.Group("/bulk")
	{
		jobs.POST("", h.create)
		jobs.GET("/:id", h.get)
		jobs.POST("/:id/files", h.addFile)
		jobs.DELETE("/:id/files/:fileId", h.removeFile)
		jobs.PUT("/:id/stamp", h.setStamp)
		jobs.PUT("/:id/placement", h.setPlacement)
		jobs.POST("/:id/step", h.moveTo)
		jobs.GET("/:id/quote", h.quote)
		jobs.GET("/:id/quote/export", h.exportQuote)
		jobs.POST("/:id/accept", h.accept)
		jobs.POST("/:id/process", h.process)
		jobs.GET("/:id/archive", h.archive)
		jobs.GET("/:id/progress", h.subscribe)
	}
}

type PlacementRequest struct {
	Placement placement.Placement     `json:"placement"`
	Pages     documents.PageSelection `json:"pages"`
}

type StepRequest struct {
	Step Step `json:"step" binding:"required"`
}

// create handles POST /api/v1/bulk
func (h *Handler) create(c *gin.Context) {
	c.JSON(http.StatusCreated, h.service.Create())
}

// get handles GET /api/v1/bulk/:id
func (h *Handler) get(c *gin.Context) {
	job, err := h.service.Get(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// addFile handles POST /api/v1/bulk/:id/files
func (h *Handler) addFile(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	f, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is unreadable"})
		return
	}
	defer f.Close()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, f); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is unreadable"})
		return
	}

	job, err := h.service.AddFile(c.Param("id"), header.Filename, buf.Bytes())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, job)
}

// removeFile handles DELETE /api/v1/bulk/:id/files/:fileId
func (h *Handler) removeFile(c *gin.Context) {
	job, err := h.service.RemoveFile(c.Param("id"), c.Param("fileId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// setStamp handles PUT /api/v1/bulk/:id/stamp
func (h *Handler) setStamp(c *gin.Context) {
	cfg := stamp.DefaultConfig()
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid stamp config: " + err.Error()})
		return
	}
	job, err := h.service.SetStamp(c.Param("id"), cfg)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// setPlacement handles PUT /api/v1/bulk/:id/placement
func (h *Handler) setPlacement(c *gin.Context) {
	var req PlacementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	job, err := h.service.SetPlacement(c.Param("id"), req.Placement, req.Pages)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// moveTo handles POST /api/v1/bulk/:id/step
func (h *Handler) moveTo(c *gin.Context) {
	var req StepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	job, err := h.service.MoveTo(c.Param("id"), req.Step)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// quote handles GET /api/v1/bulk/:id/quote
func (h *Handler) quote(c *gin.Context) {
	q, err := h.service.Quote(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

// exportQuote handles GET /api/v1/bulk/:id/quote/export?format=xlsx|csv
func (h *Handler) exportQuote(c *gin.Context) {
	q, err := h.service.Quote(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	var (
		buf         bytes.Buffer
		contentType string
		name        string
	)
	switch format := c.DefaultQuery("format", "xlsx"); format {
	case "xlsx":
		contentType, name = XLSXContentType, "quote.xlsx"
		err = WriteQuoteXLSX(&buf, q)
	case "csv":
		contentType, name = CSVContentType, "quote.csv"
		err = WriteQuoteCSV(&buf, q)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unsupported format %q", format)})
		return
	}
	if err != nil {
		h.logger.Error("Failed to export quote", zap.String("job_id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to export quote"})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

// accept handles POST /api/v1/bulk/:id/accept
func (h *Handler) accept(c *gin.Context) {
	job, err := h.service.Accept(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// process handles POST /api/v1/bulk/:id/process
func (h *Handler) process(c *gin.Context) {
	job, err := h.service.Start(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

// archive handles GET /api/v1/bulk/:id/archive
func (h *Handler) archive(c *gin.Context) {
	name, body, err := h.service.Archive(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	defer body.Close()
	c.DataFromReader(http.StatusOK, -1, "application/zip", body, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", name),
	})
}

// subscribe handles GET /api/v1/bulk/:id/progress (websocket)
func (h *Handler) subscribe(c *gin.Context) {
	job, err := h.service.Get(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	sub, err := h.progress.HandleConnection(c.Writer, c.Request, job.ID)
	if err != nil {
		h.logger.Warn("Failed to open progress feed", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	// Let a late subscriber see where the job stands.
	h.progress.Publish(Progress{JobID: job.ID, Step: job.Step, Processed: job.Processed, Total: len(job.Files), Error: job.Error})
	h.logger.Debug("Progress feed opened", zap.String("job_id", job.ID), zap.String("subscriber", sub.ID))
}

func (h *Handler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrJobNotFound), errors.Is(err, ErrFileNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, workflows.ErrInvalidTransition), errors.Is(err, ErrNotEditable),
		errors.Is(err, ErrNotAccepted), errors.Is(err, ErrArchiveMissing):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, documents.ErrUnsupportedSource), errors.Is(err, ErrTooManyFiles),
		errors.Is(err, ErrNoFiles), errors.Is(err, documents.ErrInvalidOverlay):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error("Bulk request failed", zap.String("job_id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Bulk request failed"})
	}
}
