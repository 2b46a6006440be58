package stamp

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for stamp operations
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new stamp handler
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes registers stamp routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	stamps := router.Group("/stamps")
	{
		stamps.GET("/defaults", h.getDefaults)
		stamps.GET("/presets", h.listPresets)
		stamps.GET("/presets/:id", h.getPreset)
		stamps.POST("/render", h.render)
		stamps.POST("/export", h.export)
		stamps.POST("/raster", h.raster)
		stamps.POST("/analyze", h.analyze)
	}
}

// AnalyzeRequest carries a base64 photo of a stamp.
type AnalyzeRequest struct {
	Image    string `json:"image" binding:"required"`
	MimeType string `json:"mime_type"`
}

// getDefaults handles GET /api/v1/stamps/defaults
func (h *Handler) getDefaults(c *gin.Context) {
	c.JSON(http.StatusOK, DefaultConfig())
}

// listPresets handles GET /api/v1/stamps/presets
func (h *Handler) listPresets(c *gin.Context) {
	presets, err := h.service.Presets(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to load presets", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load presets"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"presets": presets})
}

// getPreset handles GET /api/v1/stamps/presets/:id
func (h *Handler) getPreset(c *gin.Context) {
	preset, err := h.service.Preset(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrPresetNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Preset not found"})
			return
		}
		h.logger.Error("Failed to load preset", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load preset"})
		return
	}
	c.JSON(http.StatusOK, preset)
}

// render handles POST /api/v1/stamps/render
func (h *Handler) render(c *gin.Context) {
	cfg := DefaultConfig()
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	body, err := h.service.RenderSVG(c.Request.Context(), cfg)
	if err != nil {
		h.logger.Error("Failed to render stamp", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render stamp"})
		return
	}
	c.Data(http.StatusOK, SVGContentType+"; charset=utf-8", body)
}

// export handles POST /api/v1/stamps/export
func (h *Handler) export(c *gin.Context) {
	cfg := DefaultConfig()
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	artifact, err := h.service.Export(c.Request.Context(), cfg)
	if err != nil {
		h.logger.Error("Failed to export stamp", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to export stamp"})
		return
	}
	writeAttachment(c, artifact)
}

// raster handles POST /api/v1/stamps/raster?scale=N
func (h *Handler) raster(c *gin.Context) {
	cfg := DefaultConfig()
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	scale := 0.0
	if raw := c.Query("scale"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid scale"})
			return
		}
		scale = v
	}

	artifact, err := h.service.RenderPNG(c.Request.Context(), cfg, scale)
	if err != nil {
		if errors.Is(err, ErrInvalidScale) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("Failed to rasterize stamp", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to rasterize stamp"})
		return
	}
	writeAttachment(c, artifact)
}

// analyze handles POST /api/v1/stamps/analyze
func (h *Handler) analyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	data, mimeType, err := decodeImagePayload(req.Image, req.MimeType)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.Analyze(c.Request.Context(), data, mimeType)
	if err != nil {
		switch {
		case errors.Is(err, ErrEmptyImage):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, ErrAnalyzerUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		default:
			h.logger.Error("Failed to analyze stamp image", zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to analyze image"})
		}
		return
	}
	c.JSON(http.StatusOK, result)
}

func writeAttachment(c *gin.Context, a *Artifact) {
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, a.Filename))
	c.Data(http.StatusOK, a.ContentType, a.Body)
}

// decodeImagePayload accepts raw base64 or a data: URI.
func decodeImagePayload(payload, mimeType string) ([]byte, string, error) {
	payload = strings.TrimSpace(payload)
	if strings.HasPrefix(payload, "data:") {
		comma := strings.IndexByte(payload, ',')
		if comma < 0 {
			return nil, "", errors.New("malformed data uri")
		}
		header := strings.TrimPrefix(payload[:comma], "data:")
		if mimeType == "" {
			mimeType = strings.TrimSuffix(header, ";base64")
		}
		payload = payload[comma+1:]
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", errors.New("image must be base64 encoded")
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return data, mimeType, nil
}
