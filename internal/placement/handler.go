package placement

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler resolves placements for the document editor
type Handler struct {
	logger *zap.Logger
}

func NewHandler(logger *zap.Logger) *Handler {
	return &Handler{logger: logger}
}

func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	placements := router.Group("/placements")
	{
		placements.POST("/resolve", h.resolve)
	}
}

// ResolveRequest describes a rendered page preview and the elements placed
// on it. PDFPage defaults to A4.
type ResolveRequest struct {
	Page       PageSize    `json:"page"`
	PDFPage    *PageSize   `json:"pdf_page,omitempty"`
	Aspect     float64     `json:"aspect,omitempty"`
	Placements []Placement `json:"placements" binding:"required"`
}

type ResolvedPlacement struct {
	Pixels Rect `json:"pixels"`
	PDF    Rect `json:"pdf"`
}

type ResolveResponse struct {
	Items    []ResolvedPlacement `json:"items"`
	Overlaps [][2]int            `json:"overlaps"`
}

// resolve handles POST /api/v1/placements/resolve
func (h *Handler) resolve(c *gin.Context) {
	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pdfPage := A4
	if req.PDFPage != nil {
		pdfPage = *req.PDFPage
	}
	if !req.Page.Known() || !pdfPage.Known() {
		h.logger.Debug("Deferring placement until page geometry is known",
			zap.Float64("width", req.Page.Width), zap.Float64("height", req.Page.Height))
		c.JSON(http.StatusAccepted, gin.H{"deferred": true})
		return
	}

	resp := ResolveResponse{Items: make([]ResolvedPlacement, 0, len(req.Placements)), Overlaps: [][2]int{}}
	pixels := make([]Rect, 0, len(req.Placements))
	for _, p := range req.Placements {
		px, err := Resolve(p, req.Page, SpacePixels, req.Aspect)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		pdf, err := Resolve(p, pdfPage, SpacePDF, req.Aspect)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		pixels = append(pixels, px)
		resp.Items = append(resp.Items, ResolvedPlacement{Pixels: px, PDF: pdf})
	}
	if overlaps := Overlaps(pixels); overlaps != nil {
		resp.Overlaps = overlaps
	}

	c.JSON(http.StatusOK, resp)
}
