package documents

import (
	"time"

	"github.com/google/uuid"

	"stampdesk/stamp-studio/stamp-studio-backend/internal/placement"
	"stampdesk/stamp-studio/stamp-studio-backend/internal/stamp"
)

// SourceKind is the detected format of an uploaded document.
type SourceKind string

const (
	KindPDF  SourceKind = "PDF"
	KindDOCX SourceKind = "DOCX"
	KindJPEG SourceKind = "JPEG"
	KindPNG  SourceKind = "PNG"
	KindWEBP SourceKind = "WEBP"
	KindBMP  SourceKind = "BMP"
	KindTIFF SourceKind = "TIFF"
)

// IsImage reports whether the source is a single raster image.
func (k SourceKind) IsImage() bool {
	switch k {
	case KindJPEG, KindPNG, KindWEBP, KindBMP, KindTIFF:
		return true
	}
	return false
}

// OverlayKind is the type of element placed on a page.
type OverlayKind string

const (
	OverlayStamp     OverlayKind = "stamp"
	OverlaySignature OverlayKind = "signature"
	OverlayText      OverlayKind = "text"
	OverlayDate      OverlayKind = "date"
)

// PageSelection picks the pages an overlay is drawn on.
type PageSelection string

const (
	PagesAll   PageSelection = "all"
	PagesFirst PageSelection = "first"
	PagesLast  PageSelection = "last"
)

// Overlay is one element to embed. Page is a 1-based page number and takes
// precedence over Pages when set.
type Overlay struct {
	Kind      OverlayKind         `json:"kind"`
	Placement placement.Placement `json:"placement"`
	Page      int                 `json:"page,omitempty"`
	Pages     PageSelection       `json:"pages,omitempty"`
	Stamp     *stamp.StampConfig  `json:"stamp,omitempty"`
	Image     string              `json:"image,omitempty"`
	Text      string              `json:"text,omitempty"`
	FontSize  float64             `json:"font_size,omitempty"`
	Color     string              `json:"color,omitempty"`
}

// SignJob is the input of a pipeline run.
type SignJob struct {
	Title    string
	Filename string
	Data     []byte
	Overlays []Overlay
}

// SignResult is the output of a successful pipeline run.
type SignResult struct {
	Filename string
	Kind     SourceKind
	Pages    int
	PDF      []byte
	Report   Report
}

// PreviewPage is a scaled JPEG of one source page.
type PreviewPage struct {
	Number int    `json:"number"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	JPEG   []byte `json:"-"`
}

// SignedDocument is a history record of a produced document.
type SignedDocument struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	Title      string     `json:"title" db:"title"`
	Filename   string     `json:"filename" db:"filename"`
	SourceKind SourceKind `json:"source_kind" db:"source_kind"`
	PageCount  int        `json:"page_count" db:"page_count"`
	SizeBytes  int64      `json:"size_bytes" db:"size_bytes"`
	S3Bucket   string     `json:"s3_bucket" db:"s3_bucket"`
	S3Key      string     `json:"s3_key" db:"s3_key"`
	OwnerEmail string     `json:"owner_email,omitempty" db:"owner_email"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}
