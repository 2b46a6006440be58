package stamp

import (
	"stampdesk/stamp-studio/stamp-studio-backend/pkg/filename"
)

const (
	SVGContentType = "image/svg+xml"
	PNGContentType = "image/png"

	fallbackExportName = "stamp.svg"
)

// ExportFilename derives the download name from the primary text:
// "Acme Corp" becomes "acme_corp_stamp.svg".
func ExportFilename(primaryText string) string {
	slug := filename.Slug(primaryText)
	if slug == "" {
		return fallbackExportName
	}
	return slug + "_stamp.svg"
}

// RasterFilename is ExportFilename with a .png extension.
func RasterFilename(primaryText string) string {
	name := ExportFilename(primaryText)
	return name[:len(name)-len(".svg")] + ".png"
}
