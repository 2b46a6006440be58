package documents

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

var ErrUnsupportedSource = errors.New("unsupported document type")

// DetectKind identifies a document by its leading bytes.
func DetectKind(data []byte) (SourceKind, error) {
	switch {
	case bytes.HasPrefix(data, []byte("%PDF-")):
		return KindPDF, nil
	case bytes.HasPrefix(data, []byte{0xff, 0xd8, 0xff}):
		return KindJPEG, nil
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return KindPNG, nil
	case len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return KindWEBP, nil
	case bytes.HasPrefix(data, []byte("BM")):
		return KindBMP, nil
	case bytes.HasPrefix(data, []byte("II*\x00")), bytes.HasPrefix(data, []byte("MM\x00*")):
		return KindTIFF, nil
	case bytes.HasPrefix(data, []byte("PK\x03\x04")):
		if isDOCX(data) {
			return KindDOCX, nil
		}
	}
	return "", ErrUnsupportedSource
}

func isDOCX(data []byte) bool {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return false
	}
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			return true
		}
	}
	return false
}

var pdfcpuOnce sync.Once

// CountPages returns the number of pages of a document without rendering
// it. Images count as one page. Word documents report the page count saved
// in their properties, or one when absent.
func CountPages(data []byte) (int, error) {
	kind, err := DetectKind(data)
	if err != nil {
		return 0, err
	}
	switch {
	case kind == KindPDF:
		pdfcpuOnce.Do(api.DisableConfigDir)
		n, err := api.PageCount(bytes.NewReader(data), nil)
		if err != nil {
			return 0, fmt.Errorf("failed to count pdf pages: %w", err)
		}
		return n, nil
	case kind == KindDOCX:
		return docxPageCount(data), nil
	default:
		return 1, nil
	}
}

// docxPageCount reads <Pages> from docProps/app.xml.
func docxPageCount(data []byte) int {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 1
	}
	for _, f := range zr.File {
		if f.Name != "docProps/app.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return 1
		}
		defer rc.Close()
		var props struct {
			Pages string `xml:"Pages"`
		}
		if err := xml.NewDecoder(io.LimitReader(rc, 1<<20)).Decode(&props); err != nil {
			return 1
		}
		if n, err := strconv.Atoi(strings.TrimSpace(props.Pages)); err == nil && n > 0 {
			return n
		}
	}
	return 1
}
