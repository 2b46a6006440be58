package bulk

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"stampdesk/stamp-studio/stamp-studio-backend/internal/placement"
)

func placementAt(x, y float64) placement.Placement {
	return placement.Placement{XPercent: x, YPercent: y, WidthPercent: 20}
}

func sampleQuote() Quote {
	return NewQuote([]File{
		{Name: "lease.pdf", Pages: 3},
		{Name: "id.png", Pages: 1},
	}, Pricing{PricePerPage: 10, Currency: "KES"})
}

func TestNewQuote(t *testing.T) {
	q := sampleQuote()
	assert.Equal(t, 4, q.TotalPages)
	assert.Equal(t, 40.0, q.Total)
	assert.Equal(t, 10.0, q.Lines[1].Subtotal)

	empty := NewQuote(nil, Pricing{PricePerPage: 10})
	assert.Zero(t, empty.Total)
	assert.Empty(t, empty.Lines)
}

func TestWriteQuoteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteQuoteXLSX(&buf, sampleQuote()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	header, err := f.GetCellValue(quoteSheet, "A1")
	require.NoError(t, err)
	assert.Equal(t, "File", header)

	name, err := f.GetCellValue(quoteSheet, "A2")
	require.NoError(t, err)
	assert.Equal(t, "lease.pdf", name)

	label, err := f.GetCellValue(quoteSheet, "A4")
	require.NoError(t, err)
	assert.Equal(t, "Total", label)

	pages, err := f.GetCellValue(quoteSheet, "B4")
	require.NoError(t, err)
	assert.Equal(t, "4", pages)
}

func TestMoneyFormatQuotesCurrency(t *testing.T) {
	assert.Equal(t, `"KES" #,##0.00`, moneyNumFmt("KES"))
	assert.Equal(t, `"US$" #,##0.00`, moneyNumFmt(`US"$`))

	var buf bytes.Buffer
	require.NoError(t, WriteQuoteXLSX(&buf, sampleQuote()))
	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	for _, cell := range []string{"C2", "D2", "D4"} {
		idx, err := f.GetCellStyle(quoteSheet, cell)
		require.NoError(t, err)
		style, err := f.GetStyle(idx)
		require.NoError(t, err)
		require.NotNil(t, style.CustomNumFmt, cell)
		assert.Equal(t, `"KES" #,##0.00`, *style.CustomNumFmt, cell)
	}
}

func TestWriteQuoteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteQuoteCSV(&buf, sampleQuote()))

	want := "File,Pages,Price per page,Subtotal\n" +
		"lease.pdf,3,10.00,30.00\n" +
		"id.png,1,10.00,10.00\n" +
		"Total,4,10.00,40.00\n"
	assert.Equal(t, want, buf.String())
}
