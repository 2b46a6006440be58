package bulk

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	quoteSheet = "Quote"

	XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	CSVContentType  = "text/csv; charset=utf-8"
)

var quoteColumns = []string{"File", "Pages", "Price per page", "Subtotal"}

// WriteQuoteXLSX writes q as a one-sheet workbook with a styled header and a
// totals row.
func WriteQuoteXLSX(w io.Writer, q Quote) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", quoteSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"1E3A8A"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
		Border:    thinBorder(),
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	moneyFormat := moneyNumFmt(q.Currency)
	moneyStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &moneyFormat, Border: thinBorder()})
	if err != nil {
		return fmt.Errorf("failed to create money style: %w", err)
	}
	totalLabelStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}, Border: thinBorder()})
	if err != nil {
		return fmt.Errorf("failed to create total style: %w", err)
	}
	totalStyle, err := f.NewStyle(&excelize.Style{
		Font:         &excelize.Font{Bold: true},
		CustomNumFmt: &moneyFormat,
		Border:       thinBorder(),
	})
	if err != nil {
		return fmt.Errorf("failed to create total style: %w", err)
	}

	for i, col := range quoteColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(quoteSheet, cell, col)
	}
	f.SetCellStyle(quoteSheet, "A1", "D1", headerStyle)
	f.SetPanes(quoteSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})

	row := 2
	for _, line := range q.Lines {
		f.SetSheetRow(quoteSheet, "A"+strconv.Itoa(row), &[]interface{}{
			line.File, line.Pages, q.PricePerPage, line.Subtotal,
		})
		f.SetCellStyle(quoteSheet, "C"+strconv.Itoa(row), "D"+strconv.Itoa(row), moneyStyle)
		row++
	}

	total := strconv.Itoa(row)
	f.SetCellValue(quoteSheet, "A"+total, "Total")
	f.SetCellValue(quoteSheet, "B"+total, q.TotalPages)
	f.SetCellValue(quoteSheet, "D"+total, q.Total)
	f.SetCellStyle(quoteSheet, "A"+total, "C"+total, totalLabelStyle)
	f.SetCellStyle(quoteSheet, "D"+total, "D"+total, totalStyle)

	f.SetColWidth(quoteSheet, "A", "A", 40)
	f.SetColWidth(quoteSheet, "B", "D", 16)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func thinBorder() []excelize.Border {
	return []excelize.Border{
		{Type: "left", Color: "D1D5DB", Style: 1},
		{Type: "top", Color: "D1D5DB", Style: 1},
		{Type: "right", Color: "D1D5DB", Style: 1},
		{Type: "bottom", Color: "D1D5DB", Style: 1},
	}
}

// WriteQuoteCSV writes q as CSV with a trailing totals row.
func WriteQuoteCSV(w io.Writer, q Quote) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(quoteColumns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	price := money(q.PricePerPage)
	for _, line := range q.Lines {
		if err := cw.Write([]string{line.File, strconv.Itoa(line.Pages), price, money(line.Subtotal)}); err != nil {
			return err
		}
	}
	if err := cw.Write([]string{"Total", strconv.Itoa(q.TotalPages), price, money(q.Total)}); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// moneyNumFmt quotes the currency so its letters are not read as format codes.
func moneyNumFmt(currency string) string {
	return fmt.Sprintf("\"%s\" #,##0.00", strings.ReplaceAll(currency, "\"", ""))
}
