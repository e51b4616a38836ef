// Package export renders the normalized fill-up history as XLSX or PDF.
package export

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"fueltrack/internal/core"
	"fueltrack/internal/normalize"
)

type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

var ErrUnknownFormat = errors.New("unknown export format")

const (
	summarySheet = "Résumé"
	historySheet = "Pleins"
)

var headers = []string{"Date", "Prix/L (€)", "Total (€)", "Distance (km)", "Volume (L)", "L/100km", "Date estimée"}

func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatXLSX:
		return FormatXLSX, nil
	case FormatPDF:
		return FormatPDF, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

func (f Format) ContentType() string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	}
	return "application/octet-stream"
}

// Filename is the attachment name for a download generated at t.
func (f Format) Filename(t time.Time) string {
	return fmt.Sprintf("pleins-%s.%s", t.Format("2006-01-02"), f)
}

// Build renders records in format f. Dates are shown in loc.
func Build(f Format, records []core.FuelRecord, loc *time.Location) ([]byte, error) {
	switch f {
	case FormatXLSX:
		return BuildXLSX(records, loc)
	case FormatPDF:
		return BuildPDF(records, loc)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, string(f))
}

// BuildXLSX writes a summary sheet and one row per fill-up.
func BuildXLSX(records []core.FuelRecord, loc *time.Location) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, fmt.Errorf("rename summary sheet: %w", err)
	}
	if _, err := f.NewSheet(historySheet); err != nil {
		return nil, fmt.Errorf("create history sheet: %w", err)
	}

	stats := core.Aggregate(records)
	summary := [][2]any{
		{"Pleins", stats.Count},
		{"Distance totale (km)", core.Round(stats.TotalDistanceKm, 0)},
		{"Coût total (€)", core.Round(stats.TotalCost, 2)},
		{"Volume total (L)", core.Round(stats.TotalVolume, 2)},
		{"Prix moyen (€/L)", core.Round(stats.AvgPricePerLiter, 3)},
		{"Consommation moyenne (L/100km)", core.Round(stats.AvgConsumption, 1)},
	}
	if err := f.SetCellValue(summarySheet, "A1", "Historique des pleins"); err != nil {
		return nil, fmt.Errorf("write title: %w", err)
	}
	for i, row := range summary {
		if err := setRow(f, summarySheet, i+3, row[:]); err != nil {
			return nil, fmt.Errorf("write summary: %w", err)
		}
	}

	header := make([]any, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	if err := setRow(f, historySheet, 1, header); err != nil {
		return nil, fmt.Errorf("write headers: %w", err)
	}
	for i, r := range records {
		values := []any{
			r.Time.In(loc).Format("2006-01-02 15:04"),
			r.PricePerLiter,
			r.TotalCost,
			r.DistanceKm,
			r.VolumeLiters,
			r.EfficiencyLPer100Km,
			r.DateEstimated,
		}
		if err := setRow(f, historySheet, i+2, values); err != nil {
			return nil, fmt.Errorf("write fill-up %s: %w", r.ID, err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

// setRow writes values from column A onward on the given 1-based row.
func setRow(f *excelize.File, sheet string, row int, values []any) error {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("%s!%s: %w", sheet, cell, err)
		}
	}
	return nil
}

// BuildPDF renders a one-table report. gofpdf core fonts are Latin-1, so
// text goes through the unicode translator.
func BuildPDF(records []core.FuelRecord, loc *time.Location) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFont("Arial", "B", 14)
	pdf.AddPage()

	pdf.Cell(0, 8, tr("Historique des pleins"))
	pdf.Ln(10)

	stats := core.Aggregate(records)
	pdf.SetFont("Arial", "", 10)
	for _, line := range []string{
		fmt.Sprintf("Pleins : %d", stats.Count),
		fmt.Sprintf("Distance totale : %.0f km", stats.TotalDistanceKm),
		fmt.Sprintf("Coût total : %.2f €", stats.TotalCost),
		fmt.Sprintf("Prix moyen : %.3f €/L", stats.AvgPricePerLiter),
		fmt.Sprintf("Consommation moyenne : %.1f L/100km", stats.AvgConsumption),
	} {
		pdf.Cell(0, 6, tr(line))
		pdf.Ln(5)
	}
	pdf.Ln(4)

	widths := []float64{40, 30, 30, 35, 30, 30, 35}
	pdf.SetFont("Arial", "B", 10)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 6, tr(h), "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 10)
	for _, r := range records {
		estimated := ""
		if r.DateEstimated {
			estimated = "oui"
		}
		cells := []string{
			normalize.DisplayDate(r.Time, loc) + r.Time.In(loc).Format(" 2006"),
			fmt.Sprintf("%.3f", r.PricePerLiter),
			fmt.Sprintf("%.2f", r.TotalCost),
			fmt.Sprintf("%.0f", r.DistanceKm),
			fmt.Sprintf("%.2f", r.VolumeLiters),
			fmt.Sprintf("%.1f", r.EfficiencyLPer100Km),
			estimated,
		}
		for i, c := range cells {
			align := "R"
			if i == 0 || i == len(cells)-1 {
				align = "C"
			}
			pdf.CellFormat(widths[i], 6, tr(c), "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}
