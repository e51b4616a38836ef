package export

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"fueltrack/internal/core"
)

func sampleRecords() []core.FuelRecord {
	t1 := time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)
	t2 := time.Date(2024, 2, 3, 18, 30, 0, 0, time.UTC)
	return []core.FuelRecord{
		{ID: "a", Time: t1, PricePerLiter: 1.571, TotalCost: 55, DistanceKm: 480, VolumeLiters: 35, EfficiencyLPer100Km: 7.3},
		{ID: "b", Time: t2, PricePerLiter: 1.5, TotalCost: 60, DistanceKm: 500, VolumeLiters: 40, EfficiencyLPer100Km: 8, DateEstimated: true},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"xlsx", FormatXLSX, false},
		{" PDF ", FormatPDF, false},
		{"csv", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownFormat) {
					t.Fatalf("ParseFormat(%q) error = %v, want ErrUnknownFormat", tt.in, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("ParseFormat(%q) = %q, %v", tt.in, got, err)
			}
		})
	}
}

func TestBuildXLSX(t *testing.T) {
	data, err := BuildXLSX(sampleRecords(), time.UTC)
	if err != nil {
		t.Fatalf("BuildXLSX: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(historySheet)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header + 2", len(rows))
	}
	if rows[1][0] != "2024-01-10 08:00" || rows[1][1] != "1.571" {
		t.Errorf("first data row = %v", rows[1])
	}
	if rows[2][6] != "TRUE" {
		t.Errorf("estimated flag = %q, want TRUE", rows[2][6])
	}

	count, err := f.GetCellValue(summarySheet, "B3")
	if err != nil || count != "2" {
		t.Errorf("summary count = %q, %v", count, err)
	}
}

func TestSetRowReportsErrors(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()

	tests := []struct {
		name  string
		sheet string
		row   int
	}{
		{"row zero", "Sheet1", 0},
		{"missing sheet", "Absent", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := setRow(f, tt.sheet, tt.row, []any{"a", 1.5}); err == nil {
				t.Fatal("setRow() expected an error")
			}
		})
	}

	if err := setRow(f, "Sheet1", 2, []any{"a", 1.5}); err != nil {
		t.Fatalf("setRow() error = %v", err)
	}
	if v, _ := f.GetCellValue("Sheet1", "B2"); v != "1.5" {
		t.Errorf("B2 = %q, want 1.5", v)
	}
}

func TestBuildPDF(t *testing.T) {
	data, err := BuildPDF(sampleRecords(), time.UTC)
	if err != nil {
		t.Fatalf("BuildPDF: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Fatalf("output does not look like a PDF: %q", data[:8])
	}
}

func TestBuildEmptyHistory(t *testing.T) {
	for _, f := range []Format{FormatXLSX, FormatPDF} {
		if _, err := Build(f, nil, time.UTC); err != nil {
			t.Errorf("Build(%s, nil): %v", f, err)
		}
	}
	if _, err := Build("csv", nil, time.UTC); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("Build(csv) error = %v", err)
	}
}

func TestFilename(t *testing.T) {
	got := FormatPDF.Filename(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	if got != "pleins-2024-03-01.pdf" {
		t.Errorf("Filename = %q", got)
	}
}
