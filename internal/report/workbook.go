package report

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/analysis"
	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/sbox"
)

const (
	// TableSheet is the name of the sheet holding the 16x16 table.
	TableSheet = "SBox_16x16_Table"
	// DDTSheet holds the difference distribution table, exported alongside
	// differential uniformity.
	DDTSheet = "Difference_Distribution"
	// WorkbookFilename is the suggested name for downloaded workbooks.
	WorkbookFilename = "sbox_cryptographic_evaluation.xlsx"
)

const maxSheetName = 31

var sheetNameStrip = regexp.MustCompile(`[^\w\s-]`)

var sheetPrefixes = map[analysis.Metric]string{
	analysis.MetricLAP:                    "LAP",
	analysis.MetricNonlinearity:           "Nonlinearity",
	analysis.MetricSAC:                    "SAC",
	analysis.MetricDAP:                    "DAP",
	analysis.MetricDifferentialUniformity: "Differential_Uniformity",
	analysis.MetricBICSAC:                 "BIC_SAC",
	analysis.MetricBICNL:                  "BIC_NL",
}

// SheetName makes name usable as a worksheet title: characters other than
// word characters, whitespace and hyphens are removed, spaces become
// underscores and the result is cut to 31 characters.
func SheetName(name string) string {
	sanitized := sheetNameStrip.ReplaceAllString(name, "")
	sanitized = strings.ReplaceAll(sanitized, " ", "_")
	if len(sanitized) > maxSheetName {
		sanitized = sanitized[:maxSheetName]
	}
	return sanitized
}

// Workbook builds the export workbook: the table sheet first, then one
// "<metric>_Value" sheet per computed scalar, "SAC_Matrix" when the SAC
// matrix is present and the difference distribution table after differential
// uniformity. Table and matrix sheets carry 1-based labels; the DDT is
// labelled with the differences themselves, 0 to 255.
func Workbook(r analysis.Report) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName("Sheet1", TableSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("report: rename sheet: %w", err)
	}
	if err := writeGrid(f, TableSheet, intRows(r.TableGrid())); err != nil {
		f.Close()
		return nil, err
	}

	values := r.Results.Values()
	for _, m := range r.Metrics {
		v, ok := values[m]
		if !ok {
			continue
		}
		sheet := SheetName(sheetPrefixes[m] + "_Value")
		if _, err := f.NewSheet(sheet); err != nil {
			f.Close()
			return nil, fmt.Errorf("report: new sheet %s: %w", sheet, err)
		}
		if err := f.SetSheetRow(sheet, "B1", &[]any{"Value"}); err != nil {
			f.Close()
			return nil, fmt.Errorf("report: write %s: %w", sheet, err)
		}
		if err := f.SetSheetRow(sheet, "A2", &[]any{0, v}); err != nil {
			f.Close()
			return nil, fmt.Errorf("report: write %s: %w", sheet, err)
		}

		if m == analysis.MetricSAC && len(r.Results.SACMatrix) > 0 {
			matrixSheet := SheetName(sheetPrefixes[m] + "_Matrix")
			if _, err := f.NewSheet(matrixSheet); err != nil {
				f.Close()
				return nil, fmt.Errorf("report: new sheet %s: %w", matrixSheet, err)
			}
			if err := writeGrid(f, matrixSheet, floatRows(r.Results.SACMatrix)); err != nil {
				f.Close()
				return nil, err
			}
		}

		if m == analysis.MetricDifferentialUniformity {
			if err := writeDDT(f, r); err != nil {
				f.Close()
				return nil, err
			}
		}
	}

	f.SetActiveSheet(0)
	return f, nil
}

// WriteWorkbook writes the export workbook for r to w.
func WriteWorkbook(w io.Writer, r analysis.Report) error {
	f, err := Workbook(r)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("report: write workbook: %w", err)
	}
	return nil
}

func writeDDT(f *excelize.File, r analysis.Report) error {
	t, err := r.SBox()
	if err != nil {
		return fmt.Errorf("report: rebuild table: %w", err)
	}
	ddt, err := sbox.DifferenceDistributionTable(context.Background(), t)
	if err != nil {
		return fmt.Errorf("report: difference distribution: %w", err)
	}

	rows := make([][]any, sbox.Size)
	for dx := range ddt {
		rows[dx] = make([]any, sbox.Size)
		for dy, count := range ddt[dx] {
			rows[dx][dy] = int(count)
		}
	}
	if _, err := f.NewSheet(DDTSheet); err != nil {
		return fmt.Errorf("report: new sheet %s: %w", DDTSheet, err)
	}
	return writeGridFrom(f, DDTSheet, rows, 0)
}

// writeGrid writes rows with a 1-based header row and index column.
func writeGrid(f *excelize.File, sheet string, rows [][]any) error {
	return writeGridFrom(f, sheet, rows, 1)
}

// writeGridFrom writes rows with header and index labels counting from
// first.
func writeGridFrom(f *excelize.File, sheet string, rows [][]any, first int) error {
	if len(rows) == 0 {
		return nil
	}
	header := make([]any, len(rows[0]))
	for j := range header {
		header[j] = j + first
	}
	if err := f.SetSheetRow(sheet, "B1", &header); err != nil {
		return fmt.Errorf("report: write %s header: %w", sheet, err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("report: write %s: %w", sheet, err)
		}
		line := append([]any{i + first}, row...)
		if err := f.SetSheetRow(sheet, cell, &line); err != nil {
			return fmt.Errorf("report: write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func intRows(grid [][]int) [][]any {
	rows := make([][]any, len(grid))
	for i, row := range grid {
		rows[i] = make([]any, len(row))
		for j, v := range row {
			rows[i][j] = v
		}
	}
	return rows
}

func floatRows(grid [][]float64) [][]any {
	rows := make([][]any, len(grid))
	for i, row := range grid {
		rows[i] = make([]any, len(row))
		for j, v := range row {
			rows[i][j] = v
		}
	}
	return rows
}
