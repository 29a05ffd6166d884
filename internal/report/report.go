// Package report renders analysis reports as text, JSON, YAML or an Excel
// workbook.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/analysis"
)

// ErrUnsupportedFormat is returned for unknown output formats.
var ErrUnsupportedFormat = errors.New("report: unsupported format")

// Format names an output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatXLSX Format = "xlsx"
)

// ParseFormat resolves a format name; "yml" and "excel" are accepted
// aliases.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "text", "txt":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "xlsx", "excel":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
	}
}

// ContentType returns the HTTP media type for f.
func ContentType(f Format) string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatYAML:
		return "application/yaml"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Write encodes r to w in format f.
func Write(w io.Writer, r analysis.Report, f Format) error {
	switch f {
	case FormatText:
		return WriteText(w, r)
	case FormatJSON:
		return WriteJSON(w, r)
	case FormatYAML:
		return WriteYAML(w, r)
	case FormatXLSX:
		return WriteWorkbook(w, r)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, string(f))
	}
}

// WriteJSON writes r as indented JSON.
func WriteJSON(w io.Writer, r analysis.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("report: encode json: %w", err)
	}
	return nil
}

// WriteYAML writes r as a YAML document.
func WriteYAML(w io.Writer, r analysis.Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("report: encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("report: encode yaml: %w", err)
	}
	return nil
}

// FormatValue renders a metric value with its display precision: six
// decimals for LAP, ten for SAC, DAP and BIC-SAC, integers verbatim.
func FormatValue(m analysis.Metric, v any) string {
	switch value := v.(type) {
	case float64:
		if m == analysis.MetricLAP {
			return fmt.Sprintf("%.6f", value)
		}
		return fmt.Sprintf("%.10f", value)
	case int:
		return fmt.Sprintf("%d", value)
	default:
		return fmt.Sprint(value)
	}
}

// WriteText renders a human-readable report: metric values, the SAC matrix
// when present, the 16x16 table with 1-based labels and the validation
// summary.
func WriteText(w io.Writer, r analysis.Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "S-box report %s\n", r.ID)
	fmt.Fprintf(tw, "Input entries:\t%d\n", r.InputLength)
	for _, warning := range r.Warnings {
		fmt.Fprintf(tw, "Warning:\t%s\n", warning)
	}

	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "Metric\tValue")
	values := r.Results.Values()
	for _, m := range r.Metrics {
		if v, ok := values[m]; ok {
			fmt.Fprintf(tw, "%s\t%s\n", m.DisplayName(), FormatValue(m, v))
		}
	}

	if len(r.Results.SACMatrix) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "SAC Matrix:")
		header := make([]string, len(r.Results.SACMatrix[0]))
		for j := range header {
			header[j] = fmt.Sprint(j)
		}
		fmt.Fprintf(tw, "\t%s\n", strings.Join(header, "\t"))
		for i, row := range r.Results.SACMatrix {
			cells := make([]string, len(row))
			for j, p := range row {
				cells[j] = fmt.Sprintf("%.6f", p)
			}
			fmt.Fprintf(tw, "%d\t%s\n", i, strings.Join(cells, "\t"))
		}
	}

	if grid := r.TableGrid(); len(grid) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "S-box:")
		header := make([]string, len(grid[0]))
		for j := range header {
			header[j] = fmt.Sprint(j + 1)
		}
		fmt.Fprintf(tw, "\t%s\n", strings.Join(header, "\t"))
		for i, row := range grid {
			cells := make([]string, len(row))
			for j, v := range row {
				cells[j] = fmt.Sprint(v)
			}
			fmt.Fprintf(tw, "%d\t%s\n", i+1, strings.Join(cells, "\t"))
		}
	}

	v := r.Validation
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "Validation:")
	fmt.Fprintf(tw, "Permutation:\t%t\n", v.Permutation)
	fmt.Fprintf(tw, "Balanced:\t%t\n", v.Balanced)
	fmt.Fprintf(tw, "Fixed points:\t%d\n", v.FixedPoints)
	fmt.Fprintf(tw, "Distinct values:\t%d\n", v.DistinctValues)
	fmt.Fprintf(tw, "Min-entropy (MCV):\t%.6f\n", v.MinEntropy)

	if err := tw.Flush(); err != nil {
		return fmt.Errorf("report: write text: %w", err)
	}
	return nil
}
