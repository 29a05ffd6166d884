// Package tableio reads S-box tables from CSV, plain text, JSON and Excel
// sources. Values are flattened row-major and returned unnormalised; padding
// and truncation are left to sbox.NewTable.
package tableio

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/sbox"
)

var (
	// ErrUnsupportedFormat is returned for unknown input formats.
	ErrUnsupportedFormat = errors.New("tableio: unsupported format")
	// ErrMalformed reports input that cannot be read as a table. It matches
	// sbox.ErrInvalidInput.
	ErrMalformed = fmt.Errorf("%w: malformed table", sbox.ErrInvalidInput)
	// ErrEmpty reports input without any values.
	ErrEmpty = fmt.Errorf("%w: no values", ErrMalformed)
)

// Format names an input encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatText Format = "txt"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

// ParseFormat resolves a format name or file extension.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), ".")) {
	case "csv":
		return FormatCSV, nil
	case "txt", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "xlsx", "xlsm", "excel":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
	}
}

// FormatFromName picks the format from a file name's extension. Names
// without an extension are read as CSV.
func FormatFromName(name string) (Format, error) {
	ext := filepath.Ext(name)
	if ext == "" {
		return FormatCSV, nil
	}
	return ParseFormat(ext)
}

// ReadFile reads the table stored at path, choosing the format from its
// extension.
func ReadFile(path string) ([]int, error) {
	format, err := FormatFromName(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("tableio: open %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f, format)
}

// Parse reads every value from r in the given format.
func Parse(r io.Reader, format Format) ([]int, error) {
	var (
		values []int
		err    error
	)
	switch format {
	case FormatCSV:
		values, err = parseCSV(r)
	case FormatText:
		values, err = parseText(r)
	case FormatJSON:
		values, err = parseJSON(r)
	case FormatXLSX:
		values, err = parseXLSX(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, string(format))
	}
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, ErrEmpty
	}
	return values, nil
}

// ParseValue reads one cell: decimal, 0x-prefixed hexadecimal, or an
// integral float such as "99.0" as written by spreadsheets.
func ParseValue(cell string) (int, error) {
	s := strings.TrimSpace(cell)
	if hex, ok := cutHexPrefix(s); ok {
		v, err := strconv.ParseInt(hex, 16, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a hexadecimal integer", ErrMalformed, cell)
		}
		return int(v), nil
	}
	// Leading zeros are decimal padding, never octal.
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return int(v), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %q is not an integer", ErrMalformed, cell)
	}
	return int(f), nil
}

func cutHexPrefix(s string) (string, bool) {
	if rest, ok := strings.CutPrefix(s, "0x"); ok {
		return rest, true
	}
	return strings.CutPrefix(s, "0X")
}

func appendRow(values []int, row []string, line int) ([]int, error) {
	for col, cell := range row {
		if strings.TrimSpace(cell) == "" {
			continue
		}
		v, err := ParseValue(cell)
		if err != nil {
			return nil, fmt.Errorf("row %d column %d: %w", line, col+1, err)
		}
		values = append(values, v)
	}
	return values, nil
}

func parseCSV(r io.Reader) ([]int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	var values []int
	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return values, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if values, err = appendRow(values, record, line); err != nil {
			return nil, err
		}
	}
}

func parseText(r io.Reader) ([]int, error) {
	scanner := bufio.NewScanner(r)
	var values []int
	for line := 1; scanner.Scan(); line++ {
		text := scanner.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		fields := strings.FieldsFunc(text, func(r rune) bool {
			return r == ',' || r == ';' || r == ' ' || r == '\t'
		})
		var err error
		if values, err = appendRow(values, fields, line); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("tableio: read text: %w", err)
	}
	return values, nil
}

// parseJSON accepts a flat array, an array of rows, or an object with a
// "table" or "sbox" field holding either.
func parseJSON(r io.Reader) ([]int, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("tableio: read json: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var wrapper struct {
			Table json.RawMessage `json:"table"`
			SBox  json.RawMessage `json:"sbox"`
		}
		if err := json.Unmarshal(data, &wrapper); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		data = wrapper.Table
		if len(data) == 0 {
			data = wrapper.SBox
		}
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return nil, fmt.Errorf("%w: expected an array of integers or rows: %v", ErrMalformed, err)
	}
	var flat []int
	for i, elem := range elems {
		if len(elem) > 0 && elem[0] == '[' {
			var row []int
			if err := json.Unmarshal(elem, &row); err != nil {
				return nil, fmt.Errorf("%w: row %d: %v", ErrMalformed, i+1, err)
			}
			flat = append(flat, row...)
			continue
		}
		var v int
		if err := json.Unmarshal(elem, &v); err != nil {
			return nil, fmt.Errorf("%w: element %d: %v", ErrMalformed, i+1, err)
		}
		flat = append(flat, v)
	}
	return flat, nil
}

// parseXLSX flattens the first worksheet row-major.
func parseXLSX(r io.Reader) ([]int, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmpty
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("tableio: read sheet %s: %w", sheets[0], err)
	}

	var values []int
	for i, row := range rows {
		if values, err = appendRow(values, row, i+1); err != nil {
			return nil, err
		}
	}
	return values, nil
}
