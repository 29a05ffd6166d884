package tableio

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/sbox"
)

func TestParseFormats(t *testing.T) {
	want := []int{99, 124, 119, 123, 242, 107}

	cases := []struct {
		name   string
		format Format
		input  string
	}{
		{"csv rows", FormatCSV, "99,124,119\n123,242,107\n"},
		{"csv hex and spaces", FormatCSV, "0x63, 0x7c, 0x77\n0x7b, 0xf2, 0x6b\n"},
		{"csv ragged", FormatCSV, "99,124\n119,123,242,107\n"},
		{"text whitespace", FormatText, "99 124 119\n\t123  242 107\n"},
		{"text comments", FormatText, "# header\n99;124;119 # first\n123,242,107\n"},
		{"json flat", FormatJSON, "[99,124,119,123,242,107]"},
		{"json rows", FormatJSON, "[[99,124,119],[123,242,107]]"},
		{"json object", FormatJSON, `{"table":[99,124,119,123,242,107]}`},
		{"json sbox field", FormatJSON, `{"sbox":[[99,124,119],[123,242,107]]}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse(strings.NewReader(tc.input), tc.format)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if !slices.Equal(got, want) {
				t.Fatalf("got %v, want %v", got, want)
			}
		})
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	cases := []struct {
		name   string
		format Format
		input  string
	}{
		{"csv word", FormatCSV, "1,2,abc\n"},
		{"text fraction", FormatText, "1 2.5 3"},
		{"json strings", FormatJSON, `["a","b"]`},
		{"json bad row", FormatJSON, `[[1,2],[3,"x"]]`},
		{"json nested too deep", FormatJSON, `[[[1]]]`},
		{"csv bad hex", FormatCSV, "0x1,0xzz\n"},
		{"empty csv", FormatCSV, ""},
		{"empty json", FormatJSON, "[]"},
		{"xlsx garbage", FormatXLSX, "not a zip"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tc.input), tc.format)
			if !errors.Is(err, ErrMalformed) {
				t.Fatalf("expected ErrMalformed, got %v", err)
			}
			if !errors.Is(err, sbox.ErrInvalidInput) {
				t.Fatalf("expected error to match sbox.ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestParseJSONGridKeepsRowMajorOrder(t *testing.T) {
	want := make([]int, sbox.Size)
	rows := make([]string, 16)
	for r := range 16 {
		cells := make([]string, 16)
		for c := range 16 {
			v := 255 - (r*16 + c)
			want[r*16+c] = v
			cells[c] = strconv.Itoa(v)
		}
		rows[r] = "[" + strings.Join(cells, ",") + "]"
	}
	input := "[" + strings.Join(rows, ",\n") + "]"

	got, err := Parse(strings.NewReader(input), FormatJSON)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !slices.Equal(got, want) {
		t.Fatalf("grid not flattened row-major: first=%v last=%v len=%d", got[:4], got[len(got)-4:], len(got))
	}
}

func TestParseZeroPaddedCellsAreDecimal(t *testing.T) {
	got, err := Parse(strings.NewReader("000,007,010,099\n"), FormatCSV)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if want := []int{0, 7, 10, 99}; !slices.Equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestParseValue(t *testing.T) {
	cases := map[string]int{
		"0":     0,
		" 255 ": 255,
		"0xff":  255,
		"0XA":   10,
		"99.0":  99,
		"-1":    -1,
		"010":   10,
		"007":   7,
		"077":   77,
		"09":    9,
		"0x010": 16,
	}
	for in, want := range cases {
		got, err := ParseValue(in)
		if err != nil || got != want {
			t.Errorf("ParseValue(%q) = %d, %v; want %d", in, got, err, want)
		}
	}
}

func TestParseFormatAndFromName(t *testing.T) {
	if f, err := FormatFromName("box.XLSX"); err != nil || f != FormatXLSX {
		t.Fatalf("FormatFromName xlsx = %q, %v", f, err)
	}
	if f, err := FormatFromName("box"); err != nil || f != FormatCSV {
		t.Fatalf("FormatFromName without ext = %q, %v", f, err)
	}
	if _, err := FormatFromName("box.pdf"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if _, err := Parse(strings.NewReader("1"), Format("bin")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestParseXLSXFlattensFirstSheet(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetRow("Sheet1", "A1", &[]any{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if err := f.SetSheetRow("Sheet1", "A2", &[]any{4, 5.0, "0x06"}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.NewSheet("Other"); err != nil {
		t.Fatal(err)
	}
	if err := f.SetCellValue("Other", "A1", 200); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}

	got, err := Parse(&buf, FormatXLSX)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if want := []int{1, 2, 3, 4, 5, 6}; !slices.Equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "identity.csv")

	var b strings.Builder
	for i := 0; i < sbox.Size; i++ {
		if i > 0 && i%16 == 0 {
			b.WriteByte('\n')
		} else if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(i))
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !slices.Equal(got, sbox.Identity().Ints()) {
		t.Fatalf("ReadFile returned %v", got)
	}

	if _, err := ReadFile(filepath.Join(dir, "missing.csv")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected os.ErrNotExist, got %v", err)
	}
}
