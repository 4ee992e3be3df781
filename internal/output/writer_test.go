package output

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/pgzip"
	"github.com/xuri/excelize/v2"

	"github.com/gyeh/npi-enrich/internal/domain"
)

func testRecords() []domain.Record {
	return []domain.Record{
		{
			{Name: "first_name", Value: "JANE"},
			{Name: "last_name", Value: "DOE"},
			{Name: "mailing_address_street", Value: "100 MAIN ST, APT 4 "},
			{Name: "primary_taxonomy_desc", Value: `Surgery, "Plastic"`},
		},
		{
			{Name: "first_name", Value: "JOHN"},
			{Name: "gender", Value: "M"},
			{Name: "mailing_address_street", Value: "LINE ONE\nLINE TWO"},
		},
		{
			{Name: "last_name", Value: "  spaced  "},
			{Name: "primary_practice_street", Value: " "},
		},
	}
}

func wantTable() [][]string {
	return [][]string{
		{"first_name", "last_name", "mailing_address_street", "primary_taxonomy_desc", "gender", "primary_practice_street"},
		{"JANE", "DOE", "100 MAIN ST, APT 4 ", `Surgery, "Plastic"`, "", ""},
		{"JOHN", "", "LINE ONE\nLINE TWO", "", "M", ""},
		{"", "  spaced  ", "", "", "", " "},
	}
}

func compareTable(t *testing.T, got, want [][]string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d rows, got %d: %q", len(want), len(got), got)
	}
	for i := range want {
		if len(got[i]) != len(want[i]) {
			t.Errorf("row %d: expected %d cells, got %d: %q", i, len(want[i]), len(got[i]), got[i])
			continue
		}
		for j := range want[i] {
			if got[i][j] != want[i][j] {
				t.Errorf("row %d col %d: expected %q, got %q", i, j, want[i][j], got[i][j])
			}
		}
	}
}

func TestWriteCSV_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, testRecords()); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("re-reading CSV failed: %v", err)
	}
	compareTable(t, rows, wantTable())
}

func TestWriteRecords_CSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "npi_records.csv")
	if err := WriteRecords(path, testRecords()); err != nil {
		t.Fatalf("WriteRecords failed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("re-reading CSV failed: %v", err)
	}
	compareTable(t, rows, wantTable())

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("expected only the output file, found %d entries", len(entries))
	}
}

func TestWriteRecords_GzipCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "npi_records.csv.gz")
	if err := WriteRecords(path, testRecords()); err != nil {
		t.Fatalf("WriteRecords failed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	gz, err := pgzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	defer gz.Close()
	rows, err := csv.NewReader(gz).ReadAll()
	if err != nil {
		t.Fatalf("re-reading CSV failed: %v", err)
	}
	compareTable(t, rows, wantTable())
}

func TestWriteRecords_XLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "npi_records.xlsx")
	if err := WriteRecords(path, testRecords()); err != nil {
		t.Fatalf("WriteRecords failed: %v", err)
	}

	wb, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("opening workbook: %v", err)
	}
	defer wb.Close()
	rows, err := wb.GetRows(wb.GetSheetName(0))
	if err != nil {
		t.Fatal(err)
	}

	// GetRows drops trailing empty cells; pad before comparing.
	want := wantTable()
	for i := range rows {
		for len(rows[i]) < len(want[0]) {
			rows[i] = append(rows[i], "")
		}
	}
	compareTable(t, rows, want)
}

func TestWriteRecords_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	if err := WriteRecords(path, nil); err != nil {
		t.Fatalf("WriteRecords failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 0 {
		t.Errorf("expected empty file, got %q", data)
	}
}

func TestWriteRecords_UnwritableLeavesNothing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "missing-dir")
	path := filepath.Join(dir, "out.csv")

	err := WriteRecords(path, testRecords())
	if !domain.IsKind(err, domain.KindOutputWrite) {
		t.Fatalf("expected output_write error, got %v", err)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Errorf("expected no output file, stat returned %v", statErr)
	}
}

func TestWriteRecords_KeepsExistingOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")
	if err := os.WriteFile(path, []byte("previous run\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := writeAtomic(path, func(w io.Writer) error {
		w.Write([]byte("partial"))
		return errors.New("disk full")
	})
	if err == nil {
		t.Fatal("expected writeAtomic to fail")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "previous run\n" {
		t.Errorf("existing file was modified: %q", data)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected temp file to be removed, found %d entries", len(entries))
	}
}

func TestFormatFor(t *testing.T) {
	for path, want := range map[string]Format{
		"out.csv":      FormatCSV,
		"out":          FormatCSV,
		"out.CSV.GZ":   FormatGzipCSV,
		"dir/out.xlsx": FormatXLSX,
	} {
		if got := FormatFor(path); got != want {
			t.Errorf("FormatFor(%q) = %s, want %s", path, got, want)
		}
	}
}

func TestWriteCSV_HeaderFromUnion(t *testing.T) {
	var buf bytes.Buffer
	recs := []domain.Record{{{Name: "b", Value: "1"}}, {{Name: "a", Value: "2"}, {Name: "b", Value: "3"}}}
	if err := WriteCSV(&buf, recs); err != nil {
		t.Fatal(err)
	}
	if got, want := buf.String(), "b,a\n1,\n3,2\n"; got != want {
		t.Errorf("unexpected CSV:\n got  %q\n want %q", got, want)
	}
}
