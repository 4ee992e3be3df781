package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/pgzip"
	"github.com/xuri/excelize/v2"

	"github.com/gyeh/npi-enrich/internal/domain"
)

// Format is the serialization chosen for an output path.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatGzipCSV Format = "csv.gz"
	FormatXLSX    Format = "xlsx"
)

// FormatFor picks the format from the path's extension.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return FormatXLSX
	case ".gz":
		return FormatGzipCSV
	default:
		return FormatCSV
	}
}

// WriteRecords writes records as a table with a header row computed from the
// union of their field names (first-seen order). Absent fields are empty
// cells. "-" writes CSV to stdout.
//
// File output is written to a temporary file next to outputPath and renamed
// into place, so outputPath either receives the complete table or is left
// untouched.
func WriteRecords(outputPath string, records []domain.Record) error {
	if outputPath == "-" {
		if err := WriteCSV(os.Stdout, records); err != nil {
			return &domain.OpError{Op: "output.write", Kind: domain.KindOutputWrite, Path: outputPath, Err: err}
		}
		return nil
	}

	var write func(io.Writer, []domain.Record) error
	switch FormatFor(outputPath) {
	case FormatXLSX:
		write = WriteXLSX
	case FormatGzipCSV:
		write = writeGzipCSV
	default:
		write = WriteCSV
	}

	err := writeAtomic(outputPath, func(w io.Writer) error {
		return write(w, records)
	})
	if err != nil {
		return &domain.OpError{Op: "output.write", Kind: domain.KindOutputWrite, Path: outputPath, Err: err}
	}
	return nil
}

// WriteCSV writes records as RFC 4180 CSV. Values containing commas, quotes
// or newlines are quoted.
func WriteCSV(w io.Writer, records []domain.Record) error {
	header := domain.Header(records)
	if len(header) == 0 {
		return nil
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range records {
		if err := cw.Write(r.Row(header)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeGzipCSV(w io.Writer, records []domain.Record) error {
	gz := pgzip.NewWriter(w)
	if err := WriteCSV(gz, records); err != nil {
		gz.Close()
		return err
	}
	return gz.Close()
}

// WriteXLSX writes records to the first sheet of a new workbook.
func WriteXLSX(w io.Writer, records []domain.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	header := domain.Header(records)
	if len(header) > 0 {
		if err := setRow(f, sheet, 1, header); err != nil {
			return err
		}
		for i, r := range records {
			if err := setRow(f, sheet, i+2, r.Row(header)); err != nil {
				return err
			}
		}
	}

	_, err := f.WriteTo(w)
	return err
}

func setRow(f *excelize.File, sheet string, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	cells := make([]any, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return f.SetSheetRow(sheet, cell, &cells)
}

// writeAtomic writes through fn into a temp file in path's directory and
// renames it to path. The temp file is removed on every failure path.
func writeAtomic(path string, fn func(io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if err = fn(tmp); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", tmpName, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}
	if err = os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("renaming into place: %w", err)
	}
	return nil
}
