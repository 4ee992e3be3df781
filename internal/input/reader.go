// Package input reads the list of names to enrich.
package input

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/pgzip"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/gyeh/npi-enrich/internal/domain"
)

// ReadIdentities reads a tabular file of names. The format is chosen by
// extension: ".xlsx" (first sheet), ".gz" (gzip-compressed CSV), anything
// else CSV. The first row is a header and is skipped.
//
// In each data row empty cells are dropped; the first remaining value is the
// first name and the last remaining value is the last name. Rows with fewer
// than two non-empty values are skipped, so a single-name row is never looked
// up with the same value as both first and last name.
func ReadIdentities(path string) ([]domain.InputIdentity, error) {
	var (
		rows [][]string
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".xlsx":
		rows, err = readXLSX(path)
	case ".gz":
		rows, err = readGzipCSV(path)
	default:
		rows, err = readCSVFile(path)
	}
	if err != nil {
		return nil, &domain.OpError{Op: "input.read", Kind: domain.KindInputRead, Path: path, Err: err}
	}
	return identitiesFromRows(rows), nil
}

func identitiesFromRows(rows [][]string) []domain.InputIdentity {
	if len(rows) == 0 {
		return nil
	}
	var ids []domain.InputIdentity
	for _, row := range rows[1:] {
		var cleaned []string
		for _, cell := range row {
			if cell = strings.TrimSpace(cell); cell != "" {
				cleaned = append(cleaned, cell)
			}
		}
		if len(cleaned) < 2 {
			continue
		}
		ids = append(ids, domain.InputIdentity{
			FirstName: cleaned[0],
			LastName:  cleaned[len(cleaned)-1],
		})
	}
	return ids
}

func readCSVFile(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readCSV(f)
}

func readGzipCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	defer gz.Close()
	return readCSV(gz)
}

// readCSV parses CSV from r, dropping a leading UTF-8 BOM. Rows may have
// differing numbers of fields.
func readCSV(r io.Reader) ([][]string, error) {
	r = transform.NewReader(r, unicode.BOMOverride(transform.Nop))
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var rows [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("parsing CSV: %w", err)
		}
		rows = append(rows, rec)
	}
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", sheet, err)
	}
	return rows, nil
}
