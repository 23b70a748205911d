// Package importer turns uploaded wave forms into waves: it reads the rows,
// validates them as a whole, creates the wave and drives it to the requested
// status.
package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Column headers of the import form.
const (
	HeaderCode        = "Партномер"
	HeaderWeight      = "Вес г"
	HeaderQuantity    = "Количество"
	HeaderDescription = "Описание"
)

var (
	// ErrUnsupportedFormat rejects forms that are neither csv nor xlsx.
	ErrUnsupportedFormat = errors.New("importer: unsupported form format")
	// ErrMissingColumns rejects forms without the required headers.
	ErrMissingColumns = errors.New("importer: missing columns")
	// ErrEmptyForm rejects forms without a header row.
	ErrEmptyForm = errors.New("importer: empty form")
)

var requiredHeaders = []string{HeaderCode, HeaderWeight, HeaderQuantity, HeaderDescription}

var headerAliases = map[string]string{
	"партномер":   HeaderCode,
	"item_code":   HeaderCode,
	"вес г":       HeaderWeight,
	"weight":      HeaderWeight,
	"количество":  HeaderQuantity,
	"quantity":    HeaderQuantity,
	"описание":    HeaderDescription,
	"description": HeaderDescription,
}

// Cell values spreadsheet exports write for missing data.
var blankMarkers = map[string]struct{}{"nan": {}, "NaN": {}, "None": {}, "<NA>": {}}

// Row is one data line of a form with raw, trimmed cell values.
// Line counts the header as line 1.
type Row struct {
	Line        int
	ItemCode    string
	Weight      string
	Quantity    string
	Description string
}

// ReadRows parses a .csv or .xlsx form. Only the first sheet of a workbook is read.
func ReadRows(name string, r io.Reader) ([]Row, error) {
	var (
		records [][]string
		err     error
	)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		records, err = readCSV(r)
	case ".xlsx":
		records, err = readXLSX(r)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
	if err != nil {
		return nil, err
	}
	return toRows(records)
}

func readCSV(r io.Reader) ([][]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimPrefix(data, []byte("\ufeff"))
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	first, _, _ := bytes.Cut(data, []byte("\n"))
	if bytes.Count(first, []byte(";")) > bytes.Count(first, []byte(",")) {
		reader.Comma = ';'
	}
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("importer: read csv: %w", err)
	}
	return records, nil
}

func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("importer: open workbook: %w", err)
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyForm
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("importer: read sheet %s: %w", sheets[0], err)
	}
	return rows, nil
}

func toRows(records [][]string) ([]Row, error) {
	if len(records) == 0 {
		return nil, ErrEmptyForm
	}
	index := make(map[string]int, len(requiredHeaders))
	for i, raw := range records[0] {
		header, ok := headerAliases[strings.ToLower(strings.TrimSpace(raw))]
		if !ok {
			continue
		}
		if _, seen := index[header]; !seen {
			index[header] = i
		}
	}
	var missing []string
	for _, header := range requiredHeaders {
		if _, ok := index[header]; !ok {
			missing = append(missing, header)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	rows := make([]Row, 0, len(records)-1)
	for i, record := range records[1:] {
		row := Row{
			Line:        i + 2,
			ItemCode:    cell(record, index[HeaderCode]),
			Weight:      cell(record, index[HeaderWeight]),
			Quantity:    cell(record, index[HeaderQuantity]),
			Description: cell(record, index[HeaderDescription]),
		}
		if row == (Row{Line: row.Line}) {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func cell(record []string, i int) string {
	if i >= len(record) {
		return ""
	}
	v := strings.TrimSpace(record[i])
	if _, blank := blankMarkers[v]; blank {
		return ""
	}
	return v
}
