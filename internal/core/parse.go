package core

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxFileSize is the maximum accepted CSV size (10MB).
var MaxFileSize int64 = 10 * 1024 * 1024

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Parser turns price sheets into StructuredReports.
// The zero value is ready to use and stamps reports with the wall clock.
type Parser struct {
	// Now supplies dateProcessed. Defaults to time.Now.
	Now func() time.Time

	// MaxSize caps the input in bytes. Defaults to MaxFileSize.
	MaxSize int64
}

// DefaultParser is used by the package-level Parse and ParseRows.
var DefaultParser = &Parser{}

// Parse tokenizes CSV text from r and builds a report with DefaultParser.
func Parse(r io.Reader, fileName string) (StructuredReport, error) {
	return DefaultParser.Parse(r, fileName)
}

// ParseRows builds a report from already tokenized rows with DefaultParser.
func ParseRows(rows [][]string, fileName string) StructuredReport {
	return DefaultParser.ParseRows(rows, fileName)
}

// Parse reads the whole of r, tokenizes it as CSV and builds a report.
// A tokenization failure aborts with *ParseError and no partial report.
func (p *Parser) Parse(r io.Reader, fileName string) (StructuredReport, error) {
	limit := p.MaxSize
	if limit <= 0 {
		limit = MaxFileSize
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return StructuredReport{}, fmt.Errorf("read %s: %w", fileName, err)
	}
	if int64(len(data)) > limit {
		return StructuredReport{}, fmt.Errorf("file too large: %s exceeds %s limit", fileName, formatSize(limit))
	}

	rows, err := tokenize(data)
	if err != nil {
		return StructuredReport{}, &ParseError{FileName: fileName, Err: err}
	}
	return p.ParseRows(rows, fileName), nil
}

// ParseRows scans rows for special notes and the Item-name header row, then
// zips every following row against that header row.
//
// Note rows after the header row are not collected: the scan stops at the
// header. Values are zipped against the raw header row, blanks included, so
// cells under unlabeled columns are dropped.
func (p *Parser) ParseRows(rows [][]string, fileName string) StructuredReport {
	report := StructuredReport{
		Metadata: Metadata{
			FileName:      fileName,
			DateProcessed: p.now(),
		},
		SpecialNotes: []SpecialNote{},
		Headers:      []string{},
		Items:        []Item{},
	}

	for i, row := range rows {
		if len(row) > 0 && slices.Contains(NoteCategories, row[0]) {
			note := ""
			if len(row) > 1 {
				note = row[1]
			}
			report.SpecialNotes = append(report.SpecialNotes, SpecialNote{Category: row[0], Note: note})
		}

		if !slices.Contains(row, ItemNameHeader) {
			continue
		}

		for _, h := range row {
			if h != "" {
				report.Headers = append(report.Headers, h)
			}
		}
		for _, data := range rows[i+1:] {
			if item, ok := zipRow(row, data); ok {
				report.Items = append(report.Items, item)
			}
		}
		break
	}

	return report
}

func (p *Parser) now() time.Time {
	now := time.Now
	if p != nil && p.Now != nil {
		now = p.Now
	}
	return now().UTC().Truncate(time.Millisecond)
}

// zipRow builds an item from a data row. ok is false for blank rows and rows
// without an Item-name value.
func zipRow(header, data []string) (Item, bool) {
	if len(data) <= 1 || isEmptyRow(data) {
		return nil, false
	}

	item := make(Item, len(header))
	for i, h := range header {
		if h != "" && i < len(data) {
			item[h] = data[i]
		}
	}

	if strings.TrimSpace(item[ItemNameHeader]) == "" {
		return nil, false
	}
	return item, true
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if cell != "" {
			return false
		}
	}
	return true
}

// tokenize splits CSV text into rows. Empty lines are skipped and rows may
// have any number of fields; malformed quoting is an error.
func tokenize(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	data = sanitizeUTF8(data)

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	return r.ReadAll()
}

func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}
	return bytes.ToValidUTF8(data, []byte("\uFFFD"))
}

func formatSize(n int64) string {
	switch {
	case n >= 1<<20 && n%(1<<20) == 0:
		return fmt.Sprintf("%dMB", n>>20)
	case n >= 1<<10 && n%(1<<10) == 0:
		return fmt.Sprintf("%dKB", n>>10)
	}
	return fmt.Sprintf("%d bytes", n)
}
