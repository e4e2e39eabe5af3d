// Package ingest reads candidate domains out of uploaded spreadsheets.
//
// Column A carries an opaque label, column B the domain. Files with a single
// column are read as domains without labels.
package ingest

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	xls "github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"github.com/yourorg/avail-checker/internal/normalize"
	"github.com/yourorg/avail-checker/internal/types"
)

var (
	// ErrUnsupportedFormat indicates the upload is not a spreadsheet we can read.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrNoDomains indicates no row carried a domain with a recognized suffix.
	ErrNoDomains = errors.New("no domain with a recognized suffix found")
)

// Row is one raw spreadsheet row before normalization.
type Row struct {
	Label  string
	Domain string
}

// Parse detects the format by extension or content signature and returns the
// rows of the first sheet.
func Parse(filename string, r io.Reader) ([]Row, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	head := b
	if len(head) > 512 {
		head = head[:512]
	}
	ext := strings.ToLower(filepath.Ext(filename))
	ct := http.DetectContentType(head)
	switch {
	case ext == ".xlsx" || strings.HasPrefix(ct, "application/zip"):
		return readXLSX(b)
	case ext == ".xls" || bytes.HasPrefix(head, []byte{0xD0, 0xCF, 0x11, 0xE0}): // OLE Compound File
		return readXLS(b)
	case ext == ".csv" || ext == ".tsv" || ext == ".txt" || strings.HasPrefix(ct, "text/plain"):
		return readDelimited(b)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filename)
	}
}

// ToItems normalizes rows and keeps those with a recognized suffix, in input order.
// Duplicates are kept; the checker deduplicates network calls.
func ToItems(rows []Row, suffixes []string) ([]types.DomainItem, error) {
	sfx := normalize.Suffixes(suffixes)
	items := make([]types.DomainItem, 0, len(rows))
	for _, row := range rows {
		if strings.TrimSpace(row.Domain) == "" {
			continue
		}
		d, err := normalize.DomainWithSuffix(row.Domain, sfx)
		if err != nil {
			continue
		}
		items = append(items, types.DomainItem{Label: strings.TrimSpace(row.Label), Domain: d})
	}
	if len(items) == 0 {
		return nil, ErrNoDomains
	}
	return items, nil
}

func rowFromCells(cells []string) (Row, bool) {
	switch len(cells) {
	case 0:
		return Row{}, false
	case 1:
		return Row{Domain: strings.TrimSpace(cells[0])}, true
	default:
		return Row{Label: strings.TrimSpace(cells[0]), Domain: strings.TrimSpace(cells[1])}, true
	}
}

func readDelimited(b []byte) ([]Row, error) {
	sample := b
	if len(sample) > 4096 {
		sample = sample[:4096]
	}
	cr := csv.NewReader(bytes.NewReader(b))
	cr.Comma = detectDelimiter(sample)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	out := make([]Row, 0, 1024)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// Fallback for very dirty inputs
			return readLinesFallback(b)
		}
		if row, ok := rowFromCells(rec); ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func detectDelimiter(b []byte) rune {
	cComma := bytes.Count(b, []byte{','})
	cTab := bytes.Count(b, []byte{'\t'})
	cSemi := bytes.Count(b, []byte{';'})
	if cTab > cComma && cTab > cSemi {
		return '\t'
	}
	if cSemi > cComma {
		return ';'
	}
	return ','
}

func readLinesFallback(b []byte) ([]Row, error) {
	s := bufio.NewScanner(bytes.NewReader(b))
	out := make([]Row, 0, 1024)
	for s.Scan() {
		v := strings.TrimSpace(s.Text())
		if v == "" {
			continue
		}
		out = append(out, Row{Domain: v})
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func readXLSX(b []byte) ([]Row, error) {
	f, err := excelize.OpenReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	rows, err := f.Rows(sheets[0])
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Row, 0, 1024)
	for rows.Next() {
		cols, err := rows.Columns()
		if err != nil {
			return nil, err
		}
		if row, ok := rowFromCells(cols); ok {
			out = append(out, row)
		}
	}
	return out, rows.Error()
}

func readXLS(b []byte) ([]Row, error) {
	wb, err := xls.OpenReader(bytes.NewReader(b), "utf-8")
	if err != nil {
		return nil, err
	}
	if wb.NumSheets() == 0 {
		return nil, nil
	}
	sh := wb.GetSheet(0)
	if sh == nil {
		return nil, nil
	}
	out := make([]Row, 0, sh.MaxRow)
	for i := 0; i <= int(sh.MaxRow); i++ {
		row := sh.Row(i)
		if row == nil {
			continue
		}
		cells := []string{row.Col(0)}
		if row.LastCol() > 1 {
			cells = append(cells, row.Col(1))
		}
		if r, ok := rowFromCells(cells); ok {
			out = append(out, r)
		}
	}
	return out, nil
}
