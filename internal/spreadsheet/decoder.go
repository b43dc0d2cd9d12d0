// Package spreadsheet reads employee uploads and writes the upload template.
//
// Uploads have a fixed positional layout (core.Columns). The first row holds
// column titles and is skipped. Rows whose cells are all blank are dropped,
// so row indices refer to data rows only.
//
// Supported formats:
//   - .xlsx: the first worksheet is read with raw cell values; numeric cells
//     in date columns become Excel serial numbers (float64)
//   - .csv: decoded from the hinted charset (UTF-8 by default), a leading BOM
//     overrides the hint; the delimiter is sniffed from the title row
package spreadsheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/JonMunkholm/staffimport/internal/core"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Decode errors. They are returned wrapped in a *core.ParseError.
var (
	ErrEmptyFile         = errors.New("empty file")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrTooManyRows       = errors.New("file too large")
)

// DefaultMaxRows bounds the number of data rows in one upload.
const DefaultMaxRows = 5000

type format int

const (
	formatUnknown format = iota
	formatXLSX
	formatCSV
	formatXLS
)

var (
	zipMagic = []byte("PK\x03\x04")
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// Decoder implements core.Decoder.
type Decoder struct {
	maxRows int
	columns []string
}

var _ core.Decoder = (*Decoder)(nil)

// Option configures a Decoder.
type Option func(*Decoder)

// WithMaxRows sets the row limit. Zero or less disables it.
func WithMaxRows(n int) Option {
	return func(d *Decoder) { d.maxRows = n }
}

// NewDecoder returns a Decoder for the standard column layout.
func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{
		maxRows: DefaultMaxRows,
		columns: core.ColumnKeys(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decode reads data as rows keyed by column.
func (d *Decoder) Decode(data []byte, hint core.DecodeHint) ([]core.RawRow, error) {
	rows, err := d.decode(data, hint)
	if err != nil {
		return nil, &core.ParseError{FileName: hint.FileName, Err: err}
	}
	return rows, nil
}

func (d *Decoder) decode(data []byte, hint core.DecodeHint) ([]core.RawRow, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyFile
	}

	switch detectFormat(hint.FileName, data) {
	case formatXLSX:
		return d.decodeXLSX(data)
	case formatCSV:
		return d.decodeCSV(data, hint.Encoding)
	case formatXLS:
		return nil, fmt.Errorf("%w: legacy .xls workbooks are not read, save the file as .xlsx", ErrUnsupportedFormat)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(hint.FileName))
	}
}

// detectFormat trusts the content signature over the file extension.
func detectFormat(name string, data []byte) format {
	switch {
	case bytes.HasPrefix(data, zipMagic):
		return formatXLSX
	case bytes.HasPrefix(data, oleMagic):
		return formatXLS
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt", "":
		return formatCSV
	case ".xls":
		return formatXLS
	default:
		return formatUnknown
	}
}

func (d *Decoder) decodeXLSX(data []byte) ([]core.RawRow, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("%w: no worksheet found", ErrEmptyFile)
	}

	records, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read worksheet %q: %w", sheet, err)
	}
	return d.toRows(records, true)
}

func (d *Decoder) decodeCSV(data []byte, charset string) ([]core.RawRow, error) {
	enc, err := lookupEncoding(charset)
	if err != nil {
		return nil, err
	}

	text, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), unicode.BOMOverride(enc.NewDecoder())))
	if err != nil {
		return nil, fmt.Errorf("decode %s text: %w", charsetName(charset), err)
	}

	r := csv.NewReader(bytes.NewReader(text))
	r.Comma = sniffDelimiter(text)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return d.toRows(records, false)
}

// toRows drops the title row and blank rows and keys cells by column.
func (d *Decoder) toRows(records [][]string, rawNumbers bool) ([]core.RawRow, error) {
	if len(records) < 2 {
		return nil, fmt.Errorf("%w: no data rows below the title row", ErrEmptyFile)
	}

	rows := make([]core.RawRow, 0, len(records)-1)
	for _, rec := range records[1:] {
		if blankRecord(rec) {
			continue
		}
		if d.maxRows > 0 && len(rows) >= d.maxRows {
			return nil, fmt.Errorf("%w: more than %d rows", ErrTooManyRows, d.maxRows)
		}
		rows = append(rows, d.toRow(rec, rawNumbers))
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no data rows below the title row", ErrEmptyFile)
	}
	return rows, nil
}

func (d *Decoder) toRow(rec []string, rawNumbers bool) core.RawRow {
	row := make(core.RawRow, len(d.columns))
	for i, key := range d.columns {
		var cell string
		if i < len(rec) {
			cell = strings.TrimSpace(rec[i])
		}

		// Workbook dates are stored as serial numbers.
		if rawNumbers && core.IsDateColumn(key) && cell != "" {
			if serial, err := strconv.ParseFloat(cell, 64); err == nil {
				row[key] = serial
				continue
			}
		}
		row[key] = cell
	}
	return row
}

func blankRecord(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func lookupEncoding(name string) (encoding.Encoding, error) {
	if strings.TrimSpace(name) == "" {
		return unicode.UTF8, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q", name)
	}
	return enc, nil
}

func charsetName(name string) string {
	if name == "" {
		return "utf-8"
	}
	return name
}

// sniffDelimiter picks the most frequent of ';', ',' and tab on the title
// row, defaulting to ','.
func sniffDelimiter(text []byte) rune {
	line, _, _ := bytes.Cut(text, []byte("\n"))

	best, bestCount := ',', 0
	for _, c := range []rune{';', ',', '\t'} {
		if n := bytes.Count(line, []byte(string(c))); n > bestCount {
			best, bestCount = c, n
		}
	}
	return best
}
