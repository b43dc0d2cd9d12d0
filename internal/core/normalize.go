package core

// normalize.go turns decoded cells into typed values.
//
// Date columns accept three shapes: time.Time values from the decoder, Excel
// serial numbers (float64) and strings in the configured layout. Anything else
// becomes nil. Single-letter codes for document type and gender are expanded;
// unknown codes are kept as they are so validation can report them.

import (
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/cases"
)

var docTypeCodes = map[string]string{
	"в": DocTypePassport,
	"з": DocTypeForeignPassport,
}

var genderCodes = map[string]string{
	"м": "m",
	"ж": "f",
}

// RecordNormalizer parses dates and expands coded fields of a RawRow.
type RecordNormalizer struct {
	dateLayout string
}

// NewRecordNormalizer returns a normalizer parsing date strings with layout.
// An empty layout selects DateLayout.
func NewRecordNormalizer(layout string) *RecordNormalizer {
	if layout == "" {
		layout = DateLayout
	}
	return &RecordNormalizer{dateLayout: layout}
}

// Normalize returns a normalized copy of raw. Every date column is present in
// the result, holding *Date or nil.
func (n *RecordNormalizer) Normalize(raw RawRow) NormalizedRow {
	out := make(NormalizedRow, len(raw)+len(dateColumns))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			v = strings.TrimSpace(s)
		}
		out[k] = v
	}

	for key := range dateColumns {
		if d := n.ParseDate(raw[key]); d != nil {
			out[key] = d
		} else {
			out[key] = nil
		}
	}

	if v, ok := out[ColDocType].(string); ok {
		out[ColDocType] = expandCode(docTypeCodes, v)
	}
	if v, ok := out[ColDocGender].(string); ok {
		out[ColDocGender] = expandCode(genderCodes, v)
	}

	return out
}

// ParseDate converts a cell value to a date. It never fails; values that are
// not dates yield nil.
func (n *RecordNormalizer) ParseDate(v any) *Date {
	switch val := v.(type) {
	case nil:
		return nil
	case *Date:
		return val
	case Date:
		return &val
	case time.Time:
		if val.IsZero() {
			return nil
		}
		d := DateOf(val)
		return &d
	case float64:
		return excelSerialDate(val)
	case int:
		return excelSerialDate(float64(val))
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return nil
		}
		t, err := time.Parse(n.dateLayout, s)
		if err != nil {
			return nil
		}
		d := DateOf(t)
		return &d
	default:
		return nil
	}
}

func excelSerialDate(serial float64) *Date {
	if serial <= 0 {
		return nil
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return nil
	}
	d := DateOf(t)
	return &d
}

func expandCode(table map[string]string, v string) string {
	if mapped, ok := table[cases.Fold().String(v)]; ok {
		return mapped
	}
	return v
}

// cellString renders a cell value as text. Whole floats print without a
// fraction so numeric document numbers survive.
func cellString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case *Date:
		if val == nil {
			return ""
		}
		return val.String()
	case Date:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return DateOf(val).String()
	default:
		return ""
	}
}

func cellDate(v any) *Date {
	switch val := v.(type) {
	case *Date:
		return val
	case Date:
		return &val
	default:
		return nil
	}
}
