package parsers

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
)

// RowError reports a data row that was skipped.
type RowError struct {
	Line int    `json:"line"`
	Err  string `json:"error"`
}

func (e RowError) Error() string { return fmt.Sprintf("line %d: %s", e.Line, e.Err) }

// SkipBOM skips a leading UTF-8 byte order mark.
func SkipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	peeked, err := br.Peek(3)
	if err != nil {
		return br
	}
	if bytes.Equal(peeked, []byte{0xEF, 0xBB, 0xBF}) {
		_, _ = br.Discard(3)
	}
	return br
}

// newCSVReader skips a BOM and picks ';' as separator when the header line
// uses it, as spreadsheets with a decimal comma export that way.
func newCSVReader(r io.Reader) *csv.Reader {
	br := bufio.NewReader(SkipBOM(r))
	comma := ','
	if line, err := br.Peek(br.Size()); len(line) > 0 && (err == nil || err == io.EOF || err == bufio.ErrBufferFull) {
		if i := bytes.IndexByte(line, '\n'); i >= 0 {
			line = line[:i]
		}
		if bytes.Count(line, []byte(";")) > bytes.Count(line, []byte(",")) {
			comma = ';'
		}
	}
	reader := csv.NewReader(br)
	reader.Comma = comma
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	return reader
}

// getColIndex maps lower-cased header names to column indexes and checks
// that every required column is present.
func getColIndex(header []string, required []string) (map[string]int, error) {
	colIndex := make(map[string]int)
	for i, colName := range header {
		colIndex[strings.ToLower(strings.TrimSpace(colName))] = i
	}
	for _, req := range required {
		if _, ok := colIndex[req]; !ok {
			return nil, fmt.Errorf("required column missing: %s", req)
		}
	}
	return colIndex, nil
}

// ParseDecimal accepts both "0.3" and "0,3".
func ParseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty number")
	}
	if !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	return decimal.NewFromString(s)
}

func readHeader(reader *csv.Reader, required []string) (map[string]int, error) {
	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("CSV file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read CSV header: %w", err)
	}
	return getColIndex(header, required)
}

func fieldGetter(colIndex map[string]int, rec []string) func(string) string {
	return func(key string) string {
		if idx, ok := colIndex[key]; ok && idx < len(rec) {
			return strings.TrimSpace(rec[idx])
		}
		return ""
	}
}
