package parsers

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
)

// StockCountCSVRecord is one counted ingredient of a physical stock count.
type StockCountCSVRecord struct {
	Line       int
	Ingredient string
	Counted    decimal.Decimal
}

// ParseStockCountCSV reads the columns ingredient and counted.
func ParseStockCountCSV(r io.Reader) ([]StockCountCSVRecord, []RowError, error) {
	reader := newCSVReader(r)
	colIndex, err := readHeader(reader, []string{"ingredient", "counted"})
	if err != nil {
		return nil, nil, err
	}

	var (
		records []StockCountCSVRecord
		skipped []RowError
	)
	line := 1
	for {
		line++
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			skipped = append(skipped, RowError{Line: line, Err: err.Error()})
			continue
		}
		get := fieldGetter(colIndex, rec)

		name := get("ingredient")
		if name == "" {
			continue
		}
		counted, err := ParseDecimal(get("counted"))
		if err != nil {
			skipped = append(skipped, RowError{Line: line, Err: fmt.Sprintf("counted %q: %v", get("counted"), err)})
			continue
		}
		if counted.IsNegative() {
			skipped = append(skipped, RowError{Line: line, Err: "counted stock must not be negative"})
			continue
		}
		records = append(records, StockCountCSVRecord{Line: line, Ingredient: name, Counted: counted})
	}
	return records, skipped, nil
}
