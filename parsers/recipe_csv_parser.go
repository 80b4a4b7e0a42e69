package parsers

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
)

// RecipeCSVRecord is one ingredient line of a recipe sheet.
type RecipeCSVRecord struct {
	Line       int
	Category   string
	Product    string
	Ingredient string
	Quantity   decimal.Decimal
	Unit       string
	MinStock   *decimal.Decimal
}

// ParseRecipeCSV reads a recipe sheet with the columns category, product,
// ingredient and quantity, plus optional unit and min_stock. Rows that cannot
// be used are skipped and reported.
func ParseRecipeCSV(r io.Reader) ([]RecipeCSVRecord, []RowError, error) {
	reader := newCSVReader(r)
	colIndex, err := readHeader(reader, []string{"category", "product", "ingredient", "quantity"})
	if err != nil {
		return nil, nil, err
	}

	var (
		records []RecipeCSVRecord
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

		category, product, ingredient := get("category"), get("product"), get("ingredient")
		if category == "" && product == "" && ingredient == "" {
			continue
		}
		if category == "" || product == "" || ingredient == "" {
			skipped = append(skipped, RowError{Line: line, Err: "category, product and ingredient are required"})
			continue
		}
		qty, err := ParseDecimal(get("quantity"))
		if err != nil {
			skipped = append(skipped, RowError{Line: line, Err: fmt.Sprintf("quantity %q: %v", get("quantity"), err)})
			continue
		}
		if qty.IsNegative() {
			skipped = append(skipped, RowError{Line: line, Err: "quantity must not be negative"})
			continue
		}

		record := RecipeCSVRecord{
			Line:       line,
			Category:   category,
			Product:    product,
			Ingredient: ingredient,
			Quantity:   qty,
			Unit:       get("unit"),
		}
		if raw := get("min_stock"); raw != "" {
			minStock, err := ParseDecimal(raw)
			if err != nil {
				skipped = append(skipped, RowError{Line: line, Err: fmt.Sprintf("min_stock %q: %v", raw, err)})
				continue
			}
			record.MinStock = &minStock
		}
		records = append(records, record)
	}
	return records, skipped, nil
}
