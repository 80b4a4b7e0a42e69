package units

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// builtin maps lower-case spellings to the canonical unit name.
var builtin = map[string]string{
	"g": "g", "gr": "g", "gram": "g", "grams": "g", "gramm": "g",
	"kg": "kg", "kilo": "kg", "kilogram": "kg",
	"ml": "ml", "milliliter": "ml", "millilitre": "ml",
	"cl": "cl", "centiliter": "cl",
	"l": "l", "ltr": "l", "liter": "l", "litre": "l",
	"pc": "pcs", "pcs": "pcs", "st": "pcs", "stuk": "pcs", "stuks": "pcs", "piece": "pcs", "pieces": "pcs",
	"portion": "portion", "portie": "portion", "porties": "portion",
}

var (
	mu       sync.RWMutex
	aliasMap = map[string]string{}
)

// LoadUnitsFile reads extra "alias,canonical" pairs from a Windows-1252
// encoded CSV and makes them available to Canonical.
func LoadUnitsFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("LoadUnitsFile: open %s: %w", path, err)
	}
	defer file.Close()
	return LoadUnits(transform.NewReader(file, charmap.Windows1252.NewDecoder()))
}

// LoadUnits reads "alias,canonical" pairs from r.
func LoadUnits(r io.Reader) (map[string]string, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	m := make(map[string]string)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("LoadUnits: %w", err)
		}
		if len(record) < 2 {
			continue
		}
		alias := strings.ToLower(strings.TrimSpace(record[0]))
		canonical := strings.TrimSpace(record[1])
		if alias == "" || canonical == "" {
			continue
		}
		m[alias] = canonical
	}

	mu.Lock()
	aliasMap = m
	mu.Unlock()
	return m, nil
}

// Canonical returns the canonical spelling of a unit. Unknown units are
// returned trimmed but otherwise unchanged.
func Canonical(unit string) string {
	trimmed := strings.TrimSpace(unit)
	key := strings.ToLower(strings.TrimSuffix(trimmed, "."))

	mu.RLock()
	loaded, ok := aliasMap[key]
	mu.RUnlock()
	if ok {
		return loaded
	}
	if name, ok := builtin[key]; ok {
		return name
	}
	return trimmed
}
