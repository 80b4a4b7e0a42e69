package model

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

type ExtraKind string

const (
	ExtraTopping   ExtraKind = "topping"
	ExtraSauce     ExtraKind = "sauce"
	ExtraHalf      ExtraKind = "half"
	ExtraSurcharge ExtraKind = "surcharge"
)

// Extra is one per-line customization. Known kinds use the typed fields;
// anything else (unknown kinds and unknown keys) is kept in Fields.
type Extra struct {
	Kind   ExtraKind
	Name   string
	Price  *decimal.Decimal
	Left   string
	Right  string
	Fields map[string]json.RawMessage
}

var extraKnownKeys = map[string]bool{"kind": true, "name": true, "price": true, "left": true, "right": true}

func (e Extra) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Fields)+5)
	for k, v := range e.Fields {
		out[k] = v
	}
	if e.Kind != "" {
		out["kind"] = e.Kind
	}
	if e.Name != "" {
		out["name"] = e.Name
	}
	if e.Price != nil {
		out["price"] = *e.Price
	}
	if e.Kind == ExtraHalf {
		// a side that did not decode as a string stays in Fields verbatim
		if _, kept := e.Fields["left"]; !kept {
			out["left"] = e.Left
		}
		if _, kept := e.Fields["right"]; !kept {
			out["right"] = e.Right
		}
	}
	return json.Marshal(out)
}

func (e *Extra) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("extra: %w", err)
	}
	*e = Extra{}
	if v, ok := fields["kind"]; ok {
		if err := json.Unmarshal(v, &e.Kind); err != nil {
			return fmt.Errorf("extra kind: %w", err)
		}
	}
	if v, ok := fields["name"]; ok {
		if err := json.Unmarshal(v, &e.Name); err != nil {
			return fmt.Errorf("extra name: %w", err)
		}
	}
	if v, ok := fields["price"]; ok && string(v) != "null" {
		var p decimal.Decimal
		if err := json.Unmarshal(v, &p); err != nil {
			return fmt.Errorf("extra price: %w", err)
		}
		e.Price = &p
	}
	var badSides map[string]bool
	if e.Kind == ExtraHalf {
		for k, dst := range map[string]*string{"left": &e.Left, "right": &e.Right} {
			v, ok := fields[k]
			if !ok {
				continue
			}
			if err := json.Unmarshal(v, dst); err != nil {
				if badSides == nil {
					badSides = make(map[string]bool, 2)
				}
				badSides[k] = true
			}
		}
	}
	for k, v := range fields {
		if extraKnownKeys[k] && !badSides[k] && (e.Kind == ExtraHalf || (k != "left" && k != "right")) {
			continue
		}
		if e.Fields == nil {
			e.Fields = make(map[string]json.RawMessage)
		}
		e.Fields[k] = v
	}
	return nil
}

// Extras is the extras payload of an order line. Payloads read from the store
// keep their original bytes and are written back unchanged unless modified.
type Extras struct {
	items []Extra
	raw   []byte
}

func NewExtras(items ...Extra) Extras {
	return Extras{items: append([]Extra(nil), items...)}
}

// Items returns a copy of the decoded extras.
func (x Extras) Items() []Extra {
	return append([]Extra(nil), x.items...)
}

// Add appends an extra. The original payload bytes are dropped.
func (x *Extras) Add(e Extra) {
	x.items = append(x.items, e)
	x.raw = nil
}

func (x Extras) IsEmpty() bool { return len(x.items) == 0 && len(x.raw) == 0 }

// Surcharge sums the prices of all priced extras.
func (x Extras) Surcharge() decimal.Decimal {
	sum := decimal.Zero
	for _, e := range x.items {
		if e.Price != nil {
			sum = sum.Add(*e.Price)
		}
	}
	return sum
}

// Raw returns the serialized payload.
func (x Extras) Raw() ([]byte, error) {
	if len(x.raw) > 0 {
		return append([]byte(nil), x.raw...), nil
	}
	if len(x.items) == 0 {
		return nil, nil
	}
	return json.Marshal(x.items)
}

// ParseExtras decodes a stored payload. A single object is accepted as a
// one-element list; payloads that are not JSON are kept opaque.
func ParseExtras(raw []byte) Extras {
	x := Extras{}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return x
	}
	x.raw = append([]byte(nil), raw...)
	switch trimmed[0] {
	case '[':
		var items []Extra
		if err := json.Unmarshal(trimmed, &items); err == nil {
			x.items = items
		}
	case '{':
		var item Extra
		if err := json.Unmarshal(trimmed, &item); err == nil {
			x.items = []Extra{item}
		}
	}
	return x
}

func (x Extras) Value() (driver.Value, error) {
	raw, err := x.Raw()
	if err != nil || raw == nil {
		return nil, err
	}
	return raw, nil
}

func (x *Extras) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*x = Extras{}
	case []byte:
		*x = ParseExtras(v)
	case string:
		*x = ParseExtras([]byte(v))
	default:
		return fmt.Errorf("extras: unsupported type %T", src)
	}
	return nil
}

func (x Extras) MarshalJSON() ([]byte, error) {
	raw, err := x.Raw()
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return []byte("[]"), nil
	}
	if !json.Valid(raw) {
		return json.Marshal(string(raw))
	}
	return raw, nil
}

func (x *Extras) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*x = Extras{}
		return nil
	}
	*x = ParseExtras(data)
	if len(x.items) == 0 {
		trimmed := bytes.TrimSpace(data)
		if bytes.Equal(trimmed, []byte("[]")) {
			*x = Extras{}
		}
	}
	return nil
}
