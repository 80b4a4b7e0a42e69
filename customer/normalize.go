package customer

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/width"

	"orderdesk/model"
)

const (
	minPhoneDigits = 8
	maxPhoneDigits = 15
	// national numbers without trunk prefix are at most this long, so a
	// longer digit string that starts with the country code already carries it.
	maxNationalDigits = 9
	// "(0)" marks the national trunk prefix inside an international number.
	trunkMarker = "(0)"
)

// countries whose numbers keep their leading zero after the country code.
var keepsTrunkZero = map[string]bool{"39": true, "378": true, "379": true}

// NormalizePhone returns the canonical +<country><national> form of raw.
// "0477 12 34 56", "+32477123456", "0032477123456", "+32 (0)477 12 34 56"
// and "477123456" all map to the same number for country code 32.
func NormalizePhone(raw, countryCode string) (string, error) {
	folded := width.Fold.String(strings.TrimSpace(raw))
	if folded == "" {
		return "", model.Validationf("phone number is required")
	}
	folded = strings.ReplaceAll(folded, trunkMarker, " ")

	var digits strings.Builder
	international := false
	for i, r := range folded {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case r == '+' && i == 0:
			international = true
		case r == ' ' || r == '.' || r == '-' || r == '/' || r == '(' || r == ')':
		default:
			return "", model.Validationf("phone number %q contains %q", raw, r)
		}
	}

	d := digits.String()
	switch {
	case international:
		d = dropTrunkZero(d, countryCode)
	case strings.HasPrefix(d, "00"):
		d = dropTrunkZero(d[2:], countryCode)
	case strings.HasPrefix(d, "0"):
		d = countryCode + d[1:]
	case countryCode != "" && strings.HasPrefix(d, countryCode) && len(d) > maxNationalDigits:
	default:
		d = countryCode + d
	}

	if len(d) < minPhoneDigits || len(d) > maxPhoneDigits {
		return "", model.Validationf("phone number %q must have between %d and %d digits", raw, minPhoneDigits, maxPhoneDigits)
	}
	return "+" + d, nil
}

// dropTrunkZero removes a national "0" written after the home country code,
// as in "+32 0477 12 34 56".
func dropTrunkZero(d, countryCode string) string {
	if countryCode == "" || keepsTrunkZero[countryCode] {
		return d
	}
	rest, ok := strings.CutPrefix(d, countryCode)
	if !ok || !strings.HasPrefix(rest, "0") {
		return d
	}
	return countryCode + rest[1:]
}

// NameNormalizer title-cases customer names for one locale. A Caser is
// stateful, so a new one is built per call.
type NameNormalizer struct {
	tag language.Tag
}

// NewNameNormalizer parses locale as a BCP 47 tag; unknown tags fall back to Dutch.
func NewNameNormalizer(locale string) NameNormalizer {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.Dutch
	}
	return NameNormalizer{tag: tag}
}

// Normalize collapses whitespace and title-cases name.
func (n NameNormalizer) Normalize(name string) string {
	fields := strings.Fields(width.Narrow.String(name))
	if len(fields) == 0 {
		return ""
	}
	return cases.Title(n.tag).String(strings.Join(fields, " "))
}

func normalizeAddressPart(s string) string {
	return strings.Join(strings.Fields(width.Narrow.String(s)), " ")
}
