package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/insightdelivered/bank-statement-extractor/internal/models"
)

var (
	errMissing     = errors.New("value is missing")
	errNotFinite   = errors.New("not a finite number")
	errUnsupported = errors.New("unsupported value type")
)

// Currency markers and spacing that statements put around amounts.
var amountNoise = strings.NewReplacer(
	"$", "",
	"€", "",
	"£", "",
	"COP", "",
	"cop", "",
	"USD", "",
	"usd", "",
	" ", "",
	"\u00a0", "", // non-breaking space
	"\u202f", "", // narrow no-break space
	"'", "",
)

var plainNumber = regexp.MustCompile(`^(\d+(\.\d*)?|\.\d+)$`)

// Integer parts that use a thousands separator must group digits by three.
var thousandsGrouping = map[string]*regexp.Regexp{
	".": regexp.MustCompile(`^\d{1,3}(\.\d{3})+$`),
	",": regexp.MustCompile(`^\d{1,3}(,\d{3})+$`),
}

// ParseAmount converts a statement amount such as "1.234,56", "-$1,234.56",
// "(50.000)" or "1.234,00-" into a decimal. Both separators may appear; the
// rightmost one is the decimal separator. A single separator followed by
// exactly three digits is ambiguous and resolved with the bank's format.
// Thousands separators must group the integer digits by three, so dates
// and other dotted tokens are rejected.
func ParseAmount(s string, format models.NumberFormat) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, errMissing
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = amountNoise.Replace(s)

	switch {
	case strings.HasPrefix(s, "-"):
		negative = true
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	case strings.HasSuffix(s, "-"):
		negative = true
		s = s[:len(s)-1]
	}

	s, err := canonicalSeparators(s, format)
	if err != nil {
		return decimal.Zero, err
	}
	if !plainNumber.MatchString(s) {
		return decimal.Zero, errNotFinite
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errNotFinite
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// canonicalSeparators rewrites s so that '.' is the only separator and marks
// the decimal point.
func canonicalSeparators(s string, format models.NumberFormat) (string, error) {
	lastDot := strings.LastIndexByte(s, '.')
	lastComma := strings.LastIndexByte(s, ',')

	var thousands, dec string
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastDot > lastComma {
			thousands, dec = ",", "."
		} else {
			thousands, dec = ".", ","
		}
		if strings.Count(s, dec) > 1 {
			return "", errNotFinite
		}
	case lastDot >= 0 || lastComma >= 0:
		sep, idx := ".", lastDot
		if lastComma >= 0 {
			sep, idx = ",", lastComma
		}
		switch {
		case strings.Count(s, sep) > 1:
			thousands = sep
		case idx > 0 && s[:idx] != "0" && len(s)-idx-1 == 3:
			if (sep == ",") == (format == models.DecimalComma) {
				dec = sep
			} else {
				thousands = sep
			}
		default:
			dec = sep
		}
	default:
		return s, nil
	}

	if thousands != "" {
		intPart := s
		if dec != "" {
			intPart = s[:strings.Index(s, dec)]
		}
		if !thousandsGrouping[thousands].MatchString(intPart) {
			return "", errNotFinite
		}
		s = strings.ReplaceAll(s, thousands, "")
	}
	if dec != "" && dec != "." {
		s = strings.Replace(s, dec, ".", 1)
	}
	return s, nil
}

// coerceAmount turns an oracle value into a finite float64.
func coerceAmount(v any, format models.NumberFormat) (float64, error) {
	var f float64
	switch n := v.(type) {
	case nil:
		return 0, errMissing
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		if err != nil {
			return 0, fmt.Errorf("%w (%q)", errNotFinite, n.String())
		}
		f = d.InexactFloat64()
	case string:
		d, err := ParseAmount(n, format)
		if err != nil {
			return 0, fmt.Errorf("%w (%q)", err, n)
		}
		f = d.InexactFloat64()
	default:
		return 0, fmt.Errorf("%w %T", errUnsupported, v)
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errNotFinite
	}
	return f, nil
}
