package xslt

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/midbel/codecs/xml"
)

const defaultFormatName = "_default"

// decimalFormat carries the picture characters registered by one
// xsl:decimal-format element.
type decimalFormat struct {
	Name              string
	DecimalSeparator  string
	GroupingSeparator string
	PatternSeparator  string
	MinusSign         string
	ZeroDigit         rune
	Digit             rune
	Infinity          string
	NaN               string
	Percent           string
	PerMille          string
}

func defaultDecimalFormat() *decimalFormat {
	return &decimalFormat{
		Name:              defaultFormatName,
		DecimalSeparator:  ".",
		GroupingSeparator: ",",
		PatternSeparator:  ";",
		MinusSign:         "-",
		ZeroDigit:         '0',
		Digit:             '#',
		Infinity:          "Infinity",
		NaN:               "NaN",
		Percent:           "%",
		PerMille:          "‰",
	}
}

func loadDecimalFormat(el *xml.Element) *decimalFormat {
	format := defaultDecimalFormat()
	first := func(value string, fallback rune) rune {
		for _, r := range value {
			return r
		}
		return fallback
	}
	for _, a := range el.Attrs {
		switch value := a.Value(); a.Name {
		case "name":
			format.Name = value
		case "decimal-separator":
			format.DecimalSeparator = value
		case "grouping-separator":
			format.GroupingSeparator = value
		case "pattern-separator":
			format.PatternSeparator = value
		case "minus-sign":
			format.MinusSign = value
		case "zero-digit":
			format.ZeroDigit = first(value, '0')
		case "digit":
			format.Digit = first(value, '#')
		case "infinity":
			format.Infinity = value
		case "NaN":
			format.NaN = value
		case "percent":
			format.Percent = value
		case "per-mille":
			format.PerMille = value
		default:
		}
	}
	return format
}

// Format renders value against a picture string: the picture splits on
// the pattern separator into positive and negative sub-patterns, the
// fractional part fills left to right, the integer part right to left,
// grouping separators survive only while digits remain and overflow
// digits are prepended.
func (f *decimalFormat) Format(value float64, picture string) (string, error) {
	if picture == "" {
		return "", fmt.Errorf("empty format pattern")
	}
	if math.IsNaN(value) {
		return f.NaN, nil
	}

	var (
		pattern       = picture
		negative      = math.Signbit(value)
		explicitMinus = negative
	)
	if pos, neg, ok := strings.Cut(picture, f.PatternSeparator); ok {
		if negative {
			pattern = neg
			explicitMinus = false
		} else {
			pattern = pos
		}
	}
	if math.IsInf(value, 0) {
		if explicitMinus {
			return f.MinusSign + f.Infinity, nil
		}
		return f.Infinity, nil
	}

	value = math.Abs(value)
	if strings.Contains(pattern, f.Percent) {
		value *= 100
	} else if strings.Contains(pattern, f.PerMille) {
		value *= 1000
	}

	intPattern, fracPattern, _ := strings.Cut(pattern, f.DecimalSeparator)

	var minFrac, maxFrac int
	for _, r := range fracPattern {
		switch r {
		case f.ZeroDigit:
			minFrac++
			maxFrac++
		case f.Digit:
			maxFrac++
		}
	}

	digits := strconv.FormatFloat(value, 'f', maxFrac, 64)
	intDigits, fracDigits, _ := strings.Cut(digits, ".")
	for len(fracDigits) > minFrac && strings.HasSuffix(fracDigits, "0") {
		fracDigits = fracDigits[:len(fracDigits)-1]
	}

	var (
		frac = f.formatFraction(fracPattern, fracDigits)
		str  = f.formatInteger(intPattern, intDigits)
	)
	if frac != "" {
		str += f.DecimalSeparator + frac
	}
	if explicitMinus {
		str = f.MinusSign + str
	}
	return str, nil
}

// formatFraction fills the fractional sub-pattern left to right against
// the source digits: forced slots pad with the zero digit, optional ones
// stop consuming once the source runs dry.
func (f *decimalFormat) formatFraction(pattern, digits string) string {
	var (
		str strings.Builder
		at  int
	)
	for _, r := range pattern {
		switch r {
		case f.ZeroDigit:
			if at < len(digits) {
				str.WriteByte(digits[at])
				at++
			} else {
				str.WriteRune(f.ZeroDigit)
			}
		case f.Digit:
			if at < len(digits) {
				str.WriteByte(digits[at])
				at++
			}
		default:
			str.WriteRune(r)
		}
	}
	return str.String()
}

// formatInteger fills the span of digit slots in the integer sub-pattern
// right to left; literals before and after the span pass through
// verbatim, grouping separators survive only while source digits remain
// and overflow digits are prepended to the filled span.
func (f *decimalFormat) formatInteger(pattern, digits string) string {
	var (
		runes = []rune(pattern)
		first = -1
		last  = -1
	)
	isSlot := func(r rune) bool {
		return r == f.ZeroDigit || r == f.Digit
	}
	for i, r := range runes {
		if isSlot(r) {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 {
		return digits + pattern
	}
	if digits == "0" && !strings.ContainsRune(pattern, f.ZeroDigit) {
		digits = ""
	}
	var (
		parts    []string
		at       = len(digits)
		zone     = runes[first : last+1]
		grouping = []rune(f.GroupingSeparator)
	)
	for i := len(zone) - 1; i >= 0; i-- {
		switch r := zone[i]; {
		case r == f.ZeroDigit:
			if at > 0 {
				at--
				parts = append(parts, string(digits[at]))
			} else {
				parts = append(parts, string(f.ZeroDigit))
			}
		case r == f.Digit:
			if at > 0 {
				at--
				parts = append(parts, string(digits[at]))
			}
		case len(grouping) == 1 && r == grouping[0]:
			if at > 0 {
				parts = append(parts, string(r))
			}
		default:
			parts = append(parts, string(r))
		}
	}
	if at > 0 {
		parts = append(parts, digits[:at])
	}
	var str strings.Builder
	str.WriteString(string(runes[:first]))
	for i := len(parts) - 1; i >= 0; i-- {
		str.WriteString(parts[i])
	}
	str.WriteString(string(runes[last+1:]))
	return str.String()
}
