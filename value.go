package xslt

import (
	"strconv"
	"strings"
	"time"

	"github.com/midbel/codecs/xpath"
)

func toString(item xpath.Item) string {
	switch x := item.Value().(type) {
	case time.Time:
		return x.Format("2006-01-02")
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case string:
		return x
	default:
		return ""
	}
}

func toNumber(str string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(str), 64)
}

// sequenceText concatenates the string value of every item in order.
func sequenceText(seq xpath.Sequence) string {
	var str strings.Builder
	for i := range seq {
		str.WriteString(toString(seq[i]))
	}
	return str.String()
}
