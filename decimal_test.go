package xslt

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatNumber(t *testing.T) {
	format := defaultDecimalFormat()
	tests := []struct {
		Value   float64
		Picture string
		Want    string
	}{
		{Value: -1234.5, Picture: "#,##0.00;(#,##0.00)", Want: "(1,234.50)"},
		{Value: 1234.5, Picture: "#,##0.00;(#,##0.00)", Want: "1,234.50"},
		{Value: 1234.5, Picture: "#,##0.00", Want: "1,234.50"},
		{Value: -42, Picture: "0.00", Want: "-42.00"},
		{Value: 7, Picture: "000", Want: "007"},
		// overflow digits are prepended to the filled span as-is
		{Value: 1234567, Picture: "#,##0", Want: "1234,567"},
		{Value: 0.25, Picture: "0%", Want: "25%"},
		{Value: 0.002, Picture: "0‰", Want: "2‰"},
		{Value: 3.14159, Picture: "0.0#", Want: "3.14"},
		{Value: 3.1, Picture: "0.0#", Want: "3.1"},
	}
	for _, tt := range tests {
		got, err := format.Format(tt.Value, tt.Picture)
		require.NoError(t, err)
		require.Equal(t, tt.Want, got, "format %f with %q", tt.Value, tt.Picture)
	}
}

func TestFormatNumberSpecials(t *testing.T) {
	format := defaultDecimalFormat()

	got, err := format.Format(math.Inf(1), "0.0")
	require.NoError(t, err)
	require.Equal(t, "Infinity", got)

	got, err = format.Format(math.Inf(-1), "0.0")
	require.NoError(t, err)
	require.Equal(t, "-Infinity", got)

	got, err = format.Format(math.NaN(), "0.0")
	require.NoError(t, err)
	require.Equal(t, "NaN", got)

	_, err = format.Format(1, "")
	require.Error(t, err)
}

func TestFormatNumberCustomFormat(t *testing.T) {
	format := defaultDecimalFormat()
	format.DecimalSeparator = ","
	format.GroupingSeparator = "."
	format.MinusSign = "_"

	got, err := format.Format(-1234.5, "#.##0,00")
	require.NoError(t, err)
	require.Equal(t, "_1.234,50", got)
}

func TestMulberrySequenceIsStable(t *testing.T) {
	require.Equal(t, mulberry32(xmur3("node(a)[0]")), mulberry32(xmur3("node(a)[0]")))
	require.NotEqual(t, mulberry32(xmur3("node(a)[0]")), mulberry32(xmur3("node(a)[1]")))
}

func TestFormatIntegerOverflow(t *testing.T) {
	format := defaultDecimalFormat()

	got, err := format.Format(1234567, "##0")
	require.NoError(t, err)
	require.Equal(t, "1234567", got)
}
