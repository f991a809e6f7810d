package xslt

import (
	"testing"

	"github.com/midbel/codecs/xml"
	"github.com/stretchr/testify/require"
)

func testSheet(t *testing.T) *Stylesheet {
	t.Helper()
	transform, err := xml.ParseString(
		`<xsl:stylesheet version="1.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform"/>`)
	require.NoError(t, err)
	sheet, err := NewStylesheet(transform, nil)
	require.NoError(t, err)
	return sheet
}

func TestWhitespaceAttributeValuesStrip(t *testing.T) {
	sheet := testSheet(t)
	require.Equal(t, "a b", sheet.processWhitespace("  a \t b\n ", nil))
}

func TestWhitespacePolicyLookup(t *testing.T) {
	sheet := testSheet(t)
	el := xml.NewElement(xml.LocalName("t"))

	// default policy normalizes without trimming
	require.Equal(t, " a b ", sheet.processWhitespace(" a   b ", el))

	sheet.stripSpace = append(sheet.stripSpace, "t")
	require.Equal(t, "a b", sheet.processWhitespace(" a   b ", el))

	// exact entries beat the global wildcard
	sheet.stripSpace = []string{"*"}
	sheet.preserveSpace = []string{"t"}
	require.Equal(t, " a   b ", sheet.processWhitespace(" a   b ", el))
}

func TestSpaceListCanonicalNames(t *testing.T) {
	doc, err := xml.ParseString(
		`<x xmlns:v="urn:v" elements="v:item plain *"/>`)
	require.NoError(t, err)
	root, err := getElementFromNode(doc.Root())
	require.NoError(t, err)

	list, err := loadSpaceList(root)
	require.NoError(t, err)
	require.Equal(t, []string{"{urn:v}item", "plain", "*"}, list)
}
