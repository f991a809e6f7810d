package xslt

import (
	"testing"

	"github.com/midbel/codecs/xml"
	"github.com/stretchr/testify/require"
)

func testContext(t *testing.T) *Context {
	t.Helper()
	doc, err := xml.ParseString(`<r/>`)
	require.NoError(t, err)
	transform, err := xml.ParseString(
		`<xsl:stylesheet version="1.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform"/>`)
	require.NoError(t, err)
	sheet, err := NewStylesheet(transform, nil)
	require.NoError(t, err)
	return sheet.createContext(doc)
}

func TestVariableScopeChain(t *testing.T) {
	root := testContext(t)
	root.SetVariable("a", "1")
	root.SetVariable("b", "2")

	child := root.Nest()
	child.SetVariable("b", "overridden")

	grand := child.Nest()

	seq, err := grand.GetVariable("a")
	require.NoError(t, err)
	require.Equal(t, float64(1), seq[0].Value())

	seq, err = grand.GetVariable("b")
	require.NoError(t, err)
	require.Equal(t, "overridden", seq[0].Value())

	// the parent scope never observes the shadowing binding
	seq, err = root.GetVariable("b")
	require.NoError(t, err)
	require.Equal(t, float64(2), seq[0].Value())

	_, err = grand.GetVariable("missing")
	require.Error(t, err)
}

func TestParamNeverOverrides(t *testing.T) {
	ctx := testContext(t)
	ctx.SetParam("p", "first")
	ctx.SetParam("p", "second")

	seq, err := ctx.GetVariable("p")
	require.NoError(t, err)
	require.Equal(t, "first", seq[0].Value())

	ctx.SetVariable("v", "first")
	ctx.SetVariable("v", "second")

	seq, err = ctx.GetVariable("v")
	require.NoError(t, err)
	require.Equal(t, "second", seq[0].Value())
}

func TestBindValueCoercion(t *testing.T) {
	ctx := testContext(t)
	ctx.SetVariable("truthy", "true")
	ctx.SetVariable("number", "12.5")
	ctx.SetVariable("text", "12.5.7")

	seq, err := ctx.GetVariable("truthy")
	require.NoError(t, err)
	require.Equal(t, true, seq[0].Value())

	seq, err = ctx.GetVariable("number")
	require.NoError(t, err)
	require.Equal(t, 12.5, seq[0].Value())

	seq, err = ctx.GetVariable("text")
	require.NoError(t, err)
	require.Equal(t, "12.5.7", seq[0].Value())
}

func TestSharedConfigurationIdentity(t *testing.T) {
	root := testContext(t)
	clone := root.Nest().WithMode("x").WithXpath(root.ContextNode)
	require.Same(t, root.Stylesheet, clone.Stylesheet)
	require.Equal(t, "x", clone.Mode)
}
