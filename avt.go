package xslt

import (
	"iter"
	"strings"

	"github.com/midbel/codecs/xml"
)

// resolveExpression evaluates the attribute value template regions of the
// given text against the current input context. A doubled brace escapes a
// literal one; an expression the XPath engine rejects degrades to its
// literal braced form instead of failing the transform.
func resolveExpression(ctx *Context, text string) string {
	var str strings.Builder
	for q, ok := range iterAVT(text) {
		if !ok {
			str.WriteString(q)
			continue
		}
		items, err := ctx.ExecuteQuery(q, ctx.ContextNode)
		if err != nil {
			str.WriteString("{")
			str.WriteString(q)
			str.WriteString("}")
			continue
		}
		for i := range items {
			str.WriteString(ctx.processWhitespace(toString(items[i]), nil))
		}
	}
	return str.String()
}

// processAVT rewrites every attribute of el in place.
func processAVT(ctx *Context, el *xml.Element) {
	for i, a := range el.Attrs {
		el.Attrs[i].Datum = resolveExpression(ctx, a.Value())
	}
}

// iterAVT yields the literal and expression regions of an attribute value
// template in order; the boolean marks expressions.
func iterAVT(str string) iter.Seq2[string, bool] {
	fn := func(yield func(string, bool) bool) {
		var offset int
		for offset < len(str) {
			ix := strings.IndexAny(str[offset:], "{}")
			if ix < 0 {
				yield(str[offset:], false)
				return
			}
			if ix > 0 && !yield(str[offset:offset+ix], false) {
				return
			}
			offset += ix
			// doubled braces escape to a literal brace
			if strings.HasPrefix(str[offset:], "{{") || strings.HasPrefix(str[offset:], "}}") {
				if !yield(str[offset:offset+1], false) {
					return
				}
				offset += 2
				continue
			}
			if str[offset] == '}' {
				if !yield("}", false) {
					return
				}
				offset++
				continue
			}
			end := strings.IndexRune(str[offset:], '}')
			if end < 0 {
				yield(str[offset:], false)
				return
			}
			if !yield(str[offset+1:offset+end], true) {
				return
			}
			offset += end + 1
		}
	}
	return fn
}
