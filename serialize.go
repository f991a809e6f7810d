package xslt

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/midbel/codecs/xml"
)

// Serialize renders the produced top-level nodes according to the
// xsl:output record, then post-processes the text: stray inner XML
// declarations are stripped, disable-output-escaping sentinels resolve to
// their raw delimiters and the declaration from the output record is
// prepended unless omitted.
func (s *Stylesheet) Serialize(nodes []xml.Node) (string, error) {
	var str strings.Builder
	if s.output.Method == "text" {
		for i := range nodes {
			str.WriteString(textContent(nodes[i]))
		}
		return resolveSentinels(str.String()), nil
	}
	for i := range nodes {
		if err := s.writeNode(&str, nodes[i]); err != nil {
			return "", err
		}
	}
	text := stripDeclarations(str.String())
	text = resolveSentinels(text)
	if !s.output.OmitProlog {
		text = s.declaration() + text
	}
	return text, nil
}

func (s *Stylesheet) writeNode(str *strings.Builder, node xml.Node) error {
	switch node := node.(type) {
	case *xml.Document:
		if root := node.Root(); root != nil {
			return s.writeNode(str, root)
		}
		return nil
	case *xml.Element, *xml.Instruction:
		writer := xml.NewWriter(str)
		writer.WriterOptions |= xml.OptionNoProlog
		if !s.output.Indent {
			writer.WriterOptions |= xml.OptionCompact
		}
		doc := xml.EmptyDocument()
		doc.Nodes = append(doc.Nodes, node)
		return writer.Write(doc)
	case *xml.Text:
		str.WriteString(escapeText(node.Content))
		return nil
	case *xml.CharData:
		str.WriteString("<![CDATA[")
		str.WriteString(node.Content)
		str.WriteString("]]>")
		return nil
	case *xml.Comment:
		str.WriteString("<!--")
		str.WriteString(node.Content)
		str.WriteString("-->")
		return nil
	case *xml.Attribute:
		return fmt.Errorf("%w: attribute outside an element", errInvariant)
	default:
		return nil
	}
}

func (s *Stylesheet) declaration() string {
	var str strings.Builder
	str.WriteString(`<?xml version="`)
	str.WriteString(s.output.Version)
	str.WriteString(`" encoding="`)
	str.WriteString(s.output.Encoding)
	str.WriteString(`"`)
	if s.output.Standalone != "" {
		str.WriteString(` standalone="`)
		str.WriteString(s.output.Standalone)
		str.WriteString(`"`)
	}
	str.WriteString("?>")
	return str.String()
}

func escapeText(str string) string {
	var buf strings.Builder
	for _, r := range str {
		switch r {
		case '<':
			buf.WriteString("&lt;")
		case '>':
			buf.WriteString("&gt;")
		case '&':
			buf.WriteString("&amp;")
		default:
			buf.WriteRune(r)
		}
	}
	return buf.String()
}

var innerDeclaration = regexp.MustCompile(`<\?xml[^>]*\?>\n?`)

func stripDeclarations(str string) string {
	return strings.TrimLeft(innerDeclaration.ReplaceAllString(str, ""), "\n")
}

var (
	namedSentinels = strings.NewReplacer(
		"[[&lt;]]", "<",
		"[[&gt;]]", ">",
		"[[&apos;]]", "'",
		"[[&quot;]]", "\"",
		"[[&amp;]]", "&",
	)
	genericSentinel = regexp.MustCompile(`\[\[(.)\]\]`)
)

func resolveSentinels(str string) string {
	str = namedSentinels.Replace(str)
	return genericSentinel.ReplaceAllString(str, "$1")
}
