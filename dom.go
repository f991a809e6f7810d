package xslt

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/midbel/codecs/xml"
)

func getElementFromNode(node xml.Node) (*xml.Element, error) {
	el, ok := node.(*xml.Element)
	if !ok {
		return nil, fmt.Errorf("%s: xml element expected", node.QualifiedName())
	}
	return el, nil
}

// getAttribute returns the attribute value with XML entity references
// decoded. The parser may hand attribute values through raw.
func getAttribute(el *xml.Element, ident string) (string, error) {
	ix := slices.IndexFunc(el.Attrs, func(a xml.Attribute) bool {
		return a.Name == ident
	})
	if ix < 0 {
		return "", fmt.Errorf("%s: %w %q", el.QualifiedName(), errMissed, ident)
	}
	return decodeEntities(el.Attrs[ix].Value()), nil
}

var entityPattern = regexp.MustCompile(`&(#x?[0-9a-fA-F]+|[a-zA-Z]+);`)

func decodeEntities(str string) string {
	if !strings.ContainsRune(str, '&') {
		return str
	}
	return entityPattern.ReplaceAllStringFunc(str, func(ref string) string {
		switch name := ref[1 : len(ref)-1]; name {
		case "lt":
			return "<"
		case "gt":
			return ">"
		case "amp":
			return "&"
		case "quot":
			return "\""
		case "apos":
			return "'"
		default:
			if !strings.HasPrefix(name, "#") {
				return ref
			}
			var (
				digits = name[1:]
				base   = 10
			)
			if strings.HasPrefix(digits, "x") || strings.HasPrefix(digits, "X") {
				digits = digits[1:]
				base = 16
			}
			code, err := strconv.ParseInt(digits, base, 32)
			if err != nil {
				return ref
			}
			return string(rune(code))
		}
	})
}

// isA reports whether node is an element matching one of the given
// prefix:local patterns. A leading caret inverts the test; the xsl prefix
// matches the XSLT namespace whatever prefix the transform declared.
func isA(node xml.Node, prefix string, patterns ...string) bool {
	el, ok := node.(*xml.Element)
	if !ok {
		return false
	}
	for _, pat := range patterns {
		var invert bool
		if strings.HasPrefix(pat, "^") {
			invert = true
			pat = pat[1:]
		}
		space, local, ok := strings.Cut(pat, ":")
		if !ok {
			local, space = space, ""
		}
		if space == xsltNamespacePrefix {
			space = prefix
		}
		match := el.Name == local && (space == "" || el.Space == space)
		if match != invert {
			return true
		}
	}
	return false
}

func prevElementSibling(node xml.Node) xml.Node {
	parent, _ := node.Parent().(*xml.Element)
	if parent == nil {
		return nil
	}
	for i := node.Position() - 1; i >= 0; i-- {
		if parent.Nodes[i].Type() == xml.TypeElement {
			return parent.Nodes[i]
		}
	}
	return nil
}

func nextElementSibling(node xml.Node) xml.Node {
	parent, _ := node.Parent().(*xml.Element)
	if parent == nil {
		return nil
	}
	for i := node.Position() + 1; i < len(parent.Nodes); i++ {
		if parent.Nodes[i].Type() == xml.TypeElement {
			return parent.Nodes[i]
		}
	}
	return nil
}

// createText builds a text node with runs of ASCII spaces collapsed.
// Whitespace policy proper is applied at value emission sites.
func createText(str string) *xml.Text {
	return xml.NewText(collapseSpaces(str))
}

func collapseSpaces(str string) string {
	for strings.Contains(str, "  ") {
		str = strings.ReplaceAll(str, "  ", " ")
	}
	return str
}

// cloneNode deep-copies a node so it can be grafted onto another
// document. Output nodes are reconstructed, never shared.
func cloneNode(n xml.Node) xml.Node {
	switch n := n.(type) {
	case *xml.Document:
		if root := n.Root(); root != nil {
			return cloneNode(root)
		}
		return nil
	case *xml.Element:
		c := xml.NewElement(n.QName)
		for _, a := range n.Attrs {
			c.SetAttribute(xml.NewAttribute(a.QName, a.Value()))
		}
		for i := range n.Nodes {
			if x := cloneNode(n.Nodes[i]); x != nil {
				c.Append(x)
			}
		}
		return c
	case *xml.Attribute:
		a := xml.NewAttribute(n.QName, n.Value())
		return &a
	case *xml.Text:
		return xml.NewText(n.Content)
	case *xml.CharData:
		return xml.NewCharacterData(n.Content)
	case *xml.Comment:
		return xml.NewComment(n.Content)
	case *xml.Instruction:
		c := xml.NewInstruction(n.QName)
		for _, a := range n.Attrs {
			c.SetAttribute(xml.NewAttribute(a.QName, a.Value()))
		}
		return c
	default:
		return nil
	}
}

// copyNode shallow-copies a node: an element keeps its name and
// attributes but none of its children.
func copyNode(n xml.Node) xml.Node {
	el, ok := n.(*xml.Element)
	if !ok {
		return cloneNode(n)
	}
	c := xml.NewElement(el.QName)
	for _, a := range el.Attrs {
		c.SetAttribute(xml.NewAttribute(a.QName, a.Value()))
	}
	return c
}

// textContent concatenates the text of the node and its descendants,
// without the joining space Element.Value inserts.
func textContent(n xml.Node) string {
	switch n := n.(type) {
	case *xml.Document:
		if root := n.Root(); root != nil {
			return textContent(root)
		}
		return ""
	case *xml.Element:
		var str strings.Builder
		for i := range n.Nodes {
			str.WriteString(textContent(n.Nodes[i]))
		}
		return str.String()
	default:
		return n.Value()
	}
}

// childNodes returns the children over which apply-templates iterates by
// default.
func childNodes(n xml.Node) []xml.Node {
	switch n := n.(type) {
	case *xml.Document:
		return slices.Clone(n.Nodes)
	case *xml.Element:
		return slices.Clone(n.Nodes)
	default:
		return nil
	}
}

// lookupPrefix resolves a namespace prefix against the xmlns declarations
// in scope at node. The empty prefix resolves the default namespace.
func lookupPrefix(node xml.Node, prefix string) string {
	for curr := node; curr != nil; curr = curr.Parent() {
		el, ok := curr.(*xml.Element)
		if !ok {
			continue
		}
		for _, ns := range el.Namespaces() {
			if ns.Prefix == prefix {
				return ns.Uri
			}
		}
	}
	return ""
}

// hasPreservingAncestor reports whether the closest xml:space declaration
// in scope asks for whitespace preservation.
func hasPreservingAncestor(node xml.Node) bool {
	for curr := node.Parent(); curr != nil; curr = curr.Parent() {
		el, ok := curr.(*xml.Element)
		if !ok {
			continue
		}
		ix := slices.IndexFunc(el.Attrs, func(a xml.Attribute) bool {
			return a.Space == "xml" && a.Name == "space"
		})
		if ix >= 0 {
			return el.Attrs[ix].Value() == "preserve"
		}
	}
	return false
}

var bareName = regexp.MustCompile(`^[A-Za-z_][\w.-]*(:[A-Za-z_][\w.-]*)?$`)

// selectNodes is the select shortcut of the DOM helper: a bare name token
// filters element children directly, anything else goes through the
// compiled XPath engine.
func selectNodes(ctx *Context, query string, datum xml.Node) ([]xml.Node, error) {
	if bareName.MatchString(query) {
		var res []xml.Node
		for _, n := range childNodes(datum) {
			if n.Type() != xml.TypeElement {
				continue
			}
			if isA(n, ctx.xslPrefix(), query) {
				res = append(res, n)
			}
		}
		return res, nil
	}
	items, err := ctx.ExecuteQuery(query, datum)
	if err != nil {
		return nil, err
	}
	var res []xml.Node
	for i := range items {
		res = append(res, items[i].Node())
	}
	return res, nil
}
