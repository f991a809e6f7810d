package xslt

import (
	"context"
	"fmt"

	"github.com/midbel/codecs/xml"
)

const (
	XslVersion        = "1.0"
	XslVendor         = "xcential"
	XslVendorUrl      = "https://github.com/xcential/xslt"
	XslProduct        = "xslt"
	XslProductVersion = "0.1.0"
)

const (
	xsltNamespaceUri    = "http://www.w3.org/1999/XSL/Transform"
	xsltNamespacePrefix = "xsl"
)

// includeLimit bounds the number of include/import substitutions one run
// may perform. Clearing href only protects a node against itself, so a
// cyclic include chain would splice forever without the bound.
const includeLimit = 1000

// Output records the xsl:output declaration governing serialization.
type Output struct {
	Method     string
	Version    string
	Encoding   string
	Standalone string
	MediaType  string
	Indent     bool
	OmitProlog bool
}

func defaultOutput() *Output {
	return &Output{
		Method:   "xml",
		Version:  xml.SupportedVersion,
		Encoding: xml.SupportedEncoding,
	}
}

// Stylesheet is the per-run engine value. Everything the spec calls
// process-wide state in the original (template caches, whitespace lists,
// decimal formats, fetch cache, output record) lives here, shared by
// identity across every cloned Context of the run and never across runs.
type Stylesheet struct {
	Mode string

	root   *xml.Element
	prefix string

	inputURL     string
	transformURL string

	output        *Output
	stripSpace    []string
	preserveSpace []string
	formats       map[string]*decimalFormat
	byName        map[string]*Template
	byMode        map[string][]*Template
	precedence    map[xml.Node]int
	custom        map[string]map[string]CustomFunc
	fetch         *fetchCache
	tracer        Tracer
	env           *Env
	ids           map[string]string

	runCtx   context.Context
	prepared bool
}

// NewStylesheet builds an engine around a transform document. The
// document is deep-copied first: include substitution mutates the tree
// and the caller's copy must stay reusable.
func NewStylesheet(doc *xml.Document, opts *Options) (*Stylesheet, error) {
	if opts == nil {
		opts = &Options{}
	}
	root, ok := cloneNode(doc).(*xml.Element)
	if !ok || root == nil {
		return nil, fmt.Errorf("%w: transform has no root element", errMalformed)
	}
	sheet := Stylesheet{
		Mode:         opts.Mode,
		root:         root,
		prefix:       xsltNamespacePrefix,
		inputURL:     opts.InputURL,
		transformURL: opts.TransformURL,
		output:       defaultOutput(),
		formats:      map[string]*decimalFormat{defaultFormatName: defaultDecimalFormat()},
		precedence:   make(map[xml.Node]int),
		custom:       opts.CustomFunctions,
		fetch:        newFetchCache(opts.Fetcher),
		tracer:       opts.tracer(),
		env:          emptyEnv(),
		ids:          make(map[string]string),
	}
	for _, ns := range root.Namespaces() {
		if ns.Uri == xsltNamespaceUri {
			sheet.prefix = ns.Prefix
			break
		}
	}
	sheet.defineBuiltins()
	if root.LocalName() != "stylesheet" && root.LocalName() != "transform" {
		simplified, err := sheet.simplified(root)
		if err != nil {
			return nil, err
		}
		sheet.root = simplified
	}
	return &sheet, nil
}

func (s *Stylesheet) xslPrefix() string {
	return s.prefix
}

func (s *Stylesheet) isXslInstruction(n xml.Node, name string) bool {
	el, ok := n.(*xml.Element)
	if !ok {
		return false
	}
	return el.Space == s.prefix && el.Name == name
}

func (s *Stylesheet) isXsl(n xml.Node) bool {
	el, ok := n.(*xml.Element)
	if !ok {
		return false
	}
	return el.Space == s.prefix
}

// simplified rewraps a literal result element carrying the xsl namespace
// into a stylesheet holding a single match="/" template.
func (s *Stylesheet) simplified(root *xml.Element) (*xml.Element, error) {
	declared := false
	for _, ns := range root.Namespaces() {
		if ns.Uri == xsltNamespaceUri {
			declared = true
			break
		}
	}
	if !declared {
		return nil, fmt.Errorf("%w: simplified stylesheet must declare the xsl namespace", errMalformed)
	}
	tpl := xml.NewElement(xml.QualifiedName("template", s.prefix))
	tpl.SetAttribute(xml.NewAttribute(xml.LocalName("match"), "/"))
	tpl.Append(root)

	top := xml.NewElement(xml.QualifiedName("stylesheet", s.prefix))
	top.SetAttribute(xml.NewAttribute(xml.QualifiedName(s.prefix, "xmlns"), xsltNamespaceUri))
	top.Append(tpl)
	return top, nil
}

func (s *Stylesheet) createContext(node xml.Node) *Context {
	return &Context{
		ContextNode: node,
		NodeList:    []xml.Node{node},
		Index:       1,
		Size:        1,
		Mode:        s.Mode,
		Stylesheet:  s,
		Env:         s.env,
	}
}

// prepare runs everything that must complete strictly before the first
// template fires: include/import substitution, the eager top-level
// declarations and the template caches. Top-level variables and params
// evaluate against the input document root.
func (s *Stylesheet) prepare(ctx context.Context, doc *xml.Document) error {
	if s.prepared {
		return nil
	}
	s.runCtx = ctx
	if err := s.processIncludes(); err != nil {
		return err
	}
	if err := s.loadDeclarations(doc); err != nil {
		return err
	}
	if err := s.cacheTemplates(); err != nil {
		return err
	}
	s.registerCustomFunctions()
	if err := s.registerStylesheetFunctions(); err != nil {
		return err
	}
	s.prepared = true
	return nil
}

// processIncludes splices included and imported subdocuments into the
// transform tree. The href attribute is erased before fetching so a node
// can never re-enter itself; include children land in place of the
// include element, import children append after the last sibling and
// carry an import precedence rank. Fetch failures are logged and the
// transform proceeds without the referent; a cancelled run context stops
// the pass before the next fetch.
func (s *Stylesheet) processIncludes() error {
	var (
		rank  int
		steps int
	)
	for i := 0; i < len(s.root.Nodes); {
		var (
			node      = s.root.Nodes[i]
			isInclude = s.isXslInstruction(node, "include")
			isImport  = s.isXslInstruction(node, "import")
		)
		if !isInclude && !isImport {
			i++
			continue
		}
		if steps++; steps > includeLimit {
			return fmt.Errorf("%w: include limit reached", errInvariant)
		}
		el := node.(*xml.Element)
		href, err := getAttribute(el, "href")
		if err != nil || href == "" {
			i++
			continue
		}
		el.RemoveAttribute(xml.LocalName("href"))

		if s.runCtx != nil {
			if err := s.runCtx.Err(); err != nil {
				return err
			}
		}
		children, err := s.fetchSheet(resolveURL(s.transformURL, href))
		if err != nil {
			s.tracer.Message(fmt.Sprintf("skipping %s: %s", href, err))
			s.root.RemoveNode(i)
			continue
		}
		if isInclude {
			s.root.RemoveNode(i)
			s.root.InsertNodes(i, children)
			continue
		}
		rank++
		s.root.RemoveNode(i)
		for _, c := range children {
			s.root.Append(c)
			if s.isXslInstruction(c, "template") {
				s.precedence[c] = rank
			}
		}
	}
	return nil
}

// fetchSheet retrieves and parses a referenced stylesheet, returning
// deep copies of its root's children ready for grafting.
func (s *Stylesheet) fetchSheet(url string) ([]xml.Node, error) {
	text, err := s.fetch.Fetch(s.runCtx, url)
	if err != nil {
		return nil, err
	}
	doc, err := xml.ParseString(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", errMalformed, err)
	}
	root, ok := cloneNode(doc).(*xml.Element)
	if !ok || root == nil {
		return nil, fmt.Errorf("%w: referenced sheet has no root", errMalformed)
	}
	var children []xml.Node
	for i := range root.Nodes {
		children = append(children, root.Nodes[i])
	}
	return children, nil
}

// loadDeclarations applies the eager top-level elements: output,
// strip-space, preserve-space, decimal-format and the top-level variable
// and param bindings. Templates are left for the cache pass.
func (s *Stylesheet) loadDeclarations(doc *xml.Document) error {
	ctx := s.createContext(doc)
	for _, n := range s.root.Nodes {
		el, ok := n.(*xml.Element)
		if !ok || el.Space != s.prefix {
			continue
		}
		var err error
		switch el.Name {
		case "output":
			err = s.loadOutput(el)
		case "strip-space":
			var list []string
			if list, err = loadSpaceList(el); err == nil {
				s.stripSpace = append(s.stripSpace, list...)
			}
		case "preserve-space":
			var list []string
			if list, err = loadSpaceList(el); err == nil {
				s.preserveSpace = append(s.preserveSpace, list...)
			}
		case "decimal-format":
			format := loadDecimalFormat(el)
			s.formats[format.Name] = format
		case "variable":
			err = processVariable(ctx.WithXsl(el), bindOptions{override: true})
		case "param":
			err = processVariable(ctx.WithXsl(el), bindOptions{asText: true})
		default:
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Stylesheet) loadOutput(el *xml.Element) error {
	for _, a := range el.Attrs {
		switch value := a.Value(); a.Name {
		case "method":
			s.output.Method = value
		case "version":
			s.output.Version = value
		case "encoding":
			s.output.Encoding = value
		case "standalone":
			s.output.Standalone = value
		case "media-type":
			s.output.MediaType = value
		case "indent":
			s.output.Indent = value == "yes"
		case "omit-xml-declaration":
			s.output.OmitProlog = value == "yes"
		default:
		}
	}
	return nil
}

// loadDocument fetches and parses a document referenced by document();
// fetches are cached for the run. A cancelled run context aborts it.
func (s *Stylesheet) loadDocument(url string) (*xml.Document, error) {
	if s.runCtx != nil {
		if err := s.runCtx.Err(); err != nil {
			return nil, err
		}
	}
	text, err := s.fetch.Fetch(s.runCtx, url)
	if err != nil {
		return nil, err
	}
	doc, err := xml.ParseString(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", errMalformed, err)
	}
	return doc, nil
}

// Execute runs the prepared transform against the input document and
// returns the produced top-level nodes in document order.
func (s *Stylesheet) Execute(ctx context.Context, doc *xml.Document) ([]xml.Node, error) {
	if err := s.prepare(ctx, doc); err != nil {
		return nil, transformError(err)
	}
	s.runCtx = ctx
	root := s.createContext(doc).Nest()
	seq, err := transformNode(root.WithXsl(s.root))
	if err != nil {
		s.tracer.Error(root, err)
		return nil, transformError(err)
	}
	var nodes []xml.Node
	for i := range seq {
		if n := seq[i].Node(); n != nil {
			nodes = append(nodes, n)
		}
	}
	return nodes, nil
}
