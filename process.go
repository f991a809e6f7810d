// Package xslt is a tree-walking interpreter for XSLT 1.0 stylesheets
// with a handful of 2.0 conveniences. It consumes an input document and a
// transform document through the codecs DOM, matches templates against
// input nodes via XPath patterns and grows the output as a document
// fragment that serialization turns back into text.
package xslt

import (
	"context"
	"fmt"
	"os"

	"github.com/midbel/codecs/xml"
)

// Options tunes one transform run.
type Options struct {
	// InputURL and TransformURL are the base URLs relative references
	// resolve against (document(), xsl:include, xsl:import).
	InputURL     string
	TransformURL string

	// Mode selects the initial template mode.
	Mode string

	// CustomFunctions maps namespace URI to local name to native
	// implementations callable from XPath expressions.
	CustomFunctions map[string]map[string]CustomFunc

	// Debug traces every instruction to stderr when no Tracer is given.
	Debug  bool
	Tracer Tracer

	// Fetcher overrides how referenced documents are retrieved.
	Fetcher Fetcher
}

func (o *Options) tracer() Tracer {
	if o.Tracer != nil {
		return o.Tracer
	}
	if o.Debug {
		return Stderr()
	}
	return NoopTracer()
}

// Process applies the transform document to the input document and
// returns the serialized result. Parameters are visible to top-level
// xsl:param elements under their declared names. On failure no partial
// output is returned.
func Process(ctx context.Context, input, transform *xml.Document, params map[string]any, opts *Options) (string, error) {
	sheet, err := NewStylesheet(transform, opts)
	if err != nil {
		return "", transformError(err)
	}
	for name, value := range params {
		sheet.env.Params.Define(name, bindValue(value))
	}
	nodes, err := sheet.Execute(ctx, input)
	if err != nil {
		return "", err
	}
	out, err := sheet.Serialize(nodes)
	if err != nil {
		return "", transformError(err)
	}
	return out, nil
}

// Request is the xslt4node-compatible specification accepted by
// Transform. Exactly one source and one stylesheet field must be set.
type Request struct {
	Source    string
	SourceDoc *xml.Document

	Stylesheet     string
	StylesheetDoc  *xml.Document
	StylesheetPath string

	Params          map[string]any
	CustomFunctions map[string]map[string]CustomFunc
	Debug           bool
}

// Transform resolves the request and reports through the callback: the
// error first, then the output. A fatal failure produces no output.
func Transform(ctx context.Context, req Request, fn func(error, string)) {
	out, err := runRequest(ctx, req)
	if err != nil {
		fn(err, "")
		return
	}
	fn(nil, out)
}

func runRequest(ctx context.Context, req Request) (string, error) {
	input, err := requestSource(req)
	if err != nil {
		return "", transformError(err)
	}
	transform, base, err := requestStylesheet(req)
	if err != nil {
		return "", transformError(err)
	}
	opts := Options{
		TransformURL:    base,
		CustomFunctions: req.CustomFunctions,
		Debug:           req.Debug,
	}
	return Process(ctx, input, transform, req.Params, &opts)
}

func requestSource(req Request) (*xml.Document, error) {
	switch {
	case req.SourceDoc != nil:
		return req.SourceDoc, nil
	case req.Source != "":
		doc, err := xml.ParseString(req.Source)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", errMalformed, err)
		}
		return doc, nil
	default:
		return nil, fmt.Errorf("no source given")
	}
}

func requestStylesheet(req Request) (*xml.Document, string, error) {
	switch {
	case req.StylesheetDoc != nil:
		return req.StylesheetDoc, "", nil
	case req.Stylesheet != "":
		doc, err := xml.ParseString(req.Stylesheet)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %s", errMalformed, err)
		}
		return doc, "", nil
	case req.StylesheetPath != "":
		doc, err := loadDocument(req.StylesheetPath)
		if err != nil {
			return nil, "", err
		}
		return doc, req.StylesheetPath, nil
	default:
		return nil, "", fmt.Errorf("no stylesheet given")
	}
}

func loadDocument(file string) (*xml.Document, error) {
	r, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	p := xml.NewParser(r)
	doc, err := p.Parse()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", errMalformed, err)
	}
	return doc, nil
}

// Load parses a stylesheet file into an engine whose relative references
// resolve against the file's directory.
func Load(file string) (*Stylesheet, error) {
	doc, err := loadDocument(file)
	if err != nil {
		return nil, err
	}
	opts := Options{
		TransformURL: file,
	}
	return NewStylesheet(doc, &opts)
}

// Generate runs the transform against doc and returns the serialized
// result, a convenience wrapper over Execute and Serialize.
func (s *Stylesheet) Generate(ctx context.Context, doc *xml.Document) (string, error) {
	nodes, err := s.Execute(ctx, doc)
	if err != nil {
		return "", err
	}
	return s.Serialize(nodes)
}
