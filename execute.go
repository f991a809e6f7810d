package xslt

import (
	"fmt"
	"strings"

	"github.com/midbel/codecs/xml"
	"github.com/midbel/codecs/xpath"
)

type executeFunc func(*Context) (xpath.Sequence, error)

var executers map[string]executeFunc

func init() {
	executers = map[string]executeFunc{
		"stylesheet":             executeStylesheet,
		"transform":              executeStylesheet,
		"template":               executeNoop,
		"apply-templates":        executeApplyTemplates,
		"call-template":          executeCallTemplate,
		"for-each":               executeForeach,
		"if":                     executeIf,
		"choose":                 executeChoose,
		"when":                   executeOutOfPlace,
		"otherwise":              executeOutOfPlace,
		"copy":                   executeCopy,
		"copy-of":                executeCopyOf,
		"element":                executeElement,
		"attribute":              executeAttribute,
		"text":                   executeText,
		"value-of":               executeValueOf,
		"variable":               executeVariable,
		"param":                  executeParam,
		"with-param":             executeWithParam,
		"output":                 executeOutput,
		"strip-space":            executeStripSpace,
		"preserve-space":         executePreserveSpace,
		"decimal-format":         executeDecimalFormat,
		"comment":                executeComment,
		"processing-instruction": executePI,
		"message":                executeMessage,
		"sort":                   executeNoop,
		"function":               executeNoop,
		"include":                executeNoop,
		"import":                 executeNoop,
	}
}

// transformNode dispatches one transform node. Elements outside the XSLT
// namespace are literal result elements; unknown XSLT elements are fatal.
func transformNode(ctx *Context) (xpath.Sequence, error) {
	switch node := ctx.XslNode.(type) {
	case *xml.Text:
		return passText(ctx, node)
	case *xml.CharData:
		return xpath.Singleton(xml.NewCharacterData(node.Content)), nil
	case *xml.Comment, *xml.Instruction:
		return nil, nil
	case *xml.Element:
		if !ctx.isXsl(node) {
			return passThrough(ctx, node)
		}
		fn, ok := executers[node.Name]
		if !ok {
			return nil, ctx.errorWithContext(errImplemented)
		}
		ctx.tracer.Enter(ctx)
		defer ctx.tracer.Leave(ctx)
		seq, err := fn(ctx)
		if err != nil {
			ctx.tracer.Error(ctx, err)
		}
		return seq, err
	default:
		return nil, nil
	}
}

// passText emits transform-side text. Whitespace-only text is dropped
// unless an ancestor asks for preservation through xml:space.
func passText(ctx *Context, node *xml.Text) (xpath.Sequence, error) {
	if strings.TrimSpace(node.Content) == "" {
		if hasPreservingAncestor(node) {
			return xpath.Singleton(xml.NewText(node.Content)), nil
		}
		return nil, nil
	}
	return xpath.Singleton(createText(node.Content)), nil
}

// passThrough copies a literal result element to the output, resolving
// the attribute value templates of every attribute, and descends into its
// children. The xsl namespace declaration does not survive the copy.
func passThrough(ctx *Context, el *xml.Element) (xpath.Sequence, error) {
	clone, ok := copyNode(el).(*xml.Element)
	if !ok {
		return nil, ctx.errorWithContext(errInvariant)
	}
	clone.RemoveAttribute(xml.QualifiedName(ctx.xslPrefix(), "xmlns"))
	processAVT(ctx, clone)
	seq, err := executeConstructor(ctx, el.Nodes, constructorOptions{})
	if err != nil {
		return nil, err
	}
	for i := range seq {
		if n := seq[i].Node(); n != nil {
			clone.Append(n)
		}
	}
	return xpath.Singleton(clone), nil
}

type constructorOptions struct {
	ignoreText bool
}

// executeConstructor runs a sequence of transform children in document
// order inside a nested scope, so variables declared among them stay
// local to these siblings.
func executeConstructor(ctx *Context, nodes []xml.Node, options constructorOptions) (xpath.Sequence, error) {
	return executeNodes(ctx.Nest(), nodes, options)
}

// executeNodes is the no-clone variant: bindings land in the caller's
// scope. Template bodies run through it so with-param bindings count as
// local when the body's own xsl:param elements check for an override.
func executeNodes(ctx *Context, nodes []xml.Node, options constructorOptions) (xpath.Sequence, error) {
	var seq xpath.Sequence
	for _, n := range nodes {
		if options.ignoreText && n.Type() == xml.TypeText {
			continue
		}
		others, err := transformNode(ctx.WithXsl(n))
		if err != nil {
			return nil, err
		}
		seq.Concat(others)
	}
	return seq, nil
}

func executeNoop(_ *Context) (xpath.Sequence, error) {
	return nil, nil
}

func executeOutOfPlace(ctx *Context) (xpath.Sequence, error) {
	err := fmt.Errorf("element must appear inside xsl:choose")
	return nil, ctx.errorWithContext(err)
}

// executeStylesheet fires the root template against the input document
// root, or falls through to the element children when no template
// matches the root.
func executeStylesheet(ctx *Context) (xpath.Sequence, error) {
	el, err := getElementFromNode(ctx.XslNode)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	if tpl := ctx.rootTemplate(); tpl != nil {
		return executeTemplateBody(ctx.Nest(), tpl)
	}
	return executeConstructor(ctx, el.Nodes, constructorOptions{ignoreText: true})
}

// executeTemplateBody runs the template children in the given scope
// without opening another one: the caller owns the scope so with-param
// bindings stay visible as local.
func executeTemplateBody(ctx *Context, tpl *Template) (xpath.Sequence, error) {
	return executeNodes(ctx, tpl.node.Nodes, constructorOptions{})
}

// applyParams binds the with-param children of the calling instruction
// into the given scope, which is shared with the callee on purpose.
// Every value evaluates against the caller's context before any binding
// lands, so one with-param never observes its siblings.
func applyParams(ctx *Context, el *xml.Element) error {
	type binding struct {
		name  string
		value any
	}
	var bindings []binding
	for _, n := range el.Nodes {
		if n.Type() != xml.TypeElement {
			continue
		}
		if ctx.isXslInstruction(n, "sort") {
			continue
		}
		if !ctx.isXslInstruction(n, "with-param") {
			return ctx.errorWithContext(fmt.Errorf("%s: unexpected child", n.QualifiedName()))
		}
		child, err := getElementFromNode(n)
		if err != nil {
			return err
		}
		ident, err := getAttribute(child, "name")
		if err != nil {
			return ctx.errorWithContext(err)
		}
		var value any
		switch {
		case len(child.Nodes) > 0:
			seq, err := executeConstructor(ctx.WithXsl(n), child.Nodes, constructorOptions{})
			if err != nil {
				return err
			}
			value = seq
		default:
			query, err := getAttribute(child, "select")
			if err != nil {
				return ctx.errorWithContext(err)
			}
			seq, err := ctx.ExecuteQuery(query, ctx.ContextNode)
			if err != nil {
				return ctx.errorWithContext(err)
			}
			value = seq
		}
		bindings = append(bindings, binding{name: ident, value: value})
	}
	for _, b := range bindings {
		ctx.SetVariable(b.name, b.value)
	}
	return nil
}

func executeApplyTemplates(ctx *Context) (xpath.Sequence, error) {
	el, err := getElementFromNode(ctx.XslNode)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	var candidates []xml.Node
	if query, err := getAttribute(el, "select"); err == nil {
		if candidates, err = selectNodes(ctx, query, ctx.ContextNode); err != nil {
			return nil, ctx.errorWithContext(err)
		}
	} else {
		candidates = childNodes(ctx.ContextNode)
	}
	// mode is never inherited: without a mode attribute the default mode
	// applies, whatever template the instruction sits in
	mode, _ := getAttribute(el, "mode")
	ctx = ctx.WithMode(mode)
	// with-param and sort pre-pass, evaluated once against the caller's
	// current node
	pre := ctx.Nest()
	if err := applyParams(pre, el); err != nil {
		return nil, err
	}
	var sorts []xml.Node
	for _, n := range el.Nodes {
		if ctx.isXslInstruction(n, "sort") {
			sorts = append(sorts, n)
		}
	}
	candidates, err = sortNodes(pre, sorts, candidates)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}

	var (
		templates = ctx.templatesForMode(pre.Mode)
		seq       xpath.Sequence
	)
	for i := range candidates {
		var (
			cand  = pre.WithPosition(candidates, i).Nest()
			fired bool
		)
		cand.Env.Merge(pre.Env)
		for _, tpl := range templates {
			if !tpl.Matches(cand, candidates[i]) {
				continue
			}
			res, err := executeTemplateBody(cand, tpl)
			if err != nil {
				return nil, err
			}
			seq.Concat(res)
			fired = true
			break
		}
		if !fired && candidates[i].Type() == xml.TypeText {
			seq.Append(xpath.NewNodeItem(xml.NewText(candidates[i].Value())))
		}
	}
	return seq, nil
}

func executeCallTemplate(ctx *Context) (xpath.Sequence, error) {
	el, err := getElementFromNode(ctx.XslNode)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	name, err := getAttribute(el, "name")
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	tpl, ok := ctx.templateByName(name)
	if !ok {
		return nil, ctx.errorWithContext(fmt.Errorf("%s: template not found", name))
	}
	sub := ctx.Nest()
	if err := applyParams(sub, el); err != nil {
		return nil, err
	}
	return executeTemplateBody(sub, tpl)
}

func executeForeach(ctx *Context) (xpath.Sequence, error) {
	el, err := getElementFromNode(ctx.XslNode)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	query, err := getAttribute(el, "select")
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	list, err := selectNodes(ctx, query, ctx.ContextNode)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	var (
		sorts []xml.Node
		body  []xml.Node
	)
	for _, n := range el.Nodes {
		if ctx.isXslInstruction(n, "sort") {
			sorts = append(sorts, n)
			continue
		}
		body = append(body, n)
	}
	list, err = sortNodes(ctx, sorts, list)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	var seq xpath.Sequence
	for i := range list {
		sub := ctx.WithPosition(list, i)
		others, err := executeConstructor(sub, body, constructorOptions{})
		if err != nil {
			return nil, err
		}
		seq.Concat(others)
	}
	return seq, nil
}

func executeIf(ctx *Context) (xpath.Sequence, error) {
	el, err := getElementFromNode(ctx.XslNode)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	test, err := getAttribute(el, "test")
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	ok, err := ctx.TestNode(test, ctx.ContextNode)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	if !ok {
		return nil, nil
	}
	return executeConstructor(ctx, el.Nodes, constructorOptions{})
}

func executeChoose(ctx *Context) (xpath.Sequence, error) {
	el, err := getElementFromNode(ctx.XslNode)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	for _, n := range el.Nodes {
		if n.Type() != xml.TypeElement {
			continue
		}
		child, err := getElementFromNode(n)
		if err != nil {
			return nil, err
		}
		switch {
		case ctx.isXslInstruction(n, "when"):
			test, err := getAttribute(child, "test")
			if err != nil {
				return nil, ctx.errorWithContext(err)
			}
			ok, err := ctx.TestNode(test, ctx.ContextNode)
			if err != nil {
				return nil, ctx.errorWithContext(err)
			}
			if ok {
				return executeConstructor(ctx, child.Nodes, constructorOptions{})
			}
		case ctx.isXslInstruction(n, "otherwise"):
			return executeConstructor(ctx, child.Nodes, constructorOptions{})
		default:
			err := fmt.Errorf("%s: unexpected element - want xsl:when", n.QualifiedName())
			return nil, ctx.errorWithContext(err)
		}
	}
	return nil, nil
}

func executeCopy(ctx *Context) (xpath.Sequence, error) {
	el, err := getElementFromNode(ctx.XslNode)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	switch node := ctx.ContextNode.(type) {
	case *xml.Document:
		return executeConstructor(ctx, el.Nodes, constructorOptions{})
	case *xml.Element:
		clone := xml.NewElement(node.QName)
		seq, err := executeConstructor(ctx, el.Nodes, constructorOptions{})
		if err != nil {
			return nil, err
		}
		for i := range seq {
			if n := seq[i].Node(); n != nil {
				clone.Append(n)
			}
		}
		return xpath.Singleton(clone), nil
	default:
		return xpath.Singleton(cloneNode(ctx.ContextNode)), nil
	}
}

func executeCopyOf(ctx *Context) (xpath.Sequence, error) {
	el, err := getElementFromNode(ctx.XslNode)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	query, err := getAttribute(el, "select")
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	items, err := ctx.ExecuteQuery(query, ctx.ContextNode)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	seq := xpath.NewSequence()
	for i := range items {
		if c := cloneNode(items[i].Node()); c != nil {
			seq.Append(xpath.NewNodeItem(c))
		}
	}
	return seq, nil
}

// elementName resolves the qualified name of a constructed element or
// attribute: the name attribute is an AVT, the namespace comes from the
// namespace attribute or from a prefix declaration in scope at the
// current input node.
func elementName(ctx *Context, el *xml.Element) (xml.QName, error) {
	var qn xml.QName
	name, err := getAttribute(el, "name")
	if err != nil {
		return qn, err
	}
	qn, err = xml.ParseName(resolveExpression(ctx, name))
	if err != nil {
		return qn, err
	}
	if uri, err := getAttribute(el, "namespace"); err == nil {
		qn.Uri = resolveExpression(ctx, uri)
	} else if qn.Space != "" && ctx.ContextNode != nil {
		qn.Uri = lookupPrefix(ctx.ContextNode, qn.Space)
	}
	return qn, nil
}

func executeElement(ctx *Context) (xpath.Sequence, error) {
	el, err := getElementFromNode(ctx.XslNode)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	qn, err := elementName(ctx, el)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	curr := xml.NewElement(qn)
	seq, err := executeConstructor(ctx, el.Nodes, constructorOptions{})
	if err != nil {
		return nil, err
	}
	for i := range seq {
		if n := seq[i].Node(); n != nil {
			curr.Append(n)
		}
	}
	return xpath.Singleton(curr), nil
}

func executeAttribute(ctx *Context) (xpath.Sequence, error) {
	el, err := getElementFromNode(ctx.XslNode)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	qn, err := elementName(ctx, el)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	var items xpath.Sequence
	if query, err := getAttribute(el, "select"); err == nil {
		if len(el.Nodes) != 0 {
			err := fmt.Errorf("select attribute can not be used with children")
			return nil, ctx.errorWithContext(err)
		}
		if items, err = ctx.ExecuteQuery(query, ctx.ContextNode); err != nil {
			return nil, ctx.errorWithContext(err)
		}
	} else if items, err = executeConstructor(ctx, el.Nodes, constructorOptions{}); err != nil {
		return nil, err
	}
	attr := xml.NewAttribute(qn, sequenceText(items))
	return xpath.Singleton(&attr), nil
}

func executeText(ctx *Context) (xpath.Sequence, error) {
	el, err := getElementFromNode(ctx.XslNode)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	value := textContent(el)
	if doe, err := getAttribute(el, "disable-output-escaping"); err == nil && doe == "yes" {
		value = escapeSentinels(value)
	}
	return xpath.Singleton(xml.NewText(value)), nil
}

func executeValueOf(ctx *Context) (xpath.Sequence, error) {
	el, err := getElementFromNode(ctx.XslNode)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	query, err := getAttribute(el, "select")
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	items, err := ctx.ExecuteQuery(query, ctx.ContextNode)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	var value string
	if !items.Empty() {
		value = toString(items[0])
	}
	elctx, _ := ctx.ContextNode.(*xml.Element)
	value = ctx.processWhitespace(value, elctx)
	if doe, err := getAttribute(el, "disable-output-escaping"); err == nil && doe == "yes" {
		value = escapeSentinels(value)
	}
	return xpath.Singleton(xml.NewText(value)), nil
}

func executeVariable(ctx *Context) (xpath.Sequence, error) {
	return nil, processVariable(ctx, bindOptions{override: true})
}

func executeParam(ctx *Context) (xpath.Sequence, error) {
	return nil, processVariable(ctx, bindOptions{asText: true})
}

func executeWithParam(ctx *Context) (xpath.Sequence, error) {
	return nil, processVariable(ctx, bindOptions{override: true})
}

func executeOutput(ctx *Context) (xpath.Sequence, error) {
	el, err := getElementFromNode(ctx.XslNode)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	return nil, ctx.loadOutput(el)
}

func executeStripSpace(ctx *Context) (xpath.Sequence, error) {
	el, err := getElementFromNode(ctx.XslNode)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	list, err := loadSpaceList(el)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	ctx.stripSpace = append(ctx.stripSpace, list...)
	return nil, nil
}

func executePreserveSpace(ctx *Context) (xpath.Sequence, error) {
	el, err := getElementFromNode(ctx.XslNode)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	list, err := loadSpaceList(el)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	ctx.preserveSpace = append(ctx.preserveSpace, list...)
	return nil, nil
}

func executeDecimalFormat(ctx *Context) (xpath.Sequence, error) {
	el, err := getElementFromNode(ctx.XslNode)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	format := loadDecimalFormat(el)
	ctx.formats[format.Name] = format
	return nil, nil
}

func executeComment(ctx *Context) (xpath.Sequence, error) {
	el, err := getElementFromNode(ctx.XslNode)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	seq, err := executeConstructor(ctx, el.Nodes, constructorOptions{})
	if err != nil {
		return nil, err
	}
	return xpath.Singleton(xml.NewComment(sequenceText(seq))), nil
}

func executePI(ctx *Context) (xpath.Sequence, error) {
	el, err := getElementFromNode(ctx.XslNode)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	name, err := getAttribute(el, "name")
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	qn, err := xml.ParseName(resolveExpression(ctx, name))
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	if qn.LocalName() == "xml" {
		err := fmt.Errorf("processing-instruction can not have 'xml' name")
		return nil, ctx.errorWithContext(err)
	}
	seq, err := executeConstructor(ctx, el.Nodes, constructorOptions{})
	if err != nil {
		return nil, err
	}
	pi := xml.NewInstruction(qn)
	for i := range seq {
		if a, ok := seq[i].Node().(*xml.Attribute); ok {
			pi.SetAttribute(*a)
		}
	}
	return xpath.Singleton(pi), nil
}

func executeMessage(ctx *Context) (xpath.Sequence, error) {
	el, err := getElementFromNode(ctx.XslNode)
	if err != nil {
		return nil, ctx.errorWithContext(err)
	}
	seq, err := executeConstructor(ctx, el.Nodes, constructorOptions{})
	if err != nil {
		return nil, err
	}
	ctx.tracer.Message(sequenceText(seq))
	if quit, err := getAttribute(el, "terminate"); err == nil && quit == "yes" {
		return nil, ErrTerminate
	}
	return nil, nil
}

type bindOptions struct {
	override bool
	asText   bool
	value    any
}

// processVariable computes and binds the value of xsl:variable, xsl:param
// or xsl:with-param: an explicit override value, else the children
// evaluated into a fragment, else the select expression, else a parent
// binding of the same name, else the empty string. Params never override
// an existing local binding.
func processVariable(ctx *Context, options bindOptions) error {
	el, err := getElementFromNode(ctx.XslNode)
	if err != nil {
		return ctx.errorWithContext(err)
	}
	ident, err := getAttribute(el, "name")
	if err != nil {
		return ctx.errorWithContext(err)
	}
	if !options.override && ctx.Env.definedLocally(ident) {
		return nil
	}

	var value any
	switch {
	case options.value != nil:
		value = options.value
	case len(el.Nodes) > 0:
		seq, err := executeConstructor(ctx, el.Nodes, constructorOptions{})
		if err != nil {
			return err
		}
		value = seq
	default:
		if query, err := getAttribute(el, "select"); err == nil {
			seq, err := ctx.ExecuteQuery(query, ctx.ContextNode)
			if err != nil {
				return ctx.errorWithContext(err)
			}
			value = seq
		} else if expr, err := ctx.Env.Resolve(ident); err == nil {
			if options.override {
				ctx.Env.Define(ident, expr)
			} else {
				ctx.Env.Params.Define(ident, expr)
			}
			return nil
		} else {
			value = ""
		}
	}

	if options.asText {
		if seq, ok := value.(xpath.Sequence); ok {
			value = sequenceText(seq)
		}
	}
	if str, ok := value.(string); ok {
		value = ctx.processWhitespace(str, el)
	}
	if options.override {
		ctx.SetVariable(ident, value)
	} else {
		ctx.SetParam(ident, value)
	}
	return nil
}

var sentinelEscaper = strings.NewReplacer(
	"<", "[[<]]",
	">", "[[>]]",
	"'", "[[']]",
	"\"", "[[\"]]",
	"&", "[[&]]",
)

// escapeSentinels wraps the five XML delimiters so the post-serialization
// pass can restore them verbatim, implementing disable-output-escaping.
func escapeSentinels(str string) string {
	return sentinelEscaper.Replace(str)
}
