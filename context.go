package xslt

import (
	"regexp"
	"slices"

	"github.com/midbel/codecs/environ"
	"github.com/midbel/codecs/xml"
	"github.com/midbel/codecs/xpath"
)

// Context is the per-invocation evaluation state. Clones share the
// Stylesheet (and through it every cache of the run) by identity; the
// iteration coordinates are per clone. Only Nest opens a new variable
// scope: the other clone constructors share the caller's scope.
type Context struct {
	XslNode     xml.Node
	ContextNode xml.Node
	NodeList    []xml.Node
	Index       int
	Size        int
	Mode        string
	Depth       int

	*Stylesheet
	*Env
}

func (c *Context) errorWithContext(err error) error {
	if c.XslNode == nil {
		return err
	}
	return errorWithContext(c.XslNode.QualifiedName(), err)
}

func (c *Context) WithXsl(xslNode xml.Node) *Context {
	return c.clone(xslNode, c.ContextNode)
}

func (c *Context) WithXpath(ctxNode xml.Node) *Context {
	return c.clone(c.XslNode, ctxNode)
}

// WithPosition focuses one entry of a node list; position() and last()
// observe the given coordinates.
func (c *Context) WithPosition(list []xml.Node, at int) *Context {
	child := c.clone(c.XslNode, list[at])
	child.NodeList = list
	child.Index = at + 1
	child.Size = len(list)
	return child
}

// WithMode returns a clone carrying the given mode. The other clone
// constructors carry the caller's mode over unchanged; apply-templates
// sets the mode from its own mode attribute, so a template's mode does
// not leak into the templates it applies.
func (c *Context) WithMode(mode string) *Context {
	child := c.clone(c.XslNode, c.ContextNode)
	child.Mode = mode
	return child
}

// Nest opens a child variable scope so bindings declared among sibling
// instructions stay local to them.
func (c *Context) Nest() *Context {
	child := c.clone(c.XslNode, c.ContextNode)
	child.Env = child.Env.Sub()
	return child
}

func (c *Context) clone(xslNode, ctxNode xml.Node) *Context {
	child := Context{
		XslNode:     xslNode,
		ContextNode: ctxNode,
		NodeList:    c.NodeList,
		Index:       c.Index,
		Size:        c.Size,
		Mode:        c.Mode,
		Depth:       c.Depth + 1,
		Stylesheet:  c.Stylesheet,
		Env:         c.Env,
	}
	return &child
}

// Env is one link of the variable scope chain. Lookup falls through to
// the parent; bindings shadow.
type Env struct {
	Vars     environ.Environ[xpath.Expr]
	Params   environ.Environ[xpath.Expr]
	Builtins environ.Environ[xpath.BuiltinFunc]
}

func emptyEnv() *Env {
	return &Env{
		Vars:     environ.Empty[xpath.Expr](),
		Params:   environ.Empty[xpath.Expr](),
		Builtins: environ.Enclosed(xpath.DefaultBuiltin()),
	}
}

func (e *Env) Sub() *Env {
	return &Env{
		Vars:     environ.Enclosed(e.Vars),
		Params:   environ.Enclosed(e.Params),
		Builtins: e.Builtins,
	}
}

// Resolve makes Env usable as the variable resolver of a compiled query.
func (e *Env) Resolve(ident string) (xpath.Expr, error) {
	expr, err := e.Vars.Resolve(ident)
	if err == nil {
		return expr, nil
	}
	return e.Params.Resolve(ident)
}

func (e *Env) Define(ident string, expr xpath.Expr) {
	e.Vars.Define(ident, expr)
}

func (e *Env) Names() []string {
	return slices.Concat(e.Vars.Names(), e.Params.Names())
}

func (e *Env) Len() int {
	return e.Vars.Len() + e.Params.Len()
}

// Merge copies the other scope's local bindings into this scope's local
// layer, making them count as local for the param override rule.
func (e *Env) Merge(other *Env) {
	if m, ok := e.Vars.(interface {
		Merge(environ.Environ[xpath.Expr])
	}); ok {
		m.Merge(other.Vars)
	}
	if m, ok := e.Params.(interface {
		Merge(environ.Environ[xpath.Expr])
	}); ok {
		m.Merge(other.Params)
	}
}

// definedLocally reports whether the current scope, parents excluded,
// already binds the name.
func (e *Env) definedLocally(ident string) bool {
	return slices.Contains(e.Vars.Names(), ident) ||
		slices.Contains(e.Params.Names(), ident)
}

var numberValue = regexp.MustCompile(`^\d+(\.\d*)?$`)

// bindValue boxes a raw value into an XPath expression. Strings holding
// a boolean or a plain number are coerced to the matching variant.
func bindValue(value any) xpath.Expr {
	switch v := value.(type) {
	case nil:
		return xpath.NewValueFromSequence(xpath.Singleton(""))
	case xpath.Sequence:
		return xpath.NewValueFromSequence(v)
	case []xml.Node:
		var seq xpath.Sequence
		for i := range v {
			seq.Append(xpath.NewNodeItem(v[i]))
		}
		return xpath.NewValueFromSequence(seq)
	case xml.Node:
		return xpath.NewValueFromSequence(xpath.Singleton(v))
	case string:
		switch {
		case v == "true":
			return xpath.NewValueFromSequence(xpath.Singleton(true))
		case v == "false":
			return xpath.NewValueFromSequence(xpath.Singleton(false))
		case numberValue.MatchString(v):
			f, _ := toNumber(v)
			return xpath.NewValueFromSequence(xpath.Singleton(f))
		default:
			return xpath.NewValueFromSequence(xpath.Singleton(v))
		}
	case int:
		return xpath.NewValueFromSequence(xpath.Singleton(float64(v)))
	default:
		return xpath.NewValueFromSequence(xpath.Singleton(value))
	}
}

// SetVariable binds name in the current scope, shadowing any parent
// binding with the same name.
func (c *Context) SetVariable(ident string, value any) {
	c.Env.Define(ident, bindValue(value))
}

// SetParam binds name unless the current scope already holds a binding:
// params never override.
func (c *Context) SetParam(ident string, value any) {
	if c.Env.definedLocally(ident) {
		return
	}
	c.Env.Params.Define(ident, bindValue(value))
}

// GetVariable evaluates the binding nearest to the current scope, or
// returns an error when the chain does not know the name.
func (c *Context) GetVariable(ident string) (xpath.Sequence, error) {
	expr, err := c.Env.Resolve(ident)
	if err != nil {
		return nil, err
	}
	return expr.Find(c.ContextNode)
}

// queryBuiltins chains the focus-dependent functions in front of the
// function resolver so position(), last() and current() observe this
// context.
func (c *Context) queryBuiltins() environ.Environ[xpath.BuiltinFunc] {
	env := environ.Enclosed(c.Env.Builtins)
	env.Define("position", func(_ xpath.Context, _ []xpath.Expr) (xpath.Sequence, error) {
		return xpath.Singleton(float64(c.Index)), nil
	})
	env.Define("last", func(_ xpath.Context, _ []xpath.Expr) (xpath.Sequence, error) {
		return xpath.Singleton(float64(c.Size)), nil
	})
	env.Define("current", func(_ xpath.Context, _ []xpath.Expr) (xpath.Sequence, error) {
		return xpath.Singleton(c.ContextNode), nil
	})
	return env
}

func (c *Context) CompileQuery(query string) (*xpath.Query, error) {
	q, err := xpath.Build(query)
	if err != nil {
		return nil, errorWithContext(query, errXpath)
	}
	q.Environ = c.Env
	q.Builtins = c.queryBuiltins()
	return q, nil
}

func (c *Context) ExecuteQuery(query string, datum xml.Node) (xpath.Sequence, error) {
	if query == "" {
		return xpath.Singleton(xpath.NewNodeItem(datum)), nil
	}
	q, err := c.CompileQuery(query)
	if err != nil {
		return nil, err
	}
	items, err := q.Find(datum)
	if err != nil {
		return nil, errorWithContext(query, errXpath)
	}
	return items, nil
}

func (c *Context) TestNode(query string, datum xml.Node) (bool, error) {
	items, err := c.ExecuteQuery(query, datum)
	if err != nil {
		return false, err
	}
	return items.True(), nil
}
