package xslt

import (
	"slices"
	"strconv"

	"github.com/midbel/codecs/xml"
	"github.com/midbel/codecs/xpath"
)

// defaultModeKey buckets the templates declared without a mode.
const defaultModeKey = "_default"

// Template is one cached xsl:template. Precedence records the import
// rank of the block the template arrived with; the principal transform
// is rank zero and wins ties.
type Template struct {
	Name       string
	Match      string
	Mode       string
	Priority   float64
	Precedence int

	order int
	node  *xml.Element
}

func loadTemplate(el *xml.Element) (*Template, error) {
	tpl := Template{
		node: el,
	}
	for _, a := range el.Attrs {
		switch attr := a.Value(); a.Name {
		case "priority":
			p, err := strconv.ParseFloat(attr, 64)
			if err != nil {
				return nil, err
			}
			tpl.Priority = p
		case "name":
			tpl.Name = attr
		case "match":
			tpl.Match = attr
		case "mode":
			tpl.Mode = attr
		default:
		}
	}
	return &tpl, nil
}

func (t *Template) isRoot() bool {
	return t.Match == "/"
}

// Matches reports whether the template's pattern selects node: the
// compiled match expression, anchored at node or one of its ancestors,
// must return a set containing node itself. Mode equality is the
// caller's concern through the mode buckets.
func (t *Template) Matches(ctx *Context, node xml.Node) bool {
	if t.Match == "" {
		return false
	}
	expr, err := ctx.CompileQuery(t.Match)
	if err != nil {
		return false
	}
	for curr := node; curr != nil; curr = curr.Parent() {
		items, err := expr.Find(curr)
		if err != nil {
			break
		}
		if items.Empty() {
			continue
		}
		ok := slices.ContainsFunc(items, func(i xpath.Item) bool {
			n := i.Node()
			return n != nil && n.Identity() == node.Identity()
		})
		if ok {
			return true
		}
	}
	return false
}

// cacheTemplates builds the per-run template caches: templates by name
// and, per mode, in (import precedence, document order). The pass runs
// once, after include substitution and before the first template fires.
func (s *Stylesheet) cacheTemplates() error {
	s.byName = make(map[string]*Template)
	s.byMode = make(map[string][]*Template)
	var order int
	for _, n := range s.root.Nodes {
		if !s.isXslInstruction(n, "template") {
			continue
		}
		el, err := getElementFromNode(n)
		if err != nil {
			return err
		}
		tpl, err := loadTemplate(el)
		if err != nil {
			return err
		}
		tpl.order = order
		tpl.Precedence = s.precedence[n]
		order++
		if tpl.Name != "" {
			if _, ok := s.byName[tpl.Name]; !ok {
				s.byName[tpl.Name] = tpl
			}
		}
		if tpl.Match != "" {
			key := tpl.Mode
			if key == "" {
				key = defaultModeKey
			}
			s.byMode[key] = append(s.byMode[key], tpl)
		}
	}
	for _, list := range s.byMode {
		slices.SortStableFunc(list, func(t1, t2 *Template) int {
			if t1.Precedence != t2.Precedence {
				return t1.Precedence - t2.Precedence
			}
			return t1.order - t2.order
		})
	}
	return nil
}

// templatesForMode returns the candidates apply-templates walks for the
// given mode, already ordered.
func (s *Stylesheet) templatesForMode(mode string) []*Template {
	key := mode
	if key == "" {
		key = defaultModeKey
	}
	return s.byMode[key]
}

func (s *Stylesheet) templateByName(name string) (*Template, bool) {
	tpl, ok := s.byName[name]
	return tpl, ok
}

// rootTemplate returns the first template matching the document root in
// the engine's current mode.
func (s *Stylesheet) rootTemplate() *Template {
	for _, tpl := range s.templatesForMode(s.Mode) {
		if tpl.isRoot() {
			return tpl
		}
	}
	return nil
}
