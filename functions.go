package xslt

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"

	"github.com/midbel/codecs/xml"
	"github.com/midbel/codecs/xpath"
)

// CustomFunc is a native function a caller contributes to the transform
// under a namespace of its own. Arguments arrive as strings and the
// result is surfaced to XPath as a string.
type CustomFunc func(args ...string) (string, error)

func evalToString(ctx xpath.Context, arg xpath.Expr) (string, error) {
	items, err := arg.Find(ctx)
	if err != nil {
		return "", err
	}
	return sequenceText(items), nil
}

func evalToNumber(ctx xpath.Context, arg xpath.Expr) (float64, error) {
	str, err := evalToString(ctx, arg)
	if err != nil {
		return 0, err
	}
	return toNumber(str)
}

// defineBuiltins registers the engine's function library in front of the
// XPath defaults. Custom functions and xsl:function closures registered
// later are defined in the same layer, keyed by name; the defaults sit
// behind that layer.
func (s *Stylesheet) defineBuiltins() {
	define := s.env.Builtins.Define
	define("function-available", s.callFunctionAvailable)
	define("current", callCurrent)
	define("document", s.callDocument)
	define("format-number", s.callFormatNumber)
	define("replace", callReplace)
	define("matches", callMatches)
	define("lower-case", callLowerCase)
	define("upper-case", callUpperCase)
	define("generate-id", s.callGenerateId)
	define("system-property", callSystemProperty)
}

func callCurrent(ctx xpath.Context, _ []xpath.Expr) (xpath.Sequence, error) {
	return xpath.Singleton(ctx.Node), nil
}

func (s *Stylesheet) callFunctionAvailable(ctx xpath.Context, args []xpath.Expr) (xpath.Sequence, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("invalid number of arguments")
	}
	name, err := evalToString(ctx, args[0])
	if err != nil {
		return nil, err
	}
	switch name {
	case "position", "last", "current":
		return xpath.Singleton(true), nil
	}
	_, err = s.env.Builtins.Resolve(name)
	return xpath.Singleton(err == nil), nil
}

func (s *Stylesheet) callDocument(ctx xpath.Context, args []xpath.Expr) (xpath.Sequence, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("invalid number of arguments")
	}
	ref, err := evalToString(ctx, args[0])
	if err != nil {
		return nil, err
	}
	doc, err := s.loadDocument(resolveURL(s.inputURL, ref))
	if err != nil {
		return nil, err
	}
	return xpath.Singleton(xpath.NewNodeItem(doc)), nil
}

func (s *Stylesheet) callFormatNumber(ctx xpath.Context, args []xpath.Expr) (xpath.Sequence, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, fmt.Errorf("invalid number of arguments")
	}
	value, err := evalToNumber(ctx, args[0])
	if err != nil {
		return nil, err
	}
	picture, err := evalToString(ctx, args[1])
	if err != nil {
		return nil, err
	}
	name := defaultFormatName
	if len(args) == 3 {
		if name, err = evalToString(ctx, args[2]); err != nil {
			return nil, err
		}
	}
	format, ok := s.formats[name]
	if !ok {
		return nil, fmt.Errorf("%s: decimal format not found", name)
	}
	str, err := format.Format(value, picture)
	if err != nil {
		return nil, err
	}
	return xpath.Singleton(str), nil
}

var regexFlags = map[rune]string{
	'i': "i",
	'm': "m",
	's': "s",
}

func compileRegex(pattern, flags string) (*regexp.Regexp, error) {
	var mods strings.Builder
	for _, f := range flags {
		mod, ok := regexFlags[f]
		if !ok {
			return nil, fmt.Errorf("%q: unsupported regex flag", f)
		}
		mods.WriteString(mod)
	}
	if mods.Len() > 0 {
		pattern = "(?" + mods.String() + ")" + pattern
	}
	return regexp.Compile(pattern)
}

func callReplace(ctx xpath.Context, args []xpath.Expr) (xpath.Sequence, error) {
	if len(args) < 3 || len(args) > 4 {
		return nil, fmt.Errorf("invalid number of arguments")
	}
	var values [4]string
	for i := range args {
		v, err := evalToString(ctx, args[i])
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	re, err := compileRegex(values[1], values[3])
	if err != nil {
		return nil, err
	}
	return xpath.Singleton(re.ReplaceAllString(values[0], values[2])), nil
}

func callMatches(ctx xpath.Context, args []xpath.Expr) (xpath.Sequence, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("invalid number of arguments")
	}
	text, err := evalToString(ctx, args[0])
	if err != nil {
		return nil, err
	}
	pattern, err := evalToString(ctx, args[1])
	if err != nil {
		return nil, err
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	if re.MatchString(text) {
		return xpath.Singleton("true"), nil
	}
	return xpath.Singleton("false"), nil
}

func callLowerCase(ctx xpath.Context, args []xpath.Expr) (xpath.Sequence, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("invalid number of arguments")
	}
	str, err := evalToString(ctx, args[0])
	if err != nil {
		return nil, err
	}
	return xpath.Singleton(strings.ToLower(str)), nil
}

func callUpperCase(ctx xpath.Context, args []xpath.Expr) (xpath.Sequence, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("invalid number of arguments")
	}
	str, err := evalToString(ctx, args[0])
	if err != nil {
		return nil, err
	}
	return xpath.Singleton(strings.ToUpper(str)), nil
}

// callGenerateId emits a random 48-bit identifier without argument and a
// run-stable identifier for the first node of the argument node set.
func (s *Stylesheet) callGenerateId(ctx xpath.Context, args []xpath.Expr) (xpath.Sequence, error) {
	if len(args) == 0 {
		return xpath.Singleton(fmt.Sprintf("%012x", rand.Uint64()&0xffffffffffff)), nil
	}
	items, err := args[0].Find(ctx)
	if err != nil {
		return nil, err
	}
	if items.Empty() {
		return xpath.Singleton(""), nil
	}
	node := items[0].Node()
	if node == nil {
		return xpath.Singleton(""), nil
	}
	tag := node.Identity()
	id, ok := s.ids[tag]
	if !ok {
		id = fmt.Sprintf("%012x", mulberry32(xmur3(tag)))
		s.ids[tag] = id
	}
	return xpath.Singleton(id), nil
}

func callSystemProperty(ctx xpath.Context, args []xpath.Expr) (xpath.Sequence, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("invalid number of arguments")
	}
	name, err := evalToString(ctx, args[0])
	if err != nil {
		return nil, err
	}
	var str string
	switch name {
	case "xsl:version":
		str = XslVersion
	case "xsl:vendor":
		str = XslVendor
	case "xsl:vendor-url":
		str = XslVendorUrl
	case "xsl:product-name":
		str = XslProduct
	case "xsl:product-version":
		str = XslProductVersion
	default:
		return nil, fmt.Errorf("%s: unknown system property", name)
	}
	return xpath.Singleton(str), nil
}

// xmur3 folds a string into a 32-bit seed.
func xmur3(str string) uint32 {
	h := uint32(1779033703) ^ uint32(len(str))
	for i := 0; i < len(str); i++ {
		h = (h ^ uint32(str[i])) * 3432918353
		h = h<<13 | h>>19
	}
	h = (h ^ h>>16) * 2246822507
	h = (h ^ h>>13) * 3266489909
	return h ^ h>>16
}

// mulberry32 draws one sample from the seeded generator.
func mulberry32(seed uint32) uint32 {
	z := seed + 0x6d2b79f5
	z = (z ^ z>>15) * (z | 1)
	z ^= z + (z^z>>7)*(z|61)
	return z ^ z>>14
}

// registerCustomFunctions exposes the caller's native functions under
// every prefix the transform root binds to their namespace.
func (s *Stylesheet) registerCustomFunctions() {
	if len(s.custom) == 0 {
		return
	}
	for _, ns := range s.root.Namespaces() {
		table, ok := s.custom[ns.Uri]
		if !ok {
			continue
		}
		for local, fn := range table {
			s.env.Builtins.Define(qualify(ns.Prefix, local), makeCustomCall(fn))
		}
	}
}

func makeCustomCall(fn CustomFunc) xpath.BuiltinFunc {
	return func(ctx xpath.Context, args []xpath.Expr) (xpath.Sequence, error) {
		var values []string
		for i := range args {
			v, err := evalToString(ctx, args[i])
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		res, err := fn(values...)
		if err != nil {
			return nil, err
		}
		return xpath.Singleton(res), nil
	}
}

// registerStylesheetFunctions turns every xsl:function element into a
// callable: arguments are evaluated to strings, the body runs in a fresh
// scope collecting into a fragment and the fragment's text is the result.
func (s *Stylesheet) registerStylesheetFunctions() error {
	for _, n := range s.root.Nodes {
		if !s.isXslInstruction(n, "function") {
			continue
		}
		el, err := getElementFromNode(n)
		if err != nil {
			return err
		}
		name, err := getAttribute(el, "name")
		if err != nil {
			return err
		}
		var (
			params []string
			body   []xml.Node
		)
		for _, c := range el.Nodes {
			if s.isXslInstruction(c, "param") {
				p, err := getElementFromNode(c)
				if err != nil {
					return err
				}
				ident, err := getAttribute(p, "name")
				if err != nil {
					return err
				}
				params = append(params, ident)
				continue
			}
			body = append(body, c)
		}
		s.env.Builtins.Define(name, s.makeFunctionCall(params, body))
	}
	return nil
}

func (s *Stylesheet) makeFunctionCall(params []string, body []xml.Node) xpath.BuiltinFunc {
	return func(ctx xpath.Context, args []xpath.Expr) (xpath.Sequence, error) {
		sub := s.createContext(ctx.Node).Nest()
		for i, ident := range params {
			if i >= len(args) {
				break
			}
			str, err := evalToString(ctx, args[i])
			if err != nil {
				return nil, err
			}
			sub.SetVariable(ident, str)
		}
		seq, err := executeConstructor(sub, body, constructorOptions{})
		if err != nil {
			return nil, err
		}
		return xpath.Singleton(sequenceText(seq)), nil
	}
}

func qualify(prefix, local string) string {
	if prefix == "" {
		return local
	}
	return prefix + ":" + local
}
