package xslt

import (
	"slices"
	"strings"

	"github.com/midbel/codecs/xml"
)

type spacePolicy int8

const (
	spaceStrip spacePolicy = iota
	spacePreserve
	spaceNormalize
)

var wsReplacer = strings.NewReplacer("\t", " ", "\n", " ", "\r", " ")

// processWhitespace applies the whitespace policy governing the element
// the value is emitted for. Attribute values have no element context and
// always strip.
func (s *Stylesheet) processWhitespace(value string, el *xml.Element) string {
	policy := spaceStrip
	if el != nil {
		policy = s.policyFor(el)
	}
	switch policy {
	case spacePreserve:
		return value
	case spaceStrip:
		return strings.TrimSpace(collapseSpaces(wsReplacer.Replace(value)))
	default:
		return collapseSpaces(wsReplacer.Replace(value))
	}
}

// policyFor looks the element up in the strip/preserve lists: exact
// {ns}local first, then {ns}*, then the global wildcard, defaulting to
// normalization.
func (s *Stylesheet) policyFor(el *xml.Element) spacePolicy {
	keys := []string{
		canonicalName(lookupPrefix(el, el.Space), el.Name),
		canonicalName(lookupPrefix(el, el.Space), "*"),
		"*",
	}
	for _, key := range keys {
		if slices.Contains(s.stripSpace, key) {
			return spaceStrip
		}
		if slices.Contains(s.preserveSpace, key) {
			return spacePreserve
		}
	}
	return spaceNormalize
}

func canonicalName(uri, local string) string {
	if uri == "" {
		return local
	}
	return "{" + uri + "}" + local
}

// loadSpaceList parses the elements attribute of xsl:strip-space or
// xsl:preserve-space into canonical {ns}local entries, resolving each
// name's prefix against the declaring transform node.
func loadSpaceList(el *xml.Element) ([]string, error) {
	value, err := getAttribute(el, "elements")
	if err != nil {
		return nil, err
	}
	var list []string
	for _, name := range strings.Fields(value) {
		if name == "*" {
			list = append(list, name)
			continue
		}
		space, local, ok := strings.Cut(name, ":")
		if !ok {
			local, space = space, ""
		}
		list = append(list, canonicalName(lookupPrefix(el, space), local))
	}
	return list, nil
}
