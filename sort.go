package xslt

import (
	"slices"
	"strings"

	"github.com/midbel/codecs/xml"
)

type sortKey struct {
	query      string
	numeric    bool
	descending bool
}

type sortValue struct {
	str string
	num float64
}

func loadSortKey(el *xml.Element) (sortKey, error) {
	var key sortKey
	query, err := getAttribute(el, "select")
	if err != nil {
		return key, err
	}
	key.query = query
	if dt, err := getAttribute(el, "data-type"); err == nil {
		key.numeric = dt == "number"
	}
	if dir, err := getAttribute(el, "order"); err == nil {
		key.descending = dir == "descending"
	}
	return key, nil
}

// sortNodes orders the node list by the xsl:sort children of the calling
// instruction. Each key evaluates in a singleton context; a trailing
// original-index key keeps the sort stable.
func sortNodes(ctx *Context, sortElems []xml.Node, list []xml.Node) ([]xml.Node, error) {
	var keys []sortKey
	for _, n := range sortElems {
		el, err := getElementFromNode(n)
		if err != nil {
			return nil, err
		}
		key, err := loadSortKey(el)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return list, nil
	}

	type entry struct {
		node   xml.Node
		index  int
		values []sortValue
	}
	var entries []entry
	for i, node := range list {
		e := entry{
			node:  node,
			index: i,
		}
		sub := ctx.WithPosition([]xml.Node{node}, 0)
		for _, key := range keys {
			items, err := sub.ExecuteQuery(key.query, node)
			if err != nil {
				return nil, err
			}
			var value sortValue
			value.str = sequenceText(items)
			if key.numeric {
				value.num, _ = toNumber(value.str)
			}
			e.values = append(e.values, value)
		}
		entries = append(entries, e)
	}

	slices.SortFunc(entries, func(e1, e2 entry) int {
		for i, key := range keys {
			var res int
			if key.numeric {
				switch v1, v2 := e1.values[i].num, e2.values[i].num; {
				case v1 < v2:
					res = -1
				case v1 > v2:
					res = 1
				}
			} else {
				res = strings.Compare(e1.values[i].str, e2.values[i].str)
			}
			if res == 0 {
				continue
			}
			if key.descending {
				res = -res
			}
			return res
		}
		return e1.index - e2.index
	})

	sorted := make([]xml.Node, len(entries))
	for i := range entries {
		sorted[i] = entries[i].node
	}
	return sorted, nil
}
