// Package query evaluates equality filters and sort orders in memory for
// backends that cannot push them down.
package query

import (
	"encoding/json"
	"reflect"
	"sort"
	"strings"

	"github.com/jacentio/bastion/docid"
	"github.com/jacentio/bastion/schema"
	"github.com/jacentio/bastion/store"
)

// Match reports whether doc satisfies every equality in filter. A nil filter
// value matches a missing or nil field.
func Match(doc schema.Document, filter store.Query) bool {
	for field, want := range filter {
		got, present := doc[field]
		if field == docid.Field {
			id := docid.Normalize(want)
			if !present || docid.IsNil(id) || docid.Normalize(got) != id {
				return false
			}
			continue
		}
		if want == nil {
			if present && got != nil {
				return false
			}
			continue
		}
		if !present || !Equal(got, want) {
			return false
		}
	}
	return true
}

// Filter returns the documents of docs matching filter, ordered by order.
func Filter(docs []schema.Document, filter store.Query, order store.Sort) []schema.Document {
	out := make([]schema.Document, 0, len(docs))
	for _, doc := range docs {
		if Match(doc, filter) {
			out = append(out, doc)
		}
	}
	Sort(out, order)
	return out
}

// Sort orders docs in place. Ties keep their input order.
func Sort(docs []schema.Document, order store.Sort) {
	if len(order) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, key := range order {
			c := Compare(docs[i][key.Field], docs[j][key.Field])
			if c == 0 {
				continue
			}
			if key.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// Equal compares two field values. Numbers compare by value regardless of
// their Go type.
func Equal(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	return reflect.DeepEqual(a, b)
}

// Compare orders two field values: null, numbers, strings, objects, arrays,
// identifiers, booleans, then everything else. Values of the same class
// compare naturally; unordered classes compare equal.
func Compare(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return cmpInt(ra, rb)
	}
	switch ra {
	case rankNumber:
		fa, _ := toFloat(a)
		fb, _ := toFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case rankString:
		return strings.Compare(a.(string), b.(string))
	case rankID:
		return strings.Compare(a.(docid.ID).Hex(), b.(docid.ID).Hex())
	case rankBool:
		ba, bb := a.(bool), b.(bool)
		switch {
		case ba == bb:
			return 0
		case !ba:
			return -1
		}
		return 1
	}
	return 0
}

const (
	rankNull = iota
	rankNumber
	rankString
	rankObject
	rankArray
	rankID
	rankBool
	rankOther
)

func rank(v any) int {
	if _, ok := v.(docid.ID); ok {
		return rankID
	}
	if _, ok := toFloat(v); ok {
		return rankNumber
	}
	switch v.(type) {
	case string:
		return rankString
	case bool:
		return rankBool
	}
	switch schema.KindOf(v) {
	case schema.KindNull:
		return rankNull
	case schema.KindObject:
		return rankObject
	case schema.KindArray:
		return rankArray
	}
	return rankOther
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
