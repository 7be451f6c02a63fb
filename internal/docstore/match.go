package docstore

import (
	"sort"
	"strings"
)

// matches evaluates filters against a sanitized document.
func matches(doc Document, filters []Filter) bool {
	for _, f := range filters {
		got, ok := doc[f.Field]
		if !ok || got == nil {
			return false
		}
		want := sanitizeValue(f.Value)
		switch f.Op {
		case OpEq:
			if compare(got, want) != 0 {
				return false
			}
		case OpNotEq:
			if compare(got, want) == 0 {
				return false
			}
		case OpLt:
			c := compare(got, want)
			if c >= 0 || c == incomparable {
				return false
			}
		case OpIn:
			vals, _ := inValues(f.Value)
			found := false
			for _, v := range vals {
				if compare(got, sanitizeValue(v)) == 0 {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	return true
}

const incomparable = 2

// compare orders two sanitized scalars of the same kind. Mixed kinds are incomparable.
func compare(a, b any) int {
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		if !ok {
			return incomparable
		}
		return strings.Compare(x, y)
	case float64:
		y, ok := b.(float64)
		if !ok {
			return incomparable
		}
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case bool:
		y, ok := b.(bool)
		if !ok {
			return incomparable
		}
		if x == y {
			return 0
		}
		if !x {
			return -1
		}
		return 1
	}
	return incomparable
}

// sortAndLimit applies OrderBy/Desc/Limit. Documents missing the order field sort last.
func sortAndLimit(snaps []Snapshot, q Query) []Snapshot {
	if q.OrderBy != "" {
		sort.SliceStable(snaps, func(i, j int) bool {
			a, aok := snaps[i].Data[q.OrderBy]
			b, bok := snaps[j].Data[q.OrderBy]
			if !aok || a == nil {
				return false
			}
			if !bok || b == nil {
				return true
			}
			c := compare(a, b)
			if c == incomparable {
				return false
			}
			if q.Desc {
				return c > 0
			}
			return c < 0
		})
	}
	if q.Limit > 0 && len(snaps) > q.Limit {
		snaps = snaps[:q.Limit]
	}
	return snaps
}

// merge overlays the top-level fields of patch onto base.
func merge(base, patch Document) Document {
	out := make(Document, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}
