package model

import (
	"fmt"
	"net/url"
	"slices"
	"sort"
	"strings"
)

// listMarker is the suffix marking a query parameter as list-valued ("id[]=1&id[]=2").
const listMarker = "[]"

// ParamValue is the value recorded for one query parameter name.
type ParamValue struct {
	// Values holds the parameter values in the order they were seen.
	// A scalar parameter holds at most one value.
	Values []string `json:"values,omitempty"`

	// Present is false for a bare name without "=" (e.g. "?debug").
	Present bool `json:"present"`

	// List is true when the name carried the list marker.
	List bool `json:"list,omitempty"`
}

// ParamSet maps parameter names to values for one sighting of an address.
// List-style names are stored under the base name with the marker stripped.
type ParamSet map[string]ParamValue

// Encode renders the set as a query string with keys in sorted order.
func (p ParamSet) Encode() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := p[k]
		name := url.QueryEscape(k)
		switch {
		case v.List:
			for _, item := range v.Values {
				parts = append(parts, name+listMarker+"="+url.QueryEscape(item))
			}
		case !v.Present || len(v.Values) == 0:
			parts = append(parts, name)
		default:
			parts = append(parts, name+"="+url.QueryEscape(v.Values[0]))
		}
	}
	return strings.Join(parts, "&")
}

func (p ParamSet) clone() ParamSet {
	out := make(ParamSet, len(p))
	for k, v := range p {
		v.Values = slices.Clone(v.Values)
		out[k] = v
	}
	return out
}

// Address is a URL split into a stable identity (the pure form: the URL without
// query string and fragment) and the variant data observed for that identity.
//
// Two addresses are the same entity iff their pure forms are equal. Variant data
// never participates in identity, so "/a?x=1" and "/a?x=2" are one page whose
// two parameter sets are both recorded.
type Address struct {
	pure    string
	anchors []string
	params  []ParamSet
}

// Parse splits raw into pure form, fragment and query parameters.
// The fragment is split off first so a "?" inside a fragment is not read as a query.
// An empty input yields the zero Address, which callers must discard (see IsZero).
func Parse(raw string) Address {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Address{}
	}

	rest, fragment, _ := strings.Cut(raw, "#")
	pure, query, _ := strings.Cut(rest, "?")

	addr := Address{pure: normalizePure(pure)}
	if fragment != "" {
		addr.anchors = []string{fragment}
	}
	if query != "" {
		if set := parseQuery(query); len(set) > 0 {
			addr.params = []ParamSet{set}
		}
	}
	return addr
}

// normalizePure lowercases scheme and host of an absolute URL and gives an
// empty path the root path, so "HTTPS://X.test" and "https://x.test/" match.
func normalizePure(pure string) string {
	scheme, rest, ok := strings.Cut(pure, "://")
	if !ok || scheme == "" {
		return pure
	}
	host, path, hasPath := strings.Cut(rest, "/")
	if !hasPath {
		return strings.ToLower(scheme) + "://" + strings.ToLower(host) + "/"
	}
	return strings.ToLower(scheme) + "://" + strings.ToLower(host) + "/" + path
}

func parseQuery(query string) ParamSet {
	set := make(ParamSet)
	for _, piece := range strings.Split(query, "&") {
		if piece == "" {
			continue
		}
		name, value, hasValue := strings.Cut(piece, "=")
		name = unescape(name)
		value = unescape(value)

		if base, isList := strings.CutSuffix(name, listMarker); isList {
			if base == "" {
				continue
			}
			pv := set[base]
			pv.List = true
			pv.Present = true
			if hasValue {
				pv.Values = append(pv.Values, value)
			}
			set[base] = pv
			continue
		}

		if name == "" {
			continue
		}
		if hasValue {
			set[name] = ParamValue{Values: []string{value}, Present: true}
		} else {
			set[name] = ParamValue{}
		}
	}
	return set
}

func unescape(s string) string {
	if u, err := url.QueryUnescape(s); err == nil {
		return u
	}
	return s
}

// Pure returns the identity of the address.
func (a Address) Pure() string {
	return a.pure
}

// IsZero reports whether the address has no identity and must be discarded.
func (a Address) IsZero() bool {
	return a.pure == ""
}

// Equal reports whether a and other denote the same entity.
func (a Address) Equal(other Address) bool {
	return a.pure == other.pure
}

// Anchors returns the fragments seen for this identity, in first-seen order.
func (a Address) Anchors() []string {
	return slices.Clone(a.anchors)
}

// ParamSets returns the parameter sets seen for this identity, in sighting order.
func (a Address) ParamSets() []ParamSet {
	out := make([]ParamSet, len(a.params))
	for i, p := range a.params {
		out[i] = p.clone()
	}
	return out
}

// Merge folds other's variant data into a. Anchors are unioned and parameter
// sets appended. It returns a *MergeError if the identities differ; callers
// compare identities first, so this only signals a logic error.
func (a *Address) Merge(other Address) error {
	if a.pure != other.pure {
		return &MergeError{Target: a.pure, Other: other.pure}
	}
	for _, anchor := range other.anchors {
		if !slices.Contains(a.anchors, anchor) {
			a.anchors = append(a.anchors, anchor)
		}
	}
	for _, p := range other.params {
		a.params = append(a.params, p.clone())
	}
	return nil
}

// Clone returns a deep copy of a.
func (a Address) Clone() Address {
	return Address{
		pure:    a.pure,
		anchors: slices.Clone(a.anchors),
		params:  a.ParamSets(),
	}
}

// URL returns the address to request: the pure form plus the first parameter set.
func (a Address) URL() string {
	if len(a.params) == 0 {
		return a.pure
	}
	query := a.params[0].Encode()
	if query == "" {
		return a.pure
	}
	return a.pure + "?" + query
}

// String renders the pure form with the first parameter set and first fragment.
// It is meant for display; identity is Pure.
func (a Address) String() string {
	s := a.URL()
	if len(a.anchors) > 0 {
		s += "#" + a.anchors[0]
	}
	return s
}

// MergeError is returned by Address.Merge when the two addresses have
// different identities.
type MergeError struct {
	// Target is the pure form of the address being merged into.
	Target string
	// Other is the pure form of the address that was offered.
	Other string
}

// Error implements the error interface.
func (e *MergeError) Error() string {
	return fmt.Sprintf("cannot merge %q into %q: identities differ", e.Other, e.Target)
}
