package scope

import (
	"fmt"
	"regexp"
)

// Document is the scope document as written by the user.
// Both keys are optional. A missing Include puts nothing in scope.
type Document struct {
	Include []string `yaml:"include" json:"include"`
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// Scope decides whether an address may enter the frontier.
// A pattern matches when the URL starts with it (anchored-prefix regex semantics,
// the same for include and exclude). Scope is immutable and safe for concurrent use.
type Scope struct {
	include []*regexp.Regexp
	exclude []*regexp.Regexp
}

// New compiles a scope document. A pattern that is not a valid regular
// expression is reported as an error wrapping ErrInvalidPattern.
func New(doc Document) (*Scope, error) {
	include, err := compile(doc.Include)
	if err != nil {
		return nil, err
	}
	exclude, err := compile(doc.Exclude)
	if err != nil {
		return nil, err
	}
	return &Scope{include: include, exclude: exclude}, nil
}

// MustNew is like New but panics on an invalid pattern. Use in tests only.
func MustNew(doc Document) *Scope {
	s, err := New(doc)
	if err != nil {
		panic(err)
	}
	return s
}

func compile(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(`^(?:` + p + `)`)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrInvalidPattern, p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// InScope reports whether rawURL matches at least one include pattern and no
// exclude pattern. A nil Scope has no include patterns and matches nothing.
func (s *Scope) InScope(rawURL string) bool {
	if s == nil || rawURL == "" {
		return false
	}
	if !matchAny(s.include, rawURL) {
		return false
	}
	return !matchAny(s.exclude, rawURL)
}

func matchAny(patterns []*regexp.Regexp, rawURL string) bool {
	for _, re := range patterns {
		if re.MatchString(rawURL) {
			return true
		}
	}
	return false
}

// Len returns the number of include and exclude patterns.
func (s *Scope) Len() (include, exclude int) {
	if s == nil {
		return 0, 0
	}
	return len(s.include), len(s.exclude)
}
