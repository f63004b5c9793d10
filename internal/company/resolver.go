// Package company maps free-text responsible-party names onto the fixed list
// of canonical companies.
package company

import (
	"context"
	"errors"
	"strings"
	"unicode"
)

// MinSimilarity is the floor a fuzzy candidate must reach to count as a match.
const MinSimilarity = 0.6

type Method string

const (
	MethodSubstring  Method = "substring"
	MethodSimilarity Method = "similarity"
	MethodModel      Method = "model"
	MethodUnmatched  Method = "unmatched"
)

// Result is the outcome of resolving one free-text name. When Matched is false
// Name carries the caller's text verbatim.
type Result struct {
	Name    string
	Matched bool
	Method  Method
	Score   float64
}

// Resolver is the deterministic resolver. It is safe for concurrent use; its
// state is immutable after construction.
type Resolver struct {
	names      []string
	normalized []string
}

func NewResolver(names []string) (*Resolver, error) {
	if len(names) == 0 {
		return nil, errors.New("company: canonical list must not be empty")
	}
	r := &Resolver{
		names:      make([]string, 0, len(names)),
		normalized: make([]string, 0, len(names)),
	}
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			return nil, errors.New("company: canonical name must not be blank")
		}
		r.names = append(r.names, n)
		r.normalized = append(r.normalized, Normalize(n))
	}
	return r, nil
}

// Names returns the canonical list in its original order.
func (r *Resolver) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Resolve satisfies the engine's resolver interface. The deterministic path
// never blocks, so ctx is unused.
func (r *Resolver) Resolve(_ context.Context, text string) Result {
	return r.Match(text)
}

// Match runs substring containment first, in list order, and falls back to
// the best Ratcliff-Obershelp ratio at or above MinSimilarity.
func (r *Resolver) Match(text string) Result {
	in := Normalize(text)
	if in == "" {
		return unmatched(text)
	}

	for i, cand := range r.normalized {
		if strings.Contains(cand, in) {
			return Result{Name: r.names[i], Matched: true, Method: MethodSubstring, Score: 1}
		}
	}

	best, bestScore := -1, 0.0
	for i, cand := range r.normalized {
		score := Similarity(in, cand)
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best >= 0 && bestScore >= MinSimilarity {
		return Result{Name: r.names[best], Matched: true, Method: MethodSimilarity, Score: bestScore}
	}
	return unmatched(text)
}

func unmatched(text string) Result {
	return Result{Name: text, Matched: false, Method: MethodUnmatched}
}

// legalSuffixes are trailing token runs that carry no discriminating signal.
// Dots are removed before matching, so "Sp. z o.o." arrives as sp z oo.
var legalSuffixes = [][]string{
	{"sp", "z", "oo"},
	{"spzoo"},
	{"sp", "k"},
	{"spk"},
	{"sp", "j"},
	{"spj"},
	{"sa"},
	{"sc"},
	{"llc"},
	{"inc"},
	{"ltd"},
	{"gmbh"},
	{"corp"},
	{"co"},
}

// Normalize case-folds s, drops punctuation and strips trailing legal-entity
// suffixes.
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, ".", "")
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, s)
	fields := strings.Fields(s)

	for stripped := true; stripped; {
		stripped = false
		for _, suf := range legalSuffixes {
			if len(fields) > len(suf) && hasSuffix(fields, suf) {
				fields = fields[:len(fields)-len(suf)]
				stripped = true
			}
		}
	}
	return strings.Join(fields, " ")
}

func hasSuffix(fields, suf []string) bool {
	off := len(fields) - len(suf)
	for i, s := range suf {
		if fields[off+i] != s {
			return false
		}
	}
	return true
}
