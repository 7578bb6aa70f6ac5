// Package retrieval ranks text documents against a query by summing an
// inverse-document-frequency weight for each query token a document contains.
package retrieval

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

type Doc struct {
	ID         string `json:"id"`
	Source     string `json:"source"`
	Title      string `json:"title,omitempty"`
	Text       string `json:"text"`
	OccurredAt *int64 `json:"occurred_at,omitempty"`
}

type Scored struct {
	Doc
	Score float64 `json:"score"`
}

// Tokenize lowercases s, replaces anything that is not an ASCII letter or
// digit with a space and splits on whitespace.
func Tokenize(s string) []string {
	b := []rune(strings.ToLower(s))
	for i, r := range b {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || unicode.IsSpace(r)) {
			b[i] = ' '
		}
	}
	return strings.Fields(string(b))
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range Tokenize(s) {
		set[t] = struct{}{}
	}
	return set
}

// uniqueTokens keeps first-occurrence order so score sums are reproducible.
func uniqueTokens(s string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, t := range Tokenize(s) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Score returns every document with its score, highest first. Ties keep the
// input order. A query without tokens scores everything 0.
func Score(query string, docs []Doc) []Scored {
	out := make([]Scored, len(docs))
	for i, d := range docs {
		out[i] = Scored{Doc: d}
	}

	qtokens := uniqueTokens(query)
	if len(qtokens) == 0 {
		return out
	}

	n := float64(len(docs))
	if n == 0 {
		n = 1
	}
	sets := make([]map[string]struct{}, len(docs))
	for i, d := range docs {
		sets[i] = tokenSet(d.Text)
	}

	for _, t := range qtokens {
		df := 0
		for _, s := range sets {
			if _, ok := s[t]; ok {
				df++
			}
		}
		w := math.Log(1 + n/float64(1+df))
		for i, s := range sets {
			if _, ok := s[t]; ok {
				out[i].Score += w
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// TopK returns at most k leading entries.
func TopK(scored []Scored, k int) []Scored {
	if k < 0 {
		k = 0
	}
	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k]
}
