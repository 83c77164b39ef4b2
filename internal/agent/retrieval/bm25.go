package retrieval

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// Okapi BM25 parameters.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "can": true, "do": true, "does": true, "for": true,
	"from": true, "how": true, "i": true, "if": true, "in": true, "is": true,
	"it": true, "me": true, "my": true, "of": true, "on": true, "or": true,
	"so": true, "that": true, "the": true, "this": true, "to": true, "was": true,
	"we": true, "what": true, "when": true, "where": true, "which": true,
	"who": true, "will": true, "with": true, "you": true, "your": true,
}

// tokenize lowercases, splits on anything that is not a letter or digit and
// drops stopwords and single characters.
func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) > 1 && !stopwords[f] {
			out = append(out, f)
		}
	}
	return out
}

type scoredDoc struct {
	termFreq map[string]int
	length   int
}

// corpus is an immutable BM25 index over chunk texts.
type corpus struct {
	texts   []string
	docs    []scoredDoc
	docFreq map[string]int
	avgLen  float64
}

func newCorpus(texts []string) *corpus {
	c := &corpus{texts: texts, docFreq: map[string]int{}}
	total := 0
	for _, t := range texts {
		tokens := tokenize(t)
		tf := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			tf[tok]++
		}
		for tok := range tf {
			c.docFreq[tok]++
		}
		c.docs = append(c.docs, scoredDoc{termFreq: tf, length: len(tokens)})
		total += len(tokens)
	}
	if len(texts) > 0 {
		c.avgLen = float64(total) / float64(len(texts))
	}
	return c
}

func (c *corpus) size() int {
	return len(c.texts)
}

// search returns up to topK texts with a positive score, best first. Ties
// keep corpus order.
func (c *corpus) search(query string, topK int) []string {
	if topK <= 0 || len(c.docs) == 0 {
		return nil
	}
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil
	}

	type hit struct {
		idx   int
		score float64
	}
	n := float64(len(c.docs))
	var hits []hit
	for i, d := range c.docs {
		score := 0.0
		for _, term := range terms {
			tf := float64(d.termFreq[term])
			if tf == 0 {
				continue
			}
			df := float64(c.docFreq[term])
			idf := math.Log(1 + (n-df+0.5)/(df+0.5))
			norm := tf * (bm25K1 + 1) / (tf + bm25K1*(1-bm25B+bm25B*float64(d.length)/c.avgLen))
			score += idf * norm
		}
		if score > 0 {
			hits = append(hits, hit{idx: i, score: score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	if len(hits) > topK {
		hits = hits[:topK]
	}
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, c.texts[h.idx])
	}
	return out
}
