package graph

import (
	"math"
	"sort"
	"strings"
)

// BM25 parameters (Okapi variant).
const (
	bm25K1      = 1.5
	bm25B       = 0.75
	bm25Epsilon = 0.25
)

// bm25 ranks tokenized documents against a query using Okapi BM25.
// Used to rerank graph triples by lexical relevance to the search query
// after the similarity-based neighborhood fetch.
type bm25 struct {
	corpus    [][]string
	docLens   []float64
	avgDocLen float64
	idf       map[string]float64
}

// newBM25 builds the index over the given tokenized documents.
func newBM25(corpus [][]string) *bm25 {
	b := &bm25{
		corpus:  corpus,
		docLens: make([]float64, len(corpus)),
		idf:     make(map[string]float64),
	}

	docFreq := make(map[string]int)
	var totalLen float64

	for i, doc := range corpus {
		b.docLens[i] = float64(len(doc))
		totalLen += b.docLens[i]

		seen := make(map[string]struct{})
		for _, term := range doc {
			if _, ok := seen[term]; ok {
				continue
			}
			seen[term] = struct{}{}
			docFreq[term]++
		}
	}

	if len(corpus) > 0 {
		b.avgDocLen = totalLen / float64(len(corpus))
	}

	// Negative IDF values for very common terms are floored at a fraction
	// of the average IDF, following the Okapi convention.
	n := float64(len(corpus))
	var idfSum float64
	var negative []string

	for term, freq := range docFreq {
		idf := math.Log((n - float64(freq) + 0.5) / (float64(freq) + 0.5))
		b.idf[term] = idf
		idfSum += idf
		if idf < 0 {
			negative = append(negative, term)
		}
	}

	if len(docFreq) > 0 {
		floor := bm25Epsilon * idfSum / float64(len(docFreq))
		for _, term := range negative {
			b.idf[term] = floor
		}
	}

	return b
}

// score computes the BM25 score of document i for the query tokens.
func (b *bm25) score(query []string, i int) float64 {
	freq := make(map[string]float64)
	for _, term := range b.corpus[i] {
		freq[term]++
	}

	var score float64
	for _, term := range query {
		f := freq[term]
		if f == 0 {
			continue
		}
		score += b.idf[term] * f * (bm25K1 + 1) /
			(f + bm25K1*(1-bm25B+bm25B*b.docLens[i]/b.avgDocLen))
	}

	return score
}

// topN returns indices of the n highest scoring documents for the query.
func (b *bm25) topN(query []string, n int) []int {
	indices := make([]int, len(b.corpus))
	scores := make([]float64, len(b.corpus))
	for i := range b.corpus {
		indices[i] = i
		scores[i] = b.score(query, i)
	}

	sort.SliceStable(indices, func(x, y int) bool {
		return scores[indices[x]] > scores[indices[y]]
	})

	if n > 0 && len(indices) > n {
		indices = indices[:n]
	}
	return indices
}

// tokenize splits text on single spaces, matching the query tokenization
// used for reranking.
func tokenize(text string) []string {
	return strings.Split(text, " ")
}
