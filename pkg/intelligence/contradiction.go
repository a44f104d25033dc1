package intelligence

import (
	"regexp"
	"strings"
)

// ContradictionType identifies which detection layer flagged a conflict.
type ContradictionType string

const (
	ContradictionNone     ContradictionType = "none"
	ContradictionNegation ContradictionType = "negation"
	ContradictionAntonym  ContradictionType = "antonym"
	ContradictionTemporal ContradictionType = "temporal"
	ContradictionNumeric  ContradictionType = "numeric"
)

// ContradictionResult is the outcome of contradiction detection between
// a new statement and an existing memory.
type ContradictionResult struct {
	// Contradicts is true when any detection layer fired.
	Contradicts bool

	// Type is the kind of contradiction found.
	Type ContradictionType

	// Confidence is the detection confidence in [0, 1].
	Confidence float64

	// Explanation is a short human-readable reason.
	Explanation string
}

// negationPattern pairs a positive form with its negated counterpart.
type negationPattern struct {
	positive *regexp.Regexp
	negative *regexp.Regexp
}

var negationPatterns = []negationPattern{
	{regexp.MustCompile(`\b(is|am|are|was|were)\b`), regexp.MustCompile(`\b(is|am|are|was|were)\s+(not|n't)\b`)},
	{regexp.MustCompile(`\b(do|does|did)\b`), regexp.MustCompile(`\b(do|does|did)\s+(not|n't)\b`)},
	{regexp.MustCompile(`\b(has|have|had)\b`), regexp.MustCompile(`\b(has|have|had)\s+(not|n't)\b`)},
	{regexp.MustCompile(`\b(can|could|will|would|should|might)\b`), regexp.MustCompile(`\b(can|could|will|would|should|might)\s+(not|n't)\b`)},
	{regexp.MustCompile(`\blikes?\b`), regexp.MustCompile(`\b(doesn't|does not|don't|do not)\s+like\b`)},
	{regexp.MustCompile(`\bloves?\b`), regexp.MustCompile(`\b(doesn't|does not|don't|do not)\s+love\b`)},
	{regexp.MustCompile(`\bwants?\b`), regexp.MustCompile(`\b(doesn't|does not|don't|do not)\s+want\b`)},
	{regexp.MustCompile(`\bworks?\b`), regexp.MustCompile(`\b(doesn't|does not|don't|do not)\s+work\b`)},
	{regexp.MustCompile(`\bprefers?\b`), regexp.MustCompile(`\b(doesn't|does not|don't|do not)\s+prefer\b`)},
}

var antonymPairs = [][2]string{
	{"available", "busy"},
	{"available", "unavailable"},
	{"free", "busy"},
	{"happy", "sad"},
	{"happy", "unhappy"},
	{"good", "bad"},
	{"like", "dislike"},
	{"like", "hate"},
	{"love", "hate"},
	{"agree", "disagree"},
	{"want", "avoid"},
	{"prefer", "dislike"},
	{"enjoy", "dislike"},
	{"enjoy", "hate"},
	{"interested", "uninterested"},
	{"interested", "bored"},
	{"yes", "no"},
	{"true", "false"},
	{"correct", "incorrect"},
	{"right", "wrong"},
	{"active", "inactive"},
	{"enabled", "disabled"},
	{"on", "off"},
	{"open", "closed"},
	{"start", "end"},
	{"begin", "finish"},
	{"alive", "dead"},
	{"married", "single"},
	{"married", "divorced"},
	{"employed", "unemployed"},
	{"working", "retired"},
}

var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(\d{1,2})[/-](\d{1,2})[/-](\d{2,4})\b`),
	regexp.MustCompile(`\b(\d{4})[/-](\d{1,2})[/-](\d{1,2})\b`),
	regexp.MustCompile(`\b(january|february|march|april|may|june|july|august|september|october|november|december)\s+(\d{1,2}),?\s*(\d{4})?\b`),
	regexp.MustCompile(`\b(\d{1,2})\s+(january|february|march|april|may|june|july|august|september|october|november|december),?\s*(\d{4})?\b`),
}

var numericPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(\d+(?:\.\d+)?)\s*(?:years?|months?|weeks?|days?|hours?|minutes?|seconds?)?\s+old\b`),
	regexp.MustCompile(`\b(\d+(?:\.\d+)?)\s*(?:years?|months?|weeks?|days?|hours?|minutes?|seconds?)\b`),
	regexp.MustCompile(`\$\s*(\d+(?:,\d{3})*(?:\.\d{2})?)\b`),
	regexp.MustCompile(`\b(\d+(?:,\d{3})*(?:\.\d{2})?)\s*(?:dollars?|USD|EUR|GBP|JPY)\b`),
	regexp.MustCompile(`\b(\d+(?:\.\d+)?)\s*%`),
}

var wordPattern = regexp.MustCompile(`\b\w+\b`)

var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"be": {}, "been": {}, "to": {}, "of": {}, "and": {}, "or": {}, "in": {},
	"on": {}, "at": {}, "for": {}, "with": {}, "that": {}, "this": {},
	"it": {}, "i": {}, "you": {}, "he": {}, "she": {}, "they": {}, "we": {},
}

// DetectContradiction checks whether newContent contradicts existingContent
// using layered pattern checks, ordered from fastest to slowest:
//
//  1. Negation patterns ("likes coffee" vs "doesn't like coffee")
//  2. Antonym pairs ("married" vs "single") sharing context words
//  3. Temporal conflicts (disjoint date sets for the same subject)
//  4. Numeric conflicts (disjoint values for the same property)
//
// No LLM call is made; this is intended to be cheap enough to run on
// every ingested fact.
func DetectContradiction(newContent, existingContent string) ContradictionResult {
	newLower := strings.ToLower(strings.TrimSpace(newContent))
	existingLower := strings.ToLower(strings.TrimSpace(existingContent))

	if newLower == existingLower {
		return ContradictionResult{Contradicts: false, Type: ContradictionNone}
	}

	if r := checkNegation(newLower, existingLower); r.Contradicts {
		return r
	}
	if r := checkAntonyms(newLower, existingLower); r.Contradicts {
		return r
	}
	if r := checkTemporal(newLower, existingLower); r.Contradicts {
		return r
	}
	if r := checkNumeric(newLower, existingLower); r.Contradicts {
		return r
	}

	return ContradictionResult{Contradicts: false, Type: ContradictionNone}
}

// checkNegation looks for one statement carrying the positive form of a
// verb phrase and the other carrying its negation.
func checkNegation(newContent, existingContent string) ContradictionResult {
	for _, p := range negationPatterns {
		newNeg := p.negative.MatchString(newContent)
		existingNeg := p.negative.MatchString(existingContent)
		newPos := p.positive.MatchString(newContent) && !newNeg
		existingPos := p.positive.MatchString(existingContent) && !existingNeg

		if (newPos && existingNeg) || (newNeg && existingPos) {
			return ContradictionResult{
				Contradicts: true,
				Type:        ContradictionNegation,
				Confidence:  0.8,
				Explanation: "negation pattern contradiction",
			}
		}
	}
	return ContradictionResult{Type: ContradictionNone}
}

// checkAntonyms looks for antonym pairs split between the two statements.
// A pair only counts when the statements share at least one meaningful
// word, which suggests they describe the same subject.
func checkAntonyms(newContent, existingContent string) ContradictionResult {
	newWords := wordSet(newContent)
	existingWords := wordSet(existingContent)

	for _, pair := range antonymPairs {
		_, n1 := newWords[pair[0]]
		_, n2 := newWords[pair[1]]
		_, e1 := existingWords[pair[0]]
		_, e2 := existingWords[pair[1]]

		if (n1 && e2) || (n2 && e1) {
			if hasMeaningfulOverlap(newWords, existingWords) {
				return ContradictionResult{
					Contradicts: true,
					Type:        ContradictionAntonym,
					Confidence:  0.7,
					Explanation: "antonym pair: '" + pair[0] + "' vs '" + pair[1] + "'",
				}
			}
		}
	}
	return ContradictionResult{Type: ContradictionNone}
}

// checkTemporal flags statements that mention completely disjoint dates
// while otherwise sharing context words.
func checkTemporal(newContent, existingContent string) ContradictionResult {
	newDates := extractMatches(datePatterns, newContent)
	existingDates := extractMatches(datePatterns, existingContent)

	if len(newDates) == 0 || len(existingDates) == 0 {
		return ContradictionResult{Type: ContradictionNone}
	}
	if setsIntersect(newDates, existingDates) {
		return ContradictionResult{Type: ContradictionNone}
	}
	if !hasMeaningfulOverlap(wordSet(newContent), wordSet(existingContent)) {
		return ContradictionResult{Type: ContradictionNone}
	}

	return ContradictionResult{
		Contradicts: true,
		Type:        ContradictionTemporal,
		Confidence:  0.6,
		Explanation: "different dates for potentially the same event",
	}
}

// checkNumeric flags statements that carry disjoint numeric values for
// what appears to be the same property.
func checkNumeric(newContent, existingContent string) ContradictionResult {
	for _, p := range numericPatterns {
		newNums := matchSet(p, newContent)
		existingNums := matchSet(p, existingContent)

		if len(newNums) == 0 || len(existingNums) == 0 {
			continue
		}
		if setsIntersect(newNums, existingNums) {
			continue
		}
		if !hasMeaningfulOverlap(wordSet(newContent), wordSet(existingContent)) {
			continue
		}

		return ContradictionResult{
			Contradicts: true,
			Type:        ContradictionNumeric,
			Confidence:  0.65,
			Explanation: "different numeric values for potentially the same property",
		}
	}
	return ContradictionResult{Type: ContradictionNone}
}

// WordOverlapSimilarity calculates the Jaccard similarity between the word
// sets of two texts. It is a fast approximation of semantic similarity
// used by the ingest gate alongside embedding similarity.
func WordOverlapSimilarity(text1, text2 string) float64 {
	words1 := wordSet(strings.ToLower(text1))
	words2 := wordSet(strings.ToLower(text2))

	if len(words1) == 0 || len(words2) == 0 {
		return 0.0
	}

	intersection := 0
	for w := range words1 {
		if _, ok := words2[w]; ok {
			intersection++
		}
	}
	union := len(words1) + len(words2) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}

func wordSet(s string) map[string]struct{} {
	words := wordPattern.FindAllString(s, -1)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// hasMeaningfulOverlap reports whether the two word sets share any word
// that is not a stop word.
func hasMeaningfulOverlap(a, b map[string]struct{}) bool {
	for w := range a {
		if _, stop := stopWords[w]; stop {
			continue
		}
		if _, ok := b[w]; ok {
			return true
		}
	}
	return false
}

func extractMatches(patterns []*regexp.Regexp, s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, p := range patterns {
		for _, m := range p.FindAllString(s, -1) {
			set[m] = struct{}{}
		}
	}
	return set
}

func matchSet(p *regexp.Regexp, s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, m := range p.FindAllStringSubmatch(s, -1) {
		if len(m) > 1 {
			set[m[1]] = struct{}{}
		} else {
			set[m[0]] = struct{}{}
		}
	}
	return set
}

func setsIntersect(a, b map[string]struct{}) bool {
	for k := range a {
		if _, ok := b[k]; ok {
			return true
		}
	}
	return false
}
