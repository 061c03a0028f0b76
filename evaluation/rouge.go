package evaluation

import (
	"strings"
	"unicode"

	"github.com/kljensen/snowball/english"

	"github.com/snow-ghost/factorsearch/core"
)

// RougeLEvaluator reports the mean ROUGE-L F-measure of predictions against
// the "summary" (or "target") field of each reference.
type RougeLEvaluator struct{}

func NewRougeLEvaluator() *RougeLEvaluator { return &RougeLEvaluator{} }

func (RougeLEvaluator) PrimaryMetric() string { return "rouge-L" }

func (e RougeLEvaluator) Evaluate(predictions []string, references []core.Example) (map[string]float64, error) {
	n := min(len(predictions), len(references))
	if n == 0 {
		return map[string]float64{"rouge-L": 0}, nil
	}
	var total float64
	for i := 0; i < n; i++ {
		gold := references[i].String("summary")
		if gold == "" {
			gold = references[i].String("target")
		}
		total += RougeL(predictions[i], gold)
	}
	return map[string]float64{"rouge-L": total / float64(n)}, nil
}

// RougeL is the LCS-based F1 between candidate and reference tokens.
func RougeL(candidate, reference string) float64 {
	c, r := tokenize(candidate), tokenize(reference)
	if len(c) == 0 || len(r) == 0 {
		return 0
	}
	lcs := float64(lcsLength(c, r))
	if lcs == 0 {
		return 0
	}
	precision := lcs / float64(len(c))
	recall := lcs / float64(len(r))
	return 2 * precision * recall / (precision + recall)
}

// tokenize lowercases, splits on anything that is not a letter or digit and
// stems words longer than three characters.
func tokenize(s string) []string {
	tokens := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for i, tok := range tokens {
		if len(tok) > 3 {
			tokens[i] = english.Stem(tok, true)
		}
	}
	return tokens
}

func lcsLength(a, b []string) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
			} else {
				cur[j] = max(prev[j], cur[j-1])
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
