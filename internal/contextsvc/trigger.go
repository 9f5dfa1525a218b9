package contextsvc

import (
	"strings"
	"unicode"

	"github.com/mvanwyck/reverie/pkg/convo"
)

// ScanCorpus is a pre-tokenized scan text shared by every trigger candidate
// of a turn. Build it once via [NewScanCorpus].
type ScanCorpus struct {
	tokens []string
	seen   map[string]bool
}

// NewScanCorpus tokenizes the concatenated scan texts. Tokenization lowers
// the text and folds punctuation, so matching is case-insensitive and
// whole-word.
func NewScanCorpus(texts ...string) *ScanCorpus {
	c := &ScanCorpus{seen: map[string]bool{}}
	for _, text := range texts {
		for _, tok := range tokenize(text) {
			c.tokens = append(c.tokens, tok)
			c.seen[tok] = true
		}
	}
	return c
}

// contains reports whether the normalized keyword occurs in the corpus. A
// single-token keyword matches any corpus token; a multi-token keyword
// matches a consecutive token run.
func (c *ScanCorpus) contains(keyword []string) bool {
	switch len(keyword) {
	case 0:
		return false
	case 1:
		return c.seen[keyword[0]]
	}
	for i := 0; i+len(keyword) <= len(c.tokens); i++ {
		match := true
		for j, kw := range keyword {
			if c.tokens[i+j] != kw {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// EvaluateTriggers returns the subset of candidates whose keyword lists match
// the corpus: an item activates when at least its trigger-min-match-count
// distinct keywords occur in the corpus. Candidates with no keywords never
// activate. The input order is preserved.
func EvaluateTriggers(corpus *ScanCorpus, candidates []convo.ContextData) []convo.ContextData {
	var activated []convo.ContextData
	for _, item := range candidates {
		keywords := compileKeywords(item.TriggerKeywords)
		if len(keywords) == 0 {
			continue
		}

		required := item.TriggerMinMatchCount
		if required < 1 {
			required = 1
		}

		matched := 0
		for _, kw := range keywords {
			if corpus.contains(kw) {
				matched++
				if matched >= required {
					break
				}
			}
		}
		if matched >= required {
			activated = append(activated, item)
		}
	}
	return activated
}

// compileKeywords splits the comma-separated keyword list and tokenizes each
// entry, dropping empties and duplicates.
func compileKeywords(list string) [][]string {
	var (
		out  [][]string
		seen = map[string]bool{}
	)
	for _, entry := range strings.Split(list, ",") {
		toks := tokenize(entry)
		if len(toks) == 0 {
			continue
		}
		key := strings.Join(toks, " ")
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, toks)
	}
	return out
}

// tokenize lowers text and splits it on any rune that is neither a letter
// nor a digit.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
