package sparse

import (
	"regexp"
	"strings"
)

// tokenRe matches alphanumeric runs of at least two characters.
var tokenRe = regexp.MustCompile(`[a-z0-9]{2,}`)

// stopwords are dropped during tokenization. Single-character tokens are
// already excluded by the token pattern.
var stopwords = map[string]struct{}{
	"about": {}, "after": {}, "all": {}, "also": {}, "an": {}, "and": {},
	"any": {}, "are": {}, "as": {}, "at": {}, "be": {}, "because": {},
	"been": {}, "but": {}, "by": {}, "can": {}, "could": {}, "did": {},
	"do": {}, "does": {}, "for": {}, "from": {}, "had": {}, "has": {},
	"have": {}, "he": {}, "her": {}, "his": {}, "how": {}, "if": {},
	"in": {}, "into": {}, "is": {}, "it": {}, "its": {}, "just": {},
	"like": {}, "me": {}, "more": {}, "my": {}, "no": {}, "not": {},
	"of": {}, "on": {}, "or": {}, "other": {}, "our": {}, "out": {},
	"over": {}, "she": {}, "so": {}, "some": {}, "than": {}, "that": {},
	"the": {}, "their": {}, "them": {}, "then": {}, "there": {},
	"these": {}, "they": {}, "this": {}, "to": {}, "up": {}, "was": {},
	"we": {}, "were": {}, "what": {}, "when": {}, "which": {}, "who": {},
	"will": {}, "with": {}, "would": {}, "you": {}, "your": {},
}

// Tokenize lower-cases the text and returns alphanumeric runs of two or more
// characters with common stop-words removed.
func Tokenize(text string) []string {
	raw := tokenRe.FindAllString(strings.ToLower(text), -1)
	tokens := make([]string, 0, len(raw))
	for _, tok := range raw {
		if _, stop := stopwords[tok]; stop {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}
