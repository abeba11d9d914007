package evaluation

import (
	"strings"
	"unicode"
)

type tokenSet map[string]bool

// containsAll reports whether every token in other is present. An empty
// token set is never contained (a target that normalizes to nothing
// cannot be covered).
func (s tokenSet) containsAll(other tokenSet) bool {
	if len(other) == 0 {
		return false
	}
	for token := range other {
		if !s[token] {
			return false
		}
	}
	return true
}

// tokenize lowercases the value, replaces punctuation with spaces, and
// returns the set of stemmed tokens.
func tokenize(value string) tokenSet {
	cleaned := strings.ToLower(value)
	cleaned = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return ' '
		}
		return r
	}, cleaned)

	tokens := make(tokenSet)
	for _, field := range strings.Fields(cleaned) {
		if stemmed := stem(field); stemmed != "" {
			tokens[stemmed] = true
		}
	}
	return tokens
}

// stem applies light suffix stripping so that morphological variants
// (build/building/builds) match. Length guards avoid mangling short words.
func stem(token string) string {
	switch {
	case strings.HasSuffix(token, "ing") && len(token) > 4:
		return token[:len(token)-3]
	case strings.HasSuffix(token, "ed") && len(token) > 3:
		return token[:len(token)-2]
	case strings.HasSuffix(token, "es") && len(token) > 4:
		return token[:len(token)-2]
	case strings.HasSuffix(token, "s") && len(token) > 3:
		return token[:len(token)-1]
	}
	return token
}

// approxSyllables counts vowel runs as syllables, discounting a trailing
// silent e. Every word counts at least one syllable.
func approxSyllables(word string) int {
	word = strings.ToLower(word)
	count := 0
	prevVowel := false
	for _, r := range word {
		isVowel := strings.ContainsRune("aeiouy", r)
		if isVowel && !prevVowel {
			count++
		}
		prevVowel = isVowel
	}
	if strings.HasSuffix(word, "e") && count > 1 {
		count--
	}
	if count < 1 {
		count = 1
	}
	return count
}
