// Package wordlist provides word list filtering helpers.
package wordlist

import (
	"strings"
	"unicode"
)

// Course text joins words with single spaces, so list entries carrying
// whitespace of their own are rejected, as are entries longer than this.
const maxCourseWordLen = 16

// FilterFunc returns true when a word should be kept.
type FilterFunc func(string) bool

// FilterForLang returns the filter applied to race course words for a
// language.
func FilterForLang(lang string) FilterFunc {
	switch strings.ToLower(lang) {
	case "en":
		return courseWord(filterEnglishASCII)
	default:
		return courseWord(nil)
	}
}

// courseWord layers the language-independent course constraints on top
// of an optional language filter.
func courseWord(langFilter FilterFunc) FilterFunc {
	return func(word string) bool {
		if word == "" || len(word) > maxCourseWordLen {
			return false
		}
		if strings.IndexFunc(word, unicode.IsSpace) >= 0 {
			return false
		}
		if langFilter != nil {
			return langFilter(word)
		}
		return true
	}
}

func filterEnglishASCII(word string) bool {
	for i := 0; i < len(word); i++ {
		ch := word[i]
		if ch < 'a' || ch > 'z' {
			return false
		}
	}
	return true
}
