package bot

import (
	"math/rand"
	"unicode"
)

// QWERTY neighbor map used for realistic mistake substitution.
var keyNeighbors = map[rune][]rune{
	'q': {'w', 'a'},
	'w': {'q', 'e', 's'},
	'e': {'w', 'r', 'd'},
	'r': {'e', 't', 'f'},
	't': {'r', 'y', 'g'},
	'y': {'t', 'u', 'h'},
	'u': {'y', 'i', 'j'},
	'i': {'u', 'o', 'k'},
	'o': {'i', 'p', 'l'},
	'p': {'o', 'l'},
	'a': {'q', 's', 'z'},
	's': {'a', 'd', 'w', 'x'},
	'd': {'s', 'f', 'e', 'c'},
	'f': {'d', 'g', 'r', 'v'},
	'g': {'f', 'h', 't', 'b'},
	'h': {'g', 'j', 'y', 'n'},
	'j': {'h', 'k', 'u', 'm'},
	'k': {'j', 'l', 'i'},
	'l': {'k', 'o'},
	'z': {'a', 'x'},
	'x': {'z', 'c', 's'},
	'c': {'x', 'v', 'd'},
	'v': {'c', 'b', 'f'},
	'b': {'v', 'n', 'g'},
	'n': {'b', 'm', 'h'},
	'm': {'n', 'j'},
	' ': {'b', 'n', 'm'},
}

// adjacentKey returns a plausible mistyped character for expected: a
// neighboring key on a QWERTY layout, case preserved.
func adjacentKey(expected rune, rnd *rand.Rand) rune {
	lower := unicode.ToLower(expected)
	neighbors, ok := keyNeighbors[lower]
	if !ok || len(neighbors) == 0 {
		// Punctuation and anything off the letter block degrades to a
		// nearby home-row slip.
		neighbors = []rune{'j', 'k', 'l'}
	}
	typo := neighbors[rnd.Intn(len(neighbors))]
	if unicode.IsUpper(expected) {
		typo = unicode.ToUpper(typo)
	}
	return typo
}
