package stats

import (
	"sort"

	"github.com/ferrovax/keyrace/internal/model"
)

// Characters with fewer samples than this are too noisy to call weak.
const minWeakSamples = 3

// SelectWeakChars selects the lowest-confidence characters from the
// persisted per-character estimates.
func SelectWeakChars(rows []model.CharConfidence, top int) map[rune]struct{} {
	weakSet := map[rune]struct{}{}
	candidates := make([]model.CharConfidence, 0, len(rows))
	for _, cc := range rows {
		if cc.Samples >= minWeakSamples {
			candidates = append(candidates, cc)
		}
	}
	if len(candidates) == 0 {
		return weakSet
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Confidence == candidates[j].Confidence {
			return candidates[i].Char < candidates[j].Char
		}
		return candidates[i].Confidence < candidates[j].Confidence
	})
	if top <= 0 || top > len(candidates) {
		top = len(candidates)
	}
	for i := 0; i < top; i++ {
		runes := []rune(candidates[i].Char)
		if len(runes) > 0 {
			weakSet[runes[0]] = struct{}{}
		}
	}
	return weakSet
}
