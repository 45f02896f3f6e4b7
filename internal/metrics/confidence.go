// Package metrics turns keystroke logs into session metrics.
package metrics

import (
	"context"

	"github.com/ferrovax/keyrace/internal/model"
)

// Smoothing weight given to the newest sample.
const blendSampleWeight = 0.7

// Blend applies exponential smoothing over (prior, sample): the new
// estimate keeps 70% of the sample and 30% of the prior.
func Blend(prior, sample float64) float64 {
	return blendSampleWeight*sample + (1-blendSampleWeight)*prior
}

// ConfidenceRepo persists per-character confidence estimates. Injected so
// the learning subsystem carries no process-wide storage of its own.
type ConfidenceRepo interface {
	ListConfidence(ctx context.Context, lang string) ([]model.CharConfidence, error)
	UpsertConfidence(ctx context.Context, lang string, cc model.CharConfidence) error
}

// ObserveKeystrokes folds a session's keystroke log into the per-character
// confidence estimates stored in repo. Each character typed during the
// session contributes one accuracy sample, blended against the prior.
func ObserveKeystrokes(ctx context.Context, repo ConfidenceRepo, lang string, log []model.Keystroke) error {
	type tally struct {
		correct int
		total   int
	}
	tallies := map[string]*tally{}
	for _, ks := range log {
		if ks.Kind != model.KeyDown || ks.Expected == 0 || ks.Expected == ' ' {
			continue
		}
		key := string(ks.Expected)
		entry, ok := tallies[key]
		if !ok {
			entry = &tally{}
			tallies[key] = entry
		}
		entry.total++
		if ks.Correct {
			entry.correct++
		}
	}
	if len(tallies) == 0 {
		return nil
	}

	stored, err := repo.ListConfidence(ctx, lang)
	if err != nil {
		return err
	}
	priors := make(map[string]model.CharConfidence, len(stored))
	for _, cc := range stored {
		priors[cc.Char] = cc
	}

	for char, entry := range tallies {
		sample := float64(entry.correct) / float64(entry.total)
		next := model.CharConfidence{Char: char, Confidence: sample, Samples: 1}
		if prior, ok := priors[char]; ok {
			next.Confidence = Blend(prior.Confidence, sample)
			next.Samples = prior.Samples + 1
		}
		if err := repo.UpsertConfidence(ctx, lang, next); err != nil {
			return err
		}
	}
	return nil
}
