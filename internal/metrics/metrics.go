// Package metrics turns keystroke logs into session metrics.
package metrics

import (
	"math"

	"github.com/ferrovax/keyrace/internal/model"
)

// Any metric above this is treated as corrupted input, not a record.
const maxPlausible = 100000

// Compute derives session metrics from a keystroke log plus target and
// typed text. It is pure: identical inputs produce identical outputs, and
// it never fails; degenerate logs yield a zeroed result with IsValid unset.
func Compute(log []model.Keystroke, targetText, typedText string) model.SessionMetrics {
	var (
		firstMs    int64
		lastMs     int64
		keydowns   int
		backspaces int
	)
	for _, ks := range log {
		if ks.Kind == model.Backspace {
			backspaces++
			continue
		}
		if keydowns == 0 {
			firstMs = ks.TimestampMs
		}
		lastMs = ks.TimestampMs
		keydowns++
	}
	if keydowns == 0 {
		return model.SessionMetrics{}
	}

	targetRunes := []rune(targetText)
	typedRunes := []rune(typedText)
	correct, incorrect := compareTexts(targetRunes, typedRunes)
	missed := len(targetRunes) - len(typedRunes)
	if missed < 0 {
		missed = 0
	}
	extra := len(typedRunes) - len(targetRunes)
	if extra < 0 {
		extra = 0
	}

	durationMs := lastMs - firstMs
	minutes := float64(durationMs) / 60000.0

	rawWPM := 0.0
	netWPM := 0.0
	if minutes > 0 {
		rawWPM = math.Round((float64(len(typedRunes)) / 5.0) / minutes)
		netWPM = math.Round((float64(correct) / 5.0) / minutes)
	}

	accuracy := 0.0
	if den := correct + incorrect + missed + extra; den > 0 {
		accuracy = round2(float64(correct) / float64(den) * 100)
	}
	// Perfect accuracy requires zero corrections.
	if backspaces > 0 && accuracy >= 100 {
		accuracy = 99.99
	}

	windows := WindowedWPM(log, defaultWindowMs, defaultStepMs)
	consistency := Consistency(windows)

	m := model.SessionMetrics{
		RawWPM:         sanitize(rawWPM),
		NetWPM:         sanitize(netWPM),
		Accuracy:       sanitize(accuracy),
		Consistency:    sanitize(consistency),
		CorrectChars:   correct,
		IncorrectChars: incorrect,
		MissedChars:    missed,
		ExtraChars:     extra,
		TotalTyped:     len(typedRunes),
		Backspaces:     backspaces,
		DurationMs:     durationMs,
		IsValid:        true,
	}
	return m
}

func compareTexts(target, typed []rune) (correct, incorrect int) {
	n := len(target)
	if len(typed) < n {
		n = len(typed)
	}
	for i := 0; i < n; i++ {
		if typed[i] == target[i] {
			correct++
		} else {
			incorrect++
		}
	}
	return correct, incorrect
}

// sanitize collapses corrupted values to 0 so downstream consumers never
// see NaN, infinities, negatives, or implausibly large numbers.
func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	if v < 0 || v > maxPlausible {
		return 0
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
