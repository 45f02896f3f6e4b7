// Package metrics turns keystroke logs into session metrics.
package metrics

import (
	"math"

	"github.com/ferrovax/keyrace/internal/model"
)

// Default sliding-window parameters for consistency sampling.
const (
	defaultWindowMs int64 = 5000
	defaultStepMs   int64 = 1000
)

// WindowedWPM partitions the non-backspace keystroke stream into sliding
// windows and computes a WPM sample per window. Feeds both consistency and
// live "current speed" display.
func WindowedWPM(log []model.Keystroke, windowMs, stepMs int64) []model.WpmWindow {
	if windowMs <= 0 || stepMs <= 0 {
		return nil
	}
	var stream []model.Keystroke
	for _, ks := range log {
		if ks.Kind == model.Backspace {
			continue
		}
		stream = append(stream, ks)
	}
	if len(stream) == 0 {
		return nil
	}

	firstMs := stream[0].TimestampMs
	lastMs := stream[len(stream)-1].TimestampMs
	windowMinutes := float64(windowMs) / 60000.0

	var windows []model.WpmWindow
	for start := firstMs; start <= lastMs; start += stepMs {
		end := start + windowMs
		correct := 0
		for _, ks := range stream {
			if ks.TimestampMs < start || ks.TimestampMs >= end {
				continue
			}
			if ks.Correct {
				correct++
			}
		}
		windows = append(windows, model.WpmWindow{
			StartMs:      start,
			EndMs:        end,
			WPM:          (float64(correct) / 5.0) / windowMinutes,
			CorrectChars: correct,
		})
	}
	return windows
}

// Consistency maps window WPM samples to a pacing-stability score:
// 100 minus the coefficient of variation, clamped to [0,100]. Fewer than
// two windows is insufficient signal and yields 0, not an error.
func Consistency(windows []model.WpmWindow) float64 {
	if len(windows) < 2 {
		return 0
	}
	var sum float64
	for _, w := range windows {
		sum += w.WPM
	}
	mean := sum / float64(len(windows))
	if mean <= 0 {
		return 0
	}
	var variance float64
	for _, w := range windows {
		d := w.WPM - mean
		variance += d * d
	}
	variance /= float64(len(windows))
	cv := math.Sqrt(variance) / mean
	consistency := 100 - cv*100
	if consistency < 0 {
		return 0
	}
	if consistency > 100 {
		return 100
	}
	return consistency
}
