package store

import (
	"context"
	"fmt"
	"math"

	"github.com/ferrovax/keyrace/internal/metrics"
	"github.com/ferrovax/keyrace/internal/model"
)

// Recomputed holds the result of re-deriving a race's metrics from its
// persisted keystroke log, together with the drift against the archived
// values. Client-reported numbers are advisory; the log is the source of
// truth.
type Recomputed struct {
	Record  model.RaceRecord
	Metrics model.SessionMetrics

	// ElapsedMs spans the full log, backspaces included.
	ElapsedMs int64

	WPMDrift      float64
	AccuracyDrift float64
}

// RecomputeRace replays a race's keystroke log and recomputes the host's
// metrics from scratch.
func (s *Store) RecomputeRace(ctx context.Context, raceID string) (Recomputed, error) {
	rec, err := s.GetRace(ctx, raceID)
	if err != nil {
		return Recomputed{}, fmt.Errorf("load race %s: %w", raceID, err)
	}
	log, err := s.LoadKeystrokes(ctx, raceID)
	if err != nil {
		return Recomputed{}, fmt.Errorf("load keystrokes for %s: %w", raceID, err)
	}
	if len(log) == 0 {
		return Recomputed{}, fmt.Errorf("race %s has no keystroke log", raceID)
	}

	typed := replayTyped(log)
	m := metrics.Compute(log, rec.ExpectedText, typed)

	out := Recomputed{
		Record:        rec,
		Metrics:       m,
		ElapsedMs:     log[len(log)-1].TimestampMs - log[0].TimestampMs,
		WPMDrift:      math.Abs(m.NetWPM - rec.HostWPM),
		AccuracyDrift: math.Abs(m.Accuracy - rec.HostAccuracy),
	}
	return out, nil
}

// replayTyped reconstructs the final typed text by applying the log in
// order.
func replayTyped(log []model.Keystroke) string {
	var buf []rune
	for _, ks := range log {
		switch ks.Kind {
		case model.KeyDown:
			buf = append(buf, ks.Typed)
		case model.Backspace:
			if len(buf) > 0 {
				buf = buf[:len(buf)-1]
			}
		}
	}
	return string(buf)
}
