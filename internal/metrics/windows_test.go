package metrics

import (
	"math"
	"testing"

	"github.com/ferrovax/keyrace/internal/model"
)

func steadyLog(chars int, intervalMs int64) []model.Keystroke {
	log := make([]model.Keystroke, 0, chars)
	for i := 0; i < chars; i++ {
		log = append(log, model.NewKeyDown("s1", 'a', 'a', int64(i)*intervalMs, i))
	}
	return log
}

func TestWindowedWPMSteadyStream(t *testing.T) {
	// One correct char every 200ms for 10s.
	log := steadyLog(51, 200)
	windows := WindowedWPM(log, 5000, 1000)
	if len(windows) == 0 {
		t.Fatalf("expected windows for a 10s stream")
	}
	// A full 5s window holds 25 chars: 5 words over 1/12 minute = 60 WPM.
	first := windows[0]
	if first.CorrectChars != 25 {
		t.Fatalf("expected 25 correct chars in first window, got %d", first.CorrectChars)
	}
	if math.Abs(first.WPM-60) > 0.001 {
		t.Fatalf("expected 60 wpm in first window, got %v", first.WPM)
	}
	if first.StartMs != 0 || first.EndMs != 5000 {
		t.Fatalf("unexpected first window bounds: %+v", first)
	}
}

func TestWindowedWPMSkipsBackspaces(t *testing.T) {
	log := steadyLog(11, 100)
	log = append(log, model.NewBackspace("s1", 1100, 11))
	withBackspace := WindowedWPM(log, 5000, 1000)
	without := WindowedWPM(log[:11], 5000, 1000)
	if len(withBackspace) != len(without) {
		t.Fatalf("backspace changed window count: %d vs %d", len(withBackspace), len(without))
	}
}

func TestWindowedWPMEmpty(t *testing.T) {
	if windows := WindowedWPM(nil, 5000, 1000); windows != nil {
		t.Fatalf("expected no windows for empty log, got %d", len(windows))
	}
}

func TestConsistencyIdenticalWindows(t *testing.T) {
	windows := []model.WpmWindow{
		{WPM: 60}, {WPM: 60}, {WPM: 60}, {WPM: 60},
	}
	if got := Consistency(windows); got != 100 {
		t.Fatalf("expected consistency 100 for identical windows, got %v", got)
	}
}

func TestConsistencyInsufficientWindows(t *testing.T) {
	if got := Consistency(nil); got != 0 {
		t.Fatalf("expected 0 for no windows, got %v", got)
	}
	if got := Consistency([]model.WpmWindow{{WPM: 55}}); got != 0 {
		t.Fatalf("expected 0 for a single window, got %v", got)
	}
}

func TestConsistencyBounds(t *testing.T) {
	// Wildly uneven pacing must clamp at 0, not go negative.
	windows := []model.WpmWindow{{WPM: 1}, {WPM: 200}, {WPM: 2}, {WPM: 180}}
	got := Consistency(windows)
	if got < 0 || got > 100 {
		t.Fatalf("consistency %v out of [0,100]", got)
	}
}
