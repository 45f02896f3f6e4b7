package bot

import (
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/ferrovax/keyrace/internal/model"
)

const testText = "the quick brown fox jumps over the lazy dog while the cat naps near the warm stove"

// runToCompletion ticks the bot on a fixed 50ms schedule until it
// finishes, returning the virtual duration. Fails the test if the bot
// never finishes inside the time cap.
func runToCompletion(t *testing.T, b *Bot) int64 {
	t.Helper()
	b.Start(0)
	var now int64
	for !b.IsFinished() {
		now += 50
		b.Tick(now)
		if now > 10*60*1000 {
			t.Fatalf("bot did not finish within 10 virtual minutes")
		}
	}
	return now
}

func TestTickBeforeStartIsNoop(t *testing.T) {
	b := NewSeeded(ProfileForLevel(3), "bot", testText, 1)
	b.Tick(5000)
	if len(b.Keystrokes()) != 0 {
		t.Fatalf("unstarted bot produced %d keystrokes", len(b.Keystrokes()))
	}
}

func TestTickAfterFinishIsNoop(t *testing.T) {
	b := NewSeeded(ProfileForLevel(5), "bot", "hi", 2)
	runToCompletion(t, b)
	logLen := len(b.Keystrokes())
	b.Tick(60 * 60 * 1000)
	if len(b.Keystrokes()) != logLen {
		t.Fatalf("finished bot kept typing: %d -> %d keystrokes", logLen, len(b.Keystrokes()))
	}
}

func TestFinishedExactlyAtTextEnd(t *testing.T) {
	b := NewSeeded(ProfileForLevel(3), "bot", testText, 3)
	runToCompletion(t, b)
	if !b.IsFinished() {
		t.Fatalf("expected finished bot")
	}
	if b.TypedText() != testText {
		t.Fatalf("typed text diverged from target:\n%q\n%q", b.TypedText(), testText)
	}
	if b.Progress() != 100 {
		t.Fatalf("expected progress 100, got %v", b.Progress())
	}
}

func TestDeterministicReplay(t *testing.T) {
	first := NewSeeded(ProfileForLevel(2), "bot", testText, 42)
	second := NewSeeded(ProfileForLevel(2), "bot", testText, 42)
	runToCompletion(t, first)
	runToCompletion(t, second)
	if !reflect.DeepEqual(first.Keystrokes(), second.Keystrokes()) {
		t.Fatalf("identical seeds produced different keystroke logs")
	}
}

func TestMistakesAreCorrected(t *testing.T) {
	// A high mistake rate must still converge on the target text.
	profile := ProfileForLevel(1)
	profile.MistakeProbability = 0.3
	b := NewSeeded(profile, "bot", testText, 7)
	runToCompletion(t, b)

	backspaces := 0
	for _, ks := range b.Keystrokes() {
		if ks.CursorIndex < 0 {
			t.Fatalf("negative cursor index in log: %+v", ks)
		}
		if ks.Kind == model.Backspace {
			backspaces++
		}
	}
	if backspaces == 0 {
		t.Fatalf("expected some backspaces at 30%% mistake rate")
	}
	if b.TypedText() != testText {
		t.Fatalf("mistakes not corrected, typed %q", b.TypedText())
	}
	m := b.Metrics()
	if m.Accuracy != 99.99 {
		t.Fatalf("expected corrected run clamped to 99.99 accuracy, got %v", m.Accuracy)
	}
}

func TestStartIsIdempotent(t *testing.T) {
	b := NewSeeded(ProfileForLevel(3), "bot", testText, 11)
	b.Start(0)
	b.Tick(2000)
	logLen := len(b.Keystrokes())
	b.Start(5000)
	b.Tick(2000)
	if len(b.Keystrokes()) != logLen {
		t.Fatalf("restart rewound the bot clock")
	}
}

func TestFinishingWPMTracksProfile(t *testing.T) {
	profile := ProfileForLevel(3)
	longText := strings.Repeat(testText+" ", 3)
	longText = strings.TrimSpace(longText)

	const races = 20
	var sum float64
	for seed := int64(0); seed < races; seed++ {
		b := NewSeeded(profile, "bot", longText, seed)
		runToCompletion(t, b)
		m := b.Metrics()
		if !m.IsValid {
			t.Fatalf("seed %d: invalid metrics", seed)
		}
		sum += m.NetWPM
	}
	mean := sum / races
	if math.Abs(mean-profile.TargetWPMMean) > profile.TargetWPMMean*0.2 {
		t.Fatalf("mean finishing wpm %v outside 20%% of target %v", mean, profile.TargetWPMMean)
	}
}

func TestProfileForLevelClamps(t *testing.T) {
	if ProfileForLevel(0) != ProfileForLevel(1) {
		t.Fatalf("level below range should clamp to 1")
	}
	if ProfileForLevel(99) != ProfileForLevel(5) {
		t.Fatalf("level above range should clamp to 5")
	}
}
