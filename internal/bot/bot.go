// Package bot synthesizes realistic keystroke activity against a
// configurable skill profile. A bot is advanced by discrete Tick calls
// over a virtual millisecond clock rather than wall-clock typing, and is
// graded by the same metrics pipeline as a human.
package bot

import (
	"math"
	"math/rand"
	"time"

	"github.com/ferrovax/keyrace/internal/metrics"
	"github.com/ferrovax/keyrace/internal/model"
)

// Profile describes a bot skill level.
type Profile struct {
	TargetWPMMean        float64
	TargetWPMStdDev      float64
	MistakeProbability   float64
	CorrectionDelayMinMs int64
	CorrectionDelayMaxMs int64
	// Sigma of the log-normal inter-keystroke delay distribution. The
	// delay mean itself is derived from the sampled target WPM.
	InterKeySigma float64
}

// Skill level presets, 1 (novice) through 5 (expert).
var levelProfiles = map[int]Profile{
	1: {TargetWPMMean: 30, TargetWPMStdDev: 4, MistakeProbability: 0.06, CorrectionDelayMinMs: 200, CorrectionDelayMaxMs: 500, InterKeySigma: 0.30},
	2: {TargetWPMMean: 45, TargetWPMStdDev: 5, MistakeProbability: 0.05, CorrectionDelayMinMs: 180, CorrectionDelayMaxMs: 450, InterKeySigma: 0.28},
	3: {TargetWPMMean: 60, TargetWPMStdDev: 6, MistakeProbability: 0.04, CorrectionDelayMinMs: 160, CorrectionDelayMaxMs: 400, InterKeySigma: 0.25},
	4: {TargetWPMMean: 80, TargetWPMStdDev: 7, MistakeProbability: 0.03, CorrectionDelayMinMs: 140, CorrectionDelayMaxMs: 350, InterKeySigma: 0.22},
	5: {TargetWPMMean: 100, TargetWPMStdDev: 8, MistakeProbability: 0.02, CorrectionDelayMinMs: 120, CorrectionDelayMaxMs: 300, InterKeySigma: 0.20},
}

// ProfileForLevel returns the preset for a level, clamped to the known range.
func ProfileForLevel(level int) Profile {
	if level < 1 {
		level = 1
	}
	if level > len(levelProfiles) {
		level = len(levelProfiles)
	}
	return levelProfiles[level]
}

// Correction stages after a mistake.
const (
	fixNone = iota
	fixBackspace
	fixRetype
)

// Bot owns a synthetic participant's state, mutated only through Tick.
type Bot struct {
	profile    Profile
	sessionID  string
	target     []rune
	typed      []rune
	cursor     int
	log        []model.Keystroke
	rnd        *rand.Rand
	running    bool
	startMs    int64
	nextDueMs  int64
	fixStage   int
	targetWPM  float64
	interKeyMu float64
	lastStats  model.SessionMetrics
}

// New creates an unstarted bot seeded from the current time.
func New(profile Profile, sessionID, targetText string) *Bot {
	return NewSeeded(profile, sessionID, targetText, time.Now().UnixNano())
}

// NewSeeded creates an unstarted bot with a fixed RNG seed. Identical
// seeds and tick schedules replay the identical keystroke log.
func NewSeeded(profile Profile, sessionID, targetText string, seed int64) *Bot {
	b := &Bot{
		profile:   profile,
		sessionID: sessionID,
		target:    []rune(targetText),
		rnd:       rand.New(rand.NewSource(seed)),
	}
	b.targetWPM = profile.TargetWPMMean + b.rnd.NormFloat64()*profile.TargetWPMStdDev
	if b.targetWPM < 5 {
		b.targetWPM = 5
	}
	// Mean inter-key delay that realizes the sampled WPM, with the
	// log-normal mu adjusted so the distribution mean lands on it.
	meanDelayMs := 60000.0 / (b.targetWPM * 5.0)
	sigma := profile.InterKeySigma
	b.interKeyMu = math.Log(meanDelayMs) - sigma*sigma/2
	return b
}

// Start marks the bot running. Ticks before Start are no-ops.
func (b *Bot) Start(nowMs int64) {
	if b.running {
		return
	}
	b.running = true
	b.startMs = nowMs
	b.nextDueMs = nowMs + b.sampleInterKeyDelay()
}

// IsFinished reports whether the bot consumed the whole target text.
func (b *Bot) IsFinished() bool {
	return b.cursor >= len(b.target)
}

// Tick advances the bot to the given virtual time, appending every
// keystroke that came due. Ticking a finished or unstarted bot is a
// no-op; no errors are used for control flow.
func (b *Bot) Tick(nowMs int64) {
	if !b.running || b.IsFinished() {
		return
	}
	appended := false
	for nowMs >= b.nextDueMs && !b.IsFinished() {
		b.emit(b.nextDueMs)
		appended = true
	}
	if appended {
		b.lastStats = metrics.Compute(b.log, string(b.target), string(b.typed))
	}
}

func (b *Bot) emit(atMs int64) {
	switch b.fixStage {
	case fixBackspace:
		b.log = append(b.log, model.NewBackspace(b.sessionID, atMs, b.cursor))
		b.typed = b.typed[:len(b.typed)-1]
		b.cursor--
		b.fixStage = fixRetype
		b.nextDueMs = atMs + b.sampleInterKeyDelay()
		return
	case fixRetype:
		expected := b.target[b.cursor]
		b.log = append(b.log, model.NewKeyDown(b.sessionID, expected, expected, atMs, b.cursor))
		b.typed = append(b.typed, expected)
		b.cursor++
		b.fixStage = fixNone
		b.nextDueMs = atMs + b.sampleInterKeyDelay()
		return
	}

	expected := b.target[b.cursor]
	typed := expected
	// Never misfire on the final character so the run ends clean.
	mistake := b.cursor < len(b.target)-1 && b.rnd.Float64() < b.profile.MistakeProbability
	if mistake {
		typed = adjacentKey(expected, b.rnd)
	}
	b.log = append(b.log, model.NewKeyDown(b.sessionID, expected, typed, atMs, b.cursor))
	b.typed = append(b.typed, typed)
	b.cursor++
	if mistake {
		b.fixStage = fixBackspace
		b.nextDueMs = atMs + b.sampleCorrectionDelay()
	} else {
		b.nextDueMs = atMs + b.sampleInterKeyDelay()
	}
}

func (b *Bot) sampleInterKeyDelay() int64 {
	delay := math.Exp(b.interKeyMu + b.rnd.NormFloat64()*b.profile.InterKeySigma)
	if delay < 1 {
		delay = 1
	}
	return int64(math.Round(delay))
}

func (b *Bot) sampleCorrectionDelay() int64 {
	lo, hi := b.profile.CorrectionDelayMinMs, b.profile.CorrectionDelayMaxMs
	if hi <= lo {
		return lo
	}
	return lo + b.rnd.Int63n(hi-lo)
}

// Progress returns the percentage of target text consumed.
func (b *Bot) Progress() float64 {
	if len(b.target) == 0 {
		return 0
	}
	p := float64(b.cursor) / float64(len(b.target)) * 100
	if p > 100 {
		p = 100
	}
	return p
}

// Metrics returns the bot's latest self-graded session metrics.
func (b *Bot) Metrics() model.SessionMetrics {
	return b.lastStats
}

// Keystrokes returns the bot's keystroke log.
func (b *Bot) Keystrokes() []model.Keystroke {
	return b.log
}

// TypedText returns what the bot has typed so far.
func (b *Bot) TypedText() string {
	return string(b.typed)
}
