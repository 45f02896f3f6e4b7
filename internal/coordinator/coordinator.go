// Package coordinator composes the metrics kernel, bot runner, and race
// state machine with transport, clock, and persistence collaborators,
// reconciling local input, bot ticks, and remote peer snapshots into one
// consistent race view.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ferrovax/keyrace/internal/bot"
	"github.com/ferrovax/keyrace/internal/metrics"
	"github.com/ferrovax/keyrace/internal/model"
	"github.com/ferrovax/keyrace/internal/pubsub"
	"github.com/ferrovax/keyrace/internal/race"
)

// Clock is a monotonic millisecond source. The coordinator reads only
// time differences, never wall-clock date semantics.
type Clock interface {
	NowMs() int64
}

// Transport publishes and subscribes partial race state on a shared
// channel keyed by room code. Delivery is at-least-once and unordered
// beyond the snapshot Version field.
type Transport interface {
	Publish(channelKey string, snap pubsub.Snapshot)
	Subscribe(channelKey string, fn pubsub.Handler) (cancel func())
}

// Archiver accepts a finished race snapshot plus the local keystroke log
// for durable storage.
type Archiver interface {
	SaveRace(ctx context.Context, rec model.RaceRecord, log []model.Keystroke) error
}

// Default pacing parameters.
const (
	DefaultCountdownMs       int64 = 3000
	DefaultDurationMs        int64 = 120000
	DefaultPublishThrottleMs int64 = 200
	DefaultBotTickMs         int64 = 50
)

// Options configures a race run by a coordinator.
type Options struct {
	RaceID      string
	RoomCode    string
	LocalID     string
	HostID      string
	Lang        string
	Text        string
	DurationMs  int64
	CountdownMs int64
	// BotLevel > 0 races a synthetic opponent instead of a remote peer;
	// there is no network channel in that mode.
	BotLevel int
	BotSeed  int64
}

// Deps carries the external collaborators. Transport may be nil for bot
// races; Archiver and Confidence may be nil when persistence is not wired.
type Deps struct {
	Clock      Clock
	Transport  Transport
	Archiver   Archiver
	Confidence metrics.ConfidenceRepo
	Logger     *zap.Logger
}

// Coordinator owns one client's view of a race. Local input arrives on
// the driver goroutine while snapshots arrive on the transport's; the
// mutex keeps the two timelines from interleaving mid-mutation.
type Coordinator struct {
	mu   sync.Mutex
	opts Options
	deps Deps

	state  *model.RaceState
	target []rune
	typed  []rune
	log    []model.Keystroke

	opponent *bot.Bot

	unsubscribe       func()
	outbox            []pubsub.Snapshot
	lastPublishMs     int64
	lastRemoteVersion int64
	frozen            bool
	archived          bool
}

// New builds a coordinator. The local player is the host when LocalID
// equals HostID; otherwise it registers itself as the opponent.
func New(opts Options, deps Deps) (*Coordinator, error) {
	if opts.LocalID == "" {
		return nil, fmt.Errorf("local player id is required")
	}
	if opts.Text == "" {
		return nil, fmt.Errorf("race text is required")
	}
	if deps.Clock == nil {
		return nil, fmt.Errorf("clock collaborator is required")
	}
	if opts.HostID == "" {
		opts.HostID = opts.LocalID
	}
	if opts.DurationMs <= 0 {
		opts.DurationMs = DefaultDurationMs
	}
	if opts.CountdownMs <= 0 {
		opts.CountdownMs = DefaultCountdownMs
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	state := race.New(opts.HostID, opts.RoomCode, opts.Text)
	if opts.RaceID != "" {
		state.ID = opts.RaceID
	}

	c := &Coordinator{
		opts:   opts,
		deps:   deps,
		state:  state,
		target: []rune(opts.Text),
	}

	if opts.BotLevel > 0 {
		seed := opts.BotSeed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		botID := "bot-" + state.ID
		if err := race.AddOpponent(state, botID, true, opts.BotLevel); err != nil {
			return nil, fmt.Errorf("add bot opponent: %w", err)
		}
		c.opponent = bot.NewSeeded(bot.ProfileForLevel(opts.BotLevel), state.ID, opts.Text, seed)
	} else if opts.LocalID != opts.HostID {
		if err := race.AddOpponent(state, opts.LocalID, false, 0); err != nil {
			return nil, fmt.Errorf("register local opponent: %w", err)
		}
	}

	c.lastPublishMs = -DefaultPublishThrottleMs
	if c.opponent == nil && deps.Transport != nil {
		c.unsubscribe = deps.Transport.Subscribe(state.RoomCode, c.applySnapshot)
		if opts.LocalID != opts.HostID {
			// Announce the join so the host registers the opponent.
			c.mu.Lock()
			c.publish(deps.Clock.NowMs(), true)
			c.mu.Unlock()
			c.flush()
		}
	}
	return c, nil
}

// Close detaches the coordinator from its transport channel.
func (c *Coordinator) Close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
}

// State returns a copy of the current race view.
func (c *Coordinator) State() model.RaceState {
	c.mu.Lock()
	defer c.mu.Unlock()
	snapshot := *c.state
	if c.state.Opponent != nil {
		opp := *c.state.Opponent
		snapshot.Opponent = &opp
	}
	return snapshot
}

// Keystrokes returns the local keystroke log.
func (c *Coordinator) Keystrokes() []model.Keystroke {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.log
}

// TypedText returns what the local player has typed so far.
func (c *Coordinator) TypedText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return string(c.typed)
}

// StartCountdown begins the countdown. Only meaningful for the host;
// duplicate signals collapse to one effect.
func (c *Coordinator) StartCountdown() error {
	c.mu.Lock()
	defer c.flush()
	defer c.mu.Unlock()
	now := c.deps.Clock.NowMs()
	applied, err := race.StartCountdown(c.state, c.opts.LocalID, now)
	if err != nil {
		return err
	}
	if applied {
		c.publish(now, true)
	}
	return nil
}

// CountdownRemainingMs reports milliseconds left before the race starts,
// or 0 outside the countdown phase.
func (c *Coordinator) CountdownRemainingMs() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Status != model.StatusCountdown {
		return 0
	}
	remaining := c.state.CountdownStartedAtMs + c.opts.CountdownMs - c.deps.Clock.NowMs()
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// LocalID returns the local player's id.
func (c *Coordinator) LocalID() string {
	return c.opts.LocalID
}

// HandleKeystroke records one local character keystroke, recomputes live
// stats from the log, and publishes the updated state (throttled).
// Input outside the active phase is dropped.
func (c *Coordinator) HandleKeystroke(typed rune) {
	c.mu.Lock()
	defer c.flush()
	defer c.mu.Unlock()
	if c.frozen || c.state.Status != model.StatusActive {
		return
	}
	cursor := len(c.typed)
	if cursor >= len(c.target) {
		return
	}
	now := c.deps.Clock.NowMs()
	c.log = append(c.log, model.NewKeyDown(c.state.ID, c.target[cursor], typed, now, cursor))
	c.typed = append(c.typed, typed)
	c.afterLocalInput(now)
}

// HandleBackspace records one local backspace.
func (c *Coordinator) HandleBackspace() {
	c.mu.Lock()
	defer c.flush()
	defer c.mu.Unlock()
	if c.frozen || c.state.Status != model.StatusActive {
		return
	}
	if len(c.typed) == 0 {
		return
	}
	now := c.deps.Clock.NowMs()
	c.log = append(c.log, model.NewBackspace(c.state.ID, now, len(c.typed)))
	c.typed = c.typed[:len(c.typed)-1]
	c.afterLocalInput(now)
}

func (c *Coordinator) afterLocalInput(nowMs int64) {
	progress, wpm, accuracy := c.liveStats(nowMs)
	if err := race.UpdateProgress(c.state, c.opts.LocalID, progress, wpm, accuracy, nowMs); err != nil {
		c.deps.Logger.Warn("local progress rejected", zap.Error(err))
		return
	}
	finished := progress >= 100
	c.publish(nowMs, finished)
	if finished {
		c.finish(nowMs)
	}
}

// liveStats derives the local player's display stats from the keystroke
// log, using elapsed time since race start rather than log span so the
// rate reflects idle gaps too.
func (c *Coordinator) liveStats(nowMs int64) (progress, wpm, accuracy float64) {
	m := metrics.Compute(c.log, c.opts.Text, string(c.typed))
	accuracy = m.Accuracy
	if len(c.target) > 0 {
		progress = float64(len(c.typed)) / float64(len(c.target)) * 100
	}
	elapsedMin := float64(nowMs-c.state.RaceStartedAtMs) / 60000.0
	if elapsedMin > 0 {
		wpm = (float64(m.CorrectChars) / 5.0) / elapsedMin
	}
	return progress, wpm, accuracy
}

// Advance drives time-based work: countdown expiry, bot ticks, duration
// timeout, and finish detection. Drivers call it on a fixed interval
// (the bot tick, 50ms); it never blocks.
func (c *Coordinator) Advance() {
	c.mu.Lock()
	defer c.flush()
	defer c.mu.Unlock()
	if c.state.Status.Terminal() {
		return
	}
	now := c.deps.Clock.NowMs()

	if c.state.Status == model.StatusCountdown && now-c.state.CountdownStartedAtMs >= c.opts.CountdownMs {
		applied, err := race.StartRace(c.state, now)
		if err != nil {
			c.deps.Logger.Warn("race start rejected", zap.Error(err))
		} else if applied {
			if c.opponent != nil {
				c.opponent.Start(now)
			}
			c.publish(now, true)
		}
	}

	if c.state.Status != model.StatusActive {
		return
	}

	if c.opponent != nil {
		c.opponent.Tick(now)
		m := c.opponent.Metrics()
		oppID := c.state.Opponent.ID
		if err := race.UpdateProgress(c.state, oppID, c.opponent.Progress(), m.NetWPM, m.Accuracy, now); err != nil {
			c.deps.Logger.Warn("bot progress rejected", zap.Error(err))
		}
	}

	hostDone := c.state.Host.Finished()
	oppDone := c.state.Opponent != nil && c.state.Opponent.Finished()
	timedOut := now-c.state.RaceStartedAtMs >= c.opts.DurationMs
	if hostDone || oppDone || timedOut {
		c.finish(now)
	}
}

// Cancel aborts the race and notifies the peer (best effort).
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	defer c.flush()
	defer c.mu.Unlock()
	now := c.deps.Clock.NowMs()
	applied, err := race.Cancel(c.state, now)
	if err != nil || !applied {
		return
	}
	c.frozen = true
	c.publish(now, true)
}

// finish freezes local mutation, completes the race, and archives it.
func (c *Coordinator) finish(nowMs int64) {
	applied, err := race.Complete(c.state, nowMs)
	if err != nil {
		c.deps.Logger.Warn("race completion rejected", zap.Error(err))
		return
	}
	if !applied {
		return
	}
	c.frozen = true
	c.publish(nowMs, true)
	c.archive(nowMs)
}

func (c *Coordinator) archive(nowMs int64) {
	if c.archived {
		return
	}
	c.archived = true
	ctx := context.Background()

	if c.deps.Confidence != nil {
		if err := metrics.ObserveKeystrokes(ctx, c.deps.Confidence, c.opts.Lang, c.log); err != nil {
			c.deps.Logger.Warn("confidence update failed", zap.Error(err))
		}
	}
	if c.deps.Archiver == nil {
		return
	}
	rec := c.record(nowMs)
	if err := c.deps.Archiver.SaveRace(ctx, rec, c.log); err != nil {
		c.deps.Logger.Error("race archive failed", zap.String("race", c.state.ID), zap.Error(err))
		return
	}
	c.deps.Logger.Info("race archived",
		zap.String("race", c.state.ID),
		zap.String("winner", c.state.WinnerID),
		zap.Bool("tie", c.state.IsTie),
	)
}

func (c *Coordinator) record(nowMs int64) model.RaceRecord {
	endedAt := time.Now()
	startedAt := endedAt.Add(-time.Duration(nowMs-c.state.RaceStartedAtMs) * time.Millisecond)
	rec := model.RaceRecord{
		ID:           c.state.ID,
		RoomCode:     c.state.RoomCode,
		Lang:         c.opts.Lang,
		Status:       c.state.Status,
		HostID:       c.state.HostID,
		WinnerID:     c.state.WinnerID,
		IsTie:        c.state.IsTie,
		ExpectedText: c.state.ExpectedText,
		HostWPM:      c.state.Host.WPM,
		HostAccuracy: c.state.Host.Accuracy,
		HostProgress: c.state.Host.Progress,
		StartedAt:    startedAt,
		EndedAt:      endedAt,
		DurationMs:   c.state.RaceEndedAtMs - c.state.RaceStartedAtMs,
	}
	if c.state.Opponent != nil {
		rec.OppID = c.state.Opponent.ID
		rec.OppIsBot = c.state.Opponent.IsBot
		rec.OppWPM = c.state.Opponent.WPM
		rec.OppAccuracy = c.state.Opponent.Accuracy
		rec.OppProgress = c.state.Opponent.Progress
	}
	return rec
}

// publish stages the local participant's state for sending. Writes are
// throttled to one per 200ms unless forced by a lifecycle edge. Staged
// snapshots leave via flush once the lock is released: the bus runs
// handlers synchronously, so publishing under the lock would re-enter
// applySnapshot on the same mutex.
func (c *Coordinator) publish(nowMs int64, force bool) {
	if c.deps.Transport == nil || c.opponent != nil {
		return
	}
	if !force && nowMs-c.lastPublishMs < DefaultPublishThrottleMs {
		return
	}
	c.lastPublishMs = nowMs
	player := c.state.Participant(c.opts.LocalID)
	if player == nil {
		return
	}
	c.outbox = append(c.outbox, pubsub.Snapshot{
		RaceID:               c.state.ID,
		Version:              c.state.Version,
		Status:               c.state.Status,
		Player:               *player,
		CountdownStartedAtMs: c.state.CountdownStartedAtMs,
		RaceStartedAtMs:      c.state.RaceStartedAtMs,
		SentAtMs:             nowMs,
	})
}

// flush delivers staged snapshots. Callers must not hold the lock.
func (c *Coordinator) flush() {
	c.mu.Lock()
	staged := c.outbox
	c.outbox = nil
	channel := c.state.RoomCode
	c.mu.Unlock()
	for _, snap := range staged {
		c.deps.Transport.Publish(channel, snap)
	}
}

// applySnapshot merges an inbound remote snapshot. Only the remote
// participant's fields are merged; local fields are never overwritten
// from remote data. Stale versions are discarded.
func (c *Coordinator) applySnapshot(snap pubsub.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if snap.Player.ID == c.opts.LocalID {
		return
	}
	if snap.RaceID != "" && snap.RaceID != c.state.ID {
		return
	}
	if snap.Version <= c.lastRemoteVersion {
		c.deps.Logger.Debug("stale snapshot discarded",
			zap.Int64("version", snap.Version),
			zap.Int64("applied", c.lastRemoteVersion),
		)
		return
	}
	c.lastRemoteVersion = snap.Version
	now := c.deps.Clock.NowMs()

	// A first snapshot from an unknown peer is a join.
	if c.state.Opponent == nil && snap.Player.ID != c.state.HostID {
		if err := race.AddOpponent(c.state, snap.Player.ID, snap.Player.IsBot, snap.Player.BotLevel); err != nil {
			c.deps.Logger.Warn("peer join rejected", zap.Error(err))
			return
		}
	}

	// Lifecycle signals ride along with peer state; the transitions are
	// idempotent, so duplicates collapse.
	switch snap.Status {
	case model.StatusCountdown:
		// Anchor on the local clock; peer clocks share no epoch, so the
		// snapshot's own countdown timestamp is meaningless here.
		if c.state.Status == model.StatusWaiting {
			if _, err := race.StartCountdown(c.state, c.state.HostID, now); err != nil {
				c.deps.Logger.Warn("remote countdown rejected", zap.Error(err))
			}
		}
	case model.StatusActive:
		if c.state.Status == model.StatusCountdown {
			if _, err := race.StartRace(c.state, now); err != nil {
				c.deps.Logger.Warn("remote race start rejected", zap.Error(err))
			}
		}
	case model.StatusCancelled:
		if applied, _ := race.Cancel(c.state, now); applied {
			c.frozen = true
		}
		return
	}

	remote := c.state.Participant(snap.Player.ID)
	if remote == nil || c.state.Status != model.StatusActive {
		return
	}
	// The peer owns its finish time; take it before the progress update
	// stamps a local one.
	if snap.Player.FinishedAtMs > 0 && remote.FinishedAtMs == 0 {
		remote.FinishedAtMs = snap.Player.FinishedAtMs
	}
	if err := race.UpdateProgress(c.state, snap.Player.ID, snap.Player.Progress, snap.Player.WPM, snap.Player.Accuracy, now); err != nil {
		// A malformed update degrades to the last known peer stats.
		c.deps.Logger.Warn("remote progress rejected", zap.Error(err))
	}
}
