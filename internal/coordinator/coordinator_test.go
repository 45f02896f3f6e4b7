package coordinator

import (
	"context"
	"strings"
	"testing"

	"github.com/ferrovax/keyrace/internal/model"
	"github.com/ferrovax/keyrace/internal/pubsub"
)

const raceText = "the quick brown fox jumps over the lazy dog"

type fakeClock struct {
	ms int64
}

func (f *fakeClock) NowMs() int64 { return f.ms }

func (f *fakeClock) advance(deltaMs int64) { f.ms += deltaMs }

type recordingArchiver struct {
	records []model.RaceRecord
	logs    [][]model.Keystroke
}

func (r *recordingArchiver) SaveRace(_ context.Context, rec model.RaceRecord, log []model.Keystroke) error {
	r.records = append(r.records, rec)
	r.logs = append(r.logs, log)
	return nil
}

func newBotCoordinator(t *testing.T, clock *fakeClock, arch Archiver, durationMs int64) *Coordinator {
	t.Helper()
	c, err := New(Options{
		LocalID:    "me",
		RoomCode:   "room",
		Text:       raceText,
		BotLevel:   3,
		BotSeed:    1,
		DurationMs: durationMs,
	}, Deps{Clock: clock, Archiver: arch})
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	return c
}

func startBotRace(t *testing.T, c *Coordinator, clock *fakeClock) {
	t.Helper()
	if err := c.StartCountdown(); err != nil {
		t.Fatalf("start countdown: %v", err)
	}
	clock.advance(DefaultCountdownMs)
	c.Advance()
	if got := c.State().Status; got != model.StatusActive {
		t.Fatalf("expected active after countdown, got %q", got)
	}
}

func TestBotRaceRunsToCompletion(t *testing.T) {
	clock := &fakeClock{ms: 1000}
	arch := &recordingArchiver{}
	c := newBotCoordinator(t, clock, arch, 10*60*1000)
	startBotRace(t, c, clock)

	for i := 0; i < 100000; i++ {
		clock.advance(DefaultBotTickMs)
		c.Advance()
		if c.State().Status.Terminal() {
			break
		}
	}
	state := c.State()
	if state.Status != model.StatusCompleted {
		t.Fatalf("expected completed race, got %q", state.Status)
	}
	if state.Opponent == nil || state.Opponent.Progress != 100 {
		t.Fatalf("expected bot to finish, got %+v", state.Opponent)
	}
	// Local player never typed; the bot wins outright.
	if state.WinnerID != state.Opponent.ID {
		t.Fatalf("expected bot winner, got %q", state.WinnerID)
	}
	if len(arch.records) != 1 {
		t.Fatalf("expected one archived record, got %d", len(arch.records))
	}
	if arch.records[0].OppIsBot != true || arch.records[0].WinnerID != state.Opponent.ID {
		t.Fatalf("unexpected archive record: %+v", arch.records[0])
	}
}

func TestLocalTypistWinsBotRace(t *testing.T) {
	clock := &fakeClock{ms: 1000}
	arch := &recordingArchiver{}
	c := newBotCoordinator(t, clock, arch, 10*60*1000)
	startBotRace(t, c, clock)

	for _, r := range raceText {
		clock.advance(40)
		c.Advance()
		c.HandleKeystroke(r)
	}
	state := c.State()
	if state.Status != model.StatusCompleted {
		t.Fatalf("expected completed race, got %q", state.Status)
	}
	if state.WinnerID != "me" {
		t.Fatalf("expected local winner, got %q", state.WinnerID)
	}
	if state.Host.Progress != 100 || state.Host.FinishedAtMs == 0 {
		t.Fatalf("unexpected host state: %+v", state.Host)
	}
	if len(arch.logs) != 1 || len(arch.logs[0]) != len([]rune(raceText)) {
		t.Fatalf("expected archived keystroke log")
	}
}

func TestDurationTimeoutCompletesRace(t *testing.T) {
	clock := &fakeClock{ms: 1000}
	arch := &recordingArchiver{}
	c := newBotCoordinator(t, clock, arch, 2000)
	startBotRace(t, c, clock)

	for i := 0; i < 100 && !c.State().Status.Terminal(); i++ {
		clock.advance(DefaultBotTickMs)
		c.Advance()
	}
	state := c.State()
	if state.Status != model.StatusCompleted {
		t.Fatalf("expected timeout completion, got %q", state.Status)
	}
	if state.Opponent.Progress >= 100 {
		t.Fatalf("bot should not have finished a 2s race")
	}
	if len(arch.records) != 1 {
		t.Fatalf("expected archive on timeout, got %d records", len(arch.records))
	}
}

func TestDuplicateCountdownCollapses(t *testing.T) {
	clock := &fakeClock{ms: 1000}
	c := newBotCoordinator(t, clock, nil, 0)
	if err := c.StartCountdown(); err != nil {
		t.Fatalf("start countdown: %v", err)
	}
	version := c.State().Version
	if err := c.StartCountdown(); err != nil {
		t.Fatalf("duplicate countdown errored: %v", err)
	}
	if c.State().Version != version {
		t.Fatalf("duplicate countdown mutated state")
	}
}

func TestInputOutsideActiveIsDropped(t *testing.T) {
	clock := &fakeClock{ms: 1000}
	c := newBotCoordinator(t, clock, nil, 0)
	c.HandleKeystroke('t')
	c.HandleBackspace()
	if len(c.Keystrokes()) != 0 {
		t.Fatalf("input before active leaked into log")
	}
}

func newPeerPair(t *testing.T, clock *fakeClock, bus *pubsub.Bus) (host, guest *Coordinator) {
	t.Helper()
	var err error
	host, err = New(Options{
		RaceID:   "r1",
		RoomCode: "zz99",
		LocalID:  "host",
		HostID:   "host",
		Text:     raceText,
	}, Deps{Clock: clock, Transport: bus})
	if err != nil {
		t.Fatalf("new host: %v", err)
	}
	guest, err = New(Options{
		RaceID:   "r1",
		RoomCode: "zz99",
		LocalID:  "guest",
		HostID:   "host",
		Text:     raceText,
	}, Deps{Clock: clock, Transport: bus})
	if err != nil {
		t.Fatalf("new guest: %v", err)
	}
	return host, guest
}

func TestRemoteRaceOverBus(t *testing.T) {
	clock := &fakeClock{ms: 1000}
	bus := pubsub.NewBus()
	host, guest := newPeerPair(t, clock, bus)
	defer host.Close()
	defer guest.Close()

	// The join announcement registered the guest with the host.
	if s := host.State(); s.Opponent == nil || s.Opponent.ID != "guest" {
		t.Fatalf("host did not register guest: %+v", s.Opponent)
	}

	if err := host.StartCountdown(); err != nil {
		t.Fatalf("start countdown: %v", err)
	}
	if s := guest.State(); s.Status != model.StatusCountdown {
		t.Fatalf("countdown did not propagate, guest in %q", s.Status)
	}

	clock.advance(DefaultCountdownMs)
	host.Advance()
	guest.Advance()
	if host.State().Status != model.StatusActive || guest.State().Status != model.StatusActive {
		t.Fatalf("race did not activate on both sides")
	}

	for _, r := range raceText {
		clock.advance(60)
		guest.HandleKeystroke(r)
	}
	if s := guest.State(); s.Status != model.StatusCompleted || s.WinnerID != "guest" {
		t.Fatalf("guest did not complete/win its own view: %+v", s)
	}

	host.Advance()
	s := host.State()
	if s.Status != model.StatusCompleted {
		t.Fatalf("host did not complete after peer finish, status %q", s.Status)
	}
	if s.WinnerID != "guest" {
		t.Fatalf("host winner = %q, want guest", s.WinnerID)
	}
	if s.Opponent.Progress != 100 {
		t.Fatalf("host view of guest progress = %v", s.Opponent.Progress)
	}
}

func TestSnapshotReplyDuringPublish(t *testing.T) {
	clock := &fakeClock{ms: 1000}
	bus := pubsub.NewBus()
	host, guest := newPeerPair(t, clock, bus)
	defer host.Close()
	defer guest.Close()

	// The bus runs handlers synchronously, so a peer can answer from
	// inside the host's own publish call. The reply re-enters the host's
	// snapshot handler while StartCountdown is still on the stack; it
	// must be applied, not block.
	replied := false
	bus.Subscribe("ZZ99", func(s pubsub.Snapshot) {
		if s.Player.ID == "host" && !replied {
			replied = true
			bus.Publish("ZZ99", pubsub.Snapshot{
				RaceID:  "r1",
				Version: 50,
				Status:  s.Status,
				Player:  model.PlayerState{ID: "guest"},
			})
		}
	})

	if err := host.StartCountdown(); err != nil {
		t.Fatalf("start countdown: %v", err)
	}
	if !replied {
		t.Fatal("expected host publish to reach the peer handler")
	}
	if s := host.State(); s.Status != model.StatusCountdown {
		t.Fatalf("host state after inline reply: %q", s.Status)
	}
}

func TestRemoteCountdownAnchorsOnLocalClock(t *testing.T) {
	hostClock := &fakeClock{ms: 1000}
	guestClock := &fakeClock{ms: 900000}
	bus := pubsub.NewBus()
	host, err := New(Options{
		RaceID:   "r1",
		RoomCode: "zz99",
		LocalID:  "host",
		HostID:   "host",
		Text:     raceText,
	}, Deps{Clock: hostClock, Transport: bus})
	if err != nil {
		t.Fatalf("new host: %v", err)
	}
	defer host.Close()
	guest, err := New(Options{
		RaceID:   "r1",
		RoomCode: "zz99",
		LocalID:  "guest",
		HostID:   "host",
		Text:     raceText,
	}, Deps{Clock: guestClock, Transport: bus})
	if err != nil {
		t.Fatalf("new guest: %v", err)
	}
	defer guest.Close()

	if err := host.StartCountdown(); err != nil {
		t.Fatalf("start countdown: %v", err)
	}
	if got := guest.State().Status; got != model.StatusCountdown {
		t.Fatalf("countdown did not propagate, guest in %q", got)
	}

	// The peers' clocks share no epoch; the guest must count from its
	// own clock, not the host's timestamp.
	if got := guest.CountdownRemainingMs(); got != DefaultCountdownMs {
		t.Fatalf("guest countdown remaining = %d, want %d", got, DefaultCountdownMs)
	}
	guest.Advance()
	if got := guest.State().Status; got != model.StatusCountdown {
		t.Fatalf("guest countdown ended early, status %q", got)
	}

	guestClock.advance(DefaultCountdownMs)
	guest.Advance()
	if got := guest.State().Status; got != model.StatusActive {
		t.Fatalf("guest did not activate after its countdown, status %q", got)
	}
}

func TestStaleSnapshotsDiscarded(t *testing.T) {
	clock := &fakeClock{ms: 1000}
	bus := pubsub.NewBus()
	host, guest := newPeerPair(t, clock, bus)
	defer host.Close()
	defer guest.Close()

	if err := host.StartCountdown(); err != nil {
		t.Fatalf("start countdown: %v", err)
	}
	clock.advance(DefaultCountdownMs)
	host.Advance()

	host.applySnapshot(pubsub.Snapshot{
		RaceID:  "r1",
		Version: 10,
		Status:  model.StatusActive,
		Player:  model.PlayerState{ID: "guest", Progress: 50, WPM: 60, Accuracy: 95},
	})
	if p := host.State().Opponent.Progress; p != 50 {
		t.Fatalf("snapshot v10 not applied, progress %v", p)
	}

	host.applySnapshot(pubsub.Snapshot{
		RaceID:  "r1",
		Version: 9,
		Status:  model.StatusActive,
		Player:  model.PlayerState{ID: "guest", Progress: 80, WPM: 70, Accuracy: 95},
	})
	if p := host.State().Opponent.Progress; p != 50 {
		t.Fatalf("stale snapshot overwrote progress: %v", p)
	}
}

func TestSnapshotNeverOverwritesLocalFields(t *testing.T) {
	clock := &fakeClock{ms: 1000}
	bus := pubsub.NewBus()
	host, guest := newPeerPair(t, clock, bus)
	defer host.Close()
	defer guest.Close()

	if err := host.StartCountdown(); err != nil {
		t.Fatalf("start countdown: %v", err)
	}
	clock.advance(DefaultCountdownMs)
	host.Advance()
	guest.Advance()

	prefix := raceText[:9]
	for _, r := range prefix {
		clock.advance(60)
		host.HandleKeystroke(r)
	}
	hostProgress := host.State().Host.Progress

	// A forged snapshot claiming to be the host must be ignored outright;
	// one for the guest must touch only guest fields.
	host.applySnapshot(pubsub.Snapshot{
		RaceID:  "r1",
		Version: 99,
		Status:  model.StatusActive,
		Player:  model.PlayerState{ID: "host", Progress: 1, WPM: 1, Accuracy: 1},
	})
	if got := host.State().Host.Progress; got != hostProgress {
		t.Fatalf("remote snapshot overwrote local progress: %v", got)
	}
}

func TestCancelPropagates(t *testing.T) {
	clock := &fakeClock{ms: 1000}
	bus := pubsub.NewBus()
	host, guest := newPeerPair(t, clock, bus)
	defer host.Close()
	defer guest.Close()

	host.Cancel()
	if s := host.State(); s.Status != model.StatusCancelled {
		t.Fatalf("host not cancelled: %q", s.Status)
	}
	if s := guest.State(); s.Status != model.StatusCancelled {
		t.Fatalf("cancel did not propagate to guest: %q", s.Status)
	}
	// Each side independently observed the terminal state; further input
	// is frozen.
	guest.HandleKeystroke('x')
	if len(guest.Keystrokes()) != 0 {
		t.Fatalf("cancelled race accepted input")
	}
}

func TestPublishThrottle(t *testing.T) {
	clock := &fakeClock{ms: 1000}
	bus := pubsub.NewBus()
	var received []pubsub.Snapshot
	bus.Subscribe("ZZ99", func(s pubsub.Snapshot) {
		if s.Player.ID == "host" {
			received = append(received, s)
		}
	})
	host, guest := newPeerPair(t, clock, bus)
	defer host.Close()
	defer guest.Close()

	if err := host.StartCountdown(); err != nil {
		t.Fatalf("start countdown: %v", err)
	}
	clock.advance(DefaultCountdownMs)
	host.Advance()
	received = received[:0]
	clock.advance(DefaultPublishThrottleMs)

	// Burst of keystrokes inside one throttle window publishes once.
	prefix := []rune(strings.Repeat("x", 5))
	for _, r := range prefix {
		clock.advance(10)
		host.HandleKeystroke(r)
	}
	if len(received) != 1 {
		t.Fatalf("expected 1 throttled publish, got %d", len(received))
	}

	clock.advance(DefaultPublishThrottleMs)
	host.HandleKeystroke('y')
	if len(received) != 2 {
		t.Fatalf("expected publish after throttle window, got %d", len(received))
	}
}
