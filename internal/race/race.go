// Package race implements the race lifecycle state machine.
//
// States move waiting -> countdown -> active -> {completed, cancelled};
// terminal states are never left. Triggering events can legitimately
// double-fire in a distributed setting, so every transition is idempotent:
// a repeated call reports applied=false and leaves the state untouched,
// while an illegal call returns ErrInvalidState.
package race

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ferrovax/keyrace/internal/model"
)

// ErrInvalidState marks a transition attempted where disallowed. It
// propagates to the caller as a protocol error.
var ErrInvalidState = errors.New("invalid race state for transition")

// ErrUnknownParticipant marks an update from a non-participant. An
// authorization fault, treated as an invalid-state error.
var ErrUnknownParticipant = fmt.Errorf("unknown participant: %w", ErrInvalidState)

// Defensive bounds for externally supplied numeric fields.
const (
	maxProgress = 100
	maxWPM      = 500
	maxAccuracy = 100
)

// A participant at or above this progress is considered to have finished
// for winner determination; tolerates off-by-one text-length edge cases.
const finishThreshold = 95.0

// Noise floors below which two reported values are considered equal.
const (
	wpmNoiseFloor      = 0.1
	accuracyNoiseFloor = 0.01
)

// New creates a race in the waiting state with the host registered.
func New(hostID, roomCode, expectedText string) *model.RaceState {
	return &model.RaceState{
		ID:           uuid.NewString(),
		RoomCode:     strings.ToUpper(roomCode),
		Status:       model.StatusWaiting,
		HostID:       hostID,
		Host:         model.PlayerState{ID: hostID},
		ExpectedText: expectedText,
		Version:      1,
	}
}

// AddOpponent registers the second participant. Valid only while waiting
// with no opponent present.
func AddOpponent(state *model.RaceState, opponentID string, isBot bool, botLevel int) error {
	if state.Status != model.StatusWaiting {
		return fmt.Errorf("add opponent in status %q: %w", state.Status, ErrInvalidState)
	}
	if state.Opponent != nil {
		return fmt.Errorf("opponent already present: %w", ErrInvalidState)
	}
	state.Opponent = &model.PlayerState{
		ID:       opponentID,
		IsBot:    isBot,
		BotLevel: botLevel,
	}
	state.Version++
	return nil
}

// StartCountdown moves the race into countdown. Only the host may start
// it, and only with an opponent present. Duplicate signals are no-ops.
func StartCountdown(state *model.RaceState, requesterID string, nowMs int64) (bool, error) {
	switch state.Status {
	case model.StatusCountdown, model.StatusActive, model.StatusCompleted:
		// Already applied somewhere along the line.
		return false, nil
	}
	if state.Status != model.StatusWaiting {
		return false, fmt.Errorf("start countdown in status %q: %w", state.Status, ErrInvalidState)
	}
	if state.Opponent == nil {
		return false, fmt.Errorf("start countdown without opponent: %w", ErrInvalidState)
	}
	if requesterID != state.HostID {
		return false, fmt.Errorf("start countdown by non-host %q: %w", requesterID, ErrInvalidState)
	}
	state.Status = model.StatusCountdown
	state.CountdownStartedAtMs = nowMs
	state.Version++
	return true, nil
}

// StartRace activates a race that finished its countdown. Idempotent.
func StartRace(state *model.RaceState, nowMs int64) (bool, error) {
	switch state.Status {
	case model.StatusActive, model.StatusCompleted:
		return false, nil
	}
	if state.Status != model.StatusCountdown {
		return false, fmt.Errorf("start race in status %q: %w", state.Status, ErrInvalidState)
	}
	state.Status = model.StatusActive
	state.RaceStartedAtMs = nowMs
	state.Version++
	return true, nil
}

// UpdateProgress records a participant's progress, wpm, and accuracy.
// Values are clamped so a misbehaving client cannot corrupt shared state.
// FinishedAt is set the instant progress first reaches 100.
func UpdateProgress(state *model.RaceState, participantID string, progress, wpm, accuracy float64, nowMs int64) error {
	if state.Status != model.StatusActive {
		return fmt.Errorf("update progress in status %q: %w", state.Status, ErrInvalidState)
	}
	player := state.Participant(participantID)
	if player == nil {
		return ErrUnknownParticipant
	}
	player.Progress = clamp(progress, 0, maxProgress)
	player.WPM = clamp(wpm, 0, maxWPM)
	player.Accuracy = clamp(accuracy, 0, maxAccuracy)
	if player.Progress >= maxProgress && player.FinishedAtMs == 0 {
		player.FinishedAtMs = nowMs
	}
	state.Version++
	return nil
}

// Complete finishes an active race, freezing it and determining the
// winner. Idempotent: completing a completed race is a no-op.
func Complete(state *model.RaceState, nowMs int64) (bool, error) {
	if state.Status == model.StatusCompleted {
		return false, nil
	}
	if state.Status != model.StatusActive {
		return false, fmt.Errorf("complete race in status %q: %w", state.Status, ErrInvalidState)
	}
	state.Status = model.StatusCompleted
	state.RaceEndedAtMs = nowMs

	var opponent model.PlayerState
	if state.Opponent != nil {
		opponent = *state.Opponent
	}
	winnerID, isTie := DecideWinner(state.Host, opponent)
	state.WinnerID = winnerID
	state.IsTie = isTie
	state.Version++
	return true, nil
}

// Cancel aborts a race from any non-terminal state. Cancelling a race
// that already reached a terminal state is a no-op.
func Cancel(state *model.RaceState, nowMs int64) (bool, error) {
	if state.Status.Terminal() {
		return false, nil
	}
	state.Status = model.StatusCancelled
	state.RaceEndedAtMs = nowMs
	state.Version++
	return true, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
