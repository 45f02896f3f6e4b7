// Package model defines shared data structures.
package model

import "time"

// KeystrokeKind distinguishes the two keystroke event shapes.
type KeystrokeKind int

// Keystroke kinds.
const (
	KeyDown KeystrokeKind = iota
	Backspace
)

// Keystroke is a single entry of the append-only, timestamp-ordered
// keystroke log. The log is the source of truth for every metric; a
// session's metrics are always rebuilt from it, never patched in place.
type Keystroke struct {
	SessionID   string
	Kind        KeystrokeKind
	Expected    rune
	Typed       rune
	TimestampMs int64
	CursorIndex int
	Correct     bool
}

// NewKeyDown builds a character keystroke, deriving correctness.
func NewKeyDown(sessionID string, expected, typed rune, timestampMs int64, cursorIndex int) Keystroke {
	return Keystroke{
		SessionID:   sessionID,
		Kind:        KeyDown,
		Expected:    expected,
		Typed:       typed,
		TimestampMs: timestampMs,
		CursorIndex: cursorIndex,
		Correct:     expected == typed,
	}
}

// NewBackspace builds a backspace keystroke.
func NewBackspace(sessionID string, timestampMs int64, cursorIndex int) Keystroke {
	return Keystroke{
		SessionID:   sessionID,
		Kind:        Backspace,
		TimestampMs: timestampMs,
		CursorIndex: cursorIndex,
	}
}

// SessionMetrics captures the derived performance of one typing session.
// Always rebuilt wholesale from a keystroke log plus target/typed text.
type SessionMetrics struct {
	RawWPM         float64
	NetWPM         float64
	Accuracy       float64
	Consistency    float64
	CorrectChars   int
	IncorrectChars int
	MissedChars    int
	ExtraChars     int
	TotalTyped     int
	Backspaces     int
	DurationMs     int64
	IsValid        bool
}

// WpmWindow is one sliding WPM sample feeding consistency.
type WpmWindow struct {
	StartMs      int64
	EndMs        int64
	WPM          float64
	CorrectChars int
}

// RaceStatus enumerates race lifecycle states.
type RaceStatus string

// Race lifecycle states. Completed and cancelled are terminal.
const (
	StatusWaiting   RaceStatus = "waiting"
	StatusCountdown RaceStatus = "countdown"
	StatusActive    RaceStatus = "active"
	StatusCompleted RaceStatus = "completed"
	StatusCancelled RaceStatus = "cancelled"
)

// Terminal reports whether no transition may leave the status.
func (s RaceStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// PlayerState is one participant's view inside a race. Each peer is the
// sole writer of its own PlayerState; the other side only ever merges it.
type PlayerState struct {
	ID           string
	Progress     float64
	WPM          float64
	Accuracy     float64
	IsBot        bool
	BotLevel     int
	FinishedAtMs int64
}

// Finished reports whether the player has reached the end of the text.
func (p PlayerState) Finished() bool {
	return p.FinishedAtMs > 0
}

// RaceState is the shared race view. Mutated only through the transition
// operations in the race package; Version increments on every accepted
// mutation and acts as the optimistic concurrency token.
type RaceState struct {
	ID                   string
	RoomCode             string
	Status               RaceStatus
	HostID               string
	Host                 PlayerState
	Opponent             *PlayerState
	ExpectedText         string
	Version              int64
	CountdownStartedAtMs int64
	RaceStartedAtMs      int64
	RaceEndedAtMs        int64
	WinnerID             string
	IsTie                bool
}

// Participant returns the player state for the given id, or nil.
func (r *RaceState) Participant(id string) *PlayerState {
	if r.Host.ID == id {
		return &r.Host
	}
	if r.Opponent != nil && r.Opponent.ID == id {
		return r.Opponent
	}
	return nil
}

// RaceRecord is the archived form of a finished race.
type RaceRecord struct {
	ID           string
	RoomCode     string
	Lang         string
	Status       RaceStatus
	HostID       string
	WinnerID     string
	IsTie        bool
	ExpectedText string
	HostWPM      float64
	HostAccuracy float64
	HostProgress float64
	OppID        string
	OppIsBot     bool
	OppWPM       float64
	OppAccuracy  float64
	OppProgress  float64
	StartedAt    time.Time
	EndedAt      time.Time
	DurationMs   int64
}

// RaceConfig defines race settings.
type RaceConfig struct {
	Lang        string
	Words       int
	CapsPct     float64
	PunctPct    float64
	PunctSet    string
	BotLevel    int
	DurationSec int
	FocusWeak   bool
	WeakTop     int
	WeakFactor  float64
}

// HistoryConfig defines filters for history output.
type HistoryConfig struct {
	Lang  string
	Since *time.Time
	Last  int
}

// CharConfidence is a persisted per-character learning sample: a smoothed
// accuracy estimate in [0,1] plus how many samples fed it.
type CharConfidence struct {
	Char       string
	Confidence float64
	Samples    int64
}
