// Package pubsub provides the in-process snapshot transport used for
// local and bot races. Delivery is at-least-once and carries no ordering
// guarantee beyond the Version field inside each snapshot; consumers must
// discard stale versions themselves.
package pubsub

import (
	"sync"

	"github.com/ferrovax/keyrace/internal/model"
)

// Snapshot is the partial race state one peer publishes on a channel.
// It carries only fields the sender owns: its own player state plus the
// lifecycle signals it triggered.
type Snapshot struct {
	RaceID               string            `json:"raceId"`
	Version              int64             `json:"version"`
	Status               model.RaceStatus  `json:"status"`
	Player               model.PlayerState `json:"player"`
	CountdownStartedAtMs int64             `json:"countdownStartedAtMs,omitempty"`
	RaceStartedAtMs      int64             `json:"raceStartedAtMs,omitempty"`
	SentAtMs             int64             `json:"sentAtMs"`
}

// Handler consumes snapshots published on a subscribed channel.
type Handler func(Snapshot)

// Bus is an in-process pub/sub transport keyed by room code.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]Handler
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{subs: map[string]map[int]Handler{}}
}

// Publish delivers a snapshot to every subscriber of the channel.
// Handlers run outside the bus lock so a handler may publish in turn.
func (b *Bus) Publish(channelKey string, snap Snapshot) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[channelKey]))
	for _, h := range b.subs[channelKey] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(snap)
	}
}

// Subscribe registers a handler for a channel and returns a cancel
// function that removes it.
func (b *Bus) Subscribe(channelKey string, handler Handler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.subs[channelKey] == nil {
		b.subs[channelKey] = map[int]Handler{}
	}
	b.subs[channelKey][id] = handler
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[channelKey], id)
		if len(b.subs[channelKey]) == 0 {
			delete(b.subs, channelKey)
		}
	}
}
