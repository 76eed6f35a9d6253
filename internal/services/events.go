package services

import (
	"sync"

	"github.com/google/logger"
	"github.com/google/uuid"

	"verilotto/internal/models"
)

// DefaultEventCapacity bounds the in-process settlement event log.
const DefaultEventCapacity = 1024

// SettlementObserver receives each settlement after it is stored.
type SettlementObserver interface {
	RoundSettled(ev models.SettlementEvent)
}

// SettlementObserverFunc adapts a function to SettlementObserver.
type SettlementObserverFunc func(ev models.SettlementEvent)

// RoundSettled implements SettlementObserver.
func (f SettlementObserverFunc) RoundSettled(ev models.SettlementEvent) { f(ev) }

// LogSettlement writes one info line per settled round.
var LogSettlement = SettlementObserverFunc(func(ev models.SettlementEvent) {
	logger.Infof("round %d settled: winning number %d, %d winning tickets of %d, pool %d",
		ev.RoundID, ev.WinningNumber, ev.WinnerCount, ev.TicketCount, ev.TotalAmount)
})

// EventLog is a bounded, pull-based log of settlement events. Readers poll
// with the last sequence number they saw.
//
// Sequence numbers are only meaningful within one epoch. The log lives in
// process memory and is rebuilt from the store on startup under a fresh
// epoch, so a reader that sees the epoch change must resume from 0.
type EventLog struct {
	mu       sync.RWMutex
	epoch    string
	capacity int
	next     uint64
	events   []models.SettlementEvent
}

// NewEventLog creates a log keeping at most capacity events.
func NewEventLog(capacity int) *EventLog {
	if capacity <= 0 {
		capacity = DefaultEventCapacity
	}
	return &EventLog{epoch: uuid.NewString(), capacity: capacity, next: 1}
}

// Epoch identifies this log instance; sequence numbers from another epoch
// do not refer to the same events.
func (l *EventLog) Epoch() string {
	return l.epoch
}

// Append assigns the next sequence number and stores the event.
func (l *EventLog) Append(ev models.SettlementEvent) models.SettlementEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	ev.Seq = l.next
	l.next++
	l.events = append(l.events, ev)
	if over := len(l.events) - l.capacity; over > 0 {
		l.events = append(l.events[:0:0], l.events[over:]...)
	}
	return ev
}

// After returns up to limit events with Seq > after, oldest first.
func (l *EventLog) After(after uint64, limit int) []models.SettlementEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.SettlementEvent, 0)
	for _, ev := range l.events {
		if ev.Seq <= after {
			continue
		}
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, ev)
	}
	return out
}

// Last returns the highest sequence number issued so far.
func (l *EventLog) Last() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.next - 1
}
