package server

import (
	"context"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/juris/backend/internal/movements"
)

const (
	RealtimeEventMovement  = "movement"
	realtimeEventReady     = "ready"
	realtimeEventHeartbeat = "heartbeat"
	realtimeSourceBackend  = "juris-backend"
)

// RealtimeMessage announces that a case received a newer movement.
type RealtimeMessage struct {
	CaseID         string
	EventType      string
	SnapshotID     string
	LastMovementAt time.Time
	Timestamp      time.Time
}

// RealtimeDispatcher fans movement events out to stream subscribers of a case.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
	clock       func() time.Time
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[string]map[int64]*realtimeSubscriber),
		bufferSize:  16,
		clock:       time.Now,
	}
}

func (d *RealtimeDispatcher) Subscribe(ctx context.Context, caseID string) (<-chan RealtimeMessage, func()) {
	if caseID == "" {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(caseID, subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() { d.unregisterSubscriber(caseID, subscriber.id) })
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish delivers the message to every subscriber of its case. Slow
// subscribers with a full buffer miss the message.
func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.CaseID == "" || message.EventType == "" {
		return
	}
	d.mu.RLock()
	subscribers := d.subscribers[message.CaseID]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*realtimeSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// NotifyMovement publishes a synchronization that advanced a case's movement date.
func (d *RealtimeDispatcher) NotifyMovement(event movements.MovementEvent) {
	d.Publish(RealtimeMessage{
		CaseID:         event.CaseID,
		EventType:      RealtimeEventMovement,
		SnapshotID:     event.SnapshotID,
		LastMovementAt: event.LastMovementAt,
		Timestamp:      d.clock().UTC(),
	})
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(caseID string, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[caseID]; !ok {
		d.subscribers[caseID] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[caseID][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(caseID string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[caseID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, caseID)
		}
	}
	d.mu.Unlock()
}
