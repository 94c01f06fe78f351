package plume

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"go.uber.org/zap"
)

// typeWildcard routes every event type in a room to one handler.
const typeWildcard = "*"

// routeKey addresses a handler list.
type routeKey struct {
	room RoomKey
	typ  string
}

type handlerEntry struct {
	id int
	fn EventHandler
}

// seenEvent is one fingerprint in a room's dedupe window.
type seenEvent struct {
	fp string
	at time.Time
}

// dedupeWindow is a short-lived per-room set of event fingerprints. Bounded
// by entry count and age, whichever trips first; reconnect-triggered rejoin
// can make the server resend recent events, and this is what absorbs them.
type dedupeWindow struct {
	order []seenEvent
	set   map[string]struct{}
}

// eventRouter demultiplexes inbound frames by (room, type) into handlers.
// Dispatch happens on the connection's read goroutine, so events within one
// room are delivered in transport order; cross-room ordering is whatever the
// transport produced.
type eventRouter struct {
	mu       sync.Mutex
	handlers map[routeKey][]handlerEntry
	seen     map[RoomKey]*dedupeWindow
	nextID   int

	taps []EventHandler // internal consumers: presence, mutations, notifications

	rooms      *roomRegistry
	windowSize int
	windowAge  time.Duration
	now        func() time.Time
	log        *zap.Logger
}

func newEventRouter(rooms *roomRegistry, windowSize int, windowAge time.Duration, log *zap.Logger) *eventRouter {
	return &eventRouter{
		handlers:   make(map[routeKey][]handlerEntry),
		seen:       make(map[RoomKey]*dedupeWindow),
		rooms:      rooms,
		windowSize: windowSize,
		windowAge:  windowAge,
		now:        time.Now,
		log:        log.Named("router"),
	}
}

// addTap registers an internal consumer that sees every deduplicated event
// for joined rooms, before the per-route handlers.
func (r *eventRouter) addTap(fn EventHandler) {
	r.mu.Lock()
	r.taps = append(r.taps, fn)
	r.mu.Unlock()
}

// subscribe registers a handler for (room, eventType) and returns its
// unsubscribe function. Unsubscribing twice is harmless.
func (r *eventRouter) subscribe(room RoomKey, eventType string, h EventHandler) func() {
	key := routeKey{room: room, typ: eventType}
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.handlers[key] = append(r.handlers[key], handlerEntry{id: id, fn: h})
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		entries := r.handlers[key]
		for i, e := range entries {
			if e.id == id {
				r.handlers[key] = append(entries[:i:i], entries[i+1:]...)
				break
			}
		}
		if len(r.handlers[key]) == 0 {
			delete(r.handlers, key)
		}
	}
}

// dispatch routes one inbound frame: drops stale-room frames and duplicates,
// then delivers to taps and matching handlers in order.
func (r *eventRouter) dispatch(fr Frame) {
	room, err := ParseRoomKey(fr.Room)
	if err != nil {
		r.log.Debug("frame without routable room", zap.String("type", fr.Type))
		return
	}
	// Late-arriving frame for a room already left: silently dropped, never an
	// error. In-flight sends for released rooms end up here too.
	if !r.rooms.joined(room) {
		r.log.Debug("stale room frame", zap.String("room", fr.Room), zap.String("type", fr.Type))
		return
	}
	if r.isDuplicate(room, fr) {
		r.log.Debug("duplicate frame", zap.String("room", fr.Room), zap.String("type", fr.Type))
		return
	}

	ev := Event{
		Type:         fr.Type,
		Room:         room,
		Payload:      fr.Payload,
		EventID:      fr.EventID,
		OriginUserID: fr.UserID,
	}
	if fr.TS > 0 {
		ev.ServerTime = time.UnixMilli(fr.TS)
	}

	r.mu.Lock()
	taps := append([]EventHandler(nil), r.taps...)
	entries := append([]handlerEntry(nil), r.handlers[routeKey{room: room, typ: fr.Type}]...)
	entries = append(entries, r.handlers[routeKey{room: room, typ: typeWildcard}]...)
	r.mu.Unlock()

	for _, tap := range taps {
		tap(ev)
	}
	for _, e := range entries {
		e.fn(ev)
	}
}

// isDuplicate records the frame's fingerprint in the room's window and
// reports whether it was already there. The fingerprint is the server event
// id when present, otherwise a content hash over (type, room, payload).
func (r *eventRouter) isDuplicate(room RoomKey, fr Frame) bool {
	fp := fr.EventID
	if fp == "" {
		sum := sha256.Sum256(append([]byte(fr.Type+"\x00"+fr.Room+"\x00"), fr.Payload...))
		fp = hex.EncodeToString(sum[:16])
	}
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	w := r.seen[room]
	if w == nil {
		w = &dedupeWindow{set: make(map[string]struct{})}
		r.seen[room] = w
	}

	// Age out first so a fingerprint older than the window no longer blocks.
	cutoff := now.Add(-r.windowAge)
	for len(w.order) > 0 && w.order[0].at.Before(cutoff) {
		delete(w.set, w.order[0].fp)
		w.order = w.order[1:]
	}

	if _, dup := w.set[fp]; dup {
		return true
	}
	w.set[fp] = struct{}{}
	w.order = append(w.order, seenEvent{fp: fp, at: now})
	for len(w.order) > r.windowSize {
		delete(w.set, w.order[0].fp)
		w.order = w.order[1:]
	}
	return false
}

// dropRoom clears a room's dedupe window and any leftover handler routes
// when the last subscription is released.
func (r *eventRouter) dropRoom(room RoomKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.seen, room)
	for key := range r.handlers {
		if key.room == room {
			delete(r.handlers, key)
		}
	}
}
