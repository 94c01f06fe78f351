package plume

import (
	"sync"

	"go.uber.org/zap"
)

// Subscription is a room membership handle. Release is idempotent: the
// second and later calls are no-ops, detected by the released flag rather
// than by re-decrementing the registry.
type Subscription struct {
	reg  *roomRegistry
	room RoomKey

	mu       sync.Mutex
	released bool
}

// Room returns the room this handle refers to.
func (s *Subscription) Room() RoomKey { return s.room }

// Release decrements the room's ref-count. The leave frame is sent only when
// the last handle for the room is released.
func (s *Subscription) Release() {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.released = true
	s.mu.Unlock()

	s.reg.release(s.room)
}

// roomRegistry tracks which logical rooms the client has joined, ref-counted
// so components sharing a room never duplicate join/leave traffic. The
// server-visible join/leave frames exactly match the 0→1 and 1→0 ref-count
// transitions.
type roomRegistry struct {
	mu   sync.Mutex
	refs map[RoomKey]int

	sendJoin  func(RoomKey)
	sendLeave func(RoomKey)
	onEmpty   func(RoomKey) // derived-state teardown, set by the owner
	log       *zap.Logger
}

func newRoomRegistry(sendJoin, sendLeave func(RoomKey), log *zap.Logger) *roomRegistry {
	return &roomRegistry{
		refs:      make(map[RoomKey]int),
		sendJoin:  sendJoin,
		sendLeave: sendLeave,
		log:       log.Named("rooms"),
	}
}

func (r *roomRegistry) join(room RoomKey) *Subscription {
	r.mu.Lock()
	r.refs[room]++
	first := r.refs[room] == 1
	count := r.refs[room]
	r.mu.Unlock()

	r.log.Debug("join", zap.String("room", room.String()), zap.Int("refs", count))
	if first {
		r.sendJoin(room)
	}
	return &Subscription{reg: r, room: room}
}

func (r *roomRegistry) release(room RoomKey) {
	r.mu.Lock()
	count, ok := r.refs[room]
	if !ok {
		r.mu.Unlock()
		return
	}
	count--
	last := count == 0
	if last {
		delete(r.refs, room)
	} else {
		r.refs[room] = count
	}
	r.mu.Unlock()

	r.log.Debug("release", zap.String("room", room.String()), zap.Int("refs", count))
	if last {
		r.sendLeave(room)
		if r.onEmpty != nil {
			r.onEmpty(room)
		}
	}
}

// joined reports whether the room has at least one live subscription. Frames
// for unjoined rooms are stale and get dropped by the router.
func (r *roomRegistry) joined(room RoomKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refs[room] > 0
}

// snapshot returns the rooms with a positive ref-count, for rejoin after a
// reconnect and for local presence pushes.
func (r *roomRegistry) snapshot() []RoomKey {
	r.mu.Lock()
	defer r.mu.Unlock()
	rooms := make([]RoomKey, 0, len(r.refs))
	for room := range r.refs {
		rooms = append(rooms, room)
	}
	return rooms
}
