package plume

import (
	"sort"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// PresenceStatus is a user's activity level within a room.
type PresenceStatus string

const (
	PresenceActive  PresenceStatus = "active"
	PresenceIdle    PresenceStatus = "idle"
	PresenceAway    PresenceStatus = "away"
	PresenceOffline PresenceStatus = "offline"
)

// PresenceEntry is one user's presence within a room.
type PresenceEntry struct {
	UserID     string
	UserName   string
	LastSeenAt time.Time
	Status     PresenceStatus
}

// TypingEntry is one user currently typing in a room. Entries expire by TTL
// so a lost stop-message cannot leave a ghost typist.
type TypingEntry struct {
	UserID    string
	UserName  string
	Action    string // e.g. "comment", "chat-message"
	ExpiresAt time.Time
}

type roomPresence struct {
	presence map[string]PresenceEntry
	typing   map[string]TypingEntry

	presenceWatch map[int]chan []PresenceEntry
	typingWatch   map[int]chan []TypingEntry
}

// presenceTracker derives presence and typing state per room from raw
// events. All expiry is driven externally by sweep, called from the owner's
// single shared ticker.
type presenceTracker struct {
	mu      sync.Mutex
	rooms   map[RoomKey]*roomPresence
	watchID int

	presenceTTL time.Duration
	typingTTL   time.Duration
	now         func() time.Time
	log         *zap.Logger
}

func newPresenceTracker(presenceTTL, typingTTL time.Duration, log *zap.Logger) *presenceTracker {
	return &presenceTracker{
		rooms:       make(map[RoomKey]*roomPresence),
		presenceTTL: presenceTTL,
		typingTTL:   typingTTL,
		now:         time.Now,
		log:         log.Named("presence"),
	}
}

func (p *presenceTracker) room(key RoomKey) *roomPresence {
	rp := p.rooms[key]
	if rp == nil {
		rp = &roomPresence{
			presence:      make(map[string]PresenceEntry),
			typing:        make(map[string]TypingEntry),
			presenceWatch: make(map[int]chan []PresenceEntry),
			typingWatch:   make(map[int]chan []TypingEntry),
		}
		p.rooms[key] = rp
	}
	return rp
}

// handle consumes routed events and updates derived state. Runs on the
// dispatch path, so events for one room arrive in transport order.
func (p *presenceTracker) handle(ev Event) {
	switch ev.Type {
	case EventViewerJoined, EventPresenceUpdate, EventPresenceHeartbeat:
		p.upsertPresence(ev)
	case EventViewerLeft:
		p.removePresence(ev)
	case EventUserTyping:
		p.upsertTyping(ev)
	case EventUserStoppedTyping:
		p.removeTyping(ev)
	}
}

func (p *presenceTracker) upsertPresence(ev Event) {
	userID := gjson.GetBytes(ev.Payload, "userId").String()
	if userID == "" {
		userID = ev.OriginUserID
	}
	if userID == "" {
		return
	}
	status := PresenceStatus(gjson.GetBytes(ev.Payload, "status").String())
	switch status {
	case PresenceActive, PresenceIdle, PresenceAway:
	default:
		status = PresenceActive
	}

	p.mu.Lock()
	rp := p.room(ev.Room)
	entry := rp.presence[userID]
	entry.UserID = userID
	if name := gjson.GetBytes(ev.Payload, "userName").String(); name != "" {
		entry.UserName = name
	}
	entry.LastSeenAt = p.now()
	entry.Status = status
	rp.presence[userID] = entry
	p.mu.Unlock()

	p.notifyPresence(ev.Room)
}

func (p *presenceTracker) removePresence(ev Event) {
	userID := gjson.GetBytes(ev.Payload, "userId").String()
	if userID == "" {
		userID = ev.OriginUserID
	}
	p.mu.Lock()
	rp := p.rooms[ev.Room]
	changed := false
	if rp != nil {
		if _, ok := rp.presence[userID]; ok {
			delete(rp.presence, userID)
			changed = true
		}
	}
	p.mu.Unlock()
	if changed {
		p.notifyPresence(ev.Room)
	}
}

// upsertTyping refreshes the TTL when the user is already typing instead of
// inserting a second entry, so continuous typing never flickers.
func (p *presenceTracker) upsertTyping(ev Event) {
	userID := gjson.GetBytes(ev.Payload, "userId").String()
	if userID == "" {
		userID = ev.OriginUserID
	}
	if userID == "" {
		return
	}

	p.mu.Lock()
	rp := p.room(ev.Room)
	entry := rp.typing[userID]
	entry.UserID = userID
	if name := gjson.GetBytes(ev.Payload, "userName").String(); name != "" {
		entry.UserName = name
	}
	if action := gjson.GetBytes(ev.Payload, "action").String(); action != "" {
		entry.Action = action
	}
	entry.ExpiresAt = p.now().Add(p.typingTTL)
	rp.typing[userID] = entry
	p.mu.Unlock()

	p.notifyTyping(ev.Room)
}

func (p *presenceTracker) removeTyping(ev Event) {
	userID := gjson.GetBytes(ev.Payload, "userId").String()
	if userID == "" {
		userID = ev.OriginUserID
	}
	p.mu.Lock()
	rp := p.rooms[ev.Room]
	changed := false
	if rp != nil {
		if _, ok := rp.typing[userID]; ok {
			delete(rp.typing, userID)
			changed = true
		}
	}
	p.mu.Unlock()
	if changed {
		p.notifyTyping(ev.Room)
	}
}

// sweep expires typing entries past their TTL and garbage-collects presence
// entries that stopped refreshing. One pass across all rooms per tick.
func (p *presenceTracker) sweep(now time.Time) {
	type change struct {
		room     RoomKey
		presence bool
		typing   bool
	}
	var changes []change

	p.mu.Lock()
	for key, rp := range p.rooms {
		c := change{room: key}
		for userID, entry := range rp.typing {
			if now.After(entry.ExpiresAt) {
				delete(rp.typing, userID)
				c.typing = true
			}
		}
		cutoff := now.Add(-p.presenceTTL)
		for userID, entry := range rp.presence {
			if entry.LastSeenAt.Before(cutoff) {
				delete(rp.presence, userID)
				c.presence = true
			}
		}
		if c.presence || c.typing {
			changes = append(changes, c)
		}
	}
	p.mu.Unlock()

	for _, c := range changes {
		if c.presence {
			p.notifyPresence(c.room)
		}
		if c.typing {
			p.notifyTyping(c.room)
		}
	}
}

// dropRoom discards all derived state and watchers for a room when its last
// subscription is released.
func (p *presenceTracker) dropRoom(key RoomKey) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rp := p.rooms[key]
	delete(p.rooms, key)
	if rp == nil {
		return
	}
	for _, ch := range rp.presenceWatch {
		close(ch)
	}
	for _, ch := range rp.typingWatch {
		close(ch)
	}
}

func (p *presenceTracker) snapshotPresence(key RoomKey) []PresenceEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	rp := p.rooms[key]
	if rp == nil {
		return nil
	}
	out := make([]PresenceEntry, 0, len(rp.presence))
	for _, e := range rp.presence {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func (p *presenceTracker) snapshotTyping(key RoomKey) []TypingEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	rp := p.rooms[key]
	if rp == nil {
		return nil
	}
	out := make([]TypingEntry, 0, len(rp.typing))
	for _, e := range rp.typing {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// watchPresence registers a reactive watcher. The channel holds the latest
// snapshot; a slow consumer sees the newest state, not a backlog.
func (p *presenceTracker) watchPresence(key RoomKey) (<-chan []PresenceEntry, func()) {
	ch := make(chan []PresenceEntry, 1)
	p.mu.Lock()
	p.watchID++
	id := p.watchID
	p.room(key).presenceWatch[id] = ch
	p.mu.Unlock()

	cancel := func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if rp := p.rooms[key]; rp != nil {
			if _, ok := rp.presenceWatch[id]; ok {
				delete(rp.presenceWatch, id)
				close(ch)
			}
		}
	}
	return ch, cancel
}

func (p *presenceTracker) watchTyping(key RoomKey) (<-chan []TypingEntry, func()) {
	ch := make(chan []TypingEntry, 1)
	p.mu.Lock()
	p.watchID++
	id := p.watchID
	p.room(key).typingWatch[id] = ch
	p.mu.Unlock()

	cancel := func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if rp := p.rooms[key]; rp != nil {
			if _, ok := rp.typingWatch[id]; ok {
				delete(rp.typingWatch, id)
				close(ch)
			}
		}
	}
	return ch, cancel
}

// Watch channels are only closed while p.mu is held (cancel, dropRoom), so
// both notifiers send under the mutex. Sends are non-blocking, so holding
// the lock here never stalls the dispatch path.
func (p *presenceTracker) notifyPresence(key RoomKey) {
	snap := p.snapshotPresence(key)
	p.mu.Lock()
	defer p.mu.Unlock()
	rp := p.rooms[key]
	if rp == nil {
		return
	}
	for _, ch := range rp.presenceWatch {
		select {
		case ch <- snap:
		default:
			// replace the stale pending snapshot
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

func (p *presenceTracker) notifyTyping(key RoomKey) {
	snap := p.snapshotTyping(key)
	p.mu.Lock()
	defer p.mu.Unlock()
	rp := p.rooms[key]
	if rp == nil {
		return
	}
	for _, ch := range rp.typingWatch {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
