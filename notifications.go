package plume

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// Notification is one entry in the in-memory notification queue.
type Notification struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Read      bool            `json:"read"`
	CreatedAt time.Time       `json:"createdAt"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NotificationQueue keeps the most recent notifications in memory, capped.
// When full, the oldest read notification is evicted first; unread entries
// are only displaced when no read entry remains.
type NotificationQueue struct {
	mu    sync.Mutex
	items []Notification // oldest first
	cap   int
}

func NewNotificationQueue(capacity int) *NotificationQueue {
	if capacity <= 0 {
		capacity = 50
	}
	return &NotificationQueue{cap: capacity}
}

// Push adds a notification, filling in ID and CreatedAt if absent.
func (q *NotificationQueue) Push(n Notification) Notification {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) >= q.cap {
		q.evictLocked()
	}
	q.items = append(q.items, n)
	return n
}

// PushEvent converts a routed notification event into a queue entry.
func (q *NotificationQueue) PushEvent(ev Event) Notification {
	n := Notification{
		ID:      gjson.GetBytes(ev.Payload, "id").String(),
		Type:    gjson.GetBytes(ev.Payload, "notificationType").String(),
		Title:   gjson.GetBytes(ev.Payload, "title").String(),
		Message: gjson.GetBytes(ev.Payload, "message").String(),
		Data:    ev.Payload,
	}
	if n.ID == "" {
		n.ID = ev.EventID
	}
	if !ev.ServerTime.IsZero() {
		n.CreatedAt = ev.ServerTime
	}
	return q.Push(n)
}

// evictLocked drops one entry to make room: the oldest read one, or the
// oldest overall when everything is unread.
func (q *NotificationQueue) evictLocked() {
	for i, n := range q.items {
		if n.Read {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return
		}
	}
	q.items = q.items[1:]
}

// MarkRead marks the given notifications as read. Unknown IDs are ignored.
func (q *NotificationQueue) MarkRead(ids ...string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, id := range ids {
		for i := range q.items {
			if q.items[i].ID == id {
				q.items[i].Read = true
				break
			}
		}
	}
}

func (q *NotificationQueue) MarkAllRead() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.items {
		q.items[i].Read = true
	}
}

// List returns notifications newest first.
func (q *NotificationQueue) List() []Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Notification, len(q.items))
	for i, n := range q.items {
		out[len(q.items)-1-i] = n
	}
	return out
}

// Unread reports the count of unread notifications.
func (q *NotificationQueue) Unread() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	count := 0
	for _, n := range q.items {
		if !n.Read {
			count++
		}
	}
	return count
}

// Len reports the number of queued notifications.
func (q *NotificationQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
