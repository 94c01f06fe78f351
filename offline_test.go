package plume

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// restTestServer records requests and serves canned Result envelopes.
type restTestServer struct {
	srv *httptest.Server

	mu       sync.Mutex
	requests []restRequest
	respond  func(r *http.Request) *Result
}

type restRequest struct {
	Method string
	Path   string
	Body   map[string]any
}

func newRESTTestServer(t *testing.T) *restTestServer {
	t.Helper()
	ts := &restTestServer{}
	ts.respond = func(*http.Request) *Result { return &Result{OK: true} }
	ts.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if r.Body != nil {
			json.NewDecoder(r.Body).Decode(&body)
		}
		ts.mu.Lock()
		ts.requests = append(ts.requests, restRequest{Method: r.Method, Path: r.URL.Path, Body: body})
		respond := ts.respond
		ts.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(respond(r))
	}))
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *restTestServer) recorded() []restRequest {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	out := make([]restRequest, len(ts.requests))
	copy(out, ts.requests)
	return out
}

func newTestOffline(t *testing.T, ts *restTestServer) *OfflineManager {
	t.Helper()
	client := NewClient("test-token", WithBaseURL(ts.srv.URL))
	o := NewOfflineManager(NewMemoryStorage(), client, &OfflineOptions{
		OutboxFlushInterval: 50 * time.Millisecond,
	})
	require.NoError(t, o.Init())
	t.Cleanup(o.Destroy)
	return o
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestMemoryStorageOutboxFIFO(t *testing.T) {
	s := NewMemoryStorage()
	base := time.Now()
	s.Enqueue(&OutboxOp{ID: "b", Status: "pending", MaxRetries: 5, CreatedAt: base.Add(time.Second)})
	s.Enqueue(&OutboxOp{ID: "a", Status: "pending", MaxRetries: 5, CreatedAt: base})

	ready := s.DequeueReady(10)
	require.Len(t, ready, 2)
	assert.Equal(t, "a", ready[0].ID, "oldest op goes first")
	assert.Equal(t, 2, s.PendingCount())

	s.Ack("a")
	assert.Equal(t, 1, s.PendingCount())

	s.Nack("b", "boom", 5)
	assert.Equal(t, 0, s.PendingCount(), "an op at its retry limit is failed, not pending")
	assert.Empty(t, s.DequeueReady(10))
}

func TestMemoryStorageMessages(t *testing.T) {
	s := NewMemoryStorage()
	s.PutMessages([]*StoredChatMessage{
		{ID: "m1", ChatID: "chat-7", CreatedAt: "2026-01-01T10:00:00Z"},
		{ID: "m2", ChatID: "chat-7", CreatedAt: "2026-01-01T11:00:00Z"},
		{ID: "m3", ChatID: "other", CreatedAt: "2026-01-01T12:00:00Z"},
	})

	msgs := s.GetMessages("chat-7", 50, "")
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID, "oldest first")

	msgs = s.GetMessages("chat-7", 50, "2026-01-01T11:00:00Z")
	require.Len(t, msgs, 1)
	assert.Equal(t, "m1", msgs[0].ID)

	s.DeleteMessage("m1")
	assert.Nil(t, s.GetMessage("m1"))
}

func TestOfflineWriteQueuedWhileOffline(t *testing.T) {
	ts := newRESTTestServer(t)
	o := newTestOffline(t, ts)
	o.SetOnline(false)

	result, err := o.Dispatch(context.Background(), "POST", "/api/chats/chat-7/messages",
		map[string]any{"content": "hello"}, nil)
	require.NoError(t, err)
	assert.True(t, result.OK, "writes are answered optimistically")
	assert.Equal(t, 1, o.OutboxSize())
	assert.Empty(t, ts.recorded(), "nothing reaches the server while offline")

	// the optimistic local message is visible immediately
	msgs := o.Storage.GetMessages("chat-7", 50, "")
	require.Len(t, msgs, 1)
	assert.Equal(t, "pending", msgs[0].Status)
	assert.Equal(t, "hello", msgs[0].Content)

	o.SetOnline(true)
	waitFor(t, func() bool { return o.OutboxSize() == 0 }, "outbox never flushed")

	reqs := ts.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, "POST", reqs[0].Method)
	assert.Equal(t, "/api/chats/chat-7/messages", reqs[0].Path)
}

func TestOfflineInjectsIdempotencyKey(t *testing.T) {
	ts := newRESTTestServer(t)
	o := newTestOffline(t, ts)

	_, err := o.Dispatch(context.Background(), "POST", "/api/chats/chat-7/messages",
		map[string]any{"content": "hello"}, nil)
	require.NoError(t, err)

	waitFor(t, func() bool { return len(ts.recorded()) == 1 }, "write never sent")
	body := ts.recorded()[0].Body
	meta, ok := body["metadata"].(map[string]any)
	require.True(t, ok)
	key, _ := meta["_idempotencyKey"].(string)
	assert.Contains(t, key, "plume-")
}

func TestOfflineConfirmReplacesLocalMessage(t *testing.T) {
	ts := newRESTTestServer(t)
	ts.respond = func(*http.Request) *Result {
		data, _ := json.Marshal(map[string]any{
			"message": map[string]any{
				"id": "srv-1", "chatId": "chat-7", "content": "hello",
				"senderId": "user-1", "createdAt": "2026-01-01T10:00:00Z",
			},
		})
		return &Result{OK: true, Data: data}
	}
	o := newTestOffline(t, ts)

	confirmed := make(chan any, 1)
	o.On("message.confirmed", func(event string, payload any) { confirmed <- payload })

	_, err := o.Dispatch(context.Background(), "POST", "/api/chats/chat-7/messages",
		map[string]any{"content": "hello"}, nil)
	require.NoError(t, err)

	select {
	case <-confirmed:
	case <-time.After(2 * time.Second):
		t.Fatal("message never confirmed")
	}

	msgs := o.Storage.GetMessages("chat-7", 50, "")
	require.Len(t, msgs, 1)
	assert.Equal(t, "srv-1", msgs[0].ID, "local placeholder replaced by the server copy")
	assert.Equal(t, "confirmed", msgs[0].Status)
}

func TestOfflinePermanentFailureStopsRetrying(t *testing.T) {
	ts := newRESTTestServer(t)
	ts.respond = func(*http.Request) *Result {
		return &Result{OK: false, Error: &APIError{Code: "VALIDATION_ERROR", Message: "content required"}}
	}
	o := newTestOffline(t, ts)

	failed := make(chan any, 1)
	o.On("outbox.failed", func(event string, payload any) {
		select {
		case failed <- payload:
		default:
		}
	})

	_, err := o.Dispatch(context.Background(), "POST", "/api/chats/chat-7/messages",
		map[string]any{"content": ""}, nil)
	require.NoError(t, err)

	select {
	case <-failed:
	case <-time.After(2 * time.Second):
		t.Fatal("op never failed")
	}
	waitFor(t, func() bool { return o.OutboxSize() == 0 }, "failed op still pending")

	// give the flush loop a few more ticks: a permanent failure must not retry
	time.Sleep(200 * time.Millisecond)
	assert.Len(t, ts.recorded(), 1)
}

func TestOfflineReadFallsBackToCache(t *testing.T) {
	ts := newRESTTestServer(t)
	ts.respond = func(*http.Request) *Result {
		data, _ := json.Marshal([]map[string]any{
			{"id": "b1", "title": "First", "content": "...", "createdAt": "2026-01-01T10:00:00Z"},
		})
		return &Result{OK: true, Data: data}
	}
	o := newTestOffline(t, ts)

	// online read warms the cache
	result, err := o.Dispatch(context.Background(), "GET", "/api/blogs", nil, nil)
	require.NoError(t, err)
	require.True(t, result.OK)

	o.SetOnline(false)
	cached, err := o.Dispatch(context.Background(), "GET", "/api/blogs", nil, nil)
	require.NoError(t, err)
	require.True(t, cached.OK)

	var blogs []StoredBlog
	require.NoError(t, cached.Decode(&blogs))
	require.Len(t, blogs, 1)
	assert.Equal(t, "b1", blogs[0].ID)
	assert.Len(t, ts.recorded(), 1, "the offline read never hit the network")
}

func TestOfflineRealtimeEventWarmsCache(t *testing.T) {
	ts := newRESTTestServer(t)
	o := newTestOffline(t, ts)

	o.HandleRealtimeEvent(Event{
		Type:         EventChatMessage,
		Room:         RoomKey{Kind: RoomChat, ID: "chat-7"},
		Payload:      json.RawMessage(`{"id":"m1","content":"hi","senderId":"user-2","createdAt":"2026-01-01T10:00:00Z"}`),
		EventID:      "ev-1",
		OriginUserID: "user-2",
	})

	msg := o.Storage.GetMessage("m1")
	require.NotNil(t, msg)
	assert.Equal(t, "chat-7", msg.ChatID)
	assert.Equal(t, "hi", msg.Content)
	assert.Equal(t, "confirmed", msg.Status)
}

func TestMatchWriteOp(t *testing.T) {
	assert.Equal(t, "chat.send", matchWriteOp("POST", "/api/chats/chat-7/messages"))
	assert.Equal(t, "blog.like", matchWriteOp("POST", "/api/blogs/b1/like"))
	assert.Equal(t, "blog.unlike", matchWriteOp("DELETE", "/api/blogs/b1/like"))
	assert.Equal(t, "blog.create", matchWriteOp("POST", "/api/blogs"))
	assert.Equal(t, "", matchWriteOp("GET", "/api/blogs"))
	assert.Equal(t, "", matchWriteOp("POST", "/api/unknown"))
}
