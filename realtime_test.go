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
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// wsTestServer accepts one client, greets it with an authenticated frame,
// answers pings, and records every other inbound frame.
type wsTestServer struct {
	t   *testing.T
	srv *httptest.Server

	mu        sync.Mutex
	conn      *websocket.Conn
	frames    []Frame
	accepts   int
	pongMuted bool
}

func newWSTestServer(t *testing.T) *wsTestServer {
	t.Helper()
	ts := &wsTestServer{t: t}
	ts.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		ctx := r.Context()

		ts.mu.Lock()
		ts.conn = c
		ts.accepts++
		muted := ts.pongMuted
		ts.mu.Unlock()

		greeting, _ := json.Marshal(Frame{
			Type:    FrameAuthenticated,
			Payload: json.RawMessage(`{"userId":"user-1","userName":"Ada"}`),
		})
		if err := c.Write(ctx, websocket.MessageText, greeting); err != nil {
			return
		}

		for {
			_, data, err := c.Read(ctx)
			if err != nil {
				return
			}
			var fr Frame
			if json.Unmarshal(data, &fr) != nil {
				continue
			}
			if fr.Type == FramePing {
				if !muted {
					pong, _ := json.Marshal(Frame{Type: FramePong, EventID: fr.EventID})
					c.Write(ctx, websocket.MessageText, pong)
				}
				continue
			}
			ts.mu.Lock()
			ts.frames = append(ts.frames, fr)
			ts.mu.Unlock()
		}
	}))
	t.Cleanup(ts.srv.Close)
	return ts
}

// closeClient drops the server side of the current connection.
func (ts *wsTestServer) closeClient() {
	ts.t.Helper()
	ts.mu.Lock()
	c := ts.conn
	ts.mu.Unlock()
	require.NotNil(ts.t, c, "no client connected")
	c.Close(websocket.StatusGoingAway, "server restart")
}

// connections reports how many times a client dialed in.
func (ts *wsTestServer) connections() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.accepts
}

// setPongMuted controls whether connections accepted from now on answer
// pings. Already-accepted connections keep the behavior they started with.
func (ts *wsTestServer) setPongMuted(v bool) {
	ts.mu.Lock()
	ts.pongMuted = v
	ts.mu.Unlock()
}

// push sends a frame to the connected client.
func (ts *wsTestServer) push(fr Frame) {
	ts.t.Helper()
	ts.mu.Lock()
	c := ts.conn
	ts.mu.Unlock()
	require.NotNil(ts.t, c, "no client connected")

	data, err := json.Marshal(fr)
	require.NoError(ts.t, err)
	require.NoError(ts.t, c.Write(context.Background(), websocket.MessageText, data))
}

// waitFrames polls until at least n frames arrived.
func (ts *wsTestServer) waitFrames(n int) []Frame {
	ts.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ts.mu.Lock()
		if len(ts.frames) >= n {
			out := make([]Frame, len(ts.frames))
			copy(out, ts.frames)
			ts.mu.Unlock()
			return out
		}
		ts.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	ts.t.Fatalf("timed out waiting for %d frames", n)
	return nil
}

func (ts *wsTestServer) framesOfType(typ string) []Frame {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	var out []Frame
	for _, fr := range ts.frames {
		if fr.Type == typ {
			out = append(out, fr)
		}
	}
	return out
}

func newTestRealtime(t *testing.T, ts *wsTestServer) *Realtime {
	t.Helper()
	rt := newRealtime(ts.srv.URL, &RealtimeConfig{
		Token:            "test-token",
		DisableReconnect: true,
		Logger:           zap.NewNop(),
	})
	t.Cleanup(func() { rt.Close() })
	return rt
}

func connectTestRealtime(t *testing.T, ts *wsTestServer) *Realtime {
	t.Helper()
	rt := newTestRealtime(t, ts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, rt.Connect(ctx))
	return rt
}

func TestRealtimeConnectHandshake(t *testing.T) {
	ts := newWSTestServer(t)
	rt := connectTestRealtime(t, ts)

	assert.Equal(t, StateConnected, rt.State())
	assert.Equal(t, StatusConnected, rt.Status())
	assert.Equal(t, "user-1", rt.SelfUserID(), "identity comes from the server greeting")
}

func TestRealtimeConnectIsIdempotent(t *testing.T) {
	ts := newWSTestServer(t)
	rt := connectTestRealtime(t, ts)

	require.NoError(t, rt.Connect(context.Background()))
	assert.Equal(t, StateConnected, rt.State())
}

func TestRealtimeJoinSendsSingleFrame(t *testing.T) {
	ts := newWSTestServer(t)
	rt := connectTestRealtime(t, ts)
	room := RoomKey{Kind: RoomBlogView, ID: "blog-1"}

	first := rt.Join(room)
	second := rt.Join(room)

	ts.waitFrames(1)
	joins := ts.framesOfType(FrameJoin)
	require.Len(t, joins, 1)
	assert.Equal(t, "blog-view:blog-1", joins[0].Room)

	// releasing one of two handles must not leave the room
	first.Release()
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, ts.framesOfType(FrameLeave))

	second.Release()
	ts.waitFrames(2)
	leaves := ts.framesOfType(FrameLeave)
	require.Len(t, leaves, 1)
	assert.Equal(t, "blog-view:blog-1", leaves[0].Room)
}

func TestRealtimeQueuedSendsFlushAfterConnect(t *testing.T) {
	ts := newWSTestServer(t)
	rt := newTestRealtime(t, ts)
	room := RoomKey{Kind: RoomChat, ID: "chat-7"}

	// while disconnected: join is silent, sends queue up
	sub := rt.Join(room)
	defer sub.Release()
	require.NoError(t, rt.Send(EventChatMessage, room, map[string]string{"content": "first"}))
	require.NoError(t, rt.Send(EventChatMessage, room, map[string]string{"content": "second"}))
	assert.Equal(t, 2, rt.QueuedSends())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, rt.Connect(ctx))

	frames := ts.waitFrames(3)
	assert.Equal(t, FrameJoin, frames[0].Type, "rooms rejoin before the queue flushes")
	assert.Equal(t, EventChatMessage, frames[1].Type)
	assert.JSONEq(t, `{"content":"first"}`, string(frames[1].Payload))
	assert.JSONEq(t, `{"content":"second"}`, string(frames[2].Payload))
	assert.Equal(t, 0, rt.QueuedSends())
}

func TestRealtimeDispatchesToSubscribers(t *testing.T) {
	ts := newWSTestServer(t)
	rt := connectTestRealtime(t, ts)
	room := RoomKey{Kind: RoomBlogView, ID: "blog-1"}

	sub := rt.Join(room)
	defer sub.Release()

	events := make(chan Event, 10)
	off := rt.Subscribe(room, EventNewComment, func(ev Event) { events <- ev })
	defer off()

	ts.waitFrames(1) // the join, so the server-side membership is live

	ts.push(Frame{
		Type:    EventNewComment,
		Room:    room.String(),
		Payload: json.RawMessage(`{"commentId":"c1","content":"hi"}`),
		EventID: "ev-1",
		UserID:  "user-2",
		TS:      1700000000000,
	})

	select {
	case ev := <-events:
		assert.Equal(t, EventNewComment, ev.Type)
		assert.Equal(t, room, ev.Room)
		assert.Equal(t, "ev-1", ev.EventID)
		assert.Equal(t, "user-2", ev.OriginUserID)
		assert.JSONEq(t, `{"commentId":"c1","content":"hi"}`, string(ev.Payload))
	case <-time.After(2 * time.Second):
		t.Fatal("event never dispatched")
	}
}

func TestRealtimeDropsDuplicatePushes(t *testing.T) {
	ts := newWSTestServer(t)
	rt := connectTestRealtime(t, ts)
	room := RoomKey{Kind: RoomChat, ID: "chat-7"}

	sub := rt.Join(room)
	defer sub.Release()

	events := make(chan Event, 10)
	off := rt.Subscribe(room, EventChatMessage, func(ev Event) { events <- ev })
	defer off()

	dup := Frame{Type: EventChatMessage, Room: room.String(), Payload: json.RawMessage(`{"content":"hi"}`), EventID: "ev-dup"}
	ts.push(dup)
	ts.push(dup)
	ts.push(Frame{Type: EventChatMessage, Room: room.String(), Payload: json.RawMessage(`{"content":"bye"}`), EventID: "ev-2"})

	// the distinct trailing event bounds the wait
	var got []Event
	for len(got) < 2 {
		select {
		case ev := <-events:
			got = append(got, ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("got %d events, want 2", len(got))
		}
	}
	assert.Equal(t, "ev-dup", got[0].EventID)
	assert.Equal(t, "ev-2", got[1].EventID)
	select {
	case ev := <-events:
		t.Fatalf("unexpected extra event %s", ev.EventID)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRealtimeTypingFramesCarryIdentity(t *testing.T) {
	ts := newWSTestServer(t)
	rt := connectTestRealtime(t, ts)
	room := RoomKey{Kind: RoomChat, ID: "chat-7"}

	require.NoError(t, rt.StartTyping(room, "chat-message"))
	require.NoError(t, rt.StopTyping(room))

	frames := ts.waitFrames(2)
	assert.Equal(t, EventUserTyping, frames[0].Type)
	assert.JSONEq(t, `{"userId":"user-1","userName":"Ada","action":"chat-message"}`, string(frames[0].Payload))
	assert.Equal(t, EventUserStoppedTyping, frames[1].Type)
}

func TestRealtimeNotificationTap(t *testing.T) {
	ts := newWSTestServer(t)
	rt := connectTestRealtime(t, ts)
	room := RoomKey{Kind: RoomNotifications, ID: "user-1"}

	sub := rt.Join(room)
	defer sub.Release()
	ts.waitFrames(1)

	ts.push(Frame{
		Type:    EventNotification,
		Room:    room.String(),
		Payload: json.RawMessage(`{"id":"n1","notificationType":"new-follower","message":"Lin followed you"}`),
		EventID: "ev-1",
	})

	deadline := time.Now().Add(2 * time.Second)
	for rt.Notifications().Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(t, 1, rt.Notifications().Len())
	assert.Equal(t, "n1", rt.Notifications().List()[0].ID)
	assert.Equal(t, 1, rt.Notifications().Unread())
}

func TestRealtimeCloseRejectsFurtherUse(t *testing.T) {
	ts := newWSTestServer(t)
	rt := connectTestRealtime(t, ts)

	require.NoError(t, rt.Close())
	require.NoError(t, rt.Close(), "closing twice is harmless")

	assert.ErrorIs(t, rt.Connect(context.Background()), ErrClosed)
	assert.ErrorIs(t, rt.Send(EventChatMessage, RoomKey{Kind: RoomChat, ID: "c"}, nil), ErrClosed)
}

func TestRealtimeDialFailure(t *testing.T) {
	rt := newRealtime("http://127.0.0.1:1", &RealtimeConfig{
		Token:            "test-token",
		DisableReconnect: true,
		Logger:           zap.NewNop(),
	})
	defer rt.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := rt.Connect(ctx)
	require.Error(t, err)

	var terr *TransportError
	assert.ErrorAs(t, err, &terr)
	assert.Equal(t, StateDisconnected, rt.State())
}

func TestRealtimeReconnectsAndRejoinsRooms(t *testing.T) {
	ts := newWSTestServer(t)
	rt := newRealtime(ts.srv.URL, &RealtimeConfig{
		Token:              "test-token",
		ReconnectBaseDelay: 10 * time.Millisecond,
		ReconnectMaxDelay:  50 * time.Millisecond,
		Logger:             zap.NewNop(),
	})
	t.Cleanup(func() { rt.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, rt.Connect(ctx))

	room := RoomKey{Kind: RoomChat, ID: "7"}
	sub := rt.Join(room)
	defer sub.Release()
	ts.waitFrames(1)

	statuses := make(chan Status, 10)
	off := rt.OnStatusChange(func(s Status) { statuses <- s })
	defer off()

	ts.closeClient()

	waitStatus := func(want Status) {
		t.Helper()
		for {
			select {
			case s := <-statuses:
				if s == want {
					return
				}
			case <-time.After(5 * time.Second):
				t.Fatalf("never observed status %s", want)
			}
		}
	}
	waitStatus(StatusReconnecting)
	waitStatus(StatusConnected)

	// the room comes back without any action by the subscriber
	ts.waitFrames(2)
	joins := ts.framesOfType(FrameJoin)
	require.Len(t, joins, 2)
	assert.Equal(t, "chat:7", joins[1].Room)
	assert.GreaterOrEqual(t, ts.connections(), 2)
	assert.Equal(t, StateConnected, rt.State())
}

func TestRealtimeHeartbeatTimeoutForcesReconnect(t *testing.T) {
	ts := newWSTestServer(t)
	ts.setPongMuted(true)
	rt := newRealtime(ts.srv.URL, &RealtimeConfig{
		Token:              "test-token",
		HeartbeatInterval:  30 * time.Millisecond,
		HeartbeatGrace:     20 * time.Millisecond,
		ReconnectBaseDelay: 10 * time.Millisecond,
		ReconnectMaxDelay:  50 * time.Millisecond,
		Logger:             zap.NewNop(),
	})
	t.Cleanup(func() { rt.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, rt.Connect(ctx))
	// the first connection never answers pings; the next one behaves
	ts.setPongMuted(false)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if ts.connections() >= 2 && rt.State() == StateConnected {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	assert.GreaterOrEqual(t, ts.connections(), 2, "a silently dead transport triggers a fresh dial")
	assert.Equal(t, StateConnected, rt.State())
}

func TestReconnectorBackoff(t *testing.T) {
	r := newReconnector(&RealtimeConfig{
		ReconnectBaseDelay:   time.Second,
		ReconnectMaxDelay:    4 * time.Second,
		MaxReconnectAttempts: 3,
	})

	d1 := r.nextDelay()
	d2 := r.nextDelay()
	d3 := r.nextDelay()
	assert.GreaterOrEqual(t, d1, 1*time.Second)
	assert.Less(t, d1, 2*time.Second)
	assert.GreaterOrEqual(t, d2, 2*time.Second)
	assert.Less(t, d2, 3*time.Second)
	assert.Equal(t, 4*time.Second, d3, "growth is capped at the max delay")
	assert.False(t, r.shouldReconnect(), "attempt budget exhausted")

	// a connection that held for over a minute resets the budget
	r.connectedAt = time.Now().Add(-2 * time.Minute)
	d := r.nextDelay()
	assert.Less(t, d, 2*time.Second)
	assert.True(t, r.shouldReconnect())
}

func TestRealtimeStatusCallback(t *testing.T) {
	ts := newWSTestServer(t)
	rt := newTestRealtime(t, ts)

	statuses := make(chan Status, 10)
	off := rt.OnStatusChange(func(s Status) { statuses <- s })
	defer off()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, rt.Connect(ctx))

	select {
	case s := <-statuses:
		assert.Equal(t, StatusConnected, s)
	case <-time.After(2 * time.Second):
		t.Fatal("no status transition observed")
	}
}
