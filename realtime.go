package plume

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// ============================================================================
// Rooms
// ============================================================================

// RoomKind classifies a logical room multiplexed over the shared connection.
type RoomKind string

const (
	RoomBlogView      RoomKind = "blog-view"
	RoomChat          RoomKind = "chat"
	RoomCollaboration RoomKind = "collaboration"
	RoomAnalytics     RoomKind = "analytics"
	RoomNotifications RoomKind = "notifications"
)

// RoomKey identifies a logical room by kind and resource id.
type RoomKey struct {
	Kind RoomKind
	ID   string
}

func (k RoomKey) String() string {
	return string(k.Kind) + ":" + k.ID
}

// ParseRoomKey parses a "kind:id" string into a RoomKey.
func ParseRoomKey(s string) (RoomKey, error) {
	kind, id, ok := strings.Cut(s, ":")
	if !ok || kind == "" || id == "" {
		return RoomKey{}, fmt.Errorf("invalid room key %q (want kind:id)", s)
	}
	return RoomKey{Kind: RoomKind(kind), ID: id}, nil
}

// ============================================================================
// Wire Frames & Events
// ============================================================================

// Frame is the wire format for all real-time traffic in both directions.
type Frame struct {
	Type    string          `json:"type"`
	Room    string          `json:"room,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	EventID string          `json:"eventId,omitempty"`
	UserID  string          `json:"userId,omitempty"`
	TS      int64           `json:"ts,omitempty"` // server timestamp, unix millis
}

// Control frame types.
const (
	FrameJoin          = "join"
	FrameLeave         = "leave"
	FramePing          = "ping"
	FramePong          = "pong"
	FrameAuthenticated = "authenticated"
)

// Well-known event types. The routing layer treats event types as an open
// set; these are the ones the derived state machines understand.
const (
	EventNewComment        = "new-comment"
	EventChatMessage       = "chat-message"
	EventBlogLikeUpdated   = "blog-like-updated"
	EventCommentLikeUpdated = "comment-like-updated"
	EventPollVoteUpdated   = "poll-vote-updated"
	EventBookmarkUpdated   = "bookmark-updated"
	EventUserTyping        = "user-typing"
	EventUserStoppedTyping = "user-stopped-typing"
	EventViewerJoined      = "viewer-joined"
	EventViewerLeft        = "viewer-left"
	EventPresenceUpdate    = "presence-update"
	EventPresenceHeartbeat = "presence-heartbeat"
	EventNotification      = "notification"
)

// Event is an inbound frame after routing: typed, room-scoped, deduplicated.
type Event struct {
	Type         string
	Room         RoomKey
	Payload      json.RawMessage
	EventID      string
	OriginUserID string
	ServerTime   time.Time
}

// EventHandler receives routed events. Handlers for one room are invoked
// sequentially in transport order.
type EventHandler func(Event)

// ============================================================================
// Configuration
// ============================================================================

// RealtimeState represents the connection state.
type RealtimeState string

const (
	StateDisconnected RealtimeState = "disconnected"
	StateConnecting   RealtimeState = "connecting"
	StateConnected    RealtimeState = "connected"
	StateReconnecting RealtimeState = "reconnecting"
)

// Status is the coarse connectivity status surfaced to consumers. Transport
// errors never reach subscribers directly; this is all they see.
type Status string

const (
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusOffline      Status = "offline"
)

// RealtimeConfig configures a Realtime instance.
type RealtimeConfig struct {
	Token string

	// DisableReconnect turns off automatic reconnection. The zero value
	// reconnects with backoff.
	DisableReconnect     bool
	MaxReconnectAttempts int // 0 = unlimited
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration

	HeartbeatInterval time.Duration
	HeartbeatGrace    time.Duration
	OfflineAfter      time.Duration

	MutationTimeout time.Duration
	TypingTTL       time.Duration
	PresenceTTL     time.Duration
	SweepInterval   time.Duration
	IdleAfter       time.Duration

	DedupeWindowSize int
	DedupeWindowAge  time.Duration

	NotificationCap int

	Logger *zap.Logger
}

func (c *RealtimeConfig) defaults() {
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = 1 * time.Second
	}
	if c.ReconnectMaxDelay == 0 {
		c.ReconnectMaxDelay = 30 * time.Second
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 25 * time.Second
	}
	if c.HeartbeatGrace == 0 {
		c.HeartbeatGrace = 10 * time.Second
	}
	if c.OfflineAfter == 0 {
		c.OfflineAfter = 60 * time.Second
	}
	if c.MutationTimeout == 0 {
		c.MutationTimeout = 10 * time.Second
	}
	if c.TypingTTL == 0 {
		c.TypingTTL = 3500 * time.Millisecond
	}
	if c.PresenceTTL == 0 {
		c.PresenceTTL = 90 * time.Second
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = 500 * time.Millisecond
	}
	if c.IdleAfter == 0 {
		c.IdleAfter = 5 * time.Minute
	}
	if c.DedupeWindowSize == 0 {
		c.DedupeWindowSize = 200
	}
	if c.DedupeWindowAge == 0 {
		c.DedupeWindowAge = 30 * time.Second
	}
	if c.NotificationCap == 0 {
		c.NotificationCap = 50
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// ============================================================================
// Reconnector
// ============================================================================

type reconnector struct {
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int
	attempt     int
	connectedAt time.Time
}

func newReconnector(cfg *RealtimeConfig) *reconnector {
	return &reconnector{
		baseDelay:   cfg.ReconnectBaseDelay,
		maxDelay:    cfg.ReconnectMaxDelay,
		maxAttempts: cfg.MaxReconnectAttempts,
	}
}

func (r *reconnector) shouldReconnect() bool {
	return r.maxAttempts == 0 || r.attempt < r.maxAttempts
}

func (r *reconnector) markConnected() {
	r.connectedAt = time.Now()
}

func (r *reconnector) nextDelay() time.Duration {
	// A connection that held for a minute resets the attempt counter.
	if !r.connectedAt.IsZero() && time.Since(r.connectedAt) > 60*time.Second {
		r.attempt = 0
	}
	jitter := time.Duration(rand.Float64() * float64(r.baseDelay))
	delay := time.Duration(math.Min(
		float64(r.baseDelay)*math.Pow(2, float64(r.attempt))+float64(jitter),
		float64(r.maxDelay),
	))
	r.attempt++
	return delay
}

// ============================================================================
// Realtime
// ============================================================================

// Realtime multiplexes one WebSocket connection into many logical rooms. It
// owns the physical socket, reconnection, heartbeat, and the outbound queue;
// room state is owned by its registry and derived state by the trackers.
//
// One long-lived instance per session; components share it and must never
// close it themselves.
type Realtime struct {
	baseURL string
	cfg     *RealtimeConfig
	log     *zap.Logger

	mu             sync.Mutex
	conn           *websocket.Conn
	state          RealtimeState
	status         Status
	closed         bool
	cancelFn       context.CancelFunc
	outbound       []Frame
	disconnectedAt time.Time
	lastPong       time.Time
	statusSubs     map[int]func(Status)
	statusSeq      int
	selfID         string
	selfName       string
	lastActivity   time.Time
	localPresence  PresenceStatus

	lifeCtx    context.Context
	lifeCancel context.CancelFunc

	recon     *reconnector
	rooms     *roomRegistry
	router    *eventRouter
	presence  *presenceTracker
	mutations *MutationTracker
	notifs    *NotificationQueue
}

func newRealtime(baseURL string, cfg *RealtimeConfig) *Realtime {
	c := *cfg
	c.defaults()
	log := c.Logger.Named("realtime")

	rt := &Realtime{
		baseURL:       strings.TrimRight(baseURL, "/"),
		cfg:           &c,
		log:           log,
		state:         StateDisconnected,
		status:        StatusOffline,
		statusSubs:    make(map[int]func(Status)),
		selfID:        userIDFromToken(c.Token),
		lastActivity:  time.Now(),
		localPresence: PresenceActive,
		recon:         newReconnector(&c),
		notifs:        NewNotificationQueue(c.NotificationCap),
	}
	rt.lifeCtx, rt.lifeCancel = context.WithCancel(context.Background())

	rt.presence = newPresenceTracker(c.PresenceTTL, c.TypingTTL, log)
	rt.mutations = newMutationTracker(c.MutationTimeout, rt.SelfUserID, log)
	rt.rooms = newRoomRegistry(rt.sendJoinFrame, rt.sendLeaveFrame, log)
	rt.rooms.onEmpty = func(key RoomKey) {
		rt.presence.dropRoom(key)
		rt.router.dropRoom(key)
	}
	rt.router = newEventRouter(rt.rooms, c.DedupeWindowSize, c.DedupeWindowAge, log)
	rt.router.addTap(rt.presence.handle)
	rt.router.addTap(rt.mutations.handle)
	rt.router.addTap(func(ev Event) {
		if ev.Room.Kind == RoomNotifications && ev.Type == EventNotification {
			rt.notifs.PushEvent(ev)
		}
	})

	go rt.sweepLoop(rt.lifeCtx)
	return rt
}

// State returns the current connection state.
func (rt *Realtime) State() RealtimeState {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.state
}

// Status returns the coarse connectivity status.
func (rt *Realtime) Status() Status {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.status
}

// OnStatusChange registers a callback for coarse status transitions and
// returns a disposer.
func (rt *Realtime) OnStatusChange(fn func(Status)) func() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.statusSeq++
	id := rt.statusSeq
	rt.statusSubs[id] = fn
	return func() {
		rt.mu.Lock()
		defer rt.mu.Unlock()
		delete(rt.statusSubs, id)
	}
}

// SelfUserID returns the local user's id, from the session token or the
// server's authentication handshake.
func (rt *Realtime) SelfUserID() string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.selfID
}

// Mutations returns the optimistic mutation tracker.
func (rt *Realtime) Mutations() *MutationTracker { return rt.mutations }

// Notifications returns the in-app notification queue.
func (rt *Realtime) Notifications() *NotificationQueue { return rt.notifs }

// Join subscribes to a room, returning a handle whose Release must be called
// on teardown. The join frame reaches the server only on the first Join for
// a room; further Joins share it.
func (rt *Realtime) Join(room RoomKey) *Subscription {
	return rt.rooms.join(room)
}

// Subscribe registers a handler for (room, eventType) and returns an
// unsubscribe function. Subscribing does not join the room; pair with Join.
func (rt *Realtime) Subscribe(room RoomKey, eventType string, h EventHandler) func() {
	return rt.router.subscribe(room, eventType, h)
}

// SubscribeAll registers a handler for every event type in a room.
func (rt *Realtime) SubscribeAll(room RoomKey, h EventHandler) func() {
	return rt.router.subscribe(room, typeWildcard, h)
}

// Presence returns the known presence entries for a room.
func (rt *Realtime) Presence(room RoomKey) []PresenceEntry {
	return rt.presence.snapshotPresence(room)
}

// Typing returns the users currently typing in a room.
func (rt *Realtime) Typing(room RoomKey) []TypingEntry {
	return rt.presence.snapshotTyping(room)
}

// WatchPresence returns a channel re-emitting the room's presence on every
// change, and a cancel function. The latest snapshot wins if the consumer
// lags.
func (rt *Realtime) WatchPresence(room RoomKey) (<-chan []PresenceEntry, func()) {
	return rt.presence.watchPresence(room)
}

// WatchTyping is the typing counterpart of WatchPresence.
func (rt *Realtime) WatchTyping(room RoomKey) (<-chan []TypingEntry, func()) {
	return rt.presence.watchTyping(room)
}

// ============================================================================
// Connect / Close
// ============================================================================

// Connect establishes the WebSocket connection. It is idempotent: while a
// connection exists or is being established, further calls return nil.
func (rt *Realtime) Connect(ctx context.Context) error {
	rt.mu.Lock()
	if rt.closed {
		rt.mu.Unlock()
		return ErrClosed
	}
	if rt.state == StateConnected || rt.state == StateConnecting {
		rt.mu.Unlock()
		return nil
	}
	prev := rt.state
	rt.state = StateConnecting
	rt.mu.Unlock()

	wsURL := strings.Replace(rt.baseURL, "https://", "wss://", 1)
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	wsURL += "/ws?token=" + rt.cfg.Token

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		rt.mu.Lock()
		rt.state = prev
		if rt.disconnectedAt.IsZero() {
			rt.disconnectedAt = time.Now()
		}
		rt.mu.Unlock()
		return &TransportError{Op: "dial", Err: err}
	}

	// The server greets with an authenticated frame before any events.
	_, data, err := conn.Read(ctx)
	if err != nil {
		conn.Close(websocket.StatusNormalClosure, "")
		rt.mu.Lock()
		rt.state = prev
		rt.mu.Unlock()
		return &TransportError{Op: "handshake read", Err: err}
	}
	var fr Frame
	if err := json.Unmarshal(data, &fr); err != nil || fr.Type != FrameAuthenticated {
		conn.Close(websocket.StatusNormalClosure, "")
		rt.mu.Lock()
		rt.state = prev
		rt.mu.Unlock()
		return &TransportError{Op: "handshake", Err: fmt.Errorf("expected %q frame, got %q", FrameAuthenticated, fr.Type)}
	}

	rt.mu.Lock()
	rt.conn = conn
	rt.state = StateConnected
	rt.disconnectedAt = time.Time{}
	rt.lastPong = time.Now()
	if id := gjson.GetBytes(fr.Payload, "userId").String(); id != "" {
		rt.selfID = id
	}
	if name := gjson.GetBytes(fr.Payload, "userName").String(); name != "" {
		rt.selfName = name
	}
	rt.mu.Unlock()
	rt.recon.markConnected()

	connCtx, cancel := context.WithCancel(rt.lifeCtx)
	rt.mu.Lock()
	rt.cancelFn = cancel
	rt.mu.Unlock()

	// Server-side membership did not survive the drop: rejoin every room the
	// registry still references, then flush sends queued while down.
	rt.rejoinRooms(connCtx)
	rt.flushOutbound(connCtx)

	rt.setStatus(StatusConnected)
	rt.log.Info("connected", zap.String("userId", rt.SelfUserID()))

	go rt.readLoop(connCtx, conn)
	go rt.heartbeatLoop(connCtx)
	return nil
}

// Close tears the connection down for good. Only the owner of the session
// lifecycle calls this; components release their subscriptions instead.
func (rt *Realtime) Close() error {
	rt.mu.Lock()
	if rt.closed {
		rt.mu.Unlock()
		return nil
	}
	rt.closed = true
	if rt.cancelFn != nil {
		rt.cancelFn()
		rt.cancelFn = nil
	}
	conn := rt.conn
	rt.conn = nil
	rt.state = StateDisconnected
	rt.mu.Unlock()

	rt.lifeCancel()
	rt.mutations.closeAll()
	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "client close")
	}
	return nil
}

func (rt *Realtime) isClosed() bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.closed
}

// ============================================================================
// Sending
// ============================================================================

// Send publishes an event frame to a room. If the connection is down the
// frame is queued and flushed in FIFO order after reconnect, so callers must
// not assume the send has reached the server when this returns.
func (rt *Realtime) Send(eventType string, room RoomKey, payload any) error {
	if rt.isClosed() {
		return ErrClosed
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	fr := Frame{Type: eventType, Room: room.String(), Payload: raw, UserID: rt.SelfUserID()}

	if conn := rt.currentConn(); conn != nil {
		if err := rt.writeFrame(rt.lifeCtx, conn, fr); err == nil {
			return nil
		}
		// Write failed: the read loop will notice the dead connection; the
		// frame rides the queue instead.
	}
	rt.mu.Lock()
	rt.outbound = append(rt.outbound, fr)
	rt.mu.Unlock()
	return nil
}

// StartTyping announces that the local user is typing in a room.
func (rt *Realtime) StartTyping(room RoomKey, action string) error {
	return rt.Send(EventUserTyping, room, map[string]string{
		"userId":   rt.SelfUserID(),
		"userName": rt.selfDisplayName(),
		"action":   action,
	})
}

// StopTyping announces that the local user stopped typing. Receivers also
// expire entries by TTL, so a lost stop message self-heals.
func (rt *Realtime) StopTyping(room RoomKey) error {
	return rt.Send(EventUserStoppedTyping, room, map[string]string{
		"userId": rt.SelfUserID(),
	})
}

func (rt *Realtime) selfDisplayName() string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.selfName
}

func (rt *Realtime) writeFrame(ctx context.Context, conn *websocket.Conn, fr Frame) error {
	data, err := json.Marshal(fr)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := conn.Write(wctx, websocket.MessageText, data); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}

func (rt *Realtime) currentConn() *websocket.Conn {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.state != StateConnected {
		return nil
	}
	return rt.conn
}

// sendJoinFrame is the registry's 0→1 hook. While disconnected it is a
// no-op: the reconnect path rejoins every referenced room anyway, and
// queueing a join here would double it.
func (rt *Realtime) sendJoinFrame(room RoomKey) {
	if conn := rt.currentConn(); conn != nil {
		if err := rt.writeFrame(rt.lifeCtx, conn, Frame{Type: FrameJoin, Room: room.String()}); err != nil {
			rt.log.Warn("join frame failed", zap.String("room", room.String()), zap.Error(err))
		}
	}
}

// sendLeaveFrame is the registry's 1→0 hook. While disconnected the server
// has already forgotten the membership, so there is nothing to send.
func (rt *Realtime) sendLeaveFrame(room RoomKey) {
	if conn := rt.currentConn(); conn != nil {
		if err := rt.writeFrame(rt.lifeCtx, conn, Frame{Type: FrameLeave, Room: room.String()}); err != nil {
			rt.log.Warn("leave frame failed", zap.String("room", room.String()), zap.Error(err))
		}
	}
}

func (rt *Realtime) rejoinRooms(ctx context.Context) {
	conn := rt.currentConn()
	if conn == nil {
		return
	}
	for _, room := range rt.rooms.snapshot() {
		if err := rt.writeFrame(ctx, conn, Frame{Type: FrameJoin, Room: room.String()}); err != nil {
			rt.log.Warn("rejoin failed", zap.String("room", room.String()), zap.Error(err))
			return
		}
	}
}

func (rt *Realtime) flushOutbound(ctx context.Context) {
	rt.mu.Lock()
	queued := rt.outbound
	rt.outbound = nil
	rt.mu.Unlock()

	for i, fr := range queued {
		conn := rt.currentConn()
		if conn == nil {
			rt.requeueFront(queued[i:])
			return
		}
		if err := rt.writeFrame(ctx, conn, fr); err != nil {
			rt.requeueFront(queued[i:])
			return
		}
	}
}

func (rt *Realtime) requeueFront(frames []Frame) {
	rt.mu.Lock()
	rt.outbound = append(append([]Frame{}, frames...), rt.outbound...)
	rt.mu.Unlock()
}

// QueuedSends reports the outbound queue depth: frames accepted by Send
// while disconnected and not yet flushed.
func (rt *Realtime) QueuedSends() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.outbound)
}

// ============================================================================
// Read / heartbeat / reconnect loops
// ============================================================================

func (rt *Realtime) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if rt.isClosed() || ctx.Err() != nil {
				return
			}
			rt.handleDisconnect(err)
			return
		}

		var fr Frame
		if err := json.Unmarshal(data, &fr); err != nil {
			rt.log.Debug("dropping malformed frame", zap.Error(err))
			continue
		}

		switch fr.Type {
		case FramePong:
			rt.mu.Lock()
			rt.lastPong = time.Now()
			rt.mu.Unlock()
		case FrameAuthenticated:
			// Repeated greeting after a server-side session refresh.
			rt.mu.Lock()
			if id := gjson.GetBytes(fr.Payload, "userId").String(); id != "" {
				rt.selfID = id
			}
			rt.mu.Unlock()
		default:
			rt.router.dispatch(fr)
		}
	}
}

func (rt *Realtime) handleDisconnect(cause error) {
	rt.mu.Lock()
	rt.state = StateDisconnected
	rt.conn = nil
	rt.disconnectedAt = time.Now()
	if rt.cancelFn != nil {
		rt.cancelFn()
		rt.cancelFn = nil
	}
	rt.mu.Unlock()

	rt.log.Warn("disconnected", zap.Error(cause))
	if !rt.cfg.DisableReconnect && rt.recon.shouldReconnect() {
		rt.scheduleReconnect()
	} else {
		rt.setStatus(StatusOffline)
	}
}

func (rt *Realtime) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(rt.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		conn := rt.currentConn()
		if conn == nil {
			return
		}
		sentAt := time.Now()
		if err := rt.writeFrame(ctx, conn, Frame{Type: FramePing, EventID: uuid.NewString()}); err != nil {
			continue // the read loop will observe the dead socket
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(rt.cfg.HeartbeatGrace):
		}

		rt.mu.Lock()
		pong := rt.lastPong
		rt.mu.Unlock()
		if pong.Before(sentAt) {
			// No acknowledgment inside the grace window: the transport is
			// silently dead (NAT timeouts and friends). Force the reconnect.
			rt.log.Warn("heartbeat unacknowledged, forcing reconnect")
			conn.Close(websocket.StatusGoingAway, "heartbeat timeout")
			return
		}
	}
}

func (rt *Realtime) scheduleReconnect() {
	go func() {
		for {
			if rt.isClosed() || !rt.recon.shouldReconnect() {
				rt.setStatus(StatusOffline)
				return
			}
			rt.mu.Lock()
			rt.state = StateReconnecting
			rt.mu.Unlock()
			rt.refreshStatus()

			delay := rt.recon.nextDelay()
			select {
			case <-rt.lifeCtx.Done():
				return
			case <-time.After(delay):
			}

			if err := rt.Connect(rt.lifeCtx); err == nil {
				return
			}
			rt.refreshStatus()
		}
	}()
}

// refreshStatus recomputes the coarse status from the connection state and
// how long the client has been down.
func (rt *Realtime) refreshStatus() {
	rt.mu.Lock()
	var next Status
	switch {
	case rt.state == StateConnected:
		next = StatusConnected
	case !rt.disconnectedAt.IsZero() && time.Since(rt.disconnectedAt) > rt.cfg.OfflineAfter:
		next = StatusOffline
	default:
		next = StatusReconnecting
	}
	rt.mu.Unlock()
	rt.setStatus(next)
}

func (rt *Realtime) setStatus(next Status) {
	rt.mu.Lock()
	if rt.status == next {
		rt.mu.Unlock()
		return
	}
	rt.status = next
	subs := make([]func(Status), 0, len(rt.statusSubs))
	for _, fn := range rt.statusSubs {
		subs = append(subs, fn)
	}
	rt.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
}

// ============================================================================
// Activity / idle detection
// ============================================================================

// MarkActive records local user activity. Hosts call this from their input
// paths; the idle detector pushes active→idle transitions to the server.
func (rt *Realtime) MarkActive() {
	rt.mu.Lock()
	rt.lastActivity = time.Now()
	wasIdle := rt.localPresence == PresenceIdle
	if wasIdle {
		rt.localPresence = PresenceActive
	}
	rt.mu.Unlock()

	if wasIdle {
		rt.pushLocalPresence(PresenceActive)
	}
}

func (rt *Realtime) pushLocalPresence(status PresenceStatus) {
	for _, room := range rt.rooms.snapshot() {
		if err := rt.Send(EventPresenceUpdate, room, map[string]string{
			"userId":   rt.SelfUserID(),
			"userName": rt.selfDisplayName(),
			"status":   string(status),
		}); err != nil {
			rt.log.Debug("presence push failed", zap.Error(err))
		}
	}
}

// sweepLoop drives all TTL expiry from one shared tick: typing entries,
// presence GC, and the local idle transition. One ticker regardless of how
// many rooms or typers exist.
func (rt *Realtime) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(rt.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rt.presence.sweep(now)

			rt.mu.Lock()
			goneIdle := rt.localPresence == PresenceActive && now.Sub(rt.lastActivity) > rt.cfg.IdleAfter
			if goneIdle {
				rt.localPresence = PresenceIdle
			}
			rt.mu.Unlock()
			if goneIdle {
				rt.pushLocalPresence(PresenceIdle)
			}
		}
	}
}
