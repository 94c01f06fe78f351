// Offline manager, outbox queue, and read cache.
//
// Writes issued while the network is down are queued with idempotency keys
// and flushed when connectivity returns; recent blogs and chat messages are
// cached locally so reads degrade gracefully.
//
// Usage:
//
//	storage := plume.NewMemoryStorage()
//	offline := plume.NewOfflineManager(storage, client, nil)
//	offline.Init()
//	defer offline.Destroy()
//
//	result, _ := offline.Dispatch(ctx, "POST", "/api/chats/chat-7/messages", map[string]any{"content": "hello"}, nil)
package plume

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ============================================================================
// Data Types
// ============================================================================

// StoredBlog is a locally cached blog post.
type StoredBlog struct {
	ID        string `json:"id"`
	AuthorID  string `json:"authorId"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	LikeCount int    `json:"likeCount"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// StoredChatMessage is a locally cached chat message.
type StoredChatMessage struct {
	ID        string         `json:"id"`
	ClientID  string         `json:"clientId,omitempty"`
	ChatID    string         `json:"chatId"`
	Content   string         `json:"content"`
	Type      string         `json:"type"`
	SenderID  string         `json:"senderId"`
	Status    string         `json:"status"` // "pending", "confirmed"
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt string         `json:"createdAt"`
	UpdatedAt string         `json:"updatedAt,omitempty"`
}

// OutboxOp is a queued offline write operation.
type OutboxOp struct {
	ID             string             `json:"id"`
	OpType         string             `json:"type"`
	Method         string             `json:"method"`
	Path           string             `json:"path"`
	Body           any                `json:"body,omitempty"`
	Query          map[string]string  `json:"query,omitempty"`
	Status         string             `json:"status"`
	CreatedAt      time.Time          `json:"createdAt"`
	Retries        int                `json:"retries"`
	MaxRetries     int                `json:"maxRetries"`
	IdempotencyKey string             `json:"idempotencyKey"`
	LocalData      *StoredChatMessage `json:"localData,omitempty"`
	Error          string             `json:"error,omitempty"`
}

// OfflineOptions configures the OfflineManager.
type OfflineOptions struct {
	OutboxRetryLimit    int
	OutboxFlushInterval time.Duration
	Logger              *zap.Logger
}

// OfflineStorage is a pluggable local storage backend.
type OfflineStorage interface {
	Init() error

	GetBlog(id string) *StoredBlog
	PutBlogs(blogs []*StoredBlog)
	GetBlogs(limit int) []*StoredBlog

	GetMessage(id string) *StoredChatMessage
	PutMessages(msgs []*StoredChatMessage)
	GetMessages(chatID string, limit int, before string) []*StoredChatMessage
	DeleteMessage(id string)

	GetCursor(key string) string
	SetCursor(key, value string)

	Enqueue(op *OutboxOp)
	DequeueReady(limit int) []*OutboxOp
	Ack(opID string)
	Nack(opID string, errMsg string, retries int)
	PendingCount() int
}

// ============================================================================
// MemoryStorage
// ============================================================================

// MemoryStorage is a goroutine-safe in-memory storage backend.
type MemoryStorage struct {
	mu       sync.RWMutex
	blogs    map[string]*StoredBlog
	messages map[string]*StoredChatMessage
	cursors  map[string]string
	outbox   map[string]*OutboxOp
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		blogs:    make(map[string]*StoredBlog),
		messages: make(map[string]*StoredChatMessage),
		cursors:  make(map[string]string),
		outbox:   make(map[string]*OutboxOp),
	}
}

func (s *MemoryStorage) Init() error { return nil }

func (s *MemoryStorage) GetBlog(id string) *StoredBlog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.blogs[id]
}

func (s *MemoryStorage) PutBlogs(blogs []*StoredBlog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range blogs {
		s.blogs[b.ID] = b
	}
}

func (s *MemoryStorage) GetBlogs(limit int) []*StoredBlog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*StoredBlog
	for _, b := range s.blogs {
		result = append(result, b)
	}
	sortByCreatedDesc(result, func(b *StoredBlog) string { return b.CreatedAt })
	if len(result) > limit {
		result = result[:limit]
	}
	return result
}

func (s *MemoryStorage) GetMessage(id string) *StoredChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.messages[id]
}

func (s *MemoryStorage) PutMessages(msgs []*StoredChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range msgs {
		s.messages[m.ID] = m
	}
}

func (s *MemoryStorage) GetMessages(chatID string, limit int, before string) []*StoredChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*StoredChatMessage
	for _, m := range s.messages {
		if m.ChatID == chatID {
			if before == "" || m.CreatedAt < before {
				result = append(result, m)
			}
		}
	}
	sortByCreatedAsc(result, func(m *StoredChatMessage) string { return m.CreatedAt })
	if len(result) > limit {
		result = result[len(result)-limit:]
	}
	return result
}

func (s *MemoryStorage) DeleteMessage(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.messages, id)
}

func (s *MemoryStorage) GetCursor(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursors[key]
}

func (s *MemoryStorage) SetCursor(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[key] = value
}

func (s *MemoryStorage) Enqueue(op *OutboxOp) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outbox[op.ID] = op
}

func (s *MemoryStorage) DequeueReady(limit int) []*OutboxOp {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ready []*OutboxOp
	for _, op := range s.outbox {
		if op.Status == "pending" && op.Retries < op.MaxRetries {
			ready = append(ready, op)
		}
	}
	sortOpsByCreated(ready)
	if len(ready) > limit {
		ready = ready[:limit]
	}
	return ready
}

func (s *MemoryStorage) Ack(opID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.outbox, opID)
}

func (s *MemoryStorage) Nack(opID string, errMsg string, retries int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op := s.outbox[opID]
	if op != nil {
		op.Retries = retries
		op.Error = errMsg
		if retries >= op.MaxRetries {
			op.Status = "failed"
		}
	}
}

func (s *MemoryStorage) PendingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, op := range s.outbox {
		if op.Status == "pending" {
			count++
		}
	}
	return count
}

// ============================================================================
// Write operation detection
// ============================================================================

var writePatterns = []struct {
	method  string
	pattern *regexp.Regexp
	opType  string
}{
	{"POST", regexp.MustCompile(`/api/chats/[^/]+/messages$`), "chat.send"},
	{"POST", regexp.MustCompile(`/api/blogs/[^/]+/comments$`), "comment.create"},
	{"POST", regexp.MustCompile(`/api/blogs/[^/]+/like$`), "blog.like"},
	{"DELETE", regexp.MustCompile(`/api/blogs/[^/]+/like$`), "blog.unlike"},
	{"POST", regexp.MustCompile(`/api/blogs$`), "blog.create"},
	{"POST", regexp.MustCompile(`/api/chats/[^/]+/read$`), "chat.read"},
}

var chatIDPattern = regexp.MustCompile(`/api/chats/([^/]+)/messages`)

func matchWriteOp(method, path string) string {
	for _, wp := range writePatterns {
		if method == wp.method && wp.pattern.MatchString(path) {
			return wp.opType
		}
	}
	return ""
}

// ============================================================================
// Event Emitter
// ============================================================================

// OfflineEventHandler handles offline layer events.
type OfflineEventHandler func(event string, payload any)

type offlineEmitter struct {
	mu        sync.RWMutex
	listeners map[string][]OfflineEventHandler
}

func (e *offlineEmitter) On(event string, handler OfflineEventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners[event] = append(e.listeners[event], handler)
}

func (e *offlineEmitter) emit(event string, payload any) {
	e.mu.RLock()
	handlers := e.listeners[event]
	e.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() { recover() }() // swallow panics in user callbacks
			h(event, payload)
		}()
	}
}

func (e *offlineEmitter) removeAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = make(map[string][]OfflineEventHandler)
}

// ============================================================================
// Offline Manager
// ============================================================================

// OfflineManager routes writes through a persistent outbox and serves reads
// from the local cache when the network is unavailable.
type OfflineManager struct {
	offlineEmitter
	Storage OfflineStorage
	client  *Client

	outboxRetryLimit    int
	outboxFlushInterval time.Duration
	log                 *zap.Logger

	mu       sync.Mutex
	isOnline bool
	flushing bool
	stopCh   chan struct{}
	stopped  bool
}

func NewOfflineManager(storage OfflineStorage, client *Client, opts *OfflineOptions) *OfflineManager {
	o := &OfflineManager{
		offlineEmitter: offlineEmitter{listeners: make(map[string][]OfflineEventHandler)},
		Storage:        storage,
		client:         client,
		isOnline:       true,
		stopCh:         make(chan struct{}),
		log:            zap.NewNop(),
	}
	if opts != nil {
		o.outboxRetryLimit = opts.OutboxRetryLimit
		if opts.OutboxFlushInterval > 0 {
			o.outboxFlushInterval = opts.OutboxFlushInterval
		}
		if opts.Logger != nil {
			o.log = opts.Logger.Named("offline")
		}
	}
	if o.outboxRetryLimit == 0 {
		o.outboxRetryLimit = 5
	}
	if o.outboxFlushInterval == 0 {
		o.outboxFlushInterval = time.Second
	}
	return o
}

// Init initializes storage and starts the background flush loop.
func (o *OfflineManager) Init() error {
	if err := o.Storage.Init(); err != nil {
		return err
	}
	go o.flushLoop()
	return nil
}

// Destroy stops background tasks and removes listeners.
func (o *OfflineManager) Destroy() {
	o.mu.Lock()
	if !o.stopped {
		o.stopped = true
		close(o.stopCh)
	}
	o.mu.Unlock()
	o.removeAll()
}

func (o *OfflineManager) IsOnline() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.isOnline
}

// SetOnline updates network state and triggers a flush on transition to
// online. Wire this to Realtime.OnStatusChange.
func (o *OfflineManager) SetOnline(online bool) {
	o.mu.Lock()
	if o.isOnline == online {
		o.mu.Unlock()
		return
	}
	o.isOnline = online
	o.mu.Unlock()

	if online {
		o.emit("network.online", nil)
		go o.Flush(context.Background())
	} else {
		o.emit("network.offline", nil)
	}
}

// BindRealtime drives online state from the real-time connection status.
// Returns a disposer.
func (o *OfflineManager) BindRealtime(rt *Realtime) func() {
	return rt.OnStatusChange(func(s Status) {
		o.SetOnline(s == StatusConnected)
	})
}

// OutboxSize returns the number of pending operations.
func (o *OfflineManager) OutboxSize() int {
	return o.Storage.PendingCount()
}

// ── Request dispatch ──────────────────────────────────────

// Dispatch routes a request through the offline layer. Recognized writes are
// queued with an idempotency key and answered optimistically; reads fall
// back to the local cache when offline.
func (o *OfflineManager) Dispatch(ctx context.Context, method, path string, body any, query map[string]string) (*Result, error) {
	opType := matchWriteOp(method, path)
	if opType != "" {
		return o.dispatchWrite(ctx, opType, method, path, body, query)
	}

	if method == "GET" && !o.IsOnline() {
		if cached := o.readFromCache(path, query); cached != nil {
			return cached, nil
		}
	}

	result, err := o.doRequest(ctx, method, path, body, query)
	if err != nil {
		if cached := o.readFromCache(path, query); cached != nil {
			return cached, nil
		}
		return nil, err
	}
	if method == "GET" {
		o.cacheReadResult(path, query, result)
	}
	return result, nil
}

func (o *OfflineManager) doRequest(ctx context.Context, method, path string, body any, query map[string]string) (*Result, error) {
	data, err := o.client.doRequest(ctx, method, path, body, query)
	if err != nil {
		return nil, err
	}
	return decodeJSON[Result](data)
}

func (o *OfflineManager) dispatchWrite(ctx context.Context, opType, method, path string, body any, query map[string]string) (*Result, error) {
	clientID := uuid.NewString()
	idempotencyKey := "plume-" + clientID

	// Inject idempotency key so a retried send never duplicates server-side
	enrichedBody := body
	if bodyMap, ok := body.(map[string]any); ok && (opType == "chat.send" || opType == "comment.create") {
		eb := make(map[string]any, len(bodyMap)+1)
		for k, v := range bodyMap {
			eb[k] = v
		}
		meta := make(map[string]any)
		if existing, ok := eb["metadata"].(map[string]any); ok {
			for k, v := range existing {
				meta[k] = v
			}
		}
		meta["_idempotencyKey"] = idempotencyKey
		eb["metadata"] = meta
		enrichedBody = eb
	}

	// Optimistic local message for chat sends
	var localMsg *StoredChatMessage
	if opType == "chat.send" {
		if bodyMap, ok := body.(map[string]any); ok {
			chatID := ""
			if m := chatIDPattern.FindStringSubmatch(path); len(m) > 1 {
				chatID = m[1]
			}
			content, _ := bodyMap["content"].(string)
			msgType, _ := bodyMap["type"].(string)
			if msgType == "" {
				msgType = "text"
			}
			var metadata map[string]any
			if md, ok := bodyMap["metadata"].(map[string]any); ok {
				metadata = md
			}
			localMsg = &StoredChatMessage{
				ID:        "local-" + clientID,
				ClientID:  clientID,
				ChatID:    chatID,
				Content:   content,
				Type:      msgType,
				SenderID:  "__self__",
				Status:    "pending",
				Metadata:  metadata,
				CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
			}
			o.Storage.PutMessages([]*StoredChatMessage{localMsg})
			o.emit("message.local", localMsg)
		}
	}

	op := &OutboxOp{
		ID:             clientID,
		OpType:         opType,
		Method:         method,
		Path:           path,
		Body:           enrichedBody,
		Query:          query,
		Status:         "pending",
		CreatedAt:      time.Now(),
		MaxRetries:     o.outboxRetryLimit,
		IdempotencyKey: idempotencyKey,
		LocalData:      localMsg,
	}
	o.Storage.Enqueue(op)

	if o.IsOnline() {
		go o.Flush(ctx)
	}

	result := &Result{OK: true}
	if localMsg != nil {
		data, _ := json.Marshal(map[string]any{
			"chatId":  localMsg.ChatID,
			"message": localMsg,
		})
		result.Data = data
	}
	return result, nil
}

// ── Outbox flush ──────────────────────────────────────────

func (o *OfflineManager) flushLoop() {
	ticker := time.NewTicker(o.outboxFlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-o.stopCh:
			return
		case <-ticker.C:
			o.Flush(context.Background())
		}
	}
}

// Flush processes pending outbox operations in FIFO order.
func (o *OfflineManager) Flush(ctx context.Context) {
	o.mu.Lock()
	if o.flushing || !o.isOnline {
		o.mu.Unlock()
		return
	}
	o.flushing = true
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.flushing = false
		o.mu.Unlock()
	}()

	ops := o.Storage.DequeueReady(10)
	for _, op := range ops {
		o.emit("outbox.sending", map[string]any{"opId": op.ID, "type": op.OpType})

		result, err := o.doRequest(ctx, op.Method, op.Path, op.Body, op.Query)
		if err != nil {
			errMsg := err.Error()
			o.Storage.Nack(op.ID, errMsg, op.Retries+1)
			if op.Retries+1 >= op.MaxRetries {
				o.log.Warn("outbox op exhausted retries",
					zap.String("op", op.OpType), zap.String("opId", op.ID))
				o.emit("outbox.failed", map[string]any{"opId": op.ID, "error": errMsg, "retriesLeft": 0})
				if op.OpType == "chat.send" {
					o.emit("message.failed", map[string]any{"clientId": op.ID, "error": errMsg})
				}
			}
			continue
		}

		if result.OK {
			o.Storage.Ack(op.ID)
			o.emit("outbox.confirmed", map[string]any{"opId": op.ID})
			if op.OpType == "chat.send" && op.LocalData != nil {
				o.confirmLocalMessage(op, result)
			}
			continue
		}

		errMsg := "request failed"
		errCode := ""
		if result.Error != nil {
			errMsg = result.Error.Message
			errCode = result.Error.Code
		}
		if !strings.Contains(errCode, "TIMEOUT") && !strings.Contains(errCode, "NETWORK") {
			// permanent failure: no point retrying
			o.Storage.Nack(op.ID, errMsg, op.MaxRetries)
			o.emit("outbox.failed", map[string]any{"opId": op.ID, "error": errMsg, "retriesLeft": 0})
			if op.OpType == "chat.send" {
				o.emit("message.failed", map[string]any{"clientId": op.ID, "error": errMsg})
			}
		} else {
			o.Storage.Nack(op.ID, errMsg, op.Retries+1)
			o.emit("outbox.failed", map[string]any{
				"opId": op.ID, "error": errMsg,
				"retriesLeft": op.MaxRetries - op.Retries - 1,
			})
		}
	}
}

// confirmLocalMessage replaces the optimistic local message with the server
// copy once the outbox op is acknowledged.
func (o *OfflineManager) confirmLocalMessage(op *OutboxOp, result *Result) {
	var respData map[string]any
	if result.Data != nil {
		json.Unmarshal(result.Data, &respData)
	}
	serverMsg, ok := respData["message"].(map[string]any)
	if !ok {
		return
	}
	o.Storage.DeleteMessage(op.LocalData.ID)

	chatID := strOr(serverMsg, "chatId", op.LocalData.ChatID)
	content := strOr(serverMsg, "content", op.LocalData.Content)
	msgType := strOr(serverMsg, "type", op.LocalData.Type)
	created := strOr(serverMsg, "createdAt", op.LocalData.CreatedAt)
	o.Storage.PutMessages([]*StoredChatMessage{{
		ID:        strOr(serverMsg, "id", ""),
		ClientID:  op.ID,
		ChatID:    chatID,
		Content:   content,
		Type:      msgType,
		SenderID:  strOr(serverMsg, "senderId", ""),
		Status:    "confirmed",
		CreatedAt: created,
	}})
	o.emit("message.confirmed", map[string]any{"clientId": op.ID, "serverMessage": serverMsg})
}

// HandleRealtimeEvent stores relevant routed events locally so the cache
// stays warm while connected.
func (o *OfflineManager) HandleRealtimeEvent(ev Event) {
	switch {
	case ev.Room.Kind == RoomChat && ev.Type == EventChatMessage:
		var payload map[string]any
		if json.Unmarshal(ev.Payload, &payload) != nil {
			return
		}
		var metadata map[string]any
		if md, ok := payload["metadata"].(map[string]any); ok {
			metadata = md
		}
		o.Storage.PutMessages([]*StoredChatMessage{{
			ID:        strOr(payload, "id", ev.EventID),
			ChatID:    strOr(payload, "chatId", ev.Room.ID),
			Content:   strOr(payload, "content", ""),
			Type:      strOr(payload, "type", "text"),
			SenderID:  strOr(payload, "senderId", ev.OriginUserID),
			Status:    "confirmed",
			Metadata:  metadata,
			CreatedAt: strOr(payload, "createdAt", time.Now().UTC().Format(time.RFC3339Nano)),
		}})
	}
}

// ── Read cache ────────────────────────────────────────────

var (
	blogsPattern    = regexp.MustCompile(`/api/blogs$`)
	blogPattern     = regexp.MustCompile(`/api/blogs/([^/]+)$`)
	messagesPattern = regexp.MustCompile(`/api/chats/([^/]+)/messages$`)
)

func (o *OfflineManager) readFromCache(path string, query map[string]string) *Result {
	if blogsPattern.MatchString(path) {
		blogs := o.Storage.GetBlogs(50)
		if len(blogs) > 0 {
			data, _ := json.Marshal(blogs)
			return &Result{OK: true, Data: data}
		}
	}

	if m := blogPattern.FindStringSubmatch(path); len(m) > 1 {
		if blog := o.Storage.GetBlog(m[1]); blog != nil {
			data, _ := json.Marshal(blog)
			return &Result{OK: true, Data: data}
		}
	}

	if m := messagesPattern.FindStringSubmatch(path); len(m) > 1 {
		chatID := m[1]
		limit := 50
		if l, ok := query["limit"]; ok {
			fmt.Sscanf(l, "%d", &limit)
		}
		msgs := o.Storage.GetMessages(chatID, limit, query["before"])
		if len(msgs) > 0 {
			data, _ := json.Marshal(msgs)
			return &Result{OK: true, Data: data}
		}
	}

	return nil
}

func (o *OfflineManager) cacheReadResult(path string, query map[string]string, result *Result) {
	if result == nil || !result.OK || result.Data == nil {
		return
	}

	if blogsPattern.MatchString(path) {
		var blogs []map[string]any
		if json.Unmarshal(result.Data, &blogs) == nil {
			var stored []*StoredBlog
			for _, b := range blogs {
				stored = append(stored, storedBlogFrom(b))
			}
			o.Storage.PutBlogs(stored)
		}
	}

	if m := blogPattern.FindStringSubmatch(path); len(m) > 1 {
		var b map[string]any
		if json.Unmarshal(result.Data, &b) == nil && strOr(b, "id", "") != "" {
			o.Storage.PutBlogs([]*StoredBlog{storedBlogFrom(b)})
		}
	}

	if m := messagesPattern.FindStringSubmatch(path); len(m) > 1 {
		chatID := m[1]
		var msgs []map[string]any
		if json.Unmarshal(result.Data, &msgs) == nil {
			var stored []*StoredChatMessage
			for _, msg := range msgs {
				var metadata map[string]any
				if md, ok := msg["metadata"].(map[string]any); ok {
					metadata = md
				}
				stored = append(stored, &StoredChatMessage{
					ID:        strOr(msg, "id", ""),
					ChatID:    strOr(msg, "chatId", chatID),
					Content:   strOr(msg, "content", ""),
					Type:      strOr(msg, "type", "text"),
					SenderID:  strOr(msg, "senderId", ""),
					Status:    "confirmed",
					Metadata:  metadata,
					CreatedAt: strOr(msg, "createdAt", ""),
				})
			}
			o.Storage.PutMessages(stored)
		}
	}
}

func storedBlogFrom(b map[string]any) *StoredBlog {
	return &StoredBlog{
		ID:        strOr(b, "id", ""),
		AuthorID:  strOr(b, "authorId", ""),
		Title:     strOr(b, "title", ""),
		Content:   strOr(b, "content", ""),
		LikeCount: intOr(b, "likeCount", 0),
		CreatedAt: strOr(b, "createdAt", ""),
		UpdatedAt: strOr(b, "updatedAt", ""),
	}
}

// ============================================================================
// Helpers
// ============================================================================

func strOr(m map[string]any, key, fallback string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func intOr(m map[string]any, key string, fallback int) int {
	if v, ok := m[key].(float64); ok {
		return int(v)
	}
	return fallback
}

func sortByCreatedDesc[T any](items []T, key func(T) string) {
	sort.Slice(items, func(i, j int) bool { return key(items[i]) > key(items[j]) })
}

func sortByCreatedAsc[T any](items []T, key func(T) string) {
	sort.Slice(items, func(i, j int) bool { return key(items[i]) < key(items[j]) })
}

func sortOpsByCreated(ops []*OutboxOp) {
	sort.Slice(ops, func(i, j int) bool { return ops[i].CreatedAt.Before(ops[j].CreatedAt) })
}
