package plume

import (
	"encoding/json"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	glogger "gorm.io/gorm/logger"
)

// SQLiteStorage is an OfflineStorage backend persisting the cache and outbox
// across process restarts. Queued writes survive an app quit and flush on
// the next launch.
type SQLiteStorage struct {
	db *gorm.DB
}

type blogRow struct {
	ID        string `gorm:"primaryKey"`
	AuthorID  string
	Title     string
	Content   string
	LikeCount int
	CreatedAt string `gorm:"index"`
	UpdatedAt string
}

func (blogRow) TableName() string { return "cached_blogs" }

type messageRow struct {
	ID        string `gorm:"primaryKey"`
	ClientID  string
	ChatID    string `gorm:"index"`
	Content   string
	Type      string
	SenderID  string
	Status    string
	Metadata  string
	CreatedAt string `gorm:"index"`
	UpdatedAt string
}

func (messageRow) TableName() string { return "cached_messages" }

type cursorRow struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

func (cursorRow) TableName() string { return "cursors" }

type outboxRow struct {
	ID             string `gorm:"primaryKey"`
	OpType         string
	Method         string
	Path           string
	Body           string
	Query          string
	Status         string `gorm:"index"`
	CreatedAt      time.Time
	Retries        int
	MaxRetries     int
	IdempotencyKey string
	LocalData      string
	Error          string
}

func (outboxRow) TableName() string { return "outbox" }

// NewSQLiteStorage opens (or creates) the database at path. Use ":memory:"
// for an ephemeral database.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: glogger.Default.LogMode(glogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) Init() error {
	return s.db.AutoMigrate(&blogRow{}, &messageRow{}, &cursorRow{}, &outboxRow{})
}

// ── Blogs ────────────────────────────────────────────────

func (s *SQLiteStorage) GetBlog(id string) *StoredBlog {
	var row blogRow
	if err := s.db.First(&row, "id = ?", id).Error; err != nil {
		return nil
	}
	return blogFromRow(&row)
}

func (s *SQLiteStorage) PutBlogs(blogs []*StoredBlog) {
	for _, b := range blogs {
		row := blogRow{
			ID: b.ID, AuthorID: b.AuthorID, Title: b.Title, Content: b.Content,
			LikeCount: b.LikeCount, CreatedAt: b.CreatedAt, UpdatedAt: b.UpdatedAt,
		}
		s.db.Save(&row)
	}
}

func (s *SQLiteStorage) GetBlogs(limit int) []*StoredBlog {
	var rows []blogRow
	s.db.Order("created_at desc").Limit(limit).Find(&rows)
	out := make([]*StoredBlog, 0, len(rows))
	for i := range rows {
		out = append(out, blogFromRow(&rows[i]))
	}
	return out
}

func blogFromRow(r *blogRow) *StoredBlog {
	return &StoredBlog{
		ID: r.ID, AuthorID: r.AuthorID, Title: r.Title, Content: r.Content,
		LikeCount: r.LikeCount, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

// ── Messages ─────────────────────────────────────────────

func (s *SQLiteStorage) GetMessage(id string) *StoredChatMessage {
	var row messageRow
	if err := s.db.First(&row, "id = ?", id).Error; err != nil {
		return nil
	}
	return messageFromRow(&row)
}

func (s *SQLiteStorage) PutMessages(msgs []*StoredChatMessage) {
	for _, m := range msgs {
		meta := ""
		if m.Metadata != nil {
			if b, err := json.Marshal(m.Metadata); err == nil {
				meta = string(b)
			}
		}
		row := messageRow{
			ID: m.ID, ClientID: m.ClientID, ChatID: m.ChatID,
			Content: m.Content, Type: m.Type, SenderID: m.SenderID,
			Status: m.Status, Metadata: meta,
			CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt,
		}
		s.db.Save(&row)
	}
}

func (s *SQLiteStorage) GetMessages(chatID string, limit int, before string) []*StoredChatMessage {
	q := s.db.Where("chat_id = ?", chatID)
	if before != "" {
		q = q.Where("created_at < ?", before)
	}
	var rows []messageRow
	q.Order("created_at desc").Limit(limit).Find(&rows)

	// newest-first from the DB, callers expect oldest-first
	out := make([]*StoredChatMessage, len(rows))
	for i := range rows {
		out[len(rows)-1-i] = messageFromRow(&rows[i])
	}
	return out
}

func (s *SQLiteStorage) DeleteMessage(id string) {
	s.db.Delete(&messageRow{}, "id = ?", id)
}

func messageFromRow(r *messageRow) *StoredChatMessage {
	var meta map[string]any
	if r.Metadata != "" {
		json.Unmarshal([]byte(r.Metadata), &meta)
	}
	return &StoredChatMessage{
		ID: r.ID, ClientID: r.ClientID, ChatID: r.ChatID,
		Content: r.Content, Type: r.Type, SenderID: r.SenderID,
		Status: r.Status, Metadata: meta,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

// ── Cursors ──────────────────────────────────────────────

func (s *SQLiteStorage) GetCursor(key string) string {
	var row cursorRow
	if err := s.db.First(&row, "key = ?", key).Error; err != nil {
		return ""
	}
	return row.Value
}

func (s *SQLiteStorage) SetCursor(key, value string) {
	s.db.Save(&cursorRow{Key: key, Value: value})
}

// ── Outbox ───────────────────────────────────────────────

func (s *SQLiteStorage) Enqueue(op *OutboxOp) {
	body := ""
	if op.Body != nil {
		if b, err := json.Marshal(op.Body); err == nil {
			body = string(b)
		}
	}
	query := ""
	if op.Query != nil {
		if b, err := json.Marshal(op.Query); err == nil {
			query = string(b)
		}
	}
	local := ""
	if op.LocalData != nil {
		if b, err := json.Marshal(op.LocalData); err == nil {
			local = string(b)
		}
	}
	s.db.Save(&outboxRow{
		ID: op.ID, OpType: op.OpType, Method: op.Method, Path: op.Path,
		Body: body, Query: query, Status: op.Status, CreatedAt: op.CreatedAt,
		Retries: op.Retries, MaxRetries: op.MaxRetries,
		IdempotencyKey: op.IdempotencyKey, LocalData: local, Error: op.Error,
	})
}

func (s *SQLiteStorage) DequeueReady(limit int) []*OutboxOp {
	var rows []outboxRow
	s.db.Where("status = ? AND retries < max_retries", "pending").
		Order("created_at asc").Limit(limit).Find(&rows)
	out := make([]*OutboxOp, 0, len(rows))
	for i := range rows {
		out = append(out, outboxFromRow(&rows[i]))
	}
	return out
}

func (s *SQLiteStorage) Ack(opID string) {
	s.db.Delete(&outboxRow{}, "id = ?", opID)
}

func (s *SQLiteStorage) Nack(opID string, errMsg string, retries int) {
	var row outboxRow
	if err := s.db.First(&row, "id = ?", opID).Error; err != nil {
		return
	}
	updates := map[string]any{"retries": retries, "error": errMsg}
	if retries >= row.MaxRetries {
		updates["status"] = "failed"
	}
	s.db.Model(&outboxRow{}).Where("id = ?", opID).Updates(updates)
}

func (s *SQLiteStorage) PendingCount() int {
	var count int64
	s.db.Model(&outboxRow{}).Where("status = ?", "pending").Count(&count)
	return int(count)
}

func outboxFromRow(r *outboxRow) *OutboxOp {
	op := &OutboxOp{
		ID: r.ID, OpType: r.OpType, Method: r.Method, Path: r.Path,
		Status: r.Status, CreatedAt: r.CreatedAt,
		Retries: r.Retries, MaxRetries: r.MaxRetries,
		IdempotencyKey: r.IdempotencyKey, Error: r.Error,
	}
	if r.Body != "" {
		var body map[string]any
		if json.Unmarshal([]byte(r.Body), &body) == nil {
			op.Body = body
		}
	}
	if r.Query != "" {
		var query map[string]string
		if json.Unmarshal([]byte(r.Query), &query) == nil {
			op.Query = query
		}
	}
	if r.LocalData != "" {
		var local StoredChatMessage
		if json.Unmarshal([]byte(r.LocalData), &local) == nil {
			op.LocalData = &local
		}
	}
	return op
}
