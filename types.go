package plume

import "encoding/json"

// ============================================================================
// Shared Types
// ============================================================================

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

// Result is the generic API response envelope.
type Result struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Meta  map[string]any  `json:"meta,omitempty"`
	Error *APIError       `json:"error,omitempty"`
}

// Decode unmarshals the Data field into the provided type.
func (r *Result) Decode(v interface{}) error {
	if r.Data == nil {
		return nil
	}
	return json.Unmarshal(r.Data, v)
}

// ============================================================================
// Account Types
// ============================================================================

// User represents a platform user.
type User struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	Role        string `json:"role"` // "member", "author", "moderator", "admin"
	Bio         string `json:"bio,omitempty"`
	CreatedAt   string `json:"createdAt"`
}

// LoginData is returned by a successful login.
type LoginData struct {
	User      User   `json:"user"`
	Token     string `json:"token"`
	ExpiresIn string `json:"expiresIn"`
}

// TokenData is returned by a token refresh.
type TokenData struct {
	Token     string `json:"token"`
	ExpiresIn string `json:"expiresIn"`
}

// AccountStats summarizes the current user's activity.
type AccountStats struct {
	BlogCount     int `json:"blogCount"`
	CommentCount  int `json:"commentCount"`
	FollowerCount int `json:"followerCount"`
	UnreadCount   int `json:"unreadCount"`
}

// MeData is the payload of the /me endpoint.
type MeData struct {
	User  User         `json:"user"`
	Stats AccountStats `json:"stats"`
}

// ============================================================================
// Blog Types
// ============================================================================

// Blog represents a blog post.
type Blog struct {
	ID            string          `json:"id"`
	AuthorID      string          `json:"authorId"`
	Title         string          `json:"title"`
	Content       string          `json:"content"`
	Tags          []string        `json:"tags,omitempty"`
	LikeCount     int             `json:"likeCount"`
	CommentCount  int             `json:"commentCount"`
	ViewerCount   int             `json:"viewerCount,omitempty"`
	IsLiked       bool            `json:"isLiked"`
	IsBookmarked  bool            `json:"isBookmarked"`
	Visibility    string          `json:"visibility,omitempty"` // "public", "unlisted", "draft"
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	CreatedAt     string          `json:"createdAt"`
	UpdatedAt     string          `json:"updatedAt,omitempty"`
	PublishedAt   string          `json:"publishedAt,omitempty"`
	ModeratedAt   string          `json:"moderatedAt,omitempty"`
	ModerationTag string          `json:"moderationTag,omitempty"`
}

// BlogCreateOptions configures blog creation.
type BlogCreateOptions struct {
	Title      string         `json:"title"`
	Content    string         `json:"content"`
	Tags       []string       `json:"tags,omitempty"`
	Visibility string         `json:"visibility,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// BlogUpdateOptions configures a blog update. Nil fields are left unchanged.
type BlogUpdateOptions struct {
	Title      *string  `json:"title,omitempty"`
	Content    *string  `json:"content,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Visibility *string  `json:"visibility,omitempty"`
}

// BlogListOptions filters blog listings.
type BlogListOptions struct {
	AuthorID string
	Tag      string
	Limit    int
	Offset   int
}

// LikeState is the derived like state for a blog or comment: an integer
// count plus a local "did I act" flag. Member lists are never reconstructed
// from the count.
type LikeState struct {
	Count int  `json:"count"`
	Liked bool `json:"liked"`
}

// BookmarkState is the derived bookmark state for a blog.
type BookmarkState struct {
	Bookmarked bool `json:"bookmarked"`
}

// ============================================================================
// Comment Types
// ============================================================================

// Comment represents a comment on a blog.
type Comment struct {
	ID        string  `json:"id"`
	BlogID    string  `json:"blogId"`
	AuthorID  string  `json:"authorId"`
	Content   string  `json:"content"`
	ParentID  *string `json:"parentId,omitempty"`
	LikeCount int     `json:"likeCount"`
	IsLiked   bool    `json:"isLiked"`
	Status    string  `json:"status,omitempty"` // "visible", "hidden", "deleted"
	CreatedAt string  `json:"createdAt"`
	UpdatedAt string  `json:"updatedAt,omitempty"`
}

// CommentCreateOptions configures comment creation.
type CommentCreateOptions struct {
	ParentID string         `json:"parentId,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ============================================================================
// Chat Types
// ============================================================================

// Chat represents a chat conversation.
type Chat struct {
	ID            string       `json:"id"`
	Type          string       `json:"type"` // "direct" or "group"
	Title         string       `json:"title,omitempty"`
	Members       []ChatMember `json:"members,omitempty"`
	LastMessage   *ChatMessage `json:"lastMessage,omitempty"`
	UnreadCount   int          `json:"unreadCount"`
	LastMessageAt string       `json:"lastMessageAt,omitempty"`
	CreatedAt     string       `json:"createdAt"`
}

// ChatMember represents a chat participant.
type ChatMember struct {
	UserID      string `json:"userId"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName,omitempty"`
	Role        string `json:"role"`
}

// ChatMessage represents a message in a chat.
type ChatMessage struct {
	ID        string          `json:"id"`
	ChatID    string          `json:"chatId"`
	SenderID  string          `json:"senderId"`
	Content   string          `json:"content"`
	Type      string          `json:"type"` // "text", "markdown", "media"
	ParentID  *string         `json:"parentId,omitempty"`
	Status    string          `json:"status,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt string          `json:"createdAt"`
	UpdatedAt string          `json:"updatedAt,omitempty"`
}

// ChatSendOptions configures chat message sending.
type ChatSendOptions struct {
	Type     string         `json:"type,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	ParentID string         `json:"parentId,omitempty"`
}

// ============================================================================
// Poll Types
// ============================================================================

// Poll represents a poll attached to a blog.
type Poll struct {
	ID        string       `json:"id"`
	BlogID    string       `json:"blogId,omitempty"`
	Question  string       `json:"question"`
	Options   []PollOption `json:"options"`
	VoteCount int          `json:"voteCount"`
	MyVote    *int         `json:"myVote,omitempty"` // index into Options
	ClosesAt  string       `json:"closesAt,omitempty"`
	CreatedAt string       `json:"createdAt"`
}

// PollOption represents one poll choice.
type PollOption struct {
	Index int    `json:"index"`
	Label string `json:"label"`
	Votes int    `json:"votes"`
}

// PollCreateOptions configures poll creation.
type PollCreateOptions struct {
	BlogID   string   `json:"blogId,omitempty"`
	Question string   `json:"question"`
	Options  []string `json:"options"`
	ClosesAt string   `json:"closesAt,omitempty"`
}

// ============================================================================
// Media Types
// ============================================================================

// MediaPresignOptions requests a presigned upload slot.
type MediaPresignOptions struct {
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
	MimeType string `json:"mimeType"`
}

// MediaPresignResult is the presign response.
type MediaPresignResult struct {
	UploadID string            `json:"uploadId"`
	URL      string            `json:"url"`
	Fields   map[string]string `json:"fields,omitempty"`
}

// MediaPart describes one part of a multipart upload.
type MediaPart struct {
	PartNumber int    `json:"partNumber"`
	URL        string `json:"url"`
}

// MediaMultipartInitResult is the multipart init response.
type MediaMultipartInitResult struct {
	UploadID string      `json:"uploadId"`
	Parts    []MediaPart `json:"parts"`
}

// MediaCompletedPart identifies an uploaded part.
type MediaCompletedPart struct {
	PartNumber int    `json:"partNumber"`
	ETag       string `json:"etag"`
}

// MediaConfirmResult is returned once an upload is validated and live.
type MediaConfirmResult struct {
	UploadID string `json:"uploadId"`
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
	MimeType string `json:"mimeType"`
	CdnURL   string `json:"cdnUrl"`
}

// UploadOptions configures a full upload lifecycle.
type UploadOptions struct {
	FileName   string
	MimeType   string
	OnProgress func(uploaded, total int64)
}

// ============================================================================
// Moderation Types
// ============================================================================

// ReportOptions files a moderation report.
type ReportOptions struct {
	TargetType string `json:"targetType"` // "blog", "comment", "user", "chat-message"
	TargetID   string `json:"targetId"`
	Reason     string `json:"reason"`
	Details    string `json:"details,omitempty"`
}

// ModerationAction represents an admin action in the audit log.
type ModerationAction struct {
	ID         string `json:"id"`
	ActorID    string `json:"actorId"`
	Action     string `json:"action"` // "hide", "restore", "ban", "warn"
	TargetType string `json:"targetType"`
	TargetID   string `json:"targetId"`
	Reason     string `json:"reason,omitempty"`
	CreatedAt  string `json:"createdAt"`
}

// ============================================================================
// Pagination
// ============================================================================

// PaginationOptions limits list endpoints.
type PaginationOptions struct {
	Limit  int
	Offset int
	Before string
}
