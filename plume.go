// Package plume provides the official Go client for the Plume blog and
// social platform.
//
// Covers accounts, blogs, comments, chats, polls, media, and moderation
// with a sub-module access pattern, plus a real-time layer multiplexing
// every live concern over one WebSocket connection.
//
// Example:
//
//	client := plume.NewClient("eyJhbGci...")
//
//	// REST surface
//	blogs, _ := client.Blogs.List(ctx, nil)
//	client.Comments.Create(ctx, "blog-42", "Nice post!", nil)
//
//	// Real-time layer (one connection, many rooms)
//	rt := client.Realtime(nil)
//	rt.Connect(ctx)
//	sub := rt.Join(plume.RoomKey{Kind: plume.RoomBlogView, ID: "blog-42"})
//	defer sub.Release()
package plume

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://plume.social"
	DefaultTimeout = 30 * time.Second
)

// ============================================================================
// Client
// ============================================================================

type Client struct {
	token      string
	baseURL    string
	userAgent  string
	httpClient *http.Client
	log        *zap.Logger

	Account    *AccountClient
	Blogs      *BlogsClient
	Comments   *CommentsClient
	Chats      *ChatsClient
	Polls      *PollsClient
	Media      *MediaClient
	Moderation *ModerationClient
}

type ClientOption func(*Client)

func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

func WithLogger(log *zap.Logger) ClientOption {
	return func(c *Client) { c.log = log }
}

func WithUserAgent(agent string) ClientOption {
	return func(c *Client) { c.userAgent = agent }
}

// NewClient creates a new Plume client.
// token is optional; pass "" for anonymous read access.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		token:   token,
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		log: zap.NewNop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.Account = &AccountClient{c: c}
	c.Blogs = &BlogsClient{c: c}
	c.Comments = &CommentsClient{c: c}
	c.Chats = &ChatsClient{c: c}
	c.Polls = &PollsClient{c: c}
	c.Media = &MediaClient{c: c}
	c.Moderation = &ModerationClient{c: c}
	return c
}

// SetToken sets or updates the auth token, e.g. after login or refresh.
func (c *Client) SetToken(token string) {
	c.token = token
}

// Token returns the current auth token.
func (c *Client) Token() string {
	return c.token
}

// Realtime creates a real-time client bound to this client's base URL and
// token. Call Connect to establish the connection.
func (c *Client) Realtime(cfg *RealtimeConfig) *Realtime {
	var conf RealtimeConfig
	if cfg != nil {
		conf = *cfg
	}
	if conf.Token == "" {
		conf.Token = c.token
	}
	if conf.Logger == nil {
		conf.Logger = c.log
	}
	return newRealtime(c.baseURL, &conf)
}

// WSUrl returns the WebSocket endpoint for the configured base URL.
func (c *Client) WSUrl() string {
	base := strings.Replace(c.baseURL, "https://", "wss://", 1)
	base = strings.Replace(base, "http://", "ws://", 1)
	return base + "/ws"
}

// ============================================================================
// Internal request helper
// ============================================================================

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, query map[string]string) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		params := url.Values{}
		for k, v := range query {
			params.Set(k, v)
		}
		u += "?" + params.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, query map[string]string) (*Result, error) {
	data, err := c.doRequest(ctx, method, path, body, query)
	if err != nil {
		return nil, err
	}
	return decodeJSON[Result](data)
}

func decodeJSON[T any](data []byte) (*T, error) {
	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &result, nil
}

func paginationQuery(opts *PaginationOptions) map[string]string {
	if opts == nil {
		return nil
	}
	q := map[string]string{}
	if opts.Limit > 0 {
		q["limit"] = fmt.Sprintf("%d", opts.Limit)
	}
	if opts.Offset > 0 {
		q["offset"] = fmt.Sprintf("%d", opts.Offset)
	}
	if opts.Before != "" {
		q["before"] = opts.Before
	}
	if len(q) == 0 {
		return nil
	}
	return q
}

// ============================================================================
// Account
// ============================================================================

// AccountClient handles authentication and identity.
type AccountClient struct{ c *Client }

// Login authenticates with username and password. On success the returned
// token is set on the client.
func (a *AccountClient) Login(ctx context.Context, username, password string) (*Result, error) {
	res, err := a.c.do(ctx, "POST", "/api/auth/login", map[string]string{
		"username": username, "password": password,
	}, nil)
	if err != nil {
		return nil, err
	}
	if res.OK {
		var login LoginData
		if err := res.Decode(&login); err == nil && login.Token != "" {
			a.c.SetToken(login.Token)
		}
	}
	return res, nil
}

func (a *AccountClient) Register(ctx context.Context, username, password, displayName string) (*Result, error) {
	return a.c.do(ctx, "POST", "/api/auth/register", map[string]string{
		"username": username, "password": password, "displayName": displayName,
	}, nil)
}

func (a *AccountClient) Me(ctx context.Context) (*Result, error) {
	return a.c.do(ctx, "GET", "/api/me", nil, nil)
}

// RefreshToken exchanges the current token for a fresh one and updates the
// client on success.
func (a *AccountClient) RefreshToken(ctx context.Context) (*Result, error) {
	if a.c.token == "" {
		return nil, ErrNoToken
	}
	res, err := a.c.do(ctx, "POST", "/api/auth/refresh", nil, nil)
	if err != nil {
		return nil, err
	}
	if res.OK {
		var tok TokenData
		if err := res.Decode(&tok); err == nil && tok.Token != "" {
			a.c.SetToken(tok.Token)
		}
	}
	return res, nil
}

func (a *AccountClient) UpdateProfile(ctx context.Context, fields map[string]any) (*Result, error) {
	return a.c.do(ctx, "PATCH", "/api/me", fields, nil)
}

// ============================================================================
// Blogs
// ============================================================================

// BlogsClient handles blog posts.
type BlogsClient struct{ c *Client }

func (b *BlogsClient) Create(ctx context.Context, opts *BlogCreateOptions) (*Result, error) {
	return b.c.do(ctx, "POST", "/api/blogs", opts, nil)
}

func (b *BlogsClient) Get(ctx context.Context, blogID string) (*Result, error) {
	return b.c.do(ctx, "GET", "/api/blogs/"+blogID, nil, nil)
}

func (b *BlogsClient) Update(ctx context.Context, blogID string, opts *BlogUpdateOptions) (*Result, error) {
	return b.c.do(ctx, "PATCH", "/api/blogs/"+blogID, opts, nil)
}

func (b *BlogsClient) Delete(ctx context.Context, blogID string) (*Result, error) {
	return b.c.do(ctx, "DELETE", "/api/blogs/"+blogID, nil, nil)
}

func (b *BlogsClient) List(ctx context.Context, opts *BlogListOptions) (*Result, error) {
	var query map[string]string
	if opts != nil {
		query = map[string]string{}
		if opts.AuthorID != "" {
			query["authorId"] = opts.AuthorID
		}
		if opts.Tag != "" {
			query["tag"] = opts.Tag
		}
		if opts.Limit > 0 {
			query["limit"] = fmt.Sprintf("%d", opts.Limit)
		}
		if opts.Offset > 0 {
			query["offset"] = fmt.Sprintf("%d", opts.Offset)
		}
		if len(query) == 0 {
			query = nil
		}
	}
	return b.c.do(ctx, "GET", "/api/blogs", nil, query)
}

func (b *BlogsClient) Like(ctx context.Context, blogID string) (*Result, error) {
	return b.c.do(ctx, "POST", "/api/blogs/"+blogID+"/like", nil, nil)
}

func (b *BlogsClient) Unlike(ctx context.Context, blogID string) (*Result, error) {
	return b.c.do(ctx, "DELETE", "/api/blogs/"+blogID+"/like", nil, nil)
}

func (b *BlogsClient) Bookmark(ctx context.Context, blogID string) (*Result, error) {
	return b.c.do(ctx, "POST", "/api/blogs/"+blogID+"/bookmark", nil, nil)
}

func (b *BlogsClient) Unbookmark(ctx context.Context, blogID string) (*Result, error) {
	return b.c.do(ctx, "DELETE", "/api/blogs/"+blogID+"/bookmark", nil, nil)
}

// ToggleLike applies an optimistic like toggle through the real-time
// mutation tracker and issues the REST write. prev is the state currently
// shown; the returned Mutation settles when the server echo arrives or the
// timeout elapses, at which point the caller rolls back to prev on failure.
func (b *BlogsClient) ToggleLike(ctx context.Context, rt *Realtime, blogID string, prev LikeState) (*Mutation, error) {
	next := LikeState{Liked: !prev.Liked}
	if next.Liked {
		next.Count = prev.Count + 1
	} else if prev.Count > 0 {
		next.Count = prev.Count - 1
	}

	m, err := rt.Mutations().Apply(MutationLike, blogID, next, prev)
	if err != nil {
		return nil, err
	}
	if next.Liked {
		_, err = b.Like(ctx, blogID)
	} else {
		_, err = b.Unlike(ctx, blogID)
	}
	if err != nil {
		return m, err
	}
	return m, nil
}

// ============================================================================
// Comments
// ============================================================================

// CommentsClient handles comments on blogs.
type CommentsClient struct{ c *Client }

func (cm *CommentsClient) Create(ctx context.Context, blogID, content string, opts *CommentCreateOptions) (*Result, error) {
	payload := map[string]any{"content": content}
	if opts != nil {
		if opts.ParentID != "" {
			payload["parentId"] = opts.ParentID
		}
		if opts.Metadata != nil {
			payload["metadata"] = opts.Metadata
		}
	}
	return cm.c.do(ctx, "POST", "/api/blogs/"+blogID+"/comments", payload, nil)
}

func (cm *CommentsClient) List(ctx context.Context, blogID string, opts *PaginationOptions) (*Result, error) {
	return cm.c.do(ctx, "GET", "/api/blogs/"+blogID+"/comments", nil, paginationQuery(opts))
}

func (cm *CommentsClient) Edit(ctx context.Context, commentID, content string) (*Result, error) {
	return cm.c.do(ctx, "PATCH", "/api/comments/"+commentID, map[string]string{"content": content}, nil)
}

func (cm *CommentsClient) Delete(ctx context.Context, commentID string) (*Result, error) {
	return cm.c.do(ctx, "DELETE", "/api/comments/"+commentID, nil, nil)
}

func (cm *CommentsClient) Like(ctx context.Context, commentID string) (*Result, error) {
	return cm.c.do(ctx, "POST", "/api/comments/"+commentID+"/like", nil, nil)
}

func (cm *CommentsClient) Unlike(ctx context.Context, commentID string) (*Result, error) {
	return cm.c.do(ctx, "DELETE", "/api/comments/"+commentID+"/like", nil, nil)
}

// ============================================================================
// Chats
// ============================================================================

// ChatsClient handles direct and group chats.
type ChatsClient struct{ c *Client }

func (ch *ChatsClient) List(ctx context.Context, unreadOnly bool) (*Result, error) {
	var query map[string]string
	if unreadOnly {
		query = map[string]string{"unreadOnly": "true"}
	}
	return ch.c.do(ctx, "GET", "/api/chats", nil, query)
}

func (ch *ChatsClient) Get(ctx context.Context, chatID string) (*Result, error) {
	return ch.c.do(ctx, "GET", "/api/chats/"+chatID, nil, nil)
}

func (ch *ChatsClient) CreateDirect(ctx context.Context, userID string) (*Result, error) {
	return ch.c.do(ctx, "POST", "/api/chats/direct", map[string]string{"userId": userID}, nil)
}

func (ch *ChatsClient) CreateGroup(ctx context.Context, title string, memberIDs []string) (*Result, error) {
	return ch.c.do(ctx, "POST", "/api/chats/group", map[string]any{
		"title": title, "memberIds": memberIDs,
	}, nil)
}

func (ch *ChatsClient) Send(ctx context.Context, chatID, content string, opts *ChatSendOptions) (*Result, error) {
	payload := map[string]any{"content": content, "type": "text"}
	if opts != nil {
		if opts.Type != "" {
			payload["type"] = opts.Type
		}
		if opts.Metadata != nil {
			payload["metadata"] = opts.Metadata
		}
		if opts.ParentID != "" {
			payload["parentId"] = opts.ParentID
		}
	}
	return ch.c.do(ctx, "POST", "/api/chats/"+chatID+"/messages", payload, nil)
}

func (ch *ChatsClient) History(ctx context.Context, chatID string, opts *PaginationOptions) (*Result, error) {
	return ch.c.do(ctx, "GET", "/api/chats/"+chatID+"/messages", nil, paginationQuery(opts))
}

func (ch *ChatsClient) MarkAsRead(ctx context.Context, chatID string) (*Result, error) {
	return ch.c.do(ctx, "POST", "/api/chats/"+chatID+"/read", nil, nil)
}

func (ch *ChatsClient) AddMember(ctx context.Context, chatID, userID string) (*Result, error) {
	return ch.c.do(ctx, "POST", "/api/chats/"+chatID+"/members", map[string]string{"userId": userID}, nil)
}

func (ch *ChatsClient) RemoveMember(ctx context.Context, chatID, userID string) (*Result, error) {
	return ch.c.do(ctx, "DELETE", "/api/chats/"+chatID+"/members/"+userID, nil, nil)
}

// ============================================================================
// Polls
// ============================================================================

// PollsClient handles polls attached to blogs.
type PollsClient struct{ c *Client }

func (p *PollsClient) Create(ctx context.Context, opts *PollCreateOptions) (*Result, error) {
	return p.c.do(ctx, "POST", "/api/polls", opts, nil)
}

func (p *PollsClient) Get(ctx context.Context, pollID string) (*Result, error) {
	return p.c.do(ctx, "GET", "/api/polls/"+pollID, nil, nil)
}

func (p *PollsClient) Vote(ctx context.Context, pollID string, optionIndex int) (*Result, error) {
	return p.c.do(ctx, "POST", "/api/polls/"+pollID+"/vote", map[string]int{"option": optionIndex}, nil)
}

func (p *PollsClient) Retract(ctx context.Context, pollID string) (*Result, error) {
	return p.c.do(ctx, "DELETE", "/api/polls/"+pollID+"/vote", nil, nil)
}

// CastVote applies an optimistic vote through the real-time mutation tracker
// and issues the REST write, mirroring BlogsClient.ToggleLike.
func (p *PollsClient) CastVote(ctx context.Context, rt *Realtime, pollID string, optionIndex int, prev *Poll) (*Mutation, error) {
	next := *prev
	next.MyVote = &optionIndex
	m, err := rt.Mutations().Apply(MutationVote, pollID, next, prev)
	if err != nil {
		return nil, err
	}
	if _, err := p.Vote(ctx, pollID, optionIndex); err != nil {
		return m, err
	}
	return m, nil
}

// ============================================================================
// Moderation
// ============================================================================

// ModerationClient handles reports and admin actions.
type ModerationClient struct{ c *Client }

func (m *ModerationClient) Report(ctx context.Context, opts *ReportOptions) (*Result, error) {
	return m.c.do(ctx, "POST", "/api/moderation/reports", opts, nil)
}

func (m *ModerationClient) Hide(ctx context.Context, targetType, targetID, reason string) (*Result, error) {
	return m.c.do(ctx, "POST", "/api/moderation/hide", map[string]string{
		"targetType": targetType, "targetId": targetID, "reason": reason,
	}, nil)
}

func (m *ModerationClient) Restore(ctx context.Context, targetType, targetID string) (*Result, error) {
	return m.c.do(ctx, "POST", "/api/moderation/restore", map[string]string{
		"targetType": targetType, "targetId": targetID,
	}, nil)
}

func (m *ModerationClient) AuditLog(ctx context.Context, opts *PaginationOptions) (*Result, error) {
	return m.c.do(ctx, "GET", "/api/moderation/audit", nil, paginationQuery(opts))
}

// ============================================================================
// Media
// ============================================================================

// MediaClient handles media uploads for blogs and chat messages.
type MediaClient struct{ c *Client }

// Presign gets a presigned upload URL for a simple (single request) upload.
func (f *MediaClient) Presign(ctx context.Context, opts *MediaPresignOptions) (*Result, error) {
	return f.c.do(ctx, "POST", "/api/media/presign", opts, nil)
}

// Confirm confirms an uploaded file (triggers validation + CDN activation).
func (f *MediaClient) Confirm(ctx context.Context, uploadID string) (*Result, error) {
	return f.c.do(ctx, "POST", "/api/media/confirm", map[string]string{"uploadId": uploadID}, nil)
}

// Delete deletes an uploaded file.
func (f *MediaClient) Delete(ctx context.Context, uploadID string) (*Result, error) {
	return f.c.do(ctx, "DELETE", "/api/media/"+uploadID, nil, nil)
}

// InitMultipart initializes a multipart upload (for files > 10 MB).
func (f *MediaClient) InitMultipart(ctx context.Context, opts *MediaPresignOptions) (*Result, error) {
	return f.c.do(ctx, "POST", "/api/media/upload/init", opts, nil)
}

// CompleteMultipart completes a multipart upload.
func (f *MediaClient) CompleteMultipart(ctx context.Context, uploadID string, parts []MediaCompletedPart) (*Result, error) {
	return f.c.do(ctx, "POST", "/api/media/upload/complete", map[string]interface{}{
		"uploadId": uploadID, "parts": parts,
	}, nil)
}

// Upload uploads a file from bytes (full lifecycle: presign → upload →
// confirm). FileName in opts is required.
func (f *MediaClient) Upload(ctx context.Context, data []byte, opts *UploadOptions) (*MediaConfirmResult, error) {
	if opts == nil || opts.FileName == "" {
		return nil, fmt.Errorf("fileName is required when uploading bytes")
	}
	fileName := opts.FileName
	mimeType := opts.MimeType
	if mimeType == "" {
		mimeType = guessMimeType(fileName)
	}
	fileSize := int64(len(data))

	if fileSize > 50*1024*1024 {
		return nil, fmt.Errorf("file exceeds maximum size of 50 MB")
	}

	if fileSize <= 10*1024*1024 {
		return f.uploadSimple(ctx, data, fileName, fileSize, mimeType, opts.OnProgress)
	}
	return f.uploadMultipart(ctx, data, fileName, fileSize, mimeType, opts.OnProgress)
}

// UploadFile uploads a file from a local path. FileName and MimeType in opts
// are auto-detected from the path if not set.
func (f *MediaClient) UploadFile(ctx context.Context, filePath string, opts *UploadOptions) (*MediaConfirmResult, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if opts == nil {
		opts = &UploadOptions{}
	}
	if opts.FileName == "" {
		opts.FileName = filepath.Base(filePath)
	}
	return f.Upload(ctx, data, opts)
}

func (f *MediaClient) uploadSimple(
	ctx context.Context, data []byte, fileName string, fileSize int64, mimeType string,
	onProgress func(int64, int64),
) (*MediaConfirmResult, error) {
	presignRes, err := f.Presign(ctx, &MediaPresignOptions{FileName: fileName, FileSize: fileSize, MimeType: mimeType})
	if err != nil {
		return nil, err
	}
	if !presignRes.OK {
		msg := "presign failed"
		if presignRes.Error != nil {
			msg = presignRes.Error.Message
		}
		return nil, fmt.Errorf("%s", msg)
	}
	var presign MediaPresignResult
	if err := presignRes.Decode(&presign); err != nil {
		return nil, fmt.Errorf("failed to decode presign: %w", err)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	isExternal := strings.HasPrefix(presign.URL, "http")
	if isExternal {
		for k, v := range presign.Fields {
			_ = w.WriteField(k, v)
		}
	}

	part, err := w.CreateFormFile("file", fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write file data: %w", err)
	}
	_ = w.Close()

	uploadURL := presign.URL
	if !isExternal {
		uploadURL = f.c.baseURL + presign.URL
	}

	req, err := http.NewRequestWithContext(ctx, "POST", uploadURL, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	if !isExternal && f.c.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.c.token)
	}

	resp, err := f.c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("upload failed (%d): %s", resp.StatusCode, string(body))
	}

	if onProgress != nil {
		onProgress(fileSize, fileSize)
	}

	confirmRes, err := f.Confirm(ctx, presign.UploadID)
	if err != nil {
		return nil, err
	}
	if !confirmRes.OK {
		msg := "confirm failed"
		if confirmRes.Error != nil {
			msg = confirmRes.Error.Message
		}
		return nil, fmt.Errorf("%s", msg)
	}
	var confirmed MediaConfirmResult
	if err := confirmRes.Decode(&confirmed); err != nil {
		return nil, fmt.Errorf("failed to decode confirm: %w", err)
	}
	return &confirmed, nil
}

func (f *MediaClient) uploadMultipart(
	ctx context.Context, data []byte, fileName string, fileSize int64, mimeType string,
	onProgress func(int64, int64),
) (*MediaConfirmResult, error) {
	initRes, err := f.InitMultipart(ctx, &MediaPresignOptions{FileName: fileName, FileSize: fileSize, MimeType: mimeType})
	if err != nil {
		return nil, err
	}
	if !initRes.OK {
		msg := "multipart init failed"
		if initRes.Error != nil {
			msg = initRes.Error.Message
		}
		return nil, fmt.Errorf("%s", msg)
	}
	var init MediaMultipartInitResult
	if err := initRes.Decode(&init); err != nil {
		return nil, fmt.Errorf("failed to decode multipart init: %w", err)
	}

	const chunkSize = 5 * 1024 * 1024
	var completed []MediaCompletedPart
	var uploaded int64

	for _, p := range init.Parts {
		start := int64(p.PartNumber-1) * chunkSize
		end := start + chunkSize
		if end > fileSize {
			end = fileSize
		}
		chunk := data[start:end]

		isExternal := strings.HasPrefix(p.URL, "http")
		partURL := p.URL
		if !isExternal {
			partURL = f.c.baseURL + p.URL
		}

		req, err := http.NewRequestWithContext(ctx, "PUT", partURL, bytes.NewReader(chunk))
		if err != nil {
			return nil, fmt.Errorf("failed to create part request: %w", err)
		}
		req.Header.Set("Content-Type", mimeType)
		if !isExternal && f.c.token != "" {
			req.Header.Set("Authorization", "Bearer "+f.c.token)
		}

		resp, err := f.c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("part %d upload failed: %w", p.PartNumber, err)
		}
		resp.Body.Close()
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("part %d upload failed (%d)", p.PartNumber, resp.StatusCode)
		}

		etag := resp.Header.Get("ETag")
		if etag == "" {
			etag = fmt.Sprintf(`"part-%d"`, p.PartNumber)
		}
		completed = append(completed, MediaCompletedPart{PartNumber: p.PartNumber, ETag: etag})
		uploaded += int64(len(chunk))
		if onProgress != nil {
			onProgress(uploaded, fileSize)
		}
	}

	completeRes, err := f.CompleteMultipart(ctx, init.UploadID, completed)
	if err != nil {
		return nil, err
	}
	if !completeRes.OK {
		msg := "multipart complete failed"
		if completeRes.Error != nil {
			msg = completeRes.Error.Message
		}
		return nil, fmt.Errorf("%s", msg)
	}
	var confirmed MediaConfirmResult
	if err := completeRes.Decode(&confirmed); err != nil {
		return nil, fmt.Errorf("failed to decode multipart complete: %w", err)
	}
	return &confirmed, nil
}

// guessMimeType returns MIME type from file extension.
func guessMimeType(fileName string) string {
	ext := filepath.Ext(fileName)
	if ext == "" {
		return "application/octet-stream"
	}
	// Fallback for types not in Go's builtin registry
	fallback := map[string]string{
		".md": "text/markdown", ".yaml": "text/yaml", ".yml": "text/yaml",
		".webp": "image/webp", ".webm": "video/webm",
	}
	if m, ok := fallback[ext]; ok {
		return m
	}
	t := mime.TypeByExtension(ext)
	if t != "" {
		if idx := strings.Index(t, ";"); idx > 0 {
			t = strings.TrimSpace(t[:idx])
		}
		return t
	}
	return "application/octet-stream"
}
