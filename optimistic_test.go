package plume

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestTracker(timeout time.Duration) *MutationTracker {
	return newMutationTracker(timeout, func() string { return "self-1" }, zap.NewNop())
}

func waitResult(t *testing.T, m *Mutation) MutationResult {
	t.Helper()
	select {
	case res := <-m.Done():
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("mutation never settled")
		return MutationResult{}
	}
}

func TestMutationConfirmsOnOwnEcho(t *testing.T) {
	tr := newTestTracker(10 * time.Second)

	m, err := tr.Apply(MutationLike, "blog-1", LikeState{Count: 5, Liked: true}, LikeState{Count: 4, Liked: false})
	require.NoError(t, err)
	assert.Equal(t, 1, tr.Pending())

	tr.handle(Event{
		Type:         EventBlogLikeUpdated,
		Room:         RoomKey{Kind: RoomBlogView, ID: "blog-1"},
		Payload:      json.RawMessage(`{"blogId":"blog-1","likeCount":5}`),
		OriginUserID: "self-1",
	})

	res := waitResult(t, m)
	assert.Equal(t, MutationConfirmed, res.Status)
	assert.JSONEq(t, `{"blogId":"blog-1","likeCount":5}`, string(res.Server))
	assert.Equal(t, 0, tr.Pending())
}

func TestMutationIgnoresOtherUsers(t *testing.T) {
	tr := newTestTracker(10 * time.Second)

	_, err := tr.Apply(MutationLike, "blog-1", LikeState{Count: 5, Liked: true}, LikeState{Count: 4})
	require.NoError(t, err)

	// a different user liking the same blog must not confirm our write
	tr.handle(Event{
		Type:         EventBlogLikeUpdated,
		Payload:      json.RawMessage(`{"blogId":"blog-1","likeCount":6}`),
		OriginUserID: "someone-else",
	})
	assert.Equal(t, 1, tr.Pending())
}

func TestMutationIgnoresOtherTargets(t *testing.T) {
	tr := newTestTracker(10 * time.Second)

	_, err := tr.Apply(MutationLike, "blog-1", LikeState{Liked: true}, LikeState{})
	require.NoError(t, err)

	tr.handle(Event{
		Type:         EventBlogLikeUpdated,
		Payload:      json.RawMessage(`{"blogId":"blog-2","likeCount":1}`),
		OriginUserID: "self-1",
	})
	assert.Equal(t, 1, tr.Pending())
}

func TestMutationSupersededByNewerWrite(t *testing.T) {
	tr := newTestTracker(10 * time.Second)

	first, err := tr.Apply(MutationLike, "blog-1", LikeState{Liked: true}, LikeState{})
	require.NoError(t, err)
	second, err := tr.Apply(MutationLike, "blog-1", LikeState{Liked: false}, LikeState{Liked: true})
	require.NoError(t, err)

	res := waitResult(t, first)
	assert.Equal(t, MutationSuperseded, res.Status)
	assert.Equal(t, 1, tr.Pending(), "only the newest write stays pending")

	tr.handle(Event{
		Type:         EventBlogLikeUpdated,
		Payload:      json.RawMessage(`{"blogId":"blog-1","likeCount":0}`),
		OriginUserID: "self-1",
	})
	assert.Equal(t, MutationConfirmed, waitResult(t, second).Status)
}

func TestMutationTimesOutWithRollbackState(t *testing.T) {
	tr := newTestTracker(50 * time.Millisecond)

	m, err := tr.Apply(MutationVote, "poll-9", []string{"opt-1"}, []string{})
	require.NoError(t, err)

	res := waitResult(t, m)
	assert.Equal(t, MutationFailed, res.Status)

	var timeoutErr *MutationTimeoutError
	require.True(t, errors.As(res.Err, &timeoutErr))
	assert.Equal(t, MutationVote, timeoutErr.Kind)
	assert.Equal(t, "poll-9", timeoutErr.TargetID)

	assert.JSONEq(t, `[]`, string(m.Previous), "caller rolls back to the previous snapshot")
	assert.Equal(t, 0, tr.Pending())
}

func TestMutationKindsAreIndependent(t *testing.T) {
	tr := newTestTracker(10 * time.Second)

	like, err := tr.Apply(MutationLike, "blog-1", LikeState{Liked: true}, LikeState{})
	require.NoError(t, err)
	_, err = tr.Apply(MutationBookmark, "blog-1", BookmarkState{Bookmarked: true}, BookmarkState{})
	require.NoError(t, err)
	assert.Equal(t, 2, tr.Pending(), "same target, different kinds coexist")

	tr.handle(Event{
		Type:         EventBookmarkUpdated,
		Payload:      json.RawMessage(`{"blogId":"blog-1","bookmarked":true}`),
		OriginUserID: "self-1",
	})
	assert.Equal(t, 1, tr.Pending())

	select {
	case <-like.Done():
		t.Fatal("bookmark echo settled the like mutation")
	default:
	}
}

func TestMutationCloseAllFailsPending(t *testing.T) {
	tr := newTestTracker(10 * time.Second)

	m, err := tr.Apply(MutationComment, "blog-3", map[string]string{"content": "hi"}, nil)
	require.NoError(t, err)

	tr.closeAll()

	res := waitResult(t, m)
	assert.Equal(t, MutationFailed, res.Status)
	assert.ErrorIs(t, res.Err, ErrClosed)

	_, err = tr.Apply(MutationLike, "blog-1", LikeState{}, LikeState{})
	assert.ErrorIs(t, err, ErrClosed)
}
