package plume

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type roomHookRecorder struct {
	joins  []RoomKey
	leaves []RoomKey
	empty  []RoomKey
}

func newTestRegistry() (*roomRegistry, *roomHookRecorder) {
	rec := &roomHookRecorder{}
	reg := newRoomRegistry(
		func(r RoomKey) { rec.joins = append(rec.joins, r) },
		func(r RoomKey) { rec.leaves = append(rec.leaves, r) },
		zap.NewNop(),
	)
	reg.onEmpty = func(r RoomKey) { rec.empty = append(rec.empty, r) }
	return reg, rec
}

func TestRoomRegistryJoinSendsOneFrame(t *testing.T) {
	reg, rec := newTestRegistry()
	room := RoomKey{Kind: RoomBlogView, ID: "blog-42"}

	s1 := reg.join(room)
	s2 := reg.join(room)

	assert.Equal(t, []RoomKey{room}, rec.joins, "only the first join hits the wire")
	assert.True(t, reg.joined(room))

	s1.Release()
	assert.Empty(t, rec.leaves, "leave waits for the last release")
	assert.True(t, reg.joined(room))

	s2.Release()
	assert.Equal(t, []RoomKey{room}, rec.leaves)
	assert.Equal(t, []RoomKey{room}, rec.empty)
	assert.False(t, reg.joined(room))
}

func TestRoomRegistryReleaseIsIdempotent(t *testing.T) {
	reg, rec := newTestRegistry()
	room := RoomKey{Kind: RoomChat, ID: "chat-7"}

	s1 := reg.join(room)
	s2 := reg.join(room)

	s1.Release()
	s1.Release()
	s1.Release()

	assert.True(t, reg.joined(room), "double release must not steal the sibling's reference")
	assert.Empty(t, rec.leaves)

	s2.Release()
	assert.Equal(t, []RoomKey{room}, rec.leaves)
}

func TestRoomRegistryRejoinAfterEmpty(t *testing.T) {
	reg, rec := newTestRegistry()
	room := RoomKey{Kind: RoomCollaboration, ID: "doc-1"}

	reg.join(room).Release()
	sub := reg.join(room)
	defer sub.Release()

	assert.Equal(t, []RoomKey{room, room}, rec.joins, "a fresh join after 1->0 sends a new frame")
}

func TestRoomRegistrySnapshot(t *testing.T) {
	reg, _ := newTestRegistry()
	a := RoomKey{Kind: RoomBlogView, ID: "blog-1"}
	b := RoomKey{Kind: RoomChat, ID: "chat-2"}

	subA := reg.join(a)
	reg.join(b)
	reg.join(a)

	assert.ElementsMatch(t, []RoomKey{a, b}, reg.snapshot())

	subA.Release()
	assert.ElementsMatch(t, []RoomKey{a, b}, reg.snapshot(), "one ref left keeps the room referenced")
}

func TestParseRoomKey(t *testing.T) {
	room, err := ParseRoomKey("blog-view:blog-42")
	assert.NoError(t, err)
	assert.Equal(t, RoomKey{Kind: RoomBlogView, ID: "blog-42"}, room)
	assert.Equal(t, "blog-view:blog-42", room.String())

	_, err = ParseRoomKey("justakind")
	assert.Error(t, err)
	_, err = ParseRoomKey(":no-kind")
	assert.Error(t, err)
	_, err = ParseRoomKey("chat:")
	assert.Error(t, err)

	// ids may themselves contain separators
	room, err = ParseRoomKey("notifications:user:1")
	assert.NoError(t, err)
	assert.Equal(t, "user:1", room.ID)
}
