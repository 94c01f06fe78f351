package plume

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// MutationKind classifies an optimistic local write.
type MutationKind string

const (
	MutationLike     MutationKind = "like"
	MutationComment  MutationKind = "comment"
	MutationVote     MutationKind = "vote"
	MutationBookmark MutationKind = "bookmark"
)

// MutationStatus is the terminal (or pending) state of a tracked mutation.
type MutationStatus string

const (
	MutationPending    MutationStatus = "pending"
	MutationConfirmed  MutationStatus = "confirmed"
	MutationFailed     MutationStatus = "failed"
	MutationSuperseded MutationStatus = "superseded"
)

// MutationResult is delivered on Mutation.Done when the mutation settles.
// On failure Previous carries the state to roll the UI back to.
type MutationResult struct {
	Status MutationStatus
	Server json.RawMessage // authoritative payload on confirm
	Err    error
}

// Mutation is one in-flight optimistic write. Applied holds the state shown
// to the user immediately; Previous the state to restore on failure.
type Mutation struct {
	LocalID  string
	Kind     MutationKind
	TargetID string
	Applied  json.RawMessage
	Previous json.RawMessage

	CreatedAt time.Time

	done  chan MutationResult
	once  sync.Once
	timer *time.Timer
}

// Done delivers exactly one result when the mutation confirms, fails,
// times out, or is superseded by a newer write to the same target.
func (m *Mutation) Done() <-chan MutationResult { return m.done }

func (m *Mutation) settle(res MutationResult) {
	m.once.Do(func() {
		if m.timer != nil {
			m.timer.Stop()
		}
		m.done <- res
		close(m.done)
	})
}

type mutationKey struct {
	kind   MutationKind
	target string
}

// MutationTracker reconciles optimistic local writes against server echo
// events. A pending mutation confirms when an event of the matching kind for
// the same target arrives from this user, fails on timeout, and is
// superseded when a newer write to the same target is applied first.
type MutationTracker struct {
	mu      sync.Mutex
	pending map[mutationKey]*Mutation
	closed  bool

	timeout time.Duration
	selfID  func() string
	log     *zap.Logger
}

func newMutationTracker(timeout time.Duration, selfID func() string, log *zap.Logger) *MutationTracker {
	return &MutationTracker{
		pending: make(map[mutationKey]*Mutation),
		timeout: timeout,
		selfID:  selfID,
		log:     log.Named("mutations"),
	}
}

// Apply registers an optimistic write. applied and previous are marshalled
// snapshots of the affected state, e.g. LikeState before and after a toggle.
// A still-pending mutation for the same kind and target is superseded rather
// than left to race: with rapid toggles only the newest write matters.
func (t *MutationTracker) Apply(kind MutationKind, targetID string, applied, previous any) (*Mutation, error) {
	appliedRaw, err := json.Marshal(applied)
	if err != nil {
		return nil, err
	}
	previousRaw, err := json.Marshal(previous)
	if err != nil {
		return nil, err
	}

	m := &Mutation{
		LocalID:   uuid.NewString(),
		Kind:      kind,
		TargetID:  targetID,
		Applied:   appliedRaw,
		Previous:  previousRaw,
		CreatedAt: time.Now(),
		done:      make(chan MutationResult, 1),
	}

	key := mutationKey{kind: kind, target: targetID}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrClosed
	}
	prior := t.pending[key]
	t.pending[key] = m
	m.timer = time.AfterFunc(t.timeout, func() { t.expire(key, m) })
	t.mu.Unlock()

	if prior != nil {
		prior.settle(MutationResult{Status: MutationSuperseded})
	}
	return m, nil
}

func (t *MutationTracker) expire(key mutationKey, m *Mutation) {
	t.mu.Lock()
	if t.pending[key] == m {
		delete(t.pending, key)
	}
	t.mu.Unlock()

	t.log.Warn("optimistic mutation timed out, rolling back",
		zap.String("kind", string(m.Kind)),
		zap.String("target", m.TargetID))
	m.settle(MutationResult{
		Status: MutationFailed,
		Err:    &MutationTimeoutError{Kind: m.Kind, TargetID: m.TargetID, After: t.timeout},
	})
}

var mutationEventKinds = map[string]MutationKind{
	EventBlogLikeUpdated:    MutationLike,
	EventCommentLikeUpdated: MutationLike,
	EventNewComment:         MutationComment,
	EventPollVoteUpdated:    MutationVote,
	EventBookmarkUpdated:    MutationBookmark,
}

// handle confirms pending mutations from routed events. Only events
// originated by this user settle a mutation; other users' writes to the same
// target must not confirm ours.
func (t *MutationTracker) handle(ev Event) {
	kind, ok := mutationEventKinds[ev.Type]
	if !ok {
		return
	}
	self := t.selfID()
	if self == "" || ev.OriginUserID != self {
		return
	}
	target := mutationTarget(ev.Payload)
	if target == "" {
		return
	}

	key := mutationKey{kind: kind, target: target}

	t.mu.Lock()
	m := t.pending[key]
	if m != nil {
		delete(t.pending, key)
	}
	t.mu.Unlock()

	if m == nil {
		return
	}
	m.settle(MutationResult{Status: MutationConfirmed, Server: ev.Payload})
}

func mutationTarget(payload json.RawMessage) string {
	for _, field := range []string{"targetId", "blogId", "commentId", "pollId", "id"} {
		if v := gjson.GetBytes(payload, field).String(); v != "" {
			return v
		}
	}
	return ""
}

// Pending reports the number of unsettled mutations.
func (t *MutationTracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// closeAll fails every pending mutation. Called when the owning connection
// shuts down for good.
func (t *MutationTracker) closeAll() {
	t.mu.Lock()
	t.closed = true
	pending := make([]*Mutation, 0, len(t.pending))
	for _, m := range t.pending {
		pending = append(pending, m)
	}
	t.pending = make(map[mutationKey]*Mutation)
	t.mu.Unlock()

	for _, m := range pending {
		m.settle(MutationResult{Status: MutationFailed, Err: ErrClosed})
	}
}
