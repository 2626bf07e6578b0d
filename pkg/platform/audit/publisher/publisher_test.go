package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "veridoc/pkg/platform/audit"
)

type failingStore struct {
	err error
}

func (s *failingStore) Append(_ context.Context, _ audit.Event) error {
	return s.err
}

type blockingStore struct {
	mu      sync.Mutex
	release chan struct{}
	events  []audit.Event
}

func (s *blockingStore) Append(_ context.Context, event audit.Event) error {
	<-s.release
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *blockingStore) stored() []audit.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audit.Event, len(s.events))
	copy(out, s.events)
	return out
}

func TestPublisher_PublishStoresEvent(t *testing.T) {
	store := audit.NewMemoryStore()
	pub := New(store)

	pub.Publish(context.Background(), audit.Event{
		RequestID: "req-1",
		Action:    audit.ActionDocumentIssue,
		Outcome:   audit.OutcomeCompleted,
	})

	events := store.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.ActionDocumentIssue, events[0].Action)
	assert.Equal(t, audit.OutcomeCompleted, events[0].Outcome)
}

func TestPublisher_SetsTimestamp(t *testing.T) {
	store := audit.NewMemoryStore()
	pub := New(store)

	before := time.Now().UTC()
	pub.Publish(context.Background(), audit.Event{Action: audit.ActionTransition})
	after := time.Now().UTC()

	events := store.Events()
	require.Len(t, events, 1)
	assert.True(t, !events[0].Timestamp.Before(before), "timestamp should be >= before")
	assert.True(t, !events[0].Timestamp.After(after), "timestamp should be <= after")
}

func TestPublisher_PreservesExistingTimestamp(t *testing.T) {
	store := audit.NewMemoryStore()
	pub := New(store)

	customTime := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	pub.Publish(context.Background(), audit.Event{
		Action:    audit.ActionTransition,
		Timestamp: customTime,
	})

	events := store.Events()
	require.Len(t, events, 1)
	assert.Equal(t, customTime, events[0].Timestamp)
}

func TestPublisher_FailingStoreDoesNotPanic(t *testing.T) {
	pub := New(&failingStore{err: errors.New("append failed")})

	assert.NotPanics(t, func() {
		pub.Publish(context.Background(), audit.Event{Action: audit.ActionDocumentIssue})
	})
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := audit.NewMemoryStore()
	pub := New(store, WithAsyncBuffer(16))

	for i := 0; i < 10; i++ {
		pub.Publish(context.Background(), audit.Event{
			RequestID: "req-async",
			Action:    audit.ActionTransition,
			Outcome:   audit.OutcomeCompleted,
		})
	}
	pub.Close()

	assert.Len(t, store.Events(), 10)
}

func TestPublisher_AsyncFullBufferDropsInsteadOfBlocking(t *testing.T) {
	store := &blockingStore{release: make(chan struct{})}
	pub := New(store, WithAsyncBuffer(1))

	// The worker blocks on the first event, the second fills the buffer
	// and the third must be dropped without blocking the caller.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 3; i++ {
			pub.Publish(context.Background(), audit.Event{Action: audit.ActionTransition})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full async buffer")
	}

	close(store.release)
	pub.Close()

	assert.LessOrEqual(t, len(store.stored()), 2)
}

func TestMemoryStore_ByAction(t *testing.T) {
	store := audit.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, audit.Event{Action: audit.ActionIdentityVerify}))
	require.NoError(t, store.Append(ctx, audit.Event{Action: audit.ActionDocumentIssue}))
	require.NoError(t, store.Append(ctx, audit.Event{Action: audit.ActionIdentityVerify}))

	assert.Len(t, store.ByAction(audit.ActionIdentityVerify), 2)
	assert.Len(t, store.ByAction(audit.ActionBiometricVerify), 0)
}
