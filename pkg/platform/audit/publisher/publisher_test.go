package publisher

import (
	"context"
	"sync"
	"testing"
	"time"

	id "contactshare/pkg/domain"
	audit "contactshare/pkg/platform/audit"
	"contactshare/pkg/platform/audit/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisher_SyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	personID := id.NewPersonID()
	event := audit.Event{
		PersonID: personID,
		Action:   string(audit.EventProfileProvisioned),
	}

	err := pub.Emit(context.Background(), event)
	require.NoError(t, err)

	events, err := pub.List(context.Background(), personID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(audit.EventProfileProvisioned), events[0].Action)
}

func TestPublisher_AsyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(10))
	defer pub.Close()

	personID := id.NewPersonID()
	event := audit.Event{
		PersonID: personID,
		Action:   string(audit.EventInviteSent),
	}

	err := pub.Emit(context.Background(), event)
	require.NoError(t, err)

	// Wait for async processing
	time.Sleep(100 * time.Millisecond)

	events, err := pub.List(context.Background(), personID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(audit.EventInviteSent), events[0].Action)
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(100))

	personID := id.NewPersonID()

	for range 10 {
		event := audit.Event{
			PersonID: personID,
			Action:   string(audit.EventAttributeVerified),
		}
		err := pub.Emit(context.Background(), event)
		require.NoError(t, err)
	}

	// Close should drain all events
	pub.Close()

	events, err := store.ListByPerson(context.Background(), personID)
	require.NoError(t, err)
	assert.Len(t, events, 10, "all events should be drained on close")
}

func TestPublisher_BufferFull_DropsEvent(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(1))
	defer pub.Close()

	personID := id.NewPersonID()

	// Fill the buffer with concurrent writes
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			event := audit.Event{
				PersonID: personID,
				Action:   string(audit.EventInviteSent),
			}
			_ = pub.Emit(context.Background(), event)
		}()
	}
	wg.Wait()

	// Some events may have been dropped (buffer size 1); the drop path
	// must never fail or block the emitting operation.
	err := pub.Emit(context.Background(), audit.Event{
		PersonID: personID,
		Action:   string(audit.EventInviteSent),
	})
	assert.NoError(t, err)
}

func TestPublisher_SetsTimestamp(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	personID := id.NewPersonID()
	event := audit.Event{
		PersonID: personID,
		Action:   string(audit.EventProfileProvisioned),
		// Timestamp not set
	}

	before := time.Now()
	err := pub.Emit(context.Background(), event)
	require.NoError(t, err)
	after := time.Now()

	events, err := pub.List(context.Background(), personID)
	require.NoError(t, err)
	require.Len(t, events, 1)

	assert.True(t, !events[0].Timestamp.Before(before), "timestamp should be >= before")
	assert.True(t, !events[0].Timestamp.After(after), "timestamp should be <= after")
}

func TestPublisher_PreservesExistingTimestamp(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	personID := id.NewPersonID()
	customTime := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	event := audit.Event{
		PersonID:  personID,
		Action:    string(audit.EventProfileDeleted),
		Timestamp: customTime,
	}

	err := pub.Emit(context.Background(), event)
	require.NoError(t, err)

	events, err := pub.List(context.Background(), personID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, customTime, events[0].Timestamp)
}

func TestPublisher_MultipleEvents(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	personID := id.NewPersonID()

	events := []audit.Event{
		{PersonID: personID, Action: string(audit.EventProfileProvisioned)},
		{PersonID: personID, Action: string(audit.EventInviteSent)},
		{PersonID: personID, Action: string(audit.EventConnectionAccepted)},
	}

	for _, event := range events {
		err := pub.Emit(context.Background(), event)
		require.NoError(t, err)
	}

	result, err := pub.List(context.Background(), personID)
	require.NoError(t, err)
	require.Len(t, result, 3)

	assert.Equal(t, string(audit.EventProfileProvisioned), result[0].Action)
	assert.Equal(t, string(audit.EventInviteSent), result[1].Action)
	assert.Equal(t, string(audit.EventConnectionAccepted), result[2].Action)
}

func TestPublisher_DifferentPeople(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	personID1 := id.NewPersonID()
	personID2 := id.NewPersonID()

	err := pub.Emit(context.Background(), audit.Event{
		PersonID: personID1,
		Action:   string(audit.EventProfileProvisioned),
	})
	require.NoError(t, err)

	err = pub.Emit(context.Background(), audit.Event{
		PersonID: personID2,
		Action:   string(audit.EventConnectionDeclined),
	})
	require.NoError(t, err)

	events1, err := pub.List(context.Background(), personID1)
	require.NoError(t, err)
	require.Len(t, events1, 1)
	assert.Equal(t, string(audit.EventProfileProvisioned), events1[0].Action)

	events2, err := pub.List(context.Background(), personID2)
	require.NoError(t, err)
	require.Len(t, events2, 1)
	assert.Equal(t, string(audit.EventConnectionDeclined), events2[0].Action)
}
