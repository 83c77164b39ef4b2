package repo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auto-support-pilot/server/internal/agent/model"
)

func TestCheckpointStoreUnknownThread(t *testing.T) {
	s := NewMemoryCheckpointStore(10, time.Minute)
	cp, err := s.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestCheckpointStoreRoundTripIsolated(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryCheckpointStore(10, time.Minute)

	state := model.NewConversationState("u1", "r1", "hello", nil)
	state.AppendTurn("hi")
	in := &model.Checkpoint{State: state, UpdatedAt: time.Now()}
	require.NoError(t, s.Put(ctx, "t1", in))

	// mutating the caller's copy after Put does not leak into the store
	state.AppendTurn("again")

	got, err := s.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", got.ThreadID)
	assert.Len(t, got.State.History, 2)

	// nor does mutating what Get returned
	got.State.History = nil
	again, err := s.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, again.State.History, 2)
}

func TestCheckpointStorePutReplaces(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryCheckpointStore(10, time.Minute)

	suspended := &model.Checkpoint{
		State:     model.NewConversationState("u1", "r1", "q", nil),
		Suspended: true,
		Token:     &model.ResumeToken{Node: "humanConfirm", RequestID: "r1"},
		Interrupt: &model.InterruptPayload{RequestID: "r1", AssistantQuery: "Please provide item."},
	}
	require.NoError(t, s.Put(ctx, "t1", suspended))
	require.NoError(t, s.Put(ctx, "t1", &model.Checkpoint{State: model.NewConversationState("u1", "r2", "q", nil)}))

	got, err := s.Get(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, got.Suspended)
	assert.Nil(t, got.Token)
	assert.Nil(t, got.Interrupt)
	assert.Equal(t, 1, s.Len())
}

func TestCheckpointStoreRejectsInvalid(t *testing.T) {
	s := NewMemoryCheckpointStore(10, time.Minute)
	assert.Error(t, s.Put(context.Background(), "", &model.Checkpoint{State: &model.ConversationState{}}))
	assert.Error(t, s.Put(context.Background(), "t1", nil))
	assert.Error(t, s.Put(context.Background(), "t1", &model.Checkpoint{}))
}

func TestCheckpointStoreExpires(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryCheckpointStore(10, 50*time.Millisecond)
	require.NoError(t, s.Put(ctx, "t1", &model.Checkpoint{State: model.NewConversationState("u1", "r1", "q", nil)}))

	assert.Eventually(t, func() bool {
		cp, err := s.Get(ctx, "t1")
		return err == nil && cp == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCheckpointStoreEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryCheckpointStore(2, time.Minute)
	for _, id := range []string{"t1", "t2", "t3"} {
		require.NoError(t, s.Put(ctx, id, &model.Checkpoint{State: model.NewConversationState("u", "r", "q", nil)}))
	}

	cp, err := s.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, cp)
	assert.Equal(t, 2, s.Len())
}
