package repo

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/auto-support-pilot/server/internal/agent/model"
	logx "github.com/auto-support-pilot/server/pkg/logger"
)

// MemoryCheckpointStore keeps the latest checkpoint per thread in process.
// Entries expire ttl after their last Put and the least recently used thread
// is dropped once maxThreads is reached. Values are cloned on the way in and
// out so callers never share memory with the store.
type MemoryCheckpointStore struct {
	cache *expirable.LRU[string, *model.Checkpoint]
}

// NewMemoryCheckpointStore creates a store. A zero ttl disables expiry and a
// zero maxThreads disables the size bound.
func NewMemoryCheckpointStore(maxThreads int, ttl time.Duration) *MemoryCheckpointStore {
	onEvict := func(threadID string, cp *model.Checkpoint) {
		if cp != nil && cp.Suspended {
			logx.Info().Str("thread_id", threadID).Msg("suspended thread evicted before resume")
		}
	}
	return &MemoryCheckpointStore{
		cache: expirable.NewLRU[string, *model.Checkpoint](maxThreads, onEvict, ttl),
	}
}

// Get returns a copy of the thread's checkpoint, or nil for an unknown thread.
func (s *MemoryCheckpointStore) Get(_ context.Context, threadID string) (*model.Checkpoint, error) {
	cp, ok := s.cache.Get(threadID)
	if !ok {
		return nil, nil
	}
	return cp.Clone(), nil
}

// Put replaces the thread's checkpoint with a copy of cp.
func (s *MemoryCheckpointStore) Put(_ context.Context, threadID string, cp *model.Checkpoint) error {
	if threadID == "" {
		return errors.New("checkpoint: empty thread id")
	}
	if cp == nil || cp.State == nil {
		return errors.New("checkpoint: nil state")
	}
	stored := cp.Clone()
	stored.ThreadID = threadID
	s.cache.Add(threadID, stored)
	return nil
}

// Len returns the number of live threads.
func (s *MemoryCheckpointStore) Len() int {
	return s.cache.Len()
}

var _ model.CheckpointStore = (*MemoryCheckpointStore)(nil)
