package model

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

// CheckpointStore holds the latest checkpoint per thread.
// Put fully replaces the prior checkpoint; a missing checkpoint means a fresh thread.
type CheckpointStore interface {
	Get(ctx context.Context, threadID string) (*Checkpoint, error)
	Put(ctx context.Context, threadID string, cp *Checkpoint) error
}

type TranscriptRepository interface {
	// AddMessages appends messages to the transcript of a thread
	AddMessages(ctx context.Context, threadID string, messages ...*schema.Message) error

	// LoadHistory retrieves the recorded transcript of a thread
	LoadHistory(ctx context.Context, threadID string) (*ConversationHistory, error)

	// GetMessageCount returns the number of recorded messages
	GetMessageCount(ctx context.Context, threadID string) (int, error)
}

// ConversationHistory represents a loaded transcript with metadata.
type ConversationHistory struct {
	ThreadID string
	Messages []*schema.Message
}
