package model

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

// ReasoningEffort is a hint passed to the generation capability.
type ReasoningEffort string

const (
	EffortMinimal ReasoningEffort = "minimal"
	EffortLow     ReasoningEffort = "low"
	EffortMedium  ReasoningEffort = "medium"
	EffortHigh    ReasoningEffort = "high"
)

// ParseReasoningEffort falls back to minimal for unknown values.
func ParseReasoningEffort(v string) ReasoningEffort {
	switch ReasoningEffort(v) {
	case EffortLow, EffortMedium, EffortHigh:
		return ReasoningEffort(v)
	default:
		return EffortMinimal
	}
}

// Classification is the structured output of the classification capability.
type Classification struct {
	Intent    Intent `json:"intent"`
	OrderID   string `json:"orderId,omitempty"`
	OrderItem string `json:"orderItem,omitempty"`
	Summary   string `json:"summary"`
	Reasoning string `json:"reasoning"`
}

// GenerateRequest describes one call to the generation capability.
// SystemPrompt already carries any retrieved context.
type GenerateRequest struct {
	SystemPrompt string
	Examples     []*schema.Message
	History      []*schema.Message
	Input        string
	MaxTokens    int
	Effort       ReasoningEffort
}

type Classifier interface {
	Classify(ctx context.Context, query string, history []*schema.Message) (*Classification, error)
}

type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

type Extractor interface {
	Extract(ctx context.Context, text string) (OrderRef, error)
}

type Retriever interface {
	Search(ctx context.Context, query string, topK int) ([]string, error)
}

type OrderLookup interface {
	// Lookup returns at most limit records; an empty field in ref applies no filter.
	Lookup(ctx context.Context, ref OrderRef, limit int) ([]OrderRecord, error)
}
