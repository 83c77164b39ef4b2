package nodes

import (
	"context"
	"errors"
	"fmt"

	"github.com/auto-support-pilot/server/internal/agent/graph/conversations"
	"github.com/auto-support-pilot/server/internal/agent/graph/prompts"
	"github.com/auto-support-pilot/server/internal/agent/model"
	errx "github.com/auto-support-pilot/server/internal/core/error"
	logx "github.com/auto-support-pilot/server/pkg/logger"
)

// Per handler generation budgets.
const (
	generalMaxTokens = 500
	supportMaxTokens = 500
	salesMaxTokens   = 100

	// MaxOrderRecords caps the records handed to the sales persona.
	MaxOrderRecords = 5
	// DefaultTopK is the number of passages retrieved for support questions.
	DefaultTopK = 2
)

// Dependencies are the capabilities the handlers call out to.
type Dependencies struct {
	Classifier model.Classifier
	Generator  model.Generator
	Extractor  model.Extractor
	Retriever  model.Retriever
	Orders     model.OrderLookup
	Messages   *conversations.MessagesManager
	Effort     model.ReasoningEffort
	TopK       int
}

// Validate reports the first missing capability.
func (d *Dependencies) Validate() error {
	switch {
	case d == nil:
		return errors.New("nodes: nil dependencies")
	case d.Classifier == nil:
		return errors.New("nodes: classifier is required")
	case d.Generator == nil:
		return errors.New("nodes: generator is required")
	case d.Extractor == nil:
		return errors.New("nodes: extractor is required")
	case d.Retriever == nil:
		return errors.New("nodes: retriever is required")
	case d.Orders == nil:
		return errors.New("nodes: order lookup is required")
	}
	return nil
}

// ================ classifyIntent ================

type classifyIntentNode struct {
	classifier model.Classifier
	messages   *conversations.MessagesManager
}

// NewClassifyIntentNode labels the query with an intent and order reference.
func NewClassifyIntentNode(deps *Dependencies) Handler {
	return &classifyIntentNode{classifier: deps.Classifier, messages: deps.Messages}
}

func (n *classifyIntentNode) Name() string { return ClassifyIntent }

func (n *classifyIntentNode) Run(ctx context.Context, s *model.ConversationState) (Step, error) {
	res, err := n.classifier.Classify(ctx, s.Query, n.messages.PromptHistory(s.History))
	if err != nil {
		return Step{}, errx.Capability(fmt.Errorf("classify intent: %w", err))
	}
	if res == nil {
		return Step{}, errx.Capability(errors.New("classify intent: empty classification"))
	}

	s.Intent = res.Intent
	s.Order = s.Order.Merge(model.OrderRef{OrderID: res.OrderID, OrderItem: res.OrderItem})
	s.Summary = FormatSummary(res.Summary, *s.Order)
	s.Status = StatusClassified

	logx.Debug().
		Str("request_id", s.RequestID).
		Str("node", ClassifyIntent).
		Str("intent", string(s.Intent)).
		Str("summary", s.Summary).
		Msg("intent classified")
	return Step{}, nil
}

// ================ supportHandler ================

type supportNode struct {
	retriever model.Retriever
	generator model.Generator
	messages  *conversations.MessagesManager
	effort    model.ReasoningEffort
	topK      int
}

// NewSupportNode answers from retrieved knowledge-base passages.
func NewSupportNode(deps *Dependencies) Handler {
	topK := deps.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &supportNode{
		retriever: deps.Retriever,
		generator: deps.Generator,
		messages:  deps.Messages,
		effort:    deps.Effort,
		topK:      topK,
	}
}

func (n *supportNode) Name() string { return SupportHandler }

func (n *supportNode) Run(ctx context.Context, s *model.ConversationState) (Step, error) {
	passages, err := n.retriever.Search(ctx, s.Query, n.topK)
	if err != nil {
		return Step{}, errx.Capability(fmt.Errorf("retrieve passages: %w", err))
	}
	s.Context = passages

	system, err := prompts.RenderSupportSystem(ctx, passages)
	if err != nil {
		return Step{}, err
	}
	reply, err := n.generator.Generate(ctx, model.GenerateRequest{
		SystemPrompt: system,
		History:      n.messages.PromptHistory(s.History),
		Input:        s.Query,
		MaxTokens:    supportMaxTokens,
		Effort:       n.effort,
	})
	if err != nil {
		return Step{}, errx.Capability(fmt.Errorf("support reply: %w", err))
	}

	s.AppendTurn(reply)
	s.Status = StatusSupportFinished
	return Step{}, nil
}

// ================ generalHandler ================

type generalNode struct {
	generator model.Generator
	messages  *conversations.MessagesManager
	effort    model.ReasoningEffort
}

// NewGeneralNode handles small talk and anything unclassified.
func NewGeneralNode(deps *Dependencies) Handler {
	return &generalNode{generator: deps.Generator, messages: deps.Messages, effort: deps.Effort}
}

func (n *generalNode) Name() string { return GeneralHandler }

func (n *generalNode) Run(ctx context.Context, s *model.ConversationState) (Step, error) {
	system, err := prompts.RenderGeneralSystem(ctx)
	if err != nil {
		return Step{}, err
	}
	orderKnown := s.Order != nil && s.Order.OrderID != ""
	reply, err := n.generator.Generate(ctx, model.GenerateRequest{
		SystemPrompt: system,
		Examples:     prompts.GeneralExamples(orderKnown),
		History:      n.messages.PromptHistory(s.History),
		Input:        s.Query,
		MaxTokens:    generalMaxTokens,
		Effort:       n.effort,
	})
	if err != nil {
		return Step{}, errx.Capability(fmt.Errorf("general reply: %w", err))
	}

	s.AppendTurn(reply)
	s.Status = StatusGeneralFinished
	return Step{}, nil
}

// ================ salesHandler ================

type salesNode struct {
	orders    model.OrderLookup
	generator model.Generator
	messages  *conversations.MessagesManager
	effort    model.ReasoningEffort
}

// NewSalesNode answers from matching order records.
func NewSalesNode(deps *Dependencies) Handler {
	return &salesNode{orders: deps.Orders, generator: deps.Generator, messages: deps.Messages, effort: deps.Effort}
}

func (n *salesNode) Name() string { return SalesHandler }

func (n *salesNode) Run(ctx context.Context, s *model.ConversationState) (Step, error) {
	ref := model.OrderRef{}
	if s.Order != nil {
		ref = *s.Order
	}
	records, err := n.orders.Lookup(ctx, ref, MaxOrderRecords)
	if err != nil {
		return Step{}, errx.Capability(fmt.Errorf("order lookup: %w", err))
	}
	records = capRecords(records, MaxOrderRecords)
	s.Context = recordLines(records)

	system, err := prompts.RenderSalesSystem(ctx, records)
	if err != nil {
		return Step{}, err
	}
	reply, err := n.generator.Generate(ctx, model.GenerateRequest{
		SystemPrompt: system,
		History:      n.messages.PromptHistory(s.History),
		Input:        s.Query,
		MaxTokens:    salesMaxTokens,
		Effort:       n.effort,
	})
	if err != nil {
		return Step{}, errx.Capability(fmt.Errorf("sales reply: %w", err))
	}

	s.AppendTurn(reply)
	s.Status = StatusSalesCompleted
	logx.Debug().
		Str("request_id", s.RequestID).
		Str("node", SalesHandler).
		Int("records", len(records)).
		Msg("sales reply generated")
	return Step{}, nil
}
