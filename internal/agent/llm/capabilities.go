package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/auto-support-pilot/server/internal/agent/graph/conversations"
	"github.com/auto-support-pilot/server/internal/agent/graph/parsers"
	"github.com/auto-support-pilot/server/internal/agent/graph/prompts"
	"github.com/auto-support-pilot/server/internal/agent/model"
)

const (
	classifyMaxTokens = 1500
	extractMaxTokens  = 500
)

// Generator produces free-text replies.
type Generator struct {
	chains *chainSet
}

// Classifier labels a query with an intent and order reference.
type Classifier struct {
	chains   *chainSet
	messages *conversations.MessagesManager
	effort   model.ReasoningEffort
}

// Extractor pulls an order reference out of a free-text answer.
type Extractor struct {
	chains *chainSet
	effort model.ReasoningEffort
}

// Capabilities bundles the model-backed capabilities sharing one set of chains.
type Capabilities struct {
	Generator  *Generator
	Classifier *Classifier
	Extractor  *Extractor
}

// NewCapabilities compiles the chains once and wires the three capabilities.
func NewCapabilities(ctx context.Context, models *Models, messages *conversations.MessagesManager) (*Capabilities, error) {
	chains, err := newChainSet(ctx, models)
	if err != nil {
		return nil, err
	}
	return &Capabilities{
		Generator:  &Generator{chains: chains},
		Classifier: &Classifier{chains: chains, messages: messages, effort: models.DefaultEffort},
		Extractor:  &Extractor{chains: chains, effort: models.DefaultEffort},
	}, nil
}

func (g *Generator) Generate(ctx context.Context, req model.GenerateRequest) (string, error) {
	out, err := g.chains.invoke(ctx, chainInput{
		system:    req.SystemPrompt,
		examples:  req.Examples,
		history:   req.History,
		input:     req.Input,
		maxTokens: req.MaxTokens,
		effort:    req.Effort,
	})
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	return strings.TrimSpace(out.Content), nil
}

func (c *Classifier) Classify(ctx context.Context, query string, history []*schema.Message) (*model.Classification, error) {
	system, err := prompts.RenderClassifierSystem(ctx)
	if err != nil {
		return nil, err
	}
	out, err := c.chains.invoke(ctx, chainInput{
		system:    system,
		input:     c.messages.BuildClassificationInput(history, query),
		maxTokens: classifyMaxTokens,
		effort:    c.effort,
	})
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}
	return parsers.ParseClassification(out.Content)
}

func (e *Extractor) Extract(ctx context.Context, text string) (model.OrderRef, error) {
	system, err := prompts.RenderExtractionSystem(ctx)
	if err != nil {
		return model.OrderRef{}, err
	}
	out, err := e.chains.invoke(ctx, chainInput{
		system:    system,
		input:     text,
		maxTokens: extractMaxTokens,
		effort:    e.effort,
	})
	if err != nil {
		return model.OrderRef{}, fmt.Errorf("extract: %w", err)
	}
	return parsers.ParseOrderRef(out.Content)
}
