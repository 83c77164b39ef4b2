package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/auto-support-pilot/server/internal/agent/graph/observers"
	"github.com/auto-support-pilot/server/internal/agent/model"
)

// chainSet holds one compiled template -> model chain per reasoning effort.
// Every capability shares the same message layout:
// system, optional few-shot examples, optional history, then the user input.
type chainSet struct {
	modelName     string
	defaultEffort model.ReasoningEffort
	chains        map[model.ReasoningEffort]compose.Runnable[map[string]any, *schema.Message]
}

type chainInput struct {
	system    string
	examples  []*schema.Message
	history   []*schema.Message
	input     string
	maxTokens int
	effort    model.ReasoningEffort
}

func newChainSet(ctx context.Context, models *Models) (*chainSet, error) {
	if models == nil {
		return nil, errors.New("chat models are nil")
	}
	set := &chainSet{
		modelName:     models.Name,
		defaultEffort: models.DefaultEffort,
		chains:        make(map[model.ReasoningEffort]compose.Runnable[map[string]any, *schema.Message], len(models.byEffort)),
	}
	for effort, cm := range models.byEffort {
		runnable, err := compileChain(ctx, cm)
		if err != nil {
			return nil, fmt.Errorf("compile %s chain: %w", effort, err)
		}
		set.chains[effort] = runnable
	}
	return set, nil
}

func compileChain(ctx context.Context, cm einomodel.BaseChatModel) (compose.Runnable[map[string]any, *schema.Message], error) {
	tpl := prompt.FromMessages(
		schema.FString,
		schema.MessagesPlaceholder("system", false),
		schema.MessagesPlaceholder("examples", true),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{input}"),
	)
	return compose.NewChain[map[string]any, *schema.Message]().
		AppendChatTemplate(tpl).
		AppendChatModel(cm).
		Compile(ctx)
}

func (c *chainSet) invoke(ctx context.Context, in chainInput) (*schema.Message, error) {
	runnable, ok := c.chains[in.effort]
	if !ok {
		runnable = c.chains[c.defaultEffort]
	}
	if runnable == nil {
		return nil, fmt.Errorf("no chain for effort %q", in.effort)
	}

	vars := map[string]any{
		"system": []*schema.Message{schema.SystemMessage(in.system)},
		"input":  in.input,
	}
	if len(in.examples) > 0 {
		vars["examples"] = in.examples
	}
	if len(in.history) > 0 {
		vars["history"] = in.history
	}

	opts := []compose.Option{compose.WithCallbacks(observers.NewAllCallbacks(c.modelName))}
	if in.maxTokens > 0 {
		opts = append(opts, compose.WithChatModelOption(einomodel.WithMaxTokens(in.maxTokens)))
	}

	out, err := runnable.Invoke(ctx, vars, opts...)
	if err != nil {
		return nil, err
	}
	if out == nil || strings.TrimSpace(out.Content) == "" {
		return nil, errors.New("empty model response")
	}
	return out, nil
}
