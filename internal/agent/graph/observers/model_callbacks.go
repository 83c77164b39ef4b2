package observers

import (
	"context"
	"strings"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"

	agentmodel "github.com/auto-support-pilot/server/internal/agent/model"
	logx "github.com/auto-support-pilot/server/pkg/logger"
)

const maxLoggedContent = 500

// newModelHandler builds a typed ModelCallbackHandler that logs the last user
// message, the reply and its priced token usage around model calls.
func newModelHandler(modelName string) *callbackHelper.ModelCallbackHandler {
	return &callbackHelper.ModelCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *model.CallbackInput) context.Context {
			ev := logx.Debug().Str("component", "model").Str("name", runName(info))
			if input != nil {
				ev = ev.Int("messages", len(input.Messages)).Str("user", clip(lastUserContent(input.Messages)))
			}
			ev.Msg("model call start")
			return ctx
		},
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *model.CallbackOutput) context.Context {
			ev := logx.Debug().Str("component", "model").Str("name", runName(info))
			if output != nil && output.Message != nil {
				ev = ev.Str("assistant", clip(output.Message.Content))
				if cost, ok := agentmodel.ComputeCost(modelName, output.Message); ok {
					ev = ev.
						Str("model", cost.Model).
						Int("prompt_tokens", cost.PromptTokens).
						Int("completion_tokens", cost.CompletionTokens).
						Int("total_tokens", cost.TotalTokens).
						Float64("total_cost_usd", cost.TotalUSD)
				}
			}
			ev.Msg("model call end")
			return ctx
		},
		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Warn().Err(err).Str("component", "model").Str("name", runName(info)).Msg("model call failed")
			return ctx
		},
	}
}

func runName(info *einocb.RunInfo) string {
	if info == nil {
		return ""
	}
	return info.Name
}

func lastUserContent(msgs []*schema.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m == nil {
			continue
		}
		if m.Role == schema.User {
			return strings.TrimSpace(m.Content)
		}
	}
	return ""
}

func clip(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxLoggedContent {
		return s
	}
	return s[:maxLoggedContent] + "..."
}
