package llm

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	einomodel "github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"

	"github.com/auto-support-pilot/server/internal/agent/model"
	logx "github.com/auto-support-pilot/server/pkg/logger"
)

// thinkingBudgets maps a reasoning effort onto a Gemini thinking budget in tokens.
var thinkingBudgets = map[model.ReasoningEffort]int32{
	model.EffortMinimal: 0,
	model.EffortLow:     512,
	model.EffortMedium:  2048,
	model.EffortHigh:    8192,
}

// ClientConfig holds the Gemini API credentials.
type ClientConfig struct {
	APIKey  string
	BaseURL string
}

// Models holds one chat model per reasoning effort.
type Models struct {
	Name          string
	DefaultEffort model.ReasoningEffort
	byEffort      map[model.ReasoningEffort]einomodel.BaseChatModel
}

// NewModels wraps pre-built chat models. It is used directly by tests and by
// NewGeminiModels.
func NewModels(name string, defaultEffort model.ReasoningEffort, byEffort map[model.ReasoningEffort]einomodel.BaseChatModel) (*Models, error) {
	if len(byEffort) == 0 {
		return nil, fmt.Errorf("no chat models configured")
	}
	if _, ok := byEffort[defaultEffort]; !ok {
		return nil, fmt.Errorf("no chat model for default effort %q", defaultEffort)
	}
	return &Models{Name: name, DefaultEffort: defaultEffort, byEffort: byEffort}, nil
}

// For returns the model for effort, or the default model when none is configured.
func (m *Models) For(effort model.ReasoningEffort) einomodel.BaseChatModel {
	if cm, ok := m.byEffort[effort]; ok {
		return cm
	}
	return m.byEffort[m.DefaultEffort]
}

// NewGeminiClient creates the Gemini client shared by chat models and embeddings.
func NewGeminiClient(ctx context.Context, config ClientConfig) (*genai.Client, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = config.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}
	return client, nil
}

// NewGeminiModels creates one chat model per reasoning effort.
func NewGeminiModels(ctx context.Context, client *genai.Client, config model.ChatModelConfig) (*Models, error) {
	temperature := config.Temperature
	maxTokens := config.MaxTokens
	byEffort := make(map[model.ReasoningEffort]einomodel.BaseChatModel, len(thinkingBudgets))
	for effort, budget := range thinkingBudgets {
		cm, err := gemini.NewChatModel(ctx, &gemini.Config{
			Client:      client,
			Model:       config.Model,
			Temperature: &temperature,
			MaxTokens:   &maxTokens,
			ThinkingConfig: &genai.ThinkingConfig{
				ThinkingBudget: genai.Ptr(budget),
			},
		})
		if err != nil {
			logx.Error().Err(err).Str("effort", string(effort)).Msg("Error creating chat model")
			return nil, fmt.Errorf("error creating %s chat model: %w", effort, err)
		}
		byEffort[effort] = cm
	}

	return NewModels(config.Model, model.ParseReasoningEffort(config.ReasoningEffort), byEffort)
}
