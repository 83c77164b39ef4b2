package conversations

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/auto-support-pilot/server/internal/agent/model"
)

// MessagesManager shapes conversation history for model prompts and mirrors
// completed turns into the transcript repository when one is configured.
type MessagesManager struct {
	transcripts model.TranscriptRepository
	maxTurns    int
}

func NewMessagesManager(transcripts model.TranscriptRepository, config model.SessionConfig) *MessagesManager {
	return &MessagesManager{
		transcripts: transcripts,
		maxTurns:    config.HistoryMaxTurns,
	}
}

// =========== Prompt context ===========

// PromptHistory returns the most recent turns of history, at most maxTurns
// human/assistant pairs. A non-positive maxTurns keeps everything.
func (cm *MessagesManager) PromptHistory(history []*schema.Message) []*schema.Message {
	if cm == nil || cm.maxTurns <= 0 {
		return trimTail(history, len(history))
	}
	return trimTail(history, cm.maxTurns*2)
}

// BuildClassificationInput renders recent history and the current query as
// the single user message the classifier analyses.
func (cm *MessagesManager) BuildClassificationInput(history []*schema.Message, query string) string {
	var fullContext strings.Builder
	fullContext.WriteString(cm.buildNLUContext(history))
	fullContext.WriteString("\n<current_message_to_analyze>\n")
	fullContext.WriteString("UserMessage(" + query + ")\n")
	fullContext.WriteString("</current_message_to_analyze>")
	return fullContext.String()
}

func (cm *MessagesManager) buildNLUContext(messages []*schema.Message) string {
	recentMessages := cm.PromptHistory(messages)

	var contextBuilder strings.Builder
	contextBuilder.WriteString("<conversation_context>\n")

	for _, msg := range recentMessages {
		if msg == nil || msg.Content == "" {
			continue
		}
		switch msg.Role {
		case schema.User:
			contextBuilder.WriteString("UserMessage(" + msg.Content + ")\n")
		case schema.Assistant:
			contextBuilder.WriteString("AssistantMessage(" + msg.Content + ")\n")
		}
	}

	contextBuilder.WriteString("</conversation_context>")
	return contextBuilder.String()
}

// =========== Transcript ===========

// SaveTurn records the last exchange of a completed run. It is a no-op
// without a transcript repository.
func (cm *MessagesManager) SaveTurn(ctx context.Context, threadID string, state *model.ConversationState) error {
	if cm == nil || cm.transcripts == nil || state == nil || len(state.History) < 2 {
		return nil
	}
	turn := state.History[len(state.History)-2:]
	return cm.transcripts.AddMessages(ctx, threadID, turn...)
}

// Transcript loads the recorded transcript of a thread.
func (cm *MessagesManager) Transcript(ctx context.Context, threadID string) (*model.ConversationHistory, error) {
	if cm == nil || cm.transcripts == nil {
		return &model.ConversationHistory{ThreadID: threadID, Messages: []*schema.Message{}}, nil
	}
	return cm.transcripts.LoadHistory(ctx, threadID)
}

// ====================== Helper function ======================
func trimTail(messages []*schema.Message, maxMessages int) []*schema.Message {
	if maxMessages < 0 {
		maxMessages = 0
	}
	source := messages
	if len(messages) > maxMessages {
		source = messages[len(messages)-maxMessages:]
	}
	result := make([]*schema.Message, len(source))
	copy(result, source)
	return result
}
