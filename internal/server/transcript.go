package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/auto-support-pilot/server/internal/agent/model"
	errx "github.com/auto-support-pilot/server/internal/core/error"
	logx "github.com/auto-support-pilot/server/pkg/logger"
)

// TranscriptSource is implemented by handlers that keep per-user transcripts.
type TranscriptSource interface {
	Transcript(ctx context.Context, userID string) (*model.ConversationHistory, error)
}

type transcriptMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type transcriptResponse struct {
	UserID   string              `json:"userId"`
	ThreadID string              `json:"threadId"`
	Messages []transcriptMessage `json:"messages"`
}

func (s *Server) handleTranscript(src TranscriptSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.PathValue("userId")
		history, err := src.Transcript(r.Context(), userID)
		if err != nil {
			status := http.StatusInternalServerError
			var appErr *errx.AppError
			if errors.As(err, &appErr) && appErr.Status != 0 {
				status = appErr.Status
			}
			if status >= http.StatusInternalServerError {
				logx.Error().Err(err).Str("user_id", userID).Str("request_id", RequestIDFrom(r.Context())).Msg("transcript load failed")
			}
			writeJSON(w, status, model.OutboundMessage{Status: model.StatusChat, Content: errx.SafeMessage(err), Error: true})
			return
		}

		resp := transcriptResponse{UserID: userID, ThreadID: history.ThreadID, Messages: make([]transcriptMessage, 0, len(history.Messages))}
		for _, m := range history.Messages {
			resp.Messages = append(resp.Messages, transcriptMessage{Role: string(m.Role), Content: m.Content})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
