package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/auto-support-pilot/server/internal/agent/model"
	errx "github.com/auto-support-pilot/server/internal/core/error"
	"github.com/auto-support-pilot/server/internal/session"
	logx "github.com/auto-support-pilot/server/pkg/logger"
)

const (
	maxMessageBytes = 64 * 1024
	writeWait       = 10 * time.Second
)

var errMalformed = errors.New("malformed message")

// handleSocket upgrades the connection and processes messages one at a time.
func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	connID := RequestIDFrom(r.Context())
	origin := r.Header.Get("Origin")

	conn, err := s.upgrader.Upgrade(w, r, http.Header{HeaderRequestID: []string{connID}})
	if err != nil {
		logx.Warn().Err(err).Str("request_id", connID).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	if !s.originAllowed(origin) {
		logx.Warn().Str("request_id", connID).Str("origin", origin).Msg("origin not allowed")
		if s.metrics != nil {
			s.metrics.RejectedOrigins.Inc()
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "Origin not allowed"),
			time.Now().Add(writeWait))
		return
	}

	if s.metrics != nil {
		s.metrics.Connections.Inc()
		defer s.metrics.Connections.Dec()
	}
	conn.SetReadLimit(maxMessageBytes)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	// unblock ReadMessage when the server shuts down
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	logx.Debug().Str("request_id", connID).Str("origin", origin).Msg("socket connected")
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && ctx.Err() == nil {
				logx.Warn().Err(err).Str("request_id", connID).Msg("socket closed unexpectedly")
			}
			return
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}

		out := s.dispatch(ctx, connID, data)
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(out); err != nil {
			logx.Warn().Err(err).Str("request_id", connID).Msg("socket write failed")
			return
		}
	}
}

// dispatch decodes one frame and hands it to the session driver.
func (s *Server) dispatch(ctx context.Context, connID string, data []byte) model.OutboundMessage {
	var in model.InboundMessage
	if err := json.Unmarshal(data, &in); err != nil {
		if s.metrics != nil {
			s.metrics.MalformedTotal.Inc()
		}
		logx.Warn().Err(err).Str("request_id", connID).Msg("malformed message")
		out := session.ErrorReply(errx.Protocol(errMalformed, "Invalid message format."))
		out.RequestID = connID
		return out
	}
	if in.RequestID == "" {
		in.RequestID = connID
	}
	out, err := s.handler.Handle(ctx, in)
	if err != nil {
		logx.Debug().Err(err).Str("request_id", in.RequestID).Msg("message handled with error")
	}
	return out
}
