package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/auto-support-pilot/server/internal/agent/graph"
	"github.com/auto-support-pilot/server/internal/agent/graph/conversations"
	"github.com/auto-support-pilot/server/internal/agent/model"
	errx "github.com/auto-support-pilot/server/internal/core/error"
	logx "github.com/auto-support-pilot/server/pkg/logger"
)

var (
	// ErrInvalidMessage is returned for inbound messages that fail validation.
	ErrInvalidMessage = errors.New("session: invalid message")
	// ErrNotSuspended is returned when a resume targets a thread that is not
	// waiting for an answer.
	ErrNotSuspended = errors.New("session: thread is not suspended")
	// ErrUnknownUser is returned when a user has no thread yet.
	ErrUnknownUser = errors.New("session: unknown user")
)

// Engine runs and resumes the handler graph.
type Engine interface {
	Run(ctx context.Context, state *model.ConversationState) (*graph.Outcome, error)
	Resume(ctx context.Context, cp *model.Checkpoint, payload model.InterruptPayload) (*graph.Outcome, error)
}

// Dependencies are the collaborators of a Driver. Messages and Metrics are optional.
type Dependencies struct {
	Registry *Registry
	Store    model.CheckpointStore
	Engine   Engine
	Messages *conversations.MessagesManager
	Metrics  *Metrics
}

// Driver turns one inbound message into one outbound message. Runs and
// resumes on the same thread never overlap.
type Driver struct {
	registry *Registry
	store    model.CheckpointStore
	engine   Engine
	messages *conversations.MessagesManager
	metrics  *Metrics
	locks    *threadLocks
	now      func() time.Time
}

func NewDriver(deps Dependencies) (*Driver, error) {
	switch {
	case deps.Registry == nil:
		return nil, errors.New("session: registry is required")
	case deps.Store == nil:
		return nil, errors.New("session: checkpoint store is required")
	case deps.Engine == nil:
		return nil, errors.New("session: engine is required")
	}
	return &Driver{
		registry: deps.Registry,
		store:    deps.Store,
		engine:   deps.Engine,
		messages: deps.Messages,
		metrics:  deps.Metrics,
		locks:    newThreadLocks(),
		now:      time.Now,
	}, nil
}

// ErrorReply renders err as a client-safe outbound message.
func ErrorReply(err error) model.OutboundMessage {
	return model.OutboundMessage{Status: model.StatusChat, Content: errx.SafeMessage(err), Error: true}
}

// Handle processes one inbound message. The returned outbound message is
// always safe to send, including when err is non-nil. On error no checkpoint
// is written.
func (d *Driver) Handle(ctx context.Context, in model.InboundMessage) (model.OutboundMessage, error) {
	start := d.now()
	if in.RequestID == "" {
		in.RequestID = uuid.NewString()
	}

	out, outcome, err := d.handle(ctx, in)
	d.metrics.observe(outcome, d.now().Sub(start))
	if err != nil {
		out = ErrorReply(err)
	}
	out.RequestID = in.RequestID
	return out, err
}

// Transcript returns the recorded transcript of the user's thread. The
// transcript is empty when no transcript repository is configured.
func (d *Driver) Transcript(ctx context.Context, userID string) (*model.ConversationHistory, error) {
	threadID, ok := d.registry.Lookup(userID)
	if !ok {
		return nil, &errx.AppError{Err: ErrUnknownUser, Status: http.StatusNotFound, Message: "Unknown user.", Kind: errx.KindProtocol}
	}
	return d.messages.Transcript(ctx, threadID)
}

func (d *Driver) handle(ctx context.Context, in model.InboundMessage) (model.OutboundMessage, string, error) {
	if err := validate(in); err != nil {
		logx.Warn().Err(err).Str("request_id", in.RequestID).Msg("rejected inbound message")
		return model.OutboundMessage{}, outcomeRejected, err
	}

	threadID, err := d.registry.Resolve(in.UserID)
	if err != nil {
		logx.Error().Err(err).Str("request_id", in.RequestID).Str("user_id", in.UserID).Msg("thread resolution failed")
		return model.OutboundMessage{}, outcomeFailed, errx.New(err, http.StatusInternalServerError, errx.SystemErrorMessage)
	}
	logger := logx.With(in.RequestID, threadID)

	release, err := d.locks.acquire(ctx, threadID)
	if err != nil {
		logger.Warn().Err(err).Msg("gave up waiting for thread")
		return model.OutboundMessage{}, outcomeFailed, err
	}
	defer release()

	cp, err := d.store.Get(ctx, threadID)
	if err != nil {
		logger.Error().Err(err).Msg("checkpoint load failed")
		return model.OutboundMessage{}, outcomeFailed, errx.New(err, http.StatusInternalServerError, errx.SystemErrorMessage)
	}
	suspended := cp != nil && cp.Suspended

	var result *graph.Outcome
	switch in.Status {
	case model.StatusStop:
		if !suspended {
			logger.Debug().Msg("stop on idle thread")
			return model.OutboundMessage{Status: model.StatusStop}, outcomeStopped, nil
		}
		result, err = d.engine.Resume(ctx, cp, model.InterruptPayload{RequestID: in.RequestID})

	case model.StatusInterrupted:
		if !suspended {
			err := errx.Invariant(ErrNotSuspended, "There is no pending question on this conversation.")
			logger.Warn().Err(err).Msg("resume rejected")
			return model.OutboundMessage{}, outcomeRejected, err
		}
		result, err = d.engine.Resume(ctx, cp, model.InterruptPayload{
			RequestID:    in.RequestID,
			UserResponse: in.Message,
		})

	default:
		if suspended {
			logger.Info().Msg("new message supersedes pending question")
		}
		state := model.NewConversationState(in.UserID, in.RequestID, in.Message, priorHistory(cp))
		result, err = d.engine.Run(ctx, state)
	}
	if err != nil {
		logger.Error().Err(err).Str("node", graph.NodeOf(err)).Str("kind", string(errx.KindOf(err))).Msg("run failed")
		return model.OutboundMessage{}, outcomeFailed, err
	}
	if result == nil || result.State == nil {
		err := errx.New(errors.New("engine returned no outcome"), http.StatusInternalServerError, errx.SystemErrorMessage)
		logger.Error().Err(err).Msg("run failed")
		return model.OutboundMessage{}, outcomeFailed, err
	}

	next := &model.Checkpoint{
		ThreadID:  threadID,
		State:     result.State,
		UpdatedAt: d.now().UTC(),
	}
	if result.Suspended() {
		next.Suspended = true
		next.Token = result.Token
		next.Interrupt = result.Interrupt
	} else {
		next.State.Context = nil
	}

	// the run already happened, so a cancelled caller must not lose its result
	writeCtx := context.WithoutCancel(ctx)
	if err := d.store.Put(writeCtx, threadID, next); err != nil {
		logger.Error().Err(err).Msg("checkpoint write failed")
		return model.OutboundMessage{}, outcomeFailed, errx.New(fmt.Errorf("put checkpoint: %w", err), http.StatusInternalServerError, errx.SystemErrorMessage)
	}

	if result.Suspended() {
		logger.Info().Str("node", result.Token.Node).Msg("run suspended")
		return model.OutboundMessage{Status: model.StatusInterrupted, Content: result.Interrupt.AssistantQuery}, outcomeSuspended, nil
	}

	if err := d.messages.SaveTurn(writeCtx, threadID, result.State); err != nil {
		logger.Warn().Err(err).Msg("transcript write failed")
	}
	logger.Info().Str("status", result.State.Status).Int("history", len(result.State.History)).Msg("run completed")
	return model.OutboundMessage{Status: model.StatusChat, Content: result.State.Response}, outcomeCompleted, nil
}

func priorHistory(cp *model.Checkpoint) []*schema.Message {
	if cp == nil || cp.State == nil {
		return nil
	}
	return cp.State.History
}

func validate(in model.InboundMessage) error {
	switch {
	case strings.TrimSpace(in.UserID) == "":
		return errx.Protocol(ErrInvalidMessage, "userId is required.")
	case !in.Status.Valid():
		return errx.Protocol(ErrInvalidMessage, "status must be one of stop, interrupted or chat.")
	case in.Status == model.StatusChat && strings.TrimSpace(in.Message) == "":
		return errx.Protocol(ErrInvalidMessage, "message is required.")
	}
	return nil
}
