package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/auto-support-pilot/server/internal/agent/model"
	errx "github.com/auto-support-pilot/server/internal/core/error"
	logx "github.com/auto-support-pilot/server/pkg/logger"
)

// DeclinedReply acknowledges a user who skipped the clarifying question.
const DeclinedReply = "No problem, I won't look up the order for now. Let me know if there is anything else I can help you with."

type humanConfirmNode struct {
	extractor model.Extractor
}

// NewHumanConfirmNode makes sure a sales lookup has both an order id and an
// item, suspending the run to ask the user when either is missing.
func NewHumanConfirmNode(deps *Dependencies) Handler {
	return &humanConfirmNode{extractor: deps.Extractor}
}

func (n *humanConfirmNode) Name() string { return HumanConfirm }

func (n *humanConfirmNode) Run(ctx context.Context, s *model.ConversationState) (Step, error) {
	if s.Order.Complete() {
		s.Status = StatusNotInterrupted
		return Step{Goto: SalesHandler}, nil
	}

	s.Status = StatusInterrupted
	question := MissingFieldsQuestion(s.Order)
	logx.Info().
		Str("request_id", s.RequestID).
		Str("node", HumanConfirm).
		Str("assistant_query", question).
		Msg("suspending for order details")
	return Step{Interrupt: &model.InterruptPayload{
		RequestID:      s.RequestID,
		AssistantQuery: question,
	}}, nil
}

// Resume folds the user's answer into the order reference. An empty answer
// ends the run with an acknowledgement instead of a lookup.
func (n *humanConfirmNode) Resume(ctx context.Context, s *model.ConversationState, payload model.InterruptPayload) (Step, error) {
	answer := strings.TrimSpace(payload.UserResponse)
	if answer == "" {
		s.AppendTurn(DeclinedReply)
		s.Status = StatusResumedDeclined
		return Step{Goto: End}, nil
	}

	ref, err := n.extractor.Extract(ctx, answer)
	if err != nil {
		return Step{}, errx.Capability(fmt.Errorf("extract order details: %w", err))
	}
	s.Order = s.Order.Merge(ref)
	s.Status = StatusResumedAnswered
	return Step{Goto: SalesHandler}, nil
}
