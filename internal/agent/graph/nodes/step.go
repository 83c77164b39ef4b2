package nodes

import (
	"context"

	"github.com/auto-support-pilot/server/internal/agent/model"
)

// Node names of the handler graph.
const (
	ClassifyIntent = "classifyIntent"
	SupportHandler = "supportHandler"
	GeneralHandler = "generalHandler"
	HumanConfirm   = "humanConfirm"
	SalesHandler   = "salesHandler"

	// End terminates a run.
	End = "__end__"
)

// Status values recorded on the state as handlers complete.
const (
	StatusClassified      = "classify intent finished"
	StatusNotInterrupted  = "human confirm not interrupted"
	StatusInterrupted     = "interrupted"
	StatusResumedAnswered = "human confirm resumed, user answered"
	StatusResumedDeclined = "human confirm finished, without answering"
	StatusSupportFinished = "support handler finished"
	StatusGeneralFinished = "general conversation finished"
	StatusSalesCompleted  = "sales completed"
)

// Step is what a handler returns: an optional explicit successor, or an
// interrupt that suspends the run. An empty Goto defers to the graph edges.
type Step struct {
	Goto      string
	Interrupt *model.InterruptPayload
}

// Handler is one node of the graph. Handlers mutate the state in place; the
// graph hands them a private copy.
type Handler interface {
	Name() string
	Run(ctx context.Context, state *model.ConversationState) (Step, error)
}

// Resumer is implemented by handlers that may suspend. Resume re-enters the
// handler with the caller's answer.
type Resumer interface {
	Resume(ctx context.Context, state *model.ConversationState, payload model.InterruptPayload) (Step, error)
}

// RouteIntent picks the successor of classifyIntent. Unset or unknown
// intents fall through to general conversation.
func RouteIntent(state *model.ConversationState) string {
	if state == nil {
		return GeneralHandler
	}
	switch state.Intent {
	case model.IntentSupport:
		return SupportHandler
	case model.IntentSales:
		return HumanConfirm
	default:
		return GeneralHandler
	}
}
