package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auto-support-pilot/server/internal/agent/agenttest"
	"github.com/auto-support-pilot/server/internal/agent/graph/conversations"
	"github.com/auto-support-pilot/server/internal/agent/graph/nodes"
	"github.com/auto-support-pilot/server/internal/agent/model"
	errx "github.com/auto-support-pilot/server/internal/core/error"
)

type harness struct {
	classifier *agenttest.Classifier
	generator  *agenttest.Generator
	extractor  *agenttest.Extractor
	orders     *agenttest.Orders
	graph      *HandlerGraph
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		classifier: &agenttest.Classifier{ByQuery: map[string]model.Classification{
			"Where is ORD-002?":      {Intent: model.IntentSales, OrderID: "ORD-002", Summary: "order status"},
			"Where is my belt?":      {Intent: model.IntentSales, OrderItem: "Belt", Summary: "order status"},
			"Status of ORD-002 belt": {Intent: model.IntentSales, OrderID: "ORD-002", OrderItem: "Belt", Summary: "order status"},
			"How do I return it?":    {Intent: model.IntentSupport, Summary: "returns"},
			"hello":                  {Intent: model.IntentGeneral, Summary: "greeting"},
		}},
		generator: &agenttest.Generator{},
		extractor: &agenttest.Extractor{ByText: map[string]model.OrderRef{
			"Belt":    {OrderItem: "Belt"},
			"ORD-002": {OrderID: "ORD-002"},
		}},
		orders: &agenttest.Orders{Records: agenttest.SeedOrders()},
	}
	g, err := BuildGraph(&nodes.Dependencies{
		Classifier: h.classifier,
		Generator:  h.generator,
		Extractor:  h.extractor,
		Retriever:  &agenttest.Retriever{Passages: []string{"Returns are accepted within 30 days."}},
		Orders:     h.orders,
		Messages:   conversations.NewMessagesManager(nil, model.SessionConfig{HistoryMaxTurns: 10}),
		Effort:     model.EffortMinimal,
		TopK:       2,
	})
	require.NoError(t, err)
	h.graph = g
	return h
}

func suspendedCheckpoint(out *Outcome) *model.Checkpoint {
	return &model.Checkpoint{
		ThreadID:  "t1",
		State:     out.State,
		Suspended: true,
		Token:     out.Token,
		Interrupt: out.Interrupt,
	}
}

func TestBuildGraphRequiresDependencies(t *testing.T) {
	_, err := BuildGraph(&nodes.Dependencies{})
	assert.Error(t, err)
}

func TestRunGeneral(t *testing.T) {
	h := newHarness(t)
	in := model.NewConversationState("u1", "r1", "hello", nil)

	out, err := h.graph.Run(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, out.Suspended())
	assert.Equal(t, nodes.StatusGeneralFinished, out.State.Status)
	assert.Equal(t, "reply: hello", out.State.Response)
	assert.Len(t, out.State.History, 2)

	// caller state untouched
	assert.Empty(t, in.History)
	assert.Equal(t, "initializing", in.Status)
}

func TestRunSupport(t *testing.T) {
	h := newHarness(t)
	out, err := h.graph.Run(context.Background(), model.NewConversationState("u1", "r1", "How do I return it?", nil))
	require.NoError(t, err)
	assert.Equal(t, nodes.StatusSupportFinished, out.State.Status)
	assert.Equal(t, []string{"Returns are accepted within 30 days."}, out.State.Context)
}

func TestRunSalesWithCompleteOrder(t *testing.T) {
	h := newHarness(t)
	out, err := h.graph.Run(context.Background(), model.NewConversationState("u1", "r1", "Status of ORD-002 belt", nil))
	require.NoError(t, err)
	assert.False(t, out.Suspended())
	assert.Equal(t, nodes.StatusSalesCompleted, out.State.Status)
	assert.Equal(t, []string{"Item: Belt | ID: ORD-002 | Status: Processing | Loc: Shop"}, out.State.Context)
}

func TestRunSuspendsThenResumes(t *testing.T) {
	h := newHarness(t)
	out, err := h.graph.Run(context.Background(), model.NewConversationState("u1", "r1", "Where is ORD-002?", nil))
	require.NoError(t, err)
	require.True(t, out.Suspended())
	assert.Equal(t, "Please provide item.", out.Interrupt.AssistantQuery)
	assert.Equal(t, "r1", out.Interrupt.RequestID)
	assert.Equal(t, nodes.HumanConfirm, out.Token.Node)
	assert.Equal(t, "r1", out.Token.RequestID)
	assert.False(t, out.Token.IssuedAt.IsZero())
	assert.Equal(t, nodes.StatusInterrupted, out.State.Status)
	assert.Empty(t, out.State.History)
	assert.Zero(t, h.generator.Count())

	resumed, err := h.graph.Resume(context.Background(), suspendedCheckpoint(out), model.InterruptPayload{
		RequestID:    "r2",
		UserResponse: "Belt",
	})
	require.NoError(t, err)
	assert.False(t, resumed.Suspended())
	assert.Equal(t, "r2", resumed.State.RequestID)
	assert.Equal(t, nodes.StatusSalesCompleted, resumed.State.Status)
	assert.Equal(t, &model.OrderRef{OrderID: "ORD-002", OrderItem: "Belt"}, resumed.State.Order)
	require.Len(t, resumed.State.History, 2)
	assert.Equal(t, "Where is ORD-002?", resumed.State.History[0].Content)
	assert.Equal(t, 1, h.classifier.Calls)
}

func TestResumeDeclined(t *testing.T) {
	h := newHarness(t)
	out, err := h.graph.Run(context.Background(), model.NewConversationState("u1", "r1", "Where is my belt?", nil))
	require.NoError(t, err)
	require.True(t, out.Suspended())
	assert.Equal(t, "Please provide order id.", out.Interrupt.AssistantQuery)

	resumed, err := h.graph.Resume(context.Background(), suspendedCheckpoint(out), model.InterruptPayload{})
	require.NoError(t, err)
	assert.Equal(t, nodes.StatusResumedDeclined, resumed.State.Status)
	assert.Equal(t, nodes.DeclinedReply, resumed.State.Response)
	assert.Len(t, resumed.State.History, 2)
	assert.Empty(t, h.orders.Refs)
}

func TestResumeDoesNotMutateCheckpoint(t *testing.T) {
	h := newHarness(t)
	out, err := h.graph.Run(context.Background(), model.NewConversationState("u1", "r1", "Where is ORD-002?", nil))
	require.NoError(t, err)
	cp := suspendedCheckpoint(out)

	_, err = h.graph.Resume(context.Background(), cp, model.InterruptPayload{UserResponse: "Belt"})
	require.NoError(t, err)
	assert.Empty(t, cp.State.History)
	assert.Equal(t, nodes.StatusInterrupted, cp.State.Status)
	assert.Equal(t, "", cp.State.Order.OrderItem)
}

func TestResumeWithoutSuspension(t *testing.T) {
	h := newHarness(t)
	cases := map[string]*model.Checkpoint{
		"nil checkpoint": nil,
		"not suspended":  {State: model.NewConversationState("u1", "r1", "q", nil)},
		"unknown node": {
			State:     model.NewConversationState("u1", "r1", "q", nil),
			Suspended: true,
			Token:     &model.ResumeToken{Node: "nowhere"},
		},
		"node cannot resume": {
			State:     model.NewConversationState("u1", "r1", "q", nil),
			Suspended: true,
			Token:     &model.ResumeToken{Node: nodes.SalesHandler},
		},
	}
	for name, cp := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := h.graph.Resume(context.Background(), cp, model.InterruptPayload{UserResponse: "x"})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrNoSuspensionPoint)
			assert.Equal(t, errx.KindInvariant, errx.KindOf(err))
		})
	}
}

func TestRunFailureNamesNode(t *testing.T) {
	h := newHarness(t)
	h.orders.Err = errors.New("database locked")

	_, err := h.graph.Run(context.Background(), model.NewConversationState("u1", "r1", "Status of ORD-002 belt", nil))
	require.Error(t, err)
	assert.Equal(t, nodes.SalesHandler, NodeOf(err))
	assert.Equal(t, errx.KindCapability, errx.KindOf(err))
	assert.Equal(t, errx.CapabilityErrorMessage, errx.SafeMessage(err))
}

func TestRunHonoursCancellation(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.graph.Run(ctx, model.NewConversationState("u1", "r1", "hello", nil))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, h.classifier.Calls)
}

// ================ engine edge cases ================

type scriptedNode struct {
	name   string
	run    func(*model.ConversationState) nodes.Step
	resume func(*model.ConversationState) nodes.Step
}

func (n *scriptedNode) Name() string { return n.name }

func (n *scriptedNode) Run(_ context.Context, s *model.ConversationState) (nodes.Step, error) {
	return n.run(s), nil
}

type resumableNode struct{ scriptedNode }

func (n *resumableNode) Resume(_ context.Context, s *model.ConversationState, _ model.InterruptPayload) (nodes.Step, error) {
	return n.resume(s), nil
}

func TestSecondSuspensionIsRejected(t *testing.T) {
	g := newHandlerGraph("ask")
	ask := &resumableNode{scriptedNode{
		name: "ask",
		run: func(*model.ConversationState) nodes.Step {
			return nodes.Step{Interrupt: &model.InterruptPayload{AssistantQuery: "?"}}
		},
		resume: func(*model.ConversationState) nodes.Step { return nodes.Step{Goto: "ask"} },
	}}
	g.addNode(ask)
	require.NoError(t, g.addGotos("ask", "ask"))
	require.NoError(t, g.validate())

	out, err := g.Run(context.Background(), model.NewConversationState("u", "r1", "q", nil))
	require.NoError(t, err)
	require.True(t, out.Suspended())
	assert.Equal(t, "r1", out.Interrupt.RequestID)

	_, err = g.Resume(context.Background(), suspendedCheckpoint(out), model.InterruptPayload{UserResponse: "a"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlreadyResumed)
	assert.Equal(t, errx.KindInvariant, errx.KindOf(err))
}

func TestUndeclaredGotoFails(t *testing.T) {
	g := newHandlerGraph("a")
	g.addNode(&scriptedNode{name: "a", run: func(*model.ConversationState) nodes.Step { return nodes.Step{Goto: "b"} }})
	g.addNode(&scriptedNode{name: "b", run: func(*model.ConversationState) nodes.Step { return nodes.Step{} }})
	g.addEdge("a", "b")
	g.addEdge("b", nodes.End)
	require.NoError(t, g.validate())

	_, err := g.Run(context.Background(), model.NewConversationState("u", "r", "q", nil))
	require.Error(t, err)
	assert.Equal(t, "a", NodeOf(err))
}

func TestStepBudget(t *testing.T) {
	g := newHandlerGraph("loop")
	g.addNode(&scriptedNode{name: "loop", run: func(*model.ConversationState) nodes.Step { return nodes.Step{} }})
	g.addEdge("loop", "loop")
	require.NoError(t, g.validate())

	_, err := g.Run(context.Background(), model.NewConversationState("u", "r", "q", nil))
	assert.ErrorIs(t, err, ErrMaxSteps)
}

func TestValidateRejectsDanglingNodes(t *testing.T) {
	g := newHandlerGraph("a")
	g.addNode(&scriptedNode{name: "a", run: func(*model.ConversationState) nodes.Step { return nodes.Step{} }})
	assert.ErrorContains(t, g.validate(), "has no successor")

	g.addEdge("a", "missing")
	assert.ErrorContains(t, g.validate(), "unknown node")

	empty := newHandlerGraph("a")
	assert.ErrorContains(t, empty.validate(), "entry node")
}
