package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/auto-support-pilot/server/internal/agent/graph/nodes"
	"github.com/auto-support-pilot/server/internal/agent/model"
	errx "github.com/auto-support-pilot/server/internal/core/error"
	logx "github.com/auto-support-pilot/server/pkg/logger"
)

// DefaultMaxSteps bounds the number of handler invocations in one run.
const DefaultMaxSteps = 16

var (
	// ErrNoSuspensionPoint is returned when Resume is called on a checkpoint
	// that does not name a resumable handler.
	ErrNoSuspensionPoint = errors.New("graph: checkpoint has no suspension point")
	// ErrAlreadyResumed is returned when a resumed run tries to suspend again.
	ErrAlreadyResumed = errors.New("graph: run suspended twice")
	// ErrMaxSteps is returned when a run exceeds the step budget.
	ErrMaxSteps = errors.New("graph: step budget exhausted")
)

// NodeError attributes a handler failure to the node that raised it.
type NodeError struct {
	Node string
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %v", e.Node, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

// NodeOf returns the failing node recorded in err, or "".
func NodeOf(err error) string {
	var ne *NodeError
	if errors.As(err, &ne) {
		return ne.Node
	}
	return ""
}

// Outcome is the result of running or resuming the graph. A suspended
// outcome carries the interrupt for the caller and the token to resume with.
type Outcome struct {
	State     *model.ConversationState
	Interrupt *model.InterruptPayload
	Token     *model.ResumeToken
}

// Suspended reports whether the run stopped at an interrupt.
func (o *Outcome) Suspended() bool {
	return o != nil && o.Interrupt != nil
}

type branch struct {
	route   func(*model.ConversationState) string
	targets map[string]bool
}

// HandlerGraph is a compiled, immutable handler graph. It holds no per-thread
// state and is safe for concurrent use.
type HandlerGraph struct {
	entry    string
	handlers map[string]nodes.Handler
	edges    map[string]string
	branches map[string]branch
	gotos    map[string]map[string]bool
	maxSteps int
	now      func() time.Time
}

// GraphBuilder handles the construction of the handler graph
type GraphBuilder struct {
	deps  *nodes.Dependencies
	graph *HandlerGraph
}

// BuildGraph constructs and validates the conversational handler graph.
func BuildGraph(deps *nodes.Dependencies) (*HandlerGraph, error) {
	if err := deps.Validate(); err != nil {
		return nil, err
	}

	builder := &GraphBuilder{
		deps:  deps,
		graph: newHandlerGraph(nodes.ClassifyIntent),
	}

	builder.addNodes()
	builder.addEdges()

	if err := builder.addBranches(); err != nil {
		return nil, err
	}

	return builder.compile()
}

func newHandlerGraph(entry string) *HandlerGraph {
	return &HandlerGraph{
		entry:    entry,
		handlers: map[string]nodes.Handler{},
		edges:    map[string]string{},
		branches: map[string]branch{},
		gotos:    map[string]map[string]bool{},
		maxSteps: DefaultMaxSteps,
		now:      time.Now,
	}
}

func (b *GraphBuilder) addNodes() {
	for _, h := range []nodes.Handler{
		nodes.NewClassifyIntentNode(b.deps),
		nodes.NewSupportNode(b.deps),
		nodes.NewGeneralNode(b.deps),
		nodes.NewHumanConfirmNode(b.deps),
		nodes.NewSalesNode(b.deps),
	} {
		b.graph.addNode(h)
	}
}

func (b *GraphBuilder) addEdges() {
	b.graph.addEdge(nodes.SupportHandler, nodes.End)
	b.graph.addEdge(nodes.GeneralHandler, nodes.End)
	b.graph.addEdge(nodes.SalesHandler, nodes.End)
}

func (b *GraphBuilder) addBranches() error {
	if err := b.graph.addBranch(nodes.ClassifyIntent, nodes.RouteIntent,
		nodes.SupportHandler, nodes.HumanConfirm, nodes.GeneralHandler); err != nil {
		return fmt.Errorf("failed to add intent branch: %w", err)
	}
	// humanConfirm chooses its successor itself
	if err := b.graph.addGotos(nodes.HumanConfirm, nodes.SalesHandler, nodes.End); err != nil {
		return fmt.Errorf("failed to add human confirm targets: %w", err)
	}
	return nil
}

func (b *GraphBuilder) compile() (*HandlerGraph, error) {
	if err := b.graph.validate(); err != nil {
		logx.Error().Err(err).Msg("Failed to compile handler graph")
		return nil, fmt.Errorf("failed to compile graph: %w", err)
	}
	logx.Debug().Int("nodes", len(b.graph.handlers)).Msg("Handler graph compiled")
	return b.graph, nil
}

func (g *HandlerGraph) addNode(h nodes.Handler) {
	g.handlers[h.Name()] = h
}

func (g *HandlerGraph) addEdge(from, to string) {
	g.edges[from] = to
}

func (g *HandlerGraph) addBranch(from string, route func(*model.ConversationState) string, targets ...string) error {
	if route == nil {
		return fmt.Errorf("nil route for %s", from)
	}
	if _, ok := g.branches[from]; ok {
		return fmt.Errorf("duplicate branch for %s", from)
	}
	g.branches[from] = branch{route: route, targets: targetSet(targets)}
	return nil
}

func (g *HandlerGraph) addGotos(from string, targets ...string) error {
	if len(targets) == 0 {
		return fmt.Errorf("no targets for %s", from)
	}
	g.gotos[from] = targetSet(targets)
	return nil
}

func targetSet(targets []string) map[string]bool {
	set := make(map[string]bool, len(targets))
	for _, t := range targets {
		set[t] = true
	}
	return set
}

// validate checks that every declared successor exists and every handler
// has a way out.
func (g *HandlerGraph) validate() error {
	if _, ok := g.handlers[g.entry]; !ok {
		return fmt.Errorf("entry node %q not registered", g.entry)
	}
	known := func(name string) bool {
		_, ok := g.handlers[name]
		return ok || name == nodes.End
	}
	for from, to := range g.edges {
		if !known(from) || !known(to) {
			return fmt.Errorf("edge %s -> %s references an unknown node", from, to)
		}
	}
	for from, br := range g.branches {
		if !known(from) {
			return fmt.Errorf("branch from unknown node %s", from)
		}
		for to := range br.targets {
			if !known(to) {
				return fmt.Errorf("branch %s -> %s references an unknown node", from, to)
			}
		}
	}
	for from, targets := range g.gotos {
		if !known(from) {
			return fmt.Errorf("targets declared for unknown node %s", from)
		}
		for to := range targets {
			if !known(to) {
				return fmt.Errorf("target %s -> %s references an unknown node", from, to)
			}
		}
	}
	for name := range g.handlers {
		_, hasEdge := g.edges[name]
		_, hasBranch := g.branches[name]
		_, hasGotos := g.gotos[name]
		if !hasEdge && !hasBranch && !hasGotos {
			return fmt.Errorf("node %s has no successor", name)
		}
	}
	return nil
}

// Run executes a fresh run from the entry node. The caller's state is not
// modified; the returned outcome carries the updated copy.
func (g *HandlerGraph) Run(ctx context.Context, state *model.ConversationState) (*Outcome, error) {
	if state == nil {
		return nil, errors.New("graph: nil state")
	}
	return g.execute(ctx, state.Clone(), g.entry, false)
}

// Resume re-enters a suspended run at the handler named by the checkpoint's
// resume token and continues to completion.
func (g *HandlerGraph) Resume(ctx context.Context, cp *model.Checkpoint, payload model.InterruptPayload) (*Outcome, error) {
	if cp == nil || !cp.Suspended || cp.Token == nil || cp.State == nil {
		return nil, errx.Invariant(ErrNoSuspensionPoint, "Nothing is waiting for an answer on this conversation.")
	}
	h, ok := g.handlers[cp.Token.Node]
	if !ok {
		return nil, errx.Invariant(ErrNoSuspensionPoint, "Nothing is waiting for an answer on this conversation.")
	}
	resumer, ok := h.(nodes.Resumer)
	if !ok {
		return nil, errx.Invariant(ErrNoSuspensionPoint, "Nothing is waiting for an answer on this conversation.")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	state := cp.State.Clone()
	if payload.RequestID != "" {
		state.RequestID = payload.RequestID
	}

	logx.Debug().
		Str("request_id", state.RequestID).
		Str("node", cp.Token.Node).
		Msg("resuming suspended run")

	step, err := resumer.Resume(ctx, state, payload)
	if err != nil {
		return nil, g.nodeFailure(state, cp.Token.Node, err)
	}
	if step.Interrupt != nil {
		return nil, g.nodeFailure(state, cp.Token.Node, errx.Invariant(ErrAlreadyResumed, errx.SystemErrorMessage))
	}
	next, err := g.successor(cp.Token.Node, state, step)
	if err != nil {
		return nil, g.nodeFailure(state, cp.Token.Node, err)
	}
	return g.execute(ctx, state, next, true)
}

func (g *HandlerGraph) execute(ctx context.Context, state *model.ConversationState, current string, resumed bool) (*Outcome, error) {
	for steps := 0; current != nodes.End; steps++ {
		if steps >= g.maxSteps {
			return nil, g.nodeFailure(state, current, ErrMaxSteps)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		h, ok := g.handlers[current]
		if !ok {
			return nil, g.nodeFailure(state, current, fmt.Errorf("unknown node %q", current))
		}

		logx.Debug().Str("request_id", state.RequestID).Str("node", current).Msg("node start")
		step, err := h.Run(ctx, state)
		if err != nil {
			return nil, g.nodeFailure(state, current, err)
		}

		if step.Interrupt != nil {
			if resumed {
				return nil, g.nodeFailure(state, current, errx.Invariant(ErrAlreadyResumed, errx.SystemErrorMessage))
			}
			if _, ok := h.(nodes.Resumer); !ok {
				return nil, g.nodeFailure(state, current, fmt.Errorf("node %s cannot be resumed", current))
			}
			interrupt := *step.Interrupt
			if interrupt.RequestID == "" {
				interrupt.RequestID = state.RequestID
			}
			return &Outcome{
				State:     state,
				Interrupt: &interrupt,
				Token: &model.ResumeToken{
					Node:      current,
					RequestID: interrupt.RequestID,
					IssuedAt:  g.now().UTC(),
				},
			}, nil
		}

		next, err := g.successor(current, state, step)
		if err != nil {
			return nil, g.nodeFailure(state, current, err)
		}
		current = next
	}
	return &Outcome{State: state}, nil
}

// successor resolves the next node: an explicit Goto must be a declared
// target; otherwise the branch or plain edge applies.
func (g *HandlerGraph) successor(current string, state *model.ConversationState, step nodes.Step) (string, error) {
	if step.Goto != "" {
		if !g.gotos[current][step.Goto] {
			return "", fmt.Errorf("undeclared transition %s -> %s", current, step.Goto)
		}
		return step.Goto, nil
	}
	if br, ok := g.branches[current]; ok {
		next := br.route(state)
		if !br.targets[next] {
			return "", fmt.Errorf("branch %s routed to undeclared node %q", current, next)
		}
		return next, nil
	}
	if next, ok := g.edges[current]; ok {
		return next, nil
	}
	return "", fmt.Errorf("node %s has no successor", current)
}

func (g *HandlerGraph) nodeFailure(state *model.ConversationState, node string, err error) error {
	logx.Error().
		Err(err).
		Str("request_id", state.RequestID).
		Str("node", node).
		Msg("handler failed")
	return &NodeError{Node: node, Err: err}
}
