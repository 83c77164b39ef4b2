package model

import (
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
)

// Intent is the closed set of routing categories produced by classification.
type Intent string

const (
	IntentSales   Intent = "Sales"
	IntentSupport Intent = "Support"
	IntentGeneral Intent = "General"
)

// ParseIntent maps free text onto a known intent. Unknown values yield "".
func ParseIntent(v string) Intent {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "sales":
		return IntentSales
	case "support":
		return IntentSupport
	case "general":
		return IntentGeneral
	default:
		return ""
	}
}

// OrderRef is a partially known reference to an order. Either field may be empty.
type OrderRef struct {
	OrderID   string `json:"orderId,omitempty"`
	OrderItem string `json:"orderItem,omitempty"`
}

// Complete reports whether both the order id and the item are known.
func (o *OrderRef) Complete() bool {
	return o != nil && o.OrderID != "" && o.OrderItem != ""
}

// Merge returns o with every non-empty field of update applied.
// Empty fields in update never clear known values.
func (o *OrderRef) Merge(update OrderRef) *OrderRef {
	out := OrderRef{}
	if o != nil {
		out = *o
	}
	if v := strings.TrimSpace(update.OrderID); v != "" {
		out.OrderID = v
	}
	if v := strings.TrimSpace(update.OrderItem); v != "" {
		out.OrderItem = v
	}
	return &out
}

// ConversationState is the value threaded through the handler graph during one run.
// History is carried over from the thread's previous checkpoint and only grows.
type ConversationState struct {
	UserID    string            `json:"userId"`
	RequestID string            `json:"requestId"`
	Query     string            `json:"query"`
	History   []*schema.Message `json:"history"`
	Intent    Intent            `json:"intent,omitempty"`
	Order     *OrderRef         `json:"order,omitempty"`
	Context   []string          `json:"context,omitempty"`
	Summary   string            `json:"summary,omitempty"`
	Status    string            `json:"status"`
	Response  string            `json:"response,omitempty"`
}

// NewConversationState builds the entry state for a fresh run.
func NewConversationState(userID, requestID, query string, history []*schema.Message) *ConversationState {
	return &ConversationState{
		UserID:    userID,
		RequestID: requestID,
		Query:     query,
		History:   CloneMessages(history),
		Status:    "initializing",
	}
}

// AppendTurn records one completed human/assistant exchange and the reply.
func (s *ConversationState) AppendTurn(reply string) {
	s.History = append(s.History,
		schema.UserMessage(s.Query),
		schema.AssistantMessage(reply, nil),
	)
	s.Response = reply
}

// Clone returns a deep copy that shares no mutable memory with s.
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return nil
	}
	out := *s
	out.History = CloneMessages(s.History)
	if s.Order != nil {
		o := *s.Order
		out.Order = &o
	}
	if s.Context != nil {
		out.Context = append([]string(nil), s.Context...)
	}
	return &out
}

// CloneMessages copies the slice and each message header. Message bodies are
// never mutated after creation, so nested fields are shared.
func CloneMessages(msgs []*schema.Message) []*schema.Message {
	if msgs == nil {
		return nil
	}
	out := make([]*schema.Message, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		c := *m
		out = append(out, &c)
	}
	return out
}

// InterruptPayload is emitted by a suspending handler and echoed back on resume.
type InterruptPayload struct {
	RequestID      string `json:"requestId"`
	AssistantQuery string `json:"assistantQuery,omitempty"`
	UserResponse   string `json:"userResponse,omitempty"`
}

// ResumeToken names the continuation point a suspended run re-enters.
type ResumeToken struct {
	Node      string    `json:"node"`
	RequestID string    `json:"requestId"`
	IssuedAt  time.Time `json:"issuedAt"`
}

// Checkpoint is the last known state of a thread.
type Checkpoint struct {
	ThreadID  string             `json:"threadId"`
	State     *ConversationState `json:"state"`
	Suspended bool               `json:"suspended"`
	Token     *ResumeToken       `json:"token,omitempty"`
	Interrupt *InterruptPayload  `json:"interrupt,omitempty"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// Clone returns a deep copy of the checkpoint.
func (c *Checkpoint) Clone() *Checkpoint {
	if c == nil {
		return nil
	}
	out := *c
	out.State = c.State.Clone()
	if c.Token != nil {
		t := *c.Token
		out.Token = &t
	}
	if c.Interrupt != nil {
		p := *c.Interrupt
		out.Interrupt = &p
	}
	return &out
}
