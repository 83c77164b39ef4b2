// Package agenttest provides scripted capability fakes for handler, graph and
// session tests.
package agenttest

import (
	"context"
	"strings"
	"sync"

	"github.com/cloudwego/eino/schema"

	"github.com/auto-support-pilot/server/internal/agent/model"
)

// Classifier answers with a fixed classification per query, falling back to Default.
type Classifier struct {
	mu      sync.Mutex
	ByQuery map[string]model.Classification
	Default model.Classification
	Err     error
	Calls   int
}

func (c *Classifier) Classify(_ context.Context, query string, _ []*schema.Message) (*model.Classification, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls++
	if c.Err != nil {
		return nil, c.Err
	}
	if res, ok := c.ByQuery[query]; ok {
		return &res, nil
	}
	res := c.Default
	if res.Intent == "" && res.Summary == "" {
		res.Intent = model.IntentGeneral
	}
	return &res, nil
}

// Generator echoes the input behind Prefix and records every request.
type Generator struct {
	mu       sync.Mutex
	Prefix   string
	Err      error
	Requests []model.GenerateRequest
}

func (g *Generator) Generate(_ context.Context, req model.GenerateRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Requests = append(g.Requests, req)
	if g.Err != nil {
		return "", g.Err
	}
	prefix := g.Prefix
	if prefix == "" {
		prefix = "reply"
	}
	return prefix + ": " + req.Input, nil
}

// Last returns the most recent request.
func (g *Generator) Last() model.GenerateRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.Requests) == 0 {
		return model.GenerateRequest{}
	}
	return g.Requests[len(g.Requests)-1]
}

// Count returns the number of requests seen.
func (g *Generator) Count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Requests)
}

// Extractor maps answers to order references.
type Extractor struct {
	mu     sync.Mutex
	ByText map[string]model.OrderRef
	Err    error
	Calls  int
}

func (e *Extractor) Extract(_ context.Context, text string) (model.OrderRef, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Calls++
	if e.Err != nil {
		return model.OrderRef{}, e.Err
	}
	return e.ByText[text], nil
}

// Retriever returns fixed passages.
type Retriever struct {
	Passages []string
	Err      error
}

func (r *Retriever) Search(_ context.Context, _ string, topK int) ([]string, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	if topK > 0 && len(r.Passages) > topK {
		return r.Passages[:topK], nil
	}
	return r.Passages, nil
}

// Orders filters an in-memory record set the way the SQL store does.
type Orders struct {
	mu      sync.Mutex
	Records []model.OrderRecord
	Err     error
	Refs    []model.OrderRef
}

func (o *Orders) Lookup(_ context.Context, ref model.OrderRef, limit int) ([]model.OrderRecord, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Refs = append(o.Refs, ref)
	if o.Err != nil {
		return nil, o.Err
	}
	var out []model.OrderRecord
	for _, r := range o.Records {
		if ref.OrderID != "" && r.OrderID != ref.OrderID {
			continue
		}
		if ref.OrderItem != "" && !strings.Contains(strings.ToLower(r.OrderItem), strings.ToLower(ref.OrderItem)) {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// SeedOrders matches the rows seeded into a fresh order database.
func SeedOrders() []model.OrderRecord {
	return []model.OrderRecord{
		{OrderID: "ORD-001", OrderItem: "Laptop", Status: "Delivered", Location: "Hyderabad"},
		{OrderID: "ORD-002", OrderItem: "Belt", Status: "Processing", Location: "Shop"},
		{OrderID: "ORD-003", OrderItem: "Jacket", Status: "Delivered", Location: "Kolkata"},
		{OrderID: "ORD-004", OrderItem: "Wallet", Status: "In Stock", Location: "Store 2"},
		{OrderID: "ORD-005", OrderItem: "Bag", Status: "Shipped", Location: "Warehouse B"},
	}
}
