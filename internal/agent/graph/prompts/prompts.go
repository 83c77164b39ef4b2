package prompts

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/auto-support-pilot/server/internal/agent/model"
)

// NoOrderDataMarker replaces the record list when a lookup matched nothing.
const NoOrderDataMarker = "No matching order data found."

//go:embed template/classify_prompt.txt
var classifySystemPrompt string

//go:embed template/general_prompt.txt
var generalSystemPrompt string

//go:embed template/support_prompt.txt
var supportSystemPrompt string

//go:embed template/sales_prompt.txt
var salesSystemPrompt string

//go:embed template/extract_prompt.txt
var extractSystemPrompt string

// RenderClassifierSystem renders the intent classification system prompt.
func RenderClassifierSystem(ctx context.Context) (string, error) {
	return renderSystem(ctx, "classify", classifySystemPrompt)
}

// RenderExtractionSystem renders the order reference extraction system prompt.
func RenderExtractionSystem(ctx context.Context) (string, error) {
	return renderSystem(ctx, "extract", extractSystemPrompt)
}

// RenderGeneralSystem renders the general conversation persona.
func RenderGeneralSystem(ctx context.Context) (string, error) {
	return renderSystem(ctx, "general", generalSystemPrompt)
}

// RenderSupportSystem renders the support persona with retrieved passages.
func RenderSupportSystem(ctx context.Context, passages []string) (string, error) {
	content := strings.NewReplacer("{support_context}", FormatPassages(passages)).Replace(supportSystemPrompt)
	return renderSystem(ctx, "support", content)
}

// RenderSalesSystem renders the sales persona with order records.
func RenderSalesSystem(ctx context.Context, records []model.OrderRecord) (string, error) {
	content := strings.NewReplacer("{formatted_orders}", FormatOrders(records)).Replace(salesSystemPrompt)
	return renderSystem(ctx, "sales", content)
}

// FormatPassages renders one "-passage" line per snippet.
func FormatPassages(passages []string) string {
	lines := make([]string, 0, len(passages))
	for _, p := range passages {
		lines = append(lines, "-"+p)
	}
	return strings.Join(lines, "\n")
}

// FormatOrders renders one line per record, or NoOrderDataMarker when empty.
func FormatOrders(records []model.OrderRecord) string {
	if len(records) == 0 {
		return NoOrderDataMarker
	}
	lines := make([]string, 0, len(records))
	for _, r := range records {
		lines = append(lines, r.String())
	}
	return strings.Join(lines, "\n")
}

// GeneralExamples returns the few-shot exchanges for the general persona.
// The late-package answer asks for the order number when none is known yet.
func GeneralExamples(orderIDKnown bool) []*schema.Message {
	late := "I completely understand how frustrating it is to wait for a late delivery. I'm here to help, let me look into your order details right away to see what's happening."
	if !orderIDKnown {
		late += " It looks like I don't have your order number."
	}
	return []*schema.Message{
		schema.UserMessage("Hi, how are you today?"),
		schema.AssistantMessage("I'm doing great, thank you for asking! I'm ready to help you with any order or inventory questions. What's on your mind?", nil),
		schema.UserMessage("My package is late and I'm really frustrated."),
		schema.AssistantMessage(late, nil),
		schema.UserMessage("Do you sell shoes?"),
		schema.AssistantMessage("We focus on bags, electronics, and accessories like belts and wallets. You can check our current inventory by asking me about specific items!", nil),
	}
}

// renderSystem passes the already substituted content through an Eino prompt
// component so prompt callbacks fire. The placeholder keeps JSON braces in the
// templates out of the FString formatter.
func renderSystem(ctx context.Context, name, content string) (string, error) {
	tpl := prompt.FromMessages(
		schema.FString,
		schema.MessagesPlaceholder("system_messages", false),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"system_messages": []*schema.Message{schema.SystemMessage(strings.TrimSpace(content))},
	})
	if err != nil {
		return "", fmt.Errorf("%s prompt render: %w", name, err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("%s prompt render: empty result", name)
	}
	return msgs[0].Content, nil
}
