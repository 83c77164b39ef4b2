package nodes

import (
	"fmt"
	"strings"

	"github.com/auto-support-pilot/server/internal/agent/model"
)

// ===== Small helpers to keep handlers simple/readable =====

// MissingFieldsQuestion asks for whatever part of the order reference is
// unknown. It returns "" when the reference is complete.
func MissingFieldsQuestion(ref *model.OrderRef) string {
	var missing []string
	if ref == nil || ref.OrderID == "" {
		missing = append(missing, "order id")
	}
	if ref == nil || ref.OrderItem == "" {
		missing = append(missing, "item")
	}
	if len(missing) == 0 {
		return ""
	}
	return "Please provide " + strings.Join(missing, " and ") + "."
}

// FormatSummary renders the classification summary line kept on the state.
func FormatSummary(summary string, ref model.OrderRef) string {
	return fmt.Sprintf("Summary: %s | Order Id: %s | Item: %s",
		strings.TrimSpace(summary), orNone(ref.OrderID), orNone(ref.OrderItem))
}

func orNone(v string) string {
	if v == "" {
		return "None"
	}
	return v
}

func capRecords(records []model.OrderRecord, limit int) []model.OrderRecord {
	if len(records) > limit {
		return records[:limit]
	}
	return records
}

func recordLines(records []model.OrderRecord) []string {
	lines := make([]string, 0, len(records))
	for _, r := range records {
		lines = append(lines, r.String())
	}
	return lines
}
