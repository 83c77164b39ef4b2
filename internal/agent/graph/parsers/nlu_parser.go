package parsers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/auto-support-pilot/server/internal/agent/model"
	errx "github.com/auto-support-pilot/server/internal/core/error"
	logx "github.com/auto-support-pilot/server/pkg/logger"
)

// basic safety limits to avoid pathological inputs
const (
	maxContentLen = 128 * 1024 // 128KB
	maxFieldLen   = 1024
	maxErrSnippet = 200
)

// nullish values models emit instead of JSON null
var nullish = map[string]bool{
	"":          true,
	"null":      true,
	"none":      true,
	"n/a":       true,
	"unknown":   true,
	"undefined": true,
}

type rawClassification struct {
	Summary   string  `json:"summary"`
	Intent    string  `json:"intent"`
	OrderID   *string `json:"orderId"`
	OrderItem *string `json:"orderItem"`
	Reasoning string  `json:"reasoning"`
}

type rawOrderRef struct {
	OrderID   *string `json:"orderId"`
	OrderItem *string `json:"orderItem"`
}

// ParseClassification decodes the classifier's JSON reply. An unrecognised
// intent is kept empty so routing falls back to general conversation.
func ParseClassification(content string) (resp *model.Classification, err error) {
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("component", "nlu_parser").Msgf("panic recovered: %v", r)
			err = errx.New(fmt.Errorf("classification parser panic"), http.StatusInternalServerError, errx.SystemErrorMessage)
			resp = nil
		}
	}()

	var raw rawClassification
	if err := decodeObject(content, &raw); err != nil {
		return nil, err
	}
	intent := model.ParseIntent(raw.Intent)
	if intent == "" {
		logx.Warn().
			Str("component", "nlu_parser").
			Str("intent", safeSnippet(raw.Intent)).
			Msg("unrecognised intent")
	}
	return &model.Classification{
		Intent:    intent,
		OrderID:   normalizeField(raw.OrderID),
		OrderItem: normalizeField(raw.OrderItem),
		Summary:   clip(strings.TrimSpace(raw.Summary)),
		Reasoning: clip(strings.TrimSpace(raw.Reasoning)),
	}, nil
}

// ParseOrderRef decodes the extractor's JSON reply.
func ParseOrderRef(content string) (ref model.OrderRef, err error) {
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("component", "nlu_parser").Msgf("panic recovered: %v", r)
			err = errx.New(fmt.Errorf("order parser panic"), http.StatusInternalServerError, errx.SystemErrorMessage)
			ref = model.OrderRef{}
		}
	}()

	var raw rawOrderRef
	if err := decodeObject(content, &raw); err != nil {
		return model.OrderRef{}, err
	}
	return model.OrderRef{
		OrderID:   normalizeField(raw.OrderID),
		OrderItem: normalizeField(raw.OrderItem),
	}, nil
}

// decodeObject locates the outermost JSON object in content, tolerating code
// fences and chatter around it.
func decodeObject(content string, out any) error {
	if !utf8.ValidString(content) {
		return fmt.Errorf("model output invalid utf8")
	}
	if len(content) > maxContentLen {
		logx.Warn().
			Str("component", "nlu_parser").
			Int("max_len", maxContentLen).
			Int("orig_len", len(content)).
			Msg("content truncated due to size limit")
		content = cutAtRune(content, maxContentLen)
	}
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return fmt.Errorf("no json object in model output: %q", safeSnippet(content))
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), out); err != nil {
		return fmt.Errorf("decode model output %q: %w", safeSnippet(content), err)
	}
	return nil
}

func normalizeField(v *string) string {
	if v == nil {
		return ""
	}
	s := strings.TrimSpace(*v)
	if nullish[strings.ToLower(s)] {
		return ""
	}
	return clip(s)
}

func clip(s string) string {
	return cutAtRune(s, maxFieldLen)
}

// cutAtRune returns at most n bytes of s without splitting a rune.
func cutAtRune(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for i := n; i > 0; i-- {
		if utf8.RuneStart(s[i]) {
			return s[:i]
		}
	}
	return ""
}

func safeSnippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxErrSnippet {
		return s
	}
	return s[:maxErrSnippet]
}
