package nlp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/icp-analyzer/internal/model"
	"github.com/sells-group/icp-analyzer/pkg/anthropic"
)

const advancedSystemPrompt = `You analyze customer testimonial data for B2B go-to-market teams.
Given extracted ICP signals, respond with STRICT JSON only, no markdown fences:
{"summary": "<2-3 sentence ideal customer profile>", "key_themes": ["..."], "customer_segments": ["..."]}`

// AdvancedAnalyzer layers model-generated insights on top of the
// lexical extraction. It is optional: callers skip it entirely when no
// API key is configured.
type AdvancedAnalyzer struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAdvancedAnalyzer builds an analyzer backed by the given client.
func NewAdvancedAnalyzer(client anthropic.Client, modelID string, maxTokens int64) *AdvancedAnalyzer {
	return &AdvancedAnalyzer{client: client, model: modelID, maxTokens: maxTokens}
}

// Insights summarizes aggregated features into a narrative profile.
func (a *AdvancedAnalyzer) Insights(ctx context.Context, f *model.Features) (*model.AdvancedInsights, error) {
	payload, err := json.Marshal(f)
	if err != nil {
		return nil, eris.Wrap(err, "nlp: encoding features for insight prompt")
	}

	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		System:    []anthropic.SystemBlock{{Text: advancedSystemPrompt}},
		Messages: []anthropic.Message{{
			Role:    "user",
			Content: fmt.Sprintf("Extracted ICP signals from %d testimonials:\n%s", f.TestimonialCount, payload),
		}},
	})
	if err != nil {
		return nil, eris.Wrap(err, "nlp: advanced insight request")
	}
	resp.Usage.LogCost(a.model, "advanced_insights")

	var out struct {
		Summary          string   `json:"summary"`
		KeyThemes        []string `json:"key_themes"`
		CustomerSegments []string `json:"customer_segments"`
	}
	text := stripFences(resp.Text())
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		zap.L().Warn("advanced insight response was not valid JSON",
			zap.String("model", a.model),
			zap.Int("response_len", len(text)))
		return nil, eris.Wrap(err, "nlp: decoding advanced insight response")
	}

	return &model.AdvancedInsights{
		Summary:          out.Summary,
		KeyThemes:        out.KeyThemes,
		CustomerSegments: out.CustomerSegments,
	}, nil
}

// stripFences removes a markdown code fence if the model wrapped its
// JSON in one despite instructions.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
