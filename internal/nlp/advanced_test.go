package nlp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/icp-analyzer/internal/model"
	"github.com/sells-group/icp-analyzer/pkg/anthropic"
)

type stubAnthropicClient struct {
	resp *anthropic.MessageResponse
	err  error
	last anthropic.MessageRequest
}

func (s *stubAnthropicClient) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	s.last = req
	return s.resp, s.err
}

func textResponse(body string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: body}},
	}
}

func TestAdvancedInsights(t *testing.T) {
	stub := &stubAnthropicClient{resp: textResponse(
		`{"summary":"Mid-market ops teams drowning in manual work.","key_themes":["automation"],"customer_segments":["operations"]}`,
	)}
	a := NewAdvancedAnalyzer(stub, "claude-sonnet-4-5-20250929", 1024)

	got, err := a.Insights(context.Background(), &model.Features{TestimonialCount: 4})
	require.NoError(t, err)
	assert.Contains(t, got.Summary, "Mid-market")
	assert.Equal(t, []string{"automation"}, got.KeyThemes)
	assert.Equal(t, []string{"operations"}, got.CustomerSegments)
	assert.Equal(t, "claude-sonnet-4-5-20250929", stub.last.Model)
	require.NotEmpty(t, stub.last.System)
}

func TestAdvancedInsights_StripsFences(t *testing.T) {
	stub := &stubAnthropicClient{resp: textResponse(
		"```json\n{\"summary\":\"s\",\"key_themes\":[],\"customer_segments\":[]}\n```",
	)}
	a := NewAdvancedAnalyzer(stub, "m", 256)

	got, err := a.Insights(context.Background(), &model.Features{})
	require.NoError(t, err)
	assert.Equal(t, "s", got.Summary)
}

func TestAdvancedInsights_BadJSON(t *testing.T) {
	stub := &stubAnthropicClient{resp: textResponse("The ideal customer is...")}
	a := NewAdvancedAnalyzer(stub, "m", 256)

	_, err := a.Insights(context.Background(), &model.Features{})
	assert.Error(t, err)
}
