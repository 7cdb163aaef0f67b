package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageResponse_Text(t *testing.T) {
	resp := &MessageResponse{Content: []ContentBlock{
		{Type: "server_tool_use"},
		{Type: "text", Text: "first"},
		{Type: "web_search_tool_result"},
		{Type: "text", Text: "second"},
	}}

	assert.Equal(t, "first\n\nsecond", resp.Text())
}

func TestMessageResponse_Text_Empty(t *testing.T) {
	resp := &MessageResponse{}
	assert.Equal(t, "", resp.Text())
}

func TestEstimateCost_KnownModel(t *testing.T) {
	usage := TokenUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000}
	cost := usage.EstimateCost("claude-sonnet-4-5-20250929")
	assert.InDelta(t, 18.0, cost, 0.001)
}

func TestEstimateCost_UnknownModel(t *testing.T) {
	usage := TokenUsage{InputTokens: 500, OutputTokens: 500}
	assert.Equal(t, 0.0, usage.EstimateCost("no-such-model"))
}

func TestEstimateCost_CacheTokens(t *testing.T) {
	usage := TokenUsage{CacheCreationInputTokens: 1_000_000, CacheReadInputTokens: 1_000_000}
	cost := usage.EstimateCost("claude-haiku-4-5-20251001")
	// write at 1.25x input rate, read at 0.1x input rate
	assert.InDelta(t, 0.80*1.25+0.80*0.1, cost, 0.001)
}
