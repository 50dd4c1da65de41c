package indexprediction

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optexity/internal/domain/entity"
	"optexity/internal/infrastructure/logger"
	"optexity/internal/infrastructure/metrics"
	"optexity/internal/testutil"
)

func setup(answers ...string) (*Agent, *testutil.Browser, *testutil.LLM, *entity.Memory) {
	browser := testutil.NewBrowser("https://example.com/login")
	browser.PageTitle = "Login"
	browser.Indexed = []*testutil.Element{{}, {}, {}}
	browser.Shot = &entity.Screenshot{Data: []byte{1, 2, 3}, Format: "jpeg"}
	llm := &testutil.LLM{Answers: answers, Usage: entity.TokenUsage{InputTokens: 100, OutputTokens: 5, TotalTokens: 105}}

	mem := entity.NewMemory(nil)
	mem.AppendBrowserState("https://example.com/stale")

	agent := New(llm, browser, logger.NewNop(), metrics.Nop{}, DefaultConfig())
	return agent, browser, llm, mem
}

func TestPredict_ReturnsIndexAndRecordsState(t *testing.T) {
	agent, _, llm, mem := setup(`{"index": 2}`)

	index, ok := agent.Predict(context.Background(), mem, "Click the Login button")

	require.True(t, ok)
	assert.Equal(t, 2, index)
	require.Len(t, mem.BrowserStates, 1)
	state := mem.BrowserStates[0]
	assert.Equal(t, "https://example.com/login", state.URL)
	assert.Equal(t, "Login", state.Title)
	assert.Contains(t, state.Axtree, "[2] button")
	assert.NotEmpty(t, state.Screenshot)
	assert.Contains(t, state.FinalPrompt, "Click the Login button")
	assert.Equal(t, Prediction{Index: 2}, state.LLMResponse)
	assert.Equal(t, 105, mem.TokenUsage.TotalTokens)

	require.Len(t, llm.Requests, 1)
	assert.Equal(t, agentName, llm.Requests[0].Schema.Name)
	assert.Contains(t, string(llm.Requests[0].Schema.Schema), `"index"`)
}

func TestPredict_NoMatch(t *testing.T) {
	agent, _, _, mem := setup(`{"index": -1}`)

	_, ok := agent.Predict(context.Background(), mem, "Click Logout")

	assert.False(t, ok)
}

func TestPredict_OutOfRange(t *testing.T) {
	agent, _, _, mem := setup(`{"index": 7}`)

	_, ok := agent.Predict(context.Background(), mem, "Click")

	assert.False(t, ok)
}

func TestPredict_LLMErrorIsSwallowed(t *testing.T) {
	agent, _, llm, mem := setup()
	llm.Err = errors.New("rate limited")

	_, ok := agent.Predict(context.Background(), mem, "Click")

	assert.False(t, ok)
	assert.Equal(t, "https://example.com/login", mem.BrowserStates[0].URL)
	assert.Zero(t, mem.TokenUsage.TotalTokens)
}

func TestPredict_UnusableAnswerStillCountsTokens(t *testing.T) {
	agent, _, _, mem := setup(`not json`)

	_, ok := agent.Predict(context.Background(), mem, "Click")

	assert.False(t, ok)
	assert.Equal(t, 105, mem.TokenUsage.TotalTokens)
}

func TestPredict_SnapshotError(t *testing.T) {
	agent, browser, llm, mem := setup(`{"index": 0}`)
	browser.SnapErr = errors.New("page crashed")

	_, ok := agent.Predict(context.Background(), mem, "Click")

	assert.False(t, ok)
	assert.Empty(t, llm.Requests)
}

func TestPredict_EmptyBrowserLog(t *testing.T) {
	agent, _, _, _ := setup(`{"index": 0}`)
	mem := entity.NewMemory(nil)

	index, ok := agent.Predict(context.Background(), mem, "Click")

	require.True(t, ok)
	assert.Zero(t, index)
	assert.Len(t, mem.BrowserStates, 1)
}
