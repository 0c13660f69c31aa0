package resolvequestion

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"session-insights/internal/common/errors"
	"session-insights/internal/common/logger"
	"session-insights/internal/common/validation"
	"session-insights/internal/models"
	"session-insights/internal/orchestrator"
	"session-insights/internal/routing"
	"session-insights/pkg/registry"
)

// ==========================
// Test Helper Functions
// ==========================

type resolveCall struct {
	req      models.RoutedRequest
	identity interface{}
}

type fakeResolver struct {
	outcome orchestrator.Outcome
	calls   []resolveCall
}

func (f *fakeResolver) Resolve(_ context.Context, req models.RoutedRequest, identity interface{}) orchestrator.Outcome {
	f.calls = append(f.calls, resolveCall{req: req, identity: identity})
	out := f.outcome
	out.Intent = req.Intent()
	out.Mode = req.Mode()
	return out
}

func inputSchema(t *testing.T) *validation.Schema {
	t.Helper()
	reg, err := registry.LoadRegistry(filepath.Join("..", "..", "..", "..", "configs", "activity-registry.json"))
	require.NoError(t, err)
	a, err := reg.Find(TaskType)
	require.NoError(t, err)
	s, err := a.InputValidator()
	require.NoError(t, err)
	return s
}

func createTestHandler(t *testing.T, r Resolver) *Handler {
	log := logger.NewTestLogger(t)
	return NewHandler(&Config{Timeout: time.Second}, routing.NewRouter(log), r, inputSchema(t), log)
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_RoutesRawQuestion(t *testing.T) {
	r := &fakeResolver{outcome: orchestrator.Outcome{ID: "o-1", Kind: orchestrator.Answered}}
	h := createTestHandler(t, r)

	out, err := h.Execute(context.Background(), &Input{UserID: "u-7", Question: "Show me my last 5 sessions"})
	require.NoError(t, err)

	require.Len(t, r.calls, 1)
	assert.Equal(t, "u-7", r.calls[0].identity)
	assert.Equal(t, models.IntentSessionListing, r.calls[0].req.Intent())
	assert.Equal(t, "show me my last 5 sessions", r.calls[0].req.Question())
	assert.Equal(t, orchestrator.Answered, out.Outcome.Kind)
}

func TestHandler_Execute_UsesRoutedRequest(t *testing.T) {
	r := &fakeResolver{outcome: orchestrator.Outcome{Kind: orchestrator.Answered}}
	h := createTestHandler(t, r)

	var in Input
	require.NoError(t, json.Unmarshal([]byte(`{
		"userId": "u-7",
		"question": "How has my cadence changed?",
		"routedRequest": {"mode": "generative_fallback", "intent": "trend_summary", "parameters": {"window_size": 4}}
	}`), &in))

	_, err := h.Execute(context.Background(), &in)
	require.NoError(t, err)

	req := r.calls[0].req
	assert.Equal(t, models.IntentTrendSummary, req.Intent())
	assert.Equal(t, 4, req.WindowOr(10))
	assert.Equal(t, "how has my cadence changed?", req.Question())
}

func TestHandler_Execute_FailedOutcomeIsAResult(t *testing.T) {
	r := &fakeResolver{outcome: orchestrator.Outcome{
		Kind:   orchestrator.Failed,
		Reason: orchestrator.RejectedReason("unsafe verb"),
		Detail: "DROP",
	}}
	h := createTestHandler(t, r)

	out, err := h.Execute(context.Background(), &Input{UserID: "u-1", Question: "drop table sessions; -- give me stats"})
	require.NoError(t, err)
	assert.Equal(t, orchestrator.Failed, out.Outcome.Kind)
	assert.Equal(t, "rejected:unsafe verb", out.Outcome.Reason)

	raw, err := json.Marshal(out)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"kind":"failed"`)
}

func TestHandler_Execute_NoUserPassesNilIdentity(t *testing.T) {
	r := &fakeResolver{outcome: orchestrator.Outcome{Kind: orchestrator.Answered}}
	h := createTestHandler(t, r)

	_, err := h.Execute(context.Background(), &Input{Question: "what is cadence"})
	require.NoError(t, err)
	assert.Nil(t, r.calls[0].identity)
}

func TestHandler_Execute_InvalidInput(t *testing.T) {
	r := &fakeResolver{}
	h := createTestHandler(t, r)

	for _, in := range []*Input{nil, {UserID: "u-1"}, {UserID: "u-1", Question: "  "}} {
		_, err := h.Execute(context.Background(), in)
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeInvalidJobInput, errors.Normalize(err).Code)
	}
	assert.Empty(t, r.calls)
}

// ==========================
// Input Validation
// ==========================

func TestHandler_ParseInput(t *testing.T) {
	h := createTestHandler(t, &fakeResolver{})

	tests := []struct {
		name    string
		vars    string
		wantErr bool
	}{
		{"question only", `{"userId":"u-1","question":"hi"}`, false},
		{"routed only", `{"userId":"u-1","routedRequest":{"intent":"session_listing","parameters":{"window_size":3}}}`, false},
		{"neither", `{"userId":"u-1"}`, true},
		{"bad mode", `{"routedRequest":{"mode":"raw_sql","intent":"session_listing"}}`, true},
		{"unknown intent", `{"routedRequest":{"intent":"delete_everything"}}`, true},
		{"empty user", `{"userId":"","question":"hi"}`, true},
		{"not json", `{`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := h.parseInput(tt.vars)
			if !tt.wantErr {
				require.NoError(t, err)
				assert.NotNil(t, in)
				return
			}
			require.Error(t, err)
			assert.Equal(t, errors.ErrCodeInvalidJobInput, errors.Normalize(err).Code)
		})
	}
}

func TestHandler_ParseInput_RoutedRequestDefaultsMode(t *testing.T) {
	h := createTestHandler(t, &fakeResolver{})

	in, err := h.parseInput(`{"userId":"u-1","routedRequest":{"intent":"session_detail","parameters":{"session_id":"12"}}}`)
	require.NoError(t, err)
	require.NotNil(t, in.RoutedRequest)
	assert.Equal(t, models.ModeTemplateOnly, in.RoutedRequest.Mode())

	id, ok := in.RoutedRequest.SessionID()
	assert.True(t, ok)
	assert.Equal(t, int64(12), id)
}
