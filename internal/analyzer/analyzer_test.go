package analyzer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pinganalyst/internal/services/llm"
)

type fakeBackend struct {
	reply string
	err   error
	last  llm.Request
	calls int
}

func (f *fakeBackend) Name() string  { return "fake" }
func (f *fakeBackend) Model() string { return "fake-model" }

func (f *fakeBackend) Generate(_ context.Context, req llm.Request) (string, error) {
	f.calls++
	f.last = req
	return f.reply, f.err
}

func (f *fakeBackend) HealthCheck(context.Context) error { return nil }

func frameURLs(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("data:image/jpeg;base64,frame%02d", i)
	}
	return out
}

func TestAnalyzeFramesNoFrames(t *testing.T) {
	backend := &fakeBackend{}
	_, err := New(backend).AnalyzeFrames(context.Background(), nil)
	require.ErrorIs(t, err, ErrNoFrames)
	assert.Equal(t, 0, backend.calls)
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))
	assert.Equal(t, "No frames provided", PublicMessage(err))
}

func TestAnalyzeFramesParsesFencedReply(t *testing.T) {
	backend := &fakeBackend{reply: "```json\n" + `{
		"totalPoints": 6,
		"totalRallies": 6,
		"avgRallyLength": 3.5,
		"longestRally": 8,
		"serveSpeed": "~40 km/h",
		"player1Color": "red",
		"player2Color": "blue",
		"player1": {"score": 4, "forehandWinners": 2},
		"player2": {"score": 2, "unforcedErrors": 3},
		"summary": "Red dominates short play."
	}` + "\n```"}
	analysis, err := New(backend).AnalyzeFrames(context.Background(), frameURLs(3))
	require.NoError(t, err)

	assert.Equal(t, 6, analysis.TotalPoints)
	assert.Equal(t, 3.5, analysis.AvgRallyLength)
	assert.Equal(t, "Red", analysis.Player1Color)
	assert.Equal(t, 4, analysis.Player1.Score)
	assert.Equal(t, 3, analysis.Player2.UnforcedErrors)

	assert.Equal(t, SystemPrompt, backend.last.System)
	assert.Equal(t, UserPrompt, backend.last.User)
	assert.True(t, backend.last.JSON)
	assert.Len(t, backend.last.Images, 3)
}

func TestAnalyzeFramesCapsImages(t *testing.T) {
	backend := &fakeBackend{reply: `{"totalRallies": 1}`}
	frames := frameURLs(30)
	_, err := New(backend).AnalyzeFrames(context.Background(), frames)
	require.NoError(t, err)
	require.Len(t, backend.last.Images, DefaultMaxFrames)
	assert.Equal(t, frames[0], backend.last.Images[0])
	assert.Equal(t, frames[29], backend.last.Images[DefaultMaxFrames-1])

	_, err = New(backend, WithMaxFrames(2)).AnalyzeFrames(context.Background(), frames)
	require.NoError(t, err)
	assert.Len(t, backend.last.Images, 2)
}

func TestSelectFrames(t *testing.T) {
	frames := frameURLs(10)
	assert.Equal(t, frames, SelectFrames(frames, 10))
	assert.Equal(t, frames, SelectFrames(frames, 0))
	assert.Equal(t, []string{frames[5]}, SelectFrames(frames, 1))
	assert.Equal(t, []string{frames[0], frames[3], frames[6], frames[9]}, SelectFrames(frames, 4))
}

func TestAnalyzeFramesErrorMapping(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		reply   string
		kind    error
		status  int
		message string
	}{
		{
			name:    "rate limited",
			err:     &llm.StatusError{StatusCode: http.StatusTooManyRequests},
			kind:    ErrRateLimited,
			status:  http.StatusTooManyRequests,
			message: "Rate limit exceeded. Please try again in a moment.",
		},
		{
			name:    "credits",
			err:     &llm.StatusError{StatusCode: http.StatusPaymentRequired},
			kind:    ErrCreditsExhausted,
			status:  http.StatusPaymentRequired,
			message: "AI usage limit reached. Please add credits in Settings.",
		},
		{
			name:    "gateway",
			err:     &llm.StatusError{StatusCode: http.StatusBadGateway},
			kind:    ErrGateway,
			status:  http.StatusInternalServerError,
			message: "AI gateway error: 502",
		},
		{
			name:    "empty content",
			err:     &llm.EmptyContentError{Op: "x"},
			kind:    ErrNoContent,
			status:  http.StatusInternalServerError,
			message: "No content in AI response",
		},
		{
			name:    "unparseable",
			reply:   "I cannot see any table tennis here.",
			kind:    ErrSchemaMismatch,
			status:  http.StatusInternalServerError,
			message: "Failed to parse analysis results",
		},
		{
			name:    "unrelated object",
			reply:   `{"verdict": "nice"}`,
			kind:    ErrSchemaMismatch,
			status:  http.StatusInternalServerError,
			message: "Failed to parse analysis results",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			backend := &fakeBackend{reply: tc.reply, err: tc.err}
			_, err := New(backend).AnalyzeFrames(context.Background(), frameURLs(1))
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.kind)
			assert.Equal(t, tc.status, HTTPStatus(err))
			assert.Equal(t, tc.message, PublicMessage(err))
		})
	}
}

func TestAnalyzeFramesKeepsStatusErrorReachable(t *testing.T) {
	backend := &fakeBackend{err: &llm.StatusError{StatusCode: http.StatusServiceUnavailable}}
	_, err := New(backend).AnalyzeFrames(context.Background(), frameURLs(1))
	assert.Equal(t, http.StatusServiceUnavailable, llm.StatusCode(err))
}

func TestAnalyzeFramesPassesContextErrors(t *testing.T) {
	backend := &fakeBackend{err: context.DeadlineExceeded}
	_, err := New(backend).AnalyzeFrames(context.Background(), frameURLs(1))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	var aerr *Error
	assert.False(t, errors.As(err, &aerr))
}

func TestNewBackend(t *testing.T) {
	ctx := context.Background()
	backend, err := NewBackend(ctx, BackendConfig{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, ProviderGateway, backend.Name())

	backend, err = NewBackend(ctx, BackendConfig{Provider: "OpenAI", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, backend.Name())

	_, err = NewBackend(ctx, BackendConfig{Provider: "gemini"})
	assert.ErrorIs(t, err, llm.ErrMissingAPIKey)

	_, err = NewBackend(ctx, BackendConfig{Provider: "claude"})
	assert.Error(t, err)
}
