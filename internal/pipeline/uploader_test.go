package pipeline

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pinganalyst/internal/analyzer"
	"pinganalyst/internal/frames"
	"pinganalyst/internal/retry"
	"pinganalyst/internal/services/llm"
	"pinganalyst/internal/stats"
)

type scriptedAnalyzer struct {
	replies []reply
	calls   int
	frames  [][]string
}

type reply struct {
	analysis stats.Analysis
	err      error
}

func (s *scriptedAnalyzer) AnalyzeFrames(_ context.Context, urls []string) (stats.Analysis, error) {
	s.frames = append(s.frames, urls)
	if s.calls >= len(s.replies) {
		s.calls++
		return stats.Analysis{}, errors.New("unexpected call")
	}
	r := s.replies[s.calls]
	s.calls++
	return r.analysis, r.err
}

func testChunks(n int) []frames.Chunk {
	chunks := make([]frames.Chunk, n)
	for i := range chunks {
		chunks[i] = frames.Chunk{
			Index:  i,
			Total:  n,
			Start:  float64(i * 30),
			End:    float64((i + 1) * 30),
			Frames: []frames.Frame{{Timestamp: float64(i*30) + 10, JPEG: []byte{0xFF, 0xD8, byte(i)}}},
		}
	}
	return chunks
}

func chunkAnalysis(points, rallies int, avg float64) stats.Analysis {
	a := stats.Empty()
	a.TotalPoints = points
	a.TotalRallies = rallies
	a.AvgRallyLength = avg
	a.Player1.Score = points
	return a
}

type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return nil
}

func testPolicy(rec *sleepRecorder) retry.Policy {
	p := retry.Default()
	p.Sleep = rec.sleep
	return p
}

func TestRunMergesChunksInOrder(t *testing.T) {
	fake := &scriptedAnalyzer{replies: []reply{
		{analysis: chunkAnalysis(4, 4, 3)},
		{analysis: chunkAnalysis(6, 6, 5.5)},
	}}
	var progress []Progress
	var results []ChunkResult
	u := New(fake, testPolicy(&sleepRecorder{}))

	acc, err := u.Run(context.Background(), testChunks(2), RunOptions{
		OnProgress: func(p Progress) { progress = append(progress, p) },
		OnChunk: func(r ChunkResult) error {
			results = append(results, r)
			return nil
		},
	})
	require.NoError(t, err)

	snapshot := acc.Snapshot()
	assert.Equal(t, 10, snapshot.TotalPoints)
	assert.Equal(t, 10, snapshot.TotalRallies)
	assert.InDelta(t, 4.5, snapshot.AvgRallyLength, 0.001)
	assert.True(t, acc.Done())

	require.Len(t, results, 2)
	assert.Equal(t, 0, results[0].Index)
	assert.Equal(t, 1, results[1].Index)
	assert.Equal(t, 1, results[1].Attempts)
	assert.Equal(t, 1, results[1].FrameCount)
	assert.Equal(t, 30.0, results[1].Start)

	require.NotEmpty(t, progress)
	assert.Equal(t, "Analyzing segment 1 of 2", progress[0].Status)
	assert.Equal(t, "Analyzing segment 2 of 2", progress[2].Status)
	assert.Equal(t, 2, progress[len(progress)-1].Merged)

	require.Len(t, fake.frames, 2)
	assert.Equal(t, "data:image/jpeg;base64,/9gB", fake.frames[1][0])
}

func TestRunRetriesRateLimit(t *testing.T) {
	rateLimited := &analyzer.Error{
		Kind:    analyzer.ErrRateLimited,
		Status:  http.StatusTooManyRequests,
		Message: "Rate limit exceeded. Please try again in a moment.",
		Err:     &llm.StatusError{StatusCode: http.StatusTooManyRequests},
	}
	fake := &scriptedAnalyzer{replies: []reply{
		{err: rateLimited},
		{err: rateLimited},
		{analysis: chunkAnalysis(2, 2, 4)},
	}}
	rec := &sleepRecorder{}
	var statuses []string
	u := New(fake, testPolicy(rec))

	acc, err := u.Run(context.Background(), testChunks(1), RunOptions{
		OnProgress: func(p Progress) { statuses = append(statuses, p.Status) },
	})
	require.NoError(t, err)
	assert.Equal(t, 2, acc.Snapshot().TotalPoints)
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second}, rec.delays)
	assert.Contains(t, statuses, "Rate limited, retrying segment 1 in 5s")
	assert.Contains(t, statuses, "Rate limited, retrying segment 1 in 10s")
}

func TestRunReturnsPartialAccumulatorOnFailure(t *testing.T) {
	credits := &analyzer.Error{
		Kind:    analyzer.ErrCreditsExhausted,
		Status:  http.StatusPaymentRequired,
		Message: "AI usage limit reached. Please add credits in Settings.",
	}
	fake := &scriptedAnalyzer{replies: []reply{
		{analysis: chunkAnalysis(3, 3, 2)},
		{err: credits},
	}}
	rec := &sleepRecorder{}
	u := New(fake, testPolicy(rec))

	acc, err := u.Run(context.Background(), testChunks(3), RunOptions{})
	require.Error(t, err)

	var chunkErr *ChunkError
	require.ErrorAs(t, err, &chunkErr)
	assert.Equal(t, 1, chunkErr.Index)
	assert.ErrorIs(t, err, analyzer.ErrCreditsExhausted)
	assert.Empty(t, rec.delays)
	assert.Equal(t, 2, fake.calls)

	merged, total := acc.Progress()
	assert.Equal(t, 1, merged)
	assert.Equal(t, 3, total)
	assert.Equal(t, 3, acc.Snapshot().TotalPoints)
}

func TestRunResumesSkippingCompletedChunks(t *testing.T) {
	fake := &scriptedAnalyzer{replies: []reply{
		{analysis: chunkAnalysis(5, 5, 2)},
	}}
	previous := chunkAnalysis(3, 3, 4)
	acc := stats.ResumeAccumulator(previous, 1, 2)
	u := New(fake, testPolicy(&sleepRecorder{}))

	out, err := u.Run(context.Background(), testChunks(2), RunOptions{
		Accumulator: acc,
		Completed:   map[int]bool{0: true},
	})
	require.NoError(t, err)
	assert.Same(t, acc, out)
	assert.Equal(t, 1, fake.calls)
	assert.Equal(t, 8, out.Snapshot().TotalPoints)
	assert.InDelta(t, 2.8, out.Snapshot().AvgRallyLength, 0.001)
	assert.True(t, out.Done())
}

func TestRunStopsWhenRecorderFails(t *testing.T) {
	fake := &scriptedAnalyzer{replies: []reply{
		{analysis: chunkAnalysis(1, 1, 1)},
		{analysis: chunkAnalysis(1, 1, 1)},
	}}
	u := New(fake, testPolicy(&sleepRecorder{}))

	_, err := u.Run(context.Background(), testChunks(2), RunOptions{
		OnChunk: func(ChunkResult) error { return errors.New("disk full") },
	})
	var chunkErr *ChunkError
	require.ErrorAs(t, err, &chunkErr)
	assert.Equal(t, 0, chunkErr.Index)
	assert.Equal(t, 1, fake.calls)
	assert.Contains(t, err.Error(), "disk full")
}

func TestRunHonorsCancellation(t *testing.T) {
	fake := &scriptedAnalyzer{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(fake, testPolicy(&sleepRecorder{})).Run(ctx, testChunks(2), RunOptions{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, fake.calls)
}

func TestRetryStatus(t *testing.T) {
	assert.Equal(t, "Rate limited, retrying segment 3 in 20s",
		RetryStatus(2, 20*time.Second, analyzer.ErrRateLimited))
	assert.Equal(t, "Request failed, retrying segment 1 in 2s",
		RetryStatus(0, 1500*time.Millisecond, context.DeadlineExceeded))
}

func TestRunUsesChunkTotalForPartialLists(t *testing.T) {
	fake := &scriptedAnalyzer{replies: []reply{{analysis: chunkAnalysis(1, 1, 1)}}}
	u := New(fake, testPolicy(&sleepRecorder{}))

	var statuses []string
	_, err := u.Run(context.Background(), testChunks(3)[2:], RunOptions{
		Accumulator: stats.ResumeAccumulator(chunkAnalysis(2, 2, 1), 2, 3),
		OnProgress: func(p Progress) {
			statuses = append(statuses, p.Status)
			assert.Equal(t, 3, p.TotalChunks)
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Analyzing segment 3 of 3", "Merged segment 3 of 3"}, statuses)
}
