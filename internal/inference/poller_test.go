package inference

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/me/alm/pkg/model"
)

// scriptedFetcher replays statuses; the last one repeats forever.
type scriptedFetcher struct {
	mu       sync.Mutex
	statuses []model.JobStatus
	err      error
	calls    int
}

func (f *scriptedFetcher) GetInferenceResult(_ context.Context, jobID string) (*model.InferenceJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	i := min(f.calls-1, len(f.statuses)-1)
	job := &model.InferenceJob{JobID: jobID, Status: f.statuses[i]}
	switch job.Status {
	case model.JobStatusCompleted:
		job.Result = &model.PricePrediction{CurrentPrice: 38.45, PredictionHorizon: 2, PredictedPrices: []float64{39, 40}}
	case model.JobStatusFailed:
		job.Error = "bad csv"
	}
	return job, nil
}

// recordWaits replaces the sleep so tests run instantly.
func recordWaits(p *Poller) *[]time.Duration {
	var waits []time.Duration
	p.wait = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return ctx.Err()
	}
	return &waits
}

func TestPoll_StopsAtTerminal(t *testing.T) {
	f := &scriptedFetcher{statuses: []model.JobStatus{
		model.JobStatusPending, model.JobStatusPending, model.JobStatusProcessing, model.JobStatusCompleted,
	}}
	p := NewPoller(f, DefaultConfig(), nil)
	waits := recordWaits(p)

	job, err := p.Poll(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, job.Status)
	require.NotNil(t, job.Result)
	assert.Equal(t, 4, f.calls, "no fetch beyond the terminal one")
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second, 2 * time.Second}, *waits)
}

func TestPoll_FailedIsTerminal(t *testing.T) {
	f := &scriptedFetcher{statuses: []model.JobStatus{model.JobStatusProcessing, model.JobStatusFailed}}
	p := NewPoller(f, Config{MaxAttempts: 5}, nil)
	recordWaits(p)

	job, err := p.Poll(context.Background(), "job-1")
	require.NoError(t, err, "a failed job is a result, not a poll error")
	assert.Equal(t, "bad csv", job.Error)
	assert.Equal(t, 2, f.calls)
}

func TestPoll_Timeout(t *testing.T) {
	f := &scriptedFetcher{statuses: []model.JobStatus{model.JobStatusProcessing}}
	p := NewPoller(f, Config{MaxAttempts: 3, Interval: time.Millisecond}, nil)
	waits := recordWaits(p)

	_, err := p.Poll(context.Background(), "job-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrPollingTimeout))
	var pte *model.PollingTimeoutError
	require.True(t, errors.As(err, &pte))
	assert.Equal(t, 3, pte.Attempts)
	assert.Equal(t, 3, f.calls, "exactly MaxAttempts fetches")
	assert.Len(t, *waits, 2, "no wait after the last attempt")
}

func TestPoll_UnknownStatus(t *testing.T) {
	t.Run("continue", func(t *testing.T) {
		f := &scriptedFetcher{statuses: []model.JobStatus{"queued_gpu", model.JobStatusCompleted}}
		p := NewPoller(f, Config{MaxAttempts: 5, UnknownStatus: ContinueOnUnknown}, nil)
		recordWaits(p)

		job, err := p.Poll(context.Background(), "job-1")
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusCompleted, job.Status)
		assert.Equal(t, 2, f.calls)
	})

	t.Run("fail", func(t *testing.T) {
		f := &scriptedFetcher{statuses: []model.JobStatus{model.JobStatusPending, "queued_gpu", model.JobStatusCompleted}}
		p := NewPoller(f, Config{MaxAttempts: 5, UnknownStatus: FailOnUnknown}, nil)
		recordWaits(p)

		_, err := p.Poll(context.Background(), "job-1")
		var use *model.UnknownStatusError
		require.True(t, errors.As(err, &use), "got %v", err)
		assert.Equal(t, model.JobStatus("queued_gpu"), use.Status)
		assert.Equal(t, 2, f.calls)
	})
}

func TestPoll_FetchErrorAborts(t *testing.T) {
	boom := &model.ServerError{StatusCode: 404, Detail: "job not found"}
	f := &scriptedFetcher{err: boom}
	p := NewPoller(f, DefaultConfig(), nil)
	recordWaits(p)

	_, err := p.Poll(context.Background(), "job-x")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, f.calls)
}

func TestPoll_ContextCancelled(t *testing.T) {
	f := &scriptedFetcher{statuses: []model.JobStatus{model.JobStatusPending}}
	p := NewPoller(f, Config{MaxAttempts: 100, Interval: time.Hour}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	var observed int
	p.cfg.OnStatus = func(attempt int, _ *model.InferenceJob) {
		observed = attempt
		cancel()
	}

	_, err := p.Poll(ctx, "job-1")
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, model.ErrPollingTimeout))
	assert.Equal(t, 1, observed)
}

func TestPoll_Deadline(t *testing.T) {
	f := &scriptedFetcher{statuses: []model.JobStatus{model.JobStatusProcessing}}
	p := NewPoller(f, Config{MaxAttempts: 1000, Interval: 5 * time.Millisecond, Deadline: 30 * time.Millisecond}, nil)

	_, err := p.Poll(context.Background(), "job-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrPollingTimeout), "got %v", err)
	assert.Less(t, f.calls, 1000)
}

func TestSleep(t *testing.T) {
	require.NoError(t, sleep(context.Background(), time.Millisecond))
	require.NoError(t, sleep(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleep(ctx, time.Hour), context.Canceled)
}
