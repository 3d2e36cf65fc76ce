package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/i474232898/weather-ingest/internal/weather"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeRunner struct {
	mu        sync.Mutex
	reqs      []weather.Request
	deadlines []time.Time
	err       error
	calls     chan struct{}
}

func (f *fakeRunner) Run(ctx context.Context, req weather.Request) (weather.Summary, error) {
	deadline, _ := ctx.Deadline()
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.deadlines = append(f.deadlines, deadline)
	f.mu.Unlock()
	if f.calls != nil {
		select {
		case f.calls <- struct{}{}:
		default:
		}
	}
	if f.err != nil {
		return weather.Summary{}, f.err
	}
	return weather.Summary{RunID: "run_20240103T120000Z", Processed: 3}, nil
}

func testConfig() Config {
	return Config{
		Location:  weather.Location{Latitude: 13.0827, Longitude: 80.2707},
		Variables: weather.NewVariableSet("temperature_2m"),
		Interval:  time.Hour,
		Window:    48 * time.Hour,
	}
}

func TestRequestUsesTrailingWindow(t *testing.T) {
	s := New(testConfig(), &fakeRunner{}, nil)

	req := s.Request(time.Date(2024, 1, 3, 12, 30, 0, 0, time.UTC))
	assert.Equal(t, "2024-01-01", req.Range.StartDate())
	assert.Equal(t, "2024-01-03", req.Range.EndDate())
	assert.Equal(t, "temperature_2m", req.Variables.String())
	require.NoError(t, req.Validate())
}

func TestRunOnceReportsResult(t *testing.T) {
	runner := &fakeRunner{}
	s := New(testConfig(), runner, nil)
	s.now = func() time.Time { return time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC) }

	var got weather.Summary
	var gotErr error
	s.OnResult(func(sum weather.Summary, err error) { got, gotErr = sum, err })

	s.runOnce(context.Background())

	require.NoError(t, gotErr)
	assert.Equal(t, "run_20240103T120000Z", got.RunID)
	require.Len(t, runner.reqs, 1)
	assert.Equal(t, "2024-01-01", runner.reqs[0].Range.StartDate())
}

func TestRunOnceReportsError(t *testing.T) {
	boom := errors.New("upstream down")
	s := New(testConfig(), &fakeRunner{err: boom}, nil)

	var gotErr error
	s.OnResult(func(_ weather.Summary, err error) { gotErr = err })
	s.runOnce(context.Background())

	assert.ErrorIs(t, gotErr, boom)
}

func TestRunOnceBoundsRunByTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.Timeout = time.Hour
	runner := &fakeRunner{}
	s := New(cfg, runner, nil)

	before := time.Now()
	s.runOnce(context.Background())

	require.Len(t, runner.deadlines, 1)
	assert.WithinDuration(t, before.Add(time.Hour), runner.deadlines[0], time.Minute)
}

func TestRunOnceWithoutTimeoutHasNoDeadline(t *testing.T) {
	runner := &fakeRunner{}
	s := New(testConfig(), runner, nil)

	s.runOnce(context.Background())

	require.Len(t, runner.deadlines, 1)
	assert.True(t, runner.deadlines[0].IsZero())
}

func TestStartRunsImmediatelyAndStops(t *testing.T) {
	runner := &fakeRunner{calls: make(chan struct{}, 1)}
	s := New(testConfig(), runner, nil)

	require.NoError(t, s.Start())
	select {
	case <-runner.calls:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled job did not run")
	}
	s.Stop()
}

func TestStartRejectsZeroInterval(t *testing.T) {
	cfg := testConfig()
	cfg.Interval = 0
	s := New(cfg, &fakeRunner{}, nil)

	assert.Error(t, s.Start())
}
