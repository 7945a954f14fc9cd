package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/paygate/internal/application/payment/usecases"
	"github.com/orris-inc/paygate/internal/shared/logger"
)

type countingJob struct {
	runs atomic.Int32
	err  error
}

func (j *countingJob) Execute(context.Context) (int, error) {
	j.runs.Add(1)
	return 1, j.err
}

type countingSweep struct {
	runs atomic.Int32
}

func (s *countingSweep) Sweep(context.Context) (*usecases.SweepReport, error) {
	s.runs.Add(1)
	return &usecases.SweepReport{Notified: 1}, nil
}

func TestSchedulerManager_ExpiryStartsImmediately(t *testing.T) {
	m, err := NewSchedulerManager(logger.NewNop())
	require.NoError(t, err)

	job := &countingJob{}
	sweep := &countingSweep{}
	require.NoError(t, m.RegisterExpiryJob(job, time.Hour))
	require.NoError(t, m.RegisterRecoverySweepJob(sweep, time.Hour))

	m.Start()
	m.Start()
	assert.True(t, m.IsStarted())

	assert.Eventually(t, func() bool { return job.runs.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(0), sweep.runs.Load(), "sweep waits one interval")

	require.NoError(t, m.Stop())
	assert.False(t, m.IsStarted())
	assert.NoError(t, m.Stop())
}

func TestSchedulerManager_RunHelpersSurviveErrors(t *testing.T) {
	m, err := NewSchedulerManager(logger.NewNop())
	require.NoError(t, err)

	job := &countingJob{err: errors.New("db down")}
	m.runExpiry(context.Background(), job)
	m.runSweep(context.Background(), &countingSweep{})
	assert.Equal(t, int32(1), job.runs.Load())
}

type recordingObserver struct {
	expired []int
	sweeps  []*usecases.SweepReport
}

func (o *recordingObserver) TransactionsExpired(n int) { o.expired = append(o.expired, n) }

func (o *recordingObserver) SweepCompleted(r *usecases.SweepReport) { o.sweeps = append(o.sweeps, r) }

func TestSchedulerManager_ReportsToObserver(t *testing.T) {
	m, err := NewSchedulerManager(logger.NewNop())
	require.NoError(t, err)
	obs := &recordingObserver{}
	m.SetObserver(obs)

	m.runExpiry(context.Background(), &countingJob{})
	m.runExpiry(context.Background(), &countingJob{err: errors.New("db down")})
	m.runSweep(context.Background(), &countingSweep{})

	assert.Equal(t, []int{1}, obs.expired, "failed runs are not reported")
	require.Len(t, obs.sweeps, 1)
	assert.Equal(t, 1, obs.sweeps[0].Notified)
}
