package scheduler

import (
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name string
	runs atomic.Int32
	err  error
}

func (j *countingJob) Name() string { return j.name }
func (j *countingJob) Run() error {
	j.runs.Add(1)
	return j.err
}

func TestRunNow_ExecutesJobImmediatelyOutsideCron(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{name: "weekly-rebalance"}

	require.NoError(t, s.RunNow(job))
	assert.EqualValues(t, 1, job.runs.Load())
}

func TestAddJob_RejectsInvalidSchedule(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{name: "weekly-rebalance"}

	err := s.AddJob("not a cron expression", job)
	assert.Error(t, err)
}

func TestAddJob_AcceptsValidSchedule(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{name: "weekly-rebalance"}

	err := s.AddJob("0 0 9 * * MON", job)
	assert.NoError(t, err)
}
