package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heathsc/lbtools/bincounter"
	"github.com/heathsc/lbtools/scheduler"
)

type fakeConfig struct {
	contigs []string
	indexed bool
}

func (c *fakeConfig) NumSamples() int        { return 1 }
func (c *fakeConfig) ContigNames() []string  { return c.contigs }
func (c *fakeConfig) NumReaders() int        { return 1 }
func (c *fakeConfig) InputIndexed(int) bool  { return c.indexed }

// TestControllerBasicDispatchSequence exercises spec 8's "Scheduler basic"
// worked example: with 1 worker, 1 sample and 2 target contigs on an
// indexed input, the controller issues exactly 2 ReadData jobs, then one
// NormalizeSample, then OutputSampleCtg jobs until the pending output is
// drained, then nil (telling the worker to exit). Output ordering within a
// sample is unspecified (LIFO is permitted), so only the job kind sequence
// and the set of output contigs are asserted.
func TestControllerBasicDispatchSequence(t *testing.T) {
	cfg := &fakeConfig{contigs: []string{"chr1", "chr2"}, indexed: true}

	requests := make(chan scheduler.JobRequest, 1)
	reply := make(chan *scheduler.Job, 1)
	replies := []chan<- *scheduler.Job{reply}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go scheduler.Controller(ctx, cfg, requests, replies)

	send := func(req scheduler.JobRequest) *scheduler.Job {
		select {
		case requests <- req:
		case <-time.After(time.Second):
			t.Fatal("timed out sending request")
		}
		select {
		case job := <-reply:
			return job
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for reply")
			return nil
		}
	}

	// Initial request: no previous job, not yet pinned to a sample.
	job1 := send(scheduler.JobRequest{TaskIdx: 0})
	require.NotNil(t, job1)
	assert.Equal(t, scheduler.JobRead, job1.Kind)
	assert.Equal(t, "chr1", job1.Contig)

	job2 := send(scheduler.JobRequest{
		Prev:      scheduler.Completed{Kind: scheduler.CompletedRawCounts, SampleIdx: 0, Raw: scheduler.RawCounts{"chr1": bincounter.New(100, 100)}},
		SampleIdx: 0,
		HasSample: true,
		TaskIdx:   0,
	})
	require.NotNil(t, job2)
	assert.Equal(t, scheduler.JobRead, job2.Kind)
	assert.Equal(t, "chr2", job2.Contig)

	job3 := send(scheduler.JobRequest{
		Prev:      scheduler.Completed{Kind: scheduler.CompletedRawCounts, SampleIdx: 0, Raw: scheduler.RawCounts{"chr2": bincounter.New(100, 100)}},
		SampleIdx: 0,
		HasSample: true,
		TaskIdx:   0,
	})
	require.NotNil(t, job3)
	assert.Equal(t, scheduler.JobNormalize, job3.Kind)
	require.Len(t, job3.ToNormalize, 2)

	norm := scheduler.NormCov{
		"chr1": scheduler.NormalizedContig{Bins: []float64{1.0}},
		"chr2": scheduler.NormalizedContig{Bins: []float64{1.0}},
	}
	job4 := send(scheduler.JobRequest{
		Prev:      scheduler.Completed{Kind: scheduler.CompletedNormalized, SampleIdx: 0, Norm: norm},
		SampleIdx: 0,
		HasSample: true,
		TaskIdx:   0,
	})
	require.NotNil(t, job4)
	assert.Equal(t, scheduler.JobOutput, job4.Kind)

	job5 := send(scheduler.JobRequest{SampleIdx: 0, HasSample: true, TaskIdx: 0})
	require.NotNil(t, job5)
	assert.Equal(t, scheduler.JobOutput, job5.Kind)

	seen := map[string]bool{job4.OutputContig: true, job5.OutputContig: true}
	assert.True(t, seen["chr1"])
	assert.True(t, seen["chr2"])

	job6 := send(scheduler.JobRequest{SampleIdx: 0, HasSample: true, TaskIdx: 0})
	assert.Nil(t, job6)
}
