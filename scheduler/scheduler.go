// Package scheduler coordinates jobs between a controller goroutine and a
// pool of worker goroutines reading, normalising and writing out samples.
//
// Workers request jobs from and return results to the controller over a
// pair of channels. On every request a worker hands back the result of its
// previous job (if any) and gets a new one in exchange; an empty reply
// means the worker should exit. Workers are loosely pinned to the sample
// they were last reading to avoid excessive file open/close churn: the
// controller first checks whether more contigs are pending for that same
// sample before handing out an unrelated one.
package scheduler

import (
	"context"

	"github.com/heathsc/lbtools/bincounter"
)

// JobKind enumerates the kinds of work the controller can hand out.
type JobKind int

const (
	// JobRead asks a worker to read one contig (or, for an unindexed input,
	// every contig) of a sample.
	JobRead JobKind = iota
	// JobNormalize asks a worker to GC-normalise every contig of a sample
	// whose raw counts are all in hand.
	JobNormalize
	// JobOutput asks a worker to write out one already-normalised contig.
	JobOutput
	// JobWait tells a worker no job is available right now, but more will
	// be: it should request again rather than exit.
	JobWait
)

// RawCounts holds one sample's per-contig raw coverage, keyed by contig
// name, as produced by bincounter.
type RawCounts map[string]*bincounter.Counter

// NormalizedContig is one contig's coverage after GC normalisation, paired
// with its raw counts for downstream reporting.
type NormalizedContig struct {
	Bins []float64
	Raw  *bincounter.Counter
}

// NormCov holds one sample's per-contig normalised coverage.
type NormCov map[string]NormalizedContig

// Job is what the controller sends to a worker in response to a JobRequest.
type Job struct {
	SampleIdx int
	Kind      JobKind

	// Populated for JobRead. HasContig is false for an unindexed input,
	// meaning "read every contig in one pass".
	Contig    string
	HasContig bool

	// Populated for JobNormalize.
	ToNormalize RawCounts

	// Populated for JobOutput.
	OutputContig string
	OutputCov    NormalizedContig
}

// CompletedKind enumerates the outcomes a worker can report back.
type CompletedKind int

const (
	CompletedNone CompletedKind = iota
	CompletedRawCounts
	CompletedNormalized
)

// Completed is what a worker sends back describing the result of its
// previous job.
type Completed struct {
	Kind      CompletedKind
	SampleIdx int
	Raw       RawCounts // one contig's worth, for CompletedRawCounts
	Norm      NormCov
}

// JobRequest is sent by a worker to ask for its next job.
type JobRequest struct {
	Prev      Completed
	SampleIdx int // the sample the worker was last reading, if any
	HasSample bool
	TaskIdx   int // identifies which reply channel to answer on
}

// Config is the read-only view of the run the controller needs: how many
// samples and contigs there are, and how many concurrent readers are
// allowed.
type Config interface {
	NumSamples() int
	ContigNames() []string
	NumReaders() int
	InputIndexed(sampleIdx int) bool
}

// tracker counts jobs that have been handed out but whose results have not
// yet come back, so the controller knows when it is safe to report that
// all work is done.
type tracker struct {
	readPending      int
	normalizePending int
}

func (t *tracker) updateAtSend(j *Job) {
	switch j.Kind {
	case JobRead:
		t.readPending++
	case JobNormalize:
		t.normalizePending++
	}
}

func (t *tracker) updateAtRecv(c Completed) {
	switch c.Kind {
	case CompletedRawCounts:
		t.readPending--
	case CompletedNormalized:
		t.normalizePending--
	}
}

func (t *tracker) pending() bool {
	return t.readPending > 0 || t.normalizePending > 0
}

// inputFile tracks which contigs remain to be read for one sample.
type inputFile struct {
	sampleIdx int
	indexed   bool
	contigs   []string
	next      int
	finished  bool
}

func newInputFile(sampleIdx int, indexed bool, contigs []string) *inputFile {
	return &inputFile{sampleIdx: sampleIdx, indexed: indexed, contigs: contigs}
}

func (f *inputFile) nextJob() *Job {
	if f.finished {
		return nil
	}
	if !f.indexed {
		f.finished = true
		return &Job{SampleIdx: f.sampleIdx, Kind: JobRead}
	}
	if f.next >= len(f.contigs) {
		f.finished = true
		return nil
	}
	c := f.contigs[f.next]
	f.next++
	return &Job{SampleIdx: f.sampleIdx, Kind: JobRead, Contig: c, HasContig: true}
}

// getNewReadJob scans files starting at *idx, wrapping around once, for
// the first one with contigs left to read.
func getNewReadJob(files []*inputFile, idx *int) *Job {
	l := len(files)
	for i := 0; i < l; i++ {
		if !files[*idx].finished {
			break
		}
		*idx = (*idx + 1) % l
	}
	job := files[*idx].nextJob()
	*idx = (*idx + 1) % l
	return job
}

// ongoingOutput walks the per-contig normalised coverage of one sample,
// handing out one JobOutput per call until exhausted.
type ongoingOutput struct {
	sampleIdx int
	remaining []string
	cov       NormCov
}

func newOngoingOutput(sampleIdx int, nc NormCov) *ongoingOutput {
	names := make([]string, 0, len(nc))
	for name := range nc {
		names = append(names, name)
	}
	return &ongoingOutput{sampleIdx: sampleIdx, remaining: names, cov: nc}
}

func (o *ongoingOutput) nextJob() *Job {
	if len(o.remaining) == 0 {
		return nil
	}
	name := o.remaining[len(o.remaining)-1]
	o.remaining = o.remaining[:len(o.remaining)-1]
	return &Job{
		SampleIdx:    o.sampleIdx,
		Kind:         JobOutput,
		OutputContig: name,
		OutputCov:    o.cov[name],
	}
}

type pendingNorm struct {
	sampleIdx int
	counts    RawCounts
}

type pendingOutput struct {
	sampleIdx int
	cov       NormCov
}

// Controller runs the main dispatch loop: it receives a JobRequest from
// requests, folds the worker's previous result into run state, decides the
// next job by priority (continue the worker's own sample; continue an
// in-progress output; start a newly-ready output; start a newly-ready
// normalisation; hand out a fresh read; else Wait or finish), and sends the
// job back on replies[req.TaskIdx]. It returns when requests is closed or
// ctx is cancelled (the latter is how a worker error unwinds the whole
// run: the driver cancels ctx, and the controller's blocking send to a
// possibly-already-exited worker is abandoned rather than left to hang
// forever, matching spec 5's "channels are dropped" cancellation model).
func Controller(ctx context.Context, cfg Config, requests <-chan JobRequest, replies []chan<- *Job) {
	ns := cfg.NumSamples()
	nc := len(cfg.ContigNames())

	files := make([]*inputFile, ns)
	for i := 0; i < ns; i++ {
		files[i] = newInputFile(i, cfg.InputIndexed(i), cfg.ContigNames())
	}
	fileIdx := 0

	var track tracker
	sampleData := make([]RawCounts, ns)
	var pendingNorms []pendingNorm
	var pendingOutputs []pendingOutput
	var ongoing *ongoingOutput

	for {
		var req JobRequest
		select {
		case <-ctx.Done():
			return
		case r, ok := <-requests:
			if !ok {
				return
			}
			req = r
		}
		track.updateAtRecv(req.Prev)

		switch req.Prev.Kind {
		case CompletedRawCounts:
			d := sampleData[req.SampleIdx]
			if d == nil {
				d = make(RawCounts, nc)
			}
			for k, v := range req.Prev.Raw {
				d[k] = v
			}
			if len(d) == nc {
				pendingNorms = append(pendingNorms, pendingNorm{req.SampleIdx, d})
				sampleData[req.SampleIdx] = nil
			} else {
				sampleData[req.SampleIdx] = d
			}
		case CompletedNormalized:
			pendingOutputs = append(pendingOutputs, pendingOutput{req.SampleIdx, req.Prev.Norm})
		}

		newReads := track.readPending < cfg.NumReaders()

		var job *Job
		if newReads && req.HasSample {
			job = files[req.SampleIdx].nextJob()
		}
		if job == nil && ongoing != nil {
			job = ongoing.nextJob()
		}
		if job == nil && len(pendingOutputs) > 0 {
			last := pendingOutputs[len(pendingOutputs)-1]
			pendingOutputs = pendingOutputs[:len(pendingOutputs)-1]
			ongoing = newOngoingOutput(last.sampleIdx, last.cov)
			job = ongoing.nextJob()
		}
		if job == nil && len(pendingNorms) > 0 {
			last := pendingNorms[len(pendingNorms)-1]
			pendingNorms = pendingNorms[:len(pendingNorms)-1]
			job = &Job{SampleIdx: last.sampleIdx, Kind: JobNormalize, ToNormalize: last.counts}
		}
		if job == nil {
			if newReads {
				job = getNewReadJob(files, &fileIdx)
			}
			if job == nil {
				if track.pending() {
					job = &Job{Kind: JobWait}
				}
			}
		}

		if job != nil {
			track.updateAtSend(job)
		}
		select {
		case <-ctx.Done():
			return
		case replies[req.TaskIdx] <- job:
		}
	}
}
