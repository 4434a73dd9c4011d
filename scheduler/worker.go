package scheduler

import (
	"context"
	"time"

	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/sam"

	"github.com/heathsc/lbtools/alignment"
	"github.com/heathsc/lbtools/bincounter"
	"github.com/heathsc/lbtools/contigtable"
	"github.com/heathsc/lbtools/gcindex"
	"github.com/heathsc/lbtools/gcnorm"
	"github.com/heathsc/lbtools/readfilter"
	"github.com/heathsc/lbtools/sampletable"
	"github.com/heathsc/lbtools/track"
)

// waitInterval is the fixed sleep a worker takes on a JobWait reply, per
// spec 4.4 ("Wait semantics ... implemented as a fixed sleep, not a
// timeout").
const waitInterval = 5 * time.Second

// FilterConfig carries the parameters readfilter.New needs; a fresh
// *readfilter.Filter is built per read job, since duplicate detection
// state is only meaningful within one position-sorted scan.
type FilterConfig struct {
	MinMAPQ        byte
	MinBaseQual    byte
	HasLenBand     bool
	MinTemplateLen int
	MaxTemplateLen int
	KeepDuplicates bool
	IgnoreDupFlag  bool
}

func (fc FilterConfig) newFilter() *readfilter.Filter {
	return readfilter.New(fc.MinMAPQ, fc.MinBaseQual, fc.HasLenBand, fc.MinTemplateLen, fc.MaxTemplateLen, fc.KeepDuplicates, fc.IgnoreDupFlag)
}

// Env is the read-only, shared environment every worker operates against:
// the sample and contig tables, the GC index, block size, the read filter
// configuration and the output location. It is built once by the driver
// and handed to every worker goroutine.
type Env struct {
	Samples   *sampletable.Table
	Contigs   *contigtable.Table
	GCIndex   *gcindex.Index
	BlockSize uint64
	Filter    FilterConfig
	OutDir    string
	Prefix    string
}

// handle is a worker's currently-open alignment file, reused across
// consecutive JobRead jobs targeting the same sample (spec 4.4
// "read-locality").
type handle struct {
	sampleIdx int
	indexed   *alignment.Indexed
	whole     *alignment.Source
}

func (h *handle) close() {
	if h == nil {
		return
	}
	if h.indexed != nil {
		h.indexed.Close() // nolint: errcheck
	}
	if h.whole != nil {
		h.whole.Close() // nolint: errcheck
	}
}

// RunWorker drives one worker goroutine: it requests jobs from the
// controller over requests/replies until it receives a nil job, performing
// whatever read/normalise/output work each job describes against env.
func RunWorker(ctx context.Context, taskIdx int, env *Env, requests chan<- JobRequest, replies <-chan *Job) error {
	var (
		prev          Completed
		readSample    int
		hasReadSample bool
		h             *handle
	)
	defer func() {
		h.close()
	}()

	for {
		req := JobRequest{Prev: prev, SampleIdx: readSample, HasSample: hasReadSample, TaskIdx: taskIdx}
		select {
		case <-ctx.Done():
			return nil
		case requests <- req:
		}

		var job *Job
		var ok bool
		select {
		case <-ctx.Done():
			return nil
		case job, ok = <-replies:
		}
		if !ok || job == nil {
			return nil
		}

		switch job.Kind {
		case JobWait:
			time.Sleep(waitInterval)
			prev = Completed{}

		case JobRead:
			raw, err := doRead(ctx, env, job, &h)
			if err != nil {
				return err
			}
			readSample, hasReadSample = job.SampleIdx, true
			prev = Completed{Kind: CompletedRawCounts, SampleIdx: job.SampleIdx, Raw: raw}

		case JobNormalize:
			norm, err := gcnorm.Normalize(env.Contigs, env.GCIndex, env.BlockSize, job.ToNormalize)
			if err != nil {
				return err
			}
			prev = Completed{Kind: CompletedNormalized, SampleIdx: job.SampleIdx, Norm: norm}

		case JobOutput:
			sampleName := env.Samples.Samples[job.SampleIdx].Name
			if err := track.EnsureSampleDir(env.OutDir, sampleName); err != nil {
				return err
			}
			path := track.SamplePath(env.OutDir, env.Prefix, sampleName, job.OutputContig)
			if err := track.WriteContig(ctx, path, job.OutputContig, env.BlockSize, job.OutputCov); err != nil {
				return err
			}
			prev = Completed{}
		}
	}
}

// doRead performs one JobRead: either a single indexed contig (job.HasContig)
// or, for an unindexed input, one whole-file streaming pass covering every
// target contig at once.
func doRead(ctx context.Context, env *Env, job *Job, hp **handle) (RawCounts, error) {
	sample := env.Samples.Samples[job.SampleIdx]
	if *hp == nil || (*hp).sampleIdx != job.SampleIdx {
		(*hp).close()
		*hp = nil
	}

	if job.HasContig {
		return readIndexedContig(env, sample.Path, job.SampleIdx, job.Contig, hp)
	}
	return readWholeFile(ctx, env, sample.Path, job.SampleIdx, hp)
}

func readIndexedContig(env *Env, path string, sampleIdx int, contig string, hp **handle) (RawCounts, error) {
	if *hp == nil {
		idx, err := alignment.OpenIndexed(path)
		if err != nil {
			return nil, err
		}
		*hp = &handle{sampleIdx: sampleIdx, indexed: idx}
	}
	h := *hp

	seqLen, ok := alignment.RefLen(h.indexed.Header(), contig)
	if !ok {
		log.Error.Printf("scheduler: contig %s absent from alignment header, skipping", contig)
		return RawCounts{contig: bincounter.New(0, int(env.BlockSize))}, nil
	}

	counter := bincounter.New(seqLen, int(env.BlockSize))
	f := env.Filter.newFilter()
	err := h.indexed.ForEachInContig(contig, func(rec *sam.Record) error {
		return countRecord(f, counter, rec, env.Filter.MinBaseQual, contig)
	})
	if err != nil {
		return nil, err
	}
	return RawCounts{contig: counter}, nil
}

func readWholeFile(ctx context.Context, env *Env, path string, sampleIdx int, hp **handle) (RawCounts, error) {
	src, err := alignment.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer src.Close() // nolint: errcheck
	*hp = &handle{sampleIdx: sampleIdx}

	counters := make(RawCounts, env.Contigs.Len())
	lens := make(map[string]int, env.Contigs.Len())
	for _, id := range env.Contigs.All() {
		name := env.Contigs.Name(id)
		l, ok := alignment.RefLen(src.Header(), name)
		if !ok {
			log.Error.Printf("scheduler: contig %s absent from alignment header, skipping", name)
			continue
		}
		lens[name] = l
		counters[name] = bincounter.New(l, int(env.BlockSize))
	}

	f := env.Filter.newFilter()
	err = alignment.ForEach(src, func(rec *sam.Record) error {
		if rec.Ref == nil {
			return nil
		}
		name := rec.Ref.Name()
		counter, ok := counters[name]
		if !ok {
			return nil // contig not in the target set: discard
		}
		return countRecord(f, counter, rec, env.Filter.MinBaseQual, name)
	})
	if err != nil {
		return nil, err
	}
	for _, id := range env.Contigs.All() {
		name := env.Contigs.Name(id)
		if _, ok := counters[name]; !ok {
			counters[name] = bincounter.New(0, int(env.BlockSize))
		}
	}
	return counters, nil
}

func countRecord(f *readfilter.Filter, counter *bincounter.Counter, rec *sam.Record, minQual byte, contig string) error {
	if !f.Pass(rec) {
		return nil
	}
	if bincounter.Disjoint(rec) {
		log.Error.Printf("bincounter: skipping disjoint misflagged proper pair on %s at %d", contig, rec.Pos)
		return nil
	}
	counter.Add(rec, minQual)
	return nil
}
