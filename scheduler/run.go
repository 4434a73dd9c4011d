package scheduler

import (
	"context"
	"sync"

	"github.com/grailbio/base/errors"

	"github.com/heathsc/lbtools/alignment"
)

// envConfig adapts an Env to the Config interface the Controller needs.
type envConfig struct {
	env         *Env
	numReaders  int
	contigNames []string
	indexed     []bool
}

func newEnvConfig(env *Env, numReaders int) *envConfig {
	names := make([]string, 0, env.Contigs.Len())
	for _, id := range env.Contigs.All() {
		names = append(names, env.Contigs.Name(id))
	}
	indexed := make([]bool, env.Samples.Len())
	for i, s := range env.Samples.Samples {
		indexed[i] = alignment.HasIndex(s.Path)
	}
	return &envConfig{env: env, numReaders: numReaders, contigNames: names, indexed: indexed}
}

func (c *envConfig) NumSamples() int        { return c.env.Samples.Len() }
func (c *envConfig) ContigNames() []string  { return c.contigNames }
func (c *envConfig) NumReaders() int        { return c.numReaders }
func (c *envConfig) InputIndexed(i int) bool { return c.indexed[i] }

// DefaultNumReaders implements the spec 4.4 default R = ceil((T+3)/4).
func DefaultNumReaders(threads int) int {
	return (threads + 3 + 3) / 4
}

// Run wires up the controller and a pool of worker goroutines over env,
// with the given thread count and reader cap, and blocks until every
// sample has been read, normalised and written out, or an error aborts the
// run. On any worker error the run's internal context is cancelled, which
// unblocks every other worker's next channel operation and the
// controller's next select, so the whole pool unwinds instead of hanging
// on a job that will never complete (spec 5's "channels are dropped"
// cancellation model, expressed with context cancellation rather than
// literally closing channels mid-flight). It returns the first error
// observed, annotated with the worker's task index (spec 5: "the top-level
// driver joins every thread and returns the first error observed").
func Run(parent context.Context, env *Env, threads, numReaders int) error {
	if threads < 1 {
		threads = 1
	}
	if numReaders < 1 {
		numReaders = 1
	}
	cfg := newEnvConfig(env, numReaders)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	requests := make(chan JobRequest, 8*threads)
	replies := make([]chan *Job, threads)
	sendReplies := make([]chan<- *Job, threads)
	for i := range replies {
		replies[i] = make(chan *Job, 1)
		sendReplies[i] = replies[i]
	}

	var once errors.Once
	var controllerWG, workerWG sync.WaitGroup

	controllerWG.Add(1)
	go func() {
		defer controllerWG.Done()
		Controller(ctx, cfg, requests, sendReplies)
	}()

	for i := 0; i < threads; i++ {
		workerWG.Add(1)
		go func(taskIdx int) {
			defer workerWG.Done()
			if err := RunWorker(ctx, taskIdx, env, requests, replies[taskIdx]); err != nil {
				once.Set(errors.E(err, "worker task", taskIdx))
				cancel()
			}
		}(i)
	}

	// Every worker exits on its own once the controller hands it a nil
	// job (normal completion) or ctx is cancelled (error unwind); once
	// they have all returned it is safe to cancel and let the controller's
	// select observe ctx.Done() and return too.
	workerWG.Wait()
	cancel()
	controllerWG.Wait()

	return once.Err()
}
