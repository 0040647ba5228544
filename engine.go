package sequence

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// run holds all state of a single engine execution. It is created per Run
// call and never outlives it, so two runs of the same engine share nothing.
type run struct {
	id          string
	src         Source
	tr          Transform
	outs        []Writer
	writers     []*outputWriter
	idx         []int // dense output index -> source index
	pool        int
	stopOnError bool

	adm       *admission
	available int64
	confOnce  sync.Once

	counters runCounters
	state    state

	// joint write confirmation: the credit of a frame is released only
	// once every output has persisted its slot for that position.
	jointMu   sync.Mutex
	remaining map[int]int

	abortc    chan struct{}
	abortOnce sync.Once
	errMu     sync.Mutex
	err       error

	releaser Releaser
	meter    Meter
	log      Logger
	observer Observer
}

// Run executes the transform over every included frame of the source and
// reassembles the results into the writers, one writer per frame emitted by
// the transform. It blocks until the run is finalized and returns the
// report together with the fatal error, if any.
func (e *Engine) Run(ctx context.Context, src Source, tr Transform, outputs ...Writer) (Report, error) {
	r := &run{
		id:          newUID(),
		src:         src,
		tr:          tr,
		outs:        outputs,
		pool:        e.parallelism,
		stopOnError: e.stopOnError,
		adm:         newAdmission(),
		remaining:   make(map[int]int),
		abortc:      make(chan struct{}),
		log:         e.log,
		observer:    e.observer,
	}
	if e.metric != nil {
		r.meter = e.metric.Meter(r.id)
	}
	if e.estimator != nil {
		r.available = e.estimator.AvailableBytes()
	}
	if err := r.prepare(ctx); err != nil {
		r.abort(err)
		return r.finalize(ctx, false)
	}
	r.dispatch(ctx)
	return r.finalize(ctx, true)
}

// prepare moves the run from init to prepared: filter the sequence, verify
// the outputs, let the transform allocate its resources.
func (r *run) prepare(ctx context.Context) error {
	if len(r.outs) == 0 {
		return ErrNoOutput
	}
	if rel, ok := r.src.(Releaser); ok {
		r.releaser = rel
	}
	r.counters.total = r.src.FrameCount()
	r.idx = filterIndexes(r.src)
	r.counters.excluded = r.counters.total - len(r.idx)
	if len(r.idx) == 0 {
		return ErrNothingToProcess
	}
	for i, out := range r.outs {
		if c, ok := out.(SpaceChecker); ok {
			if err := c.CheckSpace(len(r.idx)); err != nil {
				return fmt.Errorf("output %d: %w", i, err)
			}
		}
	}
	if err := r.tr.Prepare(ctx, RunInfo{ID: r.id, Frames: len(r.idx), Outputs: len(r.outs)}); err != nil {
		return fmt.Errorf("prepare transform: %w", err)
	}
	r.writers = make([]*outputWriter, len(r.outs))
	for i, out := range r.outs {
		w := newOutputWriter(out, len(r.idx))
		w.abortc = r.abortc
		w.confirm = r.confirm
		w.release = r.release
		w.count = r.count
		r.writers[i] = w
	}
	r.setState(statePrepared)
	r.status(fmt.Sprintf("processing %d of %d frames", len(r.idx), r.counters.total))
	return nil
}

// dispatch moves the run to running: start one writer goroutine per output,
// then fan the filtered frames out to the worker pool in ascending output
// order. Ordered dispatch keeps the writers' reorder buffers small for
// contiguous containers. Returns after workers and writers are done.
func (r *run) dispatch(ctx context.Context) {
	r.setState(stateRunning)
	r.progress()

	stop := context.AfterFunc(ctx, func() {
		r.abort(ctx.Err())
	})
	defer stop()

	errcs := make([]<-chan error, 0, len(r.writers))
	for _, w := range r.writers {
		errcs = append(errcs, w.run(ctx))
	}
	// a writer failure is fatal: abort so that blocked workers unwind
	// instead of waiting for credits the dead writer will never release.
	watched := make(chan struct{})
	go func() {
		defer close(watched)
		for err := range mergeErrors(errcs...) {
			r.abort(err)
		}
	}()

	g := new(errgroup.Group)
	g.SetLimit(r.pool)
	for k, in := range r.idx {
		pos := Pos{Output: k, Input: in}
		// the driver acquires the credit, not the worker: credits are
		// then granted in strictly ascending output order, so the
		// frames holding memory are always the ones the writers need
		// next. Workers acquiring on their own can deadlock a tight
		// budget by granting the last credit to a frame the writer
		// cannot write yet.
		if err := r.adm.acquire(); err != nil {
			r.skip(pos.Output)
			continue
		}
		g.Go(func() error {
			return r.task(ctx, pos)
		})
	}
	if err := g.Wait(); err != nil {
		r.abort(err)
	}
	<-watched
	// aborted runs leave completed frames stranded between workers and
	// containers; hand them back before finalize.
	for _, w := range r.writers {
		w.drain()
	}
}

// finalize closes the outputs according to the outcome, flushes the
// transform and reports the run summary.
func (r *run) finalize(ctx context.Context, prepared bool) (Report, error) {
	fatal := r.firstErr()
	snap := r.counters.snapshot()
	var outcome Outcome
	switch {
	case fatal != nil:
		outcome = Failed
	case snap.Failed == 0:
		outcome = Succeeded
	case snap.Converted > 0:
		outcome = Partial
	default:
		outcome = Failed
		fatal = fmt.Errorf("sequence: all %d frames failed", snap.Failed)
	}
	r.setState(outcome.state())

	var errs finalizeErrors
	for i, out := range r.outs {
		written := 0
		if r.writers != nil {
			written = r.writers[i].written
		}
		if outcome == Failed && out.ExpectedCount() >= 0 {
			// a fixed-count container cannot be shortened, delete
			// it instead of leaving a lying header behind.
			if err := out.Abort(); err != nil {
				errs = append(errs, fmt.Errorf("abort output %d: %w", i, err))
			}
			continue
		}
		if err := out.Close(written); err != nil {
			errs = append(errs, fmt.Errorf("close output %d: %w", i, err))
		}
	}
	if prepared {
		if err := r.tr.Finalize(ctx, snap); err != nil {
			errs = append(errs, fmt.Errorf("finalize transform: %w", err))
		}
	}
	if err := errs.ret(); err != nil {
		if fatal == nil {
			outcome = Failed
			fatal = err
		} else {
			fatal = fmt.Errorf("%w (finalize: %v)", fatal, err)
		}
	}
	r.setState(stateFinalized)
	report := Report{ID: r.id, Outcome: outcome, Counters: snap}
	r.log.Info(fmt.Sprintf("run %s %v: %d converted, %d failed, %d excluded",
		r.id, outcome, snap.Converted, snap.Failed, snap.Excluded))
	if r.observer != nil {
		r.observer.Finished(report)
	}
	return report, fatal
}

// confirm records that one output persisted the slot at pos. When the last
// output confirms, the frame is fully persisted: return its admission
// credit and count it as converted.
func (r *run) confirm(pos int) {
	r.jointMu.Lock()
	rem, ok := r.remaining[pos]
	if !ok {
		rem = len(r.writers)
	}
	rem--
	if rem > 0 {
		r.remaining[pos] = rem
		r.jointMu.Unlock()
		return
	}
	delete(r.remaining, pos)
	r.jointMu.Unlock()
	r.adm.release()
	r.counters.converted.Add(1)
	r.progress()
}

// configureOnce derives the admission bound from the first decoded frame.
// The estimate of that single frame is applied to the whole run; frames
// admitted before it stay admitted.
func (r *run) configureOnce(p Props) {
	r.confOnce.Do(func() {
		limit := activeBlocks(r.available, p.FrameBytes(), r.pool)
		if limit > 0 {
			r.adm.configure(limit)
			r.log.Debug(fmt.Sprintf("run %s: admission bound %d frames", r.id, limit))
		}
	})
}

// abort sets the shared abort flag once, keeps the first fatal error and
// unblocks admission waiters. Queued work short-circuits to skip markers,
// in-flight work finishes its current step and stops.
func (r *run) abort(err error) {
	r.abortOnce.Do(func() {
		r.errMu.Lock()
		r.err = err
		r.errMu.Unlock()
		close(r.abortc)
		r.adm.interrupt()
		r.log.Info(fmt.Sprintf("run %s aborted: %v", r.id, err))
	})
}

func (r *run) aborted() bool {
	select {
	case <-r.abortc:
		return true
	default:
		return false
	}
}

func (r *run) firstErr() error {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	return r.err
}

// release hands a frame buffer back to the source when it supports
// recycling.
func (r *run) release(f *Frame) {
	if r.releaser != nil && f != nil {
		r.releaser.Release(f)
	}
}

func (r *run) count(counter string, v int64) {
	if r.meter != nil {
		r.meter.Add(counter, v)
	}
}

func (r *run) progress() {
	if r.observer == nil {
		return
	}
	done := int(r.counters.converted.Load() + r.counters.failed.Load())
	r.observer.Progress(done, len(r.idx))
}

func (r *run) status(msg string) {
	if r.observer != nil {
		r.observer.Status(msg)
	}
}

func (r *run) setState(s state) {
	r.state = s
	r.log.Debug(fmt.Sprintf("run %s is %v", r.id, s))
}

// mergeErrors fans the writers' error channels into one channel. Only the
// first error is kept, the merged channel is closed once all writers are
// done.
func mergeErrors(errcs ...<-chan error) <-chan error {
	var wg sync.WaitGroup
	merged := make(chan error, 1)
	wg.Add(len(errcs))
	for _, ec := range errcs {
		go func(ec <-chan error) {
			defer wg.Done()
			if err, ok := <-ec; ok {
				select {
				case merged <- err:
				default:
				}
			}
		}(ec)
	}
	go func() {
		wg.Wait()
		close(merged)
	}()
	return merged
}
