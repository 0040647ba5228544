package sequence

import (
	"context"
	"fmt"
)

// task processes a single filtered frame: read, transform and hand-off to
// every output writer. The admission credit was acquired by the dispatcher
// before the task started. Every path through a task delivers exactly one
// pending write per writer - a real frame or a skip marker - and keeps
// admission acquire/release paired, otherwise the writers stall on a gap
// or the run livelocks on a leaked credit.
func (r *run) task(ctx context.Context, pos Pos) error {
	if r.aborted() {
		r.adm.release()
		r.skip(pos.Output)
		return nil
	}
	f, err := r.src.ReadFrame(ctx, pos.Input)
	if err != nil {
		r.adm.release()
		return r.fail(pos, fmt.Errorf("read frame %d: %w", pos.Input, err))
	}
	r.configureOnce(f.Props)
	frames, err := r.tr.TransformOne(ctx, f, pos)
	if err != nil {
		r.release(f)
		r.adm.release()
		return r.fail(pos, fmt.Errorf("transform frame %d: %w", pos.Input, err))
	}
	if err := validFrames(frames, len(r.writers)); err != nil {
		r.abort(err)
		for _, of := range frames {
			if of == f {
				f = nil
			}
			r.release(of)
		}
		r.release(f)
		r.adm.release()
		r.skip(pos.Output)
		return err
	}
	for i := range r.writers {
		r.writers[i].enqueue(pendingWrite{pos: pos.Output, frame: frames[i]})
	}
	return nil
}

// validFrames verifies the transform emitted exactly one frame per output.
// A nil frame is rejected like a wrong count: skip markers are engine
// internal, and a nil slipping through as one would hold the slot's
// admission credit forever.
func validFrames(frames []*Frame, outputs int) error {
	if len(frames) != outputs {
		return fmt.Errorf("sequence: transform returned %d frames for %d outputs", len(frames), outputs)
	}
	for i, f := range frames {
		if f == nil {
			return fmt.Errorf("sequence: transform returned no frame for output %d", i)
		}
	}
	return nil
}

// fail records a soft per-frame failure, or escalates it to an abort when
// the run stops on error.
func (r *run) fail(pos Pos, err error) error {
	r.counters.failed.Add(1)
	r.log.Info(fmt.Sprintf("run %s: frame %d failed: %v", r.id, pos.Input, err))
	r.skip(pos.Output)
	r.progress()
	if r.stopOnError {
		r.abort(err)
		return err
	}
	return nil
}

// skip notifies every writer that the slot will not be written. Skip
// markers carry no admission credit.
func (r *run) skip(output int) {
	for i := range r.writers {
		r.writers[i].enqueue(pendingWrite{pos: output})
	}
}
