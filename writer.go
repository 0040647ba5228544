package sequence

import (
	"container/heap"
	"context"
	"fmt"
)

// pendingWrite is a completed slot waiting for its turn at the container.
// A nil frame is a skip marker: the slot failed upstream and must be passed
// over without writing, preserving index continuity.
type pendingWrite struct {
	pos   int
	frame *Frame
}

// pendingHeap keeps out-of-order arrivals ordered by position, so the
// writer picks the next due slot in O(log n) instead of scanning a waiting
// list.
type pendingHeap []pendingWrite

func (h pendingHeap) Len() int            { return len(h) }
func (h pendingHeap) Less(i, j int) bool  { return h[i].pos < h[j].pos }
func (h pendingHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *pendingHeap) Push(x interface{}) { *h = append(*h, x.(pendingWrite)) }
func (h *pendingHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// outputWriter drains completed slots into a single container in strict
// ascending order. Exactly one goroutine writes per container - the
// underlying formats forbid concurrent writers - while enqueue may be
// called from any worker in any order, exactly once per position.
type outputWriter struct {
	out     Writer
	in      chan pendingWrite
	pending pendingHeap
	total   int
	next    int
	written int

	abortc  <-chan struct{}
	confirm func(pos int)                 // write confirmation, gates credit release
	release func(f *Frame)                // buffer hand-back after persisting
	count   func(counter string, v int64) // run metrics
}

func newOutputWriter(out Writer, total int) *outputWriter {
	return &outputWriter{
		out: out,
		// buffered for the whole run: enqueue never blocks a worker,
		// memory pressure is already bounded by admission credits.
		in:    make(chan pendingWrite, total),
		total: total,
	}
}

// enqueue hands a completed slot over to the writer goroutine.
func (w *outputWriter) enqueue(pw pendingWrite) {
	w.in <- pw
}

// run starts the writer goroutine. The returned channel carries the first
// write failure and is closed when the writer is done.
func (w *outputWriter) run(ctx context.Context) <-chan error {
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		for w.next < w.total {
			if len(w.pending) > 0 && w.pending[0].pos == w.next {
				pw := heap.Pop(&w.pending).(pendingWrite)
				if err := w.write(ctx, pw); err != nil {
					errc <- err
					return
				}
				continue
			}
			select {
			case pw := <-w.in:
				if pw.pos == w.next {
					if err := w.write(ctx, pw); err != nil {
						errc <- err
						return
					}
				} else {
					heap.Push(&w.pending, pw)
				}
			case <-w.abortc:
				return
			}
		}
	}()
	return errc
}

// drain releases frames that completed but never reached the container
// because the run aborted. Must be called after the writer goroutine and
// all workers are done: the heap and the channel are quiescent then.
func (w *outputWriter) drain() {
	for len(w.pending) > 0 {
		pw := heap.Pop(&w.pending).(pendingWrite)
		w.release(pw.frame)
	}
	for {
		select {
		case pw := <-w.in:
			w.release(pw.frame)
		default:
			return
		}
	}
}

// write persists one due slot and advances the cursor. Skip markers only
// advance; containers that track gaps get notified through SkipWriter.
func (w *outputWriter) write(ctx context.Context, pw pendingWrite) error {
	if pw.frame == nil {
		if s, ok := w.out.(SkipWriter); ok {
			if err := s.WriteSkip(pw.pos); err != nil {
				return fmt.Errorf("skip slot %d: %w", pw.pos, err)
			}
		}
		w.count(SkipCounter, 1)
		w.next++
		return nil
	}
	if err := w.out.WriteFrame(ctx, pw.frame, pw.pos); err != nil {
		w.release(pw.frame)
		return fmt.Errorf("write slot %d: %w", pw.pos, err)
	}
	w.count(FrameCounter, 1)
	w.count(ByteCounter, int64(len(pw.frame.Pix)))
	w.release(pw.frame)
	w.written++
	w.next++
	w.confirm(pw.pos)
	return nil
}
