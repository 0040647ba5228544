package sequence

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubOutput records the order of writes and skips it receives.
type stubOutput struct {
	mu     sync.Mutex
	writes []int
	skips  []int
	failOn int
	fixed  int
}

func newStubOutput() *stubOutput { return &stubOutput{failOn: -1, fixed: -1} }

func (o *stubOutput) WriteFrame(ctx context.Context, f *Frame, index int) error {
	if index == o.failOn {
		return errors.New("write failed")
	}
	o.mu.Lock()
	o.writes = append(o.writes, index)
	o.mu.Unlock()
	return nil
}

func (o *stubOutput) WriteSkip(index int) error {
	o.mu.Lock()
	o.skips = append(o.skips, index)
	o.mu.Unlock()
	return nil
}

func (o *stubOutput) Close(frames int) error { return nil }
func (o *stubOutput) Abort() error           { return nil }
func (o *stubOutput) ExpectedCount() int     { return o.fixed }

func testWriter(out Writer, total int) (*outputWriter, *[]int, chan struct{}) {
	confirmed := make([]int, 0, total)
	var mu sync.Mutex
	abortc := make(chan struct{})
	w := newOutputWriter(out, total)
	w.abortc = abortc
	w.confirm = func(pos int) {
		mu.Lock()
		confirmed = append(confirmed, pos)
		mu.Unlock()
	}
	w.release = func(*Frame) {}
	w.count = func(string, int64) {}
	return w, &confirmed, abortc
}

func TestWriterReordersArrivals(t *testing.T) {
	const total = 64
	out := newStubOutput()
	w, confirmed, _ := testWriter(out, total)
	errc := w.run(context.Background())

	perm := rand.New(rand.NewSource(42)).Perm(total)
	for _, pos := range perm {
		w.enqueue(pendingWrite{pos: pos, frame: &Frame{}})
	}
	require.NoError(t, waitErrc(t, errc))

	expected := make([]int, total)
	for i := range expected {
		expected[i] = i
	}
	assert.Equal(t, expected, out.writes)
	assert.Equal(t, expected, *confirmed)
	assert.Equal(t, total, w.written)
}

func TestWriterSkipMarkers(t *testing.T) {
	out := newStubOutput()
	w, confirmed, _ := testWriter(out, 5)
	errc := w.run(context.Background())

	w.enqueue(pendingWrite{pos: 2}) // skip, out of order
	w.enqueue(pendingWrite{pos: 1, frame: &Frame{}})
	w.enqueue(pendingWrite{pos: 0, frame: &Frame{}})
	w.enqueue(pendingWrite{pos: 4, frame: &Frame{}})
	w.enqueue(pendingWrite{pos: 3, frame: &Frame{}})
	require.NoError(t, waitErrc(t, errc))

	assert.Equal(t, []int{0, 1, 3, 4}, out.writes)
	assert.Equal(t, []int{2}, out.skips)
	// skips advance the cursor but are not confirmed writes
	assert.Equal(t, []int{0, 1, 3, 4}, *confirmed)
	assert.Equal(t, 4, w.written)
}

func TestWriterFailurePropagates(t *testing.T) {
	out := newStubOutput()
	out.failOn = 1
	w, _, _ := testWriter(out, 3)
	errc := w.run(context.Background())

	w.enqueue(pendingWrite{pos: 0, frame: &Frame{}})
	w.enqueue(pendingWrite{pos: 1, frame: &Frame{}})

	err := waitErrc(t, errc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write slot 1")
	assert.Equal(t, []int{0}, out.writes)
}

func TestWriterAbort(t *testing.T) {
	out := newStubOutput()
	w, _, abortc := testWriter(out, 10)
	errc := w.run(context.Background())

	w.enqueue(pendingWrite{pos: 0, frame: &Frame{}})
	close(abortc)
	require.NoError(t, waitErrc(t, errc))
	// everything drained before the abort stays written
	assert.LessOrEqual(t, len(out.writes), 1)
}

func TestWriterDrainReleases(t *testing.T) {
	out := newStubOutput()
	var released int
	abortc := make(chan struct{})
	w := newOutputWriter(out, 4)
	w.abortc = abortc
	w.confirm = func(int) {}
	w.release = func(f *Frame) {
		if f != nil {
			released++
		}
	}
	w.count = func(string, int64) {}
	errc := w.run(context.Background())

	w.enqueue(pendingWrite{pos: 2, frame: &Frame{}}) // out of order, parked
	close(abortc)
	require.NoError(t, waitErrc(t, errc))
	w.enqueue(pendingWrite{pos: 3, frame: &Frame{}}) // left in the channel
	w.enqueue(pendingWrite{pos: 1})                  // skip marker, no frame

	w.drain()
	assert.Equal(t, 2, released)
	assert.Empty(t, out.writes)
}

func waitErrc(t *testing.T, errc <-chan error) error {
	t.Helper()
	select {
	case err := <-errc:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("writer did not finish")
		return nil
	}
}
