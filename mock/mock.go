// Package mock provides configurable fakes of the engine collaborators:
// sources, writers, transforms and observers. They are used by the engine
// tests and can back tests of user transforms.
package mock

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"pipelined.dev/sequence"
)

// Payload returns the deterministic pix payload of source frame i.
func Payload(i int) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(i))
	return b
}

// Index decodes the source frame index back from a payload. The payload
// may carry transform marks after the first eight bytes.
func Index(pix []byte) int {
	return int(binary.LittleEndian.Uint64(pix))
}

// Source is a fake sequence. Frames carry their source index in the
// payload, so ordering can be asserted on the written output.
type Source struct {
	Frames    int
	Props     sequence.Props
	Excluded  map[int]bool
	ErrOn     map[int]error
	ReadDelay time.Duration

	mu       sync.Mutex
	reads    []int
	held     int
	maxHeld  int
	released int
}

// FrameCount implements sequence.Source.
func (s *Source) FrameCount() int { return s.Frames }

// Included implements sequence.Source.
func (s *Source) Included(i int) bool { return !s.Excluded[i] }

// ReadFrame implements sequence.Source.
func (s *Source) ReadFrame(ctx context.Context, i int) (*sequence.Frame, error) {
	if s.ReadDelay > 0 {
		select {
		case <-time.After(s.ReadDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := s.ErrOn[i]; err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.reads = append(s.reads, i)
	s.held++
	if s.held > s.maxHeld {
		s.maxHeld = s.held
	}
	s.mu.Unlock()
	return &sequence.Frame{Pix: Payload(i), Props: s.Props}, nil
}

// Release implements sequence.Releaser and tracks outstanding frames. The
// held counter is meaningful for single-output pass-through runs, where
// every read frame comes back exactly once.
func (s *Source) Release(f *sequence.Frame) {
	s.mu.Lock()
	s.held--
	s.released++
	s.mu.Unlock()
}

// Reads returns source indexes in decode order.
func (s *Source) Reads() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.reads...)
}

// MaxHeld returns the peak number of frames decoded and not yet released.
func (s *Source) MaxHeld() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxHeld
}

// Released returns how many frames came back.
func (s *Source) Released() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// Writer is a fake output container recording everything written to it.
type Writer struct {
	// Fixed marks the container as created with a mandatory frame
	// count of Expected; fatal runs delete such containers.
	Fixed    bool
	Expected int

	ErrOnWrite map[int]error
	SpaceErr   error
	WriteDelay time.Duration

	mu       sync.Mutex
	writes   []int
	payloads map[int][]byte
	skips    []int
	closed   bool
	closedAs int
	aborted  bool
}

// WriteFrame implements sequence.Writer.
func (w *Writer) WriteFrame(ctx context.Context, f *sequence.Frame, index int) error {
	if w.WriteDelay > 0 {
		select {
		case <-time.After(w.WriteDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := w.ErrOnWrite[index]; err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.payloads == nil {
		w.payloads = make(map[int][]byte)
	}
	w.writes = append(w.writes, index)
	w.payloads[index] = append([]byte(nil), f.Pix...)
	return nil
}

// WriteSkip implements sequence.SkipWriter.
func (w *Writer) WriteSkip(index int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.skips = append(w.skips, index)
	return nil
}

// CheckSpace implements sequence.SpaceChecker.
func (w *Writer) CheckSpace(frames int) error { return w.SpaceErr }

// Close implements sequence.Writer.
func (w *Writer) Close(frames int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	w.closedAs = frames
	return nil
}

// Abort implements sequence.Writer.
func (w *Writer) Abort() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.aborted = true
	return nil
}

// ExpectedCount implements sequence.Writer.
func (w *Writer) ExpectedCount() int {
	if w.Fixed {
		return w.Expected
	}
	return -1
}

// Writes returns written indexes in write order.
func (w *Writer) Writes() []int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]int(nil), w.writes...)
}

// PayloadAt returns the payload written at index.
func (w *Writer) PayloadAt(index int) []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.payloads[index]
}

// Skips returns skipped indexes in skip order.
func (w *Writer) Skips() []int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]int(nil), w.skips...)
}

// Closed returns whether Close was called and with which frame count.
func (w *Writer) Closed() (bool, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed, w.closedAs
}

// Aborted returns whether the container was deleted.
func (w *Writer) Aborted() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.aborted
}

// Transform is a fake per-frame operation. Output zero passes the input
// frame through; further outputs get copies tagged with the output number,
// so parallel outputs can be told apart. A non-zero Mark is appended to
// every payload to prove the transform ran.
type Transform struct {
	Outputs     int
	Mark        byte
	ErrOn       map[int]error // keyed by source index
	PrepareErr  error
	FinalizeErr error

	mu        sync.Mutex
	prepared  bool
	finalized bool
	info      sequence.RunInfo
	final     sequence.Counters
	calls     int
}

// Prepare implements sequence.Transform.
func (t *Transform) Prepare(ctx context.Context, info sequence.RunInfo) error {
	t.mu.Lock()
	t.prepared = true
	t.info = info
	t.mu.Unlock()
	return t.PrepareErr
}

// TransformOne implements sequence.Transform.
func (t *Transform) TransformOne(ctx context.Context, f *sequence.Frame, pos sequence.Pos) ([]*sequence.Frame, error) {
	t.mu.Lock()
	t.calls++
	t.mu.Unlock()
	if err := t.ErrOn[pos.Input]; err != nil {
		return nil, err
	}
	n := t.Outputs
	if n < 1 {
		n = 1
	}
	if t.Mark != 0 {
		f.Pix = append(f.Pix, t.Mark)
	}
	frames := make([]*sequence.Frame, n)
	frames[0] = f
	for i := 1; i < n; i++ {
		pix := append([]byte(nil), f.Pix...)
		frames[i] = &sequence.Frame{Pix: append(pix, byte(i)), Props: f.Props}
	}
	return frames, nil
}

// Finalize implements sequence.Transform.
func (t *Transform) Finalize(ctx context.Context, c sequence.Counters) error {
	t.mu.Lock()
	t.finalized = true
	t.final = c
	t.mu.Unlock()
	return t.FinalizeErr
}

// Prepared returns whether Prepare ran and the run info it saw.
func (t *Transform) Prepared() (bool, sequence.RunInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.prepared, t.info
}

// Finalized returns whether Finalize ran and the counters it saw.
func (t *Transform) Finalized() (bool, sequence.Counters) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finalized, t.final
}

// Calls returns the number of TransformOne invocations.
func (t *Transform) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

// Observer records run progress.
type Observer struct {
	mu       sync.Mutex
	statuses []string
	progress [][2]int
	report   *sequence.Report
}

// Status implements sequence.Observer.
func (o *Observer) Status(msg string) {
	o.mu.Lock()
	o.statuses = append(o.statuses, msg)
	o.mu.Unlock()
}

// Progress implements sequence.Observer.
func (o *Observer) Progress(done, total int) {
	o.mu.Lock()
	o.progress = append(o.progress, [2]int{done, total})
	o.mu.Unlock()
}

// Finished implements sequence.Observer.
func (o *Observer) Finished(r sequence.Report) {
	o.mu.Lock()
	o.report = &r
	o.mu.Unlock()
}

// Statuses returns recorded status messages.
func (o *Observer) Statuses() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.statuses...)
}

// LastProgress returns the last progress update.
func (o *Observer) LastProgress() (done, total int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.progress) == 0 {
		return 0, 0
	}
	last := o.progress[len(o.progress)-1]
	return last[0], last[1]
}

// Report returns the final report, if the run finished.
func (o *Observer) Report() *sequence.Report {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.report
}
