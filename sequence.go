package sequence

import (
	"context"
	"runtime"

	"github.com/rs/xid"
)

// Props describe the decoded buffer of a frame.
type Props struct {
	Width          int
	Height         int
	Channels       int
	BytesPerSample int
}

// FrameBytes returns the size of a decoded frame with these properties.
func (p Props) FrameBytes() int64 {
	return int64(p.Width) * int64(p.Height) * int64(p.Channels) * int64(p.BytesPerSample)
}

// Frame is a single decoded image. A frame is owned by exactly one stage at
// a time: it travels source, transform, writer, and is released exactly
// once - after it was persisted or when it is discarded.
type Frame struct {
	Pix   []byte
	Props Props
}

// Pos identifies a frame within one run. Output is the dense index in the
// filtered output order, Input is the index in the source sequence. Both
// are carried because some containers persist the archival input index
// while others demand the dense output index.
type Pos struct {
	Output int
	Input  int
}

type (
	// Source is an ordered sequence of frames, possibly spanning several
	// physical containers. ReadFrame transfers frame ownership to the
	// caller. Implementations should expect concurrent ReadFrame calls
	// for different indexes and serialize them internally if the
	// underlying container allows a single reader only.
	Source interface {
		FrameCount() int
		Included(i int) bool
		ReadFrame(ctx context.Context, i int) (*Frame, error)
	}

	// Writer persists frames of a single output container. The engine
	// guarantees that all calls happen from one goroutine, with strictly
	// ascending indexes and no index repeated. Close is called with the
	// number of frames actually written, so containers with count-bearing
	// trailers can finalize. Abort removes a partially written container.
	Writer interface {
		WriteFrame(ctx context.Context, f *Frame, index int) error
		Close(frames int) error
		Abort() error
		// ExpectedCount returns the frame count the container was
		// created with, or a negative value when the count is open
		// ended. Fixed-count containers are deleted on a fatal run,
		// open-ended ones keep the valid prefix written so far.
		ExpectedCount() int
	}

	// Transform is the per-frame operation of a run. TransformOne
	// consumes the input frame and returns one frame per output writer.
	// Prepare and Finalize frame the run and may allocate and flush
	// transform-wide resources.
	Transform interface {
		Prepare(ctx context.Context, info RunInfo) error
		TransformOne(ctx context.Context, f *Frame, pos Pos) ([]*Frame, error)
		Finalize(ctx context.Context, c Counters) error
	}

	// MemoryEstimator reports how much memory the run may spend on
	// in-flight frames. It is consulted once, at prepare time.
	MemoryEstimator interface {
		AvailableBytes() int64
	}
)

// Optional collaborator capabilities, bound by interface assertion.
type (
	// SkipWriter is implemented by writers that keep one slot per input
	// frame and need failed slots recorded to preserve index alignment.
	// Writers without it simply never see the skipped index.
	SkipWriter interface {
		WriteSkip(index int) error
	}

	// SpaceChecker is implemented by writers that can verify the output
	// destination before any frame is processed. A check failure fails
	// the run before dispatch.
	SpaceChecker interface {
		CheckSpace(frames int) error
	}

	// Releaser is implemented by sources that recycle frame buffers. The
	// engine hands every frame back exactly once - after it was written
	// or when it is discarded on a failure path.
	Releaser interface {
		Release(f *Frame)
	}
)

// Budget is a fixed memory budget estimator.
type Budget int64

// AvailableBytes returns the budget.
func (b Budget) AvailableBytes() int64 { return int64(b) }

// Logger is a global interface for engine loggers.
type Logger interface {
	Debug(...interface{})
	Info(...interface{})
}

// Metric collects performance counters of runs.
type Metric interface {
	Meter(runID string) Meter
}

// Meter accumulates counters of a single run.
type Meter interface {
	Add(counter string, value int64)
}

// Counter names used with Meter.
const (
	// FrameCounter counts persisted frames.
	FrameCounter = "Frames"
	// ByteCounter counts persisted bytes.
	ByteCounter = "Bytes"
	// SkipCounter counts skipped slots.
	SkipCounter = "Skips"
)

// Observer receives run progress. All methods are called from engine
// goroutines and must be safe for concurrent use. Progress counts settled
// frames - converted or failed - as done, so a bar reaches total even when
// the run ends partial; the conversion ratio is in the final Report.
type Observer interface {
	Status(msg string)
	Progress(done, total int)
	Finished(r Report)
}

// RunInfo describes a run to the transform before it starts.
type RunInfo struct {
	ID      string
	Frames  int // frames included after filtering
	Outputs int // writers fed by this run
}

// Engine executes runs. An engine is stateless between runs and may be
// reused; all run-wide state lives in the run itself.
type Engine struct {
	parallelism int
	stopOnError bool
	estimator   MemoryEstimator
	log         Logger
	metric      Metric
	observer    Observer
}

// Option provides a way to set functional parameters to the engine.
type Option func(*Engine)

// New creates a new engine and applies provided options.
func New(options ...Option) *Engine {
	e := &Engine{
		log: defaultLogger,
	}
	for _, option := range options {
		option(e)
	}
	if e.parallelism < 1 {
		e.parallelism = runtime.NumCPU()
	}
	return e
}

// WithParallelism sets the worker pool size. Defaults to the number of
// CPUs.
func WithParallelism(n int) Option {
	return func(e *Engine) {
		e.parallelism = n
	}
}

// WithStopOnError makes the first frame failure abort the run instead of
// skipping the frame.
func WithStopOnError() Option {
	return func(e *Engine) {
		e.stopOnError = true
	}
}

// WithMemoryEstimator sets the estimator used to bound in-flight frames.
// Without it the run is not throttled.
func WithMemoryEstimator(m MemoryEstimator) Option {
	return func(e *Engine) {
		e.estimator = m
	}
}

// WithLogger sets logger to the engine. If this option is not provided,
// silent logger is used.
func WithLogger(l Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// WithMetric adds metrics for runs of this engine.
func WithMetric(m Metric) Option {
	return func(e *Engine) {
		e.metric = m
	}
}

// WithObserver subscribes an observer to run progress.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observer = o
	}
}

// newUID returns new unique id value.
func newUID() string {
	return xid.New().String()
}

type silentLogger struct{}

func (silentLogger) Debug(args ...interface{}) {}

func (silentLogger) Info(args ...interface{}) {}

var defaultLogger silentLogger
