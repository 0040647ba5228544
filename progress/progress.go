// Package progress renders run progress as a terminal progress bar.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"pipelined.dev/sequence"
)

// Bar is a sequence.Observer drawing a progress bar. The bar is created
// lazily on the first progress update, when the total is known.
type Bar struct {
	description string
	out         io.Writer

	mu  sync.Mutex
	bar *progressbar.ProgressBar
}

// NewBar creates a bar observer with the given description.
func NewBar(description string) *Bar {
	return &Bar{
		description: description,
		out:         os.Stderr,
	}
}

// Status implements sequence.Observer.
func (b *Bar) Status(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bar != nil {
		_ = b.bar.Clear()
	}
	fmt.Fprintln(b.out, msg)
}

// Progress implements sequence.Observer.
func (b *Bar) Progress(done, total int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bar == nil {
		b.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(b.out),
			progressbar.OptionSetDescription(b.description),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetWidth(50),
			progressbar.OptionSetRenderBlankState(true),
			progressbar.OptionThrottle(65*time.Millisecond),
		)
	}
	_ = b.bar.Set(done)
}

// Finished implements sequence.Observer.
func (b *Bar) Finished(r sequence.Report) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bar != nil {
		_ = b.bar.Finish()
		fmt.Fprintln(b.out)
	}
	fmt.Fprintf(b.out, "run %s %v: %d converted, %d failed, %d excluded of %d\n",
		r.ID, r.Outcome, r.Counters.Converted, r.Counters.Failed, r.Counters.Excluded, r.Counters.Total)
}
