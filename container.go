package sequence

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
)

// Piece describes one physical container of a joined sequence before it is
// opened.
type Piece struct {
	// Count is the number of frames the container holds. It must be
	// known without opening the container (directory listing, header
	// index).
	Count int
	// Include reports the inclusion flag of a frame, local to this
	// container. Nil includes all frames.
	Include func(i int) bool
	// Open opens the container. It is called at most once, on the first
	// read, and a failure marks the whole container as skipped: its
	// frames fail, the remaining containers keep going. If the returned
	// source implements io.Closer it is closed after its last included
	// frame was read.
	Open func(ctx context.Context) (Source, error)
}

// piece is the runtime state of one container:
// closed -> open -> (exhausted | closed-on-error).
type piece struct {
	Piece
	offset int

	// reads on a physical container are serialized, most formats allow
	// a single seek/read cursor.
	mu      sync.Mutex
	src     Source
	opened  bool
	openErr error

	pending *countdown
}

// countdown closes a container after its last pending read. The close
// decision is owned by the atomic counter, not by the readers.
type countdown struct {
	n     atomic.Int32
	close func()
}

// done reports one finished read and fires the close on the last one.
func (c *countdown) done() {
	if c.n.Add(-1) == 0 && c.close != nil {
		c.close()
	}
}

// multiSource joins several physical containers into one logical sequence.
// Frame indexes are global: piece k covers [offset, offset+Count).
type multiSource struct {
	pieces []*piece
	total  int
	log    Logger
}

// Join combines physical containers into a single sequence. Containers are
// opened lazily, serialized per container, and closed after their last
// included frame was consumed.
func Join(l Logger, pieces ...Piece) Source {
	if l == nil {
		l = defaultLogger
	}
	m := &multiSource{log: l}
	offset := 0
	for _, p := range pieces {
		pc := &piece{Piece: p, offset: offset}
		pc.pending = &countdown{close: func() { pc.closeSrc(l) }}
		pc.pending.n.Store(int32(pc.includedCount()))
		m.pieces = append(m.pieces, pc)
		offset += p.Count
	}
	m.total = offset
	return m
}

func (m *multiSource) FrameCount() int { return m.total }

func (m *multiSource) Included(i int) bool {
	p, local := m.locate(i)
	if p == nil {
		return false
	}
	if p.Include == nil {
		return true
	}
	return p.Include(local)
}

func (m *multiSource) ReadFrame(ctx context.Context, i int) (*Frame, error) {
	p, local := m.locate(i)
	if p == nil {
		return nil, fmt.Errorf("sequence: frame %d out of range", i)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	// a read attempt consumes the pending slot whether it succeeds or
	// not, the container would stay open forever otherwise.
	defer p.pending.done()
	if !p.opened {
		p.opened = true
		p.src, p.openErr = p.Open(ctx)
		if p.openErr != nil {
			m.log.Info(fmt.Sprintf("container open failed, skipping: %v", p.openErr))
		}
	}
	if p.openErr != nil {
		return nil, fmt.Errorf("container: %w", p.openErr)
	}
	return p.src.ReadFrame(ctx, local)
}

// Close force-closes all containers that are still open. It is meant for
// aborted runs, where some included frames are never read and the
// countdowns never fire.
func (m *multiSource) Close() error {
	var errs finalizeErrors
	for _, p := range m.pieces {
		p.mu.Lock()
		if p.src != nil {
			if c, ok := p.src.(io.Closer); ok {
				if err := c.Close(); err != nil {
					errs = append(errs, err)
				}
			}
			p.src = nil
		}
		p.mu.Unlock()
	}
	return errs.ret()
}

// locate finds the piece covering global index i.
func (m *multiSource) locate(i int) (*piece, int) {
	if i < 0 || i >= m.total {
		return nil, 0
	}
	k := sort.Search(len(m.pieces), func(k int) bool {
		return m.pieces[k].offset+m.pieces[k].Count > i
	})
	p := m.pieces[k]
	return p, i - p.offset
}

func (p *piece) includedCount() int {
	if p.Include == nil {
		return p.Count
	}
	n := 0
	for i := 0; i < p.Count; i++ {
		if p.Include(i) {
			n++
		}
	}
	return n
}

// closeSrc is fired by the countdown while the piece lock is held by the
// last reader.
func (p *piece) closeSrc(l Logger) {
	if p.src == nil {
		return
	}
	if c, ok := p.src.(io.Closer); ok {
		if err := c.Close(); err != nil {
			l.Info(fmt.Sprintf("container close failed: %v", err))
		}
	}
	p.src = nil
}
