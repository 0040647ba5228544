package sequence

import "sync"

// admission bounds the number of decoded frames that exist simultaneously.
// The dispatcher acquires one credit per frame before the frame's task may
// start; the credit is returned once every output has persisted the frame
// or the frame was discarded. Acquisition never fails with "out of
// memory" - it blocks until a credit is freed, so memory exhaustion is
// prevented by construction.
//
// The bound may be unknown when the run starts: the per-frame size is taken
// from the first decoded frame. Until configure is called the gate admits
// freely; after it, the bound applies to all subsequent acquisitions. This
// avoids the chicken-and-egg deadlock on the very first frame.
type admission struct {
	mu          sync.Mutex
	cond        *sync.Cond
	max         int
	active      int
	interrupted bool
}

func newAdmission() *admission {
	a := &admission{}
	a.cond = sync.NewCond(&a.mu)
	return a
}

// configure sets the bound. Values below one disable blocking. Credits
// acquired before the call stay accounted, the bound applies from the next
// acquire on.
func (a *admission) configure(max int) {
	a.mu.Lock()
	a.max = max
	a.mu.Unlock()
	a.cond.Broadcast()
}

// acquire blocks until a credit is available or the run is interrupted.
func (a *admission) acquire() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for a.max > 0 && a.active >= a.max && !a.interrupted {
		a.cond.Wait()
	}
	if a.interrupted {
		return ErrAborted
	}
	a.active++
	return nil
}

// release returns a credit and wakes one waiter.
func (a *admission) release() {
	a.mu.Lock()
	if a.active > 0 {
		a.active--
	}
	a.mu.Unlock()
	a.cond.Signal()
}

// interrupt unblocks all waiters. Consequent acquisitions return
// ErrAborted.
func (a *admission) interrupt() {
	a.mu.Lock()
	a.interrupted = true
	a.mu.Unlock()
	a.cond.Broadcast()
}

// writerCreditSlack allows a few more decoded frames than workers when the
// writers are queued, so workers keep decoding while a writer catches up.
const writerCreditSlack = 3

// activeBlocks computes how many decoded frames may be in flight given the
// available memory and the per-frame size. Zero means unthrottled.
func activeBlocks(available, frameBytes int64, pool int) int {
	if available <= 0 || frameBytes <= 0 {
		return 0
	}
	limit := available / frameBytes
	if max := int64(pool * writerCreditSlack); limit > max {
		limit = max
	}
	if limit < 1 {
		limit = 1
	}
	return int(limit)
}
