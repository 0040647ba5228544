package sequence

// state identifies the phase of a single engine run. A run walks
// init-prepared-running into one of the terminal outcomes and is finalized
// afterwards regardless of the outcome.
type state int

const (
	stateInit state = iota
	statePrepared
	stateRunning
	stateSucceeded
	statePartial
	stateFailed
	stateFinalized
)

func (s state) String() string {
	switch s {
	case stateInit:
		return "init"
	case statePrepared:
		return "prepared"
	case stateRunning:
		return "running"
	case stateSucceeded:
		return "succeeded"
	case statePartial:
		return "partial"
	case stateFailed:
		return "failed"
	case stateFinalized:
		return "finalized"
	}
	return "unknown"
}

// Outcome is the user-visible result of a run.
type Outcome int

const (
	// Succeeded means every included frame was converted.
	Succeeded Outcome = iota
	// Partial means some frames failed but the run was preserved and at
	// least one frame was converted.
	Partial
	// Failed means a fatal failure: nothing trustworthy was produced for
	// at least one output.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case Partial:
		return "partial"
	case Failed:
		return "failed"
	}
	return "unknown"
}

func (o Outcome) state() state {
	switch o {
	case Succeeded:
		return stateSucceeded
	case Partial:
		return statePartial
	}
	return stateFailed
}

// Report is the final summary of a run.
type Report struct {
	ID       string
	Outcome  Outcome
	Counters Counters
}
