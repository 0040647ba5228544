package sequence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfirmJointRelease(t *testing.T) {
	r := &run{
		adm:       newAdmission(),
		remaining: make(map[int]int),
		writers:   []*outputWriter{{}, {}, {}},
	}
	r.log = defaultLogger
	r.adm.configure(1)

	assert.NoError(t, r.adm.acquire())

	// two of three outputs confirmed: credit still held
	r.confirm(0)
	r.confirm(0)
	assert.Equal(t, 1, r.adm.active)
	assert.Equal(t, int64(0), r.counters.converted.Load())

	// last output confirms: credit released, frame counted
	r.confirm(0)
	assert.Equal(t, 0, r.adm.active)
	assert.Equal(t, int64(1), r.counters.converted.Load())
	assert.Empty(t, r.remaining)
}

func TestConfirmSingleOutput(t *testing.T) {
	r := &run{
		adm:       newAdmission(),
		remaining: make(map[int]int),
		writers:   []*outputWriter{{}},
	}
	r.log = defaultLogger
	assert.NoError(t, r.adm.acquire())
	r.confirm(5)
	assert.Equal(t, 0, r.adm.active)
	assert.Equal(t, int64(1), r.counters.converted.Load())
}

func TestOutcomeStates(t *testing.T) {
	assert.Equal(t, stateSucceeded, Succeeded.state())
	assert.Equal(t, statePartial, Partial.state())
	assert.Equal(t, stateFailed, Failed.state())
	assert.Equal(t, "succeeded", Succeeded.String())
	assert.Equal(t, "partial", Partial.String())
	assert.Equal(t, "failed", Failed.String())
}
