package log_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"pipelined.dev/sequence"
	"pipelined.dev/sequence/log"
)

func TestGetLogger(t *testing.T) {
	l := log.GetLogger()
	assert.NotNil(t, l)
}

func TestWithRun(t *testing.T) {
	e := log.WithRun(log.GetLogger(), "run-1")
	assert.Equal(t, "run-1", e.Data["run"])
	// the tagged entry plugs into the engine directly
	var _ sequence.Logger = e
}
