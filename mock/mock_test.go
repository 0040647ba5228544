package mock_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/sequence"
	"pipelined.dev/sequence/mock"
)

func TestPayloadRoundTrip(t *testing.T) {
	for _, i := range []int{0, 1, 41, 1 << 20} {
		assert.Equal(t, i, mock.Index(mock.Payload(i)))
	}
	// index survives transform marks appended after it
	pix := append(mock.Payload(7), 0xAA, 0x01)
	assert.Equal(t, 7, mock.Index(pix))
}

func TestSourceTracksFrames(t *testing.T) {
	src := &mock.Source{Frames: 3, Excluded: map[int]bool{1: true}}
	assert.Equal(t, 3, src.FrameCount())
	assert.True(t, src.Included(0))
	assert.False(t, src.Included(1))

	f, err := src.ReadFrame(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, mock.Index(f.Pix))
	assert.Equal(t, 1, src.MaxHeld())

	src.Release(f)
	assert.Equal(t, 1, src.Released())
	assert.Equal(t, []int{2}, src.Reads())
}

func TestWriterRecords(t *testing.T) {
	w := &mock.Writer{}
	assert.Equal(t, -1, w.ExpectedCount())

	require.NoError(t, w.WriteFrame(context.Background(), &sequence.Frame{Pix: mock.Payload(3)}, 0))
	require.NoError(t, w.WriteSkip(1))
	require.NoError(t, w.Close(1))

	assert.Equal(t, []int{0}, w.Writes())
	assert.Equal(t, []int{1}, w.Skips())
	assert.Equal(t, 3, mock.Index(w.PayloadAt(0)))
	closed, frames := w.Closed()
	assert.True(t, closed)
	assert.Equal(t, 1, frames)

	fixed := &mock.Writer{Fixed: true, Expected: 5}
	assert.Equal(t, 5, fixed.ExpectedCount())
}

func TestTransformOutputs(t *testing.T) {
	tr := &mock.Transform{Outputs: 2, Mark: 0xEE}
	f := &sequence.Frame{Pix: mock.Payload(4)}
	frames, err := tr.TransformOne(context.Background(), f, sequence.Pos{Output: 0, Input: 4})
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Same(t, f, frames[0])
	assert.Equal(t, byte(0xEE), frames[0].Pix[len(frames[0].Pix)-1])
	assert.Equal(t, byte(1), frames[1].Pix[len(frames[1].Pix)-1])
	assert.Equal(t, 1, tr.Calls())

	fail := &mock.Transform{ErrOn: map[int]error{4: errors.New("boom")}}
	_, err = fail.TransformOne(context.Background(), f, sequence.Pos{Input: 4})
	assert.Error(t, err)
}
