/*
Package sequence batch-processes ordered sequences of image frames.

Concept

A run takes three collaborators:

    Source - an ordered sequence of decoded frames;
    Transform - the per-frame operation;
    Writer - the destination container for processed frames;

and executes a bounded read-transform-write pipeline over them. Frames to
process are selected with the source's inclusion flags, fanned out to a pool
of workers and reassembled into strict source order before they reach the
writers, because output containers accept only a single sequential writer.
In-flight frames are throttled against a memory budget, so that large
uncompressed frames cannot exhaust RAM no matter how fast the workers decode.

The engine knows nothing about container byte layouts or image algorithms.
Sources decode, transforms compute, writers encode; the engine only moves
frames between them and keeps the ordering, memory and failure guarantees.

Execution

	e := sequence.New(sequence.WithParallelism(4))
	report, err := e.Run(ctx, src, transform, out)

Run blocks until every included frame was converted, skipped or the run was
aborted. The returned report carries the outcome (succeeded, partial,
failed) and the run counters.

A transform may emit more than one frame per input. In that case the run is
given one writer per emitted frame and the memory credit of an input frame
is held until every writer has persisted its slot.
*/
package sequence
