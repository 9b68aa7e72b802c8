package upload

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// coordinator tracks the pending writes of one request. The first failing
// write cancels the returned context so the decoder stops early.
type coordinator struct {
	g       *errgroup.Group
	pending int
}

func newCoordinator(ctx context.Context) (*coordinator, context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	return &coordinator{g: g}, gctx
}

// track registers a pending write.
func (c *coordinator) track(write func() error) {
	c.pending++
	c.g.Go(write)
}

// wait joins every pending write, then reports the outcome. A write error
// takes precedence over the decode error because the decoder only sees the
// echo of a failed sink through its pipe.
func (c *coordinator) wait(decodeErr error) error {
	if err := c.g.Wait(); err != nil {
		return err
	}
	return decodeErr
}
