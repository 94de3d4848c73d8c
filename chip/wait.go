package chip

import (
	"context"
	stderrors "errors"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmgilman/go/errors"
)

var errStillBusy = stderrors.New("chip busy")

// Wait blocks until the outstanding operation, including every die of a
// chip erase, has finished. With WithWaitTimeout it gives up after the
// timeout with ErrTimeout.
func (c *Chip) Wait() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.wait()
}

func (c *Chip) wait() error {
	return c.poll(c.ready)
}

// poll calls done until it reports true. Without a wait timeout it spins;
// with one it backs off between calls and gives up with ErrTimeout.
func (c *Chip) poll(done func() (bool, error)) error {
	if c.cfg.waitTimeout > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.waitTimeout)
		defer cancel()
		return c.pollContext(ctx, done)
	}

	for {
		ok, err := done()
		if err != nil || ok {
			return err
		}
	}
}

// WaitContext is Wait with a backoff between polls that stops when ctx
// is done.
func (c *Chip) WaitContext(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.pollContext(ctx, c.ready)
}

func (c *Chip) pollContext(ctx context.Context, done func() (bool, error)) error {
	op := func() error {
		ok, err := done()
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return errStillBusy
		}
		return nil
	}

	err := backoff.Retry(op, backoff.WithContext(c.cfg.backoff(), ctx))
	if err == nil {
		return nil
	}

	if ctx.Err() != nil {
		c.cfg.logger.Warn("gave up waiting for flash chip", "state", c.state.String())
		return errors.Wrap(ErrTimeout, errors.CodeTimeout, ctx.Err().Error())
	}
	return err
}
