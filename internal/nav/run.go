package nav

import (
	"context"

	"ThymioNav/internal/model"
	"ThymioNav/internal/util"
)

// Run ticks every cfg.Period until a terminal state, an error or ctx is done.
// A tick that finishes early waits out the rest of the period; a late tick is
// followed immediately by the next one, without catching up missed periods.
// A zero command is sent on every exit path.
func (n *Navigator) Run(ctx context.Context) (err error) {
	util.Info("[nav] run %s started in %s", n.runID, n.state)
	defer func() {
		n.finalStop()
		util.Info("[nav] run %s finished in %s after %d ticks (err=%v)", n.runID, n.state, n.tick, err)
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := n.clock.Now()
		done, err := n.Tick(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		wait := n.cfg.Period - n.clock.Since(start)
		if wait <= 0 {
			util.Debug("[nav] tick %d overran the period by %v", n.tick, -wait)
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-n.clock.After(wait):
		}
	}
}

// finalStop sends the closing zero command unless a stop was already attempted
// after a link failure.
func (n *Navigator) finalStop() {
	if n.linkFailed {
		return
	}
	if err := n.deps.Link.SetMotorCommand(context.Background(), model.Stop); err != nil {
		util.Error("[nav] final stop failed: %v", err)
		return
	}
	n.cmd = model.Stop
	n.publish()
}
