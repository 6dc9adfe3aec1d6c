package consensus

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Dispatched is the outcome of one step, in input order.
type Dispatched struct {
	Step   Step
	Result *Result
	Err    error
	Shared bool
}

// Dispatcher runs independent steps concurrently. Steps sharing a cache key
// are collapsed into one run; every duplicate still has its Apply called
// with the shared value.
type Dispatcher struct {
	runner *Runner
	limit  int
	flight singleflight.Group
}

func NewDispatcher(runner *Runner, limit int) *Dispatcher {
	if limit <= 0 {
		limit = 1
	}
	return &Dispatcher{runner: runner, limit: limit}
}

func (d *Dispatcher) Runner() *Runner { return d.runner }

// Dispatch runs all steps and waits for them. A failing step does not cancel
// its siblings; its error is reported in its slot.
func (d *Dispatcher) Dispatch(ctx context.Context, steps []Step) []Dispatched {
	out := make([]Dispatched, len(steps))
	var g errgroup.Group
	g.SetLimit(d.limit)

	for i := range steps {
		i := i
		out[i].Step = steps[i]
		g.Go(func() error {
			out[i].Result, out[i].Shared, out[i].Err = d.runOne(ctx, steps[i])
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (d *Dispatcher) runOne(ctx context.Context, step Step) (*Result, bool, error) {
	key := step.dedupKey()
	if key == "" {
		res, err := d.runner.Run(ctx, step)
		return res, false, err
	}

	var ran atomic.Bool
	v, err, _ := d.flight.Do(key, func() (interface{}, error) {
		ran.Store(true)
		return d.runner.Run(ctx, step)
	})
	if ran.Load() {
		res, _ := v.(*Result)
		return res, false, err
	}
	if err != nil {
		return nil, true, err
	}
	res, _ := v.(*Result)
	if res.HasValue() && step.Apply != nil {
		if err := step.Apply(res.Value); err != nil {
			return nil, true, err
		}
	}
	return res, true, nil
}

// Run executes one step through the dispatcher's dedup group.
func (d *Dispatcher) Run(ctx context.Context, step Step) (*Result, error) {
	res, _, err := d.runOne(ctx, step)
	return res, err
}
