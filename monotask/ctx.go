package monotask

import "context"

// ExecuteCtx is async/await sugar over Execute (spec §9 Design Notes:
// "Async/await sugar... a thin adapter over the callback API"). It
// returns once either the task completes or ctx is done; in the latter
// case it returns ctx.Err() and the registered callback still runs
// later when the task completes, since the underlying provider is not
// interrupted.
func (t *Task[V]) ExecuteCtx(ctx context.Context, forceUpdate bool) (V, error) {
	type outcome struct {
		v   V
		err error
	}
	ch := make(chan outcome, 1)
	t.Execute(func(v V, err error) {
		select {
		case ch <- outcome{v, err}:
		default:
		}
	}, forceUpdate)

	select {
	case o := <-ch:
		return o.v, o.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}
