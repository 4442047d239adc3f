package kvtasks

import "context"

// FetchCtx is async/await sugar over Fetch (spec §9 Design Notes). It
// returns once either key resolves or ctx is done; in the latter case it
// returns ctx.Err() while the registered callback still fires later (the
// in-flight or queued attempt is not interrupted).
func (m *Manager[K, V]) FetchCtx(ctx context.Context, key K) (*V, error) {
	type outcome struct {
		v   *V
		err error
	}
	ch := make(chan outcome, 1)
	m.Fetch(key, func(v *V, err error) {
		select {
		case ch <- outcome{v, err}:
		default:
		}
	})

	select {
	case o := <-ch:
		return o.v, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
