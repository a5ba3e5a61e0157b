// pattern: Imperative Shell

package valve

import "context"

// Persister is the injected side effect the persist actor calls with the
// current value on every wake. In this simulator build the Cell already
// writes through its Store synchronously; Persist exists to match
// spec.md's explicit "persist(persister)" actor shape and to let a
// caller layer additional side effects (metrics, log lines) onto every
// persisted transition without touching the write path itself.
type Persister func(State)

// Persist runs the dedicated persist actor: it awaits the cell's
// persist notification and invokes persister with the current value.
// Blocks until ctx is cancelled.
func (v *Valve) Persist(ctx context.Context, persister Persister) {
	notif := v.persistNotif
	for {
		select {
		case <-ctx.Done():
			return
		case <-notif.Chan():
			if !notif.TryGet() {
				continue
			}
			persister(v.State.Get())
		}
	}
}
