// pattern: Functional Core + Imperative Shell

package corestate

import "sync"

// Store is the backing persistence strategy for a Cell. A Cell always
// keeps the current value cached in RAM for cheap reads and change
// comparison; Store is consulted only on write-through and on the one
// read performed at construction time (to recover a prior value).
//
// Implementations compose to express the cell variants from the spec:
// a bare Cell with a nil Store is "Memory"; a retained.Slot as the
// Store gives "MutRef"; CachingStore(A, B) gives "Caching"; WearLevelingStore
// gives "WearLeveling"; an NVS-backed Store gives "Storage".
type Store[D any] interface {
	// Load returns the persisted value and whether one was present.
	Load() (D, bool)
	// Save persists v. Implementations that drop writes (wear leveling)
	// do so here and return nil regardless.
	Save(v D) error
}

// Logger is the minimal logging capability Cell needs; satisfied by
// *logging.ScopedLogger.
type Logger interface {
	Debug(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}

// Cell is a latching single-value store that fires every registered
// Notification on value change. Subscriber registration is only valid
// before Seal is called; Seal is invoked once, at wiring time, after
// every subscriber has registered.
type Cell[D comparable] struct {
	mu     sync.Mutex
	name   string
	value  D
	store  Store[D]
	subs   []*Notification
	sealed bool
	logger Logger
}

// NewCell constructs a Cell named name with the given initial value and
// optional backing Store (nil for a pure in-memory "Memory" cell). If
// the store holds a prior value, it takes precedence over initial —
// this is how a valve or water-meter cell recovers state after a
// restart.
func NewCell[D comparable](name string, initial D, store Store[D], logger Logger) *Cell[D] {
	if logger == nil {
		logger = nopLogger{}
	}
	c := &Cell[D]{name: name, value: initial, store: store, logger: logger}
	if store != nil {
		if v, ok := store.Load(); ok {
			c.value = v
		}
	}
	return c
}

// Subscribe registers and returns a new Notification that fires on every
// value change. Must be called before Seal.
func (c *Cell[D]) Subscribe() *Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sealed {
		panic("corestate: Subscribe after Seal on cell " + c.name)
	}
	n := NewNotification()
	c.subs = append(c.subs, n)
	return n
}

// Seal freezes the subscriber list. Called once at the end of wiring.
func (c *Cell[D]) Seal() {
	c.mu.Lock()
	c.sealed = true
	c.mu.Unlock()
}

// Get returns a cheap clone of the current value.
func (c *Cell[D]) Get() D {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Set writes v if it differs from the current value, persists it through
// the backing Store (if any), and notifies every subscriber. Equal
// writes are a no-op: no persistence, no notification. Returns whether
// the value changed.
func (c *Cell[D]) Set(v D) bool {
	c.mu.Lock()
	if v == c.value {
		c.mu.Unlock()
		return false
	}
	c.value = v
	store := c.store
	subs := c.subs
	c.mu.Unlock()

	if store != nil {
		if err := store.Save(v); err != nil {
			c.logger.Debug("cell persist failed", "cell", c.name, "error", err)
		}
	}
	for _, n := range subs {
		n.Notify()
	}
	return true
}

// UpdateWith reads the current value, applies f, writes the result, and
// logs the transition under name. Mirrors the spec's update_with
// convenience.
func (c *Cell[D]) UpdateWith(name string, f func(D) D) D {
	old := c.Get()
	next := f(old)
	changed := c.Set(next)
	if changed {
		c.logger.Debug("state transition", "cell", c.name, "op", name, "from", old, "to", next)
	}
	return next
}

// Name returns the cell's label, used for logging and diagnostics.
func (c *Cell[D]) Name() string {
	return c.name
}
