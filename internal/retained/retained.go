// pattern: Imperative Shell

// Package retained simulates the slow (retained) RAM region that
// survives light sleep on the real device: a pointer-free, trivially
// serializable byte region guarded by a single mutex. It backs the
// MutRef cell variant described in spec.md §4.1.
package retained

import (
	"bytes"
	"encoding/gob"
	"sync"
)

// Region is an in-process stand-in for a retained-memory section. Each
// named slot survives for the lifetime of the process, mirroring how
// the real retained section survives light sleep but not a full reset.
type Region struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewRegion returns an empty retained-memory region.
func NewRegion() *Region {
	return &Region{data: make(map[string][]byte)}
}

// Slot is a typed view into one named slot of a Region, implementing
// corestate.Store[D] so it can back a Cell directly.
type Slot[D any] struct {
	region *Region
	key    string
}

// NewSlot returns a Store-compatible handle onto the named slot of r.
func NewSlot[D any](r *Region, key string) *Slot[D] {
	return &Slot[D]{region: r, key: key}
}

// Load decodes the slot's contents, if present.
func (s *Slot[D]) Load() (D, bool) {
	var zero D
	s.region.mu.Lock()
	raw, ok := s.region.data[s.key]
	s.region.mu.Unlock()
	if !ok {
		return zero, false
	}
	var v D
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&v); err != nil {
		return zero, false
	}
	return v, true
}

// Save encodes v and stores it in the slot, overwriting any prior value.
func (s *Slot[D]) Save(v D) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return err
	}
	s.region.mu.Lock()
	s.region.data[s.key] = buf.Bytes()
	s.region.mu.Unlock()
	return nil
}
