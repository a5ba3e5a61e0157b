package corestate

import "testing"

func TestCellSetCoalescesEqualWrites(t *testing.T) {
	c := NewCell("test", 0, nil, nil)
	n := c.Subscribe()
	c.Seal()

	if changed := c.Set(0); changed {
		t.Fatalf("expected no-op write to report unchanged")
	}
	if n.TryGet() {
		t.Fatalf("equal write must not notify subscribers")
	}

	if changed := c.Set(1); !changed {
		t.Fatalf("expected distinct write to report changed")
	}
	if !n.TryGet() {
		t.Fatalf("distinct write must notify subscribers")
	}
}

func TestCellMultipleSubscribersAllFire(t *testing.T) {
	c := NewCell("test", 0, nil, nil)
	a := c.Subscribe()
	b := c.Subscribe()
	c.Seal()

	c.Set(5)
	if !a.TryGet() || !b.TryGet() {
		t.Fatalf("every subscriber must be notified on change")
	}
}

func TestCellRecoversFromStore(t *testing.T) {
	store := NewMemoryStore[int]()
	_ = store.Save(42)

	c := NewCell("test", 0, store, nil)
	if got := c.Get(); got != 42 {
		t.Fatalf("expected recovered value 42, got %d", got)
	}
}

func TestWearLevelingStoreGatesWrites(t *testing.T) {
	backing := NewMemoryStore[int]()
	wl := NewWearLevelingStore[int](backing, 3)

	for i := 1; i <= 2; i++ {
		_ = wl.Save(i)
	}
	if _, ok := backing.Load(); ok {
		t.Fatalf("backing should not have been written yet")
	}

	_ = wl.Save(3)
	v, ok := backing.Load()
	if !ok || v != 3 {
		t.Fatalf("expected backing write on 3rd save, got %v ok=%v", v, ok)
	}
}

func TestCachingStoreFillsCacheFromAuthoritative(t *testing.T) {
	auth := NewMemoryStore[string]()
	_ = auth.Save("persisted")
	cache := NewMemoryStore[string]()
	cs := NewCachingStore[string](cache, auth)

	v, ok := cs.Load()
	if !ok || v != "persisted" {
		t.Fatalf("expected fallback to authoritative, got %q ok=%v", v, ok)
	}
	if cv, ok := cache.Load(); !ok || cv != "persisted" {
		t.Fatalf("expected cache to be filled from authoritative read")
	}
}

func TestSubscribeAfterSealPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on Subscribe after Seal")
		}
	}()
	c := NewCell("test", 0, nil, nil)
	c.Seal()
	c.Subscribe()
}

func TestNotificationCoalesces(t *testing.T) {
	n := NewNotification()
	n.Notify()
	n.Notify()
	n.Notify()

	if !n.TryGet() {
		t.Fatalf("expected pending notification")
	}
	if n.TryGet() {
		t.Fatalf("repeated notifies before a read must coalesce to one")
	}
}

func TestSignalLatestWins(t *testing.T) {
	s := NewSignal[int]()
	s.Signal(1)
	s.Signal(2)
	s.Signal(3)

	v, ok := s.TryGet()
	if !ok || v != 3 {
		t.Fatalf("expected latest value 3, got %d ok=%v", v, ok)
	}
	if _, ok := s.TryGet(); ok {
		t.Fatalf("expected no further pending value")
	}
}
