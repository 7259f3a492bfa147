package registry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"erevent/internal/apperr"
)

func TestRegisterValidation(t *testing.T) {
	r := New(time.Minute)

	if err := r.Register("", "laptop", "10.0.0.1", 0); !apperr.IsKind(err, apperr.Validation) {
		t.Errorf("expected validation error for empty id, got %v", err)
	}
	if err := r.Register("dev-1", "", "10.0.0.1", 0); !apperr.IsKind(err, apperr.Validation) {
		t.Errorf("expected validation error for empty name, got %v", err)
	}
	if err := r.Register("dev-1", "laptop", "10.0.0.1", 0); err != nil {
		t.Fatalf("valid registration failed: %v", err)
	}
}

func TestReregisterOverwrites(t *testing.T) {
	r := New(time.Minute)

	if err := r.Register("dev-1", "laptop", "10.0.0.1", 4000); err != nil {
		t.Fatal(err)
	}
	if err := r.Register("dev-1", "work-laptop", "10.0.0.9", 4001); err != nil {
		t.Fatal(err)
	}

	if got := r.Len(); got != 1 {
		t.Fatalf("expected 1 device after re-registration, got %d", got)
	}
	dev, err := r.Get("dev-1")
	if err != nil {
		t.Fatal(err)
	}
	if dev.Name != "work-laptop" || dev.Address != "10.0.0.9" || dev.NotifyPort != 4001 {
		t.Errorf("re-registration did not overwrite fields: %+v", dev)
	}
}

func TestHeartbeatUnknownDevice(t *testing.T) {
	r := New(time.Minute)

	err := r.Heartbeat("ghost")
	if !apperr.IsKind(err, apperr.NotFound) {
		t.Errorf("expected not_found for unknown device, got %v", err)
	}
}

func TestLivenessBoundary(t *testing.T) {
	r := New(60 * time.Second)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	now := base
	r.SetClock(func() time.Time { return now })

	if err := r.Register("dev-1", "laptop", "10.0.0.1", 0); err != nil {
		t.Fatal(err)
	}

	now = base.Add(59 * time.Second)
	if got := r.List()["dev-1"].Status; got != StatusOnline {
		t.Errorf("expected online at 59s, got %s", got)
	}

	// now - last_seen == timeout means offline, not online.
	now = base.Add(60 * time.Second)
	if got := r.List()["dev-1"].Status; got != StatusOffline {
		t.Errorf("expected offline at exactly 60s, got %s", got)
	}

	if r.Online("dev-1") {
		t.Error("Online should agree with List at the boundary")
	}

	// A heartbeat revives the device.
	if err := r.Heartbeat("dev-1"); err != nil {
		t.Fatal(err)
	}
	if got := r.List()["dev-1"].Status; got != StatusOnline {
		t.Errorf("expected online after heartbeat, got %s", got)
	}
}

func TestPrune(t *testing.T) {
	r := New(time.Minute)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	now := base
	r.SetClock(func() time.Time { return now })

	r.Register("old", "old-device", "10.0.0.1", 0)
	now = base.Add(2 * time.Hour)
	r.Register("fresh", "fresh-device", "10.0.0.2", 0)

	if removed := r.Prune(time.Hour); removed != 1 {
		t.Fatalf("expected 1 pruned device, got %d", removed)
	}
	if _, err := r.Get("old"); !apperr.IsKind(err, apperr.NotFound) {
		t.Error("pruned device should be gone")
	}
	if _, err := r.Get("fresh"); err != nil {
		t.Error("fresh device should survive pruning")
	}
}

func TestConcurrentHeartbeats(t *testing.T) {
	r := New(time.Minute)

	const devices = 50
	for i := 0; i < devices; i++ {
		id := fmt.Sprintf("dev-%d", i)
		if err := r.Register(id, fmt.Sprintf("device %d", i), "10.0.0.1", 0); err != nil {
			t.Fatal(err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < devices; i++ {
		id := fmt.Sprintf("dev-%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if err := r.Heartbeat(id); err != nil {
					t.Errorf("heartbeat %s: %v", id, err)
					return
				}
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				r.List()
			}
		}()
	}
	wg.Wait()

	views := r.List()
	if len(views) != devices {
		t.Fatalf("expected %d devices, got %d", devices, len(views))
	}
	for i := 0; i < devices; i++ {
		id := fmt.Sprintf("dev-%d", i)
		view, ok := views[id]
		if !ok {
			t.Fatalf("device %s missing from listing", id)
		}
		if view.Status != StatusOnline {
			t.Errorf("device %s should be online, got %s", id, view.Status)
		}
		if view.Name != fmt.Sprintf("device %d", i) {
			t.Errorf("device %s has corrupted name %q", id, view.Name)
		}
	}
}
