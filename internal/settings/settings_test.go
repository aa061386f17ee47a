package settings

import (
	"sync"
	"testing"
	"time"
)

func TestNewDefaults(t *testing.T) {
	s := New()

	snap := s.Snapshot()
	if snap.Interval != 5*time.Second {
		t.Errorf("Interval: got %v, want 5s", snap.Interval)
	}
	if !snap.Enabled {
		t.Error("expected Enabled=true initially")
	}
	if snap.FirmwareVersion != "1.0" {
		t.Errorf("FirmwareVersion: got %q, want %q", snap.FirmwareVersion, "1.0")
	}
}

func TestSetInterval(t *testing.T) {
	s := New()

	old := s.SetInterval(10 * time.Second)
	if old != 5*time.Second {
		t.Errorf("old interval: got %v, want 5s", old)
	}
	if got := s.Interval(); got != 10*time.Second {
		t.Errorf("Interval: got %v, want 10s", got)
	}
}

func TestSetIntervalStoresSubSecondValues(t *testing.T) {
	s := New()

	s.SetInterval(250 * time.Millisecond)
	if got := s.Interval(); got != 250*time.Millisecond {
		t.Errorf("Interval: got %v, want 250ms", got)
	}
}

func TestSetEnabled(t *testing.T) {
	s := New()

	old := s.SetEnabled(false)
	if !old {
		t.Error("old enabled: got false, want true")
	}
	if s.Enabled() {
		t.Error("expected Enabled=false after write")
	}

	old = s.SetEnabled(true)
	if old {
		t.Error("old enabled: got true, want false")
	}
	if !s.Enabled() {
		t.Error("expected Enabled=true after write")
	}
}

func TestSetFirmwareVersion(t *testing.T) {
	s := New()

	old := s.SetFirmwareVersion("2.3")
	if old != "1.0" {
		t.Errorf("old version: got %q, want %q", old, "1.0")
	}
	if got := s.Snapshot().FirmwareVersion; got != "2.3" {
		t.Errorf("FirmwareVersion: got %q, want %q", got, "2.3")
	}
}

func TestFieldsUpdateIndependently(t *testing.T) {
	s := New()

	s.SetInterval(30 * time.Second)
	s.SetEnabled(false)

	snap := s.Snapshot()
	if snap.Interval != 30*time.Second {
		t.Errorf("Interval: got %v, want 30s", snap.Interval)
	}
	if snap.Enabled {
		t.Error("expected Enabled=false")
	}
	if snap.FirmwareVersion != "1.0" {
		t.Errorf("FirmwareVersion should be untouched: got %q", snap.FirmwareVersion)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	s := New()

	snap := s.Snapshot()
	s.SetInterval(45 * time.Second)

	if snap.Interval != 5*time.Second {
		t.Error("snapshot should be a copy; Interval was modified")
	}
}

func TestConcurrentReadersAndWriters(t *testing.T) {
	s := New()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.SetInterval(time.Duration(n+1) * time.Second)
				s.SetEnabled(j%2 == 0)
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				snap := s.Snapshot()
				if snap.Interval < time.Second {
					t.Errorf("observed torn interval: %v", snap.Interval)
				}
			}
		}()
	}
	wg.Wait()
}
