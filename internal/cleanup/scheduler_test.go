package cleanup

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSweepRemovesOnlyStaleEntries(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "old-request")
	fresh := filepath.Join(dir, "new-request")
	for _, d := range []string{stale, fresh} {
		if err := os.MkdirAll(filepath.Join(d, "media"), 0755); err != nil {
			t.Fatal(err)
		}
	}
	old := time.Now().Add(-3 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}

	s := NewScheduler(dir, time.Hour, 2*time.Hour, nil)
	if n := s.Sweep(time.Now()); n != 1 {
		t.Fatalf("expected 1 removal, got %d", n)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale dir should be gone")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Errorf("fresh dir should remain: %v", err)
	}
}

func TestSweepMissingDir(t *testing.T) {
	s := NewScheduler(filepath.Join(t.TempDir(), "absent"), time.Hour, time.Hour, nil)
	if n := s.Sweep(time.Now()); n != 0 {
		t.Errorf("expected nothing removed, got %d", n)
	}
}

func TestStartStop(t *testing.T) {
	s := NewScheduler(t.TempDir(), time.Millisecond, time.Hour, nil)
	s.Start()
	time.Sleep(5 * time.Millisecond)
	s.Stop()
	s.Stop()
}
