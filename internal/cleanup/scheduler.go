// Package cleanup sweeps request work directories left behind by crashed runs.
package cleanup

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"shortform-studio/internal/logging"
)

// Scheduler removes top-level entries of workDir whose modification time is
// older than maxAge. Each request owns one such entry.
type Scheduler struct {
	workDir  string
	interval time.Duration
	maxAge   time.Duration
	log      *zap.Logger

	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
}

func NewScheduler(workDir string, interval, maxAge time.Duration, log *zap.Logger) *Scheduler {
	return &Scheduler{
		workDir:  workDir,
		interval: interval,
		maxAge:   maxAge,
		log:      logging.OrNop(log).Named("cleanup"),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start sweeps once, then every interval until Stop.
func (s *Scheduler) Start() {
	s.Sweep(time.Now())

	ticker := time.NewTicker(s.interval)
	go func() {
		defer close(s.done)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				s.Sweep(now)
			case <-s.stopChan:
				return
			}
		}
	}()

	s.log.Info("cleanup scheduler started",
		zap.Duration("interval", s.interval),
		zap.Duration("max_age", s.maxAge))
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		<-s.done
		s.log.Info("cleanup scheduler stopped")
	})
}

// Sweep returns how many entries it removed.
func (s *Scheduler) Sweep(now time.Time) int {
	entries, err := os.ReadDir(s.workDir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("cannot read work dir", zap.Error(err))
		}
		return 0
	}

	removed := 0
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		age := now.Sub(info.ModTime())
		if age <= s.maxAge {
			continue
		}
		path := filepath.Join(s.workDir, e.Name())
		if err := os.RemoveAll(path); err != nil {
			s.log.Warn("failed to delete stale work dir", zap.String("path", path), zap.Error(err))
			continue
		}
		removed++
		s.log.Info("deleted stale work dir", zap.String("name", e.Name()), zap.Duration("age", age.Round(time.Minute)))
	}
	return removed
}

// EnsureDir creates the work directory if it doesn't exist
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}
