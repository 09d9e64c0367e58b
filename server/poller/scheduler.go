package poller

import (
	"context"
	"sync"
	"time"

	"github.com/hlebuschek/printer-inventory-django-sub001/server/storage"
)

// Pruner thins out inventory history. storage.Store satisfies it.
type Pruner interface {
	PruneTasks(ctx context.Context, policy storage.PrunePolicy) (storage.PruneResult, error)
}

// Scheduler polls all printers periodically and prunes history daily.
type Scheduler struct {
	svc    *Service
	pruner Pruner
	policy storage.PrunePolicy

	pollInterval  time.Duration
	pruneInterval time.Duration

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewScheduler returns a scheduler. A nil pruner disables pruning and a
// non-positive pollInterval disables periodic polling.
func NewScheduler(svc *Service, pollInterval time.Duration, pruner Pruner, policy storage.PrunePolicy) *Scheduler {
	return &Scheduler{
		svc:           svc,
		pruner:        pruner,
		policy:        policy,
		pollInterval:  pollInterval,
		pruneInterval: 24 * time.Hour,
		stopCh:        make(chan struct{}),
	}
}

// SetPruneInterval overrides the daily prune interval.
func (s *Scheduler) SetPruneInterval(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneInterval = d
}

// Start begins the background loop.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(stopCh)

	logInfo("Inventory scheduler started", "poll_interval", s.pollInterval, "prune_interval", s.pruneInterval)
}

// Stop ends the loop and waits for a pass in progress to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	logInfo("Inventory scheduler stopped")
}

func (s *Scheduler) loop(stopCh <-chan struct{}) {
	defer s.wg.Done()

	var pollC, pruneC <-chan time.Time
	if s.pollInterval > 0 {
		t := time.NewTicker(s.pollInterval)
		defer t.Stop()
		pollC = t.C
	}
	if s.pruner != nil && s.pruneInterval > 0 {
		t := time.NewTicker(s.pruneInterval)
		defer t.Stop()
		pruneC = t.C
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stopCh
		cancel()
	}()

	for {
		select {
		case <-stopCh:
			return
		case <-pollC:
			if _, err := s.svc.RunAll(ctx); err != nil {
				logWarn("Scheduled inventory pass incomplete", "error", err)
			}
		case <-pruneC:
			s.prune(ctx)
		}
	}
}

func (s *Scheduler) prune(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	policy := s.policy
	policy.Now = time.Now()
	res, err := s.pruner.PruneTasks(ctx, policy)
	if err != nil {
		logError("History pruning failed", "error", err)
		return
	}
	logInfo("History pruned", "examined", res.Examined, "deleted", res.Deleted, "expired", res.Expired, "kept", res.Kept)
}
