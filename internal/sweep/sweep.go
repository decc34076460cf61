// Package sweep implements the periodic expiration sweep of §5: every
// interval (default 60s) it transitions CREATED/PENDING_COMMIT activations
// whose timestampActivationExpire has passed to REMOVED.
//
// Grounded on the teacher's ticker-driven Scheduler in
// packages/com.r3e.services.automation/scheduler.go: an immediate first
// tick, then a ticker loop, with Start/Stop lifecycle methods — trimmed of
// the teacher's framework.ServiceBase/tracer scaffolding, which has no
// equivalent concern in this core.
package sweep

import (
	"context"
	"sync"
	"time"

	"powerauth-server/internal/observability/logging"
)

// Expirer sweeps and removes expired activations, batched by limit. It is
// implemented by the service façade so the sweeper does not need its own
// copy of the state-machine transition logic.
type Expirer interface {
	SweepExpired(ctx context.Context, limit int) (removed int, err error)
}

// ExpirerFunc adapts a function to Expirer.
type ExpirerFunc func(ctx context.Context, limit int) (int, error)

func (f ExpirerFunc) SweepExpired(ctx context.Context, limit int) (int, error) { return f(ctx, limit) }

// Sweeper runs Expirer.SweepExpired on a fixed interval in the background.
type Sweeper struct {
	expirer  Expirer
	interval time.Duration
	batch    int
	log      *logging.Logger
	onRun    func(removed int)

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// New creates a Sweeper. interval defaults to 60s and batch to 200 when
// non-positive, matching §5's documented default.
func New(expirer Expirer, interval time.Duration, batch int, log *logging.Logger) *Sweeper {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	if batch <= 0 {
		batch = 200
	}
	return &Sweeper{expirer: expirer, interval: interval, batch: batch, log: log}
}

// OnRun registers a callback invoked after every sweep tick that completes
// without error, with the number of activations removed, used by internal/metrics to record
// SweepRunsTotal/SweepExpiredTotal without this package importing metrics.
func (s *Sweeper) OnRun(fn func(removed int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRun = fn
}

// Start begins the background polling loop. A no-op if already running.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.tick(runCtx)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.tick(runCtx)
			}
		}
	}()
}

// Stop halts the polling loop and waits for the in-flight tick to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.running = false
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *Sweeper) tick(ctx context.Context) {
	tickCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	removed, err := s.expirer.SweepExpired(tickCtx, s.batch)
	if err != nil {
		if s.log != nil {
			s.log.WithContext(ctx).WithField("error", err.Error()).Warn("expiration sweep tick failed")
		}
		return
	}

	if removed > 0 && s.log != nil {
		s.log.WithContext(ctx).WithField("removed", removed).Info("expiration sweep removed activations")
	}

	s.mu.Lock()
	fn := s.onRun
	s.mu.Unlock()
	if fn != nil {
		fn(removed)
	}
}
