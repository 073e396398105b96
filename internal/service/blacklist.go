package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vkazarin/tokenguard/internal/storage"
	"github.com/vkazarin/tokenguard/internal/storage/memory"
	"github.com/vkazarin/tokenguard/internal/util"
)

// BackendStatus reports which blacklist backend served the last operation.
type BackendStatus int32

const (
	BackendPrimary BackendStatus = iota
	BackendDegraded
)

func (s BackendStatus) String() string {
	if s == BackendPrimary {
		return "primary"
	}
	return "degraded"
}

// BlacklistService is the dual-backend revocation store: a shared primary
// with native per-entry expiry and an in-process fallback swept
// periodically. Primary failures degrade silently; the caller never sees
// them.
type BlacklistService struct {
	primary        storage.RevocationBackend
	fallback       *memory.BlacklistFallback
	primaryTimeout time.Duration
	log            *zap.SugaredLogger

	mu     sync.Mutex
	status BackendStatus

	now func() time.Time

	sweepCancel  context.CancelFunc
	sweepStopped chan struct{}
	closeOnce    sync.Once
}

// NewBlacklistService starts the fallback sweep goroutine immediately.
// primary may be nil when the shared backend is disabled; the service then
// runs degraded from the start.
func NewBlacklistService(cfg *util.BlacklistConfig, primary storage.RevocationBackend, log *zap.SugaredLogger) *BlacklistService {
	s := &BlacklistService{
		primary:        primary,
		fallback:       memory.NewBlacklistFallback(),
		primaryTimeout: cfg.RedisTimeout,
		log:            log,
		now:            func() time.Time { return time.Now().UTC() },
	}
	if primary == nil {
		s.status = BackendDegraded
	}

	sweepCtx, cancel := context.WithCancel(context.Background())
	s.sweepCancel = cancel
	s.sweepStopped = make(chan struct{})
	go s.sweepLoop(sweepCtx, cfg.SweepInterval)

	return s
}

// WithClock overrides the internal clock for deterministic tests. The
// sweep goroutine is already running by the time this can be called, so
// the clock swap goes through the mutex.
func (s *BlacklistService) WithClock(clock func() time.Time) *BlacklistService {
	if clock != nil {
		s.mu.Lock()
		s.now = clock
		s.mu.Unlock()
	}
	return s
}

func (s *BlacklistService) clock() time.Time {
	s.mu.Lock()
	now := s.now
	s.mu.Unlock()
	return now()
}

// Status reports the backend the service last operated against.
func (s *BlacklistService) Status() BackendStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// transition is the single place the backend status changes.
func (s *BlacklistService) transition(to BackendStatus) {
	s.mu.Lock()
	from := s.status
	s.status = to
	s.mu.Unlock()

	if from != to {
		s.log.Warnw("blacklist backend status changed", "from", from.String(), "to", to.String())
	}
}

// Add revokes the key until expiresAt. A key that has already expired is a
// no-op: there is nothing left to revoke. Primary write failures fall back
// to the local set without surfacing an error.
func (s *BlacklistService) Add(ctx context.Context, key string, expiresAt time.Time) error {
	now := s.clock()
	ttl := expiresAt.Sub(now)
	if ttl <= 0 {
		return nil
	}

	if s.primary != nil {
		callCtx, cancel := context.WithTimeout(ctx, s.primaryTimeout)
		err := s.primary.Add(callCtx, key, ttl)
		cancel()
		if err == nil {
			s.transition(BackendPrimary)
			return nil
		}
		s.transition(BackendDegraded)
		s.log.Warnw("primary blacklist write failed, using local fallback", "error", err)
	}

	s.fallback.Add(key, expiresAt, now)
	return nil
}

// Has reports whether the key is revoked. The fallback set is always
// consulted as well: entries written while degraded must stay visible after
// the primary recovers. On primary errors the local set alone answers,
// which is a known consistency gap in multi-process deployments.
func (s *BlacklistService) Has(ctx context.Context, key string) (bool, error) {
	now := s.clock()

	if s.primary != nil {
		callCtx, cancel := context.WithTimeout(ctx, s.primaryTimeout)
		found, err := s.primary.Has(callCtx, key)
		cancel()
		if err == nil {
			s.transition(BackendPrimary)
			if found {
				return true, nil
			}
			return s.fallback.Has(key, now), nil
		}
		s.transition(BackendDegraded)
		s.log.Warnw("primary blacklist read failed, consulting local fallback", "error", err)
	}

	return s.fallback.Has(key, now), nil
}

// Shutdown stops the sweep task and releases the primary connection.
// Safe to call more than once.
func (s *BlacklistService) Shutdown() {
	s.closeOnce.Do(func() {
		s.sweepCancel()
		<-s.sweepStopped
		if s.primary != nil {
			if err := s.primary.Close(); err != nil {
				s.log.Errorw("failed to close primary blacklist backend", "error", err)
			}
		}
	})
}

func (s *BlacklistService) sweepLoop(ctx context.Context, interval time.Duration) {
	defer close(s.sweepStopped)

	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fallback.Sweep(s.clock())
		}
	}
}
