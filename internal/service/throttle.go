package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vkazarin/tokenguard/internal/models"
	"github.com/vkazarin/tokenguard/internal/util"
)

var ErrRateLimited = errors.New("too many login attempts")

type attemptRecord struct {
	count         int
	lastAttemptAt time.Time
	blockedUntil  time.Time
}

// ThrottleService counts failed login attempts per (ip, identity) pair and
// blocks the pair once the limit is reached. The lockout window slides: a
// failure after an expired block restarts the count at 1 instead of
// continuing the old one.
type ThrottleService struct {
	mu      sync.Mutex
	records map[string]*attemptRecord

	maxAttempts int
	lockout     time.Duration
	alerts      AlertDispatcher
	log         *zap.SugaredLogger
	now         func() time.Time
}

func NewThrottleService(cfg *util.ThrottleConfig, alerts AlertDispatcher, log *zap.SugaredLogger) *ThrottleService {
	return &ThrottleService{
		records:     make(map[string]*attemptRecord),
		maxAttempts: cfg.MaxAttempts,
		lockout:     cfg.LockoutDuration,
		alerts:      alerts,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (t *ThrottleService) WithClock(clock func() time.Time) *ThrottleService {
	if clock != nil {
		t.now = clock
	}
	return t
}

func throttleKey(ip, identity string) string {
	return ip + "|" + identity
}

// IsBlocked reports whether the pair is currently locked out. A block lifts
// by itself once its deadline passes.
func (t *ThrottleService) IsBlocked(ip, identity string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[throttleKey(ip, identity)]
	if !ok {
		return false
	}
	return rec.blockedUntil.After(t.now())
}

// RegisterFailure counts a failed attempt. Reaching the limit sets the
// lockout deadline and raises a one-time abuse alert for this block.
func (t *ThrottleService) RegisterFailure(ctx context.Context, ip, identity string) {
	now := t.now()
	key := throttleKey(ip, identity)

	t.mu.Lock()
	rec, ok := t.records[key]
	if !ok {
		rec = &attemptRecord{}
		t.records[key] = rec
	}

	// An expired block means the window slid past: this attempt starts a
	// fresh count rather than continuing the old one.
	if !rec.blockedUntil.IsZero() && !rec.blockedUntil.After(now) {
		rec.count = 0
		rec.blockedUntil = time.Time{}
	}

	rec.count++
	rec.lastAttemptAt = now

	blocked := false
	if rec.count >= t.maxAttempts && rec.blockedUntil.IsZero() {
		rec.blockedUntil = now.Add(t.lockout)
		blocked = true
	}
	t.mu.Unlock()

	if blocked {
		t.log.Warnw("login throttled", "ip", ip, "identity", identity, "attempts", t.maxAttempts)
		if t.alerts != nil {
			t.alerts.Dispatch(ctx, models.SecurityAlert{
				Kind:      "login_abuse",
				RiskLevel: models.RiskHigh,
				Message:   "repeated failed login attempts, key locked out",
				Context: map[string]interface{}{
					"ip":       ip,
					"identity": identity,
					"attempts": t.maxAttempts,
				},
			})
		}
	}
}

// RegisterSuccess clears the record for the pair entirely.
func (t *ThrottleService) RegisterSuccess(ip, identity string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.records, throttleKey(ip, identity))
}
