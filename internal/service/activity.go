package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vkazarin/tokenguard/internal/models"
)

const (
	activityHistoryCap = 50

	rapidLoginWindow    = 5 * time.Minute
	rapidLoginSpan      = 3
	unusualHourLookback = 20
	unusualHourMinPrior = 5
	unusualHourMaxDrift = 6.0
	failureBurstWindow  = 5
	failureBurstMin     = 3
	newLocationMinSeen  = 2
)

// ActivityService keeps a capped per-user activity history and evaluates
// pattern heuristics on every new record. Medium and high risk findings are
// forwarded to the alert dispatcher; low ones are only logged.
type ActivityService struct {
	mu      sync.Mutex
	history map[string][]models.ActivityRecord

	alerts AlertDispatcher
	log    *zap.SugaredLogger
	now    func() time.Time
}

func NewActivityService(alerts AlertDispatcher, log *zap.SugaredLogger) *ActivityService {
	return &ActivityService{
		history: make(map[string][]models.ActivityRecord),
		alerts:  alerts,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (a *ActivityService) WithClock(clock func() time.Time) *ActivityService {
	if clock != nil {
		a.now = clock
	}
	return a
}

// Record appends the record to the user's history, evicting the oldest
// entry past the cap, and runs the heuristics. The detected alerts are
// returned; medium and high ones are also dispatched.
func (a *ActivityService) Record(ctx context.Context, userID string, rec models.ActivityRecord) []models.SecurityAlert {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = a.now()
	}

	a.mu.Lock()
	prior := a.history[userID]
	// Heuristics look at the history before this record; keep a private
	// copy so evaluation happens outside the lock.
	snapshot := make([]models.ActivityRecord, len(prior))
	copy(snapshot, prior)

	updated := append(prior, rec)
	if len(updated) > activityHistoryCap {
		updated = updated[len(updated)-activityHistoryCap:]
	}
	a.history[userID] = updated
	a.mu.Unlock()

	alerts := a.evaluate(userID, snapshot, rec)
	for _, alert := range alerts {
		if alert.RiskLevel == models.RiskLow {
			a.log.Infow("low-risk activity pattern recorded",
				"user_id", userID, "kind", alert.Kind, "message", alert.Message)
			continue
		}
		if a.alerts != nil {
			a.alerts.Dispatch(ctx, alert)
		}
	}

	return alerts
}

// History returns a copy of the user's activity buffer.
func (a *ActivityService) History(userID string) []models.ActivityRecord {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]models.ActivityRecord, len(a.history[userID]))
	copy(out, a.history[userID])
	return out
}

func (a *ActivityService) evaluate(userID string, prior []models.ActivityRecord, rec models.ActivityRecord) []models.SecurityAlert {
	var alerts []models.SecurityAlert

	if alert := detectNewLocation(userID, prior, rec); alert != nil {
		alerts = append(alerts, *alert)
	}
	if alert := detectRapidMultiIP(userID, prior, rec); alert != nil {
		alerts = append(alerts, *alert)
	}
	if alert := detectUnusualHour(userID, prior, rec); alert != nil {
		alerts = append(alerts, *alert)
	}
	if alert := detectSuccessAfterFailures(userID, prior, rec); alert != nil {
		alerts = append(alerts, *alert)
	}

	return alerts
}

// detectNewLocation flags a successful login whose location was never seen
// in prior successful logins. Only evaluated once at least two distinct
// locations are already known, so early history does not spam alerts.
func detectNewLocation(userID string, prior []models.ActivityRecord, rec models.ActivityRecord) *models.SecurityAlert {
	if rec.Kind != models.ActivityLogin || !rec.Success || rec.Location == "" {
		return nil
	}

	seen := make(map[string]struct{})
	for _, r := range prior {
		if r.Kind == models.ActivityLogin && r.Success && r.Location != "" {
			seen[r.Location] = struct{}{}
		}
	}
	if len(seen) < newLocationMinSeen {
		return nil
	}
	if _, ok := seen[rec.Location]; ok {
		return nil
	}

	return &models.SecurityAlert{
		UserID:    userID,
		Kind:      "new_location_login",
		RiskLevel: models.RiskMedium,
		Message:   fmt.Sprintf("successful login from previously unseen location %q", rec.Location),
		Context:   map[string]interface{}{"location": rec.Location, "ip": rec.IPAddress},
	}
}

// detectRapidMultiIP flags two or more distinct IPs among the last three
// successful logins that fall inside the five-minute window ending at the
// current login. Anchoring the window to the current record means older
// logins among the last three drop out instead of widening the span.
func detectRapidMultiIP(userID string, prior []models.ActivityRecord, rec models.ActivityRecord) *models.SecurityAlert {
	if rec.Kind != models.ActivityLogin || !rec.Success {
		return nil
	}

	cutoff := rec.Timestamp.Add(-rapidLoginWindow)
	ips := map[string]struct{}{rec.IPAddress: {}}
	seen := 1
	for i := len(prior) - 1; i >= 0 && seen < rapidLoginSpan; i-- {
		r := prior[i]
		if r.Kind != models.ActivityLogin || !r.Success {
			continue
		}
		seen++
		if r.Timestamp.Before(cutoff) {
			continue
		}
		ips[r.IPAddress] = struct{}{}
	}
	if len(ips) < 2 {
		return nil
	}

	return &models.SecurityAlert{
		UserID:    userID,
		Kind:      "rapid_multi_ip_login",
		RiskLevel: models.RiskHigh,
		Message:   fmt.Sprintf("%d distinct IPs across recent logins within %s", len(ips), rapidLoginWindow),
		Context:   map[string]interface{}{"ips": len(ips), "current_ip": rec.IPAddress},
	}
}

// detectUnusualHour compares the login hour against the rolling mean of
// recent successful logins. Low risk: recorded, never dispatched.
func detectUnusualHour(userID string, prior []models.ActivityRecord, rec models.ActivityRecord) *models.SecurityAlert {
	if rec.Kind != models.ActivityLogin || !rec.Success {
		return nil
	}

	window := prior
	if len(window) > unusualHourLookback {
		window = window[len(window)-unusualHourLookback:]
	}

	var hours []float64
	for _, r := range window {
		if r.Kind == models.ActivityLogin && r.Success {
			hours = append(hours, float64(r.Timestamp.Hour()))
		}
	}
	if len(hours) < unusualHourMinPrior {
		return nil
	}

	var sum float64
	for _, h := range hours {
		sum += h
	}
	mean := sum / float64(len(hours))

	drift := float64(rec.Timestamp.Hour()) - mean
	if drift < 0 {
		drift = -drift
	}
	// Hours wrap around midnight.
	if wrapped := 24 - drift; wrapped < drift {
		drift = wrapped
	}
	if drift <= unusualHourMaxDrift {
		return nil
	}

	return &models.SecurityAlert{
		UserID:    userID,
		Kind:      "unusual_hour_login",
		RiskLevel: models.RiskLow,
		Message:   fmt.Sprintf("login hour deviates %.1fh from the usual pattern", drift),
		Context:   map[string]interface{}{"hour": rec.Timestamp.Hour()},
	}
}

// detectSuccessAfterFailures flags a success immediately preceded by a
// burst of failed logins.
func detectSuccessAfterFailures(userID string, prior []models.ActivityRecord, rec models.ActivityRecord) *models.SecurityAlert {
	if rec.Kind != models.ActivityLogin || !rec.Success {
		return nil
	}

	attempts := 0
	failures := 0
	for i := len(prior) - 1; i >= 0 && attempts < failureBurstWindow; i-- {
		if prior[i].Kind != models.ActivityLogin {
			continue
		}
		attempts++
		if !prior[i].Success {
			failures++
		}
	}
	if failures < failureBurstMin {
		return nil
	}

	return &models.SecurityAlert{
		UserID:    userID,
		Kind:      "success_after_failures",
		RiskLevel: models.RiskMedium,
		Message:   fmt.Sprintf("successful login after %d recent failed attempts", failures),
		Context:   map[string]interface{}{"failures": failures, "ip": rec.IPAddress},
	}
}
