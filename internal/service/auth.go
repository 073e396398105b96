package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vkazarin/tokenguard/internal/models"
	"github.com/vkazarin/tokenguard/internal/storage"
)

var (
	// ErrAuthenticationFailed deliberately covers both unknown identity and
	// wrong password; callers must not be able to tell them apart.
	ErrAuthenticationFailed = errors.New("invalid credentials")
	ErrInvalidRequest       = errors.New("invalid request")
)

const defaultUserRole = "user"

// TokenBlacklist captures the revocation-store operations the lifecycle
// needs; *BlacklistService is the production implementation.
type TokenBlacklist interface {
	Add(ctx context.Context, key string, expiresAt time.Time) error
	Has(ctx context.Context, key string) (bool, error)
}

// AuthService orchestrates the refresh-token state machine: a token is
// Active while its session exists and it is absent from the blacklist, and
// terminally Rotated/Revoked once consumed. Rotation is made single-use by
// a per-user lock around the check-then-consume step plus compare-and-delete
// semantics in the session store.
type AuthService struct {
	tokens    *TokenService
	storage   storage.Storage
	blacklist TokenBlacklist
	throttle  *ThrottleService
	activity  *ActivityService
	log       *zap.SugaredLogger

	lockMu    sync.Mutex
	userLocks map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func NewAuthService(
	tokens *TokenService,
	store storage.Storage,
	blacklist TokenBlacklist,
	throttle *ThrottleService,
	activity *ActivityService,
	log *zap.SugaredLogger,
) *AuthService {
	return &AuthService{
		tokens:    tokens,
		storage:   store,
		blacklist: blacklist,
		throttle:  throttle,
		activity:  activity,
		log:       log,
		userLocks: make(map[string]*userLock),
	}
}

// lockUser serializes rotation and revocation for one subject. Entries are
// refcounted and removed once the last holder unlocks, so the lock table
// does not grow with the number of distinct subjects ever seen.
func (s *AuthService) lockUser(userID string) func() {
	s.lockMu.Lock()
	l, ok := s.userLocks[userID]
	if !ok {
		l = &userLock{}
		s.userLocks[userID] = l
	}
	l.refs++
	s.lockMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		s.lockMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.userLocks, userID)
		}
		s.lockMu.Unlock()
	}
}

// Register creates the credentials and issues the first token pair.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest, client models.ClientInfo) (*models.User, *models.TokenPair, error) {
	if req.Email == "" || req.Username == "" || req.Password == "" {
		return nil, nil, fmt.Errorf("%w: email, username and password are required", ErrInvalidRequest)
	}

	user, err := s.storage.CreateUser(ctx, req.Email, req.Username, req.Password, defaultUserRole)
	if err != nil {
		return nil, nil, fmt.Errorf("create user: %w", err)
	}

	pair, err := s.issuePair(ctx, *user, client)
	if err != nil {
		return nil, nil, err
	}

	s.log.Infow("user registered", "user_id", user.ID)
	return user, pair, nil
}

// Login gates the attempt through the throttle before the credential store
// is ever consulted, records the outcome for anomaly detection, and on
// success issues a fresh pair and resets the throttle key.
func (s *AuthService) Login(ctx context.Context, identity, password string, client models.ClientInfo) (*models.TokenPair, error) {
	if identity == "" || password == "" {
		return nil, fmt.Errorf("%w: identity and password are required", ErrInvalidRequest)
	}

	if s.throttle.IsBlocked(client.IPAddress, identity) {
		s.log.Infow("login attempt while locked out", "identity", identity, "ip", client.IPAddress)
		return nil, ErrRateLimited
	}

	s.log.Debugw("login attempt", "identity", identity, "ip", client.IPAddress)

	user, err := s.storage.FindByEmailOrUsername(ctx, identity)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			s.throttle.RegisterFailure(ctx, client.IPAddress, identity)
			return nil, ErrAuthenticationFailed
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	ok, err := s.storage.VerifyPassword(ctx, user.ID, password)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		s.throttle.RegisterFailure(ctx, client.IPAddress, identity)
		s.activity.Record(ctx, user.ID, models.ActivityRecord{
			Kind:      models.ActivityLogin,
			IPAddress: client.IPAddress,
			UserAgent: client.UserAgent,
			Location:  client.Location,
			Success:   false,
		})
		s.log.Infow("login failed", "user_id", user.ID, "ip", client.IPAddress)
		return nil, ErrAuthenticationFailed
	}

	s.throttle.RegisterSuccess(client.IPAddress, identity)
	s.activity.Record(ctx, user.ID, models.ActivityRecord{
		Kind:      models.ActivityLogin,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		Location:  client.Location,
		Success:   true,
	})

	pair, err := s.issuePair(ctx, *user, client)
	if err != nil {
		return nil, err
	}

	s.log.Infow("login succeeded", "user_id", user.ID, "ip", client.IPAddress)
	return pair, nil
}

// Refresh rotates a refresh token: revocation check first (so a revoked
// token reports revoked even when it is also expired), then codec
// verification, then an atomic consume of the matching session. Exactly one
// of two concurrent calls presenting the same token can win.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, client models.ClientInfo) (*models.TokenPair, error) {
	if s.IsBlacklisted(ctx, refreshToken) {
		return nil, ErrTokenRevoked
	}

	claims, err := s.tokens.Verify(refreshToken, models.TokenKindRefresh)
	if err != nil {
		return nil, err
	}

	unlock := s.lockUser(claims.UserID())
	defer unlock()

	// Compare-and-delete: a token that is structurally valid but was never
	// recorded (or was already consumed) has no session row to delete.
	consumed, err := s.storage.RemoveSession(ctx, claims.UserID(), claims.TokenID())
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("consume session: %w", err)
	}

	if err := s.blacklist.Add(ctx, refreshToken, consumed.ExpiresAt); err != nil {
		return nil, fmt.Errorf("blacklist rotated token: %w", err)
	}

	user := models.User{
		ID:    claims.UserID(),
		Email: claims.Email,
		Role:  claims.Role,
	}

	pair, err := s.issuePair(ctx, user, client)
	if err != nil {
		return nil, err
	}

	s.activity.Record(ctx, user.ID, models.ActivityRecord{
		Kind:      models.ActivityRefresh,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		Location:  client.Location,
		Success:   true,
	})

	s.log.Infow("refresh token rotated", "user_id", user.ID)
	return pair, nil
}

// RevokeOne removes the session holding the refresh token and blacklists
// it for the remainder of its life. The presented token is only consulted
// for its embedded token id; the string and expiry that end up in the
// revocation store come from the stored session row, so a forged claim set
// cannot plant an entry outliving the real token.
func (s *AuthService) RevokeOne(ctx context.Context, userID, refreshToken string) error {
	claims, err := s.tokens.ClaimsFromToken(refreshToken)
	if err != nil {
		return err
	}
	if claims.UserID() != userID || claims.TokenID() == "" {
		return storage.ErrSessionNotFound
	}

	unlock := s.lockUser(userID)
	defer unlock()

	removed, err := s.storage.RemoveSession(ctx, userID, claims.TokenID())
	if err != nil {
		return err
	}

	if err := s.blacklist.Add(ctx, removed.RefreshToken, removed.ExpiresAt); err != nil {
		return fmt.Errorf("blacklist revoked token: %w", err)
	}

	s.log.Infow("session revoked", "user_id", userID)
	return nil
}

// RevokeAll clears every session owned by the subject and blacklists each
// outstanding refresh token.
func (s *AuthService) RevokeAll(ctx context.Context, userID string) (int, error) {
	unlock := s.lockUser(userID)
	defer unlock()

	removed, err := s.storage.ClearSessions(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("clear sessions: %w", err)
	}

	for _, session := range removed {
		if err := s.blacklist.Add(ctx, session.RefreshToken, session.ExpiresAt); err != nil {
			return 0, fmt.Errorf("blacklist revoked token: %w", err)
		}
	}

	s.activity.Record(ctx, userID, models.ActivityRecord{
		Kind:    models.ActivityLogout,
		Success: true,
	})

	s.log.Infow("all sessions revoked", "user_id", userID, "count", len(removed))
	return len(removed), nil
}

// InvalidateAccessToken blacklists a still-live access token, e.g. at
// logout. Expired tokens are a no-op.
func (s *AuthService) InvalidateAccessToken(ctx context.Context, accessToken string) error {
	claims, err := s.tokens.ClaimsFromToken(accessToken)
	if err != nil {
		return err
	}
	if claims.ExpiresAt == nil {
		return nil
	}

	if err := s.blacklist.Add(ctx, accessToken, claims.ExpiresAt.Time); err != nil {
		return fmt.Errorf("invalidate token: %w", err)
	}
	return nil
}

// IsBlacklisted fails closed: an internal error counts as blacklisted.
func (s *AuthService) IsBlacklisted(ctx context.Context, token string) bool {
	found, err := s.blacklist.Has(ctx, token)
	if err != nil {
		s.log.Errorw("blacklist check failed, treating token as revoked", "error", err)
		return true
	}
	return found
}

// ValidateAccessToken is the verification entry point for request handling:
// the blacklist is consulted before the codec so revocation takes
// precedence over expiry.
func (s *AuthService) ValidateAccessToken(ctx context.Context, accessToken string) (*TokenClaims, error) {
	if accessToken == "" {
		return nil, ErrTokenMissing
	}
	if s.IsBlacklisted(ctx, accessToken) {
		return nil, ErrTokenRevoked
	}
	return s.tokens.Verify(accessToken, models.TokenKindAccess)
}

// ListSessions returns the outstanding sessions of the subject.
func (s *AuthService) ListSessions(ctx context.Context, userID string) ([]models.Session, error) {
	return s.storage.ListSessions(ctx, userID)
}

func (s *AuthService) issuePair(ctx context.Context, user models.User, client models.ClientInfo) (*models.TokenPair, error) {
	accessToken, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	refreshToken, tokenID, err := s.tokens.IssueRefreshToken(user)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	now := s.tokens.now()
	session := models.Session{
		TokenID:      tokenID,
		RefreshToken: refreshToken,
		UserID:       user.ID,
		UserAgent:    client.UserAgent,
		IPAddress:    client.IPAddress,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.tokens.RefreshTTL()),
	}
	if err := s.storage.AppendSession(ctx, session); err != nil {
		return nil, fmt.Errorf("append session: %w", err)
	}

	return &models.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.tokens.AccessTTL().Seconds()),
		TokenType:    "Bearer",
	}, nil
}
