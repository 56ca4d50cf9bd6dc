package service

import (
	"blog_auth/internal/auth"
	"blog_auth/internal/models"
	"blog_auth/internal/storage"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/uuid"
)

const (
	accessTokenTTL    = 15 * time.Minute
	refreshTokenTTL   = 30 * 24 * time.Hour
	rotationThreshold = 24 * time.Hour
)

type Service interface {
	Register(ctx context.Context, in RegisterInput) (AuthResult, error)
	Login(ctx context.Context, email, password string) (AuthResult, error)
	RefreshAccessToken(ctx context.Context, refreshToken string) (RefreshResult, error)
	Logout(ctx context.Context, accessToken string)
	Authenticate(accessToken string) (auth.Payload, error)
	Profile(ctx context.Context, userID string) (models.Profile, error)
}

// Config holds the token lifetimes. RefreshTTL is also the session lifetime.
type Config struct {
	AccessTTL         time.Duration
	RefreshTTL        time.Duration
	RotationThreshold time.Duration
}

func DefaultConfig() Config {
	return Config{
		AccessTTL:         accessTokenTTL,
		RefreshTTL:        refreshTokenTTL,
		RotationThreshold: rotationThreshold,
	}
}

type RegisterInput struct {
	Name           string
	Email          string
	Password       string
	ProfilePicture string
}

type AuthResult struct {
	User         models.Profile
	AccessToken  string
	RefreshToken string
}

// RefreshResult carries a NewRefreshToken only when the session was rotated.
type RefreshResult struct {
	AccessToken     string
	NewRefreshToken string
}

func (r RefreshResult) Rotated() bool { return r.NewRefreshToken != "" }

var _ Service = (*AuthService)(nil)

type AuthService struct {
	users    storage.UserStorage
	sessions storage.SessionStorage
	hasher   *auth.Hasher
	tokens   *auth.TokenCodec
	cfg      Config
	log      *slog.Logger
	now      func() time.Time
}

type Option func(*AuthService)

func WithClock(now func() time.Time) Option {
	return func(s *AuthService) {
		s.now = now
	}
}

func NewService(
	users storage.UserStorage,
	sessions storage.SessionStorage,
	hasher *auth.Hasher,
	tokens *auth.TokenCodec,
	cfg Config,
	lgr *slog.Logger,
	opts ...Option,
) *AuthService {
	s := &AuthService{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		tokens:   tokens,
		cfg:      cfg,
		log:      lgr,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (AuthResult, error) {
	const op = "service.Register"

	_, err := s.users.GetUserByEmail(ctx, in.Email)
	switch {
	case err == nil:
		return AuthResult{}, conflict(msgEmailInUse)
	case !errors.Is(err, storage.ErrNotFound):
		return AuthResult{}, fmt.Errorf("%s: %w", op, err)
	}

	passwordHash, err := s.hasher.Hash(in.Password)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		return AuthResult{}, invalidInput(msgPasswordTooLong)
	}
	if err != nil {
		return AuthResult{}, fmt.Errorf("%s: %w", op, err)
	}

	picture := in.ProfilePicture
	if picture == "" {
		picture = models.DefaultProfilePicture
	}

	user, err := s.users.CreateUser(ctx, models.User{
		Name:           in.Name,
		Email:          in.Email,
		PasswordHash:   passwordHash,
		ProfilePicture: picture,
	})
	if errors.Is(err, storage.ErrEmailTaken) {
		// Lost the race with a concurrent registration.
		return AuthResult{}, conflict(msgEmailInUse)
	}
	if err != nil {
		return AuthResult{}, fmt.Errorf("%s: %w", op, err)
	}

	return s.startSession(ctx, op, user)
}

func (s *AuthService) Login(ctx context.Context, email, password string) (AuthResult, error) {
	const op = "service.Login"

	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		s.hasher.Burn(password)
		return AuthResult{}, unauthorized(msgInvalidCredentials)
	}
	if err != nil {
		return AuthResult{}, fmt.Errorf("%s: %w", op, err)
	}

	if ok := s.hasher.Verify(password, user.PasswordHash); !ok {
		return AuthResult{}, unauthorized(msgInvalidCredentials)
	}

	return s.startSession(ctx, op, user)
}

func (s *AuthService) startSession(ctx context.Context, op string, user models.User) (AuthResult, error) {
	session, err := s.sessions.CreateSession(ctx, user.ID, s.now().Add(s.cfg.RefreshTTL))
	if err != nil {
		return AuthResult{}, fmt.Errorf("%s: %w", op, err)
	}

	accessToken, err := s.tokens.Sign(auth.Payload{
		UserID:    user.ID.String(),
		SessionID: session.ID.String(),
	}, auth.RoleAccess, s.cfg.AccessTTL)
	if err != nil {
		return AuthResult{}, fmt.Errorf("%s: %w", op, err)
	}

	refreshToken, err := s.tokens.Sign(auth.Payload{SessionID: session.ID.String()}, auth.RoleRefresh, s.cfg.RefreshTTL)
	if err != nil {
		return AuthResult{}, fmt.Errorf("%s: %w", op, err)
	}

	return AuthResult{
		User:         user.Profile(),
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// RefreshAccessToken mints a new access token for the session behind
// refreshToken. The session and refresh token are rotated only when the
// session is within RotationThreshold of its expiry.
func (s *AuthService) RefreshAccessToken(ctx context.Context, refreshToken string) (RefreshResult, error) {
	const op = "service.RefreshAccessToken"

	log := s.log.With(slog.String("op", op))

	payload, err := s.tokens.Verify(refreshToken, auth.RoleRefresh)
	if err != nil {
		log.Debug("refresh token rejected", slog.Any("error", err))

		return RefreshResult{}, unauthorized(msgInvalidRefresh)
	}

	sessionID, err := uuid.FromString(payload.SessionID)
	if err != nil {
		log.Debug("refresh token carries invalid session id", slog.String("session_id", payload.SessionID))

		return RefreshResult{}, unauthorized(msgInvalidRefresh)
	}

	session, err := s.sessions.GetSessionByID(ctx, sessionID)
	if errors.Is(err, storage.ErrNotFound) {
		log.Debug("session not found", slog.Any("session_id", sessionID))

		return RefreshResult{}, unauthorized(msgInvalidRefresh)
	}
	if err != nil {
		return RefreshResult{}, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now()
	if session.Expired(now) {
		log.Debug("session expired", slog.Any("session_id", sessionID), slog.Time("expires_at", session.ExpiresAt))

		if err := s.sessions.DeleteSession(ctx, sessionID); err != nil {
			log.Warn("failed to delete expired session", slog.Any("error", err))
		}

		return RefreshResult{}, unauthorized(msgInvalidRefresh)
	}

	var result RefreshResult

	if session.ExpiresAt.Sub(now) <= s.cfg.RotationThreshold {
		err := s.sessions.ExtendSession(ctx, sessionID, now.Add(s.cfg.RefreshTTL))
		if errors.Is(err, storage.ErrNotFound) {
			// Deleted by a concurrent logout.
			return RefreshResult{}, unauthorized(msgInvalidRefresh)
		}
		if err != nil {
			return RefreshResult{}, fmt.Errorf("%s: %w", op, err)
		}

		result.NewRefreshToken, err = s.tokens.Sign(auth.Payload{SessionID: sessionID.String()}, auth.RoleRefresh, s.cfg.RefreshTTL)
		if err != nil {
			return RefreshResult{}, fmt.Errorf("%s: %w", op, err)
		}

		log.Info("session rotated", slog.Any("session_id", sessionID))
	}

	result.AccessToken, err = s.tokens.Sign(auth.Payload{
		UserID:    session.UserID.String(),
		SessionID: sessionID.String(),
	}, auth.RoleAccess, s.cfg.AccessTTL)
	if err != nil {
		return RefreshResult{}, fmt.Errorf("%s: %w", op, err)
	}

	return result, nil
}

// Logout deletes the session behind accessToken. An invalid or expired token
// counts as already logged out.
func (s *AuthService) Logout(ctx context.Context, accessToken string) {
	const op = "service.Logout"

	log := s.log.With(slog.String("op", op))

	payload, err := s.tokens.Verify(accessToken, auth.RoleAccess)
	if err != nil {
		log.Debug("logout without valid access token", slog.Any("error", err))

		return
	}

	sessionID, err := uuid.FromString(payload.SessionID)
	if err != nil {
		return
	}

	if err := s.sessions.DeleteSession(ctx, sessionID); err != nil {
		log.Error("failed to delete session", slog.Any("session_id", sessionID), slog.Any("error", err))

		return
	}

	log.Info("user logout", slog.String("user_id", payload.UserID), slog.Any("session_id", sessionID))
}

// Authenticate checks an access token without touching the store.
func (s *AuthService) Authenticate(accessToken string) (auth.Payload, error) {
	payload, err := s.tokens.Verify(accessToken, auth.RoleAccess)
	if err != nil || payload.UserID == "" {
		return auth.Payload{}, unauthorized(msgInvalidAccess)
	}

	return payload, nil
}

func (s *AuthService) Profile(ctx context.Context, userID string) (models.Profile, error) {
	const op = "service.Profile"

	id, err := uuid.FromString(userID)
	if err != nil {
		return models.Profile{}, unauthorized(msgInvalidAccess)
	}

	user, err := s.users.GetUserByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return models.Profile{}, unauthorized(msgInvalidAccess)
	}
	if err != nil {
		return models.Profile{}, fmt.Errorf("%s: %w", op, err)
	}

	return user.Profile(), nil
}

func (s *AuthService) SweepExpiredSessions(ctx context.Context) (int64, error) {
	const op = "service.SweepExpiredSessions"

	n, err := s.sessions.DeleteExpiredSessions(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}

// RunSweeper deletes expired sessions every interval until ctx is done.
func (s *AuthService) RunSweeper(ctx context.Context, interval time.Duration) {
	log := s.log.With(slog.String("op", "service.RunSweeper"))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.SweepExpiredSessions(ctx)
			if err != nil {
				log.Error("failed to sweep sessions", slog.Any("error", err))

				continue
			}
			if n > 0 {
				log.Info("expired sessions removed", slog.Int64("count", n))
			}
		}
	}
}
