// Package service implements the token and session lifecycle: register, login, refresh with
// rotation and replay detection, logout, logout-all, and access-token authentication.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"identity-service/internal/autherr"
	"identity-service/internal/security"
	sessiondomain "identity-service/internal/session/domain"
	"identity-service/internal/telemetry"
	"identity-service/internal/token"
	userdomain "identity-service/internal/user/domain"
)

const instrumentationName = "identity-service/auth"

// AuthResult holds the outcome of Login and Refresh.
type AuthResult struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	UserID           string    `json:"user_id"`
	SessionID        string    `json:"session_id"`
}

// UserInfo is the introspection view of the authenticated user.
type UserInfo struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	IsActive bool   `json:"is_active"`
}

// UserRepo is the minimal user repository needed by the auth service.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
	Create(ctx context.Context, u *userdomain.User) error
}

// SessionRepo is the minimal session repository needed by the auth service.
type SessionRepo interface {
	Create(ctx context.Context, s *sessiondomain.Session) error
	GetByID(ctx context.Context, id string) (*sessiondomain.Session, error)
	Delete(ctx context.Context, id string) (*sessiondomain.Session, error)
	DeleteAllForUser(ctx context.Context, userID string) ([]*sessiondomain.Session, error)
	UpdateRefreshHash(ctx context.Context, id, expectedOldHash string, r sessiondomain.Rotation) error
}

// RevocationRegistry records token ids that must be rejected until they expire.
type RevocationRegistry interface {
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// PasswordHasher hashes and verifies passwords; security.Hasher implements it.
type PasswordHasher interface {
	Hash(password []byte) (string, error)
	Compare(hash string, password []byte) error
}

// Config holds the lifetimes and logout policy.
type Config struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// RevokeAccessOnLogout revokes a session's outstanding access token when the session is
	// logged out, instead of letting it run to expiry.
	RevokeAccessOnLogout bool
}

// Option configures an AuthService.
type Option func(*AuthService)

// WithClock overrides the time source for issuance and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *AuthService) { s.now = now }
}

// WithTelemetry records spans and operation counters with the given providers.
func WithTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) Option {
	return func(s *AuthService) {
		if tp != nil {
			s.tracer = tp.Tracer(instrumentationName)
		}
		if mp != nil {
			s.meter = mp.Meter(instrumentationName)
		}
	}
}

// WithEventEmitter sends one audit event per operation.
func WithEventEmitter(emitter telemetry.EventEmitter) Option {
	return func(s *AuthService) { s.events = emitter }
}

// AuthService orchestrates the session state machine: none -> active (login), active ->
// active (refresh), active -> gone (logout, logout-all, expiry cleanup).
type AuthService struct {
	users    UserRepo
	sessions SessionRepo
	registry RevocationRegistry
	hasher   PasswordHasher
	codec    *token.Codec
	policy   *token.Policy
	cfg      Config
	now      func() time.Time

	tracer   trace.Tracer
	meter    metric.Meter
	ops      metric.Int64Counter
	duration metric.Float64Histogram
	events   telemetry.EventEmitter

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService returns an AuthService with the given dependencies.
func NewAuthService(
	users UserRepo,
	sessions SessionRepo,
	registry RevocationRegistry,
	hasher PasswordHasher,
	codec *token.Codec,
	cfg Config,
	opts ...Option,
) (*AuthService, error) {
	if users == nil || sessions == nil || registry == nil || hasher == nil || codec == nil {
		return nil, errors.New("auth: all dependencies are required")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("auth: token lifetimes must be positive")
	}
	s := &AuthService{
		users:    users,
		sessions: sessions,
		registry: registry,
		hasher:   hasher,
		codec:    codec,
		cfg:      cfg,
		now:      time.Now,
		tracer:   tracenoop.NewTracerProvider().Tracer(instrumentationName),
		meter:    metricnoop.NewMeterProvider().Meter(instrumentationName),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.policy = token.NewPolicy(registry, s.now)

	var err error
	s.ops, err = s.meter.Int64Counter("identity.auth.operations",
		metric.WithDescription("Auth operations by outcome"))
	if err != nil {
		return nil, fmt.Errorf("auth: counter: %w", err)
	}
	s.duration, err = s.meter.Float64Histogram("identity.auth.duration",
		metric.WithDescription("Auth operation latency"), metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("auth: histogram: %w", err)
	}
	return s, nil
}

type correlationKey struct{}

// WithCorrelationID attaches the id that Login and Refresh embed as the access token's cid.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationIDFrom returns the correlation id attached to ctx, if any.
func CorrelationIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(correlationKey{}).(string)
	return id, ok && id != ""
}

func correlationID(ctx context.Context) string {
	if id, ok := CorrelationIDFrom(ctx); ok {
		return id
	}
	return uuid.New().String()
}

// Register creates an active user with the default role. Returns the new user id.
func (s *AuthService) Register(ctx context.Context, email, password string) (userID string, err error) {
	ev := &telemetry.AuthEvent{Type: telemetry.EventRegister}
	ctx, done := s.begin(ctx, ev)
	defer func() { err = done(err) }()

	email = userdomain.NormalizeEmail(email)
	if email == "" || password == "" {
		ev.Detail = "missing email or password"
		return "", autherr.ErrInvalidCredentials
	}
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return "", autherr.ErrAlreadyExists
	} else if !errors.Is(err, autherr.ErrNotFound) {
		return "", fmt.Errorf("auth: lookup user: %w", err)
	}
	hashed, err := s.hasher.Hash([]byte(password))
	if err != nil {
		if errors.Is(err, autherr.ErrInvalidCredentials) {
			ev.Detail = "password too long"
			return "", autherr.ErrInvalidCredentials
		}
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	u := &userdomain.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hashed,
		Role:         userdomain.DefaultRole,
		IsActive:     true,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, autherr.ErrAlreadyExists) {
			return "", autherr.ErrAlreadyExists
		}
		return "", fmt.Errorf("auth: create user: %w", err)
	}
	ev.UserID = u.ID
	return u.ID, nil
}

// Login verifies the password and opens a new session. Unknown user, inactive user and wrong
// password are all autherr.ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, email, password, userAgent, ipAddress string) (res *AuthResult, err error) {
	ev := &telemetry.AuthEvent{Type: telemetry.EventLogin}
	ctx, done := s.begin(ctx, ev)
	defer func() { err = done(err) }()

	email = userdomain.NormalizeEmail(email)
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, autherr.ErrNotFound) {
			return nil, fmt.Errorf("auth: lookup user: %w", err)
		}
		s.burnPasswordCheck(password)
		ev.Detail = "unknown email"
		return nil, autherr.ErrInvalidCredentials
	}
	ev.UserID = u.ID
	if err := s.hasher.Compare(u.PasswordHash, []byte(password)); err != nil {
		ev.Detail = "password mismatch"
		return nil, autherr.ErrInvalidCredentials
	}
	if !u.IsActive {
		ev.Detail = "user inactive"
		return nil, autherr.ErrInvalidCredentials
	}

	sessionID := uuid.New().String()
	ev.SessionID = sessionID
	pair, err := s.issuePair(ctx, u, sessionID)
	if err != nil {
		return nil, err
	}
	ev.CorrelationID = pair.access.CorrelationID
	sess := &sessiondomain.Session{
		ID:               sessionID,
		UserID:           u.ID,
		RefreshTokenHash: security.HashRefreshToken(pair.refreshToken),
		RefreshTokenID:   pair.refresh.TokenID,
		AccessTokenID:    pair.access.TokenID,
		AccessExpiresAt:  pair.access.ExpiresAt,
		ExpiresAt:        pair.refresh.ExpiresAt,
		CreatedAt:        s.now().UTC(),
		UserAgent:        userAgent,
		IPAddress:        ipAddress,
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("auth: create session: %w", err)
	}
	return pair.result(u.ID, sessionID), nil
}

// Refresh rotates the session's refresh token. Every credential failure (malformed, expired,
// wrong type, revoked, unknown session, replayed or out-raced token) surfaces as
// autherr.ErrInvalidCredentials; errors.Is still matches the precise cause. Registry or
// store outages are returned as plain errors.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (res *AuthResult, err error) {
	ev := &telemetry.AuthEvent{Type: telemetry.EventRefresh}
	ctx, done := s.begin(ctx, ev)
	defer func() { err = done(err) }()

	claims, err := s.codec.Parse(refreshToken)
	if err != nil {
		return nil, autherr.Normalize(autherr.ErrInvalidCredentials, err)
	}
	ev.UserID, ev.SessionID = claims.Subject, claims.SessionID
	if err := s.policy.Usable(ctx, claims, token.TypeRefresh); err != nil {
		return nil, credentialOr(err)
	}

	sess, err := s.sessions.GetByID(ctx, claims.SessionID)
	if err != nil {
		return nil, credentialOr(err)
	}
	if sess.UserID != claims.Subject {
		return nil, autherr.Normalize(autherr.ErrInvalidCredentials,
			fmt.Errorf("%w: session owner mismatch", autherr.ErrInvalidCredentials))
	}
	if !security.RefreshTokenHashEqual(refreshToken, sess.RefreshTokenHash) {
		return nil, autherr.Normalize(autherr.ErrInvalidCredentials,
			fmt.Errorf("%w: refresh token is not the session's current token", autherr.ErrInvalidCredentials))
	}

	u, err := s.users.GetByID(ctx, sess.UserID)
	if err != nil {
		return nil, credentialOr(err)
	}
	if !u.IsActive {
		return nil, autherr.Normalize(autherr.ErrInvalidCredentials,
			fmt.Errorf("%w: user inactive", autherr.ErrInvalidCredentials))
	}

	pair, err := s.issuePair(ctx, u, sess.ID)
	if err != nil {
		return nil, err
	}
	ev.CorrelationID = pair.access.CorrelationID
	rot := sessiondomain.Rotation{
		RefreshTokenHash: security.HashRefreshToken(pair.refreshToken),
		RefreshTokenID:   pair.refresh.TokenID,
		AccessTokenID:    pair.access.TokenID,
		AccessExpiresAt:  pair.access.ExpiresAt,
		ExpiresAt:        pair.refresh.ExpiresAt,
	}
	if err := s.sessions.UpdateRefreshHash(ctx, sess.ID, sess.RefreshTokenHash, rot); err != nil {
		return nil, credentialOr(err)
	}

	// The swap already rejects the old token; the registry entry covers readers that
	// loaded the session before the swap.
	if err := s.registry.Revoke(ctx, claims.TokenID, claims.ExpiresAt); err != nil {
		log.Printf("auth: revoke rotated refresh token %s: %v", claims.TokenID, err)
	}
	return pair.result(u.ID, sess.ID), nil
}

// Logout ends the session. An absent session is a successful no-op.
func (s *AuthService) Logout(ctx context.Context, sessionID string) (err error) {
	ev := &telemetry.AuthEvent{Type: telemetry.EventLogout, SessionID: sessionID}
	ctx, done := s.begin(ctx, ev)
	defer func() { err = done(err) }()

	sess, err := s.sessions.Delete(ctx, sessionID)
	if err != nil {
		if errors.Is(err, autherr.ErrSessionNotFound) {
			ev.Detail = "no such session"
			return nil
		}
		return fmt.Errorf("auth: delete session: %w", err)
	}
	ev.UserID = sess.UserID
	s.revokeOutstanding(ctx, sess)
	return nil
}

// LogoutAll ends every session of userID and returns how many were removed.
func (s *AuthService) LogoutAll(ctx context.Context, userID string) (n int, err error) {
	ev := &telemetry.AuthEvent{Type: telemetry.EventLogoutAll, UserID: userID}
	ctx, done := s.begin(ctx, ev)
	defer func() { err = done(err) }()

	removed, err := s.sessions.DeleteAllForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("auth: delete sessions: %w", err)
	}
	for _, sess := range removed {
		s.revokeOutstanding(ctx, sess)
	}
	ev.Detail = fmt.Sprintf("%d sessions", len(removed))
	return len(removed), nil
}

// Authenticate validates an access token (signature, expiry, type, revocation) and returns
// its claims. Credential failures are normalized to autherr.ErrInvalidCredentials.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*token.Claims, error) {
	ctx, span := s.tracer.Start(ctx, "auth.authenticate")
	defer span.End()
	start := s.now()

	claims, err := s.codec.Parse(accessToken)
	if err != nil {
		err = autherr.Normalize(autherr.ErrInvalidCredentials, err)
	} else if perr := s.policy.Usable(ctx, claims, token.TypeAccess); perr != nil {
		err = credentialOr(perr)
	}
	s.observe(ctx, span, "authenticate", start, err)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// Me returns the user behind already validated access-token claims.
func (s *AuthService) Me(ctx context.Context, claims *token.Claims) (*UserInfo, error) {
	if claims == nil || claims.Subject == "" {
		return nil, autherr.ErrInvalidCredentials
	}
	u, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		return nil, credentialOr(err)
	}
	return &UserInfo{ID: u.ID, Email: u.Email, Role: u.Role, IsActive: u.IsActive}, nil
}

// revokeOutstanding blocks the access token of a session that no longer exists. Its refresh
// token needs no entry: refresh fails on the missing session.
func (s *AuthService) revokeOutstanding(ctx context.Context, sess *sessiondomain.Session) {
	if !s.cfg.RevokeAccessOnLogout || sess.AccessTokenID == "" {
		return
	}
	if err := s.registry.Revoke(ctx, sess.AccessTokenID, sess.AccessExpiresAt); err != nil {
		log.Printf("auth: revoke access token of session %s: %v", sess.ID, err)
	}
}

// credentialOr normalizes taxonomy errors to ErrInvalidCredentials and passes anything else
// (store or registry outages) through unchanged so callers fail closed.
func credentialOr(err error) error {
	if autherr.Kind(err) == "internal" {
		return err
	}
	return autherr.Normalize(autherr.ErrInvalidCredentials, err)
}

type tokenPair struct {
	accessToken  string
	refreshToken string
	access       token.Claims
	refresh      token.Claims
}

func (p *tokenPair) result(userID, sessionID string) *AuthResult {
	return &AuthResult{
		AccessToken:      p.accessToken,
		RefreshToken:     p.refreshToken,
		TokenType:        "bearer",
		AccessExpiresAt:  p.access.ExpiresAt,
		RefreshExpiresAt: p.refresh.ExpiresAt,
		UserID:           userID,
		SessionID:        sessionID,
	}
}

func (s *AuthService) issuePair(ctx context.Context, u *userdomain.User, sessionID string) (*tokenPair, error) {
	now := s.now()
	accessToken, access, err := s.codec.Issue(token.NewAccessClaims(
		u.ID, sessionID, u.Roles(), correlationID(ctx), now.Add(s.cfg.AccessTTL)))
	if err != nil {
		return nil, fmt.Errorf("auth: issue access token: %w", err)
	}
	refreshToken, refresh, err := s.codec.Issue(token.NewRefreshClaims(u.ID, sessionID, now.Add(s.cfg.RefreshTTL)))
	if err != nil {
		return nil, fmt.Errorf("auth: issue refresh token: %w", err)
	}
	return &tokenPair{accessToken: accessToken, refreshToken: refreshToken, access: access, refresh: refresh}, nil
}

// burnPasswordCheck spends one bcrypt comparison so unknown emails answer as slowly as
// wrong passwords.
func (s *AuthService) burnPasswordCheck(password string) {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash([]byte(uuid.New().String()))
		if err == nil {
			s.dummyHash = h
		}
	})
	if s.dummyHash != "" {
		_ = s.hasher.Compare(s.dummyHash, []byte(password))
	}
}

// begin starts the span for ev's operation. The returned func records metrics and the audit
// event for the final error and hands the error back.
func (s *AuthService) begin(ctx context.Context, ev *telemetry.AuthEvent) (context.Context, func(error) error) {
	ctx, span := s.tracer.Start(ctx, "auth."+ev.Type)
	start := s.now()
	return ctx, func(err error) error {
		defer span.End()
		s.observe(ctx, span, ev.Type, start, err)
		ev.Outcome = telemetry.Outcome(err)
		ev.Kind = autherr.Kind(err)
		ev.At = s.now().UTC()
		if s.events != nil {
			if emitErr := s.events.Emit(ctx, ev); emitErr != nil {
				log.Printf("auth: emit %s event: %v", ev.Type, emitErr)
			}
		}
		return err
	}
}

func (s *AuthService) observe(ctx context.Context, span trace.Span, op string, start time.Time, err error) {
	kind := autherr.Kind(err)
	attrs := metric.WithAttributes(attribute.String("operation", op), attribute.String("outcome", kind))
	s.ops.Add(ctx, 1, attrs)
	s.duration.Record(ctx, float64(s.now().Sub(start))/float64(time.Millisecond), attrs)
	span.SetAttributes(attribute.String("auth.outcome", kind))
	if err != nil {
		span.SetStatus(codes.Error, kind)
		if kind == "internal" {
			span.RecordError(err)
			log.Printf("auth: %s failed: %v", op, err)
		}
	}
}
