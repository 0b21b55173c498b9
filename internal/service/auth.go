// Package service — authentication business logic.
//
// AuthService is the business logic layer for authentication. It sits between
// the HTTP handlers and the repository/auth utilities:
//
//	AuthHandler (HTTP) → AuthService (business rules) → UserRepository (DB)
//	                   ↘ TokenService (JWT), PasswordService (bcrypt)
//
// KEY RESPONSIBILITIES:
//   - Register, sign in and resolve the current user
//   - Translate repository and token failures into the small set of
//     user-visible errors in apperror
//   - Stay free of HTTP: cookies are the handler's job
//
// WHAT A CALLER CAN LEARN FROM AN ERROR:
// Sign-in failures are always ErrInvalidCredentials, whether the email is
// unknown or the password is wrong. Token failures are always
// ErrUnauthenticated, whether the token was missing, malformed, forged or
// expired. The precise reason is logged, never returned.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sakif/todo-auth/internal/apperror"
	"github.com/sakif/todo-auth/internal/auth"
	"github.com/sakif/todo-auth/internal/metrics"
	"github.com/sakif/todo-auth/internal/model"
	"github.com/sakif/todo-auth/internal/repository"
	"github.com/sakif/todo-auth/internal/validation"
)

var tracer = otel.Tracer("github.com/sakif/todo-auth/internal/service")

// AuthService handles the authentication business logic.
//
// DEPENDENCIES (injected via NewAuthService):
//   - users      repository.UserRepository  → read/write user records
//   - tokens     *auth.TokenService         → issue/validate JWTs
//   - passwords  *auth.PasswordService      → bcrypt hashing
//   - validator  *validation.Validator      → request rules, phone normalization
//   - metrics    *metrics.AuthMetrics       → outcome counters (nil is fine)
//   - logger     *slog.Logger               → structured logging
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	validator *validation.Validator
	metrics   *metrics.AuthMetrics
	logger    *slog.Logger
	ttl       time.Duration
	hashPool  *auth.HashPool
}

// Option customizes an AuthService.
type Option func(*AuthService)

// WithHashPool bounds concurrent bcrypt work. Without it every request
// hashes immediately.
func WithHashPool(p *auth.HashPool) Option {
	return func(s *AuthService) { s.hashPool = p }
}

// NewAuthService creates an AuthService with all required dependencies.
// A ttl of zero or less means auth.DefaultTokenTTL.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	validator *validation.Validator,
	m *metrics.AuthMetrics,
	logger *slog.Logger,
	ttl time.Duration,
	opts ...Option,
) *AuthService {
	if ttl <= 0 {
		ttl = auth.DefaultTokenTTL
	}
	s := &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		validator: validator,
		metrics:   m,
		logger:    logger,
		ttl:       ttl,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Session is returned by Register and SignIn.
// It bundles the public user and the issued token so the caller (the HTTP
// handler) can set the cookie and respond in one step.
type Session struct {
	User  model.PublicUser
	Token auth.IssuedToken
}

// Register creates an account and starts a session for it.
//
// Order of checks:
//  1. password and confirmation must match → ErrPasswordMismatch
//  2. struct rules (email format, lengths, URL, phone) → ErrValidation
//  3. the email must be free → ErrEmailTaken
//
// Registration is not transactional with token issuance: if signing fails
// after Create, the account exists and the user can sign in.
func (s *AuthService) Register(ctx context.Context, reg model.UserRegistration) (*Session, error) {
	ctx, span := tracer.Start(ctx, "AuthService.Register")
	defer span.End()

	sess, err := s.register(ctx, reg)
	s.finish(span, metrics.OpRegister, err)
	return sess, err
}

func (s *AuthService) register(ctx context.Context, reg model.UserRegistration) (*Session, error) {
	if reg.Password != reg.PasswordConfirm {
		return nil, apperror.PasswordMismatch()
	}

	reg.Email = validation.NormalizeEmail(reg.Email)
	if err := s.validator.Struct(reg); err != nil {
		return nil, err
	}
	// validator's max counts runes; bcrypt's limit is in bytes.
	if len(reg.Password) > auth.MaxPasswordBytes {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at most %d bytes", auth.MaxPasswordBytes))
	}

	phone := reg.PhoneNumber
	if phone != nil {
		normalized, err := s.validator.NormalizePhone(*phone)
		if err != nil {
			return nil, apperror.ValidationFailed("phone_number", "phone_number must be a valid phone number")
		}
		phone = &normalized
	}

	var (
		hashed  string
		hashErr error
	)
	if err := s.bcrypt(ctx, func() {
		hashed, hashErr = s.passwords.Hash(reg.Password)
	}); err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}
	if hashErr != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", hashErr)
	}

	user := &model.StoredUser{
		Email:          reg.Email,
		HashedPassword: hashed,
		Name:           reg.Name,
		DisplayName:    reg.DisplayName,
		PhotoURL:       reg.PhotoURL,
		PhoneNumber:    phone,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrDuplicateKey) {
			return nil, apperror.EmailTaken()
		}
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.logger.Info("user registered", slog.String("userID", user.ID.String()))

	return s.issueSession(user)
}

// SignIn checks an email/password pair and starts a session.
//
// Every failure is ErrInvalidCredentials. When the email is unknown a dummy
// bcrypt comparison still runs, so response time does not reveal whether
// an account exists.
func (s *AuthService) SignIn(ctx context.Context, req model.SignInRequest) (*Session, error) {
	ctx, span := tracer.Start(ctx, "AuthService.SignIn")
	defer span.End()

	sess, err := s.signIn(ctx, req)
	s.finish(span, metrics.OpSignIn, err)
	return sess, err
}

func (s *AuthService) signIn(ctx context.Context, req model.SignInRequest) (*Session, error) {
	req.Email = validation.NormalizeEmail(req.Email)

	if err := s.validator.Struct(req); err != nil {
		return nil, s.rejectSignIn(ctx, req.Password, "invalid request")
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, s.rejectSignIn(ctx, req.Password, "unknown email")
		}
		return nil, fmt.Errorf("service/auth: finding user by email: %w", err)
	}

	var ok bool
	if err := s.bcrypt(ctx, func() {
		ok = s.passwords.Verify(user.HashedPassword, req.Password)
	}); err != nil {
		return nil, fmt.Errorf("service/auth: verifying password: %w", err)
	}
	if !ok {
		s.logger.Info("sign-in failed",
			slog.String("reason", "wrong password"),
			slog.String("userID", user.ID.String()),
		)
		return nil, apperror.InvalidCredentials()
	}

	if s.passwords.NeedsRehash(user.HashedPassword) {
		s.logger.Info("password hash uses an outdated cost",
			slog.String("userID", user.ID.String()),
			slog.Int("wantCost", s.passwords.Cost()),
		)
	}

	return s.issueSession(user)
}

// CurrentUser resolves the user a session token belongs to.
//
// An empty token means no session was presented. Any token failure is
// ErrUnauthenticated. A valid token whose subject no longer resolves (the
// account was deleted, or the id is not one this store could have issued)
// is ErrUserNotFound.
func (s *AuthService) CurrentUser(ctx context.Context, token string) (*model.PublicUser, error) {
	ctx, span := tracer.Start(ctx, "AuthService.CurrentUser")
	defer span.End()

	user, err := s.currentUser(ctx, token)
	s.finish(span, metrics.OpCurrentUser, err)
	return user, err
}

func (s *AuthService) currentUser(ctx context.Context, token string) (*model.PublicUser, error) {
	if token == "" {
		return nil, apperror.Unauthenticated()
	}

	claims, err := s.tokens.Validate(token)
	if err != nil {
		s.logger.Debug("token rejected", slog.String("error", err.Error()))
		return nil, apperror.Unauthenticated()
	}

	user, err := s.users.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) || errors.Is(err, apperror.ErrInvalidID) {
			s.logger.Warn("token subject does not resolve", slog.String("userID", claims.Subject))
			return nil, apperror.UserNotFound()
		}
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", claims.Subject, err)
	}

	pub := repository.ToPublic(user)
	return &pub, nil
}

// rejectSignIn spends a dummy bcrypt comparison before failing, so a
// sign-in without a real hash to check takes as long as one with.
func (s *AuthService) rejectSignIn(ctx context.Context, password, reason string) error {
	if err := s.bcrypt(ctx, func() { s.passwords.VerifyDummy(password) }); err != nil {
		return fmt.Errorf("service/auth: verifying password: %w", err)
	}
	s.logger.Info("sign-in failed", slog.String("reason", reason))
	return apperror.InvalidCredentials()
}

// bcrypt runs fn in a hash pool slot and records how long it took.
func (s *AuthService) bcrypt(ctx context.Context, fn func()) error {
	return s.hashPool.Do(ctx, func() {
		start := time.Now()
		fn()
		s.metrics.ObserveHash(start)
	})
}

// issueSession signs a token whose subject is the user's public id.
func (s *AuthService) issueSession(user *model.StoredUser) (*Session, error) {
	pub := repository.ToPublic(user)

	tok, err := s.tokens.Issue(auth.Claims{Subject: pub.ID}, s.ttl)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing token for user %s: %w", pub.ID, err)
	}

	return &Session{User: pub, Token: tok}, nil
}

// finish records the outcome of one operation on its span and in metrics.
func (s *AuthService) finish(span trace.Span, operation string, err error) {
	outcome := outcomeOf(err)
	span.SetAttributes(attribute.String("auth.outcome", outcome))
	if outcome == metrics.OutcomeError {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("auth operation failed",
			slog.String("operation", operation),
			slog.String("error", err.Error()),
		)
	}
	s.metrics.Observe(operation, outcome)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, apperror.ErrValidation), errors.Is(err, apperror.ErrConflict):
		return metrics.OutcomeInvalid
	case errors.Is(err, apperror.ErrUnauthorized), errors.Is(err, apperror.ErrNotFound):
		return metrics.OutcomeDenied
	default:
		return metrics.OutcomeError
	}
}
