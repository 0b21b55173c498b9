package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/todo-auth/internal/apperror"
	"github.com/sakif/todo-auth/internal/auth"
	"github.com/sakif/todo-auth/internal/metrics"
	"github.com/sakif/todo-auth/internal/model"
	"github.com/sakif/todo-auth/internal/repository"
	"github.com/sakif/todo-auth/internal/repository/memory"
	"github.com/sakif/todo-auth/internal/validation"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// failingRepo wraps the memory store and lets a test inject storage errors.
type failingRepo struct {
	*memory.UserStore
	createErr error
	findErr   error
}

func (f *failingRepo) Create(ctx context.Context, u *model.StoredUser) error {
	if f.createErr != nil {
		return f.createErr
	}
	return f.UserStore.Create(ctx, u)
}

func (f *failingRepo) FindByID(ctx context.Context, id string) (*model.StoredUser, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.UserStore.FindByID(ctx, id)
}

func (f *failingRepo) FindByEmail(ctx context.Context, email string) (*model.StoredUser, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.UserStore.FindByEmail(ctx, email)
}

type testEnv struct {
	svc     *AuthService
	store   *memory.UserStore
	tokens  *auth.TokenService
	metrics *metrics.AuthMetrics
}

// newTestEnv returns an AuthService wired to the in-memory store.
// Cost 4 is the bcrypt minimum; it makes tests fast.
func newTestEnv(t *testing.T, repo repository.UserRepository) testEnv {
	t.Helper()

	store := memory.NewUserStore()
	if repo == nil {
		repo = store
	}

	ts, err := auth.NewTokenService(auth.StaticSecret("test-secret-at-least-16-chars!!"))
	require.NoError(t, err)

	ps, err := auth.NewPasswordServiceWithCost(bcrypt.MinCost)
	require.NoError(t, err)

	v, err := validation.New("US")
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg, reg)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return testEnv{
		svc:     NewAuthService(repo, ts, ps, v, m, logger, 0),
		store:   store,
		tokens:  ts,
		metrics: m,
	}
}

func strPtr(s string) *string { return &s }

func validRegistration() model.UserRegistration {
	return model.UserRegistration{
		Email:           "a@b.com",
		Password:        "pw12345",
		PasswordConfirm: "pw12345",
		Name:            "Ada Lovelace",
	}
}

// =========================================================================
// Register TESTS
// =========================================================================

func TestRegister_Success(t *testing.T) {
	env := newTestEnv(t, nil)

	sess, err := env.svc.Register(context.Background(), validRegistration())
	require.NoError(t, err)

	assert.Equal(t, "a@b.com", sess.User.Email)
	assert.Equal(t, "Ada Lovelace", sess.User.Name)
	assert.NotEmpty(t, sess.User.ID)
	assert.Equal(t, auth.DefaultTokenTTL, sess.Token.TTL())

	claims, err := env.tokens.Validate(sess.Token.Value)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, claims.Subject, "token subject is the public id")

	stored, err := env.store.FindByEmail(context.Background(), "a@b.com")
	require.NoError(t, err)
	assert.NotEqual(t, "pw12345", stored.HashedPassword)
	assert.True(t, strings.HasPrefix(stored.HashedPassword, "$2"))

	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.Operations.WithLabelValues(metrics.OpRegister, metrics.OutcomeSuccess)))
}

func TestRegister_PasswordMismatch(t *testing.T) {
	env := newTestEnv(t, nil)

	reg := validRegistration()
	reg.PasswordConfirm = "other"

	_, err := env.svc.Register(context.Background(), reg)
	assert.ErrorIs(t, err, apperror.ErrPasswordMismatch)
	assert.ErrorIs(t, err, apperror.ErrValidation)
	assert.Zero(t, env.store.Len(), "no document is created")
}

func TestRegister_EmailTaken(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.svc.Register(context.Background(), validRegistration())
	require.NoError(t, err)

	again := validRegistration()
	again.Email = "  A@B.COM "
	_, err = env.svc.Register(context.Background(), again)
	assert.ErrorIs(t, err, apperror.ErrEmailTaken)
	assert.ErrorIs(t, err, apperror.ErrConflict)
	assert.Equal(t, 1, env.store.Len())
}

func TestRegister_ConcurrentSameEmail(t *testing.T) {
	env := newTestEnv(t, nil)

	const n = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.svc.Register(context.Background(), validRegistration()); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, env.store.Len())
}

func TestRegister_Validation(t *testing.T) {
	cases := []struct {
		name      string
		mutate    func(r *model.UserRegistration)
		wantField string
	}{
		{"bad email", func(r *model.UserRegistration) { r.Email = "not-an-email" }, "email"},
		{"missing name", func(r *model.UserRegistration) { r.Name = "" }, "name"},
		{"bad photo url", func(r *model.UserRegistration) { r.PhotoURL = strPtr("nope") }, "photo_url"},
		{"bad phone", func(r *model.UserRegistration) { r.PhoneNumber = strPtr("12") }, "phone_number"},
		{"password over 72 bytes", func(r *model.UserRegistration) {
			// 37 two-byte runes: short enough for the rune-counting max, 74 bytes.
			p := strings.Repeat("é", 37)
			r.Password, r.PasswordConfirm = p, p
		}, "password"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			reg := validRegistration()
			tc.mutate(&reg)

			_, err := env.svc.Register(context.Background(), reg)
			require.ErrorIs(t, err, apperror.ErrValidation)

			var appErr *apperror.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tc.wantField, appErr.Field)
			assert.Zero(t, env.store.Len())
		})
	}
}

func TestRegister_NormalizesEmailAndPhone(t *testing.T) {
	env := newTestEnv(t, nil)

	reg := validRegistration()
	reg.Email = " Ada@Example.COM "
	reg.PhoneNumber = strPtr("(650) 253-0000")
	reg.DisplayName = strPtr("ada")

	sess, err := env.svc.Register(context.Background(), reg)
	require.NoError(t, err)

	assert.Equal(t, "ada@example.com", sess.User.Email)
	require.NotNil(t, sess.User.PhoneNumber)
	assert.Equal(t, "+16502530000", *sess.User.PhoneNumber)
	require.NotNil(t, sess.User.DisplayName)
	assert.Equal(t, "ada", *sess.User.DisplayName)
}

func TestRegister_RepositoryError(t *testing.T) {
	repo := &failingRepo{UserStore: memory.NewUserStore(), createErr: errors.New("database is on fire")}
	env := newTestEnv(t, repo)

	_, err := env.svc.Register(context.Background(), validRegistration())
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperror.ErrEmailTaken)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.Operations.WithLabelValues(metrics.OpRegister, metrics.OutcomeError)))
}

// =========================================================================
// SignIn TESTS
// =========================================================================

func TestSignIn_Success(t *testing.T) {
	env := newTestEnv(t, nil)

	registered, err := env.svc.Register(context.Background(), validRegistration())
	require.NoError(t, err)

	sess, err := env.svc.SignIn(context.Background(), model.SignInRequest{Email: "A@b.com", Password: "pw12345"})
	require.NoError(t, err)

	assert.Equal(t, registered.User, sess.User)
	assert.NotEmpty(t, sess.Token.Value)
}

func TestSignIn_InvalidCredentials(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.svc.Register(context.Background(), validRegistration())
	require.NoError(t, err)

	cases := []struct {
		name string
		req  model.SignInRequest
	}{
		{"wrong password", model.SignInRequest{Email: "a@b.com", Password: "pizza"}},
		{"unknown email", model.SignInRequest{Email: "nobody@b.com", Password: "pw12345"}},
		{"empty password", model.SignInRequest{Email: "a@b.com", Password: ""}},
		{"malformed email", model.SignInRequest{Email: "a-at-b", Password: "pw12345"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.SignIn(context.Background(), tc.req)
			assert.ErrorIs(t, err, apperror.ErrInvalidCredentials)

			var appErr *apperror.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, "could not validate credentials", appErr.Message,
				"the message must not say which half was wrong")
		})
	}
}

func TestSignIn_RepositoryError(t *testing.T) {
	repo := &failingRepo{UserStore: memory.NewUserStore(), findErr: errors.New("connection reset")}
	env := newTestEnv(t, repo)

	_, err := env.svc.SignIn(context.Background(), model.SignInRequest{Email: "a@b.com", Password: "pw12345"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperror.ErrInvalidCredentials)
}

// =========================================================================
// CurrentUser TESTS
// =========================================================================

func TestCurrentUser_Success(t *testing.T) {
	env := newTestEnv(t, nil)

	sess, err := env.svc.Register(context.Background(), validRegistration())
	require.NoError(t, err)

	user, err := env.svc.CurrentUser(context.Background(), sess.Token.Value)
	require.NoError(t, err)
	assert.Equal(t, sess.User, *user)
}

func TestCurrentUser_Unauthenticated(t *testing.T) {
	env := newTestEnv(t, nil)

	other, err := auth.NewTokenService(auth.StaticSecret("another-secret-32-chars-long!!!!"))
	require.NoError(t, err)
	forged, err := other.Issue(auth.Claims{Subject: repository.NewID().String()}, time.Minute)
	require.NoError(t, err)

	cases := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "this.is.garbage"},
		{"wrong secret", forged.Value},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.CurrentUser(context.Background(), tc.token)
			assert.ErrorIs(t, err, apperror.ErrUnauthenticated)
		})
	}
}

func TestCurrentUser_Expired(t *testing.T) {
	store := memory.NewUserStore()
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ts, err := auth.NewTokenService(auth.StaticSecret("test-secret-at-least-16-chars!!"),
		auth.WithClock(func() time.Time { return clock }))
	require.NoError(t, err)
	ps, err := auth.NewPasswordServiceWithCost(bcrypt.MinCost)
	require.NoError(t, err)
	v, err := validation.New("")
	require.NoError(t, err)

	svc := NewAuthService(store, ts, ps, v, nil, slog.New(slog.NewTextHandler(io.Discard, nil)), time.Minute)

	sess, err := svc.Register(context.Background(), validRegistration())
	require.NoError(t, err)

	clock = clock.Add(2 * time.Minute)
	_, err = svc.CurrentUser(context.Background(), sess.Token.Value)
	assert.ErrorIs(t, err, apperror.ErrUnauthenticated)
}

func TestCurrentUser_DeletedUser(t *testing.T) {
	env := newTestEnv(t, nil)

	sess, err := env.svc.Register(context.Background(), validRegistration())
	require.NoError(t, err)

	id, err := repository.ParseID(sess.User.ID)
	require.NoError(t, err)
	env.store.Delete(id)

	_, err = env.svc.CurrentUser(context.Background(), sess.Token.Value)
	assert.ErrorIs(t, err, apperror.ErrUserNotFound)
}

func TestCurrentUser_SubjectNotAnID(t *testing.T) {
	env := newTestEnv(t, nil)

	tok, err := env.tokens.Issue(auth.Claims{Subject: "not-an-xid"}, time.Minute)
	require.NoError(t, err)

	_, err = env.svc.CurrentUser(context.Background(), tok.Value)
	assert.ErrorIs(t, err, apperror.ErrUserNotFound)
}

func TestCurrentUser_RepositoryError(t *testing.T) {
	repo := &failingRepo{UserStore: memory.NewUserStore()}
	env := newTestEnv(t, repo)

	tok, err := env.tokens.Issue(auth.Claims{Subject: repository.NewID().String()}, time.Minute)
	require.NoError(t, err)

	repo.findErr = errors.New("timeout")
	_, err = env.svc.CurrentUser(context.Background(), tok.Value)
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperror.ErrUserNotFound)
	assert.NotErrorIs(t, err, apperror.ErrUnauthenticated)
}

func TestOutcomeOf(t *testing.T) {
	assert.Equal(t, metrics.OutcomeSuccess, outcomeOf(nil))
	assert.Equal(t, metrics.OutcomeInvalid, outcomeOf(apperror.PasswordMismatch()))
	assert.Equal(t, metrics.OutcomeInvalid, outcomeOf(apperror.EmailTaken()))
	assert.Equal(t, metrics.OutcomeDenied, outcomeOf(apperror.InvalidCredentials()))
	assert.Equal(t, metrics.OutcomeDenied, outcomeOf(apperror.UserNotFound()))
	assert.Equal(t, metrics.OutcomeError, outcomeOf(errors.New("boom")))
}

func TestRegister_WaitsForHashSlot(t *testing.T) {
	store := memory.NewUserStore()
	ts, err := auth.NewTokenService(auth.StaticSecret("test-secret-at-least-16-chars!!"))
	require.NoError(t, err)
	ps, err := auth.NewPasswordServiceWithCost(bcrypt.MinCost)
	require.NoError(t, err)
	v, err := validation.New("")
	require.NoError(t, err)

	pool := auth.NewHashPool(1)
	svc := NewAuthService(store, ts, ps, v, nil, slog.New(slog.NewTextHandler(io.Discard, nil)), 0,
		WithHashPool(pool))

	hold := make(chan struct{})
	busy := make(chan struct{})
	go func() {
		_ = pool.Do(context.Background(), func() {
			close(busy)
			<-hold
		})
	}()
	<-busy

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = svc.Register(ctx, validRegistration())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, store.Len(), "nothing is stored when hashing never ran")

	close(hold)

	_, err = svc.Register(context.Background(), validRegistration())
	assert.NoError(t, err)
}
