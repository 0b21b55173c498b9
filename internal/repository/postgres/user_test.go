package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/todo-auth/internal/apperror"
	"github.com/sakif/todo-auth/internal/model"
	"github.com/sakif/todo-auth/internal/repository"
)

var columns = []string{"id", "email", "hashed_password", "name", "display_name", "photo_url", "phone_number", "created_at"}

func newStoreWithMock(t *testing.T) (*UserStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewUserStore(db), mock
}

func TestCreate_Success(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectExec(`INSERT INTO users`).
		WithArgs(sqlmock.AnyArg(), "a@b.com", "$2a$04$hash", "Ada", nil, nil, "+16502530000", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	phone := "+16502530000"
	u := &model.StoredUser{Email: "a@b.com", HashedPassword: "$2a$04$hash", Name: "Ada", PhoneNumber: &phone}
	require.NoError(t, store.Create(context.Background(), u))

	assert.False(t, u.ID.IsNil())
	assert.False(t, u.CreatedAt.IsZero())
}

func TestCreate_DuplicateEmail(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectExec(`INSERT INTO users`).
		WillReturnError(&pgconn.PgError{Code: uniqueViolation, ConstraintName: "users_email_key"})

	err := store.Create(context.Background(), &model.StoredUser{Email: "a@b.com"})
	assert.True(t, errors.Is(err, apperror.ErrDuplicateKey), "got %v", err)
}

func TestCreate_DBError(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectExec(`INSERT INTO users`).WillReturnError(errors.New("db down"))

	err := store.Create(context.Background(), &model.StoredUser{Email: "a@b.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
	assert.False(t, errors.Is(err, apperror.ErrDuplicateKey))
}

func TestFindByID_Found(t *testing.T) {
	store, mock := newStoreWithMock(t)
	id := repository.NewID()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT .+ FROM users WHERE id = \$1`).
		WithArgs(id.String()).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(id.String(), "a@b.com", "$2a$04$hash", "Ada", "ada", nil, nil, created))

	got, err := store.FindByID(context.Background(), id.String())
	require.NoError(t, err)

	assert.Equal(t, id, got.ID)
	assert.Equal(t, "a@b.com", got.Email)
	require.NotNil(t, got.DisplayName)
	assert.Equal(t, "ada", *got.DisplayName)
	assert.Nil(t, got.PhotoURL)
	assert.True(t, got.CreatedAt.Equal(created))
}

func TestFindByID_NotFound(t *testing.T) {
	store, mock := newStoreWithMock(t)
	id := repository.NewID()

	mock.ExpectQuery(`SELECT .+ FROM users WHERE id = \$1`).
		WithArgs(id.String()).
		WillReturnRows(sqlmock.NewRows(columns))

	_, err := store.FindByID(context.Background(), id.String())
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestFindByID_InvalidIDSkipsQuery(t *testing.T) {
	store, _ := newStoreWithMock(t)

	_, err := store.FindByID(context.Background(), "not-an-xid")
	assert.True(t, errors.Is(err, apperror.ErrInvalidID))
}

func TestFindByEmail(t *testing.T) {
	store, mock := newStoreWithMock(t)
	id := repository.NewID()

	mock.ExpectQuery(`SELECT .+ FROM users WHERE email = \$1`).
		WithArgs("a@b.com").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(id.String(), "a@b.com", "$2a$04$hash", "Ada", nil, nil, nil, time.Now()))

	got, err := store.FindByEmail(context.Background(), "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
}

func TestFindByEmail_NotFound(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectQuery(`SELECT .+ FROM users WHERE email = \$1`).
		WithArgs("nobody@b.com").
		WillReturnError(sql.ErrNoRows)

	_, err := store.FindByEmail(context.Background(), "nobody@b.com")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestRunMigrations(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	orig := gooseUp
	defer func() { gooseUp = orig }()

	t.Run("success", func(t *testing.T) {
		gooseUp = func(ctx context.Context, db *sql.DB, dir string) error {
			if dir != "." {
				return errors.New("unexpected dir")
			}
			return nil
		}
		assert.NoError(t, RunMigrations(context.Background(), db))
	})

	t.Run("error", func(t *testing.T) {
		gooseUp = func(ctx context.Context, db *sql.DB, dir string) error {
			return errors.New("boom")
		}
		err := RunMigrations(context.Background(), db)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "boom")
	})
}
