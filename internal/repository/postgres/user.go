package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sakif/todo-auth/internal/apperror"
	"github.com/sakif/todo-auth/internal/model"
	"github.com/sakif/todo-auth/internal/repository"
)

var _ repository.UserRepository = (*UserStore)(nil)

// uniqueViolation is the SQLSTATE for a unique index conflict.
const uniqueViolation = "23505"

const userColumns = `id, email, hashed_password, name, display_name, photo_url, phone_number, created_at`

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) Create(ctx context.Context, user *model.StoredUser) error {
	user.ID = repository.NewID()
	user.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)

	query := `INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.db.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.HashedPassword,
		user.Name,
		user.DisplayName,
		user.PhotoURL,
		user.PhoneNumber,
		user.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return apperror.DuplicateKey("user", "email")
		}
		return fmt.Errorf("postgres: inserting user: %w", err)
	}

	return nil
}

func (s *UserStore) FindByID(ctx context.Context, id string) (*model.StoredUser, error) {
	native, err := repository.ParseID(id)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, native)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("postgres: getting user %s: %w", id, err)
	}
	return u, nil
}

func (s *UserStore) FindByEmail(ctx context.Context, email string) (*model.StoredUser, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("postgres: getting user by email: %w", err)
	}
	return u, nil
}

func (s *UserStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *UserStore) Close() error {
	return s.db.Close()
}

func scanUser(row *sql.Row) (*model.StoredUser, error) {
	var u model.StoredUser
	if err := row.Scan(
		&u.ID,
		&u.Email,
		&u.HashedPassword,
		&u.Name,
		&u.DisplayName,
		&u.PhotoURL,
		&u.PhoneNumber,
		&u.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &u, nil
}
