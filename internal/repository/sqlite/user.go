package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/todo-auth/internal/apperror"
	"github.com/sakif/todo-auth/internal/model"
	"github.com/sakif/todo-auth/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, email, hashed_password, name, display_name, photo_url, phone_number, created_at`

// Create inserts a new user. The xid is generated here, not by SQLite, so
// every backend hands out ids of the same shape.
func (db *DB) Create(ctx context.Context, user *model.StoredUser) error {
	user.ID = repository.NewID()
	user.CreatedAt = time.Now().UTC()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
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
		if isConstraintViolation(err) {
			return apperror.DuplicateKey("user", "email")
		}
		return fmt.Errorf("sqlite: inserting user: %w", err)
	}

	return nil
}

// FindByID retrieves a user by id. A string that is not an xid is rejected
// before the query runs.
func (db *DB) FindByID(ctx context.Context, id string) (*model.StoredUser, error) {
	native, err := repository.ParseID(id)
	if err != nil {
		return nil, err
	}

	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, native)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return u, nil
}

// FindByEmail retrieves a user by email address.
func (db *DB) FindByEmail(ctx context.Context, email string) (*model.StoredUser, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("sqlite: getting user by email: %w", err)
	}
	return u, nil
}

func scanUser(row *sql.Row) (*model.StoredUser, error) {
	var u model.StoredUser
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.HashedPassword,
		&u.Name,
		&u.DisplayName,
		&u.PhotoURL,
		&u.PhoneNumber,
		&u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// isConstraintViolation matches SQLITE_CONSTRAINT and its extended codes
// (UNIQUE, PRIMARYKEY). The low byte of an extended code is the primary code.
func isConstraintViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
}
