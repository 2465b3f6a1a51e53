package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/snpLoans/pkg/models"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore manages the database connection and operations for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Storage = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLiteStore and initializes the database.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL;")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	slog.Info("database connection established and schema initialized", "path", dataSourceName)
	return s, nil
}

// initSchema creates the database tables if they don't already exist.
// Profiles and loans are stored as JSON in the roster file format.
func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS users (
		username TEXT PRIMARY KEY,
		role TEXT NOT NULL,
		password TEXT NOT NULL,
		profile TEXT NOT NULL,
		loan TEXT,
		position INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		role TEXT NOT NULL,
		profile TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS sessions_expires_at ON sessions(expires_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ReplaceUsers swaps the stored roster for users within a transaction.
func (s *SQLiteStore) ReplaceUsers(ctx context.Context, users []*models.User) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM users`); err != nil {
		return fmt.Errorf("failed to clear users: %w", err)
	}

	for i, u := range users {
		profile, err := json.Marshal(u.Profile)
		if err != nil {
			return fmt.Errorf("failed to encode profile of %s: %w", u.Username, err)
		}
		var loan sql.NullString
		if u.Loan != nil {
			b, err := json.Marshal(u.Loan)
			if err != nil {
				return fmt.Errorf("failed to encode loan of %s: %w", u.Username, err)
			}
			loan = sql.NullString{String: string(b), Valid: true}
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO users (username, role, password, profile, loan, position) VALUES (?, ?, ?, ?, ?, ?)`,
			u.Username, string(u.Role), u.Password, string(profile), loan, i,
		)
		if err != nil {
			return fmt.Errorf("failed to insert user %s: %w", u.Username, err)
		}
	}

	return tx.Commit()
}

// GetUser retrieves a user by username.
func (s *SQLiteStore) GetUser(ctx context.Context, username string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT username, role, password, profile, loan FROM users WHERE username = ?`, username)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// ListUsers retrieves all users in roster order.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*models.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT username, role, password, profile, loan FROM users ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return users, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	var role, profile string
	var loan sql.NullString
	if err := row.Scan(&u.Username, &role, &u.Password, &profile, &loan); err != nil {
		return nil, err
	}
	u.Role = models.Role(role)
	if err := json.Unmarshal([]byte(profile), &u.Profile); err != nil {
		return nil, fmt.Errorf("failed to decode profile of %s: %w", u.Username, err)
	}
	if loan.Valid {
		u.Loan = &models.Loan{}
		if err := json.Unmarshal([]byte(loan.String), u.Loan); err != nil {
			return nil, fmt.Errorf("failed to decode loan of %s: %w", u.Username, err)
		}
	}
	return &u, nil
}

// GetSession retrieves a session by its token.
func (s *SQLiteStore) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	var session models.Session
	var idStr, role, profile string

	row := s.db.QueryRowContext(ctx, `SELECT id, username, role, profile, created_at, expires_at FROM sessions WHERE id = ?`, id.String())
	err := row.Scan(&idStr, &session.Username, &role, &profile, &session.CreatedAt, &session.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	session.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse session id: %w", err)
	}
	session.Role = models.Role(role)
	if err := json.Unmarshal([]byte(profile), &session.Profile); err != nil {
		return nil, fmt.Errorf("failed to decode session profile: %w", err)
	}
	return &session, nil
}

// SetSession inserts or replaces a session.
func (s *SQLiteStore) SetSession(ctx context.Context, session *models.Session) error {
	profile, err := json.Marshal(session.Profile)
	if err != nil {
		return fmt.Errorf("failed to encode session profile: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO sessions (id, username, role, profile, created_at, expires_at) VALUES (?, ?, ?, ?, ?, ?)`,
		session.ID.String(), session.Username, string(session.Role), string(profile), session.CreatedAt.UTC(), session.ExpiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// ClearSession removes a session. Clearing an unknown session is not an error.
func (s *SQLiteStore) ClearSession(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id.String()); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes every session that expired at or before now.
func (s *SQLiteStore) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return int(n), nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
