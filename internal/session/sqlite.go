package session

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"authbot/internal/address"
	"authbot/pkg/logging"
	"authbot/pkg/oauth"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// SQLiteStore persists sessions in a SQLite database.
type SQLiteStore struct {
	sqlDB *sql.DB
}

// OpenSQLite opens and migrates a session database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("session: storage path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &SQLiteStore{sqlDB: sqlDB}
	if err := store.runMigrations(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	logging.Info("SessionStore", "Opened SQLite session store at %s", path)
	return store, nil
}

// Close releases the underlying SQLite connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, addr address.Address) (*Session, error) {
	row := s.sqlDB.QueryRowContext(ctx, selectSessionSQL+` WHERE address_key = ?`, addr.Key())

	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

func (s *SQLiteStore) Save(ctx context.Context, sess *Session) error {
	if err := sess.Address.Validate(); err != nil {
		return err
	}

	updatedAt := sess.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO auth_sessions (
		    address_key, transport_id, conversation_id, user_id, principal_id, display_name, email,
		    access_token, refresh_token, access_expires_at, status, updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(address_key) DO UPDATE SET
		    principal_id = excluded.principal_id,
		    display_name = excluded.display_name,
		    email = excluded.email,
		    access_token = excluded.access_token,
		    refresh_token = excluded.refresh_token,
		    access_expires_at = excluded.access_expires_at,
		    status = excluded.status,
		    updated_at = excluded.updated_at`,
		sess.Address.Key(),
		sess.Address.TransportID,
		sess.Address.ConversationID,
		sess.Address.UserID,
		sess.PrincipalID,
		sess.DisplayName,
		sess.Email,
		sess.AccessToken.Value(),
		sess.RefreshToken.Value(),
		timeToUnixMillis(sess.AccessTokenExpiresAt),
		string(sess.Status),
		timeToUnixMillis(updatedAt),
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, addr address.Address) error {
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM auth_sessions WHERE address_key = ?`, addr.Key()); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// List returns all sessions ordered by most recent update.
func (s *SQLiteStore) List(ctx context.Context) ([]*Session, error) {
	rows, err := s.sqlDB.QueryContext(ctx, selectSessionSQL+` ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out, nil
}

const selectSessionSQL = `SELECT transport_id, conversation_id, user_id, principal_id, display_name, email,
	access_token, refresh_token, access_expires_at, status, updated_at
	FROM auth_sessions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		sess                     Session
		accessToken, refresh     string
		status                   string
		accessExpires, updatedAt int64
	)
	if err := row.Scan(
		&sess.Address.TransportID,
		&sess.Address.ConversationID,
		&sess.Address.UserID,
		&sess.PrincipalID,
		&sess.DisplayName,
		&sess.Email,
		&accessToken,
		&refresh,
		&accessExpires,
		&status,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	sess.AccessToken = oauth.NewRedactedToken(accessToken)
	sess.RefreshToken = oauth.NewRedactedToken(refresh)
	sess.AccessTokenExpiresAt = unixMillisToTime(accessExpires)
	sess.Status = Status(status)
	sess.UpdatedAt = unixMillisToTime(updatedAt)
	return &sess, nil
}

// runMigrations applies embedded migrations at most once per file.
func (s *SQLiteStore) runMigrations() error {
	if _, err := s.sqlDB.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		name TEXT PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	for _, name := range files {
		var count int
		if err := s.sqlDB.QueryRow(`SELECT COUNT(1) FROM schema_migrations WHERE name = ?`, name).Scan(&count); err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		content, err := fs.ReadFile(migrationFS, "migrations/"+name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		tx, err := s.sqlDB.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", name, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", name, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?)`, name, time.Now().UnixMilli()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", name, err)
		}
		logging.Debug("SessionStore", "Applied migration %s", name)
	}
	return nil
}

func timeToUnixMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func unixMillisToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
