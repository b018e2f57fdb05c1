package credentials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS credentials (
	id INTEGER PRIMARY KEY CHECK(id = 1),
	account_id TEXT NOT NULL DEFAULT '',
	push_token TEXT NOT NULL DEFAULT '',
	enabled INTEGER NOT NULL DEFAULT 0
);
INSERT INTO credentials(id) VALUES (1) ON CONFLICT(id) DO NOTHING;
`

// SQLiteStore persists credentials in a local sqlite database so enablement
// and the stored push token survive process restarts.
type SQLiteStore struct {
	*notifier

	db *sql.DB

	mu    sync.Mutex
	state State
}

// OpenSQLite opens (creating if needed) the credential database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create credentials dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply credentials schema: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil && !errors.Is(err, os.ErrNotExist) {
		db.Close()
		return nil, fmt.Errorf("chmod credentials db: %w", err)
	}

	store := &SQLiteStore{notifier: newNotifier(), db: db}
	if err := store.load(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) load(ctx context.Context) error {
	row := s.db.QueryRowContext(ctx, `SELECT account_id, push_token, enabled FROM credentials WHERE id = 1`)
	var enabled int
	if err := row.Scan(&s.state.AccountID, &s.state.PushToken, &enabled); err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	s.state.Enabled = enabled != 0
	s.state.IdentityPresent = s.state.AccountID != ""
	return nil
}

// Snapshot returns the cached credential state.
func (s *SQLiteStore) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetCredentials persists a new account/token pair and signals the change.
func (s *SQLiteStore) SetCredentials(accountID, pushToken string) error {
	if s.isClosed() {
		return ErrClosed
	}
	accountID, pushToken = normalizeCredentials(accountID, pushToken)

	s.mu.Lock()
	if s.state.AccountID == accountID && s.state.PushToken == pushToken {
		s.mu.Unlock()
		return nil
	}
	if err := s.persist(accountID, pushToken, s.state.Enabled); err != nil {
		s.mu.Unlock()
		return err
	}
	s.state.AccountID = accountID
	s.state.PushToken = pushToken
	s.state.IdentityPresent = accountID != ""
	snapshot := s.state
	s.mu.Unlock()

	s.signalChanged(snapshot)
	return nil
}

// SetEnabled persists the enablement flip and signals the transition.
func (s *SQLiteStore) SetEnabled(enabled bool) error {
	if s.isClosed() {
		return ErrClosed
	}

	s.mu.Lock()
	if s.state.Enabled == enabled {
		s.mu.Unlock()
		return nil
	}
	if err := s.persist(s.state.AccountID, s.state.PushToken, enabled); err != nil {
		s.mu.Unlock()
		return err
	}
	prior := s.state
	s.state.Enabled = enabled
	snapshot := s.state
	s.mu.Unlock()

	if enabled {
		s.signalChanged(snapshot)
	} else {
		prior.Enabled = false
		s.signalDisabled(prior)
	}
	return nil
}

func (s *SQLiteStore) persist(accountID, pushToken string, enabled bool) error {
	enabledInt := 0
	if enabled {
		enabledInt = 1
	}
	_, err := s.db.Exec(
		`UPDATE credentials SET account_id = ?, push_token = ?, enabled = ? WHERE id = 1`,
		accountID, pushToken, enabledInt,
	)
	if err != nil {
		return fmt.Errorf("persist credentials: %w", err)
	}
	return nil
}

// Close tears down notifications and the database handle.
func (s *SQLiteStore) Close() error {
	s.notifier.close()
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
