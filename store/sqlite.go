package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/tbxark/brdagent/metadata"
	"github.com/tbxark/brdagent/stage"
	_ "modernc.org/sqlite"
)

// SQLiteStore backs all three persistence contracts with a single SQLite
// database file.
type SQLiteStore struct {
	db *sql.DB
}

var (
	_ StateStore      = (*SQLiteStore)(nil)
	_ MessageStore    = (*SQLiteStore)(nil)
	_ CredentialStore = (*SQLiteCredentialStore)(nil)
)

// NewSQLite opens (creating if needed) the database at dbPath in WAL mode
// and initializes the schema.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS project_state (
		project_id TEXT PRIMARY KEY,
		stage TEXT NOT NULL,
		metadata TEXT NOT NULL,
		completed INTEGER NOT NULL DEFAULT 0,
		pending_field TEXT NOT NULL DEFAULT '',
		pending_suggestion TEXT NOT NULL DEFAULT '',
		updated_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_project ON messages(project_id, created_at);
	CREATE TABLE IF NOT EXISTS user_credentials (
		user_id TEXT PRIMARY KEY,
		bearer TEXT NOT NULL,
		cloud_id TEXT NOT NULL DEFAULT '',
		refresh_token TEXT NOT NULL DEFAULT '',
		expiry INTEGER NOT NULL DEFAULT 0
	);`
	_, err := s.db.Exec(query)
	return err
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, projectID string) (*ProjectState, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT stage, metadata, completed, pending_field, pending_suggestion, updated_at
		 FROM project_state WHERE project_id = ?`, projectID)

	var (
		stageID, metaJSON, pendingField, pendingSuggestion string
		completed                                          int
		updatedAt                                          int64
	)
	err := row.Scan(&stageID, &metaJSON, &completed, &pendingField, &pendingSuggestion, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		init := newProjectState(projectID)
		if _, err := s.write(ctx, init, init.Metadata); err != nil {
			return nil, err
		}
		return init, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query project state: %w", err)
	}

	var meta metadata.Metadata
	if err := sonic.UnmarshalString(metaJSON, &meta); err != nil {
		return nil, fmt.Errorf("decode stored metadata: %w", err)
	}
	return &ProjectState{
		ProjectID:         projectID,
		Stage:             stage.ID(stageID),
		Metadata:          &meta,
		Completed:         completed != 0,
		PendingField:      pendingField,
		PendingSuggestion: pendingSuggestion,
		UpdatedAt:         time.Unix(updatedAt, 0),
	}, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, state *ProjectState) (*ProjectState, error) {
	merged := state.Metadata
	row := s.db.QueryRowContext(ctx,
		`SELECT metadata FROM project_state WHERE project_id = ?`, state.ProjectID)
	var existingJSON string
	switch err := row.Scan(&existingJSON); {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("query existing metadata: %w", err)
	default:
		var existing metadata.Metadata
		if err := sonic.UnmarshalString(existingJSON, &existing); err != nil {
			return nil, fmt.Errorf("decode stored metadata: %w", err)
		}
		merged, err = metadata.Merge(&existing, state.Metadata)
		if err != nil {
			return nil, err
		}
	}
	return s.write(ctx, state, merged)
}

func (s *SQLiteStore) write(ctx context.Context, state *ProjectState, merged *metadata.Metadata) (*ProjectState, error) {
	metaJSON, err := sonic.MarshalString(merged)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	now := time.Now()
	completed := 0
	if state.Completed {
		completed = 1
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO project_state (project_id, stage, metadata, completed, pending_field, pending_suggestion, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(project_id) DO UPDATE SET
			stage = excluded.stage,
			metadata = excluded.metadata,
			completed = excluded.completed,
			pending_field = excluded.pending_field,
			pending_suggestion = excluded.pending_suggestion,
			updated_at = excluded.updated_at`,
		state.ProjectID, string(state.Stage), metaJSON, completed,
		state.PendingField, state.PendingSuggestion, now.Unix())
	if err != nil {
		return nil, fmt.Errorf("upsert project state: %w", err)
	}
	out := *state
	out.Metadata = merged
	out.UpdatedAt = now
	return &out, nil
}

func (s *SQLiteStore) Recent(ctx context.Context, projectID string, n int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, content, created_at FROM messages
		 WHERE project_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`, projectID, n)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var msg Message
		var createdAt int64
		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.ProjectID = projectID
		msg.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Add(ctx context.Context, projectID, role, content string) (*Message, error) {
	msg := Message{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, project_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.ProjectID, msg.Role, msg.Content, msg.CreatedAt.Unix())
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return &msg, nil
}

// SQLiteCredentialStore is the credential view over the same database.
type SQLiteCredentialStore struct {
	db *sql.DB
}

// Credentials returns the CredentialStore backed by this database.
func (s *SQLiteStore) Credentials() *SQLiteCredentialStore {
	return &SQLiteCredentialStore{db: s.db}
}

func (s *SQLiteCredentialStore) Get(ctx context.Context, userID string) (*Credential, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT bearer, cloud_id, refresh_token, expiry FROM user_credentials WHERE user_id = ?`, userID)
	var cred Credential
	var expiry int64
	err := row.Scan(&cred.Bearer, &cred.CloudID, &cred.RefreshToken, &expiry)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query credential: %w", err)
	}
	if expiry > 0 {
		cred.Expiry = time.Unix(expiry, 0)
	}
	return &cred, nil
}

// Put stores a full credential, e.g. after an OAuth callback.
func (s *SQLiteCredentialStore) Put(ctx context.Context, userID string, cred *Credential) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_credentials (user_id, bearer, cloud_id, refresh_token, expiry)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			bearer = excluded.bearer,
			cloud_id = excluded.cloud_id,
			refresh_token = excluded.refresh_token,
			expiry = excluded.expiry`,
		userID, cred.Bearer, cred.CloudID, cred.RefreshToken, cred.Expiry.Unix())
	if err != nil {
		return fmt.Errorf("put credential: %w", err)
	}
	return nil
}

func (s *SQLiteCredentialStore) Update(ctx context.Context, userID, bearer, refreshToken string, expiry time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE user_credentials SET bearer = ?, expiry = ?,
			refresh_token = CASE WHEN ? = '' THEN refresh_token ELSE ? END
		 WHERE user_id = ?`,
		bearer, expiry.Unix(), refreshToken, refreshToken, userID)
	if err != nil {
		return fmt.Errorf("update credential: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
