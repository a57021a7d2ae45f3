package persistence

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MimeLyc/live-caption-translator/pkg/log"
	_ "modernc.org/sqlite"
)

const changeFeedBuffer = 16

//go:embed migrations/*.sql
var migrationFiles embed.FS

// SQLiteStore is the key-value store shared by the pipeline and the
// coordinator. Writes are committed before the change feed is notified.
type SQLiteStore struct {
	db *sql.DB

	subMu  sync.Mutex
	subs   map[int]chan Change
	nextID int
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{
		db:   db,
		subs: make(map[int]chan Change),
	}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	s.subMu.Lock()
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.subMu.Unlock()
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		content, err := migrationFiles.ReadFile(path.Join("migrations", entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer from a migration filename (e.g. "001_init.sql" → 1).
func migrationVersion(name string) int {
	for i, c := range name {
		if c < '0' || c > '9' {
			if i == 0 {
				return 0
			}
			n, _ := strconv.Atoi(name[:i])
			return n
		}
	}
	n, _ := strconv.Atoi(name)
	return n
}

// Get returns the stored values for keys. Missing keys are absent from the
// result. With no keys the whole namespace is returned.
func (s *SQLiteStore) Get(ctx context.Context, ns Namespace, keys ...string) (map[string]string, error) {
	query := `SELECT key, value FROM kv_entries WHERE namespace = ?`
	args := []any{string(ns)}
	if len(keys) > 0 {
		query += ` AND key IN (` + strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",") + `)`
		for _, k := range keys {
			args = append(args, k)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query namespace %s: %w", ns, err)
	}
	defer rows.Close()

	ret := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		ret[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *SQLiteStore) Set(ctx context.Context, ns Namespace, values map[string]string) error {
	return s.Apply(ctx, SetOp(ns, values))
}

func (s *SQLiteStore) Clear(ctx context.Context, ns Namespace) error {
	return s.Apply(ctx, ClearOp(ns))
}

// Apply runs all ops in one transaction.
func (s *SQLiteStore) Apply(ctx context.Context, ops ...Op) (err error) {
	if len(ops) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	changes := make([]Change, 0, len(ops))
	for _, op := range ops {
		change := Change{Namespace: op.Namespace, At: now}
		if op.Clear {
			if _, err = tx.ExecContext(ctx, `DELETE FROM kv_entries WHERE namespace = ?`, string(op.Namespace)); err != nil {
				return fmt.Errorf("clear namespace %s: %w", op.Namespace, err)
			}
			change.Cleared = true
		}
		for key, value := range op.Values {
			if _, err = tx.ExecContext(
				ctx,
				`INSERT INTO kv_entries (namespace, key, value, updated_at)
				 VALUES (?, ?, ?, ?)
				 ON CONFLICT(namespace, key) DO UPDATE SET
					value=excluded.value,
					updated_at=excluded.updated_at`,
				string(op.Namespace),
				key,
				value,
				now,
			); err != nil {
				return fmt.Errorf("set %s/%s: %w", op.Namespace, key, err)
			}
			change.Keys = append(change.Keys, key)
		}
		sort.Strings(change.Keys)
		changes = append(changes, change)
	}

	if err = tx.Commit(); err != nil {
		return err
	}
	for _, change := range changes {
		s.publish(change)
	}
	return nil
}

// IncrementJSON adds delta to a numeric field of the JSON object stored
// under key in one statement and returns the updated object. A missing or
// malformed value starts from an empty object.
func (s *SQLiteStore) IncrementJSON(ctx context.Context, ns Namespace, key, field string, delta int) (string, error) {
	now := time.Now().UTC()
	var value string
	err := s.db.QueryRowContext(
		ctx,
		`INSERT INTO kv_entries (namespace, key, value, updated_at)
		 VALUES (?1, ?2, json_object(?3, ?4), ?5)
		 ON CONFLICT(namespace, key) DO UPDATE SET
			value=json_set(
				CASE WHEN json_valid(value) THEN value ELSE '{}' END,
				'$.' || ?3,
				CASE WHEN json_valid(value) THEN COALESCE(json_extract(value, '$.' || ?3), 0) ELSE 0 END + ?4
			),
			updated_at=excluded.updated_at
		 RETURNING value`,
		string(ns),
		key,
		field,
		delta,
		now,
	).Scan(&value)
	if err != nil {
		return "", fmt.Errorf("increment %s/%s.%s: %w", ns, key, field, err)
	}
	s.publish(Change{Namespace: ns, Keys: []string{key}, At: now})
	return value, nil
}

// Count returns the number of keys stored in a namespace.
func (s *SQLiteStore) Count(ctx context.Context, ns Namespace) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM kv_entries WHERE namespace = ?`, string(ns)).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Maintain folds the WAL back into the main database and refreshes planner stats.
func (s *SQLiteStore) Maintain(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE);"); err != nil {
		return fmt.Errorf("wal checkpoint: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA optimize;"); err != nil {
		return fmt.Errorf("optimize: %w", err)
	}
	return nil
}

// Subscribe registers a listener on the change feed. A slow listener misses
// changes instead of blocking writers.
func (s *SQLiteStore) Subscribe() (<-chan Change, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan Change, changeFeedBuffer)
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			if existing, ok := s.subs[id]; ok {
				close(existing)
				delete(s.subs, id)
			}
		})
	}
}

func (s *SQLiteStore) publish(change Change) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for id, ch := range s.subs {
		select {
		case ch <- change:
		default:
			log.Warn("Change feed subscriber %d is full, dropping %s change", id, change.Namespace)
		}
	}
}
