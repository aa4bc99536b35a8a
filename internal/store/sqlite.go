package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/aria/internal/domain"
	"github.com/ashureev/aria/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements CacheStorage using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex // Serializes writers to avoid SQLITE_BUSY between install and activate
}

// NewSQLite creates a new SQLite-backed cache storage.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS cache_generations (
		name TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS cached_assets (
		cache_name TEXT NOT NULL REFERENCES cache_generations(name) ON DELETE CASCADE,
		url TEXT NOT NULL,
		seq INTEGER NOT NULL,
		status INTEGER NOT NULL,
		header_cbor BLOB NOT NULL,
		body_zstd BLOB NOT NULL,
		etag TEXT NOT NULL,
		stored_at INTEGER NOT NULL,
		PRIMARY KEY (cache_name, url)
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// classify wraps SQLite lock contention as ErrBusy.
func classify(op string, err error) error {
	if shared.IsSQLiteConflictError(err) {
		return fmt.Errorf("%s: %w: %v", op, ErrBusy, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Open creates the named cache if it does not exist yet.
func (s *SQLiteStore) Open(ctx context.Context, name string) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO cache_generations (name, created_at) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`,
		name, time.Now().UnixNano())
	if err != nil {
		return false, classify("open cache", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return rows > 0, nil
}

// Keys returns the names of all caches, oldest first.
func (s *SQLiteStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM cache_generations ORDER BY created_at, name`)
	if err != nil {
		return nil, classify("query cache names", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close cache name rows", "error", closeErr)
		}
	}()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan cache name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cache names: %w", err)
	}
	return names, nil
}

// Delete removes a cache and every asset in it.
func (s *SQLiteStore) Delete(ctx context.Context, name string) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, classify("begin delete", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cached_assets WHERE cache_name = ?`, name); err != nil {
		return false, classify("delete cached assets", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM cache_generations WHERE name = ?`, name)
	if err != nil {
		return false, classify("delete cache", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, classify("commit delete", err)
	}
	return rows > 0, nil
}

// PutAll replaces the contents of a cache with assets in one transaction.
func (s *SQLiteStore) PutAll(ctx context.Context, name string, assets []*domain.CachedAsset) error {
	type row struct {
		asset  *domain.CachedAsset
		header []byte
		body   []byte
	}
	// Encode outside the transaction so a bad header never leaves it half written.
	encoded := make([]row, 0, len(assets))
	for _, a := range assets {
		header, err := encodeHeader(a.Header)
		if err != nil {
			return fmt.Errorf("put %s: %w", a.URL, err)
		}
		encoded = append(encoded, row{asset: a, header: header, body: compressBody(a.Body)})
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin put", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_generations WHERE name = ?`, name).Scan(&exists); err != nil {
		return classify("check cache", err)
	}
	if exists == 0 {
		return fmt.Errorf("put into %q: %w", name, ErrNoCache)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM cached_assets WHERE cache_name = ?`, name); err != nil {
		return classify("clear cache", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cached_assets (cache_name, url, seq, status, header_cbor, body_zstd, etag, stored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return classify("prepare put", err)
	}
	defer func() {
		if closeErr := stmt.Close(); closeErr != nil {
			slog.Debug("failed to close put statement", "error", closeErr)
		}
	}()

	for i, r := range encoded {
		storedAt := r.asset.StoredAt
		if storedAt.IsZero() {
			storedAt = time.Now()
		}
		if _, err := stmt.ExecContext(ctx,
			name, r.asset.URL, i, r.asset.Status,
			r.header, r.body, r.asset.ETag, storedAt.UnixNano(),
		); err != nil {
			return classify("put "+r.asset.URL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return classify("commit put", err)
	}
	return nil
}

// Match returns the asset stored under the exact URL.
func (s *SQLiteStore) Match(ctx context.Context, name, url string) (*domain.CachedAsset, error) {
	query := `
		SELECT url, status, header_cbor, body_zstd, etag, stored_at
		FROM cached_assets WHERE cache_name = ? AND url = ?`

	var (
		asset    domain.CachedAsset
		header   []byte
		body     []byte
		storedAt int64
	)
	err := s.db.QueryRowContext(ctx, query, name, url).Scan(
		&asset.URL, &asset.Status, &header, &body, &asset.ETag, &storedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, classify("match "+url, err)
	}

	if asset.Header, err = decodeHeader(header); err != nil {
		return nil, fmt.Errorf("match %s: %w", url, err)
	}
	if asset.Body, err = decompressBody(body); err != nil {
		return nil, fmt.Errorf("match %s: %w", url, err)
	}
	asset.StoredAt = time.Unix(0, storedAt)

	return &asset, nil
}

// URLs lists the URLs stored in a cache in insertion order.
func (s *SQLiteStore) URLs(ctx context.Context, name string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT url FROM cached_assets WHERE cache_name = ? ORDER BY seq`, name)
	if err != nil {
		return nil, classify("query cached urls", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close cached url rows", "error", closeErr)
		}
	}()

	var urls []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("scan cached url: %w", err)
		}
		urls = append(urls, url)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cached urls: %w", err)
	}
	return urls, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

var _ CacheStorage = (*SQLiteStore)(nil)
