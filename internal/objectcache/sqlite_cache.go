// Package objectcache persists successful REST responses in SQLite so that
// requests accepting cached versions survive a restart of the client.
package objectcache

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/dspace-go/dsfront/internal/logging"
	"github.com/dspace-go/dsfront/internal/request"

	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed schema.sql
var schemaFS embed.FS

// Stats summarizes one cached href.
type Stats struct {
	Href          string    `json:"href"`
	StatusCode    int       `json:"statusCode"`
	TimeCompleted time.Time `json:"timeCompleted"`
	MsToLive      int64     `json:"msToLive"`
	Revision      int       `json:"revision"`
	CharsAdded    int       `json:"charsAdded"`
	CharsRemoved  int       `json:"charsRemoved"`
}

// SQLiteCache implements request.ResponseCache.
type SQLiteCache struct {
	db     *sql.DB
	logger logging.Logger
	now    func() time.Time
}

// Open opens (or creates) the cache database at path. ":memory:" is accepted
// for tests.
func Open(path string, logger logging.Logger) (*SQLiteCache, error) {
	if logger == nil {
		logger = logging.Nop{}
	}
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	} else {
		dsn = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}
	// SQLite serializes writers; one connection avoids busy errors and keeps
	// an in-memory database alive.
	db.SetMaxOpenConns(1)

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply cache schema: %w", err)
	}
	return &SQLiteCache{
		db:     db,
		logger: logger.With(logging.Component("ObjectCache")),
		now:    time.Now,
	}, nil
}

func applySchema(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema.sql: %w", err)
	}
	if _, err := db.Exec(string(schemaSQL)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// Get returns the stored response for href together with its time to live.
func (c *SQLiteCache) Get(ctx context.Context, href string) (*request.Response, int64, error) {
	var payload []byte
	var msToLive int64
	err := c.db.QueryRowContext(ctx,
		`SELECT payload, ms_to_live FROM responses WHERE href = ?`, href).Scan(&payload, &msToLive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, request.ErrCacheMiss
	}
	if err != nil {
		return nil, 0, fmt.Errorf("query cached response: %w", err)
	}

	var resp request.Response
	if err := msgpack.Unmarshal(payload, &resp); err != nil {
		return nil, 0, fmt.Errorf("decode cached response: %w", err)
	}
	return &resp, msToLive, nil
}

// Put stores resp for href. When the href was cached before and the body
// changed, the revision is bumped and the size of the change recorded.
func (c *SQLiteCache) Put(ctx context.Context, href string, resp *request.Response, msToLive int64) error {
	if resp == nil {
		return errors.New("nil response")
	}
	payload, err := msgpack.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var oldPayload []byte
	var revision int
	err = tx.QueryRowContext(ctx, `SELECT payload, revision FROM responses WHERE href = ?`, href).Scan(&oldPayload, &revision)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		revision = 0
	case err != nil:
		return fmt.Errorf("query previous response: %w", err)
	}

	added, removed := 0, 0
	if revision > 0 {
		var old request.Response
		if err := msgpack.Unmarshal(oldPayload, &old); err == nil {
			added, removed = bodyChange(old.Body, resp.Body)
		}
		if added > 0 || removed > 0 {
			c.logger.Debug("cached response changed",
				logging.Field{Key: "href", Value: href},
				logging.Field{Key: "added", Value: added},
				logging.Field{Key: "removed", Value: removed})
		}
	}
	if revision == 0 || added > 0 || removed > 0 {
		revision++
	}

	completed := resp.TimeCompleted
	if completed.IsZero() {
		completed = c.now()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO responses (href, payload, status_code, time_completed, ms_to_live, revision, chars_added, chars_removed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(href) DO UPDATE SET
			payload = excluded.payload,
			status_code = excluded.status_code,
			time_completed = excluded.time_completed,
			ms_to_live = excluded.ms_to_live,
			revision = excluded.revision,
			chars_added = excluded.chars_added,
			chars_removed = excluded.chars_removed`,
		href, payload, resp.StatusCode, completed.UnixMilli(), msToLive, revision, added, removed)
	if err != nil {
		return fmt.Errorf("upsert response: %w", err)
	}
	return tx.Commit()
}

// bodyChange counts inserted and deleted characters between two bodies.
func bodyChange(old, cur []byte) (added, removed int) {
	if string(old) == string(cur) {
		return 0, 0
	}
	dmp := diffmatchpatch.New()
	for _, d := range dmp.DiffMain(string(old), string(cur), false) {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			added += len(d.Text)
		case diffmatchpatch.DiffDelete:
			removed += len(d.Text)
		}
	}
	return added, removed
}

// Stat returns bookkeeping for href.
func (c *SQLiteCache) Stat(ctx context.Context, href string) (*Stats, error) {
	st := Stats{Href: href}
	var completed int64
	err := c.db.QueryRowContext(ctx, `
		SELECT status_code, time_completed, ms_to_live, revision, chars_added, chars_removed
		FROM responses WHERE href = ?`, href).
		Scan(&st.StatusCode, &completed, &st.MsToLive, &st.Revision, &st.CharsAdded, &st.CharsRemoved)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, request.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	st.TimeCompleted = time.UnixMilli(completed)
	return &st, nil
}

// Evict deletes responses whose time to live has passed and returns how many
// rows were removed.
func (c *SQLiteCache) Evict(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM responses WHERE ms_to_live > 0 AND time_completed + ms_to_live < ?`, c.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("evict: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}
