package persistence

import (
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/jormio/chronicle/pkg/api"
)

// openDB opens (creating if absent) the single SQLite database file for one
// workspace and configures the connection:
//
//   - WAL journaling, so readers are not blocked while a write is in flight
//   - foreign key enforcement
//   - synchronous=NORMAL, trading the strictest fsync-per-write guarantee
//     for throughput; a hard power cut may lose the last few transactions,
//     a clean exit loses nothing
//
// The pool is capped at one connection so every writer shares it. Combined
// with transaction-scoped sequence allocation this serializes appends per
// workspace without any locking above the engine.
func openDB(path string) (*sql.DB, error) {
	if !filepath.IsAbs(path) {
		return nil, fmt.Errorf("%w: %q", api.ErrNotAbsolutePath, path)
	}

	dsn := "file:" + path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(ON)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	// sql.Open is lazy; force a connection so a bad path or corrupt file
	// fails here instead of on the first append.
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open database %q: %w", path, err)
	}

	return db, nil
}

// closeDB checkpoints the write-ahead log back into the main database file,
// then closes the handle. After a successful checkpoint the file is
// self-contained without its WAL sidecar. A failed checkpoint is logged and
// the close still proceeds; the sidecar is simply replayed on the next open.
// Once the checkpoint has failed, a close error is logged rather than
// returned: the caller can do nothing with it that the next open will not
// already repair.
func closeDB(db *sql.DB, logger *slog.Logger) error {
	var busy, logFrames, checkpointed int
	err := db.QueryRow(`PRAGMA wal_checkpoint(TRUNCATE);`).Scan(&busy, &logFrames, &checkpointed)
	checkpointFailed := err != nil || busy != 0
	if checkpointFailed && logger != nil {
		logger.Warn("wal checkpoint failed on close",
			slog.Int("busy", busy),
			slog.Any("error", err),
		)
	}

	closeErr := db.Close()
	if closeErr != nil && checkpointFailed {
		if logger != nil {
			logger.Warn("close failed after failed checkpoint", slog.Any("error", closeErr))
		}
		return nil
	}
	return closeErr
}
