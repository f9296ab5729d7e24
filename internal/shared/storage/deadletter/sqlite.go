// Package deadletter SQLite 驱动
package deadletter

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// sqliteSchema SQLite 建表语句
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS dead_letters (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    queue VARCHAR(200) NOT NULL,
    event_id VARCHAR(64),
    event_type VARCHAR(64),
    routing_key VARCHAR(200),
    body BLOB,
    reason VARCHAR(32) NOT NULL,
    attempts INTEGER DEFAULT 0,
    error TEXT,
    archived_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_dead_letters_queue ON dead_letters(queue, archived_at);
`

// OpenSQLite 创建 SQLite 死信存储
// dsn 示例: "file:deadletters.db?cache=shared&mode=rwc" 或 ":memory:"
func OpenSQLite(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// SQLite 优化设置
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", p, err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate dead letter schema: %w", err)
	}

	return New(db, DriverSQLite), nil
}
