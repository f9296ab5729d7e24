// Package deadletter 死信归档存储
//
// 归档两类无法正常消费的消息，供人工排查与重放：
//   - poison：消息体无法解析，重试无意义，直接丢弃并归档
//   - max_attempts：处理函数连续失败达到重试上限
//
// 使用 database/sql，驱动二选一：SQLite（默认，开发/测试）或 PostgreSQL（生产）。
package deadletter

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// ============================================================================
// 归档原因
// ============================================================================

const (
	// ReasonPoison 消息体无法解析
	ReasonPoison = "poison"
	// ReasonMaxAttempts 投递次数达到上限
	ReasonMaxAttempts = "max_attempts"
)

// ============================================================================
// 数据模型
// ============================================================================

// Record 死信归档记录
type Record struct {
	ID         int64     `json:"id"`
	Queue      string    `json:"queue"`
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	RoutingKey string    `json:"routing_key"`
	Body       []byte    `json:"body"`
	Reason     string    `json:"reason"`
	Attempts   int       `json:"attempts"`
	Error      string    `json:"error"`
	ArchivedAt time.Time `json:"archived_at"`
}

// DriverType 数据库驱动类型
type DriverType string

const (
	DriverSQLite   DriverType = "sqlite"
	DriverPostgres DriverType = "postgres"
)

// Store 死信归档存储
type Store struct {
	db     *sql.DB
	driver DriverType
}

// New 基于已打开的数据库连接创建存储（连接由 OpenSQLite/OpenPostgres 提供）
func New(db *sql.DB, driver DriverType) *Store {
	return &Store{db: db, driver: driver}
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	return s.db.Close()
}

// rebind 将 `?` 占位符改写为驱动方言的占位符
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Archive 归档一条死信
func (s *Store) Archive(ctx context.Context, rec *Record) error {
	if rec.ArchivedAt.IsZero() {
		rec.ArchivedAt = time.Now().UTC()
	}

	query := s.rebind(`INSERT INTO dead_letters
		(queue, event_id, event_type, routing_key, body, reason, attempts, error, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	result, err := s.db.ExecContext(ctx, query,
		rec.Queue, rec.EventID, rec.EventType, rec.RoutingKey,
		rec.Body, rec.Reason, rec.Attempts, rec.Error, rec.ArchivedAt)
	if err != nil {
		return fmt.Errorf("failed to archive dead letter: %w", err)
	}

	if id, err := result.LastInsertId(); err == nil {
		rec.ID = id
	}
	return nil
}

// List 按队列分页查询死信（queue 为空时查询全部），按归档时间倒序
func (s *Store) List(ctx context.Context, queue string, limit, offset int) ([]*Record, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := `SELECT id, queue, event_id, event_type, routing_key, body, reason, attempts, error, archived_at
		FROM dead_letters`
	args := []interface{}{}
	if queue != "" {
		query += ` WHERE queue = ?`
		args = append(args, queue)
	}
	query += ` ORDER BY archived_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Get 按 ID 获取死信记录，不存在时返回 (nil, nil)
func (s *Store) Get(ctx context.Context, id int64) (*Record, error) {
	query := s.rebind(`SELECT id, queue, event_id, event_type, routing_key, body, reason, attempts, error, archived_at
		FROM dead_letters WHERE id = ?`)

	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dead letter: %w", err)
	}
	return rec, nil
}

// Delete 删除死信记录（人工处理完毕后）
func (s *Store) Delete(ctx context.Context, id int64) error {
	query := s.rebind(`DELETE FROM dead_letters WHERE id = ?`)
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete dead letter: %w", err)
	}
	return nil
}

// Count 统计指定队列的死信数量（queue 为空时统计全部）
func (s *Store) Count(ctx context.Context, queue string) (int64, error) {
	query := `SELECT COUNT(*) FROM dead_letters`
	args := []interface{}{}
	if queue != "" {
		query += ` WHERE queue = ?`
		args = append(args, queue)
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, s.rebind(query), args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count dead letters: %w", err)
	}
	return count, nil
}

// scanner 兼容 *sql.Row 和 *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (*Record, error) {
	rec := &Record{}
	err := row.Scan(&rec.ID, &rec.Queue, &rec.EventID, &rec.EventType, &rec.RoutingKey,
		&rec.Body, &rec.Reason, &rec.Attempts, &rec.Error, &rec.ArchivedAt)
	if err != nil {
		return nil, err
	}
	return rec, nil
}
