package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	_ "modernc.org/sqlite"

	"github.com/RecoveryAshes/MediaCrawler/internal/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS records (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	platform    TEXT NOT NULL,
	kind        TEXT NOT NULL,
	day         TEXT NOT NULL,
	record_type TEXT NOT NULL,
	record_id   TEXT NOT NULL,
	crawled_at  TEXT NOT NULL,
	payload     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_records_partition ON records (platform, kind, day);
CREATE INDEX IF NOT EXISTS idx_records_id ON records (platform, record_type, record_id);
`

// SQLiteSink 所有分区写入同一张只追加的 records 表
// 完整记录以 JSON 存在 payload 列, 分区字段单独建索引
type SQLiteSink struct {
	db *sql.DB
}

// OpenSQLiteSink 打开(必要时创建)数据库文件
func OpenSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("打开SQLite失败: %w", err)
	}
	// modernc 驱动同一连接上串行执行写入
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化SQLite表结构失败: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

// Persist 在一个事务内写入整个批次
func (s *SQLiteSink) Persist(ctx context.Context, batch models.RecordBatch) error {
	if err := validateBatch(batch); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO records
		(platform, kind, day, record_type, record_id, crawled_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("准备插入语句失败: %w", err)
	}
	defer stmt.Close()

	insert := func(recordType, id string, crawledAt time.Time, v interface{}) error {
		payload, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("序列化记录失败: %w", err)
		}
		_, err = stmt.ExecContext(ctx,
			batch.Platform.String(), string(batch.Kind), batch.Day,
			recordType, id, crawledAt.UTC().Format(time.RFC3339Nano), string(payload))
		if err != nil {
			return fmt.Errorf("插入记录 %s 失败: %w", id, err)
		}
		return nil
	}

	for _, it := range batch.Items {
		if err := insert(RecordItems, it.ID, it.CrawledAt, it); err != nil {
			return err
		}
	}
	for _, c := range batch.Creators {
		if err := insert(RecordCreators, c.ID, c.CrawledAt, c); err != nil {
			return err
		}
	}
	for _, c := range batch.Comments {
		if err := insert(RecordComments, c.ID, c.CrawledAt, c); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}

	log.Debug().
		Str("platform", batch.Platform.String()).
		Str("kind", string(batch.Kind)).
		Str("day", batch.Day).
		Int("records", batch.Len()).
		Msg("SQLite写入完成")
	return nil
}

// Count 返回某个分区的记录数
func (s *SQLiteSink) Count(ctx context.Context, platform models.Platform, kind models.OperationKind, day string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE platform = ? AND kind = ? AND day = ?`,
		platform.String(), string(kind), day).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("统计记录失败: %w", err)
	}
	return n, nil
}

// Items 读取某个分区的内容记录, 按写入顺序
func (s *SQLiteSink) Items(ctx context.Context, platform models.Platform, kind models.OperationKind, day string) ([]models.ContentItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM records WHERE platform = ? AND kind = ? AND day = ? AND record_type = ? ORDER BY seq`,
		platform.String(), string(kind), day, RecordItems)
	if err != nil {
		return nil, fmt.Errorf("查询记录失败: %w", err)
	}
	defer rows.Close()

	var items []models.ContentItem
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("读取记录失败: %w", err)
		}
		var it models.ContentItem
		if err := json.Unmarshal([]byte(payload), &it); err != nil {
			return nil, fmt.Errorf("解析记录失败: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// Close 关闭数据库
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
