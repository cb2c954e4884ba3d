package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/RecoveryAshes/MediaCrawler/internal/models"
)

// 记录类型, 用作文件名/表字段/集合名后缀
const (
	RecordItems    = "items"
	RecordCreators = "creators"
	RecordComments = "comments"
)

// JSONLSink 每个分区一个追加写入的 JSONL 文件
// 路径: <dir>/<platform>/<platform>_<kind>_<day>_<record>.jsonl
type JSONLSink struct {
	dir string
	mu  sync.Mutex
}

// NewJSONLSink 创建 JSONL 存储
func NewJSONLSink(dir string) (*JSONLSink, error) {
	if dir == "" {
		return nil, fmt.Errorf("JSONL存储目录不能为空")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("创建存储目录失败: %w", err)
	}
	return &JSONLSink{dir: dir}, nil
}

// Path 返回分区文件路径
func (s *JSONLSink) Path(batch models.RecordBatch, record string) string {
	name := fmt.Sprintf("%s_%s.jsonl", partitionName(batch), record)
	return filepath.Join(s.dir, batch.Platform.String(), name)
}

// Persist 追加写入
func (s *JSONLSink) Persist(ctx context.Context, batch models.RecordBatch) error {
	if err := validateBatch(batch); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := appendLines(s.Path(batch, RecordItems), batch.Items); err != nil {
		return err
	}
	if err := appendLines(s.Path(batch, RecordCreators), batch.Creators); err != nil {
		return err
	}
	if err := appendLines(s.Path(batch, RecordComments), batch.Comments); err != nil {
		return err
	}

	log.Debug().
		Str("platform", batch.Platform.String()).
		Str("kind", string(batch.Kind)).
		Str("day", batch.Day).
		Int("records", batch.Len()).
		Msg("JSONL写入完成")
	return nil
}

// Close JSONL 存储不持有文件句柄
func (s *JSONLSink) Close() error {
	return nil
}

func appendLines[T any](path string, records []T) error {
	if len(records) == 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("创建分区目录失败: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("打开分区文件失败: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("序列化记录失败: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("写入分区文件失败: %w", err)
	}
	return nil
}
