// Package store 采集结果的持久化
//
// 每个 (平台, 操作类型, 自然日) 对应一组记录, 只追加不修改。
// 具体格式由实现决定: JSONL 文件、SQLite 表或 MongoDB 集合。
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/RecoveryAshes/MediaCrawler/internal/models"
)

// Sink 记录写入
type Sink interface {
	// Persist 追加一批记录, 批次内的记录属于同一个 (platform, kind, day)
	Persist(ctx context.Context, batch models.RecordBatch) error
	Close() error
}

// MultiSink 依次写入多个存储
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink 组合多个存储
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Persist 写入全部存储; 单个存储失败不影响其余存储
func (m *MultiSink) Persist(ctx context.Context, batch models.RecordBatch) error {
	if batch.Len() == 0 {
		return nil
	}
	var errs []error
	for _, s := range m.sinks {
		if err := s.Persist(ctx, batch); err != nil {
			log.Error().Err(err).
				Str("platform", batch.Platform.String()).
				Str("kind", string(batch.Kind)).
				Msg("保存记录失败")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close 关闭全部存储
func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// validateBatch 批次必须带分区信息
func validateBatch(batch models.RecordBatch) error {
	if batch.Platform == "" || batch.Kind == "" || batch.Day == "" {
		return fmt.Errorf("记录批次缺少分区信息: platform=%q kind=%q day=%q", batch.Platform, batch.Kind, batch.Day)
	}
	return nil
}

// partitionName 分区名, 如 xhs_search_2024-05-01
func partitionName(batch models.RecordBatch) string {
	return fmt.Sprintf("%s_%s_%s", batch.Platform, batch.Kind, batch.Day)
}
