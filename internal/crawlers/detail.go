package crawlers

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/RecoveryAshes/MediaCrawler/internal/models"
)

// DetailRequest 按ID批量获取内容详情
type DetailRequest struct {
	Platform models.Platform
	// IDs 内容ID或内容URL, 重复ID只请求一次
	IDs     []string
	Options Options
}

// DetailResult 详情结果, Items 与去重后的输入顺序一致
type DetailResult struct {
	Items []models.ContentItem `json:"items"`
	// Missing 平台返回不存在的ID
	Missing []string `json:"missing,omitempty"`
}

// Detail 批量获取内容详情
func (o *Orchestrator) Detail(ctx context.Context, req DetailRequest) (*DetailResult, error) {
	r, err := o.prepare(req.Platform, req.Options)
	if err != nil {
		return nil, err
	}
	q, err := enqueue(req.IDs, "ids", r.adapter.ParseItemRef)
	if err != nil {
		return nil, err
	}
	if err := o.checkLogin(ctx, req.Platform); err != nil {
		return nil, err
	}

	found := make([]*models.ContentItem, q.Len())
	refs := make([]string, q.Len())
	opErr := r.forEach(ctx, q, func(ctx context.Context, item queueItem) error {
		refs[item.Index] = item.Ref.ID
		if err := r.wait(ctx); err != nil {
			return err
		}
		detail, err := r.adapter.Detail(ctx, o.caller, item.Ref)
		if err != nil {
			return fmt.Errorf("获取详情 %s 失败: %w", item.Ref.ID, err)
		}
		if detail == nil {
			log.Debug().Str("platform", req.Platform.String()).Str("id", item.Ref.ID).Msg("内容不存在")
			return nil
		}
		o.stampItem(req.Platform, detail)
		found[item.Index] = detail
		return nil
	})

	result := &DetailResult{Items: make([]models.ContentItem, 0, len(found))}
	for i, it := range found {
		switch {
		case it != nil:
			result.Items = append(result.Items, *it)
		case q.IsVisited(refs[i]):
			result.Missing = append(result.Missing, refs[i])
		}
	}

	log.Info().
		Str("platform", req.Platform.String()).
		Int("requested", q.Len()).
		Int("items", len(result.Items)).
		Int("missing", len(result.Missing)).
		Msg("详情采集完成")

	opErr = o.partial(len(result.Items), "", opErr)
	persistErr := o.persist(ctx, req.Platform, models.OperationDetail, result.Items, nil, nil)
	return result, finish(opErr, persistErr)
}
