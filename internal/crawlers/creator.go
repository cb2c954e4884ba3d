package crawlers

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/RecoveryAshes/MediaCrawler/internal/models"
)

// CreatorRequest 按创作者采集
type CreatorRequest struct {
	Platform models.Platform
	// CreatorIDs 创作者ID或主页URL
	CreatorIDs []string
	// Mode 必须显式指定 feed 或 profile
	Mode    models.CreatorMode
	Options Options
}

// CreatorResult 创作者采集结果
// feed 模式填充 Items, profile 模式填充 Creators
type CreatorResult struct {
	Items    []models.ContentItem `json:"items,omitempty"`
	Creators []models.Creator     `json:"creators,omitempty"`
	Missing  []string             `json:"missing,omitempty"`
}

// CreatorFeed 枚举创作者作品或获取创作者资料
func (o *Orchestrator) CreatorFeed(ctx context.Context, req CreatorRequest) (*CreatorResult, error) {
	switch req.Mode {
	case models.CreatorModeFeed, models.CreatorModeProfile:
	case "":
		return nil, &models.ValidationError{Field: "mode", Reason: "必须指定采集模式", Suggestion: "feed, profile"}
	default:
		return nil, &models.ValidationError{Field: "mode", Value: string(req.Mode), Reason: "不支持的采集模式", Suggestion: "feed, profile"}
	}

	r, err := o.prepare(req.Platform, req.Options)
	if err != nil {
		return nil, err
	}
	q, err := enqueue(req.CreatorIDs, "creator_ids", creatorRef(r.adapter))
	if err != nil {
		return nil, err
	}
	if err := o.checkLogin(ctx, req.Platform); err != nil {
		return nil, err
	}

	if req.Mode == models.CreatorModeProfile {
		return o.creatorProfiles(ctx, r, req, q)
	}
	return o.creatorFeeds(ctx, r, req, q)
}

func (o *Orchestrator) creatorFeeds(ctx context.Context, r *run, req CreatorRequest, q *IDQueue) (*CreatorResult, error) {
	feeds := make([][]models.ContentItem, q.Len())
	cursors := make([]string, q.Len())

	opErr := r.forEach(ctx, q, func(ctx context.Context, item queueItem) error {
		creatorID := item.Ref.ID
		var (
			out    []models.ContentItem
			cursor string
		)
		defer func() { feeds[item.Index] = out }()

		for {
			if err := r.wait(ctx); err != nil {
				cursors[item.Index] = cursor
				return err
			}
			page, err := r.adapter.CreatorFeedPage(ctx, o.caller, creatorID, cursor)
			if err != nil {
				cursors[item.Index] = cursor
				return fmt.Errorf("获取创作者 %s 作品失败: %w", creatorID, err)
			}
			for _, it := range page.Items {
				if it.AuthorID == "" {
					it.AuthorID = creatorID
				}
				o.stampItem(req.Platform, &it)
				out = append(out, it)
				if len(out) >= r.opts.MaxItems {
					return nil
				}
			}
			if !page.HasMore || page.Cursor == "" || page.Cursor == cursor {
				return nil
			}
			cursor = page.Cursor
		}
	})

	result := &CreatorResult{}
	var failedCursor string
	for i, items := range feeds {
		result.Items = append(result.Items, items...)
		if cursors[i] != "" {
			failedCursor = cursors[i]
		}
	}

	log.Info().
		Str("platform", req.Platform.String()).
		Int("creators", q.Len()).
		Int("items", len(result.Items)).
		Msg("创作者作品采集完成")

	opErr = o.partial(len(result.Items), failedCursor, opErr)
	persistErr := o.persist(ctx, req.Platform, models.OperationCreator, result.Items, nil, nil)
	return result, finish(opErr, persistErr)
}

func (o *Orchestrator) creatorProfiles(ctx context.Context, r *run, req CreatorRequest, q *IDQueue) (*CreatorResult, error) {
	profiles := make([]*models.Creator, q.Len())
	refs := make([]string, q.Len())

	opErr := r.forEach(ctx, q, func(ctx context.Context, item queueItem) error {
		refs[item.Index] = item.Ref.ID
		if err := r.wait(ctx); err != nil {
			return err
		}
		c, err := r.adapter.CreatorProfile(ctx, o.caller, item.Ref.ID)
		if err != nil {
			return fmt.Errorf("获取创作者 %s 资料失败: %w", item.Ref.ID, err)
		}
		if c != nil {
			o.stampCreator(req.Platform, c)
			profiles[item.Index] = c
		}
		return nil
	})

	result := &CreatorResult{}
	for i, c := range profiles {
		switch {
		case c != nil:
			result.Creators = append(result.Creators, *c)
		case q.IsVisited(refs[i]):
			result.Missing = append(result.Missing, refs[i])
		}
	}

	log.Info().
		Str("platform", req.Platform.String()).
		Int("creators", len(result.Creators)).
		Int("missing", len(result.Missing)).
		Msg("创作者资料采集完成")

	opErr = o.partial(len(result.Creators), "", opErr)
	persistErr := o.persist(ctx, req.Platform, models.OperationCreator, nil, result.Creators, nil)
	return result, finish(opErr, persistErr)
}
