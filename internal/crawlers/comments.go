package crawlers

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/RecoveryAshes/MediaCrawler/internal/models"
	"github.com/RecoveryAshes/MediaCrawler/internal/platform"
)

// CommentsRequest 批量获取评论
type CommentsRequest struct {
	Platform models.Platform
	// IDs 内容ID或内容URL
	IDs []string
	// Recurse 展开每条一级评论下的子评论
	Recurse bool
	// CountSubComments 子评论是否计入 MaxComments
	// false 时上限只统计一级评论, 每个楼层的子评论另按 MaxComments 截断
	CountSubComments bool
	Options          Options
}

// CommentsResult 评论结果, 键为内容ID
// 没有评论的内容对应空切片, 与采集失败区分
type CommentsResult struct {
	Comments map[string][]models.Comment `json:"comments"`
}

// Total 评论总条数
func (r *CommentsResult) Total() int {
	n := 0
	for _, list := range r.Comments {
		n += len(list)
	}
	return n
}

// Comments 获取内容评论
func (o *Orchestrator) Comments(ctx context.Context, req CommentsRequest) (*CommentsResult, error) {
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

	threads := make([][]models.Comment, q.Len())
	refs := make([]string, q.Len())
	cursors := make([]string, q.Len())

	opErr := r.forEach(ctx, q, func(ctx context.Context, item queueItem) error {
		refs[item.Index] = item.Ref.ID
		t := &thread{o: o, r: r, req: req, ref: item.Ref}
		err := t.collect(ctx)
		threads[item.Index] = t.out
		if err != nil {
			cursors[item.Index] = t.cursor
			return fmt.Errorf("获取 %s 的评论失败: %w", item.Ref.ID, err)
		}
		return nil
	})

	result := &CommentsResult{Comments: make(map[string][]models.Comment, q.Len())}
	var (
		flat         []models.Comment
		failedCursor string
	)
	for i, list := range threads {
		if cursors[i] != "" {
			failedCursor = cursors[i]
		}
		if refs[i] == "" {
			continue
		}
		if list == nil && !q.IsVisited(refs[i]) {
			continue
		}
		if list == nil {
			list = []models.Comment{}
		}
		result.Comments[refs[i]] = list
		flat = append(flat, list...)
	}

	log.Info().
		Str("platform", req.Platform.String()).
		Int("items", len(result.Comments)).
		Int("comments", len(flat)).
		Bool("recurse", req.Recurse).
		Msg("评论采集完成")

	opErr = o.partial(len(flat), failedCursor, opErr)
	persistErr := o.persist(ctx, req.Platform, models.OperationComments, nil, nil, flat)
	return result, finish(opErr, persistErr)
}

// thread 单条内容的评论采集状态
type thread struct {
	o   *Orchestrator
	r   *run
	req CommentsRequest
	ref platform.ItemRef

	out []models.Comment
	// counted 计入上限的条数
	counted int
	// cursor 失败时所在页的游标
	cursor string
}

func (t *thread) full() bool {
	return t.counted >= t.r.opts.MaxComments
}

func (t *thread) add(c models.Comment, counted bool) {
	if c.ItemID == "" {
		c.ItemID = t.ref.ID
	}
	t.o.stampComment(t.req.Platform, &c)
	t.out = append(t.out, c)
	if counted {
		t.counted++
	}
}

// collect 翻页获取一级评论, 需要时逐楼展开子评论
func (t *thread) collect(ctx context.Context) error {
	cursor := ""
	for !t.full() {
		if err := t.r.wait(ctx); err != nil {
			t.cursor = cursor
			return err
		}
		page, err := t.r.adapter.CommentPage(ctx, t.o.caller, t.ref, cursor)
		if err != nil {
			t.cursor = cursor
			return err
		}

		for _, c := range page.Items {
			if t.full() {
				return nil
			}
			t.add(c, true)
			if t.req.Recurse && c.SubCommentCount > 0 {
				if err := t.expand(ctx, c.ID); err != nil {
					t.cursor = cursor
					return err
				}
			}
		}

		if !page.HasMore || page.Cursor == "" || page.Cursor == cursor {
			return nil
		}
		cursor = page.Cursor
	}
	return nil
}

// expand 获取一个楼层的子评论
func (t *thread) expand(ctx context.Context, rootID string) error {
	cursor := ""
	inThread := 0
	for {
		if t.req.CountSubComments && t.full() {
			return nil
		}
		if err := t.r.wait(ctx); err != nil {
			return err
		}
		page, err := t.r.adapter.SubCommentPage(ctx, t.o.caller, t.ref, rootID, cursor)
		if err != nil {
			return fmt.Errorf("展开楼层 %s 失败: %w", rootID, err)
		}

		for _, c := range page.Items {
			if t.req.CountSubComments {
				if t.full() {
					return nil
				}
			} else if inThread >= t.r.opts.MaxComments {
				return nil
			}
			if c.RootID == "" {
				c.RootID = rootID
			}
			t.add(c, t.req.CountSubComments)
			inThread++
		}

		if !page.HasMore || page.Cursor == "" || page.Cursor == cursor {
			return nil
		}
		cursor = page.Cursor
	}
}
