// Package crawlers 提供搜索、详情、创作者和评论四类采集操作
//
// # 概述
//
// Orchestrator 只依赖 platform.Adapter 与 platform.Caller 两个接口:
// 适配器负责单页请求与解析, 编排器负责翻页、上限、请求间隔、并发以及落盘。
// 每次调用的参数(Options)由调用方显式传入, 零值字段取默认值,
// 不同平台或同一平台的并发调用互不影响。
//
// # 核心组件
//
// ## Orchestrator
//
//	orch := crawlers.New(registry, client, crawlers.Config{
//	    Defaults: crawlers.DefaultOptions(),
//	    Sink:     sink,
//	    Gate:     loginService,
//	})
//
//	res, err := orch.Search(ctx, crawlers.SearchRequest{
//	    Platform: "xhs",
//	    Keywords: []string{"咖啡"},
//	    Options:  crawlers.Options{PageSize: 20, MaxItems: 15},
//	})
//
// ## IDQueue (ID队列)
//
// Detail / CreatorFeed / Comments 先把输入ID解析并去重后放入队列,
// 再由 Concurrency 个worker并发处理。结果按去重后的输入顺序返回。
//
//	q := NewIDQueue(len(ids))
//	q.Push(raw, ref)
//	q.Close()
//	item, ok := q.Pop(ctx)
//	q.MarkVisited(item.Ref.ID)
//
// # 上限
//
//   - Search: MaxItems 按关键词计数, 页中途达到上限立即停止
//   - Search 按天: per_day 每个自然日最多 MaxPerDay 条; exhaustive 只受 MaxItems 约束
//   - CreatorFeed: 每个创作者最多 MaxItems 条
//   - Comments: 每条内容最多 MaxComments 条, CountSubComments 决定子评论是否计入
//
// # 请求间隔
//
// 同一次操作内的所有请求(包括多个worker)共用一个 rate.Limiter,
// 相邻两次请求至少间隔 Interval。
//
// # 错误处理
//
//   - 参数错误: 在任何网络请求之前返回 *models.ValidationError
//   - 未登录: 配置了 Gate 时返回 models.ErrNotLoggedIn
//   - 中途失败: 返回已采集的结果和 *models.PartialError (含续爬游标)
//   - 空结果: 返回空列表且 err == nil, 与采集失败区分
//
// # 落盘
//
// 配置了 Sink 时, 每次操作结束后按 (平台, 操作类型, 采集日) 分组追加写入,
// 部分结果同样写入。
package crawlers
