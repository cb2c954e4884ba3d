package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/RecoveryAshes/MediaCrawler/internal/core"
	"github.com/RecoveryAshes/MediaCrawler/internal/crawlers"
	"github.com/RecoveryAshes/MediaCrawler/internal/models"
	"github.com/RecoveryAshes/MediaCrawler/internal/utils"
)

var (
	flags crawlFlags

	keywords  string
	pageNum   int
	sortBy    string
	noteType  string
	since     string
	until     string
	dayPolicy string
	maxPerDay int

	ids        []string
	idFile     string
	creatorIDs []string
	mode       string

	recurse          bool
	countSubComments bool

	tasksFile string
)

// toOptions 命令行参数转为采集参数
func (f crawlFlags) toOptions() crawlers.Options {
	return crawlers.Options{
		PageSize:    f.pageSize,
		MaxItems:    f.limit,
		MaxComments: f.maxComments,
		MaxPerDay:   maxPerDay,
		Interval:    f.interval,
		Concurrency: f.concurrency,
	}
}

// withProgress 为按ID处理的操作挂上进度条
func withProgress(opts crawlers.Options, description string) crawlers.Options {
	var bar *progressbar.ProgressBar
	opts.OnProgress = func(done, total int) {
		if bar == nil {
			bar = utils.NewProgressBar(total, description)
		}
		bar.Set(done)
		if done == total {
			bar.Finish()
			fmt.Println()
		}
	}
	return opts
}

// reportPartial 部分失败时提示续爬游标
func reportPartial(err error) error {
	var pe *models.PartialError
	if errors.As(err, &pe) {
		utils.Warnf("采集中断, 已采集 %d 条, 续爬游标: %q", pe.Collected, pe.Cursor)
	}
	return err
}

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "按关键词搜索内容",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := ValidateCrawlFlags(flags)
		if err != nil {
			return err
		}
		from, err := ParseDay("since", since, false)
		if err != nil {
			return err
		}
		to, err := ParseDay("until", until, true)
		if err != nil {
			return err
		}

		return withApp(func(ctx context.Context, app *core.App) error {
			res, err := app.Crawler.Search(ctx, crawlers.SearchRequest{
				Platform:  p,
				Keywords:  utils.SplitKeywords(keywords),
				PageNum:   pageNum,
				Sort:      sortBy,
				Type:      noteType,
				Since:     from,
				Until:     to,
				DayPolicy: models.DayPolicy(dayPolicy),
				Options:   flags.toOptions(),
			})
			if res != nil {
				utils.Infof("[%s] 搜索完成: %d 条", p, len(res.Items))
				if res.NextCursor != "" {
					utils.Infof("下一页: --page %s", res.NextCursor)
				}
			}
			return reportPartial(err)
		})
	},
}

var detailCmd = &cobra.Command{
	Use:   "detail",
	Short: "按ID或链接采集内容详情",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := ValidateCrawlFlags(flags)
		if err != nil {
			return err
		}
		list, err := CollectIDs("ids", ids, idFile)
		if err != nil {
			return err
		}

		return withApp(func(ctx context.Context, app *core.App) error {
			res, err := app.Crawler.Detail(ctx, crawlers.DetailRequest{
				Platform: p,
				IDs:      list,
				Options:  withProgress(flags.toOptions(), "内容详情"),
			})
			if res != nil {
				utils.Infof("[%s] 详情采集完成: %d 条, 未找到 %d 条", p, len(res.Items), len(res.Missing))
				for _, id := range res.Missing {
					utils.Warnf("  未找到: %s", id)
				}
			}
			return reportPartial(err)
		})
	},
}

var creatorCmd = &cobra.Command{
	Use:   "creator",
	Short: "采集创作者作品或资料",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := ValidateCrawlFlags(flags)
		if err != nil {
			return err
		}
		list, err := CollectIDs("creator_ids", creatorIDs, idFile)
		if err != nil {
			return err
		}

		return withApp(func(ctx context.Context, app *core.App) error {
			res, err := app.Crawler.CreatorFeed(ctx, crawlers.CreatorRequest{
				Platform:   p,
				CreatorIDs: list,
				Mode:       models.CreatorMode(mode),
				Options:    withProgress(flags.toOptions(), "创作者"),
			})
			if res != nil {
				utils.Infof("[%s] 创作者采集完成: 作品 %d 条, 资料 %d 份", p, len(res.Items), len(res.Creators))
			}
			return reportPartial(err)
		})
	},
}

var commentsCmd = &cobra.Command{
	Use:   "comments",
	Short: "采集内容的评论",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := ValidateCrawlFlags(flags)
		if err != nil {
			return err
		}
		list, err := CollectIDs("ids", ids, idFile)
		if err != nil {
			return err
		}

		return withApp(func(ctx context.Context, app *core.App) error {
			countSub := appConfig.Crawl.CountSubComments
			if cmd.Flags().Changed("count-sub-comments") {
				countSub = countSubComments
			}
			res, err := app.Crawler.Comments(ctx, crawlers.CommentsRequest{
				Platform:         p,
				IDs:              list,
				Recurse:          recurse,
				CountSubComments: countSub,
				Options:          withProgress(flags.toOptions(), "评论"),
			})
			if res != nil {
				utils.Infof("[%s] 评论采集完成: %d 条内容, 共 %d 条评论", p, len(res.Comments), res.Total())
			}
			return reportPartial(err)
		})
	},
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "按任务文件批量采集",
	RunE: func(cmd *cobra.Command, args []string) error {
		file, err := core.LoadBatchFile(tasksFile)
		if err != nil {
			return err
		}

		return withApp(func(ctx context.Context, app *core.App) error {
			runner := core.NewBatchRunner(app.Crawler, file.Delay, file.ContinueOnError, appConfig.Crawl.CountSubComments)
			summary := runner.Run(ctx, file.Tasks)

			path, err := core.SaveSummary(appConfig.Store.OutputDir, summary)
			if err != nil {
				return err
			}
			utils.Infof("批量采集报告: %s", path)
			if summary.FailCount > 0 {
				return fmt.Errorf("%d 个任务失败", summary.FailCount)
			}
			return nil
		})
	},
}

func init() {
	for _, cmd := range []*cobra.Command{searchCmd, detailCmd, creatorCmd, commentsCmd} {
		f := cmd.Flags()
		f.StringVarP(&flags.platform, "platform", "p", "", "平台 (xhs|bilibili)")
		f.IntVar(&flags.limit, "limit", 0, "每个关键词/创作者的内容上限 (默认取 crawl.max_items)")
		f.IntVar(&flags.pageSize, "page-size", 0, "每页条数")
		f.DurationVar(&flags.interval, "interval", 0, "相邻请求的最小间隔, 如 2s")
		f.IntVar(&flags.concurrency, "concurrency", 0, "同时处理的内容/创作者数")
		cmd.MarkFlagRequired("platform")
	}

	searchCmd.Flags().StringVarP(&keywords, "keywords", "k", "", "关键词, 多个用逗号分隔")
	searchCmd.Flags().IntVar(&pageNum, "page", 1, "起始页码")
	searchCmd.Flags().StringVar(&sortBy, "sort", "", "排序 (general|hot|time)")
	searchCmd.Flags().StringVar(&noteType, "type", "", "内容类型过滤")
	searchCmd.Flags().StringVar(&since, "since", "", "起始日期 2006-01-02")
	searchCmd.Flags().StringVar(&until, "until", "", "结束日期 2006-01-02 (包含)")
	searchCmd.Flags().StringVar(&dayPolicy, "day-policy", "", "按天搜索策略 (per_day|exhaustive)")
	searchCmd.Flags().IntVar(&maxPerDay, "max-per-day", 0, "per_day 策略下每天的上限")
	searchCmd.MarkFlagRequired("keywords")

	for _, cmd := range []*cobra.Command{detailCmd, commentsCmd} {
		cmd.Flags().StringSliceVar(&ids, "ids", nil, "内容ID或链接, 可多次指定")
		cmd.Flags().StringVarP(&idFile, "file", "f", "", "ID列表文件 (每行一个)")
	}
	creatorCmd.Flags().StringSliceVar(&creatorIDs, "creator-ids", nil, "创作者ID或主页链接")
	creatorCmd.Flags().StringVarP(&idFile, "file", "f", "", "创作者ID列表文件 (每行一个)")
	creatorCmd.Flags().StringVarP(&mode, "mode", "m", "feed", "采集模式 (feed|profile)")

	commentsCmd.Flags().IntVar(&flags.maxComments, "max-comments", 0, "每条内容的评论上限")
	commentsCmd.Flags().BoolVar(&recurse, "recurse", false, "同时采集子评论")
	commentsCmd.Flags().BoolVar(&countSubComments, "count-sub-comments", false, "子评论计入评论上限 (默认取 crawl.count_sub_comments)")

	batchCmd.Flags().StringVar(&tasksFile, "tasks", "tasks.yaml", "任务文件 (yaml/json)")
}
