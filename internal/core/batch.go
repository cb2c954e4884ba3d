package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/RecoveryAshes/MediaCrawler/internal/crawlers"
	"github.com/RecoveryAshes/MediaCrawler/internal/models"
	"github.com/RecoveryAshes/MediaCrawler/internal/utils"
)

// 批量任务的操作类型
const (
	TaskSearch   = "search"
	TaskDetail   = "detail"
	TaskCreator  = "creator"
	TaskComments = "comments"
)

// BatchFile tasks.yaml 的结构
type BatchFile struct {
	// Delay 相邻两个任务之间的等待时间
	Delay           time.Duration `mapstructure:"delay"`
	ContinueOnError bool          `mapstructure:"continue_on_error"`
	Tasks           []BatchTask   `mapstructure:"tasks"`
}

// BatchTask 单个采集任务
type BatchTask struct {
	Name      string `mapstructure:"name"`
	Platform  string `mapstructure:"platform"`
	Operation string `mapstructure:"operation"`

	Keywords   []string `mapstructure:"keywords"`
	IDs        []string `mapstructure:"ids"`
	CreatorIDs []string `mapstructure:"creator_ids"`
	Mode       string   `mapstructure:"mode"`

	PageNum   int    `mapstructure:"page_num"`
	Sort      string `mapstructure:"sort"`
	Type      string `mapstructure:"type"`
	Since     string `mapstructure:"since"`
	Until     string `mapstructure:"until"`
	DayPolicy string `mapstructure:"day_policy"`

	RecurseSubComments bool  `mapstructure:"recurse_subcomments"`
	CountSubComments   *bool `mapstructure:"count_sub_comments"`

	Limit       int           `mapstructure:"limit"`
	PageSize    int           `mapstructure:"page_size"`
	MaxPerDay   int           `mapstructure:"max_per_day"`
	MaxComments int           `mapstructure:"max_comments"`
	Interval    time.Duration `mapstructure:"interval"`
	Concurrency int           `mapstructure:"concurrency"`
}

// Label 日志与报告中展示的任务名
func (t BatchTask) Label(index int) string {
	if t.Name != "" {
		return t.Name
	}
	return fmt.Sprintf("#%d %s/%s", index+1, t.Platform, t.Operation)
}

func (t BatchTask) options() crawlers.Options {
	return crawlers.Options{
		PageSize:    t.PageSize,
		MaxItems:    t.Limit,
		MaxPerDay:   t.MaxPerDay,
		MaxComments: t.MaxComments,
		Interval:    t.Interval,
		Concurrency: t.Concurrency,
	}
}

// LoadBatchFile 读取任务文件 (yaml/json, 按扩展名识别)
func LoadBatchFile(path string) (*BatchFile, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("continue_on_error", true)
	v.SetDefault("delay", "5s")

	if err := v.ReadInConfig(); err != nil {
		return nil, &models.ConfigError{FilePath: path, Cause: err}
	}
	var file BatchFile
	if err := v.Unmarshal(&file); err != nil {
		return nil, &models.ConfigError{FilePath: path, Cause: fmt.Errorf("任务绑定失败: %w", err)}
	}
	if len(file.Tasks) == 0 {
		return nil, &models.ValidationError{Field: "tasks", Reason: "任务文件中没有任务"}
	}
	for i, t := range file.Tasks {
		switch strings.ToLower(t.Operation) {
		case TaskSearch, TaskDetail, TaskCreator, TaskComments:
		default:
			return nil, &models.ValidationError{
				Field:      fmt.Sprintf("tasks[%d].operation", i),
				Value:      t.Operation,
				Reason:     "不支持的操作",
				Suggestion: "search, detail, creator, comments",
			}
		}
	}
	return &file, nil
}

// BatchResult 单个任务的结果
type BatchResult struct {
	Task      string  `json:"task"`
	Platform  string  `json:"platform"`
	Operation string  `json:"operation"`
	Success   bool    `json:"success"`
	Records   int     `json:"records"`
	Cursor    string  `json:"cursor,omitempty"`
	Error     string  `json:"error,omitempty"`
	StartedAt string  `json:"started_at"`
	Duration  float64 `json:"duration"`
}

// BatchSummary 批量执行摘要
type BatchSummary struct {
	BatchID       string        `json:"batch_id"`
	TotalTasks    int           `json:"total_tasks"`
	SuccessCount  int           `json:"success_count"`
	FailCount     int           `json:"fail_count"`
	SkippedCount  int           `json:"skipped_count"`
	TotalRecords  int           `json:"total_records"`
	TotalDuration float64       `json:"total_duration"`
	Results       []BatchResult `json:"results"`
}

// BatchRunner 顺序执行任务列表
type BatchRunner struct {
	crawler          *crawlers.Orchestrator
	delay            time.Duration
	continueOnErr    bool
	countSubComments bool
	location         *time.Location
	sleep            func(ctx context.Context, d time.Duration) error
}

// NewBatchRunner 创建批量执行器
// countSubComments 为任务未指定 count_sub_comments 时的默认值
func NewBatchRunner(crawler *crawlers.Orchestrator, delay time.Duration, continueOnErr, countSubComments bool) *BatchRunner {
	return &BatchRunner{
		crawler:          crawler,
		delay:            delay,
		continueOnErr:    continueOnErr,
		countSubComments: countSubComments,
		location:         time.Local,
		sleep:            sleepContext,
	}
}

// Run 依次执行任务; ctx 取消后剩余任务计为跳过
func (br *BatchRunner) Run(ctx context.Context, tasks []BatchTask) *BatchSummary {
	summary := &BatchSummary{
		BatchID:    models.NewID(),
		TotalTasks: len(tasks),
		Results:    make([]BatchResult, 0, len(tasks)),
	}
	utils.Infof("开始批量采集: %d个任务 (batch=%s)", len(tasks), summary.BatchID)
	start := time.Now()

	for i, task := range tasks {
		if ctx.Err() != nil {
			break
		}
		utils.Infof("==================== [%d/%d] %s ====================", i+1, len(tasks), task.Label(i))

		result := br.runOne(ctx, i, task)
		summary.Results = append(summary.Results, result)
		summary.TotalRecords += result.Records

		if result.Success {
			summary.SuccessCount++
		} else {
			summary.FailCount++
			utils.Errorf("任务失败: %s: %s", task.Label(i), result.Error)
			if !br.continueOnErr {
				utils.Warn("批量采集中止 (continue_on_error=false)")
				break
			}
		}

		if i < len(tasks)-1 && br.delay > 0 {
			utils.Debugf("等待 %s 后执行下一个任务", br.delay)
			if err := br.sleep(ctx, br.delay); err != nil {
				break
			}
		}
	}

	summary.SkippedCount = summary.TotalTasks - len(summary.Results)
	summary.TotalDuration = time.Since(start).Seconds()
	br.printSummary(summary)
	return summary
}

func (br *BatchRunner) runOne(ctx context.Context, index int, task BatchTask) BatchResult {
	start := time.Now()
	result := BatchResult{
		Task:      task.Label(index),
		Platform:  task.Platform,
		Operation: task.Operation,
		StartedAt: start.Format(time.RFC3339),
	}

	records, err := br.execute(ctx, task)
	result.Records = records
	result.Duration = time.Since(start).Seconds()
	if err != nil {
		result.Error = err.Error()
		var pe *models.PartialError
		if errors.As(err, &pe) {
			result.Cursor = pe.Cursor
		}
		return result
	}
	result.Success = true
	return result
}

// execute 执行任务并返回采集到的记录数
func (br *BatchRunner) execute(ctx context.Context, task BatchTask) (int, error) {
	p, err := models.ParsePlatform(task.Platform)
	if err != nil {
		return 0, err
	}

	switch strings.ToLower(task.Operation) {
	case TaskSearch:
		since, err := parseTaskDay("since", task.Since, 0, br.location)
		if err != nil {
			return 0, err
		}
		until, err := parseTaskDay("until", task.Until, 1, br.location)
		if err != nil {
			return 0, err
		}
		res, err := br.crawler.Search(ctx, crawlers.SearchRequest{
			Platform:  p,
			Keywords:  task.Keywords,
			PageNum:   task.PageNum,
			Sort:      task.Sort,
			Type:      task.Type,
			Since:     since,
			Until:     until,
			DayPolicy: models.DayPolicy(task.DayPolicy),
			Options:   task.options(),
		})
		if res == nil {
			return 0, err
		}
		return len(res.Items), err

	case TaskDetail:
		res, err := br.crawler.Detail(ctx, crawlers.DetailRequest{Platform: p, IDs: task.IDs, Options: task.options()})
		if res == nil {
			return 0, err
		}
		return len(res.Items), err

	case TaskCreator:
		res, err := br.crawler.CreatorFeed(ctx, crawlers.CreatorRequest{
			Platform:   p,
			CreatorIDs: task.CreatorIDs,
			Mode:       models.CreatorMode(task.Mode),
			Options:    task.options(),
		})
		if res == nil {
			return 0, err
		}
		return len(res.Items) + len(res.Creators), err

	case TaskComments:
		countSub := br.countSubComments
		if task.CountSubComments != nil {
			countSub = *task.CountSubComments
		}
		res, err := br.crawler.Comments(ctx, crawlers.CommentsRequest{
			Platform:         p,
			IDs:              task.IDs,
			Recurse:          task.RecurseSubComments,
			CountSubComments: countSub,
			Options:          task.options(),
		})
		if res == nil {
			return 0, err
		}
		return res.Total(), err

	default:
		return 0, &models.ValidationError{Field: "operation", Value: task.Operation, Reason: "不支持的操作"}
	}
}

func (br *BatchRunner) printSummary(summary *BatchSummary) {
	utils.Info("==================================================")
	utils.Info("批量采集摘要")
	utils.Info("==================================================")
	utils.Infof("总任务数: %d", summary.TotalTasks)
	utils.Infof("成功: %d", summary.SuccessCount)
	utils.Infof("失败: %d", summary.FailCount)
	if summary.SkippedCount > 0 {
		utils.Infof("跳过: %d", summary.SkippedCount)
	}
	utils.Infof("记录数: %d", summary.TotalRecords)
	utils.Infof("总耗时: %.2f秒", summary.TotalDuration)
	utils.Info("==================================================")

	for _, r := range summary.Results {
		if !r.Success {
			utils.Warnf("  - %s: %s", r.Task, r.Error)
		}
	}
}

// SaveSummary 把摘要写入 <outputDir>/reports/batch_<id>.json
func SaveSummary(outputDir string, summary *BatchSummary) (string, error) {
	return utils.NewReporter(outputDir).SaveJSON(fmt.Sprintf("batch_%s.json", summary.BatchID), summary)
}

// parseTaskDay 解析 2006-01-02; offsetDays=1 时返回次日零点, 使结束日期包含在内
func parseTaskDay(field, raw string, offsetDays int, loc *time.Location) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation("2006-01-02", raw, loc)
	if err != nil {
		return time.Time{}, &models.ValidationError{Field: field, Value: raw, Reason: "日期格式错误", Suggestion: "2006-01-02"}
	}
	return t.AddDate(0, 0, offsetDays), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
