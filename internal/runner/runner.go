// 包 runner 负责主流程编排：
// - 按日期升序、类别固定顺序生成任务
// - 逐个下载（或命中本地缓存）并抽样检查
// - 可选写入历史日志，汇总运行统计
package runner

import (
	"context"
	"log/slog"
	"sync"

	"go-stocktwits-backup/internal/backup"
	"go-stocktwits-backup/internal/inspect"
	"go-stocktwits-backup/internal/layout"
	"go-stocktwits-backup/internal/logx"
	"go-stocktwits-backup/internal/model"
	"go-stocktwits-backup/internal/store"
)

// Runner 持有下载器/检查器/可选历史库，执行一次日期区间的抓取。
type Runner struct {
	fetcher    *backup.Fetcher
	inspector  *inspect.Inspector
	store      *store.SQLite
	layout     *layout.Layout
	log        *slog.Logger
	runID      string
	categories []model.Category
	sampleSize int
	workers    int
	tally      *Tally
}

// Options 为 Runner 构造参数；Store 可为空，Layout 为空时不创建目录。
type Options struct {
	Fetcher    *backup.Fetcher
	Inspector  *inspect.Inspector
	Store      *store.SQLite
	Layout     *layout.Layout
	Logger     *slog.Logger
	RunID      string
	Categories []model.Category
	SampleSize int
	Workers    int
}

func New(opts Options) *Runner {
	r := &Runner{
		fetcher:    opts.Fetcher,
		inspector:  opts.Inspector,
		store:      opts.Store,
		layout:     opts.Layout,
		log:        logx.Or(opts.Logger),
		runID:      opts.RunID,
		categories: opts.Categories,
		sampleSize: opts.SampleSize,
		workers:    opts.Workers,
		tally:      NewTally(opts.RunID),
	}
	if len(r.categories) == 0 {
		r.categories = model.Categories
	}
	if r.sampleSize <= 0 {
		r.sampleSize = 3
	}
	if r.workers <= 0 {
		r.workers = 1
	}
	if r.inspector == nil {
		r.inspector = inspect.New(r.log)
	}
	return r
}

// Items 生成任务：日期升序，同一天内按类别顺序。
func (r *Runner) Items(rng model.DateRange) []model.BackupFile {
	days := rng.Days()
	out := make([]model.BackupFile, 0, len(days)*len(r.categories))
	for _, d := range days {
		for _, c := range r.categories {
			out = append(out, model.BackupFile{Category: c, Date: d})
		}
	}
	return out
}

// Run 处理整个日期区间。workers 为 1 时严格按顺序执行；ctx 取消后不再派发新任务。
// 只有目录创建失败会中止运行，单个文件的失败只体现在结果里。
func (r *Runner) Run(ctx context.Context, rng model.DateRange) error {
	if r.layout != nil {
		if err := r.layout.Prepare(r.categories); err != nil {
			return err
		}
	}
	items := r.Items(rng)
	r.log.Info("开始抓取", "range", rng.String(), "items", len(items), "workers", r.workers)

	sem := make(chan struct{}, r.workers)
	var wg sync.WaitGroup
dispatch:
	for _, item := range items {
		select {
		case <-ctx.Done():
			break dispatch
		case sem <- struct{}{}:
		}
		if ctx.Err() != nil {
			<-sem
			break dispatch
		}
		wg.Add(1)
		go func(f model.BackupFile) {
			defer wg.Done()
			defer func() { <-sem }()
			r.Process(ctx, f)
		}(item)
	}
	wg.Wait()

	st := r.tally.Stats()
	r.log.Info("抓取结束", "total", st.Total, "downloaded", st.Downloaded, "cached", st.Cached, "failed", st.Failed)
	if err := ctx.Err(); err != nil {
		r.log.Warn("运行被中断", "err", err)
		return err
	}
	return nil
}

// Process 处理单个文件：下载→抽样检查→记录。
func (r *Runner) Process(ctx context.Context, f model.BackupFile) model.ResultEntry {
	res := r.fetcher.Fetch(ctx, f)
	var insp *model.Inspection
	if res.OK() {
		in := r.inspector.Inspect(f, res.Path, r.sampleSize)
		insp = &in
	}
	if r.store != nil {
		if err := r.store.RecordFetch(ctx, r.runID, res); err != nil {
			r.log.Warn("写入历史失败", "err", err)
		}
		if insp != nil {
			if err := r.store.RecordInspection(ctx, r.runID, *insp); err != nil {
				r.log.Warn("写入历史失败", "err", err)
			}
		}
	}
	return r.tally.Add(res, insp)
}

// Report 返回本次运行的报告（结果按日期、类别排序）。
func (r *Runner) Report() model.Report {
	return model.Report{Stats: r.tally.Stats(), Results: r.tally.Snapshot()}
}
