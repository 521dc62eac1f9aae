// 命令行入口：
// - 读取 settings.yaml / settings.toml（可缺省）
// - 初始化日志、HTTP 客户端、可选历史库
// - run：按日期区间抓取；fetch：单个文件；inspect：仅检查本地文件；history：查看历史
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"go-stocktwits-backup/internal/backup"
	"go-stocktwits-backup/internal/config"
	"go-stocktwits-backup/internal/export"
	"go-stocktwits-backup/internal/fetch"
	"go-stocktwits-backup/internal/inspect"
	"go-stocktwits-backup/internal/layout"
	"go-stocktwits-backup/internal/logx"
	"go-stocktwits-backup/internal/model"
	"go-stocktwits-backup/internal/runner"
	"go-stocktwits-backup/internal/store"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "stbackup",
	Short:         "Download and inspect daily StockTwits backups",
	SilenceUsage:  true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "settings.yaml", "path to settings.yaml or settings.toml")

	runCmd.Flags().String("from", "", "override START_DATE (yyyy-mm-dd)")
	runCmd.Flags().String("to", "", "override END_DATE (yyyy-mm-dd)")
	runCmd.Flags().String("report", "", "write report json to this path after the run")
	inspectCmd.Flags().String("category", "", "category for the field check (guessed from file name when empty)")
	inspectCmd.Flags().Int("limit", 0, "number of lines to inspect (default SAMPLE_SIZE)")
	historyCmd.Flags().Bool("reset", false, "clear the history journal")
	historyCmd.Flags().Int("clean-days", 0, "delete history entries older than N days")
	historyCmd.Flags().String("run", "", "restrict to a run id")
	historyCmd.Flags().String("export", "", "write history report json to this path")

	rootCmd.AddCommand(runCmd, fetchCmd, inspectCmd, historyCmd)
}

// app 为一次命令执行所需的依赖。
type app struct {
	cfg   *config.Config
	log   *slog.Logger
	runID string
	store *store.SQLite
}

// loadApp 读取配置（默认路径不存在时使用默认值）并初始化日志。
func loadApp(cmd *cobra.Command) (*app, error) {
	var cfg *config.Config
	if _, err := os.Stat(configPath); err != nil && errors.Is(err, os.ErrNotExist) && !cmd.Flags().Changed("config") {
		cfg = config.Default()
	} else {
		c, err := config.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = c
	}
	runID := uuid.New().String()
	log := logx.Init(cfg.LogLevel, cfg.LogFormat, cfg.LogLocale, cfg.LogColor).With("run", runID[:8])
	return &app{cfg: cfg, log: log, runID: runID}, nil
}

func (a *app) openStore() error {
	if !a.cfg.History.Enabled {
		return nil
	}
	st, err := store.OpenSQLite(a.cfg.History.DSN)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	a.store = st
	return nil
}

func (a *app) Close() {
	if a.store != nil {
		_ = a.store.Close()
	}
}

// newRunner 组装 HTTP 客户端、下载器、检查器与 Runner。
func (a *app) newRunner() (*runner.Runner, error) {
	if err := a.cfg.PromptPassword(os.Stdin, os.Stderr); err != nil {
		return nil, err
	}
	if a.cfg.Username == "" || a.cfg.Password == "" {
		a.log.Warn("未配置凭据，请求将不带认证")
	}
	cl, err := fetch.New(fetch.Options{
		ProxyHTTP:  a.cfg.Proxy.HTTP,
		ProxyHTTPS: a.cfg.Proxy.HTTPS,
		Timeout:    a.cfg.Timeout(),
		Retry:      a.cfg.Concurrency.Retry,
		Username:   a.cfg.Username,
		Password:   a.cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("http client: %w", err)
	}
	l := layout.New(a.cfg.BaseDir)
	f := backup.New(backup.Options{
		Endpoint:       a.cfg.Endpoint,
		Client:         cl,
		Layout:         l,
		Logger:         a.log,
		CleanupPartial: a.cfg.CleanupPartial,
		Retry:          a.cfg.Concurrency.Retry,
	})
	return runner.New(runner.Options{
		Fetcher:    f,
		Inspector:  inspect.New(a.log),
		Store:      a.store,
		Layout:     l,
		Logger:     a.log,
		RunID:      a.runID,
		Categories: a.cfg.CategoryList(),
		SampleSize: a.cfg.SampleSize,
		Workers:    a.cfg.Concurrency.Fetch,
	}), nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch every backup from START_DATE through today",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		if v, _ := cmd.Flags().GetString("from"); v != "" {
			a.cfg.StartDate = v
		}
		if v, _ := cmd.Flags().GetString("to"); v != "" {
			a.cfg.EndDate = v
		}
		if err := a.cfg.Validate(); err != nil {
			return fmt.Errorf("validate flags: %w", err)
		}
		rng, err := a.cfg.Range(time.Now())
		if err != nil {
			return err
		}
		if err := a.openStore(); err != nil {
			return err
		}
		run, err := a.newRunner()
		if err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()
		runErr := run.Run(ctx, rng)
		if path, _ := cmd.Flags().GetString("report"); path != "" {
			if err := export.ToJSON(path, run.Report()); err != nil {
				return err
			}
			logx.Infof("已导出 %s", path)
		}
		return runErr
	},
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <category> <yyyy-mm-dd>",
	Short: "Fetch and inspect a single backup file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := model.ParseCategory(args[0])
		if err != nil {
			return err
		}
		day, err := model.ParseDate(args[1])
		if err != nil {
			return err
		}
		a, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.openStore(); err != nil {
			return err
		}
		if err := layout.EnsureFolder(layout.New(a.cfg.BaseDir).Folder(cat)); err != nil {
			return err
		}
		run, err := a.newRunner()
		if err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()
		res := run.Process(ctx, model.BackupFile{Category: cat, Date: day})
		if res.Status == string(model.StatusFailed) {
			return fmt.Errorf("fetch %s %s failed: %s", cat, args[1], res.Error)
		}
		fmt.Println(res.Path)
		return nil
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <file.gz>",
	Short: "Inspect the first records of a local backup file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd)
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		if limit <= 0 {
			limit = a.cfg.SampleSize
		}
		catFlag, _ := cmd.Flags().GetString("category")
		file, err := backupFileFor(catFlag, args[0])
		if err != nil {
			return err
		}
		in := inspect.New(a.log)
		res := in.Inspect(file, args[0], limit)
		fmt.Printf("records=%d incomplete=%d\n", res.Records, res.Incomplete())
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show or maintain the download history journal",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		a.cfg.History.Enabled = true
		if err := a.openStore(); err != nil {
			return err
		}
		ctx := context.Background()
		if reset, _ := cmd.Flags().GetBool("reset"); reset {
			if err := a.store.Reset(ctx); err != nil {
				return err
			}
			logx.Infof("已清空历史日志")
		}
		if days, _ := cmd.Flags().GetInt("clean-days"); days > 0 {
			if err := a.store.CleanOld(ctx, days); err != nil {
				return err
			}
		}
		runID, _ := cmd.Flags().GetString("run")
		if path, _ := cmd.Flags().GetString("export"); path != "" {
			rep, err := export.FromStore(ctx, a.store, runID)
			if err != nil {
				return err
			}
			if err := export.ToJSON(path, rep); err != nil {
				return err
			}
			logx.Infof("已导出 %s", path)
		}
		st, err := a.store.Stats(ctx, runID)
		if err != nil {
			return err
		}
		fmt.Printf("total=%d downloaded=%d cached=%d failed=%d bytes=%d incomplete=%d\n",
			st.Total, st.Downloaded, st.Cached, st.Failed, st.Bytes, st.Incomplete)
		return nil
	},
}

// backupFileFor 从文件名还原类别与日期；--category 优先。
func backupFileFor(category, path string) (model.BackupFile, error) {
	file, nameErr := model.ParseFileName(filepath.Base(path))
	if category == "" {
		return file, nameErr
	}
	cat, err := model.ParseCategory(category)
	if err != nil {
		return model.BackupFile{}, err
	}
	file.Category = cat
	return file, nil
}
