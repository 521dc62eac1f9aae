// 包 export 负责将运行结果写为 report.json。
package export

import (
	"context"
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"

	"go-stocktwits-backup/internal/model"
	"go-stocktwits-backup/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FromStore 从历史日志构建某次运行（runID 为空则全部）的报告。
func FromStore(ctx context.Context, s *store.SQLite, runID string) (model.Report, error) {
	results, err := s.ListFetches(ctx, runID)
	if err != nil {
		return model.Report{}, fmt.Errorf("list fetches: %w", err)
	}
	stats, err := s.Stats(ctx, runID)
	if err != nil {
		return model.Report{}, fmt.Errorf("stats: %w", err)
	}
	if results == nil {
		results = []model.ResultEntry{}
	}
	return model.Report{Stats: stats, Results: results}, nil
}

// ToJSON 将报告写入 JSON 文件（带缩进格式）。
func ToJSON(path string, r model.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode json to %s: %w", path, err)
	}
	return nil
}
