// 包 inspect 对下载的备份做浅层抽样检查：
// - ReadPrefix：解压 gzip，逐行解析前 N 条 JSON 记录
// - CheckFields：记录每条样本缺失的预期字段（仅用于诊断，不过滤不报错）
package inspect

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/klauspost/compress/gzip"

	"go-stocktwits-backup/internal/logx"
	"go-stocktwits-backup/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Inspector 持有日志器；零值可用（回退到全局日志器）。
type Inspector struct {
	log *slog.Logger
}

func New(l *slog.Logger) *Inspector { return &Inspector{log: l} }

func (in *Inspector) logger() *slog.Logger { return logx.Or(in.log) }

// ReadPrefix 读取 path 中前 limit 行并解析为记录。
// 窗口按行计数：解析失败的行同样占用名额。读取层面的错误只记录日志，返回已解析的部分。
func (in *Inspector) ReadPrefix(path string, limit int) []model.Record {
	log := in.logger().With("path", path)
	records := []model.Record{}
	if limit <= 0 {
		return records
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Warn("文件不存在")
		} else {
			log.Error("打开文件失败", "err", err)
		}
		return records
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		log.Error("读取文件失败", "err", err)
		return records
	}
	defer zr.Close()

	br := bufio.NewReader(zr)
	for i := 0; i < limit; i++ {
		line, rerr := br.ReadBytes('\n')
		if rerr != nil && rerr != io.EOF {
			log.Error("读取文件失败", "line", i+1, "err", rerr)
			return records
		}
		if rerr == io.EOF && len(line) == 0 {
			break
		}
		var rec model.Record
		if err := json.Unmarshal(bytes.TrimRight(line, "\r\n"), &rec); err != nil || rec == nil {
			if err == nil {
				err = errors.New("not a JSON object")
			}
			log.Warn("解析行失败", "line", i+1, "err", err)
		} else {
			records = append(records, rec)
		}
		if rerr == io.EOF {
			break
		}
	}
	return records
}

// MissingFields 按 expected 的顺序返回 rec 中缺失的字段。
func MissingFields(rec model.Record, expected []string) []string {
	var missing []string
	for _, f := range expected {
		if _, ok := rec[f]; !ok {
			missing = append(missing, f)
		}
	}
	return missing
}

// CheckFields 对每条记录（从 1 开始编号）记录字段检查结果，并返回每条的缺失字段。
func (in *Inspector) CheckFields(records []model.Record, expected []string) [][]string {
	log := in.logger()
	out := make([][]string, 0, len(records))
	for i, rec := range records {
		missing := MissingFields(rec, expected)
		if len(missing) > 0 {
			log.Warn("记录缺少字段", "record", i+1, "missing", missing)
		} else {
			log.Info("记录包含全部预期字段", "record", i+1)
		}
		out = append(out, missing)
	}
	return out
}

// Inspect 读取样本并检查字段，供 runner 与命令行复用。
func (in *Inspector) Inspect(file model.BackupFile, path string, limit int) model.Inspection {
	records := in.ReadPrefix(path, limit)
	res := model.Inspection{File: file, Path: path, Records: len(records)}
	log := in.logger()
	for i, rec := range records {
		if !log.Enabled(context.Background(), slog.LevelDebug) {
			break
		}
		if b, err := json.MarshalIndent(rec, "", "  "); err == nil {
			log.Debug("样本记录", "record", i+1, "json", string(b))
		}
	}
	if len(records) > 0 {
		log.Info("检查字段", "category", file.Category.String(), "date", file.DateString())
		res.Missing = in.CheckFields(records, file.Category.ExpectedFields())
	}
	return res
}
