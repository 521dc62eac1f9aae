// 包 model 定义备份文件、记录、日期区间与运行统计等数据模型。
package model

import (
	"fmt"
	"strings"
	"time"
)

// Category 为备份类别。
type Category string

const (
	Activity Category = "activity"
	Message  Category = "message"
)

// Categories 为默认处理顺序：先 activity 后 message。
var Categories = []Category{Activity, Message}

var expectedFields = map[Category][]string{
	Activity: {"action", "created_at", "object", "object_id", "subject", "subject_id"},
	Message:  {"id", "body", "created_at", "user", "source"},
}

// ParseCategory 解析类别名（大小写不敏感）。
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := expectedFields[c]; !ok {
		return "", fmt.Errorf("unknown category: %q", s)
	}
	return c, nil
}

// ExpectedFields 返回该类别记录应包含的字段（副本）。
func (c Category) ExpectedFields() []string {
	return append([]string(nil), expectedFields[c]...)
}

func (c Category) String() string { return string(c) }

// BackupFile 由 (类别, 日期) 唯一确定，对应一个远端资源与一个本地文件。
type BackupFile struct {
	Category Category
	Date     time.Time
}

func (f BackupFile) Year() int   { return f.Date.Year() }
func (f BackupFile) Month() int  { return int(f.Date.Month()) }
func (f BackupFile) Day() int    { return f.Date.Day() }
func (f BackupFile) Key() string { return fmt.Sprintf("%s/%s", f.Category, f.DateString()) }

// DateString 返回 yyyy-mm-dd。
func (f BackupFile) DateString() string {
	return fmt.Sprintf("%04d-%02d-%02d", f.Year(), f.Month(), f.Day())
}

// RemotePath 返回远端资源路径：/backups/{category}/{yyyy}/{mm}/{dd}
func (f BackupFile) RemotePath() string {
	return fmt.Sprintf("/backups/%s/%d/%02d/%02d", f.Category, f.Year(), f.Month(), f.Day())
}

// FileName 返回本地文件名：stocktwits_{category}_{yyyy}_{mm}_{dd}.gz
func (f BackupFile) FileName() string {
	return fmt.Sprintf("stocktwits_%s_%d_%02d_%02d.gz", f.Category, f.Year(), f.Month(), f.Day())
}

// Record 为解压后单行 JSON 解析出的对象，仅在检查期间存在。
type Record map[string]any

// FetchStatus 为一次下载的结果类型。
type FetchStatus string

const (
	StatusDownloaded FetchStatus = "downloaded"
	StatusCached     FetchStatus = "cached"
	StatusFailed     FetchStatus = "failed"
)

// FetchResult 为一次 Fetch 的结果；Path 为空表示"缺失"。
type FetchResult struct {
	File       BackupFile
	Path       string
	Status     FetchStatus
	HTTPStatus int
	Bytes      int64
	Err        error
}

// OK 报告本地文件是否可用（下载成功或命中缓存）。
func (r FetchResult) OK() bool { return r.Path != "" }

// Inspection 为单个文件的抽样检查结果。
type Inspection struct {
	File    BackupFile
	Path    string
	Records int
	// Missing 与记录一一对应，空切片表示字段齐全
	Missing [][]string
}

// Incomplete 返回缺字段的记录数。
func (in Inspection) Incomplete() int {
	n := 0
	for _, m := range in.Missing {
		if len(m) > 0 {
			n++
		}
	}
	return n
}

// ParseFileName 从 stocktwits_{category}_{yyyy}_{mm}_{dd}.gz 还原 BackupFile。
func ParseFileName(name string) (BackupFile, error) {
	rest, ok := strings.CutPrefix(name, "stocktwits_")
	if !ok {
		return BackupFile{}, fmt.Errorf("not a backup file name: %q", name)
	}
	rest, ok = strings.CutSuffix(rest, ".gz")
	if !ok {
		return BackupFile{}, fmt.Errorf("not a backup file name: %q", name)
	}
	i := strings.Index(rest, "_")
	if i < 0 {
		return BackupFile{}, fmt.Errorf("not a backup file name: %q", name)
	}
	c, err := ParseCategory(rest[:i])
	if err != nil {
		return BackupFile{}, err
	}
	d, err := time.ParseInLocation("2006_01_02", rest[i+1:], time.UTC)
	if err != nil {
		return BackupFile{}, fmt.Errorf("parse date in %q: %w", name, err)
	}
	return BackupFile{Category: c, Date: d}, nil
}
