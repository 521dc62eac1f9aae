// 包 layout 负责本地存储路径：
// - 路径仅由 (类别, 日期) 决定，保证多次运行稳定
// - 写入前确保目录存在
package layout

import (
	"fmt"
	"os"
	"path/filepath"

	"go-stocktwits-backup/internal/model"
)

// EnsureFolder 递归创建目录；已存在不报错，其他文件系统错误原样返回。
func EnsureFolder(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("ensure folder %s: %w", path, err)
	}
	return nil
}

// Layout 以 BaseDir 为根，每个类别一个子目录。
type Layout struct {
	BaseDir string
}

func New(baseDir string) *Layout { return &Layout{BaseDir: baseDir} }

// Folder 返回类别子目录。
func (l *Layout) Folder(c model.Category) string {
	return filepath.Join(l.BaseDir, string(c))
}

// Path 返回备份文件的本地路径。
func (l *Layout) Path(f model.BackupFile) string {
	return filepath.Join(l.Folder(f.Category), f.FileName())
}

// Prepare 为给定类别创建全部子目录。
func (l *Layout) Prepare(categories []model.Category) error {
	for _, c := range categories {
		if err := EnsureFolder(l.Folder(c)); err != nil {
			return err
		}
	}
	return nil
}

// Exists 报告路径上是否已有文件（目录不算）。
func Exists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}
