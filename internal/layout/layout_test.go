package layout_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go-stocktwits-backup/internal/layout"
	"go-stocktwits-backup/internal/model"
)

func TestEnsureFolder_Idempotent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b", "c")
	if err := layout.EnsureFolder(dir); err != nil { t.Fatalf("first: %v", err) }
	if err := layout.EnsureFolder(dir); err != nil { t.Fatalf("second: %v", err) }
	fi, err := os.Stat(dir)
	if err != nil || !fi.IsDir() { t.Fatalf("dir not created: %v", err) }
}

func TestEnsureFolder_FileInTheWay(t *testing.T) {
	base := t.TempDir()
	f := filepath.Join(base, "file")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil { t.Fatalf("seed: %v", err) }
	if err := layout.EnsureFolder(filepath.Join(f, "sub")); err == nil {
		t.Fatalf("expect error when a file blocks the path")
	}
}

func TestLayout_PathIsStable(t *testing.T) {
	l := layout.New("/data")
	f := model.BackupFile{Category: model.Message, Date: time.Date(2012, 3, 4, 0, 0, 0, 0, time.UTC)}
	want := filepath.Join("/data", "message", "stocktwits_message_2012_03_04.gz")
	if got := l.Path(f); got != want { t.Fatalf("path = %q, want %q", got, want) }
	if got := l.Path(f); got != want { t.Fatalf("path changed between calls: %q", got) }
}

func TestLayout_Prepare(t *testing.T) {
	base := t.TempDir()
	l := layout.New(base)
	if err := l.Prepare(model.Categories); err != nil { t.Fatalf("prepare: %v", err) }
	for _, c := range model.Categories {
		if fi, err := os.Stat(filepath.Join(base, string(c))); err != nil || !fi.IsDir() {
			t.Fatalf("folder %s missing: %v", c, err)
		}
	}
	if layout.Exists(filepath.Join(base, "activity")) { t.Fatalf("directory must not count as existing file") }
}
