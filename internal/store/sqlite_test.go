package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"go-stocktwits-backup/internal/model"
	"go-stocktwits-backup/internal/store"
)

func open(t *testing.T) *store.SQLite {
	t.Helper()
	s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "history.db"))
	if err != nil { t.Fatalf("open sqlite: %v", err) }
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func file(c model.Category, d int) model.BackupFile {
	return model.BackupFile{Category: c, Date: time.Date(2011, 1, d, 0, 0, 0, 0, time.UTC)}
}

func TestSQLite_RecordAndStats(t *testing.T) {
	s := open(t)
	ctx := context.Background()
	results := []model.FetchResult{
		{File: file(model.Activity, 1), Path: "/a1", Status: model.StatusDownloaded, HTTPStatus: 200, Bytes: 100},
		{File: file(model.Message, 1), Path: "/m1", Status: model.StatusCached},
		{File: file(model.Activity, 2), Status: model.StatusFailed, HTTPStatus: 404, Err: errors.New("http status: 404 Not Found")},
	}
	for _, r := range results {
		if err := s.RecordFetch(ctx, "run-1", r); err != nil { t.Fatalf("record fetch: %v", err) }
	}
	in := model.Inspection{File: file(model.Activity, 1), Records: 3, Missing: [][]string{nil, {"subject"}, {"subject", "object"}}}
	if err := s.RecordInspection(ctx, "run-1", in); err != nil { t.Fatalf("record inspection: %v", err) }
	if err := s.RecordFetch(ctx, "run-2", results[1]); err != nil { t.Fatalf("record run-2: %v", err) }

	st, err := s.Stats(ctx, "run-1")
	if err != nil { t.Fatalf("stats: %v", err) }
	if st.Total != 3 || st.Downloaded != 1 || st.Cached != 1 || st.Failed != 1 || st.Bytes != 100 || st.Incomplete != 2 {
		t.Fatalf("stats mismatch: %+v", st)
	}
	all, _ := s.Stats(ctx, "")
	if all.Total != 4 { t.Fatalf("all total=%d want 4", all.Total) }

	list, err := s.ListFetches(ctx, "run-1")
	if err != nil { t.Fatalf("list: %v", err) }
	if len(list) != 3 { t.Fatalf("list len=%d", len(list)) }
	// 按日期、类别排序
	if list[0].Category != "activity" || list[0].Date != "2011-01-01" || list[1].Category != "message" || list[2].Date != "2011-01-02" {
		t.Fatalf("order: %+v", list)
	}
	if list[0].Records != 3 || len(list[0].Missing) != 2 || list[0].Missing[0] != "subject" { t.Fatalf("inspection join: %+v", list[0]) }
	if list[2].Error == "" || list[2].HTTPStatus != 404 { t.Fatalf("failed entry: %+v", list[2]) }
}

func TestSQLite_ResetAndClean(t *testing.T) {
	s := open(t)
	ctx := context.Background()
	if err := s.RecordFetch(ctx, "r", model.FetchResult{File: file(model.Message, 3), Status: model.StatusCached}); err != nil { t.Fatalf("seed: %v", err) }
	if err := s.CleanOld(ctx, 1); err != nil { t.Fatalf("clean: %v", err) }
	if st, _ := s.Stats(ctx, ""); st.Total != 1 { t.Fatalf("fresh rows must survive clean: %+v", st) }
	if err := s.Reset(ctx); err != nil { t.Fatalf("reset: %v", err) }
	if st, _ := s.Stats(ctx, ""); st.Total != 0 { t.Fatalf("not empty after reset: %+v", st) }
	if err := s.RecordFetch(ctx, "", model.FetchResult{}); err == nil { t.Fatalf("expect error without run id") }
}
