package runner_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"go-stocktwits-backup/internal/backup"
	"go-stocktwits-backup/internal/fetch"
	"go-stocktwits-backup/internal/inspect"
	"go-stocktwits-backup/internal/layout"
	"go-stocktwits-backup/internal/logx"
	"go-stocktwits-backup/internal/model"
	"go-stocktwits-backup/internal/runner"
	"go-stocktwits-backup/internal/store"
)

func gzLines(lines ...string) []byte {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, _ = zw.Write([]byte(strings.Join(lines, "\n") + "\n"))
	_ = zw.Close()
	return buf.Bytes()
}

type archive struct {
	mu    sync.Mutex
	paths []string
	calls int32
	srv   *httptest.Server
}

// newArchive 模拟备份服务：activity 正常返回，message 返回 404。
func newArchive(t *testing.T, body []byte) *archive {
	a := &archive{}
	a.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&a.calls, 1)
		a.mu.Lock()
		a.paths = append(a.paths, r.URL.Path)
		a.mu.Unlock()
		if u, p, ok := r.BasicAuth(); !ok || u != "user" || p != "pass" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if strings.HasPrefix(r.URL.Path, "/backups/message/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(a.srv.Close)
	return a
}

func newRunner(t *testing.T, base, endpoint string, cats []model.Category, workers int, st *store.SQLite) *runner.Runner {
	t.Helper()
	cl, err := fetch.New(fetch.Options{Timeout: 2 * time.Second, Username: "user", Password: "pass"})
	if err != nil { t.Fatalf("client: %v", err) }
	l := layout.New(base)
	f := backup.New(backup.Options{Endpoint: endpoint, Client: cl, Layout: l, Logger: logx.Discard()})
	return runner.New(runner.Options{
		Fetcher:    f,
		Inspector:  inspect.New(logx.Discard()),
		Store:      st,
		Layout:     l,
		Logger:     logx.Discard(),
		RunID:      "run-test",
		Categories: cats,
		SampleSize: 3,
		Workers:    workers,
	})
}

func TestRunner_SingleDayEndToEnd(t *testing.T) {
	body := gzLines(`{"action":"follow","created_at":"2014-02-03T00:00:00Z","object":"user","object_id":1,"subject":"user","subject_id":2}`)
	a := newArchive(t, body)
	base := filepath.Join(t.TempDir(), "data")
	d := time.Date(2014, 2, 3, 0, 0, 0, 0, time.UTC)
	rng := model.NewDateRange(d, d)

	run := newRunner(t, base, a.srv.URL, []model.Category{model.Activity}, 1, nil)
	if err := run.Run(context.Background(), rng); err != nil { t.Fatalf("run: %v", err) }

	if fi, err := os.Stat(filepath.Join(base, "activity")); err != nil || !fi.IsDir() { t.Fatalf("activity folder missing: %v", err) }
	if atomic.LoadInt32(&a.calls) != 1 || a.paths[0] != "/backups/activity/2014/02/03" { t.Fatalf("requests=%d paths=%v", a.calls, a.paths) }
	got, err := os.ReadFile(filepath.Join(base, "activity", "stocktwits_activity_2014_02_03.gz"))
	if err != nil || !bytes.Equal(got, body) { t.Fatalf("body not written verbatim: %v", err) }
	rep := run.Report()
	if rep.Stats.Downloaded != 1 || rep.Results[0].Records != 1 || len(rep.Results[0].Missing) != 0 { t.Fatalf("report: %+v", rep) }

	// 第二次运行同一天：零请求
	again := newRunner(t, base, a.srv.URL, []model.Category{model.Activity}, 1, nil)
	if err := again.Run(context.Background(), rng); err != nil { t.Fatalf("rerun: %v", err) }
	if n := atomic.LoadInt32(&a.calls); n != 1 { t.Fatalf("rerun issued requests: total=%d", n) }
	if again.Report().Stats.Cached != 1 { t.Fatalf("rerun should be cache hit: %+v", again.Report().Stats) }
}

func TestRunner_OrderAndFailuresContinue(t *testing.T) {
	a := newArchive(t, gzLines(`{"action":"a"}`))
	base := t.TempDir()
	start := time.Date(2010, 12, 30, 0, 0, 0, 0, time.UTC)
	rng := model.NewDateRange(start, start.AddDate(0, 0, 3))

	run := newRunner(t, base, a.srv.URL, nil, 1, nil)
	if err := run.Run(context.Background(), rng); err != nil { t.Fatalf("run: %v", err) }

	want := []string{
		"/backups/activity/2010/12/30", "/backups/message/2010/12/30",
		"/backups/activity/2010/12/31", "/backups/message/2010/12/31",
		"/backups/activity/2011/01/01", "/backups/message/2011/01/01",
		"/backups/activity/2011/01/02", "/backups/message/2011/01/02",
	}
	if strings.Join(a.paths, " ") != strings.Join(want, " ") { t.Fatalf("order:\n got %v\nwant %v", a.paths, want) }
	rep := run.Report()
	if rep.Stats.Total != 8 || rep.Stats.Downloaded != 4 || rep.Stats.Failed != 4 { t.Fatalf("stats: %+v", rep.Stats) }
	if rep.Stats.Incomplete != 4 { t.Fatalf("incomplete=%d want 4", rep.Stats.Incomplete) }
	if rep.Results[1].Category != "message" || rep.Results[1].HTTPStatus != 404 { t.Fatalf("results order: %+v", rep.Results[1]) }
	if _, err := os.Stat(filepath.Join(base, "message", "stocktwits_message_2010_12_30.gz")); err == nil { t.Fatalf("failed download must not create file") }
}

func TestRunner_WorkersAndHistory(t *testing.T) {
	a := newArchive(t, gzLines(`{"action":"a","created_at":"c","object":"o","object_id":1,"subject":"s","subject_id":2}`))
	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "h.db"))
	if err != nil { t.Fatalf("open store: %v", err) }
	defer st.Close()
	start := time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)
	rng := model.NewDateRange(start, start.AddDate(0, 0, 9))

	run := newRunner(t, t.TempDir(), a.srv.URL, []model.Category{model.Activity}, 4, st)
	if err := run.Run(context.Background(), rng); err != nil { t.Fatalf("run: %v", err) }
	if atomic.LoadInt32(&a.calls) != 10 { t.Fatalf("requests=%d want 10", a.calls) }
	res := run.Report().Results
	for i := 1; i < len(res); i++ {
		if res[i].Date <= res[i-1].Date { t.Fatalf("snapshot not sorted at %d: %v", i, res) }
	}
	hs, err := st.Stats(context.Background(), "run-test")
	if err != nil || hs.Downloaded != 10 { t.Fatalf("history stats: %v %+v", err, hs) }
}

func TestRunner_CancelledContext(t *testing.T) {
	a := newArchive(t, gzLines(`{}`))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	run := newRunner(t, t.TempDir(), a.srv.URL, nil, 1, nil)
	if err := run.Run(ctx, model.NewDateRange(d, d.AddDate(0, 0, 5))); err == nil { t.Fatalf("expect context error") }
	if atomic.LoadInt32(&a.calls) != 0 { t.Fatalf("no request expected after cancel, got %d", a.calls) }
}

func TestRunner_FolderFailureIsFatal(t *testing.T) {
	base := filepath.Join(t.TempDir(), "blocked")
	if err := os.WriteFile(base, []byte("x"), 0o644); err != nil { t.Fatalf("seed: %v", err) }
	run := newRunner(t, base, "http://unused.test", nil, 1, nil)
	d := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := run.Run(context.Background(), model.NewDateRange(d, d)); err == nil { t.Fatalf("expect folder error") }
}
