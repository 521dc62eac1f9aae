package runner

import (
	"sort"
	"sync"
	"time"

	"go-stocktwits-backup/internal/model"
)

// Tally 收集每个任务的结果，供多个 worker 并发写入。
type Tally struct {
	mu      sync.Mutex
	runID   string
	entries map[string]tallyEntry // key: category/date
}

type tallyEntry struct {
	date     time.Time
	category model.Category
	entry    model.ResultEntry
	missing  int
}

func NewTally(runID string) *Tally {
	return &Tally{runID: runID, entries: make(map[string]tallyEntry)}
}

// Add 记录一次结果并返回对应的报告条目。
func (t *Tally) Add(res model.FetchResult, insp *model.Inspection) model.ResultEntry {
	e := model.ResultEntry{
		Category:   res.File.Category.String(),
		Date:       res.File.DateString(),
		Status:     string(res.Status),
		Path:       res.Path,
		HTTPStatus: res.HTTPStatus,
		Bytes:      res.Bytes,
	}
	if res.Err != nil {
		e.Error = res.Err.Error()
	}
	incomplete := 0
	if insp != nil {
		e.Records = insp.Records
		incomplete = insp.Incomplete()
		seen := map[string]bool{}
		for _, m := range insp.Missing {
			for _, f := range m {
				if !seen[f] {
					seen[f] = true
					e.Missing = append(e.Missing, f)
				}
			}
		}
	}
	t.mu.Lock()
	t.entries[res.File.Key()] = tallyEntry{date: res.File.Date, category: res.File.Category, entry: e, missing: incomplete}
	t.mu.Unlock()
	return e
}

// Snapshot 返回副本：按日期升序，同日按类别顺序。
func (t *Tally) Snapshot() []model.ResultEntry {
	t.mu.Lock()
	list := make([]tallyEntry, 0, len(t.entries))
	for _, v := range t.entries {
		list = append(list, v)
	}
	t.mu.Unlock()
	sort.Slice(list, func(i, j int) bool {
		if !list[i].date.Equal(list[j].date) {
			return list[i].date.Before(list[j].date)
		}
		return categoryRank(list[i].category) < categoryRank(list[j].category)
	})
	out := make([]model.ResultEntry, 0, len(list))
	for _, v := range list {
		out = append(out, v.entry)
	}
	return out
}

// Stats 汇总当前结果。
func (t *Tally) Stats() model.Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := model.Stats{RunID: t.runID, Total: len(t.entries), UpdatedAt: time.Now()}
	for _, v := range t.entries {
		switch model.FetchStatus(v.entry.Status) {
		case model.StatusDownloaded:
			st.Downloaded++
			st.Bytes += v.entry.Bytes
		case model.StatusCached:
			st.Cached++
		case model.StatusFailed:
			st.Failed++
		}
		st.Incomplete += v.missing
	}
	return st
}

func categoryRank(c model.Category) int {
	for i, v := range model.Categories {
		if v == c {
			return i
		}
	}
	return len(model.Categories)
}
