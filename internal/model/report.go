package model

import "time"

// Stats 为一次运行（或历史日志）的汇总。
type Stats struct {
	RunID      string    `json:"run_id,omitempty"`
	Total      int       `json:"total"`
	Downloaded int       `json:"downloaded"`
	Cached     int       `json:"cached"`
	Failed     int       `json:"failed"`
	Bytes      int64     `json:"bytes"`
	Incomplete int       `json:"incomplete_records"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ResultEntry 为导出报告中的单条结果。
type ResultEntry struct {
	Category   string   `json:"category"`
	Date       string   `json:"date"`
	Status     string   `json:"status"`
	Path       string   `json:"path,omitempty"`
	HTTPStatus int      `json:"http_status,omitempty"`
	Bytes      int64    `json:"bytes"`
	Error      string   `json:"error,omitempty"`
	Records    int      `json:"records"`
	Missing    []string `json:"missing,omitempty"`
}

// Report 为 report.json 顶层结构。
type Report struct {
	Stats   Stats         `json:"stats"`
	Results []ResultEntry `json:"results"`
}
