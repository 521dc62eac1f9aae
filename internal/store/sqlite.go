// 包 store 提供下载历史日志（SQLite）：记录每次下载尝试与抽样检查结果。
// 仅用于审计与统计，缓存判断始终以磁盘文件为准。
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"go-stocktwits-backup/internal/model"
)

// SQLite 封装 *sql.DB，基于 modernc.org/sqlite（纯 Go 实现）。
type SQLite struct {
	db *sql.DB
}

// OpenSQLite 打开 SQLite 数据库并执行自动迁移。
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

// Reset 清空日志表（不删除数据库文件）。
func (s *SQLite) Reset(ctx context.Context) error {
	for _, table := range []string{"inspections", "fetches"} {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	return nil
}

// migrate 执行建表语句，保持幂等。
func (s *SQLite) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS fetches (
            run_id TEXT,
            category TEXT,
            day TEXT,
            status TEXT,
            http_status INTEGER,
            bytes INTEGER,
            path TEXT,
            error TEXT,
            created_at TIMESTAMP
        );`,
		`CREATE INDEX IF NOT EXISTS idx_fetches_day ON fetches(category, day);`,
		`CREATE TABLE IF NOT EXISTS inspections (
            run_id TEXT,
            category TEXT,
            day TEXT,
            records INTEGER,
            incomplete INTEGER,
            missing TEXT,
            created_at TIMESTAMP
        );`,
	}
	for _, q := range stmts {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("exec migrate: %w", err)
		}
	}
	return nil
}

// RecordFetch 追加一次下载结果。
func (s *SQLite) RecordFetch(ctx context.Context, runID string, r model.FetchResult) error {
	if runID == "" {
		return errors.New("run id required")
	}
	errText := ""
	if r.Err != nil {
		errText = r.Err.Error()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO fetches(run_id, category, day, status, http_status, bytes, path, error, created_at)
        VALUES(?,?,?,?,?,?,?,?,?)`,
		runID, r.File.Category.String(), r.File.DateString(), string(r.Status), r.HTTPStatus, r.Bytes, r.Path, errText, time.Now())
	if err != nil {
		return fmt.Errorf("record fetch %s: %w", r.File.Key(), err)
	}
	return nil
}

// RecordInspection 追加一次抽样检查结果；缺失字段按记录以 ";" 分隔。
func (s *SQLite) RecordInspection(ctx context.Context, runID string, in model.Inspection) error {
	parts := make([]string, 0, len(in.Missing))
	for _, m := range in.Missing {
		parts = append(parts, strings.Join(m, ","))
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO inspections(run_id, category, day, records, incomplete, missing, created_at)
        VALUES(?,?,?,?,?,?,?)`,
		runID, in.File.Category.String(), in.File.DateString(), in.Records, in.Incomplete(), strings.Join(parts, ";"), time.Now())
	if err != nil {
		return fmt.Errorf("record inspection %s: %w", in.File.Key(), err)
	}
	return nil
}

// ListFetches 返回某次运行（runID 为空则全部）的下载记录，按日期、类别排序。
func (s *SQLite) ListFetches(ctx context.Context, runID string) ([]model.ResultEntry, error) {
	q := `SELECT f.category, f.day, f.status, COALESCE(f.path,''), f.http_status, f.bytes, COALESCE(f.error,''),
            COALESCE(i.records, 0), COALESCE(i.missing, '')
        FROM fetches f
        LEFT JOIN inspections i ON i.run_id = f.run_id AND i.category = f.category AND i.day = f.day`
	var args []any
	if runID != "" {
		q += ` WHERE f.run_id = ?`
		args = append(args, runID)
	}
	q += ` ORDER BY f.day, f.category, f.created_at`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query fetches: %w", err)
	}
	defer rows.Close()
	var out []model.ResultEntry
	for rows.Next() {
		var e model.ResultEntry
		var missing string
		if err := rows.Scan(&e.Category, &e.Date, &e.Status, &e.Path, &e.HTTPStatus, &e.Bytes, &e.Error, &e.Records, &missing); err != nil {
			return nil, fmt.Errorf("scan fetches: %w", err)
		}
		e.Missing = flattenMissing(missing)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fetches: %w", err)
	}
	return out, nil
}

// flattenMissing 将 "a,b;;c" 还原为去重后的字段列表。
func flattenMissing(s string) []string {
	if s == "" {
		return nil
	}
	seen := map[string]bool{}
	var out []string
	for _, rec := range strings.Split(s, ";") {
		for _, f := range strings.Split(rec, ",") {
			if f == "" || seen[f] {
				continue
			}
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

// Stats 统计汇总；runID 为空时统计全部历史。
func (s *SQLite) Stats(ctx context.Context, runID string) (model.Stats, error) {
	st := model.Stats{RunID: runID}
	where, args := "", []any{}
	if runID != "" {
		where, args = " WHERE run_id = ?", []any{runID}
	}
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(1),
            COALESCE(SUM(CASE WHEN status = 'downloaded' THEN 1 ELSE 0 END), 0),
            COALESCE(SUM(CASE WHEN status = 'cached' THEN 1 ELSE 0 END), 0),
            COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
            COALESCE(SUM(CASE WHEN status = 'downloaded' THEN bytes ELSE 0 END), 0)
        FROM fetches`+where, args...)
	if err := row.Scan(&st.Total, &st.Downloaded, &st.Cached, &st.Failed, &st.Bytes); err != nil {
		return st, fmt.Errorf("count fetches: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(incomplete), 0) FROM inspections`+where, args...).Scan(&st.Incomplete); err != nil {
		return st, fmt.Errorf("count inspections: %w", err)
	}
	st.UpdatedAt = time.Now()
	return st, nil
}

// CleanOld 按天数阈值清理旧日志（基于 created_at）。
func (s *SQLite) CleanOld(ctx context.Context, days int) error {
	if days <= 0 {
		return nil
	}
	cutoff := time.Now().AddDate(0, 0, -days)
	for _, table := range []string{"fetches", "inspections"} {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE created_at < ?`, cutoff); err != nil {
			return fmt.Errorf("clean %s: %w", table, err)
		}
	}
	return nil
}
