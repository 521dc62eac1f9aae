// 包 backup 负责按 (类别, 日期) 下载单个备份文件：
// - 本地已存在即视为缓存命中，不发请求
// - 否则发起 Basic 认证 GET，按固定块大小流式写盘；超时中断的文件不会留在磁盘上
// - 所有失败只记录日志并返回"缺失"，不影响后续日期
package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/dustin/go-humanize"

	"go-stocktwits-backup/internal/fetch"
	"go-stocktwits-backup/internal/layout"
	"go-stocktwits-backup/internal/logx"
	"go-stocktwits-backup/internal/model"
)

// ChunkSize 为写盘时的块大小。
const ChunkSize = 1024

// Getter 为 Fetcher 所需的 HTTP 能力，*fetch.Client 满足该接口。
type Getter interface {
	Get(ctx context.Context, url string) (*http.Response, error)
}

// Fetcher 下载备份文件到 Layout 决定的位置。
type Fetcher struct {
	endpoint string
	client   Getter
	layout   *layout.Layout
	log      *slog.Logger
	// cleanup 为 true 时写入失败会删除残留文件；默认保留以维持原有语义
	cleanup bool
	retry   int
}

// Options 为 Fetcher 构造参数。
type Options struct {
	Endpoint       string
	Client         Getter
	Layout         *layout.Layout
	Logger         *slog.Logger
	CleanupPartial bool
	// Retry 为响应体读取超时后整文件重新下载的次数
	Retry int
}

func New(opts Options) *Fetcher {
	return &Fetcher{
		endpoint: opts.Endpoint,
		client:   opts.Client,
		layout:   opts.Layout,
		log:      logx.Or(opts.Logger),
		cleanup:  opts.CleanupPartial,
		retry:    max(opts.Retry, 0),
	}
}

// URL 返回备份文件的远端地址。
func (f *Fetcher) URL(file model.BackupFile) string {
	return f.endpoint + file.RemotePath()
}

// Fetch 下载单个文件。返回结果的 Path 为空表示缺失。
// 响应体读取超时会删除残留文件并整文件重下，最多 Retry 次。
func (f *Fetcher) Fetch(ctx context.Context, file model.BackupFile) model.FetchResult {
	res := model.FetchResult{File: file}
	path := f.layout.Path(file)
	log := f.log.With("category", file.Category.String(), "date", file.DateString())

	if layout.Exists(path) {
		log.Info("文件已存在，跳过下载", "path", path)
		res.Path = path
		res.Status = model.StatusCached
		return res
	}

	url := f.URL(file)
	for attempt := 0; ; attempt++ {
		log.Info("开始下载", "url", url, "path", path, "attempt", attempt+1)
		var stalled bool
		res, stalled = f.download(ctx, log, file, url, path)
		if !stalled || attempt >= f.retry || ctx.Err() != nil {
			return res
		}
		log.Info("读取超时，重新下载", "attempt", attempt+2, "max", f.retry+1)
	}
}

// download 发起一次请求并写盘，stalled 表示响应体读取超时。
// 读取超时时总会删除残留文件，其余写入失败仅在 cleanup 开启时删除。
// 建连与响应头超时已由 fetch.Client 重试，这里不再重复。
func (f *Fetcher) download(ctx context.Context, log *slog.Logger, file model.BackupFile, url, path string) (res model.FetchResult, stalled bool) {
	res.File = file
	resp, err := f.client.Get(ctx, url)
	if err != nil {
		res.Status = model.StatusFailed
		res.Err = err
		var se *fetch.StatusError
		switch {
		case errors.As(err, &se):
			res.HTTPStatus = se.Code
			log.Warn("下载失败：响应异常", "status", se.Code, "reason", se.Reason())
		case fetch.IsTimeout(err):
			log.Warn("下载失败：请求超时", "err", err)
		default:
			log.Warn("下载失败：请求错误", "err", err)
		}
		return res, false
	}
	defer resp.Body.Close()
	res.HTTPStatus = resp.StatusCode

	n, err := f.save(path, resp.Body)
	res.Bytes = n
	if err != nil {
		res.Status = model.StatusFailed
		res.Err = err
		stalled = fetch.IsTimeout(err)
		if stalled || f.cleanup {
			if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				log.Warn("删除残留文件失败", "path", path, "err", rmErr)
			} else {
				log.Info("已删除残留文件", "path", path)
			}
		}
		if stalled {
			log.Warn("下载失败：读取超时", "path", path, "written", humanize.Bytes(uint64(n)), "err", err)
		} else {
			log.Error("保存文件失败", "path", path, "written", humanize.Bytes(uint64(n)), "err", err)
		}
		return res, stalled
	}
	res.Path = path
	res.Status = model.StatusDownloaded
	log.Info("下载完成", "path", path, "size", humanize.Bytes(uint64(n)))
	return res, false
}

// save 按 ChunkSize 逐块写入，仅写非空块。
func (f *Fetcher) save(path string, body io.Reader) (int64, error) {
	out, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", path, err)
	}
	var written int64
	buf := make([]byte, ChunkSize)
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			w, werr := out.Write(buf[:n])
			written += int64(w)
			if werr != nil {
				out.Close()
				return written, fmt.Errorf("write %s: %w", path, werr)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			out.Close()
			return written, fmt.Errorf("read body: %w", rerr)
		}
	}
	if err := out.Close(); err != nil {
		return written, fmt.Errorf("close %s: %w", path, err)
	}
	return written, nil
}
