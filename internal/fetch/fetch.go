// 包 fetch 封装 HTTP 客户端（代理/超时/Basic 认证/超时重试），用于请求备份归档。
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"sync/atomic"
	"time"
)

// ErrTimeout 表示请求超时（建连、等待响应头或响应体停滞），是唯一会被重试的失败类型。
var ErrTimeout = errors.New("request timed out")

// StatusError 为非 200 响应，不重试。
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string { return fmt.Sprintf("http status: %s", e.Status) }

// Reason 返回状态码对应的原因短语。
func (e *StatusError) Reason() string { return http.StatusText(e.Code) }

// Client 为带 Basic 认证与超时重试的 HTTP 客户端。
type Client struct {
	http     *http.Client
	retry    int
	idle     time.Duration
	username string
	password string
	backoff  time.Duration
}

// Options 为客户端构造参数。
type Options struct {
	ProxyHTTP  string
	ProxyHTTPS string
	Timeout    time.Duration
	Retry      int
	Username   string
	Password   string
}

// New 创建客户端，支持 http/https 代理。
// Timeout 分别约束建连、TLS 握手、等待响应头，以及响应体两次读取之间的最长间隔；
// 不限制整次传输时长，大文件只要持续有数据就不会被中断。
func New(opts Options) (*Client, error) {
	for _, p := range []string{opts.ProxyHTTP, opts.ProxyHTTPS} {
		if p == "" {
			continue
		}
		if _, err := url.Parse(p); err != nil {
			return nil, fmt.Errorf("parse proxy %q: %w", p, err)
		}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	transport := &http.Transport{
		Proxy: func(req *http.Request) (*url.URL, error) {
			if req.URL.Scheme == "https" && opts.ProxyHTTPS != "" {
				return url.Parse(opts.ProxyHTTPS)
			}
			if req.URL.Scheme == "http" && opts.ProxyHTTP != "" {
				return url.Parse(opts.ProxyHTTP)
			}
			return http.ProxyFromEnvironment(req)
		},
		DialContext:           (&net.Dialer{Timeout: opts.Timeout}).DialContext,
		TLSHandshakeTimeout:   opts.Timeout,
		ResponseHeaderTimeout: opts.Timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if opts.Retry < 0 {
		opts.Retry = 0
	}
	return &Client{
		http:     &http.Client{Transport: transport},
		retry:    opts.Retry,
		idle:     opts.Timeout,
		username: opts.Username,
		password: opts.Password,
		backoff:  500 * time.Millisecond,
	}, nil
}

// Get 发起带认证的 GET。非 200 返回 *StatusError；建连或等待响应头超时返回包装了
// ErrTimeout 的错误，并按 Retry 次数线性回退重试。
// 返回的 Body 在读取停滞超过 Timeout 时报 ErrTimeout；成功时由调用方关闭 Body。
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	var lastErr error
	attempts := c.retry + 1
	for i := 0; i < attempts; i++ {
		reqCtx, cancel := context.WithCancel(ctx)
		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("new request: %w", err)
		}
		if c.username != "" || c.password != "" {
			req.SetBasicAuth(c.username, c.password)
		}
		// 支持环境变量覆盖 UA（STB_UA）
		if ua := os.Getenv("STB_UA"); ua != "" {
			req.Header.Set("User-Agent", ua)
		}
		resp, err := c.http.Do(req)
		if err == nil {
			// 只有 200 视为完整归档；204/206 等保存下来会被当作缓存命中
			if resp.StatusCode == http.StatusOK {
				resp.Body = newIdleBody(resp.Body, c.idle, cancel)
				return resp, nil
			}
			resp.Body.Close()
			cancel()
			return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status}
		}
		cancel()
		if !IsTimeout(err) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = fmt.Errorf("%w: %v", ErrTimeout, err)
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(i+1) * c.backoff):
		}
	}
	return nil, lastErr
}

// idleBody 在两次 Read 之间超过 idle 没有数据时取消请求，并把随后的读取错误换成 ErrTimeout。
type idleBody struct {
	rc     io.ReadCloser
	idle   time.Duration
	timer  *time.Timer
	fired  atomic.Bool
	cancel context.CancelFunc
}

func newIdleBody(rc io.ReadCloser, idle time.Duration, cancel context.CancelFunc) *idleBody {
	b := &idleBody{rc: rc, idle: idle, cancel: cancel}
	b.timer = time.AfterFunc(idle, func() {
		b.fired.Store(true)
		cancel()
	})
	return b
}

func (b *idleBody) Read(p []byte) (int, error) {
	n, err := b.rc.Read(p)
	if err != nil && err != io.EOF && b.fired.Load() {
		return n, fmt.Errorf("%w: no data for %s", ErrTimeout, b.idle)
	}
	if err == nil {
		b.timer.Reset(b.idle)
	}
	return n, err
}

func (b *idleBody) Close() error {
	b.timer.Stop()
	err := b.rc.Close()
	b.cancel()
	return err
}

// IsTimeout 判断错误是否为超时（包括 ErrTimeout 本身）。
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
