package downloader

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/alanbriolat/weeb/async"
	"github.com/alanbriolat/weeb/httpcache"
)

const (
	DefaultUserAgent = "weeb/0.1"
	chunkSize        = 32 * 1024
)

type Options struct {
	AllowHeuristics      bool
	CacheableStatusCodes []int
	AllowStale           bool
	AlwaysRevalidate     bool
	// RelevantHeaders are the request headers that are part of the cache key.
	RelevantHeaders []string
	// Proxy is a proxy URL, or empty for a direct connection.
	Proxy string
	// Connection limits; zero means unbounded.
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	UserAgent           string
}

func DefaultOptions() Options {
	return Options{
		AllowHeuristics:      true,
		CacheableStatusCodes: httpcache.HeuristicallyCacheableStatusCodes,
		AllowStale:           true,
		AlwaysRevalidate:     true,
		RelevantHeaders:      httpcache.DefaultRelevantHeaders,
		UserAgent:            DefaultUserAgent,
	}
}

type RequestOptions struct {
	Params  url.Values
	Header  http.Header
	Timeout time.Duration
}

// Downloader is the HTTP client every provider goes through. All requests are submitted to a shared async.Loop, and go
// through a caching transport if storage is configured.
type Downloader struct {
	options    Options
	loop       *async.Loop
	executor   *async.Executor
	controller *httpcache.Controller
	// cache lives as long as the Downloader; SetProxy only replaces its connection pool
	cache  *httpcache.Transport
	client *http.Client
	log    *zap.SugaredLogger
}

// New creates a Downloader. storage may be nil to disable caching.
func New(loop *async.Loop, executor *async.Executor, storage httpcache.Storage, options Options) (*Downloader, error) {
	if options.UserAgent == "" {
		options.UserAgent = DefaultUserAgent
	}
	d := &Downloader{
		options:  options,
		loop:     loop,
		executor: executor,
		controller: &httpcache.Controller{
			AllowHeuristics:      options.AllowHeuristics,
			CacheableStatusCodes: options.CacheableStatusCodes,
			AllowStale:           options.AllowStale,
			AlwaysRevalidate:     options.AlwaysRevalidate,
		},
		log: zap.S().Named("downloader"),
	}
	pool, err := d.newPool(options.Proxy)
	if err != nil {
		return nil, err
	}
	d.cache = httpcache.NewTransport(pool, storage, d.controller)
	d.cache.Keys = httpcache.NewKeyGenerator(options.RelevantHeaders...)
	d.cache.Spawn = func(f func(ctx context.Context)) error {
		return d.loop.Spawn(async.Task(f))
	}
	d.client = &http.Client{Transport: d.cache}
	return d, nil
}

func (d *Downloader) newPool(proxy string) (*http.Transport, error) {
	options := d.options
	options.Proxy = proxy
	return newTransport(options)
}

// SetProxy replaces the connection pool with one using the new proxy. Requests already in flight finish on the old
// pool. On error the current pool is kept.
func (d *Downloader) SetProxy(proxy string) error {
	pool, err := d.newPool(proxy)
	if err != nil {
		d.log.Warnw("invalid proxy, keeping current connection pool", "proxy", proxy, "error", err)
		return err
	}
	old := d.cache.SetBase(pool)
	if old, ok := old.(interface{ CloseIdleConnections() }); ok {
		old.CloseIdleConnections()
	}
	d.log.Infow("connection pool replaced", "proxy", proxy)
	return nil
}

func (d *Downloader) Executor() *async.Executor {
	return d.executor
}

func (d *Downloader) newRequest(ctx context.Context, rawURL string, opts RequestOptions) (*http.Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if len(opts.Params) > 0 {
		query := u.Query()
		for name, values := range opts.Params {
			for _, value := range values {
				query.Add(name, value)
			}
		}
		u.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", d.options.UserAgent)
	for name, values := range opts.Header {
		req.Header[name] = values
	}
	return req, nil
}

// do sends the request; the returned cancel func must be called once the body is no longer needed.
func (d *Downloader) do(ctx context.Context, rawURL string, opts RequestOptions) (*http.Response, context.CancelFunc, error) {
	cancel := context.CancelFunc(func() {})
	if opts.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
	}
	req, err := d.newRequest(ctx, rawURL, opts)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		cancel()
		return nil, nil, &TransportError{URL: rawURL, Err: err}
	}
	d.log.Debugw("response", "url", req.URL.String(), "status", resp.StatusCode, "cache_status", resp.Header.Get(httpcache.HeaderCacheStatus))
	return resp, cancel, nil
}

// Get fetches rawURL and reads the whole body. Unsuccessful HTTP statuses are not errors; only failing to get a
// response at all is, as a *TransportError.
func (d *Downloader) Get(ctx context.Context, rawURL string, opts RequestOptions) (*Response, error) {
	return async.Submit(d.loop, ctx, func(ctx context.Context) (*Response, error) {
		resp, cancel, err := d.do(ctx, rawURL, opts)
		if err != nil {
			return nil, err
		}
		defer cancel()
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &TransportError{URL: rawURL, Err: err}
		}
		return &Response{
			URL:         rawURL,
			StatusCode:  resp.StatusCode,
			Header:      resp.Header,
			Body:        body,
			CacheStatus: httpcache.CacheStatus(resp.Header.Get(httpcache.HeaderCacheStatus)),
		}, nil
	})
}

// Stream is like Get, but leaves the body to be read incrementally. It is stored in the cache once read completely.
func (d *Downloader) Stream(ctx context.Context, rawURL string, opts RequestOptions) (*StreamResponse, error) {
	// The body outlives the submitted task, so the request uses the caller's context rather than the task's
	return async.Submit(d.loop, ctx, func(context.Context) (*StreamResponse, error) {
		resp, cancel, err := d.do(ctx, rawURL, opts)
		if err != nil {
			return nil, err
		}
		resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
		return newStreamResponse(rawURL, resp), nil
	})
}

// GetAsync is the non-blocking version of Get.
func (d *Downloader) GetAsync(rawURL string, opts RequestOptions, callback func(*async.Result[*Response])) *async.Result[*Response] {
	return async.Go(d.executor, func() (*Response, error) {
		return d.Get(d.loop.Context(), rawURL, opts)
	}, callback)
}

// StreamAsync streams the body of rawURL in chunks to onChunk, finishing with the response once the body has been
// read. Cancelling the Result stops reading.
func (d *Downloader) StreamAsync(rawURL string, opts RequestOptions, onChunk func([]byte), callback func(*async.Result[*StreamResponse])) *async.Result[*StreamResponse] {
	return async.Stream(d.executor, func(emit func([]byte) bool) (*StreamResponse, error) {
		resp, err := d.Stream(d.loop.Context(), rawURL, opts)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		return resp, readChunks(rawURL, resp.Body, emit)
	}, onChunk, callback)
}

// Download fetches rawURL, requiring a successful status.
func (d *Downloader) Download(ctx context.Context, rawURL string) ([]byte, error) {
	resp, err := d.Get(ctx, rawURL, RequestOptions{})
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}
	return resp.Body, nil
}

// DownloadAsync streams rawURL to onChunk, requiring a successful status. The Result holds the number of bytes read.
func (d *Downloader) DownloadAsync(rawURL string, onChunk func([]byte), callback func(*async.Result[int64])) *async.Result[int64] {
	return async.Stream(d.executor, func(emit func([]byte) bool) (int64, error) {
		resp, err := d.Stream(d.loop.Context(), rawURL, RequestOptions{})
		if err != nil {
			return 0, err
		}
		defer resp.Body.Close()
		if !resp.IsSuccess() {
			return 0, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
		}
		var total int64
		err = readChunks(rawURL, resp.Body, func(chunk []byte) bool {
			total += int64(len(chunk))
			return emit(chunk)
		})
		return total, err
	}, onChunk, callback)
}

var errStopped = errors.New("stopped")

func readChunks(rawURL string, r io.Reader, emit func([]byte) bool) error {
	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if !emit(chunk) {
				return errStopped
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		} else if err != nil {
			return &TransportError{URL: rawURL, Err: err}
		}
	}
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	defer c.cancel()
	return c.ReadCloser.Close()
}
