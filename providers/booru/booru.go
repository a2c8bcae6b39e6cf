package booru

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/alanbriolat/weeb/async"
	"github.com/alanbriolat/weeb/downloader"
	"github.com/alanbriolat/weeb/generic"
	"github.com/alanbriolat/weeb/internal/sync_"
)

const (
	ProbeTimeout = 5 * time.Second
	// DefaultRate is the sustained request rate allowed per provider.
	DefaultRate  = rate.Limit(5)
	DefaultBurst = 10
)

// A Fetcher performs GET requests, e.g. *downloader.Downloader.
type Fetcher interface {
	Get(ctx context.Context, rawURL string, opts downloader.RequestOptions) (*downloader.Response, error)
}

// Credentials are static API credentials, passed as query parameters.
type Credentials struct {
	Login  string
	APIKey string
}

func (c Credentials) IsSet() bool {
	return c.Login != "" && c.APIKey != ""
}

// Config is what every booru provider needs to be constructed.
type Config struct {
	Fetcher  Fetcher
	Executor *async.Executor
	// BaseURL overrides the provider's default base URL.
	BaseURL     string
	Debug       bool
	Credentials Credentials
	// Limiter throttles requests; a limiter with DefaultRate and DefaultBurst if nil.
	Limiter *rate.Limiter
}

// Base implements the parts of weeb.Provider that are the same for every booru.
type Base struct {
	name     string
	baseURL  string
	fetcher  Fetcher
	executor *async.Executor
	alive    *sync_.RWMutexed[generic.Option[bool]]
	params   url.Values
	limiter  *rate.Limiter
	Log      *zap.SugaredLogger
}

// NewBase creates a Base; credentials are the query parameters added to every request.
func NewBase(name string, baseURL string, config Config, credentials url.Values) *Base {
	limiter := config.Limiter
	if limiter == nil {
		limiter = rate.NewLimiter(DefaultRate, DefaultBurst)
	}
	executor := config.Executor
	if executor == nil {
		executor = async.NewExecutor(async.Inline)
	}
	return &Base{
		name:     name,
		baseURL:  strings.TrimRight(baseURL, "/"),
		fetcher:  config.Fetcher,
		executor: executor,
		alive:    sync_.NewRWMutexed(generic.None[bool]()),
		params:   credentials,
		limiter:  limiter,
		Log:      zap.S().Named("provider").With("provider", name),
	}
}

func (b *Base) Name() string {
	return b.name
}

func (b *Base) BaseURL() string {
	return b.baseURL
}

func (b *Base) Alive() generic.Option[bool] {
	return b.alive.Get()
}

func (b *Base) SetAlive(alive bool) {
	if previous := b.alive.Swap(generic.Some(alive)); previous != generic.Some(alive) {
		b.Log.Infow("liveness changed", "alive", alive)
	}
}

func (b *Base) Executor() *async.Executor {
	return b.executor
}

// Fetch waits for the rate limiter, then GETs path relative to the base URL with params and credentials.
func (b *Base) Fetch(ctx context.Context, path string, params url.Values, timeout time.Duration) (*downloader.Response, error) {
	return b.fetch(ctx, path, params, http.Header{}, timeout)
}

func (b *Base) fetch(ctx context.Context, path string, params url.Values, header http.Header, timeout time.Duration) (*downloader.Response, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	query := url.Values{}
	for name, values := range params {
		query[name] = values
	}
	for name, values := range b.params {
		query[name] = values
	}
	header.Set("Accept", "application/json")
	return b.fetcher.Get(ctx, b.baseURL+path, downloader.RequestOptions{
		Params:  query,
		Header:  header,
		Timeout: timeout,
	})
}

// Probe implements TestAvailability by fetching path with params. Any successful response from the origin means the
// provider is alive; a cached response is never enough.
func (b *Base) Probe(path string, params url.Values, callback func(*async.Result[generic.Void])) *async.Result[generic.Void] {
	return async.Go(b.executor, func() (generic.Void, error) {
		header := http.Header{"Cache-Control": {"no-cache"}}
		resp, err := b.fetch(context.Background(), path, params, header, ProbeTimeout)
		if err == nil && !resp.IsSuccess() {
			err = NewProtocolError(resp)
		}
		b.SetAlive(err == nil)
		if err != nil {
			b.Log.Debugw("probe failed", "error", err)
		}
		return generic.NewVoid(), err
	}, callback)
}

// Query fetches path with params and parses a successful response. An unsuccessful response fails with a
// *ProtocolError.
func Query[T any](b *Base, path string, params url.Values, parse func(*downloader.Response) (T, error), callback func(*async.Result[T])) *async.Result[T] {
	return async.Go(b.executor, func() (T, error) {
		var zero T
		resp, err := b.Fetch(context.Background(), path, params, 0)
		if err != nil {
			return zero, err
		}
		if !resp.IsSuccess() {
			return zero, NewProtocolError(resp)
		}
		return parse(resp)
	}, callback)
}
