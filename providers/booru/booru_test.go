package booru

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	assert_ "github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"

	"github.com/alanbriolat/weeb/async"
	"github.com/alanbriolat/weeb/downloader"
)

type fakeFetcher struct {
	mu       sync.Mutex
	urls     []string
	opts     []downloader.RequestOptions
	response *downloader.Response
	err      error
}

func (f *fakeFetcher) Get(ctx context.Context, rawURL string, opts downloader.RequestOptions) (*downloader.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, rawURL)
	f.opts = append(f.opts, opts)
	return f.response, f.err
}

func newTestBase(fetcher Fetcher) *Base {
	return NewBase("test", "https://example.com/", Config{
		Fetcher:  fetcher,
		Executor: async.NewExecutor(async.Inline),
		Limiter:  rate.NewLimiter(rate.Inf, 1),
	}, url.Values{"api_key": {"secret"}})
}

func TestBase_Fetch(t *testing.T) {
	assert := assert_.New(t)

	fetcher := &fakeFetcher{response: &downloader.Response{StatusCode: 200}}
	b := newTestBase(fetcher)
	assert.Equal("https://example.com", b.BaseURL())

	_, err := b.Fetch(context.Background(), "/posts.json", url.Values{"limit": {"1"}}, time.Second)
	assert.NoError(err)
	assert.Equal([]string{"https://example.com/posts.json"}, fetcher.urls)
	opts := fetcher.opts[0]
	assert.Equal("1", opts.Params.Get("limit"))
	assert.Equal("secret", opts.Params.Get("api_key"))
	assert.Equal("application/json", opts.Header.Get("Accept"))
	assert.Equal(time.Second, opts.Timeout)
	assert.Empty(opts.Header.Get("Cache-Control"))
}

func TestBase_Probe(t *testing.T) {
	assert := assert_.New(t)

	fetcher := &fakeFetcher{response: &downloader.Response{StatusCode: 200}}
	b := newTestBase(fetcher)
	assert.True(b.Alive().IsNone())

	r := b.Probe("/", nil, nil)
	_, err := r.Wait(context.Background())
	assert.NoError(err)
	assert.True(b.Alive().UnwrapOr(false))
	assert.Equal(ProbeTimeout, fetcher.opts[0].Timeout)
	assert.Equal("no-cache", fetcher.opts[0].Header.Get("Cache-Control"))
	assert.Equal("application/json", fetcher.opts[0].Header.Get("Accept"))

	fetcher.response = nil
	fetcher.err = errors.New("connection refused")
	r = b.Probe("/", nil, nil)
	_, err = r.Wait(context.Background())
	assert.EqualError(err, "connection refused")
	assert.False(b.Alive().UnwrapOr(true))
}

func TestQuery(t *testing.T) {
	assert := assert_.New(t)

	fetcher := &fakeFetcher{response: &downloader.Response{StatusCode: 200, Body: []byte(`[1,2,3]`)}}
	b := newTestBase(fetcher)
	parse := func(resp *downloader.Response) ([]int, error) {
		var v []int
		return v, resp.JSON(&v)
	}

	v, err := Query(b, "/", nil, parse, nil).Wait(context.Background())
	assert.NoError(err)
	assert.Equal([]int{1, 2, 3}, v)

	fetcher.response = &downloader.Response{StatusCode: 429, Body: []byte("  slow down\n")}
	_, err = Query(b, "/", nil, parse, nil).Wait(context.Background())
	var protocolErr *ProtocolError
	if assert.ErrorAs(err, &protocolErr) {
		assert.Equal(429, protocolErr.StatusCode)
		assert.Equal("slow down", protocolErr.Error())
	}
}

func TestProtocolError(t *testing.T) {
	assert := assert_.New(t)

	html := &downloader.Response{
		StatusCode: 502,
		Header:     http.Header{"Content-Type": {"text/html"}},
		Body:       []byte("<html><body><script>x()</script><h1>Bad   Gateway</h1></body></html>"),
	}
	assert.Equal("Bad Gateway", NewProtocolError(html).Error())

	empty := &downloader.Response{StatusCode: 500, Header: http.Header{}}
	assert.Equal("HTTP 500", NewProtocolError(empty).Error())
}
