package httpcache

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	assert_ "github.com/stretchr/testify/assert"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testServer struct {
	*httptest.Server
	requests atomic.Int32
	body     atomic.Value
}

// newTestServer serves the current body with an ETag, answering 304 to a matching If-None-Match.
func newTestServer(t *testing.T, header http.Header) *testServer {
	s := &testServer{}
	s.body.Store("v1")
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		body := s.body.Load().(string)
		etag := `"` + body + `"`
		for name, values := range header {
			w.Header()[name] = values
		}
		w.Header().Set("ETag", etag)
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(s.Close)
	return s
}

func get(t *testing.T, client *http.Client, url string) (string, CacheStatus) {
	resp, err := client.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(body), CacheStatus(resp.Header.Get(HeaderCacheStatus))
}

func newTestTransport(clock *testClock, controller Controller) (*Transport, *MemoryStorage) {
	storage := NewMemoryStorage()
	controller.Now = clock.Now
	return NewTransport(http.DefaultTransport, storage, &controller), storage
}

func TestTransport_MissThenHit(t *testing.T) {
	assert := assert_.New(t)

	server := newTestServer(t, http.Header{"Cache-Control": {"max-age=60"}})
	clock := &testClock{now: time.Now()}
	transport, storage := newTestTransport(clock, Controller{})
	client := &http.Client{Transport: transport}

	body, status := get(t, client, server.URL+"/posts.json")
	assert.Equal("v1", body)
	assert.Equal(StatusMiss, status)
	assert.Equal(1, storage.Len())

	body, status = get(t, client, server.URL+"/posts.json")
	assert.Equal("v1", body)
	assert.Equal(StatusHit, status)
	assert.EqualValues(1, server.requests.Load())

	// Once expired, a synchronous conditional request is made
	clock.Advance(time.Hour)
	body, status = get(t, client, server.URL+"/posts.json")
	assert.Equal("v1", body)
	assert.Equal(StatusRevalidated, status)
	assert.EqualValues(2, server.requests.Load())

	// Revalidation refreshed the entry
	_, status = get(t, client, server.URL+"/posts.json")
	assert.Equal(StatusHit, status)
	assert.EqualValues(2, server.requests.Load())
}

func TestTransport_AlwaysRevalidate(t *testing.T) {
	assert := assert_.New(t)

	server := newTestServer(t, http.Header{"Cache-Control": {"max-age=60"}})
	clock := &testClock{now: time.Now()}
	transport, _ := newTestTransport(clock, Controller{AlwaysRevalidate: true})
	client := &http.Client{Transport: transport}

	_, status := get(t, client, server.URL)
	assert.Equal(StatusMiss, status)
	body, status := get(t, client, server.URL)
	assert.Equal("v1", body)
	assert.Equal(StatusRevalidated, status)
	assert.EqualValues(2, server.requests.Load())

	// Changed content replaces the stored entry
	server.body.Store("v2")
	body, status = get(t, client, server.URL)
	assert.Equal("v2", body)
	assert.Equal(StatusMiss, status)
	body, status = get(t, client, server.URL)
	assert.Equal("v2", body)
	assert.Equal(StatusRevalidated, status)
}

func TestTransport_AlwaysRevalidateOffline(t *testing.T) {
	assert := assert_.New(t)

	server := newTestServer(t, http.Header{"Cache-Control": {"max-age=60"}})
	clock := &testClock{now: time.Now()}
	transport, _ := newTestTransport(clock, Controller{AlwaysRevalidate: true})
	client := &http.Client{Transport: transport}

	_, status := get(t, client, server.URL)
	assert.Equal(StatusMiss, status)

	// Fresh entry is served if revalidation fails
	server.Close()
	body, status := get(t, client, server.URL)
	assert.Equal("v1", body)
	assert.Equal(StatusHit, status)

	// Stale entry is not
	clock.Advance(time.Hour)
	_, err := client.Get(server.URL)
	assert.Error(err)
}

func TestTransport_StaleWhileRevalidate(t *testing.T) {
	assert := assert_.New(t)

	server := newTestServer(t, http.Header{"Cache-Control": {"max-age=60"}})
	clock := &testClock{now: time.Now()}
	transport, _ := newTestTransport(clock, Controller{AllowStale: true})
	var background sync.WaitGroup
	transport.Spawn = func(f func(ctx context.Context)) error {
		background.Add(1)
		go func() {
			defer background.Done()
			f(context.Background())
		}()
		return nil
	}
	client := &http.Client{Transport: transport}

	get(t, client, server.URL)
	clock.Advance(time.Hour)
	server.body.Store("v2")

	body, status := get(t, client, server.URL)
	assert.Equal("v1", body)
	assert.Equal(StatusStale, status)

	background.Wait()
	assert.EqualValues(2, server.requests.Load())
	body, status = get(t, client, server.URL)
	assert.Equal("v2", body)
	assert.Equal(StatusHit, status)
}

func TestTransport_NotCacheable(t *testing.T) {
	assert := assert_.New(t)

	server := newTestServer(t, http.Header{"Cache-Control": {"no-store"}})
	clock := &testClock{now: time.Now()}
	transport, storage := newTestTransport(clock, Controller{AllowHeuristics: true})
	client := &http.Client{Transport: transport}

	for i := 0; i < 3; i++ {
		_, status := get(t, client, server.URL)
		assert.Equal(StatusMiss, status)
	}
	assert.EqualValues(3, server.requests.Load())
	assert.Equal(0, storage.Len())
}

func TestTransport_PartialReadNotStored(t *testing.T) {
	assert := assert_.New(t)

	server := newTestServer(t, http.Header{"Cache-Control": {"max-age=60"}})
	clock := &testClock{now: time.Now()}
	transport, storage := newTestTransport(clock, Controller{})
	client := &http.Client{Transport: transport}

	resp, err := client.Get(server.URL)
	if assert.NoError(err) {
		_ = resp.Body.Close()
	}
	assert.Equal(0, storage.Len())
}

func TestTransport_NoCacheRequest(t *testing.T) {
	assert := assert_.New(t)

	server := newTestServer(t, http.Header{"Cache-Control": {"max-age=60"}})
	clock := &testClock{now: time.Now()}
	transport, _ := newTestTransport(clock, Controller{AllowStale: true})
	client := &http.Client{Transport: transport}
	noCache := func() (*http.Response, error) {
		req, err := http.NewRequest(http.MethodGet, server.URL, nil)
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("Cache-Control", "no-cache")
		return client.Do(req)
	}

	_, status := get(t, client, server.URL)
	assert.Equal(StatusMiss, status)

	// Fresh entry is confirmed with the origin
	resp, err := noCache()
	if assert.NoError(err) {
		_ = resp.Body.Close()
		assert.Equal(http.StatusOK, resp.StatusCode)
		assert.Equal(string(StatusRevalidated), resp.Header.Get(HeaderCacheStatus))
	}
	assert.EqualValues(2, server.requests.Load())

	// Without the origin there is no answer, even though the entry is fresh
	server.Close()
	_, err = noCache()
	assert.Error(err)
	body, status := get(t, client, server.URL)
	assert.Equal("v1", body)
	assert.Equal(StatusHit, status)
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func TestTransport_SetBase(t *testing.T) {
	assert := assert_.New(t)

	server := newTestServer(t, http.Header{"Cache-Control": {"max-age=60"}})
	clock := &testClock{now: time.Now()}
	transport, storage := newTestTransport(clock, Controller{})
	client := &http.Client{Transport: transport}

	get(t, client, server.URL+"/a")
	assert.Equal(1, storage.Len())

	var calls atomic.Int32
	old := transport.SetBase(roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		calls.Add(1)
		return http.DefaultTransport.RoundTrip(req)
	}))
	assert.Equal(http.DefaultTransport, old)

	// Stored entries survive the swap, and new requests use the new base
	_, status := get(t, client, server.URL+"/a")
	assert.Equal(StatusHit, status)
	_, status = get(t, client, server.URL+"/b")
	assert.Equal(StatusMiss, status)
	assert.EqualValues(1, calls.Load())
	assert.EqualValues(2, server.requests.Load())
}
