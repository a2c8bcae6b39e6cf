package httpcache

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/alanbriolat/weeb/internal/sync_"
)

// HeaderCacheStatus is added to every response from Transport.
const HeaderCacheStatus = "X-Cache-Status"

type CacheStatus string

const (
	StatusHit         CacheStatus = "HIT"
	StatusMiss        CacheStatus = "MISS"
	StatusRevalidated CacheStatus = "REVALIDATED"
	StatusStale       CacheStatus = "STALE"
)

// SpawnFunc starts a background task, e.g. async.Loop.Spawn.
type SpawnFunc func(func(ctx context.Context)) error

// Transport is an http.RoundTripper that answers from Storage where Controller allows, and stores cacheable responses
// once their body has been read completely. With nil Storage every request goes straight to the base round-tripper.
// Use NewTransport; the zero value is not usable.
type Transport struct {
	base       *sync_.RWMutexed[http.RoundTripper]
	Storage    Storage
	Controller *Controller
	Keys       *KeyGenerator
	// Spawn runs background revalidation; a plain goroutine if nil.
	Spawn SpawnFunc

	revalidating singleflight.Group
	log          *zap.SugaredLogger
}

func NewTransport(base http.RoundTripper, storage Storage, controller *Controller) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	if controller == nil {
		controller = &Controller{}
	}
	return &Transport{
		base:       sync_.NewRWMutexed(base),
		Storage:    storage,
		Controller: controller,
		Keys:       NewKeyGenerator(),
		log:        zap.S().Named("httpcache"),
	}
}

// Base is the round-tripper used for network requests.
func (t *Transport) Base() http.RoundTripper {
	return t.base.Get()
}

// SetBase replaces the round-tripper used for network requests, returning the old one. Requests already in flight
// finish on the old one; stored entries and background revalidations are unaffected.
func (t *Transport) SetBase(base http.RoundTripper) http.RoundTripper {
	return t.base.Swap(base)
}

func (t *Transport) logger() *zap.SugaredLogger {
	if t.log == nil {
		t.log = zap.S().Named("httpcache")
	}
	return t.log
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet || t.Storage == nil {
		return t.Base().RoundTrip(req)
	}
	key, err := t.Keys.Key(req)
	if err != nil {
		return nil, err
	}
	log := t.logger().With("cache_key", key)

	entry, err := t.Storage.Get(key)
	if errors.Is(err, ErrNotFound) {
		entry = nil
	} else if err != nil {
		log.Warnw("failed to read cache entry", "error", err)
		entry = nil
	}

	action := t.Controller.Decide(req, entry)
	log.Debugw("cache decision", "action", action, "url", req.URL.String())
	switch action {
	case ActionServe:
		return entry.Response(req, StatusHit), nil
	case ActionServeStale:
		t.revalidateInBackground(req, key, entry)
		return entry.Response(req, StatusStale), nil
	case ActionRevalidate:
		resp, err := t.revalidate(req, key, entry)
		// A request with no-cache wants the origin's answer, so it never falls back
		if err != nil && !ParseCacheControl(req.Header).Has("no-cache") && t.Controller.IsFresh(entry) {
			log.Debugw("revalidation failed, serving cached", "error", err)
			return entry.Response(req, StatusHit), nil
		}
		return resp, err
	default:
		return t.fetch(req, key)
	}
}

// fetch does a plain network request, arranging for the response to be stored if it is cacheable.
func (t *Transport) fetch(req *http.Request, key string) (*http.Response, error) {
	resp, err := t.Base().RoundTrip(req)
	if err != nil {
		return nil, err
	}
	return t.storeOnRead(req, key, resp), nil
}

func (t *Transport) storeOnRead(req *http.Request, key string, resp *http.Response) *http.Response {
	resp.Header.Set(HeaderCacheStatus, string(StatusMiss))
	if !t.Controller.IsCacheable(req, resp.StatusCode, resp.Header) {
		if err := t.Storage.Delete(key); err != nil {
			t.logger().Warnw("failed to delete cache entry", "cache_key", key, "error", err)
		}
		return resp
	}
	entry := &Entry{
		Method:     req.Method,
		URL:        req.URL.String(),
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
	}
	entry.Header.Del(HeaderCacheStatus)
	resp.Body = &cachingReadCloser{
		ReadCloser: resp.Body,
		onEOF: func(body []byte) {
			entry.Body = body
			entry.StoredAt = t.Controller.now()
			t.put(key, entry)
		},
	}
	return resp
}

func (t *Transport) put(key string, entry *Entry) {
	if err := t.Storage.Put(key, entry); err != nil {
		t.logger().Warnw("failed to store cache entry", "cache_key", key, "error", err)
	}
}

func conditional(req *http.Request, entry *Entry) *http.Request {
	req = req.Clone(req.Context())
	if etag := entry.Header.Get("ETag"); etag != "" && req.Header.Get("If-None-Match") == "" {
		req.Header.Set("If-None-Match", etag)
	}
	if lastModified := entry.Header.Get("Last-Modified"); lastModified != "" && req.Header.Get("If-Modified-Since") == "" {
		req.Header.Set("If-Modified-Since", lastModified)
	}
	return req
}

// revalidate sends a conditional request, serving the stored body if the server confirms it is unchanged.
func (t *Transport) revalidate(req *http.Request, key string, entry *Entry) (*http.Response, error) {
	resp, err := t.Base().RoundTrip(conditional(req, entry))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusNotModified {
		return t.storeOnRead(req, key, resp), nil
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	refreshed := refresh(entry, resp.Header, t.Controller.now())
	t.put(key, refreshed)
	return refreshed.Response(req, StatusRevalidated), nil
}

// refresh applies the headers of a 304 response to a stored entry.
func refresh(entry *Entry, header http.Header, now time.Time) *Entry {
	refreshed := entry.Clone()
	for name, values := range header {
		if name == "Content-Length" {
			continue
		}
		refreshed.Header[name] = values
	}
	refreshed.Header.Del(HeaderCacheStatus)
	refreshed.StoredAt = now
	return refreshed
}

func (t *Transport) revalidateInBackground(req *http.Request, key string, entry *Entry) {
	task := func(ctx context.Context) {
		_, _, _ = t.revalidating.Do(key, func() (any, error) {
			resp, err := t.revalidate(req.Clone(ctx), key, entry)
			if err != nil {
				t.logger().Debugw("background revalidation failed", "cache_key", key, "error", err)
				return nil, err
			}
			// Reading to EOF stores a changed response
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil, resp.Body.Close()
		})
	}
	if t.Spawn == nil {
		go task(context.Background())
		return
	}
	if err := t.Spawn(task); err != nil {
		t.logger().Debugw("could not start background revalidation", "cache_key", key, "error", err)
	}
}

// cachingReadCloser keeps a copy of everything read, handing it to onEOF once the body has been read completely.
type cachingReadCloser struct {
	io.ReadCloser
	buf   bytes.Buffer
	done  bool
	onEOF func([]byte)
}

func (r *cachingReadCloser) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	r.buf.Write(p[:n])
	if errors.Is(err, io.EOF) && !r.done {
		r.done = true
		r.onEOF(r.buf.Bytes())
	}
	return n, err
}
