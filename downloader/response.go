package downloader

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/alanbriolat/weeb/httpcache"
)

// Response is a fully-read HTTP response.
type Response struct {
	URL         string
	StatusCode  int
	Header      http.Header
	Body        []byte
	CacheStatus httpcache.CacheStatus
}

func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// FromCache is true if the body came from the cache, including after a successful revalidation.
func (r *Response) FromCache() bool {
	switch r.CacheStatus {
	case httpcache.StatusHit, httpcache.StatusStale, httpcache.StatusRevalidated:
		return true
	default:
		return false
	}
}

func (r *Response) Stale() bool {
	return r.CacheStatus == httpcache.StatusStale
}

func (r *Response) Text() string {
	return string(r.Body)
}

func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// StreamResponse is an HTTP response whose body has not been read yet. The caller must close Body.
type StreamResponse struct {
	URL           string
	StatusCode    int
	Header        http.Header
	ContentLength int64
	Body          io.ReadCloser
	CacheStatus   httpcache.CacheStatus
}

func (r *StreamResponse) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

func newStreamResponse(url string, resp *http.Response) *StreamResponse {
	return &StreamResponse{
		URL:           url,
		StatusCode:    resp.StatusCode,
		Header:        resp.Header,
		ContentLength: resp.ContentLength,
		Body:          resp.Body,
		CacheStatus:   httpcache.CacheStatus(resp.Header.Get(httpcache.HeaderCacheStatus)),
	}
}
