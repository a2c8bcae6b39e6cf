package httpcache

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

var (
	ErrNotFound = errors.New("cache entry not found")
)

// Entry is a stored response.
type Entry struct {
	Method     string      `json:"method"`
	URL        string      `json:"url"`
	StatusCode int         `json:"status_code"`
	Header     http.Header `json:"header"`
	Body       []byte      `json:"-"`
	StoredAt   time.Time   `json:"stored_at"`
}

// Date is the Date header of the stored response, or when it was stored if that is missing.
func (e *Entry) Date() time.Time {
	if date := e.Header.Get("Date"); date != "" {
		if t, err := http.ParseTime(date); err == nil {
			return t
		}
	}
	return e.StoredAt
}

func (e *Entry) Clone() *Entry {
	clone := *e
	clone.Header = e.Header.Clone()
	clone.Body = bytes.Clone(e.Body)
	return &clone
}

// Response builds a response to req from the entry, tagged with the cache status.
func (e *Entry) Response(req *http.Request, status CacheStatus) *http.Response {
	header := e.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Set(HeaderCacheStatus, string(status))
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode)),
		StatusCode:    e.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

// Storage persists entries by cache key. Get returns ErrNotFound for a missing key.
type Storage interface {
	Get(key string) (*Entry, error)
	Put(key string, entry *Entry) error
	Delete(key string) error
}

// MemoryStorage keeps entries in a map, for tests and short-lived processes.
type MemoryStorage struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{entries: make(map[string]*Entry)}
}

func (s *MemoryStorage) Get(key string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if entry, ok := s.entries[key]; ok {
		return entry.Clone(), nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) Put(key string, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry.Clone()
	return nil
}

func (s *MemoryStorage) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *MemoryStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
