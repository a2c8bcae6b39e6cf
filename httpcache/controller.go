package httpcache

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HeuristicallyCacheableStatusCodes are the statuses a response may be cached with even without explicit freshness
// information, see RFC 9110 section 15.1.
var HeuristicallyCacheableStatusCodes = []int{200, 203, 204, 206, 300, 301, 308, 404, 405, 410, 414, 501}

const (
	// HeuristicFraction of the time since Last-Modified is used as the lifetime of a heuristically cached response.
	HeuristicFraction = 0.1
	// MaxHeuristicLifetime caps the lifetime of a heuristically cached response.
	MaxHeuristicLifetime = 7 * 24 * time.Hour
)

type Action string

const (
	// ActionNetwork means there is nothing usable in the cache.
	ActionNetwork Action = "network"
	// ActionServe means the stored response is fresh and can be served as-is.
	ActionServe Action = "serve"
	// ActionServeStale means the stored response is stale and can be served while it is revalidated in the
	// background.
	ActionServeStale Action = "serve-stale"
	// ActionRevalidate means the stored response must be revalidated before being served.
	ActionRevalidate Action = "revalidate"
)

// Controller holds the caching policy.
type Controller struct {
	// AllowHeuristics permits caching responses that have neither explicit freshness nor validators.
	AllowHeuristics bool
	// CacheableStatusCodes lists the statuses that may be stored; nil means HeuristicallyCacheableStatusCodes.
	CacheableStatusCodes []int
	// AllowStale permits serving stale responses while revalidating them in the background.
	AllowStale bool
	// AlwaysRevalidate forces a conditional request even for fresh responses.
	AlwaysRevalidate bool
	// Now is the clock, time.Now if nil.
	Now func() time.Time
}

func (c *Controller) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Controller) statusCacheable(code int) bool {
	codes := c.CacheableStatusCodes
	if codes == nil {
		codes = HeuristicallyCacheableStatusCodes
	}
	for _, cacheable := range codes {
		if cacheable == code {
			return true
		}
	}
	return false
}

// IsCacheable decides whether a response to req may be stored.
func (c *Controller) IsCacheable(req *http.Request, statusCode int, header http.Header) bool {
	if req.Method != http.MethodGet {
		return false
	}
	if !c.statusCacheable(statusCode) {
		return false
	}
	reqCC := ParseCacheControl(req.Header)
	respCC := ParseCacheControl(header)
	if reqCC.Has("no-store") || respCC.Has("no-store") {
		return false
	}
	if _, ok := respCC.MaxAge(); ok || header.Get("Expires") != "" {
		return true
	}
	if header.Get("ETag") != "" || header.Get("Last-Modified") != "" {
		return true
	}
	return c.AllowHeuristics
}

// Lifetime gives the freshness lifetime of a stored response.
func (c *Controller) Lifetime(entry *Entry) time.Duration {
	cc := ParseCacheControl(entry.Header)
	if maxAge, ok := cc.MaxAge(); ok {
		return maxAge
	}
	date := entry.Date()
	if expires := entry.Header.Get("Expires"); expires != "" {
		t, err := http.ParseTime(expires)
		if err != nil || !t.After(date) {
			return 0
		}
		return t.Sub(date)
	}
	if !c.AllowHeuristics {
		return 0
	}
	return HeuristicLifetime(date, entry.Header.Get("Last-Modified"))
}

// HeuristicLifetime is a fraction of the time between Last-Modified and date, zero if Last-Modified is missing or
// unparseable.
func HeuristicLifetime(date time.Time, lastModified string) time.Duration {
	if lastModified == "" {
		return 0
	}
	t, err := http.ParseTime(lastModified)
	if err != nil || !date.After(t) {
		return 0
	}
	lifetime := time.Duration(float64(date.Sub(t)) * HeuristicFraction)
	if lifetime > MaxHeuristicLifetime {
		lifetime = MaxHeuristicLifetime
	}
	return lifetime
}

// Age gives the current age of a stored response.
func (c *Controller) Age(entry *Entry) time.Duration {
	age := c.now().Sub(entry.StoredAt)
	if age < 0 {
		age = 0
	}
	if header := entry.Header.Get("Age"); header != "" {
		if seconds, err := strconv.ParseInt(header, 10, 64); err == nil && seconds > 0 {
			age += time.Duration(seconds) * time.Second
		}
	}
	return age
}

func (c *Controller) IsFresh(entry *Entry) bool {
	return c.Age(entry) < c.Lifetime(entry)
}

// Decide chooses how to handle req given the stored entry, which may be nil.
func (c *Controller) Decide(req *http.Request, entry *Entry) Action {
	if entry == nil || req.Method != http.MethodGet {
		return ActionNetwork
	}
	reqCC := ParseCacheControl(req.Header)
	if reqCC.Has("no-store") {
		return ActionNetwork
	}
	respCC := ParseCacheControl(entry.Header)
	if reqCC.Has("no-cache") || respCC.Has("no-cache") {
		return ActionRevalidate
	}
	if c.IsFresh(entry) {
		if c.AlwaysRevalidate {
			return ActionRevalidate
		}
		return ActionServe
	}
	if respCC.Has("must-revalidate") || !c.AllowStale {
		return ActionRevalidate
	}
	return ActionServeStale
}

// CacheControl is a parsed Cache-Control header, directive names lower-cased.
type CacheControl map[string]string

func ParseCacheControl(header http.Header) CacheControl {
	cc := CacheControl{}
	for _, line := range header.Values("Cache-Control") {
		for _, part := range strings.Split(line, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			name, value, _ := strings.Cut(part, "=")
			cc[strings.ToLower(strings.TrimSpace(name))] = strings.Trim(strings.TrimSpace(value), `"`)
		}
	}
	return cc
}

func (cc CacheControl) Has(directive string) bool {
	_, ok := cc[directive]
	return ok
}

func (cc CacheControl) MaxAge() (time.Duration, bool) {
	value, ok := cc["max-age"]
	if !ok {
		return 0, false
	}
	seconds, err := strconv.ParseInt(value, 10, 64)
	if err != nil || seconds < 0 {
		return 0, true
	}
	return time.Duration(seconds) * time.Second, true
}
