package httpcache

import (
	"net/http"
	"testing"
	"time"

	assert_ "github.com/stretchr/testify/assert"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func testEntry(age time.Duration, header http.Header) *Entry {
	if header == nil {
		header = http.Header{}
	}
	if header.Get("Date") == "" {
		header.Set("Date", testNow.Add(-age).Format(http.TimeFormat))
	}
	return &Entry{
		Method:     "GET",
		StatusCode: 200,
		Header:     header,
		StoredAt:   testNow.Add(-age),
	}
}

func TestHeuristicLifetime(t *testing.T) {
	assert := assert_.New(t)

	assert.Equal(time.Duration(0), HeuristicLifetime(testNow, ""))
	assert.Equal(time.Duration(0), HeuristicLifetime(testNow, "not a date"))
	lastModified := testNow.Add(-10 * time.Hour).Format(http.TimeFormat)
	assert.Equal(time.Hour, HeuristicLifetime(testNow, lastModified))
	// Capped at one week
	lastModified = testNow.Add(-365 * 24 * time.Hour).Format(http.TimeFormat)
	assert.Equal(MaxHeuristicLifetime, HeuristicLifetime(testNow, lastModified))
	// Last-Modified in the future gives nothing
	lastModified = testNow.Add(time.Hour).Format(http.TimeFormat)
	assert.Equal(time.Duration(0), HeuristicLifetime(testNow, lastModified))
}

func TestController_Lifetime(t *testing.T) {
	assert := assert_.New(t)

	c := &Controller{AllowHeuristics: true, Now: func() time.Time { return testNow }}
	assert.Equal(time.Minute, c.Lifetime(testEntry(0, http.Header{"Cache-Control": {"public, max-age=60"}})))
	assert.Equal(2*time.Hour, c.Lifetime(testEntry(0, http.Header{"Expires": {testNow.Add(2 * time.Hour).Format(http.TimeFormat)}})))
	assert.Equal(time.Duration(0), c.Lifetime(testEntry(0, http.Header{"Expires": {"0"}})))
	assert.Equal(time.Hour, c.Lifetime(testEntry(0, http.Header{"Last-Modified": {testNow.Add(-10 * time.Hour).Format(http.TimeFormat)}})))
	assert.Equal(time.Duration(0), c.Lifetime(testEntry(0, nil)))

	c.AllowHeuristics = false
	assert.Equal(time.Duration(0), c.Lifetime(testEntry(0, http.Header{"Last-Modified": {testNow.Add(-10 * time.Hour).Format(http.TimeFormat)}})))
}

func TestController_IsCacheable(t *testing.T) {
	assert := assert_.New(t)

	get := newRequest(t, "GET", "https://example.com/", nil)
	c := &Controller{AllowHeuristics: false}
	assert.False(c.IsCacheable(get, 200, http.Header{}))
	assert.True(c.IsCacheable(get, 200, http.Header{"Cache-Control": {"max-age=10"}}))
	assert.True(c.IsCacheable(get, 200, http.Header{"Etag": {`"abc"`}}))
	assert.True(c.IsCacheable(get, 404, http.Header{"Last-Modified": {testNow.Format(http.TimeFormat)}}))
	assert.False(c.IsCacheable(get, 500, http.Header{"Cache-Control": {"max-age=10"}}))
	assert.False(c.IsCacheable(get, 200, http.Header{"Cache-Control": {"no-store, max-age=10"}}))
	assert.False(c.IsCacheable(newRequest(t, "POST", "https://example.com/", nil), 200, http.Header{"Cache-Control": {"max-age=10"}}))
	assert.False(c.IsCacheable(newRequest(t, "GET", "https://example.com/", http.Header{"Cache-Control": {"no-store"}}), 200, http.Header{"Cache-Control": {"max-age=10"}}))

	c.AllowHeuristics = true
	assert.True(c.IsCacheable(get, 200, http.Header{}))
	assert.True(c.IsCacheable(get, 501, http.Header{}))
	assert.False(c.IsCacheable(get, 302, http.Header{}))

	c.CacheableStatusCodes = []int{200}
	assert.False(c.IsCacheable(get, 404, http.Header{}))
}

func TestController_Decide(t *testing.T) {
	assert := assert_.New(t)

	get := newRequest(t, "GET", "https://example.com/", nil)
	fresh := testEntry(10*time.Second, http.Header{"Cache-Control": {"max-age=60"}})
	stale := testEntry(time.Hour, http.Header{"Cache-Control": {"max-age=60"}})
	now := func() time.Time { return testNow }

	c := &Controller{Now: now}
	assert.Equal(ActionNetwork, c.Decide(get, nil))
	assert.Equal(ActionServe, c.Decide(get, fresh))
	assert.Equal(ActionRevalidate, c.Decide(get, stale))

	c = &Controller{Now: now, AlwaysRevalidate: true}
	assert.Equal(ActionRevalidate, c.Decide(get, fresh))

	c = &Controller{Now: now, AllowStale: true}
	assert.Equal(ActionServeStale, c.Decide(get, stale))
	mustRevalidate := testEntry(time.Hour, http.Header{"Cache-Control": {"max-age=60, must-revalidate"}})
	assert.Equal(ActionRevalidate, c.Decide(get, mustRevalidate))
	noCache := testEntry(0, http.Header{"Cache-Control": {"no-cache"}, "Etag": {`"x"`}})
	assert.Equal(ActionRevalidate, c.Decide(get, noCache))

	noStore := newRequest(t, "GET", "https://example.com/", http.Header{"Cache-Control": {"no-store"}})
	assert.Equal(ActionNetwork, c.Decide(noStore, fresh))
}

func TestController_Age(t *testing.T) {
	assert := assert_.New(t)

	c := &Controller{Now: func() time.Time { return testNow }}
	assert.Equal(time.Minute, c.Age(testEntry(time.Minute, nil)))
	assert.Equal(time.Minute+30*time.Second, c.Age(testEntry(time.Minute, http.Header{"Age": {"30"}})))
}
