package settings

import (
	"os"
	"path/filepath"
	"testing"

	assert_ "github.com/stretchr/testify/assert"
)

func TestSettings_GetDefault(t *testing.T) {
	assert := assert_.New(t)
	s, err := New(t.TempDir())
	assert.NoError(err)
	defer s.Close()

	assert.Equal("fallback", s.Get("proxy/uri", "fallback"))
	assert.Equal("", s.GetString("proxy/uri", ""))
	assert.Equal(3, s.GetInt("search/limit", 3))
	assert.Empty(s.GetStringMapString("providers/danbooru/auth"))
}

func TestSettings_SetPersists(t *testing.T) {
	assert := assert_.New(t)
	dir := t.TempDir()

	s, err := New(dir)
	assert.NoError(err)
	assert.NoError(s.Set("proxy/uri", "socks5://localhost:1080"))
	assert.NoError(s.Set("providers/Danbooru/auth/login", "alice"))
	assert.NoError(s.Set("providers/Danbooru/auth/api_key", "secret"))
	assert.Equal("socks5://localhost:1080", s.GetString("proxy/uri", ""))
	assert.NoError(s.Close())

	_, err = os.Stat(filepath.Join(dir, FileName))
	assert.NoError(err)

	s, err = New(dir)
	assert.NoError(err)
	defer s.Close()
	assert.Equal("socks5://localhost:1080", s.GetString("proxy/uri", ""))
	assert.Equal(map[string]string{"login": "alice", "api_key": "secret"}, s.GetStringMapString("providers/danbooru/auth"))
}

func TestSettings_EnvOverride(t *testing.T) {
	assert := assert_.New(t)
	t.Setenv("WEEB_PROXY_URI", "http://proxy.example.com:3128")
	s, err := New(t.TempDir())
	assert.NoError(err)
	defer s.Close()

	assert.Equal("http://proxy.example.com:3128", s.GetString("proxy/uri", ""))
}

func TestSettings_Subscribe(t *testing.T) {
	assert := assert_.New(t)
	s, err := New(t.TempDir())
	assert.NoError(err)
	defer s.Close()

	var calls []string
	record := func(name string) Subscriber {
		return func(key string, value any) {
			calls = append(calls, name+":"+key+"="+value.(string))
		}
	}
	s.Subscribe("proxy", record("low-parent"), PriorityLow)
	s.Subscribe("proxy/uri", record("high-first"), PriorityHigh)
	s.Subscribe("proxy/uri", record("high-second"), PriorityHigh)
	s.Subscribe("proxy/uri/extra", record("low-child"), PriorityLow)
	s.Subscribe("proxyx", record("unrelated-prefix"), PriorityHigh)
	unsubscribe := s.Subscribe("proxy/uri", record("removed"), PriorityLow)
	unsubscribe()

	assert.NoError(s.Set("Proxy/URI", "http://a"))
	assert.Equal([]string{
		"high-second:Proxy/URI=http://a",
		"high-first:Proxy/URI=http://a",
		"low-parent:Proxy/URI=http://a",
		"low-child:Proxy/URI=http://a",
	}, calls)

	calls = nil
	assert.NoError(s.Set("search/limit", "10"))
	assert.Empty(calls)
}

func TestSettings_Close(t *testing.T) {
	assert := assert_.New(t)
	s, err := New(t.TempDir())
	assert.NoError(err)

	called := false
	s.Subscribe("proxy/uri", func(string, any) { called = true }, PriorityHigh)
	assert.NoError(s.Close())
	assert.NoError(s.Close())
	assert.ErrorIs(s.Set("proxy/uri", "http://a"), ErrClosed)
	assert.False(called)
}

func TestRelated(t *testing.T) {
	assert := assert_.New(t)
	assert.True(related("proxy/uri", "proxy/uri"))
	assert.True(related("proxy", "proxy/uri"))
	assert.True(related("proxy/uri", "proxy"))
	assert.True(related("", "proxy"))
	assert.False(related("proxy/uri", "proxy/user"))
	assert.False(related("prox", "proxy/uri"))
}
