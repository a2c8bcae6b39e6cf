// Package settings is the persistent key/value configuration store. Keys are paths separated by "/", e.g. "proxy/uri",
// and are case-insensitive. Values come from a JSON file, overridden by WEEB_* environment variables (e.g.
// WEEB_PROXY_URI).
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/r3labs/diff/v3"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	FileName  = "settings.json"
	EnvPrefix = "WEEB"
	Delimiter = "/"
)

var (
	ErrClosed = errors.New("settings closed")
)

type Priority int

const (
	// PriorityLow subscribers are notified after every PriorityHigh subscriber.
	PriorityLow Priority = iota
	PriorityHigh
)

// A Subscriber is called with the key that was set and its new value.
type Subscriber func(key string, value any)

type subscription struct {
	id  int
	key string
	f   Subscriber
}

type Settings struct {
	mu            sync.Mutex
	v             *viper.Viper
	path          string
	dirty         bool
	closed        bool
	nextID        int
	subscriptions []subscription
	log           *zap.SugaredLogger
}

// New loads settings from FileName in dir, creating dir if necessary. A missing file is not an error.
func New(dir string) (*Settings, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create settings dir %v: %w", dir, err)
	}
	s := &Settings{
		v:    viper.NewWithOptions(viper.KeyDelimiter(Delimiter)),
		path: filepath.Join(dir, FileName),
		log:  zap.S().Named("settings"),
	}
	s.v.SetConfigType("json")
	s.v.SetConfigFile(s.path)
	s.v.SetEnvPrefix(EnvPrefix)
	s.v.SetEnvKeyReplacer(strings.NewReplacer(Delimiter, "_"))
	s.v.AutomaticEnv()
	if _, err := os.Stat(s.path); err == nil {
		if err := s.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read %v: %w", s.path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}
	s.log.Debugw("loaded settings", "path", s.path)
	return s, nil
}

func (s *Settings) Path() string {
	return s.path
}

// Get returns the value of key, or def if it isn't set.
func (s *Settings) Get(key string, def any) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.v.IsSet(key) {
		return def
	}
	return s.v.Get(key)
}

func (s *Settings) GetString(key string, def string) string {
	return cast.ToString(s.Get(key, def))
}

func (s *Settings) GetBool(key string, def bool) bool {
	return cast.ToBool(s.Get(key, def))
}

func (s *Settings) GetInt(key string, def int) int {
	return cast.ToInt(s.Get(key, def))
}

// GetStringMapString gets a nested group of settings, e.g. "providers/danbooru/auth", as a flat map.
func (s *Settings) GetStringMapString(key string) map[string]string {
	return cast.ToStringMapString(s.Get(key, map[string]any{}))
}

// Set changes the value of key, saves the settings file, and then notifies subscribers of key, its parents and its
// children. PriorityHigh subscribers are notified first, most recently subscribed first; then PriorityLow subscribers
// in subscription order.
func (s *Settings) Set(key string, value any) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	old := s.v.Get(key)
	s.v.Set(key, value)
	s.dirty = true
	err := s.flushLocked()
	var notify []Subscriber
	for _, sub := range s.subscriptions {
		if related(sub.key, key) {
			notify = append(notify, sub.f)
		}
	}
	s.mu.Unlock()

	if changes, diffErr := diff.Diff(old, value); diffErr != nil {
		s.log.Debugw("set", "key", key, "value", value)
	} else {
		for _, change := range changes {
			s.log.Debugw("set", "key", key, "path", change.Path, "from", change.From, "to", change.To)
		}
	}
	for _, f := range notify {
		f(key, value)
	}
	return err
}

// Subscribe calls f whenever key, one of its parents or one of its children is set. Returns a function that removes
// the subscription.
func (s *Settings) Subscribe(key string, f Subscriber, priority Priority) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	sub := subscription{id: s.nextID, key: normalize(key), f: f}
	if priority == PriorityHigh {
		s.subscriptions = append([]subscription{sub}, s.subscriptions...)
	} else {
		s.subscriptions = append(s.subscriptions, sub)
	}
	return func() { s.unsubscribe(sub.id) }
}

func (s *Settings) unsubscribe(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subscriptions {
		if sub.id == id {
			s.subscriptions = append(s.subscriptions[:i:i], s.subscriptions[i+1:]...)
			return
		}
	}
}

// Flush saves the settings file if anything changed since it was last saved.
func (s *Settings) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *Settings) flushLocked() error {
	if !s.dirty {
		return nil
	}
	if err := s.v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("failed to write %v: %w", s.path, err)
	}
	s.dirty = false
	return nil
}

// Close flushes the settings and drops every subscription. Only the first call has any effect.
func (s *Settings) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.subscriptions = nil
	return s.flushLocked()
}

func normalize(key string) string {
	return strings.ToLower(strings.Trim(key, Delimiter))
}

// related is true if a and b are the same key, or one is a parent of the other.
func related(a, b string) bool {
	a, b = normalize(a), normalize(b)
	return a == b || a == "" || strings.HasPrefix(b, a+Delimiter) || strings.HasPrefix(a, b+Delimiter)
}
