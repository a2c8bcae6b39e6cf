// Package env builds the process-wide set of long-lived components, in dependency order, and tears them down again.
package env

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/alanbriolat/weeb"
	"github.com/alanbriolat/weeb/async"
	"github.com/alanbriolat/weeb/downloader"
	"github.com/alanbriolat/weeb/internal/boltdb"
	"github.com/alanbriolat/weeb/internal/settings"
	"github.com/alanbriolat/weeb/providers"
	"github.com/alanbriolat/weeb/providers/booru"
)

const (
	CacheFileName = "cache.db"
	ProxyKey      = "proxy/uri"
)

// ProvidersFunc adds providers to a registry, e.g. providers.Default.
type ProvidersFunc func(registry *weeb.ProviderRegistry, config booru.Config, credentials func(name string) booru.Credentials) error

type Env interface {
	Context() context.Context
	Settings() *settings.Settings
	Loop() *async.Loop
	Executor() *async.Executor
	Downloader() *downloader.Downloader
	ProviderRegistry() *weeb.ProviderRegistry
	Aggregator() *weeb.Aggregator
	// Close shuts down everything in the reverse order it was created, flushing settings last.
	Close() error
}

type env struct {
	ctx        context.Context
	configDir  string
	cacheDir   string
	dispatcher async.Dispatcher
	debug      bool
	providers  ProvidersFunc

	settings         *settings.Settings
	loop             *async.Loop
	executor         *async.Executor
	downloader       *downloader.Downloader
	providerRegistry *weeb.ProviderRegistry
	aggregator       *weeb.Aggregator
}

func (e *env) Context() context.Context {
	return e.ctx
}

func (e *env) Settings() *settings.Settings {
	return e.settings
}

func (e *env) Loop() *async.Loop {
	return e.loop
}

func (e *env) Executor() *async.Executor {
	return e.executor
}

func (e *env) Downloader() *downloader.Downloader {
	return e.downloader
}

func (e *env) ProviderRegistry() *weeb.ProviderRegistry {
	return e.providerRegistry
}

func (e *env) Aggregator() *weeb.Aggregator {
	return e.aggregator
}

func (e *env) Close() error {
	err := e.loop.Close()
	if settingsErr := e.settings.Close(); err == nil {
		err = settingsErr
	}
	return err
}

// Credentials reads provider credentials from the "providers/{name}/auth" setting group, which has "login" and
// "api_key" members.
func Credentials(s *settings.Settings) func(name string) booru.Credentials {
	return func(name string) booru.Credentials {
		auth := s.GetStringMapString("providers/" + name + "/auth")
		return booru.Credentials{Login: auth["login"], APIKey: auth["api_key"]}
	}
}

type EnvBuilder interface {
	Build() (Env, error)
	Context(ctx context.Context) EnvBuilder
	// ConfigDir specifies an exact configuration path to use. Unless CacheDir is used, the cache is stored there too.
	ConfigDir(path string) EnvBuilder
	// UserConfigDir will use the specified application to generate configuration and cache paths, according to the
	// platform's defaults, e.g. ~/.config/{{appName}} and ~/.cache/{{appName}}.
	UserConfigDir(appName string) EnvBuilder
	CacheDir(path string) EnvBuilder
	// Dispatcher decides where completion callbacks run; async.Inline if not specified.
	Dispatcher(d async.Dispatcher) EnvBuilder
	// Debug points providers at their test instances.
	Debug(debug bool) EnvBuilder
	// Providers replaces providers.Default.
	Providers(f ProvidersFunc) EnvBuilder
}

type envBuilder struct {
	env
	makeConfigDir func(*envBuilder) (string, error)
	makeCacheDir  func(*envBuilder) (string, error)
}

func NewEnvBuilder() EnvBuilder {
	return &envBuilder{
		env: env{
			ctx:        context.Background(),
			dispatcher: async.Inline,
			providers:  providers.Default,
		},
	}
}

func (b *envBuilder) Build() (_ Env, err error) {
	// Validate the builder configuration
	if b.makeConfigDir == nil {
		return nil, fmt.Errorf("must use ConfigDir() or UserConfigDir()")
	}

	e := b.env
	log := zap.S().Named("env")

	if e.configDir, err = b.makeConfigDir(b); err != nil {
		return nil, err
	}
	if b.makeCacheDir == nil {
		e.cacheDir = e.configDir
	} else if e.cacheDir, err = b.makeCacheDir(b); err != nil {
		return nil, err
	}
	if err = os.MkdirAll(e.cacheDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create cache dir %v: %w", e.cacheDir, err)
	}

	if e.settings, err = settings.New(e.configDir); err != nil {
		return nil, err
	}
	e.loop = async.NewLoop(e.ctx)
	// From here on, Close cleans up whatever was created
	defer func() {
		if err != nil {
			_ = e.Close()
		}
	}()

	cachePath := filepath.Join(e.cacheDir, CacheFileName)
	db, err := boltdb.New(cachePath)
	if err != nil {
		return nil, err
	}
	if err = e.loop.Enter(db.Close); err != nil {
		return nil, err
	}

	e.executor = async.NewExecutor(e.dispatcher)

	options := downloader.DefaultOptions()
	options.Proxy = e.settings.GetString(ProxyKey, "")
	if e.downloader, err = downloader.New(e.loop, e.executor, db, options); err != nil {
		return nil, err
	}
	e.settings.Subscribe(ProxyKey, func(string, any) {
		proxy := e.settings.GetString(ProxyKey, "")
		if err := e.downloader.SetProxy(proxy); err != nil {
			log.Errorw("failed to change proxy", "proxy", proxy, "error", err)
		}
	}, settings.PriorityHigh)

	e.providerRegistry = weeb.NewProviderRegistry(e.executor)
	if err = e.loop.Enter(func() error { e.providerRegistry.Close(); return nil }); err != nil {
		return nil, err
	}
	config := booru.Config{
		Fetcher:  e.downloader,
		Executor: e.executor,
		Debug:    e.debug,
	}
	if err = e.providers(e.providerRegistry, config, Credentials(e.settings)); err != nil {
		return nil, fmt.Errorf("failed to create providers: %w", err)
	}
	// Liveness may have changed with the proxy, so re-probe once the downloader is using it
	e.settings.Subscribe(ProxyKey, func(string, any) {
		e.providerRegistry.TestAll(nil)
	}, settings.PriorityLow)

	e.aggregator = weeb.NewAggregator(e.providerRegistry, e.executor)

	log.Debugw("environment ready", "config_dir", e.configDir, "cache", cachePath, "providers", e.providerRegistry.List())
	return &e, nil
}

func (b *envBuilder) Context(ctx context.Context) EnvBuilder {
	b.ctx = ctx
	return b
}

func (b *envBuilder) ConfigDir(path string) EnvBuilder {
	b.configDir = path
	b.makeConfigDir = func(b *envBuilder) (string, error) { return b.configDir, nil }
	return b
}

func (b *envBuilder) UserConfigDir(appName string) EnvBuilder {
	b.configDir = ""
	b.makeConfigDir = func(b *envBuilder) (string, error) {
		dir, err := os.UserConfigDir()
		return filepath.Join(dir, appName), err
	}
	if b.makeCacheDir == nil {
		b.makeCacheDir = func(b *envBuilder) (string, error) {
			dir, err := os.UserCacheDir()
			return filepath.Join(dir, appName), err
		}
	}
	return b
}

func (b *envBuilder) CacheDir(path string) EnvBuilder {
	b.cacheDir = path
	b.makeCacheDir = func(b *envBuilder) (string, error) { return b.cacheDir, nil }
	return b
}

func (b *envBuilder) Dispatcher(d async.Dispatcher) EnvBuilder {
	b.dispatcher = d
	return b
}

func (b *envBuilder) Debug(debug bool) EnvBuilder {
	b.debug = debug
	return b
}

func (b *envBuilder) Providers(f ProvidersFunc) EnvBuilder {
	b.providers = f
	return b
}
