package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/alanbriolat/weeb"
	"github.com/alanbriolat/weeb/async"
	"github.com/alanbriolat/weeb/generic"
	"github.com/alanbriolat/weeb/internal/env"
)

const appName = "weeb"

func main() {
	_ = godotenv.Load()

	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	logger, err := config.Build()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logger.Sync()
	zap.RedirectStdLog(logger)
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = weeb.WithLogger(ctx, logger.Sugar())

	// Completion callbacks all run on the main goroutine
	queue := async.NewQueue()
	var e env.Env

	app := &cli.App{
		Name:  appName,
		Usage: "search and download from image boards",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config-dir",
				Usage: "use `DIR` for settings and cache instead of the user config dir",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "use providers' test instances",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "enable debug logging",
			},
		},
		Before: func(c *cli.Context) (err error) {
			if c.Bool("verbose") {
				config.Level.SetLevel(zap.DebugLevel)
			}
			builder := env.NewEnvBuilder().Context(ctx).Dispatcher(queue).Debug(c.Bool("debug"))
			if dir := c.String("config-dir"); dir != "" {
				builder.ConfigDir(dir)
			} else {
				builder.UserConfigDir(appName)
			}
			e, err = builder.Build()
			return err
		},
		After: func(c *cli.Context) error {
			if e == nil {
				return nil
			}
			return e.Close()
		},
		Commands: []*cli.Command{
			{
				Name:  "probe",
				Usage: "check which providers are available",
				Action: func(c *cli.Context) error {
					return probe(ctx, c.App.Writer, e)
				},
			},
			{
				Name:      "search",
				Usage:     "search every available provider",
				ArgsUsage: "TAG...",
				Action: func(c *cli.Context) error {
					assets, err := search(ctx, e, c.Args().Slice())
					if err != nil {
						return err
					}
					for _, asset := range assets {
						fmt.Fprintf(c.App.Writer, "%s\t%d\t%s\t%s\n", asset.Provider, asset.ID, asset.Hash, asset.Original().URL)
					}
					return nil
				},
			},
			{
				Name:      "tags",
				Usage:     "find tags starting with PREFIX",
				ArgsUsage: "PREFIX",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return cli.Exit("expected exactly one PREFIX", 2)
					}
					if _, err := await(ctx, e.ProviderRegistry().TestAll, nil); err != nil {
						return err
					}
					_, err := await(ctx,
						func(cb func(*async.Result[generic.Set[string]])) *async.Result[generic.Set[string]] {
							return e.Aggregator().SearchTags(c.Args().First(), cb)
						},
						func(r *async.Result[generic.Set[string]]) {
							for _, tag := range r.Value().ToSlice() {
								fmt.Fprintln(c.App.Writer, tag)
							}
						},
					)
					return err
				},
			},
			{
				Name:      "download",
				Usage:     "download the results of a search",
				ArgsUsage: "TAG...",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "target",
						Value: ".",
						Usage: "save downloaded images to `DIR`",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "download at most `N` images",
					},
					&cli.BoolFlag{
						Name:  "sample",
						Usage: "download the sample rendition where there is one",
					},
				},
				Action: func(c *cli.Context) error {
					assets, err := search(ctx, e, c.Args().Slice())
					if err != nil {
						return err
					}
					if limit := c.Int("limit"); limit > 0 && limit < len(assets) {
						assets = assets[:limit]
					}
					for _, asset := range assets {
						variant := asset.Original()
						if c.Bool("sample") {
							variant = asset.Sample.UnwrapOr(variant)
						}
						if err := download(ctx, e, c.String("target"), asset, variant); err != nil {
							return err
						}
					}
					return nil
				},
			},
			{
				Name:  "config",
				Usage: "read and change settings",
				Subcommands: []*cli.Command{
					{
						Name:      "get",
						ArgsUsage: "KEY",
						Action: func(c *cli.Context) error {
							if c.NArg() != 1 {
								return cli.Exit("expected KEY", 2)
							}
							if value := e.Settings().Get(c.Args().First(), nil); value != nil {
								fmt.Fprintln(c.App.Writer, value)
							}
							return nil
						},
					},
					{
						Name:      "set",
						ArgsUsage: "KEY VALUE",
						Action: func(c *cli.Context) error {
							if c.NArg() != 2 {
								return cli.Exit("expected KEY and VALUE", 2)
							}
							return e.Settings().Set(c.Args().Get(0), c.Args().Get(1))
						},
					},
				},
			},
		},
		HideHelpCommand: true,
	}

	done := make(chan struct{})
	result := async.RunResult(func() (generic.Void, error) {
		defer close(done)
		return generic.NewVoid(), app.Run(os.Args)
	})

	if err := queue.RunUntil(ctx, done); err != nil {
		logger.Error(err.Error())
		stop()
		// Nothing is draining the queue any more
		queue.Close()
	}
	if _, err := (<-result).Parts(); err != nil {
		logger.Fatal(err.Error())
	}
}

// await starts an operation and waits for its callback, which runs on the main goroutine, to return.
func await[T any](ctx context.Context, start func(func(*async.Result[T])) *async.Result[T], callback func(*async.Result[T])) (T, error) {
	done := make(chan struct{})
	r := start(func(r *async.Result[T]) {
		defer close(done)
		if callback != nil {
			callback(r)
		}
	})
	select {
	case <-done:
		return r.Wait(ctx)
	case <-ctx.Done():
		r.Cancel()
		var zero T
		return zero, ctx.Err()
	}
}

func probe(ctx context.Context, w io.Writer, e env.Env) error {
	events, err := e.ProviderRegistry().Subscribe()
	if err != nil {
		return err
	}
	defer events.Close()
	if _, err := await(ctx, e.ProviderRegistry().TestAll, nil); err != nil {
		return err
	}
	for range e.ProviderRegistry().Providers() {
		select {
		case event := <-events.Receive():
			if event.Alive {
				fmt.Fprintf(w, "%s\talive\n", event.Provider)
			} else {
				fmt.Fprintf(w, "%s\tunavailable: %v\n", event.Provider, event.Err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func search(ctx context.Context, e env.Env, tags []string) ([]weeb.Asset, error) {
	if _, err := await(ctx, e.ProviderRegistry().TestAll, nil); err != nil {
		return nil, err
	}
	if alive := e.ProviderRegistry().Alive(); len(alive) == 0 {
		return nil, fmt.Errorf("no providers available")
	}
	assets, err := await(ctx,
		func(cb func(*async.Result[generic.Set[weeb.Asset]])) *async.Result[generic.Set[weeb.Asset]] {
			return e.Aggregator().SearchAssets(tags, cb)
		},
		nil,
	)
	if err != nil {
		return nil, err
	}
	weeb.Logger(ctx).Infof("Found %d results for %s", assets.Count(), strings.Join(tags, " "))
	return assets.ToSlice(), nil
}

func download(ctx context.Context, e env.Env, target string, asset weeb.Asset, variant weeb.Variant) error {
	bar := progressbar.DefaultBytes(-1, fmt.Sprintf("%s %d", asset.Provider, asset.ID))
	d, err := weeb.NewDownloadBuilder().
		WithContext(ctx).
		WithConfig(weeb.NewDownloadConfig(target)).
		WithFetcher(e.Downloader()).
		WithProgressCallback(func(downloaded int, expected int) {
			if expected > 0 && bar.GetMax() != expected {
				bar.ChangeMax(expected)
			}
			generic.Unwrap_(bar.Set(downloaded))
		}).
		Build()
	if err != nil {
		return err
	}
	path, err := d.SaveVariant(asset.Provider, asset, variant)
	_ = bar.Finish()
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	weeb.Logger(ctx).Infof("Saved %s", path)
	return nil
}
