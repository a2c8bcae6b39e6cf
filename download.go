package weeb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/alanbriolat/weeb/download"
	"github.com/alanbriolat/weeb/downloader"
)

var (
	ErrNoFetcher = errors.New("download has no fetcher")
)

// A Fetcher opens a streaming HTTP response, e.g. *downloader.Downloader.
type Fetcher interface {
	Stream(ctx context.Context, rawURL string, opts downloader.RequestOptions) (*downloader.StreamResponse, error)
}

type Download interface {
	// AddDownloadedBytes increases how many bytes have been successfully downloaded so far.
	AddDownloadedBytes(n int)

	// AddExpectedBytes increases how many bytes are expected to be downloaded.
	AddExpectedBytes(n int)

	// Cancel the Download, stopping any in-progress I/O activity.
	Cancel()

	// Context is the cancellable context of this Download.
	Context() context.Context

	// Progress returns the downloaded and expected bytes of the download.
	Progress() (int, int)

	// SaveStream writes the stream to a temporary file, which is moved to filename once complete. Returns the final
	// path.
	SaveStream(filename string, stream io.Reader) (string, error)

	// SaveURL fetches the URL and saves the response body like SaveStream.
	SaveURL(filename string, url string) (string, error)

	// SaveVariant saves one rendition of an asset, named according to the DownloadConfig.
	SaveVariant(providerName string, asset Asset, variant Variant) (string, error)

	// Write will ignore the data but will send the byte count to AddDownloadedBytes. Allows progress tracking using
	// io.MultiWriter (but ensure the Download is the last writer to avoid counting failed writes).
	Write(p []byte) (n int, err error)
}

type downloadImpl struct {
	ctx              context.Context
	cancel           context.CancelFunc
	config           DownloadConfig
	fetcher          Fetcher
	progressCallback func(int, int)
	targetDir        string
	tempDir          string
	expectedBytes    int
	downloadedBytes  int
}

func (d *downloadImpl) AddDownloadedBytes(n int) {
	d.downloadedBytes += n
	if d.progressCallback != nil {
		d.progressCallback(d.Progress())
	}
}

func (d *downloadImpl) AddExpectedBytes(n int) {
	d.expectedBytes += n
	if d.progressCallback != nil {
		d.progressCallback(d.Progress())
	}
}

func (d *downloadImpl) Cancel() {
	d.cancel()
}

func (d *downloadImpl) Context() context.Context {
	return d.ctx
}

func (d *downloadImpl) Progress() (int, int) {
	return d.downloadedBytes, d.expectedBytes
}

func (d *downloadImpl) SaveStream(filename string, stream io.Reader) (target string, err error) {
	opts := []download.DownloadConfigOption{download.WithTargetDir(d.targetDir)}
	if d.tempDir != "" {
		opts = append(opts, download.WithTempDir(d.tempDir))
	}
	err = download.WithDownloadState(func(state *download.DownloadState) error {
		f, err := state.CreateTemp("part-*")
		if err != nil {
			return fmt.Errorf("failed to open temporary file: %w", err)
		}
		_, err = io.Copy(io.MultiWriter(f, d), &readerContext{ctx: d.ctx, r: stream})
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return fmt.Errorf("failed to save stream: %w", err)
		}
		target, err = state.Commit(f.Name(), filename)
		return err
	}, opts...)
	if err == nil {
		Logger(d.ctx).Debugw("saved download", "path", target, "bytes", d.downloadedBytes)
	}
	return target, err
}

func (d *downloadImpl) SaveURL(filename string, url string) (string, error) {
	if d.fetcher == nil {
		return "", ErrNoFetcher
	}
	resp, err := d.fetcher.Stream(d.ctx, url, downloader.RequestOptions{})
	if err != nil {
		return "", fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()
	if !resp.IsSuccess() {
		return "", &downloader.StatusError{URL: url, StatusCode: resp.StatusCode}
	}
	if resp.ContentLength > 0 {
		d.AddExpectedBytes(int(resp.ContentLength))
	}
	return d.SaveStream(filename, resp.Body)
}

func (d *downloadImpl) SaveVariant(providerName string, asset Asset, variant Variant) (string, error) {
	filename, err := d.config.GetTargetPath(providerName, asset, variant)
	if err != nil {
		return "", fmt.Errorf("failed to name download: %w", err)
	}
	return d.SaveURL(filename, variant.URL)
}

func (d *downloadImpl) Write(p []byte) (n int, err error) {
	n = len(p)
	d.AddDownloadedBytes(n)
	return n, nil
}

type DownloadBuilder interface {
	Build() (Download, error)
	WithConfig(config DownloadConfig) DownloadBuilder
	WithContext(ctx context.Context) DownloadBuilder
	WithFetcher(fetcher Fetcher) DownloadBuilder
	WithProgressCallback(f func(downloaded int, expected int)) DownloadBuilder
	WithTargetDir(dir string) DownloadBuilder
	WithTempDir(dir string) DownloadBuilder
}

type downloadBuilder struct {
	ctx              context.Context
	config           DownloadConfig
	fetcher          Fetcher
	progressCallback func(int, int)
	targetDir        string
	tempDir          string
}

func NewDownloadBuilder() DownloadBuilder {
	return &downloadBuilder{
		ctx:     context.Background(),
		tempDir: os.TempDir(),
	}
}

func (b *downloadBuilder) Build() (Download, error) {
	d := downloadImpl{}
	d.ctx, d.cancel = context.WithCancel(b.ctx)
	d.config = b.config
	if d.config == nil {
		d.config = NewDownloadConfig(".")
	}
	d.fetcher = b.fetcher
	d.progressCallback = b.progressCallback
	d.targetDir = b.targetDir
	d.tempDir = b.tempDir
	return &d, nil
}

func (b *downloadBuilder) WithConfig(config DownloadConfig) DownloadBuilder {
	b.config = config
	return b
}

func (b *downloadBuilder) WithContext(ctx context.Context) DownloadBuilder {
	b.ctx = ctx
	return b
}

func (b *downloadBuilder) WithFetcher(fetcher Fetcher) DownloadBuilder {
	b.fetcher = fetcher
	return b
}

func (b *downloadBuilder) WithProgressCallback(f func(int, int)) DownloadBuilder {
	b.progressCallback = f
	return b
}

func (b *downloadBuilder) WithTargetDir(dir string) DownloadBuilder {
	b.targetDir = dir
	return b
}

func (b *downloadBuilder) WithTempDir(dir string) DownloadBuilder {
	b.tempDir = dir
	return b
}
