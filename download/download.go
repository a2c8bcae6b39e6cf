package download

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

type downloadConfig struct {
	baseTargetDir string
	baseTempDir   string
	tempPattern   string
}

type DownloadConfigOption func(*downloadConfig)

func WithTargetDir(dir string) DownloadConfigOption {
	return func(c *downloadConfig) {
		c.baseTargetDir = dir
	}
}

func WithTempDir(dir string) DownloadConfigOption {
	return func(c *downloadConfig) {
		c.baseTempDir = dir
	}
}

// DownloadState is a scratch directory for files being downloaded; completed files are moved into the target
// directory with Commit.
type DownloadState struct {
	config  downloadConfig
	tempDir string
}

func newDownloadState(config downloadConfig) (*DownloadState, error) {
	// Create target directory
	if len(config.baseTargetDir) > 0 {
		if err := os.MkdirAll(config.baseTargetDir, 0755); err != nil {
			return nil, err
		}
	}
	// Create temporary directory
	tempDir, err := os.MkdirTemp(config.baseTempDir, config.tempPattern)
	if err != nil {
		return nil, err
	}
	state := &DownloadState{
		config:  config,
		tempDir: tempDir,
	}
	return state, nil
}

func (s *DownloadState) close() {
	// Clean up temporary directory
	if err := os.RemoveAll(s.tempDir); err != nil {
		zap.S().Named("download").Warnw("failed to clean up download state", "dir", s.tempDir, "error", err)
	}
}

func (s *DownloadState) TempDir() string {
	return s.tempDir
}

func (s *DownloadState) CreateTemp(pattern string) (*os.File, error) {
	return os.CreateTemp(s.tempDir, pattern)
}

// TargetPath resolves filename relative to the target directory.
func (s *DownloadState) TargetPath(filename string) string {
	if filepath.IsAbs(filename) || s.config.baseTargetDir == "" {
		return filename
	}
	return filepath.Join(s.config.baseTargetDir, filename)
}

// Commit moves a completed temporary file to filename in the target directory, copying if it can't be renamed (e.g.
// across filesystems).
func (s *DownloadState) Commit(tempPath string, filename string) (string, error) {
	target := s.TargetPath(filename)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return "", err
	}
	if err := os.Rename(tempPath, target); err == nil {
		return target, nil
	}
	if err := copyFile(tempPath, target); err != nil {
		return "", fmt.Errorf("failed to move %s to %s: %w", tempPath, target, err)
	}
	return target, nil
}

func copyFile(src string, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, out.Close())
	}()
	_, err = io.Copy(out, in)
	return err
}

// WithDownloadState runs f with a fresh DownloadState, removing its temporary directory afterwards.
func WithDownloadState(f func(state *DownloadState) error, opts ...DownloadConfigOption) error {
	config := downloadConfig{
		baseTargetDir: "",
		baseTempDir:   os.TempDir(),
		tempPattern:   "weeb-*",
	}
	for _, opt := range opts {
		opt(&config)
	}
	if state, err := newDownloadState(config); err != nil {
		return err
	} else {
		defer state.close()
		return f(state)
	}
}
