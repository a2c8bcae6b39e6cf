package weeb

import (
	"path/filepath"
	"testing"

	assert_ "github.com/stretchr/testify/assert"
)

func TestDownloadConfig_GetTargetPath(t *testing.T) {
	assert := assert_.New(t)
	config := NewDownloadConfig("/data")

	asset := testAsset(42, "abc")
	path, err := config.GetTargetPath("Danbooru", asset, Variant{URL: "https://cdn.example.com/original/abc.png?download=1"})
	assert.NoError(err)
	assert.Equal(filepath.Join("/data", "Danbooru - 42 - abc.png"), path)

	// No extension available from the URL
	path, err = config.GetTargetPath("Danbooru", asset, Variant{URL: "https://cdn.example.com/"})
	assert.NoError(err)
	assert.Equal(filepath.Join("/data", "Danbooru - 42 - abc"), path)

	// Unsafe characters can't escape the target directory
	path, err = config.GetTargetPath("a/../b", asset, asset.Original())
	assert.NoError(err)
	assert.Equal("/data", filepath.Dir(path))
}

func TestDownloadConfig_DefaultDir(t *testing.T) {
	assert := assert_.New(t)
	path, err := NewDownloadConfig("").GetTargetPath("Gelbooru", testAsset(1, "f00"), Variant{URL: "https://x/f00.jpg"})
	assert.NoError(err)
	assert.Equal("Gelbooru - 1 - f00.jpg", path)
}
