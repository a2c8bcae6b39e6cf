package weeb

import (
	"path"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/alanbriolat/weeb/util"
)

const DefaultTargetFileTemplate = "{{.ProviderName}} - {{.Asset.ID}} - {{.Asset.Hash}}{{.Ext}}"

type DownloadConfig interface {
	GetTargetPath(providerName string, asset Asset, variant Variant) (string, error)
}

type downloadConfig struct {
	TargetDir          string
	TargetFileTemplate *template.Template
}

func NewDownloadConfig(targetDir string) DownloadConfig {
	if targetDir == "" {
		targetDir = "."
	}
	return &downloadConfig{
		TargetDir:          targetDir,
		TargetFileTemplate: template.Must(template.New("target_file").Parse(DefaultTargetFileTemplate)),
	}
}

func (c *downloadConfig) GetTargetPath(providerName string, asset Asset, variant Variant) (string, error) {
	args := targetFileTemplateArgs{
		ProviderName: providerName,
		Asset:        asset,
		Variant:      variant,
	}
	if filename, err := util.FilenameFromURLString(variant.URL); err == nil {
		args.Ext = path.Ext(filename)
	}
	builder := strings.Builder{}
	if err := c.TargetFileTemplate.Execute(&builder, &args); err != nil {
		return "", err
	} else {
		return filepath.Join(c.TargetDir, util.SanitizeFilename(builder.String())), nil
	}
}

type targetFileTemplateArgs struct {
	ProviderName string
	Asset        Asset
	Variant      Variant
	Ext          string
}
