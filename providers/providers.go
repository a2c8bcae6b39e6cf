// Package providers selects the providers used by the application.
package providers

import (
	"github.com/alanbriolat/weeb"
	"github.com/alanbriolat/weeb/providers/booru"
	"github.com/alanbriolat/weeb/providers/danbooru"
	"github.com/alanbriolat/weeb/providers/gelbooru"
)

// A Factory creates a provider from shared configuration.
type Factory struct {
	Name     string
	Priority int16
	New      func(config booru.Config) weeb.Provider
}

var factories = []Factory{
	{
		Name:     danbooru.Name,
		Priority: weeb.PriorityDefault,
		New:      func(config booru.Config) weeb.Provider { return danbooru.New(config) },
	},
	{
		Name:     gelbooru.Name,
		Priority: weeb.PriorityDefault + 1,
		New:      func(config booru.Config) weeb.Provider { return gelbooru.New(config) },
	},
}

// Factories lists every known provider, in default priority order.
func Factories() []Factory {
	return append([]Factory(nil), factories...)
}

// Default creates every known provider and adds it to registry. credentials gives the credentials configured for a
// provider name.
func Default(registry *weeb.ProviderRegistry, config booru.Config, credentials func(name string) booru.Credentials) error {
	for _, f := range factories {
		c := config
		if credentials != nil {
			c.Credentials = credentials(f.Name)
		}
		if err := registry.Add(f.New(c), f.Priority); err != nil {
			return err
		}
	}
	return nil
}
