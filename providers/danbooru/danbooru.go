package danbooru

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/alanbriolat/weeb"
	"github.com/alanbriolat/weeb/async"
	"github.com/alanbriolat/weeb/downloader"
	"github.com/alanbriolat/weeb/generic"
	"github.com/alanbriolat/weeb/providers/booru"
)

const (
	Name         = "Danbooru"
	BaseURL      = "https://danbooru.donmai.us"
	DebugBaseURL = "https://testbooru.donmai.us"

	SearchLimit = 30
	TagLimit    = 1000
)

type Provider struct {
	*booru.Base
}

var _ weeb.Provider = (*Provider)(nil)

func New(config booru.Config) *Provider {
	baseURL := config.BaseURL
	if baseURL == "" {
		if config.Debug {
			baseURL = DebugBaseURL
		} else {
			baseURL = BaseURL
		}
	}
	credentials := url.Values{}
	if config.Credentials.IsSet() {
		credentials.Set("login", config.Credentials.Login)
		credentials.Set("api_key", config.Credentials.APIKey)
	}
	return &Provider{Base: booru.NewBase(Name, baseURL, config, credentials)}
}

func (p *Provider) TestAvailability(callback func(*async.Result[generic.Void])) *async.Result[generic.Void] {
	return p.Probe("/posts.json", url.Values{"limit": {"1"}}, callback)
}

func (p *Provider) SearchAssets(tags []string, callback func(*async.Result[generic.Set[weeb.Asset]])) *async.Result[generic.Set[weeb.Asset]] {
	params := url.Values{
		"tags":  {strings.Join(tags, " ")},
		"limit": {strconv.Itoa(SearchLimit)},
	}
	return booru.Query(p.Base, "/posts.json", params, p.parsePosts, callback)
}

func (p *Provider) SearchTags(query string, callback func(*async.Result[generic.Set[string]])) *async.Result[generic.Set[string]] {
	params := url.Values{
		"search[name_or_alias_matches]": {query + "*"},
		"search[order]":                 {"count"},
		"search[hide_empty]":            {"true"},
		"limit":                         {strconv.Itoa(TagLimit)},
	}
	return booru.Query(p.Base, "/tags.json", params, parseTags, callback)
}

type post struct {
	ID         *int64      `json:"id"`
	TagString  *string     `json:"tag_string"`
	MediaAsset *mediaAsset `json:"media_asset"`
}

type mediaAsset struct {
	ID       *int64    `json:"id"`
	MD5      *string   `json:"md5"`
	Variants []variant `json:"variants"`
}

type variant struct {
	Type   *string `json:"type"`
	URL    *string `json:"url"`
	Width  *int    `json:"width"`
	Height *int    `json:"height"`
}

type tag struct {
	Name *string `json:"name"`
}

func (p *Provider) parsePosts(resp *downloader.Response) (generic.Set[weeb.Asset], error) {
	var items []json.RawMessage
	if err := resp.JSON(&items); err != nil {
		return nil, err
	}
	assets := weeb.NewAssetSet()
	for i, item := range items {
		var entry post
		if err := json.Unmarshal(item, &entry); err != nil {
			p.Log.Debugw("dropping malformed post", "index", i, "error", err)
			continue
		}
		if asset, ok := parsePost(entry); ok {
			asset.Provider = Name
			assets.Add(asset)
		} else {
			p.Log.Debugw("dropping post without renditions", "index", i)
		}
	}
	return assets, nil
}

// parsePost converts a post to an Asset, or returns false if it has no media asset or no usable renditions.
func parsePost(p post) (weeb.Asset, bool) {
	media := p.MediaAsset
	if media == nil || media.ID == nil {
		return weeb.Asset{}, false
	}
	var variants []weeb.Variant
	sample := generic.None[weeb.Variant]()
	for _, v := range media.Variants {
		rawURL, ok := generic.FromPtr(v.URL).Get()
		if !ok || rawURL == "" {
			continue
		}
		variant := weeb.Variant{
			URL:    rawURL,
			Width:  generic.FromPtr(v.Width).UnwrapOr(0),
			Height: generic.FromPtr(v.Height).UnwrapOr(0),
		}
		variants = append(variants, variant)
		if generic.FromPtr(v.Type).UnwrapOr("") == "sample" {
			sample = generic.Some(variant)
		}
	}
	hash := generic.FromPtr(media.MD5).UnwrapOr("")
	asset, err := weeb.NewAsset(*media.ID, hash, variants, sample)
	if err != nil {
		return weeb.Asset{}, false
	}
	asset.Tags = strings.Fields(generic.FromPtr(p.TagString).UnwrapOr(""))
	return asset, true
}

func parseTags(resp *downloader.Response) (generic.Set[string], error) {
	var tags []tag
	if err := resp.JSON(&tags); err != nil {
		return nil, err
	}
	names := generic.NewSet[string]()
	for _, t := range tags {
		if name, ok := generic.NonZero(generic.FromPtr(t.Name).UnwrapOr("")).Get(); ok {
			names.Add(name)
		}
	}
	return names, nil
}
