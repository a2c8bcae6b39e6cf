package gelbooru

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
	Name    = "Gelbooru"
	BaseURL = "https://gelbooru.com"

	SearchLimit = 30
	TagLimit    = 1000

	apiPath = "/index.php"
)

type Provider struct {
	*booru.Base
}

var _ weeb.Provider = (*Provider)(nil)

// New creates a Gelbooru provider. Credentials.Login is the numeric user ID.
func New(config booru.Config) *Provider {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = BaseURL
	}
	credentials := url.Values{}
	if config.Credentials.IsSet() {
		credentials.Set("user_id", config.Credentials.Login)
		credentials.Set("api_key", config.Credentials.APIKey)
	}
	return &Provider{Base: booru.NewBase(Name, baseURL, config, credentials)}
}

func dapi(s string, params url.Values) url.Values {
	params.Set("page", "dapi")
	params.Set("s", s)
	params.Set("q", "index")
	params.Set("json", "1")
	return params
}

func (p *Provider) TestAvailability(callback func(*async.Result[generic.Void])) *async.Result[generic.Void] {
	return p.Probe(apiPath, dapi("post", url.Values{"limit": {"1"}}), callback)
}

func (p *Provider) SearchAssets(tags []string, callback func(*async.Result[generic.Set[weeb.Asset]])) *async.Result[generic.Set[weeb.Asset]] {
	params := dapi("post", url.Values{
		"tags":  {strings.Join(tags, " ")},
		"limit": {strconv.Itoa(SearchLimit)},
	})
	return booru.Query(p.Base, apiPath, params, p.parsePosts, callback)
}

func (p *Provider) SearchTags(query string, callback func(*async.Result[generic.Set[string]])) *async.Result[generic.Set[string]] {
	params := dapi("tag", url.Values{
		"name_pattern": {query + "%"},
		"orderby":      {"count"},
		"limit":        {strconv.Itoa(TagLimit)},
	})
	return booru.Query(p.Base, apiPath, params, parseTags, callback)
}

type postList struct {
	Posts []json.RawMessage `json:"post"`
}

type post struct {
	ID            *int64  `json:"id"`
	MD5           *string `json:"md5"`
	Tags          *string `json:"tags"`
	FileURL       *string `json:"file_url"`
	Width         *int    `json:"width"`
	Height        *int    `json:"height"`
	PreviewURL    *string `json:"preview_url"`
	PreviewWidth  *int    `json:"preview_width"`
	PreviewHeight *int    `json:"preview_height"`
	SampleURL     *string `json:"sample_url"`
	SampleWidth   *int    `json:"sample_width"`
	SampleHeight  *int    `json:"sample_height"`
}

type tagList struct {
	Tags []struct {
		Name *string `json:"name"`
	} `json:"tag"`
}

func (p *Provider) parsePosts(resp *downloader.Response) (generic.Set[weeb.Asset], error) {
	var list postList
	if err := resp.JSON(&list); err != nil {
		return nil, err
	}
	assets := weeb.NewAssetSet()
	for i, item := range list.Posts {
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

func variant(u *string, width *int, height *int) (weeb.Variant, bool) {
	rawURL, ok := generic.NonZero(generic.FromPtr(u).UnwrapOr("")).Get()
	return weeb.Variant{
		URL:    rawURL,
		Width:  generic.FromPtr(width).UnwrapOr(0),
		Height: generic.FromPtr(height).UnwrapOr(0),
	}, ok
}

// parsePost converts a post to an Asset, ordering renditions preview, sample, original.
func parsePost(p post) (weeb.Asset, bool) {
	if p.ID == nil {
		return weeb.Asset{}, false
	}
	var variants []weeb.Variant
	sample := generic.None[weeb.Variant]()
	if v, ok := variant(p.PreviewURL, p.PreviewWidth, p.PreviewHeight); ok {
		variants = append(variants, v)
	}
	if v, ok := variant(p.SampleURL, p.SampleWidth, p.SampleHeight); ok {
		variants = append(variants, v)
		sample = generic.Some(v)
	}
	if v, ok := variant(p.FileURL, p.Width, p.Height); ok {
		variants = append(variants, v)
	}
	asset, err := weeb.NewAsset(*p.ID, generic.FromPtr(p.MD5).UnwrapOr(""), variants, sample)
	if err != nil {
		return weeb.Asset{}, false
	}
	asset.Tags = strings.Fields(generic.FromPtr(p.Tags).UnwrapOr(""))
	return asset, true
}

func parseTags(resp *downloader.Response) (generic.Set[string], error) {
	var list tagList
	if err := resp.JSON(&list); err != nil {
		return nil, err
	}
	names := generic.NewSet[string]()
	for _, t := range list.Tags {
		if name, ok := generic.NonZero(generic.FromPtr(t.Name).UnwrapOr("")).Get(); ok {
			names.Add(name)
		}
	}
	return names, nil
}
