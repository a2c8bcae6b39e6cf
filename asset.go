package weeb

import (
	"errors"
	"strings"

	"github.com/alanbriolat/weeb/generic"
)

var (
	ErrNoVariants = errors.New("asset has no variants")
)

// A Variant is one rendition of an asset.
type Variant struct {
	Width  int
	Height int
	URL    string
}

// AssetKey identifies an asset: two assets are the same if both ID and Hash match.
type AssetKey struct {
	ID   int64
	Hash string
}

// An Asset is an image found by a provider, with renditions ordered from smallest to largest.
type Asset struct {
	ID       int64
	Hash     string
	Provider string
	Tags     []string
	Variants []Variant
	// Sample is a mid-sized rendition, if the provider has one.
	Sample generic.Option[Variant]
}

// NewAsset creates an Asset, failing with ErrNoVariants if there are no variants.
func NewAsset(id int64, hash string, variants []Variant, sample generic.Option[Variant]) (Asset, error) {
	if len(variants) == 0 {
		return Asset{}, ErrNoVariants
	}
	return Asset{
		ID:       id,
		Hash:     hash,
		Variants: variants,
		Sample:   sample,
	}, nil
}

func (a Asset) Key() AssetKey {
	return AssetKey{ID: a.ID, Hash: a.Hash}
}

// Preview is the smallest rendition.
func (a Asset) Preview() Variant {
	return a.Variants[0]
}

// Original is the largest rendition.
func (a Asset) Original() Variant {
	return a.Variants[len(a.Variants)-1]
}

// NewAssetSet creates an insertion-ordered set of assets, deduplicated by AssetKey.
func NewAssetSet(assets ...Asset) generic.Set[Asset] {
	return generic.NewKeyedSet(Asset.Key, assets...)
}

// NormalizeTags trims and lower-cases tags, dropping empty and duplicate tags but otherwise preserving order.
func NormalizeTags(tags []string) []string {
	seen := generic.NewSet[string]()
	normalized := make([]string, 0, len(tags))
	for _, tag := range tags {
		for _, field := range strings.Fields(strings.ToLower(tag)) {
			if seen.Add(field) {
				normalized = append(normalized, field)
			}
		}
	}
	return normalized
}
