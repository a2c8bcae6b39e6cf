package weeb

import (
	"sync"

	"github.com/alanbriolat/weeb/async"
	"github.com/alanbriolat/weeb/generic"
)

// fakeProvider answers searches from memory.
type fakeProvider struct {
	name     string
	executor *async.Executor
	assets   []Asset
	tags     []string
	err      error
	probeErr error
	// release, if not nil, blocks searches until closed
	release chan struct{}

	mu       sync.Mutex
	alive    generic.Option[bool]
	searches []*async.Result[generic.Set[Asset]]
}

func newFakeProvider(name string, alive bool, assets ...Asset) *fakeProvider {
	return &fakeProvider{
		name:     name,
		executor: async.NewExecutor(async.Inline),
		assets:   assets,
		alive:    generic.Some(alive),
	}
}

func (p *fakeProvider) Name() string {
	return p.name
}

func (p *fakeProvider) BaseURL() string {
	return "https://" + p.name + ".example.com"
}

func (p *fakeProvider) Alive() generic.Option[bool] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alive
}

func (p *fakeProvider) TestAvailability(callback func(*async.Result[generic.Void])) *async.Result[generic.Void] {
	return async.Go(p.executor, func() (generic.Void, error) {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.alive = generic.Some(p.probeErr == nil)
		return generic.NewVoid(), p.probeErr
	}, callback)
}

func (p *fakeProvider) SearchAssets(tags []string, callback func(*async.Result[generic.Set[Asset]])) *async.Result[generic.Set[Asset]] {
	r := async.Go(p.executor, func() (generic.Set[Asset], error) {
		if p.release != nil {
			<-p.release
		}
		if p.err != nil {
			return nil, p.err
		}
		return NewAssetSet(p.assets...), nil
	}, callback)
	p.mu.Lock()
	p.searches = append(p.searches, r)
	p.mu.Unlock()
	return r
}

func (p *fakeProvider) SearchTags(query string, callback func(*async.Result[generic.Set[string]])) *async.Result[generic.Set[string]] {
	return async.Go(p.executor, func() (generic.Set[string], error) {
		if p.err != nil {
			return nil, p.err
		}
		return generic.NewSet(p.tags...), nil
	}, callback)
}

func (p *fakeProvider) searchResults() []*async.Result[generic.Set[Asset]] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*async.Result[generic.Set[Asset]](nil), p.searches...)
}

func testAsset(id int64, hash string) Asset {
	return Asset{
		ID:       id,
		Hash:     hash,
		Variants: []Variant{{Width: 1, Height: 1, URL: "https://cdn.example.com/" + hash + ".jpg"}},
	}
}
