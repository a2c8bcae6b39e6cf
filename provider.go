package weeb

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/alanbriolat/weeb/async"
	"github.com/alanbriolat/weeb/generic"
	"github.com/alanbriolat/weeb/internal/pubsub"
)

var (
	ErrDuplicateProvider = errors.New("duplicate provider name")
	ErrInvalidProvider   = errors.New("invalid provider")
	ErrUnknownProvider   = errors.New("unknown provider")
)

var (
	PriorityHighest int16 = math.MinInt16
	PriorityDefault int16 = 0
	PriorityLowest  int16 = math.MaxInt16
)

// A Provider is a remote source of assets and tags. Every operation returns a running Result immediately, and calls
// callback with it through the executor's Dispatcher once it is finished or failed (but not if it was cancelled).
type Provider interface {
	Name() string
	BaseURL() string
	// Alive is the result of the last TestAvailability, or None if there hasn't been one yet.
	Alive() generic.Option[bool]
	// TestAvailability probes the provider, updating Alive. The Result fails if the provider is not available.
	TestAvailability(callback func(*async.Result[generic.Void])) *async.Result[generic.Void]
	SearchAssets(tags []string, callback func(*async.Result[generic.Set[Asset]])) *async.Result[generic.Set[Asset]]
	// SearchTags finds tags starting with query, most used first.
	SearchTags(query string, callback func(*async.Result[generic.Set[string]])) *async.Result[generic.Set[string]]
}

// LivenessChanged is published by a ProviderRegistry after each availability probe.
type LivenessChanged struct {
	Provider string
	Alive    bool
	Err      error
}

type registration struct {
	provider Provider
	priority int16
}

// A ProviderRegistry is the set of providers in use, in priority order.
type ProviderRegistry struct {
	mu          sync.RWMutex
	providers   []*registration
	providerMap map[string]*registration
	executor    *async.Executor
	events      pubsub.Publisher[LivenessChanged]
	log         *zap.SugaredLogger
}

func NewProviderRegistry(executor *async.Executor) *ProviderRegistry {
	return &ProviderRegistry{
		providerMap: make(map[string]*registration),
		executor:    executor,
		events:      pubsub.NewPublisher[LivenessChanged](),
		log:         zap.S().Named("providers"),
	}
}

// Add registers a Provider, whose name must be non-empty and unique within the ProviderRegistry. Lower (including
// negative) priority comes first.
func (r *ProviderRegistry) Add(p Provider, priority int16) error {
	if p == nil || p.Name() == "" {
		return ErrInvalidProvider
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providerMap[p.Name()]; ok {
		return ErrDuplicateProvider
	}
	reg := &registration{provider: p, priority: priority}
	r.providerMap[p.Name()] = reg
	r.providers = append(r.providers, reg)
	r.sortByPriority()
	return nil
}

// MustAdd wraps Add but panics if there is an error.
func (r *ProviderRegistry) MustAdd(p Provider, priority int16) {
	generic.Unwrap_(r.Add(p, priority))
}

func (r *ProviderRegistry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if reg, ok := r.providerMap[name]; ok {
		return reg.provider, nil
	} else {
		return nil, ErrUnknownProvider
	}
}

// GetPriority gets the priority of the named Provider. If ErrUnknownProvider is returned, the returned priority is the
// default priority.
func (r *ProviderRegistry) GetPriority(name string) (int16, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if reg, ok := r.providerMap[name]; ok {
		return reg.priority, nil
	} else {
		return PriorityDefault, ErrUnknownProvider
	}
}

// SetPriority adjusts the priority of a named Provider.
func (r *ProviderRegistry) SetPriority(name string, priority int16) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if reg, ok := r.providerMap[name]; ok {
		reg.priority = priority
		r.sortByPriority()
		return nil
	} else {
		return ErrUnknownProvider
	}
}

// List returns the names of registered providers in priority order.
func (r *ProviderRegistry) List() []string {
	providers := r.Providers()
	names := make([]string, 0, len(providers))
	for _, p := range providers {
		names = append(names, p.Name())
	}
	return names
}

// Providers returns registered providers in priority order.
func (r *ProviderRegistry) Providers() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	providers := make([]Provider, 0, len(r.providers))
	for _, reg := range r.providers {
		providers = append(providers, reg.provider)
	}
	return providers
}

// Alive returns the providers known to be available, in priority order. Providers that have not been probed yet are
// not included.
func (r *ProviderRegistry) Alive() []Provider {
	var alive []Provider
	for _, p := range r.Providers() {
		if p.Alive().UnwrapOr(false) {
			alive = append(alive, p)
		}
	}
	return alive
}

// Subscribe receives a LivenessChanged for every completed probe. Close the receiver to unsubscribe.
func (r *ProviderRegistry) Subscribe() (pubsub.ReceiverCloser[LivenessChanged], error) {
	return r.events.SubscribeBufSize(len(r.Providers()) + 1)
}

// TestAll probes every provider concurrently. The Result finishes with the names of available providers once every
// probe has completed.
func (r *ProviderRegistry) TestAll(callback func(*async.Result[[]string])) *async.Result[[]string] {
	providers := r.Providers()
	combined := async.New[[]string](nil)
	if len(providers) == 0 {
		combined.Finish()
		async.Deliver(r.executor, combined, callback)
		return combined
	}

	var mu sync.Mutex
	var result *multierror.Error
	remaining := len(providers)
	for _, p := range providers {
		done := func(probe *async.Result[generic.Void]) {
			alive := probe.IsFinished()
			err := probe.Err()
			if probe.IsCancelled() {
				err = async.ErrCancelled
			}
			r.events.Send(LivenessChanged{Provider: p.Name(), Alive: alive, Err: err})

			mu.Lock()
			defer mu.Unlock()
			if alive {
				combined.Update(func(names *[]string) { *names = append(*names, p.Name()) })
			} else {
				result = multierror.Append(result, multierror.Prefix(err, fmt.Sprintf("[%v]", p.Name())))
			}
			remaining--
			if remaining > 0 {
				return
			}
			if err := result.ErrorOrNil(); err != nil {
				r.log.Warnw("some providers are unavailable", "error", err)
			}
			if combined.Finish() {
				async.Deliver(r.executor, combined, callback)
			}
		}
		probe := p.TestAvailability(nil)
		probe.OnFinish(done)
		probe.OnFail(done)
		probe.OnCancel(done)
	}
	return combined
}

// Close stops publishing LivenessChanged events.
func (r *ProviderRegistry) Close() {
	r.events.Close()
}

func (r *ProviderRegistry) sortByPriority() {
	sort.SliceStable(r.providers, func(i, j int) bool {
		return r.providers[i].priority < r.providers[j].priority
	})
}
