package weeb

import (
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/alanbriolat/weeb/async"
	"github.com/alanbriolat/weeb/generic"
)

// An Aggregator runs the same query against every available provider at once, merging the results.
type Aggregator struct {
	registry *ProviderRegistry
	executor *async.Executor
	log      *zap.SugaredLogger
}

func NewAggregator(registry *ProviderRegistry, executor *async.Executor) *Aggregator {
	return &Aggregator{
		registry: registry,
		executor: executor,
		log:      zap.S().Named("aggregator"),
	}
}

// SearchAssets searches every available provider. The Result finishes with the union of their assets once every
// provider has finished or failed; a failed provider contributes nothing. Cancelling the Result cancels the search on
// every provider.
func (a *Aggregator) SearchAssets(tags []string, callback func(*async.Result[generic.Set[Asset]])) *async.Result[generic.Set[Asset]] {
	tags = NormalizeTags(tags)
	return fanOut(a, "search_assets", NewAssetSet(),
		func(p Provider, done func(*async.Result[generic.Set[Asset]])) *async.Result[generic.Set[Asset]] {
			return p.SearchAssets(tags, done)
		},
		callback,
	)
}

// SearchTags is like SearchAssets, merging tag names in provider priority order.
func (a *Aggregator) SearchTags(query string, callback func(*async.Result[generic.Set[string]])) *async.Result[generic.Set[string]] {
	return fanOut(a, "search_tags", generic.NewSet[string](),
		func(p Provider, done func(*async.Result[generic.Set[string]])) *async.Result[generic.Set[string]] {
			return p.SearchTags(query, done)
		},
		callback,
	)
}

func fanOut[T any](
	a *Aggregator,
	operation string,
	initial generic.Set[T],
	start func(Provider, func(*async.Result[generic.Set[T]])) *async.Result[generic.Set[T]],
	callback func(*async.Result[generic.Set[T]]),
) *async.Result[generic.Set[T]] {
	log := a.log.With("operation", operation)
	combined := async.New(initial)

	var mu sync.Mutex
	var tasks []*async.Result[generic.Set[T]]
	// merged records the tasks whose callback has run, so their results are in combined
	merged := make(map[*async.Result[generic.Set[T]]]bool)
	var failures *multierror.Error
	dispatched := false

	combined.OnCancel(func(*async.Result[generic.Set[T]]) {
		mu.Lock()
		toCancel := append([]*async.Result[generic.Set[T]](nil), tasks...)
		mu.Unlock()
		log.Debugw("cancelled", "tasks", len(toCancel))
		for _, task := range toCancel {
			task.Cancel()
		}
	})

	// settled re-checks every dispatched task; mu must be held
	settled := func() bool {
		if !dispatched {
			return false
		}
		for _, task := range tasks {
			if !task.Status().IsTerminal() || !merged[task] {
				return false
			}
		}
		return true
	}

	finish := func() {
		if !combined.Finish() {
			return
		}
		mu.Lock()
		err := failures.ErrorOrNil()
		mu.Unlock()
		if err != nil {
			log.Warnw("some providers failed", "error", err)
		}
		log.Debugw("finished", "count", combined.Value().Count())
		async.Deliver(a.executor, combined, callback)
	}

	done := func(name string) func(*async.Result[generic.Set[T]]) {
		return func(task *async.Result[generic.Set[T]]) {
			if task.IsFinished() {
				if value := task.Value(); value != nil {
					if !combined.Update(func(v *generic.Set[T]) { (*v).Union(value) }) {
						log.Debugw("discarding late result", "provider", name)
					}
				}
			} else if task.IsFailed() {
				log.Debugw("provider failed", "provider", name, "error", task.Err())
			}
			mu.Lock()
			if task.IsFailed() {
				failures = multierror.Append(failures, fmt.Errorf("%s: %w", name, task.Err()))
			}
			merged[task] = true
			ready := settled()
			mu.Unlock()
			if ready {
				finish()
			}
		}
	}

	for _, p := range a.registry.Alive() {
		if combined.IsCancelled() {
			break
		}
		task := start(p, done(p.Name()))
		mu.Lock()
		tasks = append(tasks, task)
		mu.Unlock()
		// Cancellation may have happened before the task was recorded
		if combined.IsCancelled() {
			task.Cancel()
		}
	}

	// Tasks that completed during dispatch were not all recorded yet
	mu.Lock()
	dispatched = true
	ready := settled()
	mu.Unlock()
	if ready {
		finish()
	}
	return combined
}
