package comments

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/example/market-comments/internal/platform/logging"
)

// TopLevelFetcher fetches the top-level comments of a product.
type TopLevelFetcher interface {
	FetchTopLevel(ctx context.Context, productID string, f Filter) ([]Comment, error)
}

// FilterController owns the recent/relevant choice for one product and
// refetches the top-level list when it changes. Loaded reply subtrees of
// comments present under both orderings survive a switch.
type FilterController struct {
	store     *Store
	fetch     TopLevelFetcher
	productID string
	log       *zap.Logger
	base      context.Context

	mu      sync.Mutex
	current Filter
	// applied is the filter of the list in the store.
	applied Filter
	// seq identifies the latest request; older responses are dropped.
	seq      uint64
	inFlight int
}

func NewFilterController(base context.Context, store *Store, fetch TopLevelFetcher, productID string, log *zap.Logger) *FilterController {
	log = logging.OrNop(log)
	return &FilterController{
		store:     store,
		fetch:     fetch,
		productID: productID,
		log:       log,
		base:      base,
		current:   FilterRecent,
		applied:   FilterRecent,
	}
}

func (fc *FilterController) Filter() Filter {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.current
}

// Loading reports whether a top-level fetch is in flight.
func (fc *FilterController) Loading() bool {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.inFlight > 0
}

// SetFilter switches to f and refetches. Selecting the current filter is
// a no-op. If the latest fetch fails the filter falls back to the one
// the displayed list was fetched with, so the same switch can be retried.
func (fc *FilterController) SetFilter(ctx context.Context, f Filter) error {
	fc.mu.Lock()
	if f == fc.current {
		fc.mu.Unlock()
		return nil
	}
	fc.current = f
	fc.mu.Unlock()
	return fc.load(ctx, f)
}

// Refresh refetches the top-level list under the current filter.
func (fc *FilterController) Refresh(ctx context.Context) error {
	return fc.load(ctx, fc.Filter())
}

func (fc *FilterController) load(ctx context.Context, f Filter) error {
	fc.mu.Lock()
	fc.seq++
	seq := fc.seq
	fc.inFlight++
	fc.mu.Unlock()

	cs, err := fc.fetch.FetchTopLevel(ctx, fc.productID, f)

	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.inFlight--
	if fc.base.Err() != nil {
		return ErrViewClosed
	}
	if seq != fc.seq {
		fc.log.Debug("comments: dropped superseded top-level response",
			zap.String("product_id", fc.productID), zap.Stringer("filter", f))
		return nil
	}
	if err != nil {
		fc.current = fc.applied
		return err
	}
	fc.store.ReplaceTopLevel(cs)
	fc.applied = f
	return nil
}
