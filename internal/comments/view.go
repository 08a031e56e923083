package comments

import (
	"context"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/example/market-comments/internal/marketapi"
	"github.com/example/market-comments/internal/platform/analytics"
	"github.com/example/market-comments/internal/platform/logging"
)

// Identity tells the view who is logged in. *auth.Session satisfies it.
type Identity interface {
	Handle() string
}

type Options struct {
	ProductID string
	API       marketapi.CommentAPI
	Identity  Identity
	// Events is optional.
	Events *analytics.Publisher
	Logger *zap.Logger
}

// View is the comment section of one product, from mount to unmount. It
// owns one Store, which Close shuts for writes: responses that arrive
// after Close are discarded and reported as ErrViewClosed.
type View struct {
	productID string
	identity  Identity
	log       *zap.Logger

	store   *Store
	gateway *Gateway
	loader  *ReplyLoader
	filter  *FilterController

	ctx    context.Context
	cancel context.CancelFunc
	active atomic.Bool
}

func NewView(opts Options) *View {
	log := logging.OrNop(opts.Logger)
	log = log.With(zap.String("product_id", opts.ProductID))

	ctx, cancel := context.WithCancel(context.Background())
	store := NewStore()
	gw := NewGateway(opts.API, opts.Events, log)
	v := &View{
		productID: opts.ProductID,
		identity:  opts.Identity,
		log:       log,
		store:     store,
		gateway:   gw,
		loader:    NewReplyLoader(ctx, store, gw, log),
		filter:    NewFilterController(ctx, store, gw, opts.ProductID, log),
		ctx:       ctx,
		cancel:    cancel,
	}
	v.active.Store(true)
	return v
}

// Open performs the initial top-level fetch.
func (v *View) Open(ctx context.Context) error {
	if !v.active.Load() {
		return ErrViewClosed
	}
	v.log.Debug("comments: view opened")
	return v.filter.Refresh(ctx)
}

// Close unmounts the view. Pending reply loads are cancelled, and every
// other in-flight response is dropped when it arrives.
func (v *View) Close() {
	if !v.active.CompareAndSwap(true, false) {
		return
	}
	v.cancel()
	v.store.Close()
	v.log.Debug("comments: view closed")
}

func (v *View) ProductID() string { return v.productID }

func (v *View) Active() bool { return v.active.Load() }

func (v *View) Snapshot() Snapshot { return v.store.Snapshot() }

// Subscribe notifies after each change to the tree.
func (v *View) Subscribe() (<-chan struct{}, func()) { return v.store.Subscribe() }

func (v *View) Filter() Filter { return v.filter.Filter() }

func (v *View) Loading() bool { return v.filter.Loading() }

func (v *View) SetFilter(ctx context.Context, f Filter) error {
	if !v.active.Load() {
		return ErrViewClosed
	}
	return v.filter.SetFilter(ctx, f)
}

func (v *View) Refresh(ctx context.Context) error {
	if !v.active.Load() {
		return ErrViewClosed
	}
	return v.filter.Refresh(ctx)
}

// ExpandReplies loads the replies of id unless they are already loaded.
// After a failure it retries.
func (v *View) ExpandReplies(ctx context.Context, id string) error {
	if !v.active.Load() {
		return ErrViewClosed
	}
	return v.loader.EnsureLoaded(ctx, id)
}

// ReloadReplies drops the cached replies of id and fetches them again.
func (v *View) ReloadReplies(ctx context.Context, id string) error {
	if !v.active.Load() {
		return ErrViewClosed
	}
	v.loader.Invalidate(id)
	return v.loader.EnsureLoaded(ctx, id)
}

func (v *View) ReplyState(id string) LoadState { return v.loader.State(id) }

// Pending reports whether a mutation for action on target is in flight.
func (v *View) Pending(action Action, target string) bool {
	return v.gateway.Pending(action, target)
}

// Submit posts a new top-level comment and prepends it.
func (v *View) Submit(ctx context.Context, body string) (Comment, error) {
	if !v.active.Load() {
		return Comment{}, ErrViewClosed
	}
	c, err := v.gateway.CreateTopLevel(ctx, v.productID, body)
	if err != nil {
		return Comment{}, err
	}
	v.store.InsertTopLevel(c)
	if !v.active.Load() {
		return c, ErrViewClosed
	}
	return c, nil
}

// Reply posts a reply to parentID and appends it. If the parent was
// removed meanwhile the reply is returned but not shown.
func (v *View) Reply(ctx context.Context, parentID, body string) (Comment, error) {
	if !v.active.Load() {
		return Comment{}, ErrViewClosed
	}
	c, err := v.gateway.CreateReply(ctx, parentID, body)
	if err != nil {
		return Comment{}, err
	}
	shown := v.store.InsertChild(parentID, c)
	if !v.active.Load() {
		return c, ErrViewClosed
	}
	if !shown {
		v.log.Debug("comments: reply to removed parent not shown",
			zap.String("parent_id", parentID), zap.String("comment_id", c.ID))
	}
	return c, nil
}

func (v *View) Edit(ctx context.Context, id, body string) (Comment, error) {
	if !v.active.Load() {
		return Comment{}, ErrViewClosed
	}
	c, err := v.gateway.Edit(ctx, id, body)
	if err != nil {
		return Comment{}, err
	}
	v.store.UpdateBody(id, c.Body, c.UpdatedAt)
	if !v.active.Load() {
		return c, ErrViewClosed
	}
	if cur, ok := v.store.Get(id); ok {
		c = cur
	}
	return c, nil
}

// Delete removes id and its replies once the server confirms.
func (v *View) Delete(ctx context.Context, id string) error {
	if !v.active.Load() {
		return ErrViewClosed
	}
	if err := v.gateway.Delete(ctx, id); err != nil {
		return err
	}
	v.store.Remove(id)
	if !v.active.Load() {
		return ErrViewClosed
	}
	return nil
}

// CanModify reports whether the logged-in user wrote c, for showing the
// edit and delete controls. The server still decides.
func (v *View) CanModify(c Comment) bool {
	if v.identity == nil {
		return false
	}
	h := strings.TrimSpace(v.identity.Handle())
	return h != "" && strings.EqualFold(h, c.AuthorHandle)
}
