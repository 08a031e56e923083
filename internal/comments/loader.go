package comments

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/example/market-comments/internal/platform/logging"
)

// LoadState is the reply-list state of one parent.
type LoadState int

const (
	LoadIdle LoadState = iota
	LoadLoading
	LoadLoaded
	LoadFailed
)

func (s LoadState) String() string {
	switch s {
	case LoadIdle:
		return "idle"
	case LoadLoading:
		return "loading"
	case LoadLoaded:
		return "loaded"
	case LoadFailed:
		return "failed"
	}
	return "unknown"
}

// ReplyFetcher fetches the direct replies of a comment.
type ReplyFetcher interface {
	FetchReplies(ctx context.Context, parentID string) ([]Comment, error)
}

// ReplyLoader fills reply lists on demand, at most once per parent until
// invalidated. Concurrent loads of the same parent share one request.
type ReplyLoader struct {
	store *Store
	fetch ReplyFetcher
	log   *zap.Logger
	// base bounds every fetch. Fetches are shared between callers, so no
	// single caller's context may cancel them.
	base context.Context

	group singleflight.Group

	mu      sync.Mutex
	loading map[string]int
	failed  map[string]error
}

func NewReplyLoader(base context.Context, store *Store, fetch ReplyFetcher, log *zap.Logger) *ReplyLoader {
	log = logging.OrNop(log)
	return &ReplyLoader{
		store:   store,
		fetch:   fetch,
		log:     log,
		base:    base,
		loading: make(map[string]int),
		failed:  make(map[string]error),
	}
}

// Load starts loading the replies of parentID, or joins the load already
// in flight, and returns a channel that yields the outcome once. A parent
// that is already loaded yields nil without a request.
func (l *ReplyLoader) Load(parentID string) <-chan error {
	out := make(chan error, 1)
	if l.store.IsLoaded(parentID) {
		out <- nil
		close(out)
		return out
	}

	l.mu.Lock()
	l.loading[parentID]++
	l.mu.Unlock()

	res := l.group.DoChan(parentID, func() (any, error) {
		return nil, l.run(parentID)
	})
	go func() {
		r := <-res
		l.mu.Lock()
		if l.loading[parentID]--; l.loading[parentID] <= 0 {
			delete(l.loading, parentID)
		}
		l.mu.Unlock()
		out <- r.Err
		close(out)
	}()
	return out
}

// EnsureLoaded loads the replies of parentID and waits for the outcome or
// ctx. Giving up on ctx does not cancel the shared fetch.
func (l *ReplyLoader) EnsureLoaded(ctx context.Context, parentID string) error {
	select {
	case err := <-l.Load(parentID):
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *ReplyLoader) run(parentID string) error {
	// A flight that finished between the caller's check and DoChan has
	// already filled the list.
	if l.store.IsLoaded(parentID) {
		return nil
	}
	cs, err := l.fetch.FetchReplies(l.base, parentID)
	if l.base.Err() != nil {
		return ErrViewClosed
	}
	if err != nil {
		l.mu.Lock()
		l.failed[parentID] = err
		l.mu.Unlock()
		l.log.Warn("comments: reply load failed", zap.String("parent_id", parentID), zap.Error(err))
		return err
	}

	l.mu.Lock()
	delete(l.failed, parentID)
	l.mu.Unlock()
	if !l.store.SetChildren(parentID, cs) {
		l.log.Debug("comments: dropped replies of removed parent", zap.String("parent_id", parentID))
	}
	return nil
}

func (l *ReplyLoader) IsLoading(parentID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loading[parentID] > 0
}

// DidFail reports whether the last load of parentID failed. It is cleared
// by a later successful load or by Invalidate.
func (l *ReplyLoader) DidFail(parentID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.failed[parentID]
	return ok
}

func (l *ReplyLoader) State(parentID string) LoadState {
	switch {
	case l.IsLoading(parentID):
		return LoadLoading
	case l.store.IsLoaded(parentID):
		return LoadLoaded
	case l.DidFail(parentID):
		return LoadFailed
	}
	return LoadIdle
}

// Invalidate makes the next Load of parentID fetch again.
func (l *ReplyLoader) Invalidate(parentID string) {
	l.mu.Lock()
	delete(l.failed, parentID)
	l.mu.Unlock()
	l.store.Unload(parentID)
}
