package comments

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// stubTopLevel answers each filter with a fixed list. Setting hold[f]
// parks fetches for f until the channel is closed. errs[f] fails only
// fetches for f; err fails all of them.
type stubTopLevel struct {
	mu      sync.Mutex
	calls   map[Filter]int
	lists   map[Filter][]Comment
	hold    map[Filter]chan struct{}
	errs    map[Filter]error
	err     error
	started chan Filter
}

func newStubTopLevel() *stubTopLevel {
	return &stubTopLevel{
		calls:   make(map[Filter]int),
		lists:   make(map[Filter][]Comment),
		hold:    make(map[Filter]chan struct{}),
		errs:    make(map[Filter]error),
		started: make(chan Filter, 16),
	}
}

func (s *stubTopLevel) FetchTopLevel(ctx context.Context, productID string, f Filter) ([]Comment, error) {
	s.mu.Lock()
	s.calls[f]++
	gate, out, err := s.hold[f], s.lists[f], s.err
	if e := s.errs[f]; e != nil {
		err = e
	}
	s.mu.Unlock()
	s.started <- f
	if gate != nil {
		<-gate
	}
	return out, err
}

func (s *stubTopLevel) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

func TestFilterController_InitialState(t *testing.T) {
	fc := NewFilterController(context.Background(), NewStore(), newStubTopLevel(), "p1", nil)
	if fc.Filter() != FilterRecent {
		t.Fatalf("initial filter = %v", fc.Filter())
	}
}

func TestFilterController_SameFilterTwiceFetchesOnce(t *testing.T) {
	fetch := newStubTopLevel()
	fetch.lists[FilterRelevant] = []Comment{top("1")}
	fc := NewFilterController(context.Background(), NewStore(), fetch, "p1", nil)
	ctx := context.Background()

	if err := fc.SetFilter(ctx, FilterRelevant); err != nil {
		t.Fatal(err)
	}
	if err := fc.SetFilter(ctx, FilterRelevant); err != nil {
		t.Fatal(err)
	}
	if got := fetch.total(); got != 1 {
		t.Fatalf("fetches = %d, want 1", got)
	}
}

func TestFilterController_SecondCallWhileFirstInFlight(t *testing.T) {
	fetch := newStubTopLevel()
	gate := make(chan struct{})
	fetch.hold[FilterRelevant] = gate
	fc := NewFilterController(context.Background(), NewStore(), fetch, "p1", nil)
	ctx := context.Background()

	errc := make(chan error, 1)
	go func() { errc <- fc.SetFilter(ctx, FilterRelevant) }()
	<-fetch.started
	if err := fc.SetFilter(ctx, FilterRelevant); err != nil {
		t.Fatal(err)
	}
	close(gate)
	if err := <-errc; err != nil {
		t.Fatal(err)
	}
	if got := fetch.total(); got != 1 {
		t.Fatalf("fetches = %d, want 1", got)
	}
}

func TestFilterController_SwitchKeepsLoadedReplies(t *testing.T) {
	fetch := newStubTopLevel()
	fetch.lists[FilterRecent] = []Comment{top("B"), top("A")}
	fetch.lists[FilterRelevant] = []Comment{top("A"), top("B")}
	store := NewStore()
	replies := newStubReplies()
	replies.replies["A"] = []Comment{reply("R1", "A")}
	loader := NewReplyLoader(context.Background(), store, replies, nil)
	fc := NewFilterController(context.Background(), store, fetch, "p1", nil)
	ctx := context.Background()

	if err := fc.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	if err := loader.EnsureLoaded(ctx, "A"); err != nil {
		t.Fatal(err)
	}
	if err := fc.SetFilter(ctx, FilterRelevant); err != nil {
		t.Fatal(err)
	}
	if got := ids(store.Snapshot().TopLevel()); !cmp.Equal(got, []string{"A", "B"}) {
		t.Fatalf("relevant order = %v", got)
	}
	if err := fc.SetFilter(ctx, FilterRecent); err != nil {
		t.Fatal(err)
	}
	if err := loader.EnsureLoaded(ctx, "A"); err != nil {
		t.Fatal(err)
	}

	kids, loaded := store.Snapshot().Children("A")
	if !loaded || !cmp.Equal(ids(kids), []string{"R1"}) {
		t.Fatalf("A children = %v loaded=%v", ids(kids), loaded)
	}
	if got := replies.Calls("A"); got != 1 {
		t.Fatalf("reply fetches = %d, want 1", got)
	}
}

func TestFilterController_LatestRequestWins(t *testing.T) {
	fetch := newStubTopLevel()
	fetch.lists[FilterRecent] = []Comment{top("new"), top("old")}
	fetch.lists[FilterRelevant] = []Comment{top("old"), top("new")}
	slow := make(chan struct{})
	fetch.hold[FilterRelevant] = slow
	store := NewStore()
	fc := NewFilterController(context.Background(), store, fetch, "p1", nil)
	ctx := context.Background()

	errc := make(chan error, 1)
	go func() { errc <- fc.SetFilter(ctx, FilterRelevant) }()
	<-fetch.started
	if err := fc.SetFilter(ctx, FilterRecent); err != nil {
		t.Fatal(err)
	}
	close(slow)
	if err := <-errc; err != nil {
		t.Fatal(err)
	}

	if fc.Filter() != FilterRecent {
		t.Fatalf("filter = %v", fc.Filter())
	}
	if got := ids(store.Snapshot().TopLevel()); !cmp.Equal(got, []string{"new", "old"}) {
		t.Fatalf("stale response applied: %v", got)
	}
}

func TestFilterController_FailureRestoresPreviousFilter(t *testing.T) {
	fetch := newStubTopLevel()
	fetch.err = errors.New("down")
	fc := NewFilterController(context.Background(), NewStore(), fetch, "p1", nil)
	ctx := context.Background()

	if err := fc.SetFilter(ctx, FilterRelevant); err == nil {
		t.Fatal("expected error")
	}
	if fc.Filter() != FilterRecent {
		t.Fatalf("filter after failure = %v", fc.Filter())
	}

	fetch.mu.Lock()
	fetch.err = nil
	fetch.mu.Unlock()
	if err := fc.SetFilter(ctx, FilterRelevant); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got := fetch.total(); got != 2 {
		t.Fatalf("fetches = %d, want 2", got)
	}
}

func TestFilterController_FailedSwitchDuringSupersededFetch(t *testing.T) {
	fetch := newStubTopLevel()
	fetch.lists[FilterRecent] = []Comment{top("new"), top("old")}
	fetch.lists[FilterRelevant] = []Comment{top("old"), top("new")}
	store := NewStore()
	fc := NewFilterController(context.Background(), store, fetch, "p1", nil)
	ctx := context.Background()

	if err := fc.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	<-fetch.started

	slow := make(chan struct{})
	fetch.mu.Lock()
	fetch.hold[FilterRelevant] = slow
	fetch.errs[FilterRecent] = errors.New("down")
	fetch.mu.Unlock()

	errc := make(chan error, 1)
	go func() { errc <- fc.SetFilter(ctx, FilterRelevant) }()
	<-fetch.started
	if err := fc.SetFilter(ctx, FilterRecent); err == nil {
		t.Fatal("expected error")
	}
	close(slow)
	if err := <-errc; err != nil {
		t.Fatal(err)
	}

	// The relevant response was superseded, so the recent list is still
	// on screen and the filter must say so.
	if fc.Filter() != FilterRecent {
		t.Fatalf("filter = %v, list = %v", fc.Filter(), ids(store.Snapshot().TopLevel()))
	}
	if got := ids(store.Snapshot().TopLevel()); !cmp.Equal(got, []string{"new", "old"}) {
		t.Fatalf("list = %v", got)
	}

	fetch.mu.Lock()
	delete(fetch.hold, FilterRelevant)
	fetch.mu.Unlock()
	if err := fc.SetFilter(ctx, FilterRelevant); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got := ids(store.Snapshot().TopLevel()); !cmp.Equal(got, []string{"old", "new"}) {
		t.Fatalf("relevant list = %v", got)
	}
}
