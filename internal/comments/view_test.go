package comments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/example/market-comments/internal/marketapi/marketapitest"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func openView(t *testing.T, f fixture, productID string) *View {
	t.Helper()
	v := NewView(Options{ProductID: productID, API: f.api, Identity: f.session})
	t.Cleanup(v.Close)
	if err := v.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	return v
}

func bodies(cs []Comment) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Body)
	}
	return out
}

func TestView_OpenLoadsRecentTopLevel(t *testing.T) {
	f := newFixture(t, ana)
	f.backend.Seed("p1", "", bo, "older")
	f.backend.Seed("p1", "", bo, "newer")
	f.backend.Seed("p2", "", bo, "elsewhere")

	v := openView(t, f, "p1")

	if diff := cmp.Diff([]string{"newer", "older"}, bodies(v.Snapshot().TopLevel())); diff != "" {
		t.Fatalf("top level (-want +got):\n%s", diff)
	}
	if v.Filter() != FilterRecent {
		t.Fatalf("filter = %v", v.Filter())
	}
}

func TestView_ExpandEmptyRepliesIsLoaded(t *testing.T) {
	f := newFixture(t, ana)
	id := f.backend.Seed("p1", "", bo, "hi")
	v := openView(t, f, "p1")
	ctx := context.Background()

	if _, loaded := v.Snapshot().Children(id); loaded {
		t.Fatal("replies loaded before expand")
	}
	if err := v.ExpandReplies(ctx, id); err != nil {
		t.Fatal(err)
	}
	kids, loaded := v.Snapshot().Children(id)
	if !loaded || len(kids) != 0 || v.ReplyState(id) != LoadLoaded {
		t.Fatalf("children=%v loaded=%v state=%v", ids(kids), loaded, v.ReplyState(id))
	}
	if err := v.ExpandReplies(ctx, id); err != nil {
		t.Fatal(err)
	}
	if n := f.backend.Calls(marketapitest.RouteReplies); n != 1 {
		t.Fatalf("reply fetches = %d, want 1", n)
	}
}

func TestView_RapidExpandFetchesOnce(t *testing.T) {
	f := newFixture(t, ana)
	id := f.backend.Seed("p1", "", bo, "hi")
	f.backend.Seed("p1", id, bo, "r1")
	v := openView(t, f, "p1")
	release := f.backend.Hold(marketapitest.RouteReplies)

	first := v.loader.Load(id)
	second := v.loader.Load(id)
	waitFor(t, func() bool { return f.backend.Calls(marketapitest.RouteReplies) == 1 })
	release()

	if err := wait(t, first); err != nil {
		t.Fatal(err)
	}
	if err := wait(t, second); err != nil {
		t.Fatal(err)
	}
	if n := f.backend.Calls(marketapitest.RouteReplies); n != 1 {
		t.Fatalf("reply fetches = %d, want 1", n)
	}
	kids, _ := v.Snapshot().Children(id)
	if diff := cmp.Diff([]string{"r1"}, bodies(kids)); diff != "" {
		t.Fatalf("children (-want +got):\n%s", diff)
	}
}

func TestView_ReplyShowsWithoutFetch(t *testing.T) {
	f := newFixture(t, ana)
	id := f.backend.Seed("p1", "", bo, "question")
	f.backend.Seed("p1", id, bo, "existing answer")
	v := openView(t, f, "p1")
	ctx := context.Background()

	before, _ := v.Snapshot().Node(id)
	c, err := v.Reply(ctx, id, "my answer")
	if err != nil {
		t.Fatal(err)
	}

	snap := v.Snapshot()
	kids, loaded := snap.Children(id)
	if !loaded || !cmp.Equal(ids(kids), []string{c.ID}) {
		t.Fatalf("children=%v loaded=%v", ids(kids), loaded)
	}
	if after, _ := snap.Node(id); after.ReplyCount != before.ReplyCount+1 {
		t.Fatalf("ReplyCount %d -> %d", before.ReplyCount, after.ReplyCount)
	}
	if err := v.ExpandReplies(ctx, id); err != nil {
		t.Fatal(err)
	}
	if n := f.backend.Calls(marketapitest.RouteReplies); n != 0 {
		t.Fatalf("expand after reply fetched %d times", n)
	}
}

func TestView_SubmitEditDelete(t *testing.T) {
	f := newFixture(t, ana)
	f.backend.Seed("p1", "", bo, "first")
	v := openView(t, f, "p1")
	ctx := context.Background()

	c, err := v.Submit(ctx, "mine")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"mine", "first"}, bodies(v.Snapshot().TopLevel())); diff != "" {
		t.Fatalf("after submit (-want +got):\n%s", diff)
	}
	if !v.CanModify(c) {
		t.Fatal("author should be able to modify own comment")
	}

	edited, err := v.Edit(ctx, c.ID, "mine, edited")
	if err != nil {
		t.Fatal(err)
	}
	if !edited.Edited() {
		t.Fatalf("edit not reflected: %+v", edited)
	}
	if got, _ := v.Snapshot().Node(c.ID); got.Body != "mine, edited" {
		t.Fatalf("body = %q", got.Body)
	}

	if err := v.Delete(ctx, c.ID); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"first"}, bodies(v.Snapshot().TopLevel())); diff != "" {
		t.Fatalf("after delete (-want +got):\n%s", diff)
	}
	if f.backend.Exists(c.ID) {
		t.Fatal("backend still has the comment")
	}
}

func TestView_FailedMutationsLeaveTreeAlone(t *testing.T) {
	f := newFixture(t, ana)
	theirs := f.backend.Seed("p1", "", bo, "theirs")
	v := openView(t, f, "p1")
	ctx := context.Background()

	if v.CanModify(Comment{AuthorHandle: bo}) {
		t.Fatal("CanModify true for another author")
	}
	if err := v.Delete(ctx, theirs); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("delete: %v", err)
	}
	if _, err := v.Edit(ctx, theirs, "hijack"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("edit: %v", err)
	}
	got, ok := v.Snapshot().Node(theirs)
	if !ok || got.Body != "theirs" {
		t.Fatalf("comment changed after failed mutations: %+v ok=%v", got, ok)
	}
}

func TestView_DeleteDuringReplyLoad(t *testing.T) {
	f := newFixture(t, ana)
	id := f.backend.Seed("p1", "", ana, "doomed")
	f.backend.Seed("p1", id, bo, "reply")
	v := openView(t, f, "p1")
	ctx := context.Background()

	release := f.backend.Hold(marketapitest.RouteReplies)
	loading := v.loader.Load(id)
	waitFor(t, func() bool { return f.backend.Calls(marketapitest.RouteReplies) == 1 })

	if err := v.Delete(ctx, id); err != nil {
		t.Fatal(err)
	}
	release()
	if err := wait(t, loading); err != nil && !errors.Is(err, ErrNotFound) {
		t.Fatalf("load: %v", err)
	}
	if v.Snapshot().Len() != 0 {
		t.Fatalf("deleted parent resurrected: %d nodes", v.Snapshot().Len())
	}
}

func TestView_SwitchFilterKeepsExpandedReplies(t *testing.T) {
	f := newFixture(t, ana)
	a := f.backend.Seed("p1", "", bo, "A")
	f.backend.Seed("p1", a, bo, "R1")
	f.backend.Seed("p1", "", bo, "B")
	v := openView(t, f, "p1")
	ctx := context.Background()

	if err := v.ExpandReplies(ctx, a); err != nil {
		t.Fatal(err)
	}
	if err := v.SetFilter(ctx, FilterRelevant); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"A", "B"}, bodies(v.Snapshot().TopLevel())); diff != "" {
		t.Fatalf("relevant (-want +got):\n%s", diff)
	}
	if err := v.SetFilter(ctx, FilterRelevant); err != nil {
		t.Fatal(err)
	}
	if err := v.SetFilter(ctx, FilterRecent); err != nil {
		t.Fatal(err)
	}
	if err := v.ExpandReplies(ctx, a); err != nil {
		t.Fatal(err)
	}

	kids, loaded := v.Snapshot().Children(a)
	if !loaded || !cmp.Equal(bodies(kids), []string{"R1"}) {
		t.Fatalf("A children = %v loaded=%v", bodies(kids), loaded)
	}
	if n := f.backend.Calls(marketapitest.RouteReplies); n != 1 {
		t.Fatalf("reply fetches = %d, want 1", n)
	}
	if n := f.backend.Calls(marketapitest.RouteRelevant); n != 1 {
		t.Fatalf("relevant fetches = %d, want 1", n)
	}
}

func TestView_ResponsesAfterCloseAreDiscarded(t *testing.T) {
	f := newFixture(t, ana)
	v := openView(t, f, "p1")
	release := f.backend.Hold(marketapitest.RouteCreate)

	done := make(chan error, 1)
	go func() {
		_, err := v.Submit(context.Background(), "late")
		done <- err
	}()
	waitFor(t, func() bool { return f.backend.Calls(marketapitest.RouteCreate) == 1 })
	v.Close()
	release()

	if err := <-done; !errors.Is(err, ErrViewClosed) {
		t.Fatalf("err = %v, want ErrViewClosed", err)
	}
	if v.Snapshot().Len() != 0 {
		t.Fatal("closed view applied a response")
	}
	if err := v.ExpandReplies(context.Background(), "1"); !errors.Is(err, ErrViewClosed) {
		t.Fatalf("expand after close: %v", err)
	}
}

func TestView_SubscribeSignalsChanges(t *testing.T) {
	f := newFixture(t, ana)
	v := openView(t, f, "p1")
	ch, stop := v.Subscribe()
	defer stop()

	if _, err := v.Submit(context.Background(), "ping"); err != nil {
		t.Fatal(err)
	}
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no change notification")
	}
}

func TestView_WriteRacingCloseLandsInShutStore(t *testing.T) {
	f := newFixture(t, ana)
	v := openView(t, f, "p1")
	c, err := v.Submit(context.Background(), "kept")
	if err != nil {
		t.Fatal(err)
	}
	v.Close()

	// An intent that passed its active check before Close still writes.
	v.store.InsertTopLevel(Comment{ID: "late", Body: "late"})
	v.store.UpdateBody(c.ID, "edited", time.Time{})
	if n := v.Snapshot().Len(); n != 0 {
		t.Fatalf("len after close = %d, want 0", n)
	}
}
