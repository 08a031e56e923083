package comments

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/example/market-comments/internal/marketapi"
	"github.com/example/market-comments/internal/marketapi/marketapitest"
	"github.com/example/market-comments/internal/platform/auth"
)

var (
	_ ReplyFetcher    = (*Gateway)(nil)
	_ TopLevelFetcher = (*Gateway)(nil)
)

const (
	ana = "ana@example.com"
	bo  = "bo@example.com"
)

type fixture struct {
	backend *marketapitest.Backend
	session *auth.Session
	api     *marketapi.Client
}

func newFixture(t *testing.T, handle string) fixture {
	t.Helper()
	b := marketapitest.New()
	srv := b.Start(t)
	sess := auth.NewSession()
	if err := sess.Login(b.Token(handle)); err != nil {
		t.Fatalf("login: %v", err)
	}
	return fixture{backend: b, session: sess, api: marketapi.New(srv.URL, sess)}
}

func TestGateway_EmptyBodyNeverHitsNetwork(t *testing.T) {
	f := newFixture(t, ana)
	g := NewGateway(f.api, nil, nil)
	root := f.backend.Seed("p1", "", ana, "root")
	ctx := context.Background()

	if _, err := g.CreateTopLevel(ctx, "p1", "   "); !errors.Is(err, ErrValidation) {
		t.Fatalf("create: %v", err)
	}
	if _, err := g.CreateReply(ctx, root, "\n\t"); !errors.Is(err, ErrValidation) {
		t.Fatalf("reply: %v", err)
	}
	if _, err := g.Edit(ctx, root, ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("edit: %v", err)
	}
	for _, route := range []string{marketapitest.RouteCreate, marketapitest.RouteReply, marketapitest.RouteUpdate} {
		if n := f.backend.Calls(route); n != 0 {
			t.Fatalf("%s called %d times", route, n)
		}
	}
}

func TestGateway_CreateTrimsAndNormalizes(t *testing.T) {
	f := newFixture(t, ana)
	g := NewGateway(f.api, nil, nil)

	c, err := g.CreateTopLevel(context.Background(), "p1", "  hello  ")
	if err != nil {
		t.Fatal(err)
	}
	if c.Body != "hello" || c.AuthorHandle != ana || c.ProductID != "p1" || !c.IsTopLevel() || c.CreatedAt.IsZero() {
		t.Fatalf("unexpected comment: %+v", c)
	}
}

func TestGateway_ReplyCarriesParent(t *testing.T) {
	f := newFixture(t, ana)
	f.backend.LegacyFields = true
	g := NewGateway(f.api, nil, nil)
	root := f.backend.Seed("p1", "", bo, "root")

	c, err := g.CreateReply(context.Background(), root, "hey")
	if err != nil {
		t.Fatal(err)
	}
	if c.ParentID != root || c.ProductID != "p1" || c.ID == "" {
		t.Fatalf("unexpected reply: %+v", c)
	}
}

func TestGateway_ErrorClassification(t *testing.T) {
	f := newFixture(t, ana)
	g := NewGateway(f.api, nil, nil)
	ctx := context.Background()
	theirs := f.backend.Seed("p1", "", bo, "theirs")

	if err := g.Delete(ctx, theirs); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("foreign delete: %v", err)
	}
	if _, err := g.Edit(ctx, theirs, "mine now"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("foreign edit: %v", err)
	}

	err := g.Delete(ctx, "4040")
	if !errors.Is(err, ErrNotFound) || !errors.Is(err, ErrServer) {
		t.Fatalf("stale delete: %v", err)
	}
	if marketapi.StatusOf(err) != http.StatusNotFound {
		t.Fatalf("cause lost: %v", err)
	}

	f.backend.FailNext(marketapitest.RouteReplies, http.StatusInternalServerError)
	if _, err := g.FetchReplies(ctx, theirs); !errors.Is(err, ErrServer) || errors.Is(err, ErrNotFound) {
		t.Fatalf("5xx: %v", err)
	}

	f.session.Logout()
	if _, err := g.CreateTopLevel(ctx, "p1", "hi"); !errors.Is(err, ErrUnauthorized) || !errors.Is(err, auth.ErrNoCredential) {
		t.Fatalf("logged out: %v", err)
	}
}

func TestGateway_PendingWhileInFlight(t *testing.T) {
	f := newFixture(t, ana)
	g := NewGateway(f.api, nil, nil)
	mine := f.backend.Seed("p1", "", ana, "mine")
	release := f.backend.Hold(marketapitest.RouteDelete)
	defer release()

	done := make(chan error, 1)
	go func() { done <- g.Delete(context.Background(), mine) }()

	waitFor(t, func() bool { return f.backend.Calls(marketapitest.RouteDelete) == 1 })
	if !g.Pending(ActionDelete, mine) {
		t.Fatal("delete should be pending")
	}
	if g.Pending(ActionEdit, mine) || g.Pending(ActionDelete, "other") {
		t.Fatal("pending leaked to another affordance")
	}
	release()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if g.Pending(ActionDelete, mine) {
		t.Fatal("pending not cleared")
	}
}

func TestGateway_FetchTopLevelUsesFilterEndpoint(t *testing.T) {
	f := newFixture(t, ana)
	g := NewGateway(f.api, nil, nil)
	ctx := context.Background()
	f.backend.Seed("p1", "", bo, "a")

	if _, err := g.FetchTopLevel(ctx, "p1", FilterRecent); err != nil {
		t.Fatal(err)
	}
	if _, err := g.FetchTopLevel(ctx, "p1", FilterRelevant); err != nil {
		t.Fatal(err)
	}
	if f.backend.Calls(marketapitest.RouteTopLevel) != 1 || f.backend.Calls(marketapitest.RouteRelevant) != 1 {
		t.Fatalf("calls recent=%d relevant=%d",
			f.backend.Calls(marketapitest.RouteTopLevel), f.backend.Calls(marketapitest.RouteRelevant))
	}
}

// stubEditAPI answers edits with an empty envelope.
type stubEditAPI struct {
	marketapi.CommentAPI
}

func (stubEditAPI) UpdateComment(ctx context.Context, id, body string) (marketapi.CommentPayload, error) {
	return marketapi.CommentPayload{}, nil
}

func TestGateway_EditWithEmptyResponse(t *testing.T) {
	g := NewGateway(stubEditAPI{}, nil, nil)
	c, err := g.Edit(context.Background(), "5", "fixed")
	if err != nil {
		t.Fatal(err)
	}
	if c.ID != "5" || c.Body != "fixed" {
		t.Fatalf("unexpected: %+v", c)
	}
}
