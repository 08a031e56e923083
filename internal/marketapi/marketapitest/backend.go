// Package marketapitest is an in-memory stand-in for the marketplace API,
// for tests. It speaks the same envelope, routes and payload variants as
// the real service and lets a test count, hold or fail requests per route.
package marketapitest

import (
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/example/market-comments/internal/platform/api"
	"github.com/example/market-comments/internal/platform/auth"
	"github.com/example/market-comments/internal/platform/httpserver"
)

// Route names accepted by Calls, Hold and FailNext.
const (
	RouteTopLevel   = "top_level"
	RouteRelevant   = "relevant"
	RouteReplies    = "replies"
	RouteCreate     = "create"
	RouteReply      = "reply"
	RouteUpdate     = "update"
	RouteDelete     = "delete"
	RouteLikes      = "likes"
	RouteAddLike    = "add_like"
	RouteRemoveLike = "remove_like"
)

const timeLayout = "2006-01-02T15:04:05"

type comment struct {
	ID        int64
	ProductID string
	ParentID  int64
	Username  string
	Body      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type like struct {
	ID        string
	Username  string
	ProductID string
}

// Backend is the fake API. The zero value is not usable; call New.
type Backend struct {
	// LegacyFields makes comment payloads use the older code/productCode
	// field names instead of id/productId.
	LegacyFields bool

	verifier auth.JWTVerifier
	epoch    time.Time

	mu       sync.Mutex
	nextID   int64
	comments map[int64]*comment
	likes    map[string]like
	calls    map[string]int
	holds    map[string]chan struct{}
	fails    map[string][]int
}

func New() *Backend {
	return &Backend{
		verifier: auth.JWTVerifier{Secret: []byte(uuid.NewString())},
		epoch:    time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC),
		comments: make(map[int64]*comment),
		likes:    make(map[string]like),
		calls:    make(map[string]int),
		holds:    make(map[string]chan struct{}),
		fails:    make(map[string][]int),
	}
}

// Start serves the backend on a local listener closed at test cleanup.
func (b *Backend) Start(t testing.TB) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(b.Router())
	t.Cleanup(srv.Close)
	return srv
}

// Token mints a bearer token for handle, valid for an hour.
func (b *Backend) Token(handle string) string {
	tok, err := b.verifier.Sign(auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   handle,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Email: handle,
	})
	if err != nil {
		panic(err)
	}
	return tok
}

func (b *Backend) Router() chi.Router {
	r := chi.NewRouter()
	httpserver.SetupRouter(r)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser(b.verifier))
		r.Get("/comments/product/{product_id}", b.track(RouteTopLevel, b.listTopLevel(false)))
		r.Get("/comments/product/{product_id}/relevant", b.track(RouteRelevant, b.listTopLevel(true)))
		r.Get("/comments/{comment_id}/replies", b.track(RouteReplies, b.listReplies))
		r.Post("/comments/create", b.track(RouteCreate, b.createComment))
		r.Post("/comments/{comment_id}/reply", b.track(RouteReply, b.createReply))
		r.Patch("/comments/update/{comment_id}", b.track(RouteUpdate, b.updateComment))
		r.Delete("/comments/delete/{comment_id}", b.track(RouteDelete, b.deleteComment))
		r.Get("/likes/", b.track(RouteLikes, b.listLikes))
		r.Post("/likes/add", b.track(RouteAddLike, b.addLike))
		r.Delete("/likes/delete/{like_id}", b.track(RouteRemoveLike, b.removeLike))
	})
	return r
}

// Seed stores a comment directly and returns its id. parentID may be "".
func (b *Backend) Seed(productID, parentID, username, body string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	pid, _ := strconv.ParseInt(parentID, 10, 64)
	c := b.insertLocked(productID, pid, username, body)
	return strconv.FormatInt(c.ID, 10)
}

// Exists reports whether the comment is still stored.
func (b *Backend) Exists(id string) bool {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.comments[n]
	return ok
}

// Calls returns how many requests reached route.
func (b *Backend) Calls(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[route]
}

// Hold parks every request to route until the returned func is called.
func (b *Backend) Hold(route string) (release func()) {
	ch := make(chan struct{})
	b.mu.Lock()
	b.holds[route] = ch
	b.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			if b.holds[route] == ch {
				delete(b.holds, route)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
}

// FailNext makes the next request to route answer with status.
func (b *Backend) FailNext(route string, status int) {
	b.mu.Lock()
	b.fails[route] = append(b.fails[route], status)
	b.mu.Unlock()
}

func (b *Backend) track(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.calls[route]++
		hold := b.holds[route]
		var fail int
		if q := b.fails[route]; len(q) > 0 {
			fail, b.fails[route] = q[0], q[1:]
		}
		b.mu.Unlock()

		if hold != nil {
			select {
			case <-hold:
			case <-r.Context().Done():
				return
			}
		}
		if fail != 0 {
			api.WriteError(w, fail, "injected failure")
			return
		}
		h(w, r)
	}
}

func (b *Backend) insertLocked(productID string, parentID int64, username, body string) *comment {
	b.nextID++
	at := b.epoch.Add(time.Duration(b.nextID) * time.Minute)
	c := &comment{
		ID:        b.nextID,
		ProductID: productID,
		ParentID:  parentID,
		Username:  username,
		Body:      body,
		CreatedAt: at,
		UpdatedAt: at,
	}
	b.comments[c.ID] = c
	return c
}

func (b *Backend) replyCountLocked(id int64) int {
	n := 0
	for _, c := range b.comments {
		if c.ParentID == id {
			n++
		}
	}
	return n
}

// removeLocked deletes id and every descendant, the way the real API
// cascades deletes to replies.
func (b *Backend) removeLocked(id int64) {
	delete(b.comments, id)
	for cid, c := range b.comments {
		if c.ParentID == id {
			b.removeLocked(cid)
		}
	}
}

func (b *Backend) payloadLocked(c *comment) map[string]any {
	p := map[string]any{
		"comment":       c.Body,
		"username":      c.Username,
		"responseCount": b.replyCountLocked(c.ID),
		"createdAt":     c.CreatedAt.Format(timeLayout),
		"updatedAt":     c.UpdatedAt.Format(timeLayout),
	}
	if b.LegacyFields {
		p["code"] = c.ID
		p["productCode"] = c.ProductID
	} else {
		p["id"] = c.ID
		p["productId"] = c.ProductID
	}
	if c.ParentID != 0 {
		p["parentId"] = c.ParentID
	} else {
		p["parentId"] = nil
	}
	return p
}

func sortNewestFirst(cs []*comment) {
	sort.Slice(cs, func(i, j int) bool {
		if !cs[i].CreatedAt.Equal(cs[j].CreatedAt) {
			return cs[i].CreatedAt.After(cs[j].CreatedAt)
		}
		return cs[i].ID > cs[j].ID
	})
}
