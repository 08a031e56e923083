package comments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/example/market-comments/internal/marketapi"
	"github.com/example/market-comments/internal/platform/analytics"
	"github.com/example/market-comments/internal/platform/auth"
	"github.com/example/market-comments/internal/platform/logging"
)

// Action names a mutation affordance for Pending.
type Action string

const (
	ActionCreate Action = "create"
	ActionReply  Action = "reply"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
)

type pendingKey struct {
	action Action
	target string
}

// Gateway performs comment mutations and reads against the API and hands
// back canonical Comments. It does not touch the Store; callers apply the
// result. Each call is single-shot: no retries, no queuing.
type Gateway struct {
	api    marketapi.CommentAPI
	events *analytics.Publisher
	log    *zap.Logger

	mu      sync.Mutex
	pending map[pendingKey]int
}

// NewGateway wires the gateway. events may be nil.
func NewGateway(api marketapi.CommentAPI, events *analytics.Publisher, log *zap.Logger) *Gateway {
	log = logging.OrNop(log)
	return &Gateway{
		api:     api,
		events:  events,
		log:     log,
		pending: make(map[pendingKey]int),
	}
}

// Pending reports whether a call for action on target is in flight. The
// target is the product id for ActionCreate, the parent id for
// ActionReply and the comment id otherwise. UIs disable the matching
// control while it is true.
func (g *Gateway) Pending(action Action, target string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending[pendingKey{action, target}] > 0
}

func (g *Gateway) begin(action Action, target string) func() {
	k := pendingKey{action, target}
	g.mu.Lock()
	g.pending[k]++
	g.mu.Unlock()
	return func() {
		g.mu.Lock()
		if g.pending[k]--; g.pending[k] <= 0 {
			delete(g.pending, k)
		}
		g.mu.Unlock()
	}
}

func (g *Gateway) CreateTopLevel(ctx context.Context, productID, body string) (Comment, error) {
	body, err := validBody(body)
	if err != nil {
		return Comment{}, err
	}
	defer g.begin(ActionCreate, productID)()

	p, err := g.api.CreateComment(ctx, productID, body)
	if err != nil {
		return Comment{}, g.classify("create", err)
	}
	c, err := normalize(p)
	if err != nil {
		return Comment{}, err
	}
	c.ParentID = ""
	if c.ProductID == "" {
		c.ProductID = productID
	}
	g.events.Publish(analytics.SubjectCommentCreated, "comment_created", c.AuthorHandle, map[string]any{
		"comment_id": c.ID,
		"product_id": c.ProductID,
	})
	return c, nil
}

func (g *Gateway) CreateReply(ctx context.Context, parentID, body string) (Comment, error) {
	body, err := validBody(body)
	if err != nil {
		return Comment{}, err
	}
	defer g.begin(ActionReply, parentID)()

	p, err := g.api.CreateReply(ctx, parentID, body)
	if err != nil {
		return Comment{}, g.classify("reply", err)
	}
	c, err := normalize(p)
	if err != nil {
		return Comment{}, err
	}
	c.ParentID = parentID
	g.events.Publish(analytics.SubjectCommentReplied, "comment_replied", c.AuthorHandle, map[string]any{
		"comment_id": c.ID,
		"parent_id":  parentID,
		"product_id": c.ProductID,
	})
	return c, nil
}

// Edit changes the body of commentID. Only the author succeeds; the
// server decides.
func (g *Gateway) Edit(ctx context.Context, commentID, body string) (Comment, error) {
	body, err := validBody(body)
	if err != nil {
		return Comment{}, err
	}
	defer g.begin(ActionEdit, commentID)()

	p, err := g.api.UpdateComment(ctx, commentID, body)
	if err != nil {
		return Comment{}, g.classify("edit", err)
	}
	c, err := normalize(p)
	if err != nil {
		// Some revisions answer an edit with an empty envelope.
		c = Comment{ID: commentID, Body: body}
	}
	if c.Body == "" {
		c.Body = body
	}
	g.events.Publish(analytics.SubjectCommentEdited, "comment_edited", c.AuthorHandle, map[string]any{
		"comment_id": commentID,
	})
	return c, nil
}

// Delete removes commentID and, server side, its replies.
func (g *Gateway) Delete(ctx context.Context, commentID string) error {
	defer g.begin(ActionDelete, commentID)()

	if err := g.api.DeleteComment(ctx, commentID); err != nil {
		return g.classify("delete", err)
	}
	g.events.Publish(analytics.SubjectCommentDeleted, "comment_deleted", "", map[string]any{
		"comment_id": commentID,
	})
	return nil
}

// FetchTopLevel loads the top-level comments of productID in the order
// selected by f.
func (g *Gateway) FetchTopLevel(ctx context.Context, productID string, f Filter) ([]Comment, error) {
	ps, err := g.api.TopLevelComments(ctx, productID, f == FilterRelevant)
	if err != nil {
		return nil, g.classify("list", err)
	}
	cs, skipped := normalizeAll(ps)
	if skipped > 0 {
		g.log.Warn("comments: dropped payloads without id",
			zap.String("product_id", productID), zap.Int("skipped", skipped))
	}
	return cs, nil
}

// FetchReplies loads the direct replies of parentID.
func (g *Gateway) FetchReplies(ctx context.Context, parentID string) ([]Comment, error) {
	ps, err := g.api.Replies(ctx, parentID)
	if err != nil {
		return nil, g.classify("replies", err)
	}
	cs, skipped := normalizeAll(ps)
	if skipped > 0 {
		g.log.Warn("comments: dropped payloads without id",
			zap.String("parent_id", parentID), zap.Int("skipped", skipped))
	}
	for i := range cs {
		cs[i].ParentID = parentID
	}
	return cs, nil
}

// classify maps a transport or status error onto the package sentinels,
// keeping the cause in the chain.
func (g *Gateway) classify(op string, err error) error {
	var kind error
	switch {
	case errors.Is(err, auth.ErrNoCredential), marketapi.IsAuth(err):
		kind = ErrUnauthorized
	case marketapi.IsNotFound(err):
		kind = ErrNotFound
	case marketapi.StatusOf(err) == http.StatusBadRequest:
		kind = ErrValidation
	default:
		kind = ErrServer
	}
	g.log.Debug("comments: request failed", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("comments: %s: %w: %w", op, kind, err)
}

func validBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", fmt.Errorf("%w: comment must not be empty", ErrValidation)
	}
	return body, nil
}
