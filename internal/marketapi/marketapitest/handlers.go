package marketapitest

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/example/market-comments/internal/platform/api"
	"github.com/example/market-comments/internal/platform/auth"
)

type createCommentRequest struct {
	ProductID any    `json:"productId"`
	Comment   string `json:"comment"`
}

type commentBodyRequest struct {
	Comment string `json:"comment"`
}

type addLikeRequest struct {
	ProductID any `json:"productId"`
}

// flexID renders a string or number id as a string; anything else is "".
func flexID(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	}
	return ""
}

func currentUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok || userID == "" {
		api.Unauthorized(w, "authentication required")
		return "", false
	}
	return userID, true
}

func commentIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, "comment_id"))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		api.BadRequest(w, "comment_id must be a positive integer")
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		api.BadRequest(w, "invalid JSON")
		return false
	}
	return true
}

// listTopLevel handles GET /comments/product/{product_id}[/relevant]
func (b *Backend) listTopLevel(relevant bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID := strings.TrimSpace(chi.URLParam(r, "product_id"))
		if productID == "" {
			api.BadRequest(w, "product_id is required")
			return
		}

		b.mu.Lock()
		defer b.mu.Unlock()
		var top []*comment
		for _, c := range b.comments {
			if c.ProductID == productID && c.ParentID == 0 {
				top = append(top, c)
			}
		}
		sortNewestFirst(top)
		if relevant {
			sort.SliceStable(top, func(i, j int) bool {
				return b.replyCountLocked(top[i].ID) > b.replyCountLocked(top[j].ID)
			})
		}
		out := make([]map[string]any, 0, len(top))
		for _, c := range top {
			out = append(out, b.payloadLocked(c))
		}
		api.WriteData(w, http.StatusOK, out, "")
	}
}

// listReplies handles GET /comments/{comment_id}/replies
func (b *Backend) listReplies(w http.ResponseWriter, r *http.Request) {
	id, ok := commentIDParam(w, r)
	if !ok {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.comments[id]; !ok {
		api.NotFound(w, "comment not found")
		return
	}
	var replies []*comment
	for _, c := range b.comments {
		if c.ParentID == id {
			replies = append(replies, c)
		}
	}
	sort.Slice(replies, func(i, j int) bool { return replies[i].ID < replies[j].ID })
	out := make([]map[string]any, 0, len(replies))
	for _, c := range replies {
		out = append(out, b.payloadLocked(c))
	}
	api.WriteData(w, http.StatusOK, out, "")
}

// createComment handles POST /comments/create
func (b *Backend) createComment(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req createCommentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Comment) == "" {
		api.BadRequest(w, "comment must not be empty")
		return
	}
	productID := flexID(req.ProductID)
	if productID == "" {
		api.BadRequest(w, "productId is required")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.insertLocked(productID, 0, userID, req.Comment)
	api.WriteData(w, http.StatusCreated, b.payloadLocked(c), "Comment created")
}

// createReply handles POST /comments/{comment_id}/reply
func (b *Backend) createReply(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	parentID, ok := commentIDParam(w, r)
	if !ok {
		return
	}
	var req commentBodyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Comment) == "" {
		api.BadRequest(w, "comment must not be empty")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	parent, ok := b.comments[parentID]
	if !ok {
		api.NotFound(w, "comment not found")
		return
	}
	c := b.insertLocked(parent.ProductID, parent.ID, userID, req.Comment)
	api.WriteData(w, http.StatusCreated, b.payloadLocked(c), "Reply created")
}

// updateComment handles PATCH /comments/update/{comment_id}
func (b *Backend) updateComment(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := commentIDParam(w, r)
	if !ok {
		return
	}
	var req commentBodyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Comment) == "" {
		api.BadRequest(w, "comment must not be empty")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.comments[id]
	if !ok {
		api.NotFound(w, "comment not found")
		return
	}
	if c.Username != userID {
		api.Forbidden(w, "not the author")
		return
	}
	c.Body = req.Comment
	c.UpdatedAt = c.UpdatedAt.Add(time.Second)
	api.WriteData(w, http.StatusOK, b.payloadLocked(c), "Comment updated")
}

// deleteComment handles DELETE /comments/delete/{comment_id}
func (b *Backend) deleteComment(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := commentIDParam(w, r)
	if !ok {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.comments[id]
	if !ok {
		api.NotFound(w, "comment not found")
		return
	}
	if c.Username != userID {
		api.Forbidden(w, "not the author")
		return
	}
	b.removeLocked(id)
	api.WriteData(w, http.StatusOK, nil, "Comment deleted")
}

// listLikes handles GET /likes/
func (b *Backend) listLikes(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]map[string]any, 0)
	for _, l := range b.likes {
		if l.Username == userID {
			out = append(out, map[string]any{"id": l.ID, "product": l.ProductID})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i]["product"].(string) < out[j]["product"].(string) })
	api.WriteData(w, http.StatusOK, out, "")
}

// addLike handles POST /likes/add
func (b *Backend) addLike(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req addLikeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	productID := flexID(req.ProductID)
	if productID == "" {
		api.BadRequest(w, "productId is required")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, l := range b.likes {
		if l.Username == userID && l.ProductID == productID {
			api.WriteData(w, http.StatusOK, map[string]any{"id": l.ID, "productId": l.ProductID}, "Already liked")
			return
		}
	}
	l := like{ID: uuid.NewString(), Username: userID, ProductID: productID}
	b.likes[l.ID] = l
	api.WriteData(w, http.StatusCreated, map[string]any{"id": l.ID, "productId": l.ProductID}, "Like added")
}

// removeLike handles DELETE /likes/delete/{like_id}
func (b *Backend) removeLike(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	likeID := strings.TrimSpace(chi.URLParam(r, "like_id"))

	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.likes[likeID]
	if !ok || l.Username != userID {
		api.NotFound(w, "like not found")
		return
	}
	delete(b.likes, likeID)
	api.WriteData(w, http.StatusOK, nil, "Like removed")
}
