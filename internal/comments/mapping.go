package comments

import (
	"fmt"
	"strings"
	"time"

	"github.com/example/market-comments/internal/marketapi"
)

// The API serializes LocalDateTime without a zone on some endpoints.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// normalize folds a wire payload into a Comment. Field names vary across
// endpoint revisions; the first populated variant wins.
func normalize(p marketapi.CommentPayload) (Comment, error) {
	id := firstNonEmpty(p.ID.String(), p.Code.String())
	if id == "" {
		return Comment{}, fmt.Errorf("%w: comment payload without id", ErrServer)
	}
	c := Comment{
		ID:           id,
		Body:         firstNonEmpty(p.Comment, p.Body),
		AuthorHandle: strings.TrimSpace(firstNonEmpty(p.Username, p.Email)),
		ProductID:    firstNonEmpty(p.ProductID.String(), p.ProductCode.String()),
		ParentID:     p.ParentID.String(),
		CreatedAt:    parseTime(p.CreatedAt),
		UpdatedAt:    parseTime(p.UpdatedAt),
	}
	switch {
	case p.ResponseCount != nil:
		c.ReplyCount = *p.ResponseCount
	case p.ReplyCount != nil:
		c.ReplyCount = *p.ReplyCount
	}
	if c.ReplyCount < 0 {
		c.ReplyCount = 0
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	return c, nil
}

// normalizeAll maps a list, skipping payloads without an id.
func normalizeAll(ps []marketapi.CommentPayload) ([]Comment, int) {
	out := make([]Comment, 0, len(ps))
	skipped := 0
	for _, p := range ps {
		c, err := normalize(p)
		if err != nil {
			skipped++
			continue
		}
		out = append(out, c)
	}
	return out, skipped
}

func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}
