// Package comments keeps the comment forest of one product view in sync
// with the marketplace API: a Store holding the tree, a ReplyLoader that
// fills reply lists on demand, a Gateway for mutations, a FilterController
// for the top-level ordering, and a View tying them to one product.
package comments

import "time"

// Comment is the canonical shape every API payload is folded into before
// it reaches the Store.
type Comment struct {
	ID           string
	Body         string
	AuthorHandle string
	ProductID    string
	// ParentID is empty for top-level comments.
	ParentID string
	// ReplyCount is the server's count of direct replies. It is a hint; the
	// loaded children, when present, are authoritative for display.
	ReplyCount int
	// Zero when the endpoint did not report it.
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (c Comment) IsTopLevel() bool { return c.ParentID == "" }

// Edited reports whether the comment was changed after creation.
func (c Comment) Edited() bool {
	return !c.CreatedAt.IsZero() && c.UpdatedAt.After(c.CreatedAt)
}

// Filter selects the ordering of top-level comments.
type Filter int

const (
	FilterRecent Filter = iota
	FilterRelevant
)

func (f Filter) String() string {
	switch f {
	case FilterRecent:
		return "recent"
	case FilterRelevant:
		return "relevant"
	}
	return "unknown"
}
