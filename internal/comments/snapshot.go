package comments

// Snapshot is a read-only copy of a Store taken at one instant.
type Snapshot struct {
	topLevel []string
	nodes    map[string]Comment
	children map[string][]string
	loaded   map[string]bool
}

// TopLevel returns the top-level comments, newest first under the recent
// filter.
func (s Snapshot) TopLevel() []Comment {
	return s.collect(s.topLevel)
}

func (s Snapshot) Node(id string) (Comment, bool) {
	c, ok := s.nodes[id]
	return c, ok
}

// Children returns the replies of id in load order. The bool reports
// whether the replies were fetched; an unloaded parent and a loaded one
// with no replies both return an empty slice.
func (s Snapshot) Children(id string) ([]Comment, bool) {
	return s.collect(s.children[id]), s.loaded[id]
}

func (s Snapshot) IsLoaded(id string) bool { return s.loaded[id] }

func (s Snapshot) Len() int { return len(s.nodes) }

// ReplyTotal is the reply count to display for id: the number of loaded
// children once fetched, the server's hint before that.
func (s Snapshot) ReplyTotal(id string) int {
	if s.loaded[id] {
		return len(s.children[id])
	}
	return s.nodes[id].ReplyCount
}

// Walk visits the tree depth first in display order. Unloaded reply lists
// are not descended into. Returning false from fn skips the subtree.
func (s Snapshot) Walk(fn func(c Comment, depth int) bool) {
	var visit func(ids []string, depth int)
	visit = func(ids []string, depth int) {
		for _, id := range ids {
			c, ok := s.nodes[id]
			if !ok {
				continue
			}
			if fn(c, depth) {
				visit(s.children[id], depth+1)
			}
		}
	}
	visit(s.topLevel, 0)
}

func (s Snapshot) collect(ids []string) []Comment {
	out := make([]Comment, 0, len(ids))
	for _, id := range ids {
		if c, ok := s.nodes[id]; ok {
			out = append(out, c)
		}
	}
	return out
}
