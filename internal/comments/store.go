package comments

import (
	"sync"
	"time"
)

// Store is the comment forest of one product view. Unknown ids are
// tolerated everywhere as no-ops since the UI may race a delete with a
// stale render. Safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	nodes    map[string]Comment
	topLevel []string
	children map[string][]string
	loaded   map[string]bool
	// closed stores reject every write.
	closed bool

	nextSub int
	subs    map[int]chan struct{}
}

func NewStore() *Store {
	return &Store{
		nodes:    make(map[string]Comment),
		children: make(map[string][]string),
		loaded:   make(map[string]bool),
		subs:     make(map[int]chan struct{}),
	}
}

// ReplaceTopLevel installs a new top-level list. Loaded reply subtrees of
// ids present in both the old and new list are kept; subtrees of dropped
// ids are evicted.
func (s *Store) ReplaceTopLevel(cs []Comment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	keep := make(map[string]bool, len(cs))
	order := make([]string, 0, len(cs))
	for _, c := range cs {
		if c.ID == "" || keep[c.ID] {
			continue
		}
		keep[c.ID] = true
		order = append(order, c.ID)
	}
	for _, id := range s.topLevel {
		if !keep[id] {
			s.evictLocked(id)
		}
	}
	for _, c := range cs {
		if !keep[c.ID] {
			continue
		}
		if old, ok := s.nodes[c.ID]; ok && !old.IsTopLevel() {
			s.detachLocked(old)
			s.evictLocked(c.ID)
		}
		c.ParentID = ""
		s.nodes[c.ID] = c
	}
	s.topLevel = order
	s.notifyLocked()
}

// SetChildren records cs as the ordered replies of parentID and marks it
// loaded. Previous children missing from cs are evicted with their
// subtrees. It returns false and changes nothing when parentID is not in
// the tree, which is how a reply load that lost a race with a delete is
// dropped.
func (s *Store) SetChildren(parentID string, cs []Comment) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}

	parent, ok := s.nodes[parentID]
	if !ok {
		return false
	}

	seen := make(map[string]bool, len(cs))
	ids := make([]string, 0, len(cs))
	for _, c := range cs {
		if c.ID == "" || seen[c.ID] || s.isAncestorLocked(c.ID, parentID) {
			continue
		}
		seen[c.ID] = true
		ids = append(ids, c.ID)
	}
	for _, old := range s.children[parentID] {
		if !seen[old] {
			s.evictLocked(old)
		}
	}
	for _, c := range cs {
		if !seen[c.ID] {
			continue
		}
		if old, ok := s.nodes[c.ID]; ok && old.ParentID != parentID {
			s.detachLocked(old)
		}
		s.nodes[c.ID] = adopt(parent, c)
	}
	s.children[parentID] = ids
	s.loaded[parentID] = true
	s.notifyLocked()
	return true
}

// InsertTopLevel prepends c. An id already in the tree is moved to the
// front rather than duplicated.
func (s *Store) InsertTopLevel(c Comment) {
	if c.ID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	if old, ok := s.nodes[c.ID]; ok {
		s.detachLocked(old)
		if !old.IsTopLevel() {
			s.evictLocked(c.ID)
		}
	}
	c.ParentID = ""
	s.nodes[c.ID] = c
	s.topLevel = append([]string{c.ID}, s.topLevel...)
	s.notifyLocked()
}

// InsertChild appends c to the replies of parentID and marks the parent
// loaded so the new reply shows without a fetch. The parent's ReplyCount
// is bumped locally. It returns false when parentID is not in the tree.
func (s *Store) InsertChild(parentID string, c Comment) bool {
	if c.ID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}

	parent, ok := s.nodes[parentID]
	if !ok || s.isAncestorLocked(c.ID, parentID) {
		return false
	}
	if old, ok := s.nodes[c.ID]; ok && old.ParentID == parentID {
		// Already listed, e.g. a reply load raced the create.
		s.nodes[c.ID] = adopt(parent, c)
		s.notifyLocked()
		return true
	} else if ok {
		s.detachLocked(old)
	}

	s.nodes[c.ID] = adopt(parent, c)
	s.children[parentID] = append(s.children[parentID], c.ID)
	s.loaded[parentID] = true
	parent.ReplyCount++
	s.nodes[parentID] = parent
	s.notifyLocked()
	return true
}

// UpdateBody replaces the body of id. A zero updatedAt leaves the
// timestamp alone.
func (s *Store) UpdateBody(id, body string, updatedAt time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}

	c, ok := s.nodes[id]
	if !ok {
		return false
	}
	c.Body = body
	if !updatedAt.IsZero() {
		c.UpdatedAt = updatedAt
	}
	s.nodes[id] = c
	s.notifyLocked()
	return true
}

// Remove deletes id and every descendant. Removing an unknown id is a
// no-op.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	c, ok := s.nodes[id]
	if !ok {
		return
	}
	s.detachLocked(c)
	if p, ok := s.nodes[c.ParentID]; ok && p.ReplyCount > 0 {
		p.ReplyCount--
		s.nodes[p.ID] = p
	}
	s.evictLocked(id)
	s.notifyLocked()
}

// Unload forgets that the replies of parentID were fetched. The current
// list stays visible until the next SetChildren replaces it.
func (s *Store) Unload(parentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.loaded[parentID] {
		delete(s.loaded, parentID)
		s.notifyLocked()
	}
}

// Reset empties the tree.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

// Close empties the tree and turns every later write into a no-op.
// Reads keep working and see an empty tree.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.resetLocked()
}

func (s *Store) resetLocked() {
	s.nodes = make(map[string]Comment)
	s.children = make(map[string][]string)
	s.loaded = make(map[string]bool)
	s.topLevel = nil
	s.notifyLocked()
}

func (s *Store) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.nodes[id]
	return ok
}

func (s *Store) Get(id string) (Comment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.nodes[id]
	return c, ok
}

func (s *Store) IsLoaded(parentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded[parentID]
}

// Len is the number of comments held, replies included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.nodes)
}

// Snapshot returns an immutable copy of the tree.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		topLevel: append([]string(nil), s.topLevel...),
		nodes:    make(map[string]Comment, len(s.nodes)),
		children: make(map[string][]string, len(s.children)),
		loaded:   make(map[string]bool, len(s.loaded)),
	}
	for id, c := range s.nodes {
		snap.nodes[id] = c
	}
	for id, ids := range s.children {
		snap.children[id] = append([]string(nil), ids...)
	}
	for id := range s.loaded {
		snap.loaded[id] = true
	}
	return snap
}

// Subscribe returns a channel that receives a value after mutations. It
// is buffered by one and never blocks the writer, so bursts collapse into
// a single wake-up. Call the returned func to unsubscribe.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

func (s *Store) notifyLocked() {
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// detachLocked removes c.ID from the list that currently holds it.
func (s *Store) detachLocked(c Comment) {
	if c.IsTopLevel() {
		s.topLevel = without(s.topLevel, c.ID)
		return
	}
	if ids, ok := s.children[c.ParentID]; ok {
		s.children[c.ParentID] = without(ids, c.ID)
	}
}

// evictLocked drops id and its descendants from every index. It does not
// touch the list that references id; see detachLocked.
func (s *Store) evictLocked(id string) {
	for _, child := range s.children[id] {
		s.evictLocked(child)
	}
	delete(s.nodes, id)
	delete(s.children, id)
	delete(s.loaded, id)
}

// isAncestorLocked reports whether candidate is id or one of its parents.
func (s *Store) isAncestorLocked(candidate, id string) bool {
	for hops := 0; id != "" && hops <= len(s.nodes); hops++ {
		if id == candidate {
			return true
		}
		c, ok := s.nodes[id]
		if !ok {
			return false
		}
		id = c.ParentID
	}
	return false
}

// adopt pins c under parent: the parent id is forced and the product is
// inherited when the payload left it out.
func adopt(parent, c Comment) Comment {
	c.ParentID = parent.ID
	if c.ProductID == "" {
		c.ProductID = parent.ProductID
	}
	return c
}

func without(ids []string, id string) []string {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
