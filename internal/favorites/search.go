package favorites

import (
	"strings"
	"sync"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Item is one searchable favorite.
type Item struct {
	ProductID string
	Title     string
}

// Search filters favorites as the user types. Queries arriving within
// the debounce window collapse into one evaluation of the latest query.
type Search struct {
	delay    time.Duration
	onResult func(query string, matches []Item)

	mu      sync.Mutex
	items   []Item
	query   string
	timer   *time.Timer
	seq     uint64
	stopped bool
}

// NewSearch calls onResult from a timer goroutine with the matches of the
// settled query.
func NewSearch(delay time.Duration, onResult func(query string, matches []Item)) *Search {
	return &Search{delay: delay, onResult: onResult}
}

func (s *Search) SetItems(items []Item) {
	s.mu.Lock()
	s.items = append([]Item(nil), items...)
	s.mu.Unlock()
}

// Query records q and (re)starts the debounce timer.
func (s *Search) Query(q string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.query = q
	s.seq++
	seq := s.seq
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.delay, func() { s.fire(seq) })
}

// Flush evaluates the pending query now.
func (s *Search) Flush() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.seq++
	seq := s.seq
	s.mu.Unlock()
	s.fire(seq)
}

// Stop cancels any pending evaluation. Later queries are ignored.
func (s *Search) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.seq++
	if s.timer != nil {
		s.timer.Stop()
	}
}

func (s *Search) fire(seq uint64) {
	s.mu.Lock()
	if seq != s.seq || s.stopped {
		s.mu.Unlock()
		return
	}
	q, items := s.query, s.items
	s.mu.Unlock()

	if s.onResult != nil {
		s.onResult(q, Filter(items, q))
	}
}

// Filter returns the items whose title or product id matches q. An empty
// query matches everything.
func Filter(items []Item, q string) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if Match(q, it.Title) || Match(q, it.ProductID) {
			out = append(out, it)
		}
	}
	return out
}

// Match reports whether text contains query, ignoring case and accents.
func Match(query, text string) bool {
	q := fold(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	return strings.Contains(fold(text), q)
}

func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return cases.Fold().String(out)
}
