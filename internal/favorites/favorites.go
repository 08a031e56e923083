// Package favorites tracks which products the user liked and toggles
// likes against the marketplace API.
package favorites

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/example/market-comments/internal/marketapi"
	"github.com/example/market-comments/internal/platform/analytics"
	"github.com/example/market-comments/internal/platform/logging"
)

// Service holds the user's likes. A product id maps to the like id the
// API needs for unliking.
type Service struct {
	api    marketapi.LikeAPI
	events *analytics.Publisher
	log    *zap.Logger

	// toggles coalesces repeated toggles of one product while a request
	// is in flight, so a double click cannot like and unlike at once.
	toggles singleflight.Group

	mu      sync.RWMutex
	likes   map[string]string
	pending map[string]bool
	loaded  bool
}

func New(api marketapi.LikeAPI, events *analytics.Publisher, log *zap.Logger) *Service {
	log = logging.OrNop(log)
	return &Service{
		api:     api,
		events:  events,
		log:     log,
		likes:   make(map[string]string),
		pending: make(map[string]bool),
	}
}

// Load replaces the local likes with the server's.
func (s *Service) Load(ctx context.Context) error {
	ps, err := s.api.Likes(ctx)
	if err != nil {
		return err
	}
	likes := make(map[string]string, len(ps))
	for _, p := range ps {
		product := p.ProductRef()
		if product == "" || p.ID == "" {
			continue
		}
		likes[product] = p.ID.String()
	}

	s.mu.Lock()
	s.likes = likes
	s.loaded = true
	s.mu.Unlock()
	s.log.Debug("favorites: loaded", zap.Int("count", len(likes)))
	return nil
}

func (s *Service) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

func (s *Service) IsLiked(productID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.likes[productID]
	return ok
}

// Products returns the liked product ids in sorted order.
func (s *Service) Products() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.likes))
	for id := range s.likes {
		out = append(out, id)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Pending reports whether a toggle of productID is in flight.
func (s *Service) Pending(productID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pending[productID]
}

func (s *Service) setPending(productID string, on bool) {
	s.mu.Lock()
	if on {
		s.pending[productID] = true
	} else {
		delete(s.pending, productID)
	}
	s.mu.Unlock()
}

// Toggle likes productID if it is not liked and unlikes it otherwise,
// returning the new state. Callers toggling the same product while a
// request is in flight share its outcome instead of issuing another.
func (s *Service) Toggle(ctx context.Context, productID string) (bool, error) {
	ctx = context.WithoutCancel(ctx)
	v, err, shared := s.toggles.Do(productID, func() (any, error) {
		s.setPending(productID, true)
		defer s.setPending(productID, false)
		return s.toggle(ctx, productID)
	})
	if shared {
		s.log.Debug("favorites: coalesced toggle", zap.String("product_id", productID))
	}
	if err != nil {
		return s.IsLiked(productID), err
	}
	return v.(bool), nil
}

func (s *Service) toggle(ctx context.Context, productID string) (bool, error) {
	s.mu.RLock()
	likeID, liked := s.likes[productID]
	s.mu.RUnlock()

	if liked {
		if err := s.api.RemoveLike(ctx, likeID); err != nil && !marketapi.IsNotFound(err) {
			return true, err
		}
		s.mu.Lock()
		delete(s.likes, productID)
		s.mu.Unlock()
		s.events.Publish(analytics.SubjectProductUnliked, "product_unliked", "", map[string]any{
			"product_id": productID,
		})
		return false, nil
	}

	p, err := s.api.AddLike(ctx, productID)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	s.likes[productID] = p.ID.String()
	s.mu.Unlock()
	s.events.Publish(analytics.SubjectProductLiked, "product_liked", "", map[string]any{
		"product_id": productID,
		"like_id":    p.ID.String(),
	})
	return true, nil
}
