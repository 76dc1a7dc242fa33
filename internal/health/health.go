// Package health tracks the health of the pieces playback depends on:
// source providers, the upstream comment service, and local storage.
// All state is in-memory and resets on application restart.
package health

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Status represents the health state of an item.
type Status string

const (
	StatusOK      Status = "ok"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

// Category represents the category of health items.
type Category string

const (
	CategoryProviders Category = "providers"
	CategoryUpstream  Category = "upstream"
	CategoryStorage   Category = "storage"
)

// Item represents a single health-tracked item.
type Item struct {
	ID        string     `json:"id"`
	Category  Category   `json:"category"`
	Name      string     `json:"name"`
	Status    Status     `json:"status"`
	Message   string     `json:"message,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// Broadcaster pushes health changes to connected clients.
type Broadcaster interface {
	Broadcast(event string, payload interface{})
}

// Service manages the health state of all tracked items.
type Service struct {
	items       map[string]*Item
	mu          sync.RWMutex
	broadcaster Broadcaster
	logger      zerolog.Logger
}

// NewService creates a health service.
func NewService(logger zerolog.Logger) *Service {
	return &Service{
		items:  make(map[string]*Item),
		logger: logger.With().Str("component", "health").Logger(),
	}
}

// SetBroadcaster sets the event broadcaster for real-time updates.
func (s *Service) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// SetStatus records the current status of an item, creating it on first
// report. Status changes are broadcast; repeated identical reports are not.
func (s *Service) SetStatus(category Category, id, name string, status Status, message string) {
	now := time.Now()

	s.mu.Lock()
	key := string(category) + "/" + id
	item, exists := s.items[key]
	changed := !exists || item.Status != status
	s.items[key] = &Item{
		ID:        id,
		Category:  category,
		Name:      name,
		Status:    status,
		Message:   message,
		Timestamp: &now,
	}
	s.mu.Unlock()

	if !changed {
		return
	}

	s.logger.Info().
		Str("category", string(category)).
		Str("id", id).
		Str("status", string(status)).
		Str("message", message).
		Msg("health status changed")

	if s.broadcaster != nil {
		s.broadcaster.Broadcast("health.changed", Item{
			ID:       id,
			Category: category,
			Name:     name,
			Status:   status,
			Message:  message,
		})
	}
}

// Items returns every tracked item, ordered by category then id.
func (s *Service) Items() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]Item, 0, len(s.items))
	for _, item := range s.items {
		items = append(items, *item)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Category != items[j].Category {
			return items[i].Category < items[j].Category
		}
		return items[i].ID < items[j].ID
	})
	return items
}

// Overall reduces all items to a single status: the worst one reported.
func (s *Service) Overall() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	overall := StatusOK
	for _, item := range s.items {
		switch item.Status {
		case StatusError:
			return StatusError
		case StatusWarning:
			overall = StatusWarning
		}
	}
	return overall
}
