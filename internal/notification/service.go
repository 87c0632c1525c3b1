package notification

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/tempoapp/tempo-worker/internal/errors"
)

// ErrNotificationNotFound is returned for lookups of unknown IDs.
var ErrNotificationNotFound = errors.Newf("notification not found").
	Component("notification").
	Category(errors.CategoryNotFound).
	Build()

const (
	// subscriberBuffer is the per-subscriber channel capacity. Slow
	// subscribers drop broadcasts rather than block the service.
	subscriberBuffer = 16
	// defaultMaxStored bounds the in-memory store when no cleanup
	// config is applied.
	defaultMaxStored = 1000
)

// ServiceConfig configures the notification service.
type ServiceConfig struct {
	MaxStored int
}

// subscriber is one broadcast listener with its cancellation context.
type subscriber struct {
	ch     chan *Notification
	ctx    context.Context
	cancel context.CancelFunc
}

// Service stores rendered notifications and broadcasts them to
// subscribers. Notifications sharing a tag collapse: a new one replaces
// the previous entry with the same tag.
type Service struct {
	mu            sync.RWMutex
	notifications []*Notification
	subscribers   map[<-chan *Notification]*subscriber
	maxStored     int
}

// NewService creates a notification service.
func NewService(config *ServiceConfig) *Service {
	maxStored := defaultMaxStored
	if config != nil && config.MaxStored > 0 {
		maxStored = config.MaxStored
	}
	return &Service{
		subscribers: make(map[<-chan *Notification]*subscriber),
		maxStored:   maxStored,
	}
}

// Subscribe registers a broadcast listener. The returned context is
// cancelled when the subscriber is removed or the service shuts down.
func (s *Service) Subscribe() (<-chan *Notification, context.Context) {
	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscriber{
		ch:     make(chan *Notification, subscriberBuffer),
		ctx:    ctx,
		cancel: cancel,
	}
	s.mu.Lock()
	s.subscribers[sub.ch] = sub
	s.mu.Unlock()
	return sub.ch, ctx
}

// Unsubscribe removes a listener registered with Subscribe.
func (s *Service) Unsubscribe(ch <-chan *Notification) {
	s.mu.Lock()
	sub, ok := s.subscribers[ch]
	if ok {
		delete(s.subscribers, ch)
	}
	s.mu.Unlock()
	if ok {
		sub.cancel()
	}
}

// Create builds, stores, and broadcasts a notification.
func (s *Service) Create(typ Type, priority Priority, title, message string) (*Notification, error) {
	n := NewNotification(typ, priority, title, message)
	if err := s.CreateWithMetadata(n); err != nil {
		return nil, err
	}
	return n, nil
}

// CreateWithMetadata stores and broadcasts a pre-built notification.
// If the notification carries a tag, any stored notification with the
// same tag is replaced so repeats collapse instead of stacking.
func (s *Service) CreateWithMetadata(n *Notification) error {
	if n == nil {
		return errors.Newf("nil notification").
			Component("notification").
			Category(errors.CategoryValidation).
			Build()
	}
	s.mu.Lock()
	if n.Tag != "" {
		s.notifications = slices.DeleteFunc(s.notifications, func(existing *Notification) bool {
			return existing.Tag == n.Tag && existing.Status != StatusAcknowledged
		})
	}
	s.notifications = append(s.notifications, n)
	if len(s.notifications) > s.maxStored {
		s.notifications = s.notifications[len(s.notifications)-s.maxStored:]
	}
	subs := make([]*subscriber, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.ch <- n:
		default:
			// Subscriber buffer full — drop rather than block the caller.
		}
	}
	return nil
}

// FilterOptions narrows List results.
type FilterOptions struct {
	Status     []Status
	Types      []Type
	Priorities []Priority
	Limit      int
	Offset     int
}

// List returns notifications newest-first, filtered and paginated.
// Expired notifications are excluded.
func (s *Service) List(filter *FilterOptions) ([]*Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	var out []*Notification
	for i := len(s.notifications) - 1; i >= 0; i-- {
		n := s.notifications[i]
		if n.Expired(now) {
			continue
		}
		if filter != nil && !matchesFilter(n, filter) {
			continue
		}
		out = append(out, n.Clone())
	}
	if filter != nil {
		if filter.Offset > 0 {
			if filter.Offset >= len(out) {
				return nil, nil
			}
			out = out[filter.Offset:]
		}
		if filter.Limit > 0 && len(out) > filter.Limit {
			out = out[:filter.Limit]
		}
	}
	return out, nil
}

func matchesFilter(n *Notification, f *FilterOptions) bool {
	if len(f.Status) > 0 && !slices.Contains(f.Status, n.Status) {
		return false
	}
	if len(f.Types) > 0 && !slices.Contains(f.Types, n.Type) {
		return false
	}
	if len(f.Priorities) > 0 && !slices.Contains(f.Priorities, n.Priority) {
		return false
	}
	return true
}

// Get returns one notification by ID.
func (s *Service) Get(id string) (*Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, n := range s.notifications {
		if n.ID == id {
			return n.Clone(), nil
		}
	}
	return nil, ErrNotificationNotFound
}

// GetByTag returns the stored notification carrying the given tag, if any.
func (s *Service) GetByTag(tag string) (*Notification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.notifications) - 1; i >= 0; i-- {
		if s.notifications[i].Tag == tag {
			return s.notifications[i].Clone(), true
		}
	}
	return nil, false
}

// MarkAsRead transitions a notification to read.
func (s *Service) MarkAsRead(id string) error {
	return s.setStatus(id, StatusRead)
}

// MarkAsAcknowledged transitions a notification to acknowledged.
func (s *Service) MarkAsAcknowledged(id string) error {
	return s.setStatus(id, StatusAcknowledged)
}

func (s *Service) setStatus(id string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.notifications {
		if n.ID == id {
			n.Status = status
			return nil
		}
	}
	return ErrNotificationNotFound
}

// Delete removes a notification.
func (s *Service) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.notifications {
		if n.ID == id {
			s.notifications = slices.Delete(s.notifications, i, i+1)
			return nil
		}
	}
	return ErrNotificationNotFound
}

// Clear removes all stored notifications. Returns how many were removed.
func (s *Service) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := len(s.notifications)
	s.notifications = nil
	return removed
}

// GetUnreadCount returns the number of unread, unexpired notifications.
func (s *Service) GetUnreadCount() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := time.Now()
	count := 0
	for _, n := range s.notifications {
		if n.Status == StatusUnread && !n.Expired(now) {
			count++
		}
	}
	return count, nil
}

// Stop cancels all subscribers.
func (s *Service) Stop() {
	s.mu.Lock()
	subs := make([]*subscriber, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		subs = append(subs, sub)
	}
	s.subscribers = make(map[<-chan *Notification]*subscriber)
	s.mu.Unlock()
	for _, sub := range subs {
		sub.cancel()
	}
}
