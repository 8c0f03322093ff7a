// Package notifications keeps the user-facing toast messages raised by pages.
package notifications

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dspace-go/dsfront/internal/logging"
	"github.com/dspace-go/dsfront/internal/observe"
)

type Type string

const (
	TypeSuccess Type = "success"
	TypeError   Type = "error"
	TypeInfo    Type = "info"
	TypeWarning Type = "warning"
)

// Notification is one message shown to the user.
type Notification struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Title     string    `json:"title,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// DefaultCapacity bounds how many notifications are kept.
const DefaultCapacity = 50

// Service records notifications and publishes the current list.
type Service struct {
	logger   logging.Logger
	capacity int

	mu   sync.Mutex
	list *observe.Subject[[]Notification]
}

func NewService(capacity int, logger logging.Logger) *Service {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Service{
		logger:   logger.With(logging.Component("NotificationsService")),
		capacity: capacity,
		list:     observe.NewSubject[[]Notification](nil),
	}
}

// Success raises a success notification.
func (s *Service) Success(title, content string) Notification {
	return s.add(TypeSuccess, title, content)
}

// Error raises an error notification.
func (s *Service) Error(title, content string) Notification {
	return s.add(TypeError, title, content)
}

// Info raises an informational notification.
func (s *Service) Info(title, content string) Notification {
	return s.add(TypeInfo, title, content)
}

// Warning raises a warning notification.
func (s *Service) Warning(title, content string) Notification {
	return s.add(TypeWarning, title, content)
}

func (s *Service) add(t Type, title, content string) Notification {
	n := Notification{
		ID:        uuid.NewString(),
		Type:      t,
		Title:     title,
		Content:   content,
		CreatedAt: time.Now(),
	}
	s.mu.Lock()
	cur := s.list.Value()
	next := make([]Notification, 0, len(cur)+1)
	if len(cur) >= s.capacity {
		cur = cur[len(cur)-s.capacity+1:]
	}
	next = append(append(next, cur...), n)
	s.list.Next(next)
	s.mu.Unlock()

	s.logger.Info("notification", logging.Field{Key: "type", Value: string(t)}, logging.Field{Key: "content", Value: content})
	return n
}

// List returns the current notifications, oldest first.
func (s *Service) List() []Notification {
	return append([]Notification(nil), s.list.Value()...)
}

// Count returns how many notifications of type t are held.
func (s *Service) Count(t Type) int {
	n := 0
	for _, x := range s.list.Value() {
		if x.Type == t {
			n++
		}
	}
	return n
}

// Remove dismisses the notification with id.
func (s *Service) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.list.Value()
	next := make([]Notification, 0, len(cur))
	for _, n := range cur {
		if n.ID != id {
			next = append(next, n)
		}
	}
	if len(next) == len(cur) {
		return false
	}
	s.list.Next(next)
	return true
}

// Subscribe streams the list every time it changes, starting with the
// current one.
func (s *Service) Subscribe(ctx context.Context) <-chan []Notification {
	return s.list.Subscribe(ctx)
}
