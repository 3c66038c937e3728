package storage

import (
	"context"
	"sync"
	"time"

	"xsslab/internal/domain"
)

// MemoryStore provides in-memory storage for development/testing
type MemoryStore struct {
	comments []domain.Comment
	messages []domain.Message
	cookies  []domain.StolenCookie
	views    []domain.AdminView
	now      func() time.Time
	mu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		comments: []domain.Comment{},
		messages: []domain.Message{},
		cookies:  []domain.StolenCookie{},
		views:    []domain.AdminView{},
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// =============================================================================
// CommentRepository Implementation
// =============================================================================

func (s *MemoryStore) AddComment(ctx context.Context, text string) (*domain.Comment, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, len(s.comments))
	for i, c := range s.comments {
		ids[i] = c.ID
	}
	comment := domain.Comment{ID: nextID(ids), Text: text, CreatedAt: s.now()}
	s.comments = append(s.comments, comment)
	return &comment, nil
}

func (s *MemoryStore) ListComments(ctx context.Context) ([]domain.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]domain.Comment{}, s.comments...), nil
}

// =============================================================================
// MessageRepository Implementation
// =============================================================================

func (s *MemoryStore) AddMessage(ctx context.Context, text string) (*domain.Message, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, len(s.messages))
	for i, m := range s.messages {
		ids[i] = m.ID
	}
	message := domain.Message{ID: nextID(ids), Text: text, CreatedAt: s.now()}
	s.messages = append(s.messages, message)
	return &message, nil
}

func (s *MemoryStore) ListMessages(ctx context.Context) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]domain.Message{}, s.messages...), nil
}

// =============================================================================
// CookieLog / AdminViewLog Implementation
// =============================================================================

func (s *MemoryStore) RecordStolenCookie(ctx context.Context, entry domain.StolenCookie) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}
	s.cookies = append(s.cookies, entry)
	return nil
}

func (s *MemoryStore) ListStolenCookies(ctx context.Context) ([]domain.StolenCookie, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]domain.StolenCookie{}, s.cookies...), nil
}

func (s *MemoryStore) RecordAdminView(ctx context.Context, view domain.AdminView) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if view.Timestamp.IsZero() {
		view.Timestamp = s.now()
	}
	s.views = append(s.views, view)
	return nil
}

func (s *MemoryStore) ListAdminViews(ctx context.Context) ([]domain.AdminView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]domain.AdminView{}, s.views...), nil
}

// Close is a no-op
func (s *MemoryStore) Close() error {
	return nil
}
