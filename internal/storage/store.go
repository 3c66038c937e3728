// Package storage provides persistence for lab records: comments, contact
// messages, collected cookies and admin panel views.
package storage

import (
	"context"
	"errors"
	"strings"

	"xsslab/internal/domain"
)

// ErrEmptyText is returned when a comment or message has no text.
var ErrEmptyText = errors.New("text must not be empty")

// CommentRepository stores stored-XSS comments
type CommentRepository interface {
	AddComment(ctx context.Context, text string) (*domain.Comment, error)
	ListComments(ctx context.Context) ([]domain.Comment, error)
}

// MessageRepository stores contact messages
type MessageRepository interface {
	AddMessage(ctx context.Context, text string) (*domain.Message, error)
	ListMessages(ctx context.Context) ([]domain.Message, error)
}

// CookieLog stores collector hits
type CookieLog interface {
	RecordStolenCookie(ctx context.Context, entry domain.StolenCookie) error
	ListStolenCookies(ctx context.Context) ([]domain.StolenCookie, error)
}

// AdminViewLog stores admin panel views
type AdminViewLog interface {
	RecordAdminView(ctx context.Context, view domain.AdminView) error
	ListAdminViews(ctx context.Context) ([]domain.AdminView, error)
}

// Store is the full persistence surface used by the HTTP server.
// Text is stored exactly as submitted; nothing is sanitized on the way in.
type Store interface {
	CommentRepository
	MessageRepository
	CookieLog
	AdminViewLog
	Close() error
}

// nextID returns max(ids)+1, or 1 for an empty set.
func nextID(ids []int64) int64 {
	var maxID int64
	for _, id := range ids {
		if id > maxID {
			maxID = id
		}
	}
	return maxID + 1
}

// singleLine replaces line breaks so one record always stays on one line.
func singleLine(s string) string {
	return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
}
