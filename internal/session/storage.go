package session

import (
	"context"
	"errors"
)

var (
	// ErrSessionNotFound indicates that no session record exists for the chat.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionLocked indicates that a concurrent update already holds the per-chat lock.
	ErrSessionLocked = errors.New("session is locked, try again later")
)

// Storage defines the persistence contract for conversation sessions.
type Storage interface {
	// GetSession returns the current session for the specified chat.
	GetSession(ctx context.Context, chatID int64) (*Session, error)
	// SetSession saves the provided session for the specified chat.
	SetSession(ctx context.Context, chatID int64, s *Session) error
	// ClearSession removes the session for the specified chat.
	ClearSession(ctx context.Context, chatID int64) error
	// ListSessions returns every persisted session.
	ListSessions(ctx context.Context) ([]*Session, error)
}
