package storage

import (
	"context"
	"fmt"
	"log/slog"

	"xsslab/internal/domain"
)

// CookieSealer encrypts collected cookie values
type CookieSealer interface {
	Seal(plaintext string) (string, error)
	Open(value string) (string, error)
}

// SealedCookies wraps a Store so collected cookies are encrypted at rest.
// Everything else passes through unchanged.
type SealedCookies struct {
	Store
	sealer CookieSealer
}

// NewSealedCookies wraps store. A nil sealer returns store unchanged.
func NewSealedCookies(store Store, sealer CookieSealer) Store {
	if sealer == nil {
		return store
	}
	return &SealedCookies{Store: store, sealer: sealer}
}

func (s *SealedCookies) RecordStolenCookie(ctx context.Context, entry domain.StolenCookie) error {
	sealed, err := s.sealer.Seal(entry.Cookie)
	if err != nil {
		return fmt.Errorf("sealing cookie: %w", err)
	}
	entry.Cookie = sealed
	return s.Store.RecordStolenCookie(ctx, entry)
}

// ListStolenCookies opens every entry. Entries that cannot be opened keep
// their stored value so one bad line does not hide the rest.
func (s *SealedCookies) ListStolenCookies(ctx context.Context) ([]domain.StolenCookie, error) {
	entries, err := s.Store.ListStolenCookies(ctx)
	if err != nil {
		return nil, err
	}

	for i := range entries {
		opened, err := s.sealer.Open(entries[i].Cookie)
		if err != nil {
			slog.Warn("Failed to open collected cookie", "timestamp", entries[i].Timestamp, "error", err)
			continue
		}
		entries[i].Cookie = opened
	}
	return entries, nil
}

// Ping forwards to the wrapped store when it supports health checks.
func (s *SealedCookies) Ping(ctx context.Context) error {
	if p, ok := s.Store.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}
