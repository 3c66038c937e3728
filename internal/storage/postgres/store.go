package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"xsslab/internal/config"
	"xsslab/internal/domain"
	"xsslab/internal/resilience"
	"xsslab/internal/storage"
)

// Store implements storage.Store on PostgreSQL. Queries run behind a
// circuit breaker so an unreachable server fails requests fast.
type Store struct {
	db      *DB
	breaker *resilience.CircuitBreaker
}

var _ storage.Store = (*Store)(nil)

// NewStore connects, applies the schema and returns a ready store.
func NewStore(ctx context.Context, cfg *config.DatabaseConfig) (*Store, error) {
	db, err := NewDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := db.ApplySchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	breaker := resilience.NewCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown)
	breaker.OnStateChange = func(from, to resilience.CircuitState) {
		slog.Warn("Database circuit breaker changed state", "from", from, "to", to)
	}

	slog.Info("PostgreSQL store initialized", "host", cfg.Host, "database", cfg.Database)
	return &Store{db: db, breaker: breaker}, nil
}

// DB returns the connection pool, e.g. for pool statistics
func (s *Store) DB() *sql.DB {
	return s.db.DB
}

// Breaker returns the breaker guarding queries
func (s *Store) Breaker() *resilience.CircuitBreaker {
	return s.breaker
}

func (s *Store) guard(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.breaker.Execute(ctx, fn)
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks connectivity for readiness probes
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) AddComment(ctx context.Context, text string) (*domain.Comment, error) {
	if text == "" {
		return nil, storage.ErrEmptyText
	}

	c := domain.Comment{Text: text}
	err := s.guard(ctx, func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx,
			"INSERT INTO comments (text) VALUES ($1) RETURNING id, created_at", text).Scan(&c.ID, &c.CreatedAt)
	})
	if err != nil {
		return nil, fmt.Errorf("adding comment: %w", err)
	}
	return &c, nil
}

func (s *Store) ListComments(ctx context.Context) ([]domain.Comment, error) {
	comments := []domain.Comment{}
	err := s.guard(ctx, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, "SELECT id, text, created_at FROM comments ORDER BY id")
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var c domain.Comment
			if err := rows.Scan(&c.ID, &c.Text, &c.CreatedAt); err != nil {
				return err
			}
			comments = append(comments, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("listing comments: %w", err)
	}
	return comments, nil
}

func (s *Store) AddMessage(ctx context.Context, text string) (*domain.Message, error) {
	if text == "" {
		return nil, storage.ErrEmptyText
	}

	m := domain.Message{Text: text}
	err := s.guard(ctx, func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx,
			"INSERT INTO messages (text) VALUES ($1) RETURNING id, created_at", text).Scan(&m.ID, &m.CreatedAt)
	})
	if err != nil {
		return nil, fmt.Errorf("adding message: %w", err)
	}
	return &m, nil
}

func (s *Store) ListMessages(ctx context.Context) ([]domain.Message, error) {
	messages := []domain.Message{}
	err := s.guard(ctx, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, "SELECT id, text, created_at FROM messages ORDER BY id")
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var m domain.Message
			if err := rows.Scan(&m.ID, &m.Text, &m.CreatedAt); err != nil {
				return err
			}
			messages = append(messages, m)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	return messages, nil
}

func (s *Store) RecordStolenCookie(ctx context.Context, entry domain.StolenCookie) error {
	err := s.guard(ctx, func(ctx context.Context) error {
		if entry.Timestamp.IsZero() {
			_, err := s.db.ExecContext(ctx,
				"INSERT INTO stolen_cookies (ip_address, cookie) VALUES ($1, $2)", entry.IP, entry.Cookie)
			return err
		}
		_, err := s.db.ExecContext(ctx,
			"INSERT INTO stolen_cookies (collected_at, ip_address, cookie) VALUES ($1, $2, $3)",
			entry.Timestamp, entry.IP, entry.Cookie)
		return err
	})
	if err != nil {
		return fmt.Errorf("recording stolen cookie: %w", err)
	}
	return nil
}

func (s *Store) ListStolenCookies(ctx context.Context) ([]domain.StolenCookie, error) {
	entries := []domain.StolenCookie{}
	err := s.guard(ctx, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx,
			"SELECT collected_at, ip_address, cookie FROM stolen_cookies ORDER BY id")
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var e domain.StolenCookie
			if err := rows.Scan(&e.Timestamp, &e.IP, &e.Cookie); err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("listing stolen cookies: %w", err)
	}
	return entries, nil
}

func (s *Store) RecordAdminView(ctx context.Context, view domain.AdminView) error {
	err := s.guard(ctx, func(ctx context.Context) error {
		if view.Timestamp.IsZero() {
			_, err := s.db.ExecContext(ctx,
				"INSERT INTO admin_views (panel, message_count) VALUES ($1, $2)", string(view.Panel), view.MessageCount)
			return err
		}
		_, err := s.db.ExecContext(ctx,
			"INSERT INTO admin_views (viewed_at, panel, message_count) VALUES ($1, $2, $3)",
			view.Timestamp, string(view.Panel), view.MessageCount)
		return err
	})
	if err != nil {
		return fmt.Errorf("recording admin view: %w", err)
	}
	return nil
}

func (s *Store) ListAdminViews(ctx context.Context) ([]domain.AdminView, error) {
	views := []domain.AdminView{}
	err := s.guard(ctx, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx,
			"SELECT viewed_at, panel, message_count FROM admin_views ORDER BY id")
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var v domain.AdminView
			var panel string
			if err := rows.Scan(&v.Timestamp, &panel, &v.MessageCount); err != nil {
				return err
			}
			v.Panel = domain.AdminPanel(panel)
			views = append(views, v)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("listing admin views: %w", err)
	}
	return views, nil
}
