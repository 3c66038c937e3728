package postgres

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xsslab/internal/config"
	"xsslab/internal/domain"
	"xsslab/internal/resilience"
	"xsslab/internal/storage"
)

// Runs against a real server only when XSSLAB_TEST_POSTGRES_DSN is set.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("XSSLAB_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("XSSLAB_TEST_POSTGRES_DSN not set")
	}

	cfg := config.Default().Database
	cfg.DSN = dsn
	cfg.ConnectRetries = 1
	cfg.RetryBackoff = 100 * time.Millisecond

	ctx := context.Background()
	store, err := NewStore(ctx, &cfg)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	_, err = store.db.ExecContext(ctx, "TRUNCATE comments, messages, stolen_cookies, admin_views RESTART IDENTITY")
	require.NoError(t, err)
	return store
}

func TestStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	c, err := store.AddComment(ctx, "<script>alert(1)</script>")
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.ID)

	_, err = store.AddComment(ctx, "")
	assert.ErrorIs(t, err, storage.ErrEmptyText)

	_, err = store.AddMessage(ctx, "hello admin")
	require.NoError(t, err)

	require.NoError(t, store.RecordStolenCookie(ctx, domain.StolenCookie{IP: "10.0.0.9", Cookie: "s=1"}))
	require.NoError(t, store.RecordAdminView(ctx, domain.AdminView{Panel: domain.AdminPanelMessages, MessageCount: 1}))

	comments, err := store.ListComments(ctx)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "<script>alert(1)</script>", comments[0].Text)

	messages, err := store.ListMessages(ctx)
	require.NoError(t, err)
	require.Len(t, messages, 1)

	cookies, err := store.ListStolenCookies(ctx)
	require.NoError(t, err)
	require.Len(t, cookies, 1)
	assert.Equal(t, "10.0.0.9", cookies[0].IP)
	assert.False(t, cookies[0].Timestamp.IsZero())

	views, err := store.ListAdminViews(ctx)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, domain.AdminPanelMessages, views[0].Panel)
}

func TestApplySchemaIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.db.ApplySchema(context.Background()))
}

// Needs no server: nothing listens on port 1, so every query is refused.
func TestStoreBreakerFailsFast(t *testing.T) {
	sqlDB, err := sql.Open("postgres", "host=127.0.0.1 port=1 user=x dbname=x sslmode=disable connect_timeout=1")
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	store := &Store{
		db:      &DB{DB: sqlDB},
		breaker: resilience.NewCircuitBreaker(2, time.Minute),
	}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := store.ListComments(ctx)
		require.Error(t, err)
		assert.NotErrorIs(t, err, resilience.ErrCircuitOpen)
	}
	assert.Equal(t, resilience.StateOpen, store.Breaker().Status().State)

	_, err = store.AddComment(ctx, "x")
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
}
