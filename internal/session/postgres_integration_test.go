//go:build integration

package session

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isearch-project/musebag/internal/log"
	"github.com/isearch-project/musebag/internal/mqf"
	"github.com/isearch-project/musebag/internal/testutil"
)

func setupStore(t *testing.T) *PostgresStore {
	t.Helper()

	db, cleanup := testutil.SetupPostgres(t)
	t.Cleanup(cleanup)

	require.NoError(t, Migrate(db.URL))
	return NewPostgresStore(db.Pool, log.NewNop())
}

func TestPostgresStore_RoundTrip_Integration(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "unknown")
	require.ErrorIs(t, err, ErrNotFound)

	p, err := store.Update(ctx, "tok", func(p *Profile) error {
		p.Email = "user@example.org"
		p.QueryCounter = 2
		return nil
	})
	require.NoError(t, err)
	assert.True(t, p.IsGuest())

	got, err := store.Get(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "user@example.org", got.Email)
	assert.Equal(t, 2, got.QueryCounter)

	require.NoError(t, store.Delete(ctx, "tok"))
	_, err = store.Get(ctx, "tok")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStore_ConcurrentAppends_Integration(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := store.Update(ctx, "tok", func(p *Profile) error {
				return p.AppendItem(mqf.UploadItem{Name: "item"})
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx, "tok")
	require.NoError(t, err)
	assert.Len(t, got.Items, n, "row locking must serialize appends")
}
