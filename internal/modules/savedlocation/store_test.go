package savedlocation

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreCRUD(t *testing.T) {
	dsn := os.Getenv("ARRIVO_DB_DSN")
	if dsn == "" {
		t.Skip("ARRIVO_DB_DSN not set; skipping integration test")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	store := NewStore(pool)
	l := &Location{UserID: 42, Name: "Gym", Address: "2 Side St", Latitude: 3, Longitude: 4, EarlyNotification: 30, ArrivalRadius: 500}
	require.NoError(t, store.Create(ctx, l))
	require.NotZero(t, l.ID)
	defer store.Delete(ctx, l.ID)

	got, err := store.Get(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, *l, *got)

	l.IsActive = true
	require.NoError(t, store.Update(ctx, l))
	list, err := store.ListByUser(ctx, 42)
	require.NoError(t, err)
	assert.Contains(t, list, *l)

	require.NoError(t, store.Delete(ctx, l.ID))
	_, err = store.Get(ctx, l.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
