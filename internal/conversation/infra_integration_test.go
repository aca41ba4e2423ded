package conversation

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStoreIntegration(t *testing.T) {
	dsn := os.Getenv("SOWERFLOW_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("SOWERFLOW_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, EnsureSchema(ctx, db))
	_, err = db.ExecContext(ctx, `DELETE FROM conversations WHERE account_id = 'it-acct'`)
	require.NoError(t, err)

	store := NewRepo(db)
	seed := Seed{AccountID: "it-acct", CounterpartID: "u1", TenantID: "t1"}

	res, err := Append(ctx, store, seed, received(KindMessage, "m1"), clock(100))
	require.NoError(t, err)
	require.True(t, res.Created)

	res, err = Append(ctx, store, seed, received(KindMessage, "m1"), clock(200))
	require.NoError(t, err)
	assert.False(t, res.Appended)

	got, err := store.Get(ctx, "it-acct_u1")
	require.NoError(t, err)
	assert.Len(t, got.Events, 1)
	assert.Equal(t, "m1", got.Events[0].DedupeKey)
	assert.Equal(t, StatusAwaitingReply, got.Status)

	stale := got.Clone()
	next, _ := Apply(got, sent("s1", false), 300)
	require.NoError(t, store.Update(ctx, next))
	assert.ErrorIs(t, store.Update(ctx, stale), ErrConflict)

	_, err = store.Oldest(ctx, StatusAwaitingReply, 400)
	if err == nil {
		oldest, _ := store.Oldest(ctx, StatusAwaitingReply, 400)
		assert.NotEqual(t, "it-acct_u1", oldest.ID)
	} else {
		assert.ErrorIs(t, err, ErrNotFound)
	}
}
