package conversation

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func TestMongoStoreIntegration(t *testing.T) {
	uri := os.Getenv("SOWERFLOW_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("SOWERFLOW_TEST_MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	defer client.Disconnect(context.Background())

	db := client.Database("sowerflow_test")
	require.NoError(t, db.Collection("conversations").Drop(ctx))
	store := NewMongoStore(db)
	require.NoError(t, store.EnsureIndexes(ctx))

	seed := Seed{AccountID: "it-acct", CounterpartID: "u1", TenantID: "t1"}
	res, err := Append(ctx, store, seed, received(KindMessage, "m1"), clock(100))
	require.NoError(t, err)
	require.True(t, res.Created)
	assert.Equal(t, int64(1), res.Conversation.Version)

	assert.ErrorIs(t, store.Create(ctx, &Conversation{ID: "it-acct_u1"}), ErrConflict)

	res, err = Append(ctx, store, seed, received(KindMessage, "m1"), clock(200))
	require.NoError(t, err)
	assert.False(t, res.Appended)

	got, err := store.Get(ctx, "it-acct_u1")
	require.NoError(t, err)
	require.Len(t, got.Events, 1)
	assert.Equal(t, "m1", got.Events[0].DedupeKey)
	assert.Equal(t, StatusAwaitingReply, got.Status)

	// Conditional replace on version.
	stale := got.Clone()
	claimed, err := Claim(got, "claim-1", 1000, 150)
	require.NoError(t, err)
	require.NoError(t, store.Update(ctx, claimed))
	assert.Equal(t, int64(2), claimed.Version)
	assert.ErrorIs(t, store.Update(ctx, stale), ErrConflict)
	assert.ErrorIs(t, store.Update(ctx, &Conversation{ID: "missing", Version: 1}), ErrNotFound)

	// A second awaiting conversation, newer than the first.
	_, err = Append(ctx, store, Seed{AccountID: "it-acct", CounterpartID: "u2", TenantID: "t1"}, received(KindMessage, "m2"), clock(300))
	require.NoError(t, err)

	next, err := store.Oldest(ctx, StatusAwaitingReply, 500)
	require.NoError(t, err)
	assert.Equal(t, "it-acct_u2", next.ID)

	next, err = store.Oldest(ctx, StatusAwaitingReply, 1000)
	require.NoError(t, err)
	assert.Equal(t, "it-acct_u1", next.ID)
	assert.Equal(t, "claim-1", next.ClaimID)

	released, ok := Release(next, "claim-1")
	require.True(t, ok)
	require.NoError(t, store.Update(ctx, released))
	next, err = store.Oldest(ctx, StatusAwaitingReply, 500)
	require.NoError(t, err)
	assert.Equal(t, "it-acct_u1", next.ID)

	_, err = store.Oldest(ctx, StatusConverted, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}
