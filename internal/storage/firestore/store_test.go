//go:build integration

package firestore_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/illmade-knight/go-test/emulators"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fs "github.com/tinywideclouds/go-order-notification-service/internal/storage/firestore"
	"github.com/tinywideclouds/go-order-notification-service/pkg/dispatch"
)

func setupSuite(t *testing.T, projectID string) (context.Context, *firestore.Client) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	t.Cleanup(cancel)

	conn := emulators.SetupFirestoreEmulator(t, ctx, emulators.GetDefaultFirestoreConfig(projectID))
	client, err := firestore.NewClient(ctx, projectID, conn.ClientOptions...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return ctx, client
}

func TestAddressStore_Integration(t *testing.T) {
	ctx, client := setupSuite(t, "test-address-store")
	store := fs.NewAddressStore(client)

	t.Run("missing user is not found", func(t *testing.T) {
		_, err := store.GetAddress(ctx, "nobody")
		assert.ErrorIs(t, err, dispatch.ErrNotFound)
	})

	t.Run("set, list, remove", func(t *testing.T) {
		require.NoError(t, store.SetAddress(ctx, "user-1", "token-1"))
		require.NoError(t, store.SetAddress(ctx, "user-2", "token-2"))
		require.NoError(t, store.SetAddress(ctx, "user-1", "token-1b"))

		addr, err := store.GetAddress(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, "token-1b", addr)

		all, err := store.ListAddresses(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []dispatch.DeliveryTarget{
			dispatch.NewTarget("user-1", "token-1b"),
			dispatch.NewTarget("user-2", "token-2"),
		}, all)

		require.NoError(t, store.RemoveAddress(ctx, "user-1"))
		_, err = store.GetAddress(ctx, "user-1")
		assert.ErrorIs(t, err, dispatch.ErrNotFound)
		assert.NoError(t, store.RemoveAddress(ctx, "user-1"), "removing twice is fine")
	})

	t.Run("conditional remove keeps a replaced token", func(t *testing.T) {
		require.NoError(t, store.SetAddress(ctx, "user-3", "fresh-token"))

		removed, err := store.RemoveAddressIfMatch(ctx, "user-3", "stale-token")
		require.NoError(t, err)
		assert.False(t, removed)
		addr, err := store.GetAddress(ctx, "user-3")
		require.NoError(t, err)
		assert.Equal(t, "fresh-token", addr)

		removed, err = store.RemoveAddressIfMatch(ctx, "user-3", "fresh-token")
		require.NoError(t, err)
		assert.True(t, removed)
		_, err = store.GetAddress(ctx, "user-3")
		assert.ErrorIs(t, err, dispatch.ErrNotFound)

		removed, err = store.RemoveAddressIfMatch(ctx, "nobody", "any")
		require.NoError(t, err)
		assert.False(t, removed)
	})
}

func TestRecordStore_Integration(t *testing.T) {
	ctx, client := setupSuite(t, "test-record-store")
	store := fs.NewRecordStore(client)

	now := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	day := func(n int) time.Time { return now.AddDate(0, 0, n-100) }

	id, err := store.Insert(ctx, dispatch.NotificationRecord{
		ID:          "rec-old",
		RecipientID: "user-1",
		Title:       "Order Confirmed",
		Body:        "body",
		Category:    dispatch.CategoryOrderStatus,
		CreatedAt:   day(50),
		Extra:       map[string]string{"orderTotal": "450"},
	})
	require.NoError(t, err)
	assert.Equal(t, "rec-old", id)

	_, err = store.Insert(ctx, dispatch.NotificationRecord{ID: "rec-new", RecipientID: "user-1", CreatedAt: day(80)})
	require.NoError(t, err)

	generated, err := store.Insert(ctx, dispatch.NotificationRecord{RecipientID: "user-2", CreatedAt: day(1)})
	require.NoError(t, err)
	assert.NotEmpty(t, generated)

	snap, err := client.Collection("notifications").Doc("rec-old").Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "user-1", snap.Data()["userId"])
	assert.Equal(t, "order_status", snap.Data()["type"])
	assert.Equal(t, false, snap.Data()["isRead"])

	refs, err := store.QueryOlderThan(ctx, day(70))
	require.NoError(t, err)
	assert.ElementsMatch(t, []dispatch.RecordRef{{ID: "rec-old"}, {ID: generated}}, refs)

	require.NoError(t, store.DeleteBatch(ctx, refs))

	refs, err = store.QueryOlderThan(ctx, day(70))
	require.NoError(t, err)
	assert.Empty(t, refs)

	_, err = client.Collection("notifications").Doc("rec-new").Get(ctx)
	assert.NoError(t, err)
}

func TestRecordStore_DeleteManyIntegration(t *testing.T) {
	ctx, client := setupSuite(t, "test-record-store-bulk")
	store := fs.NewRecordStore(client)

	created := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	var refs []dispatch.RecordRef
	for i := 0; i < 120; i++ {
		id := fmt.Sprintf("bulk-%03d", i)
		_, err := store.Insert(ctx, dispatch.NotificationRecord{ID: id, RecipientID: "u", CreatedAt: created})
		require.NoError(t, err)
		refs = append(refs, dispatch.RecordRef{ID: id})
	}

	require.NoError(t, store.DeleteBatch(ctx, refs))

	left, err := store.QueryOlderThan(ctx, created.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, left)
}
