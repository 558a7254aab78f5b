package keychain

import (
	"context"
	"database/sql"
	"testing"

	"hwscraper-backend/lib/telemetry"

	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	sqlite, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })
	_, err = sqlite.Exec(Schema)
	require.NoError(t, err)
	return NewStore(sqlite)
}

func TestKeychain(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:lib/keychain")
	defer cleanup()

	store := newTestStore(t)
	ctx := context.Background()

	_, found, err := store.GetCredentials(ctx, "alice", "manodienynas")
	require.NoError(t, err)
	require.False(t, found)

	err = store.SetCredentials(ctx, "alice", "manodienynas", Credentials{
		Username: "alice@example.com",
		Password: "hunter2",
	})
	require.NoError(t, err)

	creds, found, err := store.GetCredentials(ctx, "alice", "manodienynas")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "alice@example.com", creds.Username)
	require.False(t, creds.Verified)

	require.NoError(t, store.SetVerified(ctx, "alice", "manodienynas", true))

	creds, _, err = store.GetCredentials(ctx, "alice", "manodienynas")
	require.NoError(t, err)
	require.True(t, creds.Verified)
	require.NotZero(t, creds.LastVerifiedAt)

	require.NoError(t, store.SetVerified(ctx, "alice", "manodienynas", false))
	creds, _, err = store.GetCredentials(ctx, "alice", "manodienynas")
	require.NoError(t, err)
	require.False(t, creds.Verified)
}
