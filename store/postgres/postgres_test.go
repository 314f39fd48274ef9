package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/warp/archive-engine/archive"
	"github.com/warp/archive-engine/archive/storetest"
	"github.com/warp/archive-engine/store/postgres"
)

// Set ARCHIVE_TEST_POSTGRES_DSN to a throwaway database to run these.
// The tables are truncated before every test.
const dsnEnv = "ARCHIVE_TEST_POSTGRES_DSN"

func openTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := os.Getenv(dsnEnv)
	if dsn == "" {
		t.Skipf("%s not set", dsnEnv)
	}

	ctx := context.Background()
	store, err := postgres.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.Truncate(ctx))
	return store
}

func TestPostgres(t *testing.T) {
	if os.Getenv(dsnEnv) == "" {
		t.Skipf("%s not set", dsnEnv)
	}
	storetest.Run(t, func(t *testing.T) archive.TxStore {
		return openTestStore(t)
	})
}

func TestPostgres_ConcurrentFirstAllocation(t *testing.T) {
	// GIVEN: Many replicas opening the first DOK box at once
	ctx := context.Background()
	store := openTestStore(t)
	engine := archive.NewEngine(store, archive.DefaultOptions(), nil)

	const callers = 10
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		go func() {
			_, err := engine.AllocateNextBox(ctx, "DOK", "d")
			errs <- err
		}()
	}
	for i := 0; i < callers; i++ {
		require.NoError(t, <-errs)
	}

	// THEN: The unique-violation losers were retried into later sequences
	box, err := engine.GetActiveBox(ctx, "DOK")
	require.NoError(t, err)
	require.EqualValues(t, callers, box.Sequence)
}
