package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/warp/recognition-engine/store/postgres"
	"github.com/warp/recognition-engine/store/storetest"
)

// Requires a disposable database, e.g.
// TEST_POSTGRES_DSN="host=localhost user=postgres password=postgres dbname=recognition_test sslmode=disable"
func TestStore(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	s, err := postgres.New(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	storetest.Run(t, func(t *testing.T) storetest.Backend {
		require.NoError(t, s.Reset(context.Background()))
		return s
	})
}
