package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/recognition-engine/points"
	"github.com/warp/recognition-engine/store/sqlite"
	"github.com/warp/recognition-engine/store/storetest"
)

func open(t *testing.T, path string) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Backend {
		return open(t, ":memory:")
	})
}

func TestStore_SurvivesReopen(t *testing.T) {
	// GIVEN: A file database with one funded user
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "recognition.db")
	s, err := sqlite.New(path)
	require.NoError(t, err)
	require.NoError(t, s.CreateOrganization(ctx, points.Organization{ID: "org-1", Name: "Acme Corp", Slug: "acme-corp"}))
	_, err = s.UpsertUser(ctx, points.User{ID: "ann", OrganizationID: "org-1", Role: points.RoleEmployee})
	require.NoError(t, err)
	_, err = s.AdjustPool(ctx, "ann", points.PoolPersonal, 42)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// WHEN: The file is opened again
	reopened := open(t, path)

	// THEN: Schema creation is idempotent and data is intact
	u, err := reopened.GetUser(ctx, "ann")
	require.NoError(t, err)
	assert.Equal(t, int64(42), u.Wallet.Personal)
	assert.Equal(t, points.RoleEmployee, u.Role)
}
