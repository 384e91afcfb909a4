package api_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/recognition-engine/api"
	"github.com/warp/recognition-engine/budget"
	"github.com/warp/recognition-engine/identity"
	"github.com/warp/recognition-engine/points"
)

func TestScheduler_InvalidCron(t *testing.T) {
	ts := newTestServer(t)

	_, err := api.NewDistributionScheduler(ts.svc, "every tuesday", ts.metrics, ts.log)

	assert.Error(t, err)
}

func TestScheduler_RunOnceCoversEveryOrganization(t *testing.T) {
	// GIVEN: Two organizations with one employee each, different allocations
	ts := newTestServer(t)
	ctx := context.Background()
	users := map[string]points.User{}
	for _, m := range []struct{ subject, org string }{{"ann", "Acme Corp"}, {"gus", "Globex"}} {
		u, err := ts.svc.Provisioner.Sync(ctx, identity.Claims{
			Subject:    m.subject,
			Groups:     []string{"/" + m.org},
			RealmRoles: []string{"employee"},
		})
		require.NoError(t, err)
		users[m.subject] = u
	}
	require.NoError(t, ts.svc.Budget.UpdateMonthlyAllocation(ctx, users["ann"].OrganizationID, points.RoleEmployee,
		budget.RoleAllocation{PointsPerMonth: 30, MaxPointsPerRecognition: 10}))
	require.NoError(t, ts.svc.Budget.UpdateMonthlyAllocation(ctx, users["gus"].OrganizationID, points.RoleEmployee,
		budget.RoleAllocation{PointsPerMonth: 45, MaxPointsPerRecognition: 10}))

	s, err := api.NewDistributionScheduler(ts.svc, "0 0 1 * *", ts.metrics, ts.log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Stop() })

	// WHEN: Running the distribution outside the schedule
	results, err := s.RunOnce(ctx)

	// THEN: Both organizations were refilled
	require.NoError(t, err)
	assert.Len(t, results, 2)
	for subject, want := range map[string]int64{"ann": 30, "gus": 45} {
		b, err := ts.svc.Ledger.GetBalance(ctx, users[subject].ID)
		require.NoError(t, err)
		assert.Equal(t, want, b.Allocation, subject)
	}
}

func TestScheduler_RunOnceSetsRatherThanAdds(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	u, err := ts.svc.Provisioner.Sync(ctx, identity.Claims{
		Subject:    "ann",
		Groups:     []string{"/Acme Corp"},
		RealmRoles: []string{"employee"},
	})
	require.NoError(t, err)
	require.NoError(t, ts.svc.Budget.UpdateMonthlyAllocation(ctx, u.OrganizationID, points.RoleEmployee,
		budget.RoleAllocation{PointsPerMonth: 30, MaxPointsPerRecognition: 10}))
	s, err := api.NewDistributionScheduler(ts.svc, "0 0 1 * *", nil, ts.log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Stop() })

	_, err = s.RunOnce(ctx)
	require.NoError(t, err)
	_, err = s.RunOnce(ctx)
	require.NoError(t, err)

	b, err := ts.svc.Ledger.GetBalance(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(30), b.Allocation)
}

func TestScheduler_EveryRunsMaintenance(t *testing.T) {
	ts := newTestServer(t)
	s, err := api.NewDistributionScheduler(ts.svc, "0 0 1 * *", ts.metrics, ts.log)
	require.NoError(t, err)

	ran := make(chan struct{}, 1)
	require.NoError(t, s.Every("tick", 20*time.Millisecond, func() {
		select {
		case ran <- struct{}{}:
		default:
		}
	}))
	s.Start()
	t.Cleanup(func() { _ = s.Stop() })

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("maintenance job never ran")
	}
}
