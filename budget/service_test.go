package budget_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/recognition-engine/budget"
	"github.com/warp/recognition-engine/points"
	"github.com/warp/recognition-engine/store/memory"
)

const org = points.OrgID("org-1")

type fixture struct {
	store  *memory.Store
	ledger *points.Ledger
	svc    *budget.Service
	hook   *test.Hook
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memory.New()
	require.NoError(t, store.CreateOrganization(context.Background(), points.Organization{ID: org, Name: "Acme Corp", Slug: "acme-corp"}))
	log, hook := test.NewNullLogger()
	ledger := points.NewLedger(store, nil, log)
	return fixture{store: store, ledger: ledger, svc: budget.NewService(store, store, ledger, log), hook: hook}
}

func (f fixture) user(t *testing.T, id points.UserID, role points.Role) {
	t.Helper()
	_, err := f.store.UpsertUser(context.Background(), points.User{ID: id, OrganizationID: org, Role: role})
	require.NoError(t, err)
}

// =============================================================================
// CONFIGURATION
// =============================================================================

func TestGetConfiguration_LazyDefaults(t *testing.T) {
	f := newFixture(t)

	cfg, err := f.svc.GetConfiguration(context.Background(), org)

	require.NoError(t, err)
	assert.Equal(t, org, cfg.OrganizationID)
	assert.True(t, cfg.YearlyBudget.IsZero())
	for _, c := range budget.Categories() {
		assert.False(t, cfg.Category(c).IsActive, c)
	}
	active, err := f.svc.GetActiveCategories(context.Background(), org)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestUpdateCategorySettings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		setting budget.CategorySetting
		wantErr bool
	}{
		{"active with cap", budget.CategorySetting{IsActive: true, DefaultPoints: 10, MaxPoints: 30}, false},
		{"no cap", budget.CategorySetting{IsActive: true, DefaultPoints: 10}, false},
		{"negative default", budget.CategorySetting{DefaultPoints: -1}, true},
		{"negative max", budget.CategorySetting{MaxPoints: -1}, true},
		{"default above max", budget.CategorySetting{DefaultPoints: 40, MaxPoints: 30}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.svc.UpdateCategorySettings(ctx, org, budget.CategoryTeamwork, tt.setting)
			if tt.wantErr {
				assert.ErrorIs(t, err, points.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			cfg, err := f.svc.GetConfiguration(ctx, org)
			require.NoError(t, err)
			assert.Equal(t, tt.setting, cfg.Category(budget.CategoryTeamwork))
		})
	}

	err := f.svc.UpdateCategorySettings(ctx, org, budget.Category(42), budget.CategorySetting{})
	assert.ErrorIs(t, err, points.ErrInvalidInput)
}

func TestGetActiveCategories_EnumOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, c := range []budget.Category{budget.CategoryExcellence, budget.CategoryTeamwork, budget.CategoryLeadership} {
		require.NoError(t, f.svc.UpdateCategorySettings(ctx, org, c, budget.CategorySetting{IsActive: true}))
	}
	require.NoError(t, f.svc.UpdateCategorySettings(ctx, org, budget.CategoryLeadership, budget.CategorySetting{IsActive: false}))

	active, err := f.svc.GetActiveCategories(ctx, org)

	require.NoError(t, err)
	assert.Equal(t, []budget.Category{budget.CategoryTeamwork, budget.CategoryExcellence}, active)
}

func TestDefaultPoints_FallsBackToBuiltin(t *testing.T) {
	cfg := budget.NewConfiguration(org)
	cfg.CategorySettings[budget.CategoryInnovation] = budget.CategorySetting{IsActive: true, DefaultPoints: 25}

	assert.Equal(t, int64(25), cfg.DefaultPoints(budget.CategoryInnovation))
	assert.Equal(t, int64(15), cfg.DefaultPoints(budget.CategoryExcellence))
	assert.Equal(t, int64(20), cfg.DefaultPoints(budget.CategoryLeadership))
}

func TestUpdateCategorySettings_ZeroDefaultResolvesToBuiltin(t *testing.T) {
	// GIVEN: An admin saves TEAMWORK with a zero default and a cap
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.UpdateCategorySettings(ctx, org, budget.CategoryTeamwork,
		budget.CategorySetting{IsActive: true, DefaultPoints: 0, MaxPoints: 30}))

	// WHEN: Reading the configuration back
	cfg, err := f.svc.GetConfiguration(ctx, org)

	// THEN: The stored value stays zero, the resolved default is the builtin one
	require.NoError(t, err)
	assert.Zero(t, cfg.Category(budget.CategoryTeamwork).DefaultPoints)
	assert.Equal(t, budget.CategoryTeamwork.BuiltinDefaultPoints(), cfg.DefaultPoints(budget.CategoryTeamwork))
	assert.Equal(t, int64(10), cfg.DefaultPoints(budget.CategoryTeamwork))
}

func TestUpdateMonthlyAllocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.UpdateMonthlyAllocation(ctx, org, points.RoleManager,
		budget.RoleAllocation{PointsPerMonth: 100, MaxPointsPerRecognition: 50}))
	assert.ErrorIs(t, f.svc.UpdateMonthlyAllocation(ctx, org, points.RoleManager,
		budget.RoleAllocation{PointsPerMonth: -1}), points.ErrInvalidInput)
	assert.ErrorIs(t, f.svc.UpdateMonthlyAllocation(ctx, org, points.Role(99),
		budget.RoleAllocation{}), points.ErrInvalidInput)

	cfg, err := f.svc.GetConfiguration(ctx, org)
	require.NoError(t, err)
	assert.Equal(t, budget.RoleAllocation{PointsPerMonth: 100, MaxPointsPerRecognition: 50}, cfg.Allocation(points.RoleManager))
}

func TestSetYearlyBudget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.SetYearlyBudget(ctx, org, decimal.RequireFromString("12500.50")))
	assert.ErrorIs(t, f.svc.SetYearlyBudget(ctx, org, decimal.NewFromInt(-1)), points.ErrInvalidInput)

	cfg, err := f.svc.GetConfiguration(ctx, org)
	require.NoError(t, err)
	assert.Equal(t, "12500.50", cfg.YearlyBudget.StringFixed(2))
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestValidateRecognitionPoints(t *testing.T) {
	// GIVEN: An employee with 20 allocation points and a per-recognition max of 15
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "ann", points.RoleEmployee)
	require.NoError(t, f.svc.UpdateMonthlyAllocation(ctx, org, points.RoleEmployee,
		budget.RoleAllocation{PointsPerMonth: 20, MaxPointsPerRecognition: 15}))
	_, err := f.svc.DistributeMonthlyPoints(ctx, org)
	require.NoError(t, err)

	tests := []struct {
		pts  int64
		want bool
	}{
		{0, true},
		{15, true},
		{16, false},
		{21, false},
	}
	for _, tt := range tests {
		ok, err := f.svc.ValidateRecognitionPoints(ctx, org, "ann", tt.pts)
		require.NoError(t, err)
		assert.Equal(t, tt.want, ok, "points %d", tt.pts)
	}

	// AND: A spent allocation bounds the check below the role max
	_, err = f.ledger.DeductPoints(ctx, "ann", 10, points.PoolAllocation)
	require.NoError(t, err)
	ok, err := f.svc.ValidateRecognitionPoints(ctx, org, "ann", 11)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidateRecognitionPoints_UnknownUser(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ValidateRecognitionPoints(context.Background(), org, "ghost", 1)

	assert.True(t, points.IsNotFound(err))
}

// =============================================================================
// PROJECTION
// =============================================================================

func TestGetPointsDistributionByRole(t *testing.T) {
	// GIVEN: Monthly 50 + 100 across roles and three users
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "ann", points.RoleEmployee)
	f.user(t, "bob", points.RoleEmployee)
	f.user(t, "cat", points.RoleManager)
	require.NoError(t, f.svc.UpdateMonthlyAllocation(ctx, org, points.RoleEmployee,
		budget.RoleAllocation{PointsPerMonth: 50, MaxPointsPerRecognition: 20}))
	require.NoError(t, f.svc.UpdateMonthlyAllocation(ctx, org, points.RoleManager,
		budget.RoleAllocation{PointsPerMonth: 100, MaxPointsPerRecognition: 50}))
	require.NoError(t, f.svc.SetYearlyBudget(ctx, org, decimal.RequireFromString("6000.25")))

	// WHEN: Projecting
	d, err := f.svc.GetPointsDistributionByRole(ctx, org)

	// THEN: remaining = 6000.25 - 150 * 12 * 3
	require.NoError(t, err)
	assert.Equal(t, int64(3), d.UserCount)
	require.Len(t, d.Distributions, points.RoleCount)
	assert.Equal(t, points.RoleUser, d.Distributions[0].Role)
	assert.Equal(t, int64(100), d.Distributions[points.RoleManager].MonthlyAllocation)
	assert.Equal(t, "600.25", d.RemainingBudget.StringFixed(2))
}

func TestGetPointsDistributionByRole_NegativeRemainder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "ann", points.RoleEmployee)
	require.NoError(t, f.svc.UpdateMonthlyAllocation(ctx, org, points.RoleEmployee,
		budget.RoleAllocation{PointsPerMonth: 100}))

	d, err := f.svc.GetPointsDistributionByRole(ctx, org)

	require.NoError(t, err)
	assert.True(t, d.RemainingBudget.Equal(decimal.NewFromInt(-1200)))
}

// =============================================================================
// MONTHLY DISTRIBUTION
// =============================================================================

func TestDistributeMonthlyPoints(t *testing.T) {
	// GIVEN: An employee with leftovers, a manager, and a role with no allocation
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "ann", points.RoleEmployee)
	f.user(t, "cat", points.RoleManager)
	f.user(t, "usr", points.RoleUser)
	require.NoError(t, f.svc.UpdateMonthlyAllocation(ctx, org, points.RoleEmployee,
		budget.RoleAllocation{PointsPerMonth: 20, MaxPointsPerRecognition: 20}))
	require.NoError(t, f.svc.UpdateMonthlyAllocation(ctx, org, points.RoleManager,
		budget.RoleAllocation{PointsPerMonth: 100, MaxPointsPerRecognition: 50}))
	_, err := f.ledger.AwardPoints(ctx, "ann", 7, points.AwardAllocation)
	require.NoError(t, err)
	_, err = f.ledger.AwardPoints(ctx, "ann", 40, points.AwardPersonal)
	require.NoError(t, err)

	// WHEN: Distributing
	res, err := f.svc.DistributeMonthlyPoints(ctx, org)

	// THEN: Allocations are set to the role amount; personal pools untouched
	require.NoError(t, err)
	assert.Equal(t, budget.DistributionResult{OrganizationID: org, UsersUpdated: 2, UsersSkipped: 1}, res)
	for id, want := range map[points.UserID]points.Balance{
		"ann": {Allocation: 20, Personal: 40},
		"cat": {Allocation: 100},
		"usr": {},
	} {
		b, err := f.ledger.GetBalance(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, b, id)
	}

	entry := f.hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, "monthly points distributed", entry.Message)
}

func TestDistributeMonthlyPoints_EmptyOrganization(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.DistributeMonthlyPoints(context.Background(), org)

	require.NoError(t, err)
	assert.Zero(t, res.UsersUpdated)
	assert.Zero(t, res.UsersSkipped)
}
