package factory_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/recognition-engine/achievements"
	"github.com/warp/recognition-engine/budget"
	"github.com/warp/recognition-engine/factory"
	"github.com/warp/recognition-engine/identity"
	"github.com/warp/recognition-engine/points"
	"github.com/warp/recognition-engine/rewards"
	"github.com/warp/recognition-engine/store/memory"
)

const acmeYAML = `
global_rewards:
  - name: Coffee Voucher
    category: GIFT_CARD
    points_cost: 50
    quantity: 100
    active: true
organizations:
  - name: Acme Corp
    yearly_budget: 50000.50
    categories:
      EXCELLENCE: {is_active: true, default_points: 15, max_points: 50}
      teamwork: {is_active: true}
    allocations:
      MANAGER: {points_per_month: 100, max_points_per_recognition: 25}
      employee: {points_per_month: 20, max_points_per_recognition: 10}
    catalog:
      - reward: Coffee Voucher
        points_cost: 40
        active: true
    rewards:
      - name: Extra Day Off
        category: LOCAL_PERK
        points_cost: 500
        quantity: 5
        active: true
    achievements:
      - name: Team Player
        type: KUDOS_RECEIVED
        threshold: 10
        points: 25
`

type fixture struct {
	store   *memory.Store
	budget  *budget.Service
	rewards *rewards.Service
	awarder *achievements.Awarder
	applier *factory.Applier
}

func newFixture() *fixture {
	store := memory.New()
	ledger := points.NewLedger(store, nil, nil)
	f := &fixture{
		store:   store,
		budget:  budget.NewService(store, store, ledger, nil),
		rewards: rewards.NewService(store, store, store, ledger, nil),
		awarder: achievements.NewAwarder(store, store, ledger, nil),
	}
	f.applier = factory.NewApplier(identity.NewProvisioner(store, nil), f.budget, f.rewards, f.awarder, nil)
	return f
}

// =============================================================================
// PARSING
// =============================================================================

func TestParseSeed_YAML(t *testing.T) {
	seed, err := factory.ParseSeed([]byte(acmeYAML))
	require.NoError(t, err)

	require.Len(t, seed.Organizations, 1)
	org := seed.Organizations[0]
	assert.Equal(t, "Acme Corp", org.Name)
	require.NotNil(t, org.YearlyBudget)
	assert.True(t, decimal.RequireFromString("50000.50").Equal(*org.YearlyBudget))
	assert.Equal(t, budget.CategorySetting{IsActive: true, DefaultPoints: 15, MaxPoints: 50}, org.Categories["EXCELLENCE"])
	assert.Equal(t, int64(100), org.Allocations["MANAGER"].PointsPerMonth)
	require.Len(t, org.Catalog, 1)
	require.NotNil(t, org.Catalog[0].PointsCost)
	assert.Equal(t, int64(40), *org.Catalog[0].PointsCost)
	assert.Nil(t, org.Catalog[0].Quantity)
}

func TestParseSeed_JSON(t *testing.T) {
	seed, err := factory.ParseSeed([]byte(`{
		"organizations": [{
			"name": "Globex",
			"yearly_budget": "1200",
			"categories": {"INNOVATION": {"is_active": true, "default_points": 5}}
		}]
	}`))
	require.NoError(t, err)

	require.Len(t, seed.Organizations, 1)
	assert.True(t, decimal.NewFromInt(1200).Equal(*seed.Organizations[0].YearlyBudget))
	assert.True(t, seed.Organizations[0].Categories["INNOVATION"].IsActive)
}

func TestParseSeed_Rejects(t *testing.T) {
	tests := map[string]string{
		"malformed":         "organizations: [",
		"unnamed org":       "organizations:\n  - yearly_budget: 10\n",
		"unknown category":  "organizations:\n  - name: A\n    categories:\n      KINDNESS: {is_active: true}\n",
		"unknown role":      "organizations:\n  - name: A\n    allocations:\n      INTERN: {points_per_month: 1}\n",
		"unknown link":      "organizations:\n  - name: A\n    catalog:\n      - reward: Nope\n",
		"slash in name":     "organizations:\n  - name: A/B\n",
		"user without id":   "organizations:\n  - name: A\n    users:\n      - first_name: Ann\n",
		"unknown user role": "organizations:\n  - name: A\n    users:\n      - {id: u1, role: intern}\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := factory.ParseSeed([]byte(doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, points.ErrInvalidInput)
		})
	}
}

// =============================================================================
// APPLY
// =============================================================================

func TestApply_ConfiguresOrganization(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	seed, err := factory.ParseSeed([]byte(acmeYAML))
	require.NoError(t, err)

	// WHEN: The seed is applied to an empty store
	res, err := f.applier.Apply(ctx, seed)
	require.NoError(t, err)

	// THEN: One organization, two rewards, one achievement
	require.Len(t, res.Organizations, 1)
	assert.Equal(t, 2, res.Rewards)
	assert.Equal(t, 1, res.Achievements)
	org := res.Organizations[0]
	assert.Equal(t, "acme-corp", org.Slug)

	// AND: Budget configuration matches the document
	cfg, err := f.budget.GetConfiguration(ctx, org.ID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("50000.5").Equal(cfg.YearlyBudget))
	assert.Equal(t, int64(50), cfg.Category(budget.CategoryExcellence).MaxPoints)
	assert.True(t, cfg.Category(budget.CategoryTeamwork).IsActive)
	assert.False(t, cfg.Category(budget.CategoryLeadership).IsActive)
	assert.Equal(t, budget.RoleAllocation{PointsPerMonth: 20, MaxPointsPerRecognition: 10}, cfg.Allocation(points.RoleEmployee))

	// AND: The catalog shows the linked voucher at its custom cost and the owned perk
	catalog, err := f.rewards.GetOrganizationRewards(ctx, org.ID)
	require.NoError(t, err)
	require.Len(t, catalog, 2)
	byName := map[string]rewards.Reward{}
	for _, r := range catalog {
		byName[r.Name] = r
	}
	assert.Equal(t, int64(40), byName["Coffee Voucher"].PointsCost)
	assert.True(t, byName["Coffee Voucher"].IsActive)
	assert.Equal(t, int64(500), byName["Extra Day Off"].PointsCost)

	// AND: The achievement is scoped to the organization
	defs, err := f.awarder.GetOrganizationAchievements(ctx, org.ID)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, org.ID, defs[0].OrganizationID)
}

func TestApply_ReusesExistingOrganization(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	seed := factory.Seed{Organizations: []factory.OrganizationSeed{{Name: "Acme Corp"}}}

	first, err := f.applier.Apply(ctx, seed)
	require.NoError(t, err)
	second, err := f.applier.Apply(ctx, seed)
	require.NoError(t, err)

	assert.Equal(t, first.Organizations[0].ID, second.Organizations[0].ID)
	orgs, err := f.store.ListOrganizations(ctx)
	require.NoError(t, err)
	assert.Len(t, orgs, 1)
}

func TestApply_ServiceValidationSurfaces(t *testing.T) {
	f := newFixture()

	seed := factory.Seed{Organizations: []factory.OrganizationSeed{{
		Name: "Acme Corp",
		Categories: map[string]budget.CategorySetting{
			"EXCELLENCE": {IsActive: true, DefaultPoints: 60, MaxPoints: 50},
		},
	}}}

	_, err := f.applier.Apply(context.Background(), seed)
	assert.ErrorIs(t, err, points.ErrInvalidInput)
}

func TestApply_ProvisionsUsers(t *testing.T) {
	// GIVEN: A seed with a manager in Engineering and a user without a role
	ctx := context.Background()
	f := newFixture()
	seed, err := factory.ParseSeed([]byte(`
organizations:
  - name: Acme Corp
    users:
      - {id: kc-alice, email: alice@acme.test, first_name: Alice, last_name: Martin, department: Engineering, role: manager}
      - {id: kc-bob, first_name: Bob}
`))
	require.NoError(t, err)

	// WHEN: Applied
	res, err := f.applier.Apply(ctx, seed)
	require.NoError(t, err)

	// THEN: Both exist in the organization with empty wallets
	require.Len(t, res.Users, 2)
	alice, err := f.store.GetUser(ctx, "kc-alice")
	require.NoError(t, err)
	assert.Equal(t, res.Organizations[0].ID, alice.OrganizationID)
	assert.Equal(t, points.RoleManager, alice.Role)
	assert.Equal(t, "Engineering", alice.Department)
	assert.Equal(t, "Alice Martin", alice.Name())
	assert.Zero(t, alice.Wallet.Total())

	bob, err := f.store.GetUser(ctx, "kc-bob")
	require.NoError(t, err)
	assert.Equal(t, points.RoleUser, bob.Role)
	assert.Empty(t, bob.Department)
}

func TestUserSeed_Claims(t *testing.T) {
	us := factory.UserSeed{ID: "kc-alice", Department: "Engineering", Role: "ADMIN"}

	c := us.Claims("Acme Corp")

	assert.Equal(t, "kc-alice", c.Subject)
	assert.Equal(t, []string{"/Acme Corp", "/Acme Corp/Engineering"}, c.Groups)
	assert.Equal(t, []string{"admin"}, c.RealmRoles)
}
