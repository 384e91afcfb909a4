/*
Package storetest is the behavior suite every storage backend must pass.

PURPOSE:
  store/memory, store/sqlite and store/postgres implement the same
  interfaces. The services above them rely on details the interfaces only
  state in comments: guarded pool deltas, rollback on error, insertion
  order, set semantics for kudos, one-time achievement completion. Run
  checks each of them against a fresh backend.

USAGE:
  func TestContract(t *testing.T) {
      storetest.Run(t, func(t *testing.T) storetest.Backend {
          s, err := sqlite.New(":memory:")
          require.NoError(t, err)
          t.Cleanup(func() { s.Close() })
          return s
      })
  }
*/
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/recognition-engine/achievements"
	"github.com/warp/recognition-engine/budget"
	"github.com/warp/recognition-engine/notify"
	"github.com/warp/recognition-engine/points"
	"github.com/warp/recognition-engine/recognition"
	"github.com/warp/recognition-engine/rewards"
)

// Backend is the union of the storage interfaces.
type Backend interface {
	points.Store
	budget.Store
	recognition.Store
	rewards.Store
	achievements.Store
	notify.Store
	Reset(ctx context.Context) error
}

// Run executes the suite. open must return an empty backend each call.
func Run(t *testing.T, open func(t *testing.T) Backend) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s Backend)
	}{
		{"UsersUpsertKeepsWallet", testUsersUpsertKeepsWallet},
		{"Organizations", testOrganizations},
		{"AdjustPoolGuard", testAdjustPoolGuard},
		{"AdjustPoolConcurrent", testAdjustPoolConcurrent},
		{"SetPoolReturnsPrevious", testSetPoolReturnsPrevious},
		{"TransactionsNewestFirst", testTransactionsNewestFirst},
		{"WithTxRollback", testWithTxRollback},
		{"Configuration", testConfiguration},
		{"RecognitionRoundTrip", testRecognitionRoundTrip},
		{"KudosSetSemantics", testKudosSetSemantics},
		{"RecognitionFilters", testRecognitionFilters},
		{"LeaderboardTies", testLeaderboardTies},
		{"ClaimRewardUnit", testClaimRewardUnit},
		{"OrganizationRewardLinks", testOrganizationRewardLinks},
		{"ClaimOrganizationRewardUnit", testClaimOrganizationRewardUnit},
		{"Redemptions", testRedemptions},
		{"Suggestions", testSuggestions},
		{"AchievementsCompleteOnce", testAchievementsCompleteOnce},
		{"AchievementOrdering", testAchievementOrdering},
		{"Notifications", testNotifications},
		{"Reset", testReset},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, open(t))
		})
	}
}

// =============================================================================
// HELPERS
// =============================================================================

const (
	orgA = points.OrgID("org-a")
	orgB = points.OrgID("org-b")
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func seedOrgs(t *testing.T, s Backend) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.CreateOrganization(ctx, points.Organization{ID: orgA, Name: "Acme Corp", Slug: "acme-corp", CreatedAt: epoch}))
	require.NoError(t, s.CreateOrganization(ctx, points.Organization{ID: orgB, Name: "Globex", Slug: "globex", CreatedAt: epoch}))
}

func seedUser(t *testing.T, s Backend, id points.UserID, org points.OrgID) {
	t.Helper()
	_, err := s.UpsertUser(context.Background(), points.User{
		ID: id, OrganizationID: org, Email: string(id) + "@example.com", FirstName: string(id), Role: points.RoleEmployee,
	})
	require.NoError(t, err)
}

func seedRecognition(t *testing.T, s Backend, id recognition.ID, from, to points.UserID, pts int64, at time.Time) recognition.Recognition {
	t.Helper()
	r := recognition.Recognition{
		ID:             id,
		OrganizationID: orgA,
		SenderID:       from,
		RecipientID:    to,
		Message:        "Thanks",
		Category:       budget.CategoryTeamwork,
		Points:         pts,
		Kudos:          []points.UserID{},
		CreatedAt:      at,
	}
	require.NoError(t, s.CreateRecognition(context.Background(), r))
	return r
}

func seedReward(t *testing.T, s Backend, id rewards.ID, org points.OrgID, qty int64, active bool) {
	t.Helper()
	require.NoError(t, s.CreateReward(context.Background(), rewards.Reward{
		ID:             id,
		Name:           string(id),
		Category:       rewards.CategoryGiftCard,
		PointsCost:     50,
		Quantity:       qty,
		IsGlobal:       org == "",
		OrganizationID: org,
		IsActive:       active,
		CreatedAt:      epoch,
		UpdatedAt:      epoch,
	}))
}

func wallet(t *testing.T, s Backend, id points.UserID) points.Balance {
	t.Helper()
	u, err := s.GetUser(context.Background(), id)
	require.NoError(t, err)
	return u.Wallet
}

// =============================================================================
// USERS & ORGANIZATIONS
// =============================================================================

func testUsersUpsertKeepsWallet(t *testing.T, s Backend) {
	ctx := context.Background()
	seedOrgs(t, s)
	seedUser(t, s, "ann", orgA)
	_, err := s.AdjustPool(ctx, "ann", points.PoolPersonal, 40)
	require.NoError(t, err)

	u, err := s.UpsertUser(ctx, points.User{ID: "ann", OrganizationID: orgA, FirstName: "Ann", LastName: "Lee", Role: points.RoleManager})

	require.NoError(t, err)
	assert.Equal(t, points.RoleManager, u.Role)
	assert.Equal(t, "Ann Lee", u.Name())
	assert.Equal(t, points.Balance{Personal: 40}, u.Wallet)
	assert.Equal(t, points.Balance{Personal: 40}, wallet(t, s, "ann"))

	_, err = s.GetUser(ctx, "ghost")
	assert.True(t, points.IsNotFound(err))

	seedUser(t, s, "bob", orgA)
	seedUser(t, s, "zed", orgB)
	members, err := s.ListUsersByOrganization(ctx, orgA)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, points.UserID("ann"), members[0].ID)
	assert.Equal(t, points.UserID("bob"), members[1].ID)
	n, err := s.CountUsersByOrganization(ctx, orgB)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func testOrganizations(t *testing.T, s Backend) {
	ctx := context.Background()
	seedOrgs(t, s)

	err := s.CreateOrganization(ctx, points.Organization{ID: "org-c", Name: "Acme Corp", Slug: "acme-corp", CreatedAt: epoch})
	assert.ErrorIs(t, err, points.ErrInvalidInput)

	o, err := s.GetOrganizationBySlug(ctx, "globex")
	require.NoError(t, err)
	assert.Equal(t, orgB, o.ID)

	_, err = s.GetOrganization(ctx, "nope")
	assert.True(t, points.IsNotFound(err))

	all, err := s.ListOrganizations(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, orgA, all[0].ID)
	assert.Equal(t, orgB, all[1].ID)
}

// =============================================================================
// WALLET
// =============================================================================

func testAdjustPoolGuard(t *testing.T, s Backend) {
	ctx := context.Background()
	seedOrgs(t, s)
	seedUser(t, s, "ann", orgA)

	after, err := s.AdjustPool(ctx, "ann", points.PoolAllocation, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(50), after)

	_, err = s.AdjustPool(ctx, "ann", points.PoolAllocation, -60)
	var insufficient *points.InsufficientPointsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, int64(50), insufficient.Available)
	assert.Equal(t, int64(60), insufficient.Requested)
	assert.Equal(t, points.Balance{Allocation: 50}, wallet(t, s, "ann"))

	after, err = s.AdjustPool(ctx, "ann", points.PoolAllocation, -50)
	require.NoError(t, err)
	assert.Zero(t, after)

	_, err = s.AdjustPool(ctx, "ghost", points.PoolPersonal, 1)
	assert.True(t, points.IsNotFound(err))
}

func testAdjustPoolConcurrent(t *testing.T, s Backend) {
	ctx := context.Background()
	seedOrgs(t, s)
	seedUser(t, s, "ann", orgA)
	_, err := s.AdjustPool(ctx, "ann", points.PoolPersonal, 10)
	require.NoError(t, err)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.AdjustPool(ctx, "ann", points.PoolPersonal, -1)
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, points.ErrInsufficientPoints)
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, ok)
	assert.Zero(t, wallet(t, s, "ann").Personal)
}

func testSetPoolReturnsPrevious(t *testing.T, s Backend) {
	ctx := context.Background()
	seedOrgs(t, s)
	seedUser(t, s, "ann", orgA)

	prev, err := s.SetPool(ctx, "ann", points.PoolAllocation, 100)
	require.NoError(t, err)
	assert.Zero(t, prev)

	prev, err = s.SetPool(ctx, "ann", points.PoolAllocation, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(100), prev)
	assert.Equal(t, points.Balance{Allocation: 30}, wallet(t, s, "ann"))

	_, err = s.SetPool(ctx, "ann", points.PoolAllocation, -1)
	assert.ErrorIs(t, err, points.ErrInvalidInput)
	_, err = s.SetPool(ctx, "ghost", points.PoolAllocation, 1)
	assert.True(t, points.IsNotFound(err))
}

func testTransactionsNewestFirst(t *testing.T, s Backend) {
	ctx := context.Background()
	seedOrgs(t, s)
	seedUser(t, s, "ann", orgA)
	for i := 1; i <= 3; i++ {
		require.NoError(t, s.AppendTransaction(ctx, points.Transaction{
			ID:           points.TransactionID(fmt.Sprintf("tx-%d", i)),
			UserID:       "ann",
			Pool:         points.PoolPersonal,
			Type:         points.TxCredit,
			Delta:        int64(i),
			BalanceAfter: int64(i * (i + 1) / 2),
			ReferenceID:  fmt.Sprintf("ref-%d", i),
			CreatedAt:    epoch.Add(time.Duration(i) * time.Minute),
		}))
	}

	all, err := s.ListTransactions(ctx, "ann", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, points.TransactionID("tx-3"), all[0].ID)
	assert.Equal(t, "ref-3", all[0].ReferenceID)
	assert.Equal(t, int64(6), all[0].BalanceAfter)
	assert.True(t, all[0].CreatedAt.Equal(epoch.Add(3*time.Minute)))

	limited, err := s.ListTransactions(ctx, "ann", 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, points.TransactionID("tx-2"), limited[1].ID)
}

func testWithTxRollback(t *testing.T, s Backend) {
	ctx := context.Background()
	seedOrgs(t, s)
	seedUser(t, s, "ann", orgA)
	seedUser(t, s, "bob", orgA)
	seedReward(t, s, "mug", orgA, 1, true)

	abort := errors.New("abort")
	err := s.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.AdjustPool(ctx, "ann", points.PoolPersonal, 25); err != nil {
			return err
		}
		if err := s.AppendTransaction(ctx, points.Transaction{
			ID: "tx-1", UserID: "ann", Pool: points.PoolPersonal, Type: points.TxCredit, Delta: 25, BalanceAfter: 25, CreatedAt: epoch,
		}); err != nil {
			return err
		}
		if _, err := s.ClaimRewardUnit(ctx, "mug"); err != nil {
			return err
		}
		if err := s.CreateRecognition(ctx, recognition.Recognition{
			ID: "rec-1", OrganizationID: orgA, SenderID: "ann", RecipientID: "bob",
			Message: "Thanks", Category: budget.CategoryTeamwork, Kudos: []points.UserID{}, CreatedAt: epoch,
		}); err != nil {
			return err
		}
		// Nested transactions join the outer one.
		if err := s.WithTx(ctx, func(ctx context.Context) error {
			_, err := s.SetPool(ctx, "bob", points.PoolAllocation, 99)
			return err
		}); err != nil {
			return err
		}
		return abort
	})

	assert.ErrorIs(t, err, abort)
	assert.Equal(t, points.Balance{}, wallet(t, s, "ann"))
	assert.Equal(t, points.Balance{}, wallet(t, s, "bob"))
	txs, err := s.ListTransactions(ctx, "ann", 0)
	require.NoError(t, err)
	assert.Empty(t, txs)
	r, err := s.GetReward(ctx, "mug")
	require.NoError(t, err)
	assert.Equal(t, int64(1), r.Quantity)
	assert.Zero(t, r.RedemptionCount)
}

// =============================================================================
// CONFIGURATION
// =============================================================================

func testConfiguration(t *testing.T, s Backend) {
	ctx := context.Background()
	seedOrgs(t, s)

	cfg, err := s.GetConfiguration(ctx, orgA)
	require.NoError(t, err)
	assert.Equal(t, orgA, cfg.OrganizationID)
	assert.True(t, cfg.YearlyBudget.IsZero())
	assert.False(t, cfg.Category(budget.CategoryTeamwork).IsActive)

	teamwork := budget.CategorySetting{IsActive: true, DefaultPoints: 10, MaxPoints: 30}
	manager := budget.RoleAllocation{PointsPerMonth: 100, MaxPointsPerRecognition: 50}
	require.NoError(t, s.UpdateCategorySetting(ctx, orgA, budget.CategoryTeamwork, teamwork))
	require.NoError(t, s.UpdateRoleAllocation(ctx, orgA, points.RoleManager, manager))
	require.NoError(t, s.UpdateYearlyBudget(ctx, orgA, decimal.RequireFromString("12500.75")))
	// Second write replaces the first.
	teamwork.MaxPoints = 40
	require.NoError(t, s.UpdateCategorySetting(ctx, orgA, budget.CategoryTeamwork, teamwork))

	cfg, err = s.GetConfiguration(ctx, orgA)
	require.NoError(t, err)
	assert.Equal(t, teamwork, cfg.Category(budget.CategoryTeamwork))
	assert.Equal(t, manager, cfg.Allocation(points.RoleManager))
	assert.Equal(t, budget.RoleAllocation{}, cfg.Allocation(points.RoleEmployee))
	assert.Equal(t, "12500.75", cfg.YearlyBudget.StringFixed(2))

	other, err := s.GetConfiguration(ctx, orgB)
	require.NoError(t, err)
	assert.False(t, other.Category(budget.CategoryTeamwork).IsActive)
}

// =============================================================================
// RECOGNITIONS
// =============================================================================

func testRecognitionRoundTrip(t *testing.T, s Backend) {
	ctx := context.Background()
	seedOrgs(t, s)
	for _, id := range []points.UserID{"ann", "bob", "cat", "dan"} {
		seedUser(t, s, id, orgA)
	}
	until := epoch.Add(72 * time.Hour)
	want := recognition.Recognition{
		ID:             "rec-1",
		OrganizationID: orgA,
		SenderID:       "ann",
		RecipientID:    "bob",
		Message:        "Shipped the migration über-fast ✨",
		Category:       budget.CategoryInnovation,
		Points:         35,
		Kudos:          []points.UserID{"cat", "dan"},
		PinnedUntil:    &until,
		CreatedAt:      epoch.Add(90 * time.Second),
	}
	require.NoError(t, s.CreateRecognition(ctx, want))

	got, err := s.GetRecognition(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.OrganizationID, got.OrganizationID)
	assert.Equal(t, want.SenderID, got.SenderID)
	assert.Equal(t, want.RecipientID, got.RecipientID)
	assert.Equal(t, want.Message, got.Message)
	assert.Equal(t, want.Category, got.Category)
	assert.Equal(t, want.Points, got.Points)
	assert.Equal(t, want.Kudos, got.Kudos)
	require.NotNil(t, got.PinnedUntil)
	assert.True(t, got.PinnedUntil.Equal(until), "pinned_until: %s", got.PinnedUntil)
	assert.True(t, got.CreatedAt.Equal(want.CreatedAt), "created_at: %s", got.CreatedAt)

	// An unpinned recognition with no kudos reads back as such.
	plain := seedRecognition(t, s, "rec-2", "bob", "ann", 0, epoch)
	got, err = s.GetRecognition(ctx, plain.ID)
	require.NoError(t, err)
	assert.Nil(t, got.PinnedUntil)
	assert.Empty(t, got.Kudos)
	assert.Zero(t, got.Points)

	_, err = s.GetRecognition(ctx, "nope")
	assert.True(t, points.IsNotFound(err))
}

func testKudosSetSemantics(t *testing.T, s Backend) {
	ctx := context.Background()
	seedOrgs(t, s)
	for _, id := range []points.UserID{"ann", "bob", "cat"} {
		seedUser(t, s, id, orgA)
	}
	seedRecognition(t, s, "rec-1", "ann", "bob", 10, epoch)

	_, err := s.AddKudos(ctx, "rec-1", "cat")
	require.NoError(t, err)
	r, err := s.AddKudos(ctx, "rec-1", "cat")
	require.NoError(t, err)
	assert.Equal(t, []points.UserID{"cat"}, r.Kudos)

	r, err = s.RemoveKudos(ctx, "rec-1", "ann")
	require.NoError(t, err)
	assert.Equal(t, []points.UserID{"cat"}, r.Kudos)

	n, err := s.CountKudosReceived(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	r, err = s.RemoveKudos(ctx, "rec-1", "cat")
	require.NoError(t, err)
	assert.Empty(t, r.Kudos)

	_, err = s.AddKudos(ctx, "nope", "cat")
	assert.True(t, points.IsNotFound(err))
}

func testRecognitionFilters(t *testing.T, s Backend) {
	ctx := context.Background()
	seedOrgs(t, s)
	for _, id := range []points.UserID{"ann", "bob", "cat"} {
		seedUser(t, s, id, orgA)
	}
	seedRecognition(t, s, "rec-1", "ann", "bob", 10, epoch)
	seedRecognition(t, s, "rec-2", "bob", "cat", 10, epoch.Add(time.Hour))
	seedRecognition(t, s, "rec-3", "ann", "cat", 5, epoch.Add(2*time.Hour))

	ids := func(rs []recognition.Recognition) []recognition.ID {
		out := make([]recognition.ID, 0, len(rs))
		for _, r := range rs {
			out = append(out, r.ID)
		}
		return out
	}

	all, err := s.ListRecognitions(ctx, recognition.Filter{OrganizationID: orgA})
	require.NoError(t, err)
	assert.Equal(t, []recognition.ID{"rec-1", "rec-2", "rec-3"}, ids(all))
	assert.Equal(t, budget.CategoryTeamwork, all[0].Category)
	assert.True(t, all[0].CreatedAt.Equal(epoch))

	bySender, err := s.ListRecognitions(ctx, recognition.Filter{SenderID: "ann"})
	require.NoError(t, err)
	assert.Equal(t, []recognition.ID{"rec-1", "rec-3"}, ids(bySender))

	from, to := epoch.Add(time.Hour), epoch.Add(2*time.Hour)
	window, err := s.ListRecognitions(ctx, recognition.Filter{RecipientID: "cat", From: &from, To: &to})
	require.NoError(t, err)
	assert.Equal(t, []recognition.ID{"rec-2"}, ids(window))

	until := epoch.Add(48 * time.Hour)
	pinned, err := s.SetPinnedUntil(ctx, "rec-1", &until)
	require.NoError(t, err)
	require.NotNil(t, pinned.PinnedUntil)
	assert.True(t, pinned.PinnedUntil.Equal(until))

	received, err := s.CountByRecipient(ctx, "cat")
	require.NoError(t, err)
	assert.Equal(t, int64(2), received)
	given, err := s.CountBySender(ctx, "ann")
	require.NoError(t, err)
	assert.Equal(t, int64(2), given)
}

func testLeaderboardTies(t *testing.T, s Backend) {
	ctx := context.Background()
	seedOrgs(t, s)
	for _, id := range []points.UserID{"ann", "bob", "cat", "dan"} {
		seedUser(t, s, id, orgA)
	}
	seedRecognition(t, s, "rec-1", "ann", "cat", 10, epoch)
	seedRecognition(t, s, "rec-2", "ann", "bob", 10, epoch.Add(time.Minute))
	seedRecognition(t, s, "rec-3", "ann", "dan", 5, epoch.Add(2*time.Minute))
	seedRecognition(t, s, "rec-4", "bob", "dan", 10, epoch.Add(3*time.Minute))

	board, err := s.Leaderboard(ctx, orgA, 0)

	require.NoError(t, err)
	require.Len(t, board, 3)
	assert.Equal(t, recognition.LeaderboardEntry{UserID: "dan", TotalPoints: 15}, board[0])
	assert.Equal(t, recognition.LeaderboardEntry{UserID: "cat", TotalPoints: 10}, board[1])
	assert.Equal(t, recognition.LeaderboardEntry{UserID: "bob", TotalPoints: 10}, board[2])

	top, err := s.Leaderboard(ctx, orgA, 2)
	require.NoError(t, err)
	assert.Len(t, top, 2)

	empty, err := s.Leaderboard(ctx, orgB, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

// =============================================================================
// REWARDS
// =============================================================================

func testClaimRewardUnit(t *testing.T, s Backend) {
	ctx := context.Background()
	seedOrgs(t, s)
	seedReward(t, s, "mug", orgA, 2, true)
	seedReward(t, s, "hat", orgA, 5, false)

	for want := int64(1); want >= 0; want-- {
		r, err := s.ClaimRewardUnit(ctx, "mug")
		require.NoError(t, err)
		assert.Equal(t, want, r.Quantity)
	}
	_, err := s.ClaimRewardUnit(ctx, "mug")
	assert.ErrorIs(t, err, points.ErrRewardUnavailable)

	r, err := s.GetReward(ctx, "mug")
	require.NoError(t, err)
	assert.Zero(t, r.Quantity)
	assert.Equal(t, int64(2), r.RedemptionCount)

	_, err = s.ClaimRewardUnit(ctx, "hat")
	assert.ErrorIs(t, err, points.ErrRewardUnavailable)
	_, err = s.SetRewardActive(ctx, "hat", true)
	require.NoError(t, err)
	_, err = s.ClaimRewardUnit(ctx, "hat")
	assert.NoError(t, err)

	_, err = s.ClaimRewardUnit(ctx, "nope")
	assert.True(t, points.IsNotFound(err))
}

func testOrganizationRewardLinks(t *testing.T, s Backend) {
	ctx := context.Background()
	seedOrgs(t, s)
	seedReward(t, s, "voucher", "", 10, true)
	seedReward(t, s, "hoodie", "", 10, true)
	seedReward(t, s, "day-off", orgA, 1, true)

	cost := int64(30)
	require.NoError(t, s.UpsertOrganizationReward(ctx, rewards.OrganizationReward{
		OrganizationID: orgA, RewardID: "voucher", CustomPointsCost: &cost, CreatedAt: epoch,
	}))
	require.NoError(t, s.UpsertOrganizationReward(ctx, rewards.OrganizationReward{
		OrganizationID: orgA, RewardID: "hoodie", CreatedAt: epoch,
	}))
	_, err := s.SetOrganizationRewardActive(ctx, orgA, "voucher", true)
	require.NoError(t, err)

	// Re-linking updates the customization and keeps the active flag.
	qty := int64(3)
	require.NoError(t, s.UpsertOrganizationReward(ctx, rewards.OrganizationReward{
		OrganizationID: orgA, RewardID: "voucher", CustomQuantity: &qty, CreatedAt: epoch,
	}))
	link, err := s.GetOrganizationReward(ctx, orgA, "voucher")
	require.NoError(t, err)
	assert.True(t, link.IsActive)
	assert.Nil(t, link.CustomPointsCost)
	require.NotNil(t, link.CustomQuantity)
	assert.Equal(t, int64(3), *link.CustomQuantity)

	links, err := s.ListOrganizationRewardLinks(ctx, orgA)
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, rewards.ID("voucher"), links[0].RewardID)
	assert.Equal(t, rewards.ID("hoodie"), links[1].RewardID)

	_, err = s.GetOrganizationReward(ctx, orgB, "voucher")
	assert.True(t, points.IsNotFound(err))
	_, err = s.SetOrganizationRewardActive(ctx, orgB, "voucher", true)
	assert.True(t, points.IsNotFound(err))

	global, err := s.ListGlobalRewards(ctx)
	require.NoError(t, err)
	assert.Len(t, global, 2)
	owned, err := s.ListOrganizationRewards(ctx, orgA)
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, rewards.ID("day-off"), owned[0].ID)
}

func testClaimOrganizationRewardUnit(t *testing.T, s Backend) {
	ctx := context.Background()
	seedOrgs(t, s)
	seedReward(t, s, "voucher", "", 50, true)
	seedReward(t, s, "hoodie", "", 50, true)

	qty := int64(2)
	require.NoError(t, s.UpsertOrganizationReward(ctx, rewards.OrganizationReward{
		OrganizationID: orgA, RewardID: "voucher", CustomQuantity: &qty, CreatedAt: epoch,
	}))
	require.NoError(t, s.UpsertOrganizationReward(ctx, rewards.OrganizationReward{
		OrganizationID: orgA, RewardID: "hoodie", CreatedAt: epoch,
	}))

	// A link starts inactive and refuses claims.
	_, err := s.ClaimOrganizationRewardUnit(ctx, orgA, "voucher")
	assert.ErrorIs(t, err, points.ErrRewardUnavailable)

	_, err = s.SetOrganizationRewardActive(ctx, orgA, "voucher", true)
	require.NoError(t, err)
	for want := int64(1); want >= 0; want-- {
		link, err := s.ClaimOrganizationRewardUnit(ctx, orgA, "voucher")
		require.NoError(t, err)
		require.NotNil(t, link.CustomQuantity)
		assert.Equal(t, want, *link.CustomQuantity)
	}
	_, err = s.ClaimOrganizationRewardUnit(ctx, orgA, "voucher")
	assert.ErrorIs(t, err, points.ErrRewardUnavailable)

	link, err := s.GetOrganizationReward(ctx, orgA, "voucher")
	require.NoError(t, err)
	require.NotNil(t, link.CustomQuantity)
	assert.Zero(t, *link.CustomQuantity)

	// Without a custom quantity the link never runs out on its own.
	_, err = s.SetOrganizationRewardActive(ctx, orgA, "hoodie", true)
	require.NoError(t, err)
	for range 3 {
		link, err := s.ClaimOrganizationRewardUnit(ctx, orgA, "hoodie")
		require.NoError(t, err)
		assert.Nil(t, link.CustomQuantity)
	}

	// Deactivating stops further claims.
	_, err = s.SetOrganizationRewardActive(ctx, orgA, "hoodie", false)
	require.NoError(t, err)
	_, err = s.ClaimOrganizationRewardUnit(ctx, orgA, "hoodie")
	assert.ErrorIs(t, err, points.ErrRewardUnavailable)

	_, err = s.ClaimOrganizationRewardUnit(ctx, orgB, "voucher")
	assert.True(t, points.IsNotFound(err))

	// A failed claim inside a transaction leaves the link as it was.
	_, err = s.SetOrganizationRewardActive(ctx, orgA, "hoodie", true)
	require.NoError(t, err)
	require.NoError(t, s.UpsertOrganizationReward(ctx, rewards.OrganizationReward{
		OrganizationID: orgA, RewardID: "hoodie", CustomQuantity: &qty, CreatedAt: epoch,
	}))
	abort := errors.New("abort")
	err = s.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.ClaimOrganizationRewardUnit(ctx, orgA, "hoodie"); err != nil {
			return err
		}
		return abort
	})
	assert.ErrorIs(t, err, abort)
	link, err = s.GetOrganizationReward(ctx, orgA, "hoodie")
	require.NoError(t, err)
	require.NotNil(t, link.CustomQuantity)
	assert.Equal(t, int64(2), *link.CustomQuantity)
}

func testRedemptions(t *testing.T, s Backend) {
	ctx := context.Background()
	seedOrgs(t, s)
	seedUser(t, s, "ann", orgA)
	seedUser(t, s, "zed", orgB)
	seedReward(t, s, "voucher", "", 10, true)
	for i, r := range []rewards.Redemption{
		{OrganizationID: orgA, UserID: "ann", CreatedAt: epoch},
		{OrganizationID: orgA, UserID: "ann", CreatedAt: epoch.Add(24 * time.Hour)},
		{OrganizationID: orgB, UserID: "zed", CreatedAt: epoch.Add(24 * time.Hour)},
	} {
		r.ID = rewards.RedemptionID(fmt.Sprintf("rd-%d", i+1))
		r.RewardID = "voucher"
		r.PointsCost = 50
		require.NoError(t, s.AppendRedemption(ctx, r))
	}

	byOrg, err := s.ListRedemptions(ctx, rewards.RedemptionFilter{OrganizationID: orgA})
	require.NoError(t, err)
	assert.Len(t, byOrg, 2)

	byUser, err := s.ListRedemptions(ctx, rewards.RedemptionFilter{UserID: "zed"})
	require.NoError(t, err)
	require.Len(t, byUser, 1)
	assert.Equal(t, rewards.RedemptionID("rd-3"), byUser[0].ID)

	// Both bounds are inclusive.
	from, to := epoch, epoch
	day, err := s.ListRedemptions(ctx, rewards.RedemptionFilter{OrganizationID: orgA, From: &from, To: &to})
	require.NoError(t, err)
	require.Len(t, day, 1)
	assert.Equal(t, rewards.RedemptionID("rd-1"), day[0].ID)
	assert.Equal(t, int64(50), day[0].PointsCost)
}

func testSuggestions(t *testing.T, s Backend) {
	ctx := context.Background()
	seedOrgs(t, s)
	for i, id := range []rewards.SuggestionID{"sg-1", "sg-2", "sg-3"} {
		org := orgA
		if id == "sg-2" {
			org = orgB
		}
		require.NoError(t, s.CreateSuggestion(ctx, rewards.Suggestion{
			ID:                  id,
			OrganizationID:      org,
			Name:                "Standing desk " + string(id),
			Description:         "For the quiet room",
			Category:            rewards.CategoryMerchandise,
			SuggestedPointsCost: 400,
			SuggestedBy:         "ann",
			Votes:               []points.UserID{},
			Status:              rewards.SuggestionPending,
			CreatedAt:           epoch.Add(time.Duration(i) * time.Minute),
			UpdatedAt:           epoch.Add(time.Duration(i) * time.Minute),
		}))
	}

	got, err := s.GetSuggestion(ctx, "sg-1")
	require.NoError(t, err)
	assert.Equal(t, orgA, got.OrganizationID)
	assert.Equal(t, rewards.CategoryMerchandise, got.Category)
	assert.Equal(t, int64(400), got.SuggestedPointsCost)
	assert.Equal(t, points.UserID("ann"), got.SuggestedBy)
	assert.Equal(t, rewards.SuggestionPending, got.Status)
	assert.Empty(t, got.Votes)
	assert.True(t, got.CreatedAt.Equal(epoch))

	list, err := s.ListSuggestions(ctx, orgA)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, rewards.SuggestionID("sg-1"), list[0].ID)
	assert.Equal(t, rewards.SuggestionID("sg-3"), list[1].ID)

	// Votes are a set.
	_, err = s.AddSuggestionVote(ctx, "sg-1", "bob")
	require.NoError(t, err)
	got, err = s.AddSuggestionVote(ctx, "sg-1", "bob")
	require.NoError(t, err)
	assert.Equal(t, []points.UserID{"bob"}, got.Votes)
	got, err = s.AddSuggestionVote(ctx, "sg-1", "cat")
	require.NoError(t, err)
	assert.Equal(t, []points.UserID{"bob", "cat"}, got.Votes)
	got, err = s.RemoveSuggestionVote(ctx, "sg-1", "dan")
	require.NoError(t, err)
	assert.Len(t, got.Votes, 2)
	got, err = s.RemoveSuggestionVote(ctx, "sg-1", "bob")
	require.NoError(t, err)
	assert.Equal(t, []points.UserID{"cat"}, got.Votes)

	list, err = s.ListSuggestions(ctx, orgA)
	require.NoError(t, err)
	assert.Equal(t, []points.UserID{"cat"}, list[0].Votes)
	assert.Empty(t, list[1].Votes)

	// Review happens once.
	reviewed, err := s.ReviewSuggestion(ctx, "sg-1", rewards.SuggestionReview{
		Status: rewards.SuggestionApproved, AdminFeedback: "Ordered", ReviewedBy: "root", RewardID: "desk", At: epoch.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, rewards.SuggestionApproved, reviewed.Status)
	assert.Equal(t, "Ordered", reviewed.AdminFeedback)
	assert.Equal(t, points.UserID("root"), reviewed.ReviewedBy)
	assert.Equal(t, rewards.ID("desk"), reviewed.RewardID)
	assert.True(t, reviewed.UpdatedAt.Equal(epoch.Add(time.Hour)))
	assert.Equal(t, []points.UserID{"cat"}, reviewed.Votes)

	_, err = s.ReviewSuggestion(ctx, "sg-1", rewards.SuggestionReview{Status: rewards.SuggestionRejected, At: epoch})
	assert.ErrorIs(t, err, points.ErrInvalidInput)
	got, err = s.GetSuggestion(ctx, "sg-1")
	require.NoError(t, err)
	assert.Equal(t, rewards.SuggestionApproved, got.Status)

	_, err = s.GetSuggestion(ctx, "nope")
	assert.True(t, points.IsNotFound(err))
	_, err = s.AddSuggestionVote(ctx, "nope", "bob")
	assert.True(t, points.IsNotFound(err))
	_, err = s.ReviewSuggestion(ctx, "nope", rewards.SuggestionReview{Status: rewards.SuggestionRejected, At: epoch})
	assert.True(t, points.IsNotFound(err))
	err = s.CreateSuggestion(ctx, rewards.Suggestion{ID: "sg-3", OrganizationID: orgA, Status: rewards.SuggestionPending, CreatedAt: epoch, UpdatedAt: epoch})
	assert.ErrorIs(t, err, points.ErrInvalidInput)
}

// =============================================================================
// ACHIEVEMENTS
// =============================================================================

func testAchievementsCompleteOnce(t *testing.T, s Backend) {
	ctx := context.Background()
	seedOrgs(t, s)
	seedUser(t, s, "ann", orgA)
	require.NoError(t, s.CreateAchievement(ctx, achievements.Achievement{
		ID: "ach-1", Name: "Team Player", Type: achievements.TypeRecognitionCount, Threshold: 4, Points: 20,
		OrganizationID: orgA, CreatedAt: epoch,
	}))

	prev, err := s.UpdateProgress(ctx, "ann", "ach-1", 25, epoch)
	require.NoError(t, err)
	assert.Zero(t, prev)
	prev, err = s.UpdateProgress(ctx, "ann", "ach-1", 50, epoch)
	require.NoError(t, err)
	assert.Equal(t, 25, prev)

	done, err := s.CompleteUserAchievement(ctx, "ann", "ach-1", epoch.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, done)
	again, err := s.CompleteUserAchievement(ctx, "ann", "ach-1", epoch.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, again)

	// Progress never reopens a completed achievement.
	_, err = s.UpdateProgress(ctx, "ann", "ach-1", 10, epoch.Add(3*time.Hour))
	require.NoError(t, err)

	ua, err := s.GetUserAchievement(ctx, "ann", "ach-1")
	require.NoError(t, err)
	assert.Equal(t, achievements.CompleteProgress, ua.Progress)
	require.NotNil(t, ua.EarnedAt)
	assert.True(t, ua.EarnedAt.Equal(epoch.Add(time.Hour)))

	list, err := s.ListUserAchievements(ctx, "ann")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = s.GetUserAchievement(ctx, "bob", "ach-1")
	assert.True(t, points.IsNotFound(err))
}

func testAchievementOrdering(t *testing.T, s Backend) {
	ctx := context.Background()
	seedOrgs(t, s)
	for _, a := range []achievements.Achievement{
		{ID: "rc-10", Type: achievements.TypeRecognitionCount, Threshold: 10, OrganizationID: orgA},
		{ID: "rc-1", Type: achievements.TypeRecognitionCount, Threshold: 1},
		{ID: "kudos-5", Type: achievements.TypeKudosReceived, Threshold: 5, OrganizationID: orgA},
		{ID: "other", Type: achievements.TypeKudosReceived, Threshold: 1, OrganizationID: orgB},
	} {
		a.Name = string(a.ID)
		a.CreatedAt = epoch
		require.NoError(t, s.CreateAchievement(ctx, a))
	}

	list, err := s.ListAchievements(ctx, orgA)

	require.NoError(t, err)
	var ids []achievements.ID
	for _, a := range list {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []achievements.ID{"kudos-5", "rc-1", "rc-10"}, ids)
	assert.True(t, list[1].Global())
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

func testNotifications(t *testing.T, s Backend) {
	ctx := context.Background()
	seedOrgs(t, s)
	seedUser(t, s, "ann", orgA)
	seedUser(t, s, "bob", orgA)
	for i, user := range []points.UserID{"ann", "bob", "ann"} {
		require.NoError(t, s.SaveNotification(ctx, points.Notification{
			ID:        fmt.Sprintf("n%d", i+1),
			UserID:    user,
			Kind:      points.NotifyRecognitionReceived,
			Title:     "New Recognition",
			Message:   "bob recognized you for teamwork",
			Data:      map[string]any{"category": "TEAMWORK"},
			CreatedAt: epoch.Add(time.Duration(i) * time.Minute),
		}))
	}

	list, err := s.ListNotifications(ctx, "ann")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "n3", list[0].ID)
	assert.Equal(t, "n1", list[1].ID)
	assert.Equal(t, "TEAMWORK", list[0].Data["category"])
	assert.False(t, list[0].Read)

	require.NoError(t, s.MarkNotificationRead(ctx, "n1"))
	n, err := s.GetNotification(ctx, "n1")
	require.NoError(t, err)
	assert.True(t, n.Read)
	assert.True(t, points.IsNotFound(s.MarkNotificationRead(ctx, "missing")))

	require.NoError(t, s.DeleteNotifications(ctx, []string{"n1", "n3"}))
	list, err = s.ListNotifications(ctx, "ann")
	require.NoError(t, err)
	assert.Empty(t, list)
	_, err = s.GetNotification(ctx, "n1")
	assert.True(t, points.IsNotFound(err))

	bobs, err := s.ListNotifications(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, bobs, 1)
}

// =============================================================================
// RESET
// =============================================================================

func testReset(t *testing.T, s Backend) {
	ctx := context.Background()
	seedOrgs(t, s)
	seedUser(t, s, "ann", orgA)
	seedUser(t, s, "bob", orgA)
	seedRecognition(t, s, "rec-1", "ann", "bob", 10, epoch)
	seedReward(t, s, "mug", orgA, 1, true)
	require.NoError(t, s.CreateSuggestion(ctx, rewards.Suggestion{
		ID: "sg-1", OrganizationID: orgA, Name: "Desk", Description: "Standing", Category: rewards.CategoryMerchandise,
		SuggestedBy: "ann", Votes: []points.UserID{"bob"}, Status: rewards.SuggestionPending, CreatedAt: epoch, UpdatedAt: epoch,
	}))

	require.NoError(t, s.Reset(ctx))

	orgs, err := s.ListOrganizations(ctx)
	require.NoError(t, err)
	assert.Empty(t, orgs)
	_, err = s.GetUser(ctx, "ann")
	assert.True(t, points.IsNotFound(err))
	_, err = s.GetRecognition(ctx, "rec-1")
	assert.True(t, points.IsNotFound(err))
	_, err = s.GetReward(ctx, "mug")
	assert.True(t, points.IsNotFound(err))
	_, err = s.GetSuggestion(ctx, "sg-1")
	assert.True(t, points.IsNotFound(err))

	// The backend is usable again with the same identifiers.
	seedOrgs(t, s)
	seedUser(t, s, "ann", orgA)
}
