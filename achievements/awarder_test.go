package achievements_test

import (
	"context"
	"sync"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/recognition-engine/achievements"
	"github.com/warp/recognition-engine/points"
	"github.com/warp/recognition-engine/store/memory"
)

const org = points.OrgID("org-1")

type fixture struct {
	store   *memory.Store
	ledger  *points.Ledger
	awarder *achievements.Awarder

	mu   sync.Mutex
	sent []points.Notification
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	log, _ := test.NewNullLogger()
	f := &fixture{store: memory.New()}
	f.ledger = points.NewLedger(f.store, points.NotificationSinkFunc(func(_ context.Context, n points.Notification) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.sent = append(f.sent, n)
		return nil
	}), log)
	f.awarder = achievements.NewAwarder(f.store, f.store, f.ledger, log)
	require.NoError(t, f.store.CreateOrganization(ctx, points.Organization{ID: org, Name: "Acme Corp", Slug: "acme-corp"}))
	require.NoError(t, f.store.CreateOrganization(ctx, points.Organization{ID: "org-2", Name: "Globex", Slug: "globex"}))
	for _, u := range []points.User{
		{ID: "ann", OrganizationID: org, Role: points.RoleEmployee},
		{ID: "zed", OrganizationID: "org-2", Role: points.RoleEmployee},
	} {
		_, err := f.store.UpsertUser(ctx, u)
		require.NoError(t, err)
	}
	return f
}

func (f *fixture) define(t *testing.T, name string, typ achievements.Type, threshold, pts int64, o points.OrgID) achievements.Achievement {
	t.Helper()
	a, err := f.awarder.CreateAchievement(context.Background(), achievements.CreateInput{
		Name: name, Type: typ, Threshold: threshold, Points: pts, OrganizationID: o,
	})
	require.NoError(t, err)
	return a
}

// ladder defines RECOGNITION_COUNT thresholds 1, 5 and 10.
func (f *fixture) ladder(t *testing.T) (first, five, ten achievements.Achievement) {
	t.Helper()
	ten = f.define(t, "Legend", achievements.TypeRecognitionCount, 10, 50, org)
	first = f.define(t, "First Thanks", achievements.TypeRecognitionCount, 1, 5, org)
	five = f.define(t, "Team Player", achievements.TypeRecognitionCount, 5, 20, org)
	return first, five, ten
}

func (f *fixture) personal(t *testing.T, id points.UserID) int64 {
	t.Helper()
	b, err := f.ledger.GetBalance(context.Background(), id)
	require.NoError(t, err)
	return b.Personal
}

func (f *fixture) kinds() []points.NotificationKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]points.NotificationKind, 0, len(f.sent))
	for _, n := range f.sent {
		out = append(out, n.Kind)
	}
	return out
}

// =============================================================================
// CHECK & AWARD
// =============================================================================

func TestCheckAndAward_HighestSatisfiedThresholdOnly(t *testing.T) {
	// GIVEN: Thresholds 1, 5 and 10
	f := newFixture(t)
	first, five, ten := f.ladder(t)
	ctx := context.Background()

	// WHEN: The counter jumps straight to 5
	require.NoError(t, f.awarder.CheckAndAward(ctx, "ann", achievements.TypeRecognitionCount, 5, org))

	// THEN: Only the 5 threshold completes; the 10 threshold is half way
	assert.Equal(t, int64(20), f.personal(t, "ann"))
	ua, err := f.store.GetUserAchievement(ctx, "ann", five.ID)
	require.NoError(t, err)
	assert.True(t, ua.Completed())
	require.NotNil(t, ua.EarnedAt)

	_, err = f.store.GetUserAchievement(ctx, "ann", first.ID)
	assert.True(t, points.IsNotFound(err))

	next, err := f.store.GetUserAchievement(ctx, "ann", ten.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, next.Progress)

	assert.Equal(t, []points.NotificationKind{points.NotifyAchievementUnlocked, points.NotifyProgressMilestone}, f.kinds())
}

func TestCheckAndAward_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.ladder(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, f.awarder.CheckAndAward(ctx, "ann", achievements.TypeRecognitionCount, 5, org))
	}

	assert.Equal(t, int64(20), f.personal(t, "ann"))
	txs, err := f.ledger.History(ctx, "ann", 0)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
	assert.Equal(t, points.TxAchievement, txs[0].Type)
	assert.Len(t, f.kinds(), 2)
}

func TestCheckAndAward_ConcurrentChecksAwardOnce(t *testing.T) {
	f := newFixture(t)
	f.define(t, "First Thanks", achievements.TypeRecognitionCount, 1, 5, org)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.awarder.CheckAndAward(context.Background(), "ann", achievements.TypeRecognitionCount, 1, org))
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(5), f.personal(t, "ann"))
}

func TestCheckAndAward_ProgressMilestones(t *testing.T) {
	f := newFixture(t)
	f.define(t, "Popular", achievements.TypeKudosReceived, 8, 10, org)
	ctx := context.Background()

	// 12%, 25% (milestone), 25% again (unchanged), 37%, 50% (milestone)
	for _, v := range []int64{1, 2, 2, 3, 4} {
		require.NoError(t, f.awarder.CheckAndAward(ctx, "ann", achievements.TypeKudosReceived, v, org))
	}

	assert.Equal(t, []points.NotificationKind{points.NotifyProgressMilestone, points.NotifyProgressMilestone}, f.kinds())
	assert.Zero(t, f.personal(t, "ann"))
}

func TestCheckAndAward_IgnoresOtherMetricsAndOrganizations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.define(t, "Kudos Magnet", achievements.TypeKudosReceived, 1, 5, org)
	f.define(t, "Globex Star", achievements.TypeRecognitionCount, 1, 5, "org-2")
	global := f.define(t, "Welcome", achievements.TypeRecognitionCount, 1, 3, "")

	require.NoError(t, f.awarder.CheckAndAward(ctx, "ann", achievements.TypeRecognitionCount, 1, org))

	assert.Equal(t, int64(3), f.personal(t, "ann"))
	uas, err := f.awarder.GetUserAchievements(ctx, "ann")
	require.NoError(t, err)
	require.Len(t, uas, 1)
	assert.Equal(t, global.ID, uas[0].AchievementID)
	require.NotNil(t, uas[0].Achievement)
	assert.Equal(t, "Welcome", uas[0].Achievement.Name)
}

func TestCheckAndAward_NoDefinitions(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.awarder.CheckAndAward(context.Background(), "ann", achievements.TypeLoginStreak, 30, org))

	assert.Empty(t, f.kinds())
}

// =============================================================================
// MANUAL AWARD
// =============================================================================

func TestAwardAchievement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.define(t, "Mentor", achievements.TypeProfileCompletion, 1, 15, org)

	ok, err := f.awarder.AwardAchievement(ctx, a.ID, "ann", org)
	require.NoError(t, err)
	assert.True(t, ok)

	again, err := f.awarder.AwardAchievement(ctx, a.ID, "ann", org)
	require.NoError(t, err)
	assert.False(t, again)
	assert.Equal(t, int64(15), f.personal(t, "ann"))
}

func TestAwardAchievement_CrossOrganizationIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.define(t, "Mentor", achievements.TypeProfileCompletion, 1, 15, org)

	_, err := f.awarder.AwardAchievement(ctx, a.ID, "zed", "org-2")
	assert.True(t, points.IsNotFound(err), "achievement belongs to another organization")

	_, err = f.awarder.AwardAchievement(ctx, a.ID, "zed", org)
	assert.True(t, points.IsNotFound(err), "user belongs to another organization")

	assert.Zero(t, f.personal(t, "zed"))
}

// =============================================================================
// CATALOG
// =============================================================================

func TestCreateAchievement_Validation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		in   achievements.CreateInput
	}{
		{"empty name", achievements.CreateInput{Type: achievements.TypeLoginStreak, Threshold: 1}},
		{"unknown type", achievements.CreateInput{Name: "X", Type: "STEPS", Threshold: 1}},
		{"zero threshold", achievements.CreateInput{Name: "X", Type: achievements.TypeLoginStreak}},
		{"negative points", achievements.CreateInput{Name: "X", Type: achievements.TypeLoginStreak, Threshold: 1, Points: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.awarder.CreateAchievement(context.Background(), tt.in)
			assert.ErrorIs(t, err, points.ErrInvalidInput)
		})
	}
}

func TestGetOrganizationAchievements_OrderedByTypeThenThreshold(t *testing.T) {
	f := newFixture(t)
	first, five, ten := f.ladder(t)
	kudos := f.define(t, "Kudos Magnet", achievements.TypeKudosReceived, 3, 5, "")
	f.define(t, "Globex Star", achievements.TypeRecognitionCount, 1, 5, "org-2")

	defs, err := f.awarder.GetOrganizationAchievements(context.Background(), org)

	require.NoError(t, err)
	var ids []achievements.ID
	for _, d := range defs {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []achievements.ID{kudos.ID, first.ID, five.ID, ten.ID}, ids)
}

func TestGetProgress(t *testing.T) {
	f := newFixture(t)
	first, five, ten := f.ladder(t)
	ctx := context.Background()
	require.NoError(t, f.awarder.CheckAndAward(ctx, "ann", achievements.TypeRecognitionCount, 2, org))

	progress, err := f.awarder.GetProgress(ctx, "ann", org)

	require.NoError(t, err)
	assert.Equal(t, []achievements.Progress{
		{AchievementID: first.ID, Progress: 100},
		{AchievementID: five.ID, Progress: 40},
		{AchievementID: ten.ID, Progress: 0},
	}, progress)
}
