package recognition_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/recognition-engine/achievements"
	"github.com/warp/recognition-engine/budget"
	"github.com/warp/recognition-engine/notify"
	"github.com/warp/recognition-engine/points"
	"github.com/warp/recognition-engine/recognition"
	"github.com/warp/recognition-engine/store/memory"
)

const org = points.OrgID("org-1")

// =============================================================================
// TEST FIXTURE
// =============================================================================

type fixture struct {
	store   *memory.Store
	ledger  *points.Ledger
	budget  *budget.Service
	awarder *achievements.Awarder
	inbox   *notify.Inbox
	engine  *recognition.Engine
}

// newFixture builds an organization where employees get 20 points a month
// and may give up to 20 per recognition. TEAMWORK (10/30) and EXCELLENCE
// (15/50) are active.
func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	log, _ := test.NewNullLogger()
	store := memory.New()
	inbox := notify.NewInbox(store, log)
	ledger := points.NewLedger(store, inbox, log)
	budgetSvc := budget.NewService(store, store, ledger, log)
	awarder := achievements.NewAwarder(store, store, ledger, log)
	engine := recognition.NewEngine(store, store, budgetSvc, ledger,
		recognition.WithAchievements(awarder), recognition.WithLogger(log))

	require.NoError(t, store.CreateOrganization(ctx, points.Organization{ID: org, Name: "Acme Corp", Slug: "acme-corp"}))
	require.NoError(t, store.CreateOrganization(ctx, points.Organization{ID: "org-2", Name: "Globex", Slug: "globex"}))
	require.NoError(t, budgetSvc.UpdateCategorySettings(ctx, org, budget.CategoryTeamwork,
		budget.CategorySetting{IsActive: true, DefaultPoints: 10, MaxPoints: 30}))
	require.NoError(t, budgetSvc.UpdateCategorySettings(ctx, org, budget.CategoryExcellence,
		budget.CategorySetting{IsActive: true, DefaultPoints: 15, MaxPoints: 50}))
	require.NoError(t, budgetSvc.UpdateMonthlyAllocation(ctx, org, points.RoleEmployee,
		budget.RoleAllocation{PointsPerMonth: 20, MaxPointsPerRecognition: 20}))

	return fixture{store: store, ledger: ledger, budget: budgetSvc, awarder: awarder, inbox: inbox, engine: engine}
}

func (f fixture) employee(t *testing.T, id points.UserID, allocation int64) {
	t.Helper()
	f.member(t, id, org, allocation)
}

func (f fixture) member(t *testing.T, id points.UserID, o points.OrgID, allocation int64) {
	t.Helper()
	ctx := context.Background()
	_, err := f.store.UpsertUser(ctx, points.User{ID: id, OrganizationID: o, Role: points.RoleEmployee, FirstName: strings.ToUpper(string(id[:1])) + string(id[1:])})
	require.NoError(t, err)
	_, err = f.ledger.AwardPoints(ctx, id, allocation, points.AwardAllocation, points.Silently())
	require.NoError(t, err)
}

func (f fixture) balance(t *testing.T, id points.UserID) points.Balance {
	t.Helper()
	b, err := f.ledger.GetBalance(context.Background(), id)
	require.NoError(t, err)
	return b
}

func (f fixture) recognize(t *testing.T, from, to points.UserID, category string) recognition.Recognition {
	t.Helper()
	rec, err := f.engine.CreateRecognition(context.Background(), recognition.CreateInput{
		SenderID:    from,
		RecipientID: to,
		Message:     "Thanks for the help",
		Category:    category,
	})
	require.NoError(t, err)
	return rec
}

func ptr[T any](v T) *T { return &v }

// =============================================================================
// CREATE
// =============================================================================

func TestCreateRecognition_DefaultPointsTransfer(t *testing.T) {
	// GIVEN: ann holds 20 allocation points
	f := newFixture(t)
	f.employee(t, "ann", 20)
	f.employee(t, "bob", 20)
	before := f.balance(t, "ann").Total() + f.balance(t, "bob").Total()

	// WHEN: ann recognizes bob for EXCELLENCE without naming points
	rec := f.recognize(t, "ann", "bob", "excellence")

	// THEN: The category default of 15 moved from ann's allocation to bob's personal pool
	assert.Equal(t, int64(15), rec.Points)
	assert.Equal(t, budget.CategoryExcellence, rec.Category)
	assert.Equal(t, org, rec.OrganizationID)
	assert.Empty(t, rec.Kudos)
	assert.Equal(t, points.Balance{Allocation: 5}, f.balance(t, "ann"))
	assert.Equal(t, points.Balance{Allocation: 20, Personal: 15}, f.balance(t, "bob"))
	assert.Equal(t, before, f.balance(t, "ann").Total()+f.balance(t, "bob").Total())

	// AND: bob was told
	inbox, err := f.inbox.List(context.Background(), "bob")
	require.NoError(t, err)
	var kinds []points.NotificationKind
	for _, n := range inbox {
		kinds = append(kinds, n.Kind)
	}
	assert.Contains(t, kinds, points.NotifyRecognitionReceived)
}

func TestCreateRecognition_ExplicitPoints(t *testing.T) {
	f := newFixture(t)
	f.employee(t, "ann", 20)
	f.employee(t, "bob", 0)

	rec, err := f.engine.CreateRecognition(context.Background(), recognition.CreateInput{
		SenderID: "ann", RecipientID: "bob", Message: "Great demo", Category: "TEAMWORK", Points: ptr[int64](7),
	})

	require.NoError(t, err)
	assert.Equal(t, int64(7), rec.Points)
	assert.Equal(t, int64(13), f.balance(t, "ann").Allocation)
	assert.Equal(t, int64(7), f.balance(t, "bob").Personal)
}

func TestCreateRecognition_ZeroPointsMovesNothing(t *testing.T) {
	f := newFixture(t)
	f.employee(t, "ann", 20)
	f.employee(t, "bob", 0)

	rec, err := f.engine.CreateRecognition(context.Background(), recognition.CreateInput{
		SenderID: "ann", RecipientID: "bob", Message: "Nice", Category: "TEAMWORK", Points: ptr[int64](0),
	})

	require.NoError(t, err)
	assert.Zero(t, rec.Points)
	assert.Equal(t, int64(20), f.balance(t, "ann").Allocation)
	assert.Zero(t, f.balance(t, "bob").Personal)
}

func TestCreateRecognition_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		input recognition.CreateInput
		want  error
	}{
		{"self", recognition.CreateInput{SenderID: "ann", RecipientID: "ann", Message: "Me", Category: "TEAMWORK"}, points.ErrSelfRecognition},
		{"empty message", recognition.CreateInput{SenderID: "ann", RecipientID: "bob", Message: "  ", Category: "TEAMWORK"}, points.ErrInvalidInput},
		{"unknown category", recognition.CreateInput{SenderID: "ann", RecipientID: "bob", Message: "Hi", Category: "HEROISM"}, points.ErrInvalidInput},
		{"inactive category", recognition.CreateInput{SenderID: "ann", RecipientID: "bob", Message: "Hi", Category: "LEADERSHIP"}, points.ErrCategoryInactive},
		{"negative points", recognition.CreateInput{SenderID: "ann", RecipientID: "bob", Message: "Hi", Category: "TEAMWORK", Points: ptr[int64](-1)}, points.ErrInvalidInput},
		{"over category max", recognition.CreateInput{SenderID: "ann", RecipientID: "bob", Message: "Hi", Category: "TEAMWORK", Points: ptr[int64](31)}, points.ErrBudgetExceeded},
		{"over role max", recognition.CreateInput{SenderID: "ann", RecipientID: "bob", Message: "Hi", Category: "EXCELLENCE", Points: ptr[int64](21)}, points.ErrBudgetExceeded},
		{"unknown recipient", recognition.CreateInput{SenderID: "ann", RecipientID: "ghost", Message: "Hi", Category: "TEAMWORK"}, points.ErrNotFound},
		{"recipient in another org", recognition.CreateInput{SenderID: "ann", RecipientID: "zed", Message: "Hi", Category: "TEAMWORK"}, points.ErrInvalidInput},
		{"sender outside named org", recognition.CreateInput{SenderID: "ann", RecipientID: "zed", OrganizationID: "org-2", Message: "Hi", Category: "TEAMWORK"}, points.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.employee(t, "ann", 20)
			f.employee(t, "bob", 20)
			f.member(t, "zed", "org-2", 0)

			_, err := f.engine.CreateRecognition(context.Background(), tt.input)

			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, int64(20), f.balance(t, "ann").Allocation)
			assert.Zero(t, f.balance(t, "zed").Personal)
			recs, err := f.engine.ListRecognitions(context.Background(), recognition.Filter{})
			require.NoError(t, err)
			assert.Empty(t, recs)
		})
	}
}

func TestCreateRecognition_InsufficientAllocationIsBudgetExceeded(t *testing.T) {
	// GIVEN: ann has only 10 allocation points
	f := newFixture(t)
	f.employee(t, "ann", 10)
	f.employee(t, "bob", 0)

	// WHEN: The EXCELLENCE default of 15 is requested
	_, err := f.engine.CreateRecognition(context.Background(), recognition.CreateInput{
		SenderID: "ann", RecipientID: "bob", Message: "Thanks", Category: "EXCELLENCE",
	})

	// THEN: Budget exceeded, nothing written
	var exceeded *points.BudgetExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, int64(15), exceeded.Points)
	assert.Equal(t, int64(10), exceeded.Available)
	assert.Equal(t, points.KindBudgetExceeded, points.KindOf(err))
	assert.Equal(t, int64(10), f.balance(t, "ann").Allocation)
	assert.Zero(t, f.balance(t, "bob").Personal)
}

func TestCreateRecognition_MessageLengthCountsCharacters(t *testing.T) {
	f := newFixture(t)
	f.employee(t, "ann", 20)
	f.employee(t, "bob", 0)
	ctx := context.Background()

	ok := strings.Repeat("é", recognition.MaxMessageLength)
	_, err := f.engine.CreateRecognition(ctx, recognition.CreateInput{
		SenderID: "ann", RecipientID: "bob", Message: ok, Category: "TEAMWORK", Points: ptr[int64](1),
	})
	require.NoError(t, err)

	_, err = f.engine.CreateRecognition(ctx, recognition.CreateInput{
		SenderID: "ann", RecipientID: "bob", Message: ok + "!", Category: "TEAMWORK", Points: ptr[int64](1),
	})
	assert.ErrorIs(t, err, points.ErrInvalidInput)
}

func TestCreateRecognition_ConcurrentSendersRespectAllocation(t *testing.T) {
	// GIVEN: 20 allocation points and ten concurrent recognitions of 5
	f := newFixture(t)
	f.employee(t, "ann", 20)
	f.employee(t, "bob", 0)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		exceeded  int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.CreateRecognition(context.Background(), recognition.CreateInput{
				SenderID: "ann", RecipientID: "bob", Message: "Thanks", Category: "TEAMWORK", Points: ptr[int64](5),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case points.KindOf(err) == points.KindBudgetExceeded:
				exceeded++
			}
		}()
	}
	wg.Wait()

	// THEN: Four settled, the rest were refused as over budget
	assert.Equal(t, 4, succeeded)
	assert.Equal(t, 6, exceeded)
	assert.Zero(t, f.balance(t, "ann").Allocation)
	assert.Equal(t, int64(20), f.balance(t, "bob").Personal)
}

func TestCreateRecognition_FeedsAchievements(t *testing.T) {
	// GIVEN: A "First Thanks" achievement worth 5 points
	f := newFixture(t)
	f.employee(t, "ann", 20)
	f.employee(t, "bob", 0)
	_, err := f.awarder.CreateAchievement(context.Background(), achievements.CreateInput{
		Name: "First Thanks", Type: achievements.TypeRecognitionCount, Threshold: 1, Points: 5, OrganizationID: org,
	})
	require.NoError(t, err)

	// WHEN: bob receives two recognitions
	f.recognize(t, "ann", "bob", "TEAMWORK")
	_, err = f.engine.CreateRecognition(context.Background(), recognition.CreateInput{
		SenderID: "ann", RecipientID: "bob", Message: "Again", Category: "TEAMWORK", Points: ptr[int64](1),
	})
	require.NoError(t, err)

	// THEN: The achievement paid out once
	assert.Equal(t, int64(10+1+5), f.balance(t, "bob").Personal)
	uas, err := f.awarder.GetUserAchievements(context.Background(), "bob")
	require.NoError(t, err)
	require.Len(t, uas, 1)
	assert.True(t, uas[0].Completed())
}

func TestGetRecognition_ReturnsWhatWasCreated(t *testing.T) {
	// GIVEN: ann recognized bob with an explicit amount
	f := newFixture(t)
	f.employee(t, "ann", 20)
	f.employee(t, "bob", 0)
	ctx := context.Background()
	created, err := f.engine.CreateRecognition(ctx, recognition.CreateInput{
		SenderID:    "ann",
		RecipientID: "bob",
		Message:     "Great demo 🎉",
		Category:    "excellence",
		Points:      ptr[int64](12),
	})
	require.NoError(t, err)

	// WHEN: Reading it back
	got, err := f.engine.GetRecognition(ctx, created.ID)

	// THEN: Every field matches the created record
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, org, got.OrganizationID)
	assert.Equal(t, points.UserID("ann"), got.SenderID)
	assert.Equal(t, points.UserID("bob"), got.RecipientID)
	assert.Equal(t, "Great demo 🎉", got.Message)
	assert.Equal(t, budget.CategoryExcellence, got.Category)
	assert.Equal(t, int64(12), got.Points)
	assert.Empty(t, got.Kudos)
	assert.Nil(t, got.PinnedUntil)
	assert.True(t, got.CreatedAt.Equal(created.CreatedAt))

	_, err = f.engine.GetRecognition(ctx, "nope")
	assert.True(t, points.IsNotFound(err))
}

// =============================================================================
// KUDOS & PINNING
// =============================================================================

func TestToggleKudos(t *testing.T) {
	f := newFixture(t)
	f.employee(t, "ann", 20)
	f.employee(t, "bob", 0)
	f.employee(t, "cat", 0)
	rec := f.recognize(t, "ann", "bob", "TEAMWORK")
	ctx := context.Background()

	added, err := f.engine.ToggleKudos(ctx, rec.ID, "cat")
	require.NoError(t, err)
	require.NotNil(t, added)
	assert.Equal(t, []points.UserID{"cat"}, added.Kudos)

	removed, err := f.engine.ToggleKudos(ctx, rec.ID, "cat")
	require.NoError(t, err)
	require.NotNil(t, removed)
	assert.Empty(t, removed.Kudos)

	missing, err := f.engine.ToggleKudos(ctx, "nope", "cat")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestListRecognitions_PinnedFirstThenNewest(t *testing.T) {
	f := newFixture(t)
	f.employee(t, "ann", 20)
	f.employee(t, "bob", 0)
	ctx := context.Background()
	first := f.recognize(t, "ann", "bob", "TEAMWORK")
	second, err := f.engine.CreateRecognition(ctx, recognition.CreateInput{
		SenderID: "ann", RecipientID: "bob", Message: "Later", Category: "TEAMWORK", Points: ptr[int64](1),
	})
	require.NoError(t, err)

	pinned, err := f.engine.PinRecognition(ctx, first.ID, 7)
	require.NoError(t, err)
	require.NotNil(t, pinned.PinnedUntil)

	recs, err := f.engine.ListRecognitions(ctx, recognition.Filter{OrganizationID: org})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, first.ID, recs[0].ID)
	assert.Equal(t, second.ID, recs[1].ID)

	unpinned, err := f.engine.PinRecognition(ctx, first.ID, 0)
	require.NoError(t, err)
	assert.Nil(t, unpinned.PinnedUntil)

	_, err = f.engine.PinRecognition(ctx, first.ID, -1)
	assert.ErrorIs(t, err, points.ErrInvalidInput)
}

func TestListRecognitions_Filters(t *testing.T) {
	f := newFixture(t)
	f.employee(t, "ann", 20)
	f.employee(t, "bob", 20)
	f.employee(t, "cat", 0)
	f.recognize(t, "ann", "bob", "TEAMWORK")
	f.recognize(t, "bob", "cat", "TEAMWORK")

	bySender, err := f.engine.ListRecognitions(context.Background(), recognition.Filter{SenderID: "bob"})
	require.NoError(t, err)
	require.Len(t, bySender, 1)
	assert.Equal(t, points.UserID("cat"), bySender[0].RecipientID)

	byRecipient, err := f.engine.ListRecognitions(context.Background(), recognition.Filter{RecipientID: "bob"})
	require.NoError(t, err)
	require.Len(t, byRecipient, 1)
	assert.Equal(t, points.UserID("ann"), byRecipient[0].SenderID)
}

// =============================================================================
// LEADERBOARD & STATS
// =============================================================================

func TestLeaderboard_TiesKeepFirstAppearance(t *testing.T) {
	// GIVEN: dan earns 15; bob then cat earn 10 each
	f := newFixture(t)
	f.employee(t, "ann", 20)
	f.employee(t, "eve", 20)
	f.employee(t, "bob", 0)
	f.employee(t, "cat", 0)
	f.employee(t, "dan", 0)
	f.recognize(t, "ann", "bob", "TEAMWORK")
	f.recognize(t, "eve", "cat", "TEAMWORK")
	f.recognize(t, "eve", "dan", "TEAMWORK")
	_, err := f.engine.CreateRecognition(context.Background(), recognition.CreateInput{
		SenderID: "ann", RecipientID: "dan", Message: "More", Category: "TEAMWORK", Points: ptr[int64](5),
	})
	require.NoError(t, err)

	// WHEN: Ranking
	board, err := f.engine.Leaderboard(context.Background(), org, 0)

	// THEN: Highest first; bob before cat because bob was recognized first
	require.NoError(t, err)
	require.Len(t, board, 3)
	var ids []points.UserID
	for _, e := range board {
		ids = append(ids, e.UserID)
	}
	assert.Equal(t, []points.UserID{"dan", "bob", "cat"}, ids)
	assert.Equal(t, int64(15), board[0].TotalPoints)
	require.NotNil(t, board[1].User)
	assert.Equal(t, "Bob", board[1].User.FirstName)

	top, err := f.engine.Leaderboard(context.Background(), org, 1)
	require.NoError(t, err)
	assert.Len(t, top, 1)
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	f.employee(t, "ann", 20)
	f.employee(t, "bob", 20)
	f.recognize(t, "ann", "bob", "TEAMWORK")
	f.recognize(t, "bob", "ann", "TEAMWORK")
	_, err := f.engine.CreateRecognition(context.Background(), recognition.CreateInput{
		SenderID: "ann", RecipientID: "bob", Message: "Again", Category: "TEAMWORK", Points: ptr[int64](1),
	})
	require.NoError(t, err)

	stats, err := f.engine.Stats(context.Background(), "ann")

	require.NoError(t, err)
	assert.Equal(t, recognition.Stats{Received: 1, Given: 2}, stats)

	_, err = f.engine.Stats(context.Background(), "ghost")
	assert.True(t, points.IsNotFound(err))
}
