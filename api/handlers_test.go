/*
handlers_test.go - HTTP-level tests for the API

Tests for:
- Authentication (401) and role checks (403)
- Recognition creation, budget refusal, kudos and organization scoping
- Reward redemption and inventory exhaustion
- Reward suggestions: voting and admin review
- Notification inbox
- Rate limiting, health and metrics endpoints
*/
package api_test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/recognition-engine/api"
	"github.com/warp/recognition-engine/points"
	"github.com/warp/recognition-engine/recognition"
	"github.com/warp/recognition-engine/rewards"
)

// =============================================================================
// AUTHENTICATION
// =============================================================================

func TestAuth_MissingToken(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/me", "", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, points.KindUnauthorized, decode[api.ErrorResponse](t, rec).Error)
}

func TestAuth_BadSignature(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/me", "not.a.token", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_NoOrganizationGroup(t *testing.T) {
	// GIVEN: A valid token whose groups name no organization
	ts := newTestServer(t)
	tok := ts.token("nomad", "Acme Corp/Engineering", "employee")

	// WHEN: Calling any authenticated endpoint
	rec := ts.do(http.MethodGet, "/api/me", tok, nil)

	// THEN: The caller is rejected
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_FirstLoginProvisionsUser(t *testing.T) {
	ts := newTestServer(t)
	tok := ts.token("alice", testOrg, "manager")

	rec := ts.do(http.MethodGet, "/api/me", tok, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[points.User](t, rec)
	assert.Equal(t, points.UserID("alice"), me.ID)
	assert.Equal(t, points.RoleManager, me.Role)
	assert.NotEmpty(t, me.OrganizationID)
	assert.Zero(t, me.Wallet.Total())
}

func TestRequireRole_EmployeeCannotConfigure(t *testing.T) {
	ts := newTestServer(t)
	tok := ts.token("bob", testOrg, "employee")

	rec := ts.do(http.MethodGet, "/api/admin/configuration", tok, nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, points.KindUnauthorized, decode[api.ErrorResponse](t, rec).Error)
}

// =============================================================================
// RECOGNITIONS
// =============================================================================

func TestCreateRecognition_TransfersDefaultPoints(t *testing.T) {
	// GIVEN: A manager with a 100 point allocation
	ts := newTestServer(t)
	tm := ts.setupTeam()

	// WHEN: Recognizing bob for teamwork without explicit points
	rec := ts.do(http.MethodPost, "/api/recognitions", tm.alice, api.CreateRecognitionRequest{
		RecipientID: "bob",
		Message:     "Thanks for the late-night deploy",
		Category:    "teamwork",
	})

	// THEN: The category default moves from alice's allocation to bob's personal pool
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[recognition.Recognition](t, rec)
	assert.Equal(t, int64(10), created.Points)

	alice := decode[api.BalanceDTO](t, ts.do(http.MethodGet, "/api/me/balance", tm.alice, nil))
	bob := decode[api.BalanceDTO](t, ts.do(http.MethodGet, "/api/me/balance", tm.bob, nil))
	assert.Equal(t, int64(90), alice.Allocation)
	assert.Equal(t, int64(10), bob.Personal)
	assert.Equal(t, int64(20), bob.Allocation)
}

func TestCreateRecognition_OverBudget(t *testing.T) {
	// GIVEN: bob has 20 allocation points and a 20 point cap per recognition
	ts := newTestServer(t)
	tm := ts.setupTeam()
	pts := int64(25)

	// WHEN: bob tries to send 25
	rec := ts.do(http.MethodPost, "/api/recognitions", tm.bob, api.CreateRecognitionRequest{
		RecipientID: "alice",
		Message:     "Great review",
		Category:    "EXCELLENCE",
		Points:      &pts,
	})

	// THEN: Refused, nothing moved
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, points.KindBudgetExceeded, decode[api.ErrorResponse](t, rec).Error)
	bob := decode[api.BalanceDTO](t, ts.do(http.MethodGet, "/api/me/balance", tm.bob, nil))
	assert.Equal(t, int64(20), bob.Allocation)
}

func TestCreateRecognition_Self(t *testing.T) {
	ts := newTestServer(t)
	tm := ts.setupTeam()

	rec := ts.do(http.MethodPost, "/api/recognitions", tm.alice, api.CreateRecognitionRequest{
		RecipientID: "alice",
		Message:     "Me, myself and I",
		Category:    "TEAMWORK",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, points.KindSelfRecognition, decode[api.ErrorResponse](t, rec).Error)
}

func TestCreateRecognition_InactiveCategory(t *testing.T) {
	ts := newTestServer(t)
	tm := ts.setupTeam()

	rec := ts.do(http.MethodPost, "/api/recognitions", tm.alice, api.CreateRecognitionRequest{
		RecipientID: "bob",
		Message:     "Visionary",
		Category:    "LEADERSHIP",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, points.KindCategoryInactive, decode[api.ErrorResponse](t, rec).Error)
}

func TestCreateRecognition_UnknownFieldRejected(t *testing.T) {
	ts := newTestServer(t)
	tm := ts.setupTeam()

	rec := ts.do(http.MethodPost, "/api/recognitions", tm.alice, map[string]any{
		"recipient_id": "bob",
		"message":      "hi",
		"category":     "TEAMWORK",
		"bonus":        1000,
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestToggleKudos_TwiceRestores(t *testing.T) {
	ts := newTestServer(t)
	tm := ts.setupTeam()
	created := decode[recognition.Recognition](t, ts.do(http.MethodPost, "/api/recognitions", tm.alice,
		api.CreateRecognitionRequest{RecipientID: "bob", Message: "Nice", Category: "TEAMWORK"}))
	path := "/api/recognitions/" + string(created.ID) + "/kudos"

	first := decode[api.KudosDTO](t, ts.do(http.MethodPost, path, tm.admin, nil))
	second := decode[api.KudosDTO](t, ts.do(http.MethodPost, path, tm.admin, nil))

	assert.True(t, first.HasKudos)
	assert.Equal(t, 1, first.KudosCount)
	assert.False(t, second.HasKudos)
	assert.Equal(t, 0, second.KudosCount)
}

func TestRecognition_OtherOrganizationIsHidden(t *testing.T) {
	// GIVEN: A recognition inside Acme
	ts := newTestServer(t)
	tm := ts.setupTeam()
	created := decode[recognition.Recognition](t, ts.do(http.MethodPost, "/api/recognitions", tm.alice,
		api.CreateRecognitionRequest{RecipientID: "bob", Message: "Nice", Category: "TEAMWORK"}))

	// WHEN: A member of another organization asks for it
	outsider := ts.token("mallory", "Globex", "admin")
	rec := ts.do(http.MethodGet, "/api/recognitions/"+string(created.ID), outsider, nil)

	// THEN: It does not exist for them
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPinRecognition_RequiresManager(t *testing.T) {
	ts := newTestServer(t)
	tm := ts.setupTeam()
	created := decode[recognition.Recognition](t, ts.do(http.MethodPost, "/api/recognitions", tm.alice,
		api.CreateRecognitionRequest{RecipientID: "bob", Message: "Nice", Category: "TEAMWORK"}))
	path := "/api/recognitions/" + string(created.ID) + "/pin"

	assert.Equal(t, http.StatusForbidden, ts.do(http.MethodPost, path, tm.bob, api.PinRecognitionRequest{Days: 3}).Code)

	rec := ts.do(http.MethodPost, path, tm.alice, api.PinRecognitionRequest{Days: 3})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotNil(t, decode[recognition.Recognition](t, rec).PinnedUntil)
}

func TestGetActiveCategories(t *testing.T) {
	ts := newTestServer(t)
	tm := ts.setupTeam()

	cats := decode[[]api.CategoryDTO](t, ts.do(http.MethodGet, "/api/recognitions/categories", tm.bob, nil))

	require.Len(t, cats, 2)
	byName := map[string]api.CategoryDTO{}
	for _, c := range cats {
		byName[c.Category.String()] = c
	}
	assert.Equal(t, int64(10), byName["TEAMWORK"].DefaultPoints)
	assert.Equal(t, int64(50), byName["EXCELLENCE"].MaxPoints)
}

// =============================================================================
// REWARDS
// =============================================================================

func TestRedeemReward_LastUnit(t *testing.T) {
	// GIVEN: bob holds 10 personal points and a single 5 point mug is on offer
	ts := newTestServer(t)
	tm := ts.setupTeam()
	require.Equal(t, http.StatusCreated, ts.do(http.MethodPost, "/api/recognitions", tm.alice,
		api.CreateRecognitionRequest{RecipientID: "bob", Message: "Nice", Category: "TEAMWORK"}).Code)

	rec := ts.do(http.MethodPost, "/api/rewards", tm.admin, api.CreateRewardRequest{
		Name: "Mug", Category: "merchandise", PointsCost: 5, Quantity: 1, IsActive: true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	mug := decode[rewards.Reward](t, rec)

	// WHEN: bob redeems it
	rec = ts.do(http.MethodPost, "/api/rewards/"+string(mug.ID)+"/redeem", tm.bob, nil)

	// THEN: The personal pool pays and the stock is gone
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode[api.RedemptionDTO](t, rec)
	assert.Equal(t, int64(0), out.Reward.Quantity)
	assert.Equal(t, int64(5), out.Balance.Personal)

	// AND: A second attempt finds nothing left
	rec = ts.do(http.MethodPost, "/api/rewards/"+string(mug.ID)+"/redeem", tm.bob, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, points.KindRewardUnavailable, decode[api.ErrorResponse](t, rec).Error)

	mine := decode[[]rewards.Redemption](t, ts.do(http.MethodGet, "/api/me/redemptions", tm.bob, nil))
	assert.Len(t, mine, 1)
}

func TestRedeemReward_InsufficientPoints(t *testing.T) {
	ts := newTestServer(t)
	tm := ts.setupTeam()
	mug := decode[rewards.Reward](t, ts.do(http.MethodPost, "/api/rewards", tm.admin, api.CreateRewardRequest{
		Name: "Mug", Category: "MERCHANDISE", PointsCost: 5, Quantity: 3, IsActive: true,
	}))

	rec := ts.do(http.MethodPost, "/api/rewards/"+string(mug.ID)+"/redeem", tm.bob, nil)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, points.KindInsufficientPoints, decode[api.ErrorResponse](t, rec).Error)
}

func TestCreateReward_AdminOnly(t *testing.T) {
	ts := newTestServer(t)
	tm := ts.setupTeam()

	rec := ts.do(http.MethodPost, "/api/rewards", tm.alice, api.CreateRewardRequest{
		Name: "Mug", Category: "MERCHANDISE", PointsCost: 5, Quantity: 3,
	})

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSuggestions_VoteAndApprove(t *testing.T) {
	// GIVEN: bob suggests a reward and alice backs it
	ts := newTestServer(t)
	tm := ts.setupTeam()
	rec := ts.do(http.MethodPost, "/api/rewards/suggestions", tm.bob, api.CreateSuggestionRequest{
		Name: "Team Lunch", Description: "Once a quarter", Category: "local_perk", SuggestedPointsCost: 25,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sg := decode[rewards.Suggestion](t, rec)
	assert.Equal(t, rewards.SuggestionPending, sg.Status)

	rec = ts.do(http.MethodPost, "/api/rewards/suggestions/"+string(sg.ID)+"/vote", tm.alice, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []points.UserID{"alice"}, decode[rewards.Suggestion](t, rec).Votes)

	// WHEN: A non-admin and then the admin review it
	review := api.ReviewSuggestionRequest{Status: "approved", AdminFeedback: "Booked"}
	forbidden := ts.do(http.MethodPut, "/api/rewards/suggestions/"+string(sg.ID)+"/review", tm.alice, review)
	rec = ts.do(http.MethodPut, "/api/rewards/suggestions/"+string(sg.ID)+"/review", tm.admin, review)

	// THEN: Only the admin's review lands and the reward joins the catalog
	assert.Equal(t, http.StatusForbidden, forbidden.Code)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	approved := decode[rewards.Suggestion](t, rec)
	assert.Equal(t, rewards.SuggestionApproved, approved.Status)
	require.NotEmpty(t, approved.RewardID)

	catalog := decode[[]rewards.Reward](t, ts.do(http.MethodGet, "/api/rewards", tm.bob, nil))
	require.Len(t, catalog, 1)
	assert.Equal(t, approved.RewardID, catalog[0].ID)
	assert.Equal(t, int64(25), catalog[0].PointsCost)

	listed := decode[[]rewards.Suggestion](t, ts.do(http.MethodGet, "/api/rewards/suggestions", tm.alice, nil))
	require.Len(t, listed, 1)
	assert.Equal(t, rewards.SuggestionApproved, listed[0].Status)

	// AND: A second review is refused
	rec = ts.do(http.MethodPut, "/api/rewards/suggestions/"+string(sg.ID)+"/review", tm.admin,
		api.ReviewSuggestionRequest{Status: "REJECTED"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

func TestNotifications_RecognitionLandsInInbox(t *testing.T) {
	// GIVEN: bob was recognized
	ts := newTestServer(t)
	tm := ts.setupTeam()
	require.Equal(t, http.StatusCreated, ts.do(http.MethodPost, "/api/recognitions", tm.alice,
		api.CreateRecognitionRequest{RecipientID: "bob", Message: "Nice", Category: "TEAMWORK"}).Code)

	// WHEN: bob reads the inbox
	inbox := decode[[]points.Notification](t, ts.do(http.MethodGet, "/api/notifications", tm.bob, nil))

	// THEN: The recognition notification is there and unread
	var found *points.Notification
	for i := range inbox {
		if inbox[i].Kind == points.NotifyRecognitionReceived {
			found = &inbox[i]
		}
	}
	require.NotNil(t, found)
	assert.False(t, found.Read)

	before := decode[api.UnreadCountDTO](t, ts.do(http.MethodGet, "/api/notifications/unread-count", tm.bob, nil))
	assert.Equal(t, http.StatusNoContent, ts.do(http.MethodPost, "/api/notifications/"+found.ID+"/read", tm.bob, nil).Code)
	after := decode[api.UnreadCountDTO](t, ts.do(http.MethodGet, "/api/notifications/unread-count", tm.bob, nil))
	assert.Equal(t, before.Count-1, after.Count)
}

func TestNotifications_CannotTouchOthers(t *testing.T) {
	ts := newTestServer(t)
	tm := ts.setupTeam()
	require.Equal(t, http.StatusCreated, ts.do(http.MethodPost, "/api/recognitions", tm.alice,
		api.CreateRecognitionRequest{RecipientID: "bob", Message: "Nice", Category: "TEAMWORK"}).Code)
	inbox := decode[[]points.Notification](t, ts.do(http.MethodGet, "/api/notifications", tm.bob, nil))
	require.NotEmpty(t, inbox)

	rec := ts.do(http.MethodDelete, "/api/notifications/"+inbox[0].ID, tm.alice, nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

// =============================================================================
// ADMIN
// =============================================================================

func TestConfiguration_RendersByName(t *testing.T) {
	ts := newTestServer(t)
	tm := ts.setupTeam()

	cfg := decode[api.ConfigurationDTO](t, ts.do(http.MethodGet, "/api/admin/configuration", tm.admin, nil))

	assert.True(t, cfg.Categories["TEAMWORK"].IsActive)
	assert.False(t, cfg.Categories["LEADERSHIP"].IsActive)
	assert.Equal(t, int64(100), cfg.Allocations["MANAGER"].PointsPerMonth)
	assert.Len(t, cfg.Allocations, points.RoleCount)
}

func TestConfiguration_UnknownCategory(t *testing.T) {
	ts := newTestServer(t)
	tm := ts.setupTeam()

	rec := ts.do(http.MethodPut, "/api/admin/configuration/categories/BRAVERY", tm.admin,
		map[string]any{"is_active": true})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// RATE LIMITING & OPERATIONS
// =============================================================================

func TestRateLimit_SecondWriteRefused(t *testing.T) {
	// GIVEN: One write per caller, refilling very slowly
	ts := newTestServer(t, func(o *api.RouterOptions) {
		o.RateLimiter = api.NewRateLimiter(0.001, 1)
	})
	tok := ts.token("bob", testOrg, "employee")

	// WHEN: Posting twice in a row
	first := ts.do(http.MethodPost, "/api/recognitions", tok, nil)
	second := ts.do(http.MethodPost, "/api/recognitions", tok, nil)

	// THEN: The first reaches the handler, the second is throttled
	assert.Equal(t, http.StatusBadRequest, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "1", second.Header().Get("Retry-After"))

	// AND: Reads are not limited
	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/api/me", tok, nil).Code)
}

func TestRateLimit_PerCaller(t *testing.T) {
	ts := newTestServer(t, func(o *api.RouterOptions) {
		o.RateLimiter = api.NewRateLimiter(0.001, 1)
	})

	ts.do(http.MethodPost, "/api/recognitions", ts.token("bob", testOrg, "employee"), nil)
	rec := ts.do(http.MethodPost, "/api/recognitions", ts.token("carol", testOrg, "employee"), nil)

	assert.NotEqual(t, http.StatusTooManyRequests, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)
	tm := ts.setupTeam()
	require.Equal(t, http.StatusCreated, ts.do(http.MethodPost, "/api/recognitions", tm.alice,
		api.CreateRecognitionRequest{RecipientID: "bob", Message: "Nice", Category: "TEAMWORK"}).Code)

	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/healthz", "", nil).Code)

	rec := ts.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `recognition_recognitions_total{category="TEAMWORK"} 1`), body)
	assert.True(t, strings.Contains(body, `recognition_http_requests_total{method="POST",route="/api/recognitions`), body)
	assert.True(t, strings.Contains(body, `recognition_distribution_runs_total`), body)
}
