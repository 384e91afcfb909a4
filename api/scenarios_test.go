package api_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/recognition-engine/api"
	"github.com/warp/recognition-engine/points"
	"github.com/warp/recognition-engine/recognition"
)

func withScenarios(o *api.RouterOptions) { o.Scenarios = true }

func TestScenarios_NotMountedByDefault(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/scenarios", "", nil)

	assert.NotEqual(t, http.StatusOK, rec.Code)
}

func TestScenarios_List(t *testing.T) {
	ts := newTestServer(t, withScenarios)

	list := decode[[]api.ScenarioDTO](t, ts.do(http.MethodGet, "/api/scenarios", "", nil))

	ids := make([]string, 0, len(list))
	for _, s := range list {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"acme-demo", "budget-pressure", "reward-rush"}, ids)
}

func TestScenarios_LoadAcmeDemo(t *testing.T) {
	// GIVEN: Leftover data from an earlier session
	ts := newTestServer(t, withScenarios)
	ts.setupTeam()

	// WHEN: Loading the demo
	rec := ts.do(http.MethodPost, "/api/scenarios/load", "", api.LoadScenarioRequest{ScenarioID: "acme-demo"})

	// THEN: The store holds only the scenario's organization and users
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode[api.LoadScenarioDTO](t, rec)
	assert.Equal(t, "acme-demo", out.Scenario)
	assert.Equal(t, "acme-corp", out.Organization.Slug)
	require.Len(t, out.Users, 4)

	var bobToken string
	for _, u := range out.Users {
		require.NotEmpty(t, u.Token, u.ID)
		if u.ID == "demo-bob" {
			bobToken = u.Token
		}
	}
	_, err := ts.svc.Store.GetUser(context.Background(), "dana")
	assert.True(t, points.IsNotFound(err))

	// AND: The returned tokens work and the feed is warmed up
	feed := decode[[]recognition.Recognition](t, ts.do(http.MethodGet, "/api/recognitions", bobToken, nil))
	assert.Len(t, feed, 3)
	bal := decode[api.BalanceDTO](t, ts.do(http.MethodGet, "/api/me/balance", bobToken, nil))
	// 10 from alice plus 5 for the "First Thanks" achievement.
	assert.Equal(t, int64(15), bal.Personal)
	assert.Equal(t, int64(35), bal.Allocation)

	current := decode[api.ScenarioDTO](t, ts.do(http.MethodGet, "/api/scenarios/current", "", nil))
	assert.Equal(t, "acme-demo", current.ID)
}

func TestScenarios_BudgetPressureRefusesDefaults(t *testing.T) {
	ts := newTestServer(t, withScenarios)
	out := decode[api.LoadScenarioDTO](t, ts.do(http.MethodPost, "/api/scenarios/load", "",
		api.LoadScenarioRequest{ScenarioID: "budget-pressure"}))
	var erin string
	for _, u := range out.Users {
		if u.ID == "demo-erin" {
			erin = u.Token
		}
	}

	rec := ts.do(http.MethodPost, "/api/recognitions", erin, api.CreateRecognitionRequest{
		RecipientID: "demo-finn",
		Message:     "Closed the quarter early",
		Category:    "EXCELLENCE",
	})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestScenarios_Unknown(t *testing.T) {
	ts := newTestServer(t, withScenarios)

	rec := ts.do(http.MethodPost, "/api/scenarios/load", "", api.LoadScenarioRequest{ScenarioID: "nope"})

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "null\n", ts.do(http.MethodGet, "/api/scenarios/current", "", nil).Body.String())
}
