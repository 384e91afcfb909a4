/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with a realistic
	organization: budget configuration, catalog, achievements and users,
	plus a little activity so the feed and leaderboard are not empty.

AVAILABLE SCENARIOS:

	acme-demo:       Balanced configuration, a few recognitions already given
	budget-pressure: Tiny allocations; default-point recognitions are refused
	reward-rush:     One unit of a popular reward and several users who can afford it

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Apply the scenario's seed document via factory.Applier
 3. Distribute the month's allocation
 4. Run the scenario's warmup (recognitions, bonuses)
 5. Mint a token per seeded user so the frontend can switch identities

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "budget-pressure"}

ADDING NEW SCENARIOS:
 1. Add a seed document constant
 2. Add an entry to 'scenarios' with an optional warmup

NOTE:

	Scenarios reset the store. The router only mounts them when
	SCENARIOS_ENABLED is set.

SEE ALSO:
  - factory/seed.go: Seed document schema
  - server.go: Mounting
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/warp/recognition-engine/factory"
	"github.com/warp/recognition-engine/points"
	"github.com/warp/recognition-engine/recognition"
)

const demoTokenTTL = 24 * time.Hour

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type scenario struct {
	ScenarioDTO
	seed string
	// warmup runs after distribution with the seeded users keyed by id.
	warmup func(ctx context.Context, svc *Services, users map[points.UserID]points.User) error
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "acme-demo",
			Name:        "Acme Demo",
			Description: "Balanced budget, active catalog, a few recognitions already in the feed",
		},
		seed:   acmeDemoSeed,
		warmup: warmupAcme,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "budget-pressure",
			Name:        "Budget Pressure",
			Description: "Employees get 10 points a month; Excellence defaults to 15 and is refused",
		},
		seed: budgetPressureSeed,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "reward-rush",
			Name:        "Reward Rush",
			Description: "One concert ticket left and three users with enough personal points",
		},
		seed:   rewardRushSeed,
		warmup: warmupRewardRush,
	},
}

func findScenario(id string) (scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return scenario{}, false
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	out := make([]ScenarioDTO, 0, len(scenarios))
	for _, s := range scenarios {
		out = append(out, s.ScenarioDTO)
	}
	writeJSON(w, http.StatusOK, out)
}

// GetCurrentScenario returns the currently loaded scenario, or null.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	s, ok := findScenario(current)
	if !ok {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, s.ScenarioDTO)
}

// LoadScenario wipes the store and loads the requested scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s, ok := findScenario(req.ScenarioID)
	if !ok {
		writeError(w, points.NotFound("scenario", req.ScenarioID))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	out, err := h.loadScenario(r.Context(), s)
	if err != nil {
		h.currentScenario = ""
		writeError(w, fmt.Errorf("load scenario %s: %w", s.ID, err))
		return
	}
	h.currentScenario = s.ID

	h.log.WithFields(logrus.Fields{
		"scenario": s.ID,
		"users":    len(out.Users),
	}).Info("scenario loaded")
	writeJSON(w, http.StatusOK, out)
}

// loadScenario must be called with h.mu held.
func (h *Handler) loadScenario(ctx context.Context, s scenario) (LoadScenarioDTO, error) {
	seed, err := factory.ParseSeed([]byte(s.seed))
	if err != nil {
		return LoadScenarioDTO{}, err
	}
	if err := h.svc.Store.Reset(ctx); err != nil {
		return LoadScenarioDTO{}, fmt.Errorf("reset: %w", err)
	}
	res, err := h.svc.Seeds.Apply(ctx, seed)
	if err != nil {
		return LoadScenarioDTO{}, err
	}
	org := res.Organizations[0]

	if _, err := h.svc.Budget.DistributeMonthlyPoints(ctx, org.ID); err != nil {
		return LoadScenarioDTO{}, fmt.Errorf("distribute: %w", err)
	}
	users := make(map[points.UserID]points.User, len(res.Users))
	for _, u := range res.Users {
		users[u.ID] = u
	}
	if s.warmup != nil {
		if err := s.warmup(ctx, h.svc, users); err != nil {
			return LoadScenarioDTO{}, fmt.Errorf("warmup: %w", err)
		}
	}

	out := LoadScenarioDTO{Scenario: s.ID, Organization: org, Users: make([]DemoUserDTO, 0, len(res.Users))}
	userSeeds := seed.Organizations[0].Users
	for i, u := range res.Users {
		demo := DemoUserDTO{ID: u.ID, Name: u.Name(), Role: u.Role}
		// Without a signing secret the frontend can still list the users.
		if token, err := h.verifier.Sign(userSeeds[i].Claims(org.Name), demoTokenTTL); err == nil {
			demo.Token = token
		}
		out.Users = append(out.Users, demo)
	}
	return out, nil
}

// =============================================================================
// WARMUPS
// =============================================================================

func warmupAcme(ctx context.Context, svc *Services, users map[points.UserID]points.User) error {
	alice := users["demo-alice"]
	gifts := []recognition.CreateInput{
		{SenderID: alice.ID, RecipientID: "demo-bob", Category: "TEAMWORK", Message: "Thanks for covering the release on Friday"},
		{SenderID: alice.ID, RecipientID: "demo-carol", Category: "INNOVATION", Message: "The new cache layer cut our p99 in half"},
		{SenderID: "demo-bob", RecipientID: "demo-carol", Category: "EXCELLENCE", Message: "Flawless incident write-up"},
	}
	var first recognition.Recognition
	for i, in := range gifts {
		in.OrganizationID = alice.OrganizationID
		rec, err := svc.Recognitions.CreateRecognition(ctx, in)
		if err != nil {
			return err
		}
		if i == 0 {
			first = rec
		}
	}
	_, err := svc.Recognitions.ToggleKudos(ctx, first.ID, "demo-carol")
	return err
}

func warmupRewardRush(ctx context.Context, svc *Services, users map[points.UserID]points.User) error {
	for id, u := range users {
		if u.Role.AtLeast(points.RoleAdmin) {
			continue
		}
		if _, err := svc.Ledger.AwardPoints(ctx, id, 300, points.AwardPersonal, points.WithReason("Reward rush starting balance")); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// SEED DOCUMENTS
// =============================================================================

const acmeDemoSeed = `
global_rewards:
  - name: Coffee Voucher
    description: One drink at the corner cafe
    category: GIFT_CARD
    points_cost: 50
    quantity: 100
    active: true
  - name: Company Hoodie
    category: MERCHANDISE
    points_cost: 200
    quantity: 20
    active: true
organizations:
  - name: Acme Corp
    yearly_budget: 50000
    categories:
      TEAMWORK: {is_active: true, default_points: 10, max_points: 30}
      INNOVATION: {is_active: true, default_points: 15, max_points: 50}
      LEADERSHIP: {is_active: true, default_points: 20, max_points: 50}
      EXCELLENCE: {is_active: true, default_points: 15, max_points: 50}
      CORE_VALUES: {is_active: false}
    allocations:
      EMPLOYEE: {points_per_month: 50, max_points_per_recognition: 20}
      SUPERVISOR: {points_per_month: 75, max_points_per_recognition: 30}
      MANAGER: {points_per_month: 100, max_points_per_recognition: 50}
      ADMIN: {points_per_month: 100, max_points_per_recognition: 50}
    catalog:
      - reward: Coffee Voucher
        points_cost: 40
        active: true
      - reward: Company Hoodie
        active: true
    rewards:
      - name: Extra Day Off
        category: LOCAL_PERK
        points_cost: 500
        quantity: 5
        active: true
    achievements:
      - name: First Thanks
        description: Received a first recognition
        type: RECOGNITION_COUNT
        threshold: 1
        points: 5
      - name: Team Player
        type: KUDOS_RECEIVED
        threshold: 10
        points: 25
    users:
      - {id: demo-alice, email: alice@acme.test, first_name: Alice, last_name: Martin, department: Engineering, role: MANAGER}
      - {id: demo-bob, email: bob@acme.test, first_name: Bob, last_name: Chen, department: Engineering, role: EMPLOYEE}
      - {id: demo-carol, email: carol@acme.test, first_name: Carol, last_name: Diaz, department: Product, role: EMPLOYEE}
      - {id: demo-dana, email: dana@acme.test, first_name: Dana, last_name: Okafor, department: People, role: ADMIN}
`

const budgetPressureSeed = `
organizations:
  - name: Lean Startup
    yearly_budget: 2000
    categories:
      TEAMWORK: {is_active: true, default_points: 5, max_points: 10}
      EXCELLENCE: {is_active: true, default_points: 15, max_points: 20}
    allocations:
      EMPLOYEE: {points_per_month: 10, max_points_per_recognition: 10}
      MANAGER: {points_per_month: 30, max_points_per_recognition: 20}
      ADMIN: {points_per_month: 30, max_points_per_recognition: 20}
    users:
      - {id: demo-erin, first_name: Erin, department: Sales, role: EMPLOYEE}
      - {id: demo-finn, first_name: Finn, department: Sales, role: EMPLOYEE}
      - {id: demo-gwen, first_name: Gwen, department: Sales, role: MANAGER}
      - {id: demo-hugo, first_name: Hugo, role: ADMIN}
`

const rewardRushSeed = `
organizations:
  - name: Rush Labs
    categories:
      TEAMWORK: {is_active: true}
    allocations:
      EMPLOYEE: {points_per_month: 20, max_points_per_recognition: 10}
      ADMIN: {points_per_month: 20, max_points_per_recognition: 10}
    rewards:
      - name: Concert Tickets
        category: LOCAL_PERK
        points_cost: 250
        quantity: 1
        active: true
      - name: Sticker Pack
        category: MERCHANDISE
        points_cost: 20
        quantity: 50
        active: true
    users:
      - {id: demo-ivy, first_name: Ivy, role: EMPLOYEE}
      - {id: demo-jon, first_name: Jon, role: EMPLOYEE}
      - {id: demo-kai, first_name: Kai, role: EMPLOYEE}
      - {id: demo-lou, first_name: Lou, role: ADMIN}
`
