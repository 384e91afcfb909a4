/*
dto.go - Request and response bodies

PURPOSE:
  Domain types already carry JSON tags and are returned as-is where their
  shape is the contract (Recognition, Reward, Achievement, Notification).
  The types here exist where the wire shape differs from the domain shape:
  request bodies, fixed tables rendered as maps, and small wrappers.

NAMING CONVENTION:
  - *Request: Request body types from clients
  - *DTO: Response types returned to clients

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/recognition-engine/budget"
	"github.com/warp/recognition-engine/points"
	"github.com/warp/recognition-engine/recognition"
	"github.com/warp/recognition-engine/rewards"
)

// ErrorResponse is the body of every non-2xx answer. Error is the stable
// kind (NotFound, BudgetExceeded, ...); Message is for humans.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// =============================================================================
// WALLET
// =============================================================================

type BalanceDTO struct {
	UserID     points.UserID `json:"user_id"`
	Allocation int64         `json:"allocation"`
	Personal   int64         `json:"personal"`
	Total      int64         `json:"total"`
}

func toBalanceDTO(id points.UserID, b points.Balance) BalanceDTO {
	return BalanceDTO{UserID: id, Allocation: b.Allocation, Personal: b.Personal, Total: b.Total()}
}

// =============================================================================
// RECOGNITIONS
// =============================================================================

type CreateRecognitionRequest struct {
	RecipientID points.UserID `json:"recipient_id"`
	Message     string        `json:"message"`
	Category    string        `json:"category"`
	// Points is optional; omitted means the category default.
	Points *int64 `json:"points,omitempty"`
}

type PinRecognitionRequest struct {
	Days int `json:"days"`
}

type KudosDTO struct {
	Recognition recognition.Recognition `json:"recognition"`
	HasKudos    bool                    `json:"has_kudos"`
	KudosCount  int                     `json:"kudos_count"`
}

// =============================================================================
// REWARDS & ACHIEVEMENTS
// =============================================================================

type CreateRewardRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	PointsCost  int64  `json:"points_cost"`
	Quantity    int64  `json:"quantity"`
	IsActive    bool   `json:"is_active"`
}

type CustomizeRewardRequest struct {
	PointsCost *int64 `json:"custom_points_cost,omitempty"`
	Quantity   *int64 `json:"custom_quantity,omitempty"`
}

type RewardStatusRequest struct {
	IsActive bool `json:"is_active"`
}

type CreateSuggestionRequest struct {
	Name                string `json:"name"`
	Description         string `json:"description"`
	Category            string `json:"category"`
	SuggestedPointsCost int64  `json:"suggested_points_cost"`
}

type ReviewSuggestionRequest struct {
	// Status is APPROVED or REJECTED.
	Status        string `json:"status"`
	AdminFeedback string `json:"admin_feedback,omitempty"`
}

type CreateAchievementRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Type        string `json:"type"`
	Threshold   int64  `json:"threshold"`
	Points      int64  `json:"points"`
	// Global makes the achievement available to every organization.
	Global bool `json:"global"`
}

type AwardAchievementRequest struct {
	UserID points.UserID `json:"user_id"`
}

type AwardAchievementDTO struct {
	Awarded bool `json:"awarded"`
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

type UnreadCountDTO struct {
	Count int `json:"count"`
}

type DeleteNotificationsRequest struct {
	IDs []string `json:"ids"`
}

// =============================================================================
// BUDGET CONFIGURATION
// =============================================================================

// ConfigurationDTO renders the fixed category and role tables as maps keyed
// by enum name.
type ConfigurationDTO struct {
	OrganizationID points.OrgID                      `json:"organization_id"`
	Categories     map[string]budget.CategorySetting `json:"categories"`
	Allocations    map[string]budget.RoleAllocation  `json:"allocations"`
	YearlyBudget   decimal.Decimal                   `json:"yearly_budget"`
	UpdatedAt      *time.Time                        `json:"updated_at,omitempty"`
}

func toConfigurationDTO(cfg budget.Configuration) ConfigurationDTO {
	dto := ConfigurationDTO{
		OrganizationID: cfg.OrganizationID,
		Categories:     make(map[string]budget.CategorySetting, budget.CategoryCount),
		Allocations:    make(map[string]budget.RoleAllocation, points.RoleCount),
		YearlyBudget:   cfg.YearlyBudget,
	}
	for _, c := range budget.Categories() {
		dto.Categories[c.String()] = cfg.Category(c)
	}
	for _, r := range points.Roles() {
		dto.Allocations[r.String()] = cfg.Allocation(r)
	}
	if !cfg.UpdatedAt.IsZero() {
		t := cfg.UpdatedAt
		dto.UpdatedAt = &t
	}
	return dto
}

type YearlyBudgetRequest struct {
	YearlyBudget decimal.Decimal `json:"yearly_budget"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// DemoUserDTO is a seeded user plus a ready-to-use access token.
type DemoUserDTO struct {
	ID    points.UserID `json:"id"`
	Name  string        `json:"name"`
	Role  points.Role   `json:"role"`
	Token string        `json:"token,omitempty"`
}

type LoadScenarioDTO struct {
	Scenario     string              `json:"scenario"`
	Organization points.Organization `json:"organization"`
	Users        []DemoUserDTO       `json:"users"`
}

// CategoryDTO is an active category with the points it resolves to.
type CategoryDTO struct {
	Category      budget.Category `json:"category"`
	DefaultPoints int64           `json:"default_points"`
	MaxPoints     int64           `json:"max_points"`
}

type RedemptionDTO struct {
	Reward  rewards.Reward `json:"reward"`
	Balance BalanceDTO     `json:"balance"`
}
