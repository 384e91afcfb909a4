/*
Package rewards provides the reward catalog and the redemption engine.

PURPOSE:
  Users exchange personal points for catalog items. Rewards are either
  owned by one organization or global; an organization offers a global
  reward by linking it, optionally overriding its cost and quantity.

REDEMPTION INVARIANTS:
  1. A redemption succeeds only while the reward is active and its
     quantity is above zero
  2. Quantity drops by exactly 1 and redemptionCount rises by exactly 1
     per redemption, in one conditional store write
  3. Each redemption is paired 1:1 with a personal-pool debit and an
     audit record, all committed together or not at all

EXAMPLE FLOW:
  1. Admin creates "Coffee voucher", 50 points, quantity 10
  2. Admin activates it
  3. Employee with 120 personal points redeems it
  4. Employee: 70 personal points; reward: quantity 9, redemptionCount 1

SUGGESTIONS:
  Employees propose catalog items and vote on each other's proposals. An
  admin approves or rejects a pending suggestion exactly once; approval
  publishes an organization-owned reward built from it.

SEE ALSO:
  - redemption.go: RedeemReward
  - catalog.go: Catalog management
  - suggestions.go: Suggestion box
*/
package rewards

import (
	"context"
	"time"

	"github.com/warp/recognition-engine/points"
)

type ID string
type RedemptionID string

// Category groups catalog items.
type Category string

const (
	CategoryLocalPerk   Category = "LOCAL_PERK"
	CategoryGiftCard    Category = "GIFT_CARD"
	CategoryMerchandise Category = "MERCHANDISE"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryLocalPerk, CategoryGiftCard, CategoryMerchandise:
		return true
	}
	return false
}

type Reward struct {
	ID          ID       `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Category    Category `json:"category"`
	PointsCost  int64    `json:"points_cost"`
	Quantity    int64    `json:"quantity"`
	IsGlobal    bool     `json:"is_global"`
	// OrganizationID is empty for global rewards.
	OrganizationID  points.OrgID  `json:"organization_id,omitempty"`
	IsActive        bool          `json:"is_active"`
	RedemptionCount int64         `json:"redemption_count"`
	CreatedBy       points.UserID `json:"created_by,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Available reports whether the reward can be redeemed right now.
func (r Reward) Available() bool { return r.IsActive && r.Quantity > 0 }

// OrganizationReward is an organization's link to a global reward.
type OrganizationReward struct {
	OrganizationID   points.OrgID `json:"organization_id"`
	RewardID         ID           `json:"reward_id"`
	CustomPointsCost *int64       `json:"custom_points_cost,omitempty"`
	CustomQuantity   *int64       `json:"custom_quantity,omitempty"`
	IsActive         bool         `json:"is_active"`
	CreatedAt        time.Time    `json:"created_at"`
}

// Apply returns r as the linking organization sees it.
func (l OrganizationReward) Apply(r Reward) Reward {
	if l.CustomPointsCost != nil {
		r.PointsCost = *l.CustomPointsCost
	}
	if l.CustomQuantity != nil {
		r.Quantity = min(*l.CustomQuantity, r.Quantity)
	}
	r.IsActive = r.IsActive && l.IsActive
	return r
}

// Available reports whether the link itself still allows a redemption. A
// nil CustomQuantity never runs out on the link side.
func (l OrganizationReward) Available() bool {
	return l.IsActive && (l.CustomQuantity == nil || *l.CustomQuantity > 0)
}

// Redemption is the append-only audit record of a completed redemption.
type Redemption struct {
	ID             RedemptionID  `json:"id"`
	OrganizationID points.OrgID  `json:"organization_id"`
	RewardID       ID            `json:"reward_id"`
	UserID         points.UserID `json:"user_id"`
	PointsCost     int64         `json:"points_cost"`
	CreatedAt      time.Time     `json:"created_at"`
}

type RedemptionFilter struct {
	OrganizationID points.OrgID
	UserID         points.UserID
	// From and To are both inclusive.
	From *time.Time
	To   *time.Time
}

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	CreateReward(ctx context.Context, r Reward) error
	GetReward(ctx context.Context, id ID) (Reward, error)
	ListGlobalRewards(ctx context.Context) ([]Reward, error)

	// ListOrganizationRewards returns rewards owned by org.
	ListOrganizationRewards(ctx context.Context, org points.OrgID) ([]Reward, error)
	SetRewardActive(ctx context.Context, id ID, active bool) (Reward, error)

	UpsertOrganizationReward(ctx context.Context, link OrganizationReward) error
	GetOrganizationReward(ctx context.Context, org points.OrgID, id ID) (OrganizationReward, error)
	ListOrganizationRewardLinks(ctx context.Context, org points.OrgID) ([]OrganizationReward, error)
	SetOrganizationRewardActive(ctx context.Context, org points.OrgID, id ID, active bool) (OrganizationReward, error)

	// ClaimRewardUnit decrements quantity and increments redemptionCount in
	// one conditional write that only matches an active reward with
	// quantity > 0. Otherwise it changes nothing and returns
	// ErrRewardUnavailable.
	ClaimRewardUnit(ctx context.Context, id ID) (Reward, error)

	// ClaimOrganizationRewardUnit is the link-side counterpart of
	// ClaimRewardUnit. It matches only an active link whose custom quantity
	// is unset or above zero, and decrements the custom quantity when set.
	// A missing link is NotFound; a link that fails the guard is left
	// untouched and ErrRewardUnavailable is returned.
	ClaimOrganizationRewardUnit(ctx context.Context, org points.OrgID, id ID) (OrganizationReward, error)

	AppendRedemption(ctx context.Context, r Redemption) error
	ListRedemptions(ctx context.Context, f RedemptionFilter) ([]Redemption, error)

	CreateSuggestion(ctx context.Context, sg Suggestion) error
	GetSuggestion(ctx context.Context, id SuggestionID) (Suggestion, error)
	// ListSuggestions returns org's suggestions in insertion order.
	ListSuggestions(ctx context.Context, org points.OrgID) ([]Suggestion, error)

	// AddSuggestionVote and RemoveSuggestionVote are set operations, like
	// recognition kudos.
	AddSuggestionVote(ctx context.Context, id SuggestionID, user points.UserID) (Suggestion, error)
	RemoveSuggestionVote(ctx context.Context, id SuggestionID, user points.UserID) (Suggestion, error)

	// ReviewSuggestion records the decision in one conditional write that
	// only matches a PENDING suggestion. A suggestion already reviewed is
	// left untouched and ErrInvalidInput is returned.
	ReviewSuggestion(ctx context.Context, id SuggestionID, r SuggestionReview) (Suggestion, error)
}
