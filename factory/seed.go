/*
Package factory turns YAML or JSON organization seeds into configured
organizations.

PURPOSE:
  Bootstraps an environment without clicking through the admin API:
  organizations, their budget configuration, reward catalog and
  achievement definitions all come from one document. Used by the admin
  CLI (pointsctl seed), SEED_FILE at server start, and demo scenarios.

SCHEMA (YAML; JSON uses the same keys):
  global_rewards:
    - name: Coffee Voucher
      category: GIFT_CARD
      points_cost: 50
      quantity: 100
      active: true
  organizations:
    - name: Acme Corp
      yearly_budget: 50000
      categories:
        EXCELLENCE: {is_active: true, default_points: 15, max_points: 50}
      allocations:
        MANAGER: {points_per_month: 100, max_points_per_recognition: 25}
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
      users:
        - id: kc-alice
          email: alice@acme.test
          first_name: Alice
          department: Engineering
          role: MANAGER

APPLY ORDER:
  Global rewards and achievements first, then each organization in
  document order. Map keys (categories, allocations) apply in sorted order.
  Users are provisioned last, through the same path as a first login, so
  they start with empty wallets.
  Apply is additive: running it twice creates catalog entries twice.

SEE ALSO:
  - budget/service.go: Configuration updates
  - rewards/catalog.go: Catalog creation and linking
  - identity/provisioner.go: EnsureOrganization
*/
package factory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/warp/recognition-engine/achievements"
	"github.com/warp/recognition-engine/budget"
	"github.com/warp/recognition-engine/identity"
	"github.com/warp/recognition-engine/points"
	"github.com/warp/recognition-engine/rewards"
)

// =============================================================================
// SEED SCHEMA TYPES
// =============================================================================

type Seed struct {
	GlobalRewards      []RewardSeed       `json:"global_rewards,omitempty" yaml:"global_rewards"`
	GlobalAchievements []AchievementSeed  `json:"global_achievements,omitempty" yaml:"global_achievements"`
	Organizations      []OrganizationSeed `json:"organizations" yaml:"organizations"`
}

type OrganizationSeed struct {
	Name         string                            `json:"name" yaml:"name"`
	YearlyBudget *decimal.Decimal                  `json:"yearly_budget,omitempty" yaml:"yearly_budget"`
	Categories   map[string]budget.CategorySetting `json:"categories,omitempty" yaml:"categories"`
	Allocations  map[string]budget.RoleAllocation  `json:"allocations,omitempty" yaml:"allocations"`
	Catalog      []LinkSeed                        `json:"catalog,omitempty" yaml:"catalog"`
	Rewards      []RewardSeed                      `json:"rewards,omitempty" yaml:"rewards"`
	Achievements []AchievementSeed                 `json:"achievements,omitempty" yaml:"achievements"`
	Users        []UserSeed                        `json:"users,omitempty" yaml:"users"`
}

type RewardSeed struct {
	Name        string           `json:"name" yaml:"name"`
	Description string           `json:"description,omitempty" yaml:"description"`
	Category    rewards.Category `json:"category" yaml:"category"`
	PointsCost  int64            `json:"points_cost" yaml:"points_cost"`
	Quantity    int64            `json:"quantity" yaml:"quantity"`
	Active      bool             `json:"active,omitempty" yaml:"active"`
}

// LinkSeed offers a global reward, by name, inside an organization.
type LinkSeed struct {
	Reward     string `json:"reward" yaml:"reward"`
	PointsCost *int64 `json:"points_cost,omitempty" yaml:"points_cost"`
	Quantity   *int64 `json:"quantity,omitempty" yaml:"quantity"`
	Active     bool   `json:"active,omitempty" yaml:"active"`
}

type AchievementSeed struct {
	Name        string            `json:"name" yaml:"name"`
	Description string            `json:"description,omitempty" yaml:"description"`
	Icon        string            `json:"icon,omitempty" yaml:"icon"`
	Type        achievements.Type `json:"type" yaml:"type"`
	Threshold   int64             `json:"threshold" yaml:"threshold"`
	Points      int64             `json:"points" yaml:"points"`
}

type UserSeed struct {
	ID         string `json:"id" yaml:"id"`
	Email      string `json:"email,omitempty" yaml:"email"`
	FirstName  string `json:"first_name,omitempty" yaml:"first_name"`
	LastName   string `json:"last_name,omitempty" yaml:"last_name"`
	Department string `json:"department,omitempty" yaml:"department"`
	Role       string `json:"role,omitempty" yaml:"role"`
}

// =============================================================================
// PARSING
// =============================================================================

// ParseSeed decodes data as JSON when it starts with '{', YAML otherwise,
// and validates the result.
func ParseSeed(data []byte) (Seed, error) {
	var (
		seed Seed
		err  error
	)
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		err = json.Unmarshal(trimmed, &seed)
	} else {
		err = yaml.Unmarshal(data, &seed)
	}
	if err != nil {
		return Seed{}, points.Invalid("seed", "failed to parse: %v", err)
	}
	if err := seed.Validate(); err != nil {
		return Seed{}, err
	}
	return seed, nil
}

// Validate checks names and enum keys. Numeric ranges are left to the
// services, which reject them with the same errors the API returns.
func (s Seed) Validate() error {
	globals := make(map[string]bool, len(s.GlobalRewards))
	for _, r := range s.GlobalRewards {
		if r.Name == "" {
			return points.Invalid("global_rewards", "reward without a name")
		}
		globals[r.Name] = true
	}
	for i, org := range s.Organizations {
		if org.Name == "" {
			return points.Invalid("organizations", "entry %d has no name", i)
		}
		if strings.Contains(org.Name, "/") {
			return points.Invalid("organizations", "name %q must not contain '/'", org.Name)
		}
		for key := range org.Categories {
			if _, err := budget.ParseCategory(key); err != nil {
				return fmt.Errorf("organization %q: %w", org.Name, err)
			}
		}
		for key := range org.Allocations {
			if _, err := points.ParseRole(key); err != nil {
				return fmt.Errorf("organization %q: %w", org.Name, err)
			}
		}
		for _, l := range org.Catalog {
			if !globals[l.Reward] {
				return points.Invalid("catalog", "organization %q links unknown global reward %q", org.Name, l.Reward)
			}
		}
		for _, u := range org.Users {
			if u.ID == "" {
				return points.Invalid("users", "organization %q has a user without an id", org.Name)
			}
			if u.Role == "" {
				continue
			}
			if _, err := points.ParseRole(u.Role); err != nil {
				return fmt.Errorf("user %q: %w", u.ID, err)
			}
		}
	}
	return nil
}

// =============================================================================
// APPLIER
// =============================================================================

// Applier writes a Seed through the domain services.
type Applier struct {
	orgs         *identity.Provisioner
	budget       *budget.Service
	rewards      *rewards.Service
	achievements *achievements.Awarder
	log          logrus.FieldLogger
}

func NewApplier(orgs *identity.Provisioner, budgetSvc *budget.Service, rewardSvc *rewards.Service, awarder *achievements.Awarder, log logrus.FieldLogger) *Applier {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Applier{
		orgs:         orgs,
		budget:       budgetSvc,
		rewards:      rewardSvc,
		achievements: awarder,
		log:          log.WithField("component", "seed"),
	}
}

// Result summarizes what Apply created.
type Result struct {
	Organizations []points.Organization `json:"organizations"`
	Rewards       int                   `json:"rewards"`
	Achievements  int                   `json:"achievements"`
	Users         []points.User         `json:"users"`
}

func (a *Applier) Apply(ctx context.Context, seed Seed) (Result, error) {
	if err := seed.Validate(); err != nil {
		return Result{}, err
	}

	var res Result
	globals := make(map[string]rewards.ID, len(seed.GlobalRewards))
	for _, rs := range seed.GlobalRewards {
		r, err := a.rewards.CreateGlobalReward(ctx, rs.input())
		if err != nil {
			return res, fmt.Errorf("global reward %q: %w", rs.Name, err)
		}
		globals[rs.Name] = r.ID
		res.Rewards++
	}
	for _, as := range seed.GlobalAchievements {
		if _, err := a.achievements.CreateAchievement(ctx, as.input("")); err != nil {
			return res, fmt.Errorf("global achievement %q: %w", as.Name, err)
		}
		res.Achievements++
	}

	for _, orgSeed := range seed.Organizations {
		org, err := a.applyOrganization(ctx, orgSeed, globals, &res)
		if err != nil {
			return res, fmt.Errorf("organization %q: %w", orgSeed.Name, err)
		}
		res.Organizations = append(res.Organizations, org)
		a.log.WithFields(logrus.Fields{
			"organization_id": org.ID,
			"slug":            org.Slug,
		}).Info("organization seeded")
	}
	return res, nil
}

func (a *Applier) applyOrganization(ctx context.Context, def OrganizationSeed, globals map[string]rewards.ID, res *Result) (points.Organization, error) {
	org, err := a.orgs.EnsureOrganization(ctx, def.Name)
	if err != nil {
		return points.Organization{}, err
	}

	if def.YearlyBudget != nil {
		if err := a.budget.SetYearlyBudget(ctx, org.ID, *def.YearlyBudget); err != nil {
			return org, err
		}
	}
	for _, key := range slices.Sorted(maps.Keys(def.Categories)) {
		c, _ := budget.ParseCategory(key)
		if err := a.budget.UpdateCategorySettings(ctx, org.ID, c, def.Categories[key]); err != nil {
			return org, err
		}
	}
	for _, key := range slices.Sorted(maps.Keys(def.Allocations)) {
		r, _ := points.ParseRole(key)
		if err := a.budget.UpdateMonthlyAllocation(ctx, org.ID, r, def.Allocations[key]); err != nil {
			return org, err
		}
	}

	for _, l := range def.Catalog {
		id := globals[l.Reward]
		if _, err := a.rewards.AddRewardToOrganization(ctx, org.ID, id, rewards.Customization{
			PointsCost: l.PointsCost,
			Quantity:   l.Quantity,
		}); err != nil {
			return org, fmt.Errorf("link %q: %w", l.Reward, err)
		}
		if l.Active {
			if _, err := a.rewards.UpdateRewardStatus(ctx, org.ID, id, true); err != nil {
				return org, fmt.Errorf("activate %q: %w", l.Reward, err)
			}
		}
	}
	for _, rs := range def.Rewards {
		if _, err := a.rewards.CreateOrganizationReward(ctx, org.ID, rs.input()); err != nil {
			return org, fmt.Errorf("reward %q: %w", rs.Name, err)
		}
		res.Rewards++
	}
	for _, as := range def.Achievements {
		if _, err := a.achievements.CreateAchievement(ctx, as.input(org.ID)); err != nil {
			return org, fmt.Errorf("achievement %q: %w", as.Name, err)
		}
		res.Achievements++
	}
	for _, us := range def.Users {
		u, err := a.orgs.Sync(ctx, us.Claims(def.Name))
		if err != nil {
			return org, fmt.Errorf("user %q: %w", us.ID, err)
		}
		res.Users = append(res.Users, u)
	}
	return org, nil
}

func (rs RewardSeed) input() rewards.CreateInput {
	return rewards.CreateInput{
		Name:        rs.Name,
		Description: rs.Description,
		Category:    rs.Category,
		PointsCost:  rs.PointsCost,
		Quantity:    rs.Quantity,
		Active:      rs.Active,
	}
}

// Claims builds the identity a first login by this user would present.
func (us UserSeed) Claims(org string) identity.Claims {
	groups := []string{"/" + org}
	if us.Department != "" {
		groups = append(groups, "/"+org+"/"+us.Department)
	}
	var roles []string
	if us.Role != "" {
		roles = []string{strings.ToLower(us.Role)}
	}
	return identity.Claims{
		Subject:    us.ID,
		Email:      us.Email,
		GivenName:  us.FirstName,
		FamilyName: us.LastName,
		Groups:     groups,
		RealmRoles: roles,
	}
}

func (as AchievementSeed) input(org points.OrgID) achievements.CreateInput {
	return achievements.CreateInput{
		Name:           as.Name,
		Description:    as.Description,
		Icon:           as.Icon,
		Type:           as.Type,
		Threshold:      as.Threshold,
		Points:         as.Points,
		OrganizationID: org,
	}
}
