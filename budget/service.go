package budget

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/warp/recognition-engine/points"
)

// =============================================================================
// SERVICE
// =============================================================================

// Users is the slice of the user store the service reads.
type Users interface {
	GetUser(ctx context.Context, id points.UserID) (points.User, error)
	ListUsersByOrganization(ctx context.Context, org points.OrgID) ([]points.User, error)
	CountUsersByOrganization(ctx context.Context, org points.OrgID) (int64, error)
}

type Service struct {
	store  Store
	users  Users
	ledger *points.Ledger
	log    logrus.FieldLogger
}

func NewService(store Store, users Users, ledger *points.Ledger, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{store: store, users: users, ledger: ledger, log: log.WithField("component", "budget")}
}

func (s *Service) GetConfiguration(ctx context.Context, org points.OrgID) (Configuration, error) {
	return s.store.GetConfiguration(ctx, org)
}

// =============================================================================
// ADMIN WRITERS
// =============================================================================

// UpdateCategorySettings replaces the setting for c. A DefaultPoints of zero
// is stored as given and resolves to the builtin default on read.
func (s *Service) UpdateCategorySettings(ctx context.Context, org points.OrgID, c Category, setting CategorySetting) error {
	if !c.Valid() {
		return points.Invalid("category", "unknown category %d", c)
	}
	if setting.DefaultPoints < 0 || setting.MaxPoints < 0 {
		return points.Invalid("category_settings", "points cannot be negative")
	}
	if setting.MaxPoints > 0 && setting.DefaultPoints > setting.MaxPoints {
		return points.Invalid("category_settings", "default points %d exceed max points %d", setting.DefaultPoints, setting.MaxPoints)
	}
	return s.store.UpdateCategorySetting(ctx, org, c, setting)
}

func (s *Service) UpdateMonthlyAllocation(ctx context.Context, org points.OrgID, r points.Role, a RoleAllocation) error {
	if !r.Valid() {
		return points.Invalid("role", "unknown role %d", r)
	}
	if a.PointsPerMonth < 0 || a.MaxPointsPerRecognition < 0 {
		return points.Invalid("allocation", "points allocations cannot be negative")
	}
	return s.store.UpdateRoleAllocation(ctx, org, r, a)
}

// SetYearlyBudget rejects negative amounts.
func (s *Service) SetYearlyBudget(ctx context.Context, org points.OrgID, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return points.Invalid("yearly_budget", "budget cannot be negative")
	}
	return s.store.UpdateYearlyBudget(ctx, org, amount)
}

// =============================================================================
// READS & VALIDATION
// =============================================================================

// GetActiveCategories lists active categories in enum order.
func (s *Service) GetActiveCategories(ctx context.Context, org points.OrgID) ([]Category, error) {
	cfg, err := s.store.GetConfiguration(ctx, org)
	if err != nil {
		return nil, err
	}
	var out []Category
	for _, c := range Categories() {
		if cfg.CategorySettings[c].IsActive {
			out = append(out, c)
		}
	}
	return out, nil
}

// ValidateRecognitionPoints reports whether user may give pts right now:
// their allocation covers it and it does not exceed their role's
// per-recognition maximum.
func (s *Service) ValidateRecognitionPoints(ctx context.Context, org points.OrgID, user points.UserID, pts int64) (bool, error) {
	u, err := s.users.GetUser(ctx, user)
	if err != nil {
		return false, err
	}
	if u.Wallet.Allocation < pts {
		return false, nil
	}
	cfg, err := s.store.GetConfiguration(ctx, org)
	if err != nil {
		return false, err
	}
	return pts <= cfg.Allocation(u.Role).MaxPointsPerRecognition, nil
}

// =============================================================================
// DISTRIBUTION PROJECTION
// =============================================================================

type RoleDistribution struct {
	Role                    points.Role `json:"role"`
	MonthlyAllocation       int64       `json:"monthly_allocation"`
	MaxPointsPerRecognition int64       `json:"max_points_per_recognition"`
}

type Distribution struct {
	Distributions   []RoleDistribution `json:"distributions"`
	YearlyBudget    decimal.Decimal    `json:"yearly_budget"`
	RemainingBudget decimal.Decimal    `json:"remaining_budget"`
	UserCount       int64              `json:"user_count"`
}

// GetPointsDistributionByRole projects yearly spend against the budget:
// remaining = yearlyBudget − Σ(pointsPerMonth) × 12 × users in the org.
// A negative remainder is a reporting signal only; nothing is blocked.
func (s *Service) GetPointsDistributionByRole(ctx context.Context, org points.OrgID) (Distribution, error) {
	cfg, err := s.store.GetConfiguration(ctx, org)
	if err != nil {
		return Distribution{}, err
	}
	count, err := s.users.CountUsersByOrganization(ctx, org)
	if err != nil {
		return Distribution{}, fmt.Errorf("count users: %w", err)
	}

	d := Distribution{YearlyBudget: cfg.YearlyBudget, UserCount: count}
	var monthly int64
	for _, r := range points.Roles() {
		a := cfg.MonthlyAllocations[r]
		d.Distributions = append(d.Distributions, RoleDistribution{
			Role:                    r,
			MonthlyAllocation:       a.PointsPerMonth,
			MaxPointsPerRecognition: a.MaxPointsPerRecognition,
		})
		monthly += a.PointsPerMonth
	}
	yearly := decimal.NewFromInt(monthly).Mul(decimal.NewFromInt(12)).Mul(decimal.NewFromInt(count))
	d.RemainingBudget = cfg.YearlyBudget.Sub(yearly)
	return d, nil
}

// =============================================================================
// MONTHLY DISTRIBUTION
// =============================================================================

type DistributionResult struct {
	OrganizationID points.OrgID `json:"organization_id"`
	UsersUpdated   int          `json:"users_updated"`
	UsersSkipped   int          `json:"users_skipped"`
}

// DistributeMonthlyPoints sets every member's allocation pool to their role's
// pointsPerMonth. Roles with no monthly points are left untouched. Each user
// is refilled in its own transaction; a failure stops the run and reports it.
func (s *Service) DistributeMonthlyPoints(ctx context.Context, org points.OrgID) (DistributionResult, error) {
	res := DistributionResult{OrganizationID: org}
	cfg, err := s.store.GetConfiguration(ctx, org)
	if err != nil {
		return res, err
	}
	users, err := s.users.ListUsersByOrganization(ctx, org)
	if err != nil {
		return res, fmt.Errorf("list users: %w", err)
	}

	for _, u := range users {
		perMonth := cfg.Allocation(u.Role).PointsPerMonth
		if perMonth <= 0 {
			res.UsersSkipped++
			continue
		}
		if _, err := s.ledger.AwardPoints(ctx, u.ID, perMonth, points.AwardAllocation); err != nil {
			return res, fmt.Errorf("refill allocation for %s: %w", u.ID, err)
		}
		res.UsersUpdated++
	}

	s.log.WithFields(logrus.Fields{
		"organization_id": org,
		"updated":         res.UsersUpdated,
		"skipped":         res.UsersSkipped,
	}).Info("monthly points distributed")
	return res, nil
}
