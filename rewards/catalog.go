package rewards

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/warp/recognition-engine/points"
)

type Users interface {
	GetUser(ctx context.Context, id points.UserID) (points.User, error)
}

type Organizations interface {
	GetOrganization(ctx context.Context, id points.OrgID) (points.Organization, error)
}

// Service owns the catalog and executes redemptions.
type Service struct {
	store  Store
	users  Users
	orgs   Organizations
	ledger *points.Ledger
	log    logrus.FieldLogger
}

func NewService(store Store, users Users, orgs Organizations, ledger *points.Ledger, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{store: store, users: users, orgs: orgs, ledger: ledger, log: log.WithField("component", "rewards")}
}

// =============================================================================
// CATALOG WRITES
// =============================================================================

type CreateInput struct {
	Name        string
	Description string
	Category    Category
	PointsCost  int64
	Quantity    int64
	// Active publishes the reward immediately. New rewards are inactive
	// otherwise.
	Active    bool
	CreatedBy points.UserID
}

func (in CreateInput) validate() error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return points.Invalid("name", "must not be empty")
	case !in.Category.Valid():
		return points.Invalid("category", "unknown reward category %q", in.Category)
	case in.PointsCost < 0:
		return points.Invalid("points_cost", "must be non-negative, got %d", in.PointsCost)
	case in.Quantity < 0:
		return points.Invalid("quantity", "must be non-negative, got %d", in.Quantity)
	}
	return nil
}

func (s *Service) newReward(in CreateInput) Reward {
	now := s.ledger.Now()
	return Reward{
		ID:          ID(uuid.NewString()),
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Category:    in.Category,
		PointsCost:  in.PointsCost,
		Quantity:    in.Quantity,
		IsActive:    in.Active,
		CreatedBy:   in.CreatedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (s *Service) CreateGlobalReward(ctx context.Context, in CreateInput) (Reward, error) {
	if err := in.validate(); err != nil {
		return Reward{}, err
	}
	r := s.newReward(in)
	r.IsGlobal = true
	if err := s.store.CreateReward(ctx, r); err != nil {
		return Reward{}, err
	}
	return r, nil
}

func (s *Service) CreateOrganizationReward(ctx context.Context, org points.OrgID, in CreateInput) (Reward, error) {
	if err := in.validate(); err != nil {
		return Reward{}, err
	}
	if _, err := s.orgs.GetOrganization(ctx, org); err != nil {
		return Reward{}, err
	}
	r := s.newReward(in)
	r.OrganizationID = org
	if err := s.store.CreateReward(ctx, r); err != nil {
		return Reward{}, err
	}
	return r, nil
}

type Customization struct {
	PointsCost *int64
	Quantity   *int64
}

// AddRewardToOrganization links a global reward into org's catalog. The link
// starts inactive.
func (s *Service) AddRewardToOrganization(ctx context.Context, org points.OrgID, id ID, c Customization) (OrganizationReward, error) {
	if _, err := s.orgs.GetOrganization(ctx, org); err != nil {
		return OrganizationReward{}, err
	}
	r, err := s.store.GetReward(ctx, id)
	if err != nil {
		return OrganizationReward{}, err
	}
	if !r.IsGlobal {
		return OrganizationReward{}, points.Invalid("reward", "only global rewards can be added to an organization")
	}
	if (c.PointsCost != nil && *c.PointsCost < 0) || (c.Quantity != nil && *c.Quantity < 0) {
		return OrganizationReward{}, points.Invalid("customization", "cost and quantity must be non-negative")
	}
	link := OrganizationReward{
		OrganizationID:   org,
		RewardID:         id,
		CustomPointsCost: c.PointsCost,
		CustomQuantity:   c.Quantity,
		CreatedAt:        s.ledger.Now(),
	}
	if err := s.store.UpsertOrganizationReward(ctx, link); err != nil {
		return OrganizationReward{}, err
	}
	return link, nil
}

// UpdateRewardStatus toggles a reward in org's catalog: the reward itself
// when org owns it, or org's link when it is a linked global reward.
func (s *Service) UpdateRewardStatus(ctx context.Context, org points.OrgID, id ID, active bool) (Reward, error) {
	r, err := s.store.GetReward(ctx, id)
	if err != nil {
		return Reward{}, err
	}
	if !r.IsGlobal {
		if r.OrganizationID != org {
			return Reward{}, points.NotFound("reward", id)
		}
		return s.store.SetRewardActive(ctx, id, active)
	}
	link, err := s.store.SetOrganizationRewardActive(ctx, org, id, active)
	if err != nil {
		return Reward{}, err
	}
	return link.Apply(r), nil
}

// SetGlobalRewardStatus toggles a global reward for every organization.
func (s *Service) SetGlobalRewardStatus(ctx context.Context, id ID, active bool) (Reward, error) {
	r, err := s.store.GetReward(ctx, id)
	if err != nil {
		return Reward{}, err
	}
	if !r.IsGlobal {
		return Reward{}, points.Invalid("reward", "reward %s is not global", id)
	}
	return s.store.SetRewardActive(ctx, id, active)
}

// =============================================================================
// CATALOG READS
// =============================================================================

func (s *Service) GetReward(ctx context.Context, id ID) (Reward, error) {
	return s.store.GetReward(ctx, id)
}

func (s *Service) GetGlobalCatalog(ctx context.Context) ([]Reward, error) {
	return s.store.ListGlobalRewards(ctx)
}

// GetOrganizationRewards lists linked global rewards, customized, followed by
// org-owned rewards.
func (s *Service) GetOrganizationRewards(ctx context.Context, org points.OrgID) ([]Reward, error) {
	links, err := s.store.ListOrganizationRewardLinks(ctx, org)
	if err != nil {
		return nil, err
	}
	out := make([]Reward, 0, len(links))
	for _, link := range links {
		r, err := s.store.GetReward(ctx, link.RewardID)
		if err != nil {
			if points.IsNotFound(err) {
				s.log.WithFields(logrus.Fields{"organization_id": org, "reward_id": link.RewardID}).
					Warn("organization links a missing reward")
				continue
			}
			return nil, err
		}
		out = append(out, link.Apply(r))
	}
	owned, err := s.store.ListOrganizationRewards(ctx, org)
	if err != nil {
		return nil, err
	}
	return append(out, owned...), nil
}

// offer resolves reward id as seen by org, failing NotFound when org cannot
// see it at all.
func (s *Service) offer(ctx context.Context, org points.OrgID, id ID) (Reward, error) {
	r, err := s.store.GetReward(ctx, id)
	if err != nil {
		return Reward{}, err
	}
	if !r.IsGlobal {
		if r.OrganizationID != org {
			return Reward{}, points.NotFound("reward", id)
		}
		return r, nil
	}
	link, err := s.store.GetOrganizationReward(ctx, org, id)
	if err != nil {
		if points.IsNotFound(err) {
			return Reward{}, points.NotFound("reward", id)
		}
		return Reward{}, err
	}
	return link.Apply(r), nil
}

func (s *Service) GetRedemptionsByDateRange(ctx context.Context, org points.OrgID, f RedemptionFilter) ([]Redemption, error) {
	f.OrganizationID = org
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return nil, points.Invalid("range", "end %s is before start %s", f.To, f.From)
	}
	return s.store.ListRedemptions(ctx, f)
}

func (s *Service) GetUserRedemptions(ctx context.Context, user points.UserID) ([]Redemption, error) {
	if _, err := s.users.GetUser(ctx, user); err != nil {
		return nil, fmt.Errorf("user: %w", err)
	}
	return s.store.ListRedemptions(ctx, RedemptionFilter{UserID: user})
}
