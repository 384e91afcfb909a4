package rewards

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/warp/recognition-engine/points"
)

// =============================================================================
// REDEMPTION
// =============================================================================

// RedeemReward exchanges the user's personal points for one unit of the
// reward and returns the reward after the claim.
//
// Checks run before any write: the reward exists and is offered to the
// user's organization, it is active with quantity left, and the personal
// pool covers its cost. The debit, the inventory claim and the audit record
// then commit together. A linked global reward is claimed on both sides: the
// reward itself and the organization's link, whose custom quantity is the
// organization's own allotment. Losing the last unit to a concurrent redemption
// rolls the debit back and fails with RewardUnavailable.
func (s *Service) RedeemReward(ctx context.Context, user points.UserID, id ID) (Reward, error) {
	u, err := s.users.GetUser(ctx, user)
	if err != nil {
		return Reward{}, err
	}
	offered, err := s.offer(ctx, u.OrganizationID, id)
	if err != nil {
		return Reward{}, err
	}
	if !offered.Available() {
		return Reward{}, fmt.Errorf("%w: %s", points.ErrRewardUnavailable, offered.Name)
	}
	cost := offered.PointsCost
	if u.Wallet.Personal < cost {
		return Reward{}, &points.InsufficientPointsError{
			UserID:    user,
			Pool:      points.PoolPersonal,
			Available: u.Wallet.Personal,
			Requested: cost,
		}
	}

	var claimed Reward
	redemption := Redemption{
		ID:             RedemptionID(uuid.NewString()),
		OrganizationID: u.OrganizationID,
		RewardID:       id,
		UserID:         user,
		PointsCost:     cost,
		CreatedAt:      s.ledger.Now(),
	}
	err = s.ledger.Atomically(ctx, func(ctx context.Context) error {
		if _, err := s.ledger.DeductPoints(ctx, user, cost, points.PoolPersonal,
			points.WithType(points.TxRedemption),
			points.WithReference(string(redemption.ID)),
			points.WithReason(offered.Name),
			points.Silently()); err != nil {
			return err
		}
		var err error
		if claimed, err = s.store.ClaimRewardUnit(ctx, id); err != nil {
			return err
		}
		if claimed.IsGlobal {
			link, err := s.store.ClaimOrganizationRewardUnit(ctx, u.OrganizationID, id)
			if err != nil {
				return err
			}
			claimed = link.Apply(claimed)
		}
		if err := s.store.AppendRedemption(ctx, redemption); err != nil {
			return fmt.Errorf("record redemption: %w", err)
		}
		s.ledger.Notify(ctx, points.Notification{
			UserID:  user,
			Kind:    points.NotifyRewardRedeemed,
			Title:   "Reward Redeemed",
			Message: fmt.Sprintf("You redeemed %q for %d points", offered.Name, cost),
			Data: map[string]any{
				"reward_id":     string(id),
				"redemption_id": string(redemption.ID),
				"points":        cost,
			},
		})
		return nil
	})
	if err != nil {
		return Reward{}, err
	}

	s.log.WithFields(logrus.Fields{
		"user_id":         user,
		"organization_id": u.OrganizationID,
		"reward_id":       id,
		"points":          cost,
		"remaining":       claimed.Quantity,
	}).Info("reward redeemed")
	return claimed, nil
}
