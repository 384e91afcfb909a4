package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/warp/recognition-engine/achievements"
	"github.com/warp/recognition-engine/points"
	"github.com/warp/recognition-engine/rewards"
)

// =============================================================================
// REWARDS
// =============================================================================

func (s *Store) CreateReward(ctx context.Context, r rewards.Reward) error {
	defer s.lock(ctx)()
	if _, ok := s.rewards[r.ID]; ok {
		return points.Invalid("reward", "id %s already exists", r.ID)
	}
	n := len(s.rewardOrder)
	s.rewards[r.ID] = r
	s.rewardOrder = append(s.rewardOrder, r.ID)
	s.onRollback(ctx, func() {
		delete(s.rewards, r.ID)
		s.rewardOrder = s.rewardOrder[:n]
	})
	return nil
}

func (s *Store) GetReward(ctx context.Context, id rewards.ID) (rewards.Reward, error) {
	defer s.lock(ctx)()
	r, ok := s.rewards[id]
	if !ok {
		return rewards.Reward{}, points.NotFound("reward", id)
	}
	return r, nil
}

func (s *Store) listRewards(ctx context.Context, keep func(rewards.Reward) bool) []rewards.Reward {
	defer s.lock(ctx)()
	var out []rewards.Reward
	for _, id := range s.rewardOrder {
		if r := s.rewards[id]; keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func (s *Store) ListGlobalRewards(ctx context.Context) ([]rewards.Reward, error) {
	return s.listRewards(ctx, func(r rewards.Reward) bool { return r.IsGlobal }), nil
}

func (s *Store) ListOrganizationRewards(ctx context.Context, org points.OrgID) ([]rewards.Reward, error) {
	return s.listRewards(ctx, func(r rewards.Reward) bool { return !r.IsGlobal && r.OrganizationID == org }), nil
}

func (s *Store) updateReward(ctx context.Context, id rewards.ID, mutate func(*rewards.Reward) error) (rewards.Reward, error) {
	defer s.lock(ctx)()
	prev, ok := s.rewards[id]
	if !ok {
		return rewards.Reward{}, points.NotFound("reward", id)
	}
	next := prev
	if err := mutate(&next); err != nil {
		return rewards.Reward{}, err
	}
	next.UpdatedAt = time.Now().UTC()
	s.rewards[id] = next
	s.onRollback(ctx, func() { s.rewards[id] = prev })
	return next, nil
}

func (s *Store) SetRewardActive(ctx context.Context, id rewards.ID, active bool) (rewards.Reward, error) {
	return s.updateReward(ctx, id, func(r *rewards.Reward) error {
		r.IsActive = active
		return nil
	})
}

func (s *Store) ClaimRewardUnit(ctx context.Context, id rewards.ID) (rewards.Reward, error) {
	return s.updateReward(ctx, id, func(r *rewards.Reward) error {
		if !r.Available() {
			return points.ErrRewardUnavailable
		}
		r.Quantity--
		r.RedemptionCount++
		return nil
	})
}

func (s *Store) UpsertOrganizationReward(ctx context.Context, link rewards.OrganizationReward) error {
	defer s.lock(ctx)()
	k := linkKey{org: link.OrganizationID, id: link.RewardID}
	prev, exists := s.links[k]
	if exists {
		link.IsActive = prev.IsActive
		link.CreatedAt = prev.CreatedAt
		s.onRollback(ctx, func() { s.links[k] = prev })
	} else {
		n := len(s.linkOrder)
		s.linkOrder = append(s.linkOrder, k)
		s.onRollback(ctx, func() {
			delete(s.links, k)
			s.linkOrder = s.linkOrder[:n]
		})
	}
	s.links[k] = link
	return nil
}

func (s *Store) GetOrganizationReward(ctx context.Context, org points.OrgID, id rewards.ID) (rewards.OrganizationReward, error) {
	defer s.lock(ctx)()
	link, ok := s.links[linkKey{org: org, id: id}]
	if !ok {
		return rewards.OrganizationReward{}, points.NotFound("organization reward", id)
	}
	return link, nil
}

func (s *Store) ListOrganizationRewardLinks(ctx context.Context, org points.OrgID) ([]rewards.OrganizationReward, error) {
	defer s.lock(ctx)()
	var out []rewards.OrganizationReward
	for _, k := range s.linkOrder {
		if k.org == org {
			out = append(out, s.links[k])
		}
	}
	return out, nil
}

func (s *Store) updateLink(ctx context.Context, org points.OrgID, id rewards.ID, mutate func(*rewards.OrganizationReward) error) (rewards.OrganizationReward, error) {
	defer s.lock(ctx)()
	k := linkKey{org: org, id: id}
	prev, ok := s.links[k]
	if !ok {
		return rewards.OrganizationReward{}, points.NotFound("organization reward", id)
	}
	next := prev
	if err := mutate(&next); err != nil {
		return rewards.OrganizationReward{}, err
	}
	s.links[k] = next
	s.onRollback(ctx, func() { s.links[k] = prev })
	return next, nil
}

func (s *Store) SetOrganizationRewardActive(ctx context.Context, org points.OrgID, id rewards.ID, active bool) (rewards.OrganizationReward, error) {
	return s.updateLink(ctx, org, id, func(l *rewards.OrganizationReward) error {
		l.IsActive = active
		return nil
	})
}

func (s *Store) ClaimOrganizationRewardUnit(ctx context.Context, org points.OrgID, id rewards.ID) (rewards.OrganizationReward, error) {
	return s.updateLink(ctx, org, id, func(l *rewards.OrganizationReward) error {
		if !l.Available() {
			return points.ErrRewardUnavailable
		}
		if l.CustomQuantity != nil {
			left := *l.CustomQuantity - 1
			l.CustomQuantity = &left
		}
		return nil
	})
}

func (s *Store) AppendRedemption(ctx context.Context, r rewards.Redemption) error {
	defer s.lock(ctx)()
	n := len(s.redemptions)
	s.redemptions = append(s.redemptions, r)
	s.onRollback(ctx, func() { s.redemptions = s.redemptions[:n] })
	return nil
}

func (s *Store) ListRedemptions(ctx context.Context, f rewards.RedemptionFilter) ([]rewards.Redemption, error) {
	defer s.lock(ctx)()
	var out []rewards.Redemption
	for _, r := range s.redemptions {
		switch {
		case f.OrganizationID != "" && r.OrganizationID != f.OrganizationID:
		case f.UserID != "" && r.UserID != f.UserID:
		case f.From != nil && r.CreatedAt.Before(*f.From):
		case f.To != nil && r.CreatedAt.After(*f.To):
		default:
			out = append(out, r)
		}
	}
	return out, nil
}

// =============================================================================
// SUGGESTIONS
// =============================================================================

func cloneSuggestion(sg rewards.Suggestion) rewards.Suggestion {
	sg.Votes = append([]points.UserID{}, sg.Votes...)
	return sg
}

func (s *Store) CreateSuggestion(ctx context.Context, sg rewards.Suggestion) error {
	defer s.lock(ctx)()
	if _, ok := s.suggestions[sg.ID]; ok {
		return points.Invalid("suggestion", "id %s already exists", sg.ID)
	}
	n := len(s.suggOrder)
	s.suggestions[sg.ID] = cloneSuggestion(sg)
	s.suggOrder = append(s.suggOrder, sg.ID)
	s.onRollback(ctx, func() {
		delete(s.suggestions, sg.ID)
		s.suggOrder = s.suggOrder[:n]
	})
	return nil
}

func (s *Store) GetSuggestion(ctx context.Context, id rewards.SuggestionID) (rewards.Suggestion, error) {
	defer s.lock(ctx)()
	sg, ok := s.suggestions[id]
	if !ok {
		return rewards.Suggestion{}, points.NotFound("suggestion", id)
	}
	return cloneSuggestion(sg), nil
}

func (s *Store) ListSuggestions(ctx context.Context, org points.OrgID) ([]rewards.Suggestion, error) {
	defer s.lock(ctx)()
	var out []rewards.Suggestion
	for _, id := range s.suggOrder {
		if sg := s.suggestions[id]; sg.OrganizationID == org {
			out = append(out, cloneSuggestion(sg))
		}
	}
	return out, nil
}

func (s *Store) updateSuggestion(ctx context.Context, id rewards.SuggestionID, mutate func(*rewards.Suggestion) error) (rewards.Suggestion, error) {
	defer s.lock(ctx)()
	prev, ok := s.suggestions[id]
	if !ok {
		return rewards.Suggestion{}, points.NotFound("suggestion", id)
	}
	next := cloneSuggestion(prev)
	if err := mutate(&next); err != nil {
		return rewards.Suggestion{}, err
	}
	s.suggestions[id] = next
	s.onRollback(ctx, func() { s.suggestions[id] = prev })
	return cloneSuggestion(next), nil
}

func (s *Store) AddSuggestionVote(ctx context.Context, id rewards.SuggestionID, user points.UserID) (rewards.Suggestion, error) {
	return s.updateSuggestion(ctx, id, func(sg *rewards.Suggestion) error {
		if !sg.HasVote(user) {
			sg.Votes = append(sg.Votes, user)
		}
		return nil
	})
}

func (s *Store) RemoveSuggestionVote(ctx context.Context, id rewards.SuggestionID, user points.UserID) (rewards.Suggestion, error) {
	return s.updateSuggestion(ctx, id, func(sg *rewards.Suggestion) error {
		sg.Votes = slices.DeleteFunc(sg.Votes, func(u points.UserID) bool { return u == user })
		return nil
	})
}

func (s *Store) ReviewSuggestion(ctx context.Context, id rewards.SuggestionID, r rewards.SuggestionReview) (rewards.Suggestion, error) {
	return s.updateSuggestion(ctx, id, func(sg *rewards.Suggestion) error {
		if sg.Status != rewards.SuggestionPending {
			return points.Invalid("suggestion", "%s was already %s", id, sg.Status)
		}
		sg.Status = r.Status
		sg.AdminFeedback = r.AdminFeedback
		sg.ReviewedBy = r.ReviewedBy
		sg.RewardID = r.RewardID
		sg.UpdatedAt = r.At
		return nil
	})
}

// =============================================================================
// ACHIEVEMENTS
// =============================================================================

func (s *Store) CreateAchievement(ctx context.Context, a achievements.Achievement) error {
	defer s.lock(ctx)()
	if _, ok := s.achievements[a.ID]; ok {
		return points.Invalid("achievement", "id %s already exists", a.ID)
	}
	n := len(s.achOrder)
	s.achievements[a.ID] = a
	s.achOrder = append(s.achOrder, a.ID)
	s.onRollback(ctx, func() {
		delete(s.achievements, a.ID)
		s.achOrder = s.achOrder[:n]
	})
	return nil
}

func (s *Store) GetAchievement(ctx context.Context, id achievements.ID) (achievements.Achievement, error) {
	defer s.lock(ctx)()
	a, ok := s.achievements[id]
	if !ok {
		return achievements.Achievement{}, points.NotFound("achievement", id)
	}
	return a, nil
}

func (s *Store) ListAchievements(ctx context.Context, org points.OrgID) ([]achievements.Achievement, error) {
	defer s.lock(ctx)()
	var out []achievements.Achievement
	for _, id := range s.achOrder {
		if a := s.achievements[id]; a.VisibleTo(org) {
			out = append(out, a)
		}
	}
	slices.SortStableFunc(out, func(a, b achievements.Achievement) int {
		if c := cmp.Compare(a.Type, b.Type); c != 0 {
			return c
		}
		return cmp.Compare(a.Threshold, b.Threshold)
	})
	return out, nil
}

func (s *Store) GetUserAchievement(ctx context.Context, user points.UserID, id achievements.ID) (achievements.UserAchievement, error) {
	defer s.lock(ctx)()
	ua, ok := s.userAchs[userAchKey{user: user, id: id}]
	if !ok {
		return achievements.UserAchievement{}, points.NotFound("user achievement", id)
	}
	return ua, nil
}

func (s *Store) ListUserAchievements(ctx context.Context, user points.UserID) ([]achievements.UserAchievement, error) {
	defer s.lock(ctx)()
	var out []achievements.UserAchievement
	for _, k := range s.userAchOrder {
		if k.user == user {
			out = append(out, s.userAchs[k])
		}
	}
	return out, nil
}

// putUserAchievement writes ua unless mutate refuses, recording undo state.
func (s *Store) putUserAchievement(ctx context.Context, k userAchKey, mutate func(ua *achievements.UserAchievement) bool) (prev achievements.UserAchievement, changed bool) {
	prev, exists := s.userAchs[k]
	next := prev
	if !exists {
		next = achievements.UserAchievement{UserID: k.user, AchievementID: k.id}
	}
	if !mutate(&next) {
		return prev, false
	}
	s.userAchs[k] = next
	if exists {
		s.onRollback(ctx, func() { s.userAchs[k] = prev })
	} else {
		n := len(s.userAchOrder)
		s.userAchOrder = append(s.userAchOrder, k)
		s.onRollback(ctx, func() {
			delete(s.userAchs, k)
			s.userAchOrder = s.userAchOrder[:n]
		})
	}
	return prev, true
}

func (s *Store) CompleteUserAchievement(ctx context.Context, user points.UserID, id achievements.ID, at time.Time) (bool, error) {
	defer s.lock(ctx)()
	_, changed := s.putUserAchievement(ctx, userAchKey{user: user, id: id}, func(ua *achievements.UserAchievement) bool {
		if ua.Completed() {
			return false
		}
		ua.Progress = achievements.CompleteProgress
		ua.EarnedAt = &at
		ua.UpdatedAt = at
		return true
	})
	return changed, nil
}

func (s *Store) UpdateProgress(ctx context.Context, user points.UserID, id achievements.ID, progress int, at time.Time) (int, error) {
	defer s.lock(ctx)()
	prev, _ := s.putUserAchievement(ctx, userAchKey{user: user, id: id}, func(ua *achievements.UserAchievement) bool {
		if ua.Completed() {
			return false
		}
		ua.Progress = progress
		ua.UpdatedAt = at
		return true
	})
	return prev.Progress, nil
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

func (s *Store) SaveNotification(ctx context.Context, n points.Notification) error {
	defer s.lock(ctx)()
	if _, ok := s.notifications[n.ID]; !ok {
		idx := len(s.notifOrder)
		s.notifOrder = append(s.notifOrder, n.ID)
		s.onRollback(ctx, func() {
			delete(s.notifications, n.ID)
			s.notifOrder = s.notifOrder[:idx]
		})
	}
	s.notifications[n.ID] = n
	return nil
}

func (s *Store) GetNotification(ctx context.Context, id string) (points.Notification, error) {
	defer s.lock(ctx)()
	n, ok := s.notifications[id]
	if !ok {
		return points.Notification{}, points.NotFound("notification", id)
	}
	return n, nil
}

func (s *Store) ListNotifications(ctx context.Context, user points.UserID) ([]points.Notification, error) {
	defer s.lock(ctx)()
	var out []points.Notification
	for i := len(s.notifOrder) - 1; i >= 0; i-- {
		if n, ok := s.notifications[s.notifOrder[i]]; ok && n.UserID == user {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *Store) MarkNotificationRead(ctx context.Context, id string) error {
	defer s.lock(ctx)()
	n, ok := s.notifications[id]
	if !ok {
		return points.NotFound("notification", id)
	}
	n.Read = true
	s.notifications[id] = n
	return nil
}

// DeleteNotifications leaves the id in notifOrder; lookups skip it.
func (s *Store) DeleteNotifications(ctx context.Context, ids []string) error {
	defer s.lock(ctx)()
	for _, id := range ids {
		delete(s.notifications, id)
	}
	return nil
}
