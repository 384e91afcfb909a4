package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/warp/recognition-engine/achievements"
	"github.com/warp/recognition-engine/points"
	"github.com/warp/recognition-engine/rewards"
)

// =============================================================================
// REWARDS
// =============================================================================

func (r rewardRow) toReward() rewards.Reward {
	return rewards.Reward{
		ID:              rewards.ID(r.ID),
		Name:            r.Name,
		Description:     r.Description,
		Category:        rewards.Category(r.Category),
		PointsCost:      r.PointsCost,
		Quantity:        r.Quantity,
		IsGlobal:        r.IsGlobal,
		OrganizationID:  points.OrgID(r.OrganizationID),
		IsActive:        r.IsActive,
		RedemptionCount: r.RedemptionCount,
		CreatedBy:       points.UserID(r.CreatedBy),
		CreatedAt:       utc(r.CreatedAt),
		UpdatedAt:       utc(r.UpdatedAt),
	}
}

func (s *Store) CreateReward(ctx context.Context, r rewards.Reward) error {
	row := rewardRow{
		ID:              string(r.ID),
		Name:            r.Name,
		Description:     r.Description,
		Category:        string(r.Category),
		PointsCost:      r.PointsCost,
		Quantity:        r.Quantity,
		IsGlobal:        r.IsGlobal,
		OrganizationID:  string(r.OrganizationID),
		IsActive:        r.IsActive,
		RedemptionCount: r.RedemptionCount,
		CreatedBy:       string(r.CreatedBy),
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	return insertErr("reward", r.ID, s.conn(ctx).Create(&row).Error)
}

func (s *Store) GetReward(ctx context.Context, id rewards.ID) (rewards.Reward, error) {
	var row rewardRow
	if err := s.conn(ctx).First(&row, "id = ?", string(id)).Error; err != nil {
		return rewards.Reward{}, notFound(err, "reward", id)
	}
	return row.toReward(), nil
}

func (s *Store) findRewards(q *gorm.DB) ([]rewards.Reward, error) {
	var rows []rewardRow
	if err := q.Order("seq").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query rewards: %w", err)
	}
	out := make([]rewards.Reward, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toReward())
	}
	return out, nil
}

func (s *Store) ListGlobalRewards(ctx context.Context) ([]rewards.Reward, error) {
	return s.findRewards(s.conn(ctx).Where("is_global = ?", true))
}

func (s *Store) ListOrganizationRewards(ctx context.Context, org points.OrgID) ([]rewards.Reward, error) {
	return s.findRewards(s.conn(ctx).Where("is_global = ? AND organization_id = ?", false, string(org)))
}

// updateReward locks the reward row, lets mutate check and change it, then
// writes the changed columns.
func (s *Store) updateReward(ctx context.Context, id rewards.ID, mutate func(r *rewardRow) (map[string]any, error)) (rewards.Reward, error) {
	var out rewards.Reward
	err := s.WithTx(ctx, func(ctx context.Context) error {
		var row rewardRow
		if err := s.conn(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&row, "id = ?", string(id)).Error; err != nil {
			return notFound(err, "reward", id)
		}
		changes, err := mutate(&row)
		if err != nil {
			return err
		}
		changes["updated_at"] = time.Now().UTC()
		if err := s.conn(ctx).Model(&rewardRow{}).Where("id = ?", string(id)).Updates(changes).Error; err != nil {
			return err
		}
		if err := s.conn(ctx).First(&row, "id = ?", string(id)).Error; err != nil {
			return err
		}
		out = row.toReward()
		return nil
	})
	return out, err
}

func (s *Store) SetRewardActive(ctx context.Context, id rewards.ID, active bool) (rewards.Reward, error) {
	return s.updateReward(ctx, id, func(*rewardRow) (map[string]any, error) {
		return map[string]any{"is_active": active}, nil
	})
}

func (s *Store) ClaimRewardUnit(ctx context.Context, id rewards.ID) (rewards.Reward, error) {
	return s.updateReward(ctx, id, func(r *rewardRow) (map[string]any, error) {
		if !r.IsActive || r.Quantity <= 0 {
			return nil, points.ErrRewardUnavailable
		}
		return map[string]any{
			"quantity":         gorm.Expr("quantity - 1"),
			"redemption_count": gorm.Expr("redemption_count + 1"),
		}, nil
	})
}

func (r orgRewardRow) toLink() rewards.OrganizationReward {
	return rewards.OrganizationReward{
		OrganizationID:   points.OrgID(r.OrganizationID),
		RewardID:         rewards.ID(r.RewardID),
		CustomPointsCost: r.CustomPointsCost,
		CustomQuantity:   r.CustomQuantity,
		IsActive:         r.IsActive,
		CreatedAt:        utc(r.CreatedAt),
	}
}

// UpsertOrganizationReward keeps an existing link's active flag.
func (s *Store) UpsertOrganizationReward(ctx context.Context, l rewards.OrganizationReward) error {
	row := orgRewardRow{
		OrganizationID:   string(l.OrganizationID),
		RewardID:         string(l.RewardID),
		CustomPointsCost: l.CustomPointsCost,
		CustomQuantity:   l.CustomQuantity,
		IsActive:         l.IsActive,
		CreatedAt:        l.CreatedAt,
	}
	err := s.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "organization_id"}, {Name: "reward_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"custom_points_cost", "custom_quantity"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to link reward: %w", err)
	}
	return nil
}

func (s *Store) GetOrganizationReward(ctx context.Context, org points.OrgID, id rewards.ID) (rewards.OrganizationReward, error) {
	var row orgRewardRow
	err := s.conn(ctx).First(&row, "organization_id = ? AND reward_id = ?", string(org), string(id)).Error
	if err != nil {
		return rewards.OrganizationReward{}, notFound(err, "organization reward", id)
	}
	return row.toLink(), nil
}

func (s *Store) ListOrganizationRewardLinks(ctx context.Context, org points.OrgID) ([]rewards.OrganizationReward, error) {
	var rows []orgRewardRow
	if err := s.conn(ctx).Where("organization_id = ?", string(org)).Order("seq").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list organization rewards: %w", err)
	}
	out := make([]rewards.OrganizationReward, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toLink())
	}
	return out, nil
}

func (s *Store) SetOrganizationRewardActive(ctx context.Context, org points.OrgID, id rewards.ID, active bool) (rewards.OrganizationReward, error) {
	var out rewards.OrganizationReward
	err := s.WithTx(ctx, func(ctx context.Context) error {
		res := s.conn(ctx).Model(&orgRewardRow{}).
			Where("organization_id = ? AND reward_id = ?", string(org), string(id)).
			Update("is_active", active)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return points.NotFound("organization reward", id)
		}
		var err error
		out, err = s.GetOrganizationReward(ctx, org, id)
		return err
	})
	return out, err
}

func (s *Store) ClaimOrganizationRewardUnit(ctx context.Context, org points.OrgID, id rewards.ID) (rewards.OrganizationReward, error) {
	var out rewards.OrganizationReward
	err := s.WithTx(ctx, func(ctx context.Context) error {
		var row orgRewardRow
		err := s.conn(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&row, "organization_id = ? AND reward_id = ?", string(org), string(id)).Error
		if err != nil {
			return notFound(err, "organization reward", id)
		}
		if !row.toLink().Available() {
			return points.ErrRewardUnavailable
		}
		if row.CustomQuantity != nil {
			err := s.conn(ctx).Model(&orgRewardRow{}).
				Where("organization_id = ? AND reward_id = ?", string(org), string(id)).
				Update("custom_quantity", gorm.Expr("custom_quantity - 1")).Error
			if err != nil {
				return err
			}
		}
		out, err = s.GetOrganizationReward(ctx, org, id)
		return err
	})
	return out, err
}

func (s *Store) AppendRedemption(ctx context.Context, r rewards.Redemption) error {
	row := redemptionRow{
		ID:             string(r.ID),
		OrganizationID: string(r.OrganizationID),
		RewardID:       string(r.RewardID),
		UserID:         string(r.UserID),
		PointsCost:     r.PointsCost,
		CreatedAt:      r.CreatedAt,
	}
	return insertErr("redemption", r.ID, s.conn(ctx).Create(&row).Error)
}

func (s *Store) ListRedemptions(ctx context.Context, f rewards.RedemptionFilter) ([]rewards.Redemption, error) {
	q := s.conn(ctx).Model(&redemptionRow{})
	if f.OrganizationID != "" {
		q = q.Where("organization_id = ?", string(f.OrganizationID))
	}
	if f.UserID != "" {
		q = q.Where("user_id = ?", string(f.UserID))
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at <= ?", *f.To)
	}
	var rows []redemptionRow
	if err := q.Order("seq").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list redemptions: %w", err)
	}
	out := make([]rewards.Redemption, 0, len(rows))
	for _, r := range rows {
		out = append(out, rewards.Redemption{
			ID:             rewards.RedemptionID(r.ID),
			OrganizationID: points.OrgID(r.OrganizationID),
			RewardID:       rewards.ID(r.RewardID),
			UserID:         points.UserID(r.UserID),
			PointsCost:     r.PointsCost,
			CreatedAt:      utc(r.CreatedAt),
		})
	}
	return out, nil
}

// =============================================================================
// ACHIEVEMENTS
// =============================================================================

func (r achievementRow) toAchievement() achievements.Achievement {
	return achievements.Achievement{
		ID:             achievements.ID(r.ID),
		Name:           r.Name,
		Description:    r.Description,
		Icon:           r.Icon,
		Type:           achievements.Type(r.Type),
		Threshold:      r.Threshold,
		Points:         r.Points,
		OrganizationID: points.OrgID(r.OrganizationID),
		CreatedBy:      points.UserID(r.CreatedBy),
		CreatedAt:      utc(r.CreatedAt),
	}
}

func (s *Store) CreateAchievement(ctx context.Context, a achievements.Achievement) error {
	row := achievementRow{
		ID:             string(a.ID),
		Name:           a.Name,
		Description:    a.Description,
		Icon:           a.Icon,
		Type:           string(a.Type),
		Threshold:      a.Threshold,
		Points:         a.Points,
		OrganizationID: string(a.OrganizationID),
		CreatedBy:      string(a.CreatedBy),
		CreatedAt:      a.CreatedAt,
	}
	return insertErr("achievement", a.ID, s.conn(ctx).Create(&row).Error)
}

func (s *Store) GetAchievement(ctx context.Context, id achievements.ID) (achievements.Achievement, error) {
	var row achievementRow
	if err := s.conn(ctx).First(&row, "id = ?", string(id)).Error; err != nil {
		return achievements.Achievement{}, notFound(err, "achievement", id)
	}
	return row.toAchievement(), nil
}

func (s *Store) ListAchievements(ctx context.Context, org points.OrgID) ([]achievements.Achievement, error) {
	var rows []achievementRow
	err := s.conn(ctx).
		Where("organization_id = ? OR organization_id = ''", string(org)).
		Order("type, threshold, seq").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list achievements: %w", err)
	}
	out := make([]achievements.Achievement, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toAchievement())
	}
	return out, nil
}

func (r userAchievementRow) toUserAchievement() achievements.UserAchievement {
	return achievements.UserAchievement{
		UserID:        points.UserID(r.UserID),
		AchievementID: achievements.ID(r.AchievementID),
		Progress:      r.Progress,
		EarnedAt:      utcPtr(r.EarnedAt),
		UpdatedAt:     utc(r.UpdatedAt),
	}
}

func (s *Store) GetUserAchievement(ctx context.Context, user points.UserID, id achievements.ID) (achievements.UserAchievement, error) {
	var row userAchievementRow
	err := s.conn(ctx).First(&row, "user_id = ? AND achievement_id = ?", string(user), string(id)).Error
	if err != nil {
		return achievements.UserAchievement{}, notFound(err, "user achievement", id)
	}
	return row.toUserAchievement(), nil
}

func (s *Store) ListUserAchievements(ctx context.Context, user points.UserID) ([]achievements.UserAchievement, error) {
	var rows []userAchievementRow
	if err := s.conn(ctx).Where("user_id = ?", string(user)).Order("seq").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list user achievements: %w", err)
	}
	out := make([]achievements.UserAchievement, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toUserAchievement())
	}
	return out, nil
}

// notCompleted guards the upserts below: a completed row is never rewritten.
var notCompleted = clause.Where{Exprs: []clause.Expression{
	clause.Lt{Column: clause.Column{Table: "user_achievements", Name: "progress"}, Value: achievements.CompleteProgress},
}}

func (s *Store) CompleteUserAchievement(ctx context.Context, user points.UserID, id achievements.ID, at time.Time) (bool, error) {
	row := userAchievementRow{
		UserID:        string(user),
		AchievementID: string(id),
		Progress:      achievements.CompleteProgress,
		EarnedAt:      &at,
		UpdatedAt:     at,
	}
	res := s.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "achievement_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"progress", "earned_at", "updated_at"}),
		Where:     notCompleted,
	}).Create(&row)
	if res.Error != nil {
		return false, fmt.Errorf("failed to complete achievement: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) UpdateProgress(ctx context.Context, user points.UserID, id achievements.ID, progress int, at time.Time) (int, error) {
	var prev int
	err := s.WithTx(ctx, func(ctx context.Context) error {
		var row userAchievementRow
		err := s.conn(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND achievement_id = ?", string(user), string(id)).
			Limit(1).Find(&row).Error
		if err != nil {
			return err
		}
		prev = row.Progress
		if prev >= achievements.CompleteProgress {
			return nil
		}
		next := userAchievementRow{
			UserID:        string(user),
			AchievementID: string(id),
			Progress:      progress,
			UpdatedAt:     at,
		}
		return s.conn(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "achievement_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"progress", "updated_at"}),
			Where:     notCompleted,
		}).Create(&next).Error
	})
	if err != nil {
		return 0, fmt.Errorf("failed to update progress: %w", err)
	}
	return prev, nil
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

func (r notificationRow) toNotification() (points.Notification, error) {
	n := points.Notification{
		ID:        r.ID,
		UserID:    points.UserID(r.UserID),
		Kind:      points.NotificationKind(r.Kind),
		Title:     r.Title,
		Message:   r.Message,
		Read:      r.IsRead,
		CreatedAt: utc(r.CreatedAt),
	}
	if r.DataJSON != "" {
		if err := json.Unmarshal([]byte(r.DataJSON), &n.Data); err != nil {
			return points.Notification{}, fmt.Errorf("corrupt notification data: %w", err)
		}
	}
	return n, nil
}

func (s *Store) SaveNotification(ctx context.Context, n points.Notification) error {
	row := notificationRow{
		ID:        n.ID,
		UserID:    string(n.UserID),
		Kind:      string(n.Kind),
		Title:     n.Title,
		Message:   n.Message,
		DataJSON:  n.DataJSON(),
		IsRead:    n.Read,
		CreatedAt: n.CreatedAt,
	}
	err := s.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_read"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to save notification: %w", err)
	}
	return nil
}

func (s *Store) GetNotification(ctx context.Context, id string) (points.Notification, error) {
	var row notificationRow
	if err := s.conn(ctx).First(&row, "id = ?", id).Error; err != nil {
		return points.Notification{}, notFound(err, "notification", id)
	}
	return row.toNotification()
}

func (s *Store) ListNotifications(ctx context.Context, user points.UserID) ([]points.Notification, error) {
	var rows []notificationRow
	if err := s.conn(ctx).Where("user_id = ?", string(user)).Order("seq DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	out := make([]points.Notification, 0, len(rows))
	for _, r := range rows {
		n, err := r.toNotification()
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func (s *Store) MarkNotificationRead(ctx context.Context, id string) error {
	res := s.conn(ctx).Model(&notificationRow{}).Where("id = ?", id).Update("is_read", true)
	if res.Error != nil {
		return fmt.Errorf("failed to mark notification read: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return points.NotFound("notification", id)
	}
	return nil
}

func (s *Store) DeleteNotifications(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.conn(ctx).Where("id IN ?", ids).Delete(&notificationRow{}).Error; err != nil {
		return fmt.Errorf("failed to delete notifications: %w", err)
	}
	return nil
}

// =============================================================================
// SUGGESTIONS
// =============================================================================

func (r suggestionRow) toSuggestion(votes []points.UserID) rewards.Suggestion {
	if votes == nil {
		votes = []points.UserID{}
	}
	return rewards.Suggestion{
		ID:                  rewards.SuggestionID(r.ID),
		OrganizationID:      points.OrgID(r.OrganizationID),
		Name:                r.Name,
		Description:         r.Description,
		Category:            rewards.Category(r.Category),
		SuggestedPointsCost: r.SuggestedPointsCost,
		SuggestedBy:         points.UserID(r.SuggestedBy),
		Votes:               votes,
		Status:              rewards.SuggestionStatus(r.Status),
		AdminFeedback:       r.AdminFeedback,
		ReviewedBy:          points.UserID(r.ReviewedBy),
		RewardID:            rewards.ID(r.RewardID),
		CreatedAt:           utc(r.CreatedAt),
		UpdatedAt:           utc(r.UpdatedAt),
	}
}

func (s *Store) CreateSuggestion(ctx context.Context, sg rewards.Suggestion) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		row := suggestionRow{
			ID:                  string(sg.ID),
			OrganizationID:      string(sg.OrganizationID),
			Name:                sg.Name,
			Description:         sg.Description,
			Category:            string(sg.Category),
			SuggestedPointsCost: sg.SuggestedPointsCost,
			SuggestedBy:         string(sg.SuggestedBy),
			Status:              string(sg.Status),
			AdminFeedback:       sg.AdminFeedback,
			ReviewedBy:          string(sg.ReviewedBy),
			RewardID:            string(sg.RewardID),
			CreatedAt:           sg.CreatedAt,
			UpdatedAt:           sg.UpdatedAt,
		}
		if err := insertErr("suggestion", sg.ID, s.conn(ctx).Create(&row).Error); err != nil {
			return err
		}
		for _, u := range sg.Votes {
			if err := s.insertVote(ctx, sg.ID, u); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) votesFor(ctx context.Context, ids ...string) (map[string][]points.UserID, error) {
	out := make(map[string][]points.UserID, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []suggestionVoteRow
	if err := s.conn(ctx).Where("suggestion_id IN ?", ids).Order("seq").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load votes: %w", err)
	}
	for _, v := range rows {
		out[v.SuggestionID] = append(out[v.SuggestionID], points.UserID(v.UserID))
	}
	return out, nil
}

func (s *Store) GetSuggestion(ctx context.Context, id rewards.SuggestionID) (rewards.Suggestion, error) {
	var row suggestionRow
	if err := s.conn(ctx).First(&row, "id = ?", string(id)).Error; err != nil {
		return rewards.Suggestion{}, notFound(err, "suggestion", id)
	}
	votes, err := s.votesFor(ctx, row.ID)
	if err != nil {
		return rewards.Suggestion{}, err
	}
	return row.toSuggestion(votes[row.ID]), nil
}

func (s *Store) ListSuggestions(ctx context.Context, org points.OrgID) ([]rewards.Suggestion, error) {
	var rows []suggestionRow
	if err := s.conn(ctx).Where("organization_id = ?", string(org)).Order("seq").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list suggestions: %w", err)
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	votes, err := s.votesFor(ctx, ids...)
	if err != nil {
		return nil, err
	}
	out := make([]rewards.Suggestion, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toSuggestion(votes[r.ID]))
	}
	return out, nil
}

func (s *Store) insertVote(ctx context.Context, id rewards.SuggestionID, user points.UserID) error {
	row := suggestionVoteRow{SuggestionID: string(id), UserID: string(user)}
	return s.conn(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
}

func (s *Store) AddSuggestionVote(ctx context.Context, id rewards.SuggestionID, user points.UserID) (rewards.Suggestion, error) {
	var out rewards.Suggestion
	err := s.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.GetSuggestion(ctx, id); err != nil {
			return err
		}
		if err := s.insertVote(ctx, id, user); err != nil {
			return fmt.Errorf("failed to add vote: %w", err)
		}
		var err error
		out, err = s.GetSuggestion(ctx, id)
		return err
	})
	return out, err
}

func (s *Store) RemoveSuggestionVote(ctx context.Context, id rewards.SuggestionID, user points.UserID) (rewards.Suggestion, error) {
	var out rewards.Suggestion
	err := s.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.GetSuggestion(ctx, id); err != nil {
			return err
		}
		if err := s.conn(ctx).Where("suggestion_id = ? AND user_id = ?", string(id), string(user)).
			Delete(&suggestionVoteRow{}).Error; err != nil {
			return fmt.Errorf("failed to remove vote: %w", err)
		}
		var err error
		out, err = s.GetSuggestion(ctx, id)
		return err
	})
	return out, err
}

func (s *Store) ReviewSuggestion(ctx context.Context, id rewards.SuggestionID, r rewards.SuggestionReview) (rewards.Suggestion, error) {
	var out rewards.Suggestion
	err := s.WithTx(ctx, func(ctx context.Context) error {
		var row suggestionRow
		if err := s.conn(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&row, "id = ?", string(id)).Error; err != nil {
			return notFound(err, "suggestion", id)
		}
		if row.Status != string(rewards.SuggestionPending) {
			return points.Invalid("suggestion", "%s was already %s", id, row.Status)
		}
		err := s.conn(ctx).Model(&suggestionRow{}).Where("id = ?", string(id)).Updates(map[string]any{
			"status":         string(r.Status),
			"admin_feedback": r.AdminFeedback,
			"reviewed_by":    string(r.ReviewedBy),
			"reward_id":      string(r.RewardID),
			"updated_at":     r.At,
		}).Error
		if err != nil {
			return fmt.Errorf("failed to review suggestion: %w", err)
		}
		out, err = s.GetSuggestion(ctx, id)
		return err
	})
	return out, err
}
