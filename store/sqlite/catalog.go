package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/warp/recognition-engine/achievements"
	"github.com/warp/recognition-engine/points"
	"github.com/warp/recognition-engine/rewards"
)

// =============================================================================
// REWARDS
// =============================================================================

const rewardColumns = `id, name, description, category, points_cost, quantity, is_global,
	organization_id, is_active, redemption_count, created_by, created_at, updated_at`

func scanReward(row rowScanner) (rewards.Reward, error) {
	var (
		r                    rewards.Reward
		createdAt, updatedAt string
	)
	if err := row.Scan(&r.ID, &r.Name, &r.Description, &r.Category, &r.PointsCost, &r.Quantity, &r.IsGlobal,
		&r.OrganizationID, &r.IsActive, &r.RedemptionCount, &r.CreatedBy, &createdAt, &updatedAt); err != nil {
		return rewards.Reward{}, err
	}
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	return r, nil
}

func (s *Store) CreateReward(ctx context.Context, r rewards.Reward) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO rewards (`+rewardColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Name, r.Description, r.Category, r.PointsCost, r.Quantity, r.IsGlobal,
		r.OrganizationID, r.IsActive, r.RedemptionCount, r.CreatedBy,
		formatTime(r.CreatedAt), formatTime(r.UpdatedAt))
	return insertErr("reward", r.ID, err)
}

func (s *Store) GetReward(ctx context.Context, id rewards.ID) (rewards.Reward, error) {
	r, err := scanReward(s.q(ctx).QueryRowContext(ctx, `SELECT `+rewardColumns+` FROM rewards WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return rewards.Reward{}, points.NotFound("reward", id)
	}
	if err != nil {
		return rewards.Reward{}, fmt.Errorf("failed to get reward: %w", err)
	}
	return r, nil
}

func (s *Store) queryRewards(ctx context.Context, where string, args ...any) ([]rewards.Reward, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `SELECT `+rewardColumns+` FROM rewards WHERE `+where+` ORDER BY rowid`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rewards: %w", err)
	}
	defer rows.Close()
	var out []rewards.Reward
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) ListGlobalRewards(ctx context.Context) ([]rewards.Reward, error) {
	return s.queryRewards(ctx, `is_global = TRUE`)
}

func (s *Store) ListOrganizationRewards(ctx context.Context, org points.OrgID) ([]rewards.Reward, error) {
	return s.queryRewards(ctx, `is_global = FALSE AND organization_id = ?`, org)
}

func (s *Store) SetRewardActive(ctx context.Context, id rewards.ID, active bool) (rewards.Reward, error) {
	r, err := scanReward(s.q(ctx).QueryRowContext(ctx,
		`UPDATE rewards SET is_active = ?, updated_at = ? WHERE id = ? RETURNING `+rewardColumns,
		active, now(), id))
	if errors.Is(err, sql.ErrNoRows) {
		return rewards.Reward{}, points.NotFound("reward", id)
	}
	return r, err
}

// ClaimRewardUnit is one guarded UPDATE; concurrent claims on the last unit
// cannot both match.
func (s *Store) ClaimRewardUnit(ctx context.Context, id rewards.ID) (rewards.Reward, error) {
	r, err := scanReward(s.q(ctx).QueryRowContext(ctx, `
		UPDATE rewards
		SET quantity = quantity - 1, redemption_count = redemption_count + 1, updated_at = ?
		WHERE id = ? AND is_active = TRUE AND quantity > 0
		RETURNING `+rewardColumns, now(), id))
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return rewards.Reward{}, fmt.Errorf("failed to claim reward: %w", err)
	}
	if _, err := s.GetReward(ctx, id); err != nil {
		return rewards.Reward{}, err
	}
	return rewards.Reward{}, points.ErrRewardUnavailable
}

func scanLink(row rowScanner) (rewards.OrganizationReward, error) {
	var (
		l         rewards.OrganizationReward
		cost, qty sql.NullInt64
		createdAt string
	)
	if err := row.Scan(&l.OrganizationID, &l.RewardID, &cost, &qty, &l.IsActive, &createdAt); err != nil {
		return rewards.OrganizationReward{}, err
	}
	l.CustomPointsCost = intPtr(cost)
	l.CustomQuantity = intPtr(qty)
	l.CreatedAt = parseTime(createdAt)
	return l, nil
}

const linkColumns = `organization_id, reward_id, custom_points_cost, custom_quantity, is_active, created_at`

// UpsertOrganizationReward keeps an existing link's active flag.
func (s *Store) UpsertOrganizationReward(ctx context.Context, l rewards.OrganizationReward) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO organization_rewards (`+linkColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(organization_id, reward_id) DO UPDATE SET
			custom_points_cost = excluded.custom_points_cost,
			custom_quantity = excluded.custom_quantity`,
		l.OrganizationID, l.RewardID, nullInt(l.CustomPointsCost), nullInt(l.CustomQuantity),
		l.IsActive, formatTime(l.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to link reward: %w", err)
	}
	return nil
}

func (s *Store) GetOrganizationReward(ctx context.Context, org points.OrgID, id rewards.ID) (rewards.OrganizationReward, error) {
	l, err := scanLink(s.q(ctx).QueryRowContext(ctx,
		`SELECT `+linkColumns+` FROM organization_rewards WHERE organization_id = ? AND reward_id = ?`, org, id))
	if errors.Is(err, sql.ErrNoRows) {
		return rewards.OrganizationReward{}, points.NotFound("organization reward", id)
	}
	return l, err
}

func (s *Store) ListOrganizationRewardLinks(ctx context.Context, org points.OrgID) ([]rewards.OrganizationReward, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT `+linkColumns+` FROM organization_rewards WHERE organization_id = ? ORDER BY rowid`, org)
	if err != nil {
		return nil, fmt.Errorf("failed to list organization rewards: %w", err)
	}
	defer rows.Close()
	var out []rewards.OrganizationReward
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) SetOrganizationRewardActive(ctx context.Context, org points.OrgID, id rewards.ID, active bool) (rewards.OrganizationReward, error) {
	l, err := scanLink(s.q(ctx).QueryRowContext(ctx, `
		UPDATE organization_rewards SET is_active = ?
		WHERE organization_id = ? AND reward_id = ?
		RETURNING `+linkColumns, active, org, id))
	if errors.Is(err, sql.ErrNoRows) {
		return rewards.OrganizationReward{}, points.NotFound("organization reward", id)
	}
	return l, err
}

func (s *Store) ClaimOrganizationRewardUnit(ctx context.Context, org points.OrgID, id rewards.ID) (rewards.OrganizationReward, error) {
	l, err := scanLink(s.q(ctx).QueryRowContext(ctx, `
		UPDATE organization_rewards
		SET custom_quantity = CASE WHEN custom_quantity IS NULL THEN NULL ELSE custom_quantity - 1 END
		WHERE organization_id = ? AND reward_id = ? AND is_active = TRUE
			AND (custom_quantity IS NULL OR custom_quantity > 0)
		RETURNING `+linkColumns, org, id))
	if err == nil {
		return l, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return rewards.OrganizationReward{}, fmt.Errorf("failed to claim organization reward: %w", err)
	}
	if _, err := s.GetOrganizationReward(ctx, org, id); err != nil {
		return rewards.OrganizationReward{}, err
	}
	return rewards.OrganizationReward{}, points.ErrRewardUnavailable
}

func (s *Store) AppendRedemption(ctx context.Context, r rewards.Redemption) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO redemptions (id, organization_id, reward_id, user_id, points_cost, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.OrganizationID, r.RewardID, r.UserID, r.PointsCost, formatTime(r.CreatedAt))
	return insertErr("redemption", r.ID, err)
}

func (s *Store) ListRedemptions(ctx context.Context, f rewards.RedemptionFilter) ([]rewards.Redemption, error) {
	var (
		where = []string{"1 = 1"}
		args  []any
	)
	if f.OrganizationID != "" {
		where, args = append(where, "organization_id = ?"), append(args, f.OrganizationID)
	}
	if f.UserID != "" {
		where, args = append(where, "user_id = ?"), append(args, f.UserID)
	}
	if f.From != nil {
		where, args = append(where, "created_at >= ?"), append(args, formatTime(*f.From))
	}
	if f.To != nil {
		where, args = append(where, "created_at <= ?"), append(args, formatTime(*f.To))
	}
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT id, organization_id, reward_id, user_id, points_cost, created_at
		FROM redemptions WHERE `+strings.Join(where, " AND ")+` ORDER BY rowid`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list redemptions: %w", err)
	}
	defer rows.Close()
	var out []rewards.Redemption
	for rows.Next() {
		var (
			r         rewards.Redemption
			createdAt string
		)
		if err := rows.Scan(&r.ID, &r.OrganizationID, &r.RewardID, &r.UserID, &r.PointsCost, &createdAt); err != nil {
			return nil, err
		}
		r.CreatedAt = parseTime(createdAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// ACHIEVEMENTS
// =============================================================================

const achievementColumns = `id, name, description, icon, type, threshold, points, organization_id, created_by, created_at`

func scanAchievement(row rowScanner) (achievements.Achievement, error) {
	var (
		a         achievements.Achievement
		createdAt string
	)
	if err := row.Scan(&a.ID, &a.Name, &a.Description, &a.Icon, &a.Type, &a.Threshold, &a.Points,
		&a.OrganizationID, &a.CreatedBy, &createdAt); err != nil {
		return achievements.Achievement{}, err
	}
	a.CreatedAt = parseTime(createdAt)
	return a, nil
}

func (s *Store) CreateAchievement(ctx context.Context, a achievements.Achievement) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO achievements (`+achievementColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.Description, a.Icon, a.Type, a.Threshold, a.Points,
		a.OrganizationID, a.CreatedBy, formatTime(a.CreatedAt))
	return insertErr("achievement", a.ID, err)
}

func (s *Store) GetAchievement(ctx context.Context, id achievements.ID) (achievements.Achievement, error) {
	a, err := scanAchievement(s.q(ctx).QueryRowContext(ctx,
		`SELECT `+achievementColumns+` FROM achievements WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return achievements.Achievement{}, points.NotFound("achievement", id)
	}
	if err != nil {
		return achievements.Achievement{}, fmt.Errorf("failed to get achievement: %w", err)
	}
	return a, nil
}

func (s *Store) ListAchievements(ctx context.Context, org points.OrgID) ([]achievements.Achievement, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT `+achievementColumns+` FROM achievements
		WHERE organization_id = ? OR organization_id = ''
		ORDER BY type, threshold, rowid`, org)
	if err != nil {
		return nil, fmt.Errorf("failed to list achievements: %w", err)
	}
	defer rows.Close()
	var out []achievements.Achievement
	for rows.Next() {
		a, err := scanAchievement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

const userAchievementColumns = `user_id, achievement_id, progress, earned_at, updated_at`

func scanUserAchievement(row rowScanner) (achievements.UserAchievement, error) {
	var (
		ua        achievements.UserAchievement
		earned    sql.NullString
		updatedAt string
	)
	if err := row.Scan(&ua.UserID, &ua.AchievementID, &ua.Progress, &earned, &updatedAt); err != nil {
		return achievements.UserAchievement{}, err
	}
	ua.EarnedAt = timePtr(earned)
	ua.UpdatedAt = parseTime(updatedAt)
	return ua, nil
}

func (s *Store) GetUserAchievement(ctx context.Context, user points.UserID, id achievements.ID) (achievements.UserAchievement, error) {
	ua, err := scanUserAchievement(s.q(ctx).QueryRowContext(ctx,
		`SELECT `+userAchievementColumns+` FROM user_achievements WHERE user_id = ? AND achievement_id = ?`, user, id))
	if errors.Is(err, sql.ErrNoRows) {
		return achievements.UserAchievement{}, points.NotFound("user achievement", id)
	}
	return ua, err
}

func (s *Store) ListUserAchievements(ctx context.Context, user points.UserID) ([]achievements.UserAchievement, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT `+userAchievementColumns+` FROM user_achievements WHERE user_id = ? ORDER BY rowid`, user)
	if err != nil {
		return nil, fmt.Errorf("failed to list user achievements: %w", err)
	}
	defer rows.Close()
	var out []achievements.UserAchievement
	for rows.Next() {
		ua, err := scanUserAchievement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ua)
	}
	return out, rows.Err()
}

// CompleteUserAchievement relies on the upsert's WHERE: a completed row is
// not updated, so zero rows change.
func (s *Store) CompleteUserAchievement(ctx context.Context, user points.UserID, id achievements.ID, at time.Time) (bool, error) {
	ts := formatTime(at)
	res, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO user_achievements (`+userAchievementColumns+`)
		VALUES (?, ?, 100, ?, ?)
		ON CONFLICT(user_id, achievement_id) DO UPDATE SET
			progress = 100,
			earned_at = excluded.earned_at,
			updated_at = excluded.updated_at
		WHERE user_achievements.progress < 100`,
		user, id, ts, ts)
	if err != nil {
		return false, fmt.Errorf("failed to complete achievement: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *Store) UpdateProgress(ctx context.Context, user points.UserID, id achievements.ID, progress int, at time.Time) (int, error) {
	var prev int
	err := s.WithTx(ctx, func(ctx context.Context) error {
		err := s.q(ctx).QueryRowContext(ctx,
			`SELECT progress FROM user_achievements WHERE user_id = ? AND achievement_id = ?`, user, id).Scan(&prev)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if prev >= achievements.CompleteProgress {
			return nil
		}
		_, err = s.q(ctx).ExecContext(ctx, `
			INSERT INTO user_achievements (`+userAchievementColumns+`)
			VALUES (?, ?, ?, NULL, ?)
			ON CONFLICT(user_id, achievement_id) DO UPDATE SET
				progress = excluded.progress,
				updated_at = excluded.updated_at
			WHERE user_achievements.progress < 100`,
			user, id, progress, formatTime(at))
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to update progress: %w", err)
	}
	return prev, nil
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

const notificationColumns = `id, user_id, kind, title, message, data_json, is_read, created_at`

func scanNotification(row rowScanner) (points.Notification, error) {
	var (
		n         points.Notification
		data      sql.NullString
		createdAt string
	)
	if err := row.Scan(&n.ID, &n.UserID, &n.Kind, &n.Title, &n.Message, &data, &n.Read, &createdAt); err != nil {
		return points.Notification{}, err
	}
	if data.Valid && data.String != "" {
		if err := json.Unmarshal([]byte(data.String), &n.Data); err != nil {
			return points.Notification{}, fmt.Errorf("corrupt notification data: %w", err)
		}
	}
	n.CreatedAt = parseTime(createdAt)
	return n, nil
}

func (s *Store) SaveNotification(ctx context.Context, n points.Notification) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET is_read = excluded.is_read`,
		n.ID, n.UserID, n.Kind, n.Title, n.Message, nullString(n.DataJSON()), n.Read, formatTime(n.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save notification: %w", err)
	}
	return nil
}

func (s *Store) GetNotification(ctx context.Context, id string) (points.Notification, error) {
	n, err := scanNotification(s.q(ctx).QueryRowContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return points.Notification{}, points.NotFound("notification", id)
	}
	return n, err
}

func (s *Store) ListNotifications(ctx context.Context, user points.UserID) ([]points.Notification, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE user_id = ? ORDER BY rowid DESC`, user)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()
	var out []points.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) MarkNotificationRead(ctx context.Context, id string) error {
	res, err := s.q(ctx).ExecContext(ctx, `UPDATE notifications SET is_read = TRUE WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return points.NotFound("notification", id)
	}
	return nil
}

func (s *Store) DeleteNotifications(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	_, err := s.q(ctx).ExecContext(ctx, `DELETE FROM notifications WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("failed to delete notifications: %w", err)
	}
	return nil
}

// =============================================================================
// SUGGESTIONS
// =============================================================================

const suggestionColumns = `id, organization_id, name, description, category, suggested_points_cost,
	suggested_by, status, admin_feedback, reviewed_by, reward_id, created_at, updated_at`

func scanSuggestion(row rowScanner) (rewards.Suggestion, error) {
	var (
		sg                   rewards.Suggestion
		createdAt, updatedAt string
	)
	if err := row.Scan(&sg.ID, &sg.OrganizationID, &sg.Name, &sg.Description, &sg.Category,
		&sg.SuggestedPointsCost, &sg.SuggestedBy, &sg.Status, &sg.AdminFeedback, &sg.ReviewedBy,
		&sg.RewardID, &createdAt, &updatedAt); err != nil {
		return rewards.Suggestion{}, err
	}
	sg.CreatedAt = parseTime(createdAt)
	sg.UpdatedAt = parseTime(updatedAt)
	sg.Votes = []points.UserID{}
	return sg, nil
}

func (s *Store) CreateSuggestion(ctx context.Context, sg rewards.Suggestion) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		_, err := s.q(ctx).ExecContext(ctx, `
			INSERT INTO reward_suggestions (`+suggestionColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sg.ID, sg.OrganizationID, sg.Name, sg.Description, sg.Category, sg.SuggestedPointsCost,
			sg.SuggestedBy, sg.Status, sg.AdminFeedback, sg.ReviewedBy, sg.RewardID,
			formatTime(sg.CreatedAt), formatTime(sg.UpdatedAt))
		if err != nil {
			return insertErr("suggestion", sg.ID, err)
		}
		for _, u := range sg.Votes {
			if err := s.insertVote(ctx, sg.ID, u); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) GetSuggestion(ctx context.Context, id rewards.SuggestionID) (rewards.Suggestion, error) {
	sg, err := scanSuggestion(s.q(ctx).QueryRowContext(ctx,
		`SELECT `+suggestionColumns+` FROM reward_suggestions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return rewards.Suggestion{}, points.NotFound("suggestion", id)
	}
	if err != nil {
		return rewards.Suggestion{}, fmt.Errorf("failed to get suggestion: %w", err)
	}
	if sg.Votes, err = s.loadVotes(ctx, id); err != nil {
		return rewards.Suggestion{}, err
	}
	return sg, nil
}

func (s *Store) ListSuggestions(ctx context.Context, org points.OrgID) ([]rewards.Suggestion, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT `+suggestionColumns+` FROM reward_suggestions WHERE organization_id = ? ORDER BY rowid`, org)
	if err != nil {
		return nil, fmt.Errorf("failed to list suggestions: %w", err)
	}
	var out []rewards.Suggestion
	for rows.Next() {
		sg, err := scanSuggestion(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, sg)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Votes load after the cursor closes; the pool has a single connection.
	for i := range out {
		if out[i].Votes, err = s.loadVotes(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) loadVotes(ctx context.Context, id rewards.SuggestionID) ([]points.UserID, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT user_id FROM suggestion_votes WHERE suggestion_id = ? ORDER BY rowid`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load votes: %w", err)
	}
	defer rows.Close()
	out := []points.UserID{}
	for rows.Next() {
		var u points.UserID
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) insertVote(ctx context.Context, id rewards.SuggestionID, user points.UserID) error {
	_, err := s.q(ctx).ExecContext(ctx,
		`INSERT OR IGNORE INTO suggestion_votes (suggestion_id, user_id, created_at) VALUES (?, ?, ?)`,
		id, user, now())
	if err != nil {
		return fmt.Errorf("failed to add vote: %w", err)
	}
	return nil
}

func (s *Store) AddSuggestionVote(ctx context.Context, id rewards.SuggestionID, user points.UserID) (rewards.Suggestion, error) {
	var out rewards.Suggestion
	err := s.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.GetSuggestion(ctx, id); err != nil {
			return err
		}
		if err := s.insertVote(ctx, id, user); err != nil {
			return err
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
		if _, err := s.q(ctx).ExecContext(ctx,
			`DELETE FROM suggestion_votes WHERE suggestion_id = ? AND user_id = ?`, id, user); err != nil {
			return fmt.Errorf("failed to remove vote: %w", err)
		}
		var err error
		out, err = s.GetSuggestion(ctx, id)
		return err
	})
	return out, err
}

// ReviewSuggestion is one guarded UPDATE on status, like ClaimRewardUnit.
func (s *Store) ReviewSuggestion(ctx context.Context, id rewards.SuggestionID, r rewards.SuggestionReview) (rewards.Suggestion, error) {
	var out rewards.Suggestion
	err := s.WithTx(ctx, func(ctx context.Context) error {
		res, err := s.q(ctx).ExecContext(ctx, `
			UPDATE reward_suggestions
			SET status = ?, admin_feedback = ?, reviewed_by = ?, reward_id = ?, updated_at = ?
			WHERE id = ? AND status = ?`,
			r.Status, r.AdminFeedback, r.ReviewedBy, r.RewardID, formatTime(r.At),
			id, rewards.SuggestionPending)
		if err != nil {
			return fmt.Errorf("failed to review suggestion: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		current, err := s.GetSuggestion(ctx, id)
		if err != nil {
			return err
		}
		if n == 0 {
			return points.Invalid("suggestion", "%s was already %s", id, current.Status)
		}
		out = current
		return nil
	})
	return out, err
}
