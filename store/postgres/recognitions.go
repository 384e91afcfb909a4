package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm/clause"

	"github.com/warp/recognition-engine/budget"
	"github.com/warp/recognition-engine/points"
	"github.com/warp/recognition-engine/recognition"
)

// =============================================================================
// BUDGET CONFIGURATION
// =============================================================================

func (s *Store) ensureConfiguration(ctx context.Context, org points.OrgID) error {
	row := configurationRow{OrganizationID: string(org), YearlyBudget: decimal.Zero}
	return s.conn(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
}

func (s *Store) GetConfiguration(ctx context.Context, org points.OrgID) (budget.Configuration, error) {
	cfg := budget.NewConfiguration(org)
	err := s.WithTx(ctx, func(ctx context.Context) error {
		if err := s.ensureConfiguration(ctx, org); err != nil {
			return err
		}
		var row configurationRow
		if err := s.conn(ctx).First(&row, "organization_id = ?", string(org)).Error; err != nil {
			return err
		}
		cfg.YearlyBudget = row.YearlyBudget
		cfg.UpdatedAt = utc(row.UpdatedAt)

		var cats []categorySettingRow
		if err := s.conn(ctx).Where("organization_id = ?", string(org)).Find(&cats).Error; err != nil {
			return err
		}
		for _, cs := range cats {
			c, err := budget.ParseCategory(cs.Category)
			if err != nil {
				continue
			}
			cfg.CategorySettings[c] = budget.CategorySetting{
				IsActive:      cs.IsActive,
				DefaultPoints: cs.DefaultPoints,
				MaxPoints:     cs.MaxPoints,
			}
		}

		var roles []roleAllocationRow
		if err := s.conn(ctx).Where("organization_id = ?", string(org)).Find(&roles).Error; err != nil {
			return err
		}
		for _, ra := range roles {
			r, err := points.ParseRole(ra.Role)
			if err != nil {
				continue
			}
			cfg.MonthlyAllocations[r] = budget.RoleAllocation{
				PointsPerMonth:          ra.PointsPerMonth,
				MaxPointsPerRecognition: ra.MaxPointsPerRecognition,
			}
		}
		return nil
	})
	if err != nil {
		return budget.Configuration{}, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func (s *Store) updateConfiguration(ctx context.Context, org points.OrgID, write func(ctx context.Context) error) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		if err := s.ensureConfiguration(ctx, org); err != nil {
			return err
		}
		if err := write(ctx); err != nil {
			return err
		}
		return s.conn(ctx).Model(&configurationRow{}).
			Where("organization_id = ?", string(org)).
			Update("updated_at", time.Now().UTC()).Error
	})
}

func (s *Store) UpdateCategorySetting(ctx context.Context, org points.OrgID, c budget.Category, cs budget.CategorySetting) error {
	return s.updateConfiguration(ctx, org, func(ctx context.Context) error {
		row := categorySettingRow{
			OrganizationID: string(org),
			Category:       c.String(),
			IsActive:       cs.IsActive,
			DefaultPoints:  cs.DefaultPoints,
			MaxPoints:      cs.MaxPoints,
		}
		return s.conn(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "organization_id"}, {Name: "category"}},
			DoUpdates: clause.AssignmentColumns([]string{"is_active", "default_points", "max_points"}),
		}).Create(&row).Error
	})
}

func (s *Store) UpdateRoleAllocation(ctx context.Context, org points.OrgID, r points.Role, a budget.RoleAllocation) error {
	return s.updateConfiguration(ctx, org, func(ctx context.Context) error {
		row := roleAllocationRow{
			OrganizationID:          string(org),
			Role:                    r.String(),
			PointsPerMonth:          a.PointsPerMonth,
			MaxPointsPerRecognition: a.MaxPointsPerRecognition,
		}
		return s.conn(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "organization_id"}, {Name: "role"}},
			DoUpdates: clause.AssignmentColumns([]string{"points_per_month", "max_points_per_recognition"}),
		}).Create(&row).Error
	})
}

func (s *Store) UpdateYearlyBudget(ctx context.Context, org points.OrgID, amount decimal.Decimal) error {
	return s.updateConfiguration(ctx, org, func(ctx context.Context) error {
		return s.conn(ctx).Model(&configurationRow{}).
			Where("organization_id = ?", string(org)).
			Update("yearly_budget", amount).Error
	})
}

// =============================================================================
// RECOGNITIONS
// =============================================================================

func (r recognitionRow) toRecognition(kudos []points.UserID) recognition.Recognition {
	c, _ := budget.ParseCategory(r.Category)
	if kudos == nil {
		kudos = []points.UserID{}
	}
	return recognition.Recognition{
		ID:             recognition.ID(r.ID),
		OrganizationID: points.OrgID(r.OrganizationID),
		SenderID:       points.UserID(r.SenderID),
		RecipientID:    points.UserID(r.RecipientID),
		Message:        r.Message,
		Category:       c,
		Points:         r.Points,
		Kudos:          kudos,
		PinnedUntil:    utcPtr(r.PinnedUntil),
		CreatedAt:      utc(r.CreatedAt),
	}
}

func (s *Store) CreateRecognition(ctx context.Context, r recognition.Recognition) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		row := recognitionRow{
			ID:             string(r.ID),
			OrganizationID: string(r.OrganizationID),
			SenderID:       string(r.SenderID),
			RecipientID:    string(r.RecipientID),
			Message:        r.Message,
			Category:       r.Category.String(),
			Points:         r.Points,
			PinnedUntil:    r.PinnedUntil,
			CreatedAt:      r.CreatedAt,
		}
		if err := insertErr("recognition", r.ID, s.conn(ctx).Create(&row).Error); err != nil {
			return err
		}
		for _, u := range r.Kudos {
			if err := s.insertKudos(ctx, r.ID, u); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) kudosFor(ctx context.Context, ids ...string) (map[string][]points.UserID, error) {
	out := make(map[string][]points.UserID, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []kudosRow
	if err := s.conn(ctx).Where("recognition_id IN ?", ids).Order("seq").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load kudos: %w", err)
	}
	for _, k := range rows {
		out[k.RecognitionID] = append(out[k.RecognitionID], points.UserID(k.UserID))
	}
	return out, nil
}

func (s *Store) GetRecognition(ctx context.Context, id recognition.ID) (recognition.Recognition, error) {
	var row recognitionRow
	if err := s.conn(ctx).First(&row, "id = ?", string(id)).Error; err != nil {
		return recognition.Recognition{}, notFound(err, "recognition", id)
	}
	kudos, err := s.kudosFor(ctx, row.ID)
	if err != nil {
		return recognition.Recognition{}, err
	}
	return row.toRecognition(kudos[row.ID]), nil
}

func (s *Store) insertKudos(ctx context.Context, id recognition.ID, user points.UserID) error {
	row := kudosRow{RecognitionID: string(id), UserID: string(user)}
	return s.conn(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
}

func (s *Store) AddKudos(ctx context.Context, id recognition.ID, user points.UserID) (recognition.Recognition, error) {
	var out recognition.Recognition
	err := s.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.GetRecognition(ctx, id); err != nil {
			return err
		}
		if err := s.insertKudos(ctx, id, user); err != nil {
			return fmt.Errorf("failed to add kudos: %w", err)
		}
		var err error
		out, err = s.GetRecognition(ctx, id)
		return err
	})
	return out, err
}

func (s *Store) RemoveKudos(ctx context.Context, id recognition.ID, user points.UserID) (recognition.Recognition, error) {
	var out recognition.Recognition
	err := s.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.GetRecognition(ctx, id); err != nil {
			return err
		}
		if err := s.conn(ctx).Where("recognition_id = ? AND user_id = ?", string(id), string(user)).
			Delete(&kudosRow{}).Error; err != nil {
			return fmt.Errorf("failed to remove kudos: %w", err)
		}
		var err error
		out, err = s.GetRecognition(ctx, id)
		return err
	})
	return out, err
}

func (s *Store) SetPinnedUntil(ctx context.Context, id recognition.ID, until *time.Time) (recognition.Recognition, error) {
	var out recognition.Recognition
	err := s.WithTx(ctx, func(ctx context.Context) error {
		res := s.conn(ctx).Model(&recognitionRow{}).Where("id = ?", string(id)).Update("pinned_until", until)
		if res.Error != nil {
			return fmt.Errorf("failed to pin recognition: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return points.NotFound("recognition", id)
		}
		var err error
		out, err = s.GetRecognition(ctx, id)
		return err
	})
	return out, err
}

func (s *Store) ListRecognitions(ctx context.Context, f recognition.Filter) ([]recognition.Recognition, error) {
	q := s.conn(ctx).Model(&recognitionRow{})
	if f.OrganizationID != "" {
		q = q.Where("organization_id = ?", string(f.OrganizationID))
	}
	if f.SenderID != "" {
		q = q.Where("sender_id = ?", string(f.SenderID))
	}
	if f.RecipientID != "" {
		q = q.Where("recipient_id = ?", string(f.RecipientID))
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at < ?", *f.To)
	}
	var rows []recognitionRow
	if err := q.Order("seq").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list recognitions: %w", err)
	}

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	kudos, err := s.kudosFor(ctx, ids...)
	if err != nil {
		return nil, err
	}
	out := make([]recognition.Recognition, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toRecognition(kudos[r.ID]))
	}
	return out, nil
}

// Leaderboard breaks ties by the recipient's first recognition in seq order.
func (s *Store) Leaderboard(ctx context.Context, org points.OrgID, limit int) ([]recognition.LeaderboardEntry, error) {
	var rows []struct {
		RecipientID string
		Total       int64
		FirstSeen   int64
	}
	q := s.conn(ctx).Model(&recognitionRow{}).
		Select("recipient_id, SUM(points) AS total, MIN(seq) AS first_seen").
		Where("organization_id = ?", string(org)).
		Group("recipient_id").
		Order("total DESC, first_seen ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to build leaderboard: %w", err)
	}
	out := make([]recognition.LeaderboardEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, recognition.LeaderboardEntry{UserID: points.UserID(r.RecipientID), TotalPoints: r.Total})
	}
	return out, nil
}

func (s *Store) CountByRecipient(ctx context.Context, user points.UserID) (int64, error) {
	var n int64
	err := s.conn(ctx).Model(&recognitionRow{}).Where("recipient_id = ?", string(user)).Count(&n).Error
	return n, err
}

func (s *Store) CountBySender(ctx context.Context, user points.UserID) (int64, error) {
	var n int64
	err := s.conn(ctx).Model(&recognitionRow{}).Where("sender_id = ?", string(user)).Count(&n).Error
	return n, err
}

func (s *Store) CountKudosReceived(ctx context.Context, user points.UserID) (int64, error) {
	var n int64
	err := s.conn(ctx).Table("recognition_kudos AS k").
		Joins("JOIN recognitions AS r ON r.id = k.recognition_id").
		Where("r.recipient_id = ?", string(user)).
		Count(&n).Error
	return n, err
}
