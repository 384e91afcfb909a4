package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/recognition-engine/budget"
	"github.com/warp/recognition-engine/points"
	"github.com/warp/recognition-engine/recognition"
)

// =============================================================================
// BUDGET CONFIGURATION
// =============================================================================

func (s *Store) ensureConfiguration(ctx context.Context, org points.OrgID) error {
	_, err := s.q(ctx).ExecContext(ctx,
		`INSERT OR IGNORE INTO configurations (organization_id, yearly_budget, updated_at) VALUES (?, '0', ?)`,
		org, now())
	return err
}

func (s *Store) GetConfiguration(ctx context.Context, org points.OrgID) (budget.Configuration, error) {
	cfg := budget.NewConfiguration(org)
	err := s.WithTx(ctx, func(ctx context.Context) error {
		if err := s.ensureConfiguration(ctx, org); err != nil {
			return err
		}

		var yearly, updatedAt string
		if err := s.q(ctx).QueryRowContext(ctx,
			`SELECT yearly_budget, updated_at FROM configurations WHERE organization_id = ?`, org,
		).Scan(&yearly, &updatedAt); err != nil {
			return err
		}
		amount, err := decimal.NewFromString(yearly)
		if err != nil {
			return fmt.Errorf("corrupt yearly budget %q: %w", yearly, err)
		}
		cfg.YearlyBudget = amount
		cfg.UpdatedAt = parseTime(updatedAt)

		if err := s.loadCategorySettings(ctx, &cfg); err != nil {
			return err
		}
		return s.loadRoleAllocations(ctx, &cfg)
	})
	if err != nil {
		return budget.Configuration{}, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func (s *Store) loadCategorySettings(ctx context.Context, cfg *budget.Configuration) error {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT category, is_active, default_points, max_points FROM category_settings WHERE organization_id = ?`,
		cfg.OrganizationID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			name string
			cs   budget.CategorySetting
		)
		if err := rows.Scan(&name, &cs.IsActive, &cs.DefaultPoints, &cs.MaxPoints); err != nil {
			return err
		}
		c, err := budget.ParseCategory(name)
		if err != nil {
			// A category dropped from the enum; ignore its row.
			continue
		}
		cfg.CategorySettings[c] = cs
	}
	return rows.Err()
}

func (s *Store) loadRoleAllocations(ctx context.Context, cfg *budget.Configuration) error {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT role, points_per_month, max_points_per_recognition FROM role_allocations WHERE organization_id = ?`,
		cfg.OrganizationID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			name string
			ra   budget.RoleAllocation
		)
		if err := rows.Scan(&name, &ra.PointsPerMonth, &ra.MaxPointsPerRecognition); err != nil {
			return err
		}
		r, err := points.ParseRole(name)
		if err != nil {
			continue
		}
		cfg.MonthlyAllocations[r] = ra
	}
	return rows.Err()
}

func (s *Store) updateConfiguration(ctx context.Context, org points.OrgID, query string, args ...any) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		if err := s.ensureConfiguration(ctx, org); err != nil {
			return err
		}
		if _, err := s.q(ctx).ExecContext(ctx, query, args...); err != nil {
			return err
		}
		_, err := s.q(ctx).ExecContext(ctx,
			`UPDATE configurations SET updated_at = ? WHERE organization_id = ?`, now(), org)
		return err
	})
}

func (s *Store) UpdateCategorySetting(ctx context.Context, org points.OrgID, c budget.Category, cs budget.CategorySetting) error {
	return s.updateConfiguration(ctx, org, `
		INSERT INTO category_settings (organization_id, category, is_active, default_points, max_points)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(organization_id, category) DO UPDATE SET
			is_active = excluded.is_active,
			default_points = excluded.default_points,
			max_points = excluded.max_points`,
		org, c.String(), cs.IsActive, cs.DefaultPoints, cs.MaxPoints)
}

func (s *Store) UpdateRoleAllocation(ctx context.Context, org points.OrgID, r points.Role, a budget.RoleAllocation) error {
	return s.updateConfiguration(ctx, org, `
		INSERT INTO role_allocations (organization_id, role, points_per_month, max_points_per_recognition)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(organization_id, role) DO UPDATE SET
			points_per_month = excluded.points_per_month,
			max_points_per_recognition = excluded.max_points_per_recognition`,
		org, r.String(), a.PointsPerMonth, a.MaxPointsPerRecognition)
}

func (s *Store) UpdateYearlyBudget(ctx context.Context, org points.OrgID, amount decimal.Decimal) error {
	return s.updateConfiguration(ctx, org,
		`UPDATE configurations SET yearly_budget = ? WHERE organization_id = ?`, amount.String(), org)
}

// =============================================================================
// RECOGNITIONS
// =============================================================================

const recognitionColumns = `id, organization_id, sender_id, recipient_id, message, category, points, pinned_until, created_at`

func scanRecognition(row rowScanner) (recognition.Recognition, error) {
	var (
		r         recognition.Recognition
		category  string
		pinned    sql.NullString
		createdAt string
	)
	if err := row.Scan(&r.ID, &r.OrganizationID, &r.SenderID, &r.RecipientID, &r.Message,
		&category, &r.Points, &pinned, &createdAt); err != nil {
		return recognition.Recognition{}, err
	}
	c, err := budget.ParseCategory(category)
	if err != nil {
		return recognition.Recognition{}, err
	}
	r.Category = c
	r.PinnedUntil = timePtr(pinned)
	r.CreatedAt = parseTime(createdAt)
	r.Kudos = []points.UserID{}
	return r, nil
}

func (s *Store) CreateRecognition(ctx context.Context, r recognition.Recognition) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO recognitions (`+recognitionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.OrganizationID, r.SenderID, r.RecipientID, r.Message, r.Category.String(),
		r.Points, nullTime(r.PinnedUntil), formatTime(r.CreatedAt))
	if err != nil {
		return insertErr("recognition", r.ID, err)
	}
	for _, u := range r.Kudos {
		if _, err := s.insertKudos(ctx, r.ID, u); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) GetRecognition(ctx context.Context, id recognition.ID) (recognition.Recognition, error) {
	r, err := scanRecognition(s.q(ctx).QueryRowContext(ctx,
		`SELECT `+recognitionColumns+` FROM recognitions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return recognition.Recognition{}, points.NotFound("recognition", id)
	}
	if err != nil {
		return recognition.Recognition{}, fmt.Errorf("failed to get recognition: %w", err)
	}
	if r.Kudos, err = s.loadKudos(ctx, id); err != nil {
		return recognition.Recognition{}, err
	}
	return r, nil
}

func (s *Store) loadKudos(ctx context.Context, id recognition.ID) ([]points.UserID, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT user_id FROM recognition_kudos WHERE recognition_id = ? ORDER BY rowid`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load kudos: %w", err)
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

func (s *Store) insertKudos(ctx context.Context, id recognition.ID, user points.UserID) (sql.Result, error) {
	return s.q(ctx).ExecContext(ctx,
		`INSERT OR IGNORE INTO recognition_kudos (recognition_id, user_id, created_at) VALUES (?, ?, ?)`,
		id, user, now())
}

func (s *Store) AddKudos(ctx context.Context, id recognition.ID, user points.UserID) (recognition.Recognition, error) {
	var out recognition.Recognition
	err := s.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.GetRecognition(ctx, id); err != nil {
			return err
		}
		if _, err := s.insertKudos(ctx, id, user); err != nil {
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
		if _, err := s.q(ctx).ExecContext(ctx,
			`DELETE FROM recognition_kudos WHERE recognition_id = ? AND user_id = ?`, id, user); err != nil {
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
		res, err := s.q(ctx).ExecContext(ctx,
			`UPDATE recognitions SET pinned_until = ? WHERE id = ?`, nullTime(until), id)
		if err != nil {
			return fmt.Errorf("failed to pin recognition: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return points.NotFound("recognition", id)
		}
		out, err = s.GetRecognition(ctx, id)
		return err
	})
	return out, err
}

func (s *Store) ListRecognitions(ctx context.Context, f recognition.Filter) ([]recognition.Recognition, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		where = append(where, clause)
		args = append(args, arg)
	}
	if f.OrganizationID != "" {
		add("organization_id = ?", f.OrganizationID)
	}
	if f.SenderID != "" {
		add("sender_id = ?", f.SenderID)
	}
	if f.RecipientID != "" {
		add("recipient_id = ?", f.RecipientID)
	}
	if f.From != nil {
		add("created_at >= ?", formatTime(*f.From))
	}
	if f.To != nil {
		add("created_at < ?", formatTime(*f.To))
	}
	query := `SELECT ` + recognitionColumns + ` FROM recognitions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY rowid`

	var out []recognition.Recognition
	err := s.WithTx(ctx, func(ctx context.Context) error {
		rows, err := s.q(ctx).QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to list recognitions: %w", err)
		}
		for rows.Next() {
			r, err := scanRecognition(rows)
			if err != nil {
				rows.Close()
				return err
			}
			out = append(out, r)
		}
		if err := rows.Close(); err != nil {
			return err
		}
		if err := rows.Err(); err != nil {
			return err
		}
		// Kudos are loaded after the cursor is closed: the pool has one connection.
		for i := range out {
			if out[i].Kudos, err = s.loadKudos(ctx, out[i].ID); err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

// Leaderboard breaks ties by the recipient's first recognition in storage order.
func (s *Store) Leaderboard(ctx context.Context, org points.OrgID, limit int) ([]recognition.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT recipient_id, SUM(points) AS total, MIN(rowid) AS first_seen
		FROM recognitions
		WHERE organization_id = ?
		GROUP BY recipient_id
		ORDER BY total DESC, first_seen ASC
		LIMIT ?`, org, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to build leaderboard: %w", err)
	}
	defer rows.Close()

	var out []recognition.LeaderboardEntry
	for rows.Next() {
		var (
			e     recognition.LeaderboardEntry
			first int64
		)
		if err := rows.Scan(&e.UserID, &e.TotalPoints, &first); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) count(ctx context.Context, query string, args ...any) (int64, error) {
	var n int64
	if err := s.q(ctx).QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count: %w", err)
	}
	return n, nil
}

func (s *Store) CountByRecipient(ctx context.Context, user points.UserID) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM recognitions WHERE recipient_id = ?`, user)
}

func (s *Store) CountBySender(ctx context.Context, user points.UserID) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM recognitions WHERE sender_id = ?`, user)
}

func (s *Store) CountKudosReceived(ctx context.Context, user points.UserID) (int64, error) {
	return s.count(ctx, `
		SELECT COUNT(*) FROM recognition_kudos k
		JOIN recognitions r ON r.id = k.recognition_id
		WHERE r.recipient_id = ?`, user)
}
