package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/warp/recognition-engine/points"
)

// =============================================================================
// USERS
// =============================================================================

func (r userRow) toUser() points.User {
	role, _ := points.ParseRole(r.Role)
	return points.User{
		ID:             points.UserID(r.ID),
		OrganizationID: points.OrgID(r.OrganizationID),
		Email:          r.Email,
		FirstName:      r.FirstName,
		LastName:       r.LastName,
		Department:     r.Department,
		Role:           role,
		Wallet:         points.Balance{Allocation: r.AllocationPoints, Personal: r.PersonalPoints},
		CreatedAt:      utc(r.CreatedAt),
		UpdatedAt:      utc(r.UpdatedAt),
	}
}

func (s *Store) GetUser(ctx context.Context, id points.UserID) (points.User, error) {
	var row userRow
	if err := s.conn(ctx).First(&row, "id = ?", string(id)).Error; err != nil {
		return points.User{}, notFound(err, "user", id)
	}
	return row.toUser(), nil
}

// UpsertUser never writes the pools; new users start at zero.
func (s *Store) UpsertUser(ctx context.Context, u points.User) (points.User, error) {
	row := userRow{
		ID:             string(u.ID),
		OrganizationID: string(u.OrganizationID),
		Email:          u.Email,
		FirstName:      u.FirstName,
		LastName:       u.LastName,
		Department:     u.Department,
		Role:           u.Role.String(),
		CreatedAt:      u.CreatedAt,
	}
	err := s.conn(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"organization_id", "email", "first_name", "last_name", "department", "role", "updated_at",
		}),
	}).Create(&row).Error
	if err != nil {
		return points.User{}, fmt.Errorf("failed to upsert user: %w", err)
	}
	return s.GetUser(ctx, u.ID)
}

func (s *Store) ListUsersByOrganization(ctx context.Context, org points.OrgID) ([]points.User, error) {
	var rows []userRow
	if err := s.conn(ctx).Where("organization_id = ?", string(org)).Order("seq").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	out := make([]points.User, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toUser())
	}
	return out, nil
}

func (s *Store) CountUsersByOrganization(ctx context.Context, org points.OrgID) (int64, error) {
	var n int64
	err := s.conn(ctx).Model(&userRow{}).Where("organization_id = ?", string(org)).Count(&n).Error
	return n, err
}

// =============================================================================
// ORGANIZATIONS
// =============================================================================

func (r organizationRow) toOrganization() points.Organization {
	return points.Organization{
		ID:        points.OrgID(r.ID),
		Name:      r.Name,
		Slug:      r.Slug,
		CreatedAt: utc(r.CreatedAt),
	}
}

func (s *Store) GetOrganization(ctx context.Context, id points.OrgID) (points.Organization, error) {
	var row organizationRow
	if err := s.conn(ctx).First(&row, "id = ?", string(id)).Error; err != nil {
		return points.Organization{}, notFound(err, "organization", id)
	}
	return row.toOrganization(), nil
}

func (s *Store) GetOrganizationBySlug(ctx context.Context, slug string) (points.Organization, error) {
	var row organizationRow
	if err := s.conn(ctx).First(&row, "slug = ?", slug).Error; err != nil {
		return points.Organization{}, notFound(err, "organization", slug)
	}
	return row.toOrganization(), nil
}

func (s *Store) CreateOrganization(ctx context.Context, o points.Organization) error {
	row := organizationRow{ID: string(o.ID), Name: o.Name, Slug: o.Slug, CreatedAt: o.CreatedAt}
	return insertErr("organization", o.Slug, s.conn(ctx).Create(&row).Error)
}

func (s *Store) ListOrganizations(ctx context.Context) ([]points.Organization, error) {
	var rows []organizationRow
	if err := s.conn(ctx).Order("seq").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	out := make([]points.Organization, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toOrganization())
	}
	return out, nil
}

// =============================================================================
// WALLET
// =============================================================================

func poolColumn(p points.Pool) (string, error) {
	switch p {
	case points.PoolAllocation:
		return "allocation_points", nil
	case points.PoolPersonal:
		return "personal_points", nil
	}
	return "", points.Invalid("pool", "unknown pool %q", p)
}

// lockUser reads the user row with FOR UPDATE. ctx must carry a transaction.
func (s *Store) lockUser(ctx context.Context, user points.UserID) (userRow, error) {
	var row userRow
	err := s.conn(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&row, "id = ?", string(user)).Error
	if err != nil {
		return userRow{}, notFound(err, "user", user)
	}
	return row, nil
}

func (s *Store) AdjustPool(ctx context.Context, user points.UserID, pool points.Pool, delta int64) (int64, error) {
	col, err := poolColumn(pool)
	if err != nil {
		return 0, err
	}
	var after int64
	err = s.WithTx(ctx, func(ctx context.Context) error {
		row, err := s.lockUser(ctx, user)
		if err != nil {
			return err
		}
		current := row.toUser().Wallet.Of(pool)
		if current+delta < 0 {
			return &points.InsufficientPointsError{UserID: user, Pool: pool, Available: current, Requested: -delta}
		}
		after = current + delta
		return s.conn(ctx).Model(&userRow{}).Where("id = ?", string(user)).Updates(map[string]any{
			col:          gorm.Expr(col+" + ?", delta),
			"updated_at": time.Now().UTC(),
		}).Error
	})
	return after, err
}

func (s *Store) SetPool(ctx context.Context, user points.UserID, pool points.Pool, value int64) (int64, error) {
	col, err := poolColumn(pool)
	if err != nil {
		return 0, err
	}
	if value < 0 {
		return 0, points.Invalid("value", "pool cannot be negative")
	}
	var prev int64
	err = s.WithTx(ctx, func(ctx context.Context) error {
		row, err := s.lockUser(ctx, user)
		if err != nil {
			return err
		}
		prev = row.toUser().Wallet.Of(pool)
		return s.conn(ctx).Model(&userRow{}).Where("id = ?", string(user)).Updates(map[string]any{
			col:          value,
			"updated_at": time.Now().UTC(),
		}).Error
	})
	return prev, err
}

func (s *Store) AppendTransaction(ctx context.Context, tx points.Transaction) error {
	row := walletTxRow{
		ID:           string(tx.ID),
		UserID:       string(tx.UserID),
		Pool:         string(tx.Pool),
		TxType:       string(tx.Type),
		Delta:        tx.Delta,
		BalanceAfter: tx.BalanceAfter,
		ReferenceID:  tx.ReferenceID,
		Reason:       tx.Reason,
		CreatedAt:    tx.CreatedAt,
	}
	return insertErr("wallet transaction", tx.ID, s.conn(ctx).Create(&row).Error)
}

func (s *Store) ListTransactions(ctx context.Context, user points.UserID, limit int) ([]points.Transaction, error) {
	q := s.conn(ctx).Where("user_id = ?", string(user)).Order("seq DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []walletTxRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	out := make([]points.Transaction, 0, len(rows))
	for _, r := range rows {
		out = append(out, points.Transaction{
			ID:           points.TransactionID(r.ID),
			UserID:       points.UserID(r.UserID),
			Pool:         points.Pool(r.Pool),
			Type:         points.TransactionType(r.TxType),
			Delta:        r.Delta,
			BalanceAfter: r.BalanceAfter,
			ReferenceID:  r.ReferenceID,
			Reason:       r.Reason,
			CreatedAt:    utc(r.CreatedAt),
		})
	}
	return out, nil
}
