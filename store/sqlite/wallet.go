package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/warp/recognition-engine/points"
)

// =============================================================================
// USERS
// =============================================================================

const userColumns = `id, organization_id, email, first_name, last_name, department, role,
	allocation_points, personal_points, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (points.User, error) {
	var (
		u                    points.User
		role                 string
		createdAt, updatedAt string
	)
	if err := row.Scan(&u.ID, &u.OrganizationID, &u.Email, &u.FirstName, &u.LastName, &u.Department,
		&role, &u.Wallet.Allocation, &u.Wallet.Personal, &createdAt, &updatedAt); err != nil {
		return points.User{}, err
	}
	r, err := points.ParseRole(role)
	if err != nil {
		return points.User{}, err
	}
	u.Role = r
	u.CreatedAt = parseTime(createdAt)
	u.UpdatedAt = parseTime(updatedAt)
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id points.UserID) (points.User, error) {
	u, err := scanUser(s.q(ctx).QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return points.User{}, points.NotFound("user", id)
	}
	if err != nil {
		return points.User{}, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// UpsertUser never writes the pools; new users start at zero.
func (s *Store) UpsertUser(ctx context.Context, u points.User) (points.User, error) {
	ts := now()
	created := ts
	if !u.CreatedAt.IsZero() {
		created = formatTime(u.CreatedAt)
	}
	query := `
		INSERT INTO users (id, organization_id, email, first_name, last_name, department, role,
			allocation_points, personal_points, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, 0, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			organization_id = excluded.organization_id,
			email = excluded.email,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			department = excluded.department,
			role = excluded.role,
			updated_at = excluded.updated_at
		RETURNING ` + userColumns
	out, err := scanUser(s.q(ctx).QueryRowContext(ctx, query,
		u.ID, u.OrganizationID, u.Email, u.FirstName, u.LastName, u.Department, u.Role.String(), created, ts))
	if err != nil {
		return points.User{}, fmt.Errorf("failed to upsert user: %w", err)
	}
	return out, nil
}

func (s *Store) ListUsersByOrganization(ctx context.Context, org points.OrgID) ([]points.User, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE organization_id = ? ORDER BY rowid`, org)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var out []points.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) CountUsersByOrganization(ctx context.Context, org points.OrgID) (int64, error) {
	var n int64
	err := s.q(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE organization_id = ?`, org).Scan(&n)
	return n, err
}

// =============================================================================
// ORGANIZATIONS
// =============================================================================

func scanOrganization(row rowScanner) (points.Organization, error) {
	var (
		o         points.Organization
		createdAt string
	)
	if err := row.Scan(&o.ID, &o.Name, &o.Slug, &createdAt); err != nil {
		return points.Organization{}, err
	}
	o.CreatedAt = parseTime(createdAt)
	return o, nil
}

func (s *Store) getOrganization(ctx context.Context, where string, arg any) (points.Organization, error) {
	o, err := scanOrganization(s.q(ctx).QueryRowContext(ctx,
		`SELECT id, name, slug, created_at FROM organizations WHERE `+where+` = ?`, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return points.Organization{}, points.NotFound("organization", arg)
	}
	if err != nil {
		return points.Organization{}, fmt.Errorf("failed to get organization: %w", err)
	}
	return o, nil
}

func (s *Store) GetOrganization(ctx context.Context, id points.OrgID) (points.Organization, error) {
	return s.getOrganization(ctx, "id", id)
}

func (s *Store) GetOrganizationBySlug(ctx context.Context, slug string) (points.Organization, error) {
	return s.getOrganization(ctx, "slug", slug)
}

func (s *Store) CreateOrganization(ctx context.Context, o points.Organization) error {
	_, err := s.q(ctx).ExecContext(ctx,
		`INSERT INTO organizations (id, name, slug, created_at) VALUES (?, ?, ?, ?)`,
		o.ID, o.Name, o.Slug, formatTime(o.CreatedAt))
	return insertErr("organization", o.Slug, err)
}

func (s *Store) ListOrganizations(ctx context.Context) ([]points.Organization, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `SELECT id, name, slug, created_at FROM organizations ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	var out []points.Organization
	for rows.Next() {
		o, err := scanOrganization(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
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

// AdjustPool applies delta in one guarded UPDATE.
func (s *Store) AdjustPool(ctx context.Context, user points.UserID, pool points.Pool, delta int64) (int64, error) {
	col, err := poolColumn(pool)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf(`
		UPDATE users SET %[1]s = %[1]s + ?, updated_at = ?
		WHERE id = ? AND %[1]s + ? >= 0
		RETURNING %[1]s`, col)

	var after int64
	err = s.q(ctx).QueryRowContext(ctx, query, delta, now(), user, delta).Scan(&after)
	if err == nil {
		return after, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to adjust %s: %w", pool, err)
	}

	// Guard failed: either the user is missing or the pool is short.
	var current int64
	err = s.q(ctx).QueryRowContext(ctx, `SELECT `+col+` FROM users WHERE id = ?`, user).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, points.NotFound("user", user)
	}
	if err != nil {
		return 0, err
	}
	return 0, &points.InsufficientPointsError{UserID: user, Pool: pool, Available: current, Requested: -delta}
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
		err := s.q(ctx).QueryRowContext(ctx, `SELECT `+col+` FROM users WHERE id = ?`, user).Scan(&prev)
		if errors.Is(err, sql.ErrNoRows) {
			return points.NotFound("user", user)
		}
		if err != nil {
			return err
		}
		_, err = s.q(ctx).ExecContext(ctx, `UPDATE users SET `+col+` = ?, updated_at = ? WHERE id = ?`, value, now(), user)
		return err
	})
	return prev, err
}

func (s *Store) AppendTransaction(ctx context.Context, tx points.Transaction) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO wallet_transactions
		(id, user_id, pool, tx_type, delta, balance_after, reference_id, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.UserID, tx.Pool, tx.Type, tx.Delta, tx.BalanceAfter,
		nullString(tx.ReferenceID), nullString(tx.Reason), formatTime(tx.CreatedAt))
	return insertErr("wallet transaction", tx.ID, err)
}

func (s *Store) ListTransactions(ctx context.Context, user points.UserID, limit int) ([]points.Transaction, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT id, user_id, pool, tx_type, delta, balance_after, reference_id, reason, created_at
		FROM wallet_transactions WHERE user_id = ?
		ORDER BY rowid DESC LIMIT ?`, user, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var out []points.Transaction
	for rows.Next() {
		var (
			tx        points.Transaction
			ref, why  sql.NullString
			createdAt string
		)
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.Pool, &tx.Type, &tx.Delta, &tx.BalanceAfter, &ref, &why, &createdAt); err != nil {
			return nil, err
		}
		tx.ReferenceID = ref.String
		tx.Reason = why.String
		tx.CreatedAt = parseTime(createdAt)
		out = append(out, tx)
	}
	return out, rows.Err()
}
