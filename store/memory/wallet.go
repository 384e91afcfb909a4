package memory

import (
	"context"
	"time"

	"github.com/warp/recognition-engine/points"
)

// =============================================================================
// USERS
// =============================================================================

func (s *Store) GetUser(ctx context.Context, id points.UserID) (points.User, error) {
	defer s.lock(ctx)()
	u, ok := s.users[id]
	if !ok {
		return points.User{}, points.NotFound("user", id)
	}
	return u, nil
}

func (s *Store) UpsertUser(ctx context.Context, u points.User) (points.User, error) {
	defer s.lock(ctx)()
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = time.Now().UTC()
	}
	prev, exists := s.users[u.ID]
	if exists {
		u.Wallet = prev.Wallet
		u.CreatedAt = prev.CreatedAt
		s.onRollback(ctx, func() { s.users[u.ID] = prev })
	} else {
		u.Wallet = points.Balance{}
		if u.CreatedAt.IsZero() {
			u.CreatedAt = u.UpdatedAt
		}
		n := len(s.userOrder)
		s.userOrder = append(s.userOrder, u.ID)
		s.onRollback(ctx, func() {
			delete(s.users, u.ID)
			s.userOrder = s.userOrder[:n]
		})
	}
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) ListUsersByOrganization(ctx context.Context, org points.OrgID) ([]points.User, error) {
	defer s.lock(ctx)()
	var out []points.User
	for _, id := range s.userOrder {
		if u := s.users[id]; u.OrganizationID == org {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *Store) CountUsersByOrganization(ctx context.Context, org points.OrgID) (int64, error) {
	users, err := s.ListUsersByOrganization(ctx, org)
	return int64(len(users)), err
}

// =============================================================================
// ORGANIZATIONS
// =============================================================================

func (s *Store) GetOrganization(ctx context.Context, id points.OrgID) (points.Organization, error) {
	defer s.lock(ctx)()
	o, ok := s.orgs[id]
	if !ok {
		return points.Organization{}, points.NotFound("organization", id)
	}
	return o, nil
}

func (s *Store) GetOrganizationBySlug(ctx context.Context, slug string) (points.Organization, error) {
	defer s.lock(ctx)()
	for _, id := range s.orgOrder {
		if o := s.orgs[id]; o.Slug == slug {
			return o, nil
		}
	}
	return points.Organization{}, points.NotFound("organization", slug)
}

func (s *Store) CreateOrganization(ctx context.Context, o points.Organization) error {
	defer s.lock(ctx)()
	if _, ok := s.orgs[o.ID]; ok {
		return points.Invalid("organization", "id %s already exists", o.ID)
	}
	for _, id := range s.orgOrder {
		if s.orgs[id].Slug == o.Slug {
			return points.Invalid("organization", "slug %q already exists", o.Slug)
		}
	}
	n := len(s.orgOrder)
	s.orgs[o.ID] = o
	s.orgOrder = append(s.orgOrder, o.ID)
	s.onRollback(ctx, func() {
		delete(s.orgs, o.ID)
		s.orgOrder = s.orgOrder[:n]
	})
	return nil
}

func (s *Store) ListOrganizations(ctx context.Context) ([]points.Organization, error) {
	defer s.lock(ctx)()
	out := make([]points.Organization, 0, len(s.orgOrder))
	for _, id := range s.orgOrder {
		out = append(out, s.orgs[id])
	}
	return out, nil
}

// =============================================================================
// WALLET
// =============================================================================

func (s *Store) AdjustPool(ctx context.Context, user points.UserID, pool points.Pool, delta int64) (int64, error) {
	defer s.lock(ctx)()
	u, ok := s.users[user]
	if !ok {
		return 0, points.NotFound("user", user)
	}
	current := u.Wallet.Of(pool)
	if current+delta < 0 {
		return 0, &points.InsufficientPointsError{UserID: user, Pool: pool, Available: current, Requested: -delta}
	}
	return s.writePool(ctx, u, pool, current+delta), nil
}

func (s *Store) SetPool(ctx context.Context, user points.UserID, pool points.Pool, value int64) (int64, error) {
	defer s.lock(ctx)()
	if value < 0 {
		return 0, points.Invalid("value", "pool cannot be negative")
	}
	u, ok := s.users[user]
	if !ok {
		return 0, points.NotFound("user", user)
	}
	prev := u.Wallet.Of(pool)
	s.writePool(ctx, u, pool, value)
	return prev, nil
}

func (s *Store) writePool(ctx context.Context, u points.User, pool points.Pool, value int64) int64 {
	prev := u
	if pool == points.PoolAllocation {
		u.Wallet.Allocation = value
	} else {
		u.Wallet.Personal = value
	}
	s.users[u.ID] = u
	s.onRollback(ctx, func() { s.users[prev.ID] = prev })
	return value
}

func (s *Store) AppendTransaction(ctx context.Context, tx points.Transaction) error {
	defer s.lock(ctx)()
	n := len(s.walletTxs[tx.UserID])
	s.walletTxs[tx.UserID] = append(s.walletTxs[tx.UserID], tx)
	s.onRollback(ctx, func() { s.walletTxs[tx.UserID] = s.walletTxs[tx.UserID][:n] })
	return nil
}

func (s *Store) ListTransactions(ctx context.Context, user points.UserID, limit int) ([]points.Transaction, error) {
	defer s.lock(ctx)()
	txs := s.walletTxs[user]
	out := make([]points.Transaction, 0, len(txs))
	for i := len(txs) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, txs[i])
	}
	return out, nil
}
