package memory

import (
	"context"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/recognition-engine/budget"
	"github.com/warp/recognition-engine/points"
	"github.com/warp/recognition-engine/recognition"
)

// =============================================================================
// BUDGET CONFIGURATION
// =============================================================================

func (s *Store) GetConfiguration(ctx context.Context, org points.OrgID) (budget.Configuration, error) {
	defer s.lock(ctx)()
	return s.configLocked(ctx, org), nil
}

func (s *Store) configLocked(ctx context.Context, org points.OrgID) budget.Configuration {
	cfg, ok := s.configs[org]
	if !ok {
		cfg = budget.NewConfiguration(org)
		s.configs[org] = cfg
		s.onRollback(ctx, func() { delete(s.configs, org) })
	}
	return cfg
}

func (s *Store) updateConfig(ctx context.Context, org points.OrgID, mutate func(*budget.Configuration)) {
	prev := s.configLocked(ctx, org)
	next := prev
	mutate(&next)
	next.UpdatedAt = time.Now().UTC()
	s.configs[org] = next
	s.onRollback(ctx, func() { s.configs[org] = prev })
}

func (s *Store) UpdateCategorySetting(ctx context.Context, org points.OrgID, c budget.Category, setting budget.CategorySetting) error {
	defer s.lock(ctx)()
	s.updateConfig(ctx, org, func(cfg *budget.Configuration) { cfg.CategorySettings[c] = setting })
	return nil
}

func (s *Store) UpdateRoleAllocation(ctx context.Context, org points.OrgID, r points.Role, a budget.RoleAllocation) error {
	defer s.lock(ctx)()
	s.updateConfig(ctx, org, func(cfg *budget.Configuration) { cfg.MonthlyAllocations[r] = a })
	return nil
}

func (s *Store) UpdateYearlyBudget(ctx context.Context, org points.OrgID, amount decimal.Decimal) error {
	defer s.lock(ctx)()
	s.updateConfig(ctx, org, func(cfg *budget.Configuration) { cfg.YearlyBudget = amount })
	return nil
}

// =============================================================================
// RECOGNITIONS
// =============================================================================

func cloneRecognition(r recognition.Recognition) recognition.Recognition {
	r.Kudos = append([]points.UserID{}, r.Kudos...)
	if r.PinnedUntil != nil {
		t := *r.PinnedUntil
		r.PinnedUntil = &t
	}
	return r
}

func (s *Store) CreateRecognition(ctx context.Context, r recognition.Recognition) error {
	defer s.lock(ctx)()
	if _, ok := s.recognitions[r.ID]; ok {
		return points.Invalid("recognition", "id %s already exists", r.ID)
	}
	n := len(s.recOrder)
	s.recognitions[r.ID] = cloneRecognition(r)
	s.recOrder = append(s.recOrder, r.ID)
	s.onRollback(ctx, func() {
		delete(s.recognitions, r.ID)
		s.recOrder = s.recOrder[:n]
	})
	return nil
}

func (s *Store) GetRecognition(ctx context.Context, id recognition.ID) (recognition.Recognition, error) {
	defer s.lock(ctx)()
	r, ok := s.recognitions[id]
	if !ok {
		return recognition.Recognition{}, points.NotFound("recognition", id)
	}
	return cloneRecognition(r), nil
}

func (s *Store) mutateRecognition(ctx context.Context, id recognition.ID, mutate func(*recognition.Recognition)) (recognition.Recognition, error) {
	defer s.lock(ctx)()
	prev, ok := s.recognitions[id]
	if !ok {
		return recognition.Recognition{}, points.NotFound("recognition", id)
	}
	next := cloneRecognition(prev)
	mutate(&next)
	s.recognitions[id] = next
	s.onRollback(ctx, func() { s.recognitions[id] = prev })
	return cloneRecognition(next), nil
}

func (s *Store) AddKudos(ctx context.Context, id recognition.ID, user points.UserID) (recognition.Recognition, error) {
	return s.mutateRecognition(ctx, id, func(r *recognition.Recognition) {
		if !slices.Contains(r.Kudos, user) {
			r.Kudos = append(r.Kudos, user)
		}
	})
}

func (s *Store) RemoveKudos(ctx context.Context, id recognition.ID, user points.UserID) (recognition.Recognition, error) {
	return s.mutateRecognition(ctx, id, func(r *recognition.Recognition) {
		r.Kudos = slices.DeleteFunc(r.Kudos, func(u points.UserID) bool { return u == user })
	})
}

func (s *Store) SetPinnedUntil(ctx context.Context, id recognition.ID, until *time.Time) (recognition.Recognition, error) {
	return s.mutateRecognition(ctx, id, func(r *recognition.Recognition) { r.PinnedUntil = until })
}

func matches(r recognition.Recognition, f recognition.Filter) bool {
	switch {
	case f.OrganizationID != "" && r.OrganizationID != f.OrganizationID:
		return false
	case f.SenderID != "" && r.SenderID != f.SenderID:
		return false
	case f.RecipientID != "" && r.RecipientID != f.RecipientID:
		return false
	case f.From != nil && r.CreatedAt.Before(*f.From):
		return false
	case f.To != nil && !r.CreatedAt.Before(*f.To):
		return false
	}
	return true
}

func (s *Store) ListRecognitions(ctx context.Context, f recognition.Filter) ([]recognition.Recognition, error) {
	defer s.lock(ctx)()
	var out []recognition.Recognition
	for _, id := range s.recOrder {
		if r := s.recognitions[id]; matches(r, f) {
			out = append(out, cloneRecognition(r))
		}
	}
	return out, nil
}

func (s *Store) Leaderboard(ctx context.Context, org points.OrgID, limit int) ([]recognition.LeaderboardEntry, error) {
	defer s.lock(ctx)()
	index := make(map[points.UserID]int)
	var entries []recognition.LeaderboardEntry
	for _, id := range s.recOrder {
		r := s.recognitions[id]
		if r.OrganizationID != org {
			continue
		}
		i, ok := index[r.RecipientID]
		if !ok {
			i = len(entries)
			index[r.RecipientID] = i
			entries = append(entries, recognition.LeaderboardEntry{UserID: r.RecipientID})
		}
		entries[i].TotalPoints += r.Points
	}
	recognition.SortLeaderboard(entries)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *Store) countRecognitions(ctx context.Context, keep func(recognition.Recognition) int64) int64 {
	defer s.lock(ctx)()
	var n int64
	for _, r := range s.recognitions {
		n += keep(r)
	}
	return n
}

func (s *Store) CountByRecipient(ctx context.Context, user points.UserID) (int64, error) {
	return s.countRecognitions(ctx, func(r recognition.Recognition) int64 {
		if r.RecipientID == user {
			return 1
		}
		return 0
	}), nil
}

func (s *Store) CountBySender(ctx context.Context, user points.UserID) (int64, error) {
	return s.countRecognitions(ctx, func(r recognition.Recognition) int64 {
		if r.SenderID == user {
			return 1
		}
		return 0
	}), nil
}

func (s *Store) CountKudosReceived(ctx context.Context, user points.UserID) (int64, error) {
	return s.countRecognitions(ctx, func(r recognition.Recognition) int64 {
		if r.RecipientID == user {
			return int64(len(r.Kudos))
		}
		return 0
	}), nil
}
