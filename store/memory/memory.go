// Package memory provides an in-memory implementation of every store
// interface, for tests and local development.
package memory

import (
	"context"
	"sync"

	"github.com/warp/recognition-engine/achievements"
	"github.com/warp/recognition-engine/budget"
	"github.com/warp/recognition-engine/notify"
	"github.com/warp/recognition-engine/points"
	"github.com/warp/recognition-engine/recognition"
	"github.com/warp/recognition-engine/rewards"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

// Store keeps all state behind one mutex. A transaction holds the mutex for
// its whole duration and records an undo entry per write; rollback replays
// them in reverse.
type Store struct {
	mu sync.Mutex

	users     map[points.UserID]points.User
	userOrder []points.UserID
	orgs      map[points.OrgID]points.Organization
	orgOrder  []points.OrgID
	walletTxs map[points.UserID][]points.Transaction

	configs map[points.OrgID]budget.Configuration

	recognitions map[recognition.ID]recognition.Recognition
	recOrder     []recognition.ID

	rewards     map[rewards.ID]rewards.Reward
	rewardOrder []rewards.ID
	links       map[linkKey]rewards.OrganizationReward
	linkOrder   []linkKey
	redemptions []rewards.Redemption
	suggestions map[rewards.SuggestionID]rewards.Suggestion
	suggOrder   []rewards.SuggestionID

	achievements map[achievements.ID]achievements.Achievement
	achOrder     []achievements.ID
	userAchs     map[userAchKey]achievements.UserAchievement
	userAchOrder []userAchKey

	notifications map[string]points.Notification
	notifOrder    []string
}

type linkKey struct {
	org points.OrgID
	id  rewards.ID
}

type userAchKey struct {
	user points.UserID
	id   achievements.ID
}

var (
	_ points.Store       = (*Store)(nil)
	_ budget.Store       = (*Store)(nil)
	_ recognition.Store  = (*Store)(nil)
	_ rewards.Store      = (*Store)(nil)
	_ achievements.Store = (*Store)(nil)
	_ notify.Store       = (*Store)(nil)
)

func New() *Store {
	return &Store{
		users:         make(map[points.UserID]points.User),
		orgs:          make(map[points.OrgID]points.Organization),
		walletTxs:     make(map[points.UserID][]points.Transaction),
		configs:       make(map[points.OrgID]budget.Configuration),
		recognitions:  make(map[recognition.ID]recognition.Recognition),
		rewards:       make(map[rewards.ID]rewards.Reward),
		links:         make(map[linkKey]rewards.OrganizationReward),
		suggestions:   make(map[rewards.SuggestionID]rewards.Suggestion),
		achievements:  make(map[achievements.ID]achievements.Achievement),
		userAchs:      make(map[userAchKey]achievements.UserAchievement),
		notifications: make(map[string]points.Notification),
	}
}

func (s *Store) Close() error { return nil }

// =============================================================================
// TRANSACTIONS
// =============================================================================

type txKey struct{}

type memTx struct {
	owner *Store
	undo  []func()
}

func (s *Store) txFrom(ctx context.Context) *memTx {
	if tx, ok := ctx.Value(txKey{}).(*memTx); ok && tx.owner == s {
		return tx
	}
	return nil
}

// WithTx runs fn while holding the store lock. Writes made through the
// context passed to fn are undone if fn fails.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.txFrom(ctx) != nil {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{owner: s}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		return err
	}
	return nil
}

// lock acquires the store lock unless ctx already runs inside this store's
// transaction, which holds it.
func (s *Store) lock(ctx context.Context) func() {
	if s.txFrom(ctx) != nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// onRollback registers an undo step when ctx carries a transaction.
func (s *Store) onRollback(ctx context.Context, undo func()) {
	if tx := s.txFrom(ctx); tx != nil {
		tx.undo = append(tx.undo, undo)
	}
}

// Reset drops all data.
func (s *Store) Reset(ctx context.Context) error {
	defer s.lock(ctx)()
	fresh := New()
	s.users, s.userOrder = fresh.users, nil
	s.orgs, s.orgOrder = fresh.orgs, nil
	s.walletTxs = fresh.walletTxs
	s.configs = fresh.configs
	s.recognitions, s.recOrder = fresh.recognitions, nil
	s.rewards, s.rewardOrder = fresh.rewards, nil
	s.links, s.linkOrder = fresh.links, nil
	s.redemptions = nil
	s.suggestions, s.suggOrder = fresh.suggestions, nil
	s.achievements, s.achOrder = fresh.achievements, nil
	s.userAchs, s.userAchOrder = fresh.userAchs, nil
	s.notifications, s.notifOrder = fresh.notifications, nil
	return nil
}
