package recognition

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/warp/recognition-engine/achievements"
	"github.com/warp/recognition-engine/budget"
	"github.com/warp/recognition-engine/points"
)

// DefaultLeaderboardLimit applies when the caller passes limit <= 0.
const DefaultLeaderboardLimit = 10

// =============================================================================
// ENGINE
// =============================================================================

type Users interface {
	GetUser(ctx context.Context, id points.UserID) (points.User, error)
}

type Engine struct {
	store   Store
	users   Users
	budget  *budget.Service
	ledger  *points.Ledger
	checker AchievementChecker
	log     logrus.FieldLogger
}

type Option func(*Engine)

// WithAchievements feeds recognition and kudos counters to checker.
func WithAchievements(checker AchievementChecker) Option {
	return func(e *Engine) { e.checker = checker }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(e *Engine) { e.log = log }
}

func NewEngine(store Store, users Users, budgetSvc *budget.Service, ledger *points.Ledger, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		users:  users,
		budget: budgetSvc,
		ledger: ledger,
		log:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.WithField("component", "recognition")
	return e
}

// =============================================================================
// CREATE
// =============================================================================

// CreateRecognition validates the request against the organization's
// budget configuration, then persists the recognition and transfers its
// points in one transaction. Nothing is written when validation fails.
func (e *Engine) CreateRecognition(ctx context.Context, in CreateInput) (Recognition, error) {
	// VALIDATING
	if err := validateMessage(in.Message); err != nil {
		return Recognition{}, err
	}
	category, err := budget.ParseCategory(in.Category)
	if err != nil {
		return Recognition{}, err
	}
	if in.Points != nil && *in.Points < 0 {
		return Recognition{}, points.Invalid("points", "must be non-negative, got %d", *in.Points)
	}

	sender, err := e.users.GetUser(ctx, in.SenderID)
	if err != nil {
		return Recognition{}, fmt.Errorf("sender: %w", err)
	}
	recipient, err := e.users.GetUser(ctx, in.RecipientID)
	if err != nil {
		return Recognition{}, fmt.Errorf("recipient: %w", err)
	}
	if sender.ID == recipient.ID {
		return Recognition{}, points.ErrSelfRecognition
	}

	org := in.OrganizationID
	if org == "" {
		org = sender.OrganizationID
	}
	if sender.OrganizationID != org {
		return Recognition{}, points.Invalid("sender", "user %s is not a member of organization %s", sender.ID, org)
	}
	if recipient.OrganizationID != org {
		return Recognition{}, points.Invalid("recipient", "user %s is not a member of organization %s", recipient.ID, org)
	}

	active, err := e.budget.GetActiveCategories(ctx, org)
	if err != nil {
		return Recognition{}, err
	}
	if !slices.Contains(active, category) {
		return Recognition{}, fmt.Errorf("%w: %s", points.ErrCategoryInactive, category)
	}

	cfg, err := e.budget.GetConfiguration(ctx, org)
	if err != nil {
		return Recognition{}, err
	}
	pts := cfg.DefaultPoints(category)
	if in.Points != nil {
		pts = *in.Points
	}

	maxPer := cfg.Allocation(sender.Role).MaxPointsPerRecognition
	if limit := cfg.Category(category).MaxPoints; limit > 0 && pts > limit {
		return Recognition{}, &points.BudgetExceededError{Points: pts, Available: sender.Wallet.Allocation, MaxPerRecognition: limit}
	}
	ok, err := e.budget.ValidateRecognitionPoints(ctx, org, sender.ID, pts)
	if err != nil {
		return Recognition{}, err
	}
	if !ok {
		return Recognition{}, &points.BudgetExceededError{Points: pts, Available: sender.Wallet.Allocation, MaxPerRecognition: maxPer}
	}

	rec := Recognition{
		ID:             ID(uuid.NewString()),
		OrganizationID: org,
		SenderID:       sender.ID,
		RecipientID:    recipient.ID,
		Message:        in.Message,
		Category:       category,
		Points:         pts,
		Kudos:          []points.UserID{},
		CreatedAt:      e.ledger.Now(),
	}

	// PERSISTED → SETTLED
	err = e.ledger.Atomically(ctx, func(ctx context.Context) error {
		if err := e.store.CreateRecognition(ctx, rec); err != nil {
			return fmt.Errorf("persist recognition: %w", err)
		}
		if pts > 0 {
			if err := e.ledger.Transfer(ctx, sender.ID, recipient.ID, pts, points.WithReference(string(rec.ID))); err != nil {
				return err
			}
		}
		e.ledger.Notify(ctx, points.Notification{
			UserID:  recipient.ID,
			Kind:    points.NotifyRecognitionReceived,
			Title:   "New Recognition",
			Message: fmt.Sprintf("%s recognized you for %s", displayName(sender), strings.ToLower(category.String())),
			Data: map[string]any{
				"recognition_id": string(rec.ID),
				"sender_id":      string(sender.ID),
				"category":       category.String(),
				"points":         pts,
			},
		})
		return nil
	})
	if err != nil {
		// Another request spent the sender's allocation between validation
		// and settlement.
		var insufficient *points.InsufficientPointsError
		if errors.As(err, &insufficient) && insufficient.UserID == sender.ID {
			return Recognition{}, &points.BudgetExceededError{Points: pts, Available: insufficient.Available, MaxPerRecognition: maxPer}
		}
		return Recognition{}, err
	}

	e.log.WithFields(logrus.Fields{
		"recognition_id":  rec.ID,
		"organization_id": org,
		"sender_id":       sender.ID,
		"recipient_id":    recipient.ID,
		"points":          pts,
	}).Info("recognition created")

	if e.checker != nil {
		e.feedCounter(ctx, recipient.ID, achievements.TypeRecognitionCount, org, e.store.CountByRecipient)
	}
	return rec, nil
}

func validateMessage(msg string) error {
	if strings.TrimSpace(msg) == "" {
		return points.Invalid("message", "must not be empty")
	}
	if n := utf8.RuneCountInString(msg); n > MaxMessageLength {
		return points.Invalid("message", "must be at most %d characters, got %d", MaxMessageLength, n)
	}
	return nil
}

func displayName(u points.User) string {
	if name := u.Name(); name != "" {
		return name
	}
	if u.Email != "" {
		return u.Email
	}
	return string(u.ID)
}

// feedCounter reports a counter to the achievement checker. The recognition
// is already settled, so failures are only logged.
func (e *Engine) feedCounter(ctx context.Context, user points.UserID, metric achievements.Type, org points.OrgID, count func(context.Context, points.UserID) (int64, error)) {
	log := e.log.WithFields(logrus.Fields{"user_id": user, "metric": metric})
	n, err := count(ctx, user)
	if err != nil {
		log.WithError(err).Warn("count for achievements failed")
		return
	}
	if err := e.checker.CheckAndAward(ctx, user, metric, n, org); err != nil {
		log.WithError(err).Warn("achievement check failed")
	}
}

// =============================================================================
// KUDOS & PINNING
// =============================================================================

// ToggleKudos adds user to the recognition's kudos if absent and removes it
// if present. It returns nil, nil when the recognition does not exist.
func (e *Engine) ToggleKudos(ctx context.Context, id ID, user points.UserID) (*Recognition, error) {
	rec, err := e.store.GetRecognition(ctx, id)
	if err != nil {
		if points.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	var updated Recognition
	added := !rec.HasKudos(user)
	if added {
		updated, err = e.store.AddKudos(ctx, id, user)
	} else {
		updated, err = e.store.RemoveKudos(ctx, id, user)
	}
	if err != nil {
		return nil, err
	}

	if added && e.checker != nil {
		e.feedCounter(ctx, rec.RecipientID, achievements.TypeKudosReceived, rec.OrganizationID, e.store.CountKudosReceived)
	}
	return &updated, nil
}

// PinRecognition pins the recognition for days days from now. Zero unpins.
func (e *Engine) PinRecognition(ctx context.Context, id ID, days int) (Recognition, error) {
	if days < 0 {
		return Recognition{}, points.Invalid("days", "must be non-negative, got %d", days)
	}
	var until *time.Time
	if days > 0 {
		t := e.ledger.Now().AddDate(0, 0, days)
		until = &t
	}
	return e.store.SetPinnedUntil(ctx, id, until)
}

// =============================================================================
// READS
// =============================================================================

func (e *Engine) GetRecognition(ctx context.Context, id ID) (Recognition, error) {
	return e.store.GetRecognition(ctx, id)
}

// ListRecognitions returns matches with currently pinned recognitions first,
// then newest first.
func (e *Engine) ListRecognitions(ctx context.Context, f Filter) ([]Recognition, error) {
	recs, err := e.store.ListRecognitions(ctx, f)
	if err != nil {
		return nil, err
	}
	now := e.ledger.Now()
	slices.Reverse(recs)
	slices.SortStableFunc(recs, func(a, b Recognition) int {
		ap, bp := a.Pinned(now), b.Pinned(now)
		switch {
		case ap && !bp:
			return -1
		case bp && !ap:
			return 1
		case ap && bp:
			if c := b.PinnedUntil.Compare(*a.PinnedUntil); c != 0 {
				return c
			}
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return recs, nil
}

// Leaderboard ranks recipients in org by total points received. Ties keep
// the order in which recipients first appeared in the organization's feed.
func (e *Engine) Leaderboard(ctx context.Context, org points.OrgID, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	entries, err := e.store.Leaderboard(ctx, org, limit)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		u, err := e.users.GetUser(ctx, entries[i].UserID)
		if err != nil {
			if points.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		entries[i].User = &u
	}
	return entries, nil
}

func (e *Engine) Stats(ctx context.Context, user points.UserID) (Stats, error) {
	if _, err := e.users.GetUser(ctx, user); err != nil {
		return Stats{}, err
	}
	received, err := e.store.CountByRecipient(ctx, user)
	if err != nil {
		return Stats{}, err
	}
	given, err := e.store.CountBySender(ctx, user)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Received: received, Given: given}, nil
}

// SortLeaderboard orders entries by points descending; equal totals keep
// their relative order. Stores that aggregate in memory use it.
func SortLeaderboard(entries []LeaderboardEntry) {
	slices.SortStableFunc(entries, func(a, b LeaderboardEntry) int {
		return cmp.Compare(b.TotalPoints, a.TotalPoints)
	})
}
