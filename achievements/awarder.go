package achievements

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/warp/recognition-engine/points"
)

// milestoneStep is the progress granularity that raises a milestone notification.
const milestoneStep = 25

type Users interface {
	GetUser(ctx context.Context, id points.UserID) (points.User, error)
}

type Awarder struct {
	store  Store
	users  Users
	ledger *points.Ledger
	log    logrus.FieldLogger
}

func NewAwarder(store Store, users Users, ledger *points.Ledger, log logrus.FieldLogger) *Awarder {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Awarder{store: store, users: users, ledger: ledger, log: log.WithField("component", "achievements")}
}

// =============================================================================
// CHECK & AWARD
// =============================================================================

// CheckAndAward completes the achievement of the given metric whose threshold
// is the highest one at or below value, then records progress toward the next
// threshold above value. Completion is one-time: repeated calls award nothing.
func (a *Awarder) CheckAndAward(ctx context.Context, user points.UserID, metric Type, value int64, org points.OrgID) error {
	defs, err := a.definitions(ctx, org, metric)
	if err != nil {
		return err
	}
	if len(defs) == 0 {
		return nil
	}

	var satisfied, next *Achievement
	for i := range defs {
		if defs[i].Threshold <= value {
			satisfied = &defs[i]
		} else if next == nil {
			next = &defs[i]
		}
	}

	if satisfied != nil {
		if _, err := a.complete(ctx, user, *satisfied); err != nil {
			return err
		}
	}
	if next != nil {
		return a.track(ctx, user, *next, value)
	}
	return nil
}

// definitions lists the metric's achievements visible to org, lowest
// threshold first.
func (a *Awarder) definitions(ctx context.Context, org points.OrgID, metric Type) ([]Achievement, error) {
	all, err := a.store.ListAchievements(ctx, org)
	if err != nil {
		return nil, err
	}
	var out []Achievement
	for _, def := range all {
		if def.Type == metric && def.Threshold > 0 {
			out = append(out, def)
		}
	}
	return out, nil
}

// complete performs the terminal transition and its point award as one unit.
func (a *Awarder) complete(ctx context.Context, user points.UserID, def Achievement) (bool, error) {
	var awarded bool
	err := a.ledger.Atomically(ctx, func(ctx context.Context) error {
		ok, err := a.store.CompleteUserAchievement(ctx, user, def.ID, a.ledger.Now())
		if err != nil || !ok {
			return err
		}
		awarded = true
		if def.Points > 0 {
			if _, err := a.ledger.AwardPoints(ctx, user, def.Points, points.AwardAchievement,
				points.WithReference(string(def.ID)), points.WithReason(def.Name), points.Silently()); err != nil {
				return err
			}
		}
		a.ledger.Notify(ctx, points.Notification{
			UserID:  user,
			Kind:    points.NotifyAchievementUnlocked,
			Title:   "Achievement Unlocked!",
			Message: fmt.Sprintf("You've earned %q!", def.Name),
			Data: map[string]any{
				"achievement_id": string(def.ID),
				"points":         def.Points,
			},
		})
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("complete achievement %s: %w", def.ID, err)
	}
	if awarded {
		a.log.WithFields(logrus.Fields{
			"user_id":        user,
			"achievement_id": def.ID,
			"points":         def.Points,
		}).Info("achievement unlocked")
	}
	return awarded, nil
}

func (a *Awarder) track(ctx context.Context, user points.UserID, def Achievement, value int64) error {
	progress := int(max(value, 0) * 100 / def.Threshold)
	prev, err := a.store.UpdateProgress(ctx, user, def.ID, progress, a.ledger.Now())
	if err != nil {
		return fmt.Errorf("update progress %s: %w", def.ID, err)
	}
	if progress != prev && progress > 0 && progress%milestoneStep == 0 && progress < CompleteProgress {
		a.ledger.Notify(ctx, points.Notification{
			UserID:  user,
			Kind:    points.NotifyProgressMilestone,
			Title:   "Achievement Progress",
			Message: fmt.Sprintf("You're %d%% of the way to %q!", progress, def.Name),
			Data: map[string]any{
				"achievement_id": string(def.ID),
				"progress":       progress,
			},
		})
	}
	return nil
}

// AwardAchievement grants an achievement by hand. It reports false when the
// user already holds it.
func (a *Awarder) AwardAchievement(ctx context.Context, id ID, user points.UserID, org points.OrgID) (bool, error) {
	def, err := a.store.GetAchievement(ctx, id)
	if err != nil {
		return false, err
	}
	if !def.VisibleTo(org) {
		return false, points.NotFound("achievement", id)
	}
	u, err := a.users.GetUser(ctx, user)
	if err != nil {
		return false, err
	}
	if u.OrganizationID != org {
		return false, points.NotFound("user", user)
	}
	return a.complete(ctx, user, def)
}

// =============================================================================
// CATALOG
// =============================================================================

type CreateInput struct {
	Name           string
	Description    string
	Icon           string
	Type           Type
	Threshold      int64
	Points         int64
	OrganizationID points.OrgID
	CreatedBy      points.UserID
}

func (a *Awarder) CreateAchievement(ctx context.Context, in CreateInput) (Achievement, error) {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return Achievement{}, points.Invalid("name", "must not be empty")
	case !in.Type.Valid():
		return Achievement{}, points.Invalid("type", "unknown achievement type %q", in.Type)
	case in.Threshold <= 0:
		return Achievement{}, points.Invalid("threshold", "must be positive, got %d", in.Threshold)
	case in.Points < 0:
		return Achievement{}, points.Invalid("points", "must be non-negative, got %d", in.Points)
	}
	def := Achievement{
		ID:             ID(uuid.NewString()),
		Name:           strings.TrimSpace(in.Name),
		Description:    in.Description,
		Icon:           in.Icon,
		Type:           in.Type,
		Threshold:      in.Threshold,
		Points:         in.Points,
		OrganizationID: in.OrganizationID,
		CreatedBy:      in.CreatedBy,
		CreatedAt:      a.ledger.Now(),
	}
	if err := a.store.CreateAchievement(ctx, def); err != nil {
		return Achievement{}, err
	}
	return def, nil
}

// GetOrganizationAchievements lists org's achievements and the global ones.
func (a *Awarder) GetOrganizationAchievements(ctx context.Context, org points.OrgID) ([]Achievement, error) {
	return a.store.ListAchievements(ctx, org)
}

// GetUserAchievements lists the user's progress records with their definitions.
func (a *Awarder) GetUserAchievements(ctx context.Context, user points.UserID) ([]UserAchievement, error) {
	uas, err := a.store.ListUserAchievements(ctx, user)
	if err != nil {
		return nil, err
	}
	for i := range uas {
		def, err := a.store.GetAchievement(ctx, uas[i].AchievementID)
		if err != nil {
			if points.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		uas[i].Achievement = &def
	}
	return uas, nil
}

// GetProgress reports progress on every achievement visible to org; ones
// the user never touched are 0.
func (a *Awarder) GetProgress(ctx context.Context, user points.UserID, org points.OrgID) ([]Progress, error) {
	defs, err := a.store.ListAchievements(ctx, org)
	if err != nil {
		return nil, err
	}
	uas, err := a.store.ListUserAchievements(ctx, user)
	if err != nil {
		return nil, err
	}
	byID := make(map[ID]int, len(uas))
	for _, ua := range uas {
		byID[ua.AchievementID] = ua.Progress
	}
	out := make([]Progress, 0, len(defs))
	for _, def := range defs {
		out = append(out, Progress{AchievementID: def.ID, Progress: byID[def.ID]})
	}
	return out, nil
}
