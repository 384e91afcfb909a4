/*
Package achievements awards one-time points when a counted metric crosses
a configured threshold.

PURPOSE:
  Engines report (user, metric, current value) whenever a counter moves.
  The Awarder finds the highest satisfied threshold for that metric and
  completes it exactly once, or records progress toward the next one.

LIFECYCLE OF A UserAchievement:
  absent → progress 0..99 → progress 100 (earned, terminal)

  The transition to 100 happens in the store as a conditional write, so
  two concurrent checks for the same pair award points once.

SEE ALSO:
  - awarder.go: CheckAndAward, AwardAchievement
*/
package achievements

import (
	"context"
	"time"

	"github.com/warp/recognition-engine/points"
)

type ID string

// Type is the metric an achievement counts.
type Type string

const (
	TypeKudosReceived     Type = "KUDOS_RECEIVED"
	TypeRecognitionCount  Type = "RECOGNITION_COUNT"
	TypeLoginStreak       Type = "LOGIN_STREAK"
	TypeProfileCompletion Type = "PROFILE_COMPLETION"
)

func (t Type) Valid() bool {
	switch t {
	case TypeKudosReceived, TypeRecognitionCount, TypeLoginStreak, TypeProfileCompletion:
		return true
	}
	return false
}

// CompleteProgress marks an earned achievement.
const CompleteProgress = 100

type Achievement struct {
	ID          ID     `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon,omitempty"`
	Type        Type   `json:"type"`
	Threshold   int64  `json:"threshold"`
	Points      int64  `json:"points"`
	// OrganizationID is empty for global achievements.
	OrganizationID points.OrgID  `json:"organization_id,omitempty"`
	CreatedBy      points.UserID `json:"created_by,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

func (a Achievement) Global() bool { return a.OrganizationID == "" }

// VisibleTo reports whether members of org can earn a.
func (a Achievement) VisibleTo(org points.OrgID) bool {
	return a.Global() || a.OrganizationID == org
}

type UserAchievement struct {
	UserID        points.UserID `json:"user_id"`
	AchievementID ID            `json:"achievement_id"`
	Progress      int           `json:"progress"`
	EarnedAt      *time.Time    `json:"earned_at,omitempty"`
	UpdatedAt     time.Time     `json:"updated_at"`
	Achievement   *Achievement  `json:"achievement,omitempty"`
}

func (ua UserAchievement) Completed() bool { return ua.Progress >= CompleteProgress }

type Progress struct {
	AchievementID ID  `json:"achievement_id"`
	Progress      int `json:"progress"`
}

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	CreateAchievement(ctx context.Context, a Achievement) error
	GetAchievement(ctx context.Context, id ID) (Achievement, error)

	// ListAchievements returns org's achievements plus global ones,
	// ordered by type then threshold ascending.
	ListAchievements(ctx context.Context, org points.OrgID) ([]Achievement, error)

	GetUserAchievement(ctx context.Context, user points.UserID, id ID) (UserAchievement, error)
	ListUserAchievements(ctx context.Context, user points.UserID) ([]UserAchievement, error)

	// CompleteUserAchievement sets progress to 100 and earnedAt to at unless
	// the pair is already complete. It reports whether this call completed it.
	CompleteUserAchievement(ctx context.Context, user points.UserID, id ID, at time.Time) (bool, error)

	// UpdateProgress records progress for an incomplete pair and returns the
	// previous value (0 when absent). A completed pair is left unchanged.
	UpdateProgress(ctx context.Context, user points.UserID, id ID, progress int, at time.Time) (int, error)
}
