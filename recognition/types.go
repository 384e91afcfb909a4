/*
Package recognition implements peer-to-peer recognitions.

PURPOSE:
  A recognition is a message from one user to another in a category,
  optionally carrying points. Creating one moves points from the sender's
  allocation pool to the recipient's personal pool, governed by the
  organization's budget configuration.

STATE MACHINE (per request):
  Validating → Persisted → Settled
       ↓
    Rejected

  Validation finishes before any write. Persist and settle run in one
  store transaction, so a recognition is never visible without its
  transfer and a transfer never happens without its recognition.

SEE ALSO:
  - engine.go: CreateRecognition and the read side
  - budget/service.go: Point validation
  - points/ledger.go: Transfer
*/
package recognition

import (
	"context"
	"slices"
	"time"

	"github.com/warp/recognition-engine/achievements"
	"github.com/warp/recognition-engine/budget"
	"github.com/warp/recognition-engine/points"
)

// MaxMessageLength is measured in characters, not bytes.
const MaxMessageLength = 500

type ID string

type Recognition struct {
	ID             ID              `json:"id"`
	OrganizationID points.OrgID    `json:"organization_id"`
	SenderID       points.UserID   `json:"sender_id"`
	RecipientID    points.UserID   `json:"recipient_id"`
	Message        string          `json:"message"`
	Category       budget.Category `json:"category"`
	Points         int64           `json:"points"`
	Kudos          []points.UserID `json:"kudos"`
	PinnedUntil    *time.Time      `json:"pinned_until,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

func (r Recognition) HasKudos(user points.UserID) bool {
	return slices.Contains(r.Kudos, user)
}

// Pinned reports whether r is pinned at instant at.
func (r Recognition) Pinned(at time.Time) bool {
	return r.PinnedUntil != nil && r.PinnedUntil.After(at)
}

// CreateInput is a recognition request. A nil Points means "use the
// category's default".
type CreateInput struct {
	SenderID       points.UserID
	RecipientID    points.UserID
	OrganizationID points.OrgID
	Message        string
	Category       string
	Points         *int64
}

type Filter struct {
	OrganizationID points.OrgID
	SenderID       points.UserID
	RecipientID    points.UserID
	// From is inclusive, To exclusive.
	From *time.Time
	To   *time.Time
}

type LeaderboardEntry struct {
	UserID      points.UserID `json:"user_id"`
	TotalPoints int64         `json:"total_points"`
	User        *points.User  `json:"user,omitempty"`
}

type Stats struct {
	Received int64 `json:"received"`
	Given    int64 `json:"given"`
}

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	CreateRecognition(ctx context.Context, r Recognition) error
	GetRecognition(ctx context.Context, id ID) (Recognition, error)

	// AddKudos and RemoveKudos are set operations: adding a present member
	// or removing an absent one changes nothing.
	AddKudos(ctx context.Context, id ID, user points.UserID) (Recognition, error)
	RemoveKudos(ctx context.Context, id ID, user points.UserID) (Recognition, error)

	SetPinnedUntil(ctx context.Context, id ID, until *time.Time) (Recognition, error)

	// ListRecognitions returns matches in insertion order.
	ListRecognitions(ctx context.Context, f Filter) ([]Recognition, error)

	// Leaderboard sums points received per recipient in org, highest first.
	// Ties keep the order in which recipients first received a recognition.
	Leaderboard(ctx context.Context, org points.OrgID, limit int) ([]LeaderboardEntry, error)

	CountByRecipient(ctx context.Context, user points.UserID) (int64, error)
	CountBySender(ctx context.Context, user points.UserID) (int64, error)

	// CountKudosReceived totals kudos across every recognition user received.
	CountKudosReceived(ctx context.Context, user points.UserID) (int64, error)
}

// AchievementChecker is fed counter changes after a recognition settles.
type AchievementChecker interface {
	CheckAndAward(ctx context.Context, user points.UserID, metric achievements.Type, value int64, org points.OrgID) error
}
