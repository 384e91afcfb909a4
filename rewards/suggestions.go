package rewards

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/warp/recognition-engine/points"
)

type SuggestionID string

type SuggestionStatus string

const (
	SuggestionPending  SuggestionStatus = "PENDING"
	SuggestionApproved SuggestionStatus = "APPROVED"
	SuggestionRejected SuggestionStatus = "REJECTED"
)

func (s SuggestionStatus) Valid() bool {
	switch s {
	case SuggestionPending, SuggestionApproved, SuggestionRejected:
		return true
	}
	return false
}

// SuggestedRewardQuantity is the stock of a reward published from an
// approved suggestion.
const SuggestedRewardQuantity = 100

type Suggestion struct {
	ID                  SuggestionID     `json:"id"`
	OrganizationID      points.OrgID     `json:"organization_id"`
	Name                string           `json:"name"`
	Description         string           `json:"description"`
	Category            Category         `json:"category"`
	SuggestedPointsCost int64            `json:"suggested_points_cost"`
	SuggestedBy         points.UserID    `json:"suggested_by"`
	Votes               []points.UserID  `json:"votes"`
	Status              SuggestionStatus `json:"status"`
	AdminFeedback       string           `json:"admin_feedback,omitempty"`
	ReviewedBy          points.UserID    `json:"reviewed_by,omitempty"`
	// RewardID is set once an approval has published the reward.
	RewardID  ID        `json:"reward_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (sg Suggestion) HasVote(user points.UserID) bool {
	return slices.Contains(sg.Votes, user)
}

// SuggestionReview is the decision written by Store.ReviewSuggestion.
type SuggestionReview struct {
	Status        SuggestionStatus
	AdminFeedback string
	ReviewedBy    points.UserID
	RewardID      ID
	At            time.Time
}

type SuggestionInput struct {
	Name        string
	Description string
	Category    Category
	PointsCost  int64
}

func (in SuggestionInput) validate() error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return points.Invalid("name", "must not be empty")
	case strings.TrimSpace(in.Description) == "":
		return points.Invalid("description", "must not be empty")
	case !in.Category.Valid():
		return points.Invalid("category", "unknown reward category %q", in.Category)
	case in.PointsCost < 0:
		return points.Invalid("suggested_points_cost", "must be non-negative, got %d", in.PointsCost)
	}
	return nil
}

// =============================================================================
// SUGGESTION BOX
// =============================================================================

// CreateSuggestion files a pending suggestion in the author's organization.
func (s *Service) CreateSuggestion(ctx context.Context, user points.UserID, in SuggestionInput) (Suggestion, error) {
	if err := in.validate(); err != nil {
		return Suggestion{}, err
	}
	u, err := s.users.GetUser(ctx, user)
	if err != nil {
		return Suggestion{}, err
	}
	if u.OrganizationID == "" {
		return Suggestion{}, points.Invalid("user", "user %s has no organization", user)
	}
	now := s.ledger.Now()
	sg := Suggestion{
		ID:                  SuggestionID(uuid.NewString()),
		OrganizationID:      u.OrganizationID,
		Name:                strings.TrimSpace(in.Name),
		Description:         strings.TrimSpace(in.Description),
		Category:            in.Category,
		SuggestedPointsCost: in.PointsCost,
		SuggestedBy:         user,
		Votes:               []points.UserID{},
		Status:              SuggestionPending,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.store.CreateSuggestion(ctx, sg); err != nil {
		return Suggestion{}, err
	}
	s.log.WithFields(logrus.Fields{
		"suggestion_id":   sg.ID,
		"organization_id": sg.OrganizationID,
		"user_id":         user,
	}).Info("reward suggested")
	return sg, nil
}

func (s *Service) GetOrganizationSuggestions(ctx context.Context, org points.OrgID) ([]Suggestion, error) {
	return s.store.ListSuggestions(ctx, org)
}

// suggestionIn loads id and hides it from other organizations.
func (s *Service) suggestionIn(ctx context.Context, org points.OrgID, id SuggestionID) (Suggestion, error) {
	sg, err := s.store.GetSuggestion(ctx, id)
	if err != nil {
		return Suggestion{}, err
	}
	if sg.OrganizationID != org {
		return Suggestion{}, points.NotFound("suggestion", id)
	}
	return sg, nil
}

// ToggleVote adds user's vote, or withdraws it if already cast. Only members
// of the suggestion's organization can vote.
func (s *Service) ToggleVote(ctx context.Context, id SuggestionID, user points.UserID) (Suggestion, error) {
	u, err := s.users.GetUser(ctx, user)
	if err != nil {
		return Suggestion{}, err
	}
	sg, err := s.suggestionIn(ctx, u.OrganizationID, id)
	if err != nil {
		return Suggestion{}, err
	}
	if sg.HasVote(user) {
		return s.store.RemoveSuggestionVote(ctx, id, user)
	}
	return s.store.AddSuggestionVote(ctx, id, user)
}

// ReviewSuggestion approves or rejects a pending suggestion of org. Approval
// publishes an active organization reward with the suggested name, category
// and cost, credited to the author, in the same transaction as the status
// change.
func (s *Service) ReviewSuggestion(ctx context.Context, org points.OrgID, id SuggestionID, reviewer points.UserID, status SuggestionStatus, feedback string) (Suggestion, error) {
	if status != SuggestionApproved && status != SuggestionRejected {
		return Suggestion{}, points.Invalid("status", "must be %s or %s, got %q", SuggestionApproved, SuggestionRejected, status)
	}
	sg, err := s.suggestionIn(ctx, org, id)
	if err != nil {
		return Suggestion{}, err
	}

	review := SuggestionReview{
		Status:        status,
		AdminFeedback: strings.TrimSpace(feedback),
		ReviewedBy:    reviewer,
		At:            s.ledger.Now(),
	}
	var published *Reward
	if status == SuggestionApproved {
		r := s.newReward(CreateInput{
			Name:        sg.Name,
			Description: sg.Description,
			Category:    sg.Category,
			PointsCost:  sg.SuggestedPointsCost,
			Quantity:    SuggestedRewardQuantity,
			Active:      true,
			CreatedBy:   sg.SuggestedBy,
		})
		r.OrganizationID = org
		review.RewardID = r.ID
		published = &r
	}

	var out Suggestion
	err = s.ledger.Atomically(ctx, func(ctx context.Context) error {
		var err error
		if out, err = s.store.ReviewSuggestion(ctx, id, review); err != nil {
			return err
		}
		if published != nil {
			if err := s.store.CreateReward(ctx, *published); err != nil {
				return fmt.Errorf("publish suggested reward: %w", err)
			}
		}
		s.ledger.Notify(ctx, points.Notification{
			UserID:  sg.SuggestedBy,
			Kind:    points.NotifySuggestionReviewed,
			Title:   "Suggestion " + strings.ToLower(string(status)),
			Message: fmt.Sprintf("Your reward suggestion %q was %s", sg.Name, strings.ToLower(string(status))),
			Data: map[string]any{
				"suggestion_id": string(id),
				"status":        string(status),
				"reward_id":     string(review.RewardID),
			},
		})
		return nil
	})
	if err != nil {
		return Suggestion{}, err
	}

	s.log.WithFields(logrus.Fields{
		"suggestion_id":   id,
		"organization_id": org,
		"status":          status,
		"reward_id":       review.RewardID,
	}).Info("reward suggestion reviewed")
	return out, nil
}
