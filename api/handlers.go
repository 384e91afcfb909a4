/*
handlers.go - HTTP API handlers for the recognition engine

PURPOSE:
  Exposes wallets, recognitions, the reward catalog, achievements and
  notifications over REST. Handlers parse the request, scope it to the
  caller's organization, delegate to a domain service and serialize the
  result. No handler touches a balance directly.

ENDPOINTS:
  Me:
    GET    /api/me                           Caller profile and wallet
    GET    /api/me/balance                   Two-pool balance
    GET    /api/me/transactions              Wallet history, newest first
    GET    /api/me/achievements              Earned and in-progress achievements
    GET    /api/me/achievements/progress     Progress on every visible achievement
    GET    /api/me/redemptions               Caller's redemptions

  Recognitions:
    GET    /api/recognitions                 Organization feed
    POST   /api/recognitions                 Recognize a colleague
    GET    /api/recognitions/categories      Active categories
    GET    /api/recognitions/leaderboard     Top recipients
    GET    /api/recognitions/{id}            One recognition
    POST   /api/recognitions/{id}/kudos      Toggle the caller's kudos
    POST   /api/recognitions/{id}/pin        Pin for N days (manager+)
    GET    /api/users/{id}/recognition-stats Given/received counts

  Rewards:
    GET    /api/rewards                      Organization catalog
    POST   /api/rewards                      Create org reward (admin)
    GET    /api/rewards/catalog              Global catalog
    POST   /api/rewards/global               Create global reward (admin)
    GET    /api/rewards/redemptions          Redemptions by date range (admin)
    POST   /api/rewards/{id}/redeem          Redeem one unit
    POST   /api/rewards/{id}/organization    Link a global reward (admin)
    PUT    /api/rewards/{id}/status          Activate/deactivate (admin)

  Achievements, notifications, admin configuration: see server.go.

ERROR HANDLING:
  Domain errors map by kind (points.KindOf):
  - 400: InvalidInput, SelfRecognition, CategoryInactive
  - 403: Unauthorized (role-gated operation)
  - 404: NotFound, including entities of another organization
  - 409: RewardUnavailable
  - 422: BudgetExceeded, InsufficientPoints
  - 500: TransferFailed, Internal
  Body: {"error": kind, "message": text}

SEE ALSO:
  - dto.go: Request/response data structures
  - middleware.go: Caller resolution
  - server.go: Router setup
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/warp/recognition-engine/achievements"
	"github.com/warp/recognition-engine/budget"
	"github.com/warp/recognition-engine/identity"
	"github.com/warp/recognition-engine/points"
	"github.com/warp/recognition-engine/recognition"
	"github.com/warp/recognition-engine/rewards"
)

const defaultHistoryLimit = 50

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	svc      *Services
	verifier *identity.Verifier
	metrics  *Metrics
	log      logrus.FieldLogger

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

func NewHandler(svc *Services, verifier *identity.Verifier, metrics *Metrics, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Handler{
		svc:      svc,
		verifier: verifier,
		metrics:  metrics,
		log:      log.WithField("component", "api"),
	}
}

// =============================================================================
// ME
// =============================================================================

func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, callerFrom(r.Context()))
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r.Context())
	b, err := h.svc.Ledger.GetBalance(r.Context(), caller.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(caller.ID, b))
}

// GetTransactions returns wallet history. ?limit= defaults to 50.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultHistoryLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	txs, err := h.svc.Ledger.History(r.Context(), callerFrom(r.Context()).ID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(txs))
}

func (h *Handler) GetMyAchievements(w http.ResponseWriter, r *http.Request) {
	uas, err := h.svc.Achievements.GetUserAchievements(r.Context(), callerFrom(r.Context()).ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(uas))
}

func (h *Handler) GetMyProgress(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r.Context())
	progress, err := h.svc.Achievements.GetProgress(r.Context(), caller.ID, caller.OrganizationID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(progress))
}

func (h *Handler) GetMyRedemptions(w http.ResponseWriter, r *http.Request) {
	rs, err := h.svc.Rewards.GetUserRedemptions(r.Context(), callerFrom(r.Context()).ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rs))
}

// =============================================================================
// RECOGNITION HANDLERS
// =============================================================================

// ListRecognitions returns the caller's organization feed, pinned first.
// Optional filters: sender, recipient, from (inclusive), to (exclusive).
func (h *Handler) ListRecognitions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := recognition.Filter{
		OrganizationID: callerFrom(r.Context()).OrganizationID,
		SenderID:       points.UserID(q.Get("sender")),
		RecipientID:    points.UserID(q.Get("recipient")),
	}
	var err error
	if f.From, err = queryTime(r, "from"); err != nil {
		writeError(w, err)
		return
	}
	if f.To, err = queryTime(r, "to"); err != nil {
		writeError(w, err)
		return
	}
	recs, err := h.svc.Recognitions.ListRecognitions(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(recs))
}

func (h *Handler) CreateRecognition(w http.ResponseWriter, r *http.Request) {
	var req CreateRecognitionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	caller := callerFrom(r.Context())

	rec, err := h.svc.Recognitions.CreateRecognition(r.Context(), recognition.CreateInput{
		SenderID:       caller.ID,
		RecipientID:    req.RecipientID,
		OrganizationID: caller.OrganizationID,
		Message:        req.Message,
		Category:       req.Category,
		Points:         req.Points,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	h.metrics.RecordRecognition(rec.Category.String(), rec.Points)
	writeJSON(w, http.StatusCreated, rec)
}

// GetActiveCategories lists the categories the caller's organization accepts.
func (h *Handler) GetActiveCategories(w http.ResponseWriter, r *http.Request) {
	org := callerFrom(r.Context()).OrganizationID
	active, err := h.svc.Budget.GetActiveCategories(r.Context(), org)
	if err != nil {
		writeError(w, err)
		return
	}
	cfg, err := h.svc.Budget.GetConfiguration(r.Context(), org)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]CategoryDTO, 0, len(active))
	for _, c := range active {
		out = append(out, CategoryDTO{
			Category:      c,
			DefaultPoints: cfg.DefaultPoints(c),
			MaxPoints:     cfg.Category(c).MaxPoints,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", recognition.DefaultLeaderboardLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	entries, err := h.svc.Recognitions.Leaderboard(r.Context(), callerFrom(r.Context()).OrganizationID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(entries))
}

func (h *Handler) GetRecognition(w http.ResponseWriter, r *http.Request) {
	rec, err := h.recognitionInOrg(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) ToggleKudos(w http.ResponseWriter, r *http.Request) {
	rec, err := h.recognitionInOrg(r)
	if err != nil {
		writeError(w, err)
		return
	}
	caller := callerFrom(r.Context())
	updated, err := h.svc.Recognitions.ToggleKudos(r.Context(), rec.ID, caller.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	if updated == nil {
		writeError(w, points.NotFound("recognition", rec.ID))
		return
	}
	writeJSON(w, http.StatusOK, KudosDTO{
		Recognition: *updated,
		HasKudos:    updated.HasKudos(caller.ID),
		KudosCount:  len(updated.Kudos),
	})
}

func (h *Handler) PinRecognition(w http.ResponseWriter, r *http.Request) {
	rec, err := h.recognitionInOrg(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req PinRecognitionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	pinned, err := h.svc.Recognitions.PinRecognition(r.Context(), rec.ID, req.Days)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pinned)
}

func (h *Handler) GetRecognitionStats(w http.ResponseWriter, r *http.Request) {
	id := points.UserID(chi.URLParam(r, "id"))
	if _, err := h.userInOrg(r.Context(), id, callerFrom(r.Context()).OrganizationID); err != nil {
		writeError(w, err)
		return
	}
	stats, err := h.svc.Recognitions.Stats(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// recognitionInOrg loads {id} and hides recognitions of other organizations.
func (h *Handler) recognitionInOrg(r *http.Request) (recognition.Recognition, error) {
	id := recognition.ID(chi.URLParam(r, "id"))
	rec, err := h.svc.Recognitions.GetRecognition(r.Context(), id)
	if err != nil {
		return recognition.Recognition{}, err
	}
	if rec.OrganizationID != callerFrom(r.Context()).OrganizationID {
		return recognition.Recognition{}, points.NotFound("recognition", id)
	}
	return rec, nil
}

func (h *Handler) userInOrg(ctx context.Context, id points.UserID, org points.OrgID) (points.User, error) {
	u, err := h.svc.Store.GetUser(ctx, id)
	if err != nil {
		return points.User{}, err
	}
	if u.OrganizationID != org {
		return points.User{}, points.NotFound("user", id)
	}
	return u, nil
}

// =============================================================================
// REWARD HANDLERS
// =============================================================================

func (h *Handler) ListRewards(w http.ResponseWriter, r *http.Request) {
	rs, err := h.svc.Rewards.GetOrganizationRewards(r.Context(), callerFrom(r.Context()).OrganizationID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rs))
}

func (h *Handler) GetGlobalCatalog(w http.ResponseWriter, r *http.Request) {
	rs, err := h.svc.Rewards.GetGlobalCatalog(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rs))
}

func (h *Handler) CreateReward(w http.ResponseWriter, r *http.Request) {
	in, ok := h.rewardInput(w, r)
	if !ok {
		return
	}
	reward, err := h.svc.Rewards.CreateOrganizationReward(r.Context(), callerFrom(r.Context()).OrganizationID, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, reward)
}

func (h *Handler) CreateGlobalReward(w http.ResponseWriter, r *http.Request) {
	in, ok := h.rewardInput(w, r)
	if !ok {
		return
	}
	reward, err := h.svc.Rewards.CreateGlobalReward(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, reward)
}

func (h *Handler) rewardInput(w http.ResponseWriter, r *http.Request) (rewards.CreateInput, bool) {
	var req CreateRewardRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return rewards.CreateInput{}, false
	}
	return rewards.CreateInput{
		Name:        req.Name,
		Description: req.Description,
		Category:    rewards.Category(strings.ToUpper(req.Category)),
		PointsCost:  req.PointsCost,
		Quantity:    req.Quantity,
		Active:      req.IsActive,
		CreatedBy:   callerFrom(r.Context()).ID,
	}, true
}

func (h *Handler) RedeemReward(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r.Context())
	id := rewards.ID(chi.URLParam(r, "id"))

	reward, err := h.svc.Rewards.RedeemReward(r.Context(), caller.ID, id)
	h.metrics.RecordRedemption(points.KindOf(err))
	if err != nil {
		writeError(w, err)
		return
	}
	b, err := h.svc.Ledger.GetBalance(r.Context(), caller.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RedemptionDTO{Reward: reward, Balance: toBalanceDTO(caller.ID, b)})
}

// AddRewardToOrganization links a global reward. The body is optional.
func (h *Handler) AddRewardToOrganization(w http.ResponseWriter, r *http.Request) {
	var req CustomizeRewardRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	link, err := h.svc.Rewards.AddRewardToOrganization(r.Context(),
		callerFrom(r.Context()).OrganizationID,
		rewards.ID(chi.URLParam(r, "id")),
		rewards.Customization{PointsCost: req.PointsCost, Quantity: req.Quantity})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, link)
}

func (h *Handler) UpdateRewardStatus(w http.ResponseWriter, r *http.Request) {
	var req RewardStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	reward, err := h.svc.Rewards.UpdateRewardStatus(r.Context(),
		callerFrom(r.Context()).OrganizationID,
		rewards.ID(chi.URLParam(r, "id")),
		req.IsActive)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reward)
}

// ListRedemptions filters by ?from= and ?to=, both inclusive.
func (h *Handler) ListRedemptions(w http.ResponseWriter, r *http.Request) {
	var (
		f   rewards.RedemptionFilter
		err error
	)
	if f.From, err = queryTime(r, "from"); err != nil {
		writeError(w, err)
		return
	}
	if f.To, err = queryTime(r, "to"); err != nil {
		writeError(w, err)
		return
	}
	rs, err := h.svc.Rewards.GetRedemptionsByDateRange(r.Context(), callerFrom(r.Context()).OrganizationID, f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rs))
}

// =============================================================================
// SUGGESTION HANDLERS
// =============================================================================

func (h *Handler) ListSuggestions(w http.ResponseWriter, r *http.Request) {
	sgs, err := h.svc.Rewards.GetOrganizationSuggestions(r.Context(), callerFrom(r.Context()).OrganizationID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(sgs))
}

func (h *Handler) CreateSuggestion(w http.ResponseWriter, r *http.Request) {
	var req CreateSuggestionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	sg, err := h.svc.Rewards.CreateSuggestion(r.Context(), callerFrom(r.Context()).ID, rewards.SuggestionInput{
		Name:        req.Name,
		Description: req.Description,
		Category:    rewards.Category(strings.ToUpper(req.Category)),
		PointsCost:  req.SuggestedPointsCost,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sg)
}

func (h *Handler) ToggleSuggestionVote(w http.ResponseWriter, r *http.Request) {
	sg, err := h.svc.Rewards.ToggleVote(r.Context(), rewards.SuggestionID(chi.URLParam(r, "id")), callerFrom(r.Context()).ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sg)
}

func (h *Handler) ReviewSuggestion(w http.ResponseWriter, r *http.Request) {
	var req ReviewSuggestionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	caller := callerFrom(r.Context())
	sg, err := h.svc.Rewards.ReviewSuggestion(r.Context(), caller.OrganizationID,
		rewards.SuggestionID(chi.URLParam(r, "id")), caller.ID,
		rewards.SuggestionStatus(strings.ToUpper(strings.TrimSpace(req.Status))), req.AdminFeedback)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sg)
}

// =============================================================================
// ACHIEVEMENT HANDLERS
// =============================================================================

func (h *Handler) ListAchievements(w http.ResponseWriter, r *http.Request) {
	defs, err := h.svc.Achievements.GetOrganizationAchievements(r.Context(), callerFrom(r.Context()).OrganizationID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(defs))
}

func (h *Handler) CreateAchievement(w http.ResponseWriter, r *http.Request) {
	var req CreateAchievementRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	caller := callerFrom(r.Context())
	org := caller.OrganizationID
	if req.Global {
		org = ""
	}
	def, err := h.svc.Achievements.CreateAchievement(r.Context(), achievements.CreateInput{
		Name:           req.Name,
		Description:    req.Description,
		Icon:           req.Icon,
		Type:           achievements.Type(strings.ToUpper(req.Type)),
		Threshold:      req.Threshold,
		Points:         req.Points,
		OrganizationID: org,
		CreatedBy:      caller.ID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, def)
}

func (h *Handler) AwardAchievement(w http.ResponseWriter, r *http.Request) {
	var req AwardAchievementRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	awarded, err := h.svc.Achievements.AwardAchievement(r.Context(),
		achievements.ID(chi.URLParam(r, "id")),
		req.UserID,
		callerFrom(r.Context()).OrganizationID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AwardAchievementDTO{Awarded: awarded})
}

// =============================================================================
// NOTIFICATION HANDLERS
// =============================================================================

func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	ns, err := h.svc.Inbox.List(r.Context(), callerFrom(r.Context()).ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(ns))
}

func (h *Handler) GetUnreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Inbox.UnreadCount(r.Context(), callerFrom(r.Context()).ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, UnreadCountDTO{Count: n})
}

func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Inbox.MarkRead(r.Context(), callerFrom(r.Context()).ID, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Inbox.Delete(r.Context(), callerFrom(r.Context()).ID, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeleteNotifications(w http.ResponseWriter, r *http.Request) {
	var req DeleteNotificationsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.svc.Inbox.DeleteMany(r.Context(), callerFrom(r.Context()).ID, req.IDs); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ADMIN CONFIGURATION HANDLERS
// =============================================================================

func (h *Handler) GetConfiguration(w http.ResponseWriter, r *http.Request) {
	h.writeConfiguration(r.Context(), w, callerFrom(r.Context()).OrganizationID)
}

// UpdateCategorySettings: PUT /api/admin/configuration/categories/{category}
func (h *Handler) UpdateCategorySettings(w http.ResponseWriter, r *http.Request) {
	c, err := budget.ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		writeError(w, err)
		return
	}
	var setting budget.CategorySetting
	if err := decodeJSON(r, &setting); err != nil {
		writeError(w, err)
		return
	}
	org := callerFrom(r.Context()).OrganizationID
	if err := h.svc.Budget.UpdateCategorySettings(r.Context(), org, c, setting); err != nil {
		writeError(w, err)
		return
	}
	h.writeConfiguration(r.Context(), w, org)
}

// UpdateMonthlyAllocation: PUT /api/admin/configuration/allocations/{role}
func (h *Handler) UpdateMonthlyAllocation(w http.ResponseWriter, r *http.Request) {
	role, err := points.ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		writeError(w, err)
		return
	}
	var a budget.RoleAllocation
	if err := decodeJSON(r, &a); err != nil {
		writeError(w, err)
		return
	}
	org := callerFrom(r.Context()).OrganizationID
	if err := h.svc.Budget.UpdateMonthlyAllocation(r.Context(), org, role, a); err != nil {
		writeError(w, err)
		return
	}
	h.writeConfiguration(r.Context(), w, org)
}

func (h *Handler) SetYearlyBudget(w http.ResponseWriter, r *http.Request) {
	var req YearlyBudgetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	org := callerFrom(r.Context()).OrganizationID
	if err := h.svc.Budget.SetYearlyBudget(r.Context(), org, req.YearlyBudget); err != nil {
		writeError(w, err)
		return
	}
	h.writeConfiguration(r.Context(), w, org)
}

func (h *Handler) GetDistribution(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.Budget.GetPointsDistributionByRole(r.Context(), callerFrom(r.Context()).OrganizationID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// TriggerDistribution runs the monthly allocation for the caller's
// organization now, outside the schedule.
func (h *Handler) TriggerDistribution(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Budget.DistributeMonthlyPoints(r.Context(), callerFrom(r.Context()).OrganizationID)
	h.metrics.RecordDistribution(err == nil)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) writeConfiguration(ctx context.Context, w http.ResponseWriter, org points.OrgID) {
	cfg, err := h.svc.Budget.GetConfiguration(ctx, org)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toConfigurationDTO(cfg))
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeStatus(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, ErrorResponse{Error: kind, Message: message})
}

var kindStatus = map[string]int{
	points.KindNotFound:           http.StatusNotFound,
	points.KindInvalidInput:       http.StatusBadRequest,
	points.KindSelfRecognition:    http.StatusBadRequest,
	points.KindCategoryInactive:   http.StatusBadRequest,
	points.KindBudgetExceeded:     http.StatusUnprocessableEntity,
	points.KindInsufficientPoints: http.StatusUnprocessableEntity,
	points.KindRewardUnavailable:  http.StatusConflict,
	points.KindUnauthorized:       http.StatusForbidden,
	points.KindTransferFailed:     http.StatusInternalServerError,
}

// writeError maps err to a status by kind. Internal errors are logged and
// their text hidden from the client.
func writeError(w http.ResponseWriter, err error) {
	kind := points.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		logrus.WithError(err).Error("unhandled error")
		writeStatus(w, http.StatusInternalServerError, points.KindInternal, "internal error")
		return
	}
	writeStatus(w, status, kind, err.Error())
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return points.Invalid("body", "%v", err)
	}
	return nil
}

// decodeOptionalJSON accepts an empty body.
func decodeOptionalJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return points.Invalid("body", "%v", err)
	}
	return nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, points.Invalid(name, "must be a non-negative integer, got %q", raw)
	}
	return n, nil
}

// queryTime accepts RFC 3339 timestamps or plain dates (midnight UTC).
func queryTime(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, points.Invalid(name, "expected RFC 3339 or YYYY-MM-DD, got %q", raw)
}

// nonNil keeps empty lists as [] rather than null on the wire.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
