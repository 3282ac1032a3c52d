package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"gamifyd/core"
	"gamifyd/engine"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ---- request/response bodies ----

type companyRequest struct {
	Name     string            `json:"name" validate:"required,min=1,max=120"`
	Metadata map[string]string `json:"metadata"`
}

type userRequest struct {
	Name     string            `json:"name" validate:"required,min=1,max=120"`
	Metadata map[string]string `json:"metadata"`
}

type teamRequest struct {
	Name      string            `json:"name" validate:"required,min=1,max=120"`
	MemberIDs []string          `json:"member_ids"`
	Metadata  map[string]string `json:"metadata"`
}

type metricRequest struct {
	Name          string            `json:"name" validate:"required,min=1,max=120"`
	Description   string            `json:"description"`
	DefaultGainXP int64             `json:"default_gain_xp" validate:"gte=0"`
	Metadata      map[string]string `json:"metadata"`
}

type objectiveRequest struct {
	Name        string            `json:"name" validate:"required,min=1,max=120"`
	Description string            `json:"description"`
	MetricID    string            `json:"metric_id" validate:"required"`
	Type        string            `json:"type" validate:"required,oneof=solo team"`
	TargetValue int64             `json:"target_value" validate:"gt=0"`
	RewardXP    int64             `json:"reward_xp" validate:"gte=0"`
	StartDate   *time.Time        `json:"start_date"`
	EndDate     *time.Time        `json:"end_date"`
	TeamID      string            `json:"team_id"`
	UserIDs     []string          `json:"user_ids"`
	Metadata    map[string]string `json:"metadata"`
}

type conditionRequest struct {
	MetricID string `json:"metric_id" validate:"required"`
	Type     string `json:"type" validate:"required,oneof=firstEvent conditional"`
	Operator string `json:"operator" validate:"omitempty,oneof=gte lte eq gt lt"`
	Value    *int64 `json:"value"`
	Priority int    `json:"priority" validate:"gte=0"`
}

type badgeRequest struct {
	Name        string             `json:"name" validate:"required,min=1,max=120"`
	Description string             `json:"description"`
	Reusable    bool               `json:"reusable"`
	Conditions  []conditionRequest `json:"conditions" validate:"required,min=1,dive"`
	Metadata    map[string]string  `json:"metadata"`
}

type rewardRequest struct {
	Name        string            `json:"name" validate:"required,min=1,max=120"`
	Description string            `json:"description"`
	XPThreshold int64             `json:"xp_threshold" validate:"gt=0"`
	Value       int64             `json:"value" validate:"gte=0"`
	Quantity    int64             `json:"quantity" validate:"gte=0"`
	ExpiresAt   *time.Time        `json:"expires_at"`
	Metadata    map[string]string `json:"metadata"`
}

type incrementRequest struct {
	MetricID string `json:"metric_id" validate:"required"`
	Value    int64  `json:"value" validate:"required,gt=0"`
}

type claimRequest struct {
	RewardID string `json:"reward_id" validate:"required"`
}

type incrementResponse struct {
	User                core.User               `json:"user"`
	FirstEvent          bool                    `json:"first_event"`
	XPGained            int64                   `json:"xp_gained"`
	LeveledUp           bool                    `json:"leveled_up"`
	CompletedObjectives []core.ObjectiveTracker `json:"completed_objectives"`
	AwardedBadges       []core.EarnedBadge      `json:"awarded_badges"`
}

type listResponse struct {
	Docs     any             `json:"docs"`
	PageInfo engine.PageInfo `json:"page_info"`
}

type rankResponse struct {
	UserID string `json:"user_id"`
	XP     int64  `json:"xp"`
	Rank   int    `json:"rank"`
}

// ---- plumbing ----

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiError{Code: code, Message: msg, Details: details})
}

// writeServiceError maps the domain error taxonomy onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "invalid_argument", err.Error(), nil)
	case errors.Is(err, core.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, core.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error(), nil)
	case errors.Is(err, core.ErrTxConflict):
		// retries exhausted on a serialization conflict; the request itself
		// is fine and can be retried
		writeError(w, http.StatusServiceUnavailable, "state_conflict", err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, "internal", "internal error", nil)
	}
}

// decode parses and validates a JSON request body. On failure it writes the
// error response and returns false.
func decode[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var in T
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "malformed request body", nil)
		return in, false
	}
	if err := validate.Struct(in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error(), nil)
		return in, false
	}
	return in, true
}

// pageFrom reads pagination query parameters, leaving whitelist checks to the
// service layer.
func pageFrom(r *http.Request) engine.Page {
	q := r.URL.Query()
	p := engine.DefaultPage()
	if v, err := strconv.Atoi(q.Get("page")); err == nil {
		p.Page = v
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil {
		p.Limit = v
	}
	if v := q.Get("sort"); v != "" {
		p.Sort = v
	}
	if v := q.Get("direction"); v != "" {
		p.Direction = v
	}
	return p.Normalize()
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// ---- health ----

func (a *api) handleHealth(w http.ResponseWriter, r *http.Request) {
	// a storage round trip with a key that cannot exist; ErrNotFound means
	// the store answered
	_, err := a.svc.CompanyByAPIKey(r.Context(), "healthcheck-probe")
	storage := "ok"
	status := http.StatusOK
	overall := "healthy"
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		storage = "failed"
		status = http.StatusServiceUnavailable
		overall = "unhealthy"
	}
	writeJSON(w, status, map[string]any{
		"status": overall,
		"checks": map[string]any{"storage": storage},
	})
}

// ---- companies ----

func (a *api) handleCreateCompany(w http.ResponseWriter, r *http.Request) {
	if a.opts.AdminKey == "" || r.Header.Get("X-Admin-Key") != a.opts.AdminKey {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid admin key", nil)
		return
	}
	in, ok := decode[companyRequest](w, r)
	if !ok {
		return
	}
	company, err := a.svc.CreateCompany(r.Context(), in.Name, in.Metadata)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, company)
}

func (a *api) handleGetCompany(w http.ResponseWriter, _ *http.Request, company core.Company) {
	writeJSON(w, http.StatusOK, company)
}

// ---- users ----

func (a *api) handleCreateUser(w http.ResponseWriter, r *http.Request, company core.Company) {
	in, ok := decode[userRequest](w, r)
	if !ok {
		return
	}
	user, err := a.svc.CreateUser(r.Context(), company.ID, engine.UserInput{Name: in.Name, Metadata: in.Metadata})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (a *api) handleGetUser(w http.ResponseWriter, r *http.Request, company core.Company) {
	user, err := a.svc.GetUser(r.Context(), company.ID, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *api) handleUpdateUser(w http.ResponseWriter, r *http.Request, company core.Company) {
	in, ok := decode[userRequest](w, r)
	if !ok {
		return
	}
	user, err := a.svc.UpdateUser(r.Context(), company.ID, r.PathValue("id"), engine.UserInput{Name: in.Name, Metadata: in.Metadata})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *api) handleDeleteUser(w http.ResponseWriter, r *http.Request, company core.Company) {
	if err := a.svc.DeleteUser(r.Context(), company.ID, r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) handleListUsers(w http.ResponseWriter, r *http.Request, company core.Company) {
	users, info, err := a.svc.ListUsers(r.Context(), company.ID, pageFrom(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Docs: users, PageInfo: info})
}

// ---- progression ----

func (a *api) handleIncrement(w http.ResponseWriter, r *http.Request, company core.Company) {
	in, ok := decode[incrementRequest](w, r)
	if !ok {
		return
	}
	res, err := a.svc.IncrementMetric(r.Context(), company.ID, r.PathValue("id"), in.MetricID, in.Value)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, incrementResponse{
		User:                res.User,
		FirstEvent:          res.FirstEvent,
		XPGained:            res.XPGained,
		LeveledUp:           res.LeveledUp,
		CompletedObjectives: res.CompletedObjectives,
		AwardedBadges:       res.AwardedBadges,
	})
}

func (a *api) handleClaim(w http.ResponseWriter, r *http.Request, company core.Company) {
	in, ok := decode[claimRequest](w, r)
	if !ok {
		return
	}
	claimed, err := a.svc.ClaimReward(r.Context(), company.ID, r.PathValue("id"), in.RewardID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, claimed)
}

func (a *api) handleHistory(w http.ResponseWriter, r *http.Request, company core.Company) {
	metricID := r.URL.Query().Get("metric_id")
	if metricID == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "metric_id query parameter is required", nil)
		return
	}
	rows, info, err := a.svc.UserMetricHistory(r.Context(), company.ID, r.PathValue("id"), metricID, pageFrom(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Docs: rows, PageInfo: info})
}

// ---- teams ----

func (a *api) handleCreateTeam(w http.ResponseWriter, r *http.Request, company core.Company) {
	in, ok := decode[teamRequest](w, r)
	if !ok {
		return
	}
	team, err := a.svc.CreateTeam(r.Context(), company.ID, engine.TeamInput{Name: in.Name, MemberIDs: in.MemberIDs, Metadata: in.Metadata})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, team)
}

func (a *api) handleGetTeam(w http.ResponseWriter, r *http.Request, company core.Company) {
	team, err := a.svc.GetTeam(r.Context(), company.ID, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, team)
}

func (a *api) handleUpdateTeam(w http.ResponseWriter, r *http.Request, company core.Company) {
	in, ok := decode[teamRequest](w, r)
	if !ok {
		return
	}
	team, err := a.svc.UpdateTeam(r.Context(), company.ID, r.PathValue("id"), engine.TeamInput{Name: in.Name, MemberIDs: in.MemberIDs, Metadata: in.Metadata})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, team)
}

func (a *api) handleDeleteTeam(w http.ResponseWriter, r *http.Request, company core.Company) {
	if err := a.svc.DeleteTeam(r.Context(), company.ID, r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) handleListTeams(w http.ResponseWriter, r *http.Request, company core.Company) {
	teams, info, err := a.svc.ListTeams(r.Context(), company.ID, pageFrom(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Docs: teams, PageInfo: info})
}

// ---- metrics ----

func (a *api) handleCreateMetric(w http.ResponseWriter, r *http.Request, company core.Company) {
	in, ok := decode[metricRequest](w, r)
	if !ok {
		return
	}
	metric, err := a.svc.CreateMetric(r.Context(), company.ID, engine.MetricInput{
		Name: in.Name, Description: in.Description, DefaultGainXP: in.DefaultGainXP, Metadata: in.Metadata,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, metric)
}

func (a *api) handleGetMetric(w http.ResponseWriter, r *http.Request, company core.Company) {
	metric, err := a.svc.GetMetric(r.Context(), company.ID, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, metric)
}

func (a *api) handleUpdateMetric(w http.ResponseWriter, r *http.Request, company core.Company) {
	in, ok := decode[metricRequest](w, r)
	if !ok {
		return
	}
	metric, err := a.svc.UpdateMetric(r.Context(), company.ID, r.PathValue("id"), engine.MetricInput{
		Name: in.Name, Description: in.Description, DefaultGainXP: in.DefaultGainXP, Metadata: in.Metadata,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, metric)
}

func (a *api) handleDeleteMetric(w http.ResponseWriter, r *http.Request, company core.Company) {
	if err := a.svc.DeleteMetric(r.Context(), company.ID, r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) handleListMetrics(w http.ResponseWriter, r *http.Request, company core.Company) {
	metrics, info, err := a.svc.ListMetrics(r.Context(), company.ID, pageFrom(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Docs: metrics, PageInfo: info})
}

// ---- objectives ----

func objectiveInput(in objectiveRequest) engine.ObjectiveInput {
	return engine.ObjectiveInput{
		Name:        in.Name,
		Description: in.Description,
		MetricID:    in.MetricID,
		Type:        core.ObjectiveType(in.Type),
		TargetValue: in.TargetValue,
		RewardXP:    in.RewardXP,
		StartDate:   timeOrZero(in.StartDate),
		EndDate:     timeOrZero(in.EndDate),
		TeamID:      in.TeamID,
		UserIDs:     in.UserIDs,
		Metadata:    in.Metadata,
	}
}

func (a *api) handleCreateObjective(w http.ResponseWriter, r *http.Request, company core.Company) {
	in, ok := decode[objectiveRequest](w, r)
	if !ok {
		return
	}
	obj, err := a.svc.CreateObjective(r.Context(), company.ID, objectiveInput(in))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, obj)
}

func (a *api) handleGetObjective(w http.ResponseWriter, r *http.Request, company core.Company) {
	obj, err := a.svc.ObjectiveWithTrackers(r.Context(), company.ID, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, obj)
}

func (a *api) handleUpdateObjective(w http.ResponseWriter, r *http.Request, company core.Company) {
	in, ok := decode[objectiveRequest](w, r)
	if !ok {
		return
	}
	obj, err := a.svc.UpdateObjective(r.Context(), company.ID, r.PathValue("id"), objectiveInput(in))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, obj)
}

func (a *api) handleDeleteObjective(w http.ResponseWriter, r *http.Request, company core.Company) {
	if err := a.svc.DeleteObjective(r.Context(), company.ID, r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) handleListObjectives(w http.ResponseWriter, r *http.Request, company core.Company) {
	objectives, info, err := a.svc.ListObjectives(r.Context(), company.ID, pageFrom(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Docs: objectives, PageInfo: info})
}

// ---- badges ----

func badgeInput(in badgeRequest) engine.BadgeInput {
	conditions := make([]engine.ConditionInput, 0, len(in.Conditions))
	for _, c := range in.Conditions {
		conditions = append(conditions, engine.ConditionInput{
			MetricID: c.MetricID,
			Operator: core.Operator(c.Operator),
			Value:    c.Value,
			Type:     core.ConditionType(c.Type),
			Priority: c.Priority,
		})
	}
	return engine.BadgeInput{
		Name:        in.Name,
		Description: in.Description,
		Reusable:    in.Reusable,
		Conditions:  conditions,
		Metadata:    in.Metadata,
	}
}

func (a *api) handleCreateBadge(w http.ResponseWriter, r *http.Request, company core.Company) {
	in, ok := decode[badgeRequest](w, r)
	if !ok {
		return
	}
	badge, err := a.svc.CreateBadge(r.Context(), company.ID, badgeInput(in))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, badge)
}

func (a *api) handleGetBadge(w http.ResponseWriter, r *http.Request, company core.Company) {
	badge, err := a.svc.GetBadge(r.Context(), company.ID, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, badge)
}

func (a *api) handleUpdateBadge(w http.ResponseWriter, r *http.Request, company core.Company) {
	in, ok := decode[badgeRequest](w, r)
	if !ok {
		return
	}
	badge, err := a.svc.UpdateBadge(r.Context(), company.ID, r.PathValue("id"), badgeInput(in))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, badge)
}

func (a *api) handleDeleteBadge(w http.ResponseWriter, r *http.Request, company core.Company) {
	if err := a.svc.DeleteBadge(r.Context(), company.ID, r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) handleListBadges(w http.ResponseWriter, r *http.Request, company core.Company) {
	badges, info, err := a.svc.ListBadges(r.Context(), company.ID, pageFrom(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Docs: badges, PageInfo: info})
}

// ---- rewards ----

func rewardInput(in rewardRequest) engine.RewardInput {
	return engine.RewardInput{
		Name:        in.Name,
		Description: in.Description,
		XPThreshold: in.XPThreshold,
		Value:       in.Value,
		Quantity:    in.Quantity,
		ExpiresAt:   in.ExpiresAt,
		Metadata:    in.Metadata,
	}
}

func (a *api) handleCreateReward(w http.ResponseWriter, r *http.Request, company core.Company) {
	in, ok := decode[rewardRequest](w, r)
	if !ok {
		return
	}
	reward, err := a.svc.CreateReward(r.Context(), company.ID, rewardInput(in))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, reward)
}

func (a *api) handleGetReward(w http.ResponseWriter, r *http.Request, company core.Company) {
	reward, err := a.svc.GetReward(r.Context(), company.ID, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reward)
}

func (a *api) handleUpdateReward(w http.ResponseWriter, r *http.Request, company core.Company) {
	in, ok := decode[rewardRequest](w, r)
	if !ok {
		return
	}
	reward, err := a.svc.UpdateReward(r.Context(), company.ID, r.PathValue("id"), rewardInput(in))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reward)
}

func (a *api) handleDeleteReward(w http.ResponseWriter, r *http.Request, company core.Company) {
	if err := a.svc.DeleteReward(r.Context(), company.ID, r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) handleListRewards(w http.ResponseWriter, r *http.Request, company core.Company) {
	rewards, info, err := a.svc.ListRewards(r.Context(), company.ID, pageFrom(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Docs: rewards, PageInfo: info})
}

// ---- leaderboard ----

func (a *api) handleLeaderboardTop(w http.ResponseWriter, r *http.Request, company core.Company) {
	if a.board == nil {
		writeError(w, http.StatusNotFound, "not_found", "leaderboard is not enabled", nil)
		return
	}
	n := 10
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 100 {
		n = v
	}
	entries, err := a.board.Top(r.Context(), company.ID, n)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (a *api) handleLeaderboardRank(w http.ResponseWriter, r *http.Request, company core.Company) {
	if a.board == nil {
		writeError(w, http.StatusNotFound, "not_found", "leaderboard is not enabled", nil)
		return
	}
	entry, rank, ok, err := a.board.Rank(r.Context(), company.ID, r.PathValue("userID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "user is not ranked", nil)
		return
	}
	writeJSON(w, http.StatusOK, rankResponse{UserID: entry.UserID, XP: entry.XP, Rank: rank})
}
