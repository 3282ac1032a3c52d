package engine

import (
	"context"
	"time"

	"gamifyd/core"
)

// Input structs for the admin surface. Update inputs replace the mutable
// fields wholesale, matching the HTTP handlers' PUT semantics.

type UserInput struct {
	Name     string
	Metadata map[string]string
}

type TeamInput struct {
	Name      string
	MemberIDs []string
	Metadata  map[string]string
}

type MetricInput struct {
	Name          string
	Description   string
	DefaultGainXP int64
	Metadata      map[string]string
}

type ObjectiveInput struct {
	Name        string
	Description string
	MetricID    string
	Type        core.ObjectiveType
	TargetValue int64
	RewardXP    int64
	StartDate   time.Time
	EndDate     time.Time
	TeamID      string
	UserIDs     []string
	Metadata    map[string]string
}

type ConditionInput struct {
	MetricID string
	Operator core.Operator
	Value    *int64
	Type     core.ConditionType
	Priority int
}

type BadgeInput struct {
	Name        string
	Description string
	Reusable    bool
	Conditions  []ConditionInput
	Metadata    map[string]string
}

type RewardInput struct {
	Name        string
	Description string
	XPThreshold int64
	Value       int64
	Quantity    int64
	ExpiresAt   *time.Time
	Metadata    map[string]string
}

// ---- companies ----

// CreateCompany provisions a tenant and mints its API key.
func (s *Service) CreateCompany(ctx context.Context, name string, metadata map[string]string) (core.Company, error) {
	if err := core.ValidateName(name); err != nil {
		return core.Company{}, core.InvalidArgumentf("company name: %v", err)
	}
	c := core.Company{
		ID:        core.NewID(),
		Name:      name,
		APIKey:    core.GenerateAPIKey(),
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.SaveCompany(ctx, c); err != nil {
		return core.Company{}, err
	}
	s.log.Info("company created", "company", c.ID, "name", c.Name)
	return c, nil
}

func (s *Service) CompanyByAPIKey(ctx context.Context, apiKey string) (core.Company, error) {
	return s.store.CompanyByAPIKey(ctx, apiKey)
}

// ---- users ----

func (s *Service) CreateUser(ctx context.Context, companyID string, in UserInput) (core.User, error) {
	if err := core.ValidateName(in.Name); err != nil {
		return core.User{}, core.InvalidArgumentf("user name: %v", err)
	}
	u := core.User{
		ID:        core.NewID(),
		CompanyID: companyID,
		Name:      in.Name,
		Level:     1,
		Metadata:  in.Metadata,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.SaveUser(ctx, u); err != nil {
		return core.User{}, err
	}
	return u, nil
}

func (s *Service) GetUser(ctx context.Context, companyID, id string) (core.User, error) {
	return s.store.GetUser(ctx, companyID, id)
}

func (s *Service) UpdateUser(ctx context.Context, companyID, id string, in UserInput) (core.User, error) {
	if err := core.ValidateName(in.Name); err != nil {
		return core.User{}, core.InvalidArgumentf("user name: %v", err)
	}
	u, err := s.store.GetUser(ctx, companyID, id)
	if err != nil {
		return core.User{}, err
	}
	u.Name = in.Name
	u.Metadata = in.Metadata
	if err := s.store.SaveUser(ctx, u); err != nil {
		return core.User{}, err
	}
	return u, nil
}

// DeleteUser tombstones the user and every tracker they hold, so a team
// objective neither advances the departed member nor credits them a reward
// share. Re-adding the user to an objective restores the tracker with its
// progress intact, same as the membership reconcile in UpdateObjective.
func (s *Service) DeleteUser(ctx context.Context, companyID, id string) error {
	u, err := s.store.GetUser(ctx, companyID, id)
	if err != nil {
		return err
	}
	u.Deleted = true
	if err := s.store.SaveUser(ctx, u); err != nil {
		return err
	}
	trackers, err := s.store.TrackersForUser(ctx, id)
	if err != nil {
		return err
	}
	for _, t := range trackers {
		t.Deleted = true
		if err := s.store.SaveTracker(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) ListUsers(ctx context.Context, companyID string, page Page) ([]core.User, PageInfo, error) {
	page, err := ValidatePage("user", page)
	if err != nil {
		return nil, PageInfo{}, err
	}
	items, total, err := s.store.ListUsers(ctx, companyID, page)
	if err != nil {
		return nil, PageInfo{}, err
	}
	return items, NewPageInfo(page, total), nil
}

// ---- teams ----

func (s *Service) CreateTeam(ctx context.Context, companyID string, in TeamInput) (core.Team, error) {
	if err := core.ValidateName(in.Name); err != nil {
		return core.Team{}, core.InvalidArgumentf("team name: %v", err)
	}
	if err := s.checkMembers(ctx, companyID, in.MemberIDs); err != nil {
		return core.Team{}, err
	}
	t := core.Team{
		ID:        core.NewID(),
		CompanyID: companyID,
		Name:      in.Name,
		MemberIDs: in.MemberIDs,
		Metadata:  in.Metadata,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.SaveTeam(ctx, t); err != nil {
		return core.Team{}, err
	}
	return t, nil
}

func (s *Service) GetTeam(ctx context.Context, companyID, id string) (core.Team, error) {
	return s.store.GetTeam(ctx, companyID, id)
}

func (s *Service) UpdateTeam(ctx context.Context, companyID, id string, in TeamInput) (core.Team, error) {
	if err := core.ValidateName(in.Name); err != nil {
		return core.Team{}, core.InvalidArgumentf("team name: %v", err)
	}
	t, err := s.store.GetTeam(ctx, companyID, id)
	if err != nil {
		return core.Team{}, err
	}
	if err := s.checkMembers(ctx, companyID, in.MemberIDs); err != nil {
		return core.Team{}, err
	}
	t.Name = in.Name
	t.MemberIDs = in.MemberIDs
	t.Metadata = in.Metadata
	if err := s.store.SaveTeam(ctx, t); err != nil {
		return core.Team{}, err
	}
	return t, nil
}

func (s *Service) DeleteTeam(ctx context.Context, companyID, id string) error {
	t, err := s.store.GetTeam(ctx, companyID, id)
	if err != nil {
		return err
	}
	t.Deleted = true
	return s.store.SaveTeam(ctx, t)
}

func (s *Service) ListTeams(ctx context.Context, companyID string, page Page) ([]core.Team, PageInfo, error) {
	page, err := ValidatePage("team", page)
	if err != nil {
		return nil, PageInfo{}, err
	}
	items, total, err := s.store.ListTeams(ctx, companyID, page)
	if err != nil {
		return nil, PageInfo{}, err
	}
	return items, NewPageInfo(page, total), nil
}

func (s *Service) checkMembers(ctx context.Context, companyID string, memberIDs []string) error {
	for _, uid := range memberIDs {
		if _, err := s.store.GetUser(ctx, companyID, uid); err != nil {
			return err
		}
	}
	return nil
}

// ---- metrics ----

func (s *Service) CreateMetric(ctx context.Context, companyID string, in MetricInput) (core.Metric, error) {
	if err := core.ValidateName(in.Name); err != nil {
		return core.Metric{}, core.InvalidArgumentf("metric name: %v", err)
	}
	if in.DefaultGainXP < 0 {
		return core.Metric{}, core.InvalidArgumentf("default gain xp must not be negative")
	}
	taken, err := s.store.MetricNameTaken(ctx, companyID, in.Name, "")
	if err != nil {
		return core.Metric{}, err
	}
	if taken {
		return core.Metric{}, core.Conflictf("metric name %q already in use", in.Name)
	}
	m := core.Metric{
		ID:            core.NewID(),
		CompanyID:     companyID,
		Name:          in.Name,
		Description:   in.Description,
		DefaultGainXP: in.DefaultGainXP,
		Metadata:      in.Metadata,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.store.SaveMetric(ctx, m); err != nil {
		return core.Metric{}, err
	}
	return m, nil
}

func (s *Service) GetMetric(ctx context.Context, companyID, id string) (core.Metric, error) {
	return s.store.GetMetric(ctx, companyID, id)
}

func (s *Service) UpdateMetric(ctx context.Context, companyID, id string, in MetricInput) (core.Metric, error) {
	if err := core.ValidateName(in.Name); err != nil {
		return core.Metric{}, core.InvalidArgumentf("metric name: %v", err)
	}
	if in.DefaultGainXP < 0 {
		return core.Metric{}, core.InvalidArgumentf("default gain xp must not be negative")
	}
	m, err := s.store.GetMetric(ctx, companyID, id)
	if err != nil {
		return core.Metric{}, err
	}
	taken, err := s.store.MetricNameTaken(ctx, companyID, in.Name, id)
	if err != nil {
		return core.Metric{}, err
	}
	if taken {
		return core.Metric{}, core.Conflictf("metric name %q already in use", in.Name)
	}
	m.Name = in.Name
	m.Description = in.Description
	m.DefaultGainXP = in.DefaultGainXP
	m.Metadata = in.Metadata
	if err := s.store.SaveMetric(ctx, m); err != nil {
		return core.Metric{}, err
	}
	return m, nil
}

func (s *Service) DeleteMetric(ctx context.Context, companyID, id string) error {
	m, err := s.store.GetMetric(ctx, companyID, id)
	if err != nil {
		return err
	}
	m.Deleted = true
	return s.store.SaveMetric(ctx, m)
}

func (s *Service) ListMetrics(ctx context.Context, companyID string, page Page) ([]core.Metric, PageInfo, error) {
	page, err := ValidatePage("metric", page)
	if err != nil {
		return nil, PageInfo{}, err
	}
	items, total, err := s.store.ListMetrics(ctx, companyID, page)
	if err != nil {
		return nil, PageInfo{}, err
	}
	return items, NewPageInfo(page, total), nil
}

// ---- objectives ----

// CreateObjective creates the objective and one tracker per participant.
// Solo objectives take their participants from UserIDs; team objectives
// resolve the team's current member list.
func (s *Service) CreateObjective(ctx context.Context, companyID string, in ObjectiveInput) (core.Objective, error) {
	o, participants, err := s.buildObjective(ctx, companyID, core.NewID(), in)
	if err != nil {
		return core.Objective{}, err
	}
	o.CreatedAt = time.Now().UTC()
	if err := s.store.SaveObjective(ctx, o); err != nil {
		return core.Objective{}, err
	}
	for _, uid := range participants {
		t := core.ObjectiveTracker{
			ID:          core.NewID(),
			ObjectiveID: o.ID,
			UserID:      uid,
		}
		if err := s.store.SaveTracker(ctx, t); err != nil {
			return core.Objective{}, err
		}
	}
	return o, nil
}

func (s *Service) GetObjective(ctx context.Context, companyID, id string) (core.Objective, error) {
	return s.store.GetObjective(ctx, companyID, id)
}

// ObjectiveWithTrackers returns the objective together with its live
// trackers.
func (s *Service) ObjectiveWithTrackers(ctx context.Context, companyID, id string) (ObjectiveProgress, error) {
	o, err := s.store.GetObjective(ctx, companyID, id)
	if err != nil {
		return ObjectiveProgress{}, err
	}
	all, err := s.store.TrackersForObjective(ctx, id)
	if err != nil {
		return ObjectiveProgress{}, err
	}
	live := make([]core.ObjectiveTracker, 0, len(all))
	for _, t := range all {
		if !t.Deleted {
			live = append(live, t)
		}
	}
	return ObjectiveProgress{Objective: o, Trackers: live}, nil
}

// UpdateObjective replaces the objective's fields and reconciles its tracker
// set against the new participant list: missing participants get fresh
// trackers, removed participants get tombstoned, and returning participants
// are restored with their old progress intact.
func (s *Service) UpdateObjective(ctx context.Context, companyID, id string, in ObjectiveInput) (core.Objective, error) {
	existing, err := s.store.GetObjective(ctx, companyID, id)
	if err != nil {
		return core.Objective{}, err
	}
	o, participants, err := s.buildObjective(ctx, companyID, id, in)
	if err != nil {
		return core.Objective{}, err
	}
	o.CreatedAt = existing.CreatedAt
	if err := s.store.SaveObjective(ctx, o); err != nil {
		return core.Objective{}, err
	}

	desired := make(map[string]bool, len(participants))
	for _, uid := range participants {
		desired[uid] = true
	}
	trackers, err := s.store.TrackersForObjective(ctx, id)
	if err != nil {
		return core.Objective{}, err
	}
	for _, t := range trackers {
		switch {
		case desired[t.UserID] && t.Deleted:
			t.Deleted = false
			if err := s.store.SaveTracker(ctx, t); err != nil {
				return core.Objective{}, err
			}
		case !desired[t.UserID] && !t.Deleted:
			t.Deleted = true
			if err := s.store.SaveTracker(ctx, t); err != nil {
				return core.Objective{}, err
			}
		}
		delete(desired, t.UserID)
	}
	for uid := range desired {
		t := core.ObjectiveTracker{
			ID:          core.NewID(),
			ObjectiveID: id,
			UserID:      uid,
		}
		if err := s.store.SaveTracker(ctx, t); err != nil {
			return core.Objective{}, err
		}
	}
	return o, nil
}

func (s *Service) DeleteObjective(ctx context.Context, companyID, id string) error {
	o, err := s.store.GetObjective(ctx, companyID, id)
	if err != nil {
		return err
	}
	o.Deleted = true
	return s.store.SaveObjective(ctx, o)
}

func (s *Service) ListObjectives(ctx context.Context, companyID string, page Page) ([]ObjectiveProgress, PageInfo, error) {
	page, err := ValidatePage("objective", page)
	if err != nil {
		return nil, PageInfo{}, err
	}
	items, total, err := s.store.ListObjectives(ctx, companyID, page)
	if err != nil {
		return nil, PageInfo{}, err
	}
	return items, NewPageInfo(page, total), nil
}

func (s *Service) buildObjective(ctx context.Context, companyID, id string, in ObjectiveInput) (core.Objective, []string, error) {
	if err := core.ValidateName(in.Name); err != nil {
		return core.Objective{}, nil, core.InvalidArgumentf("objective name: %v", err)
	}
	if in.TargetValue <= 0 {
		return core.Objective{}, nil, core.InvalidArgumentf("objective target value must be positive")
	}
	if in.RewardXP < 0 {
		return core.Objective{}, nil, core.InvalidArgumentf("objective reward xp must not be negative")
	}
	if in.Type != core.ObjectiveSolo && in.Type != core.ObjectiveTeam {
		return core.Objective{}, nil, core.InvalidArgumentf("unknown objective type %q", in.Type)
	}
	if !in.StartDate.IsZero() && !in.EndDate.IsZero() && in.EndDate.Before(in.StartDate) {
		return core.Objective{}, nil, core.InvalidArgumentf("objective end date precedes start date")
	}
	if _, err := s.store.GetMetric(ctx, companyID, in.MetricID); err != nil {
		return core.Objective{}, nil, err
	}

	var participants []string
	switch in.Type {
	case core.ObjectiveTeam:
		if in.TeamID == "" {
			return core.Objective{}, nil, core.InvalidArgumentf("team objective requires a team")
		}
		team, err := s.store.GetTeam(ctx, companyID, in.TeamID)
		if err != nil {
			return core.Objective{}, nil, err
		}
		participants = team.MemberIDs
	default:
		if err := s.checkMembers(ctx, companyID, in.UserIDs); err != nil {
			return core.Objective{}, nil, err
		}
		participants = in.UserIDs
	}

	return core.Objective{
		ID:          id,
		CompanyID:   companyID,
		MetricID:    in.MetricID,
		Name:        in.Name,
		Description: in.Description,
		Type:        in.Type,
		TargetValue: in.TargetValue,
		RewardXP:    in.RewardXP,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
		TeamID:      in.TeamID,
		Metadata:    in.Metadata,
	}, participants, nil
}

// ---- badges ----

func (s *Service) CreateBadge(ctx context.Context, companyID string, in BadgeInput) (BadgeDetail, error) {
	if err := core.ValidateName(in.Name); err != nil {
		return BadgeDetail{}, core.InvalidArgumentf("badge name: %v", err)
	}
	if len(in.Conditions) == 0 {
		return BadgeDetail{}, core.InvalidArgumentf("badge requires at least one condition")
	}
	for _, c := range in.Conditions {
		if err := s.checkCondition(ctx, companyID, c); err != nil {
			return BadgeDetail{}, err
		}
	}
	b := core.Badge{
		ID:          core.NewID(),
		CompanyID:   companyID,
		Name:        in.Name,
		Description: in.Description,
		Reusable:    in.Reusable,
		Metadata:    in.Metadata,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.SaveBadge(ctx, b); err != nil {
		return BadgeDetail{}, err
	}
	detail := BadgeDetail{Badge: b}
	for _, c := range in.Conditions {
		cond := core.Condition{
			ID:       core.NewID(),
			BadgeID:  b.ID,
			MetricID: c.MetricID,
			Operator: c.Operator,
			Value:    c.Value,
			Type:     c.Type,
			Priority: c.Priority,
		}
		if err := s.store.SaveCondition(ctx, cond); err != nil {
			return BadgeDetail{}, err
		}
		detail.Conditions = append(detail.Conditions, cond)
	}
	return detail, nil
}

func (s *Service) GetBadge(ctx context.Context, companyID, id string) (BadgeDetail, error) {
	return s.store.GetBadge(ctx, companyID, id)
}

// UpdateBadge replaces the badge fields and its condition set. Old conditions
// are tombstoned and the new set inserted fresh.
func (s *Service) UpdateBadge(ctx context.Context, companyID, id string, in BadgeInput) (BadgeDetail, error) {
	if err := core.ValidateName(in.Name); err != nil {
		return BadgeDetail{}, core.InvalidArgumentf("badge name: %v", err)
	}
	if len(in.Conditions) == 0 {
		return BadgeDetail{}, core.InvalidArgumentf("badge requires at least one condition")
	}
	existing, err := s.store.GetBadge(ctx, companyID, id)
	if err != nil {
		return BadgeDetail{}, err
	}
	for _, c := range in.Conditions {
		if err := s.checkCondition(ctx, companyID, c); err != nil {
			return BadgeDetail{}, err
		}
	}

	b := existing.Badge
	b.Name = in.Name
	b.Description = in.Description
	b.Reusable = in.Reusable
	b.Metadata = in.Metadata
	if err := s.store.SaveBadge(ctx, b); err != nil {
		return BadgeDetail{}, err
	}
	for _, old := range existing.Conditions {
		old.Deleted = true
		if err := s.store.SaveCondition(ctx, old); err != nil {
			return BadgeDetail{}, err
		}
	}
	detail := BadgeDetail{Badge: b}
	for _, c := range in.Conditions {
		cond := core.Condition{
			ID:       core.NewID(),
			BadgeID:  id,
			MetricID: c.MetricID,
			Operator: c.Operator,
			Value:    c.Value,
			Type:     c.Type,
			Priority: c.Priority,
		}
		if err := s.store.SaveCondition(ctx, cond); err != nil {
			return BadgeDetail{}, err
		}
		detail.Conditions = append(detail.Conditions, cond)
	}
	return detail, nil
}

func (s *Service) DeleteBadge(ctx context.Context, companyID, id string) error {
	detail, err := s.store.GetBadge(ctx, companyID, id)
	if err != nil {
		return err
	}
	detail.Badge.Deleted = true
	return s.store.SaveBadge(ctx, detail.Badge)
}

func (s *Service) ListBadges(ctx context.Context, companyID string, page Page) ([]BadgeDetail, PageInfo, error) {
	page, err := ValidatePage("badge", page)
	if err != nil {
		return nil, PageInfo{}, err
	}
	items, total, err := s.store.ListBadges(ctx, companyID, page)
	if err != nil {
		return nil, PageInfo{}, err
	}
	return items, NewPageInfo(page, total), nil
}

func (s *Service) checkCondition(ctx context.Context, companyID string, c ConditionInput) error {
	if _, err := s.store.GetMetric(ctx, companyID, c.MetricID); err != nil {
		return err
	}
	switch c.Type {
	case core.ConditionFirstEvent:
		return nil
	case core.ConditionConditional:
		if c.Value == nil {
			return core.InvalidArgumentf("conditional badge condition requires a value")
		}
		switch c.Operator {
		case core.OpGT, core.OpGTE, core.OpLT, core.OpLTE, core.OpEQ:
			return nil
		default:
			return core.InvalidArgumentf("unknown condition operator %q", c.Operator)
		}
	default:
		return core.InvalidArgumentf("unknown condition type %q", c.Type)
	}
}

// ---- rewards ----

func (s *Service) CreateReward(ctx context.Context, companyID string, in RewardInput) (core.Reward, error) {
	if err := validateReward(in); err != nil {
		return core.Reward{}, err
	}
	r := core.Reward{
		ID:          core.NewID(),
		CompanyID:   companyID,
		Name:        in.Name,
		Description: in.Description,
		XPThreshold: in.XPThreshold,
		Value:       in.Value,
		Quantity:    in.Quantity,
		ExpiresAt:   in.ExpiresAt,
		Metadata:    in.Metadata,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.SaveReward(ctx, r); err != nil {
		return core.Reward{}, err
	}
	return r, nil
}

func (s *Service) GetReward(ctx context.Context, companyID, id string) (core.Reward, error) {
	return s.store.GetReward(ctx, companyID, id)
}

func (s *Service) UpdateReward(ctx context.Context, companyID, id string, in RewardInput) (core.Reward, error) {
	if err := validateReward(in); err != nil {
		return core.Reward{}, err
	}
	r, err := s.store.GetReward(ctx, companyID, id)
	if err != nil {
		return core.Reward{}, err
	}
	r.Name = in.Name
	r.Description = in.Description
	r.XPThreshold = in.XPThreshold
	r.Value = in.Value
	r.Quantity = in.Quantity
	r.ExpiresAt = in.ExpiresAt
	r.Metadata = in.Metadata
	if err := s.store.SaveReward(ctx, r); err != nil {
		return core.Reward{}, err
	}
	return r, nil
}

func (s *Service) DeleteReward(ctx context.Context, companyID, id string) error {
	r, err := s.store.GetReward(ctx, companyID, id)
	if err != nil {
		return err
	}
	r.Deleted = true
	return s.store.SaveReward(ctx, r)
}

func (s *Service) ListRewards(ctx context.Context, companyID string, page Page) ([]core.Reward, PageInfo, error) {
	page, err := ValidatePage("reward", page)
	if err != nil {
		return nil, PageInfo{}, err
	}
	items, total, err := s.store.ListRewards(ctx, companyID, page)
	if err != nil {
		return nil, PageInfo{}, err
	}
	return items, NewPageInfo(page, total), nil
}

func validateReward(in RewardInput) error {
	if err := core.ValidateName(in.Name); err != nil {
		return core.InvalidArgumentf("reward name: %v", err)
	}
	if in.XPThreshold < 0 {
		return core.InvalidArgumentf("reward xp threshold must not be negative")
	}
	if in.Quantity < 0 {
		return core.InvalidArgumentf("reward quantity must not be negative")
	}
	return nil
}
