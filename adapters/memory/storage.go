// Package memory provides an in-memory Store for tests, demos, and
// single-process deployments. Transactions are serialized per company, so a
// transaction never observes a torn write from a concurrent increment in the
// same tenant.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"gamifyd/core"
	"gamifyd/engine"
)

// Store keeps every table in a map keyed by row ID. A single RWMutex guards
// the maps; per-company mutexes serialize InTx calls so read-modify-write
// cycles inside a transaction stay consistent without row versioning.
type Store struct {
	mu sync.RWMutex
	tb tables

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

type tables struct {
	companies   map[string]core.Company
	users       map[string]core.User
	teams       map[string]core.Team
	metrics     map[string]core.Metric
	history     map[string]core.MetricHistory
	objectives  map[string]core.Objective
	trackers    map[string]core.ObjectiveTracker
	badges      map[string]core.Badge
	conditions  map[string]core.Condition
	earned      map[string]core.EarnedBadge
	rewards     map[string]core.Reward
	userRewards map[string]core.UserReward
}

func newTables() tables {
	return tables{
		companies:   map[string]core.Company{},
		users:       map[string]core.User{},
		teams:       map[string]core.Team{},
		metrics:     map[string]core.Metric{},
		history:     map[string]core.MetricHistory{},
		objectives:  map[string]core.Objective{},
		trackers:    map[string]core.ObjectiveTracker{},
		badges:      map[string]core.Badge{},
		conditions:  map[string]core.Condition{},
		earned:      map[string]core.EarnedBadge{},
		rewards:     map[string]core.Reward{},
		userRewards: map[string]core.UserReward{},
	}
}

func New() *Store {
	return &Store{tb: newTables(), locks: map[string]*sync.Mutex{}}
}

var _ engine.Store = (*Store)(nil)

func (s *Store) companyLock(companyID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	if l, ok := s.locks[companyID]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.locks[companyID] = l
	return l
}

// InTx runs fn against a write buffer. Nothing touches the live tables until
// fn returns nil, at which point the buffer is applied atomically. Two
// transactions for the same company never interleave.
func (s *Store) InTx(ctx context.Context, companyID string, fn func(tx engine.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l := s.companyLock(companyID)
	l.Lock()
	defer l.Unlock()

	tx := &memTx{s: s, companyID: companyID, w: newTables()}
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, v := range tx.w.users {
		s.tb.users[id] = v
	}
	for id, v := range tx.w.history {
		s.tb.history[id] = v
	}
	for id, v := range tx.w.trackers {
		s.tb.trackers[id] = v
	}
	for id, v := range tx.w.earned {
		s.tb.earned[id] = v
	}
	for id, v := range tx.w.rewards {
		s.tb.rewards[id] = v
	}
	for id, v := range tx.w.userRewards {
		s.tb.userRewards[id] = v
	}
	return nil
}

// ---- companies ----

func (s *Store) CompanyByAPIKey(_ context.Context, apiKey string) (core.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.tb.companies {
		if !c.Deleted && c.APIKey == apiKey {
			return c, nil
		}
	}
	return core.Company{}, core.NotFoundf("no company for api key")
}

func (s *Store) SaveCompany(_ context.Context, c core.Company) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tb.companies[c.ID] = c
	return nil
}

// ---- users ----

func (s *Store) GetUser(_ context.Context, companyID, id string) (core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getUser(s.tb, companyID, id)
}

func getUser(tb tables, companyID, id string) (core.User, error) {
	u, ok := tb.users[id]
	if !ok || u.Deleted || u.CompanyID != companyID {
		return core.User{}, core.NotFoundf("user %s", id)
	}
	return u, nil
}

func (s *Store) SaveUser(_ context.Context, u core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tb.users[u.ID] = u
	return nil
}

func (s *Store) ListUsers(_ context.Context, companyID string, p engine.Page) ([]core.User, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.User
	for _, u := range s.tb.users {
		if !u.Deleted && u.CompanyID == companyID {
			out = append(out, u)
		}
	}
	sortSlice(out, p, func(a, b core.User) int {
		switch p.Sort {
		case "name":
			return strings.Compare(a.Name, b.Name)
		case "xp":
			return cmpInt64(a.XP, b.XP)
		case "level":
			return cmpInt64(a.Level, b.Level)
		default:
			return a.CreatedAt.Compare(b.CreatedAt)
		}
	})
	page, total := paginate(out, p)
	return page, total, nil
}

// ---- teams ----

func (s *Store) GetTeam(_ context.Context, companyID, id string) (core.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tb.teams[id]
	if !ok || t.Deleted || t.CompanyID != companyID {
		return core.Team{}, core.NotFoundf("team %s", id)
	}
	return t, nil
}

func (s *Store) SaveTeam(_ context.Context, t core.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tb.teams[t.ID] = t
	return nil
}

func (s *Store) ListTeams(_ context.Context, companyID string, p engine.Page) ([]core.Team, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Team
	for _, t := range s.tb.teams {
		if !t.Deleted && t.CompanyID == companyID {
			out = append(out, t)
		}
	}
	sortSlice(out, p, func(a, b core.Team) int {
		if p.Sort == "name" {
			return strings.Compare(a.Name, b.Name)
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	page, total := paginate(out, p)
	return page, total, nil
}

// ---- metrics ----

func (s *Store) GetMetric(_ context.Context, companyID, id string) (core.Metric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.tb.metrics[id]
	if !ok || m.Deleted || m.CompanyID != companyID {
		return core.Metric{}, core.NotFoundf("metric %s", id)
	}
	return m, nil
}

func (s *Store) SaveMetric(_ context.Context, m core.Metric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tb.metrics[m.ID] = m
	return nil
}

func (s *Store) ListMetrics(_ context.Context, companyID string, p engine.Page) ([]core.Metric, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Metric
	for _, m := range s.tb.metrics {
		if !m.Deleted && m.CompanyID == companyID {
			out = append(out, m)
		}
	}
	sortSlice(out, p, func(a, b core.Metric) int {
		if p.Sort == "name" {
			return strings.Compare(a.Name, b.Name)
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	page, total := paginate(out, p)
	return page, total, nil
}

func (s *Store) MetricNameTaken(_ context.Context, companyID, name, excludeID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.tb.metrics {
		if !m.Deleted && m.CompanyID == companyID && m.ID != excludeID && strings.EqualFold(m.Name, name) {
			return true, nil
		}
	}
	return false, nil
}

// ---- objectives ----

func (s *Store) GetObjective(_ context.Context, companyID, id string) (core.Objective, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.tb.objectives[id]
	if !ok || o.Deleted || o.CompanyID != companyID {
		return core.Objective{}, core.NotFoundf("objective %s", id)
	}
	return o, nil
}

func (s *Store) SaveObjective(_ context.Context, o core.Objective) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tb.objectives[o.ID] = o
	return nil
}

func (s *Store) ListObjectives(_ context.Context, companyID string, p engine.Page) ([]engine.ObjectiveProgress, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []engine.ObjectiveProgress
	for _, o := range s.tb.objectives {
		if o.Deleted || o.CompanyID != companyID {
			continue
		}
		out = append(out, engine.ObjectiveProgress{
			Objective: o,
			Trackers:  liveTrackers(s.tb, o.ID),
		})
	}
	sortSlice(out, p, func(a, b engine.ObjectiveProgress) int {
		switch p.Sort {
		case "name":
			return strings.Compare(a.Objective.Name, b.Objective.Name)
		case "startDate":
			return a.Objective.StartDate.Compare(b.Objective.StartDate)
		case "endDate":
			return a.Objective.EndDate.Compare(b.Objective.EndDate)
		case "targetValue":
			return cmpInt64(a.Objective.TargetValue, b.Objective.TargetValue)
		default:
			return a.Objective.CreatedAt.Compare(b.Objective.CreatedAt)
		}
	})
	page, total := paginate(out, p)
	return page, total, nil
}

func (s *Store) TrackersForObjective(_ context.Context, objectiveID string) ([]core.ObjectiveTracker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.ObjectiveTracker
	for _, t := range s.tb.trackers {
		if t.ObjectiveID == objectiveID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) TrackersForUser(_ context.Context, userID string) ([]core.ObjectiveTracker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.ObjectiveTracker
	for _, t := range s.tb.trackers {
		if !t.Deleted && t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SaveTracker(_ context.Context, t core.ObjectiveTracker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tb.trackers[t.ID] = t
	return nil
}

func liveTrackers(tb tables, objectiveID string) []core.ObjectiveTracker {
	var out []core.ObjectiveTracker
	for _, t := range tb.trackers {
		if !t.Deleted && t.ObjectiveID == objectiveID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ---- badges ----

func (s *Store) GetBadge(_ context.Context, companyID, id string) (engine.BadgeDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.tb.badges[id]
	if !ok || b.Deleted || b.CompanyID != companyID {
		return engine.BadgeDetail{}, core.NotFoundf("badge %s", id)
	}
	return engine.BadgeDetail{Badge: b, Conditions: badgeConditions(s.tb, id, "")}, nil
}

func (s *Store) SaveBadge(_ context.Context, b core.Badge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tb.badges[b.ID] = b
	return nil
}

func (s *Store) SaveCondition(_ context.Context, c core.Condition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tb.conditions[c.ID] = c
	return nil
}

func (s *Store) ListBadges(_ context.Context, companyID string, p engine.Page) ([]engine.BadgeDetail, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []engine.BadgeDetail
	for _, b := range s.tb.badges {
		if b.Deleted || b.CompanyID != companyID {
			continue
		}
		out = append(out, engine.BadgeDetail{Badge: b, Conditions: badgeConditions(s.tb, b.ID, "")})
	}
	sortSlice(out, p, func(a, b engine.BadgeDetail) int {
		if p.Sort == "name" {
			return strings.Compare(a.Badge.Name, b.Badge.Name)
		}
		return a.Badge.CreatedAt.Compare(b.Badge.CreatedAt)
	})
	page, total := paginate(out, p)
	return page, total, nil
}

// badgeConditions returns the badge's live conditions in ascending priority,
// optionally restricted to one metric.
func badgeConditions(tb tables, badgeID, metricID string) []core.Condition {
	var out []core.Condition
	for _, c := range tb.conditions {
		if c.Deleted || c.BadgeID != badgeID {
			continue
		}
		if metricID != "" && c.MetricID != metricID {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// ---- rewards ----

func (s *Store) GetReward(_ context.Context, companyID, id string) (core.Reward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getReward(s.tb, companyID, id)
}

func getReward(tb tables, companyID, id string) (core.Reward, error) {
	r, ok := tb.rewards[id]
	if !ok || r.Deleted || r.CompanyID != companyID {
		return core.Reward{}, core.NotFoundf("reward %s", id)
	}
	return r, nil
}

func (s *Store) SaveReward(_ context.Context, r core.Reward) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tb.rewards[r.ID] = r
	return nil
}

func (s *Store) ListRewards(_ context.Context, companyID string, p engine.Page) ([]core.Reward, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Reward
	for _, r := range s.tb.rewards {
		if !r.Deleted && r.CompanyID == companyID {
			out = append(out, r)
		}
	}
	sortSlice(out, p, func(a, b core.Reward) int {
		switch p.Sort {
		case "name":
			return strings.Compare(a.Name, b.Name)
		case "xpThreshold":
			return cmpInt64(a.XPThreshold, b.XPThreshold)
		case "quantity":
			return cmpInt64(a.Quantity, b.Quantity)
		default:
			return a.CreatedAt.Compare(b.CreatedAt)
		}
	})
	page, total := paginate(out, p)
	return page, total, nil
}

// ---- history ----

func (s *Store) UserMetricHistory(_ context.Context, companyID, userID, metricID string, p engine.Page) ([]core.MetricHistory, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, err := getUser(s.tb, companyID, userID); err != nil {
		return nil, 0, err
	}
	var out []core.MetricHistory
	for _, h := range s.tb.history {
		if h.Deleted || h.UserID != userID {
			continue
		}
		if metricID != "" && h.MetricID != metricID {
			continue
		}
		out = append(out, h)
	}
	sortSlice(out, p, func(a, b core.MetricHistory) int {
		if p.Sort == "value" {
			return cmpInt64(a.Value, b.Value)
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	page, total := paginate(out, p)
	return page, total, nil
}

// ---- helpers ----

func sortSlice[T any](items []T, p engine.Page, cmp func(a, b T) int) {
	sort.SliceStable(items, func(i, j int) bool {
		c := cmp(items[i], items[j])
		if p.Direction == "asc" {
			return c < 0
		}
		return c > 0
	})
}

func paginate[T any](items []T, p engine.Page) ([]T, int) {
	total := len(items)
	off := p.Offset()
	if off >= total {
		return nil, total
	}
	end := off + p.Limit
	if end > total {
		end = total
	}
	return items[off:end], total
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
