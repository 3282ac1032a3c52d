package memory

import (
	"context"
	"sort"

	"gamifyd/core"
	"gamifyd/engine"
)

// memTx buffers writes in its own tables and reads through to the live
// store. The per-company lock held by InTx guarantees no concurrent writer
// for the same tenant; the store mutex is still taken around live-table
// scans because other tenants may commit concurrently.
type memTx struct {
	s         *Store
	companyID string
	w         tables
}

var _ engine.Tx = (*memTx)(nil)

func (t *memTx) withRead(fn func(live tables)) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	fn(t.s.tb)
}

func (t *memTx) HasMetricHistory(_ context.Context, userID, metricID string) (bool, error) {
	for _, h := range t.w.history {
		if !h.Deleted && h.UserID == userID && h.MetricID == metricID {
			return true, nil
		}
	}
	found := false
	t.withRead(func(live tables) {
		for _, h := range live.history {
			if !h.Deleted && h.UserID == userID && h.MetricID == metricID {
				found = true
				return
			}
		}
	})
	return found, nil
}

func (t *memTx) InsertMetricHistory(_ context.Context, h core.MetricHistory) error {
	t.w.history[h.ID] = h
	return nil
}

func (t *memTx) ObjectivesForMetric(_ context.Context, companyID, metricID string) ([]engine.ObjectiveProgress, error) {
	var out []engine.ObjectiveProgress
	t.withRead(func(live tables) {
		for _, o := range live.objectives {
			if o.Deleted || o.CompanyID != companyID || o.MetricID != metricID {
				continue
			}
			out = append(out, engine.ObjectiveProgress{
				Objective: o,
				Trackers:  t.trackersFor(live, o.ID),
			})
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Objective.ID < out[j].Objective.ID })
	return out, nil
}

// trackersFor merges live and buffered trackers; callers hold the store lock.
func (t *memTx) trackersFor(live tables, objectiveID string) []core.ObjectiveTracker {
	var out []core.ObjectiveTracker
	for id, tr := range live.trackers {
		if _, shadowed := t.w.trackers[id]; shadowed {
			continue
		}
		if !tr.Deleted && tr.ObjectiveID == objectiveID {
			out = append(out, tr)
		}
	}
	for _, tr := range t.w.trackers {
		if !tr.Deleted && tr.ObjectiveID == objectiveID {
			out = append(out, tr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (t *memTx) SaveTracker(_ context.Context, tr core.ObjectiveTracker) error {
	t.w.trackers[tr.ID] = tr
	return nil
}

func (t *memTx) GetUserForUpdate(_ context.Context, companyID, userID string) (core.User, error) {
	if u, ok := t.w.users[userID]; ok {
		if u.Deleted || u.CompanyID != companyID {
			return core.User{}, core.NotFoundf("user %s", userID)
		}
		return u, nil
	}
	var (
		u   core.User
		err error
	)
	t.withRead(func(live tables) {
		u, err = getUser(live, companyID, userID)
	})
	return u, err
}

func (t *memTx) SaveUserProgress(ctx context.Context, userID string, xp, usedXP, level int64) error {
	u, err := t.GetUserForUpdate(ctx, t.companyID, userID)
	if err != nil {
		return err
	}
	u.XP = xp
	u.UsedXP = usedXP
	u.Level = level
	t.w.users[userID] = u
	return nil
}

func (t *memTx) BadgesForMetric(_ context.Context, companyID, metricID, userID string) ([]engine.BadgeRules, error) {
	var out []engine.BadgeRules
	t.withRead(func(live tables) {
		for _, b := range live.badges {
			if b.Deleted || b.CompanyID != companyID {
				continue
			}
			conds := badgeConditions(live, b.ID, metricID)
			if len(conds) == 0 {
				continue
			}
			out = append(out, engine.BadgeRules{
				Badge:      b,
				Conditions: conds,
				HeldCount:  t.heldCount(live, userID, b.ID),
			})
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Badge.ID < out[j].Badge.ID })
	return out, nil
}

// heldCount merges live and buffered earned badges; callers hold the store lock.
func (t *memTx) heldCount(live tables, userID, badgeID string) int {
	n := 0
	for id, e := range live.earned {
		if _, shadowed := t.w.earned[id]; shadowed {
			continue
		}
		if !e.Deleted && e.UserID == userID && e.BadgeID == badgeID {
			n++
		}
	}
	for _, e := range t.w.earned {
		if !e.Deleted && e.UserID == userID && e.BadgeID == badgeID {
			n++
		}
	}
	return n
}

func (t *memTx) InsertEarnedBadge(_ context.Context, e core.EarnedBadge) error {
	t.w.earned[e.ID] = e
	return nil
}

func (t *memTx) GetRewardForUpdate(_ context.Context, companyID, rewardID string) (core.Reward, error) {
	if r, ok := t.w.rewards[rewardID]; ok {
		if r.Deleted || r.CompanyID != companyID {
			return core.Reward{}, core.NotFoundf("reward %s", rewardID)
		}
		return r, nil
	}
	var (
		r   core.Reward
		err error
	)
	t.withRead(func(live tables) {
		r, err = getReward(live, companyID, rewardID)
	})
	return r, err
}

func (t *memTx) SaveRewardQuantity(ctx context.Context, rewardID string, quantity int64) error {
	r, err := t.GetRewardForUpdate(ctx, t.companyID, rewardID)
	if err != nil {
		return err
	}
	r.Quantity = quantity
	t.w.rewards[rewardID] = r
	return nil
}

func (t *memTx) InsertUserReward(_ context.Context, r core.UserReward) error {
	t.w.userRewards[r.ID] = r
	return nil
}
