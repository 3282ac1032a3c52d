package memory

import (
	"encoding/json"

	"gamifyd/core"
)

// snapshot is the serialized form of every table, used by persistence
// wrappers such as the jsonfile adapter.
type snapshot struct {
	Companies   []core.Company          `json:"companies,omitempty"`
	Users       []core.User             `json:"users,omitempty"`
	Teams       []core.Team             `json:"teams,omitempty"`
	Metrics     []core.Metric           `json:"metrics,omitempty"`
	History     []core.MetricHistory    `json:"history,omitempty"`
	Objectives  []core.Objective        `json:"objectives,omitempty"`
	Trackers    []core.ObjectiveTracker `json:"trackers,omitempty"`
	Badges      []core.Badge            `json:"badges,omitempty"`
	Conditions  []core.Condition        `json:"conditions,omitempty"`
	Earned      []core.EarnedBadge      `json:"earned_badges,omitempty"`
	Rewards     []core.Reward           `json:"rewards,omitempty"`
	UserRewards []core.UserReward       `json:"user_rewards,omitempty"`
}

// Snapshot serializes the full state, soft-deleted rows included, so a
// restore is byte-for-byte equivalent to the live store.
func (s *Store) Snapshot() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := snapshot{}
	for _, v := range s.tb.companies {
		snap.Companies = append(snap.Companies, v)
	}
	for _, v := range s.tb.users {
		snap.Users = append(snap.Users, v)
	}
	for _, v := range s.tb.teams {
		snap.Teams = append(snap.Teams, v)
	}
	for _, v := range s.tb.metrics {
		snap.Metrics = append(snap.Metrics, v)
	}
	for _, v := range s.tb.history {
		snap.History = append(snap.History, v)
	}
	for _, v := range s.tb.objectives {
		snap.Objectives = append(snap.Objectives, v)
	}
	for _, v := range s.tb.trackers {
		snap.Trackers = append(snap.Trackers, v)
	}
	for _, v := range s.tb.badges {
		snap.Badges = append(snap.Badges, v)
	}
	for _, v := range s.tb.conditions {
		snap.Conditions = append(snap.Conditions, v)
	}
	for _, v := range s.tb.earned {
		snap.Earned = append(snap.Earned, v)
	}
	for _, v := range s.tb.rewards {
		snap.Rewards = append(snap.Rewards, v)
	}
	for _, v := range s.tb.userRewards {
		snap.UserRewards = append(snap.UserRewards, v)
	}
	return json.MarshalIndent(snap, "", "  ")
}

// Restore replaces the full state with a previously taken Snapshot.
func (s *Store) Restore(b []byte) error {
	var snap snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return err
	}

	tb := newTables()
	for _, v := range snap.Companies {
		tb.companies[v.ID] = v
	}
	for _, v := range snap.Users {
		tb.users[v.ID] = v
	}
	for _, v := range snap.Teams {
		tb.teams[v.ID] = v
	}
	for _, v := range snap.Metrics {
		tb.metrics[v.ID] = v
	}
	for _, v := range snap.History {
		tb.history[v.ID] = v
	}
	for _, v := range snap.Objectives {
		tb.objectives[v.ID] = v
	}
	for _, v := range snap.Trackers {
		tb.trackers[v.ID] = v
	}
	for _, v := range snap.Badges {
		tb.badges[v.ID] = v
	}
	for _, v := range snap.Conditions {
		tb.conditions[v.ID] = v
	}
	for _, v := range snap.Earned {
		tb.earned[v.ID] = v
	}
	for _, v := range snap.Rewards {
		tb.rewards[v.ID] = v
	}
	for _, v := range snap.UserRewards {
		tb.userRewards[v.ID] = v
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tb = tb
	return nil
}
