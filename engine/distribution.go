package engine

import "gamifyd/core"

// Distribution selects who is credited the objective reward when a tracker
// completes on a team objective.
type Distribution string

const (
	// DistributeInitiator credits the full reward to the user whose event
	// triggered the completion. This matches the historical behavior and is
	// the default.
	DistributeInitiator Distribution = "initiator"
	// DistributeEqual splits the reward evenly across the objective's live
	// trackers; the initiator absorbs the rounding remainder.
	DistributeEqual Distribution = "equal"
	// DistributeProportional splits the reward by each tracker's share of
	// the objective's total progress; the initiator absorbs the remainder.
	DistributeProportional Distribution = "proportional"
)

// Valid reports whether d names a known strategy.
func (d Distribution) Valid() bool {
	switch d {
	case DistributeInitiator, DistributeEqual, DistributeProportional:
		return true
	}
	return false
}

// shareRewardXP assigns rewardXP across users according to the policy.
// Solo objectives always credit the completing tracker's own user in full,
// regardless of policy. The returned map is keyed by user ID.
func shareRewardXP(policy Distribution, op ObjectiveProgress, completed core.ObjectiveTracker, actorID string, rewardXP int64) map[string]int64 {
	shares := map[string]int64{}
	if rewardXP <= 0 {
		return shares
	}
	if op.Objective.Type != core.ObjectiveTeam {
		shares[completed.UserID] = rewardXP
		return shares
	}

	live := make([]core.ObjectiveTracker, 0, len(op.Trackers))
	var totalProgress int64
	for _, t := range op.Trackers {
		if t.Deleted {
			continue
		}
		live = append(live, t)
		totalProgress += t.Progress
	}

	switch policy {
	case DistributeEqual:
		if len(live) == 0 {
			shares[actorID] = rewardXP
			return shares
		}
		per := rewardXP / int64(len(live))
		var given int64
		for _, t := range live {
			shares[t.UserID] += per
			given += per
		}
		shares[actorID] += rewardXP - given
	case DistributeProportional:
		if totalProgress <= 0 {
			shares[actorID] = rewardXP
			return shares
		}
		var given int64
		for _, t := range live {
			part := rewardXP * t.Progress / totalProgress
			shares[t.UserID] += part
			given += part
		}
		shares[actorID] += rewardXP - given
	default:
		shares[actorID] = rewardXP
	}
	return shares
}
