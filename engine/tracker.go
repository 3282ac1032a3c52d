package engine

import (
	"context"
	"time"

	"gamifyd/core"
)

// trackerOutcome describes what one increment did to one objective.
type trackerOutcome struct {
	// completions holds the trackers that transitioned to completed on this
	// increment, in tracker order.
	completions []core.ObjectiveTracker
}

// advanceTrackers applies one increment of value to the objective's trackers
// and persists the new state through tx. Solo objectives advance only the
// acting user's tracker; team objectives advance every live tracker, so one
// member's event moves the whole team forward.
//
// Progress always advances, even past the target. Completed is monotonic:
// CompletedAt is set exactly once, on the false-to-true transition, and an
// already-completed tracker never earns the objective reward again.
func advanceTrackers(ctx context.Context, tx Tx, op *ObjectiveProgress, actorID string, value int64, now time.Time) (trackerOutcome, error) {
	var out trackerOutcome
	for i := range op.Trackers {
		tracker := &op.Trackers[i]
		if tracker.Deleted {
			continue
		}
		if op.Objective.Type != core.ObjectiveTeam && tracker.UserID != actorID {
			continue
		}

		wasCompleted := tracker.Completed
		tracker.Progress += value
		tracker.Completed = tracker.Progress >= op.Objective.TargetValue

		switch {
		case wasCompleted:
			tracker.Completed = true // never revert
		case tracker.Completed:
			at := now
			tracker.CompletedAt = &at
		default:
			tracker.CompletedAt = nil
		}

		if err := tx.SaveTracker(ctx, *tracker); err != nil {
			return trackerOutcome{}, err
		}
		if tracker.Completed && !wasCompleted {
			out.completions = append(out.completions, *tracker)
		}
	}
	return out, nil
}
