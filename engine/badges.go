package engine

import (
	"context"
	"sort"
	"time"

	"gamifyd/core"
)

// evaluateBadges checks every badge wired to the incremented metric and
// awards at most one earned-badge row per badge per call. Conditions are
// tried in ascending priority; the first satisfied condition wins and the
// rest are skipped. Badges marked non-reusable are skipped entirely once
// the user already holds them.
func evaluateBadges(ctx context.Context, tx Tx, badges []BadgeRules, userID string, value int64, firstEvent bool, now time.Time) ([]core.EarnedBadge, error) {
	var awarded []core.EarnedBadge
	for _, b := range badges {
		if b.Badge.Deleted {
			continue
		}
		if !b.Badge.Reusable && b.HeldCount > 0 {
			continue
		}

		conds := make([]core.Condition, 0, len(b.Conditions))
		for _, c := range b.Conditions {
			if !c.Deleted {
				conds = append(conds, c)
			}
		}
		sort.SliceStable(conds, func(i, j int) bool {
			return conds[i].Priority < conds[j].Priority
		})

		for _, cond := range conds {
			if !cond.Satisfied(value, firstEvent) {
				continue
			}
			earned := core.EarnedBadge{
				ID:        core.NewID(),
				UserID:    userID,
				BadgeID:   b.Badge.ID,
				CreatedAt: now,
			}
			if err := tx.InsertEarnedBadge(ctx, earned); err != nil {
				return nil, err
			}
			awarded = append(awarded, earned)
			break
		}
	}
	return awarded, nil
}
