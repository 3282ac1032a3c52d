package sqlx

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"gamifyd/core"
	"gamifyd/engine"
)

// sqlTx implements engine.Tx on an open database transaction. Row locks from
// the *ForUpdate reads hold until the enclosing InTx commits or rolls back.
type sqlTx struct {
	q         *sqlx.Tx
	store     *Store
	companyID string
}

var _ engine.Tx = (*sqlTx)(nil)

func (t *sqlTx) HasMetricHistory(ctx context.Context, userID, metricID string) (bool, error) {
	var exists bool
	err := t.q.GetContext(ctx, &exists, t.store.rebind(
		`SELECT EXISTS (
		   SELECT 1 FROM metric_history
		   WHERE user_id = ? AND metric_id = ? AND deleted = FALSE
		 )`), userID, metricID)
	return exists, mapErr(err)
}

func (t *sqlTx) InsertMetricHistory(ctx context.Context, h core.MetricHistory) error {
	_, err := t.q.ExecContext(ctx, t.store.rebind(
		`INSERT INTO metric_history (`+historyCols+`) VALUES (?, ?, ?, ?, ?, ?)`),
		h.ID, h.UserID, h.MetricID, h.Value, h.CreatedAt, h.Deleted)
	return mapErr(err)
}

func (t *sqlTx) ObjectivesForMetric(ctx context.Context, companyID, metricID string) ([]engine.ObjectiveProgress, error) {
	var rows []objectiveRow
	err := t.q.SelectContext(ctx, &rows, t.store.rebind(
		`SELECT `+objectiveCols+` FROM objectives
		 WHERE company_id = ? AND metric_id = ? AND deleted = FALSE ORDER BY id`), companyID, metricID)
	if err != nil {
		return nil, mapErr(err)
	}
	out := make([]engine.ObjectiveProgress, len(rows))
	for i, r := range rows {
		trackers, err := t.lockedTrackers(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		out[i] = engine.ObjectiveProgress{Objective: r.domain(), Trackers: trackers}
	}
	return out, nil
}

// lockedTrackers reads an objective's live trackers with row locks so
// concurrent increments on the same objective serialize.
func (t *sqlTx) lockedTrackers(ctx context.Context, objectiveID string) ([]core.ObjectiveTracker, error) {
	var rows []trackerRow
	err := t.q.SelectContext(ctx, &rows, t.store.rebind(
		`SELECT `+trackerCols+` FROM objective_trackers
		 WHERE objective_id = ? AND deleted = FALSE ORDER BY id FOR UPDATE`), objectiveID)
	if err != nil {
		return nil, mapErr(err)
	}
	out := make([]core.ObjectiveTracker, len(rows))
	for i, r := range rows {
		out[i] = r.domain()
	}
	return out, nil
}

func (t *sqlTx) SaveTracker(ctx context.Context, tr core.ObjectiveTracker) error {
	return t.store.saveTracker(ctx, t.q, tr)
}

func (t *sqlTx) GetUserForUpdate(ctx context.Context, companyID, userID string) (core.User, error) {
	return t.store.getUser(ctx, t.q, companyID, userID, true)
}

func (t *sqlTx) SaveUserProgress(ctx context.Context, userID string, xp, usedXP, level int64) error {
	res, err := t.q.ExecContext(ctx, t.store.rebind(
		`UPDATE users SET xp = ?, used_xp = ?, level = ? WHERE id = ? AND deleted = FALSE`),
		xp, usedXP, level, userID)
	if err != nil {
		return mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.NotFoundf("user %s", userID)
	}
	return nil
}

func (t *sqlTx) BadgesForMetric(ctx context.Context, companyID, metricID, userID string) ([]engine.BadgeRules, error) {
	var rows []badgeRow
	err := t.q.SelectContext(ctx, &rows, t.store.rebind(
		`SELECT DISTINCT b.id, b.company_id, b.name, b.description, b.reusable, b.metadata, b.created_at, b.deleted
		 FROM badges b
		 JOIN badge_conditions c ON c.badge_id = b.id AND c.deleted = FALSE
		 WHERE b.company_id = ? AND c.metric_id = ? AND b.deleted = FALSE
		 ORDER BY b.id`), companyID, metricID)
	if err != nil {
		return nil, mapErr(err)
	}
	out := make([]engine.BadgeRules, len(rows))
	for i, r := range rows {
		conds, err := t.store.badgeConditions(ctx, t.q, r.ID, metricID)
		if err != nil {
			return nil, err
		}
		var held int
		if err := t.q.GetContext(ctx, &held, t.store.rebind(
			`SELECT COUNT(*) FROM earned_badges
			 WHERE user_id = ? AND badge_id = ? AND deleted = FALSE`), userID, r.ID); err != nil {
			return nil, mapErr(err)
		}
		out[i] = engine.BadgeRules{Badge: r.domain(), Conditions: conds, HeldCount: held}
	}
	return out, nil
}

func (t *sqlTx) InsertEarnedBadge(ctx context.Context, e core.EarnedBadge) error {
	_, err := t.q.ExecContext(ctx, t.store.rebind(
		`INSERT INTO earned_badges (id, user_id, badge_id, created_at, deleted) VALUES (?, ?, ?, ?, ?)`),
		e.ID, e.UserID, e.BadgeID, e.CreatedAt, e.Deleted)
	return mapErr(err)
}

func (t *sqlTx) GetRewardForUpdate(ctx context.Context, companyID, rewardID string) (core.Reward, error) {
	return t.store.getReward(ctx, t.q, companyID, rewardID, true)
}

func (t *sqlTx) SaveRewardQuantity(ctx context.Context, rewardID string, quantity int64) error {
	res, err := t.q.ExecContext(ctx, t.store.rebind(
		`UPDATE rewards SET quantity = ? WHERE id = ? AND deleted = FALSE`), quantity, rewardID)
	if err != nil {
		return mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.NotFoundf("reward %s", rewardID)
	}
	return nil
}

func (t *sqlTx) InsertUserReward(ctx context.Context, r core.UserReward) error {
	var claimedAt sql.NullTime
	if !r.ClaimedAt.IsZero() {
		claimedAt = sql.NullTime{Time: r.ClaimedAt, Valid: true}
	}
	_, err := t.q.ExecContext(ctx, t.store.rebind(
		`INSERT INTO user_rewards (id, user_id, reward_id, status, claimed_at, deleted) VALUES (?, ?, ?, ?, ?, ?)`),
		r.ID, r.UserID, r.RewardID, string(r.Status), claimedAt, r.Deleted)
	return mapErr(err)
}
