package engine

import (
	"context"

	"gamifyd/core"
)

// ObjectiveProgress is an objective together with its live (non-deleted)
// trackers, as loaded inside an increment transaction.
type ObjectiveProgress struct {
	Objective core.Objective          `json:"objective"`
	Trackers  []core.ObjectiveTracker `json:"trackers"`
}

// BadgeDetail is a badge with its live conditions in ascending priority
// order.
type BadgeDetail struct {
	Badge      core.Badge       `json:"badge"`
	Conditions []core.Condition `json:"conditions"`
}

// BadgeRules is a candidate badge for award evaluation. HeldCount is the
// number of non-deleted EarnedBadge rows the acting user already holds.
type BadgeRules struct {
	Badge      core.Badge
	Conditions []core.Condition
	HeldCount  int
}

// Tx is the unit of work for the transactional workflows (metric increment,
// reward claim). All methods observe writes made earlier in the same
// transaction. The enclosing InTx call commits when the callback returns nil
// and rolls back everything otherwise.
type Tx interface {
	// HasMetricHistory reports whether a non-deleted history row exists for
	// the (user, metric) pair.
	HasMetricHistory(ctx context.Context, userID, metricID string) (bool, error)
	InsertMetricHistory(ctx context.Context, h core.MetricHistory) error

	// ObjectivesForMetric loads the company's non-deleted objectives bound to
	// the metric, each with all of its non-deleted trackers.
	ObjectivesForMetric(ctx context.Context, companyID, metricID string) ([]ObjectiveProgress, error)
	SaveTracker(ctx context.Context, t core.ObjectiveTracker) error

	// GetUserForUpdate reads a user row with an exclusive claim on it for the
	// remainder of the transaction.
	GetUserForUpdate(ctx context.Context, companyID, userID string) (core.User, error)
	SaveUserProgress(ctx context.Context, userID string, xp, usedXP, level int64) error

	// BadgesForMetric loads the company's non-deleted badges that have at
	// least one live condition on the metric, conditions ordered by ascending
	// priority, with the user's held count per badge.
	BadgesForMetric(ctx context.Context, companyID, metricID, userID string) ([]BadgeRules, error)
	InsertEarnedBadge(ctx context.Context, e core.EarnedBadge) error

	GetRewardForUpdate(ctx context.Context, companyID, rewardID string) (core.Reward, error)
	SaveRewardQuantity(ctx context.Context, rewardID string, quantity int64) error
	InsertUserReward(ctx context.Context, r core.UserReward) error
}

// Store abstracts persistence for the gamification domain. Save methods
// create the row when absent and replace it wholesale when present; soft
// deletes go through Save with the Deleted flag set. Reads never return
// soft-deleted rows unless documented otherwise.
type Store interface {
	// InTx runs fn as one atomic transaction scoped to a company.
	// Transactions touching the same user or tracker rows serialize;
	// implementations may instead fail fast with core.ErrTxConflict, which
	// the orchestrator retries.
	InTx(ctx context.Context, companyID string, fn func(tx Tx) error) error

	CompanyByAPIKey(ctx context.Context, apiKey string) (core.Company, error)
	SaveCompany(ctx context.Context, c core.Company) error

	GetUser(ctx context.Context, companyID, id string) (core.User, error)
	SaveUser(ctx context.Context, u core.User) error
	ListUsers(ctx context.Context, companyID string, p Page) ([]core.User, int, error)

	GetTeam(ctx context.Context, companyID, id string) (core.Team, error)
	SaveTeam(ctx context.Context, t core.Team) error
	ListTeams(ctx context.Context, companyID string, p Page) ([]core.Team, int, error)

	GetMetric(ctx context.Context, companyID, id string) (core.Metric, error)
	SaveMetric(ctx context.Context, m core.Metric) error
	ListMetrics(ctx context.Context, companyID string, p Page) ([]core.Metric, int, error)
	// MetricNameTaken reports whether another live metric in the company
	// already uses the name.
	MetricNameTaken(ctx context.Context, companyID, name, excludeID string) (bool, error)

	GetObjective(ctx context.Context, companyID, id string) (core.Objective, error)
	SaveObjective(ctx context.Context, o core.Objective) error
	ListObjectives(ctx context.Context, companyID string, p Page) ([]ObjectiveProgress, int, error)
	// TrackersForObjective returns every tracker of the objective, including
	// tombstoned ones, so membership reconciliation can restore them.
	TrackersForObjective(ctx context.Context, objectiveID string) ([]core.ObjectiveTracker, error)
	// TrackersForUser returns the user's non-deleted trackers across all
	// objectives.
	TrackersForUser(ctx context.Context, userID string) ([]core.ObjectiveTracker, error)
	SaveTracker(ctx context.Context, t core.ObjectiveTracker) error

	GetBadge(ctx context.Context, companyID, id string) (BadgeDetail, error)
	SaveBadge(ctx context.Context, b core.Badge) error
	SaveCondition(ctx context.Context, c core.Condition) error
	ListBadges(ctx context.Context, companyID string, p Page) ([]BadgeDetail, int, error)

	GetReward(ctx context.Context, companyID, id string) (core.Reward, error)
	SaveReward(ctx context.Context, r core.Reward) error
	ListRewards(ctx context.Context, companyID string, p Page) ([]core.Reward, int, error)

	// UserMetricHistory lists a user's non-deleted history, newest first,
	// optionally filtered to one metric (empty metricID means all).
	UserMetricHistory(ctx context.Context, companyID, userID, metricID string, p Page) ([]core.MetricHistory, int, error)
}
