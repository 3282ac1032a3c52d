package engine

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"

	"gamifyd/core"
)

// Options tunes a Service. Zero values fall back to sensible defaults.
type Options struct {
	Curve        core.LevelCurve
	Distribution Distribution
	MaxRetries   int
	Logger       *slog.Logger
}

// Service wires storage, the event bus, and the progression rules into a
// cohesive API. All mutations that touch more than one record go through
// Store.InTx so a failure leaves no partial writes behind.
type Service struct {
	store      Store
	bus        *EventBus
	curve      core.LevelCurve
	dist       Distribution
	maxRetries int
	log        *slog.Logger
}

func NewService(store Store, bus *EventBus, opts Options) *Service {
	if store == nil || bus == nil {
		panic("NewService requires non-nil store and bus")
	}
	if opts.Curve.BaseXP <= 0 || opts.Curve.GrowthFactor <= 1 {
		opts.Curve = core.DefaultCurve()
	}
	if !opts.Distribution.Valid() {
		opts.Distribution = DistributeInitiator
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		store:      store,
		bus:        bus,
		curve:      opts.Curve,
		dist:       opts.Distribution,
		maxRetries: opts.MaxRetries,
		log:        opts.Logger,
	}
}

// Subscribe convenience method.
func (s *Service) Subscribe(typ core.EventType, handler func(context.Context, core.Event)) func() {
	return s.bus.Subscribe(typ, handler)
}

func (s *Service) Close() { s.bus.Close() }

// IncrementResult describes everything a single metric increment changed.
type IncrementResult struct {
	User                core.User
	FirstEvent          bool
	XPGained            int64
	LeveledUp           bool
	CompletedObjectives []core.ObjectiveTracker
	AwardedBadges       []core.EarnedBadge
}

// IncrementMetric records a metric event for a user and runs the whole
// progression pipeline in one transaction: history insert, objective
// trackers, XP and level updates, and badge evaluation. Serialization
// conflicts are retried with exponential backoff; any other error aborts.
func (s *Service) IncrementMetric(ctx context.Context, companyID, userID, metricID string, value int64) (IncrementResult, error) {
	if value <= 0 {
		return IncrementResult{}, core.InvalidArgumentf("increment value must be positive, got %d", value)
	}

	metric, err := s.store.GetMetric(ctx, companyID, metricID)
	if err != nil {
		return IncrementResult{}, err
	}
	if _, err := s.store.GetUser(ctx, companyID, userID); err != nil {
		return IncrementResult{}, err
	}

	var (
		result IncrementResult
		events []core.Event
	)
	attempt := func() error {
		result = IncrementResult{}
		events = events[:0]
		now := time.Now().UTC()

		err := s.store.InTx(ctx, companyID, func(tx Tx) error {
			seen, err := tx.HasMetricHistory(ctx, userID, metricID)
			if err != nil {
				return err
			}
			result.FirstEvent = !seen

			history := core.MetricHistory{
				ID:        core.NewID(),
				UserID:    userID,
				MetricID:  metricID,
				Value:     value,
				CreatedAt: now,
			}
			if err := tx.InsertMetricHistory(ctx, history); err != nil {
				return err
			}
			events = append(events, core.NewMetricIncremented(companyID, userID, metricID, value))

			objectives, err := tx.ObjectivesForMetric(ctx, companyID, metricID)
			if err != nil {
				return err
			}

			xpByUser := map[string]int64{userID: value * metric.DefaultGainXP}
			for i := range objectives {
				op := &objectives[i]
				if !objectiveActive(op.Objective, now) {
					continue
				}
				outcome, err := advanceTrackers(ctx, tx, op, userID, value, now)
				if err != nil {
					return err
				}
				for _, done := range outcome.completions {
					result.CompletedObjectives = append(result.CompletedObjectives, done)
					events = append(events, core.NewObjectiveCompleted(companyID, done.UserID, op.Objective.ID, op.Objective.RewardXP))
					for uid, share := range shareRewardXP(s.dist, *op, done, userID, op.Objective.RewardXP) {
						sum, err := core.AddSafe(xpByUser[uid], share)
						if err != nil {
							return err
						}
						xpByUser[uid] = sum
					}
				}
			}

			for _, uid := range sortedKeys(xpByUser) {
				gain := xpByUser[uid]
				user, err := tx.GetUserForUpdate(ctx, companyID, uid)
				if errors.Is(err, core.ErrNotFound) && uid != userID {
					// teammate deleted after their tracker was read; their
					// share is forfeited, the increment still commits
					continue
				}
				if err != nil {
					return err
				}
				newXP, err := core.AddSafe(user.XP, gain)
				if err != nil {
					return err
				}
				newLevel := s.curve.LevelForXP(newXP)
				if err := tx.SaveUserProgress(ctx, uid, newXP, user.UsedXP, newLevel); err != nil {
					return err
				}
				if gain != 0 {
					events = append(events, core.NewXPGained(companyID, uid, gain, newXP))
				}
				if newLevel > user.Level {
					events = append(events, core.NewLevelUp(companyID, uid, newLevel))
				}
				if uid == userID {
					result.XPGained = gain
					result.LeveledUp = newLevel > user.Level
					user.XP = newXP
					user.Level = newLevel
					result.User = user
				}
			}

			badges, err := tx.BadgesForMetric(ctx, companyID, metricID, userID)
			if err != nil {
				return err
			}
			awarded, err := evaluateBadges(ctx, tx, badges, userID, value, result.FirstEvent, now)
			if err != nil {
				return err
			}
			result.AwardedBadges = awarded
			for _, e := range awarded {
				events = append(events, core.NewBadgeAwarded(companyID, userID, e.BadgeID))
			}
			return nil
		})
		if err != nil {
			if errors.Is(err, core.ErrTxConflict) {
				incrementConflicts.Inc()
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(s.maxRetries))
	if err := backoff.Retry(attempt, backoff.WithContext(policy, ctx)); err != nil {
		incrementsFailed.Inc()
		return IncrementResult{}, err
	}

	incrementsProcessed.Inc()
	badgesAwarded.Add(float64(len(result.AwardedBadges)))
	if result.LeveledUp {
		levelUps.Inc()
	}
	s.publish(ctx, events)
	s.log.Debug("metric incremented",
		"company", companyID, "user", userID, "metric", metricID,
		"value", value, "xp_gained", result.XPGained,
		"objectives_completed", len(result.CompletedObjectives),
		"badges_awarded", len(result.AwardedBadges))
	return result, nil
}

// ClaimReward spends a user's XP on a reward. The quantity decrement, the
// claim row, and the usedXP bump commit together or not at all.
func (s *Service) ClaimReward(ctx context.Context, companyID, userID, rewardID string) (core.UserReward, error) {
	var (
		claim  core.UserReward
		events []core.Event
	)
	attempt := func() error {
		events = events[:0]
		now := time.Now().UTC()

		err := s.store.InTx(ctx, companyID, func(tx Tx) error {
			reward, err := tx.GetRewardForUpdate(ctx, companyID, rewardID)
			if err != nil {
				return err
			}
			if reward.ExpiresAt != nil && reward.ExpiresAt.Before(now) {
				return core.Conflictf("reward %s has expired", rewardID)
			}
			if reward.Quantity <= 0 {
				return core.Conflictf("reward %s is out of stock", rewardID)
			}
			user, err := tx.GetUserForUpdate(ctx, companyID, userID)
			if err != nil {
				return err
			}
			if user.XP-user.UsedXP < reward.XPThreshold {
				return core.InvalidArgumentf("user %s has %d spendable xp, reward requires %d",
					userID, user.XP-user.UsedXP, reward.XPThreshold)
			}

			claim = core.UserReward{
				ID:        core.NewID(),
				UserID:    userID,
				RewardID:  rewardID,
				Status:    core.RewardClaimed,
				ClaimedAt: now,
			}
			if err := tx.InsertUserReward(ctx, claim); err != nil {
				return err
			}
			if err := tx.SaveRewardQuantity(ctx, rewardID, reward.Quantity-1); err != nil {
				return err
			}
			if err := tx.SaveUserProgress(ctx, userID, user.XP, user.UsedXP+reward.XPThreshold, user.Level); err != nil {
				return err
			}
			events = append(events, core.NewRewardClaimed(companyID, userID, rewardID))
			return nil
		})
		if err != nil {
			if errors.Is(err, core.ErrTxConflict) {
				incrementConflicts.Inc()
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(s.maxRetries))
	if err := backoff.Retry(attempt, backoff.WithContext(policy, ctx)); err != nil {
		return core.UserReward{}, err
	}

	rewardsClaimed.Inc()
	s.publish(ctx, events)
	return claim, nil
}

// UserMetricHistory lists a user's raw metric events, newest first by default.
func (s *Service) UserMetricHistory(ctx context.Context, companyID, userID, metricID string, page Page) ([]core.MetricHistory, PageInfo, error) {
	page, err := ValidatePage("history", page)
	if err != nil {
		return nil, PageInfo{}, err
	}
	items, total, err := s.store.UserMetricHistory(ctx, companyID, userID, metricID, page)
	if err != nil {
		return nil, PageInfo{}, err
	}
	return items, NewPageInfo(page, total), nil
}

func (s *Service) publish(ctx context.Context, events []core.Event) {
	for _, ev := range events {
		s.bus.Publish(ctx, ev)
	}
}

func objectiveActive(o core.Objective, now time.Time) bool {
	if o.Deleted {
		return false
	}
	if !o.StartDate.IsZero() && now.Before(o.StartDate) {
		return false
	}
	if !o.EndDate.IsZero() && now.After(o.EndDate) {
		return false
	}
	return true
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
