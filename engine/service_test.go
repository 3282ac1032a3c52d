package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gamifyd/adapters/memory"
	"gamifyd/core"
	"gamifyd/engine"
)

type fixture struct {
	store   *memory.Store
	svc     *engine.Service
	company core.Company
}

func newFixture(t *testing.T, opts engine.Options) *fixture {
	t.Helper()
	store := memory.New()
	bus := engine.NewEventBus(engine.DispatchSync)
	svc := engine.NewService(store, bus, opts)
	t.Cleanup(svc.Close)

	company, err := svc.CreateCompany(context.Background(), "Acme", nil)
	require.NoError(t, err)
	return &fixture{store: store, svc: svc, company: company}
}

func (f *fixture) newUser(t *testing.T, name string) core.User {
	t.Helper()
	u, err := f.svc.CreateUser(context.Background(), f.company.ID, engine.UserInput{Name: name})
	require.NoError(t, err)
	return u
}

func (f *fixture) newMetric(t *testing.T, name string, gain int64) core.Metric {
	t.Helper()
	m, err := f.svc.CreateMetric(context.Background(), f.company.ID, engine.MetricInput{Name: name, DefaultGainXP: gain})
	require.NoError(t, err)
	return m
}

func (f *fixture) soloObjective(t *testing.T, metricID string, target, reward int64, userIDs ...string) core.Objective {
	t.Helper()
	o, err := f.svc.CreateObjective(context.Background(), f.company.ID, engine.ObjectiveInput{
		Name:        "objective",
		MetricID:    metricID,
		Type:        core.ObjectiveSolo,
		TargetValue: target,
		RewardXP:    reward,
		UserIDs:     userIDs,
	})
	require.NoError(t, err)
	return o
}

func (f *fixture) trackers(t *testing.T, objectiveID string) []core.ObjectiveTracker {
	t.Helper()
	trackers, err := f.store.TrackersForObjective(context.Background(), objectiveID)
	require.NoError(t, err)
	return trackers
}

func TestIncrementMetric_PlainGain(t *testing.T) {
	f := newFixture(t, engine.Options{})
	user := f.newUser(t, "alice")
	metric := f.newMetric(t, "sales", 10)

	res, err := f.svc.IncrementMetric(context.Background(), f.company.ID, user.ID, metric.ID, 3)
	require.NoError(t, err)
	require.True(t, res.FirstEvent)
	require.EqualValues(t, 30, res.XPGained)
	require.EqualValues(t, 30, res.User.XP)
	require.EqualValues(t, 1, res.User.Level, "30 xp is below the 100 needed for level 2")
	require.Empty(t, res.CompletedObjectives)
	require.Empty(t, res.AwardedBadges)

	history, info, err := f.svc.UserMetricHistory(context.Background(), f.company.ID, user.ID, metric.ID, engine.DefaultPage())
	require.NoError(t, err)
	require.Equal(t, 1, info.TotalDocs)
	require.EqualValues(t, 3, history[0].Value)
}

func TestIncrementMetric_LevelUp(t *testing.T) {
	f := newFixture(t, engine.Options{})
	user := f.newUser(t, "alice")
	metric := f.newMetric(t, "sales", 10)

	res, err := f.svc.IncrementMetric(context.Background(), f.company.ID, user.ID, metric.ID, 10)
	require.NoError(t, err)
	require.True(t, res.LeveledUp)
	require.EqualValues(t, 100, res.User.XP)
	require.EqualValues(t, 2, res.User.Level)
}

func TestIncrementMetric_CompletesObjective(t *testing.T) {
	f := newFixture(t, engine.Options{})
	user := f.newUser(t, "alice")
	metric := f.newMetric(t, "sales", 10)
	obj := f.soloObjective(t, metric.ID, 10, 50, user.ID)

	_, err := f.svc.IncrementMetric(context.Background(), f.company.ID, user.ID, metric.ID, 8)
	require.NoError(t, err)

	res, err := f.svc.IncrementMetric(context.Background(), f.company.ID, user.ID, metric.ID, 5)
	require.NoError(t, err)
	require.Len(t, res.CompletedObjectives, 1)
	require.EqualValues(t, 100, res.XPGained, "5*10 default gain plus 50 reward")

	trackers := f.trackers(t, obj.ID)
	require.Len(t, trackers, 1)
	require.EqualValues(t, 13, trackers[0].Progress)
	require.True(t, trackers[0].Completed)
	require.NotNil(t, trackers[0].CompletedAt)
}

func TestIncrementMetric_RewardNotReapplied(t *testing.T) {
	f := newFixture(t, engine.Options{})
	user := f.newUser(t, "alice")
	metric := f.newMetric(t, "sales", 10)
	obj := f.soloObjective(t, metric.ID, 10, 50, user.ID)

	_, err := f.svc.IncrementMetric(context.Background(), f.company.ID, user.ID, metric.ID, 13)
	require.NoError(t, err)
	completedAt := *f.trackers(t, obj.ID)[0].CompletedAt

	res, err := f.svc.IncrementMetric(context.Background(), f.company.ID, user.ID, metric.ID, 1)
	require.NoError(t, err)
	require.Empty(t, res.CompletedObjectives)
	require.EqualValues(t, 10, res.XPGained, "default gain only, no second reward")

	trackers := f.trackers(t, obj.ID)
	require.EqualValues(t, 14, trackers[0].Progress)
	require.True(t, trackers[0].Completed)
	require.Equal(t, completedAt, *trackers[0].CompletedAt)
}

func TestIncrementMetric_NotIdempotent(t *testing.T) {
	f := newFixture(t, engine.Options{})
	user := f.newUser(t, "alice")
	metric := f.newMetric(t, "sales", 10)

	for i := 0; i < 2; i++ {
		_, err := f.svc.IncrementMetric(context.Background(), f.company.ID, user.ID, metric.ID, 3)
		require.NoError(t, err)
	}

	got, err := f.svc.GetUser(context.Background(), f.company.ID, user.ID)
	require.NoError(t, err)
	require.EqualValues(t, 60, got.XP, "identical increments accumulate")

	_, info, err := f.svc.UserMetricHistory(context.Background(), f.company.ID, user.ID, metric.ID, engine.DefaultPage())
	require.NoError(t, err)
	require.Equal(t, 2, info.TotalDocs)
}

func TestIncrementMetric_FirstEventBadge(t *testing.T) {
	f := newFixture(t, engine.Options{})
	user := f.newUser(t, "alice")
	metric := f.newMetric(t, "logins", 1)

	_, err := f.svc.CreateBadge(context.Background(), f.company.ID, engine.BadgeInput{
		Name: "first login",
		Conditions: []engine.ConditionInput{
			{MetricID: metric.ID, Type: core.ConditionFirstEvent, Priority: 1},
		},
	})
	require.NoError(t, err)

	res, err := f.svc.IncrementMetric(context.Background(), f.company.ID, user.ID, metric.ID, 1)
	require.NoError(t, err)
	require.Len(t, res.AwardedBadges, 1)

	res, err = f.svc.IncrementMetric(context.Background(), f.company.ID, user.ID, metric.ID, 1)
	require.NoError(t, err)
	require.Empty(t, res.AwardedBadges, "non-reusable badge must not re-award")
}

func TestIncrementMetric_ConditionalBadgeThreshold(t *testing.T) {
	f := newFixture(t, engine.Options{})
	user := f.newUser(t, "alice")
	metric := f.newMetric(t, "sales", 10)
	hundred := int64(100)

	_, err := f.svc.CreateBadge(context.Background(), f.company.ID, engine.BadgeInput{
		Name: "big deal",
		Conditions: []engine.ConditionInput{
			{MetricID: metric.ID, Type: core.ConditionConditional, Operator: core.OpGTE, Value: &hundred, Priority: 1},
		},
	})
	require.NoError(t, err)

	res, err := f.svc.IncrementMetric(context.Background(), f.company.ID, user.ID, metric.ID, 99)
	require.NoError(t, err)
	require.Empty(t, res.AwardedBadges)

	res, err = f.svc.IncrementMetric(context.Background(), f.company.ID, user.ID, metric.ID, 100)
	require.NoError(t, err)
	require.Len(t, res.AwardedBadges, 1)
}

func TestIncrementMetric_TeamObjective(t *testing.T) {
	f := newFixture(t, engine.Options{})
	alice := f.newUser(t, "alice")
	bob := f.newUser(t, "bob")
	metric := f.newMetric(t, "sales", 10)

	team, err := f.svc.CreateTeam(context.Background(), f.company.ID, engine.TeamInput{
		Name: "closers", MemberIDs: []string{alice.ID, bob.ID},
	})
	require.NoError(t, err)

	obj, err := f.svc.CreateObjective(context.Background(), f.company.ID, engine.ObjectiveInput{
		Name:        "quarter push",
		MetricID:    metric.ID,
		Type:        core.ObjectiveTeam,
		TargetValue: 10,
		RewardXP:    50,
		TeamID:      team.ID,
	})
	require.NoError(t, err)

	res, err := f.svc.IncrementMetric(context.Background(), f.company.ID, alice.ID, metric.ID, 10)
	require.NoError(t, err)
	require.Len(t, res.CompletedObjectives, 2, "one member's event advances every live tracker")

	for _, tr := range f.trackers(t, obj.ID) {
		require.EqualValues(t, 10, tr.Progress)
		require.True(t, tr.Completed)
	}

	// default initiator policy credits both rewards to alice
	gotAlice, err := f.svc.GetUser(context.Background(), f.company.ID, alice.ID)
	require.NoError(t, err)
	require.EqualValues(t, 10*10+50+50, gotAlice.XP)

	gotBob, err := f.svc.GetUser(context.Background(), f.company.ID, bob.ID)
	require.NoError(t, err)
	require.EqualValues(t, 0, gotBob.XP)
}

func TestIncrementMetric_TeamObjectiveEqualDistribution(t *testing.T) {
	f := newFixture(t, engine.Options{Distribution: engine.DistributeEqual})
	alice := f.newUser(t, "alice")
	bob := f.newUser(t, "bob")
	metric := f.newMetric(t, "sales", 10)

	team, err := f.svc.CreateTeam(context.Background(), f.company.ID, engine.TeamInput{
		Name: "closers", MemberIDs: []string{alice.ID, bob.ID},
	})
	require.NoError(t, err)

	_, err = f.svc.CreateObjective(context.Background(), f.company.ID, engine.ObjectiveInput{
		Name:        "quarter push",
		MetricID:    metric.ID,
		Type:        core.ObjectiveTeam,
		TargetValue: 10,
		RewardXP:    50,
		TeamID:      team.ID,
	})
	require.NoError(t, err)

	_, err = f.svc.IncrementMetric(context.Background(), f.company.ID, alice.ID, metric.ID, 10)
	require.NoError(t, err)

	// two completions, each split 25/25
	gotAlice, err := f.svc.GetUser(context.Background(), f.company.ID, alice.ID)
	require.NoError(t, err)
	require.EqualValues(t, 100+25+25, gotAlice.XP)

	gotBob, err := f.svc.GetUser(context.Background(), f.company.ID, bob.ID)
	require.NoError(t, err)
	require.EqualValues(t, 25+25, gotBob.XP)
}

func TestIncrementMetric_DeletedTeamMember(t *testing.T) {
	f := newFixture(t, engine.Options{Distribution: engine.DistributeEqual})
	alice := f.newUser(t, "alice")
	bob := f.newUser(t, "bob")
	metric := f.newMetric(t, "sales", 10)

	team, err := f.svc.CreateTeam(context.Background(), f.company.ID, engine.TeamInput{
		Name: "closers", MemberIDs: []string{alice.ID, bob.ID},
	})
	require.NoError(t, err)

	obj, err := f.svc.CreateObjective(context.Background(), f.company.ID, engine.ObjectiveInput{
		Name:        "quarter push",
		MetricID:    metric.ID,
		Type:        core.ObjectiveTeam,
		TargetValue: 10,
		RewardXP:    50,
		TeamID:      team.ID,
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteUser(context.Background(), f.company.ID, bob.ID))
	for _, tr := range f.trackers(t, obj.ID) {
		if tr.UserID == bob.ID {
			require.True(t, tr.Deleted, "deleting the user tombstones their tracker")
		}
	}

	res, err := f.svc.IncrementMetric(context.Background(), f.company.ID, alice.ID, metric.ID, 10)
	require.NoError(t, err)
	require.Len(t, res.CompletedObjectives, 1, "only alice's tracker is still live")

	// the whole reward goes to the one remaining live tracker
	gotAlice, err := f.svc.GetUser(context.Background(), f.company.ID, alice.ID)
	require.NoError(t, err)
	require.EqualValues(t, 100+50, gotAlice.XP)

	for _, tr := range f.trackers(t, obj.ID) {
		if tr.UserID == bob.ID {
			require.EqualValues(t, 0, tr.Progress, "tombstoned tracker must not advance")
		}
	}
}

func TestIncrementMetric_StaleTrackerShareForfeited(t *testing.T) {
	f := newFixture(t, engine.Options{Distribution: engine.DistributeEqual})
	alice := f.newUser(t, "alice")
	bob := f.newUser(t, "bob")
	metric := f.newMetric(t, "sales", 10)

	team, err := f.svc.CreateTeam(context.Background(), f.company.ID, engine.TeamInput{
		Name: "closers", MemberIDs: []string{alice.ID, bob.ID},
	})
	require.NoError(t, err)

	_, err = f.svc.CreateObjective(context.Background(), f.company.ID, engine.ObjectiveInput{
		Name:        "quarter push",
		MetricID:    metric.ID,
		Type:        core.ObjectiveTeam,
		TargetValue: 10,
		RewardXP:    50,
		TeamID:      team.ID,
	})
	require.NoError(t, err)

	// leave bob's tracker live but make his user row unresolvable, the state
	// a deletion racing an in-flight increment produces
	bobRow, err := f.store.GetUser(context.Background(), f.company.ID, bob.ID)
	require.NoError(t, err)
	bobRow.Deleted = true
	require.NoError(t, f.store.SaveUser(context.Background(), bobRow))

	res, err := f.svc.IncrementMetric(context.Background(), f.company.ID, alice.ID, metric.ID, 10)
	require.NoError(t, err, "a vanished teammate must not abort the increment")
	require.Len(t, res.CompletedObjectives, 2)

	// two completions split 25/25; bob's shares are forfeited
	gotAlice, err := f.svc.GetUser(context.Background(), f.company.ID, alice.ID)
	require.NoError(t, err)
	require.EqualValues(t, 100+25+25, gotAlice.XP)
}

func TestIncrementMetric_ExpiredObjectiveIgnored(t *testing.T) {
	f := newFixture(t, engine.Options{})
	user := f.newUser(t, "alice")
	metric := f.newMetric(t, "sales", 10)

	_, err := f.svc.CreateObjective(context.Background(), f.company.ID, engine.ObjectiveInput{
		Name:        "last quarter",
		MetricID:    metric.ID,
		Type:        core.ObjectiveSolo,
		TargetValue: 5,
		RewardXP:    50,
		StartDate:   time.Now().UTC().Add(-48 * time.Hour),
		EndDate:     time.Now().UTC().Add(-24 * time.Hour),
		UserIDs:     []string{user.ID},
	})
	require.NoError(t, err)

	res, err := f.svc.IncrementMetric(context.Background(), f.company.ID, user.ID, metric.ID, 10)
	require.NoError(t, err)
	require.Empty(t, res.CompletedObjectives)
	require.EqualValues(t, 100, res.XPGained)
}

func TestIncrementMetric_Validation(t *testing.T) {
	f := newFixture(t, engine.Options{})
	user := f.newUser(t, "alice")
	metric := f.newMetric(t, "sales", 10)

	_, err := f.svc.IncrementMetric(context.Background(), f.company.ID, user.ID, metric.ID, 0)
	require.ErrorIs(t, err, core.ErrInvalidArgument)

	_, err = f.svc.IncrementMetric(context.Background(), f.company.ID, user.ID, metric.ID, -5)
	require.ErrorIs(t, err, core.ErrInvalidArgument)

	_, err = f.svc.IncrementMetric(context.Background(), f.company.ID, "ghost", metric.ID, 1)
	require.ErrorIs(t, err, core.ErrNotFound)

	_, err = f.svc.IncrementMetric(context.Background(), f.company.ID, user.ID, "ghost", 1)
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestIncrementMetric_TenantIsolation(t *testing.T) {
	f := newFixture(t, engine.Options{})
	user := f.newUser(t, "alice")
	metric := f.newMetric(t, "sales", 10)

	other, err := f.svc.CreateCompany(context.Background(), "Globex", nil)
	require.NoError(t, err)

	_, err = f.svc.IncrementMetric(context.Background(), other.ID, user.ID, metric.ID, 1)
	require.ErrorIs(t, err, core.ErrNotFound, "cross-tenant ids must not resolve")
}

func TestIncrementMetric_PublishesEvents(t *testing.T) {
	f := newFixture(t, engine.Options{})
	user := f.newUser(t, "alice")
	metric := f.newMetric(t, "sales", 10)
	f.soloObjective(t, metric.ID, 5, 50, user.ID)

	var types []core.EventType
	f.svc.Subscribe(engine.EventAll, func(_ context.Context, ev core.Event) {
		types = append(types, ev.Type)
	})

	_, err := f.svc.IncrementMetric(context.Background(), f.company.ID, user.ID, metric.ID, 10)
	require.NoError(t, err)
	require.Contains(t, types, core.EventMetricIncremented)
	require.Contains(t, types, core.EventObjectiveCompleted)
	require.Contains(t, types, core.EventXPGained)
	require.Contains(t, types, core.EventLevelUp)
}

// failingStore fails InsertEarnedBadge inside the transaction so the whole
// increment must roll back.
type failingStore struct {
	engine.Store
}

type failingTx struct {
	engine.Tx
}

func (f *failingStore) InTx(ctx context.Context, companyID string, fn func(tx engine.Tx) error) error {
	return f.Store.InTx(ctx, companyID, func(tx engine.Tx) error {
		return fn(&failingTx{Tx: tx})
	})
}

func (f *failingTx) InsertEarnedBadge(context.Context, core.EarnedBadge) error {
	return errors.New("disk full")
}

func TestIncrementMetric_RollsBackOnFailure(t *testing.T) {
	mem := memory.New()
	bus := engine.NewEventBus(engine.DispatchSync)
	svc := engine.NewService(&failingStore{Store: mem}, bus, engine.Options{})
	t.Cleanup(svc.Close)

	company, err := svc.CreateCompany(context.Background(), "Acme", nil)
	require.NoError(t, err)
	user, err := svc.CreateUser(context.Background(), company.ID, engine.UserInput{Name: "alice"})
	require.NoError(t, err)
	metric, err := svc.CreateMetric(context.Background(), company.ID, engine.MetricInput{Name: "sales", DefaultGainXP: 10})
	require.NoError(t, err)

	one := int64(1)
	_, err = svc.CreateBadge(context.Background(), company.ID, engine.BadgeInput{
		Name: "starter",
		Conditions: []engine.ConditionInput{
			{MetricID: metric.ID, Type: core.ConditionConditional, Operator: core.OpGTE, Value: &one, Priority: 1},
		},
	})
	require.NoError(t, err)

	_, err = svc.IncrementMetric(context.Background(), company.ID, user.ID, metric.ID, 5)
	require.Error(t, err)

	got, err := svc.GetUser(context.Background(), company.ID, user.ID)
	require.NoError(t, err)
	require.EqualValues(t, 0, got.XP, "failed increment must leave no partial writes")

	_, info, err := svc.UserMetricHistory(context.Background(), company.ID, user.ID, metric.ID, engine.DefaultPage())
	require.NoError(t, err)
	require.Equal(t, 0, info.TotalDocs)
}

// conflictStore fails the first n transactions with a serialization conflict.
type conflictStore struct {
	engine.Store
	remaining int
}

func (c *conflictStore) InTx(ctx context.Context, companyID string, fn func(tx engine.Tx) error) error {
	if c.remaining > 0 {
		c.remaining--
		return core.ErrTxConflict
	}
	return c.Store.InTx(ctx, companyID, fn)
}

func TestIncrementMetric_RetriesTxConflicts(t *testing.T) {
	mem := memory.New()
	bus := engine.NewEventBus(engine.DispatchSync)
	svc := engine.NewService(&conflictStore{Store: mem, remaining: 2}, bus, engine.Options{MaxRetries: 3})
	t.Cleanup(svc.Close)

	company, err := svc.CreateCompany(context.Background(), "Acme", nil)
	require.NoError(t, err)
	user, err := svc.CreateUser(context.Background(), company.ID, engine.UserInput{Name: "alice"})
	require.NoError(t, err)
	metric, err := svc.CreateMetric(context.Background(), company.ID, engine.MetricInput{Name: "sales", DefaultGainXP: 10})
	require.NoError(t, err)

	res, err := svc.IncrementMetric(context.Background(), company.ID, user.ID, metric.ID, 1)
	require.NoError(t, err)
	require.EqualValues(t, 10, res.XPGained)
}

func TestClaimReward(t *testing.T) {
	f := newFixture(t, engine.Options{})
	user := f.newUser(t, "alice")
	metric := f.newMetric(t, "sales", 10)

	reward, err := f.svc.CreateReward(context.Background(), f.company.ID, engine.RewardInput{
		Name: "mug", XPThreshold: 60, Quantity: 2,
	})
	require.NoError(t, err)

	// not enough spendable xp yet
	_, err = f.svc.ClaimReward(context.Background(), f.company.ID, user.ID, reward.ID)
	require.ErrorIs(t, err, core.ErrInvalidArgument)

	_, err = f.svc.IncrementMetric(context.Background(), f.company.ID, user.ID, metric.ID, 10)
	require.NoError(t, err)

	claim, err := f.svc.ClaimReward(context.Background(), f.company.ID, user.ID, reward.ID)
	require.NoError(t, err)
	require.Equal(t, core.RewardClaimed, claim.Status)

	got, err := f.svc.GetUser(context.Background(), f.company.ID, user.ID)
	require.NoError(t, err)
	require.EqualValues(t, 100, got.XP, "claiming spends usedXp, not lifetime xp")
	require.EqualValues(t, 60, got.UsedXP)

	gotReward, err := f.svc.GetReward(context.Background(), f.company.ID, reward.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, gotReward.Quantity)

	// second claim drains the spendable balance
	_, err = f.svc.ClaimReward(context.Background(), f.company.ID, user.ID, reward.ID)
	require.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestClaimReward_Depleted(t *testing.T) {
	f := newFixture(t, engine.Options{})
	user := f.newUser(t, "alice")
	metric := f.newMetric(t, "sales", 100)

	reward, err := f.svc.CreateReward(context.Background(), f.company.ID, engine.RewardInput{
		Name: "sticker", XPThreshold: 10, Quantity: 1,
	})
	require.NoError(t, err)

	_, err = f.svc.IncrementMetric(context.Background(), f.company.ID, user.ID, metric.ID, 10)
	require.NoError(t, err)

	_, err = f.svc.ClaimReward(context.Background(), f.company.ID, user.ID, reward.ID)
	require.NoError(t, err)

	_, err = f.svc.ClaimReward(context.Background(), f.company.ID, user.ID, reward.ID)
	require.ErrorIs(t, err, core.ErrConflict)
}

func TestClaimReward_Expired(t *testing.T) {
	f := newFixture(t, engine.Options{})
	user := f.newUser(t, "alice")
	metric := f.newMetric(t, "sales", 100)

	yesterday := time.Now().UTC().Add(-24 * time.Hour)
	reward, err := f.svc.CreateReward(context.Background(), f.company.ID, engine.RewardInput{
		Name: "flash sale", XPThreshold: 10, Quantity: 5, ExpiresAt: &yesterday,
	})
	require.NoError(t, err)

	_, err = f.svc.IncrementMetric(context.Background(), f.company.ID, user.ID, metric.ID, 10)
	require.NoError(t, err)

	_, err = f.svc.ClaimReward(context.Background(), f.company.ID, user.ID, reward.ID)
	require.ErrorIs(t, err, core.ErrConflict)
}

func TestClaimReward_Unknown(t *testing.T) {
	f := newFixture(t, engine.Options{})
	user := f.newUser(t, "alice")

	_, err := f.svc.ClaimReward(context.Background(), f.company.ID, user.ID, "ghost")
	require.ErrorIs(t, err, core.ErrNotFound)
}
