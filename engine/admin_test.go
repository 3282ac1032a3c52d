package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"gamifyd/core"
	"gamifyd/engine"
)

func TestCreateCompany_MintsAPIKey(t *testing.T) {
	f := newFixture(t, engine.Options{})
	require.NotEmpty(t, f.company.APIKey)

	got, err := f.svc.CompanyByAPIKey(context.Background(), f.company.APIKey)
	require.NoError(t, err)
	require.Equal(t, f.company.ID, got.ID)

	_, err = f.svc.CompanyByAPIKey(context.Background(), "bogus")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestCreateMetric_NameConflict(t *testing.T) {
	f := newFixture(t, engine.Options{})
	f.newMetric(t, "sales", 10)

	_, err := f.svc.CreateMetric(context.Background(), f.company.ID, engine.MetricInput{Name: "sales", DefaultGainXP: 5})
	require.ErrorIs(t, err, core.ErrConflict)

	// case-insensitive
	_, err = f.svc.CreateMetric(context.Background(), f.company.ID, engine.MetricInput{Name: "SALES", DefaultGainXP: 5})
	require.ErrorIs(t, err, core.ErrConflict)

	// same name is fine in another tenant
	other, err := f.svc.CreateCompany(context.Background(), "Globex", nil)
	require.NoError(t, err)
	_, err = f.svc.CreateMetric(context.Background(), other.ID, engine.MetricInput{Name: "sales", DefaultGainXP: 5})
	require.NoError(t, err)
}

func TestUpdateMetric_KeepsOwnName(t *testing.T) {
	f := newFixture(t, engine.Options{})
	m := f.newMetric(t, "sales", 10)

	updated, err := f.svc.UpdateMetric(context.Background(), f.company.ID, m.ID, engine.MetricInput{Name: "sales", DefaultGainXP: 20})
	require.NoError(t, err)
	require.EqualValues(t, 20, updated.DefaultGainXP)
}

func TestDeleteUser_SoftDelete(t *testing.T) {
	f := newFixture(t, engine.Options{})
	user := f.newUser(t, "alice")

	require.NoError(t, f.svc.DeleteUser(context.Background(), f.company.ID, user.ID))

	_, err := f.svc.GetUser(context.Background(), f.company.ID, user.ID)
	require.ErrorIs(t, err, core.ErrNotFound)

	users, info, err := f.svc.ListUsers(context.Background(), f.company.ID, engine.DefaultPage())
	require.NoError(t, err)
	require.Empty(t, users)
	require.Equal(t, 0, info.TotalDocs)
}

func TestUpdateObjective_ReconcilesTrackers(t *testing.T) {
	f := newFixture(t, engine.Options{})
	alice := f.newUser(t, "alice")
	bob := f.newUser(t, "bob")
	metric := f.newMetric(t, "sales", 10)

	obj := f.soloObjective(t, metric.ID, 10, 50, alice.ID)

	// alice makes progress
	_, err := f.svc.IncrementMetric(context.Background(), f.company.ID, alice.ID, metric.ID, 4)
	require.NoError(t, err)

	input := engine.ObjectiveInput{
		Name:        "objective",
		MetricID:    metric.ID,
		Type:        core.ObjectiveSolo,
		TargetValue: 10,
		RewardXP:    50,
	}

	// swap alice out for bob: her tracker tombstones, bob gets a fresh one
	input.UserIDs = []string{bob.ID}
	_, err = f.svc.UpdateObjective(context.Background(), f.company.ID, obj.ID, input)
	require.NoError(t, err)

	trackers := f.trackers(t, obj.ID)
	require.Len(t, trackers, 2)
	byUser := map[string]core.ObjectiveTracker{}
	for _, tr := range trackers {
		byUser[tr.UserID] = tr
	}
	require.True(t, byUser[alice.ID].Deleted)
	require.EqualValues(t, 4, byUser[alice.ID].Progress, "tombstoning keeps progress")
	require.False(t, byUser[bob.ID].Deleted)
	require.EqualValues(t, 0, byUser[bob.ID].Progress)

	// bring alice back: her old tracker is restored, not recreated
	input.UserIDs = []string{alice.ID, bob.ID}
	_, err = f.svc.UpdateObjective(context.Background(), f.company.ID, obj.ID, input)
	require.NoError(t, err)

	trackers = f.trackers(t, obj.ID)
	require.Len(t, trackers, 2, "restore must not add a third tracker")
	for _, tr := range trackers {
		require.False(t, tr.Deleted)
		if tr.UserID == alice.ID {
			require.EqualValues(t, 4, tr.Progress, "restored tracker keeps its progress")
		}
	}
}

func TestCreateObjective_Validation(t *testing.T) {
	f := newFixture(t, engine.Options{})
	user := f.newUser(t, "alice")
	metric := f.newMetric(t, "sales", 10)

	base := engine.ObjectiveInput{
		Name:        "objective",
		MetricID:    metric.ID,
		Type:        core.ObjectiveSolo,
		TargetValue: 10,
		UserIDs:     []string{user.ID},
	}

	bad := base
	bad.TargetValue = 0
	_, err := f.svc.CreateObjective(context.Background(), f.company.ID, bad)
	require.ErrorIs(t, err, core.ErrInvalidArgument)

	bad = base
	bad.Type = "weekly"
	_, err = f.svc.CreateObjective(context.Background(), f.company.ID, bad)
	require.ErrorIs(t, err, core.ErrInvalidArgument)

	bad = base
	bad.MetricID = "ghost"
	_, err = f.svc.CreateObjective(context.Background(), f.company.ID, bad)
	require.ErrorIs(t, err, core.ErrNotFound)

	bad = base
	bad.Type = core.ObjectiveTeam
	bad.TeamID = ""
	_, err = f.svc.CreateObjective(context.Background(), f.company.ID, bad)
	require.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestUpdateBadge_ReplacesConditions(t *testing.T) {
	f := newFixture(t, engine.Options{})
	metric := f.newMetric(t, "sales", 10)
	ten := int64(10)
	fifty := int64(50)

	badge, err := f.svc.CreateBadge(context.Background(), f.company.ID, engine.BadgeInput{
		Name: "closer",
		Conditions: []engine.ConditionInput{
			{MetricID: metric.ID, Type: core.ConditionConditional, Operator: core.OpGTE, Value: &ten, Priority: 1},
		},
	})
	require.NoError(t, err)
	require.Len(t, badge.Conditions, 1)

	updated, err := f.svc.UpdateBadge(context.Background(), f.company.ID, badge.Badge.ID, engine.BadgeInput{
		Name:     "big closer",
		Reusable: true,
		Conditions: []engine.ConditionInput{
			{MetricID: metric.ID, Type: core.ConditionConditional, Operator: core.OpGTE, Value: &fifty, Priority: 1},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "big closer", updated.Badge.Name)
	require.Len(t, updated.Conditions, 1)
	require.EqualValues(t, 50, *updated.Conditions[0].Value)

	got, err := f.svc.GetBadge(context.Background(), f.company.ID, badge.Badge.ID)
	require.NoError(t, err)
	require.Len(t, got.Conditions, 1, "old conditions are tombstoned")
	require.EqualValues(t, 50, *got.Conditions[0].Value)
}

func TestCreateBadge_Validation(t *testing.T) {
	f := newFixture(t, engine.Options{})
	metric := f.newMetric(t, "sales", 10)

	_, err := f.svc.CreateBadge(context.Background(), f.company.ID, engine.BadgeInput{Name: "empty"})
	require.ErrorIs(t, err, core.ErrInvalidArgument)

	_, err = f.svc.CreateBadge(context.Background(), f.company.ID, engine.BadgeInput{
		Name: "bad operator",
		Conditions: []engine.ConditionInput{
			{MetricID: metric.ID, Type: core.ConditionConditional, Operator: "between", Value: new(int64), Priority: 1},
		},
	})
	require.ErrorIs(t, err, core.ErrInvalidArgument)

	_, err = f.svc.CreateBadge(context.Background(), f.company.ID, engine.BadgeInput{
		Name: "missing value",
		Conditions: []engine.ConditionInput{
			{MetricID: metric.ID, Type: core.ConditionConditional, Operator: core.OpGTE, Priority: 1},
		},
	})
	require.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestCreateTeam_RejectsUnknownMembers(t *testing.T) {
	f := newFixture(t, engine.Options{})
	user := f.newUser(t, "alice")

	_, err := f.svc.CreateTeam(context.Background(), f.company.ID, engine.TeamInput{
		Name: "closers", MemberIDs: []string{user.ID, "ghost"},
	})
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestListUsers_PaginationAndSort(t *testing.T) {
	f := newFixture(t, engine.Options{})
	for _, name := range []string{"carol", "alice", "bob"} {
		f.newUser(t, name)
	}

	users, info, err := f.svc.ListUsers(context.Background(), f.company.ID, engine.Page{Page: 1, Limit: 2, Sort: "name", Direction: "asc"})
	require.NoError(t, err)
	require.Equal(t, 3, info.TotalDocs)
	require.Equal(t, 2, info.TotalPages)
	require.Len(t, users, 2)
	require.Equal(t, "alice", users[0].Name)
	require.Equal(t, "bob", users[1].Name)

	users, _, err = f.svc.ListUsers(context.Background(), f.company.ID, engine.Page{Page: 2, Limit: 2, Sort: "name", Direction: "asc"})
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.Equal(t, "carol", users[0].Name)

	_, _, err = f.svc.ListUsers(context.Background(), f.company.ID, engine.Page{Sort: "apiKey"})
	require.ErrorIs(t, err, core.ErrInvalidArgument)
}
