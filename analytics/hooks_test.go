package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gamifyd/core"
	"gamifyd/engine"
)

func eventAt(typ core.EventType, company, user string, day string) core.Event {
	ts, _ := time.Parse("2006-01-02", day)
	return core.Event{Type: typ, Time: ts, CompanyID: company, UserID: user}
}

func TestDAUCountsDistinctUsersPerCompanyDay(t *testing.T) {
	d := NewDAU()
	d.OnEvent(eventAt(core.EventXPGained, "c1", "alice", "2026-08-01"))
	d.OnEvent(eventAt(core.EventXPGained, "c1", "alice", "2026-08-01"))
	d.OnEvent(eventAt(core.EventXPGained, "c1", "bob", "2026-08-01"))
	d.OnEvent(eventAt(core.EventXPGained, "c2", "carol", "2026-08-01"))
	d.OnEvent(eventAt(core.EventXPGained, "c1", "alice", "2026-08-02"))

	require.Equal(t, 2, d.Count("c1", "2026-08-01"))
	require.Equal(t, 1, d.Count("c2", "2026-08-01"))
	require.Equal(t, 1, d.Count("c1", "2026-08-02"))
	require.Equal(t, 0, d.Count("c1", "2026-08-03"))
}

func TestTotalsAccumulatePerCompany(t *testing.T) {
	totals := NewTotals()
	totals.OnEvent(core.NewMetricIncremented("c1", "alice", "m1", 3))
	totals.OnEvent(core.NewXPGained("c1", "alice", 30, 30))
	totals.OnEvent(core.NewXPGained("c1", "bob", 20, 20))
	totals.OnEvent(core.NewLevelUp("c1", "alice", 2))
	totals.OnEvent(core.NewObjectiveCompleted("c1", "alice", "o1", 100))
	totals.OnEvent(core.NewBadgeAwarded("c1", "alice", "b1"))
	totals.OnEvent(core.NewRewardClaimed("c1", "alice", "r1"))
	totals.OnEvent(core.NewXPGained("c2", "carol", 999, 999))

	got := totals.Company("c1")
	require.Equal(t, CompanyTotals{
		Increments:          1,
		XPAwarded:           50,
		LevelUps:            1,
		ObjectivesCompleted: 1,
		BadgesAwarded:       1,
		RewardsClaimed:      1,
	}, got)
	require.Equal(t, int64(999), totals.Company("c2").XPAwarded)
	require.Zero(t, totals.Company("nope"))
}

func TestRetentionCountsReturnVisits(t *testing.T) {
	r := NewRetention()
	r.OnEvent(eventAt(core.EventXPGained, "c1", "alice", "2026-08-01"))
	r.OnEvent(eventAt(core.EventXPGained, "c1", "alice", "2026-08-01"))
	require.Zero(t, r.Returns("c1"))

	r.OnEvent(eventAt(core.EventXPGained, "c1", "alice", "2026-08-02"))
	require.Equal(t, int64(1), r.Returns("c1"))

	r.OnEvent(eventAt(core.EventXPGained, "c1", "bob", "2026-08-02"))
	require.Equal(t, int64(1), r.Returns("c1"))
}

func TestAttachFeedsHooksFromBus(t *testing.T) {
	bus := engine.NewEventBus(engine.DispatchSync)
	defer bus.Close()

	totals := NewTotals()
	dau := NewDAU()
	stop := Attach(bus, totals, dau)
	defer stop()

	ev := core.NewXPGained("c1", "alice", 10, 10)
	bus.Publish(context.Background(), ev)

	require.Equal(t, int64(10), totals.Company("c1").XPAwarded)
	require.Equal(t, 1, dau.Count("c1", ev.Time.UTC().Format("2006-01-02")))
}
