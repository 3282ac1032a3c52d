// Package analytics aggregates lightweight engagement KPIs from the event
// stream. Everything here is in-process and best effort; durable reporting
// belongs on top of the metric history tables.
package analytics

import (
	"context"
	"sync"

	"gamifyd/core"
	"gamifyd/engine"
)

// Hook receives committed domain events for KPI aggregation.
type Hook interface {
	OnEvent(e core.Event)
}

// Attach subscribes hooks to every event on the bus. The returned func
// detaches them.
func Attach(bus *engine.EventBus, hooks ...Hook) func() {
	return bus.Subscribe(engine.EventAll, func(_ context.Context, ev core.Event) {
		for _, h := range hooks {
			h.OnEvent(ev)
		}
	})
}

// DAU tracks daily active users per company. A user counts as active on any
// day they produce an event.
type DAU struct {
	mu   sync.Mutex
	days map[string]map[string]struct{}
}

func NewDAU() *DAU { return &DAU{days: map[string]map[string]struct{}{}} }

func (d *DAU) OnEvent(e core.Event) {
	if e.UserID == "" {
		return
	}
	key := e.CompanyID + "/" + e.Time.UTC().Format("2006-01-02")
	d.mu.Lock()
	defer d.mu.Unlock()
	m := d.days[key]
	if m == nil {
		m = map[string]struct{}{}
		d.days[key] = m
	}
	m[e.UserID] = struct{}{}
}

// Count returns the number of distinct active users for a company on a day
// (formatted 2006-01-02).
func (d *DAU) Count(companyID, day string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.days[companyID+"/"+day])
}

// Totals accumulates per-company counters off the event stream.
type Totals struct {
	mu   sync.Mutex
	byCo map[string]*CompanyTotals
}

// CompanyTotals is a snapshot of one company's counters.
type CompanyTotals struct {
	Increments          int64 `json:"increments"`
	XPAwarded           int64 `json:"xp_awarded"`
	LevelUps            int64 `json:"level_ups"`
	ObjectivesCompleted int64 `json:"objectives_completed"`
	BadgesAwarded       int64 `json:"badges_awarded"`
	RewardsClaimed      int64 `json:"rewards_claimed"`
}

func NewTotals() *Totals { return &Totals{byCo: map[string]*CompanyTotals{}} }

func (t *Totals) OnEvent(e core.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.byCo[e.CompanyID]
	if c == nil {
		c = &CompanyTotals{}
		t.byCo[e.CompanyID] = c
	}
	switch e.Type {
	case core.EventMetricIncremented:
		c.Increments++
	case core.EventXPGained:
		c.XPAwarded += e.Value
	case core.EventLevelUp:
		c.LevelUps++
	case core.EventObjectiveCompleted:
		c.ObjectivesCompleted++
	case core.EventBadgeAwarded:
		c.BadgesAwarded++
	case core.EventRewardClaimed:
		c.RewardsClaimed++
	}
}

// Company returns a copy of the company's counters.
func (t *Totals) Company(companyID string) CompanyTotals {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c := t.byCo[companyID]; c != nil {
		return *c
	}
	return CompanyTotals{}
}

// Retention reports users seen on consecutive days. It keeps the last seen
// day per user and counts a return visit whenever a user is active on a later
// day than their previous one.
type Retention struct {
	mu       sync.Mutex
	lastSeen map[string]string
	returns  map[string]int64
}

func NewRetention() *Retention {
	return &Retention{lastSeen: map[string]string{}, returns: map[string]int64{}}
}

func (r *Retention) OnEvent(e core.Event) {
	if e.UserID == "" {
		return
	}
	day := e.Time.UTC().Format("2006-01-02")
	key := e.CompanyID + "/" + e.UserID
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.lastSeen[key]; ok && prev != day {
		r.returns[e.CompanyID]++
	}
	r.lastSeen[key] = day
}

// Returns is the number of return visits recorded for a company.
func (r *Retention) Returns(companyID string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.returns[companyID]
}
