package core

import "time"

// EventType enumerates domain events.
type EventType string

const (
	EventMetricIncremented  EventType = "metric_incremented"
	EventXPGained           EventType = "xp_gained"
	EventLevelUp            EventType = "level_up"
	EventObjectiveCompleted EventType = "objective_completed"
	EventBadgeAwarded       EventType = "badge_awarded"
	EventRewardClaimed      EventType = "reward_claimed"
)

// Event represents an immutable domain event. Events are published only
// after the transaction that produced them has committed.
type Event struct {
	Type        EventType      `json:"type"`
	Time        time.Time      `json:"time"`
	CompanyID   string         `json:"company_id"`
	UserID      string         `json:"user_id"`
	MetricID    string         `json:"metric_id,omitempty"`
	ObjectiveID string         `json:"objective_id,omitempty"`
	BadgeID     string         `json:"badge_id,omitempty"`
	RewardID    string         `json:"reward_id,omitempty"`
	Value       int64          `json:"value,omitempty"`
	XP          int64          `json:"xp,omitempty"`
	Level       int64          `json:"level,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func NewMetricIncremented(companyID, userID, metricID string, value int64) Event {
	return Event{Type: EventMetricIncremented, Time: time.Now().UTC(), CompanyID: companyID, UserID: userID, MetricID: metricID, Value: value}
}

func NewXPGained(companyID, userID string, gained, total int64) Event {
	return Event{Type: EventXPGained, Time: time.Now().UTC(), CompanyID: companyID, UserID: userID, Value: gained, XP: total}
}

func NewLevelUp(companyID, userID string, level int64) Event {
	return Event{Type: EventLevelUp, Time: time.Now().UTC(), CompanyID: companyID, UserID: userID, Level: level}
}

func NewObjectiveCompleted(companyID, userID, objectiveID string, rewardXP int64) Event {
	return Event{Type: EventObjectiveCompleted, Time: time.Now().UTC(), CompanyID: companyID, UserID: userID, ObjectiveID: objectiveID, XP: rewardXP}
}

func NewBadgeAwarded(companyID, userID, badgeID string) Event {
	return Event{Type: EventBadgeAwarded, Time: time.Now().UTC(), CompanyID: companyID, UserID: userID, BadgeID: badgeID}
}

func NewRewardClaimed(companyID, userID, rewardID string) Event {
	return Event{Type: EventRewardClaimed, Time: time.Now().UTC(), CompanyID: companyID, UserID: userID, RewardID: rewardID}
}
