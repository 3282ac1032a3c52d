package core

import (
	"errors"
	"math"
	"strings"
	"time"
)

// ObjectiveType distinguishes objectives tracked per user from objectives
// tracked across a whole team.
type ObjectiveType string

const (
	ObjectiveSolo ObjectiveType = "solo"
	ObjectiveTeam ObjectiveType = "team"
)

// RewardStatus is the lifecycle state of a claimed reward.
type RewardStatus string

const (
	RewardClaimed RewardStatus = "claimed"
)

// Company is the tenant boundary. Every other entity belongs to exactly one
// company and all reads must be scoped by CompanyID.
type Company struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	APIKey    string            `json:"api_key"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	Deleted   bool              `json:"deleted"`
}

// User accumulates lifetime XP and a level derived from it.
// Level must always equal LevelCurve.LevelForXP(XP) after a committed
// XP-affecting transaction.
type User struct {
	ID           string            `json:"id"`
	CompanyID    string            `json:"company_id"`
	Name         string            `json:"name"`
	XP           int64             `json:"xp"`
	UsedXP       int64             `json:"used_xp"`
	Level        int64             `json:"level"`
	LastActivity *time.Time        `json:"last_activity,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	Deleted      bool              `json:"deleted"`
}

// Team is a named group of users. Team objectives resolve their participants
// from the member list at objective create/update time.
type Team struct {
	ID        string            `json:"id"`
	CompanyID string            `json:"company_id"`
	Name      string            `json:"name"`
	MemberIDs []string          `json:"member_ids"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	Deleted   bool              `json:"deleted"`
}

// Metric is a countable company-scoped event type, e.g. "Sales".
// DefaultGainXP is the XP granted per unit of value when no objective applies.
type Metric struct {
	ID            string            `json:"id"`
	CompanyID     string            `json:"company_id"`
	Name          string            `json:"name"`
	Description   string            `json:"description,omitempty"`
	DefaultGainXP int64             `json:"default_gain_xp"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	Deleted       bool              `json:"deleted"`
}

// MetricHistory is one append-only record of a user incrementing a metric.
// The first record for a (user, metric) pair drives first-event badge
// conditions.
type MetricHistory struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	MetricID  string    `json:"metric_id"`
	Value     int64     `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	Deleted   bool      `json:"deleted"`
}

// Objective is a metric-bound goal with a target value and an XP reward,
// tracked per participating user via ObjectiveTracker rows.
type Objective struct {
	ID          string            `json:"id"`
	CompanyID   string            `json:"company_id"`
	MetricID    string            `json:"metric_id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Type        ObjectiveType     `json:"type"`
	TargetValue int64             `json:"target_value"`
	RewardXP    int64             `json:"reward_xp"`
	StartDate   time.Time         `json:"start_date"`
	EndDate     time.Time         `json:"end_date"`
	TeamID      string            `json:"team_id,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	Deleted     bool              `json:"deleted"`
}

// ObjectiveTracker is per-user progress for one objective. Progress never
// decreases; Completed only transitions false to true; CompletedAt is set on
// that transition and never touched again. Trackers are tombstoned, not
// destroyed, when a user leaves an objective, and restored on rejoin.
type ObjectiveTracker struct {
	ID          string     `json:"id"`
	ObjectiveID string     `json:"objective_id"`
	UserID      string     `json:"user_id"`
	Progress    int64      `json:"progress"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Deleted     bool       `json:"deleted"`
}

// Badge is an achievement gated by one or more conditions. A non-reusable
// badge can be held at most once per user.
type Badge struct {
	ID          string            `json:"id"`
	CompanyID   string            `json:"company_id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Reusable    bool              `json:"reusable"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	Deleted     bool              `json:"deleted"`
}

// EarnedBadge records one award of a badge to a user.
type EarnedBadge struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	BadgeID   string    `json:"badge_id"`
	CreatedAt time.Time `json:"created_at"`
	Deleted   bool      `json:"deleted"`
}

// Reward is an XP-threshold-gated claimable item with limited quantity.
type Reward struct {
	ID          string            `json:"id"`
	CompanyID   string            `json:"company_id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	XPThreshold int64             `json:"xp_threshold"`
	Value       int64             `json:"value"`
	Quantity    int64             `json:"quantity"`
	ExpiresAt   *time.Time        `json:"expires_at,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	Deleted     bool              `json:"deleted"`
}

// UserReward is one claim of a reward by a user.
type UserReward struct {
	ID        string       `json:"id"`
	UserID    string       `json:"user_id"`
	RewardID  string       `json:"reward_id"`
	Status    RewardStatus `json:"status"`
	ClaimedAt time.Time    `json:"claimed_at"`
	Deleted   bool         `json:"deleted"`
}

// AddSafe adds delta to base ensuring no signed overflow occurs.
func AddSafe(base int64, delta int64) (int64, error) {
	if (delta > 0 && base > math.MaxInt64-delta) || (delta < 0 && base < math.MinInt64-delta) {
		return 0, errors.New("integer overflow in AddSafe")
	}
	return base + delta, nil
}

// ValidateName ensures a non-empty, trimmed entity name.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("empty name")
	}
	return nil
}
