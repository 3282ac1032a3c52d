package sdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// User mirrors the public JSON surface of a user.
type User struct {
	ID        string            `json:"id"`
	CompanyID string            `json:"company_id"`
	Name      string            `json:"name"`
	XP        int64             `json:"xp"`
	UsedXP    int64             `json:"used_xp"`
	Level     int64             `json:"level"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// ObjectiveTracker mirrors one participant's progress on an objective.
type ObjectiveTracker struct {
	ID          string     `json:"id"`
	ObjectiveID string     `json:"objective_id"`
	UserID      string     `json:"user_id"`
	Progress    int64      `json:"progress"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// EarnedBadge mirrors a badge grant.
type EarnedBadge struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	BadgeID   string    `json:"badge_id"`
	CreatedAt time.Time `json:"created_at"`
}

// IncrementResult is the outcome of one metric increment.
type IncrementResult struct {
	User                User               `json:"user"`
	FirstEvent          bool               `json:"first_event"`
	XPGained            int64              `json:"xp_gained"`
	LeveledUp           bool               `json:"leveled_up"`
	CompletedObjectives []ObjectiveTracker `json:"completed_objectives"`
	AwardedBadges       []EarnedBadge      `json:"awarded_badges"`
}

// UserReward mirrors a claimed reward row.
type UserReward struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	RewardID  string    `json:"reward_id"`
	Status    string    `json:"status"`
	ClaimedAt time.Time `json:"claimed_at"`
}

// MetricHistory mirrors one recorded increment.
type MetricHistory struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	MetricID  string    `json:"metric_id"`
	Value     int64     `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}

// PageInfo is the pagination envelope on list responses.
type PageInfo struct {
	TotalDocs   int  `json:"total_docs"`
	Limit       int  `json:"limit"`
	Page        int  `json:"page"`
	TotalPages  int  `json:"total_pages"`
	HasNextPage bool `json:"has_next_page"`
	NextPage    *int `json:"next_page"`
	HasPrevPage bool `json:"has_prev_page"`
	PrevPage    *int `json:"prev_page"`
}

// LeaderboardEntry is one ranked row.
type LeaderboardEntry struct {
	UserID string `json:"user_id"`
	XP     int64  `json:"xp"`
}

// Rank is a single user's leaderboard position.
type Rank struct {
	UserID string `json:"user_id"`
	XP     int64  `json:"xp"`
	Rank   int    `json:"rank"`
}

// HealthStatus describes the /healthz response.
type HealthStatus struct {
	Status string                 `json:"status"`
	Checks map[string]interface{} `json:"checks"`
}

// APIError is a non-2xx response decoded from the API's error envelope.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Code, e.Message)
}

// ErrEmptyUserID is returned when user id is empty.
var ErrEmptyUserID = errors.New("user id is required")

func decodeJSON(resp *http.Response, target any) error {
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Code == "" {
			apiErr.Code = "unknown"
			apiErr.Message = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return apiErr
	}
	if target == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(target)
}
