// Package leaderboard ranks users by lifetime XP within a company. Two
// implementations are provided: an in-process skip list and a Redis sorted
// set for multi-instance deployments.
package leaderboard

import "context"

// Entry is one ranked row.
type Entry struct {
	UserID string `json:"user_id"`
	XP     int64  `json:"xp"`
}

// Board abstracts leaderboard operations. All methods are scoped to one
// company; users never rank across tenants.
type Board interface {
	// Update sets the user's score, inserting them if absent.
	Update(ctx context.Context, companyID, userID string, xp int64) error
	// Remove drops the user from the board.
	Remove(ctx context.Context, companyID, userID string) error
	// Top returns the n highest-scored entries, best first.
	Top(ctx context.Context, companyID string, n int) ([]Entry, error)
	// Rank returns the user's entry and 1-based position, or ok=false when
	// the user is not on the board.
	Rank(ctx context.Context, companyID, userID string) (Entry, int, bool, error)
}
