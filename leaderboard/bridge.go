package leaderboard

import (
	"context"
	"log/slog"

	"gamifyd/core"
	"gamifyd/engine"
)

// Bridge keeps a Board current by following xp_gained events. Returns an
// unsubscribe func.
func Bridge(bus *engine.EventBus, board Board, log *slog.Logger) func() {
	if log == nil {
		log = slog.Default()
	}
	return bus.Subscribe(core.EventXPGained, func(ctx context.Context, ev core.Event) {
		if err := board.Update(ctx, ev.CompanyID, ev.UserID, ev.XP); err != nil {
			log.Warn("leaderboard update failed", "company", ev.CompanyID, "user", ev.UserID, "err", err)
		}
	})
}
