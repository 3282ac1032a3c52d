// Command demo-server runs an in-memory gamifyd with a seeded tenant so the
// API can be exercised without any infrastructure. It prints the tenant API
// key on startup.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"gamifyd/api/httpapi"
	"gamifyd/core"
	"gamifyd/engine"
	"gamifyd/gamify"
	"gamifyd/leaderboard"
	"gamifyd/realtime"
)

func main() {
	textHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	slog.SetDefault(slog.New(textHandler))

	hub := realtime.NewHub()
	board := leaderboard.NewMemory()
	svc := gamify.New(
		gamify.WithDispatchMode(engine.DispatchAsync),
		gamify.WithRealtime(hub),
		gamify.WithLeaderboard(board),
	)
	defer svc.Close()

	ctx := context.Background()
	company, err := svc.CreateCompany(ctx, "demo", nil)
	if err != nil {
		slog.Error("seed company", "error", err)
		os.Exit(1)
	}
	seed(ctx, svc, company.ID)

	handler := httpapi.NewMux(svc, board, hub, httpapi.Options{
		PathPrefix:      "/api",
		AllowCORSOrigin: "*",
		AdminKey:        "demo-admin",
	})

	slog.Info("demo server on :8080", "api_key", company.APIKey)
	slog.Info("try it", "increment", "POST /api/users/{id}/increments", "ws", "GET /api/ws")

	if err := http.ListenAndServe(":8080", handler); err != nil {
		slog.Error("demo server crashed", "error", err)
		os.Exit(1)
	}
}

// seed provisions a user, a metric, a first-increment badge and a solo
// objective so every event type can fire out of the box.
func seed(ctx context.Context, svc *engine.Service, companyID string) {
	user, err := svc.CreateUser(ctx, companyID, engine.UserInput{Name: "alice"})
	if err != nil {
		slog.Error("seed user", "error", err)
		return
	}
	metric, err := svc.CreateMetric(ctx, companyID, engine.MetricInput{
		Name: "commits", Description: "pushed commits", DefaultGainXP: 10,
	})
	if err != nil {
		slog.Error("seed metric", "error", err)
		return
	}
	_, err = svc.CreateBadge(ctx, companyID, engine.BadgeInput{
		Name:        "first commit",
		Description: "awarded on the first tracked commit",
		Conditions: []engine.ConditionInput{
			{MetricID: metric.ID, Type: core.ConditionFirstEvent},
		},
	})
	if err != nil {
		slog.Error("seed badge", "error", err)
	}
	_, err = svc.CreateObjective(ctx, companyID, engine.ObjectiveInput{
		Name:        "ten commits",
		MetricID:    metric.ID,
		Type:        core.ObjectiveSolo,
		TargetValue: 10,
		RewardXP:    100,
		UserIDs:     []string{user.ID},
	})
	if err != nil {
		slog.Error("seed objective", "error", err)
	}
	slog.Info("seeded demo tenant", "user", user.ID, "metric", metric.ID)
}
