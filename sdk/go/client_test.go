package sdk

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mem "gamifyd/adapters/memory"
	"gamifyd/api/httpapi"
	"gamifyd/core"
	"gamifyd/engine"
	"gamifyd/leaderboard"
	"gamifyd/realtime"
)

type stack struct {
	server  *httptest.Server
	svc     *engine.Service
	company core.Company
}

func newStack(t *testing.T) *stack {
	t.Helper()
	store := mem.New()
	bus := engine.NewEventBus(engine.DispatchSync)
	svc := engine.NewService(store, bus, engine.Options{})
	t.Cleanup(svc.Close)

	board := leaderboard.NewMemory()
	stopBoard := leaderboard.Bridge(bus, board, nil)
	t.Cleanup(stopBoard)

	hub := realtime.NewHub()
	stopHub := realtime.Bridge(bus, hub)
	t.Cleanup(stopHub)

	company, err := svc.CreateCompany(context.Background(), "acme", nil)
	require.NoError(t, err)

	server := httptest.NewServer(httpapi.NewMux(svc, board, hub, httpapi.Options{PathPrefix: "/api"}))
	t.Cleanup(server.Close)

	return &stack{server: server, svc: svc, company: company}
}

func (s *stack) client(t *testing.T, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithAPIKey(s.company.APIKey)}, opts...)
	c, err := NewClient(s.server.URL+"/api", opts...)
	require.NoError(t, err)
	return c
}

func (s *stack) seed(t *testing.T, gainXP int64) (core.User, core.Metric) {
	t.Helper()
	ctx := context.Background()
	user, err := s.svc.CreateUser(ctx, s.company.ID, engine.UserInput{Name: "alice"})
	require.NoError(t, err)
	metric, err := s.svc.CreateMetric(ctx, s.company.ID, engine.MetricInput{Name: "commits", DefaultGainXP: gainXP})
	require.NoError(t, err)
	return user, metric
}

func TestClientIncrementAndGetUser(t *testing.T) {
	s := newStack(t)
	user, metric := s.seed(t, 10)
	c := s.client(t)
	ctx := context.Background()

	res, err := c.IncrementMetric(ctx, user.ID, metric.ID, 3)
	require.NoError(t, err)
	assert.True(t, res.FirstEvent)
	assert.Equal(t, int64(30), res.XPGained)
	assert.Equal(t, int64(30), res.User.XP)

	got, err := c.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, int64(30), got.XP)
}

func TestClientHistory(t *testing.T) {
	s := newStack(t)
	user, metric := s.seed(t, 5)
	c := s.client(t)
	ctx := context.Background()

	for _, v := range []int64{1, 2, 3} {
		_, err := c.IncrementMetric(ctx, user.ID, metric.ID, v)
		require.NoError(t, err)
	}

	rows, info, err := c.History(ctx, user.ID, metric.ID, 1, 2)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, 3, info.TotalDocs)
	assert.Equal(t, 2, info.TotalPages)
	assert.True(t, info.HasNextPage)
	for _, row := range rows {
		assert.Equal(t, metric.ID, row.MetricID)
	}
}

func TestClientLeaderboard(t *testing.T) {
	s := newStack(t)
	user, metric := s.seed(t, 10)
	c := s.client(t)
	ctx := context.Background()

	_, err := c.IncrementMetric(ctx, user.ID, metric.ID, 5)
	require.NoError(t, err)

	entries, err := c.LeaderboardTop(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, user.ID, entries[0].UserID)
	assert.Equal(t, int64(50), entries[0].XP)

	rank, err := c.LeaderboardRank(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, rank.Rank)
	assert.Equal(t, int64(50), rank.XP)
}

func TestClientClaimReward(t *testing.T) {
	s := newStack(t)
	user, metric := s.seed(t, 10)
	ctx := context.Background()
	reward, err := s.svc.CreateReward(ctx, s.company.ID, engine.RewardInput{
		Name: "sticker", XPThreshold: 20, Quantity: 1,
	})
	require.NoError(t, err)
	c := s.client(t)

	_, err = c.ClaimReward(ctx, user.ID, reward.ID)
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 400, apiErr.Status)

	_, err = c.IncrementMetric(ctx, user.ID, metric.ID, 2)
	require.NoError(t, err)

	claimed, err := c.ClaimReward(ctx, user.ID, reward.ID)
	require.NoError(t, err)
	assert.Equal(t, reward.ID, claimed.RewardID)
	assert.Equal(t, user.ID, claimed.UserID)
}

func TestClientErrorMapping(t *testing.T) {
	s := newStack(t)
	_, metric := s.seed(t, 10)
	c := s.client(t)

	_, err := c.IncrementMetric(context.Background(), "ghost", metric.ID, 1)
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 404, apiErr.Status)
	assert.Equal(t, "not_found", apiErr.Code)

	_, err = c.GetUser(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyUserID)
}

func TestClientHealth(t *testing.T) {
	s := newStack(t)
	c := s.client(t)

	health, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
}

func TestClientSubscribeEvents(t *testing.T) {
	s := newStack(t)
	user, metric := s.seed(t, 10)
	c := s.client(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events, err := c.SubscribeEvents(ctx)
	require.NoError(t, err)

	// give the server-side subscription a moment to register
	time.Sleep(50 * time.Millisecond)

	_, err = c.IncrementMetric(ctx, user.ID, metric.ID, 1)
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, s.company.ID, ev.CompanyID)
		assert.Equal(t, user.ID, ev.UserID)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient("")
	assert.Error(t, err)

	c, err := NewClient("http://localhost:8080/api/")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/api", c.baseURL)
	assert.Equal(t, "ws://localhost:8080/api/ws", c.wsURL)
}
