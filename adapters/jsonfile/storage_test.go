package jsonfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamifyd/core"
	"gamifyd/engine"
)

func newService(t *testing.T, path string) *engine.Service {
	t.Helper()
	store, err := New(path)
	require.NoError(t, err)
	svc := engine.NewService(store, engine.NewEventBus(engine.DispatchSync), engine.Options{})
	t.Cleanup(svc.Close)
	return svc
}

func TestStateSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	ctx := context.Background()

	svc := newService(t, path)
	company, err := svc.CreateCompany(ctx, "acme", nil)
	require.NoError(t, err)
	user, err := svc.CreateUser(ctx, company.ID, engine.UserInput{Name: "alice"})
	require.NoError(t, err)
	metric, err := svc.CreateMetric(ctx, company.ID, engine.MetricInput{Name: "commits", DefaultGainXP: 10})
	require.NoError(t, err)
	_, err = svc.IncrementMetric(ctx, company.ID, user.ID, metric.ID, 3)
	require.NoError(t, err)

	// fresh store reading the same file
	reopened := newService(t, path)
	got, err := reopened.CompanyByAPIKey(ctx, company.APIKey)
	require.NoError(t, err)
	assert.Equal(t, company.ID, got.ID)

	u, err := reopened.GetUser(ctx, company.ID, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(30), u.XP)

	rows, _, err := reopened.UserMetricHistory(ctx, company.ID, user.ID, metric.ID, engine.DefaultPage())
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestMissingFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.json")
	store, err := New(path)
	require.NoError(t, err)

	_, err = store.CompanyByAPIKey(context.Background(), "nope")
	assert.ErrorIs(t, err, core.ErrNotFound)

	// no write happened, so no file either
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestCorruptFileRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := New(path)
	assert.Error(t, err)
}

func TestSnapshotWrittenAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	ctx := context.Background()

	svc := newService(t, path)
	_, err := svc.CreateCompany(ctx, "acme", nil)
	require.NoError(t, err)

	// the temp file must not linger after a successful write
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(path)
	assert.NoError(t, err)
}
