package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"gamifyd/core"
	"gamifyd/engine"
)

func TestSinkPostsToEndpoints(t *testing.T) {
	var hits int32
	var got core.Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		require.Equal(t, "xp_gained", r.Header.Get("X-Gamifyd-Event"))
	}))
	defer srv.Close()

	sink := New([]string{srv.URL})
	sink.OnEvent(context.Background(), core.NewXPGained("c1", "u1", 5, 5))

	require.EqualValues(t, 1, atomic.LoadInt32(&hits))
	require.Equal(t, "u1", got.UserID)
}

func TestSinkFiltersEventTypes(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	sink := New([]string{srv.URL}, WithEventTypes(core.EventBadgeAwarded))
	sink.OnEvent(context.Background(), core.NewXPGained("c1", "u1", 5, 5))
	sink.OnEvent(context.Background(), core.NewBadgeAwarded("c1", "u1", "b1"))

	require.EqualValues(t, 1, atomic.LoadInt32(&hits))
}

func TestSinkRetriesServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	sink := New([]string{srv.URL}, WithRetries(3))
	sink.OnEvent(context.Background(), core.NewXPGained("c1", "u1", 5, 5))

	require.EqualValues(t, 2, atomic.LoadInt32(&hits))
}

func TestSinkDoesNotRetryClientErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	sink := New([]string{srv.URL}, WithRetries(5))
	sink.OnEvent(context.Background(), core.NewXPGained("c1", "u1", 5, 5))

	require.EqualValues(t, 1, atomic.LoadInt32(&hits))
}

func TestSinkAttachesToBus(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	bus := engine.NewEventBus(engine.DispatchSync)
	defer bus.Close()
	sink := New([]string{srv.URL})
	stop := sink.Attach(bus)
	defer stop()

	bus.Publish(context.Background(), core.NewLevelUp("c1", "u1", 2))
	require.EqualValues(t, 1, atomic.LoadInt32(&hits))
}
