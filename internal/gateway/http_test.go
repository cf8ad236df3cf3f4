package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"house_screens/internal/models"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sampleGraph = []models.House{{
	ID:                "H1",
	CurrentPlaylistID: "P1",
	Environments: []models.Environment{{
		ID: "E1", HouseID: "H1", Name: "Web Player", IPAddress: "127.0.0.1",
		Screens: []models.Screen{{ID: "S1", EnvironmentID: "E1", Width: 1920, Height: 1080, On: true, Enabled: true, Seq: 1}},
	}},
}}

func newTestGateway(t *testing.T, h http.Handler, opts ...Option) *HTTPGateway {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	opts = append([]Option{WithRateLimit(0, 0)}, opts...)
	g, err := NewHTTPGateway(srv.URL+"/api", opts...)
	require.NoError(t, err)
	return g
}

func TestNewHTTPGateway_RejectsBadURL(t *testing.T) {
	_, err := NewHTTPGateway("not a url")
	assert.Error(t, err)
}

func TestFetchGraph_DecodesAndCaches(t *testing.T) {
	var calls atomic.Int32
	var lastQuery string
	g := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		lastQuery = r.URL.RawQuery
		assert.Equal(t, "/api/houses", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(graphResponse{Houses: sampleGraph})
	}), WithSession(models.Session{Token: "tok"}), WithCacheTTL(time.Minute))

	got, err := g.FetchGraph(context.Background(), false)
	require.NoError(t, err)
	if diff := cmp.Diff(sampleGraph, got); diff != "" {
		t.Fatalf("graph mismatch (-want +got):\n%s", diff)
	}

	_, err = g.FetchGraph(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load(), "second read served from cache")

	_, err = g.FetchGraph(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load(), "forced read bypasses cache")
	assert.Equal(t, "fresh=1", lastQuery)
}

func TestFetchGraph_CacheIsCopiedNotShared(t *testing.T) {
	g := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(graphResponse{Houses: sampleGraph})
	}), WithCacheTTL(time.Minute))

	first, err := g.FetchGraph(context.Background(), false)
	require.NoError(t, err)
	first[0].Environments[0].Screens[0].Width = 0

	second, err := g.FetchGraph(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1920, second[0].Environments[0].Screens[0].Width)
}

func TestFetchGraph_CoalescesConcurrentReads(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	g := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-release
		_ = json.NewEncoder(w).Encode(graphResponse{Houses: sampleGraph})
	}), WithCacheTTL(0))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.FetchGraph(context.Background(), false)
			assert.NoError(t, err)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.LessOrEqual(t, calls.Load(), int32(2))
}

func TestFetchGraph_CancelledCallerDoesNotFailSharedFetch(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	g := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-release
		_ = json.NewEncoder(w).Encode(graphResponse{Houses: sampleGraph})
	}), WithCacheTTL(0))

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := g.FetchGraph(ctx, false)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	secondDone := make(chan error, 1)
	go func() {
		got, err := g.FetchGraph(context.Background(), false)
		if err == nil && len(got) != 1 {
			err = errors.New("unexpected graph")
		}
		secondDone <- err
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	select {
	case err := <-firstErr:
		_, ok := AsNetworkError(err)
		assert.True(t, ok, "got %T", err)
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting on the shared fetch")
	}

	close(release)
	select {
	case err := <-secondDone:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("second caller never finished")
	}
	assert.LessOrEqual(t, calls.Load(), int32(2))
}

func TestMutationsInvalidateCache(t *testing.T) {
	var reads atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/houses", func(w http.ResponseWriter, r *http.Request) {
		reads.Add(1)
		_ = json.NewEncoder(w).Encode(graphResponse{Houses: sampleGraph})
	})
	mux.HandleFunc("/api/environments/E1/screens", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusCreated)
	})
	g := newTestGateway(t, mux, WithCacheTTL(time.Minute))

	_, err := g.FetchGraph(context.Background(), false)
	require.NoError(t, err)
	require.NoError(t, g.CreateScreen(context.Background(), "E1"))
	_, err = g.FetchGraph(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, int32(2), reads.Load())
}

func TestActivateScreen_SendsDimensionsAndCallSession(t *testing.T) {
	var got activateRequest
	g := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/screens/S1/activate", r.URL.Path)
		assert.Equal(t, "Bearer per-call", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}), WithSession(models.Session{Token: "default"}))

	err := g.ActivateScreen(context.Background(), "S1", true, models.Dimensions{Width: 1920, Height: 1080}, models.Session{Token: "per-call"})
	require.NoError(t, err)
	assert.Equal(t, activateRequest{On: true, Width: 1920, Height: 1080}, got)
}

func TestCreateEnvironment(t *testing.T) {
	g := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/houses/H1/environments", r.URL.Path)
		_ = json.NewEncoder(w).Encode(createEnvironmentResponse{EnvironmentID: "E9"})
	}))
	id, err := g.CreateEnvironment(context.Background(), "H1")
	require.NoError(t, err)
	assert.Equal(t, "E9", id)
}

func TestCreateEnvironment_EmptyIDIsAnError(t *testing.T) {
	g := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	_, err := g.CreateEnvironment(context.Background(), "H1")
	ne, ok := AsNetworkError(err)
	require.True(t, ok)
	assert.Equal(t, OpCreateEnvironment, ne.Op)
}

func TestRemoveEnvironment_NotFoundIsSuccess(t *testing.T) {
	g := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		http.NotFound(w, r)
	}))
	assert.NoError(t, g.RemoveEnvironment(context.Background(), "E2"))
}

func TestCopyDefaultContent(t *testing.T) {
	g := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req copyContentRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "example.tv", req.Domain)
		_ = json.NewEncoder(w).Encode(models.CopyResult{Playlists: 2, Media: 14})
	}))
	res, err := g.CopyDefaultContent(context.Background(), "example.tv", models.Session{Token: "s"}, "H1")
	require.NoError(t, err)
	assert.Equal(t, models.CopyResult{HouseID: "H1", Playlists: 2, Media: 14}, res)
}

func TestServerErrorBecomesNetworkError(t *testing.T) {
	g := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend exploded", http.StatusBadGateway)
	}))
	_, err := g.FetchGraph(context.Background(), true)
	ne, ok := AsNetworkError(err)
	require.True(t, ok, "got %T", err)
	assert.Equal(t, OpFetchGraph, ne.Op)
	assert.Equal(t, http.StatusBadGateway, ne.StatusCode)
	assert.Contains(t, ne.Error(), "backend exploded")
}

func TestCancelledContextBecomesNetworkError(t *testing.T) {
	g := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := g.CreateScreen(ctx, "E1")
	_, ok := AsNetworkError(err)
	assert.True(t, ok)
	assert.True(t, errors.Is(err, context.Canceled))
}
