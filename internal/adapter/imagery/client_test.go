package imagery

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/stencil-tile-etl/internal/domain"
	"github.com/couchcryptid/stencil-tile-etl/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

const (
	testKey           = "test-key"
	contentTypePNG    = "image/png"
	headerContentType = "Content-Type"
)

// fastPolicy keeps the real-clock retry tests quick.
var fastPolicy = RetryPolicy{MaxAttempts: 3, Multiplier: time.Millisecond, Min: time.Millisecond, Max: 2 * time.Millisecond}

func testClient(baseURL string) *Client {
	return &Client{
		apiKey:     testKey,
		baseURL:    baseURL,
		style:      "Aerial",
		mapSize:    image.Pt(500, 500),
		httpClient: &http.Client{Timeout: 5 * time.Second},
		policy:     fastPolicy,
		limiter:    newLimiter(0),
		clock:      clockwork.NewRealClock(),
		metrics:    observability.NewMetricsForTesting(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func TestClient_AreaURL(t *testing.T) {
	c := testClient("http://imagery.local/Map")
	box := domain.BoundingBox{MinLat: 40, MinLon: -74.1, MaxLat: 40.1, MaxLon: -74}

	got := c.AreaURL(box, 90)

	assert.Equal(t,
		"http://imagery.local/Map/Aerial?mapArea=40,-74.1,40.1,-74&mapSize=500,500&format=png&dir=90&key=test-key",
		got)
}

func TestClient_PointURL(t *testing.T) {
	c := testClient("http://imagery.local/Map")

	got := c.PointURL(domain.PointView{CenterLat: 42.36, CenterLon: -71.06, Zoom: 15}, 0)

	assert.Equal(t,
		"http://imagery.local/Map/Aerial/42.36,-71.06/15?mapSize=500,500&format=png&dir=0&key=test-key",
		got)
}

func TestClient_URLFor(t *testing.T) {
	c := testClient("http://imagery.local/Map")

	u, err := c.URLFor(domain.Viewport{Mode: domain.ModeSweep, Point: domain.PointView{CenterLat: 1, CenterLon: 2, Zoom: 3}})
	require.NoError(t, err)
	assert.Contains(t, u, "/Aerial/1,2/3?")

	_, err = c.URLFor(domain.Viewport{Mode: "polygon"})
	require.Error(t, err)
}

func TestClient_Fetch_Success(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, testKey, r.URL.Query().Get("key"))
		w.Header().Set(headerContentType, contentTypePNG)
		_, _ = w.Write([]byte("tile"))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	body, err := c.Fetch(context.Background(), srv.URL+"/Aerial?key="+testKey)
	require.NoError(t, err)

	assert.Equal(t, []byte("tile"), body)
	assert.Equal(t, int32(1), calls.Load())
	assert.InDelta(t, 1, testutil.ToFloat64(c.metrics.FetchAttempts.WithLabelValues("success")), 0)
}

func TestClient_Fetch_RecoversAfterTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("tile"))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	body, err := c.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, []byte("tile"), body)
	assert.Equal(t, int32(3), calls.Load())
	assert.InDelta(t, 2, testutil.ToFloat64(c.metrics.FetchAttempts.WithLabelValues("error")), 0)
}

func TestClient_Fetch_ExhaustsBudget(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"errorDetails":["busy"]}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.Fetch(context.Background(), srv.URL+"/Aerial?key="+testKey)
	require.Error(t, err)

	assert.Equal(t, int32(3), calls.Load())

	var fetchErr *domain.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, 3, fetchErr.Attempts)
	assert.NotContains(t, fetchErr.URL, testKey)

	var statusErr *domain.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.Code)
	assert.Contains(t, err.Error(), "503")
}

func TestClient_Fetch_OnlyOKIsSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.Fetch(context.Background(), srv.URL)

	var fetchErr *domain.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_Fetch_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	c.httpClient = &http.Client{Timeout: 50 * time.Millisecond}

	_, err := c.Fetch(context.Background(), srv.URL)

	var fetchErr *domain.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, 3, fetchErr.Attempts)
}

func TestClient_Fetch_CanceledContextMakesNoRequest(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testClient(srv.URL).Fetch(ctx, srv.URL)
	require.Error(t, err)
	assert.Zero(t, calls.Load())
}

func TestClient_Fetch_WaitsFollowPolicy(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	clock := clockwork.NewFakeClock()
	c := testClient(srv.URL)
	c.clock = clock
	c.policy = DefaultRetryPolicy

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Fetch(context.Background(), srv.URL)
		errCh <- err
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for attempt := 1; attempt <= 2; attempt++ {
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		assert.Equal(t, int32(attempt), calls.Load())

		// Just short of the 4s floor nothing happens.
		clock.Advance(4*time.Second - time.Millisecond)
		assert.Equal(t, int32(attempt), calls.Load())
		clock.Advance(time.Millisecond)
	}

	select {
	case err := <-errCh:
		var fetchErr *domain.FetchError
		require.ErrorAs(t, err, &fetchErr)
		assert.Equal(t, 3, fetchErr.Attempts)
	case <-ctx.Done():
		t.Fatal("fetch did not finish")
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_FetchTile(t *testing.T) {
	tile := pngBytes(t, 500, 500)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Aerial", r.URL.Path)
		assert.Equal(t, "40,-74,41,-73", r.URL.Query().Get("mapArea"))
		w.Header().Set(headerContentType, contentTypePNG)
		_, _ = w.Write(tile)
	}))
	defer srv.Close()

	img, err := testClient(srv.URL).FetchTile(context.Background(), domain.Viewport{
		Mode: domain.ModeArea,
		Box:  domain.BoundingBox{MinLat: 40, MinLon: -74, MaxLat: 41, MaxLon: -73},
	})
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 500, 500), img.Bounds())
}

func TestClient_FetchTile_UndecodableBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not an image"))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).FetchTile(context.Background(), domain.Viewport{Mode: domain.ModePoint})
	require.Error(t, err)

	var fetchErr *domain.FetchError
	assert.False(t, errors.As(err, &fetchErr))
}

func TestNewLimiter(t *testing.T) {
	assert.Equal(t, rate.Inf, newLimiter(0).Limit())

	l := newLimiter(2.5)
	assert.Equal(t, rate.Limit(2.5), l.Limit())
	assert.Equal(t, 1, l.Burst())
}

func TestRedactKey(t *testing.T) {
	assert.Equal(t, "http://x/Map?key=REDACTED&mapSize=1%2C1", redactKey("http://x/Map?mapSize=1,1&key=secret"))
	assert.Equal(t, "http://x/Map", redactKey("http://x/Map"))
}
