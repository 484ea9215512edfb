package routing

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/railtrace/railtrace/internal/catalog"
	"github.com/railtrace/railtrace/internal/routecache"
	"github.com/railtrace/railtrace/pkg/polyline"
)

// mockEngine is a routing engine that returns a canned reply.
type mockEngine struct {
	order     AxisOrder
	body      []byte
	fetchErr  error
	geomErr   error
	precision polyline.Precision
	delay     time.Duration

	// gate, when set, holds every fetch until it is closed or the fetch ctx ends.
	gate    chan struct{}
	started chan struct{}

	mu        sync.Mutex
	calls     atomic.Int32
	lastPairs [][2]string
}

func (m *mockEngine) Name() string         { return "mock" }
func (m *mockEngine) AxisOrder() AxisOrder { return m.order }

func (m *mockEngine) Fetch(ctx context.Context, origin, destination string) ([]byte, error) {
	m.calls.Add(1)
	m.mu.Lock()
	m.lastPairs = append(m.lastPairs, [2]string{origin, destination})
	m.mu.Unlock()
	if m.started != nil {
		select {
		case m.started <- struct{}{}:
		default:
		}
	}
	if m.gate != nil {
		select {
		case <-m.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	return m.body, nil
}

func (m *mockEngine) Geometry(body []byte) (Geometry, error) {
	if m.geomErr != nil {
		return Geometry{}, m.geomErr
	}
	precision := m.precision
	if precision == 0 {
		precision = polyline.Precision5
	}
	return Geometry{Polyline: string(body), Precision: precision}, nil
}

type stationMap map[string]*catalog.Station

func (s stationMap) Station(id string) (*catalog.Station, bool) {
	st, ok := s[id]
	return st, ok
}

func testStations(t *testing.T) StationLookup {
	t.Helper()
	c, err := catalog.LoadFile(afero.NewOsFs(), "../catalog/testdata/stations.csv", catalog.Options{})
	require.NoError(t, err)
	return c
}

func newTestResolver(t *testing.T, engine *mockEngine, opts ...func(*ResolverConfig)) (*Resolver, routecache.Cache) {
	t.Helper()
	cache, err := routecache.NewFileCache(afero.NewMemMapFs(), "/cache")
	require.NoError(t, err)

	cfg := ResolverConfig{
		Engine:   engine,
		Cache:    cache,
		Stations: testStations(t),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewResolver(cfg), cache
}

const threePoints = "_p~iF~ps|U_ulLnnqC_mqNvxq`@"

func TestResolver_CacheMissThenHit(t *testing.T) {
	engine := &mockEngine{body: []byte(threePoints)}
	r, cache := newTestResolver(t, engine)
	ctx := context.Background()

	first, err := r.Resolve(ctx, "38.5,-120.2", "43.252,-126.453", false)
	require.NoError(t, err)
	assert.Equal(t, int32(1), engine.calls.Load())

	body, ok, err := cache.Get(ctx, "38.5,-120.2_43.252,-126.453")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, threePoints, string(body))

	second, err := r.Resolve(ctx, "38.5,-120.2", "43.252,-126.453", false)
	require.NoError(t, err)
	assert.Equal(t, int32(1), engine.calls.Load(), "second call must be served from cache")

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.JSONEq(t, string(a), string(b))
}

func TestResolver_PolygonByDefault(t *testing.T) {
	engine := &mockEngine{body: []byte(threePoints)}
	r, _ := newTestResolver(t, engine)

	feature, err := r.Resolve(context.Background(), "38.5,-120.2", "43.252,-126.453", false)
	require.NoError(t, err)

	polygon, ok := feature.Geometry.(orb.Polygon)
	require.True(t, ok, "expected Polygon, got %T", feature.Geometry)
	require.Len(t, polygon, 1)
	require.Len(t, polygon[0], 3)
	assert.InDelta(t, -120.2, polygon[0][0][0], 1e-9)
	assert.InDelta(t, 38.5, polygon[0][0][1], 1e-9)

	assert.Equal(t, "38.5,-120.2", feature.Properties["origin"])
	assert.Equal(t, "43.252,-126.453", feature.Properties["destination"])
	assert.Equal(t, "mock", feature.Properties["engine"])
	assert.Equal(t, 3, feature.Properties["points"])
	assert.Equal(t, false, feature.Properties["simplified"])
	assert.Greater(t, feature.Properties["length_m"], 0.0)

	raw, err := json.Marshal(feature)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"type":"Polygon"`)
	assert.Contains(t, string(raw), `[[[-120.2,38.5],[-120.95,40.7],[-126.453,43.252]]]`)
}

func TestResolver_LineStringShape(t *testing.T) {
	engine := &mockEngine{body: []byte(threePoints)}
	r, _ := newTestResolver(t, engine, func(c *ResolverConfig) { c.Shape = ShapeLineString })

	feature, err := r.Resolve(context.Background(), "38.5,-120.2", "43.252,-126.453", false)
	require.NoError(t, err)

	line, ok := feature.Geometry.(orb.LineString)
	require.True(t, ok, "expected LineString, got %T", feature.Geometry)
	assert.Len(t, line, 3)
}

func TestResolver_Simplify(t *testing.T) {
	coords := []polyline.Coordinate{
		{Lat: 48.0, Lon: 2.0},
		{Lat: 48.001, Lon: 2.0005},
		{Lat: 48.002, Lon: 2.0},
		{Lat: 48.5, Lon: 2.0},
		{Lat: 49.0, Lon: 2.0},
	}
	engine := &mockEngine{body: []byte(polyline.Encode(coords, polyline.Precision5))}
	r, _ := newTestResolver(t, engine)
	ctx := context.Background()

	full, err := r.Resolve(ctx, "48,2", "49,2", false)
	require.NoError(t, err)
	simplified, err := r.Resolve(ctx, "48,2", "49,2", true)
	require.NoError(t, err)

	assert.Equal(t, 5, full.Properties["points"])
	assert.Equal(t, 2, simplified.Properties["points"])
	assert.Equal(t, true, simplified.Properties["simplified"])
	assert.Equal(t, full.Properties["length_m"], simplified.Properties["length_m"])

	polygon := simplified.Geometry.(orb.Polygon)
	assert.Equal(t, orb.Point{2.0, 48.0}, polygon[0][0])
	assert.Equal(t, orb.Point{2.0, 49.0}, polygon[0][1])
	assert.Equal(t, int32(1), engine.calls.Load())
}

func TestResolver_KnownStationCorrection(t *testing.T) {
	engine := &mockEngine{body: []byte(threePoints)}
	r, cache := newTestResolver(t, engine)
	ctx := context.Background()

	_, err := r.Resolve(ctx, "48.841172,2.320514", "47.21725,-1.541721", false)
	require.NoError(t, err)

	require.Len(t, engine.lastPairs, 1)
	assert.Equal(t, [2]string{"48.839526,2.318630", "47.21725,-1.541721"}, engine.lastPairs[0])

	_, ok, err := cache.Get(ctx, "48.839526,2.318630_47.21725,-1.541721")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCorrectKnownStation(t *testing.T) {
	assert.Equal(t, "48.839526,2.318630", CorrectKnownStation("48.841172,2.320514"))
	assert.Equal(t, "2.318630,48.839526", CorrectKnownStation("2.320514,48.841172"))
	assert.Equal(t, "48.84117,2.320514", CorrectKnownStation("48.84117,2.320514"))
}

func TestResolver_StationIDs(t *testing.T) {
	t.Run("lat,lon engine", func(t *testing.T) {
		engine := &mockEngine{body: []byte(threePoints), order: LatLon}
		r, _ := newTestResolver(t, engine)

		_, err := r.Resolve(context.Background(), "4916", "6617", false)
		require.NoError(t, err)
		require.Len(t, engine.lastPairs, 1)
		assert.Equal(t, [2]string{"48.839526,2.318630", "47.21725,-1.541721"}, engine.lastPairs[0])
	})

	t.Run("lon,lat engine", func(t *testing.T) {
		engine := &mockEngine{body: []byte(threePoints), order: LonLat}
		r, _ := newTestResolver(t, engine)

		_, err := r.Resolve(context.Background(), "4916", "6617", false)
		require.NoError(t, err)
		require.Len(t, engine.lastPairs, 1)
		assert.Equal(t, [2]string{"2.318630,48.839526", "-1.541721,47.21725"}, engine.lastPairs[0])
	})

	t.Run("same station on both ends", func(t *testing.T) {
		engine := &mockEngine{body: []byte(threePoints)}
		r, cache := newTestResolver(t, engine)
		ctx := context.Background()

		_, err := r.Resolve(ctx, "6617", "6617", false)
		require.NoError(t, err)

		_, ok, err := cache.Get(ctx, "47.21725,-1.541721_47.21725,-1.541721")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("unlocated station", func(t *testing.T) {
		engine := &mockEngine{body: []byte(threePoints)}
		r, _ := newTestResolver(t, engine)

		_, err := r.Resolve(context.Background(), "9001", "6617", false)
		assert.ErrorIs(t, err, ErrInvalidCoordinates)
		assert.Equal(t, int32(0), engine.calls.Load())
	})
}

func TestResolver_InvalidEndpoints(t *testing.T) {
	tests := []struct {
		name        string
		origin      string
		destination string
		want        error
	}{
		{name: "empty origin", origin: "", destination: "47.2,-1.5", want: ErrInvalidEndpoint},
		{name: "letters only", origin: "paris", destination: "47.2,-1.5", want: ErrInvalidEndpoint},
		{name: "single value", origin: "48.8", destination: "47.2,-1.5", want: ErrInvalidCoordinates},
		{name: "three values", origin: "1,2,3", destination: "47.2,-1.5", want: ErrInvalidCoordinates},
		{name: "latitude out of range", origin: "91,2", destination: "47.2,-1.5", want: ErrInvalidCoordinates},
		{name: "longitude out of range", origin: "48,181", destination: "47.2,-1.5", want: ErrInvalidCoordinates},
		{name: "not a number", origin: "48..8,2", destination: "47.2,-1.5", want: ErrInvalidCoordinates},
		{name: "bad destination", origin: "48.8,2.3", destination: ",", want: ErrInvalidCoordinates},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &mockEngine{body: []byte(threePoints)}
			r, _ := newTestResolver(t, engine)

			_, err := r.Resolve(context.Background(), tt.origin, tt.destination, false)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var routingErr *Error
			assert.True(t, errors.As(err, &routingErr))
			assert.Equal(t, int32(0), engine.calls.Load())
		})
	}
}

func TestResolver_SanitizesEndpoints(t *testing.T) {
	engine := &mockEngine{body: []byte(threePoints)}
	r, _ := newTestResolver(t, engine)

	feature, err := r.Resolve(context.Background(), " 48.8 , 2.3 ", "47.2;,-1.5", false)
	require.NoError(t, err)
	assert.Equal(t, "48.8,2.3", feature.Properties["origin"])
	assert.Equal(t, "47.2,-1.5", feature.Properties["destination"])
}

func TestResolver_NoRoute(t *testing.T) {
	engine := &mockEngine{body: []byte(`{}`), geomErr: ErrNoRouteFound}
	r, cache := newTestResolver(t, engine)
	ctx := context.Background()

	_, err := r.Resolve(ctx, "48.8,2.3", "47.2,-1.5", false)
	assert.ErrorIs(t, err, ErrNoRouteFound)

	// The reply itself was valid and stays cached.
	_, ok, err := cache.Get(ctx, "48.8,2.3_47.2,-1.5")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestResolver_FetchErrorNotCached(t *testing.T) {
	engine := &mockEngine{fetchErr: &Error{Provider: "mock", Message: "boom", Err: ErrProviderUnavailable}}
	r, cache := newTestResolver(t, engine)
	ctx := context.Background()

	_, err := r.Resolve(ctx, "48.8,2.3", "47.2,-1.5", false)
	assert.ErrorIs(t, err, ErrProviderUnavailable)

	_, ok, err := cache.Get(ctx, "48.8,2.3_47.2,-1.5")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolver_MalformedPolyline(t *testing.T) {
	engine := &mockEngine{body: []byte("_p~iF")}
	r, _ := newTestResolver(t, engine)

	_, err := r.Resolve(context.Background(), "48.8,2.3", "47.2,-1.5", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.ErrorIs(t, err, polyline.ErrMalformed)
}

type failingCache struct {
	getErr error
	putErr error
}

func (f failingCache) Get(context.Context, string) ([]byte, bool, error) { return nil, false, f.getErr }
func (f failingCache) Put(context.Context, string, []byte) error         { return f.putErr }

func TestResolver_CacheFailuresAreNotFatal(t *testing.T) {
	engine := &mockEngine{body: []byte(threePoints)}
	r := NewResolver(ResolverConfig{
		Engine: engine,
		Cache:  failingCache{getErr: errors.New("read failed"), putErr: errors.New("disk full")},
	})

	feature, err := r.Resolve(context.Background(), "48.8,2.3", "47.2,-1.5", false)
	require.NoError(t, err)
	assert.Equal(t, 3, feature.Properties["points"])
	assert.Equal(t, int32(1), engine.calls.Load())
}

// countingCache counts cache reads so tests know every caller has missed.
type countingCache struct {
	routecache.Cache
	gets atomic.Int32
}

func (c *countingCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.gets.Add(1)
	return c.Cache.Get(ctx, key)
}

func gatedEngine() *mockEngine {
	return &mockEngine{
		body:    []byte(threePoints),
		gate:    make(chan struct{}),
		started: make(chan struct{}, 1),
	}
}

func TestResolver_ConcurrentMissesShareFetch(t *testing.T) {
	engine := gatedEngine()
	r, cache := newTestResolver(t, engine)
	counting := &countingCache{Cache: cache}
	r.cache = counting

	const callers = 10
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Resolve(context.Background(), "48.8,2.3", "47.2,-1.5", false)
			assert.NoError(t, err)
		}()
	}

	// Hold the first fetch until every caller has missed the cache and joined it.
	<-engine.started
	require.Eventually(t, func() bool { return counting.gets.Load() == callers }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(engine.gate)
	wg.Wait()

	assert.Equal(t, int32(1), engine.calls.Load())
}

func TestResolver_CancelledCallerDoesNotFailOthers(t *testing.T) {
	engine := gatedEngine()
	r, cache := newTestResolver(t, engine)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := r.Resolve(firstCtx, "48.8,2.3", "47.2,-1.5", false)
		firstErr <- err
	}()
	<-engine.started

	cancelFirst()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting for the engine")
	}

	// The fetch is still in flight; a caller that was never cancelled joins it.
	secondErr := make(chan error, 1)
	go func() {
		_, err := r.Resolve(context.Background(), "48.8,2.3", "47.2,-1.5", false)
		secondErr <- err
	}()
	time.Sleep(20 * time.Millisecond)
	close(engine.gate)

	select {
	case err := <-secondErr:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("second caller never completed")
	}
	assert.Equal(t, int32(1), engine.calls.Load())

	require.Eventually(t, func() bool {
		_, ok, err := cache.Get(context.Background(), routecache.Key("48.8,2.3", "47.2,-1.5"))
		return err == nil && ok
	}, time.Second, time.Millisecond)
}

func TestResolver_CallerDeadlineLeavesFetchRunning(t *testing.T) {
	engine := gatedEngine()
	r, cache := newTestResolver(t, engine)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := r.Resolve(ctx, "48.8,2.3", "47.2,-1.5", false)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(engine.gate)
	require.Eventually(t, func() bool {
		_, ok, err := cache.Get(context.Background(), routecache.Key("48.8,2.3", "47.2,-1.5"))
		return err == nil && ok
	}, time.Second, time.Millisecond)
	assert.Equal(t, int32(1), engine.calls.Load())
}

func TestValidateEndpoint_AxisOrder(t *testing.T) {
	// 120 is a valid longitude but not a valid latitude.
	assert.Error(t, validateEndpoint("120,45", LatLon))
	assert.NoError(t, validateEndpoint("120,45", LonLat))
	assert.NoError(t, validateEndpoint("45,120", LatLon))
}

func TestAxisOrder_String(t *testing.T) {
	assert.Equal(t, "lat,lon", LatLon.String())
	assert.Equal(t, "lon,lat", LonLat.String())
}

func TestError_IsRetryable(t *testing.T) {
	assert.True(t, (&Error{Err: ErrProviderUnavailable}).IsRetryable())
	assert.False(t, (&Error{Err: ErrNoRouteFound}).IsRetryable())
	assert.Equal(t, "boom: no route found between the given points", (&Error{Message: "boom", Err: ErrNoRouteFound}).Error())
}
