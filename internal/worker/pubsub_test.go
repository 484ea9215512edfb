package worker_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/railtrace/railtrace/internal/routing"
	"github.com/railtrace/railtrace/internal/worker"
)

func newDispatcher(r worker.Resolver) *worker.Dispatcher {
	return worker.NewDispatcher(newJob(r, worker.PrewarmConfig{}), zerolog.Nop())
}

func TestDispatcher_RoutePrewarm(t *testing.T) {
	resolver := &fakeResolver{}
	d := newDispatcher(resolver)

	err := d.Dispatch(context.Background(), []byte(
		`{"job_type":"route_prewarm","pairs":[{"dep":"4916","arr":"6617"}],"stations":["5085","10224"]}`,
	))

	require.NoError(t, err)
	assert.ElementsMatch(t, []worker.Pair{
		{Dep: "4916", Arr: "6617"},
		{Dep: "5085", Arr: "10224"},
		{Dep: "10224", Arr: "5085"},
	}, resolver.seen)
}

func TestDispatcher_RoutePrewarm_NoRouteIsSuccess(t *testing.T) {
	resolver := &fakeResolver{errs: map[string]error{"4916>10224": routing.ErrNoRouteFound}}
	d := newDispatcher(resolver)

	err := d.Dispatch(context.Background(), []byte(
		`{"job_type":"route_prewarm","pairs":[{"dep":"4916","arr":"10224"}]}`,
	))

	assert.NoError(t, err)
}

func TestDispatcher_RoutePrewarm_FailedPairs(t *testing.T) {
	resolver := &fakeResolver{errs: map[string]error{"4916>6617": routing.ErrProviderUnavailable}}
	d := newDispatcher(resolver)

	err := d.Dispatch(context.Background(), []byte(
		`{"job_type":"route_prewarm","pairs":[{"dep":"4916","arr":"6617"},{"dep":"6617","arr":"4916"}]}`,
	))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "1/2 pairs")
}

func TestDispatcher_HealthCheck(t *testing.T) {
	resolver := &fakeResolver{}
	d := newDispatcher(resolver)

	require.NoError(t, d.Dispatch(context.Background(), []byte(`{"job_type":"health_check"}`)))
	assert.Equal(t, []worker.Pair{worker.DefaultPrewarmConfig().HealthPair}, resolver.seen)
}

func TestDispatcher_HealthCheckFailure(t *testing.T) {
	resolver := &fakeResolver{errs: map[string]error{"4916>5085": routing.ErrProviderUnavailable}}
	d := newDispatcher(resolver)

	err := d.Dispatch(context.Background(), []byte(`{"job_type":"health_check"}`))

	require.Error(t, err)
	assert.ErrorIs(t, err, routing.ErrProviderUnavailable)
}

func TestDispatcher_UnknownJobTypeIsAcked(t *testing.T) {
	resolver := &fakeResolver{}
	d := newDispatcher(resolver)

	assert.NoError(t, d.Dispatch(context.Background(), []byte(`{"job_type":"provider_refresh"}`)))
	assert.Empty(t, resolver.seen)
}

func TestDispatcher_MalformedMessage(t *testing.T) {
	d := newDispatcher(&fakeResolver{})

	err := d.Dispatch(context.Background(), []byte(`{not json`))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing message")
}
