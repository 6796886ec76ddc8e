package intercept

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beame2e/internal/config"
	"beame2e/internal/route"
	"beame2e/pkg/model"
	"beame2e/pkg/traffic"
)

func translator() *route.Translator {
	cfg := config.NewConfig()
	cfg.APIURL = "http://api.beam.test"
	cfg.OnboardingAPIURL = "https://onboarding.beam.test"
	cfg.UnleashURL = "https://flags.beam.test/api/frontend"
	return route.NewTranslator(cfg)
}

func get(t *testing.T, path string, o *route.Overrides) route.Matcher {
	t.Helper()
	if o == nil {
		o = &route.Overrides{}
	}
	if o.Method == "" {
		o.Method = "GET"
	}
	m, err := translator().Translate(path, o, model.APIBeam)
	require.NoError(t, err)
	return m
}

// serve 模拟浏览器一次完整的请求响应
func serve(reg *Registry, method, rawURL string, status int, body string) Decision {
	req := traffic.NewRequest()
	req.Method = method
	req.URL = rawURL
	d := reg.Begin(req)
	if d.Stub == nil {
		res := traffic.NewResponse()
		res.StatusCode = status
		res.Body = []byte(body)
		reg.Complete(req.ID, res)
	}
	return d
}

func newRegistry() *Registry {
	return New(Options{Timeout: 200 * time.Millisecond})
}

func TestWaitReturnsCompletedExchange(t *testing.T) {
	reg := newRegistry()
	reg.Register(get(t, "/profile", nil), "profile")

	d := serve(reg, "GET", "http://api.beam.test/profile", 200, `{"id":"u1"}`)
	assert.Equal(t, []string{"profile"}, d.Aliases)

	ex, err := reg.Wait(context.Background(), "@profile")
	require.NoError(t, err)
	assert.Equal(t, "profile", ex.Alias)
	assert.Equal(t, 200, ex.Response.StatusCode)
	assert.JSONEq(t, `{"id":"u1"}`, string(ex.Response.Body))
	assert.False(t, ex.CompletedAt.Before(ex.StartedAt))
}

func TestWaitBlocksUntilResponseArrives(t *testing.T) {
	reg := New(Options{Timeout: 2 * time.Second})
	reg.Register(get(t, "/settings", nil), "settings")

	done := make(chan *traffic.Exchange, 1)
	go func() {
		ex, err := reg.Wait(context.Background(), "settings")
		if err == nil {
			done <- ex
		}
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	serve(reg, "GET", "http://api.beam.test/settings", 200, `{}`)

	select {
	case ex := <-done:
		require.NotNil(t, ex)
		assert.Equal(t, "settings", ex.Alias)
	case <-time.After(time.Second):
		t.Fatal("wait did not return")
	}
}

func TestEachWaitConsumesNextExchange(t *testing.T) {
	reg := newRegistry()
	flags, err := translator().Translate("/", &route.Overrides{Method: "GET"}, model.APIUnleash)
	require.NoError(t, err)
	reg.Register(flags, "getFlags")

	serve(reg, "GET", "https://flags.beam.test/api/frontend?appName=beam", 200, `{"n":1}`)
	serve(reg, "GET", "https://flags.beam.test/api/frontend?appName=beam", 200, `{"n":2}`)

	first, err := reg.Wait(context.Background(), "getFlags")
	require.NoError(t, err)
	second, err := reg.Wait(context.Background(), "getFlags")
	require.NoError(t, err)

	assert.JSONEq(t, `{"n":1}`, string(first.Response.Body))
	assert.JSONEq(t, `{"n":2}`, string(second.Response.Body))
	assert.NotEqual(t, first.ID, second.ID)

	_, err = reg.Wait(context.Background(), "getFlags")
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestWaitUnknownAliasFailsFast(t *testing.T) {
	reg := New(Options{Timeout: time.Minute})
	start := time.Now()
	_, err := reg.Wait(context.Background(), "neverRegistered")
	assert.ErrorIs(t, err, ErrUnknownAlias)
	assert.Less(t, time.Since(start), time.Second)
}

func TestWaitTimeoutNamesMatcher(t *testing.T) {
	reg := newRegistry()
	reg.Register(get(t, "/profile", nil), "profile")

	_, err := reg.Wait(context.Background(), "profile")
	require.ErrorIs(t, err, ErrTimeout)
	assert.Contains(t, err.Error(), "api.beam.test")
	assert.Contains(t, err.Error(), `"profile"`)
}

func TestWaitHonoursCallerContext(t *testing.T) {
	reg := New(Options{Timeout: time.Minute})
	reg.Register(get(t, "/profile", nil), "profile")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := reg.Wait(ctx, "profile")
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, ErrTimeout))
}

func TestAwaitAllReportsFirstNonOKStatus(t *testing.T) {
	reg := newRegistry()
	reg.RegisterAll([]MatchTuple{
		Tuple(get(t, "/profile", nil), "profile"),
		Tuple(get(t, "/settings", nil), "settings"),
		Tuple(get(t, "/ticket-types", nil), "ticketType"),
	})

	serve(reg, "GET", "http://api.beam.test/profile", 200, `{}`)
	serve(reg, "GET", "http://api.beam.test/settings", 500, `{}`)
	serve(reg, "GET", "http://api.beam.test/ticket-types", 404, `{}`)

	out, err := reg.AwaitAll(context.Background(), "profile", "settings", "ticketType")
	require.Len(t, out, 3)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, "settings", statusErr.Alias)
	assert.Equal(t, 500, statusErr.StatusCode)
}

func TestWaitForMatchTuples(t *testing.T) {
	reg := newRegistry()
	tuples := []MatchTuple{
		Tuple(get(t, "/profile", nil), "profile"),
		Tuple(get(t, "/settings", nil), "settings"),
	}
	reg.RegisterAll(tuples)
	assert.Equal(t, "profile", tuples[0].Alias())
	assert.Equal(t, "GET", tuples[0].Matcher().Method)

	serve(reg, "GET", "http://api.beam.test/settings", 200, `{}`)
	serve(reg, "GET", "http://api.beam.test/profile", 200, `{}`)

	out, err := reg.WaitForMatchTuples(context.Background(), tuples)
	require.NoError(t, err)
	assert.Equal(t, "profile", out[0].Alias)
	assert.Equal(t, "settings", out[1].Alias)
}

func TestReRegisterAliasLastWins(t *testing.T) {
	reg := newRegistry()
	reg.Register(get(t, "/profile", nil), "me")
	serve(reg, "GET", "http://api.beam.test/profile", 200, `{"old":true}`)

	reg.Register(get(t, "/settings", nil), "me")
	serve(reg, "GET", "http://api.beam.test/profile", 200, `{"old":true}`)
	serve(reg, "GET", "http://api.beam.test/settings", 200, `{"new":true}`)

	ex, err := reg.Wait(context.Background(), "me")
	require.NoError(t, err)
	assert.Equal(t, "http://api.beam.test/settings", ex.Request.URL)
	assert.Len(t, reg.Exchanges("me"), 1)
}

func TestStubFulfilsWithoutBackend(t *testing.T) {
	reg := newRegistry()
	reg.Register(get(t, "/users/userHasAccess", &route.Overrides{Times: 1, Stub: route.StubBody("OK")}), "userHasAccess")

	d := serve(reg, "GET", "http://api.beam.test/users/userHasAccess", 0, "")
	require.NotNil(t, d.Stub)
	assert.Equal(t, "OK", string(d.Stub.Body))

	ex, err := reg.Wait(context.Background(), "userHasAccess")
	require.NoError(t, err)
	assert.True(t, ex.Stubbed)
	assert.Equal(t, 200, ex.Response.StatusCode)

	d = serve(reg, "GET", "http://api.beam.test/users/userHasAccess", 200, "real")
	assert.Nil(t, d.Stub)
	assert.Empty(t, d.Aliases)
}

func TestStubsServeNewestFirstThenOlder(t *testing.T) {
	reg := newRegistry()
	reg.Register(get(t, "/settings", &route.Overrides{Times: 1, Stub: route.StubBody("first")}), "first")
	reg.Register(get(t, "/settings", &route.Overrides{Times: 1, Stub: route.StubBody("second")}), "second")

	d := serve(reg, "GET", "http://api.beam.test/settings", 0, "")
	require.NotNil(t, d.Stub)
	assert.Equal(t, "second", string(d.Stub.Body))
	assert.Equal(t, []string{"second"}, d.Aliases)

	d = serve(reg, "GET", "http://api.beam.test/settings", 0, "")
	require.NotNil(t, d.Stub)
	assert.Equal(t, "first", string(d.Stub.Body))
	assert.Equal(t, []string{"first"}, d.Aliases)

	ex, err := reg.Wait(context.Background(), "first")
	require.NoError(t, err)
	assert.Equal(t, "first", string(ex.Response.Body))

	d = serve(reg, "GET", "http://api.beam.test/settings", 200, "real")
	assert.Nil(t, d.Stub)
}

func TestMiddlewareRewritesHeaders(t *testing.T) {
	reg := newRegistry()
	reg.RegisterMiddleware(get(t, "/", &route.Overrides{Method: "*"}), func(req *traffic.Request) {
		req.Headers.Del("if-none-match")
	})
	reg.Register(get(t, "/profile", nil), "profile")

	req := traffic.NewRequest()
	req.Method = "GET"
	req.URL = "http://api.beam.test/profile"
	req.Headers.Set("If-None-Match", `W/"abc"`)
	req.Headers.Set("Accept", "application/json")

	d := reg.Begin(req)
	assert.True(t, d.HeadersChanged)
	assert.Empty(t, d.Headers.Get("if-none-match"))
	assert.Equal(t, "application/json", d.Headers.Get("accept"))
	assert.Equal(t, []string{"profile"}, d.Aliases)
}

func TestMiddlewareOnlyRequestIsNotRecorded(t *testing.T) {
	reg := newRegistry()
	reg.RegisterMiddleware(get(t, "/", &route.Overrides{Method: "*"}), func(*traffic.Request) {})

	d := serve(reg, "GET", "http://api.beam.test/anything", 200, "")
	assert.False(t, d.HeadersChanged)
	assert.Empty(t, d.Aliases)
	assert.Zero(t, reg.Unaliased())
}

func TestUnaliasedRuleCountsExchanges(t *testing.T) {
	reg := newRegistry()
	reg.Register(get(t, "/profile", nil), "")

	serve(reg, "GET", "http://api.beam.test/profile", 200, "")
	assert.Equal(t, 1, reg.Unaliased())
}

func TestAbortDropsPendingRequest(t *testing.T) {
	reg := newRegistry()
	reg.Register(get(t, "/profile", nil), "profile")

	req := traffic.NewRequest()
	req.Method = "GET"
	req.URL = "http://api.beam.test/profile"
	reg.Begin(req)
	reg.Abort(req.ID, "net::ERR_FAILED")
	reg.Complete(req.ID, traffic.NewResponse())

	assert.Empty(t, reg.Exchanges("profile"))
}

func TestResetClearsState(t *testing.T) {
	reg := newRegistry()
	reg.Register(get(t, "/profile", nil), "profile")
	serve(reg, "GET", "http://api.beam.test/profile", 200, "")

	reg.Reset()
	_, err := reg.Wait(context.Background(), "profile")
	assert.ErrorIs(t, err, ErrUnknownAlias)
}

func TestConcurrentTrafficIsRecordedOncePerRequest(t *testing.T) {
	reg := New(Options{Timeout: 2 * time.Second})
	reg.Register(get(t, "/studios/:id/tasks", nil), "tasks")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			serve(reg, "GET", "http://api.beam.test/studios/42/tasks", 200, "[]")
		}()
	}
	wg.Wait()

	for i := 0; i < 20; i++ {
		_, err := reg.Wait(context.Background(), "tasks")
		require.NoError(t, err)
	}
	assert.Len(t, reg.Exchanges("tasks"), 20)
}
