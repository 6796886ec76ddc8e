package harness

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beame2e/internal/browser/browsertest"
	"beame2e/internal/config"
	"beame2e/internal/intercept"
	"beame2e/pkg/model"
	"beame2e/pkg/traffic"
)

// bindTab 可绑定 feed 的假标签页
type bindTab struct {
	*browsertest.Tab
	mu   sync.Mutex
	feed intercept.Feed
}

func (t *bindTab) Bind(feed intercept.Feed) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.feed = feed
}

func (t *bindTab) current() intercept.Feed {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.feed
}

// emit 模拟浏览器发出一次 GET 并收到响应
func (t *bindTab) emit(url string, status int) {
	feed := t.current()
	if feed == nil {
		return
	}
	req := traffic.NewRequest()
	req.URL = url
	req.Method = http.MethodGet
	req.ParseQuery()
	feed.Begin(req)
	if feed.Pending(req.ID) {
		res := traffic.NewResponse()
		res.StatusCode = status
		feed.Complete(req.ID, res)
	}
}

func testConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.BaseURL = "http://app.beam.test"
	cfg.APIURL = "http://api.beam.test"
	cfg.OnboardingAPIURL = "https://onboarding.beam.test"
	cfg.UnleashURL = "http://flags.beam.test/api/frontend"
	cfg.Wait.Timeout = 300 * time.Millisecond
	return cfg
}

// withBootstrap 访问首页时按应用加载顺序发出请求
func withBootstrap(tab *bindTab, cfg *config.Config, settingsStatus int) {
	tab.OnVisit = func(url string) error {
		switch url {
		case cfg.BaseURL:
			tab.emit(url, http.StatusOK)
		case cfg.BaseURL + "/":
			tab.emit(cfg.UnleashURL+"?appName=beam", http.StatusOK)
			tab.emit(cfg.APIURL+"/users/userHasAccess", http.StatusOK)
			tab.emit(cfg.APIURL+"/auth0/cookie", http.StatusOK)
			tab.emit(cfg.APIURL+"/profile", http.StatusOK)
			tab.emit(cfg.UnleashURL+"?appName=beam", http.StatusNotModified)
			tab.emit(cfg.APIURL+"/settings", settingsStatus)
			tab.emit(cfg.APIURL+"/ticketType", http.StatusOK)
		}
		return nil
	}
}

func newCase(t *testing.T, cfg *config.Config) (*Case, *bindTab) {
	t.Helper()
	suite, err := NewSuite(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = suite.Close() })

	tab := &bindTab{Tab: browsertest.NewTab()}
	c, err := suite.NewCase(context.Background(), t.Name(), tab)
	require.NoError(t, err)
	return c, tab
}

func TestNewCaseBindsRegistryAndStripsConditionalHeaders(t *testing.T) {
	cfg := testConfig()
	c, tab := newCase(t, cfg)

	assert.Same(t, c.Registry(), tab.current())
	assert.NotEmpty(t, c.ID())

	req := traffic.NewRequest()
	req.URL = cfg.APIURL + "/profile"
	req.Method = http.MethodGet
	req.Headers.Set("If-None-Match", `W/"1"`)
	d := c.Registry().Begin(req)
	assert.True(t, d.HeadersChanged)
	assert.Empty(t, d.Headers.Get("if-none-match"))

	c.Close()
	assert.Nil(t, tab.current())
}

func TestVisitTwiceReRegistersBootstrap(t *testing.T) {
	cfg := testConfig()
	c, tab := newCase(t, cfg)
	withBootstrap(tab, cfg, http.StatusOK)

	require.NoError(t, c.Visit("/"))
	require.NoError(t, c.Visit("/"))
	assert.Len(t, c.Registry().Exchanges("settings"), 1)
}

func TestVisitReportsBootstrapStatus(t *testing.T) {
	cfg := testConfig()
	c, tab := newCase(t, cfg)
	withBootstrap(tab, cfg, http.StatusInternalServerError)

	err := c.Visit("/")
	var se *intercept.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "settings", se.Alias)
}

func TestVisitWithoutTrafficTimesOut(t *testing.T) {
	c, _ := newCase(t, testConfig())
	assert.ErrorIs(t, c.Visit("/"), intercept.ErrTimeout)
}

func TestLoginRunsBootstrap(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "access-1",
			"id_token":     "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.eyJlbWFpbCI6InFhQGJlYW0udGVzdCJ9.c2ln",
			"scope":        "openid",
			"expires_in":   3600,
		})
	}))
	defer ts.Close()

	cfg := testConfig()
	cfg.APIURL = ts.URL
	cfg.Auth0.ClientID = "cid"
	cfg.Auth0.Audience = "https://api.beam.test"
	cfg.User.Email = "qa@beam.test"
	cfg.User.Password = "secret"
	c, tab := newCase(t, cfg)
	withBootstrap(tab, cfg, http.StatusOK)

	require.NoError(t, c.Login(model.LoginOptions{}))
	assert.Equal(t, []string{cfg.BaseURL, cfg.BaseURL + "/", cfg.BaseURL + "/"}, tab.Visits)

	keys, err := tab.Store.Keys(context.Background())
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "@@auth0spajs@@::cid::https://api.beam.test::openid", keys[0])
}

func TestSuitePersistOpensStore(t *testing.T) {
	cfg := testConfig()
	cfg.Session.Persist = true
	cfg.Sqlite.Dsn = filepath.Join(t.TempDir(), "sessions.sqlite3")

	suite, err := NewSuite(cfg, nil)
	require.NoError(t, err)
	assert.NotNil(t, suite.store)
	assert.NoError(t, suite.Close())
}
