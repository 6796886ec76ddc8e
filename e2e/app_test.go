//go:build e2e

package e2e

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"beame2e/internal/config"
)

// bootPage 按应用加载顺序依次发出请求
const bootPage = `<!doctype html>
<html><body><div data-test="app">loading</div>
<script>
window.__rqClient__ = {getQueryData: (key) => key[0] === "profile" ? {email: "qa@beam.test"} : undefined};
(async () => {
  const paths = ["/api/frontend?appName=beam", "/users/userHasAccess", "/auth0/cookie",
    "/profile", "/api/frontend?appName=beam", "/settings", "/ticketType"];
  for (const p of paths) {
    await fetch(p, {headers: {"If-None-Match": "W/\"1\""}});
  }
  document.querySelector("[data-test=app]").textContent = "ready";
})();
</script></body></html>`

// fakeApp 同源提供页面、主 API 与特性开关接口
type fakeApp struct {
	*httptest.Server
	conditional atomic.Int32
	accessCalls atomic.Int32
	settings    atomic.Int32
}

func newFakeApp(t *testing.T) *fakeApp {
	t.Helper()
	app := &fakeApp{}
	app.settings.Store(http.StatusOK)
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(bootPage))
	})
	api := func(status func() int) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("If-None-Match") != "" {
				app.conditional.Add(1)
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status())
			_, _ = w.Write([]byte(`{}`))
		}
	}
	ok := func() int { return http.StatusOK }
	mux.HandleFunc("/api/frontend", api(ok))
	mux.HandleFunc("/auth0/cookie", api(ok))
	mux.HandleFunc("/profile", api(ok))
	mux.HandleFunc("/ticketType", api(ok))
	mux.HandleFunc("/settings", api(func() int { return int(app.settings.Load()) }))
	mux.HandleFunc("/users/userHasAccess", func(w http.ResponseWriter, r *http.Request) {
		app.accessCalls.Add(1)
		_, _ = w.Write([]byte("OK"))
	})
	mux.HandleFunc("/auth0/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "access-e2e",
			"id_token":     "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.eyJlbWFpbCI6InFhQGJlYW0udGVzdCJ9.c2ln",
			"scope":        "openid profile email",
			"expires_in":   3600,
			"user":         map[string]any{"email": "qa@beam.test"},
		})
	})
	app.Server = httptest.NewServer(mux)
	t.Cleanup(app.Close)
	return app
}

func (a *fakeApp) config() *config.Config {
	cfg := config.NewConfig()
	cfg.BaseURL = a.URL
	cfg.APIURL = a.URL
	cfg.OnboardingAPIURL = a.URL + "/onboarding"
	cfg.UnleashURL = a.URL + "/api/frontend"
	cfg.Auth0.ClientID = "cid"
	cfg.Auth0.Audience = "https://api.beam.test"
	cfg.User.Email = "qa@beam.test"
	cfg.User.Password = "secret"
	cfg.Wait.Timeout = 10 * time.Second
	return cfg
}
