//go:build e2e

package e2e

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beame2e/internal/beam"
	"beame2e/internal/intercept"
	"beame2e/pkg/model"
)

func TestBootstrapVisitedTwice(t *testing.T) {
	app := newFakeApp(t)
	WithCase(t, app.config(), func(t *testing.T, f *Fixture) {
		require.NoError(t, f.Case.Visit("/"))
		require.NoError(t, f.Case.Visit("/"))
		assert.Zero(t, app.conditional.Load(), "if-none-match must be stripped")
	})
}

func TestBootstrapReportsFailedSettings(t *testing.T) {
	app := newFakeApp(t)
	app.settings.Store(http.StatusInternalServerError)
	WithCase(t, app.config(), func(t *testing.T, f *Fixture) {
		err := f.Case.Visit("/")
		var se *intercept.StatusError
		require.True(t, errors.As(err, &se), "got %v", err)
		assert.Equal(t, beam.AliasSettings, se.Alias)
	})
}

func TestLoginWithAPIStubsAccessCheck(t *testing.T) {
	app := newFakeApp(t)
	WithCase(t, app.config(), func(t *testing.T, f *Fixture) {
		require.NoError(t, f.Case.Login(model.LoginOptions{}))
		// 首次进入首页由桩响应，重新访问时才到达后端
		assert.EqualValues(t, 1, app.accessCalls.Load())

		tok, err := f.Case.Bridge().StoredAccessToken(f.Case.Context(), f.Page)
		require.NoError(t, err)
		assert.Equal(t, "access-e2e", tok.AccessToken)

		require.NoError(t, f.Page.WaitForURL(f.Case.Context(), app.URL))
		profile, err := beam.GetQueryData(f.Case.Context(), f.Page, []string{"profile"}, nil)
		require.NoError(t, err)
		assert.Equal(t, "qa@beam.test", profile.Get("email").String())
	})
}
