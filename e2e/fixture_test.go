//go:build e2e

package e2e

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"beame2e/internal/config"
	"beame2e/internal/harness"
	"beame2e/internal/logger"
	"beame2e/internal/pw"
)

// Fixture 一个用例所需的浏览器与套件
type Fixture struct {
	Browser *pw.Browser
	Page    *pw.Page
	Suite   *harness.Suite
	Case    *harness.Case
}

// headless HEADLESS=false 时显示浏览器便于调试
func headless() bool {
	return os.Getenv("HEADLESS") != "false"
}

// WithCase 启动浏览器、打开页面并创建用例，结束时按相反顺序释放
func WithCase(t *testing.T, cfg *config.Config, fn func(t *testing.T, f *Fixture)) {
	t.Helper()
	l := logger.NewNop()
	if os.Getenv("E2E_LOG") != "" {
		l = logger.New(cfg)
	}

	b, err := pw.Launch(headless(), l)
	require.NoError(t, err, "failed to launch browser")
	t.Cleanup(func() { _ = b.Close() })

	page, err := b.NewPage()
	require.NoError(t, err, "failed to open page")

	suite, err := harness.NewSuite(cfg, l)
	require.NoError(t, err)
	t.Cleanup(func() { _ = suite.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	t.Cleanup(cancel)
	c, err := suite.NewCase(ctx, t.Name(), page)
	require.NoError(t, err)
	t.Cleanup(c.Close)

	fn(t, &Fixture{Browser: b, Page: page, Suite: suite, Case: c})
}
