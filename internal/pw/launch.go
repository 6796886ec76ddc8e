package pw

import (
	"errors"
	"fmt"

	"github.com/playwright-community/playwright-go"

	"beame2e/internal/logger"
)

// Browser 一次 Playwright 运行与其 Chromium 实例
type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	log     logger.Logger
}

// Launch 启动 Playwright 驱动与 Chromium
func Launch(headless bool, l logger.Logger) (*Browser, error) {
	if l == nil {
		l = logger.NewNop()
	}
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}
	b, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{Headless: playwright.Bool(headless)})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}
	l.Info("Chromium 已启动", "headless", headless, "version", b.Version())
	return &Browser{pw: pw, browser: b, log: l}, nil
}

// NewPage 在独立的浏览器上下文中打开页面，每个用例的存储互不影响
func (b *Browser) NewPage() (*Page, error) {
	bctx, err := b.browser.NewContext()
	if err != nil {
		return nil, fmt.Errorf("new browser context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, fmt.Errorf("new page: %w", err)
	}
	return NewPage(page, b.log)
}

// Close 关闭浏览器并停止驱动
func (b *Browser) Close() error {
	return errors.Join(b.browser.Close(), b.pw.Stop())
}
