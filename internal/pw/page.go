// Package pw 基于 playwright-go 的浏览器适配器
package pw

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	adapter "beame2e/internal/adapter/pw"
	"beame2e/internal/browser"
	"beame2e/internal/intercept"
	"beame2e/internal/logger"
)

// Page 包装 playwright.Page，把路由事件交给 feed
type Page struct {
	page playwright.Page
	log  logger.Logger

	mu   sync.Mutex
	feed intercept.Feed
	ids  map[playwright.Request]string
}

var _ browser.FormTab = (*Page)(nil)

// NewPage 在页面上注册全量路由与响应监听
func NewPage(page playwright.Page, l logger.Logger) (*Page, error) {
	if l == nil {
		l = logger.NewNop()
	}
	p := &Page{page: page, log: l, ids: make(map[playwright.Request]string)}
	if err := page.Route("**/*", p.route); err != nil {
		return nil, fmt.Errorf("route all requests: %w", err)
	}
	page.OnResponse(p.response)
	page.OnRequestFailed(p.failed)
	return p, nil
}

// Raw 底层页面
func (p *Page) Raw() playwright.Page { return p.page }

// Bind 替换 feed，nil 表示全部放行
func (p *Page) Bind(feed intercept.Feed) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.feed = feed
	p.ids = make(map[playwright.Request]string)
}

func (p *Page) currentFeed() intercept.Feed {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.feed
}

func (p *Page) route(r playwright.Route) {
	feed := p.currentFeed()
	if feed == nil {
		p.cont(r, nil)
		return
	}
	src := r.Request()
	req := adapter.ToNeutralRequest(src)
	d := feed.Begin(req)
	if feed.Pending(req.ID) {
		p.mu.Lock()
		p.ids[src] = req.ID
		p.mu.Unlock()
	}

	if d.Stub != nil {
		if err := r.Fulfill(adapter.ToFulfillOptions(d.Stub)); err != nil {
			p.log.Err(err, "返回静态响应失败", "url", req.URL)
		}
		return
	}
	p.cont(r, adapter.ToContinueOptions(d))
}

func (p *Page) cont(r playwright.Route, opts []playwright.RouteContinueOptions) {
	if err := r.Continue(opts...); err != nil {
		p.log.Debug("放行请求失败", "url", r.Request().URL(), "error", err.Error())
	}
}

// take 取出并移除请求对应的交换 ID
func (p *Page) take(req playwright.Request) (intercept.Feed, string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.ids[req]
	if ok {
		delete(p.ids, req)
	}
	return p.feed, id, ok && p.feed != nil
}

func (p *Page) response(res playwright.Response) {
	feed, id, ok := p.take(res.Request())
	if !ok {
		return
	}
	feed.Complete(id, adapter.ToNeutralResponse(res))
}

func (p *Page) failed(req playwright.Request) {
	feed, id, ok := p.take(req)
	if !ok {
		return
	}
	reason := "request failed"
	if err := req.Failure(); err != nil {
		reason = err.Error()
	}
	feed.Abort(id, reason)
}

// timeout 将 ctx 截止时间换算为 playwright 的毫秒超时
func timeout(ctx context.Context) (*float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		return nil, nil
	}
	ms := float64(time.Until(deadline).Milliseconds())
	if ms < 1 {
		return nil, context.DeadlineExceeded
	}
	return playwright.Float(ms), nil
}

// Visit 导航并等待 load 事件
func (p *Page) Visit(ctx context.Context, url string) error {
	t, err := timeout(ctx)
	if err != nil {
		return err
	}
	if _, err := p.page.Goto(url, playwright.PageGotoOptions{Timeout: t, WaitUntil: playwright.WaitUntilStateLoad}); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// Evaluate 执行表达式，结果编码为 JSON
func (p *Page) Evaluate(ctx context.Context, expr string) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, err := p.page.Evaluate(expr)
	if err != nil {
		return nil, fmt.Errorf("evaluate %q: %w", expr, err)
	}
	if v == nil {
		return json.RawMessage("null"), nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode evaluate result: %w", err)
	}
	return raw, nil
}

// Storage 当前页面源的 localStorage
func (p *Page) Storage() browser.Storage {
	return browser.NewLocalStorage(p)
}

func nameMatcher(name string) *regexp.Regexp {
	return regexp.MustCompile("(?i)" + regexp.QuoteMeta(name))
}

func (p *Page) byRole(role, name string) playwright.Locator {
	return p.page.GetByRole(playwright.AriaRole(role), playwright.PageGetByRoleOptions{Name: nameMatcher(name)})
}

// FillByRole 按角色与可访问名称填写
func (p *Page) FillByRole(ctx context.Context, role, name, value string) error {
	t, err := timeout(ctx)
	if err != nil {
		return err
	}
	if err := p.byRole(role, name).Fill(value, playwright.LocatorFillOptions{Timeout: t}); err != nil {
		return fmt.Errorf("fill %s %q: %w", role, name, err)
	}
	return nil
}

// PressByRole 按角色与可访问名称按键
func (p *Page) PressByRole(ctx context.Context, role, name, key string) error {
	t, err := timeout(ctx)
	if err != nil {
		return err
	}
	if err := p.byRole(role, name).Press(key, playwright.LocatorPressOptions{Timeout: t}); err != nil {
		return fmt.Errorf("press %s on %s %q: %w", key, role, name, err)
	}
	return nil
}

func (p *Page) Fill(ctx context.Context, selector, value string) error {
	t, err := timeout(ctx)
	if err != nil {
		return err
	}
	if err := p.page.Locator(selector).Fill(value, playwright.LocatorFillOptions{Timeout: t}); err != nil {
		return fmt.Errorf("fill %s: %w", selector, err)
	}
	return nil
}

func (p *Page) Click(ctx context.Context, selector string) error {
	t, err := timeout(ctx)
	if err != nil {
		return err
	}
	if err := p.page.Locator(selector).Click(playwright.LocatorClickOptions{Timeout: t}); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

func (p *Page) InputValue(ctx context.Context, selector string) (string, error) {
	t, err := timeout(ctx)
	if err != nil {
		return "", err
	}
	v, err := p.page.Locator(selector).InputValue(playwright.LocatorInputValueOptions{Timeout: t})
	if err != nil {
		return "", fmt.Errorf("read %s: %w", selector, err)
	}
	return v, nil
}

// WaitForURL 等待地址以 url 开头
func (p *Page) WaitForURL(ctx context.Context, url string) error {
	t, err := timeout(ctx)
	if err != nil {
		return err
	}
	re := regexp.MustCompile("^" + regexp.QuoteMeta(url))
	if err := p.page.WaitForURL(re, playwright.PageWaitForURLOptions{Timeout: t}); err != nil {
		return fmt.Errorf("wait for url %s: %w", url, err)
	}
	return nil
}

// Close 关闭页面
func (p *Page) Close() error {
	p.Bind(nil)
	return p.page.Close()
}
