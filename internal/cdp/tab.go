package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/protocol/fetch"
	"github.com/mafredri/cdp/protocol/page"
	"github.com/mafredri/cdp/protocol/runtime"
	"github.com/mafredri/cdp/rpcc"

	"beame2e/internal/browser"
	"beame2e/internal/intercept"
)

// Tab 已附加的页面目标
type Tab struct {
	id     string
	m      *Manager
	ctx    context.Context
	cancel context.CancelFunc
	conn   *rpcc.Conn
	client *cdp.Client

	mu   sync.RWMutex
	feed intercept.Feed
}

var _ browser.Tab = (*Tab)(nil)

// ID 目标 ID
func (t *Tab) ID() string { return t.id }

// Bind 将暂停事件交给 feed 处理，nil 表示全部放行
func (t *Tab) Bind(feed intercept.Feed) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.feed = feed
}

func (t *Tab) currentFeed() intercept.Feed {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.feed
}

func (t *Tab) enable(ctx context.Context) error {
	if err := t.client.Page.Enable(ctx); err != nil {
		return fmt.Errorf("enable page domain: %w", err)
	}
	if err := t.client.Runtime.Enable(ctx); err != nil {
		return fmt.Errorf("enable runtime domain: %w", err)
	}
	p := "*"
	patterns := []fetch.RequestPattern{
		{URLPattern: &p, RequestStage: fetch.RequestStageRequest},
		{URLPattern: &p, RequestStage: fetch.RequestStageResponse},
	}
	if err := t.client.Fetch.Enable(ctx, &fetch.EnableArgs{Patterns: patterns}); err != nil {
		return fmt.Errorf("enable fetch domain: %w", err)
	}
	return nil
}

// Visit 导航并等待 load 事件
func (t *Tab) Visit(ctx context.Context, url string) error {
	loaded, err := t.client.Page.LoadEventFired(ctx)
	if err != nil {
		return fmt.Errorf("subscribe load event: %w", err)
	}
	defer loaded.Close()

	reply, err := t.client.Page.Navigate(ctx, page.NewNavigateArgs(url))
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if reply.ErrorText != nil {
		return fmt.Errorf("navigate %s: %s", url, *reply.ErrorText)
	}
	if _, err := loaded.Recv(); err != nil {
		return fmt.Errorf("wait load %s: %w", url, err)
	}
	t.m.log.Debug("页面加载完成", "target", t.id, "url", url)
	return nil
}

// Evaluate 执行表达式并按值返回结果，undefined 返回 null
func (t *Tab) Evaluate(ctx context.Context, expr string) (json.RawMessage, error) {
	args := runtime.NewEvaluateArgs(expr).SetReturnByValue(true).SetAwaitPromise(true)
	reply, err := t.client.Runtime.Evaluate(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	if reply.ExceptionDetails != nil {
		return nil, fmt.Errorf("evaluate %q: %s", expr, reply.ExceptionDetails.Text)
	}
	if len(reply.Result.Value) == 0 {
		return json.RawMessage("null"), nil
	}
	return reply.Result.Value, nil
}

// Storage 当前页面源的 localStorage
func (t *Tab) Storage() browser.Storage {
	return browser.NewLocalStorage(t)
}

func (t *Tab) close() error {
	t.Bind(nil)
	t.cancel()
	return t.conn.Close()
}
