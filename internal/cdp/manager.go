package cdp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/protocol/fetch"
	"github.com/mafredri/cdp/rpcc"

	"beame2e/internal/logger"
)

// ErrNoTarget 没有可附加的页面目标
var ErrNoTarget = errors.New("no page target to attach")

// Options 管理器选项
type Options struct {
	// ProcessTimeout 单个暂停事件的处理超时
	ProcessTimeout time.Duration
	// Workers 并发处理暂停事件的上限，0 表示每个事件一个 goroutine
	Workers int
	Logger  logger.Logger
}

// Manager 通过 DevTools 协议附加页面目标
type Manager struct {
	devtoolsURL    string
	processTimeout time.Duration
	pool           *workerPool
	log            logger.Logger

	mu   sync.Mutex
	tabs map[string]*Tab
}

// New 创建管理器
func New(devtoolsURL string, opts Options) *Manager {
	if opts.ProcessTimeout <= 0 {
		opts.ProcessTimeout = 3 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	m := &Manager{
		devtoolsURL:    devtoolsURL,
		processTimeout: opts.ProcessTimeout,
		log:            opts.Logger,
		tabs:           make(map[string]*Tab),
	}
	if opts.Workers > 0 {
		m.pool = newWorkerPool(opts.Workers)
	}
	return m
}

// Attach 附加到指定目标，targetID 为空时选择第一个页面，并开启请求与响应两个阶段的拦截
func (m *Manager) Attach(ctx context.Context, targetID string) (*Tab, error) {
	dt := devtool.New(m.devtoolsURL)
	targets, err := dt.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list devtools targets: %w", err)
	}
	var sel *devtool.Target
	for _, t := range targets {
		if t.Type != devtool.Page {
			continue
		}
		if targetID == "" || t.ID == targetID {
			sel = t
			break
		}
	}
	if sel == nil {
		return nil, ErrNoTarget
	}

	tctx, cancel := context.WithCancel(context.Background())
	conn, err := rpcc.DialContext(ctx, sel.WebSocketDebuggerURL)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("dial target %s: %w", sel.ID, err)
	}
	tab := &Tab{
		id:     sel.ID,
		m:      m,
		ctx:    tctx,
		cancel: cancel,
		conn:   conn,
		client: cdp.NewClient(conn),
	}
	if err := tab.enable(ctx); err != nil {
		_ = tab.close()
		return nil, err
	}

	m.mu.Lock()
	m.tabs[tab.id] = tab
	m.mu.Unlock()
	go m.consume(tab)
	m.log.Info("已附加页面目标", "target", tab.id, "url", sel.URL)
	return tab, nil
}

// Detach 分离目标
func (m *Manager) Detach(targetID string) error {
	m.mu.Lock()
	tab, ok := m.tabs[targetID]
	delete(m.tabs, targetID)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("target %s is not attached", targetID)
	}
	return tab.close()
}

// Close 分离全部目标
func (m *Manager) Close() error {
	m.mu.Lock()
	tabs := m.tabs
	m.tabs = make(map[string]*Tab)
	m.mu.Unlock()

	var errs []error
	for _, tab := range tabs {
		if err := tab.close(); err != nil {
			errs = append(errs, err)
		}
	}
	if m.pool != nil {
		m.pool.stop()
	}
	return errors.Join(errs...)
}

// consume 持续接收暂停事件并分发处理
func (m *Manager) consume(tab *Tab) {
	rp, err := tab.client.Fetch.RequestPaused(tab.ctx)
	if err != nil {
		m.log.Err(err, "订阅拦截事件流失败", "target", tab.id)
		return
	}
	defer rp.Close()

	for {
		ev, err := rp.Recv()
		if err != nil {
			if tab.ctx.Err() == nil {
				m.log.Err(err, "拦截事件流中断", "target", tab.id)
			}
			return
		}
		m.dispatch(tab, ev)
	}
}

// dispatch 按并发限制调度单个暂停事件
func (m *Manager) dispatch(tab *Tab, ev *fetch.RequestPausedReply) {
	if m.pool == nil {
		go m.handle(tab, ev)
		return
	}
	if !m.pool.submit(func() { m.handle(tab, ev) }) {
		m.degrade(tab, ev, "并发队列已满")
	}
}
