// Package harness 组装测试用例上下文：每个用例一个注册表，共享翻译器与会话缓存
package harness

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"beame2e/internal/beam"
	"beame2e/internal/browser"
	"beame2e/internal/config"
	"beame2e/internal/ctxkeys"
	"beame2e/internal/intercept"
	"beame2e/internal/logger"
	"beame2e/internal/route"
	"beame2e/internal/session"
	"beame2e/internal/storage"
	"beame2e/pkg/model"
)

// Binder 可将流量交给注册表的标签页
type Binder interface {
	Bind(feed intercept.Feed)
}

// Suite 一次测试运行共享的资源
type Suite struct {
	cfg     *config.Config
	log     logger.Logger
	tr      *route.Translator
	store   *storage.Store
	manager *session.Manager
}

// NewSuite 创建测试运行，开启 session.persist 时打开会话库
func NewSuite(cfg *config.Config, l logger.Logger) (*Suite, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if l == nil {
		l = logger.NewNop()
	}
	s := &Suite{cfg: cfg, log: l, tr: route.NewTranslator(cfg)}
	if cfg.Session.Persist {
		store, err := storage.Open(cfg, l)
		if err != nil {
			return nil, fmt.Errorf("open session store: %w", err)
		}
		s.store = store
	}
	s.manager = session.NewManager(s.store, l)
	return s, nil
}

func (s *Suite) Config() *config.Config        { return s.cfg }
func (s *Suite) Translator() *route.Translator { return s.tr }
func (s *Suite) Sessions() *session.Manager    { return s.manager }
func (s *Suite) Logger() logger.Logger         { return s.log }

// Close 关闭会话库
func (s *Suite) Close() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}

// Case 单个测试用例的上下文
type Case struct {
	id     string
	ctx    context.Context
	suite  *Suite
	tab    browser.Tab
	reg    *intercept.Registry
	bridge *session.Bridge
	log    logger.Logger
}

var _ beam.Case = (*Case)(nil)

// NewCase 为标签页创建用例：新建注册表并绑定，安装去除条件请求头的中间件
func (s *Suite) NewCase(ctx context.Context, name string, tab browser.Tab) (*Case, error) {
	id := uuid.NewString()
	l := s.log.With("case", name, "caseId", id)
	reg := intercept.New(intercept.Options{Timeout: s.cfg.Wait.Timeout, Logger: l})
	c := &Case{
		id:    id,
		ctx:   ctxkeys.WithTraceID(ctx, id),
		suite: s,
		tab:   tab,
		reg:   reg,
		log:   l,
	}
	c.bridge = session.NewBridge(session.Options{
		Config:     s.cfg,
		Registry:   reg,
		Translator: s.tr,
		Manager:    s.manager,
		Logger:     l,
	})
	if _, err := beam.StripConditionalHeaders(c); err != nil {
		return nil, err
	}
	if b, ok := tab.(Binder); ok {
		b.Bind(reg)
	}
	l.Debug("用例已创建")
	return c, nil
}

func (c *Case) ID() string                    { return c.id }
func (c *Case) Context() context.Context      { return c.ctx }
func (c *Case) Config() *config.Config        { return c.suite.cfg }
func (c *Case) Registry() *intercept.Registry { return c.reg }
func (c *Case) Translator() *route.Translator { return c.suite.tr }
func (c *Case) Tab() browser.Tab              { return c.tab }
func (c *Case) Bridge() *session.Bridge       { return c.bridge }
func (c *Case) Logger() logger.Logger         { return c.log }

// Login 登录后重新打开首页并等待引导序列完成
func (c *Case) Login(opts model.LoginOptions) error {
	if err := c.bridge.Login(c.ctx, c.tab, opts); err != nil {
		return err
	}
	if err := c.Visit("/"); err != nil {
		return fmt.Errorf("bootstrap after login: %w", err)
	}
	return nil
}

// Visit 注册引导序列后导航，并等待序列完成
func (c *Case) Visit(path string) error {
	beam.InterceptSettingsAndProfile(c)
	if err := c.tab.Visit(c.ctx, c.suite.cfg.BaseURL+path); err != nil {
		return err
	}
	_, err := beam.WaitForSettingsAndProfile(c.ctx, c)
	return err
}

// Close 解绑标签页并清空注册表
func (c *Case) Close() {
	if b, ok := c.tab.(Binder); ok {
		b.Bind(nil)
	}
	c.log.Debug("用例已结束", "unaliased", c.reg.Unaliased())
	c.reg.Reset()
}
