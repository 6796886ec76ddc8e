// Package api 对外暴露的测试套件入口
package api

import (
	"context"

	"beame2e/internal/browser"
	"beame2e/internal/config"
	"beame2e/internal/harness"
	"beame2e/internal/intercept"
	"beame2e/internal/logger"
	"beame2e/internal/route"
	"beame2e/pkg/model"
	"beame2e/pkg/traffic"
)

type (
	Config       = config.Config
	Suite        = harness.Suite
	Case         = harness.Case
	Tab          = browser.Tab
	Matcher      = route.Matcher
	Overrides    = route.Overrides
	Stub         = route.Stub
	MatchTuple   = intercept.MatchTuple
	IDHolder     = intercept.IDHolder
	Exchange     = traffic.Exchange
	LoginOptions = model.LoginOptions
	APITarget    = model.APITarget
)

const (
	APIBeam       = model.APIBeam
	APIOnboarding = model.APIOnboarding
	APIUnleash    = model.APIUnleash
)

// 错误
var (
	ErrUnknownAlias = intercept.ErrUnknownAlias
	ErrTimeout      = intercept.ErrTimeout
	ErrIDUnset      = intercept.ErrIDUnset
)

// Open 读取配置与环境变量并创建测试套件，日志按配置输出
func Open(path string) (*Suite, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return harness.NewSuite(cfg, logger.New(cfg))
}

// NewCase 为已打开的标签页创建用例
func NewCase(ctx context.Context, s *Suite, name string, tab Tab) (*Case, error) {
	return s.NewCase(ctx, name, tab)
}

// Tuple 组合匹配器与别名
func Tuple(m Matcher, alias string) MatchTuple {
	return intercept.Tuple(m, alias)
}
