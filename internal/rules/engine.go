package rules

import (
	"sync"

	"github.com/google/uuid"

	"beame2e/internal/route"
	"beame2e/pkg/traffic"
)

// RuleID 规则唯一标识
type RuleID string

// AliasFunc 在请求匹配时计算别名，返回空串表示不设置别名
type AliasFunc func(req *traffic.Request) string

// MiddlewareFunc 中间件规则，可修改请求头
type MiddlewareFunc func(req *traffic.Request)

// Rule 一条拦截规则
type Rule struct {
	ID         RuleID
	Matcher    route.Matcher
	Alias      string
	AliasFunc  AliasFunc
	Middleware MiddlewareFunc

	hits int
}

// AliasFor 计算请求对应的别名
func (r *Rule) AliasFor(req *traffic.Request) string {
	if r.AliasFunc != nil {
		return r.AliasFunc(req)
	}
	return r.Alias
}

// exhausted 达到 Times 上限后规则失效
func (r *Rule) exhausted() bool {
	return r.Matcher.Times > 0 && r.hits >= r.Matcher.Times
}

// MatchedRule 一次评估中命中的规则
type MatchedRule struct {
	Rule  *Rule
	Alias string
}

// Engine 规则引擎，按注册顺序保存规则
type Engine struct {
	mu    sync.Mutex
	rules []*Rule
}

// New 创建空的规则引擎
func New() *Engine { return &Engine{} }

// Add 注册规则并返回其 ID
func (e *Engine) Add(r *Rule) RuleID {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r.ID == "" {
		r.ID = RuleID(uuid.NewString())
	}
	e.rules = append(e.rules, r)
	return r.ID
}

// Remove 移除规则
func (e *Engine) Remove(id RuleID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, r := range e.rules {
		if r.ID == id {
			e.rules = append(e.rules[:i], e.rules[i+1:]...)
			return true
		}
	}
	return false
}

// Reset 清空所有规则
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = nil
}

// Hits 返回规则已匹配次数，规则不存在时返回 -1
func (e *Engine) Hits(id RuleID) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range e.rules {
		if r.ID == id {
			return r.hits
		}
	}
	return -1
}

// Len 规则数量
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.rules)
}

// Eval 评估请求：中间件规则按注册顺序在前，其余规则按最新注册优先。
// 同一请求只有最新的桩规则生效，被遮蔽的桩规则不返回也不计入命中次数
func (e *Engine) Eval(req *traffic.Request) []*MatchedRule {
	e.mu.Lock()
	defer e.mu.Unlock()

	var middleware, handlers []*MatchedRule
	for i := len(e.rules) - 1; i >= 0; i-- {
		r := e.rules[i]
		if r.exhausted() || !r.Matcher.Match(req) {
			continue
		}
		if r.Matcher.Middleware {
			middleware = append(middleware, &MatchedRule{Rule: r})
			continue
		}
		handlers = append(handlers, &MatchedRule{Rule: r})
	}
	// 中间件恢复注册顺序
	for i, j := 0, len(middleware)-1; i < j; i, j = i+1, j-1 {
		middleware[i], middleware[j] = middleware[j], middleware[i]
	}

	applied := handlers[:0]
	stubbed := false
	for _, mr := range handlers {
		if mr.Rule.Matcher.Stub != nil {
			if stubbed {
				continue
			}
			stubbed = true
		}
		applied = append(applied, mr)
	}
	out := append(middleware, applied...)
	for _, mr := range out {
		mr.Rule.hits++
	}
	return out
}
