package intercept

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"beame2e/internal/logger"
	"beame2e/internal/route"
	"beame2e/internal/rules"
	"beame2e/pkg/traffic"
)

var (
	// ErrUnknownAlias 等待的别名既未注册也无法由动态规则产生
	ErrUnknownAlias = errors.New("no interception registered for alias")
	// ErrTimeout 在超时前没有观察到匹配的交换
	ErrTimeout = errors.New("timed out waiting for alias")
)

// DefaultTimeout 未配置时的等待超时
const DefaultTimeout = 10 * time.Second

// StatusError 等待到的响应状态码不是 200
type StatusError struct {
	Alias      string
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("alias %q: expected status 200, got %d (%s)", e.Alias, e.StatusCode, e.URL)
}

// MatchTuple 匹配器与别名的不可变组合
type MatchTuple struct {
	matcher route.Matcher
	alias   string
}

// Tuple 创建 MatchTuple
func Tuple(m route.Matcher, alias string) MatchTuple {
	return MatchTuple{matcher: m, alias: alias}
}

// Matcher 返回匹配器
func (t MatchTuple) Matcher() route.Matcher { return t.matcher }

// Alias 返回别名
func (t MatchTuple) Alias() string { return t.alias }

// Decision 请求阶段的处理结论，由浏览器适配器执行
type Decision struct {
	Headers        traffic.Header
	HeadersChanged bool
	Stub           *route.Stub
	Aliases        []string
}

type aliasState struct {
	rule      rules.RuleID
	matcher   string
	exchanges []*traffic.Exchange
	next      int
}

type binding struct {
	alias string
	rule  rules.RuleID
}

type pending struct {
	ex       *traffic.Exchange
	bindings []binding
}

// Options 注册表选项
type Options struct {
	Timeout time.Duration
	Logger  logger.Logger
}

// Registry 单个测试用例内的别名注册表
type Registry struct {
	mu        sync.Mutex
	engine    *rules.Engine
	aliases   map[string]*aliasState
	dynamic   map[string]rules.RuleID
	dynRules  map[rules.RuleID]string
	pending   map[string]*pending
	changed   chan struct{}
	unaliased int
	timeout   time.Duration
	log       logger.Logger
}

// New 创建注册表
func New(opts Options) *Registry {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	return &Registry{
		engine:   rules.New(),
		aliases:  make(map[string]*aliasState),
		dynamic:  make(map[string]rules.RuleID),
		dynRules: make(map[rules.RuleID]string),
		pending:  make(map[string]*pending),
		changed:  make(chan struct{}),
		timeout:  opts.Timeout,
		log:      opts.Logger,
	}
}

// Register 注册拦截规则并绑定别名；同名别名以最后一次注册为准
func (r *Registry) Register(m route.Matcher, alias string) rules.RuleID {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.aliases[alias]; ok {
		r.engine.Remove(old.rule)
		r.log.Debug("别名重新注册，丢弃旧规则", "alias", alias, "discarded", len(old.exchanges)-old.next)
	}
	id := r.engine.Add(&rules.Rule{Matcher: m, Alias: alias})
	if alias != "" {
		r.aliases[alias] = &aliasState{rule: id, matcher: m.String()}
	}
	r.log.Debug("注册拦截规则", "alias", alias, "matcher", m.String())
	return id
}

// RegisterAll 按顺序注册一组 MatchTuple
func (r *Registry) RegisterAll(tuples []MatchTuple) {
	for _, t := range tuples {
		r.Register(t.matcher, t.alias)
	}
}

// RegisterDynamic 注册在请求匹配时计算别名的规则，prefix 用于识别其产生的别名
func (r *Registry) RegisterDynamic(m route.Matcher, prefix string, fn rules.AliasFunc) rules.RuleID {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.dynamic[prefix]; ok {
		r.engine.Remove(old)
		delete(r.dynRules, old)
		for alias, st := range r.aliases {
			if st.rule == old {
				delete(r.aliases, alias)
			}
		}
	}
	id := r.engine.Add(&rules.Rule{Matcher: m, AliasFunc: fn})
	r.dynamic[prefix] = id
	r.dynRules[id] = prefix
	r.log.Debug("注册动态别名规则", "prefix", prefix, "matcher", m.String())
	return id
}

// RegisterMiddleware 注册中间件规则，对所有匹配请求先行执行
func (r *Registry) RegisterMiddleware(m route.Matcher, fn rules.MiddlewareFunc) rules.RuleID {
	m.Middleware = true
	id := r.engine.Add(&rules.Rule{Matcher: m, Middleware: fn})
	r.log.Debug("注册中间件规则", "matcher", m.String())
	return id
}

// Begin 评估即将发出的请求，计算别名并返回处理结论
func (r *Registry) Begin(req *traffic.Request) Decision {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Headers == nil {
		req.Headers = make(traffic.Header)
	}
	d := Decision{}

	matched := r.engine.Eval(req)
	if len(matched) == 0 {
		return d
	}

	original := req.Headers.Clone()
	var bindings []binding
	handled := false
	for _, mr := range matched {
		rule := mr.Rule
		if rule.Matcher.Middleware {
			if rule.Middleware != nil {
				rule.Middleware(req)
			}
			continue
		}
		handled = true
		if d.Stub == nil && rule.Matcher.Stub != nil {
			d.Stub = rule.Matcher.Stub
		}
		alias := rule.AliasFor(req)
		mr.Alias = alias
		if alias == "" {
			continue
		}
		bindings = append(bindings, binding{alias: alias, rule: rule.ID})
	}
	d.Headers = req.Headers
	d.HeadersChanged = !headersEqual(original, req.Headers)
	d.Aliases = lo.Map(bindings, func(b binding, _ int) string { return b.alias })

	if !handled {
		return d
	}

	ex := &traffic.Exchange{ID: req.ID, Request: req, StartedAt: time.Now()}
	r.mu.Lock()
	if len(bindings) == 0 {
		r.unaliased++
	}
	if d.Stub != nil {
		res := traffic.NewResponse()
		res.StatusCode = d.Stub.StatusCode
		if res.StatusCode == 0 {
			res.StatusCode = http.StatusOK
		}
		for k, v := range d.Stub.Headers {
			res.Headers.Set(k, v)
		}
		res.Body = d.Stub.Body
		ex.Stubbed = true
		r.recordLocked(ex, res, bindings)
	} else {
		r.pending[req.ID] = &pending{ex: ex, bindings: bindings}
	}
	r.mu.Unlock()

	r.log.Debug("请求命中拦截规则", "url", req.URL, "method", req.Method, "aliases", d.Aliases, "stubbed", d.Stub != nil)
	return d
}

// Complete 记录此前 Begin 过的请求的响应；未知 ID 忽略
func (r *Registry) Complete(id string, res *traffic.Response) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[id]
	if !ok {
		return
	}
	delete(r.pending, id)
	r.recordLocked(p.ex, res, p.bindings)
}

// Abort 丢弃失败请求，其别名不会收到交换
func (r *Registry) Abort(id, reason string) {
	r.mu.Lock()
	p, ok := r.pending[id]
	delete(r.pending, id)
	r.mu.Unlock()
	if ok {
		r.log.Warn("请求失败，未记录交换", "url", p.ex.Request.URL, "reason", reason)
	}
}

func (r *Registry) recordLocked(ex *traffic.Exchange, res *traffic.Response, bindings []binding) {
	ex.Response = res
	ex.CompletedAt = time.Now()
	for _, b := range bindings {
		st, ok := r.aliases[b.alias]
		if !ok {
			if _, dyn := r.dynRules[b.rule]; !dyn {
				continue
			}
			st = &aliasState{rule: b.rule, matcher: r.dynRules[b.rule]}
			r.aliases[b.alias] = st
		}
		if st.rule != b.rule {
			// 别名已被重新注册，旧规则的交换作废
			continue
		}
		rec := *ex
		rec.Alias = b.alias
		st.exchanges = append(st.exchanges, &rec)
	}
	close(r.changed)
	r.changed = make(chan struct{})
}

// Wait 阻塞直到别名的下一条交换完成
func (r *Registry) Wait(ctx context.Context, alias string) (*traffic.Exchange, error) {
	alias = strings.TrimPrefix(alias, "@")

	r.mu.Lock()
	st, ok := r.aliases[alias]
	if !ok {
		st, ok = r.dynamicStateLocked(alias)
	}
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w %q", ErrUnknownAlias, alias)
	}
	r.mu.Unlock()

	wctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	for {
		r.mu.Lock()
		if st.next < len(st.exchanges) {
			ex := st.exchanges[st.next]
			st.next++
			r.mu.Unlock()
			r.log.Debug("别名等待完成", "alias", alias, "status", ex.Response.StatusCode, "url", ex.Request.URL)
			return ex, nil
		}
		ch := r.changed
		r.mu.Unlock()

		select {
		case <-ch:
		case <-wctx.Done():
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("waiting for alias %q: %w", alias, err)
			}
			r.mu.Lock()
			consumed := st.next
			r.mu.Unlock()
			return nil, fmt.Errorf("%w %q after %s (matcher %s, %d earlier exchange(s) consumed)",
				ErrTimeout, alias, r.timeout, st.matcher, consumed)
		}
	}
}

// dynamicStateLocked 别名由某条动态规则产生时创建其空队列
func (r *Registry) dynamicStateLocked(alias string) (*aliasState, bool) {
	for prefix, id := range r.dynamic {
		if strings.HasPrefix(alias, prefix+"-") {
			st := &aliasState{rule: id, matcher: prefix}
			r.aliases[alias] = st
			return st, true
		}
	}
	return nil, false
}

// AwaitAll 依次等待每个别名，全部完成后断言状态码均为 200
func (r *Registry) AwaitAll(ctx context.Context, aliases ...string) ([]*traffic.Exchange, error) {
	out := make([]*traffic.Exchange, 0, len(aliases))
	for _, alias := range aliases {
		ex, err := r.Wait(ctx, alias)
		if err != nil {
			return out, err
		}
		out = append(out, ex)
	}
	for _, ex := range out {
		if ex.Response.StatusCode != http.StatusOK {
			return out, &StatusError{Alias: ex.Alias, URL: ex.Request.URL, StatusCode: ex.Response.StatusCode}
		}
	}
	return out, nil
}

// WaitForMatchTuples 等待一组 MatchTuple 的别名并断言状态码
func (r *Registry) WaitForMatchTuples(ctx context.Context, tuples []MatchTuple) ([]*traffic.Exchange, error) {
	return r.AwaitAll(ctx, lo.Map(tuples, func(t MatchTuple, _ int) string { return t.alias })...)
}

// Exchanges 返回别名已记录的全部交换
func (r *Registry) Exchanges(alias string) []*traffic.Exchange {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.aliases[alias]
	if !ok {
		return nil
	}
	return append([]*traffic.Exchange(nil), st.exchanges...)
}

// Unaliased 命中规则但未带别名的交换数
func (r *Registry) Unaliased() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unaliased
}

// Reset 清空全部规则与队列，用于新的测试用例
func (r *Registry) Reset() {
	r.engine.Reset()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases = make(map[string]*aliasState)
	r.dynamic = make(map[string]rules.RuleID)
	r.dynRules = make(map[rules.RuleID]string)
	r.pending = make(map[string]*pending)
	r.unaliased = 0
	close(r.changed)
	r.changed = make(chan struct{})
}

func headersEqual(a, b traffic.Header) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}
