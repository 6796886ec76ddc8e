package route

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/dlclark/regexp2"
	"github.com/samber/lo"

	"beame2e/internal/config"
	"beame2e/pkg/model"
	"beame2e/pkg/traffic"
)

// Stub 静态响应
type Stub struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// StubBody 以 200 状态和给定文本构造静态响应
func StubBody(body string) *Stub {
	return &Stub{StatusCode: 200, Body: []byte(body)}
}

// Overrides 调用方提供的匹配器字段，冲突时总是覆盖计算结果
type Overrides struct {
	Method     string
	Hostname   string
	HTTPS      *bool
	Query      map[string]string
	Headers    map[string]string
	Times      int
	Stub       *Stub
	Middleware bool
}

// Matcher 编译后的请求匹配器
type Matcher struct {
	Hostname   string
	HTTPS      bool
	Pathname   *regexp2.Regexp
	Params     []string
	Method     string
	Query      map[string]string
	Headers    map[string]string
	Times      int
	Stub       *Stub
	Middleware bool
}

// Translator 基于环境配置将路径模板转换为匹配器
type Translator struct {
	cfg *config.Config
}

// NewTranslator 创建转换器
func NewTranslator(cfg *config.Config) *Translator {
	return &Translator{cfg: cfg}
}

// base 解析基础地址：主机名、是否 https、基础路径
type base struct {
	hostname string
	https    bool
	path     string
}

func parseBase(raw string) (base, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return base{}, fmt.Errorf("parse base url %q: %w", raw, err)
	}
	return base{hostname: u.Hostname(), https: u.Scheme == "https", path: strings.TrimSuffix(u.Path, "/")}, nil
}

// Translate 将相对目标 API 的路径模板转换为匹配器
func (t *Translator) Translate(path string, o *Overrides, target model.APITarget) (Matcher, error) {
	b, err := parseBase(t.cfg.BaseFor(target))
	if err != nil {
		return Matcher{}, err
	}
	return build(b, path, o)
}

// MustTranslate 同 Translate，模板错误时 panic，用于固定模板
func (t *Translator) MustTranslate(path string, o *Overrides, target model.APITarget) Matcher {
	m, err := t.Translate(path, o, target)
	if err != nil {
		panic(err)
	}
	return m
}

// TranslateURL 将绝对地址（如身份提供方接口）转换为匹配器
func (t *Translator) TranslateURL(raw string, o *Overrides) (Matcher, error) {
	b, err := parseBase(raw)
	if err != nil {
		return Matcher{}, err
	}
	p := b.path
	b.path = ""
	return build(b, p, o)
}

func build(b base, path string, o *Overrides) (Matcher, error) {
	re, params, err := compileTemplate(b.path + normalizePath(path))
	if err != nil {
		return Matcher{}, err
	}
	m := Matcher{
		Hostname: b.hostname,
		HTTPS:    b.https,
		Pathname: re,
		Params:   params,
	}
	if o != nil {
		m.merge(o)
	}
	return m, nil
}

func (m *Matcher) merge(o *Overrides) {
	if o.Method != "" {
		m.Method = strings.ToUpper(o.Method)
	}
	if o.Hostname != "" {
		m.Hostname = o.Hostname
	}
	if o.HTTPS != nil {
		m.HTTPS = *o.HTTPS
	}
	if len(o.Query) > 0 {
		m.Query = o.Query
	}
	if len(o.Headers) > 0 {
		m.Headers = o.Headers
	}
	if o.Times > 0 {
		m.Times = o.Times
	}
	if o.Stub != nil {
		m.Stub = o.Stub
	}
	if o.Middleware {
		m.Middleware = true
	}
}

// MatchPath 仅测试路径正则
func (m Matcher) MatchPath(p string) bool {
	if m.Pathname == nil {
		return false
	}
	ok, err := m.Pathname.MatchString(p)
	return err == nil && ok
}

// Match 判断请求是否满足匹配器
func (m Matcher) Match(req *traffic.Request) bool {
	u, err := url.Parse(req.URL)
	if err != nil {
		return false
	}
	if m.Hostname != "" && !strings.EqualFold(u.Hostname(), m.Hostname) {
		return false
	}
	if (u.Scheme == "https") != m.HTTPS {
		return false
	}
	if m.Method != "" && m.Method != "*" && !strings.EqualFold(req.Method, m.Method) {
		return false
	}
	if !m.MatchPath(u.EscapedPath()) {
		return false
	}
	for k, v := range m.Query {
		if u.Query().Get(k) != v {
			return false
		}
	}
	for k, v := range m.Headers {
		if req.Headers.Get(k) != v {
			return false
		}
	}
	return true
}

// String 返回稳定的匹配器描述，用于错误信息
func (m Matcher) String() string {
	scheme := "http"
	if m.HTTPS {
		scheme = "https"
	}
	method := m.Method
	if method == "" {
		method = "*"
	}
	pattern := ""
	if m.Pathname != nil {
		pattern = m.Pathname.String()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s://%s %s", method, scheme, m.Hostname, pattern)
	if len(m.Query) > 0 {
		b.WriteString(" query=")
		b.WriteString(sortedPairs(m.Query))
	}
	if len(m.Headers) > 0 {
		b.WriteString(" headers=")
		b.WriteString(sortedPairs(m.Headers))
	}
	if m.Times > 0 {
		fmt.Fprintf(&b, " times=%d", m.Times)
	}
	if m.Stub != nil {
		fmt.Fprintf(&b, " stub=%d", m.Stub.StatusCode)
	}
	return b.String()
}

func sortedPairs(kv map[string]string) string {
	keys := lo.Keys(kv)
	sort.Strings(keys)
	return strings.Join(lo.Map(keys, func(k string, _ int) string { return k + "=" + kv[k] }), "&")
}
