package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"beame2e/internal/browser"
	"beame2e/internal/config"
	"beame2e/internal/intercept"
	"beame2e/internal/logger"
	"beame2e/internal/route"
	"beame2e/pkg/model"
)

// State 登录状态
type State string

const (
	StateAnonymous       State = "ANONYMOUS"
	StateRequestingToken State = "REQUESTING_TOKEN"
	StateTokenReceived   State = "TOKEN_RECEIVED"
	StateCached          State = "CACHED"
	StateExpired         State = "EXPIRED"
)

// 登录界面元素
const (
	emailRole        = "textbox"
	emailName        = "email address"
	usernameSelector = `input[name="username"]`
	passwordSelector = `input[type="password"]`
	submitSelector   = `button[type="submit"]:visible`
)

// originPage 定位到应用源时返回的空白文档，避免应用脚本在写入缓存前运行
const originPage = "<!doctype html><html><head></head><body></body></html>"

// TokenError 凭据交换失败
type TokenError struct {
	StatusCode int
	Body       string
}

func (e *TokenError) Error() string {
	return fmt.Sprintf("token exchange failed with status %d: %s", e.StatusCode, e.Body)
}

// Options Bridge 依赖
type Options struct {
	Config     *config.Config
	Registry   *intercept.Registry
	Translator *route.Translator
	Manager    *Manager
	Client     *http.Client
	Logger     logger.Logger
	Now        func() time.Time
}

type apiToken struct {
	token     model.StoredAccessToken
	expiresAt int64
}

// Bridge 获取令牌并写入应用客户端缓存
type Bridge struct {
	cfg     *config.Config
	reg     *intercept.Registry
	tr      *route.Translator
	manager *Manager
	client  *http.Client
	log     logger.Logger
	now     func() time.Time

	mu     sync.Mutex
	state  State
	tokens map[string]apiToken
}

// NewBridge 创建会话桥
func NewBridge(opts Options) *Bridge {
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Manager == nil {
		opts.Manager = NewManager(nil, opts.Logger)
	}
	if opts.Translator == nil {
		opts.Translator = route.NewTranslator(opts.Config)
	}
	return &Bridge{
		cfg:     opts.Config,
		reg:     opts.Registry,
		tr:      opts.Translator,
		manager: opts.Manager,
		client:  opts.Client,
		log:     opts.Logger,
		now:     opts.Now,
		state:   StateAnonymous,
		tokens:  make(map[string]apiToken),
	}
}

// State 当前状态
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Bridge) setState(s State) {
	b.mu.Lock()
	prev := b.state
	b.state = s
	b.mu.Unlock()
	if prev != s {
		b.log.Debug("会话状态变化", "from", string(prev), "to", string(s))
	}
}

// requestToken 向主 API 交换凭据，返回去掉 user 字段后的响应体
func (b *Bridge) requestToken(ctx context.Context, email, password string) (string, error) {
	payload, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return "", err
	}
	url := strings.TrimSuffix(b.cfg.APIURL, "/") + "/auth0/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &TokenError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	if !gjson.ValidBytes(body) || !gjson.GetBytes(body, "access_token").Exists() {
		return "", &TokenError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	stripped, err := sjson.DeleteBytes(body, "user")
	if err != nil {
		return "", fmt.Errorf("strip token user: %w", err)
	}
	return string(stripped), nil
}

// Exchange 交换凭据并构造缓存条目，返回缓存键与条目
func (b *Bridge) Exchange(ctx context.Context, email, password string) (string, model.WrappedCacheEntry, error) {
	b.setState(StateRequestingToken)
	raw, err := b.requestToken(ctx, email, password)
	if err != nil {
		b.setState(StateAnonymous)
		return "", model.WrappedCacheEntry{}, err
	}

	var tok model.OAuthToken
	if err := json.Unmarshal([]byte(raw), &tok); err != nil {
		b.setState(StateAnonymous)
		return "", model.WrappedCacheEntry{}, fmt.Errorf("decode token response: %w", err)
	}
	decoded, err := decodeIDToken(tok.IDToken)
	if err != nil {
		b.setState(StateAnonymous)
		return "", model.WrappedCacheEntry{}, err
	}
	b.setState(StateTokenReceived)

	entry := model.WrappedCacheEntry{
		Body: model.CacheEntry{
			IDToken:      tok.IDToken,
			AccessToken:  tok.AccessToken,
			ExpiresIn:    tok.ExpiresIn,
			TokenType:    tok.TokenType,
			DecodedToken: decoded,
			Audience:     b.cfg.Auth0.Audience,
			Scope:        tok.Scope,
			ClientID:     b.cfg.Auth0.ClientID,
			RefreshToken: gjson.Get(raw, "refresh_token").String(),
		},
		ExpiresAt: SerializeExpiry(b.now(), tok.ExpiresIn),
	}
	key := CacheKey(b.cfg.Auth0.ClientID, b.cfg.Auth0.Audience, tok.Scope)
	b.log.Info("令牌交换成功", "email", email, "expiresAt", entry.ExpiresAt)
	return key, entry, nil
}

// APIToken 获取用于直接调用 API 的访问令牌，未过期时复用
func (b *Bridge) APIToken(ctx context.Context, email, password string) (model.StoredAccessToken, error) {
	b.mu.Lock()
	cached, ok := b.tokens[email]
	b.mu.Unlock()
	if ok && CheckExp(cached.expiresAt, b.now()) {
		return cached.token, nil
	}

	raw, err := b.requestToken(ctx, email, password)
	if err != nil {
		return model.StoredAccessToken{}, err
	}
	access := gjson.Get(raw, "access_token").String()
	if access == "" {
		return model.StoredAccessToken{}, &TokenError{StatusCode: http.StatusOK, Body: raw}
	}
	tok := model.StoredAccessToken{AccessToken: access, Headers: AuthHeaders(access)}
	b.mu.Lock()
	b.tokens[email] = apiToken{token: tok, expiresAt: SerializeExpiry(b.now(), gjson.Get(raw, "expires_in").Int())}
	b.mu.Unlock()
	return tok, nil
}

// openOrigin 以空白文档打开应用源，使 localStorage 可写
func (b *Bridge) openOrigin(ctx context.Context, tab browser.Tab) error {
	m, err := b.tr.TranslateURL(b.cfg.BaseURL, &route.Overrides{
		Method: "GET",
		Times:  1,
		Stub:   &route.Stub{StatusCode: http.StatusOK, Headers: map[string]string{"Content-Type": "text/html"}, Body: []byte(originPage)},
	})
	if err != nil {
		return err
	}
	b.reg.Register(m, "")
	return tab.Visit(ctx, b.cfg.BaseURL)
}

func (b *Bridge) home() string {
	return strings.TrimSuffix(b.cfg.BaseURL, "/") + "/"
}

// LoginWithAPI 通过接口登录并写入客户端缓存
func (b *Bridge) LoginWithAPI(ctx context.Context, tab browser.Tab, email, password string) error {
	b.log.Info("接口登录", "email", email)
	stub, err := b.tr.Translate("/users/userHasAccess", &route.Overrides{
		Method: "GET",
		Times:  1,
		Stub:   route.StubBody("OK"),
	}, model.APIBeam)
	if err != nil {
		return err
	}
	b.reg.Register(stub, "userHasAccess")

	key, entry, err := b.Exchange(ctx, email, password)
	if err != nil {
		return err
	}
	value, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	if err := b.openOrigin(ctx, tab); err != nil {
		return fmt.Errorf("open app origin: %w", err)
	}
	if err := tab.Storage().Set(ctx, key, string(value)); err != nil {
		return err
	}
	b.setState(StateCached)

	return tab.Visit(ctx, b.home())
}

// LoginWithUI 通过登录界面与身份提供方页面登录
func (b *Bridge) LoginWithUI(ctx context.Context, tab browser.FormTab, email, password string) error {
	b.log.Info("界面登录", "email", email)
	if err := tab.Visit(ctx, b.home()); err != nil {
		return err
	}

	getName, err := b.tr.Translate("/auth0/organizations/:name", &route.Overrides{Method: "GET"}, model.APIBeam)
	if err != nil {
		return err
	}
	oauthToken, err := b.tr.TranslateURL(fmt.Sprintf("https://%s/oauth/token", b.cfg.Auth0.Domain), &route.Overrides{Method: "POST"})
	if err != nil {
		return err
	}
	b.reg.Register(getName, "getName")
	b.reg.Register(oauthToken, "oauthToken")

	if err := tab.FillByRole(ctx, emailRole, emailName, email); err != nil {
		return fmt.Errorf("fill email: %w", err)
	}
	if err := tab.PressByRole(ctx, emailRole, emailName, "Enter"); err != nil {
		return fmt.Errorf("submit email: %w", err)
	}
	if _, err := b.reg.Wait(ctx, "getName"); err != nil {
		return err
	}

	username, err := tab.InputValue(ctx, usernameSelector)
	if err != nil {
		return fmt.Errorf("read username: %w", err)
	}
	if username != email {
		return fmt.Errorf("identity provider username is %q, expected %q", username, email)
	}
	b.setState(StateRequestingToken)
	if err := tab.Fill(ctx, passwordSelector, password); err != nil {
		return fmt.Errorf("fill password: %w", err)
	}
	if err := tab.Click(ctx, submitSelector); err != nil {
		return fmt.Errorf("submit password: %w", err)
	}
	if err := tab.WaitForURL(ctx, b.cfg.BaseURL); err != nil {
		return fmt.Errorf("return to app: %w", err)
	}
	if _, err := b.reg.Wait(ctx, "oauthToken"); err != nil {
		return err
	}
	b.setState(StateTokenReceived)

	keys, err := tab.Storage().Keys(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return fmt.Errorf("token was not saved to localStorage after login")
	}
	b.setState(StateCached)
	return nil
}

// cacheEntryKey 优先选择客户端 SDK 的缓存键，否则取第一个键
func cacheEntryKey(keys []string) (string, bool) {
	if len(keys) == 0 {
		return "", false
	}
	if k, ok := lo.Find(keys, func(k string) bool { return strings.HasPrefix(k, cachePrefix) }); ok {
		return k, true
	}
	return keys[0], true
}

// Validate 检查缓存条目存在、结构正确且未过期；无效不视为错误
func (b *Bridge) Validate(ctx context.Context, tab browser.Tab) (bool, error) {
	keys, err := tab.Storage().Keys(ctx)
	if err != nil {
		return false, err
	}
	key, ok := cacheEntryKey(keys)
	if !ok {
		b.setState(StateExpired)
		return false, nil
	}
	value, ok, err := tab.Storage().Get(ctx, key)
	if err != nil {
		return false, err
	}
	if !ok {
		b.setState(StateExpired)
		return false, nil
	}
	if err := validateEntry(value); err != nil {
		b.log.Warn("缓存条目无效", "key", key, "reason", err.Error())
		b.setState(StateExpired)
		return false, nil
	}
	if !CheckExp(gjson.Get(value, "expiresAt").Int(), b.now()) {
		b.log.Info("访问令牌已过期", "key", key)
		b.setState(StateExpired)
		return false, nil
	}
	b.setState(StateCached)
	return true, nil
}

// Login 按选项登录；WithSession 时按凭据缓存并复用 localStorage 快照
func (b *Bridge) Login(ctx context.Context, tab browser.Tab, opts model.LoginOptions) error {
	if opts.Email == "" {
		opts.Email = b.cfg.User.Email
	}
	if opts.Password == "" {
		opts.Password = b.cfg.User.Password
	}
	if !opts.WithSession {
		return b.login(ctx, tab, opts)
	}

	key := KeyFor(opts.Email, opts.Password)
	if snap, ok := b.manager.Get(ctx, key); ok {
		valid, err := b.restore(ctx, tab, snap)
		if err != nil {
			return err
		}
		if valid {
			b.log.Info("复用登录会话", "email", opts.Email)
			return tab.Visit(ctx, b.home())
		}
		b.manager.Delete(ctx, key)
		b.setState(StateAnonymous)
	}

	if err := b.login(ctx, tab, opts); err != nil {
		return err
	}
	snap, err := b.snapshot(ctx, tab, opts.Email)
	if err != nil {
		return err
	}
	return b.manager.Put(ctx, key, snap)
}

func (b *Bridge) login(ctx context.Context, tab browser.Tab, opts model.LoginOptions) error {
	if !opts.UI {
		return b.LoginWithAPI(ctx, tab, opts.Email, opts.Password)
	}
	ft, ok := tab.(browser.FormTab)
	if !ok {
		return fmt.Errorf("ui login: %w", browser.ErrNotSupported)
	}
	return b.LoginWithUI(ctx, ft, opts.Email, opts.Password)
}

func (b *Bridge) restore(ctx context.Context, tab browser.Tab, snap *Snapshot) (bool, error) {
	if err := b.openOrigin(ctx, tab); err != nil {
		return false, fmt.Errorf("open app origin: %w", err)
	}
	if err := browser.Restore(ctx, tab.Storage(), snap.Items); err != nil {
		return false, err
	}
	return b.Validate(ctx, tab)
}

func (b *Bridge) snapshot(ctx context.Context, tab browser.Tab, email string) (*Snapshot, error) {
	items, err := browser.Snapshot(ctx, tab.Storage())
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{Email: email, Items: items}
	if key, ok := cacheEntryKey(lo.Keys(items)); ok {
		snap.ExpiresAt = gjson.Get(items[key], "expiresAt").Int()
	}
	return snap, nil
}

// StoredAccessToken 读取当前窗口缓存中的访问令牌
func (b *Bridge) StoredAccessToken(ctx context.Context, tab browser.Tab) (model.StoredAccessToken, error) {
	keys, err := tab.Storage().Keys(ctx)
	if err != nil {
		return model.StoredAccessToken{}, err
	}
	key, ok := cacheEntryKey(keys)
	if !ok {
		return model.StoredAccessToken{}, fmt.Errorf("no cached token in localStorage")
	}
	value, _, err := tab.Storage().Get(ctx, key)
	if err != nil {
		return model.StoredAccessToken{}, err
	}
	access := gjson.Get(value, "body.access_token").String()
	if access == "" {
		return model.StoredAccessToken{}, fmt.Errorf("cached entry %s has no access token", key)
	}
	return model.StoredAccessToken{AccessToken: access, Headers: AuthHeaders(access)}, nil
}
