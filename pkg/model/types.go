package model

import "encoding/json"

// APITarget 路径模板相对的后端来源
type APITarget string

const (
	APIBeam       APITarget = "beam"
	APIOnboarding APITarget = "onboarding"
	APIUnleash    APITarget = "unleash"
)

// LoginOptions 登录命令选项，空字段使用配置中的默认凭据
type LoginOptions struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	WithSession bool   `json:"withSession"`
	UI          bool   `json:"ui"`
}

// OAuthToken 凭据交换接口的响应体
type OAuthToken struct {
	AccessToken string          `json:"access_token"`
	IDToken     string          `json:"id_token"`
	Scope       string          `json:"scope"`
	ExpiresIn   int64           `json:"expires_in"`
	TokenType   string          `json:"token_type,omitempty"`
	User        json.RawMessage `json:"user,omitempty"`
}

// DecodedToken ID token 解码结果
type DecodedToken struct {
	User   map[string]any `json:"user"`
	Claims map[string]any `json:"claims"`
}

// CacheEntry 应用客户端缓存中的令牌条目
type CacheEntry struct {
	IDToken         string       `json:"id_token"`
	AccessToken     string       `json:"access_token"`
	ExpiresIn       int64        `json:"expires_in"`
	TokenType       string       `json:"token_type,omitempty"`
	DecodedToken    DecodedToken `json:"decodedToken"`
	Audience        string       `json:"audience"`
	Scope           string       `json:"scope"`
	ClientID        string       `json:"client_id"`
	RefreshToken    string       `json:"refresh_token,omitempty"`
	OAuthTokenScope string       `json:"oauthTokenScope,omitempty"`
}

// WrappedCacheEntry localStorage 中实际存储的值
type WrappedCacheEntry struct {
	Body      CacheEntry `json:"body"`
	ExpiresAt int64      `json:"expiresAt"`
}

// StoredAccessToken 当前窗口中的访问令牌
type StoredAccessToken struct {
	AccessToken string            `json:"access_token"`
	Headers     map[string]string `json:"headers"`
}
