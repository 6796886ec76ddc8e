package session

import (
	"fmt"
	"time"
)

// Leeway 令牌剩余有效期需大于该值才视为有效
const Leeway = 10 * time.Second

// cachePrefix 应用客户端 SDK 使用的缓存键前缀
const cachePrefix = "@@auth0spajs@@"

// SerializeExpiry 计算过期时间点（秒级 epoch）
func SerializeExpiry(now time.Time, expiresIn int64) int64 {
	return now.UnixMilli()/1000 + expiresIn
}

// CheckExp 判断过期时间点是否仍在有效期内
func CheckExp(expiresAt int64, now time.Time) bool {
	return expiresAt*1000-now.UnixMilli() > Leeway.Milliseconds()
}

// CacheKey 组合 localStorage 缓存键
func CacheKey(clientID, audience, scope string) string {
	return fmt.Sprintf("%s::%s::%s::%s", cachePrefix, clientID, audience, scope)
}

// AuthHeaders 直接调用 API 时使用的认证头
func AuthHeaders(accessToken string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + accessToken}
}
