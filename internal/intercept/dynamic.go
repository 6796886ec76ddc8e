package intercept

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/samber/lo"
	"github.com/tidwall/gjson"

	"beame2e/internal/route"
	"beame2e/internal/rules"
	"beame2e/pkg/traffic"
)

// ErrIDUnset 实体 ID 尚未确定时无法计算别名
var ErrIDUnset = errors.New("entity id is not set")

// IDHolder 单槽位的实体 ID 容器，可并发读写
type IDHolder struct {
	mu  sync.RWMutex
	id  string
	set bool
}

// Get 返回当前 ID 及是否已设置
func (h *IDHolder) Get() (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.id, h.set
}

// Set 设置 ID，空串视为清除
func (h *IDHolder) Set(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.id = id
	h.set = id != ""
}

// DynamicAlias 组合动态别名
func DynamicAlias(prefix, id string) string {
	return prefix + "-" + id
}

// InstallDynamicAlias 安装按 holder 当前值计算别名的规则；ID 未设置时请求被拦截但不带别名
func InstallDynamicAlias(reg *Registry, m route.Matcher, prefix string, holder *IDHolder) rules.RuleID {
	return reg.RegisterDynamic(m, prefix, func(_ *traffic.Request) string {
		id, ok := holder.Get()
		if !ok {
			return ""
		}
		return DynamicAlias(prefix, id)
	})
}

// EntityQuery 描述响应体中实体列表的位置与 ID 字段
type EntityQuery struct {
	List  string
	Field string
}

// EntityError 响应中未找到期望的实体
type EntityError struct {
	Alias  string
	ID     string
	Reason string
}

func (e *EntityError) Error() string {
	return fmt.Sprintf("alias %q: entity %q %s", e.Alias, e.ID, e.Reason)
}

// AwaitEntity 等待 holder 当前值对应的别名，并断言实体出现在响应列表中
func AwaitEntity(ctx context.Context, reg *Registry, prefix string, holder *IDHolder, q EntityQuery) (*traffic.Exchange, error) {
	id, ok := holder.Get()
	if !ok {
		return nil, fmt.Errorf("%w: cannot wait on %s", ErrIDUnset, prefix)
	}
	alias := DynamicAlias(prefix, id)
	ex, err := reg.Wait(ctx, alias)
	if err != nil {
		return nil, err
	}

	body := gjson.ParseBytes(ex.Response.Body)
	if !body.IsObject() {
		return ex, &EntityError{Alias: alias, ID: id, Reason: "response body is not an object"}
	}
	list := body.Get(q.List)
	if !list.IsArray() {
		return ex, &EntityError{Alias: alias, ID: id, Reason: fmt.Sprintf("response has no %q list", q.List)}
	}
	_, found := lo.Find(list.Array(), func(item gjson.Result) bool {
		return item.Get(q.Field).String() == id
	})
	if !found {
		return ex, &EntityError{Alias: alias, ID: id, Reason: fmt.Sprintf("not found in %q", q.List)}
	}
	return ex, nil
}
