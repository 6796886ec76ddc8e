package beam

import (
	"context"
	"fmt"
	"net/http"

	"beame2e/internal/intercept"
	"beame2e/pkg/model"
	"beame2e/pkg/traffic"
)

// 已认证页面加载时的请求别名
const (
	AliasGetFlags      = "getFlags"
	AliasUserHasAccess = "userHasAccess"
	AliasAuth0Cookie   = "auth0Cookie"
	AliasProfile       = "profile"
	AliasSettings      = "settings"
	AliasTicketType    = "ticketType"
)

// SettingsAndProfileTuples 已认证页面加载必经的请求
func SettingsAndProfileTuples(c Case) []intercept.MatchTuple {
	return []intercept.MatchTuple{
		intercept.Tuple(get(c, "/", model.APIUnleash), AliasGetFlags),
		intercept.Tuple(get(c, "/users/userHasAccess", model.APIBeam), AliasUserHasAccess),
		intercept.Tuple(get(c, "/auth0/cookie", model.APIBeam), AliasAuth0Cookie),
		intercept.Tuple(get(c, "/profile", model.APIBeam), AliasProfile),
		intercept.Tuple(get(c, "/settings", model.APIBeam), AliasSettings),
		intercept.Tuple(get(c, "/ticketType", model.APIBeam), AliasTicketType),
	}
}

// InterceptSettingsAndProfile 注册页面加载序列的全部别名，需在导航前调用
func InterceptSettingsAndProfile(c Case) {
	c.Registry().RegisterAll(SettingsAndProfileTuples(c))
}

// bootstrapStep 序列中的一步，checkStatus 为 true 时要求 200
type bootstrapStep struct {
	alias       string
	checkStatus bool
}

var bootstrapSequence = []bootstrapStep{
	{AliasGetFlags, false},
	{AliasUserHasAccess, true},
	{AliasAuth0Cookie, true},
	{AliasProfile, true},
	// 应用加载后再次拉取特性开关
	{AliasGetFlags, false},
	{AliasSettings, true},
	{AliasTicketType, false},
}

// WaitForSettingsAndProfile 按顺序等待页面加载序列，返回 ticketType 的交换
func WaitForSettingsAndProfile(ctx context.Context, c Case) (*traffic.Exchange, error) {
	var last *traffic.Exchange
	for _, step := range bootstrapSequence {
		ex, err := c.Registry().Wait(ctx, step.alias)
		if err != nil {
			return nil, fmt.Errorf("bootstrap sequence: %w", err)
		}
		if step.checkStatus && ex.Response.StatusCode != http.StatusOK {
			return nil, &intercept.StatusError{Alias: step.alias, URL: ex.Request.URL, StatusCode: ex.Response.StatusCode}
		}
		last = ex
	}
	return last, nil
}
