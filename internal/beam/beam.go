// Package beam 汇集 Beam 应用专用的拦截规则与等待序列
package beam

import (
	"fmt"

	"beame2e/internal/browser"
	"beame2e/internal/config"
	"beame2e/internal/intercept"
	"beame2e/internal/route"
	"beame2e/internal/rules"
	"beame2e/pkg/model"
	"beame2e/pkg/traffic"
)

// Case 测试用例上下文
type Case interface {
	Config() *config.Config
	Registry() *intercept.Registry
	Translator() *route.Translator
	Tab() browser.Tab
}

// get 构造主 API 或指定目标上的 GET 匹配器
func get(c Case, path string, target model.APITarget) route.Matcher {
	return c.Translator().MustTranslate(path, &route.Overrides{Method: "GET"}, target)
}

// StripConditionalHeaders 为主 API 与导入 API 安装中间件，移除 if-none-match，避免服务端返回 304
func StripConditionalHeaders(c Case) ([]rules.RuleID, error) {
	var ids []rules.RuleID
	for _, target := range []model.APITarget{model.APIBeam, model.APIOnboarding} {
		m, err := c.Translator().Translate("/", &route.Overrides{Method: "*", Middleware: true}, target)
		if err != nil {
			return nil, fmt.Errorf("conditional header middleware for %s: %w", target, err)
		}
		ids = append(ids, c.Registry().RegisterMiddleware(m, func(req *traffic.Request) {
			req.Headers.Del("if-none-match")
		}))
	}
	return ids, nil
}

// SelLike 选择 data-testid 包含给定片段的元素
func SelLike(s string) string {
	return fmt.Sprintf("[data-testid*=%s]", s)
}

// ByData 选择 data-test 等于给定值的元素
func ByData(s string) string {
	return fmt.Sprintf("[data-test=%s]", s)
}
