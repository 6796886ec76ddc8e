package pw

import (
	"net/http"

	"github.com/playwright-community/playwright-go"

	"beame2e/internal/intercept"
	"beame2e/internal/route"
	"beame2e/pkg/traffic"
)

// RequestSource playwright.Request 中转换所需的部分
type RequestSource interface {
	URL() string
	Method() string
	Headers() map[string]string
	PostData() (string, error)
	ResourceType() string
}

// ResponseSource playwright.Response 中转换所需的部分
type ResponseSource interface {
	Status() int
	Headers() map[string]string
	Body() ([]byte, error)
}

// ToNeutralRequest 将 Playwright 请求转换为中立请求，ID 由注册表分配
func ToNeutralRequest(r RequestSource) *traffic.Request {
	req := traffic.NewRequest()
	req.URL = r.URL()
	req.Method = r.Method()
	req.ResourceType = r.ResourceType()
	for k, v := range r.Headers() {
		req.Headers.Set(k, v)
	}
	if body, err := r.PostData(); err == nil && body != "" {
		req.Body = []byte(body)
	}
	req.ParseQuery()
	req.ParseCookies()
	return req
}

// ToNeutralResponse 将 Playwright 响应转换为中立响应，读取响应体失败时保留空体
func ToNeutralResponse(r ResponseSource) *traffic.Response {
	res := traffic.NewResponse()
	res.StatusCode = r.Status()
	for k, v := range r.Headers() {
		res.Headers.Set(k, v)
	}
	if body, err := r.Body(); err == nil {
		res.Body = body
	}
	return res
}

// ToFulfillOptions 将静态响应转换为 Route.Fulfill 参数
func ToFulfillOptions(stub *route.Stub) playwright.RouteFulfillOptions {
	code := stub.StatusCode
	if code == 0 {
		code = http.StatusOK
	}
	opts := playwright.RouteFulfillOptions{Status: playwright.Int(code), Body: stub.Body}
	if len(stub.Headers) > 0 {
		opts.Headers = make(map[string]string, len(stub.Headers))
		for k, v := range stub.Headers {
			opts.Headers[k] = v
		}
	}
	return opts
}

// ToContinueOptions 请求头被中间件改写时带上新的请求头
func ToContinueOptions(d intercept.Decision) []playwright.RouteContinueOptions {
	if !d.HeadersChanged {
		return nil
	}
	return []playwright.RouteContinueOptions{{Headers: map[string]string(d.Headers)}}
}
