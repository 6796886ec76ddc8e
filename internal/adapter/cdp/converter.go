package cdp

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/mafredri/cdp/protocol/fetch"

	"beame2e/internal/route"
	"beame2e/pkg/traffic"
)

// ToNeutralRequest 将请求阶段的暂停事件转换为中立请求，ID 沿用 Fetch 请求 ID
func ToNeutralRequest(ev *fetch.RequestPausedReply) *traffic.Request {
	req := traffic.NewRequest()
	req.ID = string(ev.RequestID)
	req.URL = ev.Request.URL
	if ev.Request.URLFragment != nil {
		req.URL += *ev.Request.URLFragment
	}
	req.Method = ev.Request.Method
	req.ResourceType = string(ev.ResourceType)

	var headers map[string]string
	if len(ev.Request.Headers) > 0 {
		if err := json.Unmarshal(ev.Request.Headers, &headers); err == nil {
			for k, v := range headers {
				req.Headers.Set(k, v)
			}
		}
	}
	if ev.Request.PostData != nil {
		req.Body = []byte(*ev.Request.PostData)
	}
	req.ParseQuery()
	req.ParseCookies()
	return req
}

// IsResponseStage 暂停事件是否处于响应阶段
func IsResponseStage(ev *fetch.RequestPausedReply) bool {
	return ev.ResponseStatusCode != nil || ev.ResponseErrorReason != nil
}

// ToNeutralResponse 将响应阶段的暂停事件与响应体转换为中立响应
func ToNeutralResponse(ev *fetch.RequestPausedReply, body []byte) *traffic.Response {
	res := traffic.NewResponse()
	if ev.ResponseStatusCode != nil {
		res.StatusCode = *ev.ResponseStatusCode
	}
	for _, h := range ev.ResponseHeaders {
		res.Headers.Set(h.Name, h.Value)
	}
	res.Body = body
	return res
}

// DecodeBody 解码 Fetch.getResponseBody 的返回体
func DecodeBody(body string, base64Encoded bool) ([]byte, error) {
	if !base64Encoded {
		return []byte(body), nil
	}
	return base64.StdEncoding.DecodeString(body)
}

// ToHeaderEntries 将中立 Header 转换为 CDP Header 条目
func ToHeaderEntries(h traffic.Header) []fetch.HeaderEntry {
	entries := make([]fetch.HeaderEntry, 0, len(h))
	for k, v := range h {
		entries = append(entries, fetch.HeaderEntry{Name: k, Value: v})
	}
	return entries
}

// ToFulfillArgs 将静态响应转换为 Fetch.fulfillRequest 参数
func ToFulfillArgs(id fetch.RequestID, stub *route.Stub) *fetch.FulfillRequestArgs {
	code := stub.StatusCode
	if code == 0 {
		code = http.StatusOK
	}
	h := make(traffic.Header, len(stub.Headers))
	for k, v := range stub.Headers {
		h.Set(k, v)
	}
	args := &fetch.FulfillRequestArgs{RequestID: id, ResponseCode: code}
	if len(h) > 0 {
		args.ResponseHeaders = ToHeaderEntries(h)
	}
	if len(stub.Body) > 0 {
		args.Body = stub.Body
	}
	return args
}
