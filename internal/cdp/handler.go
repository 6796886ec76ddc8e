package cdp

import (
	"context"
	"time"

	"github.com/mafredri/cdp/protocol/fetch"

	adapter "beame2e/internal/adapter/cdp"
	"beame2e/internal/intercept"
)

// handle 处理一次暂停事件：请求阶段交给注册表决策，响应阶段回填交换
func (m *Manager) handle(tab *Tab, ev *fetch.RequestPausedReply) {
	ctx, cancel := context.WithTimeout(tab.ctx, m.processTimeout)
	defer cancel()

	feed := tab.currentFeed()
	if feed == nil {
		m.continuePaused(ctx, tab, ev)
		return
	}
	if adapter.IsResponseStage(ev) {
		m.handleResponse(ctx, tab, feed, ev)
		return
	}
	m.handleRequest(ctx, tab, feed, ev)
}

func (m *Manager) handleRequest(ctx context.Context, tab *Tab, feed intercept.Feed, ev *fetch.RequestPausedReply) {
	start := time.Now()
	req := adapter.ToNeutralRequest(ev)
	d := feed.Begin(req)

	switch {
	case d.Stub != nil:
		if err := tab.client.Fetch.FulfillRequest(ctx, adapter.ToFulfillArgs(ev.RequestID, d.Stub)); err != nil {
			m.log.Err(err, "返回静态响应失败", "url", req.URL)
		}
	case d.HeadersChanged:
		args := &fetch.ContinueRequestArgs{RequestID: ev.RequestID, Headers: adapter.ToHeaderEntries(d.Headers)}
		if err := tab.client.Fetch.ContinueRequest(ctx, args); err != nil {
			m.log.Err(err, "改写请求头后放行失败", "url", req.URL)
		}
	default:
		if err := tab.client.Fetch.ContinueRequest(ctx, &fetch.ContinueRequestArgs{RequestID: ev.RequestID}); err != nil {
			m.log.Err(err, "放行请求失败", "url", req.URL)
		}
	}
	m.log.Debug("请求阶段处理完成", "url", req.URL, "aliases", d.Aliases, "duration", time.Since(start))
}

func (m *Manager) handleResponse(ctx context.Context, tab *Tab, feed intercept.Feed, ev *fetch.RequestPausedReply) {
	id := string(ev.RequestID)
	if ev.ResponseErrorReason != nil {
		feed.Abort(id, string(*ev.ResponseErrorReason))
		m.continuePaused(ctx, tab, ev)
		return
	}
	if !feed.Pending(id) {
		m.continuePaused(ctx, tab, ev)
		return
	}

	var body []byte
	reply, err := tab.client.Fetch.GetResponseBody(ctx, &fetch.GetResponseBodyArgs{RequestID: ev.RequestID})
	if err != nil {
		// 重定向等响应没有响应体
		m.log.Debug("读取响应体失败", "url", ev.Request.URL, "error", err.Error())
	} else if body, err = adapter.DecodeBody(reply.Body, reply.Base64Encoded); err != nil {
		m.log.Warn("解码响应体失败", "url", ev.Request.URL, "error", err.Error())
	}
	feed.Complete(id, adapter.ToNeutralResponse(ev, body))
	m.continuePaused(ctx, tab, ev)
}

// continuePaused 按阶段放行
func (m *Manager) continuePaused(ctx context.Context, tab *Tab, ev *fetch.RequestPausedReply) {
	var err error
	if adapter.IsResponseStage(ev) {
		err = tab.client.Fetch.ContinueResponse(ctx, &fetch.ContinueResponseArgs{RequestID: ev.RequestID})
	} else {
		err = tab.client.Fetch.ContinueRequest(ctx, &fetch.ContinueRequestArgs{RequestID: ev.RequestID})
	}
	if err != nil && tab.ctx.Err() == nil {
		m.log.Err(err, "放行暂停事件失败", "url", ev.Request.URL)
	}
}

// degrade 无法处理时直接放行
func (m *Manager) degrade(tab *Tab, ev *fetch.RequestPausedReply, reason string) {
	m.log.Warn("执行降级策略：直接放行", "target", tab.id, "reason", reason, "url", ev.Request.URL)
	ctx, cancel := context.WithTimeout(tab.ctx, time.Second)
	defer cancel()
	m.continuePaused(ctx, tab, ev)
}
