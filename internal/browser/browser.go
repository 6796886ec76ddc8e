// Package browser 定义浏览器适配器需要提供的最小能力集合
package browser

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotSupported 适配器不支持该操作
var ErrNotSupported = errors.New("operation not supported by browser adapter")

// Evaluator 在页面上下文中执行脚本，返回结果的 JSON 值
type Evaluator interface {
	Evaluate(ctx context.Context, expr string) (json.RawMessage, error)
}

// Storage 页面源的 localStorage
type Storage interface {
	Keys(ctx context.Context) ([]string, error)
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Clear(ctx context.Context) error
}

// Tab 一个浏览器标签页
type Tab interface {
	Evaluator
	// Visit 导航并等待页面加载完成
	Visit(ctx context.Context, url string) error
	Storage() Storage
}

// Form 登录表单交互，name 按不区分大小写的正则匹配可访问名称
type Form interface {
	FillByRole(ctx context.Context, role, name, value string) error
	PressByRole(ctx context.Context, role, name, key string) error
	Fill(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	InputValue(ctx context.Context, selector string) (string, error)
	WaitForURL(ctx context.Context, url string) error
}

// FormTab 同时支持界面交互的标签页
type FormTab interface {
	Tab
	Form
}
