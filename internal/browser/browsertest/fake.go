// Package browsertest 提供内存实现的标签页，用于不启动浏览器的单元测试
package browsertest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"beame2e/internal/browser"
)

// MemoryStorage 内存 localStorage
type MemoryStorage struct {
	mu    sync.Mutex
	items map[string]string
}

// NewMemoryStorage 创建空存储
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{items: make(map[string]string)}
}

func (s *MemoryStorage) Keys(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryStorage) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[key]
	return v, ok, nil
}

func (s *MemoryStorage) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = value
	return nil
}

func (s *MemoryStorage) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]string)
	return nil
}

// Tab 记录操作的假标签页
type Tab struct {
	mu sync.Mutex

	Store   *MemoryStorage
	Visits  []string
	Clicks  []string
	Filled  map[string]string
	Pressed []string
	URL     string
	// Values InputValue 的返回值，按选择器
	Values map[string]string
	// Results Evaluate 的返回值，按表达式
	Results map[string]json.RawMessage

	OnVisit func(url string) error
	OnPress func(role, name, key string) error
	OnClick func(selector string) error
}

// NewTab 创建假标签页
func NewTab() *Tab {
	return &Tab{
		Store:   NewMemoryStorage(),
		Filled:  make(map[string]string),
		Values:  make(map[string]string),
		Results: make(map[string]json.RawMessage),
	}
}

var _ browser.FormTab = (*Tab)(nil)

func (t *Tab) Visit(_ context.Context, url string) error {
	t.mu.Lock()
	t.Visits = append(t.Visits, url)
	t.URL = url
	hook := t.OnVisit
	t.mu.Unlock()
	if hook != nil {
		return hook(url)
	}
	return nil
}

func (t *Tab) Storage() browser.Storage { return t.Store }

func (t *Tab) Evaluate(_ context.Context, expr string) (json.RawMessage, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.Results[expr]
	if !ok {
		return nil, fmt.Errorf("no result scripted for %q", expr)
	}
	return v, nil
}

func (t *Tab) FillByRole(_ context.Context, role, name, value string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Filled[role+":"+name] = value
	return nil
}

func (t *Tab) PressByRole(_ context.Context, role, name, key string) error {
	t.mu.Lock()
	t.Pressed = append(t.Pressed, key)
	hook := t.OnPress
	t.mu.Unlock()
	if hook != nil {
		return hook(role, name, key)
	}
	return nil
}

func (t *Tab) Fill(_ context.Context, selector, value string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Filled[selector] = value
	return nil
}

func (t *Tab) Click(_ context.Context, selector string) error {
	t.mu.Lock()
	t.Clicks = append(t.Clicks, selector)
	hook := t.OnClick
	t.mu.Unlock()
	if hook != nil {
		return hook(selector)
	}
	return nil
}

func (t *Tab) InputValue(_ context.Context, selector string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Values[selector], nil
}

func (t *Tab) WaitForURL(_ context.Context, url string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.URL = url
	return nil
}
