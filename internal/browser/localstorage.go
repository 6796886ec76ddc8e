package browser

import (
	"context"
	"encoding/json"
	"fmt"
)

// LocalStorage 通过脚本执行读写 window.localStorage
type LocalStorage struct {
	ev Evaluator
}

// NewLocalStorage 基于任意 Evaluator 创建 localStorage 访问器
func NewLocalStorage(ev Evaluator) *LocalStorage {
	return &LocalStorage{ev: ev}
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// Keys 列出全部键
func (s *LocalStorage) Keys(ctx context.Context) ([]string, error) {
	raw, err := s.ev.Evaluate(ctx, "Object.keys(window.localStorage)")
	if err != nil {
		return nil, fmt.Errorf("list localStorage keys: %w", err)
	}
	var keys []string
	if err := json.Unmarshal(raw, &keys); err != nil {
		return nil, fmt.Errorf("decode localStorage keys: %w", err)
	}
	return keys, nil
}

// Get 读取键值，键不存在时 ok 为 false
func (s *LocalStorage) Get(ctx context.Context, key string) (string, bool, error) {
	raw, err := s.ev.Evaluate(ctx, fmt.Sprintf("window.localStorage.getItem(%s)", quote(key)))
	if err != nil {
		return "", false, fmt.Errorf("read localStorage %s: %w", key, err)
	}
	var v *string
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false, fmt.Errorf("decode localStorage %s: %w", key, err)
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

// Set 写入键值
func (s *LocalStorage) Set(ctx context.Context, key, value string) error {
	if _, err := s.ev.Evaluate(ctx, fmt.Sprintf("window.localStorage.setItem(%s, %s)", quote(key), quote(value))); err != nil {
		return fmt.Errorf("write localStorage %s: %w", key, err)
	}
	return nil
}

// Clear 清空
func (s *LocalStorage) Clear(ctx context.Context) error {
	if _, err := s.ev.Evaluate(ctx, "window.localStorage.clear()"); err != nil {
		return fmt.Errorf("clear localStorage: %w", err)
	}
	return nil
}

// Snapshot 读取全部键值
func Snapshot(ctx context.Context, st Storage) (map[string]string, error) {
	keys, err := st.Keys(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		v, ok, err := st.Get(ctx, k)
		if err != nil {
			return nil, err
		}
		if ok {
			out[k] = v
		}
	}
	return out, nil
}

// Restore 清空后写回快照
func Restore(ctx context.Context, st Storage, snap map[string]string) error {
	if err := st.Clear(ctx); err != nil {
		return err
	}
	for k, v := range snap {
		if err := st.Set(ctx, k, v); err != nil {
			return err
		}
	}
	return nil
}
