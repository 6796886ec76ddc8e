package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"beame2e/internal/logger"
	"beame2e/internal/storage"
)

// Key 按凭据区分的会话缓存键
type Key string

// keyNamespace 会话键的 uuid 命名空间
var keyNamespace = uuid.MustParse("5b8f0d56-8a57-4a44-9a0b-2f4e1f3c6f21")

// KeyFor 由凭据生成稳定的缓存键，不保存明文密码
func KeyFor(email, password string) Key {
	return Key(uuid.NewSHA1(keyNamespace, []byte(email+"\x00"+password)).String())
}

// Snapshot 登录后的 localStorage 快照
type Snapshot struct {
	Email     string            `json:"email"`
	Items     map[string]string `json:"items"`
	ExpiresAt int64             `json:"expiresAt"`
}

// Manager 进程级会话快照缓存，可选持久化到 sqlite
type Manager struct {
	mu        sync.RWMutex
	snapshots map[Key]*Snapshot
	store     *storage.Store
	log       logger.Logger
}

// NewManager 创建会话管理器，store 为 nil 时仅缓存在内存
func NewManager(store *storage.Store, l logger.Logger) *Manager {
	if l == nil {
		l = logger.NewNop()
	}
	return &Manager{
		snapshots: make(map[Key]*Snapshot),
		store:     store,
		log:       l,
	}
}

// Put 缓存快照
func (m *Manager) Put(ctx context.Context, key Key, snap *Snapshot) error {
	m.mu.Lock()
	m.snapshots[key] = snap
	m.mu.Unlock()
	m.log.Info("缓存登录会话", "email", snap.Email, "keys", len(snap.Items))

	if m.store == nil {
		return nil
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return m.store.Save(ctx, &storage.SessionRecord{
		Key:       string(key),
		Email:     snap.Email,
		Snapshot:  data,
		ExpiresAt: time.Unix(snap.ExpiresAt, 0),
	})
}

// Get 读取快照，内存未命中时回落到持久化存储
func (m *Manager) Get(ctx context.Context, key Key) (*Snapshot, bool) {
	m.mu.RLock()
	snap, ok := m.snapshots[key]
	m.mu.RUnlock()
	if ok || m.store == nil {
		return snap, ok
	}

	rec, err := m.store.Load(ctx, string(key), time.Now())
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			m.log.Err(err, "读取持久化会话失败", "key", string(key))
		}
		return nil, false
	}
	snap = &Snapshot{}
	if err := json.Unmarshal(rec.Snapshot, snap); err != nil {
		m.log.Err(err, "持久化会话已损坏", "key", string(key))
		return nil, false
	}
	m.mu.Lock()
	m.snapshots[key] = snap
	m.mu.Unlock()
	return snap, true
}

// Delete 丢弃快照
func (m *Manager) Delete(ctx context.Context, key Key) {
	m.mu.Lock()
	delete(m.snapshots, key)
	m.mu.Unlock()
	if m.store != nil {
		if err := m.store.Delete(ctx, string(key)); err != nil {
			m.log.Err(err, "删除持久化会话失败", "key", string(key))
		}
	}
	m.log.Info("丢弃登录会话", "key", string(key))
}

// List 返回内存中的全部快照
func (m *Manager) List() []*Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lo.Values(m.snapshots)
}
