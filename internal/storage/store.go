package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"

	"beame2e/internal/config"
	"beame2e/internal/logger"
)

// ErrNotFound 会话记录不存在
var ErrNotFound = errors.New("session record not found")

// SessionRecord 持久化的登录会话快照
type SessionRecord struct {
	Key       string `gorm:"column:session_key;primaryKey;size:255"`
	Email     string `gorm:"index;size:255"`
	Snapshot  []byte
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store 基于 sqlite 的会话存储
type Store struct {
	db  *gorm.DB
	log logger.Logger
}

// Open 按配置打开数据库并迁移表结构
func Open(cfg *config.Config, l logger.Logger) (*Store, error) {
	if l == nil {
		l = logger.NewNop()
	}
	dsn := cfg.Sqlite.Dsn
	if dsn != ":memory:" {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         newGormLogger(l),
		NamingStrategy: schema.NamingStrategy{TablePrefix: cfg.Sqlite.Prefix},
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	if err := db.AutoMigrate(&SessionRecord{}); err != nil {
		return nil, fmt.Errorf("migrate session table: %w", err)
	}
	l.Debug("会话存储已就绪", "dsn", dsn)
	return &Store{db: db, log: l}, nil
}

// Save 写入或覆盖会话快照
func (s *Store) Save(ctx context.Context, rec *SessionRecord) error {
	// sqlite 以文本比较时间，统一为 UTC
	rec.ExpiresAt = rec.ExpiresAt.UTC()
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "snapshot", "expires_at", "updated_at"}),
	}).Create(rec).Error
	if err != nil {
		return fmt.Errorf("save session %s: %w", rec.Key, err)
	}
	return nil
}

// Load 读取会话快照，已过期的记录视为不存在
func (s *Store) Load(ctx context.Context, key string, now time.Time) (*SessionRecord, error) {
	var rec SessionRecord
	err := s.db.WithContext(ctx).Where("session_key = ? AND expires_at > ?", key, now.UTC()).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", key, err)
	}
	return &rec, nil
}

// Delete 删除会话快照
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Delete(&SessionRecord{}, "session_key = ?", key).Error; err != nil {
		return fmt.Errorf("delete session %s: %w", key, err)
	}
	return nil
}

// List 按更新时间倒序列出全部记录
func (s *Store) List(ctx context.Context) ([]SessionRecord, error) {
	var recs []SessionRecord
	if err := s.db.WithContext(ctx).Order("updated_at DESC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return recs, nil
}

// Purge 删除 before 之前过期的记录，before 为零值时删除全部
func (s *Store) Purge(ctx context.Context, before time.Time) (int64, error) {
	tx := s.db.WithContext(ctx)
	if before.IsZero() {
		tx = tx.Where("1 = 1")
	} else {
		tx = tx.Where("expires_at <= ?", before.UTC())
	}
	res := tx.Delete(&SessionRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("purge sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Close 关闭底层连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
