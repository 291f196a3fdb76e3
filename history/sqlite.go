package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SQLiteStore 基于 SQLite (GORM) 的单机持久化聊天历史。
type SQLiteStore struct {
	db *gorm.DB
}

// NewSQLiteStore 打开（必要时创建）SQLite 数据库并迁移表结构。
// path 可用 ":memory:" 跑纯内存库。
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("history: open sqlite: %w", err)
	}
	if err := db.AutoMigrate(&ChatMessage{}); err != nil {
		return nil, fmt.Errorf("history: migrate schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Append 实现 ChatStore。
func (s *SQLiteStore) Append(ctx context.Context, conversationID, role, content, name, avatar string) error {
	msg := ChatMessage{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Name:           name,
		Avatar:         avatar,
		CreatedAt:      time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return fmt.Errorf("history: insert message: %w", err)
	}
	return nil
}

// Messages 实现 ChatStore。
func (s *SQLiteStore) Messages(ctx context.Context, conversationID string, limit int) ([]ChatMessage, error) {
	var msgs []ChatMessage
	// 按 rowid 排序保证严格的插入序，created_at 精度不够可靠。
	q := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("rowid DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&msgs).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("history: query messages: %w", err)
	}
	if len(msgs) == 0 {
		return nil, ErrNotFound
	}

	// 查询按倒序取最近 limit 条，这里翻回正序。
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Close 实现 ChatStore。
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
