package history

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound 指定会话没有任何历史记录。
var ErrNotFound = errors.New("history: conversation not found")

// ChatMessage 一条聊天历史记录。Role 用前端协议的 human/ai。
type ChatMessage struct {
	ID             string    `json:"id" gorm:"primaryKey;size:36"`
	ConversationID string    `json:"conversation_id" gorm:"index;size:36"`
	Role           string    `json:"role" gorm:"size:16"`
	Content        string    `json:"content"`
	Name           string    `json:"name,omitempty"`
	Avatar         string    `json:"avatar,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ChatStore 聊天历史的追加写存储。
//
// Append 只追加不修改；Messages 按时间正序返回，limit > 0 时只取
// 最近的 limit 条（仍是正序）。
type ChatStore interface {
	Append(ctx context.Context, conversationID, role, content, name, avatar string) error
	Messages(ctx context.Context, conversationID string, limit int) ([]ChatMessage, error)
	Close() error
}
