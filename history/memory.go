package history

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore 进程内聊天历史，默认实现，也是测试基座。
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]ChatMessage
}

// NewMemoryStore 创建内存存储。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]ChatMessage)}
}

// Append 实现 ChatStore。
func (s *MemoryStore) Append(_ context.Context, conversationID, role, content, name, avatar string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[conversationID] = append(s.data[conversationID], ChatMessage{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Name:           name,
		Avatar:         avatar,
		CreatedAt:      time.Now(),
	})
	return nil
}

// Messages 实现 ChatStore。
func (s *MemoryStore) Messages(_ context.Context, conversationID string, limit int) ([]ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs, ok := s.data[conversationID]
	if !ok {
		return nil, ErrNotFound
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]ChatMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

// Close 实现 ChatStore。
func (s *MemoryStore) Close() error { return nil }
