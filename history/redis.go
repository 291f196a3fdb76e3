package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisConfig Redis 聊天历史存储配置。
type RedisConfig struct {
	Addr      string `json:"addr" yaml:"addr"`
	Password  string `json:"password,omitempty" yaml:"password,omitempty"`
	DB        int    `json:"db,omitempty" yaml:"db,omitempty"`
	KeyPrefix string `json:"key_prefix,omitempty" yaml:"key_prefix,omitempty"`
}

// RedisStore 基于 Redis List 的聊天历史：每个会话一个 key，
// RPUSH 追加 JSON 文档，LRANGE 读取。适合多实例部署。
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStore 创建 Redis 存储并做一次连通性检查。
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("history: connect to redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "voxflow:"
	}
	return &RedisStore{client: client, keyPrefix: prefix + "history:"}, nil
}

// NewRedisStoreWithClient 用现有客户端创建存储，miniredis 测试用。
func NewRedisStoreWithClient(client *redis.Client, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "voxflow:"
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix + "history:"}
}

func (s *RedisStore) conversationKey(conversationID string) string {
	return s.keyPrefix + conversationID
}

// Append 实现 ChatStore。
func (s *RedisStore) Append(ctx context.Context, conversationID, role, content, name, avatar string) error {
	msg := ChatMessage{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Name:           name,
		Avatar:         avatar,
		CreatedAt:      time.Now(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("history: marshal message: %w", err)
	}
	if err := s.client.RPush(ctx, s.conversationKey(conversationID), data).Err(); err != nil {
		return fmt.Errorf("history: append to redis: %w", err)
	}
	return nil
}

// Messages 实现 ChatStore。
func (s *RedisStore) Messages(ctx context.Context, conversationID string, limit int) ([]ChatMessage, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	raw, err := s.client.LRange(ctx, s.conversationKey(conversationID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("history: read from redis: %w", err)
	}
	if len(raw) == 0 {
		return nil, ErrNotFound
	}

	msgs := make([]ChatMessage, 0, len(raw))
	for _, doc := range raw {
		var msg ChatMessage
		if err := json.Unmarshal([]byte(doc), &msg); err != nil {
			return nil, fmt.Errorf("history: decode message: %w", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// Close 实现 ChatStore。
func (s *RedisStore) Close() error { return s.client.Close() }
