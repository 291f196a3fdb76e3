package conversation

import (
	"github.com/google/uuid"

	"github.com/BaSui01/voxflow/llm"
)

// Status 回合状态。
type Status string

const (
	StatusPending      Status = "pending"
	StatusStreaming    Status = "streaming"
	StatusSynthesizing Status = "synthesizing"
	StatusCompleted    Status = "completed"
	StatusCancelled    Status = "cancelled"
	StatusFailed       Status = "failed"
)

// Terminal 返回该状态是否为终态。
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// TurnInput 一个回合的原始输入：文本或音频二选一，可附带图片。
type TurnInput struct {
	Text   string
	Audio  []byte
	Images []llm.ImageContent

	// SkipHistory 为 true 时本回合不写入聊天历史。
	SkipHistory bool
}

// Turn 一次用户触发的完整交互。由回合控制器独占持有，终态事件
// 发出后即弃引用。
type Turn struct {
	ID             string
	ConversationID string
	Input          TurnInput

	// Response 清洗后的最终回复文本。
	Response string

	Status Status
}

func newTurn(conversationID string, in TurnInput) *Turn {
	return &Turn{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Input:          in,
		Status:         StatusPending,
	}
}
