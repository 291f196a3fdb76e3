package conversation

import "context"

// 客户端事件类型。与前端协议一一对应，字符串不可改动。
const (
	EventChainStart     = "conversation-chain-start"
	EventChainEnd       = "conversation-chain-end"
	EventTranscription  = "user-input-transcription"
	EventToolCallStatus = "tool_call_status"
	EventError          = "error"
	EventSynthComplete  = "backend-synth-complete"
	EventForceNewMsg    = "force-new-message"
	EventAudio          = "audio"
)

// Event 推送给客户端的单条事件。字段按 Type 选用，零值字段不序列化。
type Event struct {
	Type string `json:"type"`

	// 文本类载荷：转写结果、展示文本或错误消息。
	Text    string `json:"text,omitempty"`
	Message string `json:"message,omitempty"`

	// 展示元数据。
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`

	// 工具状态载荷。
	ToolID   string `json:"tool_id,omitempty"`
	ToolName string `json:"tool_name,omitempty"`
	Status   string `json:"status,omitempty"`
	Content  string `json:"content,omitempty"`

	// 音频载荷。
	AudioPath string   `json:"audio_path,omitempty"`
	Actions   []string `json:"actions,omitempty"`
}

// EventSink 面向单个客户端的有序推送通道。
//
// Send 必须保持调用顺序与送达顺序一致；实现方负责把并发调用
// 序列化到底层连接上。返回错误只代表本条推送失败，调用方记日志
// 后继续，不中断回合。
type EventSink interface {
	Send(ctx context.Context, ev Event) error
}
