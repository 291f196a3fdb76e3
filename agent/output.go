package agent

// DisplayText 是随文本单元下发给前端的展示元数据。
type DisplayText struct {
	Text   string `json:"text"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// OutputItem 是 Engine 输出流的封闭变体类型：
// 工具状态、句子单元或音频单元。消费方用类型开关做穷尽分发，
// 未知变体记日志后跳过，不崩溃。
type OutputItem interface {
	isOutputItem()
}

// ToolStatusItem 工具调用状态事件，产生后立即透传给客户端，不参与缓冲。
type ToolStatusItem struct {
	Type     string `json:"type"` // 固定为 "tool_call_status"
	ToolID   string `json:"tool_id,omitempty"`
	ToolName string `json:"tool_name"`
	Status   string `json:"status"` // running / completed / failed
	Name     string `json:"name,omitempty"`
	Content  string `json:"content,omitempty"`
}

// SentenceItem 一个完成聚合、可直接送入 TTS 的句子单元。
type SentenceItem struct {
	TTSText string
	Display *DisplayText
	Actions []string
}

// AudioItem 后端直接产出的音频单元（带转写文本）。
type AudioItem struct {
	AudioPath  string
	Transcript string
	Display    *DisplayText
}

func (ToolStatusItem) isOutputItem() {}
func (SentenceItem) isOutputItem()   {}
func (AudioItem) isOutputItem()      {}
