package agent

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/BaSui01/voxflow/llm"
	"go.uber.org/zap"
)

// ToolExecutor 执行一个完整的工具调用并返回结果文本。
// 实现方自行解析 Arguments（完整 JSON，由聚合器保证）。
type ToolExecutor interface {
	Execute(ctx context.Context, call llm.ToolCall) (string, error)
}

// MetricsRecorder 接收流式消费与能力降级的指标上报，
// internal/metrics 的 Collector 满足该接口。nil 表示不上报。
type MetricsRecorder interface {
	RecordStreamChunk(provider string)
	RecordToolDowngrade(provider string)
}

// Config Engine 配置。
type Config struct {
	// CharacterName 角色名，随句子单元与工具状态事件下发。
	CharacterName string `json:"character_name" yaml:"character_name"`

	// Avatar 角色头像地址。
	Avatar string `json:"avatar,omitempty" yaml:"avatar,omitempty"`

	// SystemPrompt 人设提示词，请求时前置。
	SystemPrompt string `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`

	// Model 模型名，空值时由 Provider 决定默认。
	Model string `json:"model,omitempty" yaml:"model,omitempty"`

	// Temperature 采样温度。
	Temperature float32 `json:"temperature,omitempty" yaml:"temperature,omitempty"`

	// TokenBudget 历史消息的 token 预算，0 表示不裁剪。
	TokenBudget int `json:"token_budget,omitempty" yaml:"token_budget,omitempty"`

	// MaxToolRounds 一次 Chat 内工具调用的最大轮数。
	MaxToolRounds int `json:"max_tool_rounds,omitempty" yaml:"max_tool_rounds,omitempty"`

	// Tools 暴露给模型的工具 Schema。
	Tools []llm.ToolSchema `json:"tools,omitempty" yaml:"tools,omitempty"`
}

// Engine 是面向单个会话的模型后端句柄：持有 Provider、工具执行器
// 与会话级工具能力标志。
//
// supportsTools 的降级是单调的：一旦后端声明不支持工具，本会话内
// 所有后续回合都不再携带 tools 参数，也不会复位。标志用原子布尔
// 实现，满足并发回合读、故障路径单写的约束。
type Engine struct {
	provider llm.Provider
	cfg      Config
	executor ToolExecutor
	agg      *Aggregator
	metrics  MetricsRecorder
	logger   *zap.Logger

	supportsTools atomic.Bool
}

// NewEngine 创建会话引擎。executor 可为 nil，此时工具调用仅上报
// 状态事件，不执行；metrics 可为 nil，此时不上报指标。
func NewEngine(provider llm.Provider, cfg Config, executor ToolExecutor, metrics MetricsRecorder, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = 4
	}
	e := &Engine{
		provider: provider,
		cfg:      cfg,
		executor: executor,
		agg:      NewAggregator(logger),
		metrics:  metrics,
		logger:   logger.With(zap.String("component", "agent_engine")),
	}
	e.agg.metrics = metrics
	e.supportsTools.Store(provider.SupportsNativeFunctionCalling())
	return e
}

// SupportsTools 返回会话当前的工具能力标志。
func (e *Engine) SupportsTools() bool { return e.supportsTools.Load() }

// downgradeTools 执行会话级能力降级，返回是否由本次调用完成降级
// （用于保证“重试一次”而不是无限重试）。
func (e *Engine) downgradeTools() bool {
	if !e.supportsTools.CompareAndSwap(true, false) {
		return false
	}
	if e.metrics != nil {
		e.metrics.RecordToolDowngrade(e.provider.Name())
	}
	return true
}

func (e *Engine) display(text string) *DisplayText {
	return &DisplayText{Text: text, Name: e.cfg.CharacterName, Avatar: e.cfg.Avatar}
}

// Chat 驱动一次模型交互，返回输出项通道。通道在交互结束后关闭；
// ctx 取消时通道直接关闭，调用方通过 ctx.Err() 区分取消。
//
// 工具调用走内部多轮循环：完整调用 → 状态事件 → 执行 → 工具结果
// 回填 → 重新请求，直到产出纯文本或轮数耗尽。
func (e *Engine) Chat(ctx context.Context, msgs []llm.Message) <-chan OutputItem {
	out := make(chan OutputItem)
	go func() {
		defer close(out)
		e.run(ctx, msgs, out)
	}()
	return out
}

func (e *Engine) run(ctx context.Context, msgs []llm.Message, out chan<- OutputItem) {
	conv := TrimMessages(msgs, e.cfg.Model, e.cfg.TokenBudget)

	for round := 0; round <= e.cfg.MaxToolRounds; round++ {
		var tools []llm.ToolSchema
		if e.supportsTools.Load() {
			tools = e.cfg.Tools
		}

		req := &llm.ChatRequest{
			Model:       e.cfg.Model,
			System:      e.cfg.SystemPrompt,
			Messages:    conv,
			Temperature: e.cfg.Temperature,
			Tools:       tools,
		}

		ch, err := e.provider.Stream(ctx, req)
		if err != nil {
			if llm.IsToolsUnsupported(err) && e.downgradeTools() {
				e.logger.Warn("tool calling unsupported, retrying turn without tools")
				continue
			}
			e.logger.Error("stream request failed", zap.Error(err))
			e.emit(ctx, out, SentenceItem{TTSText: degradeNoticeFor(err), Display: e.display(degradeNoticeFor(err))})
			return
		}

		res, err := e.agg.Consume(ctx, ch)
		if err != nil {
			// 取消：不产出任何收尾项，由调用方检查 ctx.Err()。
			return
		}

		if res.ToolsUnsupported {
			if e.downgradeTools() {
				e.logger.Warn("tool calling unsupported, retrying turn without tools")
				continue
			}
			// 已降级仍收到哨兵：后端行为异常，放弃本轮。
			e.logger.Error("tools-unsupported sentinel received after downgrade")
			return
		}

		if res.IsToolCalls() {
			conv = e.runTools(ctx, conv, res.ToolCalls, out)
			if conv == nil {
				return
			}
			continue
		}

		for _, s := range splitSentences(res.Text) {
			if !e.emit(ctx, out, SentenceItem{TTSText: s, Display: e.display(s)}) {
				return
			}
		}
		return
	}
	e.logger.Warn("tool rounds exhausted", zap.Int("max_rounds", e.cfg.MaxToolRounds))
}

// runTools 执行一批完整工具调用并回填结果消息。返回更新后的对话；
// 取消或无执行器时返回 nil 表示终止。
func (e *Engine) runTools(ctx context.Context, conv []llm.Message, calls []llm.ToolCall, out chan<- OutputItem) []llm.Message {
	if e.executor == nil {
		for _, call := range calls {
			e.logger.Warn("tool call received but no executor configured", zap.String("tool", call.Name))
			if !e.emit(ctx, out, ToolStatusItem{Type: "tool_call_status", ToolID: call.ID, ToolName: call.Name, Status: "failed", Content: "no tool executor configured"}) {
				return nil
			}
		}
		return nil
	}

	conv = append(conv, llm.Message{Role: llm.RoleAssistant, ToolCalls: calls})
	for _, call := range calls {
		if !e.emit(ctx, out, ToolStatusItem{Type: "tool_call_status", ToolID: call.ID, ToolName: call.Name, Status: "running"}) {
			return nil
		}
		result, err := e.executor.Execute(ctx, call)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			e.logger.Error("tool execution failed", zap.String("tool", call.Name), zap.Error(err))
			result = "tool execution failed: " + err.Error()
			if !e.emit(ctx, out, ToolStatusItem{Type: "tool_call_status", ToolID: call.ID, ToolName: call.Name, Status: "failed", Content: err.Error()}) {
				return nil
			}
		} else if !e.emit(ctx, out, ToolStatusItem{Type: "tool_call_status", ToolID: call.ID, ToolName: call.Name, Status: "completed"}) {
			return nil
		}
		conv = append(conv, llm.Message{Role: llm.RoleTool, Content: result, Name: call.Name, ToolCallID: call.ID})
	}
	return conv
}

func (e *Engine) emit(ctx context.Context, out chan<- OutputItem, item OutputItem) bool {
	select {
	case out <- item:
		return true
	case <-ctx.Done():
		return false
	}
}

func degradeNoticeFor(err error) string {
	if le, ok := llm.AsError(err); ok {
		return degradeNotice(le)
	}
	return "Error calling the chat endpoint: Connection error."
}

// MarshalToolArgs 把任意参数对象编码为 ToolCall.Arguments。
// 测试与工具实现共用的小工具。
func MarshalToolArgs(v any) json.RawMessage {
	data, _ := json.Marshal(v)
	return data
}
