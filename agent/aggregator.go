package agent

import (
	"context"
	"sort"

	"github.com/BaSui01/voxflow/llm"
	"go.uber.org/zap"
)

// Result 是一次流式聚合的最终产物：要么是完整文本，要么是一组
// 完整的工具调用。两者由 sawToolCall 标志裁决，半成品调用绝不外泄。
type Result struct {
	// Text 聚合后的完整文本（FinalToolCalls 时仍可能非空，仅供日志）。
	Text string

	// ToolCalls 完整的工具调用列表，按 Index 排序保证确定性。
	// 非空当且仅当流正常收尾且出现过工具调用分片；降级路径恒为空。
	ToolCalls []llm.ToolCall

	// ToolsUnsupported 能力哨兵：后端声明不支持工具调用。
	// 调用方应降级会话标志后原样重试，不得当普通错误上报。
	ToolsUnsupported bool

	// Degraded 流中途出现可降级故障，Text 为截至故障点的部分文本；
	// 累积中的工具调用（参数可能被截断）整体丢弃，绝不外泄。
	Degraded bool

	// Notice 降级时给客户端的人类可读错误串（部分文本为空时充当响应）。
	Notice string
}

// IsToolCalls 返回聚合结果是否应按工具调用分发。
func (r *Result) IsToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// toolCallState 单个 call index 的累积状态。
// id/type/name 首个非空值生效，arguments 只追加不替换。
type toolCallState struct {
	call llm.ToolCall
}

func (s *toolCallState) merge(frag llm.ToolCall) {
	if s.call.ID == "" && frag.ID != "" {
		s.call.ID = frag.ID
	}
	if s.call.Type == "" && frag.Type != "" {
		s.call.Type = frag.Type
	}
	if s.call.Name == "" && frag.Name != "" {
		s.call.Name = frag.Name
	}
	if len(frag.Arguments) > 0 {
		s.call.Arguments = append(s.call.Arguments, frag.Arguments...)
	}
}

// Aggregator 单遍消费一个 StreamChunk 通道，把文本增量拼接为完整
// 文本、把工具调用分片按 index 合并为完整调用。
type Aggregator struct {
	logger  *zap.Logger
	metrics MetricsRecorder
}

// NewAggregator 创建聚合器。
func NewAggregator(logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{logger: logger.With(zap.String("component", "stream_aggregator"))}
}

// Consume 排空 ch 并返回聚合结果。
//
// 故障策略：
//   - ErrToolsUnsupported：返回 ToolsUnsupported 哨兵结果，err 为 nil；
//   - 其余错误 chunk：提前终止（Degraded），已累积文本视为最终结果，
//     半成品工具调用整体丢弃；
//   - ctx 取消：返回 ctx.Err()，结果丢弃。
//
// 通道由 Provider 负责关闭，任何退出路径下底层连接都会随通道
// 生产者退出而释放。
func (a *Aggregator) Consume(ctx context.Context, ch <-chan llm.StreamChunk) (*Result, error) {
	var (
		text        []byte
		sawToolCall bool
		states      = make(map[int]*toolCallState)
		order       []int
	)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case chunk, ok := <-ch:
			if !ok {
				return a.finalize(text, sawToolCall, states, order), nil
			}
			if a.metrics != nil {
				a.metrics.RecordStreamChunk(chunk.Provider)
			}
			if chunk.Err != nil {
				if chunk.Err.Code == llm.ErrToolsUnsupported {
					a.logger.Warn("backend rejected tool calling, signaling session downgrade",
						zap.String("provider", chunk.Err.Provider))
					return &Result{ToolsUnsupported: true}, nil
				}
				// 限流/网络类故障不致命：提前收尾，保留已累积文本。
				// 累积中的调用参数可能被截断，全部丢弃，工具调用按回合全有或全无。
				a.logger.Error("stream terminated early, degrading to partial text",
					zap.String("code", string(chunk.Err.Code)),
					zap.String("message", chunk.Err.Message),
					zap.Int("dropped_tool_calls", len(states)))
				res := a.finalize(text, false, nil, nil)
				res.Degraded = true
				res.Notice = degradeNotice(chunk.Err)
				if res.Text == "" {
					res.Text = res.Notice
				}
				return res, nil
			}

			if len(chunk.Delta.ToolCalls) > 0 {
				sawToolCall = true
				for _, frag := range chunk.Delta.ToolCalls {
					st, ok := states[frag.Index]
					if !ok {
						st = &toolCallState{call: llm.ToolCall{Index: frag.Index}}
						states[frag.Index] = st
						order = append(order, frag.Index)
					}
					st.merge(frag)
				}
				continue
			}

			if chunk.Delta.Content != "" {
				text = append(text, chunk.Delta.Content...)
			}
		}
	}
}

// finalize 由 sawToolCall 裁决结果形态：出现过工具分片且至少聚合出
// 一个调用时为 FinalToolCalls，否则为 FinalText（可能为空串）。
func (a *Aggregator) finalize(text []byte, sawToolCall bool, states map[int]*toolCallState, order []int) *Result {
	res := &Result{Text: string(text)}
	if sawToolCall && len(states) > 0 {
		sort.Ints(order)
		res.ToolCalls = make([]llm.ToolCall, 0, len(order))
		for _, idx := range order {
			res.ToolCalls = append(res.ToolCalls, states[idx].call)
		}
	}
	return res
}

func degradeNotice(e *llm.Error) string {
	switch e.Code {
	case llm.ErrRateLimited:
		return "Error calling the chat endpoint: Rate limit exceeded. Please try again later."
	case llm.ErrUpstreamTimeout:
		return "Error calling the chat endpoint: Request timed out."
	default:
		return "Error calling the chat endpoint: Connection error."
	}
}
