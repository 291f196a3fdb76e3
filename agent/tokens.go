package agent

import (
	"github.com/BaSui01/voxflow/llm"
	"github.com/pkoukk/tiktoken-go"
)

// perMessageOverhead 每条消息的封装开销（role 标记等），对齐
// OpenAI chat 格式的估算惯例。
const perMessageOverhead = 4

// countTokens 估算一条消息的 token 数。编码表不可用时退化为
// 字节数/4 的粗估，保证裁剪始终可用。
func countTokens(enc *tiktoken.Tiktoken, m llm.Message) int {
	n := perMessageOverhead
	if enc != nil {
		n += len(enc.Encode(m.Content, nil, nil))
	} else {
		n += len(m.Content) / 4
	}
	for _, tc := range m.ToolCalls {
		if enc != nil {
			n += len(enc.Encode(string(tc.Arguments), nil, nil))
		} else {
			n += len(tc.Arguments) / 4
		}
	}
	return n
}

// TrimMessages 把历史消息裁剪到 budget 个 token 以内：从最新一条
// 向前保留，预算耗尽即停。裁剪永远保留最新的一条用户输入。
func TrimMessages(msgs []llm.Message, model string, budget int) []llm.Message {
	if budget <= 0 || len(msgs) == 0 {
		return msgs
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// 未知模型走通用编码表，再不行就按字节粗估。
		enc, _ = tiktoken.GetEncoding("cl100k_base")
	}

	total := 0
	keepFrom := len(msgs)
	for i := len(msgs) - 1; i >= 0; i-- {
		cost := countTokens(enc, msgs[i])
		if total+cost > budget && keepFrom < len(msgs) {
			break
		}
		total += cost
		keepFrom = i
	}
	return msgs[keepFrom:]
}
