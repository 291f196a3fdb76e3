// 预置的流式响应脚本，供各包测试复用。
package fixtures

import (
	"encoding/json"

	"github.com/BaSui01/voxflow/llm"
)

// TextStream 把若干文本增量包装成流式分片序列。
func TextStream(parts ...string) []llm.StreamChunk {
	chunks := make([]llm.StreamChunk, 0, len(parts))
	for _, p := range parts {
		chunks = append(chunks, llm.StreamChunk{
			Delta: llm.Message{Role: llm.RoleAssistant, Content: p},
		})
	}
	return chunks
}

// ToolCallStream 把一个工具调用拆成名称分片与参数分片，模拟
// OpenAI 风格的分段参数流。
func ToolCallStream(id, name string, argParts ...string) []llm.StreamChunk {
	chunks := []llm.StreamChunk{{
		Delta: llm.Message{
			Role: llm.RoleAssistant,
			ToolCalls: []llm.ToolCall{{
				Index: 0,
				ID:    id,
				Type:  "function",
				Name:  name,
			}},
		},
	}}
	for _, part := range argParts {
		chunks = append(chunks, llm.StreamChunk{
			Delta: llm.Message{
				Role: llm.RoleAssistant,
				ToolCalls: []llm.ToolCall{{
					Index:     0,
					Arguments: json.RawMessage(part),
				}},
			},
		})
	}
	return chunks
}

// ErrorChunk 构造一个携带错误的终止分片。
func ErrorChunk(code llm.ErrorCode, message string) llm.StreamChunk {
	return llm.StreamChunk{Err: &llm.Error{Code: code, Message: message}}
}

// ToolsUnsupportedChunk 构造能力哨兵分片：后端声明不支持工具调用。
func ToolsUnsupportedChunk() llm.StreamChunk {
	return ErrorChunk(llm.ErrToolsUnsupported, "this model does not support tools")
}
