package agent

import "strings"

// sentenceEnders 句子终结符（含中英文标点）。
const sentenceEnders = ".!?。！？…"

// splitSentences 把整段文本按句子边界切分为 TTS 友好的单元。
// 连续的终结符（如 "..." / "?!"）归入前一句；没有终结符的尾巴
// 作为最后一个单元输出。只做浅切分，不做缩写识别。
func splitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var out []string
	var sb strings.Builder
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		sb.WriteRune(runes[i])
		if !strings.ContainsRune(sentenceEnders, runes[i]) {
			continue
		}
		// 吃掉后续连续终结符
		for i+1 < len(runes) && strings.ContainsRune(sentenceEnders, runes[i+1]) {
			i++
			sb.WriteRune(runes[i])
		}
		if s := strings.TrimSpace(sb.String()); s != "" {
			out = append(out, s)
		}
		sb.Reset()
	}
	if s := strings.TrimSpace(sb.String()); s != "" {
		out = append(out, s)
	}
	return out
}
