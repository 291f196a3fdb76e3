package conversation

import (
	"regexp"
	"strings"
)

var (
	bracketRe    = regexp.MustCompile(`(?s)\s*\[.*?\]\s*`)
	punctSpaceRe = regexp.MustCompile(`([^\s,.!?;:])([,.!?;:])([^\s,.!?;:])`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Normalize 对聚合后的回复做 TTS/持久化前的清洗：
//
//  1. 去除方括号动作标注（[wave] 之类，标注内容可跨行），连同两侧
//     空白替换为单个空格；
//  2. 标点（, . ! ? ; :）前为普通字符、后紧跟非空白非标点字符时补
//     一个空格，连续标点（"..." / "?!"）保持原样。替换反复应用到
//     不动点，"a.b.c" 这类相邻边界才能全部补齐；
//  3. 连续空白折叠为单个空格，并去掉首尾空白。
//
// 纯函数、无副作用，且幂等：Normalize(Normalize(x)) == Normalize(x)。
func Normalize(text string) string {
	text = bracketRe.ReplaceAllString(text, " ")
	for {
		next := punctSpaceRe.ReplaceAllString(text, "$1$2 $3")
		if next == text {
			break
		}
		text = next
	}
	text = whitespaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
