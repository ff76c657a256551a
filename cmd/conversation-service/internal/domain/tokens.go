package domain

import (
	"math"
	"strings"
	"unicode/utf8"
)

// CharsPerToken 字符/token 比例，按俄文为主的混合文本校准
const CharsPerToken = 3.5

// EstimateTokens 按字符数估算 token 数
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return int(math.Ceil(float64(n) / CharsPerToken))
}

// EstimateMessages 估算消息内容以空格拼接后的 token 数
func EstimateMessages(messages []*Message) int {
	return EstimateTokens(JoinContents(messages))
}

// JoinContents 以空格拼接消息内容
func JoinContents(messages []*Message) string {
	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(m.Content)
	}
	return b.String()
}
