package biz

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"neurocopilot/cmd/conversation-service/internal/domain"
)

const (
	summaryHeader = "=== SUMMARY ==="
	memoryHeader  = "=== LONG-TERM MEMORY ==="

	// minMemoryRunes 不超过这个长度的条目视为噪声
	minMemoryRunes = 3
)

var inlineMemoryPattern = regexp.MustCompile(`(?is)<memory>(.*?)</memory>`)

var memoryTags = []struct {
	prefix string
	kind   domain.MemoryKind
}{
	{"FACT:", domain.MemoryFact},
	{"PREF:", domain.MemoryPreference},
	{"GOAL:", domain.MemoryGoal},
}

// ParseSummaryResponse 宽松解析摘要模型的输出。
// 没有摘要段或摘要段为空时整段输出作为摘要；没有记忆段时不提取条目。
func ParseSummaryResponse(response string) (string, []domain.MemoryItem) {
	response = strings.TrimSpace(response)

	summary := response
	if i := strings.Index(response, summaryHeader); i >= 0 {
		rest := response[i+len(summaryHeader):]
		if j := strings.Index(rest, memoryHeader); j >= 0 {
			rest = rest[:j]
		}
		if s := strings.TrimSpace(rest); s != "" {
			summary = s
		}
	}

	var items []domain.MemoryItem
	if i := strings.Index(response, memoryHeader); i >= 0 {
		items = parseMemoryLines(response[i+len(memoryHeader):])
	}
	return summary, items
}

// ExtractInlineMemory 去掉回答中的 <memory> 块（不区分大小写），返回清理后的文本和块内条目
func ExtractInlineMemory(text string) (string, []domain.MemoryItem) {
	matches := inlineMemoryPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return text, nil
	}

	var items []domain.MemoryItem
	for _, m := range matches {
		items = append(items, parseMemoryLines(m[1])...)
	}
	clean := strings.TrimSpace(inlineMemoryPattern.ReplaceAllString(text, ""))
	return clean, items
}

// parseMemoryLines 识别 FACT:/PREF:/GOAL: 开头的行，其余忽略
func parseMemoryLines(block string) []domain.MemoryItem {
	var items []domain.MemoryItem
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		for _, tag := range memoryTags {
			if len(line) < len(tag.prefix) || !strings.EqualFold(line[:len(tag.prefix)], tag.prefix) {
				continue
			}
			text := strings.TrimSpace(line[len(tag.prefix):])
			if utf8.RuneCountInString(text) > minMemoryRunes {
				items = append(items, domain.MemoryItem{Kind: tag.kind, Text: text})
			}
			break
		}
	}
	return items
}
