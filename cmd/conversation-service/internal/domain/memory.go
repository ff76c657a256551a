package domain

import "strings"

// MemoryKind 长期记忆类型
type MemoryKind string

const (
	MemoryFact       MemoryKind = "fact"       // 事实
	MemoryPreference MemoryKind = "preference" // 偏好
	MemoryGoal       MemoryKind = "goal"       // 目标
)

// ParseMemoryKind 解析记忆类型，接受完整名称和行前缀标签
func ParseMemoryKind(s string) (MemoryKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fact":
		return MemoryFact, true
	case "preference", "pref":
		return MemoryPreference, true
	case "goal":
		return MemoryGoal, true
	}
	return "", false
}

// MemoryItem 结构化记忆条目，按 (subject, kind, text) 唯一
type MemoryItem struct {
	Kind MemoryKind
	Text string
}

// Memory 按类型分组的长期记忆
type Memory struct {
	Facts       []string `json:"facts"`
	Preferences []string `json:"preferences"`
	Goals       []string `json:"goals"`
}

// Add 追加条目到对应分组
func (m *Memory) Add(kind MemoryKind, text string) {
	switch kind {
	case MemoryFact:
		m.Facts = append(m.Facts, text)
	case MemoryPreference:
		m.Preferences = append(m.Preferences, text)
	case MemoryGoal:
		m.Goals = append(m.Goals, text)
	}
}

// Items 展开为条目列表，顺序为事实、偏好、目标
func (m *Memory) Items() []MemoryItem {
	if m == nil {
		return nil
	}
	items := make([]MemoryItem, 0, m.Len())
	for _, t := range m.Facts {
		items = append(items, MemoryItem{Kind: MemoryFact, Text: t})
	}
	for _, t := range m.Preferences {
		items = append(items, MemoryItem{Kind: MemoryPreference, Text: t})
	}
	for _, t := range m.Goals {
		items = append(items, MemoryItem{Kind: MemoryGoal, Text: t})
	}
	return items
}

// Len 条目总数
func (m *Memory) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Facts) + len(m.Preferences) + len(m.Goals)
}

// IsEmpty 是否为空
func (m *Memory) IsEmpty() bool {
	return m.Len() == 0
}
