package biz

import (
	_ "embed"
	"strings"

	"neurocopilot/cmd/conversation-service/internal/domain"
)

const (
	memoryBlockStart = "=== USER MEMORY ==="
	memoryBlockEnd   = "=== END MEMORY ==="
)

//go:embed prompts/persona.txt
var defaultPersona string

// PromptConfig 系统提示词配置
type PromptConfig struct {
	// Persona 基础人设，为空时使用内置版本
	Persona string `mapstructure:"persona"`
}

// PromptBuilder 组装每次生成请求附带的系统提示词
type PromptBuilder struct {
	persona string
}

// NewPromptBuilder 创建提示词构建器
func NewPromptBuilder(c *PromptConfig) *PromptBuilder {
	persona := strings.TrimSpace(c.Persona)
	if persona == "" {
		persona = strings.TrimSpace(defaultPersona)
	}
	return &PromptBuilder{persona: persona}
}

// Build 人设 + 用户背景 + 分组记忆。没有背景和记忆时只返回人设。
func (b *PromptBuilder) Build(insights string, mem *domain.Memory) string {
	var sections []string
	if s := strings.TrimSpace(insights); s != "" {
		sections = append(sections, "User context:\n"+s)
	}
	if mem != nil {
		sections = appendBullets(sections, "Known facts:", mem.Facts)
		sections = appendBullets(sections, "Preferences:", mem.Preferences)
		sections = appendBullets(sections, "Goals:", mem.Goals)
	}
	if len(sections) == 0 {
		return b.persona
	}

	var sb strings.Builder
	sb.WriteString(b.persona)
	sb.WriteString("\n\n")
	sb.WriteString(memoryBlockStart)
	sb.WriteByte('\n')
	sb.WriteString(strings.Join(sections, "\n\n"))
	sb.WriteByte('\n')
	sb.WriteString(memoryBlockEnd)
	return sb.String()
}

func appendBullets(sections []string, title string, items []string) []string {
	if len(items) == 0 {
		return sections
	}
	return append(sections, title+"\n• "+strings.Join(items, "\n• "))
}
