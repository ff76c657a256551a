package domain

import "time"

// Message 消息实体，按 Timestamp 排序构成一个主体的对话日志
type Message struct {
	ID        int64       `json:"-"` // 存储行号，同一时间戳内的次序
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Timestamp int64       `json:"timestamp"` // 毫秒时间戳
}

// MessageRole 消息角色
type MessageRole string

const (
	RoleUser  MessageRole = "user"  // 用户
	RoleModel MessageRole = "model" // 模型
)

// Valid 检查角色是否合法
func (r MessageRole) Valid() bool {
	return r == RoleUser || r == RoleModel
}

// NewMessage 创建消息
func NewMessage(role MessageRole, content string, timestamp int64) *Message {
	return &Message{
		Role:      role,
		Content:   content,
		Timestamp: timestamp,
	}
}

// Time 返回消息时间
func (m *Message) Time() time.Time {
	return time.UnixMilli(m.Timestamp)
}

// Citation 检索引用
type Citation struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Generation 一次模型生成的结果
type Generation struct {
	Text      string
	Citations []Citation
}

// GenerateOptions 单次生成的选项
type GenerateOptions struct {
	ForceExternalLookup bool    // 要求模型必须使用检索
	DisableTools        bool    // 不挂载检索工具
	Temperature         float64 // 0 表示使用默认值
	MaxOutputTokens     int     // 0 表示使用默认值
	RequestTag          string  // 上游请求 ID 前缀
}
