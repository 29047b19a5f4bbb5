// Package model 包含了应用的数据模型定义。
package model

import "strings"

// Role 表示一条消息的发送方。
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid 判断角色是否为 user、assistant 或 system。
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

const (
	BlockTypeText  = "text"
	BlockTypeImage = "image"
)

// ImageSource 是 image 内容块的编码数据，Data 为 base64 字符串，原样透传。
type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// ContentBlock 是一条消息中的一个内容单元：text 或 image。
// 解码是宽松的：未知字段会被忽略，未知 type 的块原样保留。
type ContentBlock struct {
	Type   string       `json:"type"`
	Text   *string      `json:"text,omitempty"`
	Source *ImageSource `json:"source,omitempty"`
}

// NewTextBlock 构造一个 text 内容块。
func NewTextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockTypeText, Text: &text}
}

// HasText 报告该块是否携带 text 字段。
func (b ContentBlock) HasText() bool {
	return b.Text != nil
}

// IsImage 报告该块是否为带有数据源的图片。
func (b ContentBlock) IsImage() bool {
	return b.Source != nil && (b.Type == BlockTypeImage || b.Type == "")
}

// Turn 代表对话中的一条消息。存储中的 Turn 的 Content 总是非空。
type Turn struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

// NewTextTurn 构造一条只有单个 text 块的消息。
func NewTextTurn(role Role, text string) Turn {
	return Turn{Role: role, Content: []ContentBlock{NewTextBlock(text)}}
}

// ConversationSummary 用于历史列表展示。
type ConversationSummary struct {
	ID      string `json:"id"`
	Preview string `json:"preview"`
}

const (
	previewMaxRunes  = 100
	previewEllipsis  = "..."
	EmptyPreviewText = "Empty conversation"
)

// Preview 取第一条消息中的第一个 text 块作为预览，超过 100 个字符时截断。
func Preview(turns []Turn) string {
	if len(turns) == 0 {
		return EmptyPreviewText
	}
	for _, block := range turns[0].Content {
		if !block.HasText() {
			continue
		}
		text := strings.ReplaceAll(*block.Text, "\r", "")
		text = strings.ReplaceAll(text, "\n", " ")
		runes := []rune(text)
		if len(runes) > previewMaxRunes {
			return string(runes[:previewMaxRunes-len(previewEllipsis)]) + previewEllipsis
		}
		return text
	}
	return EmptyPreviewText
}
