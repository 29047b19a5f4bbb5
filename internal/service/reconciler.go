package service

import "chat-relay-go/internal/model"

// Collapse 从左到右合并连续的同角色消息，合并后的内容按原顺序拼接所有内容块。
// 不会丢弃或重排任何内容块，也不修改入参。对已合并的序列再次调用不会有变化。
func Collapse(turns []model.Turn) []model.Turn {
	out := make([]model.Turn, 0, len(turns))
	for _, t := range turns {
		if n := len(out); n > 0 && out[n-1].Role == t.Role {
			out[n-1].Content = append(out[n-1].Content, t.Content...)
			continue
		}
		content := make([]model.ContentBlock, len(t.Content))
		copy(content, t.Content)
		out = append(out, model.Turn{Role: t.Role, Content: content})
	}
	return out
}

// Reconcile 合并相邻同角色消息后，追加一条包含最终回答的 assistant 消息。
func Reconcile(prior []model.Turn, finalText string) []model.Turn {
	return append(Collapse(prior), model.NewTextTurn(model.RoleAssistant, finalText))
}
