package model

import "time"

// ConversationEvent 在一次回答成功持久化后发布。
type ConversationEvent struct {
	ConversationID string    `json:"conversationId"`
	Turns          int       `json:"turns"`
	Preview        string    `json:"preview"`
	Chunks         int       `json:"chunks"`
	UpdatedAt      time.Time `json:"updatedAt"`
}
