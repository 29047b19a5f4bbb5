package model

import "time"

// ConversationRecord 是 mysql 存储驱动使用的 GORM 模型。
type ConversationRecord struct {
	ID        string    `gorm:"primaryKey;type:varchar(191)" json:"id"`
	Messages  string    `gorm:"type:longtext;not null" json:"messages"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (ConversationRecord) TableName() string {
	return "conversations"
}
