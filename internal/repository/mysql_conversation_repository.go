package repository

import (
	"context"
	"errors"
	"fmt"

	"chat-relay-go/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type mysqlConversationRepository struct {
	db *gorm.DB
}

// NewMySQLConversationRepository 创建基于 GORM 的 ConversationRepository，
// 每个对话是 conversations 表中的一行，messages 列保存 JSON 数组。
func NewMySQLConversationRepository(db *gorm.DB) ConversationRepository {
	return &mysqlConversationRepository{db: db}
}

// Get 根据主键查询。
func (r *mysqlConversationRepository) Get(ctx context.Context, id string) ([]model.Turn, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	var record model.ConversationRecord
	err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation: %w", err)
	}
	return decodeTurns([]byte(record.Messages))
}

// Put 使用 upsert 在一条语句内完成替换。
func (r *mysqlConversationRepository) Put(ctx context.Context, id string, turns []model.Turn) error {
	if err := validateID(id); err != nil {
		return err
	}
	data, err := encodeTurns(turns)
	if err != nil {
		return err
	}
	record := model.ConversationRecord{ID: id, Messages: string(data)}
	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"messages", "updated_at"}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("failed to upsert conversation: %w", err)
	}
	return nil
}

// List 只取主键列。
func (r *mysqlConversationRepository) List(ctx context.Context) ([]string, error) {
	ids := []string{}
	if err := r.db.WithContext(ctx).Model(&model.ConversationRecord{}).Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return ids, nil
}
