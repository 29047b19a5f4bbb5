// Package repository 提供了对话记录在各类存储介质上的持久化实现。
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"chat-relay-go/internal/model"
)

var (
	// ErrConversationNotFound 表示存储中不存在该对话。只在读路径内部使用。
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrInvalidID 表示对话 ID 不能安全地用作存储键。
	ErrInvalidID = errors.New("invalid conversation id")
)

// ConversationRepository 定义了对话记录的存取接口：一个 ID 对应一条 JSON 记录。
type ConversationRepository interface {
	// Get 返回完整的消息列表，不存在时返回 ErrConversationNotFound。
	Get(ctx context.Context, id string) ([]model.Turn, error)
	// Put 整体替换该 ID 的记录，读者不会看到写了一半的记录。
	Put(ctx context.Context, id string, turns []model.Turn) error
	// List 返回所有已存储的对话 ID，顺序不做保证。
	List(ctx context.Context) ([]string, error)
}

// validateID 只检查 ID 能否安全地作为键或文件名使用，不解析其格式。
func validateID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, "/\\\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// encodeTurns 以带缩进的 JSON 数组编码，便于人工查看。
func encodeTurns(turns []model.Turn) ([]byte, error) {
	if turns == nil {
		turns = []model.Turn{}
	}
	data, err := json.MarshalIndent(turns, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal conversation: %w", err)
	}
	return data, nil
}

func decodeTurns(data []byte) ([]model.Turn, error) {
	var turns []model.Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation: %w", err)
	}
	if turns == nil {
		turns = []model.Turn{}
	}
	return turns, nil
}
