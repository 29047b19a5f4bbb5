// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"

	"chat-relay-go/internal/model"
	"chat-relay-go/internal/repository"
	"chat-relay-go/pkg/log"
	"chat-relay-go/pkg/session"

	"github.com/google/uuid"
)

// ErrStorageWrite 表示对话记录未能写入存储。
var ErrStorageWrite = errors.New("conversation storage write failed")

// StorageWriteError 记录写入失败的对话 ID 和底层原因。
type StorageWriteError struct {
	ConversationID string
	Err            error
}

func (e *StorageWriteError) Error() string {
	return fmt.Sprintf("failed to save conversation %q: %v", e.ConversationID, e.Err)
}

func (e *StorageWriteError) Unwrap() error { return e.Err }

// Is 让 errors.Is(err, ErrStorageWrite) 对所有写入失败成立。
func (e *StorageWriteError) Is(target error) bool { return target == ErrStorageWrite }

// ConversationService 定义了对话记录的业务接口。
type ConversationService interface {
	// Load 永远返回一个列表：未知 ID 或读取失败时返回空列表。
	Load(ctx context.Context, id string) []model.Turn
	// Save 整体替换该对话的记录。
	Save(ctx context.Context, id string, turns []model.Turn) error
	// ListAll 返回所有对话及其预览文本。
	ListAll(ctx context.Context) ([]model.ConversationSummary, error)
	// NewID 生成一个新的对话 ID。
	NewID() string
}

type conversationService struct {
	repo        repository.ConversationRepository
	onRetry     func(ctx context.Context) error
	maxAttempts int
}

// NewConversationService 创建一个新的 ConversationService。
// onRetry 在读取失败后、重试前调用，一般是凭证刷新；为 nil 时直接重试。
func NewConversationService(repo repository.ConversationRepository, onRetry func(ctx context.Context) error, maxAttempts int) ConversationService {
	return &conversationService{repo: repo, onRetry: onRetry, maxAttempts: maxAttempts}
}

func (s *conversationService) Load(ctx context.Context, id string) []model.Turn {
	turns, err := session.WithRetry(ctx, s.maxAttempts, func(ctx context.Context) ([]model.Turn, error) {
		turns, err := s.repo.Get(ctx, id)
		switch {
		case errors.Is(err, repository.ErrConversationNotFound):
			return []model.Turn{}, nil
		case errors.Is(err, repository.ErrInvalidID):
			// 非法 ID 不可能存在对应记录，重试没有意义
			log.Warnw("rejected conversation id on read", "conversationId", id)
			return []model.Turn{}, nil
		}
		return turns, err
	}, s.onRetry)
	if err != nil {
		log.Errorw("failed to load conversation, returning empty history", "conversationId", id, "error", err)
		return []model.Turn{}
	}
	if turns == nil {
		return []model.Turn{}
	}
	return turns
}

func (s *conversationService) Save(ctx context.Context, id string, turns []model.Turn) error {
	if err := s.repo.Put(ctx, id, turns); err != nil {
		return &StorageWriteError{ConversationID: id, Err: err}
	}
	log.Infow("conversation saved", "conversationId", id, "turns", len(turns))
	return nil
}

func (s *conversationService) ListAll(ctx context.Context) ([]model.ConversationSummary, error) {
	ids, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	summaries := make([]model.ConversationSummary, 0, len(ids))
	for _, id := range ids {
		summaries = append(summaries, model.ConversationSummary{
			ID:      id,
			Preview: model.Preview(s.Load(ctx, id)),
		})
	}
	return summaries, nil
}

func (s *conversationService) NewID() string {
	return uuid.NewString()
}
