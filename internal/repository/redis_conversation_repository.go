package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chat-relay-go/internal/model"

	"github.com/go-redis/redis/v8"
)

type redisConversationRepository struct {
	redisClient *redis.Client
	keyPrefix   string
	ttl         time.Duration
}

// NewRedisConversationRepository 创建基于 Redis 的 ConversationRepository。
// ttl 为 0 时记录永不过期。
func NewRedisConversationRepository(redisClient *redis.Client, keyPrefix string, ttl time.Duration) ConversationRepository {
	return &redisConversationRepository{redisClient: redisClient, keyPrefix: keyPrefix, ttl: ttl}
}

func (r *redisConversationRepository) key(id string) string {
	return r.keyPrefix + id
}

// Get 从 Redis 获取对话历史记录。
func (r *redisConversationRepository) Get(ctx context.Context, id string) ([]model.Turn, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	data, err := r.redisClient.Get(ctx, r.key(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation history: %w", err)
	}
	return decodeTurns(data)
}

// Put 用单条 SET 覆盖整条记录，SET 本身是原子的。
func (r *redisConversationRepository) Put(ctx context.Context, id string, turns []model.Turn) error {
	if err := validateID(id); err != nil {
		return err
	}
	data, err := encodeTurns(turns)
	if err != nil {
		return err
	}
	if err := r.redisClient.Set(ctx, r.key(id), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set conversation history: %w", err)
	}
	return nil
}

// List 使用 SCAN 而不是 KEYS，避免阻塞 Redis。
func (r *redisConversationRepository) List(ctx context.Context) ([]string, error) {
	ids := []string{}
	iter := r.redisClient.Scan(ctx, 0, r.keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, strings.TrimPrefix(iter.Val(), r.keyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan conversation keys: %w", err)
	}
	return ids, nil
}
