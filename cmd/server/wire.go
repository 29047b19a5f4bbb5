package main

import (
	"context"
	"fmt"

	"chat-relay-go/internal/config"
	"chat-relay-go/internal/model"
	"chat-relay-go/internal/repository"
	"chat-relay-go/pkg/database"
	"chat-relay-go/pkg/llm"
	"chat-relay-go/pkg/log"
	"chat-relay-go/pkg/session"
	"chat-relay-go/pkg/storage"
)

// newConversationRepository 根据 storage.driver 选择存储介质，返回的 close 函数释放连接。
func newConversationRepository(ctx context.Context, cfg config.StorageConfig) (repository.ConversationRepository, func(), error) {
	switch cfg.Driver {
	case "", "file":
		return repository.NewFileConversationRepository(cfg.Dir), func() {}, nil
	case "redis":
		rdb, err := database.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if err := rdb.Close(); err != nil {
				log.Errorf("关闭 Redis 连接失败: %v", err)
			}
		}
		return repository.NewRedisConversationRepository(rdb, cfg.Redis.KeyPrefix, cfg.Redis.TTL), closeFn, nil
	case "minio":
		client, err := storage.NewMinIO(ctx, cfg.MinIO)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewMinioConversationRepository(client, cfg.MinIO.BucketName, cfg.MinIO.Prefix), func() {}, nil
	case "mysql":
		db, err := database.NewMySQL(cfg.MySQL.DSN, &model.ConversationRecord{})
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		return repository.NewMySQLConversationRepository(db), closeFn, nil
	}
	return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}

// newClientFactory 返回构造推理客户端的工厂。凭证刷新后会再次调用以读取新凭证。
func newClientFactory(cfg config.LLMConfig) session.Factory[llm.Client] {
	if cfg.Provider == "openai" {
		return func(ctx context.Context) (llm.Client, error) {
			return llm.NewOpenAIClient(cfg), nil
		}
	}
	return func(ctx context.Context) (llm.Client, error) {
		return llm.NewBedrockClient(ctx, cfg)
	}
}
