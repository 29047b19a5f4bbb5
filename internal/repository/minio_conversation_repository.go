package repository

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"chat-relay-go/internal/model"

	"github.com/minio/minio-go/v7"
)

type minioConversationRepository struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinioConversationRepository 创建基于 MinIO 对象存储的 ConversationRepository。
// 每个对话对应对象 <prefix><id>.json，存储桶需事先存在。
func NewMinioConversationRepository(client *minio.Client, bucket, prefix string) ConversationRepository {
	return &minioConversationRepository{client: client, bucket: bucket, prefix: prefix}
}

func (r *minioConversationRepository) objectName(id string) string {
	return r.prefix + id + conversationFileExt
}

// Get 下载对话对象。对象不存在时 MinIO 在读取时才返回 NoSuchKey。
func (r *minioConversationRepository) Get(ctx context.Context, id string) ([]model.Turn, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	obj, err := r.client.GetObject(ctx, r.bucket, r.objectName(id), minio.GetObjectOptions{})
	if err != nil {
		return nil, r.translate(err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, r.translate(err)
	}
	return decodeTurns(data)
}

func (r *minioConversationRepository) translate(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return ErrConversationNotFound
	}
	return fmt.Errorf("failed to get conversation object: %w", err)
}

// Put 以单次 PutObject 上传，对象在上传完成前对读者不可见。
func (r *minioConversationRepository) Put(ctx context.Context, id string, turns []model.Turn) error {
	if err := validateID(id); err != nil {
		return err
	}
	data, err := encodeTurns(turns)
	if err != nil {
		return err
	}
	_, err = r.client.PutObject(ctx, r.bucket, r.objectName(id), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("failed to put conversation object: %w", err)
	}
	return nil
}

// List 遍历 prefix 下的所有 .json 对象。
func (r *minioConversationRepository) List(ctx context.Context) ([]string, error) {
	ids := []string{}
	for obj := range r.client.ListObjects(ctx, r.bucket, minio.ListObjectsOptions{Prefix: r.prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list conversation objects: %w", obj.Err)
		}
		name := strings.TrimPrefix(obj.Key, r.prefix)
		if !strings.HasSuffix(name, conversationFileExt) || strings.Contains(name, "/") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, conversationFileExt))
	}
	return ids, nil
}
