package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"chat-relay-go/internal/model"
)

const conversationFileExt = ".json"

// fileConversationRepository 将每个对话保存为 <dir>/<id>.json。
type fileConversationRepository struct {
	dir string
}

// NewFileConversationRepository 创建基于本地目录的 ConversationRepository。
// 目录会在第一次写入时创建。
func NewFileConversationRepository(dir string) ConversationRepository {
	return &fileConversationRepository{dir: dir}
}

func (r *fileConversationRepository) path(id string) string {
	return filepath.Join(r.dir, id+conversationFileExt)
}

// Get 读取对话文件。
func (r *fileConversationRepository) Get(ctx context.Context, id string) ([]model.Turn, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(r.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation file: %w", err)
	}
	return decodeTurns(data)
}

// Put 原子地替换对话文件。
func (r *fileConversationRepository) Put(ctx context.Context, id string, turns []model.Turn) error {
	if err := validateID(id); err != nil {
		return err
	}
	data, err := encodeTurns(turns)
	if err != nil {
		return err
	}
	return writeFileAtomic(r.path(id), data, 0o644)
}

// List 列出目录下所有 .json 文件对应的 ID。目录不存在时返回空列表。
func (r *fileConversationRepository) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read conversations dir: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, conversationFileExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, conversationFileExt))
	}
	return ids, nil
}

// writeFileAtomic 先写入同目录下的临时文件并 fsync，再 rename 覆盖目标文件。
// 崩溃时磁盘上只会存在旧文件或完整的新文件。
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create conversations dir: %w", err)
	}

	f, err := os.CreateTemp(dir, ".tmp-")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmp := f.Name()
	ok := false
	defer func() {
		if !ok {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmp, perm); err != nil {
		return fmt.Errorf("failed to set file permissions: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	ok = true
	return nil
}
