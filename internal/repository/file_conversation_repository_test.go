package repository

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"chat-relay-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTurns() []model.Turn {
	return []model.Turn{
		{Role: model.RoleUser, Content: []model.ContentBlock{
			{Type: model.BlockTypeImage, Source: &model.ImageSource{Type: "base64", MediaType: "image/png", Data: "iVBORw0KGgo="}},
			model.NewTextBlock("describe this"),
		}},
		model.NewTextTurn(model.RoleAssistant, "a diagram"),
	}
}

func TestFileRepository_GetUnknownID(t *testing.T) {
	repo := NewFileConversationRepository(filepath.Join(t.TempDir(), "conversations"))

	_, err := repo.Get(context.Background(), "never-written")
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestFileRepository_PutCreatesDirAndRoundTrips(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "conversations")
	repo := NewFileConversationRepository(dir)
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, "abc", sampleTurns()))

	got, err := repo.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, sampleTurns(), got)

	first, err := os.ReadFile(filepath.Join(dir, "abc.json"))
	require.NoError(t, err)

	// 相同内容再次保存，文件字节完全一致
	require.NoError(t, repo.Put(ctx, "abc", got))
	second, err := os.ReadFile(filepath.Join(dir, "abc.json"))
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Contains(t, string(first), "\n  {\n    \"role\": \"user\"")
}

func TestFileRepository_PutLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	repo := NewFileConversationRepository(dir)

	require.NoError(t, repo.Put(context.Background(), "one", sampleTurns()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "one.json", entries[0].Name())
}

func TestFileRepository_PutUnwritableMedium(t *testing.T) {
	// 目标目录路径被一个普通文件占用，MkdirAll 必然失败
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	repo := NewFileConversationRepository(filepath.Join(blocker, "conversations"))

	err := repo.Put(context.Background(), "abc", sampleTurns())
	assert.Error(t, err)
}

func TestFileRepository_InvalidIDs(t *testing.T) {
	repo := NewFileConversationRepository(t.TempDir())
	ctx := context.Background()

	for _, id := range []string{"", ".", "..", "../escape", "a/b", `a\b`} {
		_, err := repo.Get(ctx, id)
		assert.ErrorIs(t, err, ErrInvalidID, "Get(%q)", id)
		assert.ErrorIs(t, repo.Put(ctx, id, sampleTurns()), ErrInvalidID, "Put(%q)", id)
	}
}

func TestFileRepository_CorruptRecord(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0o644))
	repo := NewFileConversationRepository(dir)

	_, err := repo.Get(context.Background(), "bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrConversationNotFound)
}

func TestFileRepository_List(t *testing.T) {
	dir := t.TempDir()
	repo := NewFileConversationRepository(dir)
	ctx := context.Background()

	ids, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, repo.Put(ctx, "b", sampleTurns()))
	require.NoError(t, repo.Put(ctx, "a", nil))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".tmp-123"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.json"), 0o755))

	ids, err = repo.List(ctx)
	require.NoError(t, err)
	sort.Strings(ids)
	assert.Equal(t, []string{"a", "b"}, ids)

	empty, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestFileRepository_ListMissingDir(t *testing.T) {
	repo := NewFileConversationRepository(filepath.Join(t.TempDir(), "absent"))

	ids, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}
