package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"chat-relay-go/internal/model"
	"chat-relay-go/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationService_LoadUnknownIsEmpty(t *testing.T) {
	repo := newMemRepo()
	refreshes := 0
	svc := NewConversationService(repo, func(context.Context) error { refreshes++; return nil }, 2)

	turns := svc.Load(context.Background(), "nope")

	require.NotNil(t, turns)
	assert.Empty(t, turns)
	assert.Equal(t, 0, refreshes)
	assert.Equal(t, 1, repo.gets)
}

func TestConversationService_LoadInvalidIDSkipsRetry(t *testing.T) {
	repo := newMemRepo()
	repo.getErrs = []error{fmt.Errorf("%w: %q", repository.ErrInvalidID, "../etc")}
	refreshes := 0
	svc := NewConversationService(repo, func(context.Context) error { refreshes++; return nil }, 2)

	assert.Empty(t, svc.Load(context.Background(), "../etc"))
	assert.Equal(t, 0, refreshes)
	assert.Equal(t, 1, repo.gets)
}

func TestConversationService_LoadRetriesOnceAfterRefresh(t *testing.T) {
	repo := newMemRepo()
	repo.records["abc"] = []model.Turn{model.NewTextTurn(model.RoleUser, "hi")}
	repo.getErrs = []error{errExpired}
	refreshes := 0
	svc := NewConversationService(repo, func(context.Context) error { refreshes++; return nil }, 2)

	turns := svc.Load(context.Background(), "abc")

	assert.Equal(t, repo.records["abc"], turns)
	assert.Equal(t, 1, refreshes)
	assert.Equal(t, 2, repo.gets)
}

func TestConversationService_LoadDegradesToEmpty(t *testing.T) {
	repo := newMemRepo()
	repo.records["abc"] = []model.Turn{model.NewTextTurn(model.RoleUser, "hi")}
	repo.getErrs = []error{errExpired, errExpired, errExpired}
	refreshes := 0
	svc := NewConversationService(repo, func(context.Context) error { refreshes++; return nil }, 2)

	turns := svc.Load(context.Background(), "abc")

	require.NotNil(t, turns)
	assert.Empty(t, turns)
	assert.Equal(t, 1, refreshes)
	assert.Equal(t, 2, repo.gets)
}

func TestConversationService_LoadRefreshFailure(t *testing.T) {
	repo := newMemRepo()
	repo.getErrs = []error{errExpired}
	svc := NewConversationService(repo, func(context.Context) error { return errors.New("ada: not logged in") }, 2)

	assert.Empty(t, svc.Load(context.Background(), "abc"))
	assert.Equal(t, 1, repo.gets)
}

func TestConversationService_SaveWrapsFailure(t *testing.T) {
	repo := newMemRepo()
	cause := errors.New("disk full")
	repo.putErr = cause
	svc := NewConversationService(repo, nil, 2)

	err := svc.Save(context.Background(), "abc", []model.Turn{model.NewTextTurn(model.RoleUser, "hi")})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorageWrite)
	assert.ErrorIs(t, err, cause)
	var swe *StorageWriteError
	require.ErrorAs(t, err, &swe)
	assert.Equal(t, "abc", swe.ConversationID)
	// 写入不重试
	assert.Equal(t, 1, repo.puts)
}

func TestConversationService_ListAll(t *testing.T) {
	repo := newMemRepo()
	repo.records["a"] = []model.Turn{model.NewTextTurn(model.RoleUser, "first question")}
	repo.records["b"] = []model.Turn{}
	svc := NewConversationService(repo, nil, 2)

	got, err := svc.ListAll(context.Background())

	require.NoError(t, err)
	assert.ElementsMatch(t, []model.ConversationSummary{
		{ID: "a", Preview: "first question"},
		{ID: "b", Preview: model.EmptyPreviewText},
	}, got)

	repo.listErr = errors.New("bucket gone")
	_, err = svc.ListAll(context.Background())
	assert.Error(t, err)
}

func TestConversationService_NewID(t *testing.T) {
	svc := NewConversationService(newMemRepo(), nil, 2)

	a, b := svc.NewID(), svc.NewID()

	assert.NotEqual(t, a, b)
	_, err := uuid.Parse(a)
	assert.NoError(t, err)
}
