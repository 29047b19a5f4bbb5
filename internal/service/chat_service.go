package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chat-relay-go/internal/model"
	"chat-relay-go/internal/relay"
	"chat-relay-go/pkg/llm"
	"chat-relay-go/pkg/log"
	"chat-relay-go/pkg/session"
)

// saveTimeout 限制回答完成后持久化的耗时，持久化不跟随请求上下文取消。
const saveTimeout = 30 * time.Second

// EventPublisher 发布对话更新事件。
type EventPublisher interface {
	Publish(ctx context.Context, event model.ConversationEvent) error
}

// NopPublisher 丢弃所有事件。
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, model.ConversationEvent) error { return nil }

// ChatRequest 是一次对话请求。Turns 为客户端提交的完整消息列表，按值传递。
type ChatRequest struct {
	ConversationID string
	Turns          []model.Turn
	Mode           llm.Mode
}

// ChatService 定义了聊天操作的接口。
type ChatService interface {
	// Chat 调用推理后端并把回答写入 sink。只有完整的回答会被持久化。
	// 返回的错误表示打开推理调用失败（此时 sink 未被写入）或持久化失败。
	Chat(ctx context.Context, req ChatRequest, sink relay.Sink) (relay.Outcome, error)
}

type chatService struct {
	guard         *session.Guard[llm.Client]
	invoker       *llm.Invoker
	relay         *relay.Relay
	conversations ConversationService
	events        EventPublisher
	timeout       time.Duration
}

// NewChatService 创建一个新的 ChatService 实例。timeout 为 0 时不限制单次调用时长。
func NewChatService(guard *session.Guard[llm.Client], invoker *llm.Invoker, conversations ConversationService, events EventPublisher, timeout time.Duration) ChatService {
	if events == nil {
		events = NopPublisher{}
	}
	return &chatService{
		guard:         guard,
		invoker:       invoker,
		relay:         relay.New(),
		conversations: conversations,
		events:        events,
		timeout:       timeout,
	}
}

func (s *chatService) Chat(ctx context.Context, req ChatRequest, sink relay.Sink) (relay.Outcome, error) {
	turns := cloneTurns(req.Turns)

	var (
		callCtx context.Context
		cancel  context.CancelFunc
	)
	if s.timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
	} else {
		callCtx, cancel = context.WithCancel(ctx)
	}
	// 结束时取消，让流式生产者停止读取后端
	defer cancel()

	// 1. 打开推理调用，失败时刷新凭证后重试一次
	resp, err := session.Run(callCtx, s.guard, func(ctx context.Context, client llm.Client) (*llm.Response, error) {
		return s.invoker.Invoke(ctx, client, turns, req.Mode)
	})
	if err != nil {
		if ctx.Err() != nil {
			log.Infow("client went away before the reply started", "conversationId", req.ConversationID)
			return relay.Outcome{State: relay.Cancelled}, nil
		}
		return relay.Outcome{State: relay.Failed, Err: err}, fmt.Errorf("failed to invoke model: %w", err)
	}

	// 2. 转发增量
	out := s.relay.Run(callCtx, req.ConversationID, resp.Deltas(), sink)
	if out.State == relay.Cancelled && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		// 客户端仍在，是后端超时
		out.State = relay.Failed
		out.Err = fmt.Errorf("%w: reply exceeded %s", relay.ErrStreamFailure, s.timeout)
		sink.Fail(out.Err)
	}
	if out.State != relay.Completed {
		return out, nil
	}

	// 3. 合并同角色消息并追加回答，整体保存
	updated := Reconcile(turns, out.Text)
	saveCtx, saveCancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer saveCancel()
	if err := s.conversations.Save(saveCtx, req.ConversationID, updated); err != nil {
		log.Errorw("failed to persist completed reply", "conversationId", req.ConversationID, "error", err)
		return out, err
	}

	event := model.ConversationEvent{
		ConversationID: req.ConversationID,
		Turns:          len(updated),
		Preview:        model.Preview(updated),
		Chunks:         out.Chunks,
		UpdatedAt:      time.Now(),
	}
	if err := s.events.Publish(saveCtx, event); err != nil && !errors.Is(err, context.Canceled) {
		log.Warnw("failed to publish conversation event", "conversationId", req.ConversationID, "error", err)
	}
	return out, nil
}

func cloneTurns(turns []model.Turn) []model.Turn {
	out := make([]model.Turn, len(turns))
	for i, t := range turns {
		content := make([]model.ContentBlock, len(t.Content))
		copy(content, t.Content)
		out[i] = model.Turn{Role: t.Role, Content: content}
	}
	return out
}
