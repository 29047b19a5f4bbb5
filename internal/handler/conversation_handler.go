// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"chat-relay-go/internal/model"
	"chat-relay-go/internal/relay"
	"chat-relay-go/internal/service"
	"chat-relay-go/pkg/llm"
	"chat-relay-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// 对外只返回这些固定文案，具体原因写日志。
const (
	msgIDRequired     = "Conversation ID is required"
	msgInvalidBody    = "Invalid request body"
	msgChatFailed     = "Failed to process conversation"
	msgStreamFailed   = "Streaming failed"
	msgListFailed     = "Failed to list conversations"
	conversationIDKey = "conversationId"
)

// conversationRequest 是 POST /conversation 的请求体。
type conversationRequest struct {
	ConversationID string       `json:"conversationId"`
	Messages       []model.Turn `json:"messages"`
	Stream         *bool        `json:"stream,omitempty"`
}

// validateTurns 检查客户端提交的消息列表。
func validateTurns(turns []model.Turn) error {
	if len(turns) == 0 {
		return errors.New("messages must not be empty")
	}
	for i, t := range turns {
		if !t.Role.Valid() {
			return fmt.Errorf("message %d has invalid role %q", i, t.Role)
		}
		if len(t.Content) == 0 {
			return fmt.Errorf("message %d has empty content", i)
		}
	}
	return nil
}

// ConversationHandler 处理对话相关的 HTTP 请求。
type ConversationHandler struct {
	chatService         service.ChatService
	conversationService service.ConversationService
	defaultStream       bool
}

// NewConversationHandler 创建一个新的 ConversationHandler。
// defaultStream 决定请求既没有 stream 字段也没有 Accept 头时的响应方式。
func NewConversationHandler(chatService service.ChatService, conversationService service.ConversationService, defaultStream bool) *ConversationHandler {
	return &ConversationHandler{
		chatService:         chatService,
		conversationService: conversationService,
		defaultStream:       defaultStream,
	}
}

// GetConversation 返回一个对话的全部消息，未知 ID 返回空列表。
func (h *ConversationHandler) GetConversation(c *gin.Context) {
	id := c.Query(conversationIDKey)
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgIDRequired})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": h.conversationService.Load(c.Request.Context(), id)})
}

// PostConversation 把消息列表交给模型，以一次性 JSON 或分块流返回回答。
func (h *ConversationHandler) PostConversation(c *gin.Context) {
	var req conversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnw("malformed conversation request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": msgInvalidBody})
		return
	}
	if req.ConversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgIDRequired})
		return
	}
	if err := validateTurns(req.Messages); err != nil {
		log.Warnw("rejected conversation request", "conversationId", req.ConversationID, "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	chatReq := service.ChatRequest{ConversationID: req.ConversationID, Turns: req.Messages, Mode: llm.Buffered}
	if h.wantsStream(c, req.Stream) {
		chatReq.Mode = llm.Streaming
		h.stream(c, chatReq)
		return
	}
	h.buffered(c, chatReq)
}

func (h *ConversationHandler) wantsStream(c *gin.Context, stream *bool) bool {
	if stream != nil {
		return *stream
	}
	if strings.Contains(c.GetHeader("Accept"), "text/event-stream") {
		return true
	}
	return h.defaultStream
}

func (h *ConversationHandler) buffered(c *gin.Context, req service.ChatRequest) {
	sink := &bufferedSink{}
	out, err := h.chatService.Chat(c.Request.Context(), req, sink)
	if err != nil {
		log.Errorw("conversation request failed", "conversationId", req.ConversationID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgChatFailed})
		return
	}
	switch out.State {
	case relay.Completed:
		c.JSON(http.StatusOK, gin.H{"response": sink.text()})
	case relay.Failed:
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgChatFailed})
	default:
		log.Infow("client left before the reply was ready", "conversationId", req.ConversationID)
	}
}

func (h *ConversationHandler) stream(c *gin.Context, req service.ChatRequest) {
	sink := newChunkedSink(c)
	out, err := h.chatService.Chat(c.Request.Context(), req, sink)
	if err != nil && !sink.started {
		log.Errorw("failed to open reply stream", "conversationId", req.ConversationID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgStreamFailed})
		return
	}
	switch {
	case err != nil:
		// 回答已经发出但没有保存
		log.Errorw("streamed reply was not persisted", "conversationId", req.ConversationID, "error", err)
		sink.finish(streamStatusError)
	case out.State == relay.Completed:
		sink.finish(streamStatusComplete)
	case out.State == relay.Failed:
		sink.finish(streamStatusError)
	}
}

// ListConversations 返回所有对话的 ID 和预览。
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	summaries, err := h.conversationService.ListAll(c.Request.Context())
	if err != nil {
		log.Errorw("failed to list conversations", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgListFailed})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": summaries})
}

// CreateConversation 分配一个新的对话 ID。记录在第一次回答完成后才写入存储。
func (h *ConversationHandler) CreateConversation(c *gin.Context) {
	c.JSON(http.StatusCreated, gin.H{conversationIDKey: h.conversationService.NewID()})
}

// Healthz 用于存活探测。
func Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
