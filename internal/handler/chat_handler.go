package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"chat-relay-go/internal/model"
	"chat-relay-go/internal/relay"
	"chat-relay-go/internal/service"
	"chat-relay-go/pkg/llm"
	"chat-relay-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const wsWriteWait = 10 * time.Second

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // 允许所有来源
		},
	}
)

// wsFrame 是客户端发来的消息：{"messages":[...]} 请求一次回答，{"type":"stop"} 停止当前回答。
type wsFrame struct {
	Type     string       `json:"type,omitempty"`
	Messages []model.Turn `json:"messages,omitempty"`
}

// wsConn 串行化对同一连接的写入。
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsConn) writeJSON(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return w.conn.WriteJSON(v)
}

func (w *wsConn) notify(kind string, extra gin.H) {
	msg := gin.H{"type": kind, "timestamp": time.Now().UnixMilli()}
	for k, v := range extra {
		msg[k] = v
	}
	if err := w.writeJSON(msg); err != nil {
		log.Warnw("failed to send websocket notification", "type", kind, "error", err)
	}
}

// wsSink 把每个增量包装成 {"chunk":"..."} 发送。
type wsSink struct {
	conn *wsConn
}

func (s *wsSink) Write(chunk string) error {
	return s.conn.writeJSON(gin.H{"chunk": chunk})
}

func (s *wsSink) Complete(string) error { return nil }

func (s *wsSink) Fail(error) {}

// activeReply 是连接上正在进行的回答，done 在回答协程退出时关闭。
type activeReply struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// ChatHandler 负责处理 WebSocket 聊天连接。
type ChatHandler struct {
	chatService service.ChatService
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// Handle 处理一个传入的 WebSocket 连接。同一连接上同时只有一个回答在进行。
func (h *ChatHandler) Handle(c *gin.Context) {
	conversationID := c.Query(conversationIDKey)
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgIDRequired})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	log.Infow("websocket connected", conversationIDKey, conversationID)

	ws := &wsConn{conn: conn}
	ctx, cancel := context.WithCancel(c.Request.Context())
	var (
		mu     sync.Mutex
		active *activeReply
		wg     sync.WaitGroup
	)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warnf("从 WebSocket 读取消息失败: %v", err)
			}
			break
		}
		var frame wsFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			ws.notify("error", gin.H{"message": msgInvalidBody})
			continue
		}

		if frame.Type == "stop" {
			mu.Lock()
			current := active
			mu.Unlock()
			if current != nil {
				// 等回答协程退出后再确认，确认之后连接一定处于空闲状态
				current.cancel()
				<-current.done
			}
			ws.notify("stop", gin.H{"message": "reply stopped"})
			continue
		}

		if err := validateTurns(frame.Messages); err != nil {
			ws.notify("error", gin.H{"message": err.Error()})
			continue
		}

		mu.Lock()
		if active != nil {
			mu.Unlock()
			ws.notify("error", gin.H{"message": "a reply is already in progress"})
			continue
		}
		replyCtx, replyCancel := context.WithCancel(ctx)
		current := &activeReply{cancel: replyCancel, done: make(chan struct{})}
		active = current
		mu.Unlock()

		wg.Add(1)
		go func(turns []model.Turn) {
			defer wg.Done()
			defer func() {
				mu.Lock()
				if active == current {
					active = nil
				}
				mu.Unlock()
				replyCancel()
				close(current.done)
			}()
			h.reply(replyCtx, ws, service.ChatRequest{ConversationID: conversationID, Turns: turns, Mode: llm.Streaming})
		}(frame.Messages)
	}

	cancel()
	wg.Wait()
	log.Infow("websocket closed", conversationIDKey, conversationID)
}

func (h *ChatHandler) reply(ctx context.Context, ws *wsConn, req service.ChatRequest) {
	out, err := h.chatService.Chat(ctx, req, &wsSink{conn: ws})
	switch {
	case err != nil:
		log.Errorw("websocket reply failed", conversationIDKey, req.ConversationID, "error", err)
		ws.notify("error", gin.H{"message": msgChatFailed})
	case out.State == relay.Completed:
		ws.notify("completion", gin.H{"status": "finished"})
	case out.State == relay.Failed:
		ws.notify("error", gin.H{"message": msgStreamFailed})
	}
}
