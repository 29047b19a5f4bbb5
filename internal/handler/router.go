package handler

import (
	"chat-relay-go/internal/middleware"

	"github.com/gin-gonic/gin"
)

// NewRouter 创建路由引擎并注册所有路由。
func NewRouter(conversations *ConversationHandler, chat *ChatHandler) *gin.Engine {
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())

	r.GET("/healthz", Healthz)

	r.GET("/conversation", conversations.GetConversation)
	r.POST("/conversation", conversations.PostConversation)
	r.GET("/conversation/ws", chat.Handle)

	r.GET("/conversations", conversations.ListConversations)
	r.POST("/conversations", conversations.CreateConversation)
	return r
}
