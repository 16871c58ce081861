package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/asima2006/Soinech-Chat-App/internal/auth"
	"github.com/asima2006/Soinech-Chat-App/internal/service"
	"github.com/asima2006/Soinech-Chat-App/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Handler 聚合所有 HTTP handler，依赖注入 service 层。
type Handler struct {
	userSvc *service.UserService
	chatSvc *service.ChatService
	msgSvc  *service.MessageService
}

func NewHandler(userSvc *service.UserService, chatSvc *service.ChatService, msgSvc *service.MessageService) *Handler {
	return &Handler{userSvc: userSvc, chatSvc: chatSvc, msgSvc: msgSvc}
}

type credentials struct {
	Username string `json:"username" binding:"required,min=2,max=64"`
	Password string `json:"password" binding:"required,min=4,max=128"`
}

// Register 处理用户注册请求。
func (h *Handler) Register(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	result, err := h.userSvc.Register(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrUsernameTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "username taken"})
			return
		}
		log.Error().Err(err).Str("username", req.Username).Msg("register")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": result.ID, "username": result.Username})
}

// Login 处理用户登录请求，返回 WebSocket 鉴权使用的 token。
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	result, err := h.userSvc.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		log.Error().Err(err).Str("username", req.Username).Msg("login")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token": result.Token,
		"user":  gin.H{"id": result.User.ID, "username": result.User.Username},
	})
}

// CreateChat 创建会话，调用者自动成为成员。
func (h *Handler) CreateChat(c *gin.Context) {
	var req struct {
		Name      string `json:"name" binding:"required,max=128"`
		MemberIDs []uint `json:"memberIds"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	chat, err := h.chatSvc.Create(req.Name, auth.GetUserID(c), req.MemberIDs)
	if err != nil {
		log.Error().Err(err).Uint("owner_id", auth.GetUserID(c)).Str("name", req.Name).Msg("create chat")
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to create chat"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat": chat})
}

// ListChats 返回调用者所在的会话列表。
func (h *Handler) ListChats(c *gin.Context) {
	chats, err := h.chatSvc.ListForUser(auth.GetUserID(c))
	if err != nil {
		log.Error().Err(err).Msg("list chats")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list chats"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// AddMember 把用户加入会话。
func (h *Handler) AddMember(c *gin.Context) {
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}
	var req struct {
		UserID uint `json:"userId" binding:"required,gt=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if err := h.chatSvc.AddMember(chatID, auth.GetUserID(c), req.UserID); err != nil {
		if writeChatError(c, err) {
			return
		}
		log.Error().Err(err).Uint("chat_id", chatID).Uint("user_id", req.UserID).Msg("add member")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to add member"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"chatId": chatID, "userId": req.UserID})
}

// ListMessages 返回会话最近的历史消息（按时间升序，最多 200 条）。
func (h *Handler) ListMessages(c *gin.Context) {
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}
	msgs, err := h.msgSvc.History(c.Request.Context(), chatID, auth.GetUserID(c))
	if err != nil {
		if writeChatError(c, err) {
			return
		}
		if errors.Is(err, store.ErrStoreUnavailable) {
			log.Error().Err(err).Uint("chat_id", chatID).Msg("list messages")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
			return
		}
		log.Error().Err(err).Uint("chat_id", chatID).Msg("list messages")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func chatIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return 0, false
	}
	return uint(id), true
}

func writeChatError(c *gin.Context, err error) bool {
	switch {
	case errors.Is(err, service.ErrChatNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
	case errors.Is(err, service.ErrNotMember):
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member"})
	default:
		return false
	}
	return true
}
