package service

import (
	"context"

	"github.com/asima2006/Soinech-Chat-App/internal/models"
	"github.com/asima2006/Soinech-Chat-App/internal/store"
)

// MessageService 提供非实时的历史消息查询，不经过投递路由，也不修改投递标记。
type MessageService struct {
	store store.Gateway
	chats *ChatService
	limit int
}

func NewMessageService(gw store.Gateway, chats *ChatService, limit int) *MessageService {
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	return &MessageService{store: gw, chats: chats, limit: limit}
}

// History 返回会话最近的消息，按创建时间升序。
func (s *MessageService) History(ctx context.Context, chatID, userID uint) ([]models.Message, error) {
	if err := s.chats.RequireMember(chatID, userID); err != nil {
		return nil, err
	}
	msgs, err := s.store.FetchHistory(ctx, chatID, s.limit)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	return msgs, nil
}
