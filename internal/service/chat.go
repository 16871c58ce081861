package service

import (
	"errors"

	"github.com/asima2006/Soinech-Chat-App/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OnlineCounter 返回某个会话房间当前加入的连接数。
type OnlineCounter interface {
	Online(roomID uint) int
}

// ChatService 管理会话与成员关系，投递核心只读取成员列表。
type ChatService struct {
	db     *gorm.DB
	online OnlineCounter
}

func NewChatService(db *gorm.DB, online OnlineCounter) *ChatService {
	return &ChatService{db: db, online: online}
}

// ChatDTO 是对外输出的会话数据。
type ChatDTO struct {
	ID      uint   `json:"id"`
	Name    string `json:"name"`
	Members []uint `json:"members"`
	Online  int    `json:"online"`
}

// Create 创建会话，创建者与 memberIDs 一并成为成员。
func (s *ChatService) Create(name string, ownerID uint, memberIDs []uint) (*ChatDTO, error) {
	chat := models.Chat{Name: name}
	members := uniqueMembers(ownerID, memberIDs)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&chat).Error; err != nil {
			return err
		}
		rows := make([]models.ChatMember, 0, len(members))
		for _, uid := range members {
			rows = append(rows, models.ChatMember{ChatID: chat.ID, UserID: uid})
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	return &ChatDTO{ID: chat.ID, Name: chat.Name, Members: members, Online: 0}, nil
}

// ListForUser 返回用户所在的会话，附带各会话的在线人数。
func (s *ChatService) ListForUser(userID uint) ([]ChatDTO, error) {
	var chats []models.Chat
	err := s.db.Joins("JOIN chat_members cm ON cm.chat_id = chats.id").
		Where("cm.user_id = ?", userID).
		Order("chats.id desc").
		Find(&chats).Error
	if err != nil {
		return nil, err
	}
	out := make([]ChatDTO, 0, len(chats))
	for _, c := range chats {
		var members []uint
		if err := s.db.Model(&models.ChatMember{}).Where("chat_id = ?", c.ID).Order("user_id").Pluck("user_id", &members).Error; err != nil {
			return nil, err
		}
		out = append(out, ChatDTO{ID: c.ID, Name: c.Name, Members: members, Online: s.online.Online(c.ID)})
	}
	return out, nil
}

// AddMember 由已有成员把 userID 加入会话，重复加入视为成功。
func (s *ChatService) AddMember(chatID, actorID, userID uint) error {
	if err := s.RequireMember(chatID, actorID); err != nil {
		return err
	}
	row := models.ChatMember{ChatID: chatID, UserID: userID}
	return s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
}

// RequireMember 检查会话存在且 userID 是其成员。
func (s *ChatService) RequireMember(chatID, userID uint) error {
	var chat models.Chat
	if err := s.db.First(&chat, chatID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrChatNotFound
		}
		return err
	}
	var count int64
	if err := s.db.Model(&models.ChatMember{}).Where("chat_id = ? AND user_id = ?", chatID, userID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrNotMember
	}
	return nil
}

func uniqueMembers(ownerID uint, ids []uint) []uint {
	seen := map[uint]struct{}{ownerID: {}}
	out := []uint{ownerID}
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
