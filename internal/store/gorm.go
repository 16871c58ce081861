package store

import (
	"context"
	"time"

	"github.com/asima2006/Soinech-Chat-App/internal/models"

	"gorm.io/gorm"
)

// GormStore 基于 gorm 实现 Gateway；timeout 为正时每次调用都有超时。
type GormStore struct {
	db      *gorm.DB
	timeout time.Duration
}

func NewGormStore(db *gorm.DB, timeout time.Duration) *GormStore {
	return &GormStore{db: db, timeout: timeout}
}

func (s *GormStore) conn(ctx context.Context) (*gorm.DB, context.CancelFunc) {
	if s.timeout <= 0 {
		return s.db.WithContext(ctx), func() {}
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	return s.db.WithContext(ctx), cancel
}

func (s *GormStore) Create(ctx context.Context, chatID, senderID uint, body string) (*models.Message, error) {
	db, cancel := s.conn(ctx)
	defer cancel()
	msg := models.Message{ChatID: chatID, SenderID: senderID, Body: body}
	if err := db.Create(&msg).Error; err != nil {
		return nil, unavailable(OpCreate, err)
	}
	return &msg, nil
}

func (s *GormStore) MarkDelivered(ctx context.Context, messageID uint) error {
	db, cancel := s.conn(ctx)
	defer cancel()
	if err := db.Model(&models.Message{}).Where("id = ?", messageID).Update("delivered", true).Error; err != nil {
		return unavailable(OpMarkDelivered, err)
	}
	return nil
}

func (s *GormStore) MarkDeliveredBatch(ctx context.Context, messageIDs []uint) error {
	if len(messageIDs) == 0 {
		return nil
	}
	db, cancel := s.conn(ctx)
	defer cancel()
	if err := db.Model(&models.Message{}).Where("id IN ?", messageIDs).Update("delivered", true).Error; err != nil {
		return unavailable(OpMarkDeliveredBatch, err)
	}
	return nil
}

func (s *GormStore) MarkRead(ctx context.Context, messageID uint) error {
	db, cancel := s.conn(ctx)
	defer cancel()
	if err := db.Model(&models.Message{}).Where("id = ?", messageID).Update("read", true).Error; err != nil {
		return unavailable(OpMarkRead, err)
	}
	return nil
}

func (s *GormStore) FetchHistory(ctx context.Context, chatID uint, limit int) ([]models.Message, error) {
	db, cancel := s.conn(ctx)
	defer cancel()
	q := db.Where("chat_id = ?", chatID).Order("created_at desc").Order("id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var msgs []models.Message
	err := q.Find(&msgs).Error
	if err != nil {
		return nil, unavailable(OpFetchHistory, err)
	}
	// 反转为升序
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *GormStore) FetchUndeliveredFor(ctx context.Context, userID uint) ([]models.Message, error) {
	db, cancel := s.conn(ctx)
	defer cancel()
	var msgs []models.Message
	err := db.Model(&models.Message{}).
		Select("messages.*").
		Joins("JOIN chat_members cm ON cm.chat_id = messages.chat_id").
		Where("cm.user_id = ? AND messages.sender_id <> ? AND messages.delivered = ?", userID, userID, false).
		Order("messages.created_at asc").Order("messages.id asc").
		Find(&msgs).Error
	if err != nil {
		return nil, unavailable(OpFetchUndeliveredFor, err)
	}
	return msgs, nil
}

func (s *GormStore) ChatMembers(ctx context.Context, chatID, exclude uint) ([]uint, error) {
	db, cancel := s.conn(ctx)
	defer cancel()
	var ids []uint
	err := db.Model(&models.ChatMember{}).
		Where("chat_id = ? AND user_id <> ?", chatID, exclude).
		Order("user_id").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, unavailable(OpChatMembers, err)
	}
	return ids, nil
}
