package models

import "time"

type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"uniqueIndex;size:64;not null" json:"username"`
	PasswordHash string    `gorm:"not null" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type Chat struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:128;not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatMember 记录用户与会话的成员关系，由外部管理，核心只读。
type ChatMember struct {
	ChatID    uint `gorm:"primaryKey;autoIncrement:false"`
	UserID    uint `gorm:"primaryKey;autoIncrement:false;index"`
	CreatedAt time.Time
}

// Message 的 Delivered 与 Read 是两个独立标记，Read 不隐含 Delivered。
// Delivered 是整条消息的标记，而非按接收者记录。
type Message struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ChatID    uint      `gorm:"index:idx_msg_chat_created,priority:1;not null" json:"chat_id"`
	SenderID  uint      `gorm:"index;not null" json:"sender_id"`
	Body      string    `gorm:"type:text;not null" json:"body"`
	Delivered bool      `gorm:"not null;default:false;index" json:"delivered"`
	Read      bool      `gorm:"not null;default:false" json:"read"`
	CreatedAt time.Time `gorm:"index:idx_msg_chat_created,priority:2" json:"created_at"`
}
