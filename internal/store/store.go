// Package store 是投递核心的持久化边界。
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/asima2006/Soinech-Chat-App/internal/metrics"
	"github.com/asima2006/Soinech-Chat-App/internal/models"
)

// ErrStoreUnavailable 包装所有持久化失败，调用方视失败调用的副作用为未发生。
var ErrStoreUnavailable = errors.New("store unavailable")

// 操作名，用于错误包装、指标标签与故障注入。
const (
	OpCreate              = "create"
	OpMarkDelivered       = "mark_delivered"
	OpMarkDeliveredBatch  = "mark_delivered_batch"
	OpMarkRead            = "mark_read"
	OpFetchHistory        = "fetch_history"
	OpFetchUndeliveredFor = "fetch_undelivered"
	OpChatMembers         = "chat_members"
)

// Gateway 是投递核心对持久化存储的全部需求。
type Gateway interface {
	Create(ctx context.Context, chatID, senderID uint, body string) (*models.Message, error)
	MarkDelivered(ctx context.Context, messageID uint) error
	MarkDeliveredBatch(ctx context.Context, messageIDs []uint) error
	MarkRead(ctx context.Context, messageID uint) error
	// FetchHistory 返回会话最近 limit 条消息，按时间升序；limit <= 0 表示不限制。
	FetchHistory(ctx context.Context, chatID uint, limit int) ([]models.Message, error)
	// FetchUndeliveredFor 返回用户所在会话中他人发送且未投递的消息，按时间升序。
	FetchUndeliveredFor(ctx context.Context, userID uint) ([]models.Message, error)
	// ChatMembers 列出会话成员，排除 exclude。
	ChatMembers(ctx context.Context, chatID, exclude uint) ([]uint, error)
}

func unavailable(op string, err error) error {
	metrics.StoreErrorsTotal.WithLabelValues(op).Inc()
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
