// Package delivery 按消息和接收者决定立即推送还是留待离线下发，并在上线时清空积压。
//
// 投递语义为至少一次：先推送再单独更新存储，更新失败时即使客户端已收到，
// 消息仍保持未投递。delivered 是整条消息的标记而非按接收者记录，
// 任一接收者投递成功即对所有人生效。
package delivery

import (
	"context"

	"github.com/asima2006/Soinech-Chat-App/internal/events"
	"github.com/asima2006/Soinech-Chat-App/internal/metrics"
	"github.com/asima2006/Soinech-Chat-App/internal/models"
	"github.com/asima2006/Soinech-Chat-App/internal/presence"
	"github.com/asima2006/Soinech-Chat-App/internal/store"

	"github.com/rs/zerolog/log"
)

// Summary 回传给发送者的投递统计。
type Summary struct {
	DeliveredCount  int
	TotalRecipients int
}

type Router struct {
	presence *presence.Registry
	store    store.Gateway
}

func NewRouter(reg *presence.Registry, gw store.Gateway) *Router {
	return &Router{presence: reg, store: gw}
}

// Route 向在线且已加入会话房间的接收者推送 msg。不做重试，
// 未送达的接收者在下次上线时从积压中获取。
func (r *Router) Route(ctx context.Context, msg *models.Message, recipients []uint) Summary {
	sum := Summary{TotalRecipients: len(recipients)}
	for _, uid := range recipients {
		conn, ok := r.presence.Lookup(uid)
		if !ok || !conn.IsSubscribed(msg.ChatID) {
			continue
		}
		if err := conn.Push(events.Message, msg); err != nil {
			log.Debug().Err(err).Uint("user_id", uid).Uint("message_id", msg.ID).Msg("push message")
			continue
		}
		if err := r.store.MarkDelivered(ctx, msg.ID); err != nil {
			log.Error().Err(err).Uint("user_id", uid).Uint("message_id", msg.ID).Msg("mark delivered")
			continue
		}
		metrics.MessagesDeliveredTotal.WithLabelValues("live").Inc()
		sum.DeliveredCount++
	}
	return sum
}
