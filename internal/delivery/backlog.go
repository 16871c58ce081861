package delivery

import (
	"context"

	"github.com/asima2006/Soinech-Chat-App/internal/events"
	"github.com/asima2006/Soinech-Chat-App/internal/metrics"
	"github.com/asima2006/Soinech-Chat-App/internal/presence"
	"github.com/asima2006/Soinech-Chat-App/internal/store"

	"github.com/rs/zerolog/log"
)

// Dispatcher 在用户上线时下发其所有待投递消息。
type Dispatcher struct {
	store store.Gateway
}

func NewDispatcher(gw store.Gateway) *Dispatcher {
	return &Dispatcher{store: gw}
}

// Drain 把未投递消息合并为一个 offline_messages 事件推送，并批量标记为已投递。
// 无论推送是否成功都会标记，因此断线途中丢失的积压不会重发。
func (d *Dispatcher) Drain(ctx context.Context, userID uint, conn presence.Conn) (int, error) {
	msgs, err := d.store.FetchUndeliveredFor(ctx, userID)
	if err != nil {
		log.Error().Err(err).Uint("user_id", userID).Msg("fetch offline messages")
		return 0, err
	}
	if len(msgs) == 0 {
		return 0, nil
	}

	payload := events.OfflineMessagesPayload{
		TotalCount:     len(msgs),
		MessagesByChat: events.GroupByChat(msgs),
	}
	if err := conn.Push(events.OfflineMessages, payload); err != nil {
		log.Warn().Err(err).Uint("user_id", userID).Int("count", len(msgs)).Msg("push offline messages")
	}

	ids := make([]uint, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	if err := d.store.MarkDeliveredBatch(ctx, ids); err != nil {
		log.Error().Err(err).Uint("user_id", userID).Int("count", len(ids)).Msg("mark offline messages delivered")
		return len(msgs), nil
	}
	metrics.MessagesDeliveredTotal.WithLabelValues("backlog").Add(float64(len(ids)))
	log.Info().Uint("user_id", userID).Int("count", len(ids)).Msg("offline messages delivered")
	return len(msgs), nil
}
