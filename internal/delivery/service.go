package delivery

import (
	"context"
	"slices"

	"github.com/asima2006/Soinech-Chat-App/internal/events"
	"github.com/asima2006/Soinech-Chat-App/internal/metrics"
	"github.com/asima2006/Soinech-Chat-App/internal/presence"
	"github.com/asima2006/Soinech-Chat-App/internal/store"

	"github.com/rs/zerolog/log"
)

// Session 是可以加入会话房间的连接。
type Session interface {
	presence.Conn
	Join(chatID uint) bool
	Leave(chatID uint) bool
	Rooms() []uint
}

// Rooms 把房间级通知分发给房间内的会话。
type Rooms interface {
	Join(chatID uint, s Session)
	Leave(chatID uint, s Session)
	Broadcast(chatID uint, except Session, kind events.Kind, payload any)
}

// Service 处理所有连接的事件。同一会话的调用必须串行，不同会话之间可以并发。
type Service struct {
	presence   *presence.Registry
	store      store.Gateway
	rooms      Rooms
	router     *Router
	dispatcher *Dispatcher
}

func NewService(reg *presence.Registry, gw store.Gateway, rooms Rooms) *Service {
	return &Service{
		presence:   reg,
		store:      gw,
		rooms:      rooms,
		router:     NewRouter(reg, gw),
		dispatcher: NewDispatcher(gw),
	}
}

// Connect 将 s 设为用户当前可寻址的连接，并下发离线积压。
func (svc *Service) Connect(ctx context.Context, s Session) {
	svc.presence.SetOnline(s.UserID(), s)
	metrics.OnlineUsers.Set(float64(svc.presence.Count()))
	log.Info().Uint("user_id", s.UserID()).Int("online", svc.presence.Count()).Msg("user online")
	_, _ = svc.dispatcher.Drain(ctx, s.UserID(), s)
}

// Disconnect 仅在 s 仍是用户当前连接时将其移出在线表，并退出所有已加入的房间。
func (svc *Service) Disconnect(s Session) {
	removed := svc.presence.SetOffline(s.UserID(), s)
	for _, room := range s.Rooms() {
		if s.Leave(room) {
			svc.rooms.Leave(room, s)
		}
	}
	metrics.OnlineUsers.Set(float64(svc.presence.Count()))
	log.Info().Uint("user_id", s.UserID()).Bool("superseded", !removed).Int("online", svc.presence.Count()).Msg("user offline")
}

// Handle 分发一条已解码的入站事件。
func (svc *Service) Handle(ctx context.Context, s Session, in *events.Inbound) {
	switch in.Kind {
	case events.Join:
		svc.Join(ctx, s, in.Room.ChatID)
	case events.Leave:
		svc.Leave(s, in.Room.ChatID)
	case events.Typing:
		svc.typing(s, in.Room.ChatID, events.UserTyping)
	case events.StopTyping:
		svc.typing(s, in.Room.ChatID, events.UserStopTyping)
	case events.SendMessage:
		svc.SendMessage(ctx, s, *in.Send)
	case events.Ack:
		svc.Ack(ctx, s.UserID(), *in.Ack)
	}
}

// Join 校验成员身份后把会话加入房间；非成员或查询失败时回复 error 事件。
func (svc *Service) Join(ctx context.Context, s Session, chatID uint) {
	members, err := svc.store.ChatMembers(ctx, chatID, 0)
	if err != nil {
		log.Error().Err(err).Uint("user_id", s.UserID()).Uint("chat_id", chatID).Msg("join")
		svc.fail(s, events.ReasonJoinFailed)
		return
	}
	if !slices.Contains(members, s.UserID()) {
		log.Debug().Uint("user_id", s.UserID()).Uint("chat_id", chatID).Msg("join rejected")
		svc.fail(s, events.ReasonNotMember)
		return
	}
	if !s.Join(chatID) {
		return
	}
	svc.rooms.Join(chatID, s)
	svc.rooms.Broadcast(chatID, s, events.UserJoined, events.UserPayload{UserID: s.UserID()})
	log.Debug().Uint("user_id", s.UserID()).Uint("chat_id", chatID).Msg("join")
}

func (svc *Service) Leave(s Session, chatID uint) {
	if !s.Leave(chatID) {
		return
	}
	svc.rooms.Leave(chatID, s)
	svc.rooms.Broadcast(chatID, s, events.UserLeft, events.UserPayload{UserID: s.UserID()})
	log.Debug().Uint("user_id", s.UserID()).Uint("chat_id", chatID).Msg("leave")
}

// typing 只在会话已加入房间时转发。
func (svc *Service) typing(s Session, chatID uint, kind events.Kind) {
	if !s.IsSubscribed(chatID) {
		return
	}
	svc.rooms.Broadcast(chatID, s, kind, events.UserPayload{UserID: s.UserID()})
}

// SendMessage 持久化消息，路由给会话其他成员，并把投递统计回执给发送者。
func (svc *Service) SendMessage(ctx context.Context, s Session, p events.SendMessagePayload) {
	sender := s.UserID()
	msg, err := svc.store.Create(ctx, p.ChatID, sender, p.Body)
	if err != nil {
		log.Error().Err(err).Uint("user_id", sender).Uint("chat_id", p.ChatID).Msg("send message")
		svc.fail(s, events.ReasonMessageFailed)
		return
	}
	metrics.MessagesSentTotal.Inc()

	recipients, err := svc.store.ChatMembers(ctx, p.ChatID, sender)
	if err != nil {
		log.Error().Err(err).Uint("message_id", msg.ID).Uint("chat_id", p.ChatID).Msg("load chat members")
		svc.fail(s, events.ReasonMessageFailed)
		return
	}

	sum := svc.router.Route(ctx, msg, recipients)
	log.Info().Uint("message_id", msg.ID).Uint("chat_id", p.ChatID).
		Int("delivered", sum.DeliveredCount).Int("recipients", sum.TotalRecipients).Msg("message routed")

	err = s.Push(events.MessageSent, events.MessageSentPayload{
		TempID:          p.TempID,
		ID:              msg.ID,
		Message:         msg,
		DeliveredCount:  sum.DeliveredCount,
		TotalRecipients: sum.TotalRecipients,
	})
	if err != nil {
		log.Debug().Err(err).Uint("user_id", sender).Uint("message_id", msg.ID).Msg("push message_sent")
	}
}

// Ack 应用客户端回执。两种回执相互独立，read 不要求先收到 delivered。
func (svc *Service) Ack(ctx context.Context, userID uint, p events.AckPayload) {
	var err error
	switch p.Type {
	case events.AckDelivered:
		err = svc.store.MarkDelivered(ctx, p.MessageID)
	case events.AckRead:
		err = svc.store.MarkRead(ctx, p.MessageID)
	}
	if err != nil {
		log.Error().Err(err).Uint("user_id", userID).Uint("message_id", p.MessageID).Str("ack", p.Type).Msg("ack")
	}
}

// Reject 通知客户端上一条事件无法处理。
func (svc *Service) Reject(s Session, reason string) {
	svc.fail(s, reason)
}

func (svc *Service) fail(s Session, reason string) {
	if err := s.Push(events.Error, events.ErrorPayload{Reason: reason}); err != nil {
		log.Debug().Err(err).Uint("user_id", s.UserID()).Msg("push error")
	}
}
