// Package events 定义 WebSocket 协议：带类型标签的信封，以及每种入站、出站事件的载荷。
package events

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/asima2006/Soinech-Chat-App/internal/models"
	"github.com/go-playground/validator/v10"
)

type Kind string

// 入站事件。
const (
	Join        Kind = "join"
	Leave       Kind = "leave"
	Typing      Kind = "typing"
	StopTyping  Kind = "stop_typing"
	SendMessage Kind = "send_message"
	Ack         Kind = "ack"
)

// 出站事件。
const (
	Message         Kind = "message"
	OfflineMessages Kind = "offline_messages"
	MessageSent     Kind = "message_sent"
	UserJoined      Kind = "user_joined"
	UserLeft        Kind = "user_left"
	UserTyping      Kind = "user_typing"
	UserStopTyping  Kind = "user_stop_typing"
	Error           Kind = "error"
)

const (
	AckDelivered = "delivered"
	AckRead      = "read"
)

// 发给客户端的错误原因。
const (
	ReasonMessageFailed = "message_failed"
	ReasonInvalidEvent  = "invalid_event"
	ReasonNotMember     = "not_a_member"
	ReasonJoinFailed    = "join_failed"
)

var ErrUnknownKind = errors.New("unknown event kind")

// Envelope 是双向通用的帧格式。
type Envelope struct {
	Type Kind            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type RoomPayload struct {
	ChatID uint `json:"chatId" validate:"required,gt=0"`
}

type SendMessagePayload struct {
	ChatID uint   `json:"chatId" validate:"required,gt=0"`
	Body   string `json:"body" validate:"required,max=8192"`
	TempID string `json:"tempId" validate:"max=128"`
}

type AckPayload struct {
	MessageID uint   `json:"messageId" validate:"required,gt=0"`
	ChatID    uint   `json:"chatId"`
	Type      string `json:"type" validate:"required,oneof=delivered read"`
}

type OfflineMessagesPayload struct {
	TotalCount     int                       `json:"totalCount"`
	MessagesByChat map[uint][]models.Message `json:"messagesByChat"`
}

type MessageSentPayload struct {
	TempID          string          `json:"tempId"`
	ID              uint            `json:"id"`
	Message         *models.Message `json:"message"`
	DeliveredCount  int             `json:"deliveredCount"`
	TotalRecipients int             `json:"totalRecipients"`
}

type UserPayload struct {
	UserID uint `json:"userId"`
}

type ErrorPayload struct {
	Reason string `json:"reason"`
}

// Inbound 是解码后的客户端事件，按 Kind 仅设置一个载荷字段。
type Inbound struct {
	Kind Kind
	Room *RoomPayload
	Send *SendMessagePayload
	Ack  *AckPayload
}

var validate = validator.New()

// Decode 解析并校验客户端原始帧。
func Decode(raw []byte) (*Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	in := &Inbound{Kind: env.Type}
	var target any
	switch env.Type {
	case Join, Leave, Typing, StopTyping:
		in.Room = &RoomPayload{}
		target = in.Room
	case SendMessage:
		in.Send = &SendMessagePayload{}
		target = in.Send
	case Ack:
		in.Ack = &AckPayload{}
		target = in.Ack
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Type)
	}
	if len(env.Data) == 0 {
		return nil, fmt.Errorf("decode %s: missing data", env.Type)
	}
	if err := json.Unmarshal(env.Data, target); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	if err := validate.Struct(target); err != nil {
		return nil, fmt.Errorf("validate %s: %w", env.Type, err)
	}
	return in, nil
}

// Encode 构造出站帧。
func Encode(kind Kind, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: kind, Data: data})
}

// GroupByChat 按会话分组，保持组内相对顺序。
func GroupByChat(msgs []models.Message) map[uint][]models.Message {
	out := make(map[uint][]models.Message)
	for _, m := range msgs {
		out[m.ChatID] = append(out[m.ChatID], m)
	}
	return out
}
