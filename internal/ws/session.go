package ws

import (
	"errors"
	"sync"

	"github.com/asima2006/Soinech-Chat-App/internal/events"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ErrTransportClosed 表示连接已关闭或消费过慢，路由将其视为暂时无法投递。
var ErrTransportClosed = errors.New("transport closed")

const sendBuffer = 256

// Session 是已鉴权用户的一条 WebSocket 连接。
type Session struct {
	id     string
	userID uint
	conn   *websocket.Conn

	roomsMu sync.RWMutex
	rooms   map[uint]struct{}

	sendMu sync.Mutex
	send   chan []byte
	closed bool
}

func NewSession(userID uint, conn *websocket.Conn) *Session {
	return &Session{
		id:     uuid.NewString(),
		userID: userID,
		conn:   conn,
		rooms:  make(map[uint]struct{}),
		send:   make(chan []byte, sendBuffer),
	}
}

func (s *Session) ID() string   { return s.id }
func (s *Session) UserID() uint { return s.userID }

// Join 把 roomID 加入会话，返回集合是否变化。
func (s *Session) Join(roomID uint) bool {
	s.roomsMu.Lock()
	defer s.roomsMu.Unlock()
	if _, ok := s.rooms[roomID]; ok {
		return false
	}
	s.rooms[roomID] = struct{}{}
	return true
}

func (s *Session) Leave(roomID uint) bool {
	s.roomsMu.Lock()
	defer s.roomsMu.Unlock()
	if _, ok := s.rooms[roomID]; !ok {
		return false
	}
	delete(s.rooms, roomID)
	return true
}

func (s *Session) IsSubscribed(roomID uint) bool {
	s.roomsMu.RLock()
	defer s.roomsMu.RUnlock()
	_, ok := s.rooms[roomID]
	return ok
}

func (s *Session) Rooms() []uint {
	s.roomsMu.RLock()
	defer s.roomsMu.RUnlock()
	out := make([]uint, 0, len(s.rooms))
	for r := range s.rooms {
		out = append(out, r)
	}
	return out
}

// Push 非阻塞地把出站事件入队。队列满说明客户端不再读取，按断线处理并关闭会话。
func (s *Session) Push(kind events.Kind, payload any) error {
	b, err := events.Encode(kind, payload)
	if err != nil {
		return err
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.closed {
		return ErrTransportClosed
	}
	select {
	case s.send <- b:
		return nil
	default:
		s.closed = true
		close(s.send)
		return ErrTransportClosed
	}
}

// Close 停止写协程，可重复调用。
func (s *Session) Close() {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.send)
	}
}
