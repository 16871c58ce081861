package ws

import (
	"sync"
	"sync/atomic"

	"github.com/asima2006/Soinech-Chat-App/internal/delivery"
	"github.com/asima2006/Soinech-Chat-App/internal/events"
)

// Hub 管理房间级别的子 Hub：首个会话加入时创建，最后一个会话离开时回收。
type Hub struct {
	mu    sync.Mutex
	rooms map[uint]*RoomHub
}

func NewHub() *Hub { return &Hub{rooms: make(map[uint]*RoomHub)} }

// acquire 返回房间并占用一个引用，房间不存在时创建并启动。
func (h *Hub) acquire(roomID uint) *RoomHub {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[roomID]
	if room == nil {
		room = NewRoomHub(roomID)
		h.rooms[roomID] = room
		go room.run()
	}
	room.refs++
	return room
}

// release 归还一个引用；引用归零时从索引中摘除房间，并返回 true。
func (h *Hub) release(roomID uint) (*RoomHub, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[roomID]
	if room == nil {
		return nil, false
	}
	room.refs--
	if room.refs > 0 {
		return room, false
	}
	delete(h.rooms, roomID)
	return room, true
}

func (h *Hub) lookup(roomID uint) *RoomHub {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rooms[roomID]
}

// Len 返回当前存活的房间数。
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

func (h *Hub) Online(roomID uint) int {
	room := h.lookup(roomID)
	if room == nil {
		return 0
	}
	return room.Online()
}

// Join 把会话加入房间。同一会话对同一房间只应调用一次，由 Session.Join 去重。
func (h *Hub) Join(roomID uint, s delivery.Session) {
	h.acquire(roomID).register <- s
}

// Leave 与 Join 成对调用；最后一个会话离开后房间 goroutine 退出。
func (h *Hub) Leave(roomID uint, s delivery.Session) {
	room, last := h.release(roomID)
	if room == nil {
		return
	}
	room.unregister <- s
	if last {
		close(room.quit)
	}
}

// Broadcast 向房间内除 except 以外的会话推送事件，房间不存在时直接丢弃。
func (h *Hub) Broadcast(roomID uint, except delivery.Session, kind events.Kind, payload any) {
	room := h.lookup(roomID)
	if room == nil {
		return
	}
	select {
	case room.broadcast <- roomEvent{except: except, kind: kind, payload: payload}:
	case <-room.quit:
	}
}

type roomEvent struct {
	except  delivery.Session
	kind    events.Kind
	payload any
}

type RoomHub struct {
	roomID     uint
	sessions   map[delivery.Session]struct{}
	register   chan delivery.Session
	unregister chan delivery.Session
	broadcast  chan roomEvent
	quit       chan struct{}
	online     int32
	refs       int // 受 Hub.mu 保护
}

func NewRoomHub(roomID uint) *RoomHub {
	return &RoomHub{
		roomID:     roomID,
		sessions:   make(map[delivery.Session]struct{}),
		register:   make(chan delivery.Session),
		unregister: make(chan delivery.Session),
		broadcast:  make(chan roomEvent, 256),
		quit:       make(chan struct{}),
	}
}

func (rh *RoomHub) run() {
	for {
		select {
		case s := <-rh.register:
			rh.sessions[s] = struct{}{}
			atomic.StoreInt32(&rh.online, int32(len(rh.sessions)))
		case s := <-rh.unregister:
			delete(rh.sessions, s)
			atomic.StoreInt32(&rh.online, int32(len(rh.sessions)))
		case evt := <-rh.broadcast:
			for s := range rh.sessions {
				if s == evt.except {
					continue
				}
				// 推送失败的会话由其自身的断线流程注销。
				_ = s.Push(evt.kind, evt.payload)
			}
		case <-rh.quit:
			return
		}
	}
}

// Online 返回房间内已加入的会话数量，供 REST 接口复用。
func (rh *RoomHub) Online() int { return int(atomic.LoadInt32(&rh.online)) }
