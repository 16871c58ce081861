// Package presence 记录每个用户当前可寻址的连接。
package presence

import (
	"sync"

	"github.com/asima2006/Soinech-Chat-App/internal/events"
)

// Conn 是投递核心所见的在线连接。
type Conn interface {
	UserID() uint
	IsSubscribed(chatID uint) bool
	Push(kind events.Kind, payload any) error
}

// Registry 把用户映射到唯一可寻址的连接。后连接者覆盖先连接者，
// 被替换的连接不会被关闭，只是不再可寻址。
type Registry struct {
	mu    sync.RWMutex
	conns map[uint]Conn
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[uint]Conn)}
}

// SetOnline 记录 conn 为 userID 的连接，覆盖旧值。
func (r *Registry) SetOnline(userID uint, conn Conn) {
	r.mu.Lock()
	r.conns[userID] = conn
	r.mu.Unlock()
}

// SetOffline 仅当 conn 仍是当前映射时才删除，避免旧连接迟到的断开覆盖新连接。
func (r *Registry) SetOffline(userID uint, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.conns[userID]
	if !ok || cur != conn {
		return false
	}
	delete(r.conns, userID)
	return true
}

func (r *Registry) Lookup(userID uint) (Conn, bool) {
	r.mu.RLock()
	c, ok := r.conns[userID]
	r.mu.RUnlock()
	return c, ok
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
