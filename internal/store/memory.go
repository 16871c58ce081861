package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/asima2006/Soinech-Chat-App/internal/models"
)

var errInjected = errors.New("injected failure")

// Memory 是进程内的 Gateway，用于测试；可通过 Fail 按操作注入故障。
type Memory struct {
	mu       sync.Mutex
	nextID   uint
	messages []*models.Message
	members  map[uint]map[uint]struct{}
	failing  map[string]bool
	now      func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		members: make(map[uint]map[uint]struct{}),
		failing: make(map[string]bool),
		now:     time.Now,
	}
}

// AddMember 把 userID 加为 chatID 的成员。
func (m *Memory) AddMember(chatID, userID uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.members[chatID]
	if set == nil {
		set = make(map[uint]struct{})
		m.members[chatID] = set
	}
	set[userID] = struct{}{}
}

// Fail 让后续对 op 的调用失败（或恢复成功）。
func (m *Memory) Fail(op string, fail bool) {
	m.mu.Lock()
	m.failing[op] = fail
	m.mu.Unlock()
}

// Message 返回存储消息的副本。
func (m *Memory) Message(id uint) (models.Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages {
		if msg.ID == id {
			return *msg, true
		}
	}
	return models.Message{}, false
}

func (m *Memory) check(op string) error {
	if m.failing[op] {
		return unavailable(op, errInjected)
	}
	return nil
}

func (m *Memory) find(id uint) *models.Message {
	for _, msg := range m.messages {
		if msg.ID == id {
			return msg
		}
	}
	return nil
}

func (m *Memory) Create(ctx context.Context, chatID, senderID uint, body string) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(OpCreate); err != nil {
		return nil, err
	}
	m.nextID++
	msg := &models.Message{ID: m.nextID, ChatID: chatID, SenderID: senderID, Body: body, CreatedAt: m.now()}
	m.messages = append(m.messages, msg)
	out := *msg
	return &out, nil
}

func (m *Memory) MarkDelivered(ctx context.Context, messageID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(OpMarkDelivered); err != nil {
		return err
	}
	if msg := m.find(messageID); msg != nil {
		msg.Delivered = true
	}
	return nil
}

func (m *Memory) MarkDeliveredBatch(ctx context.Context, messageIDs []uint) error {
	if len(messageIDs) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(OpMarkDeliveredBatch); err != nil {
		return err
	}
	for _, id := range messageIDs {
		if msg := m.find(id); msg != nil {
			msg.Delivered = true
		}
	}
	return nil
}

func (m *Memory) MarkRead(ctx context.Context, messageID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(OpMarkRead); err != nil {
		return err
	}
	if msg := m.find(messageID); msg != nil {
		msg.Read = true
	}
	return nil
}

func (m *Memory) FetchHistory(ctx context.Context, chatID uint, limit int) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(OpFetchHistory); err != nil {
		return nil, err
	}
	var out []models.Message
	for _, msg := range m.messages {
		if msg.ChatID == chatID {
			out = append(out, *msg)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *Memory) FetchUndeliveredFor(ctx context.Context, userID uint) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(OpFetchUndeliveredFor); err != nil {
		return nil, err
	}
	var out []models.Message
	for _, msg := range m.messages {
		if msg.Delivered || msg.SenderID == userID {
			continue
		}
		if _, ok := m.members[msg.ChatID][userID]; ok {
			out = append(out, *msg)
		}
	}
	return out, nil
}

func (m *Memory) ChatMembers(ctx context.Context, chatID, exclude uint) ([]uint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(OpChatMembers); err != nil {
		return nil, err
	}
	var ids []uint
	for id := range m.members[chatID] {
		if id != exclude {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
