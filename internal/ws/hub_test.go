package ws

import (
	"encoding/json"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/asima2006/Soinech-Chat-App/internal/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recv 读取会话发送队列中的下一帧。
func recv(t *testing.T, s *Session) events.Envelope {
	t.Helper()
	select {
	case b := <-s.send:
		var env events.Envelope
		require.NoError(t, json.Unmarshal(b, &env))
		return env
	case <-time.After(time.Second):
		t.Fatal("no frame queued")
		return events.Envelope{}
	}
}

func assertNoFrame(t *testing.T, s *Session) {
	t.Helper()
	select {
	case b := <-s.send:
		t.Fatalf("unexpected frame %s", b)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestNewHub(t *testing.T) {
	hub := NewHub()
	require.NotNil(t, hub)
	assert.NotNil(t, hub.rooms)
}

func TestHub_Online_NonExistentRoom(t *testing.T) {
	hub := NewHub()
	assert.Equal(t, 0, hub.Online(999))
}

func TestHub_JoinLeave(t *testing.T) {
	hub := NewHub()
	s := NewSession(1, nil)

	hub.Join(1, s)
	assert.Eventually(t, func() bool { return hub.Online(1) == 1 }, time.Second, 5*time.Millisecond)

	hub.Leave(1, s)
	assert.Equal(t, 0, hub.Online(1))
	assert.Equal(t, 0, hub.Len(), "empty rooms are reaped")
}

func TestHub_LeaveUnknownRoom(t *testing.T) {
	hub := NewHub()
	hub.Leave(42, NewSession(1, nil))
	assert.Nil(t, hub.lookup(42), "leave must not create rooms")
}

func TestHub_BroadcastSkipsSender(t *testing.T) {
	hub := NewHub()
	sessions := []*Session{NewSession(1, nil), NewSession(2, nil), NewSession(3, nil)}
	for _, s := range sessions {
		hub.Join(7, s)
	}

	hub.Broadcast(7, sessions[0], events.UserTyping, events.UserPayload{UserID: 1})

	for _, s := range sessions[1:] {
		env := recv(t, s)
		assert.Equal(t, events.UserTyping, env.Type)
		assert.JSONEq(t, `{"userId":1}`, string(env.Data))
	}
	assertNoFrame(t, sessions[0])
}

func TestHub_RoomsAreIsolated(t *testing.T) {
	hub := NewHub()
	a, b := NewSession(1, nil), NewSession(2, nil)
	hub.Join(1, a)
	hub.Join(2, b)

	hub.Broadcast(1, nil, events.UserJoined, events.UserPayload{UserID: 9})

	assert.Equal(t, events.UserJoined, recv(t, a).Type)
	assertNoFrame(t, b)
	assert.Eventually(t, func() bool { return hub.Online(1) == 1 && hub.Online(2) == 1 }, time.Second, 5*time.Millisecond)
}

func TestHub_BroadcastToEmptyRoomIsNoop(t *testing.T) {
	hub := NewHub()
	hub.Broadcast(5, nil, events.UserLeft, events.UserPayload{UserID: 1})
	assert.Equal(t, 0, hub.Online(5))
}

func TestHub_ConcurrentJoin(t *testing.T) {
	hub := NewHub()
	const n = 10

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			hub.Join(1, NewSession(uint(id), nil))
		}(i)
	}
	wg.Wait()

	assert.Eventually(t, func() bool { return hub.Online(1) == n }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, hub.Len())
}

func TestHub_ReapsEmptyRooms(t *testing.T) {
	hub := NewHub()
	s := NewSession(1, nil)
	before := runtime.NumGoroutine()

	for id := uint(1); id <= 1000; id++ {
		hub.Join(id, s)
		hub.Leave(id, s)
	}

	assert.Equal(t, 0, hub.Len())
	assert.Eventually(t, func() bool { return runtime.NumGoroutine() <= before }, time.Second, 5*time.Millisecond,
		"room goroutines must exit once the room is empty")
}

func TestHub_RoomSurvivesWhileOccupied(t *testing.T) {
	hub := NewHub()
	a, b := NewSession(1, nil), NewSession(2, nil)
	hub.Join(3, a)
	hub.Join(3, b)
	hub.Leave(3, a)

	require.Equal(t, 1, hub.Len())
	hub.Broadcast(3, nil, events.UserLeft, events.UserPayload{UserID: 1})
	assert.Equal(t, events.UserLeft, recv(t, b).Type)
	assertNoFrame(t, a)

	hub.Leave(3, b)
	assert.Equal(t, 0, hub.Len())
}

func TestHub_ConcurrentChurn(t *testing.T) {
	hub := NewHub()
	before := runtime.NumGoroutine()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id uint) {
			defer wg.Done()
			s := NewSession(id, nil)
			for j := 0; j < 100; j++ {
				hub.Join(1, s)
				hub.Broadcast(1, s, events.UserTyping, events.UserPayload{UserID: id})
				hub.Leave(1, s)
			}
		}(uint(i + 1))
	}
	wg.Wait()

	assert.Equal(t, 0, hub.Len())
	assert.Eventually(t, func() bool { return runtime.NumGoroutine() <= before }, time.Second, 5*time.Millisecond)
}
