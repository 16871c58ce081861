package ws

import (
	"context"
	"sync"
	"testing"

	"github.com/asima2006/Soinech-Chat-App/internal/delivery"
	"github.com/asima2006/Soinech-Chat-App/internal/events"
	"github.com/asima2006/Soinech-Chat-App/internal/models"
	"github.com/asima2006/Soinech-Chat-App/internal/presence"
	"github.com/asima2006/Soinech-Chat-App/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 路由推送与同一用户的断线并发执行时，推送要么成功要么无害失败，在线表与房间索引保持一致。
func TestRouteRacesDisconnect(t *testing.T) {
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		mem := store.NewMemory()
		mem.AddMember(10, 1)
		mem.AddMember(10, 2)
		reg := presence.NewRegistry()
		hub := NewHub()
		svc := delivery.NewService(reg, mem, hub)
		router := delivery.NewRouter(reg, mem)

		s := NewSession(2, nil)
		go func() {
			for range s.send {
			}
		}()
		svc.Connect(ctx, s)
		svc.Join(ctx, s, 10)
		require.True(t, s.IsSubscribed(10))

		const n = 20
		msgs := make([]*models.Message, n)
		for k := range msgs {
			m, err := mem.Create(ctx, 10, 1, "race")
			require.NoError(t, err)
			msgs[k] = m
		}

		sums := make([]delivery.Summary, n)
		var wg sync.WaitGroup
		for k := range msgs {
			wg.Add(1)
			go func(k int) {
				defer wg.Done()
				sums[k] = router.Route(ctx, msgs[k], []uint{2})
			}(k)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.Disconnect(s)
			s.Close()
		}()
		wg.Wait()

		for k, m := range msgs {
			assert.LessOrEqual(t, sums[k].DeliveredCount, 1)
			assert.Equal(t, 1, sums[k].TotalRecipients)
			stored, ok := mem.Message(m.ID)
			require.True(t, ok)
			assert.Equal(t, sums[k].DeliveredCount == 1, stored.Delivered)
		}
		_, online := reg.Lookup(2)
		assert.False(t, online)
		assert.Equal(t, 0, hub.Len())
		assert.ErrorIs(t, s.Push(events.Message, msgs[0]), ErrTransportClosed)
	}
}

// 非成员加入任意会话不会创建房间。
func TestJoinNonMemberCreatesNoRoom(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	hub := NewHub()
	svc := delivery.NewService(presence.NewRegistry(), mem, hub)
	s := NewSession(1, nil)

	for id := uint(1); id <= 200; id++ {
		svc.Join(ctx, s, id)
	}

	assert.Equal(t, 0, hub.Len())
	assert.Empty(t, s.Rooms())
	env := recv(t, s)
	assert.Equal(t, events.Error, env.Type)
	assert.JSONEq(t, `{"reason":"not_a_member"}`, string(env.Data))
}
