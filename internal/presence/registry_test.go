package presence

import (
	"sync"
	"testing"

	"github.com/asima2006/Soinech-Chat-App/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	user uint
	tag  string
}

func (c *fakeConn) UserID() uint                { return c.user }
func (c *fakeConn) IsSubscribed(uint) bool      { return false }
func (c *fakeConn) Push(events.Kind, any) error { return nil }

func TestRegistry_SetOnlineAndLookup(t *testing.T) {
	r := NewRegistry()
	c := &fakeConn{user: 1}

	_, ok := r.Lookup(1)
	assert.False(t, ok)

	r.SetOnline(1, c)
	got, ok := r.Lookup(1)
	require.True(t, ok)
	assert.Same(t, c, got)
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_LastConnectWins(t *testing.T) {
	r := NewRegistry()
	first := &fakeConn{user: 1, tag: "first"}
	second := &fakeConn{user: 1, tag: "second"}

	r.SetOnline(1, first)
	r.SetOnline(1, second)

	got, ok := r.Lookup(1)
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_StaleDisconnectKeepsNewerMapping(t *testing.T) {
	r := NewRegistry()
	first := &fakeConn{user: 1, tag: "first"}
	second := &fakeConn{user: 1, tag: "second"}

	r.SetOnline(1, first)
	r.SetOnline(1, second)

	assert.False(t, r.SetOffline(1, first), "superseded connection must not remove the mapping")
	got, ok := r.Lookup(1)
	require.True(t, ok)
	assert.Same(t, second, got)

	assert.True(t, r.SetOffline(1, second))
	_, ok = r.Lookup(1)
	assert.False(t, ok)
}

func TestRegistry_SetOfflineIdempotent(t *testing.T) {
	r := NewRegistry()
	c := &fakeConn{user: 1}
	other := &fakeConn{user: 2}
	r.SetOnline(1, c)
	r.SetOnline(2, other)

	assert.True(t, r.SetOffline(1, c))
	assert.False(t, r.SetOffline(1, c))

	_, ok := r.Lookup(1)
	assert.False(t, ok)
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_SetOfflineUnknownUser(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.SetOffline(42, &fakeConn{user: 42}))
	assert.Equal(t, 0, r.Count())
}

// Many reconnects of one user race with the disconnects of earlier
// connections; only the final connection may remain mapped.
func TestRegistry_ConcurrentReconnectRace(t *testing.T) {
	r := NewRegistry()
	const n = 200
	conns := make([]*fakeConn, n)
	for i := range conns {
		conns[i] = &fakeConn{user: 7}
	}

	for i := 0; i < n-1; i++ {
		r.SetOnline(7, conns[i])
	}
	last := conns[n-1]

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.SetOnline(7, last)
	}()
	for i := 0; i < n-1; i++ {
		wg.Add(1)
		go func(c *fakeConn) {
			defer wg.Done()
			r.SetOffline(7, c)
		}(conns[i])
	}
	wg.Wait()

	got, ok := r.Lookup(7)
	require.True(t, ok, "latest connection must stay mapped")
	assert.Same(t, last, got)
}

func TestRegistry_ConcurrentUsers(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(id uint) {
			defer wg.Done()
			c := &fakeConn{user: id}
			r.SetOnline(id, c)
			_, _ = r.Lookup(id)
			if id%2 == 0 {
				r.SetOffline(id, c)
			}
		}(uint(i))
	}
	wg.Wait()
	assert.Equal(t, 25, r.Count())
}
