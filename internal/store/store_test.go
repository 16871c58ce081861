package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/asima2006/Soinech-Chat-App/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fixture struct {
	gw        Gateway
	addMember func(chatID, userID uint)
}

func memoryFixture(t *testing.T) fixture {
	m := NewMemory()
	return fixture{gw: m, addMember: m.AddMember}
}

// gormFixture runs against in-memory sqlite and skips when the driver is
// not usable (for example a build without cgo).
func gormFixture(t *testing.T) fixture {
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Skipf("skip: sqlite not available: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Skipf("skip: sqlite not available: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := gdb.AutoMigrate(&models.User{}, &models.Chat{}, &models.ChatMember{}, &models.Message{}); err != nil {
		t.Skipf("skip: migrate failed: %v", err)
	}
	return fixture{
		gw: NewGormStore(gdb, time.Second),
		addMember: func(chatID, userID uint) {
			require.NoError(t, gdb.Create(&models.ChatMember{ChatID: chatID, UserID: userID}).Error)
		},
	}
}

func eachGateway(t *testing.T, fn func(t *testing.T, f fixture)) {
	t.Run("memory", func(t *testing.T) { fn(t, memoryFixture(t)) })
	t.Run("gorm", func(t *testing.T) { fn(t, gormFixture(t)) })
}

func ids(msgs []models.Message) []uint {
	out := make([]uint, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func TestGateway_CreateDefaults(t *testing.T) {
	eachGateway(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		first, err := f.gw.Create(ctx, 10, 1, "hi")
		require.NoError(t, err)
		second, err := f.gw.Create(ctx, 10, 1, "again")
		require.NoError(t, err)

		assert.NotZero(t, first.ID)
		assert.Greater(t, second.ID, first.ID)
		assert.Equal(t, uint(10), first.ChatID)
		assert.Equal(t, uint(1), first.SenderID)
		assert.Equal(t, "hi", first.Body)
		assert.False(t, first.Delivered)
		assert.False(t, first.Read)
		assert.False(t, first.CreatedAt.IsZero())
	})
}

func TestGateway_FetchUndeliveredFor(t *testing.T) {
	eachGateway(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		f.addMember(10, 1)
		f.addMember(10, 2)
		f.addMember(20, 1)
		f.addMember(20, 3)
		f.addMember(30, 2)

		m1, err := f.gw.Create(ctx, 10, 2, "from 2 in 10")
		require.NoError(t, err)
		m2, err := f.gw.Create(ctx, 20, 3, "from 3 in 20")
		require.NoError(t, err)
		_, err = f.gw.Create(ctx, 10, 1, "own message")
		require.NoError(t, err)
		_, err = f.gw.Create(ctx, 30, 2, "chat 1 is not in")
		require.NoError(t, err)

		got, err := f.gw.FetchUndeliveredFor(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, []uint{m1.ID, m2.ID}, ids(got))

		require.NoError(t, f.gw.MarkDelivered(ctx, m1.ID))
		got, err = f.gw.FetchUndeliveredFor(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, []uint{m2.ID}, ids(got))
	})
}

func TestGateway_MarkDeliveredBatch(t *testing.T) {
	eachGateway(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		f.addMember(10, 1)
		f.addMember(10, 2)
		var created []uint
		for i := 0; i < 3; i++ {
			m, err := f.gw.Create(ctx, 10, 2, "pending")
			require.NoError(t, err)
			created = append(created, m.ID)
		}

		require.NoError(t, f.gw.MarkDeliveredBatch(ctx, nil))
		require.NoError(t, f.gw.MarkDeliveredBatch(ctx, created[:2]))

		got, err := f.gw.FetchUndeliveredFor(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, []uint{created[2]}, ids(got))
	})
}

func TestGateway_ReadWithoutDelivered(t *testing.T) {
	eachGateway(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		m, err := f.gw.Create(ctx, 10, 1, "hi")
		require.NoError(t, err)

		require.NoError(t, f.gw.MarkRead(ctx, m.ID))

		hist, err := f.gw.FetchHistory(ctx, 10, 200)
		require.NoError(t, err)
		require.Len(t, hist, 1)
		assert.True(t, hist[0].Read)
		assert.False(t, hist[0].Delivered, "read does not imply delivered")
	})
}

func TestGateway_FetchHistoryMostRecentAscending(t *testing.T) {
	eachGateway(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		var created []uint
		for i := 0; i < 5; i++ {
			m, err := f.gw.Create(ctx, 10, 1, "msg")
			require.NoError(t, err)
			created = append(created, m.ID)
		}
		_, err := f.gw.Create(ctx, 11, 1, "other chat")
		require.NoError(t, err)

		hist, err := f.gw.FetchHistory(ctx, 10, 3)
		require.NoError(t, err)
		assert.Equal(t, created[2:], ids(hist))
	})
}

func TestGateway_FetchHistoryWithoutLimit(t *testing.T) {
	eachGateway(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		var created []uint
		for i := 0; i < 4; i++ {
			m, err := f.gw.Create(ctx, 10, 1, "msg")
			require.NoError(t, err)
			created = append(created, m.ID)
		}

		for _, limit := range []int{0, -1} {
			hist, err := f.gw.FetchHistory(ctx, 10, limit)
			require.NoError(t, err)
			assert.Equal(t, created, ids(hist), "limit %d", limit)
		}
	})
}

func TestGateway_ChatMembersExcludesSender(t *testing.T) {
	eachGateway(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		f.addMember(10, 3)
		f.addMember(10, 1)
		f.addMember(10, 2)
		f.addMember(11, 4)

		got, err := f.gw.ChatMembers(ctx, 10, 1)
		require.NoError(t, err)
		assert.Equal(t, []uint{2, 3}, got)
	})
}

func TestMemory_InjectedFailure(t *testing.T) {
	m := NewMemory()
	m.Fail(OpCreate, true)

	_, err := m.Create(context.Background(), 1, 1, "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStoreUnavailable))

	m.Fail(OpCreate, false)
	_, err = m.Create(context.Background(), 1, 1, "x")
	assert.NoError(t, err)
}

func TestGormStore_ClosedDatabaseIsUnavailable(t *testing.T) {
	f := gormFixture(t)
	gs := f.gw.(*GormStore)
	sqlDB, err := gs.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, err = gs.Create(context.Background(), 1, 1, "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStoreUnavailable))
}
