package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0Azuree/Ledeqth-sub000/internal/adapters/store/storetest"
	"github.com/0Azuree/Ledeqth-sub000/internal/core"
	"github.com/0Azuree/Ledeqth-sub000/internal/domain"
)

func TestContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) core.RoomStore { return New() })
}

func TestGetReturnsCopy(t *testing.T) {
	s := New()
	r, err := core.NewRoom("ABCDE", domain.User{ID: "U1", Username: "Alice"}, time.Now())
	require.NoError(t, err)
	require.NoError(t, s.Create(context.Background(), r))

	got, err := s.Get(context.Background(), "ABCDE")
	require.NoError(t, err)
	got.Members[0].Username = "Mallory"

	again, err := s.Get(context.Background(), "ABCDE")
	require.NoError(t, err)
	assert.Equal(t, "Alice", again.Members[0].Username)
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Get(ctx, "ABCDE")
	assert.Equal(t, domain.KindInternal, domain.KindOf(err))
}
