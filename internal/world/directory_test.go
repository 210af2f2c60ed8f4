package world

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/worldscript/pkg/schema"
)

func TestDirectory_JoinLeave(t *testing.T) {
	d := NewDirectory()
	require.NoError(t, d.Join(schema.ActorRef{ID: 7, Name: "Alice", Level: 30}))
	require.NoError(t, d.Join(schema.ActorRef{ID: 3, Name: "Bob"}))

	assert.Equal(t, []uint32{3, 7}, d.Online())

	ec, ok := d.ContextFor(context.Background(), 7)
	require.True(t, ok)
	assert.Equal(t, "Alice", ec.Actor.Name)
	assert.Nil(t, ec.Role)

	assert.True(t, d.Leave(7))
	assert.False(t, d.Leave(7))

	_, ok = d.ContextFor(context.Background(), 7)
	assert.False(t, ok)
}

func TestDirectory_JoinRefreshes(t *testing.T) {
	d := NewDirectory()
	require.NoError(t, d.Join(schema.ActorRef{ID: 7, Level: 1}))
	require.NoError(t, d.Join(schema.ActorRef{ID: 7, Level: 2}))

	a, ok := d.Actor(7)
	require.True(t, ok)
	assert.Equal(t, 2, a.Level)
}

func TestDirectory_RejectsZero(t *testing.T) {
	d := NewDirectory()
	err := d.Join(schema.ActorRef{})
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestDirectory_ContextsAreIndependent(t *testing.T) {
	d := NewDirectory()
	require.NoError(t, d.Join(schema.ActorRef{ID: 7, Money: 100}))

	ec, _ := d.ContextFor(context.Background(), 7)
	ec.Actor.Money = 0

	a, _ := d.Actor(7)
	assert.Equal(t, int64(100), a.Money)
}

func TestDirectory_Concurrent(t *testing.T) {
	d := NewDirectory()
	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(2)
		go func(id uint32) {
			defer wg.Done()
			_ = d.Join(schema.ActorRef{ID: id})
		}(uint32(i))
		go func(id uint32) {
			defer wg.Done()
			d.ContextFor(context.Background(), id)
		}(uint32(i))
	}
	wg.Wait()
	assert.Len(t, d.Online(), 50)
}
