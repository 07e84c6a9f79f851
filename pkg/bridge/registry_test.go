package bridge

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterAndLookup(t *testing.T) {
	reg := NewRegistry()
	b := NewAudioBridge(Options{CallID: "CA1"})

	require.NoError(t, reg.Register("CA1", b))
	got, ok := reg.Lookup("CA1")
	assert.True(t, ok)
	assert.Same(t, b, got)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistryDuplicate(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("CA1", NewAudioBridge(Options{CallID: "CA1"})))

	err := reg.Register("CA1", NewAudioBridge(Options{CallID: "CA1"}))
	require.Error(t, err)
	var dup *DuplicateSessionError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "CA1", dup.CallID)
}

func TestRegistryRemoveIdempotent(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("CA1", NewAudioBridge(Options{CallID: "CA1"})))

	reg.Remove("CA1")
	reg.Remove("CA1")
	reg.Remove("unknown")

	_, ok := reg.Lookup("CA1")
	assert.False(t, ok)
	assert.Equal(t, 0, reg.Len())
}

func TestRegistrySnapshot(t *testing.T) {
	reg := NewRegistry()
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("CA%d", i)
		require.NoError(t, reg.Register(id, NewAudioBridge(Options{CallID: id})))
	}

	snaps := reg.Snapshot()
	assert.Len(t, snaps, 3)
	for _, s := range snaps {
		assert.Equal(t, string(StateConnecting), s.State)
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	reg := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("CA%d", i)
			_ = reg.Register(id, NewAudioBridge(Options{CallID: id}))
			reg.Lookup(id)
			reg.Len()
			if i%2 == 0 {
				reg.Remove(id)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 25, reg.Len())
}
