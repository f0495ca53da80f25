package signup

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCodeStoreClaimIsAtomic(t *testing.T) {
	store := NewMemoryCodeStore()

	const goroutines = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.Claim(context.Background(), "same-code")
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestMemoryCodeStoreReleaseMakesCodeClaimableAgain(t *testing.T) {
	store := NewMemoryCodeStore()

	ok, err := store.Claim(context.Background(), "code")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.Claim(context.Background(), "code")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Release(context.Background(), "code"))

	ok, err = store.Claim(context.Background(), "code")
	require.NoError(t, err)
	assert.True(t, ok)
}
