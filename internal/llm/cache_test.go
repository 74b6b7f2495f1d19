package llm

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuggestionCache(t *testing.T) {
	t.Run("basic operations", func(t *testing.T) {
		cache := newSuggestionCache(5 * time.Minute)
		defer cache.Close()

		_, found := cache.get("non-existent")
		assert.False(t, found)

		suggestion := &Suggestion{CategoryID: "cat-1", CategoryName: "Mercado"}
		cache.set("key1", suggestion)

		retrieved, found := cache.get("key1")
		require.True(t, found)
		assert.Equal(t, suggestion, retrieved)
		assert.Equal(t, 1, cache.size())
	})

	t.Run("remembers empty answers", func(t *testing.T) {
		cache := newSuggestionCache(5 * time.Minute)
		defer cache.Close()

		cache.set("unknown", nil)
		retrieved, found := cache.get("unknown")
		assert.True(t, found)
		assert.Nil(t, retrieved)
	})

	t.Run("expiration", func(t *testing.T) {
		cache := newSuggestionCache(50 * time.Millisecond)
		defer cache.Close()

		cache.set("key2", &Suggestion{CategoryID: "cat-2"})
		_, found := cache.get("key2")
		assert.True(t, found)

		time.Sleep(100 * time.Millisecond)

		_, found = cache.get("key2")
		assert.False(t, found)
	})

	t.Run("janitor removes expired entries", func(t *testing.T) {
		cache := newSuggestionCache(20 * time.Millisecond)
		defer cache.Close()

		cache.set("key3", &Suggestion{CategoryID: "cat-3"})
		assert.Eventually(t, func() bool { return cache.size() == 0 }, time.Second, 10*time.Millisecond)
	})

	t.Run("concurrent access", func(t *testing.T) {
		cache := newSuggestionCache(5 * time.Minute)
		defer cache.Close()

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				for j := 0; j < 50; j++ {
					key := fmt.Sprintf("k%d", j%5)
					cache.set(key, &Suggestion{CategoryID: key})
					_, _ = cache.get(key)
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, 5, cache.size())
	})
}
