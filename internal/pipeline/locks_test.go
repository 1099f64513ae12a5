package pipeline

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLockerSerializesPerCategory(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()

	var mu sync.Mutex
	inSection := map[string]int{}
	maxSeen := map[string]int{}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		category := "Business"
		if i%2 == 0 {
			category = "Sports"
		}
		wg.Add(1)
		go func(category string) {
			defer wg.Done()
			unlock, err := locker.Lock(ctx, category)
			require.NoError(t, err)
			defer unlock()

			mu.Lock()
			inSection[category]++
			if inSection[category] > maxSeen[category] {
				maxSeen[category] = inSection[category]
			}
			mu.Unlock()

			mu.Lock()
			inSection[category]--
			mu.Unlock()
		}(category)
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen["Business"])
	assert.Equal(t, 1, maxSeen["Sports"])
}
