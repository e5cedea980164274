package idgen

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSonyflakeGeneratorUnique(t *testing.T) {
	gen, err := NewSonyflakeGenerator(7)
	require.NoError(t, err)

	const n = 500
	var (
		mu   sync.Mutex
		seen = make(map[string]struct{}, n)
		wg   sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := gen.NextID()
			assert.NoError(t, err)
			mu.Lock()
			seen[id] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Len(t, seen, n)
}

func TestUUIDGenerator(t *testing.T) {
	id, err := NewUUIDGenerator().NextID()
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	require.NoError(t, err)
}

func TestDefaultGenerator(t *testing.T) {
	SetDefaultGenerator(NewUUIDGenerator())
	defer SetDefaultGenerator(nil)

	id, err := NextID()
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	require.NoError(t, err)
}
