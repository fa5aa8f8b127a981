package hardlink

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFirstInsertReportsNotFound(t *testing.T) {
	tbl := New()
	path, found := tbl.LookupOrInsert(Key{Dev: 1, Ino: 2}, "a/b")
	assert.False(t, found)
	assert.Empty(t, path)
}

func TestSecondLookupReturnsFirstPath(t *testing.T) {
	tbl := New()
	tbl.LookupOrInsert(Key{Dev: 1, Ino: 2}, "a/b")
	path, found := tbl.LookupOrInsert(Key{Dev: 1, Ino: 2}, "c/d")
	assert.True(t, found)
	assert.Equal(t, "a/b", path)
}

func TestDistinctKeysDoNotCollide(t *testing.T) {
	tbl := New()
	tbl.LookupOrInsert(Key{Dev: 1, Ino: 2}, "a")
	_, found := tbl.LookupOrInsert(Key{Dev: 1, Ino: 3}, "b")
	assert.False(t, found)
}

func TestConcurrentInsertsOnlyOneWins(t *testing.T) {
	tbl := New()
	key := Key{Dev: 9, Ino: 9}
	var wg sync.WaitGroup
	var foundCount int
	var mu sync.Mutex
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, found := tbl.LookupOrInsert(key, "path")
			if found {
				mu.Lock()
				foundCount++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 49, foundCount)
}
